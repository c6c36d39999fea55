package lower

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/ast"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

func (fc *funcCtx) lowerStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if err := fc.lowerStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (fc *funcCtx) lowerStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.DeclStmt:
		return fc.lowerDecl(n)
	case *ast.AssignStmt:
		return fc.lowerAssign(n)
	case *ast.ExprStmt:
		_, err := fc.lowerExpr(n.X)
		return err
	case *ast.BlockStmt:
		return fc.lowerStmts(n.Stmts)
	case *ast.IfStmt:
		return fc.lowerIf(n)
	case *ast.WhileStmt:
		return fc.lowerWhile(n)
	case *ast.BreakStmt:
		return fc.lowerBreak()
	case *ast.ContinueStmt:
		return fc.lowerContinue()
	case *ast.ReturnStmt:
		return fc.lowerReturn(n)
	default:
		return fmt.Errorf("unhandled statement type %T", s)
	}
}

func (fc *funcCtx) lowerDecl(n *ast.DeclStmt) error {
	if n.Sym.IsConst {
		return nil // no slot, no store: reads fold directly (§4.3)
	}
	if n.Init == nil {
		return nil // uninitialized local: memory form leaves it undefined
	}
	slot := fc.locals[n.Sym]
	t := convertType(n.Sym.Type)
	if t.Kind == ir.TArray {
		return fc.lowerArrayInit(slot, t, n.Init)
	}
	v, err := fc.lowerExpr(n.Init)
	if err != nil {
		return err
	}
	v = fc.convertTo(v, t)
	fc.b.CreateStore(v, slot)
	return nil
}

// lowerArrayInit stores each element of an array literal individually
// through a GEP chain, zero-filling trailing elements (§4.3).
func (fc *funcCtx) lowerArrayInit(ptr ir.Value, t *ir.Type, init ast.Expr) error {
	lit, ok := init.(*ast.ArrayLit)
	if !ok {
		return fmt.Errorf("array declaration initializer must be an array literal")
	}
	n := t.Dims[0].Size
	elemType := t.Elem
	if len(t.Dims) > 1 {
		elemType = &ir.Type{Kind: ir.TArray, Elem: t.Elem, Dims: t.Dims[1:]}
	}
	for i := 0; i < n; i++ {
		elemPtr := fc.b.CreateGEP(ptr, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: int64(i)}, true, "")
		if i < len(lit.Elements) {
			if elemType.Kind == ir.TArray {
				if err := fc.lowerArrayInit(elemPtr, elemType, lit.Elements[i]); err != nil {
					return err
				}
				continue
			}
			v, err := fc.lowerExpr(lit.Elements[i])
			if err != nil {
				return err
			}
			fc.b.CreateStore(fc.convertTo(v, elemType), elemPtr)
		} else {
			fc.b.CreateStore(ir.ZeroOf(elemType), elemPtr)
		}
	}
	return nil
}

func (fc *funcCtx) lowerAssign(n *ast.AssignStmt) error {
	ptr, elemType, err := fc.lowerLValue(n.Target)
	if err != nil {
		return err
	}
	v, err := fc.lowerExpr(n.Value)
	if err != nil {
		return err
	}
	fc.b.CreateStore(fc.convertTo(v, elemType), ptr)
	return nil
}

func (fc *funcCtx) lowerIf(n *ast.IfStmt) error {
	cond, err := fc.lowerExpr(n.Cond)
	if err != nil {
		return err
	}
	condI1 := fc.toI1(cond)

	thenB := fc.b.CreateBlock(fc.fn, fc.freshLabel("if.then"))
	mergeB := fc.b.CreateBlock(fc.fn, fc.freshLabel("if.end"))
	var elseB *ir.BasicBlock
	if n.Else != nil {
		elseB = fc.b.CreateBlock(fc.fn, fc.freshLabel("if.else"))
		fc.b.CreateCondBr(condI1, thenB, elseB)
	} else {
		fc.b.CreateCondBr(condI1, thenB, mergeB)
	}

	fc.b.SetInsertPoint(thenB, nil)
	if err := fc.lowerStmt(n.Then); err != nil {
		return err
	}
	if fc.b.InsertBlock().Terminator() == nil {
		fc.b.CreateBr(mergeB)
	}

	if n.Else != nil {
		fc.b.SetInsertPoint(elseB, nil)
		if err := fc.lowerStmt(n.Else); err != nil {
			return err
		}
		if fc.b.InsertBlock().Terminator() == nil {
			fc.b.CreateBr(mergeB)
		}
	}

	fc.b.SetInsertPoint(mergeB, nil)
	return nil
}

func (fc *funcCtx) lowerWhile(n *ast.WhileStmt) error {
	headerB := fc.b.CreateBlock(fc.fn, fc.freshLabel("while.cond"))
	bodyB := fc.b.CreateBlock(fc.fn, fc.freshLabel("while.body"))
	exitB := fc.b.CreateBlock(fc.fn, fc.freshLabel("while.end"))

	fc.b.CreateBr(headerB)

	fc.b.SetInsertPoint(headerB, nil)
	cond, err := fc.lowerExpr(n.Cond)
	if err != nil {
		return err
	}
	fc.b.CreateCondBr(fc.toI1(cond), bodyB, exitB)

	fc.breakTargets = append(fc.breakTargets, exitB)
	fc.continueTargets = append(fc.continueTargets, headerB)

	fc.b.SetInsertPoint(bodyB, nil)
	if err := fc.lowerStmt(n.Body); err != nil {
		return err
	}
	if fc.b.InsertBlock().Terminator() == nil {
		fc.b.CreateBr(headerB)
	}

	fc.breakTargets = fc.breakTargets[:len(fc.breakTargets)-1]
	fc.continueTargets = fc.continueTargets[:len(fc.continueTargets)-1]

	fc.b.SetInsertPoint(exitB, nil)
	return nil
}

func (fc *funcCtx) lowerBreak() error {
	if len(fc.breakTargets) == 0 {
		return fmt.Errorf("break outside of a loop")
	}
	fc.b.CreateBr(fc.breakTargets[len(fc.breakTargets)-1])
	fc.openUnreachableBlock()
	return nil
}

func (fc *funcCtx) lowerContinue() error {
	if len(fc.continueTargets) == 0 {
		return fmt.Errorf("continue outside of a loop")
	}
	fc.b.CreateBr(fc.continueTargets[len(fc.continueTargets)-1])
	fc.openUnreachableBlock()
	return nil
}

func (fc *funcCtx) lowerReturn(n *ast.ReturnStmt) error {
	if n.Value == nil {
		fc.b.CreateRet(nil)
		fc.openUnreachableBlock()
		return nil
	}
	v, err := fc.lowerExpr(n.Value)
	if err != nil {
		return err
	}
	fc.b.CreateRet(fc.convertTo(v, fc.fn.ReturnType))
	fc.openUnreachableBlock()
	return nil
}
