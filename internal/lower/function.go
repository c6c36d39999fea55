package lower

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/ast"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

// funcCtx carries one function's lowering state: its builder, the
// symbol→home-slot map populated by the pre-scan pass, and the
// break/continue target stacks used by loop lowering.
type funcCtx struct {
	*state
	fn *ir.Function
	b  *ir.Builder

	locals map[*ast.Symbol]*ir.Instruction

	breakTargets, continueTargets []*ir.BasicBlock

	blockCounter int
}

func (fc *funcCtx) freshLabel(prefix string) string {
	fc.blockCounter++
	return fmt.Sprintf("%s.%d", prefix, fc.blockCounter)
}

// openUnreachableBlock starts a fresh block after an unconditional
// terminator so later statements in the same source block (dead code
// after return/break/continue) still have somewhere to lower into,
// keeping every block well-formed (§4.3, P1).
func (fc *funcCtx) openUnreachableBlock() {
	blk := fc.b.CreateBlock(fc.fn, fc.freshLabel("unreachable"))
	fc.b.SetInsertPoint(blk, nil)
}

func lowerFunction(st *state, decl *ast.FuncDecl) error {
	fn, ok := st.m.FuncByName(decl.Name)
	if !ok {
		return fmt.Errorf("function %s was not pre-declared", decl.Name)
	}

	b := ir.NewBuilder(st.m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)

	fc := &funcCtx{state: st, fn: fn, b: b, locals: map[*ast.Symbol]*ir.Instruction{}}

	// Parameter home slots (§4.3): one Alloca per parameter, immediately
	// stored with the incoming value.
	for i, p := range decl.Params {
		slot := b.CreateAlloca(fn, convertType(p.Sym.Type), p.Sym.Name+".addr")
		b.CreateStore(fn.Params[i], slot)
		fc.locals[p.Sym] = slot
	}

	// Pre-scan: every non-const local declaration in the body gets an
	// Alloca at the top of the entry block, regardless of the nesting
	// depth of the block it's declared in (§4.3).
	prescanDecls(decl.Body, fc)

	if err := fc.lowerStmts(decl.Body); err != nil {
		return err
	}

	// A body that falls off the end without an explicit return (valid
	// for void functions) needs a terminator to keep the block
	// well-formed (P1).
	if fc.b.InsertBlock().Terminator() == nil {
		if fn.ReturnType.Kind == ir.TVoid {
			fc.b.CreateRet(nil)
		} else {
			fc.b.CreateRet(ir.ZeroOf(fn.ReturnType))
		}
	}

	return nil
}

func prescanDecls(stmts []ast.Stmt, fc *funcCtx) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *ast.DeclStmt:
			if n.Sym.IsConst {
				continue // const folds at use, never gets a slot (§4.3)
			}
			slot := fc.b.CreateAlloca(fc.fn, convertType(n.Sym.Type), n.Sym.Name)
			fc.locals[n.Sym] = slot
		case *ast.BlockStmt:
			prescanDecls(n.Stmts, fc)
		case *ast.IfStmt:
			prescanDecls([]ast.Stmt{n.Then}, fc)
			if n.Else != nil {
				prescanDecls([]ast.Stmt{n.Else}, fc)
			}
		case *ast.WhileStmt:
			prescanDecls([]ast.Stmt{n.Body}, fc)
		}
	}
}
