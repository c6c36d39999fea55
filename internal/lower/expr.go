package lower

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/ast"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

func (fc *funcCtx) lowerExpr(e ast.Expr) (ir.Value, error) {
	switch n := e.(type) {
	case *ast.IntLit:
		return constIntOrFP(convertType(n.Type()), n.Value, 0, false), nil
	case *ast.FloatLit:
		return constIntOrFP(convertType(n.Type()), 0, n.Value, true), nil
	case *ast.Ident:
		if n.Sym.IsConst {
			if n.Sym.ConstValue == nil {
				return nil, fmt.Errorf("const symbol %s has no computed value", n.Sym.Name)
			}
			return lowerConstValue(n.Sym.ConstValue), nil // const folding at lowering (§4.3)
		}
		ptr, elemType, err := fc.lowerLValue(n)
		if err != nil {
			return nil, err
		}
		if elemType.Kind == ir.TArray {
			return ptr, nil // array name decays to a pointer, e.g. when passed as an argument
		}
		return fc.b.CreateLoad(ptr, n.Sym.Name), nil
	case *ast.BinaryExpr:
		return fc.lowerBinary(n)
	case *ast.UnaryExpr:
		return fc.lowerUnary(n)
	case *ast.CallExpr:
		return fc.lowerCall(n)
	case *ast.IndexExpr:
		ptr, elemType, err := fc.lowerLValue(n)
		if err != nil {
			return nil, err
		}
		if elemType.Kind == ir.TArray {
			return ptr, nil
		}
		return fc.b.CreateLoad(ptr, ""), nil
	case *ast.Convert:
		v, err := fc.lowerExpr(n.From)
		if err != nil {
			return nil, err
		}
		return fc.convertTo(v, convertType(n.Type())), nil
	case *ast.ArrayLit:
		return nil, fmt.Errorf("array literal used outside of a declaration initializer")
	default:
		return nil, fmt.Errorf("unhandled expression type %T", e)
	}
}

// lowerLValue resolves e to the address it names plus the type stored
// there: an Ident's home slot (global or local), or one more step down
// a GEP chain for an IndexExpr (§4.3: "a single GetElementPtr per
// indexing step").
func (fc *funcCtx) lowerLValue(e ast.Expr) (ir.Value, *ir.Type, error) {
	switch n := e.(type) {
	case *ast.Ident:
		if n.Sym.IsGlobal {
			g, ok := fc.m.FindGlobal(n.Sym.Name)
			if !ok {
				return nil, nil, fmt.Errorf("undefined global %s", n.Sym.Name)
			}
			return g, g.ElemType, nil
		}
		slot, ok := fc.locals[n.Sym]
		if !ok {
			return nil, nil, fmt.Errorf("undefined local %s", n.Sym.Name)
		}
		return slot, slot.AllocType, nil
	case *ast.IndexExpr:
		arrPtr, arrType, err := fc.lowerLValue(n.Array)
		if err != nil {
			return nil, nil, err
		}
		if arrType.Kind != ir.TArray {
			return nil, nil, fmt.Errorf("index of non-array type %s", arrType)
		}
		idx, err := fc.lowerExpr(n.Index)
		if err != nil {
			return nil, nil, err
		}
		idx = fc.convertTo(idx, ir.Basic(ir.I32))
		fc.emitBoundsCheck(idx, arrType.Dims[0])
		elemPtr := fc.b.CreateGEP(arrPtr, idx, true, "")
		return elemPtr, elemPtr.ValueType().Pointee, nil
	default:
		return nil, nil, fmt.Errorf("%T is not an addressable expression", e)
	}
}

// emitBoundsCheck inserts the compile-time-checkable bounds-check
// sequence for a statically sized dimension: on violation it reports
// through the runtime's putf and execution continues regardless (§4.3,
// §9 open question — this is the source's documented, if surprising,
// behavior: the check never aborts the access).
func (fc *funcCtx) emitBoundsCheck(idx ir.Value, dim ir.ArrayDim) {
	if dim.Dynamic {
		return
	}
	zero := &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0}
	size := &ir.ConstantInt{T: ir.Basic(ir.I32), Val: int64(dim.Size)}
	tooLow := fc.b.CreateICmp("slt", idx, zero, "")
	tooHigh := fc.b.CreateICmp("sge", idx, size, "")
	oob := fc.b.CreateOr(tooLow, tooHigh, "")

	failB := fc.b.CreateBlock(fc.fn, fc.freshLabel("bounds.fail"))
	okB := fc.b.CreateBlock(fc.fn, fc.freshLabel("bounds.ok"))
	fc.b.CreateCondBr(oob, failB, okB)

	fc.b.SetInsertPoint(failB, nil)
	msg := fc.internString("array index out of bounds")
	msgPtr := fc.b.CreateGEP(msg, zero, true, "")
	putf, _ := fc.m.FuncByName("putf")
	fc.b.CreateCall(putf, []ir.Value{msgPtr}, ir.Void(), "")
	fc.b.CreateBr(okB)

	fc.b.SetInsertPoint(okB, nil)
}

func (fc *funcCtx) lowerUnary(n *ast.UnaryExpr) (ir.Value, error) {
	x, err := fc.lowerExpr(n.X)
	if err != nil {
		return nil, err
	}
	t := x.ValueType()
	isFloat := t.Kind == ir.TBasic && t.Basic.IsFloat()
	switch n.Op {
	case "-":
		if isFloat {
			return fc.b.CreateFSub(&ir.ConstantFP{T: t}, x, ""), nil
		}
		return fc.b.CreateSub(&ir.ConstantInt{T: t}, x, ""), nil
	case "!":
		var cmp ir.Value
		if isFloat {
			cmp = fc.b.CreateFCmp("oeq", x, &ir.ConstantFP{T: t}, "")
		} else {
			cmp = fc.b.CreateICmp("eq", x, &ir.ConstantInt{T: t}, "")
		}
		return fc.convertTo(cmp, convertType(n.Type())), nil
	default:
		return nil, fmt.Errorf("unhandled unary operator %q", n.Op)
	}
}

func (fc *funcCtx) lowerBinary(n *ast.BinaryExpr) (ir.Value, error) {
	if n.Op == ast.OpAnd || n.Op == ast.OpOr {
		return fc.lowerShortCircuit(n)
	}

	lhs, err := fc.lowerExpr(n.Left)
	if err != nil {
		return nil, err
	}
	rhs, err := fc.lowerExpr(n.Right)
	if err != nil {
		return nil, err
	}
	t := lhs.ValueType()
	isFloat := t.Kind == ir.TBasic && t.Basic.IsFloat()

	switch n.Op {
	case ast.OpAdd:
		if isFloat {
			return fc.b.CreateFAdd(lhs, rhs, ""), nil
		}
		return fc.b.CreateAdd(lhs, rhs, ""), nil
	case ast.OpSub:
		if isFloat {
			return fc.b.CreateFSub(lhs, rhs, ""), nil
		}
		return fc.b.CreateSub(lhs, rhs, ""), nil
	case ast.OpMul:
		if isFloat {
			return fc.b.CreateFMul(lhs, rhs, ""), nil
		}
		return fc.b.CreateMul(lhs, rhs, ""), nil
	case ast.OpDiv:
		if isFloat {
			return fc.b.CreateFDiv(lhs, rhs, ""), nil
		}
		return fc.b.CreateSDiv(lhs, rhs, ""), nil
	case ast.OpMod:
		return fc.b.CreateSRem(lhs, rhs, ""), nil
	case ast.OpEq, ast.OpNe, ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		var cmp ir.Value
		if isFloat {
			cmp = fc.b.CreateFCmp(fcmpPred(n.Op), lhs, rhs, "")
		} else {
			cmp = fc.b.CreateICmp(icmpPred(n.Op), lhs, rhs, "")
		}
		return fc.convertTo(cmp, convertType(n.Type())), nil
	default:
		return nil, fmt.Errorf("unhandled binary operator %q", n.Op)
	}
}

func icmpPred(op string) string {
	switch op {
	case ast.OpEq:
		return "eq"
	case ast.OpNe:
		return "ne"
	case ast.OpLt:
		return "slt"
	case ast.OpLe:
		return "sle"
	case ast.OpGt:
		return "sgt"
	case ast.OpGe:
		return "sge"
	}
	return "eq"
}

func fcmpPred(op string) string {
	switch op {
	case ast.OpEq:
		return "oeq"
	case ast.OpNe:
		return "one"
	case ast.OpLt:
		return "olt"
	case ast.OpLe:
		return "ole"
	case ast.OpGt:
		return "ogt"
	case ast.OpGe:
		return "oge"
	}
	return "oeq"
}

// lowerShortCircuit lowers && and || to a diamond CFG with a final i1
// Phi, zero-extended to the boolean result's scalar type (§4.3).
func (fc *funcCtx) lowerShortCircuit(n *ast.BinaryExpr) (ir.Value, error) {
	lhs, err := fc.lowerExpr(n.Left)
	if err != nil {
		return nil, err
	}
	lhsI1 := fc.toI1(lhs)
	lhsBlock := fc.b.InsertBlock()

	rhsB := fc.b.CreateBlock(fc.fn, fc.freshLabel("sc.rhs"))
	mergeB := fc.b.CreateBlock(fc.fn, fc.freshLabel("sc.end"))

	shortCircuitValue := int64(0)
	if n.Op == ast.OpOr {
		shortCircuitValue = 1
		fc.b.CreateCondBr(lhsI1, mergeB, rhsB)
	} else {
		fc.b.CreateCondBr(lhsI1, rhsB, mergeB)
	}

	fc.b.SetInsertPoint(rhsB, nil)
	rhs, err := fc.lowerExpr(n.Right)
	if err != nil {
		return nil, err
	}
	rhsI1 := fc.toI1(rhs)
	rhsBlock := fc.b.InsertBlock()
	fc.b.CreateBr(mergeB)

	fc.b.SetInsertPoint(mergeB, nil)
	phi := fc.b.CreatePhi(mergeB, ir.Basic(ir.I1), "")
	fc.b.AddIncoming(phi, &ir.ConstantInt{T: ir.Basic(ir.I1), Val: shortCircuitValue}, lhsBlock)
	fc.b.AddIncoming(phi, rhsI1, rhsBlock)

	return fc.convertTo(phi, convertType(n.Type())), nil
}

func (fc *funcCtx) lowerCall(n *ast.CallExpr) (ir.Value, error) {
	callee, ok := fc.m.FuncByName(n.Callee)
	if !ok {
		return nil, fmt.Errorf("call to undeclared function %s", n.Callee)
	}
	fixed := len(callee.Params)
	args := make([]ir.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := fc.lowerExpr(a)
		if err != nil {
			return nil, err
		}
		if i < fixed {
			v = fc.convertTo(v, callee.Params[i].T)
		} else {
			v = fc.defaultPromote(v)
		}
		args[i] = v
	}
	name := ""
	if callee.ReturnType.Kind != ir.TVoid {
		name = n.Callee + ".result"
	}
	return fc.b.CreateCall(callee, args, callee.ReturnType, name), nil
}

// defaultPromote applies the variadic default-argument promotions
// (§4.3: "f32→f64, i1/i8→i32") to an argument past a call's fixed
// parameter prefix.
func (fc *funcCtx) defaultPromote(v ir.Value) ir.Value {
	t := v.ValueType()
	if t.Kind != ir.TBasic {
		return v
	}
	switch t.Basic {
	case ir.F32:
		return fc.convertTo(v, ir.Basic(ir.F64))
	case ir.I1, ir.I8:
		return fc.convertTo(v, ir.Basic(ir.I32))
	default:
		return v
	}
}

// toI1 coerces a scalar to i1 for use as a branch condition: SysY has
// no boolean type, so "truthy" means "not zero".
func (fc *funcCtx) toI1(v ir.Value) ir.Value {
	t := v.ValueType()
	if t.Kind == ir.TBasic && t.Basic == ir.I1 {
		return v
	}
	if t.Kind == ir.TBasic && t.Basic.IsFloat() {
		return fc.b.CreateFCmp("one", v, &ir.ConstantFP{T: t}, "")
	}
	return fc.b.CreateICmp("ne", v, &ir.ConstantInt{T: t}, "")
}

// convertTo inserts the implicit-conversion opcode the front end's
// eval_type rules call for between v's type and to (§4.3).
func (fc *funcCtx) convertTo(v ir.Value, to *ir.Type) ir.Value {
	from := v.ValueType()
	if from.Equal(to, true) {
		return v
	}
	if from.Kind != ir.TBasic || to.Kind != ir.TBasic {
		return v
	}
	fromFloat, toFloat := from.Basic.IsFloat(), to.Basic.IsFloat()
	switch {
	case !fromFloat && toFloat:
		return fc.b.CreateSIToFP(v, to, "")
	case fromFloat && !toFloat:
		return fc.b.CreateFPToSI(v, to, "")
	case fromFloat && toFloat:
		if floatBits(to.Basic) > floatBits(from.Basic) {
			return fc.b.CreateFPExt(v, to, "")
		}
		return fc.b.CreateFPTrunc(v, to, "")
	default: // int to int
		if intBits(to.Basic) > intBits(from.Basic) {
			if from.Basic == ir.I1 {
				return fc.b.CreateZExt(v, to, "") // boolean widen: true -> 1, never -1
			}
			return fc.b.CreateSExt(v, to, "")
		}
		return fc.b.CreateTrunc(v, to, "")
	}
}

func intBits(k ir.BasicKind) int {
	switch k {
	case ir.I1:
		return 1
	case ir.I8:
		return 8
	case ir.I32:
		return 32
	case ir.I64:
		return 64
	}
	return 32
}

func floatBits(k ir.BasicKind) int {
	if k == ir.F64 {
		return 64
	}
	return 32
}
