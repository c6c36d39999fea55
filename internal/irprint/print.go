// Package irprint renders an internal/ir.Module as textual LLVM-style
// IR (§6.2). Rather than hand-rolling a second LLVM-syntax serializer,
// it translates the hand-owned SSA IR block by block into
// github.com/llir/llvm's object model and defers to that library's
// battle-tested String() machinery.
package irprint

import (
	"fmt"

	lir "github.com/llir/llvm/ir"
	lc "github.com/llir/llvm/ir/constant"
	le "github.com/llir/llvm/ir/enum"
	lt "github.com/llir/llvm/ir/types"
	lv "github.com/llir/llvm/ir/value"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

// Print converts mod into an llir/llvm module and renders it as
// textual LLVM IR.
func Print(mod *ir.Module) (string, error) {
	m, err := convertModule(mod)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

type converter struct {
	mod       *lir.Module
	funcMap   map[*ir.Function]*lir.Func
	globalMap map[*ir.GlobalVariable]*lir.Global
}

func convertModule(src *ir.Module) (*lir.Module, error) {
	c := &converter{
		mod:       lir.NewModule(),
		funcMap:   map[*ir.Function]*lir.Func{},
		globalMap: map[*ir.GlobalVariable]*lir.Global{},
	}
	c.mod.SourceFilename = src.SourceFile

	for _, g := range src.Globals {
		if err := c.declareGlobal(g); err != nil {
			return nil, fmt.Errorf("irprint: global %s: %w", g.Name, err)
		}
	}
	for _, fn := range src.Functions {
		if err := c.declareFunction(fn); err != nil {
			return nil, fmt.Errorf("irprint: function %s: %w", fn.Name, err)
		}
	}
	for _, fn := range src.Functions {
		if fn.Extern {
			continue
		}
		if err := c.convertFunctionBody(fn); err != nil {
			return nil, fmt.Errorf("irprint: function %s: %w", fn.Name, err)
		}
	}
	return c.mod, nil
}

func (c *converter) declareGlobal(g *ir.GlobalVariable) error {
	et, err := convertType(g.ElemType)
	if err != nil {
		return err
	}
	if g.Init == nil {
		gv := c.mod.NewGlobal(g.Name, et)
		c.globalMap[g] = gv
		return nil
	}
	init, err := c.convertConstant(g.Init)
	if err != nil {
		return err
	}
	gv := c.mod.NewGlobalDef(g.Name, init)
	gv.Immutable = g.IsConstant
	c.globalMap[g] = gv
	return nil
}

func (c *converter) declareFunction(fn *ir.Function) error {
	retType, err := convertType(fn.ReturnType)
	if err != nil {
		return err
	}
	params := make([]*lir.Param, len(fn.Params))
	for i, p := range fn.Params {
		pt, err := convertType(p.T)
		if err != nil {
			return err
		}
		params[i] = lir.NewParam(p.Name, pt)
	}
	lf := c.mod.NewFunc(fn.Name, retType, params...)
	lf.Sig.Variadic = fn.Variadic
	c.funcMap[fn] = lf
	return nil
}

// convertFunctionBody converts one function's blocks and instructions.
// It follows the same three-pass scheme used by internal/transform's
// block cloners: create every block first, then every non-PHI
// instruction (so forward references through valMap resolve), then
// wire PHI incoming pairs once every value has a mapping.
func (c *converter) convertFunctionBody(fn *ir.Function) error {
	lf := c.funcMap[fn]

	blockMap := map[*ir.BasicBlock]*lir.Block{}
	for _, b := range fn.Blocks() {
		blockMap[b] = lf.NewBlock(b.Label)
	}

	paramMap := map[*ir.Param]lv.Value{}
	for i, p := range fn.Params {
		paramMap[p] = lf.Params[i]
	}

	valMap := map[*ir.Instruction]lv.Value{}
	remapVal := func(v ir.Value) (lv.Value, error) {
		switch x := v.(type) {
		case *ir.Param:
			if rv, ok := paramMap[x]; ok {
				return rv, nil
			}
		case *ir.Instruction:
			if rv, ok := valMap[x]; ok {
				return rv, nil
			}
			return nil, fmt.Errorf("use of %s before its definition was converted", x.Name)
		case *ir.GlobalVariable:
			if rv, ok := c.globalMap[x]; ok {
				return rv, nil
			}
		case *ir.Function:
			if rv, ok := c.funcMap[x]; ok {
				return rv, nil
			}
		}
		return c.convertConstant(v)
	}
	remapBlk := func(b *ir.BasicBlock) *lir.Block { return blockMap[b] }

	for _, b := range fn.Blocks() {
		nb := blockMap[b]
		for _, phi := range b.Phis() {
			valMap[phi] = nb.NewPhi()
		}
	}

	for _, b := range fn.Blocks() {
		nb := blockMap[b]
		for _, inst := range b.Instructions() {
			if inst.Op == ir.OpPhi {
				continue
			}
			val, err := c.convertInstruction(nb, inst, remapVal, remapBlk)
			if err != nil {
				return fmt.Errorf("block %s: %w", b.Label, err)
			}
			if val != nil {
				valMap[inst] = val
			}
		}
	}

	for _, b := range fn.Blocks() {
		for _, phi := range b.Phis() {
			llphi := valMap[phi].(*lir.InstPhi)
			for _, in := range ir.Incoming(phi) {
				incVal, err := remapVal(in.Val)
				if err != nil {
					return fmt.Errorf("phi %s: %w", phi.Name, err)
				}
				llphi.Incs = append(llphi.Incs, lir.NewIncoming(incVal, blockMap[in.Blk]))
			}
		}
	}

	return nil
}

// convertInstruction emits the llir/llvm equivalent of inst at the end
// of nb, returning the produced value (nil for Store/Br/CondBr/Ret,
// which define none).
func (c *converter) convertInstruction(nb *lir.Block, inst *ir.Instruction, remapVal func(ir.Value) (lv.Value, error), remapBlk func(*ir.BasicBlock) *lir.Block) (lv.Value, error) {
	ops := inst.Operands()
	operand := func(i int) (lv.Value, error) { return remapVal(ops[i].Ref) }

	switch inst.Op {
	case ir.OpAdd:
		return binOp(nb.NewAdd, operand)
	case ir.OpSub:
		return binOp(nb.NewSub, operand)
	case ir.OpMul:
		return binOp(nb.NewMul, operand)
	case ir.OpSDiv:
		return binOp(nb.NewSDiv, operand)
	case ir.OpSRem:
		return binOp(nb.NewSRem, operand)
	case ir.OpFAdd:
		return binOp(nb.NewFAdd, operand)
	case ir.OpFSub:
		return binOp(nb.NewFSub, operand)
	case ir.OpFMul:
		return binOp(nb.NewFMul, operand)
	case ir.OpFDiv:
		return binOp(nb.NewFDiv, operand)
	case ir.OpAnd:
		return binOp(nb.NewAnd, operand)
	case ir.OpOr:
		return binOp(nb.NewOr, operand)
	case ir.OpXor:
		return binOp(nb.NewXor, operand)
	case ir.OpShl:
		return binOp(nb.NewShl, operand)
	case ir.OpLShr:
		return binOp(nb.NewLShr, operand)
	case ir.OpAShr:
		return binOp(nb.NewAShr, operand)
	case ir.OpICmp:
		x, err := operand(0)
		if err != nil {
			return nil, err
		}
		y, err := operand(1)
		if err != nil {
			return nil, err
		}
		pred, err := convertIPred(inst.Pred)
		if err != nil {
			return nil, err
		}
		return nb.NewICmp(pred, x, y), nil
	case ir.OpFCmp:
		x, err := operand(0)
		if err != nil {
			return nil, err
		}
		y, err := operand(1)
		if err != nil {
			return nil, err
		}
		pred, err := convertFPred(inst.Pred)
		if err != nil {
			return nil, err
		}
		return nb.NewFCmp(pred, x, y), nil
	case ir.OpSExt, ir.OpZExt, ir.OpTrunc, ir.OpFPExt, ir.OpFPTrunc, ir.OpSIToFP, ir.OpFPToSI:
		from, err := operand(0)
		if err != nil {
			return nil, err
		}
		to, err := convertType(inst.T)
		if err != nil {
			return nil, err
		}
		switch inst.Op {
		case ir.OpSExt:
			return nb.NewSExt(from, to), nil
		case ir.OpZExt:
			return nb.NewZExt(from, to), nil
		case ir.OpTrunc:
			return nb.NewTrunc(from, to), nil
		case ir.OpFPExt:
			return nb.NewFPExt(from, to), nil
		case ir.OpFPTrunc:
			return nb.NewFPTrunc(from, to), nil
		case ir.OpSIToFP:
			return nb.NewSIToFP(from, to), nil
		default: // OpFPToSI
			return nb.NewFPToSI(from, to), nil
		}
	case ir.OpAlloca:
		et, err := convertType(inst.AllocType)
		if err != nil {
			return nil, err
		}
		return nb.NewAlloca(et), nil
	case ir.OpLoad:
		ptr, err := operand(0)
		if err != nil {
			return nil, err
		}
		et, err := convertType(inst.T)
		if err != nil {
			return nil, err
		}
		return nb.NewLoad(et, ptr), nil
	case ir.OpStore:
		val, err := operand(0)
		if err != nil {
			return nil, err
		}
		ptr, err := operand(1)
		if err != nil {
			return nil, err
		}
		nb.NewStore(val, ptr)
		return nil, nil
	case ir.OpGEP:
		return c.convertGEP(nb, inst, operand)
	case ir.OpCall:
		callee, err := remapVal(ir.CalleeOf(inst))
		if err != nil {
			return nil, err
		}
		args := ir.ArgsOf(inst)
		largs := make([]lv.Value, len(args))
		for i, a := range args {
			la, err := remapVal(a)
			if err != nil {
				return nil, err
			}
			largs[i] = la
		}
		call := nb.NewCall(callee, largs...)
		if inst.T == nil {
			return nil, nil
		}
		return call, nil
	case ir.OpBr:
		if len(ops) == 1 {
			nb.NewBr(remapBlk(ops[0].Blk))
			return nil, nil
		}
		cond, err := operand(0)
		if err != nil {
			return nil, err
		}
		nb.NewCondBr(cond, remapBlk(ops[1].Blk), remapBlk(ops[2].Blk))
		return nil, nil
	case ir.OpRet:
		if len(ops) == 0 {
			nb.NewRet(nil)
			return nil, nil
		}
		v, err := operand(0)
		if err != nil {
			return nil, err
		}
		nb.NewRet(v)
		return nil, nil
	}
	return nil, fmt.Errorf("irprint: cannot convert opcode %s", inst.Op)
}

// convertGEP translates this IR's single-step GEP (§4.3) into LLVM's
// multi-index form: a pointer into an array type is indexed with a
// leading zero (navigating through the pointer itself) followed by
// the element index, matching the standard C-array-addressing idiom;
// a pointer to a scalar is indexed directly as flat pointer
// arithmetic.
func (c *converter) convertGEP(nb *lir.Block, inst *ir.Instruction, operand func(int) (lv.Value, error)) (lv.Value, error) {
	ptr, err := operand(0)
	if err != nil {
		return nil, err
	}
	idx, err := operand(1)
	if err != nil {
		return nil, err
	}
	base := inst.Operands()[0].Ref.ValueType()
	pointee, err := convertType(base.Pointee)
	if err != nil {
		return nil, err
	}
	if base.Pointee.Kind == ir.TArray {
		zero := lc.NewInt(lt.I64, 0)
		gep := nb.NewGetElementPtr(pointee, ptr, zero, idx)
		gep.InBounds = inst.Inbounds
		return gep, nil
	}
	gep := nb.NewGetElementPtr(pointee, ptr, idx)
	gep.InBounds = inst.Inbounds
	return gep, nil
}

func binOp(ctor func(x, y lv.Value) lv.Value, operand func(int) (lv.Value, error)) (lv.Value, error) {
	x, err := operand(0)
	if err != nil {
		return nil, err
	}
	y, err := operand(1)
	if err != nil {
		return nil, err
	}
	return ctor(x, y), nil
}

func convertIPred(p string) (le.IPred, error) {
	switch p {
	case "eq":
		return le.IPredEQ, nil
	case "ne":
		return le.IPredNE, nil
	case "slt":
		return le.IPredSLT, nil
	case "sle":
		return le.IPredSLE, nil
	case "sgt":
		return le.IPredSGT, nil
	case "sge":
		return le.IPredSGE, nil
	}
	return 0, fmt.Errorf("irprint: unknown icmp predicate %q", p)
}

func convertFPred(p string) (le.FPred, error) {
	switch p {
	case "oeq":
		return le.FPredOEQ, nil
	case "one":
		return le.FPredONE, nil
	case "olt":
		return le.FPredOLT, nil
	case "ole":
		return le.FPredOLE, nil
	case "ogt":
		return le.FPredOGT, nil
	case "oge":
		return le.FPredOGE, nil
	}
	return 0, fmt.Errorf("irprint: unknown fcmp predicate %q", p)
}

// convertType maps an internal/ir.Type to its llir/llvm counterpart.
func convertType(t *ir.Type) (lt.Type, error) {
	if t == nil {
		return lt.Void, nil
	}
	switch t.Kind {
	case ir.TVoid:
		return lt.Void, nil
	case ir.TBasic:
		switch t.Basic {
		case ir.I1:
			return lt.I1, nil
		case ir.I8:
			return lt.I8, nil
		case ir.I32:
			return lt.I32, nil
		case ir.I64:
			return lt.I64, nil
		case ir.F32:
			return lt.Float, nil
		case ir.F64:
			return lt.Double, nil
		}
	case ir.TPointer:
		pe, err := convertType(t.Pointee)
		if err != nil {
			return nil, err
		}
		return lt.NewPointer(pe), nil
	case ir.TArray:
		return convertArrayType(t)
	case ir.TFunction:
		ret, err := convertType(t.Ret)
		if err != nil {
			return nil, err
		}
		params := make([]lt.Type, len(t.Params))
		for i, p := range t.Params {
			pt, err := convertType(p)
			if err != nil {
				return nil, err
			}
			params[i] = pt
		}
		return lt.NewFunc(ret, params...), nil
	}
	return nil, fmt.Errorf("irprint: unhandled type %s", t)
}

func convertArrayType(t *ir.Type) (lt.Type, error) {
	elem, err := convertType(t.Elem)
	if err != nil {
		return nil, err
	}
	for i := len(t.Dims) - 1; i >= 0; i-- {
		elem = lt.NewArray(uint64(t.Dims[i].Size), elem)
	}
	return elem, nil
}

// convertConstant maps an internal/ir constant Value to its llir/llvm
// counterpart.
func (c *converter) convertConstant(v ir.Value) (lc.Constant, error) {
	switch x := v.(type) {
	case *ir.ConstantInt:
		t, err := convertType(x.T)
		if err != nil {
			return nil, err
		}
		return lc.NewInt(t.(*lt.IntType), x.Val), nil
	case *ir.ConstantFP:
		t, err := convertType(x.T)
		if err != nil {
			return nil, err
		}
		return lc.NewFloat(t.(*lt.FloatType), x.Val), nil
	case *ir.ConstantArray:
		at, err := convertType(x.T)
		if err != nil {
			return nil, err
		}
		elems := make([]lc.Constant, len(x.Elements))
		for i, e := range x.Elements {
			ce, err := c.convertConstant(e)
			if err != nil {
				return nil, err
			}
			elems[i] = ce
		}
		return lc.NewArray(at.(*lt.ArrayType), elems...), nil
	}
	return nil, fmt.Errorf("irprint: value %v is not a constant and has no mapping", v)
}
