package interp

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

// Interp executes a lowered or optimized internal/ir.Module directly,
// without lowering to a real target, so a test can compare the
// observable behavior of the unoptimized and optimized IR for the
// same program (§8's semantic-preservation properties).
type Interp struct {
	mod     *ir.Module
	globals map[*ir.GlobalVariable]*Pointer

	Stdin  *bufio.Reader
	Stdout io.Writer
}

// New creates an interpreter for mod, materializing every global's
// initializer into host memory.
func New(mod *ir.Module, stdin io.Reader, stdout io.Writer) *Interp {
	in := &Interp{
		mod:     mod,
		globals: map[*ir.GlobalVariable]*Pointer{},
		Stdin:   bufio.NewReader(stdin),
		Stdout:  stdout,
	}
	for _, g := range mod.Globals {
		in.globals[g] = in.materializeGlobal(g)
	}
	return in
}

func (in *Interp) materializeGlobal(g *ir.GlobalVariable) *Pointer {
	obj, elem := flattenConstant(g.Init, g.ElemType)
	return &Pointer{Obj: obj, Index: 0, Type: elem}
}

// flattenConstant lowers a (possibly nested) constant array into one
// flat memObject plus the type the resulting pointer should carry.
func flattenConstant(v ir.Value, t *ir.Type) (*memObject, *ir.Type) {
	if t.Kind != ir.TArray {
		obj := &memObject{elem: t, data: []Value{constToValue(v)}}
		return obj, t
	}
	var flat []Value
	flattenInto(v, &flat)
	base := t
	for base.Kind == ir.TArray {
		base = base.Elem
	}
	obj := &memObject{elem: base, data: flat}
	return obj, t
}

func flattenInto(v ir.Value, out *[]Value) {
	if arr, ok := v.(*ir.ConstantArray); ok {
		for _, e := range arr.Elements {
			flattenInto(e, out)
		}
		return
	}
	*out = append(*out, constToValue(v))
}

func constToValue(v ir.Value) Value {
	switch c := v.(type) {
	case *ir.ConstantInt:
		return IntValue(c.T.Basic, c.Val)
	case *ir.ConstantFP:
		return FloatValue(c.T.Basic, c.Val)
	}
	return Value{}
}

// Run looks up a function by name and calls it, the entry point used
// by the §8.1 end-to-end scenario tests.
func (in *Interp) Run(name string, args []Value) (Value, error) {
	fn, ok := in.mod.FuncByName(name)
	if !ok {
		return Value{}, fmt.Errorf("interp: no such function %s", name)
	}
	return in.CallFunction(fn, args)
}

// CallFunction executes fn with args bound to its parameters, walking
// blocks from fn.Entry until a Ret is reached.
func (in *Interp) CallFunction(fn *ir.Function, args []Value) (Value, error) {
	if fn.Extern {
		return in.callExternal(fn, args)
	}

	params := map[*ir.Param]Value{}
	for i, p := range fn.Params {
		params[p] = args[i]
	}
	locals := map[*ir.Instruction]Value{}

	var prev *ir.BasicBlock
	cur := fn.Entry
	for {
		for _, phi := range cur.Phis() {
			for _, inc := range ir.Incoming(phi) {
				if inc.Blk == prev {
					locals[phi] = in.resolve(inc.Val, locals, params)
					break
				}
			}
		}

		var next *ir.BasicBlock
		var retVal Value
		returned := false

		for _, inst := range cur.Instructions() {
			if inst.Op == ir.OpPhi {
				continue
			}
			switch inst.Op {
			case ir.OpRet:
				if ops := inst.Operands(); len(ops) == 1 {
					retVal = in.resolve(ops[0].Ref, locals, params)
				}
				returned = true
			case ir.OpBr:
				ops := inst.Operands()
				if len(ops) == 1 {
					next = ops[0].Blk
				} else {
					cond := in.resolve(ops[0].Ref, locals, params)
					if cond.Int != 0 {
						next = ops[1].Blk
					} else {
						next = ops[2].Blk
					}
				}
			default:
				v, err := in.eval(fn, inst, locals, params)
				if err != nil {
					return Value{}, fmt.Errorf("%s: %w", fn.Name, err)
				}
				if inst.HasResult() {
					locals[inst] = v
				}
			}
		}

		if returned {
			return retVal, nil
		}
		prev, cur = cur, next
	}
}

func (in *Interp) resolve(v ir.Value, locals map[*ir.Instruction]Value, params map[*ir.Param]Value) Value {
	switch x := v.(type) {
	case *ir.Instruction:
		return locals[x]
	case *ir.Param:
		return params[x]
	case *ir.GlobalVariable:
		return PointerValue(in.globals[x])
	case *ir.ConstantInt, *ir.ConstantFP:
		return constToValue(v)
	}
	return Value{}
}

func (in *Interp) eval(fn *ir.Function, inst *ir.Instruction, locals map[*ir.Instruction]Value, params map[*ir.Param]Value) (Value, error) {
	ops := inst.Operands()
	operand := func(i int) Value { return in.resolve(ops[i].Ref, locals, params) }

	switch inst.Op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpSRem,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr:
		return evalIntBinOp(inst.Op, operand(0), operand(1))
	case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		return evalFloatBinOp(inst.Op, operand(0), operand(1))
	case ir.OpICmp:
		return evalICmp(inst.Pred, operand(0), operand(1)), nil
	case ir.OpFCmp:
		return evalFCmp(inst.Pred, operand(0), operand(1)), nil
	case ir.OpSExt, ir.OpZExt, ir.OpTrunc:
		return evalIntCast(inst.Op, operand(0), inst.T), nil
	case ir.OpFPExt, ir.OpFPTrunc:
		return FloatValue(inst.T.Basic, operand(0).Float), nil
	case ir.OpSIToFP:
		return FloatValue(inst.T.Basic, float64(operand(0).Int)), nil
	case ir.OpFPToSI:
		return IntValue(inst.T.Basic, int64(operand(0).Float)), nil
	case ir.OpAlloca:
		obj := newMemObject(baseElem(inst.AllocType), scalarCount(inst.AllocType))
		return PointerValue(&Pointer{Obj: obj, Index: 0, Type: inst.AllocType}), nil
	case ir.OpGEP:
		ptr := operand(0).Ptr
		idx := operand(1).Int
		return PointerValue(ptr.Advance(idx)), nil
	case ir.OpLoad:
		return operand(0).Ptr.Load(), nil
	case ir.OpStore:
		operand(1).Ptr.Store(operand(0))
		return Value{}, nil
	case ir.OpCall:
		callee, ok := ir.CalleeOf(inst).(*ir.Function)
		if !ok {
			return Value{}, fmt.Errorf("call to non-function value in %s", fn.Name)
		}
		args := ir.ArgsOf(inst)
		callArgs := make([]Value, len(args))
		for i, a := range args {
			callArgs[i] = in.resolve(a, locals, params)
		}
		return in.CallFunction(callee, callArgs)
	}
	return Value{}, fmt.Errorf("interp: unhandled opcode %s", inst.Op)
}

func baseElem(t *ir.Type) *ir.Type {
	for t.Kind == ir.TArray {
		t = t.Elem
	}
	return t
}

func evalIntBinOp(op ir.Opcode, x, y Value) (Value, error) {
	k := x.Kind
	switch op {
	case ir.OpAdd:
		return IntValue(k, x.Int+y.Int), nil
	case ir.OpSub:
		return IntValue(k, x.Int-y.Int), nil
	case ir.OpMul:
		return IntValue(k, x.Int*y.Int), nil
	case ir.OpSDiv:
		if y.Int == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return IntValue(k, x.Int/y.Int), nil
	case ir.OpSRem:
		if y.Int == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return IntValue(k, x.Int%y.Int), nil
	case ir.OpAnd:
		return IntValue(k, x.Int&y.Int), nil
	case ir.OpOr:
		return IntValue(k, x.Int|y.Int), nil
	case ir.OpXor:
		return IntValue(k, x.Int^y.Int), nil
	case ir.OpShl:
		return IntValue(k, x.Int<<uint(y.Int)), nil
	case ir.OpLShr:
		return IntValue(k, int64(uint64(x.Int)>>uint(y.Int))), nil
	case ir.OpAShr:
		return IntValue(k, x.Int>>uint(y.Int)), nil
	}
	return Value{}, fmt.Errorf("interp: unhandled integer op %s", op)
}

func evalFloatBinOp(op ir.Opcode, x, y Value) (Value, error) {
	k := x.Kind
	switch op {
	case ir.OpFAdd:
		return FloatValue(k, x.Float+y.Float), nil
	case ir.OpFSub:
		return FloatValue(k, x.Float-y.Float), nil
	case ir.OpFMul:
		return FloatValue(k, x.Float*y.Float), nil
	case ir.OpFDiv:
		return FloatValue(k, x.Float/y.Float), nil
	}
	return Value{}, fmt.Errorf("interp: unhandled float op %s", op)
}

func evalICmp(pred string, x, y Value) Value {
	var r bool
	switch pred {
	case "eq":
		r = x.Int == y.Int
	case "ne":
		r = x.Int != y.Int
	case "slt":
		r = x.Int < y.Int
	case "sle":
		r = x.Int <= y.Int
	case "sgt":
		r = x.Int > y.Int
	case "sge":
		r = x.Int >= y.Int
	}
	return IntValue(ir.I1, boolToInt(r))
}

func evalFCmp(pred string, x, y Value) Value {
	var r bool
	switch pred {
	case "oeq":
		r = x.Float == y.Float
	case "one":
		r = x.Float != y.Float
	case "olt":
		r = x.Float < y.Float
	case "ole":
		r = x.Float <= y.Float
	case "ogt":
		r = x.Float > y.Float
	case "oge":
		r = x.Float >= y.Float
	}
	return IntValue(ir.I1, boolToInt(r))
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func evalIntCast(op ir.Opcode, x Value, to *ir.Type) Value {
	v := x.Int
	switch op {
	case ir.OpTrunc:
		switch to.Basic {
		case ir.I1:
			v &= 1
		case ir.I8:
			v = int64(int8(v))
		case ir.I32:
			v = int64(int32(v))
		}
	case ir.OpZExt:
		switch x.Kind {
		case ir.I1:
			v &= 1
		case ir.I8:
			v = int64(uint8(v))
		case ir.I32:
			v = int64(uint32(v))
		}
	}
	return IntValue(to.Basic, v)
}

// callExternal implements the §6.1 runtime library directly against
// the host process (stdin/stdout), the interpreter's equivalent of
// linking against the real runtime a compiled binary would use.
func (in *Interp) callExternal(fn *ir.Function, args []Value) (Value, error) {
	switch fn.Name {
	case "getint":
		var v int64
		fmt.Fscan(in.Stdin, &v)
		return IntValue(ir.I32, v), nil
	case "getch":
		b, err := in.Stdin.ReadByte()
		if err != nil {
			return IntValue(ir.I32, -1), nil
		}
		return IntValue(ir.I32, int64(b)), nil
	case "getfloat":
		var v float64
		fmt.Fscan(in.Stdin, &v)
		return FloatValue(ir.F32, v), nil
	case "getarray":
		return in.readArray(args[0], ir.I32)
	case "getfarray":
		return in.readArray(args[0], ir.F32)
	case "putint":
		fmt.Fprintf(in.Stdout, "%d", args[0].Int)
		return Value{}, nil
	case "putch":
		fmt.Fprintf(in.Stdout, "%c", rune(args[0].Int))
		return Value{}, nil
	case "putfloat":
		fmt.Fprintf(in.Stdout, "%f", args[0].Float)
		return Value{}, nil
	case "putarray":
		return Value{}, in.writeArray(args[0].Int, args[1], false)
	case "putfarray":
		return Value{}, in.writeArray(args[0].Int, args[1], true)
	case "putf":
		in.putf(args)
		return Value{}, nil
	case "starttime", "stoptime":
		return Value{}, nil // timing is a Non-goal (§1); calls are no-ops
	}
	return Value{}, fmt.Errorf("interp: unknown runtime function %s", fn.Name)
}

func (in *Interp) readArray(dst Value, kind ir.BasicKind) (Value, error) {
	var n int64
	fmt.Fscan(in.Stdin, &n)
	ptr := dst.Ptr
	for i := int64(0); i < n; i++ {
		cell := ptr.Advance(i)
		if kind == ir.F32 {
			var f float64
			fmt.Fscan(in.Stdin, &f)
			cell.Store(FloatValue(kind, f))
		} else {
			var v int64
			fmt.Fscan(in.Stdin, &v)
			cell.Store(IntValue(kind, v))
		}
	}
	return IntValue(ir.I32, n), nil
}

func (in *Interp) writeArray(n int64, src Value, isFloat bool) error {
	ptr := src.Ptr
	for i := int64(0); i < n; i++ {
		v := ptr.Advance(i).Load()
		if isFloat {
			fmt.Fprintf(in.Stdout, "%f ", v.Float)
		} else {
			fmt.Fprintf(in.Stdout, "%d ", v.Int)
		}
	}
	return nil
}

// putf implements a minimal printf: args[0] is a pointer to the
// format string's first character (a NUL-terminated i8 array, §4.3's
// string-literal lowering); "%d" consumes the next argument.
func (in *Interp) putf(args []Value) {
	format := readCString(args[0].Ptr)
	rest := args[1:]
	var b strings.Builder
	ai := 0
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			switch format[i+1] {
			case 'd':
				if ai < len(rest) {
					fmt.Fprintf(&b, "%d", rest[ai].Int)
					ai++
				}
				i++
				continue
			case 'f':
				if ai < len(rest) {
					fmt.Fprintf(&b, "%f", rest[ai].Float)
					ai++
				}
				i++
				continue
			}
		}
		b.WriteByte(format[i])
	}
	fmt.Fprint(in.Stdout, b.String())
}

func readCString(p *Pointer) string {
	var b strings.Builder
	for i := 0; ; i++ {
		v := p.Advance(int64(i)).Load()
		if v.Int == 0 {
			break
		}
		b.WriteByte(byte(v.Int))
	}
	return b.String()
}
