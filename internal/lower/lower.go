// Package lower implements AST → SSA lowering (§4.3): the seam between
// the (out-of-scope) front end and the core IR. It consumes a
// semantically checked internal/ast tree and produces an
// internal/ir.Module in "memory form" — locals addressed through
// Alloca/Load/Store — for Mem2Reg and the rest of internal/transform
// to promote to SSA.
package lower

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/ast"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/runtime"
)

const stageName = "lower"

// Lower translates mod into an IR module. Lowering errors for one
// function (§7: "semantic inconsistencies the front end did not
// catch") are recorded to sink and that function is skipped; the rest
// of the module still lowers.
func Lower(mod *ast.Module, sink *diagnostics.Sink) *ir.Module {
	m := ir.NewModule(mod.SourceFile)
	runtime.DeclareAll(m)

	for _, g := range mod.Globals {
		lowerGlobal(m, g, sink)
	}

	// Declare every function signature first so forward/mutually
	// recursive calls resolve regardless of definition order.
	for _, fn := range mod.Functions {
		if _, ok := m.FuncByName(fn.Name); ok {
			continue // runtime-library name shadowed by a user decl never happens; guards re-lowering
		}
		paramNames := make([]string, len(fn.Params))
		paramTypes := make([]*ir.Type, len(fn.Params))
		for i, p := range fn.Params {
			paramNames[i] = p.Sym.Name
			paramTypes[i] = convertType(p.Sym.Type)
		}
		m.NewFunction(fn.Name, convertType(fn.ReturnType), paramNames, paramTypes, fn.Variadic, fn.Body == nil)
	}

	st := &state{m: m, sink: sink, strPool: map[string]*ir.GlobalVariable{}}
	for _, fn := range mod.Functions {
		if fn.Body == nil {
			continue
		}
		if err := lowerFunction(st, fn); err != nil {
			sink.Errorf(stageName, fn.Name, "%s", err)
		}
	}

	return m
}

// state is the lowering context shared across every function in a
// module: the module under construction, the error sink, and the
// string-literal dedup table (§4.3: "distinct string literals are
// deduplicated by textual value").
type state struct {
	m          *ir.Module
	sink       *diagnostics.Sink
	strPool    map[string]*ir.GlobalVariable
	strCounter int
}

// internString returns the deduplicated `.str.<N>` global for s,
// creating it on first use.
func (st *state) internString(s string) *ir.GlobalVariable {
	if g, ok := st.strPool[s]; ok {
		return g
	}
	elems := make([]ir.Value, len(s)+1) // NUL-terminated, matching putf's i8* convention
	for i := 0; i < len(s); i++ {
		elems[i] = &ir.ConstantInt{T: ir.Basic(ir.I8), Val: int64(s[i])}
	}
	elems[len(s)] = &ir.ConstantInt{T: ir.Basic(ir.I8), Val: 0}
	arrType := ir.Array(ir.Basic(ir.I8), []ir.ArrayDim{{Size: len(elems)}})
	name := fmt.Sprintf(".str.%d", st.strCounter)
	st.strCounter++
	g := st.m.NewGlobal(name, arrType, &ir.ConstantArray{T: arrType, Elements: elems}, true)
	st.strPool[s] = g
	return g
}

// convertType maps a front-end evaluated type to its IR counterpart
// (§6.3: dimensions are already evaluated except a parameter's dynamic
// first dimension).
func convertType(t *ast.Type) *ir.Type {
	if t == nil || t.Void {
		return ir.Void()
	}
	var base *ir.Type
	if t.IsArray {
		dims := make([]ir.ArrayDim, len(t.Dims))
		for i, d := range t.Dims {
			if d < 0 {
				dims[i] = ir.ArrayDim{Dynamic: true}
			} else {
				dims[i] = ir.ArrayDim{Size: d}
			}
		}
		elem := ir.Basic(convertBasicKind(t.Basic))
		base = ir.Array(elem, dims)
	} else {
		base = ir.Basic(convertBasicKind(t.Basic))
	}
	if t.Const {
		base = base.AsConst()
	}
	if t.IsPtr {
		return ir.Pointer(base)
	}
	return base
}

func convertBasicKind(k ast.BasicKind) ir.BasicKind {
	switch k {
	case ast.KindI1:
		return ir.I1
	case ast.KindI8:
		return ir.I8
	case ast.KindI32:
		return ir.I32
	case ast.KindI64:
		return ir.I64
	case ast.KindF32:
		return ir.F32
	case ast.KindF64:
		return ir.F64
	default:
		return ir.I32
	}
}

func lowerGlobal(m *ir.Module, g *ast.GlobalDecl, sink *diagnostics.Sink) {
	elemType := convertType(g.Sym.Type)
	var init ir.Value
	if g.Init == nil {
		init = ir.ZeroOf(elemType)
	} else {
		v, err := lowerConstExpr(g.Init, elemType)
		if err != nil {
			sink.Errorf(stageName, g.Sym.Name, "%s", err)
			init = ir.ZeroOf(elemType)
		} else {
			init = v
		}
	}
	m.NewGlobal(g.Sym.Name, elemType, init, g.Sym.IsConst)
}

// lowerConstExpr evaluates a compile-time constant expression into an
// IR constant Value, as required for global initializers (§4.3:
// "uninitialized scalars default to zero; array initializers are
// materialized as recursive constant aggregates").
func lowerConstExpr(e ast.Expr, t *ir.Type) (ir.Value, error) {
	switch n := e.(type) {
	case *ast.IntLit:
		return constIntOrFP(t, n.Value, 0, false), nil
	case *ast.FloatLit:
		return constIntOrFP(t, 0, n.Value, true), nil
	case *ast.Ident:
		if n.Sym.ConstValue == nil {
			return nil, fmt.Errorf("global initializer references non-constant symbol %s", n.Sym.Name)
		}
		return lowerConstValue(n.Sym.ConstValue), nil
	case *ast.ArrayLit:
		return lowerArrayLitConst(n, t), nil
	case *ast.Convert:
		inner, err := lowerConstExpr(n.From, nil)
		if err != nil {
			return nil, err
		}
		return convertConstValue(inner, t), nil
	default:
		return nil, fmt.Errorf("global initializer is not a compile-time constant: %T", e)
	}
}

func constIntOrFP(t *ir.Type, i int64, f float64, isFloat bool) ir.Value {
	if t != nil && t.Kind == ir.TBasic && t.Basic.IsFloat() {
		if !isFloat {
			f = float64(i)
		}
		return &ir.ConstantFP{T: t, Val: f}
	}
	if isFloat {
		i = int64(f)
	}
	if t == nil {
		t = ir.Basic(ir.I32)
	}
	return &ir.ConstantInt{T: t, Val: i}
}

func lowerConstValue(c *ast.ConstValue) ir.Value {
	t := convertType(c.Type)
	if c.Elements != nil {
		elems := make([]ir.Value, len(c.Elements))
		for i, el := range c.Elements {
			elems[i] = lowerConstValue(el)
		}
		return &ir.ConstantArray{T: t, Elements: elems}
	}
	return constIntOrFP(t, c.Int, c.Float, c.IsFloat)
}

func lowerArrayLitConst(lit *ast.ArrayLit, t *ir.Type) ir.Value {
	n := 0
	elemType := t
	if t.Kind == ir.TArray {
		n = t.Dims[0].Size
		if len(t.Dims) > 1 {
			elemType = &ir.Type{Kind: ir.TArray, Elem: t.Elem, Dims: t.Dims[1:]}
		} else {
			elemType = t.Elem
		}
	}
	if n < len(lit.Elements) {
		n = len(lit.Elements)
	}
	elems := make([]ir.Value, n)
	for i := range elems {
		if i < len(lit.Elements) {
			v, err := lowerConstExpr(lit.Elements[i], elemType)
			if err != nil {
				v = ir.ZeroOf(elemType)
			}
			elems[i] = v
		} else {
			elems[i] = ir.ZeroOf(elemType) // missing trailing elements zero-filled (§4.3)
		}
	}
	return &ir.ConstantArray{T: t, Elements: elems}
}

func convertConstValue(v ir.Value, to *ir.Type) ir.Value {
	switch c := v.(type) {
	case *ir.ConstantInt:
		if to.Basic.IsFloat() {
			return &ir.ConstantFP{T: to, Val: float64(c.Val)}
		}
		return &ir.ConstantInt{T: to, Val: c.Val}
	case *ir.ConstantFP:
		if to.Basic.IsFloat() {
			return &ir.ConstantFP{T: to, Val: c.Val}
		}
		return &ir.ConstantInt{T: to, Val: int64(c.Val)}
	default:
		return v
	}
}
