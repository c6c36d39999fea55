// Package interp implements a tree-walking interpreter over
// internal/ir, used by the semantic-preservation tests (§8's P7/P9/P11
// and the §8.1 end-to-end scenarios) to check that a pass pipeline run
// produces the same observable behavior as the unoptimized IR.
package interp

import "github.com/sereinwalker/sysyopt/internal/ir"

// Value is one runtime value: an integer, a float, or a pointer. Kind
// tracks the source scalar kind (i1/i8/i32/i64/f32/f64); binary ops
// carry it to their result and ZExt reads it to pick the source
// width. IsFloat/IsPtr select which of Int/Float/Ptr is meaningful.
type Value struct {
	Kind    ir.BasicKind
	Int     int64
	Float   float64
	Ptr     *Pointer
	IsFloat bool
	IsPtr   bool
}

// IntValue constructs an integer-kinded Value.
func IntValue(k ir.BasicKind, v int64) Value { return Value{Kind: k, Int: v} }

// FloatValue constructs a float-kinded Value.
func FloatValue(k ir.BasicKind, v float64) Value { return Value{Kind: k, Float: v, IsFloat: true} }

// PointerValue wraps a Pointer as a Value.
func PointerValue(p *Pointer) Value { return Value{IsPtr: true, Ptr: p} }

// ZeroOf mirrors internal/ir.ZeroOf for the interpreter's value
// representation, used to zero-initialize a freshly allocated object.
func ZeroOf(t *ir.Type) Value {
	if t.Kind == ir.TPointer {
		return PointerValue(nil)
	}
	if t.Basic.IsFloat() {
		return FloatValue(t.Basic, 0)
	}
	return IntValue(t.Basic, 0)
}

// memObject is the flat scalar storage backing one Alloca, global, or
// host-allocated array (§4.3: every array is one contiguous
// allocation addressed by a chain of single-step GEPs).
type memObject struct {
	elem *ir.Type // the innermost scalar element type
	data []Value
}

// newMemObject allocates count scalar slots of elem's zero value.
func newMemObject(elem *ir.Type, count int) *memObject {
	data := make([]Value, count)
	z := ZeroOf(elem)
	for i := range data {
		data[i] = z
	}
	return &memObject{elem: elem, data: data}
}

// Pointer addresses one element of a memObject. Type is the pointee
// type at the current step of a GEP chain — an array type until its
// last dimension is stripped, then the scalar element type — which is
// what the next GEP step needs to compute its flat-index stride.
type Pointer struct {
	Obj   *memObject
	Index int
	Type  *ir.Type
}

// Load reads the addressed scalar.
func (p *Pointer) Load() Value { return p.Obj.data[p.Index] }

// Store writes the addressed scalar.
func (p *Pointer) Store(v Value) { p.Obj.data[p.Index] = v }

// Advance implements one GEP step (§4.3): idx counts in units of the
// type one step of addressing produces — one array dimension
// stripped from Type, or Type itself if already scalar — mirroring
// internal/ir/builder.go's gepResultType.
func (p *Pointer) Advance(idx int64) *Pointer {
	next := stepType(p.Type)
	stride := scalarCount(next)
	return &Pointer{Obj: p.Obj, Index: p.Index + int(idx)*stride, Type: next}
}

func stepType(t *ir.Type) *ir.Type {
	if t.Kind != ir.TArray {
		return t
	}
	if len(t.Dims) > 1 {
		return &ir.Type{Kind: ir.TArray, Elem: t.Elem, Dims: t.Dims[1:]}
	}
	return t.Elem
}

// scalarCount returns how many scalar slots one value of type t
// occupies in a memObject's flat storage.
func scalarCount(t *ir.Type) int {
	if t.Kind != ir.TArray {
		return 1
	}
	n := 1
	for _, d := range t.Dims {
		n *= d.Size
	}
	return n
}
