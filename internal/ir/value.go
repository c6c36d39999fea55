package ir

// Value is anything that may appear as an instruction operand (§3.2):
// a constant, a named global, a function parameter, or the SSA result
// of an instruction.
type Value interface {
	ValueType() *Type
}

// useable is implemented by every non-constant Value kind. usesSlot
// exposes the address of the use-list head so Operand linking can
// splice in O(1) (§9 "use lists need double-linked operands"): each
// Operand keeps a back-pointer to the slot that points to it — either
// a value's head slot or the previous Operand's forward link — so
// unlinking never requires a traversal, even though the list is only
// walked forward.
type useable interface {
	Value
	usesSlot() **Operand
}

// valueBase is embedded by GlobalVariable, Param, and Instruction to
// supply the common Type field and use-list head.
type valueBase struct {
	T    *Type
	uses *Operand
}

func (v *valueBase) ValueType() *Type   { return v.T }
func (v *valueBase) usesSlot() **Operand { return &v.uses }

// Uses returns every live operand slot currently referencing v, in no
// particular order (§9: "use-list traversal order does not matter").
func Uses(v Value) []*Operand {
	u, ok := v.(useable)
	if !ok {
		return nil
	}
	var out []*Operand
	for o := *u.usesSlot(); o != nil; o = o.useNext {
		out = append(out, o)
	}
	return out
}

// HasUses reports whether any operand still references v.
func HasUses(v Value) bool {
	u, ok := v.(useable)
	return ok && *u.usesSlot() != nil
}

// ---- Constants --------------------------------------------------------

// ConstantInt is an integer constant of I1/I8/I32/I64.
type ConstantInt struct {
	T   *Type
	Val int64
}

func (c *ConstantInt) ValueType() *Type { return c.T }

// ConstantFP is a floating-point constant of F32/F64.
type ConstantFP struct {
	T   *Type
	Val float64
}

func (c *ConstantFP) ValueType() *Type { return c.T }

// ConstantArray is an aggregate of constant elements (§3.2), used for
// array initializers after lowering materializes them (§4.3).
type ConstantArray struct {
	T        *Type
	Elements []Value
}

func (c *ConstantArray) ValueType() *Type { return c.T }

// ZeroInt and ZeroFP build the default-zero scalar constants used for
// uninitialized globals and zero-filled trailing array elements (§4.3).
func ZeroInt(t *Type) *ConstantInt  { return &ConstantInt{T: t} }
func ZeroFP(t *Type) *ConstantFP    { return &ConstantFP{T: t} }

// ZeroOf builds a fully materialized zero constant of type t,
// recursing into array element types (§4.3 "zero-filled").
func ZeroOf(t *Type) Value {
	switch t.Kind {
	case TArray:
		n := t.Dims[0].Size
		elemType := t.Elem
		if len(t.Dims) > 1 {
			elemType = &Type{Kind: TArray, Elem: t.Elem, Dims: t.Dims[1:]}
		}
		elems := make([]Value, n)
		for i := range elems {
			elems[i] = ZeroOf(elemType)
		}
		return &ConstantArray{T: t, Elements: elems}
	case TBasic:
		if t.Basic.IsFloat() {
			return ZeroFP(t)
		}
		return ZeroInt(t)
	default:
		return ZeroInt(Basic(I32))
	}
}

// AsConstantInt reports whether v is an integer constant, unwrapping
// for the common fold/identity checks in InstCombine/SCCP.
func AsConstantInt(v Value) (*ConstantInt, bool) {
	c, ok := v.(*ConstantInt)
	return c, ok
}

// AsConstantFP reports whether v is a float constant.
func AsConstantFP(v Value) (*ConstantFP, bool) {
	c, ok := v.(*ConstantFP)
	return c, ok
}

// IsConstant reports whether v is any constant kind (never carries a
// use list, §3.2).
func IsConstant(v Value) bool {
	switch v.(type) {
	case *ConstantInt, *ConstantFP, *ConstantArray:
		return true
	}
	return false
}

// ---- Globals, parameters ----------------------------------------------

// GlobalVariable is a module-level named variable or constant (§3.2).
// Functions are not GlobalVariables: a *Function is itself the Value
// used as a call's callee operand.
type GlobalVariable struct {
	valueBase
	Name       string
	ElemType   *Type // the pointee type (a global is always of pointer type)
	Init       Value // constant initializer; nil means externally declared
	IsConstant bool  // `constant` vs `global` in the printer (§6.2)
}

func (g *GlobalVariable) String() string { return "@" + g.Name }

// Param is a function formal parameter value.
type Param struct {
	valueBase
	Name string
}
