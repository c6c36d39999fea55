package ir

import "fmt"

// BasicKind is the scalar element kind of a Type (§3.1).
type BasicKind int

const (
	I1 BasicKind = iota
	I8
	I32
	I64
	F32
	F64
)

func (k BasicKind) String() string {
	switch k {
	case I1:
		return "i1"
	case I8:
		return "i8"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "float"
	case F64:
		return "double"
	default:
		return "invalid"
	}
}

// IsFloat reports whether k is a floating-point kind.
func (k BasicKind) IsFloat() bool { return k == F32 || k == F64 }

// TypeKind tags the variant of a Type.
type TypeKind int

const (
	TVoid TypeKind = iota
	TBasic
	TArray
	TPointer
	TFunction
)

// ArrayDim is one dimension of an array type. Dynamic marks the
// unspecified first dimension of an array-typed function parameter
// (§3.1); Size is meaningless when Dynamic is set.
type ArrayDim struct {
	Size    int
	Dynamic bool
}

// Type is the tagged variant described in §3.1. Only the fields
// relevant to Kind are meaningful.
type Type struct {
	Kind  TypeKind
	Basic BasicKind

	// TArray
	Elem *Type
	Dims []ArrayDim

	// TPointer
	Pointee *Type

	// TFunction
	Ret      *Type
	Params   []*Type
	Variadic bool

	Const bool
}

func Void() *Type                  { return &Type{Kind: TVoid} }
func Basic(k BasicKind) *Type       { return &Type{Kind: TBasic, Basic: k} }
func Pointer(to *Type) *Type        { return &Type{Kind: TPointer, Pointee: to} }
func Array(elem *Type, dims []ArrayDim) *Type {
	return &Type{Kind: TArray, Elem: elem, Dims: dims}
}
func FuncType(ret *Type, params []*Type, variadic bool) *Type {
	return &Type{Kind: TFunction, Ret: ret, Params: params, Variadic: variadic}
}

// AsConst returns a copy of t with the const flag set.
func (t *Type) AsConst() *Type {
	c := *t
	c.Const = true
	return &c
}

// Equal compares type identity. If ignoreConst is set, the top-level
// const flag is not considered (§3.1).
func (t *Type) Equal(o *Type, ignoreConst bool) bool {
	if t == nil || o == nil {
		return t == o
	}
	if !ignoreConst && t.Const != o.Const {
		return false
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TVoid:
		return true
	case TBasic:
		return t.Basic == o.Basic
	case TPointer:
		return t.Pointee.Equal(o.Pointee, true)
	case TArray:
		if len(t.Dims) != len(o.Dims) {
			return false
		}
		for i := range t.Dims {
			if t.Dims[i].Dynamic != o.Dims[i].Dynamic || t.Dims[i].Size != o.Dims[i].Size {
				return false
			}
		}
		return t.Elem.Equal(o.Elem, true)
	case TFunction:
		if t.Variadic != o.Variadic || len(t.Params) != len(o.Params) || !t.Ret.Equal(o.Ret, true) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i], true) {
				return false
			}
		}
		return true
	}
	return false
}

// IsAggregate reports whether t is an array type (used by Mem2Reg's
// candidate filter and SROA's decomposition trigger, §4.7/§4.8).
func (t *Type) IsAggregate() bool { return t.Kind == TArray }

// String renders the textual form used by the printer (§6.2): scalar
// names as-is, arrays as "[N x T]" nested left-to-right, pointers as
// "T*", functions as "ret(param, ...)".
func (t *Type) String() string {
	switch t.Kind {
	case TVoid:
		return "void"
	case TBasic:
		return t.Basic.String()
	case TPointer:
		return t.Pointee.String() + "*"
	case TArray:
		s := t.Elem.String()
		for i := len(t.Dims) - 1; i >= 0; i-- {
			d := t.Dims[i]
			if d.Dynamic {
				s = fmt.Sprintf("[? x %s]", s)
			} else {
				s = fmt.Sprintf("[%d x %s]", d.Size, s)
			}
		}
		return s
	case TFunction:
		ps := ""
		for i, p := range t.Params {
			if i > 0 {
				ps += ", "
			}
			ps += p.String()
		}
		if t.Variadic {
			if len(t.Params) > 0 {
				ps += ", "
			}
			ps += "..."
		}
		return fmt.Sprintf("%s(%s)", t.Ret.String(), ps)
	}
	return "?"
}
