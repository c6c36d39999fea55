// Package runtime declares the SysY runtime library (§6.1): the fixed
// set of externally-implemented functions every module may call but
// none defines a body for. The registry is adapted from the teacher's
// stdlib.Registry map-of-named-callables idiom, shared by two
// consumers that must never drift apart: internal/lower (which
// declares these as IR externs) and internal/interp (which supplies
// host implementations for them).
package runtime

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

// Signature is one runtime-library function's fixed shape.
type Signature struct {
	Name     string
	Params   []*ir.Type
	Ret      *ir.Type
	Variadic bool
}

func sig(name string, ret *ir.Type, variadic bool, params ...*ir.Type) Signature {
	return Signature{Name: name, Params: params, Ret: ret, Variadic: variadic}
}

// Externals lists every §6.1 runtime function in spec declaration order.
var Externals = []Signature{
	sig("getint", ir.Basic(ir.I32), false),
	sig("getch", ir.Basic(ir.I32), false),
	sig("getfloat", ir.Basic(ir.F32), false),
	sig("getarray", ir.Basic(ir.I32), false, ir.Pointer(ir.Basic(ir.I32))),
	sig("getfarray", ir.Basic(ir.I32), false, ir.Pointer(ir.Basic(ir.F32))),
	sig("putint", ir.Void(), false, ir.Basic(ir.I32)),
	sig("putch", ir.Void(), false, ir.Basic(ir.I32)),
	sig("putfloat", ir.Void(), false, ir.Basic(ir.F32)),
	sig("putarray", ir.Void(), false, ir.Basic(ir.I32), ir.Pointer(ir.Basic(ir.I32))),
	sig("putfarray", ir.Void(), false, ir.Basic(ir.I32), ir.Pointer(ir.Basic(ir.F32))),
	sig("putf", ir.Void(), true, ir.Pointer(ir.Basic(ir.I8))),
	sig("starttime", ir.Void(), false),
	sig("stoptime", ir.Void(), false),
}

// Registry indexes Externals by name for O(1) lookup, mirroring the
// teacher's stdlib.Registry constructor.
type Registry struct {
	byName map[string]Signature
}

// NewRegistry builds the runtime-library name table.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Signature, len(Externals))}
	for _, s := range Externals {
		r.byName[s.Name] = s
	}
	return r
}

// Lookup returns the signature for name, if it names a runtime function.
func (r *Registry) Lookup(name string) (Signature, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// IsRuntimeName reports whether name is one of the §6.1 functions.
func (r *Registry) IsRuntimeName(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// DeclareAll declares every runtime function in m as an external
// (body-less) IR function, idempotently.
func DeclareAll(m *ir.Module) {
	for _, s := range Externals {
		if _, ok := m.FuncByName(s.Name); ok {
			continue
		}
		paramNames := make([]string, len(s.Params))
		for i := range paramNames {
			paramNames[i] = fmt.Sprintf("arg%d", i)
		}
		m.NewFunction(s.Name, s.Ret, paramNames, s.Params, s.Variadic, true)
	}
}
