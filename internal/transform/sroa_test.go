package transform

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
)

// TestSROASplitsArrayAllocaWithConstantIndices builds a [2]i32 alloca
// accessed only through constant-index GEPs and checks SROA replaces
// it with two scalar allocas (§4.8).
func TestSROASplitsArrayAllocaWithConstantIndices(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)

	arrT := ir.Array(ir.Basic(ir.I32), []ir.ArrayDim{{Size: 2}})
	arr := b.CreateAlloca(fn, arrT, "arr")
	gep0 := b.CreateGEP(arr, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0}, true, "arr.0")
	gep1 := b.CreateGEP(arr, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, true, "arr.1")
	b.CreateStore(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 10}, gep0)
	b.CreateStore(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 20}, gep1)
	load := b.CreateLoad(gep1, "loaded")
	b.CreateRet(load)

	sink := diagnostics.NewSink()
	if !SROA(fn, sink) {
		t.Fatal("expected SROA to report a change")
	}

	for _, inst := range fn.Entry.Instructions() {
		if inst == arr || inst == gep0 || inst == gep1 {
			t.Error("expected the original array alloca and its GEPs to be removed")
		}
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("IR after SROA failed validation: %v", err)
	}
}

// TestSROASkipsAllocaWithDynamicIndex leaves an aggregate alloca alone
// when a GEP index is not a compile-time constant.
func TestSROASkipsAllocaWithDynamicIndex(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), []string{"i"}, []*ir.Type{ir.Basic(ir.I32)}, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)

	arrT := ir.Array(ir.Basic(ir.I32), []ir.ArrayDim{{Size: 4}})
	arr := b.CreateAlloca(fn, arrT, "arr")
	gep := b.CreateGEP(arr, fn.Params[0], true, "arr.i")
	load := b.CreateLoad(gep, "loaded")
	b.CreateRet(load)

	sink := diagnostics.NewSink()
	if SROA(fn, sink) {
		t.Fatal("expected SROA to decline a dynamically-indexed aggregate")
	}

	found := false
	for _, inst := range fn.Entry.Instructions() {
		if inst == arr {
			found = true
		}
	}
	if !found {
		t.Error("expected the dynamically-indexed alloca to survive unchanged")
	}
}
