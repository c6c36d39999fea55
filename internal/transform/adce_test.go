package transform

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
)

// TestADCERemovesDeadComputation builds a function that computes an
// unused value alongside its actual return value and checks ADCE
// removes only the dead one (§4.12).
func TestADCERemovesDeadComputation(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)

	dead := b.CreateAdd(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 2}, "dead")
	live := b.CreateMul(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 3}, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 4}, "live")
	b.CreateRet(live)

	sink := diagnostics.NewSink()
	if !ADCE(fn, sink) {
		t.Fatal("expected ADCE to report a change")
	}

	for _, inst := range fn.Entry.Instructions() {
		if inst == dead {
			t.Fatal("expected the dead add to be removed")
		}
	}
	found := false
	for _, inst := range fn.Entry.Instructions() {
		if inst == live {
			found = true
		}
	}
	if !found {
		t.Error("expected the live mul feeding the return to survive")
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("IR after ADCE failed validation: %v", err)
	}
}

func TestADCEKeepsStoresLive(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Void(), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)

	slot := b.CreateAlloca(fn, ir.Basic(ir.I32), "x")
	b.CreateStore(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 9}, slot)
	b.CreateRet(nil)

	sink := diagnostics.NewSink()
	ADCE(fn, sink)

	for _, inst := range fn.Entry.Instructions() {
		if inst.Op == ir.OpStore {
			return
		}
	}
	t.Error("expected the store to survive ADCE even though its result is unused")
}
