package transform

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
)

// buildCountedLoopWithDerivedIV builds a counted loop:
//
//	for (i = 0; i < 4; i = i + 1) { acc = i * 4; }
//
// where `i*4` is a non-trivial derived induction variable (scale 4,
// offset 0) that IndVarSimplify should strength-reduce into its own
// PHI stepping by 4 each iteration (§4.15).
func buildCountedLoopWithDerivedIV(t *testing.T) (*ir.Function, *ir.Instruction, *ir.Instruction) {
	t.Helper()
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)

	entry := b.CreateBlock(fn, "entry")
	header := b.CreateBlock(fn, "header")
	body := b.CreateBlock(fn, "body")
	exit := b.CreateBlock(fn, "exit")

	b.SetInsertPoint(entry, nil)
	slot := b.CreateAlloca(fn, ir.Basic(ir.I32), "acc")
	b.CreateBr(header)

	b.SetInsertPoint(header, nil)
	i := b.CreatePhi(header, ir.Basic(ir.I32), "i")
	b.AddIncoming(i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0}, entry)
	cmp := b.CreateICmp("slt", i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 4}, "cmp")
	b.CreateCondBr(cmp, body, exit)

	b.SetInsertPoint(body, nil)
	derived := b.CreateMul(i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 4}, "derived")
	b.CreateStore(derived, slot)
	next := b.CreateAdd(i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, "i.next")
	b.AddIncoming(i, next, body)
	b.CreateBr(header)

	b.SetInsertPoint(exit, nil)
	loaded := b.CreateLoad(slot, "result")
	b.CreateRet(loaded)

	return fn, derived, slot
}

func TestIndVarSimplifyStrengthReducesDerivedIV(t *testing.T) {
	fn, derived, _ := buildCountedLoopWithDerivedIV(t)

	if err := analysis.ComputeDominators(fn); err != nil {
		t.Fatalf("ComputeDominators failed: %v", err)
	}
	if err := analysis.FindLoops(fn); err != nil {
		t.Fatalf("FindLoops failed: %v", err)
	}

	sink := diagnostics.NewSink()
	if !IndVarSimplify(fn, sink) {
		t.Fatal("expected IndVarSimplify to report a change")
	}

	if derived.Parent != nil {
		t.Error("expected the original i*4 multiply to be erased")
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("IR after IndVarSimplify failed validation: %v", err)
	}
}
