package transform

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
)

// buildCountedLoopTripFour builds `for (i=0;i<4;i=i+1) acc = acc + i;`
// with a single-block body and a trip count of exactly 4, evenly
// divisible by the default unroll factor (§4.16).
func buildCountedLoopTripFour(t *testing.T) *ir.Function {
	t.Helper()
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)

	entry := b.CreateBlock(fn, "entry")
	header := b.CreateBlock(fn, "header")
	body := b.CreateBlock(fn, "body")
	exit := b.CreateBlock(fn, "exit")

	b.SetInsertPoint(entry, nil)
	b.CreateBr(header)

	b.SetInsertPoint(header, nil)
	i := b.CreatePhi(header, ir.Basic(ir.I32), "i")
	acc := b.CreatePhi(header, ir.Basic(ir.I32), "acc")
	b.AddIncoming(i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0}, entry)
	b.AddIncoming(acc, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0}, entry)
	cmp := b.CreateICmp("slt", i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 4}, "cmp")
	b.CreateCondBr(cmp, body, exit)

	b.SetInsertPoint(body, nil)
	accNext := b.CreateAdd(acc, i, "acc.next")
	iNext := b.CreateAdd(i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, "i.next")
	b.AddIncoming(acc, accNext, body)
	b.AddIncoming(i, iNext, body)
	b.CreateBr(header)

	b.SetInsertPoint(exit, nil)
	b.CreateRet(acc)

	return fn
}

func TestLoopUnrollFullyUnrollsEvenlyDivisibleTripCount(t *testing.T) {
	fn := buildCountedLoopTripFour(t)
	startBlocks := fn.NumBlocks()

	if err := analysis.ComputeDominators(fn); err != nil {
		t.Fatalf("ComputeDominators failed: %v", err)
	}
	if err := analysis.FindLoops(fn); err != nil {
		t.Fatalf("FindLoops failed: %v", err)
	}

	sink := diagnostics.NewSink()
	if !LoopUnroll(fn, sink) {
		t.Fatal("expected LoopUnroll to report a change")
	}

	if fn.NumBlocks() != startBlocks+(MaxLoopUnrollFactor-1) {
		t.Errorf("expected %d new cloned body blocks, got %d total blocks (started with %d)",
			MaxLoopUnrollFactor-1, fn.NumBlocks(), startBlocks)
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("IR after LoopUnroll failed validation: %v", err)
	}
}

// TestLoopUnrollSkipsNonDivisibleTripCount pins the §9 open-question
// decision: a trip count not evenly divisible by any candidate factor
// (down to 2) is not unrolled at all.
func TestLoopUnrollSkipsNonDivisibleTripCount(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)

	entry := b.CreateBlock(fn, "entry")
	header := b.CreateBlock(fn, "header")
	body := b.CreateBlock(fn, "body")
	exit := b.CreateBlock(fn, "exit")

	b.SetInsertPoint(entry, nil)
	b.CreateBr(header)

	b.SetInsertPoint(header, nil)
	i := b.CreatePhi(header, ir.Basic(ir.I32), "i")
	b.AddIncoming(i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0}, entry)
	cmp := b.CreateICmp("slt", i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 5}, "cmp")
	b.CreateCondBr(cmp, body, exit)

	b.SetInsertPoint(body, nil)
	iNext := b.CreateAdd(i, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, "i.next")
	b.AddIncoming(i, iNext, body)
	b.CreateBr(header)

	b.SetInsertPoint(exit, nil)
	b.CreateRet(i)

	startBlocks := fn.NumBlocks()

	if err := analysis.ComputeDominators(fn); err != nil {
		t.Fatalf("ComputeDominators failed: %v", err)
	}
	if err := analysis.FindLoops(fn); err != nil {
		t.Fatalf("FindLoops failed: %v", err)
	}

	sink := diagnostics.NewSink()
	if LoopUnroll(fn, sink) {
		t.Fatal("expected a trip count of 5 to have no divisor in [2,4] and stay unrolled-pass-untouched")
	}
	if fn.NumBlocks() != startBlocks {
		t.Errorf("expected block count to stay at %d, got %d", startBlocks, fn.NumBlocks())
	}
}
