package passmgr

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
)

// buildUnoptimizedModule builds `func f() i32 { int x; x = 2+3; int
// dead; dead = x*0; return x; }` in memory form: a promotable alloca,
// a constant-foldable computation, and an unused dead computation, to
// exercise Mem2Reg + InstCombine/SCCP + ADCE together (§4.19).
func buildUnoptimizedModule(t *testing.T) *ir.Module {
	t.Helper()
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)

	slot := b.CreateAlloca(fn, ir.Basic(ir.I32), "x")
	sum := b.CreateAdd(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 2}, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 3}, "sum")
	b.CreateStore(sum, slot)
	loaded := b.CreateLoad(slot, "x.0")
	dead := b.CreateMul(loaded, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0}, "dead")
	_ = dead
	b.CreateRet(loaded)

	return m
}

func TestRunOptimizesAndValidates(t *testing.T) {
	m := buildUnoptimizedModule(t)
	sink := diagnostics.NewSink()

	result := Run(m, DefaultConfig(), sink)

	if result.FunctionsVisited != 1 {
		t.Fatalf("expected 1 function visited, got %d", result.FunctionsVisited)
	}
	if result.FunctionsOptimized != 1 {
		t.Errorf("expected the function to be reported optimized, got %d", result.FunctionsOptimized)
	}

	fn, ok := m.FuncByName("f")
	if !ok {
		t.Fatal("expected to find function f")
	}
	for _, blk := range fn.Blocks() {
		for _, inst := range blk.Instructions() {
			if inst.Op == ir.OpAlloca || inst.Op == ir.OpLoad || inst.Op == ir.OpStore {
				t.Errorf("expected Mem2Reg to eliminate memory traffic, found %s", inst.Op)
			}
		}
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("optimized IR failed validation: %v", err)
	}
}

func TestDefaultConfigEnablesEveryPassExceptLoopUnroll(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LoopUnroll {
		t.Error("expected DefaultConfig to leave LoopUnroll disabled per §6.4")
	}
	if !cfg.Mem2Reg || !cfg.SCCP || !cfg.ADCE || !cfg.Inliner || !cfg.TailCallElim {
		t.Error("expected DefaultConfig to enable every other pass")
	}
	if cfg.MaxIterations <= 0 || cfg.MaxLoopUnrollCount <= 0 {
		t.Error("expected DefaultConfig to set positive iteration and unroll bounds")
	}
}

func TestRegistryRunUnknownPassReportsNoChange(t *testing.T) {
	m := buildUnoptimizedModule(t)
	fn, _ := m.FuncByName("f")
	reg := NewRegistry()
	sink := diagnostics.NewSink()

	if reg.Run("not-a-real-pass", fn, sink) {
		t.Error("expected an unregistered pass name to report no change")
	}
}
