package transform

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
)

// buildSelfTailRecursiveFunction builds a function whose only
// recursive call sits in tail position: `return f(n-1);` (§4.17).
func buildSelfTailRecursiveFunction(t *testing.T) *ir.Function {
	t.Helper()
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), []string{"n"}, []*ir.Type{ir.Basic(ir.I32)}, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)

	next := b.CreateSub(fn.Params[0], &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, "next")
	call := b.CreateCall(fn, []ir.Value{next}, ir.Basic(ir.I32), "call")
	b.CreateRet(call)

	return fn
}

func TestTailCallElimRewritesSelfRecursionIntoLoop(t *testing.T) {
	fn := buildSelfTailRecursiveFunction(t)

	sink := diagnostics.NewSink()
	if !TailCallElim(fn, sink) {
		t.Fatal("expected TailCallElim to report a change")
	}

	for _, b := range fn.Blocks() {
		for _, inst := range b.Instructions() {
			if inst.Op == ir.OpCall {
				t.Errorf("expected no direct self-call to survive, found one in block %q", b.Label)
			}
		}
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("IR after TailCallElim failed validation: %v", err)
	}
}

// TestTailCallElimLeavesNonTailCallAlone checks a recursive call whose
// result is used again after the call (not a bare tail return) is left
// as an ordinary call.
func TestTailCallElimLeavesNonTailCallAlone(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), []string{"n"}, []*ir.Type{ir.Basic(ir.I32)}, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)

	next := b.CreateSub(fn.Params[0], &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, "next")
	call := b.CreateCall(fn, []ir.Value{next}, ir.Basic(ir.I32), "call")
	doubled := b.CreateAdd(call, call, "doubled")
	b.CreateRet(doubled)

	sink := diagnostics.NewSink()
	if TailCallElim(fn, sink) {
		t.Fatal("expected TailCallElim to decline a call whose result is reused")
	}
}
