package transform

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
)

// TestSimplifyCFGFoldsConstantBranch builds a condbr on a literal true
// and checks the untaken else arm is removed entirely (§4.13).
func TestSimplifyCFGFoldsConstantBranch(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)

	entry := b.CreateBlock(fn, "entry")
	thenB := b.CreateBlock(fn, "then")
	elseB := b.CreateBlock(fn, "else")

	b.SetInsertPoint(entry, nil)
	b.CreateCondBr(&ir.ConstantInt{T: ir.Basic(ir.I1), Val: 1}, thenB, elseB)

	b.SetInsertPoint(thenB, nil)
	b.CreateRet(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1})

	b.SetInsertPoint(elseB, nil)
	b.CreateRet(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 2})

	sink := diagnostics.NewSink()
	if !SimplifyCFG(fn, sink) {
		t.Fatal("expected SimplifyCFG to report a change")
	}

	for _, blk := range fn.Blocks() {
		if blk == elseB {
			t.Fatal("expected the unreachable else block to be removed")
		}
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("IR after SimplifyCFG failed validation: %v", err)
	}
}

// TestSimplifyCFGMergesSequentialBlocks builds entry -> mid -> exit
// where mid has no other predecessor, and checks mid's instructions
// are folded into entry.
func TestSimplifyCFGMergesSequentialBlocks(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), []string{"a"}, []*ir.Type{ir.Basic(ir.I32)}, false, false)
	b := ir.NewBuilder(m.Arena)

	entry := b.CreateBlock(fn, "entry")
	mid := b.CreateBlock(fn, "mid")

	b.SetInsertPoint(entry, nil)
	b.CreateBr(mid)

	b.SetInsertPoint(mid, nil)
	doubled := b.CreateAdd(fn.Params[0], fn.Params[0], "doubled")
	b.CreateRet(doubled)

	sink := diagnostics.NewSink()
	if !SimplifyCFG(fn, sink) {
		t.Fatal("expected SimplifyCFG to report a change")
	}

	if fn.NumBlocks() != 1 {
		t.Errorf("expected entry and mid to merge into a single block, got %d blocks", fn.NumBlocks())
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("IR after SimplifyCFG failed validation: %v", err)
	}
}
