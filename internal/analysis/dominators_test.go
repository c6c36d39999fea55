package analysis

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

func TestComputeDominatorsDiamond(t *testing.T) {
	fn, entry, thenB, elseB, merge := buildDiamond(t)

	if err := ComputeDominators(fn); err != nil {
		t.Fatalf("ComputeDominators returned error: %v", err)
	}

	if merge.IDom != entry {
		t.Errorf("expected entry to immediately dominate merge (both arms merge there), got %v", merge.IDom)
	}
	if !StrictlyDominates(entry, thenB) || !StrictlyDominates(entry, elseB) || !StrictlyDominates(entry, merge) {
		t.Error("expected entry to strictly dominate every other block")
	}
	if Dominates(thenB, elseB) || Dominates(elseB, thenB) {
		t.Error("expected neither sibling arm to dominate the other")
	}

	found := false
	for _, f := range thenB.DomFrontier {
		if f == merge {
			found = true
		}
	}
	if !found {
		t.Error("expected merge to be in then's dominance frontier")
	}
}

func TestIteratedDominanceFrontierOfDiamondArms(t *testing.T) {
	fn, _, thenB, elseB, merge := buildDiamond(t)
	if err := ComputeDominators(fn); err != nil {
		t.Fatalf("ComputeDominators returned error: %v", err)
	}

	df := IteratedDominanceFrontier([]*ir.BasicBlock{thenB, elseB})
	if len(df) != 1 || df[0] != merge {
		t.Errorf("expected DF+({then,else}) = {merge}, got %v", df)
	}
}

// TestDominatesReturnsFalseForUnreachableBlock confirms an unreachable
// block (never visited by postOrder) degrades to Dominates returning
// false rather than panicking, since it retains zero-valued TIn/TOut.
func TestDominatesReturnsFalseForUnreachableBlock(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)
	b.CreateRet(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0})

	// A block with no incoming edge from entry: created but never wired
	// into the CFG.
	orphan := b.CreateBlock(fn, "orphan")

	if err := ComputeDominators(fn); err != nil {
		t.Fatalf("ComputeDominators returned error: %v", err)
	}

	if Dominates(orphan, entry) {
		t.Error("expected an unreachable block to dominate nothing")
	}
	if Dominates(entry, orphan) {
		t.Error("expected entry to not dominate an unreachable block")
	}
}
