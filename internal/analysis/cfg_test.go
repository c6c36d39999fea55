package analysis

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

func buildDiamond(t *testing.T) (*ir.Function, *ir.BasicBlock, *ir.BasicBlock, *ir.BasicBlock, *ir.BasicBlock) {
	t.Helper()
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), []string{"c"}, []*ir.Type{ir.Basic(ir.I1)}, false, false)
	b := ir.NewBuilder(m.Arena)

	entry := b.CreateBlock(fn, "entry")
	thenB := b.CreateBlock(fn, "then")
	elseB := b.CreateBlock(fn, "else")
	merge := b.CreateBlock(fn, "merge")

	b.SetInsertPoint(entry, nil)
	b.CreateCondBr(fn.Params[0], thenB, elseB)
	b.SetInsertPoint(thenB, nil)
	b.CreateBr(merge)
	b.SetInsertPoint(elseB, nil)
	b.CreateBr(merge)
	b.SetInsertPoint(merge, nil)
	b.CreateRet(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0})

	return fn, entry, thenB, elseB, merge
}

func TestBuildCFGRecomputesPredsFromTerminators(t *testing.T) {
	fn, entry, thenB, _, merge := buildDiamond(t)

	// Corrupt the cached Preds/Succs to confirm BuildCFG recomputes
	// them from scratch rather than trusting the existing arrays.
	merge.Preds = nil
	thenB.Succs = nil

	if err := BuildCFG(fn); err != nil {
		t.Fatalf("BuildCFG returned error: %v", err)
	}

	if len(merge.Preds) != 2 {
		t.Fatalf("expected merge to have 2 predecessors after rebuild, got %d", len(merge.Preds))
	}
	if len(entry.Succs) != 2 {
		t.Fatalf("expected entry to have 2 successors, got %d", len(entry.Succs))
	}
	if err := Validate(fn); err != nil {
		t.Errorf("rebuilt CFG failed symmetry validation: %v", err)
	}
}

func TestValidateCatchesAsymmetricEdge(t *testing.T) {
	fn, _, thenB, _, _ := buildDiamond(t)
	_ = fn

	// Break symmetry: list thenB as its own predecessor, without thenB
	// listing itself as a successor.
	thenB.Preds = append(thenB.Preds, thenB)

	if err := Validate(fn); err == nil {
		t.Error("expected Validate to catch the asymmetric predecessor list")
	}
}
