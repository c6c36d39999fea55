package irvalidate

import (
	"strings"
	"testing"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

func buildValidAdd(t *testing.T) *ir.Function {
	t.Helper()
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("add", ir.Basic(ir.I32), []string{"a", "b"}, []*ir.Type{ir.Basic(ir.I32), ir.Basic(ir.I32)}, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)
	sum := b.CreateAdd(fn.Params[0], fn.Params[1], "sum")
	b.CreateRet(sum)
	return fn
}

func TestValidateFunctionAcceptsWellFormedIR(t *testing.T) {
	fn := buildValidAdd(t)
	if err := ValidateFunction(fn); err != nil {
		t.Fatalf("expected well-formed IR to validate cleanly, got: %v", err)
	}
}

func TestValidateFunctionCatchesMissingTerminator(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Void(), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)
	b.CreateAdd(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 2}, "x")
	// no terminator appended

	err := ValidateFunction(fn)
	if err == nil {
		t.Fatal("expected validation error for a block with no terminator")
	}
	if !strings.Contains(err.Error(), "terminator") {
		t.Errorf("expected error to mention the missing terminator, got: %v", err)
	}
}

func TestValidateFunctionCatchesDominanceViolation(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)

	entry := b.CreateBlock(fn, "entry")
	other := b.CreateBlock(fn, "other")

	b.SetInsertPoint(other, nil)
	orphan := b.CreateAdd(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 2}, "orphan")
	b.CreateRet(orphan)

	b.SetInsertPoint(entry, nil)
	// entry uses a value defined in a block that does not dominate it
	// and is not even reachable from entry via a predecessor edge.
	b.CreateRet(orphan)

	err := ValidateFunction(fn)
	if err == nil {
		t.Fatal("expected validation error for a use not dominated by its definition")
	}
	if !strings.Contains(err.Error(), "dominated") {
		t.Errorf("expected error to mention dominance, got: %v", err)
	}
}

func TestValidateFunctionCatchesPhiPredecessorMismatch(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)

	entry := b.CreateBlock(fn, "entry")
	a := b.CreateBlock(fn, "a")
	merge := b.CreateBlock(fn, "merge")

	b.SetInsertPoint(entry, nil)
	b.CreateBr(a)

	b.SetInsertPoint(a, nil)
	b.CreateBr(merge)

	b.SetInsertPoint(merge, nil)
	phi := b.CreatePhi(merge, ir.Basic(ir.I32), "p")
	// Incoming claims a predecessor ("entry") that merge does not
	// actually have (only "a" does), violating P3.
	b.AddIncoming(phi, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, entry)
	b.CreateRet(phi)

	err := ValidateFunction(fn)
	if err == nil {
		t.Fatal("expected validation error for a phi incoming block that is not a predecessor")
	}
	if !strings.Contains(err.Error(), "predecessor") {
		t.Errorf("expected error to mention predecessors, got: %v", err)
	}
}

func TestValidateFunctionCatchesTypeMismatch(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)

	store := b.CreateAlloca(fn, ir.Basic(ir.I32), "slot")
	b.CreateStore(&ir.ConstantFP{T: ir.Basic(ir.F32), Val: 1.5}, store)
	b.CreateRet(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0})

	err := ValidateFunction(fn)
	if err == nil {
		t.Fatal("expected validation error for storing a float through an i32 pointer")
	}
	if !strings.Contains(err.Error(), "pointee") {
		t.Errorf("expected error to mention the pointee type mismatch, got: %v", err)
	}
}
