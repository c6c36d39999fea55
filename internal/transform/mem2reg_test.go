package transform

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
)

// buildLocalStoreLoad builds `func f() i32 { int x; x = 5; return x; }`
// in memory form: one Alloca, one Store, one Load (§4.7's candidate
// shape).
func buildLocalStoreLoad(t *testing.T) *ir.Function {
	t.Helper()
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)
	slot := b.CreateAlloca(fn, ir.Basic(ir.I32), "x")
	b.CreateStore(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 5}, slot)
	load := b.CreateLoad(slot, "x.0")
	b.CreateRet(load)
	return fn
}

func TestMem2RegPromotesSimpleAlloca(t *testing.T) {
	fn := buildLocalStoreLoad(t)
	sink := diagnostics.NewSink()

	changed := Mem2Reg(fn, sink)
	if !changed {
		t.Fatal("expected Mem2Reg to report a change")
	}

	for _, inst := range fn.Entry.Instructions() {
		if inst.Op == ir.OpAlloca || inst.Op == ir.OpLoad || inst.Op == ir.OpStore {
			t.Errorf("expected no alloca/load/store to survive promotion, found %s", inst.Op)
		}
	}

	ret := fn.Entry.Last()
	if ret.Op != ir.OpRet {
		t.Fatalf("expected entry to still end in a ret, got %s", ret.Op)
	}
	c, ok := ir.AsConstantInt(ret.Operands()[0].Ref)
	if !ok || c.Val != 5 {
		t.Errorf("expected the promoted return value to fold to the constant 5, got %#v", ret.Operands()[0].Ref)
	}

	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("promoted IR failed validation: %v", err)
	}
}

func TestMem2RegPromotesAcrossBranchesWithPhi(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("f", ir.Basic(ir.I32), []string{"c"}, []*ir.Type{ir.Basic(ir.I1)}, false, false)
	b := ir.NewBuilder(m.Arena)

	entry := b.CreateBlock(fn, "entry")
	thenB := b.CreateBlock(fn, "then")
	elseB := b.CreateBlock(fn, "else")
	merge := b.CreateBlock(fn, "merge")

	b.SetInsertPoint(entry, nil)
	slot := b.CreateAlloca(fn, ir.Basic(ir.I32), "x")
	b.CreateCondBr(fn.Params[0], thenB, elseB)

	b.SetInsertPoint(thenB, nil)
	b.CreateStore(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, slot)
	b.CreateBr(merge)

	b.SetInsertPoint(elseB, nil)
	b.CreateStore(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 2}, slot)
	b.CreateBr(merge)

	b.SetInsertPoint(merge, nil)
	load := b.CreateLoad(slot, "x.0")
	b.CreateRet(load)

	sink := diagnostics.NewSink()
	if !Mem2Reg(fn, sink) {
		t.Fatal("expected Mem2Reg to report a change")
	}

	if len(merge.Phis()) != 1 {
		t.Fatalf("expected merge to receive exactly one phi, got %d", len(merge.Phis()))
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Errorf("promoted IR failed validation: %v", err)
	}
}
