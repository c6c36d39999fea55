package irprint

import (
	"strings"
	"testing"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

func TestPrintSingleBlockFunction(t *testing.T) {
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("add", ir.Basic(ir.I32), []string{"a", "b"}, []*ir.Type{ir.Basic(ir.I32), ir.Basic(ir.I32)}, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)
	sum := b.CreateAdd(fn.Params[0], fn.Params[1], "sum")
	b.CreateRet(sum)

	text, err := Print(m)
	if err != nil {
		t.Fatalf("Print returned error: %v", err)
	}
	if !strings.Contains(text, "define i32 @add") {
		t.Errorf("expected output to declare add, got:\n%s", text)
	}
	if !strings.Contains(text, "add") || !strings.Contains(text, "ret i32") {
		t.Errorf("expected output to contain an add and a ret i32, got:\n%s", text)
	}
}

func TestPrintBranchAndPhi(t *testing.T) {
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
	phi := b.CreatePhi(merge, ir.Basic(ir.I32), "x")
	b.AddIncoming(phi, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, thenB)
	b.AddIncoming(phi, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 2}, elseB)
	b.CreateRet(phi)

	text, err := Print(m)
	if err != nil {
		t.Fatalf("Print returned error: %v", err)
	}
	if !strings.Contains(text, "phi i32") {
		t.Errorf("expected output to contain a phi i32, got:\n%s", text)
	}
	if !strings.Contains(text, "br i1") {
		t.Errorf("expected output to contain a conditional branch, got:\n%s", text)
	}
}

func TestPrintGlobalArray(t *testing.T) {
	m := ir.NewModule("t.sy")
	elemT := ir.Basic(ir.I32)
	arrT := ir.Array(elemT, []ir.ArrayDim{{Size: 3}})
	init := &ir.ConstantArray{T: arrT, Elements: []ir.Value{
		&ir.ConstantInt{T: elemT, Val: 1},
		&ir.ConstantInt{T: elemT, Val: 2},
		&ir.ConstantInt{T: elemT, Val: 3},
	}}
	m.NewGlobal("g", arrT, init, false)

	text, err := Print(m)
	if err != nil {
		t.Fatalf("Print returned error: %v", err)
	}
	if !strings.Contains(text, "@g") {
		t.Errorf("expected output to declare global @g, got:\n%s", text)
	}
}
