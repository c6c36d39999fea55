package interp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

// buildAddModule builds `func main() i32 { return 2 + 3; }` directly
// against the builder, bypassing internal/lower, to exercise the
// interpreter's block-walking loop in isolation.
func buildAddModule(t *testing.T) *ir.Module {
	t.Helper()
	m := ir.NewModule("t.sy")
	fn := m.NewFunction("main", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)
	sum := b.CreateAdd(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 2}, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 3}, "sum")
	b.CreateRet(sum)
	return m
}

func TestRunReturnsComputedValue(t *testing.T) {
	m := buildAddModule(t)
	machine := New(m, strings.NewReader(""), &bytes.Buffer{})
	v, err := machine.Run("main", nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if v.Int != 5 {
		t.Errorf("expected 2+3=5, got %d", v.Int)
	}
}

// buildBranchModule builds a function with a diamond CFG merging
// through a phi: `if (c) x = 1; else x = 2; return x;`.
func buildBranchModule(t *testing.T, cond int64) *ir.Module {
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
	phi := b.CreatePhi(merge, ir.Basic(ir.I32), "x")
	b.AddIncoming(phi, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 1}, thenB)
	b.AddIncoming(phi, &ir.ConstantInt{T: ir.Basic(ir.I32), Val: 2}, elseB)
	b.CreateRet(phi)

	_ = cond
	return m
}

func TestRunResolvesPhiByPredecessor(t *testing.T) {
	m := buildBranchModule(t, 0)
	machine := New(m, strings.NewReader(""), &bytes.Buffer{})

	v, err := machine.Run("f", []Value{IntValue(ir.I1, 1)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if v.Int != 1 {
		t.Errorf("expected phi to resolve to the then-branch value 1, got %d", v.Int)
	}

	v, err = machine.Run("f", []Value{IntValue(ir.I1, 0)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if v.Int != 2 {
		t.Errorf("expected phi to resolve to the else-branch value 2, got %d", v.Int)
	}
}

func TestPutintWritesToStdout(t *testing.T) {
	m := ir.NewModule("t.sy")
	m.NewFunction("putint", ir.Void(), []string{"v"}, []*ir.Type{ir.Basic(ir.I32)}, false, true)
	fn := m.NewFunction("main", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)
	putint, _ := m.FuncByName("putint")
	b.CreateCall(putint, []ir.Value{&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 42}}, ir.Void(), "")
	b.CreateRet(&ir.ConstantInt{T: ir.Basic(ir.I32), Val: 0})

	var out bytes.Buffer
	machine := New(m, strings.NewReader(""), &out)
	if _, err := machine.Run("main", nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if strings.TrimSpace(out.String()) != "42" {
		t.Errorf("expected putint to print 42, got %q", out.String())
	}
}

func TestGetintReadsFromStdin(t *testing.T) {
	m := ir.NewModule("t.sy")
	m.NewFunction("getint", ir.Basic(ir.I32), nil, nil, false, true)
	fn := m.NewFunction("main", ir.Basic(ir.I32), nil, nil, false, false)
	b := ir.NewBuilder(m.Arena)
	entry := b.CreateBlock(fn, "entry")
	b.SetInsertPoint(entry, nil)
	getint, _ := m.FuncByName("getint")
	call := b.CreateCall(getint, nil, ir.Basic(ir.I32), "x")
	b.CreateRet(call)

	machine := New(m, strings.NewReader("17\n"), &bytes.Buffer{})
	v, err := machine.Run("main", nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if v.Int != 17 {
		t.Errorf("expected getint to read 17, got %d", v.Int)
	}
}
