package runtime

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

func TestRegistryLookupKnownAndUnknown(t *testing.T) {
	r := NewRegistry()

	sig, ok := r.Lookup("putint")
	if !ok {
		t.Fatal("expected putint to be a known runtime function")
	}
	if len(sig.Params) != 1 || sig.Ret.Kind != ir.TVoid {
		t.Errorf("expected putint(i32) void, got %+v", sig)
	}

	if _, ok := r.Lookup("nonexistent"); ok {
		t.Error("expected an unknown name to not be found")
	}
	if r.IsRuntimeName("nonexistent") {
		t.Error("expected IsRuntimeName to reject an unknown name")
	}
	if !r.IsRuntimeName("getint") {
		t.Error("expected IsRuntimeName to accept getint")
	}
}

func TestDeclareAllIsIdempotent(t *testing.T) {
	m := ir.NewModule("t.sy")
	DeclareAll(m)
	firstCount := len(m.Functions)
	DeclareAll(m)
	if len(m.Functions) != firstCount {
		t.Errorf("expected DeclareAll to be idempotent, went from %d to %d functions", firstCount, len(m.Functions))
	}

	fn, ok := m.FuncByName("putf")
	if !ok {
		t.Fatal("expected putf to be declared")
	}
	if !fn.Extern {
		t.Error("expected every declared runtime function to be marked extern")
	}
	if !fn.Variadic {
		t.Error("expected putf to be declared variadic")
	}
}

func TestExternalsCoverAllThirteenRuntimeFunctions(t *testing.T) {
	if len(Externals) != 13 {
		t.Errorf("expected 13 runtime library functions per §6.1, got %d", len(Externals))
	}
}
