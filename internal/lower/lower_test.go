package lower

import (
	"testing"

	"github.com/sereinwalker/sysyopt/internal/ast"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
)

// Lowering only ever consumes a checked ast.Module the front end
// produces, so these fixtures go through ast.Decode exactly as a real
// caller would, rather than constructing ast.Expr/Stmt values by hand.

func mustDecode(t *testing.T, jsonSrc string) *ast.Module {
	t.Helper()
	mod, err := ast.Decode([]byte(jsonSrc))
	if err != nil {
		t.Fatalf("ast.Decode: %v", err)
	}
	return mod
}

func TestLowerSimpleReturn(t *testing.T) {
	mod := mustDecode(t, `{
		"source_file": "t.sy",
		"functions": [{
			"name": "main",
			"return_type": {"basic": "i32"},
			"body": [{
				"kind": "return",
				"ret": {
					"kind": "binary", "op": "+", "eval_type": {"basic": "i32"},
					"left": {"kind": "int_lit", "eval_type": {"basic": "i32"}, "int_value": 3},
					"right": {"kind": "int_lit", "eval_type": {"basic": "i32"}, "int_value": 4}
				}
			}]
		}]
	}`)

	sink := diagnostics.NewSink()
	irMod := Lower(mod, sink)
	if sink.HasErrors() {
		t.Fatalf("unexpected lowering errors: %v", sink.Records())
	}

	fn, ok := irMod.FuncByName("main")
	if !ok {
		t.Fatal("expected main to be declared in the lowered module")
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Fatalf("lowered IR failed validation: %v", err)
	}

	ret := fn.Entry.Last()
	if ret.Op != ir.OpRet {
		t.Fatalf("expected the entry block to end in a ret, got %s", ret.Op)
	}
}

func TestLowerIfStmtProducesMultipleBlocks(t *testing.T) {
	mod := mustDecode(t, `{
		"source_file": "t.sy",
		"functions": [{
			"name": "f",
			"params": [{"sym": {"name": "c", "sym_type": {"basic": "i32"}}}],
			"return_type": {"basic": "i32"},
			"body": [{
				"kind": "if",
				"cond": {"kind": "ident", "eval_type": {"basic": "i32"}, "sym": {"name": "c", "sym_type": {"basic": "i32"}}},
				"then": {"kind": "return", "ret": {"kind": "int_lit", "eval_type": {"basic": "i32"}, "int_value": 1}},
				"else": {"kind": "return", "ret": {"kind": "int_lit", "eval_type": {"basic": "i32"}, "int_value": 2}}
			}]
		}]
	}`)

	sink := diagnostics.NewSink()
	irMod := Lower(mod, sink)
	if sink.HasErrors() {
		t.Fatalf("unexpected lowering errors: %v", sink.Records())
	}

	fn, ok := irMod.FuncByName("f")
	if !ok {
		t.Fatal("expected f to be declared")
	}
	if err := irvalidate.ValidateFunction(fn); err != nil {
		t.Fatalf("lowered IR failed validation: %v", err)
	}
	if len(fn.Blocks()) < 2 {
		t.Errorf("expected an if statement to lower to more than one block, got %d", len(fn.Blocks()))
	}
}

func TestLowerRuntimeExternDeclared(t *testing.T) {
	mod := mustDecode(t, `{"source_file": "t.sy", "functions": [{"name": "main", "return_type": {"void": true}, "body": []}]}`)
	sink := diagnostics.NewSink()
	irMod := Lower(mod, sink)

	fn, ok := irMod.FuncByName("putint")
	if !ok {
		t.Fatal("expected the runtime library's putint to be declared in every lowered module")
	}
	if !fn.Extern {
		t.Errorf("expected putint to be marked extern")
	}
}
