package ast

import "testing"

const mainReturns7 = `{
  "source_file": "t.sy",
  "functions": [
    {
      "name": "main",
      "params": [],
      "return_type": {"basic": "i32"},
      "body": [
        {
          "kind": "return",
          "ret": {
            "kind": "binary",
            "eval_type": {"basic": "i32"},
            "op": "+",
            "left": {"kind": "int_lit", "eval_type": {"basic": "i32"}, "int_value": 3},
            "right": {"kind": "int_lit", "eval_type": {"basic": "i32"}, "int_value": 4}
          }
        }
      ]
    }
  ]
}`

func TestDecodeSimpleFunction(t *testing.T) {
	mod, err := Decode([]byte(mainReturns7))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(mod.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(mod.Functions))
	}
	fn := mod.Functions[0]
	if fn.Name != "main" {
		t.Errorf("expected function name main, got %s", fn.Name)
	}
	if len(fn.Body) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(fn.Body))
	}
	ret, ok := fn.Body[0].(*ReturnStmt)
	if !ok {
		t.Fatalf("expected a ReturnStmt, got %T", fn.Body[0])
	}
	bin, ok := ret.Value.(*BinaryExpr)
	if !ok {
		t.Fatalf("expected a BinaryExpr, got %T", ret.Value)
	}
	if bin.Op != OpAdd {
		t.Errorf("expected op +, got %s", bin.Op)
	}
	left, ok := bin.Left.(*IntLit)
	if !ok || left.Value != 3 {
		t.Errorf("expected left operand to be int literal 3, got %#v", bin.Left)
	}
	right, ok := bin.Right.(*IntLit)
	if !ok || right.Value != 4 {
		t.Errorf("expected right operand to be int literal 4, got %#v", bin.Right)
	}
}

func TestDecodeGlobalAndParams(t *testing.T) {
	data := `{
		"source_file": "t.sy",
		"globals": [
			{"sym": {"name": "g", "sym_type": {"basic": "i32"}, "is_global": true}, "init": {"kind": "int_lit", "eval_type": {"basic": "i32"}, "int_value": 9}}
		],
		"functions": [
			{
				"name": "f",
				"params": [{"sym": {"name": "a", "sym_type": {"basic": "i32"}}}],
				"return_type": {"basic": "i32"},
				"body": [{"kind": "return", "ret": {"kind": "ident", "eval_type": {"basic": "i32"}, "sym": {"name": "a", "sym_type": {"basic": "i32"}}}}]
			}
		]
	}`
	mod, err := Decode([]byte(data))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(mod.Globals) != 1 || mod.Globals[0].Sym.Name != "g" {
		t.Fatalf("expected global g, got %#v", mod.Globals)
	}
	if init, ok := mod.Globals[0].Init.(*IntLit); !ok || init.Value != 9 {
		t.Errorf("expected global init 9, got %#v", mod.Globals[0].Init)
	}
	fn := mod.Functions[0]
	if len(fn.Params) != 1 || fn.Params[0].Sym.Name != "a" {
		t.Fatalf("expected one param named a, got %#v", fn.Params)
	}
}

func TestDecodeRejectsUnknownExprKind(t *testing.T) {
	data := `{"source_file":"t.sy","functions":[{"name":"f","return_type":{"void":true},
		"body":[{"kind":"expr","x":{"kind":"bogus"}}]}]}`
	if _, err := Decode([]byte(data)); err == nil {
		t.Fatal("expected an error for an unrecognized expression kind")
	}
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
