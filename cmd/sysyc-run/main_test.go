package main

import (
	"os"
	"path/filepath"
	"testing"
)

const mainReturns7JSON = `{
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

func TestRunExecutesEntryFunctionAndReturnsItsValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.json")
	if err := os.WriteFile(path, []byte(mainReturns7JSON), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	code, err := run(path, true, "main")
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if code != 7 {
		t.Errorf("expected main to return 7, got %d", code)
	}
}

func TestRunRejectsUnknownEntryFunction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.json")
	if err := os.WriteFile(path, []byte(mainReturns7JSON), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := run(path, true, "not_a_function"); err == nil {
		t.Error("expected an error for a nonexistent entry function")
	}
}
