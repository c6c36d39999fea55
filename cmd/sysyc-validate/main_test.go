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

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestRunValidatesWellFormedProgram(t *testing.T) {
	path := writeFixture(t, mainReturns7JSON)
	if err := run(path, true, false); err != nil {
		t.Errorf("run returned error on a valid program: %v", err)
	}
}

func TestRunRejectsMissingFile(t *testing.T) {
	if err := run(filepath.Join(t.TempDir(), "missing.json"), true, false); err == nil {
		t.Error("expected an error for a nonexistent input file")
	}
}
