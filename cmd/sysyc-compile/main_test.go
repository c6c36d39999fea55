package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sereinwalker/sysyopt/internal/passmgr"
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

func TestConfigForLevelZeroAndOne(t *testing.T) {
	cfg0, err := configForLevel("0", 4)
	if err != nil {
		t.Fatalf("unexpected error for level 0: %v", err)
	}
	if cfg0.MaxIterations != 1 {
		t.Errorf("expected level 0 to cap iterations at 1, got %d", cfg0.MaxIterations)
	}

	cfg1, err := configForLevel("1", 8)
	if err != nil {
		t.Fatalf("unexpected error for level 1: %v", err)
	}
	if !cfg1.LoopUnroll || cfg1.MaxLoopUnrollCount != 8 {
		t.Errorf("expected level 1 to enable LoopUnroll with the given count, got %+v", cfg1)
	}

	if _, err := configForLevel("2", 4); err == nil {
		t.Error("expected an error for an unrecognized optimization level")
	}
}

func TestRunWritesIRToOutputFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	if err := os.WriteFile(input, []byte(mainReturns7JSON), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	output := filepath.Join(dir, "out.ll")

	if err := run(input, output, passmgr.DefaultConfig(), false); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	text, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("expected output file to be written: %v", err)
	}
	if !strings.Contains(string(text), "define i32 @main") {
		t.Errorf("expected output IR to define main, got:\n%s", text)
	}
}
