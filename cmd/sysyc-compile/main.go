// Command sysyc-compile lowers a checked AST(JSON) program through the
// middle end and emits the optimized result as textual LLVM-style IR
// (§6.2), for consumption by an out-of-scope backend.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/sereinwalker/sysyopt/internal/ast"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/irprint"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
	"github.com/sereinwalker/sysyopt/internal/lower"
	"github.com/sereinwalker/sysyopt/internal/passmgr"
)

func main() {
	var input string
	var output string
	var optLevel string
	var unrollLimit int
	var skipValidate bool

	flag.StringVar(&input, "file", "", "checked AST JSON file to compile")
	flag.StringVar(&output, "o", "", "output file for LLVM-style IR (default: stdout)")
	flag.StringVar(&optLevel, "O", "1", "optimization level: 0 (none) or 1 (default pipeline, §6.4)")
	flag.IntVar(&unrollLimit, "unroll-count", 4, "loop unroll factor ceiling (§6.4)")
	flag.BoolVar(&skipValidate, "skip-validate", false, "skip the post-pipeline structural invariant check")
	flag.Parse()

	if input == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		os.Exit(1)
	}

	cfg, err := configForLevel(optLevel, unrollLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(input, output, cfg, skipValidate); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configForLevel(level string, unrollLimit int) (passmgr.PassConfig, error) {
	switch level {
	case "0":
		return passmgr.PassConfig{MaxIterations: 1}, nil
	case "1":
		cfg := passmgr.DefaultConfig()
		cfg.LoopUnroll = true
		cfg.MaxLoopUnrollCount = unrollLimit
		return cfg, nil
	default:
		return passmgr.PassConfig{}, fmt.Errorf("invalid optimization level %q (use 0 or 1)", level)
	}
}

func run(input, output string, cfg passmgr.PassConfig, skipValidate bool) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return errors.Wrap(err, "reading input")
	}

	mod, err := ast.Decode(data)
	if err != nil {
		return errors.Wrap(err, "decoding AST")
	}

	sink := diagnostics.NewSink()
	irMod := lower.Lower(mod, sink)

	result := passmgr.Run(irMod, cfg, sink)

	var diagLines []string
	for _, d := range sink.Records() {
		diagLines = append(diagLines, d.String())
	}
	if len(diagLines) > 0 {
		fmt.Fprintln(os.Stderr, strings.Join(diagLines, "\n"))
	}
	if sink.HasErrors() {
		return errors.Errorf("lowering failed for one or more functions (%d function(s) visited)", result.FunctionsVisited)
	}

	if !skipValidate {
		if err := irvalidate.New().ValidateModule(irMod); err != nil {
			return errors.Wrap(err, "pipeline produced invalid ir")
		}
	}

	text, err := irprint.Print(irMod)
	if err != nil {
		return errors.Wrap(err, "printing ir")
	}

	if output == "" {
		fmt.Print(text)
		return nil
	}
	if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		return errors.Wrap(err, "writing output")
	}
	return nil
}
