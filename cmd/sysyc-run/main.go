// Command sysyc-run lowers and optimizes a checked AST(JSON) program
// and executes its main function with internal/interp, against host
// stdin/stdout. It exists to drive the §8.1 end-to-end scenarios and
// the P7/P9/P11 semantic-preservation checks from the command line,
// outside the test suite.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/sereinwalker/sysyopt/internal/ast"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/interp"
	"github.com/sereinwalker/sysyopt/internal/irvalidate"
	"github.com/sereinwalker/sysyopt/internal/lower"
	"github.com/sereinwalker/sysyopt/internal/passmgr"
)

func main() {
	var input string
	var optimize bool
	var entry string

	flag.StringVar(&input, "file", "", "checked AST JSON file to run")
	flag.BoolVar(&optimize, "optimize", true, "run the default optimization pipeline before executing")
	flag.StringVar(&entry, "entry", "main", "entry function name")
	flag.Parse()

	if input == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		os.Exit(1)
	}

	code, err := run(input, optimize, entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run(input string, optimize bool, entry string) (int, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return 0, errors.Wrap(err, "reading input")
	}

	mod, err := ast.Decode(data)
	if err != nil {
		return 0, errors.Wrap(err, "decoding AST")
	}

	sink := diagnostics.NewSink()
	irMod := lower.Lower(mod, sink)

	if optimize {
		passmgr.Run(irMod, passmgr.DefaultConfig(), sink)
	}

	for _, d := range sink.Records() {
		fmt.Fprintln(os.Stderr, d.String())
	}
	if sink.HasErrors() {
		return 0, errors.New("lowering reported errors, see diagnostics above")
	}

	if err := irvalidate.New().ValidateModule(irMod); err != nil {
		return 0, errors.Wrap(err, "ir invariants violated before execution")
	}

	machine := interp.New(irMod, os.Stdin, os.Stdout)
	result, err := machine.Run(entry, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", entry)
	}

	if result.IsFloat || result.IsPtr {
		return 0, nil
	}
	return int(result.Int), nil
}
