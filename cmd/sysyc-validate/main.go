// Command sysyc-validate lowers a checked AST(JSON) program to SSA IR,
// runs the default optimization pipeline, and reports whether the
// result still satisfies the structural invariants of §8 (P1-P6). It
// exists to exercise internal/irvalidate standalone, outside the
// pass-by-pass checks internal/transform's own tests already make.
package main

import (
	"flag"
	"fmt"
	"os"

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
	var optimize bool
	var dumpIR bool

	flag.StringVar(&input, "file", "", "checked AST JSON file to validate")
	flag.BoolVar(&optimize, "optimize", true, "run the default optimization pipeline before validating")
	flag.BoolVar(&dumpIR, "dump-ir", false, "print the resulting LLVM-style IR to stdout")
	flag.Parse()

	if input == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		os.Exit(1)
	}

	if err := run(input, optimize, dumpIR); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(input string, optimize, dumpIR bool) error {
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

	if optimize {
		passmgr.Run(irMod, passmgr.DefaultConfig(), sink)
	}

	for _, d := range sink.Records() {
		fmt.Fprintln(os.Stderr, d.String())
	}
	if sink.HasErrors() {
		return errors.New("lowering reported errors, see diagnostics above")
	}

	if err := irvalidate.New().ValidateModule(irMod); err != nil {
		return errors.Wrap(err, "ir invariants violated")
	}

	if dumpIR {
		text, err := irprint.Print(irMod)
		if err != nil {
			return errors.Wrap(err, "printing IR")
		}
		fmt.Println(text)
	}

	fmt.Println("ok: ir satisfies all structural invariants")
	return nil
}
