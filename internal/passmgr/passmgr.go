// Package passmgr drives the fixed per-function optimization pipeline
// and the module-level inlining/tail-call round described in §4.19.
package passmgr

import (
	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
	"github.com/sereinwalker/sysyopt/internal/transform"
)

// PassFunc is one function-level optimization pass: it mutates fn in
// place and reports whether it changed anything.
type PassFunc func(fn *ir.Function, sink *diagnostics.Sink) bool

// Registry maps a pass's configuration name to its implementation —
// the map-of-named-callables idiom used elsewhere in this tree for
// pluggable dispatch by name rather than a type switch.
type Registry struct {
	passes map[string]PassFunc
}

// NewRegistry builds a Registry with every function-level pass from
// internal/transform registered under its §6.4 configuration name.
func NewRegistry() *Registry {
	r := &Registry{passes: make(map[string]PassFunc)}
	r.Register("sroa", transform.SROA)
	r.Register("mem2reg", transform.Mem2Reg)
	r.Register("instcombine", transform.InstCombine)
	r.Register("sccp", transform.SCCP)
	r.Register("cse", transform.CSE)
	r.Register("adce", transform.ADCE)
	r.Register("simplifycfg", transform.SimplifyCFG)
	r.Register("licm", transform.LICM)
	r.Register("indvars", transform.IndVarSimplify)
	r.Register("loopunroll", transform.LoopUnroll)
	return r
}

// Register adds or replaces the pass registered under name.
func (r *Registry) Register(name string, fn PassFunc) {
	r.passes[name] = fn
}

// Run invokes the pass registered under name, or reports no change if
// no such pass is registered.
func (r *Registry) Run(name string, fn *ir.Function, sink *diagnostics.Sink) bool {
	p, ok := r.passes[name]
	if !ok {
		return false
	}
	return p(fn, sink)
}

// Names lists every registered pass name, in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.passes))
	for n := range r.passes {
		names = append(names, n)
	}
	return names
}

// PassConfig enables or disables each optimization and bounds the
// per-function fixed-point round count and the unrolling factor
// ceiling (§6.4).
type PassConfig struct {
	SROA           bool
	Mem2Reg        bool
	InstCombine    bool
	SCCP           bool
	CSE            bool
	ADCE           bool
	SimplifyCFG    bool
	LICM           bool
	IndVarSimplify bool
	LoopUnroll     bool
	Inliner        bool
	TailCallElim   bool

	MaxIterations      int
	MaxLoopUnrollCount int
}

// DefaultConfig enables every pass except LoopUnroll (§6.4).
func DefaultConfig() PassConfig {
	return PassConfig{
		SROA:               true,
		Mem2Reg:            true,
		InstCombine:        true,
		SCCP:               true,
		CSE:                true,
		ADCE:               true,
		SimplifyCFG:        true,
		LICM:               true,
		IndVarSimplify:     true,
		LoopUnroll:         false,
		Inliner:            true,
		TailCallElim:       true,
		MaxIterations:      10,
		MaxLoopUnrollCount: 4,
	}
}

// Result summarizes one Run invocation for the CLI/test callers that
// don't want to dig through the diagnostics sink.
type Result struct {
	FunctionsVisited   int
	FunctionsOptimized int
}

// Run drives the §4.19 pipeline: build_cfg/compute_dominators, SROA,
// Mem2Reg, a fixed-point cleanup round, find_loops, the loop passes,
// and a final cleanup round, per function; then module-level Inliner
// and a re-run of the per-function pipeline on any function it
// touched; then TailCallElim.
func Run(mod *ir.Module, cfg PassConfig, sink *diagnostics.Sink) Result {
	reg := NewRegistry()
	var result Result

	for _, fn := range mod.Functions {
		if fn.Extern {
			continue
		}
		result.FunctionsVisited++
		if runFunctionPipeline(fn, cfg, reg, sink) {
			result.FunctionsOptimized++
		}
	}

	if cfg.Inliner && transform.Inliner(mod, sink) {
		for _, fn := range mod.Functions {
			if fn.Extern {
				continue
			}
			runFunctionPipeline(fn, cfg, reg, sink)
		}
	}

	if cfg.TailCallElim {
		for _, fn := range mod.Functions {
			if fn.Extern {
				continue
			}
			if transform.TailCallElim(fn, sink) {
				runFunctionPipeline(fn, cfg, reg, sink)
			}
		}
	}

	return result
}

// runFunctionPipeline runs the fixed per-function pipeline once and
// reports whether anything in fn changed.
func runFunctionPipeline(fn *ir.Function, cfg PassConfig, reg *Registry, sink *diagnostics.Sink) bool {
	if !rebuildCFG(fn, sink) {
		return false
	}

	changedAny := false
	if cfg.SROA && reg.Run("sroa", fn, sink) {
		changedAny = true
	}
	if cfg.Mem2Reg && reg.Run("mem2reg", fn, sink) {
		changedAny = true
	}

	if cfg.MaxLoopUnrollCount > 0 {
		transform.MaxLoopUnrollFactor = cfg.MaxLoopUnrollCount
	}

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		if cfg.InstCombine && reg.Run("instcombine", fn, sink) {
			changed = true
		}
		if cfg.SCCP && reg.Run("sccp", fn, sink) {
			changed = true
		}
		if cfg.CSE && reg.Run("cse", fn, sink) {
			changed = true
		}
		if cfg.ADCE && reg.Run("adce", fn, sink) {
			changed = true
		}
		if cfg.SimplifyCFG && reg.Run("simplifycfg", fn, sink) {
			changed = true
		}
		if !changed {
			break
		}
		changedAny = true
		if !rebuildCFG(fn, sink) {
			return changedAny
		}
	}

	if err := analysis.FindLoops(fn); err != nil {
		sink.Errorf("passmgr", fn.Name, "%s", err)
	} else {
		if cfg.LICM && reg.Run("licm", fn, sink) {
			changedAny = true
		}
		if cfg.IndVarSimplify && reg.Run("indvars", fn, sink) {
			changedAny = true
		}
		if cfg.LoopUnroll && reg.Run("loopunroll", fn, sink) {
			changedAny = true
		}
	}

	if cfg.InstCombine && reg.Run("instcombine", fn, sink) {
		changedAny = true
	}
	if cfg.ADCE && reg.Run("adce", fn, sink) {
		changedAny = true
	}
	if cfg.SimplifyCFG && reg.Run("simplifycfg", fn, sink) {
		changedAny = true
	}

	return changedAny
}

func rebuildCFG(fn *ir.Function, sink *diagnostics.Sink) bool {
	if err := analysis.BuildCFG(fn); err != nil {
		sink.Errorf("passmgr", fn.Name, "%s", err)
		return false
	}
	if err := analysis.ComputeDominators(fn); err != nil {
		sink.Errorf("passmgr", fn.Name, "%s", err)
		return false
	}
	return true
}
