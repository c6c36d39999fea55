package transform

import (
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

const adceGuardMultiplier = 2

// ADCE is aggressive dead code elimination (§4.12): a mark-sweep
// backward liveness pass seeded from instructions the program can
// never safely drop (Store, Call, Ret, Br), propagating through data
// operands and, for every block holding a live instruction, through
// its predecessors' terminators so the control flow that reaches it
// stays live too (this also covers PHI incoming edges, since a PHI's
// parent block's predecessors are exactly its incoming blocks).
func ADCE(fn *ir.Function, sink *diagnostics.Sink) bool {
	if fn.Entry == nil {
		return false
	}

	live := map[*ir.Instruction]bool{}
	var wl []*ir.Instruction
	for _, b := range fn.Blocks() {
		for _, inst := range b.Instructions() {
			if inst.Op.HasSideEffects() {
				live[inst] = true
				wl = append(wl, inst)
			}
		}
	}

	guard := 0
	maxGuard := adceGuardMultiplier*countInstructions(fn) + 1
	for len(wl) > 0 {
		guard++
		if guard > maxGuard {
			sink.Warnf("adce", fn.Name, "liveness worklist bound (%d) exceeded, stopping with partial result", maxGuard)
			break
		}
		inst := wl[0]
		wl = wl[1:]

		for _, op := range inst.Operands() {
			dep, ok := op.Ref.(*ir.Instruction)
			if !ok || live[dep] {
				continue
			}
			live[dep] = true
			wl = append(wl, dep)
		}

		if b := inst.Parent; b != nil {
			for _, p := range b.Preds {
				term := p.Terminator()
				if term != nil && !live[term] {
					live[term] = true
					wl = append(wl, term)
				}
			}
		}
	}

	changed := false
	for _, b := range fn.Blocks() {
		for _, inst := range b.Instructions() {
			if !live[inst] {
				ir.Erase(inst)
				changed = true
			}
		}
	}
	return changed
}
