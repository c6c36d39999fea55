package transform

import (
	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

// SimplifyCFG runs four structural sub-transforms to a fixed point
// (§4.13): folding constant-condition branches, deleting blocks
// unreachable from entry, threading jumps through single-instruction
// trampoline blocks, and merging a block into its sole successor when
// that successor has no other predecessor. Dominators are recomputed
// whenever a round changes anything, since later rounds rely on
// current Preds/Succs and a later LICM/IndVarSimplify pass expects a
// valid dominator tree regardless of what ran before it.
func SimplifyCFG(fn *ir.Function, sink *diagnostics.Sink) bool {
	if fn.Entry == nil {
		return false
	}

	changed := false
	for {
		round := false
		if foldConstantBranches(fn) {
			round = true
		}
		if removeUnreachableBlocks(fn) {
			round = true
		}
		if threadTrampolines(fn) {
			round = true
		}
		if mergeSequentialBlocks(fn) {
			round = true
		}
		if !round {
			break
		}
		changed = true
		analysis.BuildCFG(fn)
		fn.InvalidateCFG()
		if err := analysis.ComputeDominators(fn); err != nil {
			sink.Warnf("simplifycfg", fn.Name, "%s", err)
			break
		}
	}
	return changed
}

// foldConstantBranches rewrites every conditional branch whose
// condition is already a literal constant into an unconditional one,
// dropping the untaken edge and its incoming PHI entries.
func foldConstantBranches(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks() {
		term := b.Terminator()
		if term == nil || term.Op != ir.OpBr {
			continue
		}
		ops := term.Operands()
		if len(ops) != 3 {
			continue
		}
		c, ok := ir.AsConstantInt(ops[0].Ref)
		if !ok {
			continue
		}
		keep, drop := ops[1].Blk, ops[2].Blk
		if c.Val == 0 {
			keep, drop = drop, keep
		}
		builder := ir.NewBuilder(fn.Arena)
		builder.SetInsertPoint(b, nil)
		ir.Erase(term)
		builder.CreateBr(keep)
		ir.RemoveEdge(b, drop)
		for _, phi := range drop.Phis() {
			ir.RemoveIncoming(phi, b)
		}
		changed = true
	}
	return changed
}

// removeUnreachableBlocks deletes every block no longer reachable from
// entry, cleaning the PHIs of its former successors as it goes.
func removeUnreachableBlocks(fn *ir.Function) bool {
	reachable := map[*ir.BasicBlock]bool{fn.Entry: true}
	stack := []*ir.BasicBlock{fn.Entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range b.Succs {
			if !reachable[s] {
				reachable[s] = true
				stack = append(stack, s)
			}
		}
	}

	var dead []*ir.BasicBlock
	for _, b := range fn.Blocks() {
		if !reachable[b] {
			dead = append(dead, b)
		}
	}
	if len(dead) == 0 {
		return false
	}
	for _, b := range dead {
		for _, s := range append([]*ir.BasicBlock(nil), b.Succs...) {
			ir.RemoveEdge(b, s)
			for _, phi := range s.Phis() {
				ir.RemoveIncoming(phi, b)
			}
		}
		for _, inst := range b.Instructions() {
			ir.Erase(inst)
		}
		fn.RemoveBlock(b)
	}
	return true
}

// threadTrampolines redirects every predecessor of a pure
// single-instruction "br label %x" block straight to x, skipping the
// trampoline (which removeUnreachableBlocks cleans up once it has no
// predecessors left).
func threadTrampolines(fn *ir.Function) bool {
	changed := false
	for _, t := range fn.Blocks() {
		if t == fn.Entry {
			continue
		}
		insts := t.Instructions()
		if len(insts) != 1 || insts[0].Op != ir.OpBr {
			continue
		}
		ops := insts[0].Operands()
		if len(ops) != 1 {
			continue // conditional branch, not a pure trampoline
		}
		target := ops[0].Blk
		if target == t {
			continue
		}
		for _, p := range append([]*ir.BasicBlock(nil), t.Preds...) {
			ir.RedirectEdge(p, t, target)
			ir.RepairPhisAfterEdgeRedirect(target, p, t)
			changed = true
		}
	}
	return changed
}

// mergeSequentialBlocks collapses b into its sole successor s when s
// has no other predecessor: b's closing branch disappears, s's
// instructions move into b, and any degenerate single-incoming PHI
// left in s resolves to its one value.
func mergeSequentialBlocks(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks() {
		term := b.Terminator()
		if term == nil || term.Op != ir.OpBr {
			continue
		}
		ops := term.Operands()
		if len(ops) != 1 {
			continue
		}
		s := ops[0].Blk
		if s == b || s == fn.Entry || len(s.Preds) != 1 || s.Preds[0] != b {
			continue
		}

		for _, phi := range s.Phis() {
			inc := ir.Incoming(phi)
			if len(inc) != 1 {
				continue
			}
			ir.ReplaceAllUsesWith(phi, inc[0].Val)
			ir.Erase(phi)
		}

		ir.Erase(term)
		s.MergeInto(b)

		for _, succ := range append([]*ir.BasicBlock(nil), s.Succs...) {
			ir.RemoveEdge(s, succ)
			ir.AddEdge(b, succ)
			for _, phi := range succ.Phis() {
				for _, op := range phi.Operands() {
					if op.Blk == s {
						op.Blk = b
					}
				}
			}
		}
		ir.RemoveEdge(b, s)
		fn.RemoveBlock(s)
		changed = true
	}
	return changed
}
