// Package analysis implements the L2 layer (§2, §4.4–§4.6): CFG
// construction, dominator trees with dominance frontiers, and natural
// loop discovery. Results are cached on the ir.Function/ir.BasicBlock
// fields they annotate and stay valid until the next CFG-invalidating
// edit (§5).
package analysis

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

// BuildCFG recomputes every block's predecessor/successor arrays from
// its terminator operands (§4.4). Builder-driven edits
// (ir.AddEdge/RedirectEdge/...) keep these arrays current as they go;
// BuildCFG is the from-scratch recomputation used after bulk edits
// (block cloning, module load) where incremental maintenance was
// skipped.
func BuildCFG(fn *ir.Function) error {
	blocks := fn.Blocks()
	succCount := map[*ir.BasicBlock]int{}
	for _, b := range blocks {
		b.Succs = nil
		b.Preds = nil
	}
	for _, b := range blocks {
		term := b.Terminator()
		if term == nil {
			// Analysis impossibility (§7): skip the block, don't abort.
			// No warning is recorded here; BuildCFG has no sink.
			continue
		}
		seen := map[*ir.BasicBlock]bool{}
		for _, s := range term.Successors() {
			if !seen[s] {
				seen[s] = true
				b.Succs = append(b.Succs, s)
				succCount[s]++
			}
		}
	}
	for _, b := range blocks {
		b.Preds = make([]*ir.BasicBlock, 0, succCount[b])
	}
	for _, b := range blocks {
		for _, s := range b.Succs {
			s.Preds = append(s.Preds, b)
		}
	}
	return nil
}

// Validate checks CFG symmetry (§3.7 invariant 4, P4 in §8): A is a
// successor of B iff B is a predecessor of A, and both arrays are
// duplicate-free.
func Validate(fn *ir.Function) error {
	for _, b := range fn.Blocks() {
		if dup := firstDuplicate(b.Succs); dup != nil {
			return fmt.Errorf("block %s: duplicate successor %s", b.Label, dup.Label)
		}
		if dup := firstDuplicate(b.Preds); dup != nil {
			return fmt.Errorf("block %s: duplicate predecessor %s", b.Label, dup.Label)
		}
		for _, s := range b.Succs {
			if !hasBlock(s.Preds, b) {
				return fmt.Errorf("block %s has successor %s, but %s is not listed as its predecessor", b.Label, s.Label, b.Label)
			}
		}
		for _, p := range b.Preds {
			if !hasBlock(p.Succs, b) {
				return fmt.Errorf("block %s has predecessor %s, but %s is not listed as its successor", b.Label, p.Label, b.Label)
			}
		}
	}
	return nil
}

func hasBlock(list []*ir.BasicBlock, b *ir.BasicBlock) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

func firstDuplicate(list []*ir.BasicBlock) *ir.BasicBlock {
	seen := map[*ir.BasicBlock]bool{}
	for _, b := range list {
		if seen[b] {
			return b
		}
		seen[b] = true
	}
	return nil
}
