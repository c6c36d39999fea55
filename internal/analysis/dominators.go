package analysis

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

// bitset is a fixed-size bit vector indexed by RPO position, used for
// the dominator-set fixed-point computation (§4.5, §9 "dominator
// analysis allocates bitsets sized to block_count").
type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) set(i int)      { b[i/64] |= 1 << uint(i%64) }
func (b bitset) test(i int) bool { return b[i/64]&(1<<uint(i%64)) != 0 }

func (b bitset) clone() bitset {
	c := make(bitset, len(b))
	copy(c, b)
	return c
}

func (b bitset) and(o bitset) {
	for i := range b {
		b[i] &= o[i]
	}
}

func (b bitset) equal(o bitset) bool {
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

// postOrder walks the CFG from entry and returns blocks in DFS
// postorder (a block appears only after all blocks reachable from it
// have been visited).
func postOrder(entry *ir.BasicBlock) []*ir.BasicBlock {
	visited := map[*ir.BasicBlock]bool{entry: true}
	var order []*ir.BasicBlock

	type frame struct {
		b   *ir.BasicBlock
		idx int
	}
	stack := []frame{{entry, 0}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.idx < len(top.b.Succs) {
			s := top.b.Succs[top.idx]
			top.idx++
			if !visited[s] {
				visited[s] = true
				stack = append(stack, frame{s, 0})
			}
			continue
		}
		order = append(order, top.b)
		stack = stack[:len(stack)-1]
	}
	return order
}

// ComputeDominators computes, for every block reachable from the
// entry, its post-order id, immediate dominator, dominator-tree
// children, dominance frontier, and pre-order tin/tout timestamps
// (§4.5). The reverse-post-order block array is cached on fn.
func ComputeDominators(fn *ir.Function) error {
	if fn.Entry == nil {
		return fmt.Errorf("analysis: function %s has no entry block", fn.Name)
	}

	order := postOrder(fn.Entry) // postorder: entry last
	n := len(order)
	for i, b := range order {
		b.PostOrderID = i
		b.IDom = nil
		b.DomChildren = nil
		b.DomFrontier = nil
	}

	rpo := make([]*ir.BasicBlock, n)
	for i, b := range order {
		rpo[n-1-i] = b
	}
	fn.RPO = rpo

	idx := make(map[*ir.BasicBlock]int, n)
	for i, b := range rpo {
		idx[b] = i
	}

	full := newBitset(n)
	for i := 0; i < n; i++ {
		full.set(i)
	}

	dom := make([]bitset, n)
	dom[0] = newBitset(n)
	dom[0].set(0) // Dom(entry) = {entry}
	for i := 1; i < n; i++ {
		dom[i] = full.clone()
	}

	for changed := true; changed; {
		changed = false
		for i := 1; i < n; i++ {
			b := rpo[i]
			var acc bitset
			first := true
			for _, p := range b.Preds {
				pi, ok := idx[p]
				if !ok {
					continue // p unreachable from entry
				}
				if first {
					acc = dom[pi].clone()
					first = false
				} else {
					acc.and(dom[pi])
				}
			}
			if first {
				continue // no reachable predecessor processed yet
			}
			acc.set(i)
			if !acc.equal(dom[i]) {
				dom[i] = acc
				changed = true
			}
		}
	}

	// Immediate dominator: the member of Dom(b)\{b} with the lowest
	// post-order id. Dominators of any node form a chain under the
	// dominance order, and post-order ids increase monotonically from
	// idom(b) up to entry along that chain, so the minimum always
	// identifies idom(b) uniquely.
	for i := 1; i < n; i++ {
		b := rpo[i]
		best := -1
		for j := 0; j < n; j++ {
			if j == i || !dom[i].test(j) {
				continue
			}
			if best == -1 || rpo[j].PostOrderID < rpo[best].PostOrderID {
				best = j
			}
		}
		if best >= 0 {
			b.IDom = rpo[best]
			rpo[best].DomChildren = append(rpo[best].DomChildren, b)
		}
	}
	fn.Entry.IDom = fn.Entry

	// Dominance frontiers via the runner algorithm (§4.5): for every
	// merge point b, walk each predecessor up its idom chain until
	// reaching idom(b), adding b to every visited block's frontier.
	for _, b := range rpo {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			if _, ok := idx[p]; !ok {
				continue
			}
			runner := p
			for runner != b.IDom && runner != nil {
				runner.DomFrontier = append(runner.DomFrontier, b)
				runner = runner.IDom
			}
		}
	}
	dedupeFrontiers(rpo)

	computeTimestamps(fn.Entry)
	fn.MarkDomsValid()
	return nil
}

func dedupeFrontiers(blocks []*ir.BasicBlock) {
	for _, b := range blocks {
		if len(b.DomFrontier) < 2 {
			continue
		}
		seen := map[*ir.BasicBlock]bool{}
		out := b.DomFrontier[:0]
		for _, f := range b.DomFrontier {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
		b.DomFrontier = out
	}
}

// computeTimestamps assigns pre-order tin/tout over the dominator
// tree so Dominates is an O(1) interval check (§4.5).
func computeTimestamps(entry *ir.BasicBlock) {
	clock := 0
	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		clock++
		b.TIn = clock
		for _, c := range b.DomChildren {
			visit(c)
		}
		clock++
		b.TOut = clock
	}
	visit(entry)
}

// Dominates reports whether a dominates b (§4.5): tin[a] <= tin[b] &&
// tout[a] >= tout[b].
func Dominates(a, b *ir.BasicBlock) bool {
	return a.TIn <= b.TIn && a.TOut >= b.TOut
}

// StrictlyDominates reports whether a dominates b and a != b.
func StrictlyDominates(a, b *ir.BasicBlock) bool {
	return a != b && Dominates(a, b)
}

// IteratedDominanceFrontier computes DF+ of a block set: the
// iterated dominance frontier used to place PHI nodes in Mem2Reg
// (§4.7).
func IteratedDominanceFrontier(blocks []*ir.BasicBlock) []*ir.BasicBlock {
	worklist := append([]*ir.BasicBlock(nil), blocks...)
	inWork := map[*ir.BasicBlock]bool{}
	for _, b := range blocks {
		inWork[b] = true
	}
	result := map[*ir.BasicBlock]bool{}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, f := range b.DomFrontier {
			if !result[f] {
				result[f] = true
				if !inWork[f] {
					inWork[f] = true
					worklist = append(worklist, f)
				}
			}
		}
	}
	out := make([]*ir.BasicBlock, 0, len(result))
	for b := range result {
		out = append(out, b)
	}
	return out
}
