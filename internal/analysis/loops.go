package analysis

import (
	"sort"

	"github.com/sereinwalker/sysyopt/internal/ir"
)

// FindLoops discovers natural loops (§4.6). Requires ComputeDominators
// to have run on fn. Back edges are discovered from the CFG; loops
// sharing a header are merged; the top-level loop list is cached on
// fn and every in-loop block's LoopDepth/Loop fields are updated.
func FindLoops(fn *ir.Function) error {
	for _, b := range fn.Blocks() {
		b.LoopDepth = 0
		b.Loop = nil
	}

	byHeader := map[*ir.BasicBlock]*ir.Loop{}
	var order []*ir.BasicBlock // header discovery order, for determinism

	for _, n := range fn.RPO {
		for _, h := range n.Succs {
			if !Dominates(h, n) {
				continue // not a back edge
			}
			blocks := loopBlockSet(h, n)
			l, ok := byHeader[h]
			if !ok {
				l = &ir.Loop{Header: h, Blocks: map[*ir.BasicBlock]bool{}}
				byHeader[h] = l
				order = append(order, h)
			}
			for b := range blocks {
				l.Blocks[b] = true
			}
			l.Latches = append(l.Latches, n)
		}
	}

	loops := make([]*ir.Loop, 0, len(order))
	for _, h := range order {
		loops = append(loops, byHeader[h])
	}

	for _, l := range loops {
		l.Exits = nil
		for b := range l.Blocks {
			for _, s := range b.Succs {
				if !l.Blocks[s] {
					l.Exits = append(l.Exits, s)
				}
			}
		}
	}

	nestLoops(loops)

	var top []*ir.Loop
	for _, l := range loops {
		if l.Parent == nil {
			top = append(top, l)
		}
		for b := range l.Blocks {
			b.LoopDepth++
		}
	}
	// Assign each block's innermost loop: the loop containing it with
	// the largest block count is the outermost; re-walk so the
	// smallest (innermost) wins by visiting loops largest-first then
	// overwriting.
	byBlockCountDesc := append([]*ir.Loop(nil), loops...)
	sort.Slice(byBlockCountDesc, func(i, j int) bool { return len(byBlockCountDesc[i].Blocks) > len(byBlockCountDesc[j].Blocks) })
	for _, l := range byBlockCountDesc {
		for b := range l.Blocks {
			b.Loop = l
		}
	}

	fn.Loops = top
	fn.MarkLoopsValid()
	return nil
}

// loopBlockSet collects the loop's block set by reverse reachability
// from the back-edge source up to (and including) the header (§4.6).
func loopBlockSet(header, latch *ir.BasicBlock) map[*ir.BasicBlock]bool {
	blocks := map[*ir.BasicBlock]bool{header: true}
	if latch == header {
		return blocks
	}
	blocks[latch] = true
	worklist := []*ir.BasicBlock{latch}
	for len(worklist) > 0 {
		m := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, p := range m.Preds {
			if !blocks[p] {
				blocks[p] = true
				worklist = append(worklist, p)
			}
		}
	}
	return blocks
}

// nestLoops builds parent/child links (§4.6): sort loops by block
// count ascending, and for each loop pick the smallest loop whose
// block set contains its header as parent.
func nestLoops(loops []*ir.Loop) {
	sorted := append([]*ir.Loop(nil), loops...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Blocks) < len(sorted[j].Blocks) })

	for i, l1 := range sorted {
		var parent *ir.Loop
		for j := i + 1; j < len(sorted); j++ {
			l2 := sorted[j]
			if l2 != l1 && l2.Blocks[l1.Header] {
				parent = l2
				break
			}
		}
		l1.Parent = parent
		if parent != nil {
			parent.Children = append(parent.Children, l1)
		}
	}
}
