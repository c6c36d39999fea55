package ir

// BasicBlock is a label, its instruction list, CFG edges, and cached
// analysis results (§3.5). Cached fields are owned by internal/analysis
// and are only valid between a (re)build and the next CFG-invalidating
// edit (§5).
type BasicBlock struct {
	Label  string
	Parent *Function

	blockPrev, blockNext *BasicBlock // position within Parent's block list

	instHead, instTail *Instruction

	Preds []*BasicBlock
	Succs []*BasicBlock

	// Dominator-tree cache (internal/analysis), §4.5.
	PostOrderID int
	IDom        *BasicBlock
	DomChildren []*BasicBlock
	DomFrontier []*BasicBlock
	TIn, TOut   int

	// Natural-loop cache (internal/analysis), §4.6.
	LoopDepth int
	Loop      *Loop // innermost loop containing this block, nil if none
}

// Instructions returns the block's instructions in list order.
func (b *BasicBlock) Instructions() []*Instruction {
	var out []*Instruction
	for i := b.instHead; i != nil; i = i.next {
		out = append(out, i)
	}
	return out
}

// First and Last give O(1) access to the instruction list ends.
func (b *BasicBlock) First() *Instruction { return b.instHead }
func (b *BasicBlock) Last() *Instruction  { return b.instTail }

// Terminator returns the block's terminating instruction, or nil if
// the block is not yet closed (only legal mid-construction).
func (b *BasicBlock) Terminator() *Instruction {
	if b.instTail != nil && b.instTail.Op.IsTerminator() {
		return b.instTail
	}
	return nil
}

// MergeInto splices b's instructions onto the end of dst's instruction
// list and empties b (§4.13: sequential block merging collapses a
// block into its sole predecessor). Operand and use-def links are
// untouched; only block-list membership and Parent change.
func (b *BasicBlock) MergeInto(dst *BasicBlock) {
	for i := b.instHead; i != nil; {
		next := i.next
		i.Parent = dst
		i.prev, i.next = nil, nil
		if dst.instTail == nil {
			dst.instHead, dst.instTail = i, i
		} else {
			dst.instTail.next = i
			i.prev = dst.instTail
			dst.instTail = i
		}
		i = next
	}
	b.instHead, b.instTail = nil, nil
}

// SplitAfter moves every instruction from at onward (at included) out
// of b into a freshly created successor block, transferring b's CFG
// successor edges along with the terminator that defines them (§4.18:
// inlining splits a call's block into a pre-call and post-call half).
// at must not be a PHI. b is left with no terminator; the caller must
// append one (typically an unconditional branch into the inlined
// callee's entry clone).
func (b *BasicBlock) SplitAfter(at *Instruction, fn *Function, label string) *BasicBlock {
	nb := &BasicBlock{Label: label, Parent: fn}
	fn.appendBlock(nb)

	prev := at.prev
	for i := at; i != nil; {
		next := i.next
		i.Parent = nb
		if nb.instTail == nil {
			nb.instHead, nb.instTail = i, i
			i.prev, i.next = nil, nil
		} else {
			nb.instTail.next = i
			i.prev = nb.instTail
			i.next = nil
			nb.instTail = i
		}
		i = next
	}
	if prev != nil {
		prev.next = nil
	} else {
		b.instHead = nil
	}
	b.instTail = prev

	nb.Succs = b.Succs
	for _, s := range nb.Succs {
		for i, p := range s.Preds {
			if p == b {
				s.Preds[i] = nb
			}
		}
	}
	b.Succs = nil
	return nb
}

// Phis returns the block's leading Phi instructions, in list order.
func (b *BasicBlock) Phis() []*Instruction {
	var out []*Instruction
	for i := b.instHead; i != nil && i.Op == OpPhi; i = i.next {
		out = append(out, i)
	}
	return out
}

// Loop is a natural loop (§4.6): a header dominating every block in
// Blocks, discovered from one or more back edges.
type Loop struct {
	Header  *BasicBlock
	Blocks  map[*BasicBlock]bool
	Exits   []*BasicBlock
	Parent  *Loop
	Children []*Loop
	Preheader *BasicBlock // nil until LICM/IndVarSimplify synthesize one
	Latches []*BasicBlock // blocks with a back edge into Header
}

// Contains reports whether b is one of the loop's blocks.
func (l *Loop) Contains(b *BasicBlock) bool { return l.Blocks[b] }
