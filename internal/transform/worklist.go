package transform

import "github.com/sereinwalker/sysyopt/internal/ir"

// instWorklist is a FIFO deque with O(1) membership tracking (§9:
// "worklists are FIFO deques with presence tracking"), used by
// InstCombine; SCCP and ADCE keep plain slices of their own.
type instWorklist struct {
	items []*ir.Instruction
	inSet map[*ir.Instruction]bool
}

func newInstWorklist() *instWorklist {
	return &instWorklist{inSet: map[*ir.Instruction]bool{}}
}

func (w *instWorklist) push(i *ir.Instruction) {
	if i == nil || w.inSet[i] {
		return
	}
	w.inSet[i] = true
	w.items = append(w.items, i)
}

func (w *instWorklist) pop() (*ir.Instruction, bool) {
	if len(w.items) == 0 {
		return nil, false
	}
	i := w.items[0]
	w.items = w.items[1:]
	delete(w.inSet, i)
	return i, true
}

func (w *instWorklist) empty() bool { return len(w.items) == 0 }

func countInstructions(fn *ir.Function) int {
	n := 0
	for _, b := range fn.Blocks() {
		n += len(b.Instructions())
	}
	return n
}
