package transform

import (
	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

// LICM hoists loop-invariant instructions into a synthesized
// pre-header (§4.14). Loops are processed inner-first so an
// instruction hoisted out of an inner loop becomes a candidate for the
// enclosing loop on the same pass. Only opcodes safe to speculate are
// considered (no Load/Store/Call/Alloca/Phi, and never a trapping
// SDiv/SRem), and a candidate must have every operand defined outside
// the loop and dominate every loop exit before it is moved.
func LICM(fn *ir.Function, sink *diagnostics.Sink) bool {
	if fn.Entry == nil {
		return false
	}
	if !fn.DomsValid() {
		if err := analysis.ComputeDominators(fn); err != nil {
			sink.Warnf("licm", fn.Name, "%s", err)
			return false
		}
	}
	if !fn.LoopsValid() {
		if err := analysis.FindLoops(fn); err != nil {
			sink.Warnf("licm", fn.Name, "%s", err)
			return false
		}
	}

	changed := false
	for _, l := range collectLoopsInnerFirst(fn) {
		if licmLoop(fn, l, sink) {
			changed = true
		}
	}
	return changed
}

// ensurePreheader returns loop's pre-header, synthesizing one when
// absent. Synthesis assumes the single-entry-edge shape every
// structured if/while loop produces: exactly one predecessor of the
// header lies outside the loop. Loops that don't fit this shape (none
// should, from this front end) are left alone.
func ensurePreheader(fn *ir.Function, loop *ir.Loop) *ir.BasicBlock {
	if loop.Preheader != nil {
		return loop.Preheader
	}
	var external *ir.BasicBlock
	for _, p := range loop.Header.Preds {
		if loop.Contains(p) {
			continue
		}
		if external != nil {
			return nil // more than one entry edge: not a structured loop
		}
		external = p
	}
	if external == nil {
		return nil
	}

	b := ir.NewBuilder(fn.Arena)
	ph := b.CreateBlock(fn, loop.Header.Label+".preheader")
	ir.RedirectEdge(external, loop.Header, ph)
	for _, phi := range loop.Header.Phis() {
		for _, op := range phi.Operands() {
			if op.Blk == external {
				op.Blk = ph
			}
		}
	}
	b.SetInsertPoint(ph, nil)
	b.CreateBr(loop.Header)

	loop.Preheader = ph
	for p := loop.Parent; p != nil; p = p.Parent {
		p.Blocks[ph] = true
	}
	fn.InvalidateCFG()
	return ph
}

func licmLoop(fn *ir.Function, loop *ir.Loop, sink *diagnostics.Sink) bool {
	ph := ensurePreheader(fn, loop)
	if ph == nil {
		return false
	}
	if !fn.DomsValid() {
		if err := analysis.ComputeDominators(fn); err != nil {
			sink.Warnf("licm", fn.Name, "%s", err)
			return false
		}
	}

	changed := false
	for {
		moved := false
		for _, b := range fn.Blocks() {
			if !loop.Contains(b) {
				continue
			}
			for _, inst := range b.Instructions() {
				if !canHoist(inst) {
					continue
				}
				if !loopInvariant(loop, inst) {
					continue
				}
				if !dominatesAllExits(loop, inst.Parent) {
					continue
				}
				term := ph.Terminator()
				ir.MoveBefore(term, inst)
				moved = true
			}
		}
		if moved {
			changed = true
		} else {
			break
		}
	}
	return changed
}

func canHoist(inst *ir.Instruction) bool {
	return inst.IsCSEable() && !inst.Op.MayTrap()
}

func loopInvariant(loop *ir.Loop, inst *ir.Instruction) bool {
	for _, op := range inst.Operands() {
		if op.Ref != nil && !isLoopInvariantValue(loop, op.Ref) {
			return false
		}
	}
	return true
}

func dominatesAllExits(loop *ir.Loop, b *ir.BasicBlock) bool {
	for _, exit := range loop.Exits {
		if !analysis.Dominates(b, exit) {
			return false
		}
	}
	return true
}
