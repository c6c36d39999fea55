package transform

import (
	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

// latticeState classifies a value's compile-time knowledge (§4.10):
// Top means "not yet visited / no information", Constant carries a
// known value, Bottom means "provably varying".
type latticeState int

const (
	latTop latticeState = iota
	latConstant
	latBottom
)

type lattice struct {
	state latticeState
	cInt  *ir.ConstantInt
	cFP   *ir.ConstantFP
}

func constLattice(v ir.Value) lattice {
	if c, ok := ir.AsConstantInt(v); ok {
		return lattice{state: latConstant, cInt: c}
	}
	if c, ok := ir.AsConstantFP(v); ok {
		return lattice{state: latConstant, cFP: c}
	}
	return lattice{state: latBottom}
}

func (l lattice) equal(o lattice) bool {
	if l.state != o.state {
		return false
	}
	if l.state != latConstant {
		return true
	}
	if l.cInt != nil && o.cInt != nil {
		return l.cInt.Val == o.cInt.Val
	}
	if l.cFP != nil && o.cFP != nil {
		return l.cFP.Val == o.cFP.Val
	}
	return false
}

func (l lattice) toValue(t *ir.Type) (ir.Value, bool) {
	if l.state != latConstant {
		return nil, false
	}
	if l.cInt != nil {
		return &ir.ConstantInt{T: t, Val: l.cInt.Val}, true
	}
	if l.cFP != nil {
		return &ir.ConstantFP{T: t, Val: l.cFP.Val}, true
	}
	return nil, false
}

// meet combines two lattice values at a PHI (§4.10): Top is the
// identity (Top met with x is x, so Top met with Top stays Top), equal
// constants stay constant, and anything else falls to Bottom.
func meet(a, b lattice) lattice {
	if a.state == latTop {
		return b
	}
	if b.state == latTop {
		return a
	}
	if a.state == latConstant && b.state == latConstant && a.equal(b) {
		return a
	}
	return lattice{state: latBottom}
}

// sccpState tracks per-value lattice facts and per-block reachability
// for one function's sparse conditional constant propagation run.
type sccpState struct {
	fn         *ir.Function
	value      map[*ir.Instruction]lattice
	executable map[*ir.BasicBlock]bool
	cfgWL      []*ir.BasicBlock
	ssaWL      []*ir.Instruction
}

func (s *sccpState) lookup(v ir.Value) lattice {
	if ir.IsConstant(v) {
		return constLattice(v)
	}
	inst, ok := v.(*ir.Instruction)
	if !ok {
		return lattice{state: latBottom} // param, global: assumed varying
	}
	if l, ok := s.value[inst]; ok {
		return l
	}
	return lattice{state: latTop}
}

func (s *sccpState) setValue(inst *ir.Instruction, l lattice) {
	old, ok := s.value[inst]
	if ok && old.equal(l) {
		return
	}
	s.value[inst] = l
	for _, u := range ir.Uses(inst) {
		s.ssaWL = append(s.ssaWL, u.User)
	}
}

func (s *sccpState) markExecutable(b *ir.BasicBlock) {
	if s.executable[b] {
		return
	}
	s.executable[b] = true
	s.cfgWL = append(s.cfgWL, b)
}

// SCCP propagates constants through the CFG and SSA graph
// simultaneously (§4.10): a block is visited only once reachable, and
// a PHI only merges incoming values from executable predecessors.
func SCCP(fn *ir.Function, _ *diagnostics.Sink) bool {
	if fn.Entry == nil {
		return false
	}
	if !fn.DomsValid() {
		analysis.ComputeDominators(fn)
	}

	s := &sccpState{
		fn:         fn,
		value:      map[*ir.Instruction]lattice{},
		executable: map[*ir.BasicBlock]bool{},
	}
	s.markExecutable(fn.Entry)

	for len(s.cfgWL) > 0 || len(s.ssaWL) > 0 {
		for len(s.cfgWL) > 0 {
			b := s.cfgWL[0]
			s.cfgWL = s.cfgWL[1:]
			s.visitBlock(b)
		}
		for len(s.ssaWL) > 0 {
			inst := s.ssaWL[0]
			s.ssaWL = s.ssaWL[1:]
			if inst.Parent == nil || !s.executable[inst.Parent] {
				continue
			}
			s.visitInst(inst)
		}
	}

	return s.rewrite()
}

func (s *sccpState) visitBlock(b *ir.BasicBlock) {
	for _, inst := range b.Instructions() {
		if inst.Op == ir.OpPhi {
			s.visitInst(inst)
			continue
		}
		break
	}
	for _, inst := range b.Instructions() {
		if inst.Op != ir.OpPhi {
			s.visitInst(inst)
		}
	}
}

func (s *sccpState) visitInst(inst *ir.Instruction) {
	switch inst.Op {
	case ir.OpPhi:
		s.visitPhi(inst)
	case ir.OpBr:
		s.visitBr(inst)
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpSRem,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr:
		s.visitBinary(inst)
	case ir.OpICmp, ir.OpFCmp:
		s.visitCompare(inst)
	case ir.OpSExt, ir.OpZExt, ir.OpTrunc, ir.OpFPExt, ir.OpFPTrunc, ir.OpSIToFP, ir.OpFPToSI:
		s.visitCast(inst)
	default:
		if inst.HasResult() {
			s.setValue(inst, lattice{state: latBottom})
		}
	}
}

func (s *sccpState) visitPhi(phi *ir.Instruction) {
	result := lattice{state: latTop}
	for _, in := range ir.Incoming(phi) {
		if !s.executable[in.Blk] {
			continue
		}
		result = meet(result, s.lookup(in.Val))
	}
	s.setValue(phi, result)
}

func (s *sccpState) visitBr(br *ir.Instruction) {
	ops := br.Operands()
	if len(ops) == 1 {
		// Unconditional: operand 0 is the sole target block.
		s.markExecutable(ops[0].Blk)
		return
	}
	cond := s.lookup(ops[0].Ref)
	if cond.state == latConstant && cond.cInt != nil {
		if cond.cInt.Val != 0 {
			s.markExecutable(ops[1].Blk)
		} else {
			s.markExecutable(ops[2].Blk)
		}
		return
	}
	// Unknown or varying condition: both successors may execute.
	s.markExecutable(ops[1].Blk)
	s.markExecutable(ops[2].Blk)
}

func (s *sccpState) visitBinary(inst *ir.Instruction) {
	ops := inst.Operands()
	l, r := s.lookup(ops[0].Ref), s.lookup(ops[1].Ref)
	if l.state == latBottom || r.state == latBottom {
		s.setValue(inst, lattice{state: latBottom})
		return
	}
	if l.state == latTop || r.state == latTop {
		return // wait for more information
	}
	lv, _ := l.toValue(ops[0].Ref.ValueType())
	rv, _ := r.toValue(ops[1].Ref.ValueType())
	if v, ok := foldConstantBinary(inst.Op, lv, rv); ok {
		s.setValue(inst, constLattice(v))
		return
	}
	s.setValue(inst, lattice{state: latBottom})
}

func (s *sccpState) visitCompare(inst *ir.Instruction) {
	ops := inst.Operands()
	l, r := s.lookup(ops[0].Ref), s.lookup(ops[1].Ref)
	if l.state == latBottom || r.state == latBottom {
		s.setValue(inst, lattice{state: latBottom})
		return
	}
	if l.state == latTop || r.state == latTop {
		return
	}
	if l.cInt != nil && r.cInt != nil {
		if v, ok := foldICmp(inst.Pred, l.cInt.Val, r.cInt.Val); ok {
			s.setValue(inst, lattice{state: latConstant, cInt: &ir.ConstantInt{T: inst.T, Val: v}})
			return
		}
	}
	if l.cFP != nil && r.cFP != nil {
		if v, ok := foldFCmp(inst.Pred, l.cFP.Val, r.cFP.Val); ok {
			s.setValue(inst, lattice{state: latConstant, cInt: &ir.ConstantInt{T: inst.T, Val: v}})
			return
		}
	}
	s.setValue(inst, lattice{state: latBottom})
}

func (s *sccpState) visitCast(inst *ir.Instruction) {
	op0 := inst.Operand(0).Ref
	l := s.lookup(op0)
	if l.state == latBottom {
		s.setValue(inst, lattice{state: latBottom})
		return
	}
	if l.state == latTop {
		return
	}
	v, _ := l.toValue(op0.ValueType())
	folded := foldCast(inst.Op, v, inst.T)
	if folded == nil {
		s.setValue(inst, lattice{state: latBottom})
		return
	}
	s.setValue(inst, constLattice(folded))
}

func foldCast(op ir.Opcode, v ir.Value, to *ir.Type) ir.Value {
	switch op {
	case ir.OpSExt, ir.OpTrunc:
		if c, ok := ir.AsConstantInt(v); ok {
			return &ir.ConstantInt{T: to, Val: c.Val}
		}
	case ir.OpZExt:
		if c, ok := ir.AsConstantInt(v); ok {
			return &ir.ConstantInt{T: to, Val: c.Val & 1}
		}
	case ir.OpSIToFP:
		if c, ok := ir.AsConstantInt(v); ok {
			return &ir.ConstantFP{T: to, Val: float64(c.Val)}
		}
	case ir.OpFPToSI:
		if c, ok := ir.AsConstantFP(v); ok {
			return &ir.ConstantInt{T: to, Val: int64(c.Val)}
		}
	case ir.OpFPExt, ir.OpFPTrunc:
		if c, ok := ir.AsConstantFP(v); ok {
			return &ir.ConstantFP{T: to, Val: c.Val}
		}
	}
	return nil
}

// rewrite replaces every Constant-lattice instruction with its folded
// value and every constant-condition conditional branch with an
// unconditional one, reporting whether anything changed.
func (s *sccpState) rewrite() bool {
	changed := false
	for _, b := range s.fn.Blocks() {
		for _, inst := range b.Instructions() {
			if !inst.HasResult() || inst.Op == ir.OpAlloca {
				continue
			}
			l, ok := s.value[inst]
			if !ok || l.state != latConstant {
				continue
			}
			v, ok := l.toValue(inst.T)
			if !ok {
				continue
			}
			ir.ReplaceAllUsesWith(inst, v)
			ir.Erase(inst)
			changed = true
		}
	}
	for _, b := range s.fn.Blocks() {
		term := b.Terminator()
		if term == nil || term.Op != ir.OpBr {
			continue
		}
		ops := term.Operands()
		if len(ops) != 3 {
			continue
		}
		cond := s.lookup(ops[0].Ref)
		if cond.state != latConstant || cond.cInt == nil {
			continue
		}
		keep, drop := ops[1].Blk, ops[2].Blk
		if cond.cInt.Val == 0 {
			keep, drop = drop, keep
		}
		builder := ir.NewBuilder(s.fn.Arena)
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
