package transform

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

// bivRecord is a basic induction variable: a header PHI with exactly
// two incoming edges, one from outside the loop carrying its initial
// value, one from a latch carrying phi+step for a compile-time
// constant step (§4.15). Variable or float steps are left alone; the
// SysY surface this IR lowers always steps a counter by a literal.
type bivRecord struct {
	phi    *ir.Instruction
	init   ir.Value
	step   *ir.ConstantInt
	update *ir.Instruction
}

// affine describes a derived induction variable as biv*scale+offset.
type affine struct {
	biv    *bivRecord
	scale  int64
	offset int64
}

// IndVarSimplify finds basic induction variables, derives an affine
// (scale, offset) descriptor for every other loop value computed from
// one by a fixed-point dataflow pass, and strength-reduces any
// non-trivial derived IV into its own preheader-seeded PHI that
// advances by step*scale each iteration instead of being recomputed
// with a multiply every time (§4.15).
func IndVarSimplify(fn *ir.Function, sink *diagnostics.Sink) bool {
	if fn.Entry == nil {
		return false
	}
	if !fn.DomsValid() {
		if err := analysis.ComputeDominators(fn); err != nil {
			sink.Warnf("indvars", fn.Name, "%s", err)
			return false
		}
	}
	if !fn.LoopsValid() {
		if err := analysis.FindLoops(fn); err != nil {
			sink.Warnf("indvars", fn.Name, "%s", err)
			return false
		}
	}

	changed := false
	for _, loop := range collectLoopsInnerFirst(fn) {
		if simplifyLoopIVs(fn, loop) {
			changed = true
		}
	}
	return changed
}

func simplifyLoopIVs(fn *ir.Function, loop *ir.Loop) bool {
	bivs := detectBIVs(loop)
	if len(bivs) == 0 {
		return false
	}

	known := map[*ir.Instruction]affine{}
	for _, r := range bivs {
		known[r.phi] = affine{biv: r, scale: 1, offset: 0}
	}

	for progress := true; progress; {
		progress = false
		for _, b := range fn.Blocks() {
			if !loop.Contains(b) {
				continue
			}
			for _, inst := range b.Instructions() {
				if inst.Op == ir.OpPhi {
					continue
				}
				if _, done := known[inst]; done {
					continue
				}
				if a, ok := deriveAffine(inst, known); ok {
					known[inst] = a
					progress = true
				}
			}
		}
	}

	return strengthReduceLoop(fn, loop, known)
}

// detectBIVs finds every header PHI matching the basic-induction-
// variable pattern.
func detectBIVs(loop *ir.Loop) []*bivRecord {
	var out []*bivRecord
	for _, phi := range loop.Header.Phis() {
		inc := ir.Incoming(phi)
		if len(inc) != 2 {
			continue
		}
		var init ir.Value
		var latchVal ir.Value
		haveInit, haveLatch := false, false
		for _, in := range inc {
			if loop.Contains(in.Blk) {
				latchVal, haveLatch = in.Val, true
			} else {
				init, haveInit = in.Val, true
			}
		}
		if !haveInit || !haveLatch {
			continue
		}
		update, ok := latchVal.(*ir.Instruction)
		if !ok {
			continue
		}
		step, ok := matchStep(phi, update)
		if !ok {
			continue
		}
		out = append(out, &bivRecord{phi: phi, init: init, step: step, update: update})
	}
	return out
}

// matchStep recognizes `phi + C` or `phi - C` for a constant C and
// returns the signed per-iteration step.
func matchStep(phi, update *ir.Instruction) (*ir.ConstantInt, bool) {
	ops := update.Operands()
	if len(ops) != 2 {
		return nil, false
	}
	switch update.Op {
	case ir.OpAdd:
		if ops[0].Ref == ir.Value(phi) {
			if c, ok := ir.AsConstantInt(ops[1].Ref); ok {
				return c, true
			}
		}
		if ops[1].Ref == ir.Value(phi) {
			if c, ok := ir.AsConstantInt(ops[0].Ref); ok {
				return c, true
			}
		}
	case ir.OpSub:
		if ops[0].Ref == ir.Value(phi) {
			if c, ok := ir.AsConstantInt(ops[1].Ref); ok {
				return &ir.ConstantInt{T: c.T, Val: -c.Val}, true
			}
		}
	}
	return nil, false
}

// deriveAffine propagates an affine descriptor one step through an
// Add/Sub/Mul whose other operand is a compile-time integer constant.
func deriveAffine(inst *ir.Instruction, known map[*ir.Instruction]affine) (affine, bool) {
	ops := inst.Operands()
	if len(ops) != 2 {
		return affine{}, false
	}
	lhsA, lok := lookupAffine(ops[0].Ref, known)
	rhsA, rok := lookupAffine(ops[1].Ref, known)
	lc, lcok := ir.AsConstantInt(ops[0].Ref)
	rc, rcok := ir.AsConstantInt(ops[1].Ref)

	switch inst.Op {
	case ir.OpAdd:
		if lok && rcok && !rok {
			return affine{biv: lhsA.biv, scale: lhsA.scale, offset: lhsA.offset + rc.Val}, true
		}
		if rok && lcok && !lok {
			return affine{biv: rhsA.biv, scale: rhsA.scale, offset: rhsA.offset + lc.Val}, true
		}
	case ir.OpSub:
		if lok && rcok && !rok {
			return affine{biv: lhsA.biv, scale: lhsA.scale, offset: lhsA.offset - rc.Val}, true
		}
	case ir.OpMul:
		if lok && rcok && !rok {
			return affine{biv: lhsA.biv, scale: lhsA.scale * rc.Val, offset: lhsA.offset * rc.Val}, true
		}
		if rok && lcok && !lok {
			return affine{biv: rhsA.biv, scale: rhsA.scale * lc.Val, offset: rhsA.offset * lc.Val}, true
		}
	}
	return affine{}, false
}

func lookupAffine(v ir.Value, known map[*ir.Instruction]affine) (affine, bool) {
	inst, ok := v.(*ir.Instruction)
	if !ok {
		return affine{}, false
	}
	a, ok := known[inst]
	return a, ok
}

// strengthReduceLoop replaces every non-trivial derived IV (scale != 1
// or offset != 0) with its own preheader-seeded PHI, sharing one new
// PHI across every instruction that derives the same (biv, scale,
// offset) triple.
func strengthReduceLoop(fn *ir.Function, loop *ir.Loop, known map[*ir.Instruction]affine) bool {
	changed := false
	newPhiFor := map[string]*ir.Instruction{}

	for _, b := range fn.Blocks() {
		if !loop.Contains(b) {
			continue
		}
		for _, inst := range b.Instructions() {
			a, ok := known[inst]
			if !ok || (a.scale == 1 && a.offset == 0) {
				continue
			}
			if inst == a.biv.phi || inst == a.biv.update {
				continue
			}
			key := fmt.Sprintf("%p|%d|%d", a.biv.phi, a.scale, a.offset)
			newPhi, exists := newPhiFor[key]
			if !exists {
				newPhi = materializeDerivedIV(fn, loop, a)
				if newPhi == nil {
					continue
				}
				newPhiFor[key] = newPhi
			}
			ir.ReplaceAllUsesWith(inst, newPhi)
			ir.Erase(inst)
			changed = true
		}
	}
	return changed
}

func materializeDerivedIV(fn *ir.Function, loop *ir.Loop, a affine) *ir.Instruction {
	ph := ensurePreheader(fn, loop)
	if ph == nil {
		return nil
	}
	t := a.biv.phi.T

	b := ir.NewBuilder(fn.Arena)
	b.SetInsertPoint(ph, ph.Terminator())
	initVal := a.biv.init
	if a.scale != 1 {
		initVal = b.CreateMul(initVal, &ir.ConstantInt{T: t, Val: a.scale}, "")
	}
	if a.offset != 0 {
		initVal = b.CreateAdd(initVal, &ir.ConstantInt{T: t, Val: a.offset}, "")
	}

	newPhi := b.CreatePhi(loop.Header, t, "")

	incr := a.biv.step.Val * a.scale
	b.SetInsertPoint(a.biv.update.Parent, a.biv.update)
	updated := b.CreateAdd(newPhi, &ir.ConstantInt{T: t, Val: incr}, "")

	for _, in := range ir.Incoming(a.biv.phi) {
		if loop.Contains(in.Blk) {
			b.AddIncoming(newPhi, updated, in.Blk)
		} else {
			b.AddIncoming(newPhi, initVal, in.Blk)
		}
	}
	return newPhi
}
