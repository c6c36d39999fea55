package transform

import (
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

const instCombineGuardMultiplier = 64

// InstCombine is the worklist-driven peephole optimizer (§4.9):
// constant folding, commutative canonicalization, algebraic
// identities, strength reduction, comparison folding, and PHI
// simplification, iterated until the worklist is empty. Replacing a
// value re-enqueues its users; editing an instruction's operands in
// place re-enqueues the instruction itself.
func InstCombine(fn *ir.Function, sink *diagnostics.Sink) bool {
	wl := newInstWorklist()
	for _, b := range fn.Blocks() {
		for _, inst := range b.Instructions() {
			if inst.IsCSEable() || inst.Op == ir.OpPhi {
				wl.push(inst)
			}
		}
	}

	changed := false
	guard := 0
	maxGuard := instCombineGuardMultiplier*countInstructions(fn) + instCombineGuardMultiplier
	for !wl.empty() {
		guard++
		if guard > maxGuard {
			sink.Warnf("instcombine", fn.Name, "worklist iteration bound (%d) exceeded, stopping with partial result", maxGuard)
			break
		}
		inst, ok := wl.pop()
		if !ok {
			break
		}
		if combineOne(fn, inst, wl) {
			changed = true
		}
	}
	return changed
}

// combineOne tries every applicable rewrite for inst in turn, applying
// (and enqueueing the fallout of) the first one that fires.
func combineOne(fn *ir.Function, inst *ir.Instruction, wl *instWorklist) bool {
	if inst.Parent == nil {
		return false // already erased by an earlier rewrite this pass
	}
	switch inst.Op {
	case ir.OpPhi:
		return combinePhi(inst, wl)
	case ir.OpICmp, ir.OpFCmp:
		return combineCompare(inst, wl)
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpSRem,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr:
		return combineBinary(fn, inst, wl)
	default:
		return false
	}
}

// enqueueUsers pushes every current user of inst onto wl. Call before
// mutating inst's own operands or replacing it, so downstream uses get
// re-examined.
func enqueueUsers(inst *ir.Instruction, wl *instWorklist) {
	for _, u := range ir.Uses(inst) {
		wl.push(u.User)
	}
}

// replaceValue retargets inst's uses to v, erases inst, and enqueues
// whatever used to consume inst's result.
func replaceValue(inst *ir.Instruction, v ir.Value, wl *instWorklist) {
	enqueueUsers(inst, wl)
	ir.ReplaceAllUsesWith(inst, v)
	ir.Erase(inst)
}

// replaceWithNewInst builds a replacement instruction immediately
// before old via mk, rewires old's uses to it, erases old, and
// enqueues both the new instruction and old's former users.
func replaceWithNewInst(fn *ir.Function, old *ir.Instruction, mk func(b *ir.Builder) *ir.Instruction, wl *instWorklist) *ir.Instruction {
	b := ir.NewBuilder(fn.Arena)
	b.SetInsertPoint(old.Parent, old)
	n := mk(b)
	enqueueUsers(old, wl)
	ir.ReplaceAllUsesWith(old, n)
	ir.Erase(old)
	wl.push(n)
	return n
}

func sameValue(a, b ir.Value) bool {
	if a == b {
		return true
	}
	if ca, ok := ir.AsConstantInt(a); ok {
		if cb, ok := ir.AsConstantInt(b); ok {
			return ca.Val == cb.Val && ca.T.Equal(cb.T, true)
		}
	}
	if ca, ok := ir.AsConstantFP(a); ok {
		if cb, ok := ir.AsConstantFP(b); ok {
			return ca.Val == cb.Val && ca.T.Equal(cb.T, true)
		}
	}
	return false
}

// ---- PHI simplification (§4.9) --------------------------------------

// combinePhi replaces a PHI whose every non-self incoming value is the
// same value (including the degenerate single-predecessor case) with
// that value directly.
func combinePhi(phi *ir.Instruction, wl *instWorklist) bool {
	var unique ir.Value
	for _, in := range ir.Incoming(phi) {
		if in.Val == ir.Value(phi) {
			continue
		}
		if unique == nil {
			unique = in.Val
			continue
		}
		if !sameValue(unique, in.Val) {
			return false
		}
	}
	if unique == nil {
		return false
	}
	replaceValue(phi, unique, wl)
	return true
}

// ---- binary operator combining (§4.9) --------------------------------

func combineBinary(fn *ir.Function, inst *ir.Instruction, wl *instWorklist) bool {
	if canonicalizeCommutative(inst) {
		wl.push(inst)
		return true
	}

	ops := inst.Operands()
	lhs, rhs := ops[0].Ref, ops[1].Ref

	if v, ok := foldConstantBinary(inst.Op, lhs, rhs); ok {
		replaceValue(inst, v, wl)
		return true
	}
	if v, ok := identityBinary(inst.Op, lhs, rhs); ok {
		replaceValue(inst, v, wl)
		return true
	}
	if algebraicPattern(inst, lhs, rhs, wl) {
		return true
	}
	if strengthReduceBinary(fn, inst, lhs, rhs, wl) {
		return true
	}
	return false
}

// canonicalizeCommutative swaps operands so a constant (if any) sits
// on the right, simplifying every rule below (§4.9).
func canonicalizeCommutative(inst *ir.Instruction) bool {
	if !inst.Op.IsCommutative() {
		return false
	}
	ops := inst.Operands()
	lhs, rhs := ops[0].Ref, ops[1].Ref
	if ir.IsConstant(lhs) && !ir.IsConstant(rhs) {
		ir.SetOperand(ops[0], rhs)
		ir.SetOperand(ops[1], lhs)
		return true
	}
	return false
}

func foldConstantBinary(op ir.Opcode, lhs, rhs ir.Value) (ir.Value, bool) {
	li, lok := ir.AsConstantInt(lhs)
	ri, rok := ir.AsConstantInt(rhs)
	if lok && rok {
		return foldConstantInt(op, li, ri)
	}
	lf, lfok := ir.AsConstantFP(lhs)
	rf, rfok := ir.AsConstantFP(rhs)
	if lfok && rfok {
		return foldConstantFP(op, lf, rf)
	}
	return nil, false
}

func foldConstantInt(op ir.Opcode, l, r *ir.ConstantInt) (ir.Value, bool) {
	t := l.T
	switch op {
	case ir.OpAdd:
		return &ir.ConstantInt{T: t, Val: l.Val + r.Val}, true
	case ir.OpSub:
		return &ir.ConstantInt{T: t, Val: l.Val - r.Val}, true
	case ir.OpMul:
		return &ir.ConstantInt{T: t, Val: l.Val * r.Val}, true
	case ir.OpSDiv:
		if r.Val == 0 {
			return nil, false // never fold division by zero (§9 open question)
		}
		return &ir.ConstantInt{T: t, Val: l.Val / r.Val}, true
	case ir.OpSRem:
		if r.Val == 0 {
			return nil, false
		}
		return &ir.ConstantInt{T: t, Val: l.Val % r.Val}, true
	case ir.OpAnd:
		return &ir.ConstantInt{T: t, Val: l.Val & r.Val}, true
	case ir.OpOr:
		return &ir.ConstantInt{T: t, Val: l.Val | r.Val}, true
	case ir.OpXor:
		return &ir.ConstantInt{T: t, Val: l.Val ^ r.Val}, true
	case ir.OpShl:
		return &ir.ConstantInt{T: t, Val: l.Val << uint64(r.Val)}, true
	case ir.OpLShr:
		return &ir.ConstantInt{T: t, Val: int64(uint64(l.Val) >> uint64(r.Val))}, true
	case ir.OpAShr:
		return &ir.ConstantInt{T: t, Val: l.Val >> uint64(r.Val)}, true
	}
	return nil, false
}

func foldConstantFP(op ir.Opcode, l, r *ir.ConstantFP) (ir.Value, bool) {
	t := l.T
	switch op {
	case ir.OpFAdd:
		return &ir.ConstantFP{T: t, Val: l.Val + r.Val}, true
	case ir.OpFSub:
		return &ir.ConstantFP{T: t, Val: l.Val - r.Val}, true
	case ir.OpFMul:
		return &ir.ConstantFP{T: t, Val: l.Val * r.Val}, true
	case ir.OpFDiv:
		if r.Val == 0 {
			return nil, false
		}
		return &ir.ConstantFP{T: t, Val: l.Val / r.Val}, true
	}
	return nil, false
}

// identityBinary matches the algebraic identities that need no new
// instruction (§4.9): the result is always one of the two existing
// operands or a zero constant.
func identityBinary(op ir.Opcode, lhs, rhs ir.Value) (ir.Value, bool) {
	switch op {
	case ir.OpAdd:
		if isIntConst(rhs, 0) {
			return lhs, true
		}
	case ir.OpSub:
		if isIntConst(rhs, 0) {
			return lhs, true
		}
		if lhs == rhs {
			return &ir.ConstantInt{T: lhs.ValueType(), Val: 0}, true
		}
	case ir.OpMul:
		if isIntConst(rhs, 1) {
			return lhs, true
		}
		if isIntConst(rhs, 0) {
			return &ir.ConstantInt{T: lhs.ValueType(), Val: 0}, true
		}
	case ir.OpSDiv:
		if isIntConst(rhs, 1) {
			return lhs, true
		}
		if isIntConst(lhs, 0) && !isIntConst(rhs, 0) {
			return &ir.ConstantInt{T: lhs.ValueType(), Val: 0}, true
		}
	case ir.OpSRem:
		if isIntConst(rhs, 1) {
			return &ir.ConstantInt{T: lhs.ValueType(), Val: 0}, true
		}
	case ir.OpFAdd:
		if isFPConst(rhs, 0) {
			return lhs, true
		}
	case ir.OpFSub:
		if isFPConst(rhs, 0) {
			return lhs, true
		}
	case ir.OpFMul:
		if isFPConst(rhs, 1) {
			return lhs, true
		}
	case ir.OpFDiv:
		if isFPConst(rhs, 1) {
			return lhs, true
		}
	}
	return nil, false
}

func isIntConst(v ir.Value, n int64) bool {
	c, ok := ir.AsConstantInt(v)
	return ok && c.Val == n
}

func isFPConst(v ir.Value, n float64) bool {
	c, ok := ir.AsConstantFP(v)
	return ok && c.Val == n
}

// algebraicPattern matches (x-y)+y -> x: needs no new instruction, but
// requires looking through lhs's defining instruction.
func algebraicPattern(inst *ir.Instruction, lhs, rhs ir.Value, wl *instWorklist) bool {
	if inst.Op != ir.OpAdd {
		return false
	}
	sub, ok := lhs.(*ir.Instruction)
	if !ok || sub.Op != ir.OpSub {
		return false
	}
	subOps := sub.Operands()
	x, y := subOps[0].Ref, subOps[1].Ref
	if y != rhs {
		return false
	}
	replaceValue(inst, x, wl)
	return true
}

// strengthReduceBinary rewrites integer multiply-by-power-of-two to a
// shift, integer or float multiply-by-negative-one to a negation, and
// fmul by 2.0 to an fadd (§4.9). Divisions are not rewritten.
func strengthReduceBinary(fn *ir.Function, inst *ir.Instruction, lhs, rhs ir.Value, wl *instWorklist) bool {
	switch inst.Op {
	case ir.OpMul:
		if c, ok := ir.AsConstantInt(rhs); ok {
			if c.Val == -1 {
				replaceWithNewInst(fn, inst, func(b *ir.Builder) *ir.Instruction {
					return b.CreateSub(&ir.ConstantInt{T: lhs.ValueType(), Val: 0}, lhs, inst.Name)
				}, wl)
				return true
			}
			if shift, ok := log2PowerOfTwo(c.Val); ok {
				replaceWithNewInst(fn, inst, func(b *ir.Builder) *ir.Instruction {
					return b.CreateShl(lhs, &ir.ConstantInt{T: rhs.ValueType(), Val: int64(shift)}, inst.Name)
				}, wl)
				return true
			}
		}
	case ir.OpFMul:
		if isFPConst(rhs, -1) {
			replaceWithNewInst(fn, inst, func(b *ir.Builder) *ir.Instruction {
				return b.CreateFSub(&ir.ConstantFP{T: lhs.ValueType(), Val: 0}, lhs, inst.Name)
			}, wl)
			return true
		}
		if isFPConst(rhs, 2) {
			replaceWithNewInst(fn, inst, func(b *ir.Builder) *ir.Instruction {
				return b.CreateFAdd(lhs, lhs, inst.Name)
			}, wl)
			return true
		}
	}
	return false
}

func log2PowerOfTwo(v int64) (int, bool) {
	if v <= 1 {
		return 0, false
	}
	shift := 0
	for n := v; n > 1; n >>= 1 {
		if n&1 != 0 {
			return 0, false
		}
		shift++
	}
	return shift, true
}

// ---- comparison folding (§4.9) ----------------------------------------

func combineCompare(inst *ir.Instruction, wl *instWorklist) bool {
	ops := inst.Operands()
	lhs, rhs := ops[0].Ref, ops[1].Ref

	if li, lok := ir.AsConstantInt(lhs); lok {
		if ri, rok := ir.AsConstantInt(rhs); rok {
			if v, ok := foldICmp(inst.Pred, li.Val, ri.Val); ok {
				replaceValue(inst, &ir.ConstantInt{T: inst.T, Val: v}, wl)
				return true
			}
		}
	}
	if lf, lok := ir.AsConstantFP(lhs); lok {
		if rf, rok := ir.AsConstantFP(rhs); rok {
			if v, ok := foldFCmp(inst.Pred, lf.Val, rf.Val); ok {
				replaceValue(inst, &ir.ConstantInt{T: inst.T, Val: v}, wl)
				return true
			}
		}
	}
	return false
}

func foldICmp(pred string, l, r int64) (int64, bool) {
	switch pred {
	case "eq":
		return b2i(l == r), true
	case "ne":
		return b2i(l != r), true
	case "slt":
		return b2i(l < r), true
	case "sle":
		return b2i(l <= r), true
	case "sgt":
		return b2i(l > r), true
	case "sge":
		return b2i(l >= r), true
	}
	return 0, false
}

func foldFCmp(pred string, l, r float64) (int64, bool) {
	switch pred {
	case "oeq":
		return b2i(l == r), true
	case "one":
		return b2i(l != r), true
	case "olt":
		return b2i(l < r), true
	case "ole":
		return b2i(l <= r), true
	case "ogt":
		return b2i(l > r), true
	case "oge":
		return b2i(l >= r), true
	}
	return 0, false
}

func b2i(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
