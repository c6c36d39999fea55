package transform

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

const (
	maxUnrollBodySize = 256
	tripCountSimCap   = 1 << 20
)

// MaxLoopUnrollFactor bounds the unrolling factor LoopUnroll will
// choose (§6.4 max_loop_unroll_count). internal/passmgr sets this from
// PassConfig before invoking the pass; it defaults to the spec's
// default of 4 so the pass is still usable standalone (e.g. in tests).
var MaxLoopUnrollFactor = 4

// LoopUnroll unrolls by a factor (the largest one in
// [2, MaxLoopUnrollFactor] dividing the trip count) loops whose trip
// count is known at compile time: the body is replicated factor times
// inside the loop, which stays in place, and because the trip count is
// evenly divisible no epilogue is needed (§4.16, §9 open question:
// exact-divisibility-only). It only
// handles the common single-block-body shape this front end produces
// for loops without break/continue/nested branching — a header PHI
// per loop-carried variable, one body block with the header as its
// sole predecessor, and an unconditional back edge. Anything else
// (nested control flow inside the body) is left alone.
func LoopUnroll(fn *ir.Function, sink *diagnostics.Sink) bool {
	if fn.Entry == nil {
		return false
	}
	if !fn.DomsValid() {
		if err := analysis.ComputeDominators(fn); err != nil {
			sink.Warnf("loopunroll", fn.Name, "%s", err)
			return false
		}
	}
	if !fn.LoopsValid() {
		if err := analysis.FindLoops(fn); err != nil {
			sink.Warnf("loopunroll", fn.Name, "%s", err)
			return false
		}
	}

	changed := false
	for _, loop := range collectLoopsInnerFirst(fn) {
		if unrollLoop(fn, loop, sink) {
			changed = true
		}
	}
	if changed {
		fn.InvalidateCFG()
	}
	return changed
}

func unrollLoop(fn *ir.Function, loop *ir.Loop, sink *diagnostics.Sink) bool {
	header := loop.Header
	body, ok := simpleSingleBlockBody(loop, header)
	if !ok {
		return false
	}
	if len(body.Instructions()) > maxUnrollBodySize {
		return false
	}

	tripCount, ok := computeTripCount(header, loop)
	if !ok {
		return false
	}

	factor := 0
	for f := MaxLoopUnrollFactor; f >= 2; f-- {
		if tripCount > 0 && tripCount%int64(f) == 0 {
			factor = f
			break
		}
	}
	if factor == 0 {
		return false
	}

	unrollChain(fn, loop, header, body, factor)
	sink.Warnf("loopunroll", fn.Name, "unrolled %s by factor %d (trip count %d)", header.Label, factor, tripCount)
	return true
}

// simpleSingleBlockBody returns the loop's sole non-header block when
// the loop has exactly that shape: two blocks total, the body has only
// the header as predecessor, carries no PHIs of its own, and ends in a
// bare unconditional branch back to the header.
func simpleSingleBlockBody(loop *ir.Loop, header *ir.BasicBlock) (*ir.BasicBlock, bool) {
	if len(loop.Blocks) != 2 {
		return nil, false
	}
	var body *ir.BasicBlock
	for b := range loop.Blocks {
		if b != header {
			body = b
		}
	}
	if body == nil {
		return nil, false
	}
	if len(body.Preds) != 1 || body.Preds[0] != header {
		return nil, false
	}
	if len(body.Phis()) != 0 {
		return nil, false
	}
	if len(loop.Latches) != 1 || loop.Latches[0] != body {
		return nil, false
	}
	term := body.Terminator()
	if term == nil || term.Op != ir.OpBr {
		return nil, false
	}
	if len(term.Operands()) != 1 {
		return nil, false
	}
	return body, true
}

// computeTripCount recognizes the header's condition as `biv PRED
// constant` (or its mirror) for a detected basic induction variable
// with a constant initial value, and simulates execution up to a
// generous cap to find the exact iteration count.
func computeTripCount(header *ir.BasicBlock, loop *ir.Loop) (int64, bool) {
	term := header.Terminator()
	if term == nil || term.Op != ir.OpBr {
		return 0, false
	}
	ops := term.Operands()
	if len(ops) != 3 {
		return 0, false
	}
	cmp, ok := ops[0].Ref.(*ir.Instruction)
	if !ok || cmp.Op != ir.OpICmp {
		return 0, false
	}
	cmpOps := cmp.Operands()
	lhs, rhs := cmpOps[0].Ref, cmpOps[1].Ref

	bivs := detectBIVs(loop)
	pred := cmp.Pred
	var biv *bivRecord
	var bound *ir.ConstantInt
	for _, r := range bivs {
		if lhs == ir.Value(r.phi) {
			if c, ok := ir.AsConstantInt(rhs); ok {
				biv, bound = r, c
			}
		} else if rhs == ir.Value(r.phi) {
			if c, ok := ir.AsConstantInt(lhs); ok {
				biv, bound, pred = r, c, mirrorPred(pred)
			}
		}
	}
	if biv == nil || bound == nil {
		return 0, false
	}
	init, ok := ir.AsConstantInt(biv.init)
	if !ok {
		return 0, false
	}
	return simulateTripCount(init.Val, biv.step.Val, bound.Val, pred)
}

func mirrorPred(p string) string {
	switch p {
	case "slt":
		return "sgt"
	case "sgt":
		return "slt"
	case "sle":
		return "sge"
	case "sge":
		return "sle"
	default:
		return p
	}
}

func simulateTripCount(init, step, bound int64, pred string) (int64, bool) {
	if step == 0 {
		return 0, false
	}
	i := init
	var count int64
	for count < tripCountSimCap {
		if !condHolds(pred, i, bound) {
			return count, true
		}
		i += step
		count++
	}
	return 0, false
}

func condHolds(pred string, a, b int64) bool {
	switch pred {
	case "eq":
		return a == b
	case "ne":
		return a != b
	case "slt":
		return a < b
	case "sle":
		return a <= b
	case "sgt":
		return a > b
	case "sge":
		return a >= b
	}
	return false
}

// unrollChain clones body factor-1 times, chaining each clone's
// loop-carried values off the previous clone's (or the original
// body's) computed next-iteration values, then rewires the header's
// PHIs to take their back-edge value from the final clone.
func unrollChain(fn *ir.Function, loop *ir.Loop, header, body *ir.BasicBlock, factor int) {
	phis := header.Phis()

	origLatch := map[*ir.Instruction]ir.Value{}
	for _, phi := range phis {
		for _, in := range ir.Incoming(phi) {
			if in.Blk == body {
				origLatch[phi] = in.Val
			}
		}
	}

	chain := []*ir.BasicBlock{body}
	latch := origLatch
	for k := 1; k < factor; k++ {
		subst := map[ir.Value]ir.Value{}
		for _, phi := range phis {
			subst[phi] = latch[phi]
		}
		clone, cloneMap := cloneBlock(fn, body, subst, fmt.Sprintf("%s.unroll%d", body.Label, k))

		newLatch := map[*ir.Instruction]ir.Value{}
		for _, phi := range phis {
			newLatch[phi] = remapThrough(origLatch[phi], cloneMap)
		}

		chain = append(chain, clone)
		latch = newLatch
	}
	// Every clone was copied while body still branched to header, so
	// each ends in `br header`; now link body -> clone1 -> ... -> last.
	for k := 1; k < len(chain); k++ {
		ir.RedirectEdge(chain[k-1], header, chain[k])
	}

	last := chain[len(chain)-1]
	for _, phi := range phis {
		ops := phi.Operands()
		for i := 0; i+1 < len(ops); i += 2 {
			if ops[i+1].Blk == body {
				ir.SetOperand(ops[i], latch[phi])
				ops[i+1].Blk = last
			}
		}
	}
}

func remapThrough(v ir.Value, cloneMap map[*ir.Instruction]*ir.Instruction) ir.Value {
	inst, ok := v.(*ir.Instruction)
	if !ok {
		return v
	}
	if nv, ok := cloneMap[inst]; ok {
		return nv
	}
	return v
}

// cloneBlock rebuilds orig's instructions in a freshly created block,
// substituting subst[v] for any operand matching a key in subst and
// otherwise following the growing old-to-new instruction map, so a
// clone's instructions refer to other instructions within the same
// clone rather than the original block's.
func cloneBlock(fn *ir.Function, orig *ir.BasicBlock, subst map[ir.Value]ir.Value, label string) (*ir.BasicBlock, map[*ir.Instruction]*ir.Instruction) {
	b := ir.NewBuilder(fn.Arena)
	nb := b.CreateBlock(fn, label)
	b.SetInsertPoint(nb, nil)

	valMap := map[*ir.Instruction]*ir.Instruction{}
	remap := func(v ir.Value) ir.Value {
		if repl, ok := subst[v]; ok {
			return repl
		}
		if inst, ok := v.(*ir.Instruction); ok {
			if nv, ok := valMap[inst]; ok {
				return nv
			}
		}
		return v
	}

	for _, inst := range orig.Instructions() {
		valMap[inst] = cloneInstruction(b, inst, remap)
	}
	return nb, valMap
}

func cloneInstruction(b *ir.Builder, inst *ir.Instruction, remap func(ir.Value) ir.Value) *ir.Instruction {
	ops := inst.Operands()
	switch inst.Op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpSRem,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr:
		return b.CreateBinOp(inst.Op, remap(ops[0].Ref), remap(ops[1].Ref), inst.Name)
	case ir.OpICmp:
		return b.CreateICmp(inst.Pred, remap(ops[0].Ref), remap(ops[1].Ref), inst.Name)
	case ir.OpFCmp:
		return b.CreateFCmp(inst.Pred, remap(ops[0].Ref), remap(ops[1].Ref), inst.Name)
	case ir.OpSExt:
		return b.CreateSExt(remap(ops[0].Ref), inst.T, inst.Name)
	case ir.OpZExt:
		return b.CreateZExt(remap(ops[0].Ref), inst.T, inst.Name)
	case ir.OpTrunc:
		return b.CreateTrunc(remap(ops[0].Ref), inst.T, inst.Name)
	case ir.OpFPExt:
		return b.CreateFPExt(remap(ops[0].Ref), inst.T, inst.Name)
	case ir.OpFPTrunc:
		return b.CreateFPTrunc(remap(ops[0].Ref), inst.T, inst.Name)
	case ir.OpSIToFP:
		return b.CreateSIToFP(remap(ops[0].Ref), inst.T, inst.Name)
	case ir.OpFPToSI:
		return b.CreateFPToSI(remap(ops[0].Ref), inst.T, inst.Name)
	case ir.OpGEP:
		return b.CreateGEP(remap(ops[0].Ref), remap(ops[1].Ref), inst.Inbounds, inst.Name)
	case ir.OpLoad:
		return b.CreateLoad(remap(ops[0].Ref), inst.Name)
	case ir.OpStore:
		return b.CreateStore(remap(ops[0].Ref), remap(ops[1].Ref))
	case ir.OpCall:
		callee := remap(ir.CalleeOf(inst))
		args := ir.ArgsOf(inst)
		newArgs := make([]ir.Value, len(args))
		for i, a := range args {
			newArgs[i] = remap(a)
		}
		retType := inst.T
		if retType == nil {
			retType = ir.Void()
		}
		return b.CreateCall(callee, newArgs, retType, inst.Name)
	case ir.OpBr:
		if len(ops) == 1 {
			return b.CreateBr(ops[0].Blk)
		}
		return b.CreateCondBr(remap(ops[0].Ref), ops[1].Blk, ops[2].Blk)
	default:
		panic(fmt.Sprintf("loopunroll: cannot clone opcode %s", inst.Op))
	}
}
