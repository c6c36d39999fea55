package transform

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

const inlineMaxCalleeInstructions = 80

type returnSite struct {
	val   ir.Value
	block *ir.BasicBlock
}

// Inliner inlines direct calls to small, non-recursive functions at
// their call sites (§4.18). A call's block is split into a pre-call
// half and a post-call half; the callee's blocks are cloned into the
// caller with parameters substituted by the call's actual arguments
// and every Ret turned into a branch to the post-call block; when the
// callee returns from more than one site, a PHI in the post-call block
// merges the return values in place of the call's result. Runs to a
// per-function fixed point, one call site at a time, since inlining
// one call can expose another.
func Inliner(mod *ir.Module, sink *diagnostics.Sink) bool {
	changed := false
	for _, fn := range mod.Functions {
		if fn.Extern {
			continue
		}
		for {
			call, callee, ok := findInlineCandidate(fn)
			if !ok {
				break
			}
			inlineCallSite(fn, call, callee)
			fn.InvalidateCFG()
			changed = true
		}
	}
	if changed {
		sink.Warnf("inline", mod.SourceFile, "inlined one or more call sites")
	}
	return changed
}

func findInlineCandidate(fn *ir.Function) (*ir.Instruction, *ir.Function, bool) {
	for _, b := range fn.Blocks() {
		for _, inst := range b.Instructions() {
			if inst.Op != ir.OpCall {
				continue
			}
			callee, ok := ir.CalleeOf(inst).(*ir.Function)
			if !ok || callee.Extern || callee == fn {
				continue
			}
			if countInstructions(callee) > inlineMaxCalleeInstructions {
				continue
			}
			if callsDirectly(callee, fn) {
				continue // would re-expand a recursive cycle
			}
			return inst, callee, true
		}
	}
	return nil, nil, false
}

func callsDirectly(from, to *ir.Function) bool {
	for _, b := range from.Blocks() {
		for _, inst := range b.Instructions() {
			if inst.Op == ir.OpCall && ir.CalleeOf(inst) == ir.Value(to) {
				return true
			}
		}
	}
	return false
}

func inlineCallSite(fn *ir.Function, call *ir.Instruction, callee *ir.Function) {
	origBlock := call.Parent
	insts := origBlock.Instructions()
	idx := -1
	for i, in := range insts {
		if in == call {
			idx = i
			break
		}
	}
	args := ir.ArgsOf(call)
	retType := call.T
	callName := call.Name

	post := origBlock.SplitAfter(insts[idx+1], fn, origBlock.Label+".post_call")
	ir.Erase(call)

	blockMap := map[*ir.BasicBlock]*ir.BasicBlock{}
	entryBuilder := ir.NewBuilder(fn.Arena)
	for _, cb := range callee.Blocks() {
		blockMap[cb] = entryBuilder.CreateBlock(fn, fmt.Sprintf("%s.inl.%s", callee.Name, cb.Label))
	}

	argMap := map[*ir.Param]ir.Value{}
	for i, p := range callee.Params {
		argMap[p] = args[i]
	}

	valMap := map[*ir.Instruction]*ir.Instruction{}
	remapVal := func(v ir.Value) ir.Value {
		if p, ok := v.(*ir.Param); ok {
			if rv, ok := argMap[p]; ok {
				return rv
			}
		}
		if inst, ok := v.(*ir.Instruction); ok {
			if nv, ok := valMap[inst]; ok {
				return nv
			}
		}
		return v
	}
	remapBlk := func(bb *ir.BasicBlock) *ir.BasicBlock {
		if nb, ok := blockMap[bb]; ok {
			return nb
		}
		return bb
	}

	// Pass 1: pre-create every cloned PHI so forward/back-edge operand
	// references have somewhere to resolve to.
	for _, cb := range callee.Blocks() {
		nb := blockMap[cb]
		b := ir.NewBuilder(fn.Arena)
		for _, phi := range cb.Phis() {
			clone := b.CreatePhi(nb, phi.T, phi.Name)
			valMap[phi] = clone
		}
	}

	// Pass 2: clone every non-PHI instruction; a Ret becomes a branch
	// to the post-call block and its value (if any) is recorded.
	var returns []returnSite
	for _, cb := range callee.Blocks() {
		nb := blockMap[cb]
		b := ir.NewBuilder(fn.Arena)
		b.SetInsertPoint(nb, nil)
		for _, inst := range cb.Instructions() {
			if inst.Op == ir.OpPhi {
				continue
			}
			if inst.Op == ir.OpRet {
				var retVal ir.Value
				if ops := inst.Operands(); len(ops) == 1 {
					retVal = remapVal(ops[0].Ref)
				}
				b.CreateBr(post)
				returns = append(returns, returnSite{val: retVal, block: nb})
				continue
			}
			valMap[inst] = cloneCalleeInstruction(fn, b, inst, remapVal, remapBlk)
		}
	}

	// Pass 3: wire up the cloned PHIs' incoming pairs now that every
	// instruction has a valMap entry.
	for _, cb := range callee.Blocks() {
		for _, phi := range cb.Phis() {
			clone := valMap[phi]
			for _, in := range ir.Incoming(phi) {
				ir.AddPhiIncoming(clone, remapVal(in.Val), remapBlk(in.Blk))
			}
		}
	}

	entryClone := blockMap[callee.Entry]
	tail := ir.NewBuilder(fn.Arena)
	tail.SetInsertPoint(origBlock, nil)
	tail.CreateBr(entryClone)

	if retType != nil {
		var mergeVal ir.Value
		if len(returns) == 1 {
			mergeVal = returns[0].val
		} else {
			mergeBuilder := ir.NewBuilder(fn.Arena)
			mergePhi := mergeBuilder.CreatePhi(post, retType, callName+".inl")
			for _, rs := range returns {
				ir.AddPhiIncoming(mergePhi, rs.val, rs.block)
			}
			mergeVal = mergePhi
		}
		ir.ReplaceAllUsesWith(call, mergeVal)
	}
}

func cloneCalleeInstruction(fn *ir.Function, b *ir.Builder, inst *ir.Instruction, remapVal func(ir.Value) ir.Value, remapBlk func(*ir.BasicBlock) *ir.BasicBlock) *ir.Instruction {
	ops := inst.Operands()
	switch inst.Op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpSRem,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr:
		return b.CreateBinOp(inst.Op, remapVal(ops[0].Ref), remapVal(ops[1].Ref), inst.Name)
	case ir.OpICmp:
		return b.CreateICmp(inst.Pred, remapVal(ops[0].Ref), remapVal(ops[1].Ref), inst.Name)
	case ir.OpFCmp:
		return b.CreateFCmp(inst.Pred, remapVal(ops[0].Ref), remapVal(ops[1].Ref), inst.Name)
	case ir.OpSExt:
		return b.CreateSExt(remapVal(ops[0].Ref), inst.T, inst.Name)
	case ir.OpZExt:
		return b.CreateZExt(remapVal(ops[0].Ref), inst.T, inst.Name)
	case ir.OpTrunc:
		return b.CreateTrunc(remapVal(ops[0].Ref), inst.T, inst.Name)
	case ir.OpFPExt:
		return b.CreateFPExt(remapVal(ops[0].Ref), inst.T, inst.Name)
	case ir.OpFPTrunc:
		return b.CreateFPTrunc(remapVal(ops[0].Ref), inst.T, inst.Name)
	case ir.OpSIToFP:
		return b.CreateSIToFP(remapVal(ops[0].Ref), inst.T, inst.Name)
	case ir.OpFPToSI:
		return b.CreateFPToSI(remapVal(ops[0].Ref), inst.T, inst.Name)
	case ir.OpAlloca:
		return b.CreateAlloca(fn, inst.AllocType, inst.Name)
	case ir.OpGEP:
		return b.CreateGEP(remapVal(ops[0].Ref), remapVal(ops[1].Ref), inst.Inbounds, inst.Name)
	case ir.OpLoad:
		return b.CreateLoad(remapVal(ops[0].Ref), inst.Name)
	case ir.OpStore:
		return b.CreateStore(remapVal(ops[0].Ref), remapVal(ops[1].Ref))
	case ir.OpCall:
		callee := remapVal(ir.CalleeOf(inst))
		args := ir.ArgsOf(inst)
		newArgs := make([]ir.Value, len(args))
		for i, a := range args {
			newArgs[i] = remapVal(a)
		}
		retType := inst.T
		if retType == nil {
			retType = ir.Void()
		}
		return b.CreateCall(callee, newArgs, retType, inst.Name)
	case ir.OpBr:
		if len(ops) == 1 {
			return b.CreateBr(remapBlk(ops[0].Blk))
		}
		return b.CreateCondBr(remapVal(ops[0].Ref), remapBlk(ops[1].Blk), remapBlk(ops[2].Blk))
	default:
		panic(fmt.Sprintf("inline: cannot clone opcode %s", inst.Op))
	}
}
