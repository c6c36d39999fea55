package transform

import (
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

type tailCallSite struct {
	block *ir.BasicBlock
	call  *ir.Instruction
	ret   *ir.Instruction
}

// TailCallElim rewrites direct self-recursive tail calls into a loop
// back to the function's entry, replacing every parameter with a PHI
// fed by the original argument on the first pass and by each tail
// call's argument on every subsequent one (§4.17). Only a call in tail
// position - the block's last two instructions are `call @f(...)` then
// a Ret returning exactly that call's result (or both void), with the
// call's result used nowhere else - is eliminated; anything looser
// (an intervening instruction, the result used again) is left as an
// ordinary call.
func TailCallElim(fn *ir.Function, sink *diagnostics.Sink) bool {
	if fn.Entry == nil {
		return false
	}
	sites := findTailCallSites(fn)
	if len(sites) == 0 {
		return false
	}

	header := fn.Entry
	b := ir.NewBuilder(fn.Arena)
	preheader := b.CreateBlock(fn, header.Label+".tailrecur.entry")
	b.SetInsertPoint(preheader, nil)
	b.CreateBr(header)

	phis := make([]*ir.Instruction, len(fn.Params))
	for i, p := range fn.Params {
		phi := b.CreatePhi(header, p.T, p.Name+".tr")
		ir.ReplaceAllUsesWith(p, phi)
		b.AddIncoming(phi, p, preheader)
		phis[i] = phi
	}

	for _, site := range sites {
		args := ir.ArgsOf(site.call)
		ir.Erase(site.ret)
		ir.Erase(site.call)

		sb := ir.NewBuilder(fn.Arena)
		sb.SetInsertPoint(site.block, nil)
		sb.CreateBr(header)
		for i, phi := range phis {
			sb.AddIncoming(phi, args[i], site.block)
		}
	}

	fn.Entry = preheader
	fn.InvalidateCFG()
	sink.Warnf("tailcall", fn.Name, "eliminated %d self-recursive tail call(s)", len(sites))
	return true
}

func findTailCallSites(fn *ir.Function) []tailCallSite {
	var sites []tailCallSite
	for _, b := range fn.Blocks() {
		insts := b.Instructions()
		if len(insts) < 2 {
			continue
		}
		ret := insts[len(insts)-1]
		call := insts[len(insts)-2]
		if ret.Op != ir.OpRet || call.Op != ir.OpCall {
			continue
		}
		if ir.CalleeOf(call) != ir.Value(fn) {
			continue
		}
		if len(ir.ArgsOf(call)) != len(fn.Params) {
			continue
		}
		retOps := ret.Operands()
		if call.HasResult() {
			if len(retOps) != 1 || retOps[0].Ref != ir.Value(call) {
				continue
			}
			if len(ir.Uses(call)) != 1 {
				continue
			}
		} else if len(retOps) != 0 {
			continue
		}
		sites = append(sites, tailCallSite{block: b, call: call, ret: ret})
	}
	return sites
}
