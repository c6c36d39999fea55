// Package transform implements the fixed-point transformation pipeline
// (§4.7–§4.18): twelve passes that rewrite IR in place while preserving
// SSA invariants, driven by internal/passmgr.
package transform

import (
	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

// Mem2Reg promotes scalar Allocas to SSA values (§4.7). A candidate
// Alloca allocates a non-aggregate type and is used only as a Load
// pointer or a Store's pointer operand (never stored as a value).
func Mem2Reg(fn *ir.Function, _ *diagnostics.Sink) bool {
	if fn.Entry == nil {
		return false
	}
	if !fn.DomsValid() {
		analysis.ComputeDominators(fn)
	}

	changed := false
	for _, alloca := range collectMem2RegCandidates(fn) {
		promoteAlloca(fn, alloca)
		changed = true
	}
	return changed
}

func collectMem2RegCandidates(fn *ir.Function) []*ir.Instruction {
	var out []*ir.Instruction
	for _, b := range fn.Blocks() {
		for _, inst := range b.Instructions() {
			if inst.Op == ir.OpAlloca && !inst.AllocType.IsAggregate() && allUsesPromotable(inst) {
				out = append(out, inst)
			}
		}
	}
	return out
}

func allUsesPromotable(alloca *ir.Instruction) bool {
	for _, u := range ir.Uses(alloca) {
		switch u.User.Op {
		case ir.OpLoad:
		case ir.OpStore:
			if !isStorePointerOperand(u.User, u) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func isStorePointerOperand(store *ir.Instruction, u *ir.Operand) bool {
	ops := store.Operands()
	return len(ops) > 1 && ops[1] == u
}

// promoteAlloca places PHIs at the iterated dominance frontier of the
// alloca's store sites, then renames loads/stores to SSA values via a
// dominator-tree DFS with a per-variable version stack (§4.7).
func promoteAlloca(fn *ir.Function, alloca *ir.Instruction) {
	defBlocks := storeBlocks(alloca)
	if len(defBlocks) == 0 {
		// Never stored: every load reads the type's zero value.
		for _, u := range ir.Uses(alloca) {
			if u.User.Op == ir.OpLoad {
				ir.ReplaceAllUsesWith(u.User, ir.ZeroOf(alloca.AllocType))
				ir.Erase(u.User)
			}
		}
		if !ir.HasUses(alloca) {
			ir.Erase(alloca)
		}
		return
	}

	sites := analysis.IteratedDominanceFrontier(defBlocks)

	phiFor := make(map[*ir.BasicBlock]*ir.Instruction, len(sites))
	builder := ir.NewBuilder(fn.Arena)
	for _, site := range sites {
		phiFor[site] = builder.CreatePhi(site, alloca.AllocType, alloca.Name)
	}

	rs := &renameState{alloca: alloca, phiFor: phiFor}
	rs.visit(fn.Entry)

	for _, inst := range rs.removeList {
		ir.Erase(inst)
	}
	if !ir.HasUses(alloca) {
		ir.Erase(alloca)
	}
}

func storeBlocks(alloca *ir.Instruction) []*ir.BasicBlock {
	seen := map[*ir.BasicBlock]bool{}
	var out []*ir.BasicBlock
	for _, u := range ir.Uses(alloca) {
		if u.User.Op == ir.OpStore && isStorePointerOperand(u.User, u) {
			if blk := u.User.Parent; !seen[blk] {
				seen[blk] = true
				out = append(out, blk)
			}
		}
	}
	return out
}

type renameState struct {
	alloca     *ir.Instruction
	phiFor     map[*ir.BasicBlock]*ir.Instruction
	stack      []ir.Value
	removeList []*ir.Instruction
}

func (rs *renameState) current() ir.Value {
	if len(rs.stack) == 0 {
		return ir.ZeroOf(rs.alloca.AllocType)
	}
	return rs.stack[len(rs.stack)-1]
}

func (rs *renameState) visit(b *ir.BasicBlock) {
	mark := len(rs.stack)
	if phi, ok := rs.phiFor[b]; ok {
		rs.stack = append(rs.stack, phi)
	}

	for _, inst := range b.Instructions() {
		switch inst.Op {
		case ir.OpLoad:
			if inst.Operand(0).Ref == rs.alloca {
				ir.ReplaceAllUsesWith(inst, rs.current())
				rs.removeList = append(rs.removeList, inst)
			}
		case ir.OpStore:
			ops := inst.Operands()
			if len(ops) > 1 && ops[1].Ref == rs.alloca {
				rs.stack = append(rs.stack, ops[0].Ref)
				rs.removeList = append(rs.removeList, inst)
			}
		}
	}

	for _, s := range b.Succs {
		if phi, ok := rs.phiFor[s]; ok {
			ir.AddPhiIncoming(phi, rs.current(), b)
		}
	}

	for _, c := range b.DomChildren {
		rs.visit(c)
	}

	rs.stack = rs.stack[:mark]
}
