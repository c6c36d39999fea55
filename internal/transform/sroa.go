package transform

import (
	"fmt"

	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

// SROA splits an aggregate Alloca into per-element Allocas when every
// use is a GEP with a compile-time-constant index within bounds
// (§4.8). Because this IR's GEP steps one dimension at a time, a
// chained index into a multi-dimensional array is a second GEP over
// the first GEP's result rather than an extra index on the same
// instruction: rewiring the first GEP's users to the new per-element
// alloca is the whole rewrite, with no separate "residual GEP" to
// synthesize. New per-element allocas that are themselves arrays are
// re-enqueued so nested aggregates fully decompose.
func SROA(fn *ir.Function, _ *diagnostics.Sink) bool {
	changed := false
	worklist := collectAggregateAllocas(fn)
	for len(worklist) > 0 {
		a := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if a.Op != ir.OpAlloca || !a.AllocType.IsAggregate() || !canDecomposeAlloca(a) {
			continue
		}
		newAllocas := decomposeAlloca(fn, a)
		changed = true
		for _, na := range newAllocas {
			if na.AllocType.IsAggregate() {
				worklist = append(worklist, na)
			}
		}
	}
	return changed
}

func collectAggregateAllocas(fn *ir.Function) []*ir.Instruction {
	var out []*ir.Instruction
	for _, b := range fn.Blocks() {
		for _, inst := range b.Instructions() {
			if inst.Op == ir.OpAlloca && inst.AllocType.IsAggregate() {
				out = append(out, inst)
			}
		}
	}
	return out
}

func canDecomposeAlloca(a *ir.Instruction) bool {
	size := a.AllocType.Dims[0].Size
	for _, u := range ir.Uses(a) {
		if u.User.Op != ir.OpGEP {
			return false
		}
		ops := u.User.Operands()
		if len(ops) != 2 || ops[0] != u {
			return false
		}
		idx, ok := ir.AsConstantInt(ops[1].Ref)
		if !ok || idx.Val < 0 || idx.Val >= int64(size) {
			return false
		}
	}
	return true
}

func decomposeAlloca(fn *ir.Function, a *ir.Instruction) []*ir.Instruction {
	t := a.AllocType
	n := t.Dims[0].Size
	elemType := t.Elem
	if len(t.Dims) > 1 {
		elemType = &ir.Type{Kind: ir.TArray, Elem: t.Elem, Dims: t.Dims[1:]}
	}

	b := ir.NewBuilder(fn.Arena)
	perElement := make([]*ir.Instruction, n)
	for i := 0; i < n; i++ {
		perElement[i] = b.CreateAlloca(fn, elemType, fmt.Sprintf("%s.%d", a.Name, i))
	}

	for _, u := range ir.Uses(a) {
		gep := u.User
		idx, _ := ir.AsConstantInt(gep.Operand(1).Ref)
		ir.ReplaceAllUsesWith(gep, perElement[idx.Val])
		ir.Erase(gep)
	}
	ir.Erase(a)
	return perElement
}
