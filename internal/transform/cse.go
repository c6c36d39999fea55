package transform

import (
	"fmt"
	"strings"

	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/diagnostics"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

// CSE eliminates redundant pure computations by walking the dominator
// tree pre-order with a scope-based available-expression table (§4.11):
// an expression computed in a block is visible to every block it
// dominates, and is forgotten again once the DFS backtracks out of
// that subtree.
func CSE(fn *ir.Function, _ *diagnostics.Sink) bool {
	if fn.Entry == nil {
		return false
	}
	if !fn.DomsValid() {
		analysis.ComputeDominators(fn)
	}

	table := map[string]*ir.Instruction{}
	changed := false

	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		var inserted []string
		for _, inst := range b.Instructions() {
			key, ok := exprKey(inst)
			if !ok {
				continue
			}
			if existing, found := table[key]; found {
				ir.ReplaceAllUsesWith(inst, existing)
				ir.Erase(inst)
				changed = true
				continue
			}
			table[key] = inst
			inserted = append(inserted, key)
		}
		for _, c := range b.DomChildren {
			visit(c)
		}
		for _, k := range inserted {
			delete(table, k)
		}
	}
	visit(fn.Entry)
	return changed
}

// exprKey builds the available-expression key for inst: opcode,
// result type, predicate (for ICmp/FCmp), and its operands' identities
// with commutative operand pairs canonicalized into a fixed order so
// "a+b" and "b+a" hash identically.
func exprKey(inst *ir.Instruction) (string, bool) {
	if !inst.IsCSEable() {
		return "", false
	}
	ops := inst.Operands()
	keys := make([]string, len(ops))
	for i, o := range ops {
		keys[i] = valueKey(o.Ref)
	}
	if inst.Op.IsCommutative() && len(keys) == 2 && keys[0] > keys[1] {
		keys[0], keys[1] = keys[1], keys[0]
	}
	return fmt.Sprintf("%d|%s|%s|%s", inst.Op, inst.T.String(), inst.Pred, strings.Join(keys, ",")), true
}

// valueKey identifies an operand for hashing: constants compare by
// value, everything else by identity.
func valueKey(v ir.Value) string {
	switch c := v.(type) {
	case *ir.ConstantInt:
		return fmt.Sprintf("ci:%s:%d", c.T, c.Val)
	case *ir.ConstantFP:
		return fmt.Sprintf("cf:%s:%g", c.T, c.Val)
	default:
		return fmt.Sprintf("v:%p", v)
	}
}
