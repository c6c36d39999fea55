// Package irvalidate checks the structural invariants the rest of the
// middle end assumes hold between passes (§8, properties P1-P6).
package irvalidate

import (
	"fmt"
	"strings"

	"github.com/sereinwalker/sysyopt/internal/analysis"
	"github.com/sereinwalker/sysyopt/internal/ir"
)

// Validator accumulates structural errors across a module, in the
// error-accumulation style used throughout this tree rather than
// failing on the first problem found.
type Validator struct {
	errors []string
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{}
}

// ValidateModule checks every non-external function in mod and
// returns a single error joining every violation found, or nil.
func (v *Validator) ValidateModule(mod *ir.Module) error {
	v.errors = nil
	for _, fn := range mod.Functions {
		if fn.Extern {
			continue
		}
		v.validateFunction(fn)
	}
	if len(v.errors) > 0 {
		return fmt.Errorf("ir validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

// ValidateFunction checks a single function and returns a joined
// error, or nil.
func ValidateFunction(fn *ir.Function) error {
	v := New()
	v.validateFunction(fn)
	if len(v.errors) > 0 {
		return fmt.Errorf("ir validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *Validator) addError(fn *ir.Function, format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf("%s: %s", fn.Name, fmt.Sprintf(format, args...)))
}

func (v *Validator) validateFunction(fn *ir.Function) {
	if fn.Entry == nil {
		v.addError(fn, "function has no entry block")
		return
	}

	domsReady := fn.DomsValid()
	if !domsReady {
		if err := analysis.ComputeDominators(fn); err == nil {
			domsReady = true
		}
	}

	for _, b := range fn.Blocks() {
		v.checkTerminator(fn, b)        // P1
		v.checkSSADominance(fn, b, domsReady) // P2
		v.checkPhiWellFormedness(fn, b) // P3
		v.checkTypes(fn, b)             // P6
	}
	v.checkCFGSymmetry(fn) // P4
	v.checkUseDefSymmetry(fn) // P5
}

// checkTerminator is P1: every block has exactly one terminator and
// it is the last instruction.
func (v *Validator) checkTerminator(fn *ir.Function, b *ir.BasicBlock) {
	insts := b.Instructions()
	if len(insts) == 0 {
		v.addError(fn, "block %s is empty", b.Label)
		return
	}
	last := insts[len(insts)-1]
	if !last.Op.IsTerminator() {
		v.addError(fn, "block %s does not end in a terminator", b.Label)
	}
	for _, inst := range insts[:len(insts)-1] {
		if inst.Op.IsTerminator() {
			v.addError(fn, "block %s has a terminator (%s) before its last instruction", b.Label, inst.Op)
		}
	}
}

// checkSSADominance is P2: a non-PHI instruction's operand must be
// defined in a block dominating the instruction's own block; a PHI's
// incoming value must be defined in a block dominating the
// corresponding incoming block.
func (v *Validator) checkSSADominance(fn *ir.Function, b *ir.BasicBlock, domsReady bool) {
	if !domsReady {
		return
	}
	for _, inst := range b.Instructions() {
		if inst.Op == ir.OpPhi {
			for _, in := range ir.Incoming(inst) {
				def, ok := in.Val.(*ir.Instruction)
				if !ok {
					continue
				}
				if !analysis.Dominates(def.Parent, in.Blk) {
					v.addError(fn, "phi %s in %s: incoming value from %s not dominated by its definition in %s",
						inst.Name, b.Label, in.Blk.Label, def.Parent.Label)
				}
			}
			continue
		}
		for _, op := range inst.Operands() {
			def, ok := op.Ref.(*ir.Instruction)
			if !ok {
				continue
			}
			if !analysis.Dominates(def.Parent, b) {
				v.addError(fn, "instruction %s in %s: operand %s not dominated by its definition in %s",
					inst.Name, b.Label, def.Name, def.Parent.Label)
			}
		}
	}
}

// checkPhiWellFormedness is P3: a block's PHIs' incoming-block
// multiset must equal the block's predecessor multiset.
func (v *Validator) checkPhiWellFormedness(fn *ir.Function, b *ir.BasicBlock) {
	for _, phi := range b.Phis() {
		seen := map[*ir.BasicBlock]int{}
		for _, in := range ir.Incoming(phi) {
			seen[in.Blk]++
		}
		want := map[*ir.BasicBlock]int{}
		for _, p := range b.Preds {
			want[p]++
		}
		for blk, n := range want {
			if seen[blk] != n {
				v.addError(fn, "phi %s in %s: predecessor %s has %d incoming pair(s), expected %d",
					phi.Name, b.Label, blk.Label, seen[blk], n)
			}
		}
		for blk, n := range seen {
			if want[blk] != n {
				v.addError(fn, "phi %s in %s: incoming block %s is not a predecessor",
					phi.Name, b.Label, blk.Label)
			}
		}
	}
}

// checkCFGSymmetry is P4: A is a successor of B iff B is a
// predecessor of A, and neither array holds duplicates.
func (v *Validator) checkCFGSymmetry(fn *ir.Function) {
	for _, b := range fn.Blocks() {
		checkNoDuplicates(v, fn, b.Label+" successors", b.Succs)
		checkNoDuplicates(v, fn, b.Label+" predecessors", b.Preds)
		for _, s := range b.Succs {
			if !containsBlockPtr(s.Preds, b) {
				v.addError(fn, "%s has successor %s but %s does not list it as a predecessor", b.Label, s.Label, s.Label)
			}
		}
		for _, p := range b.Preds {
			if !containsBlockPtr(p.Succs, b) {
				v.addError(fn, "%s has predecessor %s but %s does not list it as a successor", b.Label, p.Label, p.Label)
			}
		}
	}
}

func checkNoDuplicates(v *Validator, fn *ir.Function, what string, list []*ir.BasicBlock) {
	seen := map[*ir.BasicBlock]bool{}
	for _, b := range list {
		if seen[b] {
			v.addError(fn, "%s contains duplicate entry %s", what, b.Label)
		}
		seen[b] = true
	}
}

func containsBlockPtr(list []*ir.BasicBlock, b *ir.BasicBlock) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

// checkUseDefSymmetry is P5: for every instruction result, its
// use-list must exactly enumerate the operand slots currently
// referencing it - checked here by counting: for every instruction
// referenced by at least one operand of fn, the number of forward
// operand references must equal the length of Uses(v). Which slots
// the use list holds is not compared one by one.
func (v *Validator) checkUseDefSymmetry(fn *ir.Function) {
	referencedBy := map[ir.Value][]*ir.Operand{}
	for _, b := range fn.Blocks() {
		for _, inst := range b.Instructions() {
			for _, op := range inst.Operands() {
				if op.Ref != nil {
					referencedBy[op.Ref] = append(referencedBy[op.Ref], op)
				}
			}
		}
	}
	for val, ops := range referencedBy {
		inst, ok := val.(*ir.Instruction)
		if !ok {
			continue // constants carry no use list (§3.2)
		}
		uses := ir.Uses(inst)
		if len(uses) != len(ops) {
			v.addError(fn, "value %s: %d forward operand reference(s) but %d entries in its use list",
				inst.Name, len(ops), len(uses))
		}
	}
}

// checkTypes is P6: operand types satisfy each opcode's rules.
func (v *Validator) checkTypes(fn *ir.Function, b *ir.BasicBlock) {
	for _, inst := range b.Instructions() {
		switch inst.Op {
		case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpSRem,
			ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr:
			v.checkBinaryOperandTypes(fn, inst)
		case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
			v.checkBinaryOperandTypes(fn, inst)
		case ir.OpICmp, ir.OpFCmp:
			v.checkCompareOperandTypes(fn, inst)
		case ir.OpStore:
			v.checkStoreTypes(fn, inst)
		case ir.OpLoad:
			v.checkLoadTypes(fn, inst)
		case ir.OpPhi:
			v.checkPhiTypes(fn, inst)
		}
	}
}

func operandType(op *ir.Operand) *ir.Type {
	if op.Ref == nil {
		return nil
	}
	return op.Ref.ValueType()
}

func (v *Validator) checkBinaryOperandTypes(fn *ir.Function, inst *ir.Instruction) {
	ops := inst.Operands()
	if len(ops) != 2 {
		v.addError(fn, "%s %s: expected 2 operands, got %d", inst.Op, inst.Name, len(ops))
		return
	}
	lt, rt := operandType(ops[0]), operandType(ops[1])
	if lt == nil || rt == nil {
		return
	}
	if !lt.Equal(rt, true) {
		v.addError(fn, "%s %s: operand types differ (%s vs %s)", inst.Op, inst.Name, lt, rt)
	}
	if !lt.Equal(inst.T, true) {
		v.addError(fn, "%s %s: result type %s does not match operand type %s", inst.Op, inst.Name, inst.T, lt)
	}
}

func (v *Validator) checkCompareOperandTypes(fn *ir.Function, inst *ir.Instruction) {
	ops := inst.Operands()
	if len(ops) != 2 {
		v.addError(fn, "%s %s: expected 2 operands, got %d", inst.Op, inst.Name, len(ops))
		return
	}
	lt, rt := operandType(ops[0]), operandType(ops[1])
	if lt != nil && rt != nil && !lt.Equal(rt, true) {
		v.addError(fn, "%s %s: operand types differ (%s vs %s)", inst.Op, inst.Name, lt, rt)
	}
	if inst.T == nil || inst.T.Kind != ir.TBasic || inst.T.Basic != ir.I1 {
		v.addError(fn, "%s %s: result type must be i1", inst.Op, inst.Name)
	}
}

func (v *Validator) checkStoreTypes(fn *ir.Function, inst *ir.Instruction) {
	ops := inst.Operands()
	if len(ops) != 2 {
		v.addError(fn, "store %s: expected (value, pointer) operands, got %d", inst.Name, len(ops))
		return
	}
	valT, ptrT := operandType(ops[0]), operandType(ops[1])
	if ptrT == nil || ptrT.Kind != ir.TPointer {
		v.addError(fn, "store: pointer operand is not a pointer type")
		return
	}
	if valT != nil && ptrT.Pointee != nil && !valT.Equal(ptrT.Pointee, true) {
		v.addError(fn, "store: value type %s does not match pointee type %s", valT, ptrT.Pointee)
	}
}

func (v *Validator) checkLoadTypes(fn *ir.Function, inst *ir.Instruction) {
	ops := inst.Operands()
	if len(ops) != 1 {
		v.addError(fn, "load %s: expected 1 pointer operand, got %d", inst.Name, len(ops))
		return
	}
	ptrT := operandType(ops[0])
	if ptrT == nil || ptrT.Kind != ir.TPointer {
		v.addError(fn, "load %s: pointer operand is not a pointer type", inst.Name)
		return
	}
	if ptrT.Pointee != nil && inst.T != nil && !ptrT.Pointee.Equal(inst.T, true) {
		v.addError(fn, "load %s: result type %s does not match pointee type %s", inst.Name, inst.T, ptrT.Pointee)
	}
}

func (v *Validator) checkPhiTypes(fn *ir.Function, inst *ir.Instruction) {
	for _, in := range ir.Incoming(inst) {
		t := in.Val.ValueType()
		if t != nil && inst.T != nil && !t.Equal(inst.T, true) {
			v.addError(fn, "phi %s: incoming value from %s has type %s, expected %s",
				inst.Name, in.Blk.Label, t, inst.T)
		}
	}
}
