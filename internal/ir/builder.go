package ir

import "fmt"

// Builder is the L1 editing interface (§4.2): it tracks a current
// insertion point and creates well-formed instructions, wiring
// operands and use-def links on every call. Every transformation in
// internal/transform and the lowering stage in internal/lower go
// through a Builder rather than touching Instruction/Operand fields
// directly.
//
// Contract violations (wiring an operand of the wrong arity, inserting
// into a function with no entry block, etc.) are programming errors:
// per §4.2 and §7 they panic rather than return an error.
type Builder struct {
	arena  *Arena
	blk    *BasicBlock
	before *Instruction // nil means "append" (§4.2)
}

// NewBuilder creates a builder bound to an arena. Call SetInsertPoint
// before emitting anything.
func NewBuilder(a *Arena) *Builder { return &Builder{arena: a} }

// SetInsertPoint points the builder at blk, inserting new instructions
// before `before` (or, if before is nil, before the block's terminator
// if any, else at the end).
func (b *Builder) SetInsertPoint(blk *BasicBlock, before *Instruction) {
	b.blk, b.before = blk, before
}

// InsertBlock returns the builder's current block.
func (b *Builder) InsertBlock() *BasicBlock { return b.blk }

// CreateBlock allocates a new block and appends it to fn's block list
// (§4.2). The builder's insertion point is left untouched; call
// SetInsertPoint to start emitting into it.
func (b *Builder) CreateBlock(fn *Function, label string) *BasicBlock {
	blk := b.arena.allocBlock(label, fn)
	fn.appendBlock(blk)
	fn.InvalidateCFG()
	return blk
}

// ---- instruction list splicing (block-scoped) --------------------------

func insertAtHead(blk *BasicBlock, inst *Instruction) {
	inst.Parent = blk
	inst.prev = nil
	inst.next = blk.instHead
	if blk.instHead != nil {
		blk.instHead.prev = inst
	} else {
		blk.instTail = inst
	}
	blk.instHead = inst
}

func insertBeforeInst(blk *BasicBlock, at, inst *Instruction) {
	inst.Parent = blk
	p := at.prev
	inst.prev, inst.next = p, at
	at.prev = inst
	if p != nil {
		p.next = inst
	} else {
		blk.instHead = inst
	}
}

func insertAfterInst(blk *BasicBlock, at, inst *Instruction) {
	inst.Parent = blk
	n := at.next
	inst.prev, inst.next = at, n
	at.next = inst
	if n != nil {
		n.prev = inst
	} else {
		blk.instTail = inst
	}
}

func appendInst(blk *BasicBlock, inst *Instruction) {
	if blk.instTail == nil {
		insertAtHead(blk, inst)
		return
	}
	insertAfterInst(blk, blk.instTail, inst)
}

// unlinkInst removes inst from its parent block's instruction list
// without touching its operands.
func unlinkInst(inst *Instruction) {
	blk := inst.Parent
	if blk == nil {
		return
	}
	if inst.prev != nil {
		inst.prev.next = inst.next
	} else {
		blk.instHead = inst.next
	}
	if inst.next != nil {
		inst.next.prev = inst.prev
	} else {
		blk.instTail = inst.prev
	}
	inst.prev, inst.next = nil, nil
}

// insertAfterRun splices inst immediately after the longest prefix run
// of blk's instructions satisfying pred, starting from the head. Used
// to enforce the Alloca/Phi top-of-block placement constraints (§4.2).
func insertAfterRun(blk *BasicBlock, inst *Instruction, pred func(*Instruction) bool) {
	var last *Instruction
	for cur := blk.instHead; cur != nil && pred(cur); cur = cur.next {
		last = cur
	}
	if last == nil {
		insertAtHead(blk, inst)
	} else {
		insertAfterInst(blk, last, inst)
	}
}

func isAllocaInst(i *Instruction) bool { return i.Op == OpAlloca }
func isPhiInst(i *Instruction) bool    { return i.Op == OpPhi }

// emit places inst at the builder's current insertion point.
func (b *Builder) emit(inst *Instruction) *Instruction {
	if b.blk == nil {
		panic("ir.Builder: emit with no insert point set")
	}
	if b.before != nil {
		insertBeforeInst(b.blk, b.before, inst)
		return inst
	}
	if term := b.blk.Terminator(); term != nil {
		insertBeforeInst(b.blk, term, inst)
		return inst
	}
	appendInst(b.blk, inst)
	return inst
}

// ---- operand wiring (use-def) ------------------------------------------

func linkUse(op *Operand, v Value) {
	if v == nil {
		return
	}
	op.Ref = v
	u, ok := v.(useable)
	if !ok {
		return // constants carry no use list (§3.2)
	}
	slot := u.usesSlot()
	op.useNext = *slot
	if *slot != nil {
		(*slot).usePrevPtr = &op.useNext
	}
	op.usePrevPtr = slot
	*slot = op
}

func unlinkUse(op *Operand) {
	if op.usePrevPtr == nil {
		op.Ref = nil
		return
	}
	*op.usePrevPtr = op.useNext
	if op.useNext != nil {
		op.useNext.usePrevPtr = op.usePrevPtr
	}
	op.useNext, op.usePrevPtr = nil, nil
	op.Ref = nil
}

func appendOperandNode(inst *Instruction, op *Operand) {
	op.User = inst
	op.prev = inst.opTail
	op.next = nil
	if inst.opTail != nil {
		inst.opTail.next = op
	} else {
		inst.opHead = op
	}
	inst.opTail = op
}

func unlinkOperandNode(op *Operand) {
	inst := op.User
	if inst == nil {
		return
	}
	if op.prev != nil {
		op.prev.next = op.next
	} else {
		inst.opHead = op.next
	}
	if op.next != nil {
		op.next.prev = op.prev
	} else {
		inst.opTail = op.prev
	}
	op.prev, op.next, op.User = nil, nil, nil
}

// AddValueOperand appends a new operand referencing v to inst's
// ordered operand list, wiring its use-list link. Exported so
// transforms that edit operands outside of active builder state
// (CFG repair, PHI maintenance) can wire new operands the same way
// instruction construction does.
func AddValueOperand(inst *Instruction, v Value) *Operand {
	op := &Operand{}
	appendOperandNode(inst, op)
	linkUse(op, v)
	return op
}

// AddBlockOperand appends a new operand referencing a BasicBlock
// (terminator target or PHI incoming-block slot, §3.3).
func AddBlockOperand(inst *Instruction, blk *BasicBlock) *Operand {
	op := &Operand{}
	appendOperandNode(inst, op)
	op.Blk = blk
	return op
}

func (b *Builder) addValueOperand(inst *Instruction, v Value) *Operand {
	op := AddValueOperand(inst, v)
	if b.arena != nil {
		b.arena.operands = append(b.arena.operands, op)
	}
	return op
}

func (b *Builder) addBlockOperand(inst *Instruction, blk *BasicBlock) *Operand {
	op := AddBlockOperand(inst, blk)
	if b.arena != nil {
		b.arena.operands = append(b.arena.operands, op)
	}
	return op
}

// SetOperand rewires op to refer to newValue (§4.2).
func SetOperand(op *Operand, newValue Value) {
	unlinkUse(op)
	linkUse(op, newValue)
}

// RemoveOperand unlinks op from both its user's operand list and its
// referent's use list (§4.2). Rare: most edits replace rather than
// remove an operand slot.
func RemoveOperand(op *Operand) {
	unlinkUse(op)
	unlinkOperandNode(op)
}

// Erase unlinks inst from its block (leaving Parent nil) and removes
// every operand from its use list (§4.2). inst's storage is not
// reclaimed until the module's arena is discarded (§3.6).
func Erase(inst *Instruction) {
	for op := inst.opHead; op != nil; {
		next := op.next
		unlinkUse(op)
		op = next
	}
	inst.opHead, inst.opTail = nil, nil
	unlinkInst(inst)
	inst.Parent = nil
}

// ReplaceAllUsesWith retargets every operand currently referencing old
// to refer to newValue instead — a bulk use-list splice (§4.2).
func ReplaceAllUsesWith(old Value, newValue Value) {
	u, ok := old.(useable)
	if !ok {
		return
	}
	slot := u.usesSlot()
	for op := *slot; op != nil; {
		next := op.useNext
		SetOperand(op, newValue)
		op = next
	}
}

// InsertBefore splices inst immediately before at in at's block.
func InsertBefore(at, inst *Instruction) { insertBeforeInst(at.Parent, at, inst) }

// InsertAfter splices inst immediately after at in at's block.
func InsertAfter(at, inst *Instruction) { insertAfterInst(at.Parent, at, inst) }

// MoveBefore relocates inst out of its current block and splices it
// immediately before at in at's block, preserving its operands and use
// list (§4.14: LICM hoisting an invariant instruction into a loop's
// preheader).
func MoveBefore(at, inst *Instruction) {
	unlinkInst(inst)
	insertBeforeInst(at.Parent, at, inst)
}

// ---- instruction construction -------------------------------------------

func (b *Builder) newInst(op Opcode) *Instruction { return b.arena.allocInstruction(op) }

func (b *Builder) CreateBinOp(op Opcode, lhs, rhs Value, name string) *Instruction {
	inst := b.newInst(op)
	inst.T = lhs.ValueType()
	inst.Name = name
	b.addValueOperand(inst, lhs)
	b.addValueOperand(inst, rhs)
	return b.emit(inst)
}

func (b *Builder) CreateAdd(l, r Value, n string) *Instruction  { return b.CreateBinOp(OpAdd, l, r, n) }
func (b *Builder) CreateSub(l, r Value, n string) *Instruction  { return b.CreateBinOp(OpSub, l, r, n) }
func (b *Builder) CreateMul(l, r Value, n string) *Instruction  { return b.CreateBinOp(OpMul, l, r, n) }
func (b *Builder) CreateSDiv(l, r Value, n string) *Instruction { return b.CreateBinOp(OpSDiv, l, r, n) }
func (b *Builder) CreateSRem(l, r Value, n string) *Instruction { return b.CreateBinOp(OpSRem, l, r, n) }
func (b *Builder) CreateFAdd(l, r Value, n string) *Instruction { return b.CreateBinOp(OpFAdd, l, r, n) }
func (b *Builder) CreateFSub(l, r Value, n string) *Instruction { return b.CreateBinOp(OpFSub, l, r, n) }
func (b *Builder) CreateFMul(l, r Value, n string) *Instruction { return b.CreateBinOp(OpFMul, l, r, n) }
func (b *Builder) CreateFDiv(l, r Value, n string) *Instruction { return b.CreateBinOp(OpFDiv, l, r, n) }
func (b *Builder) CreateShl(l, r Value, n string) *Instruction  { return b.CreateBinOp(OpShl, l, r, n) }
func (b *Builder) CreateLShr(l, r Value, n string) *Instruction { return b.CreateBinOp(OpLShr, l, r, n) }
func (b *Builder) CreateAShr(l, r Value, n string) *Instruction { return b.CreateBinOp(OpAShr, l, r, n) }
func (b *Builder) CreateAnd(l, r Value, n string) *Instruction  { return b.CreateBinOp(OpAnd, l, r, n) }
func (b *Builder) CreateOr(l, r Value, n string) *Instruction   { return b.CreateBinOp(OpOr, l, r, n) }
func (b *Builder) CreateXor(l, r Value, n string) *Instruction  { return b.CreateBinOp(OpXor, l, r, n) }

func (b *Builder) CreateICmp(pred string, lhs, rhs Value, name string) *Instruction {
	inst := b.newInst(OpICmp)
	inst.T = Basic(I1)
	inst.Pred = pred
	inst.Name = name
	b.addValueOperand(inst, lhs)
	b.addValueOperand(inst, rhs)
	return b.emit(inst)
}

func (b *Builder) CreateFCmp(pred string, lhs, rhs Value, name string) *Instruction {
	inst := b.newInst(OpFCmp)
	inst.T = Basic(I1)
	inst.Pred = pred
	inst.Name = name
	b.addValueOperand(inst, lhs)
	b.addValueOperand(inst, rhs)
	return b.emit(inst)
}

func (b *Builder) createCast(op Opcode, v Value, to *Type, name string) *Instruction {
	inst := b.newInst(op)
	inst.T = to
	inst.Name = name
	b.addValueOperand(inst, v)
	return b.emit(inst)
}

func (b *Builder) CreateSExt(v Value, to *Type, n string) *Instruction   { return b.createCast(OpSExt, v, to, n) }
func (b *Builder) CreateZExt(v Value, to *Type, n string) *Instruction   { return b.createCast(OpZExt, v, to, n) }
func (b *Builder) CreateTrunc(v Value, to *Type, n string) *Instruction  { return b.createCast(OpTrunc, v, to, n) }
func (b *Builder) CreateFPExt(v Value, to *Type, n string) *Instruction  { return b.createCast(OpFPExt, v, to, n) }
func (b *Builder) CreateFPTrunc(v Value, to *Type, n string) *Instruction { return b.createCast(OpFPTrunc, v, to, n) }
func (b *Builder) CreateSIToFP(v Value, to *Type, n string) *Instruction { return b.createCast(OpSIToFP, v, to, n) }
func (b *Builder) CreateFPToSI(v Value, to *Type, n string) *Instruction { return b.createCast(OpFPToSI, v, to, n) }

// CreateAlloca allocates T, placing the Alloca at the top of the
// entry block below any existing allocas (§4.2).
func (b *Builder) CreateAlloca(fn *Function, t *Type, name string) *Instruction {
	if fn.Entry == nil {
		panic("ir.Builder: CreateAlloca on function with no entry block")
	}
	inst := b.newInst(OpAlloca)
	inst.T = Pointer(t)
	inst.AllocType = t
	inst.Name = name
	insertAfterRun(fn.Entry, inst, isAllocaInst)
	return inst
}

func (b *Builder) CreateLoad(ptr Value, name string) *Instruction {
	pt := ptr.ValueType()
	if pt.Kind != TPointer {
		panic(fmt.Sprintf("ir.Builder: CreateLoad on non-pointer type %s", pt))
	}
	inst := b.newInst(OpLoad)
	inst.T = pt.Pointee
	inst.Name = name
	b.addValueOperand(inst, ptr)
	return b.emit(inst)
}

func (b *Builder) CreateStore(val, ptr Value) *Instruction {
	inst := b.newInst(OpStore)
	b.addValueOperand(inst, val)
	b.addValueOperand(inst, ptr)
	return b.emit(inst)
}

func gepResultType(base *Type) *Type {
	if base.Kind != TPointer {
		panic(fmt.Sprintf("ir.Builder: GEP on non-pointer type %s", base))
	}
	pointee := base.Pointee
	if pointee.Kind == TArray {
		if len(pointee.Dims) > 1 {
			return Pointer(&Type{Kind: TArray, Elem: pointee.Elem, Dims: pointee.Dims[1:]})
		}
		return Pointer(pointee.Elem)
	}
	return Pointer(pointee)
}

// CreateGEP emits one pointer-arithmetic step (§4.3: "a single
// GetElementPtr per indexing step").
func (b *Builder) CreateGEP(ptr, index Value, inbounds bool, name string) *Instruction {
	inst := b.newInst(OpGEP)
	inst.T = gepResultType(ptr.ValueType())
	inst.Inbounds = inbounds
	inst.Name = name
	b.addValueOperand(inst, ptr)
	b.addValueOperand(inst, index)
	return b.emit(inst)
}

// CreateBr emits an unconditional branch.
func (b *Builder) CreateBr(target *BasicBlock) *Instruction {
	inst := b.newInst(OpBr)
	b.addBlockOperand(inst, target)
	inst = b.emit(inst)
	AddEdge(b.blk, target)
	return inst
}

// CreateCondBr emits a conditional branch: operand 0 is the i1
// condition, operands 1 and 2 are the then/else block targets.
func (b *Builder) CreateCondBr(cond Value, thenB, elseB *BasicBlock) *Instruction {
	inst := b.newInst(OpBr)
	b.addValueOperand(inst, cond)
	b.addBlockOperand(inst, thenB)
	b.addBlockOperand(inst, elseB)
	inst = b.emit(inst)
	AddEdge(b.blk, thenB)
	AddEdge(b.blk, elseB)
	return inst
}

func (b *Builder) CreateRet(v Value) *Instruction {
	inst := b.newInst(OpRet)
	if v != nil {
		b.addValueOperand(inst, v)
	}
	return b.emit(inst)
}

// CreatePhi allocates a PHI of type t and inserts it at the top of
// blk, below any existing PHIs (§4.2). Incoming pairs are added
// separately via AddIncoming once predecessor values are known.
func (b *Builder) CreatePhi(blk *BasicBlock, t *Type, name string) *Instruction {
	inst := b.newInst(OpPhi)
	inst.T = t
	inst.Name = name
	insertAfterRun(blk, inst, isPhiInst)
	return inst
}

// AddIncoming appends one (value, block) pair to phi's operand list
// (§3.4).
func (b *Builder) AddIncoming(phi *Instruction, val Value, blk *BasicBlock) {
	b.addValueOperand(phi, val)
	b.addBlockOperand(phi, blk)
}

// AddPhiIncoming is the builder-independent form of AddIncoming, for
// passes that edit an existing PHI outside of active builder state
// (CFG repair, block merging).
func AddPhiIncoming(phi *Instruction, val Value, blk *BasicBlock) {
	AddValueOperand(phi, val)
	AddBlockOperand(phi, blk)
}

// Incoming returns phi's (value, block) pairs in operand order.
func Incoming(phi *Instruction) []struct {
	Val Value
	Blk *BasicBlock
} {
	ops := phi.Operands()
	out := make([]struct {
		Val Value
		Blk *BasicBlock
	}, 0, len(ops)/2)
	for i := 0; i+1 < len(ops); i += 2 {
		out = append(out, struct {
			Val Value
			Blk *BasicBlock
		}{ops[i].Ref, ops[i+1].Blk})
	}
	return out
}

// RemoveIncoming deletes the (value, block) pair for blk from phi, if
// present.
func RemoveIncoming(phi *Instruction, blk *BasicBlock) {
	ops := phi.Operands()
	for i := 0; i+1 < len(ops); i += 2 {
		if ops[i+1].Blk == blk {
			RemoveOperand(ops[i])
			RemoveOperand(ops[i+1])
			return
		}
	}
}

// CreateCall emits a call; operand 0 is the callee, the rest are
// arguments (§3.4). retType must be Void() for a void-returning call.
func (b *Builder) CreateCall(callee Value, args []Value, retType *Type, name string) *Instruction {
	inst := b.newInst(OpCall)
	if retType.Kind != TVoid {
		inst.T = retType
		inst.Name = name
	}
	b.addValueOperand(inst, callee)
	for _, a := range args {
		b.addValueOperand(inst, a)
	}
	return b.emit(inst)
}

// CalleeOf returns a call's callee value (operand 0).
func CalleeOf(call *Instruction) Value { return call.opHead.Ref }

// ArgsOf returns a call's argument values (operands 1..n).
func ArgsOf(call *Instruction) []Value {
	ops := call.Operands()
	out := make([]Value, 0, len(ops)-1)
	for _, o := range ops[1:] {
		out = append(out, o.Ref)
	}
	return out
}

// ---- CFG edit primitives (§4.2) -----------------------------------------

func containsBlock(list []*BasicBlock, b *BasicBlock) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

func removeBlockFromSlice(list *[]*BasicBlock, b *BasicBlock) {
	out := (*list)[:0]
	for _, x := range *list {
		if x != b {
			out = append(out, x)
		}
	}
	*list = out
}

// AddSuccessor/AddPredecessor are the two faces of one edge addition
// (§4.2); AddEdge performs both sides atomically and is what
// instruction-creation helpers call.
func AddEdge(from, to *BasicBlock) {
	if !containsBlock(from.Succs, to) {
		from.Succs = append(from.Succs, to)
	}
	if !containsBlock(to.Preds, from) {
		to.Preds = append(to.Preds, from)
	}
}

func AddSuccessor(from, to *BasicBlock)   { AddEdge(from, to) }
func AddPredecessor(to, from *BasicBlock) { AddEdge(from, to) }

// RemoveEdge removes both sides of the from->to edge.
func RemoveEdge(from, to *BasicBlock) {
	removeBlockFromSlice(&from.Succs, to)
	removeBlockFromSlice(&to.Preds, from)
}

func RemoveSuccessor(from, to *BasicBlock)   { RemoveEdge(from, to) }
func RemovePredecessor(to, from *BasicBlock) { RemoveEdge(from, to) }

// RedirectEdge rewrites from's terminator so any operand targeting
// oldTo now targets newTo, and updates all three blocks' pred/succ
// arrays to match (§4.2). Callers that also need PHI repair should
// follow with RepairPhisAfterEdgeRedirect.
func RedirectEdge(from, oldTo, newTo *BasicBlock) {
	term := from.Terminator()
	if term == nil {
		panic("ir.RedirectEdge: block has no terminator")
	}
	changed := false
	for _, op := range term.Operands() {
		if op.Blk == oldTo {
			op.Blk = newTo
			changed = true
		}
	}
	if !changed {
		return
	}
	// Recompute from's successor list from the rewritten terminator so
	// a degenerate "both branches to the same target" case collapses
	// correctly.
	seen := map[*BasicBlock]bool{}
	newSuccs := from.Succs[:0]
	for _, op := range term.Operands() {
		if op.Blk != nil && !seen[op.Blk] {
			seen[op.Blk] = true
			newSuccs = append(newSuccs, op.Blk)
		}
	}
	from.Succs = newSuccs
	if !seen[oldTo] {
		removeBlockFromSlice(&oldTo.Preds, from)
	}
	if !containsBlock(newTo.Preds, from) {
		newTo.Preds = append(newTo.Preds, from)
	}
}

// RepairPhisAfterEdgeRedirect updates newTo's PHIs after an edge
// from->oldTo was redirected to from->newTo (§4.2): every PHI in
// newTo that already had an incoming value attributed to oldTo gains
// an identical incoming entry attributed to from.
func RepairPhisAfterEdgeRedirect(newTo, from, oldTo *BasicBlock) {
	for _, phi := range newTo.Phis() {
		var val Value
		for _, in := range Incoming(phi) {
			if in.Blk == oldTo {
				val = in.Val
				break
			}
		}
		if val != nil {
			AddPhiIncoming(phi, val, from)
		}
	}
}
