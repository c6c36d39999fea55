package ir

// Function holds a name, signature, parameters, its block list, and
// cached whole-function analysis results (§3.5).
type Function struct {
	Name       string
	ReturnType *Type
	Params     []*Param
	Variadic   bool

	// Arena is the allocator backing this function's IR objects,
	// needed by passes that construct a Builder without already
	// holding a Module (§4.1).
	Arena *Arena

	Entry *BasicBlock

	blockHead, blockTail *BasicBlock
	numBlocks            int

	Extern bool // true for runtime-library declarations (§6.1): no body

	// Analysis caches, invalidated per the rules in §5.
	RPO        []*BasicBlock // reverse post-order, set by internal/analysis
	Loops      []*Loop       // top-level natural loops
	domsValid  bool
	loopsValid bool
}

// Blocks returns the function's blocks in list (creation/layout) order.
// Use RPO for the analysis-ordered traversal passes rely on.
func (f *Function) Blocks() []*BasicBlock {
	out := make([]*BasicBlock, 0, f.numBlocks)
	for b := f.blockHead; b != nil; b = b.blockNext {
		out = append(out, b)
	}
	return out
}

// NumBlocks returns the current block count without allocating.
func (f *Function) NumBlocks() int { return f.numBlocks }

// appendBlock splices b onto the end of f's block list. Used only by
// the builder (§4.2) and BasicBlock.SplitAfter; analyses and transforms
// never call it directly.
func (f *Function) appendBlock(b *BasicBlock) {
	b.Parent = f
	if f.blockTail == nil {
		f.blockHead, f.blockTail = b, b
	} else {
		f.blockTail.blockNext = b
		b.blockPrev = f.blockTail
		f.blockTail = b
	}
	f.numBlocks++
	if f.Entry == nil {
		f.Entry = b
	}
}

// RemoveBlock unlinks b from f's block list. The caller must have
// already redirected all CFG edges and PHI references away from b
// (SimplifyCFG's unreachable-block elimination and trampoline
// threading, §4.13).
func (f *Function) RemoveBlock(b *BasicBlock) {
	f.removeBlock(b)
}

// removeBlock unlinks b from f's block list. Caller must have already
// redirected all CFG edges and PHI references away from b.
func (f *Function) removeBlock(b *BasicBlock) {
	if b.blockPrev != nil {
		b.blockPrev.blockNext = b.blockNext
	} else {
		f.blockHead = b.blockNext
	}
	if b.blockNext != nil {
		b.blockNext.blockPrev = b.blockPrev
	} else {
		f.blockTail = b.blockPrev
	}
	b.blockPrev, b.blockNext = nil, nil
	f.numBlocks--
}

func (f *Function) InvalidateCFG() {
	f.domsValid = false
	f.loopsValid = false
	f.RPO = nil
	f.Loops = nil
}

func (f *Function) DomsValid() bool  { return f.domsValid }
func (f *Function) LoopsValid() bool { return f.loopsValid }
func (f *Function) MarkDomsValid()   { f.domsValid = true }
func (f *Function) MarkLoopsValid()  { f.loopsValid = true }

// ValueType implements Value for Function itself, so a Function can
// be used directly as a CallExpr callee operand (§3.2).
func (f *Function) ValueType() *Type {
	params := make([]*Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.T
	}
	return FuncType(f.ReturnType, params, f.Variadic)
}

func (f *Function) String() string { return "@" + f.Name }
