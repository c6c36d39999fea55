package transform

import "github.com/sereinwalker/sysyopt/internal/ir"

// collectLoopsInnerFirst flattens fn's loop nest into a single slice
// ordered so every loop appears after all of its children (the
// "inner-first" traversal LICM, IndVarSimplify, and LoopUnroll all
// need, §4.14-§4.16).
func collectLoopsInnerFirst(fn *ir.Function) []*ir.Loop {
	var order []*ir.Loop
	var visit func(l *ir.Loop)
	visit = func(l *ir.Loop) {
		for _, c := range l.Children {
			visit(c)
		}
		order = append(order, l)
	}
	for _, l := range fn.Loops {
		visit(l)
	}
	return order
}

// isLoopInvariantValue reports whether v is defined outside loop: a
// constant, a parameter or global, or an instruction whose block the
// loop does not contain.
func isLoopInvariantValue(loop *ir.Loop, v ir.Value) bool {
	inst, ok := v.(*ir.Instruction)
	if !ok {
		return true
	}
	return !loop.Contains(inst.Parent)
}
