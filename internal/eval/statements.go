package eval

import (
	"github.com/GunterMueller/Leda-Language/internal/heap"
	"github.com/GunterMueller/Leda-Language/internal/tree"
)

// Run walks the statement chain starting at first against the current
// activation, exactly mirroring evaluateStatement's `while (s)` loop in
// interp.c: most cases reassign s to move to the next node, SReturn
// exits the loop (and the enclosing Go call, for an ordinary call) with
// a value, and STailCall reassigns both s and currentContext in place
// rather than recursing — the activation-splice optimization that gives
// Leda unbounded tail recursion without growing the Go stack.
func (ev *Evaluator) Run(first *tree.Stmt) heap.Ptr {
	s := first
	for s != nil {
		traceStatement("%s:%d kind=%d", s.File, s.Line, s.Kind)

		switch s.Kind {
		case tree.SMakeLocals:
			if s.Size == 0 {
				ev.Heap.CurrentContext().SetSlot(3, heap.Nil)
			} else {
				cur := ev.Heap.CurrentContext()
				ev.Heap.Push(cur)
				locals := ev.Heap.Alloc(s.Size)
				cur = ev.Heap.Pop()
				cur.SetSlot(3, locals)
			}
			s = s.Next

		case tree.SExpression:
			ev.EvalExpr(s.Expr)
			s = s.Next

		case tree.SConditional:
			cond := ev.EvalExpr(s.Cond)
			if ev.IsTrue(cond) {
				s = s.Next
			} else {
				s = s.FalsePart
			}

		case tree.SReturn:
			if s.Expr == nil {
				return heap.Nil
			}
			return ev.EvalExpr(s.Expr)

		case tree.STailCall:
			s = ev.evalTailCall(s)

		case tree.SNull:
			s = s.Next

		default:
			s = s.Next
		}
	}
	return heap.Nil
}

// evalTailCall implements the STailCall case (SPEC_FULL.md §D.6): the
// callee is resolved and its arguments are evaluated against the
// CALLER's still-current activation — s.Args has not yet been spliced
// to the new one when buildActivation runs, so a by-reference/by-name
// argument expression reading getCurrentContext still sees the frame
// being replaced, not the one replacing it — before currentContext is
// swapped to the new activation, whose slot 2 is the caller's OWN slot
// 2 (its caller's caller), reparenting past the frame being spliced
// away rather than growing the chain.
func (ev *Evaluator) evalTailCall(s *tree.Stmt) *tree.Stmt {
	ctx, code := ev.resolveCallable(s.Callee)
	callerSlot := ev.Heap.CurrentContext().Slot(2)
	activation := ev.buildActivation(ctx, s.Args, callerSlot)

	traceFunction("tailcall %v", activation)

	ev.Heap.SetCurrentContext(activation)
	return code
}
