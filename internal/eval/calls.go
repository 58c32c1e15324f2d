package eval

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/heap"
	"github.com/GunterMueller/Leda-Language/internal/tree"
)

// resolveCallable implements doFunctionCall/tailCall's three-way callee
// dispatch (interp.c): a syntactically recognizable makeClosure or
// makeMethodContext node needs no heap lookup at all, since its context
// and code are already sitting in the AST or one field access away; any
// other callee expression is evaluated to a heap value and then read
// generically by its slot shape, the path a function value reached
// indirectly (stored in a variable, passed as an argument) must take.
// Per gen.c's genOffset, an ordinary named-function reference always
// compiles to a syntactic makeClosure, so this fallback only ever fires
// for a closure/method-context value arriving through a variable,
// field, or returned result.
func (ev *Evaluator) resolveCallable(callee tree.Expr) (ctx heap.Ptr, code *tree.Stmt) {
	switch c := callee.(type) {
	case *tree.MakeClosure:
		if _, ok := c.Ctx.(*tree.GetCurrentContext); ok {
			return ev.Heap.CurrentContext(), c.Code
		}
		return ev.EvalExpr(c.Ctx), c.Code

	case *tree.MakeMethodContext:
		base := ev.EvalExpr(c.Base)
		undefCheck(base, "method call receiver")
		table := base.Slot(0)
		code, _ := table.ClassMethodCode(c.Location).(*tree.Stmt)
		return base, code

	default:
		v := ev.EvalExpr(callee)
		undefCheck(v, "function call target")
		switch v.NumSlots() {
		case 1:
			code, _ := v.ClosureCode().(*tree.Stmt)
			return v.ClosureContext(), code
		case 2:
			code, _ := v.MethodContextCode().(*tree.Stmt)
			return v.MethodContextReceiver(), code
		default:
			diagnostics.Failf("callee is not a closure or method context")
			return heap.Nil, nil
		}
	}
}

// buildActivation allocates a new activation and fills it exactly as
// doFunctionCall/tailCall do in interp.c: slot1 = ctx (the resolved
// lexical context from resolveCallable), slot2 = callerSlot (supplied
// by the caller: the current activation for an ordinary call, or the
// current activation's own slot2 — its caller's caller — for a tail
// call, reparenting past the frame being spliced away), slots 4.. =
// args evaluated left to right against the OLD currentContext, each one
// guarded on the root stack around its own evaluation since evaluating
// argument i can itself allocate and so relocate the activation built
// for argument i-1.
func (ev *Evaluator) buildActivation(ctx heap.Ptr, args []tree.Expr, callerSlot heap.Ptr) heap.Ptr {
	ev.Heap.Push(ctx)
	ev.Heap.Push(callerSlot)
	activation := ev.Heap.NewActivation(len(args))
	callerSlot = ev.Heap.Pop()
	ctx = ev.Heap.Pop()
	activation.SetSlot(1, ctx)
	activation.SetSlot(2, callerSlot)

	for i, argExpr := range args {
		ev.Heap.Push(activation)
		v := ev.EvalExpr(argExpr)
		activation = ev.Heap.Pop()
		activation.SetSlot(4+i, v)
	}
	return activation
}

// callFunction performs an ordinary (non-tail) call: resolve the
// callee, build its activation as a child of the CURRENT activation,
// recurse into Run via the Go call stack, and restore currentContext
// from the just-finished activation's own slot2 afterward — mirroring
// doFunctionCall's `currentContext = currentContext->data[2]` rather
// than relying on a Go local that a collection during the call could
// have left stale.
func (ev *Evaluator) callFunction(callee tree.Expr, args []tree.Expr) heap.Ptr {
	ctx, code := ev.resolveCallable(callee)
	caller := ev.Heap.CurrentContext()
	activation := ev.buildActivation(ctx, args, caller)

	traceFunction("call %v", activation)

	ev.Heap.SetCurrentContext(activation)
	result := ev.Run(code)
	ev.Heap.SetCurrentContext(ev.Heap.CurrentContext().Slot(2))
	return result
}
