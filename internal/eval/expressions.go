package eval

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/heap"
	"github.com/GunterMueller/Leda-Language/internal/tree"
)

// EvalExpr dispatches over the 17 expression opcodes of §4.5
// (tree.ExprKind), implementing evaluateExpression's switch in
// interp.c. Every clause that allocates while holding a value only
// reachable from a local Go variable pushes that value onto the root
// stack first and reads it back with Pop/Top afterward, exactly as the
// original pushes onto its C rootStack around the same hazards.
func (ev *Evaluator) EvalExpr(expr tree.Expr) heap.Ptr {
	switch e := expr.(type) {

	case *tree.GetCurrentContext:
		return ev.Heap.CurrentContext()

	case *tree.GetOffset:
		base := ev.EvalExpr(e.Base)
		undefCheck(base, "field access")
		return base.Slot(e.Location)

	case *tree.GetGlobalOffset:
		return ev.Heap.GlobalContext().Slot(e.Location)

	case *tree.GetGlobalContext:
		return ev.Heap.GlobalContext()

	case *tree.MakeReference:
		base := ev.EvalExpr(e.Base)
		undefCheck(base, "reference target")
		return ev.Heap.NewReference(base, e.Location)

	case *tree.Assignment:
		return ev.evalAssignment(e)

	case *tree.MakeMethodContext:
		base := ev.EvalExpr(e.Base)
		undefCheck(base, "method call receiver")
		table := base.Slot(0)
		code := table.ClassMethodCode(e.Location)
		return ev.Heap.NewMethodContext(base, code)

	case *tree.MakeClosure:
		var ctx heap.Ptr
		if _, ok := e.Ctx.(*tree.GetCurrentContext); ok {
			ctx = ev.Heap.CurrentContext()
		} else {
			ctx = ev.EvalExpr(e.Ctx)
		}
		return ev.Heap.NewClosure(ctx, e.Code)

	case *tree.DoFunctionCall:
		return ev.callFunction(e.Callee, e.Args)

	case *tree.EvalThunk:
		return ev.evalThunk(e)

	case *tree.EvalReference:
		base := ev.EvalExpr(e.Base)
		undefCheck(base, "reference dereference")
		refBase := base.ReferenceBase()
		undefCheck(refBase, "reference dereference")
		return refBase.Slot(base.ReferenceSlot())

	case *tree.DoSpecialCall:
		return ev.evalSpecial(e)

	case *tree.BuildInstance:
		return ev.evalBuildInstance(e)

	case *tree.CommaOp:
		ev.EvalExpr(e.A)
		return ev.EvalExpr(e.B)

	case *tree.PatternMatch:
		return ev.evalPatternMatch(e)

	case *tree.IntegerConstant:
		return ev.NewInteger(e.Value)

	case *tree.StringConstant:
		return ev.NewString(e.Value)

	case *tree.RealConstant:
		return ev.NewReal(e.Value)

	default:
		diagnostics.Failf("unhandled expression kind %d", expr.ExprKind())
		return heap.Nil
	}
}

// evalAssignment implements the two shapes of §4.5's assignment node:
// when Left is syntactically a MakeReference, the base/location pair is
// already known statically and no reference cell needs to be built at
// all (assignment's direct-store shortcut, matching the original's
// assignment case special-casing a makeReference left operand); any
// other Left is evaluated in full to a reference cell and dereferenced.
// Both shapes evaluate Right after the store target is pinned on the
// root stack, since evaluating Right can itself allocate and relocate
// it.
func (ev *Evaluator) evalAssignment(e *tree.Assignment) heap.Ptr {
	if left, ok := e.Left.(*tree.MakeReference); ok {
		base := ev.EvalExpr(left.Base)
		undefCheck(base, "assignment target")
		ev.Heap.Push(base)
		val := ev.EvalExpr(e.Right)
		base = ev.Heap.Pop()
		base.SetSlot(left.Location, val)
		return val
	}

	ref := ev.EvalExpr(e.Left)
	undefCheck(ref, "assignment target")
	ev.Heap.Push(ref)
	val := ev.EvalExpr(e.Right)
	ref = ev.Heap.Pop()
	refBase := ref.ReferenceBase()
	undefCheck(refBase, "assignment target")
	refBase.SetSlot(ref.ReferenceSlot(), val)
	return val
}

// evalThunk implements call-by-name forcing: install the thunk's own
// saved context as currentContext, run its body, and restore the
// caller's currentContext afterward. This is the one place the original
// pushes the OLD currentContext onto the root stack rather than reading
// it back out of a slot, since a thunk's own cell has nowhere to record
// who forced it.
func (ev *Evaluator) evalThunk(e *tree.EvalThunk) heap.Ptr {
	base := ev.EvalExpr(e.Base)
	undefCheck(base, "thunk")

	old := ev.Heap.CurrentContext()
	ev.Heap.Push(old)
	ev.Heap.SetCurrentContext(base.ClosureContext())
	code, _ := base.ClosureCode().(*tree.Stmt)
	result := ev.Run(code)
	old = ev.Heap.Pop()
	ev.Heap.SetCurrentContext(old)
	return result
}

// evalBuildInstance implements the instance-allocation node: Table is
// evaluated first (to the class's static table) and pinned across the
// instance allocation, slot 0/1 are the class table and global context,
// and each Args entry is evaluated and stored in turn with the
// in-progress instance re-pinned around every one, since evaluating
// argument i can allocate and relocate the instance built for i-1.
func (ev *Evaluator) evalBuildInstance(e *tree.BuildInstance) heap.Ptr {
	table := ev.EvalExpr(e.Table)
	undefCheck(table, "instance class")
	ev.Heap.Push(table)
	instance := ev.Heap.NewInstance(e.Size)
	table = ev.Heap.Pop()

	instance.SetSlot(0, table)
	instance.SetSlot(1, ev.Heap.GlobalContext())

	for i, argExpr := range e.Args {
		ev.Heap.Push(instance)
		v := ev.EvalExpr(argExpr)
		instance = ev.Heap.Pop()
		instance.SetSlot(2+i, v)
	}
	return instance
}

// evalPatternMatch implements the class-chain walk of §4.4.5/§4.5:
// starting at the scrutinee's own class table, walk up the parent chain
// looking for ClassExpr's class; on a match, bind each binding
// expression (itself a reference-producing expression, typically a
// MakeReference into the matching arm's own locals) to the
// corresponding instance slot of the scrutinee, reading fields in
// declaration order starting at slot 2 (past class/context).
func (ev *Evaluator) evalPatternMatch(e *tree.PatternMatch) heap.Ptr {
	base := ev.EvalExpr(e.Base)
	undefCheck(base, "pattern match scrutinee")
	target := ev.EvalExpr(e.ClassExpr)
	undefCheck(target, "pattern match class")

	matched := false
	for cur := base.Slot(0); !cur.IsNil(); cur = cur.ClassParent() {
		if cur.Equal(target) {
			matched = true
			break
		}
	}
	if !matched {
		return ev.Bool(false)
	}

	for i, bindingExpr := range e.Bindings {
		ref := ev.EvalExpr(bindingExpr)
		undefCheck(ref, "pattern match binding")
		val := base.Slot(2 + i)
		refBase := ref.ReferenceBase()
		undefCheck(refBase, "pattern match binding")
		refBase.SetSlot(ref.ReferenceSlot(), val)
	}
	return ev.Bool(true)
}
