package tree

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// GenerateCall implements §4.4.3: build either a BuildInstance (callee
// names a class) or a DoFunctionCall (callee is an ordinary function or
// method-context value), checking arity and coercing each argument to
// its declared form.
func GenerateCall(file string, line int, callee Expr, rawArgs []Expr) Expr {
	stripped := stripToCallable(callee.ResultType())

	if cdt, ok := stripped.(*types.ClassDefType); ok {
		return buildInstanceExpr(file, line, callee, cdt, rawArgs)
	}

	ft := types.CheckFunction(stripped)
	args := coerceArgs(file, line, stripped, ft, rawArgs)
	return NewDoFunctionCall(callee, args, returnTypeOf(stripped, ft))
}

// GenerateReturnCall implements the return-statement half of call
// generation together with §4.4.4's tail-call recognition. The rule is
// deliberately narrow and purely syntactic (it does not check that the
// callee is the enclosing function itself): `return f(arg)` becomes a
// tailCall statement iff the call takes exactly one argument, the
// enclosing function scope declares exactly one ordinary argument (at
// slot 4 — a method's implicit self at slot 1 does not count), and that
// single raw argument expression is exactly `getOffset(getCurrentContext,
// 4)`, i.e. the caller's own sole parameter passed through unchanged.
// This is what makes the activation-splice optimization in §4.5's
// "Tail call" safe: slot 4 of the new activation is about to be
// overwritten with the freshly evaluated argument, so the old activation
// can be reused only when that argument is read out of the old
// activation's own slot 4 before anything else touches it.
// enclosingFuncScope is nil when the return statement isn't inside a
// function body (never applicable at top level).
func GenerateReturnCall(file string, line int, enclosingFuncScope *symbols.Table, callee Expr, rawArgs []Expr) *Stmt {
	stripped := stripToCallable(callee.ResultType())

	if cdt, ok := stripped.(*types.ClassDefType); ok {
		return NewReturn(file, line, buildInstanceExpr(file, line, callee, cdt, rawArgs))
	}

	ft := types.CheckFunction(stripped)
	args := coerceArgs(file, line, stripped, ft, rawArgs)

	if isTailCallShape(enclosingFuncScope, rawArgs) {
		return NewTailCall(file, line, callee, args)
	}
	return NewReturn(file, line, NewDoFunctionCall(callee, args, returnTypeOf(stripped, ft)))
}

// isTailCallShape checks §4.4.4's narrow syntactic pattern against the
// raw (uncoerced) argument list, before byName/byReference wrapping
// could have obscured the verbatim getOffset(getCurrentContext,4) shape.
func isTailCallShape(enclosingFuncScope *symbols.Table, rawArgs []Expr) bool {
	if enclosingFuncScope == nil || len(rawArgs) != 1 {
		return false
	}
	if countOrdinaryArguments(enclosingFuncScope) != 1 {
		return false
	}
	offset, ok := rawArgs[0].(*GetOffset)
	if !ok || offset.Location != 4 {
		return false
	}
	_, ok = offset.Base.(*GetCurrentContext)
	return ok
}

// countOrdinaryArguments counts a function scope's declared parameters,
// excluding the implicit self a method binds at slot 1 (self is never
// addressed via getOffset(getCurrentContext,4), so it never matters to
// the tail-call shape check, but it would otherwise inflate the count).
func countOrdinaryArguments(scope *symbols.Table) int {
	n := 0
	for _, s := range scope.Symbols {
		if s.Kind == symbols.KindArgument && s.Location != 1 {
			n++
		}
	}
	return n
}

// stripToCallable strips the wrapping layers call generation doesn't
// care about (constant, qualified, unresolved), stopping at whatever
// is left: a resolved type, a plain function type, or a classDef.
func stripToCallable(t types.Type) types.Type {
	for {
		switch v := t.(type) {
		case *types.ConstantType:
			t = v.Base
		case *types.QualifiedType:
			t = v.Base
		case *types.UnresolvedType:
			t = v.Base
		default:
			return t
		}
	}
}

func returnTypeOf(stripped types.Type, ft *types.FunctionType) types.Type {
	if rt, ok := stripped.(*types.ResolvedType); ok {
		return types.FixResolvedType(ft.Return, rt)
	}
	return ft.Return
}

func buildInstanceExpr(file string, line int, callee Expr, cdt *types.ClassDefType, rawArgs []Expr) Expr {
	table, ok := cdt.Class.Members.(*symbols.Table)
	if !ok {
		diagnostics.Fail(file, line, "class %s has no member table", cdt.Class.Name)
	}
	if len(rawArgs) != table.Size {
		diagnostics.Fail(file, line, "class %s takes %d field values, got %d", cdt.Class.Name, table.Size, len(rawArgs))
	}
	// Positional field values carry no form constraint: every instance
	// field slot is plain by-value storage, so rawArgs need no coercion.
	size := table.Size + 2
	return NewBuildInstance(callee, size, rawArgs, cdt.Class)
}

// coerceArgs checks arity against stripped/ft and wraps each raw
// argument per its declared form: byValue passes the value straight
// through after a conformance check, byReference requires the caller
// to have already built the argument as a MakeReference address node,
// and byName wraps the expression in a fresh zero-argument closure over
// the current context whose body returns it, deferring evaluation
// until the callee forces it.
func coerceArgs(file string, line int, stripped types.Type, ft *types.FunctionType, rawArgs []Expr) []Expr {
	if len(rawArgs) != len(ft.Arguments) {
		diagnostics.Fail(file, line, "wrong number of arguments: expected %d, got %d", len(ft.Arguments), len(rawArgs))
	}
	out := make([]Expr, len(rawArgs))
	for i, raw := range rawArgs {
		argSym := types.ArgumentNumber(stripped, i)
		switch argSym.ArgForm() {
		case types.ByValue:
			if !types.Conformable(raw.ResultType(), argSym.ArgType()) {
				diagnostics.Fail(file, line, "argument %d: type mismatch", i)
			}
			out[i] = raw
		case types.ByReference:
			if raw.ExprKind() != KMakeReference {
				diagnostics.Fail(file, line, "argument %d: byReference parameter requires an lvalue", i)
			}
			out[i] = raw
		case types.ByName:
			thunkBody := NewReturn(file, line, raw)
			out[i] = NewMakeClosure(NewGetCurrentContext(), thunkBody, argSym.ArgType())
		default:
			diagnostics.Failf("unknown argument form")
		}
	}
	return out
}
