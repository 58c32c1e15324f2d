package tree

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// ResolveBinaryOperator implements §4.4.6: an infix operator first
// tries the left operand's own class for a same-named method (so
// user-defined classes can overload +, =, etc.), then falls back to
// the enclosing scope chain for a free function of that name — exactly
// ResolveIdentifier's walk, reused as-is.
func ResolveBinaryOperator(file string, line int, scope *symbols.Table, opName string, left, right Expr) Expr {
	if methodExpr := lookupOperatorMethod(left, opName); methodExpr != nil {
		return GenerateCall(file, line, methodExpr, []Expr{right})
	}
	callee := ResolveIdentifier(file, line, scope, opName)
	return GenerateCall(file, line, callee, []Expr{left, right})
}

// ResolveUnaryOperator mirrors ResolveBinaryOperator for prefix
// operators (unary -, not, and the arrow operator below).
func ResolveUnaryOperator(file string, line int, scope *symbols.Table, opName string, operand Expr) Expr {
	if methodExpr := lookupOperatorMethod(operand, opName); methodExpr != nil {
		return GenerateCall(file, line, methodExpr, nil)
	}
	callee := ResolveIdentifier(file, line, scope, opName)
	return GenerateCall(file, line, callee, []Expr{operand})
}

func lookupOperatorMethod(receiver Expr, opName string) Expr {
	stripped, rt := unwrapForFieldLookup(receiver.ResultType())
	ct, ok := stripped.(*types.ClassType)
	if !ok {
		return nil
	}
	table, ok := ct.Members.(*symbols.Table)
	if !ok {
		return nil
	}
	sym := table.LookupLocal(opName)
	if sym == nil || sym.Kind != symbols.KindFunction {
		return nil
	}
	return NewMakeMethodContext(receiver, sym.Location, types.FixResolvedType(sym.DeclaredType, rt))
}

// arrowGlobalFunction is the global function name generateLeftArrow
// lowers through (SPEC_FULL.md §D.1).
const arrowGlobalFunction = "Leda_arrow"

// GenerateLeftArrow implements the <- operator (`generateLeftArrow` /
// `Leda_arrow` in the original's gen.c): an assignment-like,
// relation-building operator. ref must already be an lvalue expression
// (a MakeReference node, exactly like an assignment's left side); value
// is any expression. The pair lowers to a call of the global function
// Leda_arrow(ref, value), whose result type is relation.
func GenerateLeftArrow(file string, line int, scope *symbols.Table, ref, value Expr) Expr {
	if ref.ExprKind() != KMakeReference {
		diagnostics.Fail(file, line, "left side of <- must be an lvalue")
	}
	callee := ResolveIdentifier(file, line, scope, arrowGlobalFunction)
	return GenerateCall(file, line, callee, []Expr{ref, value})
}

// BooleanAsRelation wraps a boolean-valued expression in a one-shot
// relation: a zero-argument closure over the current context whose
// body returns the boolean once. Grounded on the narrow booleanCheck/
// relationCheck conversion the original applies wherever a boolean
// shows up where a relation is expected (SPEC_FULL.md §D.2) — not just
// at return statements.
func BooleanAsRelation(file string, line int, e Expr, relationType types.Type) Expr {
	body := NewReturn(file, line, e)
	return NewMakeClosure(NewGetCurrentContext(), body, relationType)
}

// RelationAsBoolean forces a relation value once, yielding a boolean:
// a relation is itself a zero-argument callable, so this is just a
// function call with no arguments.
func RelationAsBoolean(file string, line int, e Expr, booleanType types.Type) Expr {
	return NewDoFunctionCall(e, nil, booleanType)
}

// CoerceBooleanRelation applies the narrow auto-conversion of §4.4.6 at
// any position that declares a want type of boolean or relation: if e
// already conforms, it is returned unchanged; otherwise a single
// boolean<->relation conversion is tried before failing. booleanType
// and relationType identify the two distinguished types by identity
// (compared via types.Conformable against Undefined would not do,
// since both are ordinary classes/function types here).
func CoerceBooleanRelation(file string, line int, e Expr, want, booleanType, relationType types.Type) Expr {
	if types.Conformable(e.ResultType(), want) {
		return e
	}
	if sameType(want, booleanType) && sameType(e.ResultType(), relationType) {
		return RelationAsBoolean(file, line, e, booleanType)
	}
	if sameType(want, relationType) && sameType(e.ResultType(), booleanType) {
		return BooleanAsRelation(file, line, e, relationType)
	}
	diagnostics.Fail(file, line, "type mismatch: cannot convert %s to %s", e.ResultType().String(), want.String())
	return nil
}

func sameType(a, b types.Type) bool {
	return a != nil && b != nil && a == b
}
