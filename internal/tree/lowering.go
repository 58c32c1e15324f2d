package tree

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// declareTemp allocates a fresh local slot in a function scope,
// evaluates init into it once, and returns an expression that reads it
// back. Every lowering below that needs to evaluate a sub-expression
// exactly once (a loop's relation source, a match's scrutinee) goes
// through this rather than re-evaluating the expression on each use.
//
// Lowering-introduced temporaries only ever target function scope:
// every Leda statement lives inside some function body by the time it
// reaches this layer (bootstrap wraps top-level script statements in
// one, per SPEC_FULL.md §D.4), so this is not a loss of generality.
func declareTemp(file string, line int, scope *symbols.Table, prefix string, init Expr) (read Expr, assign *Stmt) {
	if scope.Kind != symbols.ScopeFunction {
		diagnostics.Failf("lowering temporary declared outside function scope")
	}
	sym := scope.AddVariable(file, line, GenerateTemporaryName(prefix), init.ResultType())
	locals := func() Expr { return NewGetOffset(NewGetCurrentContext(), 3, nil) }
	ref := NewMakeReference(locals(), sym.Location)
	assign = NewExpressionStmt(file, line, NewAssignment(ref, init))
	read = NewGetOffset(locals(), sym.Location, sym.DeclaredType)
	return read, assign
}

// LowerWhile implements the while-loop half of §4.4.5: desugar to a
// self-recursive local closure stored in a fresh temporary and invoked
// once, its body tail-calling itself for each iteration that passes
// cond. No new statement kind is needed — the loop is entirely
// expressed through makeClosure/doFunctionCall/tailCall, the same way
// the original compiles loops down to its core opcodes.
func LowerWhile(file string, line int, scope *symbols.Table, cond Expr, body *Stmt, loopFnType types.Type) *Stmt {
	if scope.Kind != symbols.ScopeFunction {
		diagnostics.Failf("while lowered outside function scope")
	}
	sym := scope.AddVariable(file, line, GenerateTemporaryName("loop"), loopFnType)
	locals := func() Expr { return NewGetOffset(NewGetCurrentContext(), 3, nil) }
	readLoop := func() Expr { return NewGetOffset(locals(), sym.Location, loopFnType) }

	recur := NewTailCall(file, line, readLoop(), nil)
	loopBody := NewConditional(file, line, cond, Append(cloneStmt(body), recur), NewReturn(file, line, nil))
	closureCode := Append(NewMakeLocals(file, line, 0), loopBody)
	closureExpr := NewMakeClosure(NewGetCurrentContext(), closureCode, loopFnType)

	assign := NewExpressionStmt(file, line, NewAssignment(NewMakeReference(locals(), sym.Location), closureExpr))
	call := NewExpressionStmt(file, line, NewDoFunctionCall(readLoop(), nil, nil))
	return Append(assign, call)
}

// cloneStmt returns body unchanged; body is only ever threaded into one
// place in the lowered tree (no statement node is shared), so this is
// a pass-through kept for symmetry with how the lowering helpers below
// read: sequence-then-append.
func cloneStmt(body *Stmt) *Stmt { return body }

// LowerArithmeticFor implements the `for i = start to stop by step`
// form of §4.4.5: init runs once, then the loop is exactly a while over
// cond with step appended after the user's body on every iteration.
func LowerArithmeticFor(file string, line int, scope *symbols.Table, init *Stmt, cond Expr, step *Stmt, body *Stmt, loopFnType types.Type) *Stmt {
	whileStmt := LowerWhile(file, line, scope, cond, Append(body, step), loopFnType)
	return Append(init, whileStmt)
}

// LowerForRelation implements `for relationExpr { body }`: the relation
// is evaluated once into a temporary, and the loop condition on every
// iteration is forcing one more value out of it — a relation is itself
// a zero-argument callable, so RelationAsBoolean's plain call is all
// that's needed; true keeps looping, false (or exhaustion) stops. The
// <- operator (GenerateLeftArrow) is a distinct, relation-*building*
// operation and plays no part in consuming one (SPEC_FULL.md §D.1).
func LowerForRelation(file string, line int, scope *symbols.Table, relation Expr, body *Stmt, booleanType, loopFnType types.Type) *Stmt {
	read, assign := declareTemp(file, line, scope, "rel", relation)
	cond := RelationAsBoolean(file, line, read, booleanType)
	whileStmt := LowerWhile(file, line, scope, cond, body, loopFnType)
	return Append(assign, whileStmt)
}

// LowerArrayLiteral implements the array-literal form of §4.4.5:
// `[e1, ..., eN]` locates the array class in globals and instantiates
// it with three fields — lowBound=1, highBound=N, and a payload built
// by primitive #15. Primitive #15's own contract (§6.2) evaluates its
// FIRST argument as the cell's slot count and then fills the remaining
// arguments into the new cell's slots in the order given — it does no
// reversing of its own — so the reverse evaluation order the original
// gives array literals (eN..e1, §6.1) has to be baked in here, by
// passing the elements pre-reversed after the leading size argument.
func LowerArrayLiteral(file string, line int, arrayClassExpr Expr, elements []Expr, integerType types.Type) Expr {
	n := len(elements)
	payloadArgs := make([]Expr, n+1)
	payloadArgs[0] = NewIntegerConstant(int64(n), integerType)
	for i, e := range elements {
		payloadArgs[n-i] = e
	}
	payload := NewDoSpecialCall(specialCallAllocateArrayPayload, payloadArgs, nil)

	fields := []Expr{
		NewIntegerConstant(1, integerType),
		NewIntegerConstant(int64(n), integerType),
		payload,
	}
	return GenerateCall(file, line, arrayClassExpr, fields)
}

// specialCallAllocateArrayPayload is primitive #15 of §6.2: allocate a
// cell sized by the first argument, then fill it from the remaining
// arguments in order. The array literal passes N as the size and its
// N elements pre-reversed, so the payload cell ends up holding eN..e1.
const specialCallAllocateArrayPayload = 15

// PatternCase is one arm of a pattern-match statement: test whether
// the scrutinee is an instance of Class, binding Bindings (already
// built as MakeReference expressions into the arm's own local
// variables) to its instance slots on success.
type PatternCase struct {
	Class    Expr
	Bindings []Expr
	Body     *Stmt
}

// LowerPatternMatch implements the pattern-match statement form of
// §4.4.5: the scrutinee is evaluated once into a temporary, then each
// case becomes a PatternMatch-guarded conditional, tried in order, with
// defaultBody (possibly a null statement) run if none match.
func LowerPatternMatch(file string, line int, scope *symbols.Table, scrutinee Expr, booleanType types.Type, cases []PatternCase, defaultBody *Stmt) *Stmt {
	read, assign := declareTemp(file, line, scope, "match", scrutinee)

	chain := defaultBody
	if chain == nil {
		chain = NewNull(file, line)
	}
	for i := len(cases) - 1; i >= 0; i-- {
		c := cases[i]
		test := NewPatternMatch(read, c.Class, c.Bindings, booleanType)
		chain = NewConditional(file, line, test, c.Body, chain)
	}
	return Append(assign, chain)
}
