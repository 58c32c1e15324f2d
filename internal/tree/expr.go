// Package tree implements the L4 layer: the typed expression/statement
// tree builder of §3.4/§4.4 — construction of nodes while enforcing
// type conformance, argument-form discipline, method/field lookup,
// operator resolution, tail-call detection, and the lowering of surface
// constructs to the core tree.
//
// The upstream parser (out of scope per §1) is the only caller of these
// constructors; it supplies already-built symbol-table, type and
// sub-expression values and observes fileName/linenumber as process-wide
// state (§6.1) — here, plain parameters threaded through every call.
package tree

import "github.com/GunterMueller/Leda-Language/internal/types"

// ExprKind discriminates the expression opcodes of §4.5.
type ExprKind int

const (
	KGetCurrentContext ExprKind = iota
	KGetOffset
	KGetGlobalOffset
	KGetGlobalContext
	KMakeReference
	KAssignment
	KMakeMethodContext
	KMakeClosure
	KDoFunctionCall
	KEvalThunk
	KEvalReference
	KDoSpecialCall
	KBuildInstance
	KCommaOp
	KPatternMatch
	KIntegerConstant
	KStringConstant
	KRealConstant
)

// Expr is an expression-tree node. Every node caches its own result
// type; a nil ResultType means "void/no value" (§3.4).
type Expr interface {
	ExprKind() ExprKind
	ResultType() types.Type
}

type exprBase struct {
	rt types.Type
}

func (e *exprBase) ResultType() types.Type { return e.rt }

// GetCurrentContext returns the currentContext register.
type GetCurrentContext struct{ exprBase }

func (*GetCurrentContext) ExprKind() ExprKind { return KGetCurrentContext }

// NewGetCurrentContext builds the single context-reading leaf node.
// Result type is always nil (it is an address, not a typed value, in
// the positions the builder actually uses it — callers that need the
// self type layer a constant-class wrapper on top).
func NewGetCurrentContext() *GetCurrentContext { return &GetCurrentContext{} }

// GetOffset evaluates Base, null-checks it, and returns base.slot[Location].
type GetOffset struct {
	exprBase
	Base     Expr
	Location int
}

func (*GetOffset) ExprKind() ExprKind { return KGetOffset }

func NewGetOffset(base Expr, location int, rt types.Type) *GetOffset {
	return &GetOffset{exprBase{rt}, base, location}
}

// GetGlobalOffset returns globalContext.slot[Location].
type GetGlobalOffset struct {
	exprBase
	Location int
}

func (*GetGlobalOffset) ExprKind() ExprKind { return KGetGlobalOffset }

func NewGetGlobalOffset(location int, rt types.Type) *GetGlobalOffset {
	return &GetGlobalOffset{exprBase{rt}, location}
}

// GetGlobalContext returns the globalContext register itself, not one
// of its slots — the one leaf a MakeReference needs as its Base to
// build a writable address into a global variable, exactly the role
// GetCurrentContext plays for a locals cell or a receiver.
type GetGlobalContext struct{ exprBase }

func (*GetGlobalContext) ExprKind() ExprKind { return KGetGlobalContext }

// NewGetGlobalContext builds the global-context-reading leaf node.
func NewGetGlobalContext() *GetGlobalContext { return &GetGlobalContext{} }

// MakeReference evaluates Base and allocates a reference cell
// {Base, Location}. Integer interning must not be used for its
// payload, per §4.5.
type MakeReference struct {
	exprBase
	Base     Expr
	Location int
}

func (*MakeReference) ExprKind() ExprKind { return KMakeReference }

func NewMakeReference(base Expr, location int) *MakeReference {
	return &MakeReference{exprBase{nil}, base, location}
}

// Assignment covers both shapes of §4.5: Left is either a MakeReference
// (direct store) or any other lvalue-shaped expression yielding a
// reference cell to dereference.
type Assignment struct {
	exprBase
	Left, Right Expr
}

func (*Assignment) ExprKind() ExprKind { return KAssignment }

func NewAssignment(left, right Expr) *Assignment {
	return &Assignment{exprBase{nil}, left, right}
}

// MakeMethodContext allocates a 3-slot {·, base, base.slot[0].slot[Location]}
// virtual-dispatch cell.
type MakeMethodContext struct {
	exprBase
	Base     Expr
	Location int
}

func (*MakeMethodContext) ExprKind() ExprKind { return KMakeMethodContext }

func NewMakeMethodContext(base Expr, location int, rt types.Type) *MakeMethodContext {
	return &MakeMethodContext{exprBase{rt}, base, location}
}

// MakeClosure allocates a 2-slot {ctx, code} cell. Code is the
// statement-tree root of the closure/thunk body.
type MakeClosure struct {
	exprBase
	Ctx  Expr
	Code *Stmt
}

func (*MakeClosure) ExprKind() ExprKind { return KMakeClosure }

func NewMakeClosure(ctx Expr, code *Stmt, rt types.Type) *MakeClosure {
	return &MakeClosure{exprBase{rt}, ctx, code}
}

// DoFunctionCall calls Callee with Args per the calling convention of
// §4.5.
type DoFunctionCall struct {
	exprBase
	Callee Expr
	Args   []Expr
}

func (*DoFunctionCall) ExprKind() ExprKind { return KDoFunctionCall }

func NewDoFunctionCall(callee Expr, args []Expr, rt types.Type) *DoFunctionCall {
	return &DoFunctionCall{exprBase{rt}, callee, args}
}

// EvalThunk installs Base's saved context as currentContext, runs its
// code, and restores the previous currentContext.
type EvalThunk struct {
	exprBase
	Base Expr
}

func (*EvalThunk) ExprKind() ExprKind { return KEvalThunk }

func NewEvalThunk(base Expr, rt types.Type) *EvalThunk {
	return &EvalThunk{exprBase{rt}, base}
}

// EvalReference dereferences a reference cell:
// base.slot[0].slot[base.slot[2]].
type EvalReference struct {
	exprBase
	Base Expr
}

func (*EvalReference) ExprKind() ExprKind { return KEvalReference }

func NewEvalReference(base Expr, rt types.Type) *EvalReference {
	return &EvalReference{exprBase{rt}, base}
}

// DoSpecialCall dispatches to the primitive of the given Index (§6.2).
type DoSpecialCall struct {
	exprBase
	Index int
	Args  []Expr
}

func (*DoSpecialCall) ExprKind() ExprKind { return KDoSpecialCall }

func NewDoSpecialCall(index int, args []Expr, rt types.Type) *DoSpecialCall {
	return &DoSpecialCall{exprBase{rt}, index, args}
}

// BuildInstance allocates a Size-slot cell: slot 0 = evaluated Table,
// slot 1 = global context, remaining slots filled from evaluated Args
// in list order starting at slot 2.
type BuildInstance struct {
	exprBase
	Table Expr
	Size  int
	Args  []Expr
}

func (*BuildInstance) ExprKind() ExprKind { return KBuildInstance }

func NewBuildInstance(table Expr, size int, args []Expr, rt types.Type) *BuildInstance {
	return &BuildInstance{exprBase{rt}, table, size, args}
}

// CommaOp evaluates A and discards it, then evaluates and returns B.
type CommaOp struct {
	exprBase
	A, B Expr
}

func (*CommaOp) ExprKind() ExprKind { return KCommaOp }

func NewCommaOp(a, b Expr) *CommaOp {
	return &CommaOp{exprBase{b.ResultType()}, a, b}
}

// PatternMatch walks Base's class chain looking for ClassExpr, binding
// each entry of Bindings (already-built reference expressions) to the
// corresponding instance slot on a match. Result is boolean.
type PatternMatch struct {
	exprBase
	Base      Expr
	ClassExpr Expr
	Bindings  []Expr
}

func (*PatternMatch) ExprKind() ExprKind { return KPatternMatch }

func NewPatternMatch(base, classExpr Expr, bindings []Expr, booleanType types.Type) *PatternMatch {
	return &PatternMatch{exprBase{booleanType}, base, classExpr, bindings}
}

// IntegerConstant, StringConstant and RealConstant are genIntegerConstant/
// genStringConstant/genRealConstant from the original's interp.c — an
// opcode family §4.5's table omits but the tree builder (array literals,
// numeric literals generally) cannot do without; see SPEC_FULL.md §D.7.
type IntegerConstant struct {
	exprBase
	Value int64
}

func (*IntegerConstant) ExprKind() ExprKind { return KIntegerConstant }

func NewIntegerConstant(v int64, rt types.Type) *IntegerConstant {
	return &IntegerConstant{exprBase{rt}, v}
}

type StringConstant struct {
	exprBase
	Value string
}

func (*StringConstant) ExprKind() ExprKind { return KStringConstant }

func NewStringConstant(v string, rt types.Type) *StringConstant {
	return &StringConstant{exprBase{rt}, v}
}

type RealConstant struct {
	exprBase
	Value float64
}

func (*RealConstant) ExprKind() ExprKind { return KRealConstant }

func NewRealConstant(v float64, rt types.Type) *RealConstant {
	return &RealConstant{exprBase{rt}, v}
}
