package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

func objectClass() *types.ClassType {
	object := &types.ClassType{Name: "object", IsObjectRoot: true}
	object.Parent = object
	return object
}

func TestGenerateCallClassDefCalleeBuildsInstance(t *testing.T) {
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	object := objectClass()
	_, pointType, pointTable := symbols.NewClassSymbol("t.leda", 1, g, "Point")
	pointType.Parent = object
	integer := &types.ClassType{Name: "integer", Parent: object}
	pointTable.AddVariable("t.leda", 1, "x", integer)
	pointTable.AddVariable("t.leda", 1, "y", integer)

	callee := NewGetGlobalOffset(0, &types.ClassDefType{Class: pointType})
	args := []Expr{NewIntegerConstant(1, integer), NewIntegerConstant(2, integer)}

	e := GenerateCall("t.leda", 1, callee, args)
	bi, ok := e.(*BuildInstance)
	require.True(t, ok)
	assert.Equal(t, 4, bi.Size)
	assert.Same(t, pointType, bi.ResultType())
}

func TestGenerateCallFunctionCalleeCoercesByNameArgument(t *testing.T) {
	object := objectClass()
	integer := &types.ClassType{Name: "integer", Parent: object}
	arg := &fakeArgSym{name: "f", typ: integer, form: types.ByName}
	ft := types.NewFunctionType([]types.ArgSym{arg}, integer)

	callee := NewGetGlobalOffset(0, ft)
	raw := NewIntegerConstant(5, integer)

	e := GenerateCall("t.leda", 1, callee, []Expr{raw})
	call, ok := e.(*DoFunctionCall)
	require.True(t, ok)
	require.Len(t, call.Args, 1)
	closure, ok := call.Args[0].(*MakeClosure)
	require.True(t, ok)
	ret, ok := closure.Code.Expr.(*IntegerConstant)
	require.True(t, ok)
	assert.EqualValues(t, 5, ret.Value)
}

func TestGenerateCallByReferenceRequiresLvalue(t *testing.T) {
	object := objectClass()
	integer := &types.ClassType{Name: "integer", Parent: object}
	arg := &fakeArgSym{name: "r", typ: integer, form: types.ByReference}
	ft := types.NewFunctionType([]types.ArgSym{arg}, integer)
	callee := NewGetGlobalOffset(0, ft)

	assert.Panics(t, func() {
		GenerateCall("t.leda", 1, callee, []Expr{NewIntegerConstant(1, integer)})
	})

	ref := NewMakeReference(NewGetCurrentContext(), 3)
	assert.NotPanics(t, func() {
		GenerateCall("t.leda", 1, callee, []Expr{ref})
	})
}

func TestGenerateReturnCallRecognizesSelfTailCall(t *testing.T) {
	object := objectClass()
	integer := &types.ClassType{Name: "integer", Parent: object}
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	fnSym, fnScope := symbols.AddFunctionSymbol("t.leda", 1, g, "loop", nil)
	arg := fnScope.AddArgument("t.leda", 1, "n", integer, types.ByValue)
	fnSym.DeclaredType = types.NewFunctionType([]types.ArgSym{arg}, integer)

	callee := NewGetGlobalOffset(fnSym.Location, fnSym.DeclaredType)
	// The sole raw argument must be exactly getOffset(getCurrentContext, 4)
	// — the function's own single parameter, passed through verbatim.
	passthrough := NewGetOffset(NewGetCurrentContext(), 4, integer)
	stmt := GenerateReturnCall("t.leda", 1, fnScope, callee, []Expr{passthrough})

	assert.Equal(t, STailCall, stmt.Kind)
}

func TestGenerateReturnCallNonPassthroughArgumentIsOrdinaryReturn(t *testing.T) {
	object := objectClass()
	integer := &types.ClassType{Name: "integer", Parent: object}
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	fnSym, fnScope := symbols.AddFunctionSymbol("t.leda", 1, g, "loop", nil)
	arg := fnScope.AddArgument("t.leda", 1, "n", integer, types.ByValue)
	fnSym.DeclaredType = types.NewFunctionType([]types.ArgSym{arg}, integer)

	callee := NewGetGlobalOffset(fnSym.Location, fnSym.DeclaredType)
	// Not the verbatim-passthrough shape (a literal, not the argument
	// itself) — must fall back to an ordinary return even though this
	// is still self-recursion.
	stmt := GenerateReturnCall("t.leda", 1, fnScope, callee, []Expr{NewIntegerConstant(1, integer)})

	assert.Equal(t, SReturn, stmt.Kind)
	_, ok := stmt.Expr.(*DoFunctionCall)
	assert.True(t, ok)
}

func TestGenerateReturnCallOutsideFunctionScopeIsOrdinaryReturn(t *testing.T) {
	object := objectClass()
	integer := &types.ClassType{Name: "integer", Parent: object}
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	calleeSym, _ := symbols.AddFunctionSymbol("t.leda", 1, g, "callee", nil)
	calleeSym.DeclaredType = types.NewFunctionType(nil, integer)

	callee := NewGetGlobalOffset(calleeSym.Location, calleeSym.DeclaredType)
	stmt := GenerateReturnCall("t.leda", 1, nil, callee, nil)

	assert.Equal(t, SReturn, stmt.Kind)
	_, ok := stmt.Expr.(*DoFunctionCall)
	assert.True(t, ok)
}

type fakeArgSym struct {
	name string
	typ  types.Type
	form types.Form
}

func (f *fakeArgSym) ArgName() string     { return f.name }
func (f *fakeArgSym) ArgType() types.Type { return f.typ }
func (f *fakeArgSym) ArgForm() types.Form { return f.form }
func (f *fakeArgSym) ArgLocation() int    { return 0 }
