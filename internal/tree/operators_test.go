package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

func TestResolveBinaryOperatorPrefersClassMethod(t *testing.T) {
	object := objectClass()
	integer := &types.ClassType{Name: "integer", Parent: object}
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	_, vecType, vecTable := symbols.NewClassSymbol("t.leda", 1, g, "Vector")
	vecType.Parent = object
	plusSym, plusScope := symbols.AddFunctionSymbol("t.leda", 1, vecTable, "+", vecType)
	arg := plusScope.AddArgument("t.leda", 1, "other", vecType, types.ByValue)
	plusSym.DeclaredType = types.NewFunctionType([]types.ArgSym{arg}, vecType)

	left := NewGetOffset(NewGetCurrentContext(), 3, vecType)
	right := NewGetOffset(NewGetCurrentContext(), 4, vecType)

	e := ResolveBinaryOperator("t.leda", 1, g, "+", left, right)
	call, ok := e.(*DoFunctionCall)
	require.True(t, ok)
	_, ok = call.Callee.(*MakeMethodContext)
	assert.True(t, ok)
}

func TestResolveBinaryOperatorFallsBackToFreeFunction(t *testing.T) {
	object := objectClass()
	integer := &types.ClassType{Name: "integer", Parent: object}
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	plusSym := g.AddVariable("t.leda", 1, "+", nil)
	arg1 := &fakeArgSym{typ: integer, form: types.ByValue}
	arg2 := &fakeArgSym{typ: integer, form: types.ByValue}
	plusSym.DeclaredType = types.NewFunctionType([]types.ArgSym{arg1, arg2}, integer)

	left := NewIntegerConstant(1, integer)
	right := NewIntegerConstant(2, integer)

	e := ResolveBinaryOperator("t.leda", 1, g, "+", left, right)
	call, ok := e.(*DoFunctionCall)
	require.True(t, ok)
	_, ok = call.Callee.(*GetGlobalOffset)
	assert.True(t, ok)
}

func TestGenerateLeftArrowLowersToLedaArrowCall(t *testing.T) {
	object := objectClass()
	relationType := types.NewFunctionType(nil, nil)
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	arrowSym := g.AddVariable("t.leda", 1, "Leda_arrow", nil)
	refArg := &fakeArgSym{typ: object, form: types.ByReference}
	valArg := &fakeArgSym{typ: object, form: types.ByValue}
	arrowSym.DeclaredType = types.NewFunctionType([]types.ArgSym{refArg, valArg}, relationType)

	ref := NewMakeReference(NewGetCurrentContext(), 3)
	value := NewIntegerConstant(1, object)

	e := GenerateLeftArrow("t.leda", 1, g, ref, value)
	call, ok := e.(*DoFunctionCall)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
	assert.Same(t, ref, call.Args[0])
}

func TestGenerateLeftArrowRejectsNonLvalueLeftSide(t *testing.T) {
	object := objectClass()
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	assert.Panics(t, func() {
		GenerateLeftArrow("t.leda", 1, g, NewIntegerConstant(1, object), NewIntegerConstant(2, object))
	})
}

func TestCoerceBooleanRelationConvertsEachDirection(t *testing.T) {
	object := objectClass()
	boolean := &types.ClassType{Name: "boolean", Parent: object}
	relation := types.NewFunctionType(nil, boolean)

	b := NewIntegerConstant(1, boolean)
	asRelation := CoerceBooleanRelation("t.leda", 1, b, relation, boolean, relation)
	closure, ok := asRelation.(*MakeClosure)
	require.True(t, ok)
	assert.Equal(t, SReturn, closure.Code.Kind)

	r := NewGetOffset(NewGetCurrentContext(), 3, relation)
	asBoolean := CoerceBooleanRelation("t.leda", 1, r, boolean, boolean, relation)
	_, ok = asBoolean.(*DoFunctionCall)
	assert.True(t, ok)
}

func TestCoerceBooleanRelationPassesThroughWhenAlreadyConformant(t *testing.T) {
	object := objectClass()
	boolean := &types.ClassType{Name: "boolean", Parent: object}
	b := NewIntegerConstant(1, boolean)

	out := CoerceBooleanRelation("t.leda", 1, b, boolean, boolean, nil)
	assert.Same(t, b, out)
}

func TestCoerceBooleanRelationFailsOnUnrelatedTypes(t *testing.T) {
	object := objectClass()
	boolean := &types.ClassType{Name: "boolean", Parent: object}
	str := &types.ClassType{Name: "string", Parent: object}
	s := NewStringConstant("x", str)

	assert.Panics(t, func() { CoerceBooleanRelation("t.leda", 1, s, boolean, boolean, nil) })
}
