package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunterMueller/Leda-Language/internal/types"
)

func TestGlobalVariableSlotsAreSequential(t *testing.T) {
	g := NewTable(ScopeGlobal, nil)
	a := g.AddVariable("t.leda", 1, "a", nil)
	b := g.AddVariable("t.leda", 2, "b", nil)

	assert.Equal(t, 0, a.Location)
	assert.Equal(t, 1, b.Location)
	assert.Equal(t, 2, g.Size)
}

func TestFunctionArgumentsStartAtSlotFourLocalsAtZero(t *testing.T) {
	fn := NewTable(ScopeFunction, nil)
	arg1 := fn.AddArgument("t.leda", 1, "x", nil, types.ByValue)
	arg2 := fn.AddArgument("t.leda", 1, "y", nil, types.ByReference)
	local := fn.AddVariable("t.leda", 1, "tmp", nil)

	assert.Equal(t, 4, arg1.Location)
	assert.Equal(t, 5, arg2.Location)
	assert.Equal(t, 0, local.Location)
}

func TestAddConstantRejectsClassScope(t *testing.T) {
	cls := NewTable(ScopeClass, nil)
	assert.Panics(t, func() { cls.AddConstant("t.leda", 1, "k", nil, nil) })
}

func TestAddConstantWrapsDeclaredTypeAsConstant(t *testing.T) {
	g := NewTable(ScopeGlobal, nil)
	integer := &types.ClassType{Name: "integer"}
	s := g.AddConstant("t.leda", 1, "k", integer, "value-expr")

	ct, ok := s.DeclaredType.(*types.ConstantType)
	require.True(t, ok)
	assert.Equal(t, integer, ct.Base)
	assert.Equal(t, "value-expr", s.ValueExpr)
}

func TestAddTypeConsumesNoSlot(t *testing.T) {
	g := NewTable(ScopeGlobal, nil)
	g.AddVariable("t.leda", 1, "a", nil)
	before := g.Size
	s := g.AddType("t.leda", 1, "Pair", nil)

	assert.Equal(t, before, g.Size)
	assert.Equal(t, -1, s.Location)
}

func TestLookupWalksEnclosingChain(t *testing.T) {
	g := NewTable(ScopeGlobal, nil)
	g.AddVariable("t.leda", 1, "outer", nil)
	fn := NewTable(ScopeFunction, g)

	found, scope := fn.Lookup("outer")
	require.NotNil(t, found)
	assert.Equal(t, g, scope)

	_, notFound := fn.Lookup("missing")
	assert.Nil(t, notFound)
}

func TestNewClassSymbolThenFillInParentSplicesInheritedMembers(t *testing.T) {
	g := NewTable(ScopeGlobal, nil)

	_, objectType, objectTable := NewClassSymbol("t.leda", 1, g, "object")
	objectType.Parent = objectType
	objectType.IsObjectRoot = true
	xField := objectTable.AddVariable("t.leda", 1, "x", objectType)
	methodSym, methodScope := AddFunctionSymbol("t.leda", 1, objectTable, "bump", objectType)
	methodSym.DeclaredType = types.NewFunctionType(nil, objectType)
	_ = methodScope

	_, childType, childTable := NewClassSymbol("t.leda", 1, g, "Cell")
	FillInParent(childType, childTable, objectType, nil)

	require.Equal(t, objectType, childType.Parent)
	require.Len(t, childTable.Symbols, 1)
	assert.Equal(t, xField.Location, childTable.Symbols[0].Location)
	require.Len(t, childTable.Methods, 1)
	assert.True(t, childTable.Methods[0].Inherited)
	assert.Equal(t, "bump", childTable.Methods[0].Name)
}

func TestAddFunctionSymbolBindsSelfAtSlotOneInClassScope(t *testing.T) {
	g := NewTable(ScopeGlobal, nil)
	_, cellType, cellTable := NewClassSymbol("t.leda", 1, g, "Cell")

	_, funcScope := AddFunctionSymbol("t.leda", 1, cellTable, "bump", cellType)

	self := funcScope.LookupLocal("self")
	require.NotNil(t, self)
	assert.Equal(t, 1, self.Location)
	ct, ok := self.DeclaredType.(*types.ConstantType)
	require.True(t, ok)
	assert.Equal(t, cellType, ct.Base)
}

func TestAddFunctionSymbolOverridesInheritedMethod(t *testing.T) {
	g := NewTable(ScopeGlobal, nil)
	_, objectType, objectTable := NewClassSymbol("t.leda", 1, g, "object")
	AddFunctionSymbol("t.leda", 1, objectTable, "f", objectType)

	_, childType, childTable := NewClassSymbol("t.leda", 1, g, "B")
	FillInParent(childType, childTable, objectType, nil)
	require.True(t, childTable.Methods[0].Inherited)

	sym, _ := AddFunctionSymbol("t.leda", 1, childTable, "f", childType)
	assert.False(t, sym.Inherited)
	assert.Same(t, childTable.Methods[0], sym)
}
