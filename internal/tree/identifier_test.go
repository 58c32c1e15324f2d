package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

func TestResolveIdentifierGlobalUsesGetGlobalOffset(t *testing.T) {
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	integer := &types.ClassType{Name: "integer"}
	g.AddVariable("t.leda", 1, "x", integer)

	e := ResolveIdentifier("t.leda", 1, g, "x")
	gof, ok := e.(*GetGlobalOffset)
	require.True(t, ok)
	assert.Equal(t, 0, gof.Location)
}

func TestResolveIdentifierFunctionLocalGoesThroughLocalsCell(t *testing.T) {
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	fn := symbols.NewTable(symbols.ScopeFunction, g)
	integer := &types.ClassType{Name: "integer"}
	fn.AddVariable("t.leda", 1, "tmp", integer)

	e := ResolveIdentifier("t.leda", 1, fn, "tmp")
	outer, ok := e.(*GetOffset)
	require.True(t, ok)
	assert.Equal(t, 0, outer.Location)
	locals, ok := outer.Base.(*GetOffset)
	require.True(t, ok)
	assert.Equal(t, 3, locals.Location)
	_, ok = locals.Base.(*GetCurrentContext)
	assert.True(t, ok)
}

func TestResolveIdentifierByNameArgumentWrapsEvalThunk(t *testing.T) {
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	fn := symbols.NewTable(symbols.ScopeFunction, g)
	integer := &types.ClassType{Name: "integer"}
	fn.AddArgument("t.leda", 1, "x", integer, types.ByName)

	e := ResolveIdentifier("t.leda", 1, fn, "x")
	thunk, ok := e.(*EvalThunk)
	require.True(t, ok)
	_, ok = thunk.Base.(*GetOffset)
	assert.True(t, ok)
}

func TestResolveIdentifierByReferenceArgumentWrapsEvalReference(t *testing.T) {
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	fn := symbols.NewTable(symbols.ScopeFunction, g)
	integer := &types.ClassType{Name: "integer"}
	fn.AddArgument("t.leda", 1, "x", integer, types.ByReference)

	e := ResolveIdentifier("t.leda", 1, fn, "x")
	_, ok := e.(*EvalReference)
	assert.True(t, ok)
}

func TestResolveIdentifierInMethodWalksToReceiverField(t *testing.T) {
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	_, cellType, cellTable := symbols.NewClassSymbol("t.leda", 1, g, "Cell")
	integer := &types.ClassType{Name: "integer"}
	field := cellTable.AddVariable("t.leda", 1, "value", integer)
	_, methodScope := symbols.AddFunctionSymbol("t.leda", 1, cellTable, "get", cellType)

	e := ResolveIdentifier("t.leda", 1, methodScope, "value")
	gof, ok := e.(*GetOffset)
	require.True(t, ok)
	assert.Equal(t, field.Location, gof.Location)
	receiverHop, ok := gof.Base.(*GetOffset)
	require.True(t, ok)
	assert.Equal(t, 1, receiverHop.Location)
}

func TestResolveIdentifierInMethodFindsSiblingMethod(t *testing.T) {
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	_, cellType, cellTable := symbols.NewClassSymbol("t.leda", 1, g, "Cell")
	symbols.AddFunctionSymbol("t.leda", 1, cellTable, "helper", cellType)
	_, methodScope := symbols.AddFunctionSymbol("t.leda", 1, cellTable, "get", cellType)

	e := ResolveIdentifier("t.leda", 1, methodScope, "helper")
	_, ok := e.(*MakeMethodContext)
	assert.True(t, ok)
}

func TestResolveIdentifierUndeclaredPanics(t *testing.T) {
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	assert.Panics(t, func() { ResolveIdentifier("t.leda", 1, g, "nope") })
}
