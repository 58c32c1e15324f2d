package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

func TestLookupFieldOnInstanceReadsField(t *testing.T) {
	object := objectClass()
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	_, pointType, pointTable := symbols.NewClassSymbol("t.leda", 1, g, "Point")
	pointType.Parent = object
	integer := &types.ClassType{Name: "integer", Parent: object}
	field := pointTable.AddVariable("t.leda", 1, "x", integer)

	base := NewGetOffset(NewGetCurrentContext(), 3, pointType)
	e := LookupField("t.leda", 1, base, pointType, "x")

	gof, ok := e.(*GetOffset)
	require.True(t, ok)
	assert.Equal(t, field.Location, gof.Location)
	assert.Same(t, base, gof.Base)
}

func TestLookupFieldOnInstanceMethodReturnsMethodContext(t *testing.T) {
	object := objectClass()
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	_, pointType, pointTable := symbols.NewClassSymbol("t.leda", 1, g, "Point")
	pointType.Parent = object
	symbols.AddFunctionSymbol("t.leda", 1, pointTable, "norm", pointType)

	base := NewGetOffset(NewGetCurrentContext(), 3, pointType)
	e := LookupField("t.leda", 1, base, pointType, "norm")

	_, ok := e.(*MakeMethodContext)
	assert.True(t, ok)
}

func TestLookupFieldThroughResolvedTypeRewritesMemberType(t *testing.T) {
	object := objectClass()
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	integer := &types.ClassType{Name: "integer", Parent: object}
	_, boxType, boxTable := symbols.NewClassSymbol("t.leda", 1, g, "Box")
	boxType.Parent = object
	placeholder := &types.UnresolvedType{Base: object}
	boxTable.AddVariable("t.leda", 1, "value", placeholder)

	rt := &types.ResolvedType{
		Base:         boxType,
		Patterns:     []*types.UnresolvedType{placeholder},
		Replacements: []types.ArgSym{&fakeArgSym{typ: integer, form: types.ByValue}},
	}

	base := NewGetOffset(NewGetCurrentContext(), 3, rt)
	e := LookupField("t.leda", 1, base, rt, "value")

	gof, ok := e.(*GetOffset)
	require.True(t, ok)
	assert.Same(t, integer, gof.ResultType())
}

func TestLookupFieldOnClassDefSynthesizesClosure(t *testing.T) {
	object := objectClass()
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	_, pointType, pointTable := symbols.NewClassSymbol("t.leda", 1, g, "Point")
	pointType.Parent = object
	symbols.AddFunctionSymbol("t.leda", 1, pointTable, "origin", pointType)

	e := LookupField("t.leda", 1, nil, &types.ClassDefType{Class: pointType}, "origin")
	_, ok := e.(*MakeClosure)
	assert.True(t, ok)
}

func TestLookupFieldUnknownNamePanics(t *testing.T) {
	object := objectClass()
	g := symbols.NewTable(symbols.ScopeGlobal, nil)
	_, pointType, _ := symbols.NewClassSymbol("t.leda", 1, g, "Point")
	pointType.Parent = object

	assert.Panics(t, func() {
		LookupField("t.leda", 1, NewGetCurrentContext(), pointType, "nope")
	})
}
