// Package bootstrap implements the L6 layer: the initialCreation
// sequence of §4.6 that seeds the global symbol table and, once a
// frontend has finished extending that table with a whole program's
// declarations, materializes the matching heap-resident global
// context — exactly the two-phase split the original's pipeline has
// (yacc populates symbol tables first; initialCreation then allocates
// and fills in every slot in one pass after parsing completes), just
// expressed as two functions a driver calls in sequence instead of one
// function running as a side effect of process startup.
package bootstrap

import (
	"github.com/GunterMueller/Leda-Language/internal/config"
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/eval"
	"github.com/GunterMueller/Leda-Language/internal/heap"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// bootstrapFile is the synthetic source position bootstrap-declared
// symbols carry; nothing ever reports a diagnostic against it since
// these declarations can't fail (no user input is involved).
const bootstrapFile = "<bootstrap>"

// Seed holds the nine seed classes of SPEC_FULL.md §D.4 and the
// relation function type, by name, so both a frontend parser and
// Materialize can refer to them directly instead of re-resolving them
// out of the global table.
type Seed struct {
	Object     *types.ClassType
	Class      *types.ClassType
	Boolean    *types.ClassType
	Integer    *types.ClassType
	Real       *types.ClassType
	String     *types.ClassType
	TrueClass  *types.ClassType
	FalseClass *types.ClassType
	Undefined  *types.ClassType
	Array      *types.ClassType
	Relation   *types.FunctionType
}

// Runtime bundles everything a driver needs after Materialize: the
// heap, the evaluator with its class/boolean/interned-integer
// registers filled in, the global symbol table, and the seed classes.
type Runtime struct {
	Heap    *heap.Heap
	Eval    *eval.Evaluator
	Globals *symbols.Table

	*Seed
}

// classDecl pairs a declared class with the global symbol naming it,
// and the class's own member table, so later steps don't need to
// re-derive any of the three from one another.
type classDecl struct {
	ct    *types.ClassType
	sym   *symbols.Symbol
	table *symbols.Table
}

// SeedGlobals declares the nine seed classes, the relation function
// type, and the NIL/true/false global constants purely at the
// symbol-table level — no heap exists yet, matching the original's
// parser-only phase before any allocation. A frontend parser extends
// the returned table with the rest of a program's declarations
// (top-level functions, user classes); Materialize is then called
// exactly once, after parsing finishes, to allocate and fill in every
// slot the final table describes.
func SeedGlobals() (*symbols.Table, *Seed) {
	globals := symbols.NewTable(symbols.ScopeGlobal, nil)

	object := declareRootClass(globals, "object")
	classMeta := declareClass(globals, "Class", object.ct)
	classMeta.ct.IsMetaclass = true
	boolean := declareClass(globals, "boolean", object.ct)
	integer := declareClass(globals, "integer", object.ct)
	real := declareClass(globals, "real", object.ct)
	str := declareClass(globals, "string", object.ct)
	undefined := declareUndefinedClass(globals)

	globals.AddConstant(bootstrapFile, 0, "NIL", undefined.ct, nil)
	globals.AddConstant(bootstrapFile, 0, "true", boolean.ct, nil)
	globals.AddConstant(bootstrapFile, 0, "false", boolean.ct, nil)

	// §4.4.6 resolves every operator, built-in or user-defined, through
	// the same left-operand-method-then-global-function walk; rather
	// than special-casing +, <, and the rest in the front end, the seed
	// classes get real methods here so that walk finds them like it
	// would find any overload (see operators.go). This runs before True
	// and False are declared below: FillInParent snapshots a parent's
	// method table at the moment a subclass is declared, so boolean's
	// "=" and "~=" must already exist here for True/False to inherit
	// them.
	installNumericAndBooleanOperators(globals, boolean.ct, integer.ct, real.ct, str.ct)

	trueClass := declareClass(globals, "True", boolean.ct)
	falseClass := declareClass(globals, "False", boolean.ct)
	installBooleanLogic(globals, trueClass.ct, falseClass.ct, boolean.ct)

	// array is not one of SPEC_FULL.md's nine seed classes, but
	// tree.LowerArrayLiteral's contract ("locate `array` class in
	// globals") needs one to already exist by the time any array
	// literal is lowered: it is the one piece of the standard
	// library spec.md leaves out of scope that is still load-bearing
	// for the core tree builder, so it is seeded here rather than left
	// for a frontend to declare redundantly.
	array := declareClass(globals, "array", object.ct)
	array.table.AddVariable(bootstrapFile, 0, "lowBound", integer.ct)
	array.table.AddVariable(bootstrapFile, 0, "highBound", integer.ct)
	array.table.AddVariable(bootstrapFile, 0, "payload", object.ct)
	installArrayOperators(globals, array.ct, integer.ct)

	// relation ties together §4.4.5's for-relation loop and §D.1's
	// arrow operator: a relation value is itself a zero-argument
	// callable yielding boolean, matching tree.LowerForRelation's own
	// assumption about the type it's handed.
	relation := types.NewFunctionType(nil, boolean.ct)
	globals.AddType(bootstrapFile, 0, "relation", relation)

	return globals, &Seed{
		Object: object.ct, Class: classMeta.ct, Boolean: boolean.ct, Integer: integer.ct,
		Real: real.ct, String: str.ct, TrueClass: trueClass.ct, FalseClass: falseClass.ct,
		Undefined: undefined.ct, Array: array.ct, Relation: relation,
	}
}

// Materialize performs §4.6's actual initialCreation work against a
// global table that has already been fully populated (by SeedGlobals
// followed by whatever a frontend parser added): allocate globalContext
// sized to the final table, build every class's static table (seed or
// user-declared alike) in declaration order — a class's parent is
// always declared, hence already materialized, before it, since a
// program can only subclass a name already in scope — bind NIL/true/
// false, intern small integers, and wire the evaluator's registers.
func Materialize(globals *symbols.Table, seed *Seed) *Runtime {
	h := heap.NewDefault()
	ev := eval.New(h)

	globalCtx := h.Alloc(globals.Size)
	h.SetGlobalContext(globalCtx)

	for _, sym := range globals.Symbols {
		if sym.Kind == symbols.KindClassDef {
			materializeOneClass(h, globalCtx, sym)
		}
	}
	for _, sym := range globals.Symbols {
		if sym.Kind == symbols.KindClassDef {
			sym.Class.StaticTable.SetClassMeta(seed.Class.StaticTable)
		}
	}

	trueObj := h.NewInstance(2)
	trueObj.SetSlot(0, seed.TrueClass.StaticTable)
	trueObj.SetSlot(1, globalCtx)

	falseObj := h.NewInstance(2)
	falseObj.SetSlot(0, seed.FalseClass.StaticTable)
	falseObj.SetSlot(1, globalCtx)

	nilSym := globals.LookupLocal("NIL")
	trueSym := globals.LookupLocal("true")
	falseSym := globals.LookupLocal("false")
	globalCtx.SetSlot(nilSym.Location, heap.Nil)
	globalCtx.SetSlot(trueSym.Location, trueObj)
	globalCtx.SetSlot(falseSym.Location, falseObj)

	ev.IntegerClass = seed.Integer.StaticTable
	ev.RealClass = seed.Real.StaticTable
	ev.StringClass = seed.String.StaticTable
	ev.BooleanClass = seed.Boolean.StaticTable
	ev.TrueObject = trueObj
	ev.FalseObject = falseObj
	ev.InternedIntegers = internIntegers(h, seed.Integer.StaticTable, globalCtx)

	// doingInitialization flips false here: currentContext becomes the
	// global context, exactly matching initialCreation's final step,
	// ready for the driver to run the top-level statement list.
	h.SetCurrentContext(globalCtx)

	return &Runtime{Heap: h, Eval: ev, Globals: globals, Seed: seed}
}

// InitialCreation is the seed-only convenience entry point: it declares
// and materializes just the nine seed classes with no further program
// attached, useful for tests and for any driver that has no frontend of
// its own wired in yet.
func InitialCreation() *Runtime {
	globals, seed := SeedGlobals()
	return Materialize(globals, seed)
}

// declareRootClass declares object: it is its own conformance root
// (§9's design note — CheckClass special-cases IsObjectRoot rather than
// walking a self-referential parent chain), so no heap class-table
// parent slot is ever set for it; the chain every pattern-match and
// virtual-dispatch walk performs simply terminates there.
func declareRootClass(globals *symbols.Table, name string) classDecl {
	sym, ct, table := symbols.NewClassSymbol(bootstrapFile, 0, globals, name)
	ct.Parent = ct
	ct.IsObjectRoot = true
	return classDecl{ct, sym, table}
}

// declareClass declares name as an ordinary direct subclass of parent,
// splicing in parent's (empty, for every seed class) members via
// FillInParent.
func declareClass(globals *symbols.Table, name string, parent *types.ClassType) classDecl {
	sym, ct, table := symbols.NewClassSymbol(bootstrapFile, 0, globals, name)
	symbols.FillInParent(ct, table, parent, nil)
	return classDecl{ct, sym, table}
}

// declareUndefinedClass binds the distinguished types.Undefined value
// (NIL's nominal type, conformed-to by everything per §3.1) as a global
// class symbol, rather than allocating a second ClassType for it the
// way declareClass would — every other package that type-checks
// against NIL compares by identity to the same types.Undefined pointer,
// so bootstrap must reuse it, not shadow it.
func declareUndefinedClass(globals *symbols.Table) classDecl {
	ct := types.Undefined
	table, ok := ct.Members.(*symbols.Table)
	if !ok {
		table = symbols.NewTable(symbols.ScopeClass, globals)
		ct.Members = table
	}
	sym := &symbols.Symbol{
		Name:         ct.Name,
		Kind:         symbols.KindClassDef,
		Location:     globals.Size,
		DeclaredType: &types.ClassDefType{Class: ct},
		Class:        ct,
	}
	globals.Size++
	globals.Symbols = append(globals.Symbols, sym)
	return classDecl{ct, sym, table}
}

// materializeOneClass allocates sym's static class table, fills in its
// name/global-context/declared-size/parent/method fields, records it on
// the ClassType for the type system's own use (types.ClassType.
// StaticTable), and binds it into the matching globalContext slot so a
// bare class name resolves to its static table when evaluated (per
// tree.NewGetGlobalOffset's classDef usage). Works identically for a
// seed class and a user-declared one: both are plain classDef symbols
// in the same global table by the time Materialize runs.
func materializeOneClass(h *heap.Heap, globalCtx heap.Ptr, sym *symbols.Symbol) {
	ct := sym.Class
	memberTable, ok := ct.Members.(*symbols.Table)
	if !ok {
		diagnostics.Failf("class %s has no member table", ct.Name)
	}

	table := h.NewClassTable(memberTable.MethodTableSize)
	table.SetClassName(h.NewStringCell(true, heap.Nil, heap.Nil, ct.Name))
	table.SetClassGlobal(globalCtx)
	table.SetClassSizeSlot(h.NewIntegerCell(true, heap.Nil, heap.Nil, int64(memberTable.Size)))

	if parent, ok := ct.Parent.(*types.ClassType); ok && parent != ct {
		if parent.StaticTable.IsNil() {
			diagnostics.Failf("class %s: parent class %s has no static table yet", ct.Name, parent.Name)
		}
		table.SetClassParent(parent.StaticTable)
	}

	for _, msym := range memberTable.Methods {
		if msym.Code != nil {
			table.SetClassMethodCode(msym.Location, msym.Code)
		}
	}

	ct.StaticTable = table
	globalCtx.SetSlot(sym.Location, table)
}

// internIntegers pre-boxes every value in
// [config.InternedIntegerLow, config.InternedIntegerHigh] in the static
// arena, matching the original's integerTable: Evaluator.NewInteger
// returns these directly instead of allocating, so the overwhelmingly
// common small loop-counter/index values never trigger a collection
// just to get boxed.
func internIntegers(h *heap.Heap, integerClass, globalCtx heap.Ptr) []heap.Ptr {
	lo, hi := config.InternedIntegerLow, config.InternedIntegerHigh
	table := make([]heap.Ptr, hi-lo+1)
	for v := lo; v <= hi; v++ {
		table[v-lo] = h.NewIntegerCell(true, integerClass, globalCtx, int64(v))
	}
	return table
}
