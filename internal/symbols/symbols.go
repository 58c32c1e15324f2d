// Package symbols implements the L3 layer: the three symbol-table kinds
// of §3.2 (global, function, class), slot assignment and inheritance
// splicing, grounded on lc.c's newSymbolTable/addVariable/addFunctionSymbol/
// fillInParent family.
package symbols

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// Kind discriminates the symbol kinds of §3.2.
type Kind int

const (
	KindVar Kind = iota
	KindFunction
	KindArgument
	KindClassDef
	KindType
	KindConstant
)

// Symbol is one entry in a symbol table. Not every field applies to
// every Kind; see the comments on each.
type Symbol struct {
	Name         string
	Kind         Kind
	Location     int // activation/instance/method-table slot; -1 for type symbols, which consume no slot
	DeclaredType types.Type

	Form types.Form // KindArgument only

	// KindFunction only: the statement-tree root for its body (an
	// opaque *tree.Stmt; symbols never imports tree to avoid a cycle).
	// Inherited marks a method copied down from a parent class that has
	// not been overridden yet (§3.2).
	Code      any
	Inherited bool

	// KindClassDef only: the class this symbol names.
	Class *types.ClassType

	// KindConstant only: the declared value expression (an opaque
	// *tree.Expr), evaluated once per §4.4.7's body-generation rule.
	ValueExpr any
}

// ArgName, ArgType, ArgForm and ArgLocation satisfy types.ArgSym, so a
// *Symbol can stand in directly as a function type's argument
// descriptor.
func (s *Symbol) ArgName() string     { return s.Name }
func (s *Symbol) ArgType() types.Type { return s.DeclaredType }
func (s *Symbol) ArgForm() types.Form { return s.Form }
func (s *Symbol) ArgLocation() int    { return s.Location }

// ScopeKind discriminates the three table kinds.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeFunction
	ScopeClass
)

// Table is a symbol table: global, function or class. All three share
// an enclosing scope, an ordered symbol list and a running slot
// counter; function and class scopes each carry a second counter for
// their distinct addressing spaces (locals vs. arguments, instance
// fields vs. methods).
type Table struct {
	Kind      ScopeKind
	Enclosing *Table
	Symbols   []*Symbol // declared symbols: globals/instance-vars/locals-and-arguments depending on Kind
	Methods   []*Symbol // ScopeClass only: the method table

	Size int // next slot: globals, function locals, or class instance fields

	ArgumentLocation int // ScopeFunction only: next argument slot, starts at 4
	MethodTableSize  int // ScopeClass only: next method slot, starts at 5

	TheFunctionSymbol *Symbol // ScopeFunction only: back-pointer to the function's own symbol
}

// ScopeKind satisfies types.Scope so a *Table can be stored in
// types.ClassType.Members without types importing this package.
func (t *Table) ScopeKind() string {
	switch t.Kind {
	case ScopeGlobal:
		return "global"
	case ScopeFunction:
		return "function"
	case ScopeClass:
		return "class"
	default:
		return "?"
	}
}

// NewTable creates a table of the given kind, with the counters §4.3
// specifies as initial sizes.
func NewTable(kind ScopeKind, enclosing *Table) *Table {
	t := &Table{Kind: kind, Enclosing: enclosing}
	switch kind {
	case ScopeFunction:
		t.ArgumentLocation = 4
	case ScopeClass:
		t.MethodTableSize = 5
	}
	return t
}

// LookupLocal scans this table's own symbols (and, for a class scope,
// its method table) without consulting the enclosing chain.
func (t *Table) LookupLocal(name string) *Symbol {
	for _, s := range t.Symbols {
		if s.Name == name {
			return s
		}
	}
	if t.Kind == ScopeClass {
		for _, s := range t.Methods {
			if s.Name == name {
				return s
			}
		}
	}
	return nil
}

// Lookup walks the enclosing chain starting at t, returning the symbol
// and the table it was found in.
func (t *Table) Lookup(name string) (*Symbol, *Table) {
	for cur := t; cur != nil; cur = cur.Enclosing {
		if s := cur.LookupLocal(name); s != nil {
			return s, cur
		}
	}
	return nil, nil
}

func (t *Table) uniqueName(file string, line int, name string) {
	if t.LookupLocal(name) != nil {
		diagnostics.Fail(file, line, "name must be unique within context: %s", name)
	}
}

// AddVariable declares a var symbol, consuming the next slot of t's
// primary counter (globals, function locals, or class instance fields).
func (t *Table) AddVariable(file string, line int, name string, typ types.Type) *Symbol {
	t.uniqueName(file, line, name)
	s := &Symbol{Name: name, Kind: KindVar, DeclaredType: typ, Location: t.Size}
	t.Size++
	t.Symbols = append(t.Symbols, s)
	return s
}

// AddConstant declares a const symbol initialized from value (an opaque
// *tree.Expr), rejecting class scope — "current implementation does not
// permit constants in classes" per lc.c's addConstant.
func (t *Table) AddConstant(file string, line int, name string, valueType types.Type, valueExpr any) *Symbol {
	if t.Kind == ScopeClass {
		diagnostics.Fail(file, line, "current implementation does not permit constants in classes")
	}
	t.uniqueName(file, line, name)
	s := &Symbol{
		Name:         name,
		Kind:         KindConstant,
		DeclaredType: types.NewConstantType(valueType),
		Location:     t.Size,
		ValueExpr:    valueExpr,
	}
	t.Size++
	t.Symbols = append(t.Symbols, s)
	return s
}

// AddType declares a type alias. Type symbols consume no runtime slot,
// matching addTypeDeclaration (no size++).
func (t *Table) AddType(file string, line int, name string, typ types.Type) *Symbol {
	t.uniqueName(file, line, name)
	s := &Symbol{Name: name, Kind: KindType, DeclaredType: typ, Location: -1}
	t.Symbols = append(t.Symbols, s)
	return s
}

// AddArgument declares a formal parameter, consuming the function
// scope's argument counter (starting at 4).
func (t *Table) AddArgument(file string, line int, name string, typ types.Type, form types.Form) *Symbol {
	if t.Kind != ScopeFunction {
		diagnostics.Failf("addArgument on non-function scope")
	}
	t.uniqueName(file, line, name)
	s := &Symbol{Name: name, Kind: KindArgument, Form: form, DeclaredType: typ, Location: t.ArgumentLocation}
	t.ArgumentLocation++
	t.Symbols = append(t.Symbols, s)
	return s
}

// NewClassSymbol declares (or resumes a forward reference to) a class
// named name in enclosing, and creates its own instance-member table.
// Grounded on newClassSymbol in lc.c.
func NewClassSymbol(file string, line int, enclosing *Table, name string) (*Symbol, *types.ClassType, *Table) {
	if existing := enclosing.LookupLocal(name); existing != nil {
		if existing.Kind != KindClassDef {
			diagnostics.Fail(file, line, "non class name %s used to define class", name)
		}
		ct := existing.Class
		if ct.Members != nil {
			diagnostics.Fail(file, line, "class %s multiply defined", name)
		}
		classTable := NewTable(ScopeClass, enclosing)
		ct.Members = classTable
		return existing, ct, classTable
	}

	ct := &types.ClassType{Name: name}
	sym := &Symbol{
		Name:         name,
		Kind:         KindClassDef,
		Location:     enclosing.Size,
		DeclaredType: &types.ClassDefType{Class: ct},
		Class:        ct,
	}
	enclosing.Size++
	enclosing.Symbols = append(enclosing.Symbols, sym)

	classTable := NewTable(ScopeClass, enclosing)
	ct.Members = classTable
	return sym, ct, classTable
}

// FillInParent splices a parent class's inherited members into child:
// every parent instance var is copied at the same slot, every parent
// method is copied into the child's method table with Inherited=true
// and its type rewritten through rt's substitution (nil rt means no
// type-parameter substitution applies). Grounded on fillInParent in
// lc.c.
func FillInParent(child *types.ClassType, childTable *Table, parent *types.ClassType, rt *types.ResolvedType) {
	child.Parent = parentTypeOf(parent, rt)

	parentTable, _ := parent.Members.(*Table)
	if parentTable == nil {
		diagnostics.Failf("fill in parent: parent class %s has no symbol table", parent.Name)
	}

	childTable.Size = parentTable.Size
	for _, s := range parentTable.Symbols {
		if s.Kind != KindVar {
			continue
		}
		childTable.Symbols = append(childTable.Symbols, &Symbol{
			Name:         s.Name,
			Kind:         KindVar,
			Location:     s.Location,
			DeclaredType: s.DeclaredType,
		})
	}

	childTable.MethodTableSize = parentTable.MethodTableSize
	for _, m := range parentTable.Methods {
		childTable.Methods = append(childTable.Methods, &Symbol{
			Name:         m.Name,
			Kind:         KindFunction,
			Location:     m.Location,
			DeclaredType: types.FixResolvedType(m.DeclaredType, rt),
			Code:         m.Code,
			Inherited:    true,
		})
	}
}

// parentTypeOf mirrors fillInParent's subtlety: the class's stored
// parent field is the nominal type exactly as declared (e.g. the
// qualified Stack<Int>, not its resolved base), while rt (if non-nil)
// is only used to rewrite inherited members' types.
func parentTypeOf(parent *types.ClassType, rt *types.ResolvedType) types.Type {
	if rt != nil {
		return rt.Base
	}
	return parent
}

// AddFunctionSymbol declares (or overrides) a function named name in
// scope and creates its own function-scope symbol table. If scope is a
// class scope, the new function goes into the method table and the
// function scope gets a "self" argument of constant class type bound
// at slot 1, per §4.3. typeArgs, if non-empty, wraps the (otherwise
// empty) function type in a qualified record — callers finish building
// the function type via funcScope's Symbols/ArgumentLocation and then
// set sym.DeclaredType themselves once argument/return types are known
// (mirroring addFunctionSymbol/addFunctionArguments being separate
// calls in lc.c).
func AddFunctionSymbol(file string, line int, scope *Table, name string, class *types.ClassType) (sym *Symbol, funcScope *Table) {
	funcScope = NewTable(ScopeFunction, scope)

	if scope.Kind == ScopeClass {
		if existing := scope.LookupLocal(name); existing != nil {
			if existing.Kind != KindFunction {
				diagnostics.Fail(file, line, "non function name %s redefined as function", name)
			}
			if !existing.Inherited {
				diagnostics.Fail(file, line, "function %s multiply defined", name)
			}
			existing.Inherited = false
			existing.Code = nil
			sym = existing
		} else {
			sym = &Symbol{Name: name, Kind: KindFunction, Location: scope.MethodTableSize}
			scope.MethodTableSize++
			scope.Methods = append(scope.Methods, sym)
		}
		self := &Symbol{
			Name:         "self",
			Kind:         KindArgument,
			Form:         types.ByValue,
			Location:     1,
			DeclaredType: types.NewConstantType(class),
		}
		funcScope.Symbols = append(funcScope.Symbols, self)
	} else {
		if existing := scope.LookupLocal(name); existing != nil {
			diagnostics.Fail(file, line, "%s redefined", name)
		}
		sym = &Symbol{Name: name, Kind: KindFunction, Location: scope.Size}
		scope.Size++
		scope.Symbols = append(scope.Symbols, sym)
	}

	funcScope.TheFunctionSymbol = sym
	return sym, funcScope
}
