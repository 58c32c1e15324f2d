package types

import "github.com/GunterMueller/Leda-Language/internal/heap"

// ClassType is the `class` tag of §3.1: a symbol table of members, a
// parent type, a method-table size and the static method table built
// during bootstrap.
//
// The class hierarchy's root is cyclic by convention (object is its own
// parent, per §9's design note); unlike the original's raw C pointers,
// a Go *ClassType self-reference is ordinary, GC-safe data, so no
// arena-of-indices indirection is needed here the way it is for heap
// cells (see internal/heap's Ptr, which exists precisely because *that*
// graph is managed by our own collector, not Go's).
type ClassType struct {
	Name            string
	// Parent is usually another *ClassType, but fillInParent in the
	// original stores the nominal parent type exactly as declared —
	// which, for "class B : A<Int>", is the qualified type A<Int>, not
	// its resolved base. Conformable re-dispatches generically on
	// whatever Parent turns out to hold, so this stays a plain Type
	// rather than *ClassType; see DESIGN.md.
	Parent          Type
	Members         Scope
	MethodTableSize int
	StaticTable     heap.Ptr

	// IsObjectRoot and IsMetaclass mark the two distinguished classes
	// the conformance relation special-cases by identity in the
	// original (objectType and ClassType): "class ≼ function iff a ==
	// objectType" and "class ≼ classDef iff a == ClassType".
	IsObjectRoot bool
	IsMetaclass  bool
}

func (c *ClassType) Kind() Kind    { return KindClass }
func (c *ClassType) String() string { return c.Name }

// Scope is the minimal marker internal/symbols.SymbolTable satisfies,
// kept abstract here so internal/types never imports internal/symbols.
type Scope interface {
	ScopeKind() string
}

// FunctionType is the `function` tag: ordered argument descriptors plus
// an optional (possibly nil) return type.
type FunctionType struct {
	Arguments []ArgSym
	Return    Type
}

func (f *FunctionType) Kind() Kind     { return KindFunction }
func (f *FunctionType) String() string { return "function" }

// QualifiedType is the `qualified` tag: a generic type's placeholder
// list plus its base.
type QualifiedType struct {
	Qualifiers []*UnresolvedType
	Base       Type
}

func (q *QualifiedType) Kind() Kind     { return KindQualified }
func (q *QualifiedType) String() string { return "qualified(" + q.Base.String() + ")" }

// ResolvedType is the `resolved` tag: a base type plus the parallel
// (patterns, replacements) lists binding each placeholder to a concrete
// argument.
type ResolvedType struct {
	Base         Type
	Patterns     []*UnresolvedType
	Replacements []ArgSym
}

func (r *ResolvedType) Kind() Kind     { return KindResolved }
func (r *ResolvedType) String() string { return "resolved(" + r.Base.String() + ")" }

// UnresolvedType is the `unresolved` tag: a type-variable placeholder's
// bound (base) type.
type UnresolvedType struct {
	Base Type
}

func (u *UnresolvedType) Kind() Kind     { return KindUnresolved }
func (u *UnresolvedType) String() string { return "unresolved(" + u.Base.String() + ")" }

// ConstantType is the `constant` tag: wraps a base type to mark a
// non-assignable value.
type ConstantType struct {
	Base Type
}

func (c *ConstantType) Kind() Kind     { return KindConstant }
func (c *ConstantType) String() string { return "const(" + c.Base.String() + ")" }

// ClassDefType is the `classDef` tag: the meta-type of a class
// constructor value (what you get when you name a class in expression
// position rather than instantiate it).
type ClassDefType struct {
	Class *ClassType
}

func (c *ClassDefType) Kind() Kind     { return KindClassDef }
func (c *ClassDefType) String() string { return "classDef(" + c.Class.Name + ")" }

// Undefined is NIL's type. Any type conforms to it (§3.1: "right side is
// the special undefined type ⇒ true"). It is a distinguished ClassType
// instance (matching the original's Leda_undefined bootstrap class,
// §SPEC_FULL.D.4) compared by identity, not structurally.
var Undefined = &ClassType{Name: "Leda_undefined"}

func init() {
	// The undefined class is its own parent too: nothing ever walks its
	// parent chain (Undefined is only ever a conformance target, never a
	// conformance source that needs CheckClass/parent-walk), but setting
	// this keeps ClassType's "root terminates at itself" invariant
	// uniform for every class that has no declared parent.
	Undefined.Parent = Undefined
}
