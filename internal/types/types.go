// Package types implements the L2 layer: the type-record algebra and the
// conformance relation of §3.1/§4.2.
//
// The original keeps every type record in one big tagged union living in
// the same translation unit as the symbol table, because a function
// type's argument list is literally a list of symbolRecord values and a
// class type's members live in a symbolTableRecord. Go's import graph
// can't host a cycle like that, so the boundary is pushed to an
// interface: ArgSym is whatever the caller's symbol representation
// happens to be (internal/symbols.Symbol satisfies it), and types never
// imports internal/symbols.
package types

// Form is an argument's passing discipline.
type Form int

const (
	ByValue Form = iota
	ByName
	ByReference
)

func (f Form) String() string {
	switch f {
	case ByValue:
		return "byValue"
	case ByName:
		return "byName"
	case ByReference:
		return "byReference"
	default:
		return "?"
	}
}

// Kind discriminates the type-record tags of §3.1.
type Kind int

const (
	KindClass Kind = iota
	KindFunction
	KindQualified
	KindResolved
	KindUnresolved
	KindConstant
	KindClassDef
)

// Type is a type record. Every tag below implements it.
type Type interface {
	Kind() Kind
	String() string
}

// ArgSym is the subset of a symbol-table argument entry the type system
// needs: its declared type, its passing form and its activation-slot
// location. internal/symbols.Symbol implements this.
type ArgSym interface {
	ArgName() string
	ArgType() Type
	ArgForm() Form
	ArgLocation() int
}
