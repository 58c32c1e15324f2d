package types

import "github.com/GunterMueller/Leda-Language/internal/diagnostics"

// Conformable implements the directional conformance relation of §3.1,
// grounded on typeConformable in the original's types.c.
func Conformable(a, b Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if b == Undefined {
		return true
	}

	if ct, ok := b.(*ConstantType); ok {
		return Conformable(a, ct.Base)
	}

	if ut, ok := a.(*UnresolvedType); ok {
		return Conformable(ut.Base, b)
	}
	if ut, ok := b.(*UnresolvedType); ok {
		return Conformable(a, ut.Base)
	}

	switch at := a.(type) {
	case *FunctionType:
		return functionConformable(at, b)

	case *ClassType:
		switch bt := b.(type) {
		case *FunctionType:
			return at.IsObjectRoot
		case *ClassDefType:
			return at.IsMetaclass
		case *ClassType:
			if at == bt {
				return true
			}
			if bt.Parent == bt {
				return false
			}
			return Conformable(at, bt.Parent)
		case *QualifiedType:
			return Conformable(at, bt.Base)
		case *ResolvedType:
			return Conformable(at, bt.Base)
		}
		return false

	case *QualifiedType:
		return Conformable(at.Base, b)

	case *ResolvedType:
		return Conformable(at.Base, b)

	case *ConstantType:
		return false

	default:
		return false
	}
}

func functionConformable(a *FunctionType, b Type) bool {
	switch bt := b.(type) {
	case *FunctionType:
		if !Conformable(a.Return, bt.Return) {
			return false
		}
		if len(a.Arguments) != len(bt.Arguments) {
			return false
		}
		for i, pa := range a.Arguments {
			qa := bt.Arguments[i]
			if pa.ArgForm() != qa.ArgForm() {
				return false
			}
			if !Conformable(pa.ArgType(), qa.ArgType()) {
				return false
			}
		}
		return true

	case *ResolvedType:
		rt := CheckFunction(bt)
		if rt == nil {
			return false
		}
		if a == rt {
			return true
		}
		if !Conformable(a.Return, FixResolvedType(rt.Return, bt)) {
			return false
		}
		if len(a.Arguments) != len(rt.Arguments) {
			return false
		}
		for i, pa := range a.Arguments {
			qa := ArgumentNumber(b, i)
			if pa.ArgForm() != qa.ArgForm() {
				return false
			}
			if !Conformable(pa.ArgType(), qa.ArgType()) {
				return false
			}
		}
		return true

	default:
		return false
	}
}

// CheckClass walks past resolved/qualified wrappers to the underlying
// class, or returns nil if a is not (ultimately) a class.
func CheckClass(t Type) *ClassType {
	switch tt := t.(type) {
	case *ClassType:
		return tt
	case *QualifiedType:
		return CheckClass(tt.Base)
	default:
		return nil
	}
}

// CheckFunction walks past resolved wrappers to the underlying function
// type, or returns nil.
func CheckFunction(t Type) *FunctionType {
	switch tt := t.(type) {
	case *FunctionType:
		return tt
	case *ResolvedType:
		return CheckFunction(tt.Base)
	default:
		return nil
	}
}

// NewConstantType wraps b to mark a non-assignable value.
func NewConstantType(b Type) *ConstantType { return &ConstantType{Base: b} }

// NewFunctionType builds a function type from an argument list and
// return type.
func NewFunctionType(args []ArgSym, ret Type) *FunctionType {
	return &FunctionType{Arguments: args, Return: ret}
}

// NewQualifiedType builds a qualified (generic) type over base, given
// its placeholders. Every qualifier must be a byValue argument (type
// parameters carry no storage form), matching newQualifiedType's check.
func NewQualifiedType(file string, line int, qualifiers []ArgSym, base Type) *QualifiedType {
	placeholders := make([]*UnresolvedType, len(qualifiers))
	for i, q := range qualifiers {
		if q.ArgForm() != ByValue {
			diagnostics.Fail(file, line, "type parameters cannot have name or reference form")
		}
		placeholders[i] = &UnresolvedType{Base: q.ArgType()}
	}
	return &QualifiedType{Qualifiers: placeholders, Base: base}
}

// CheckQualifications validates a qualified-type parameterization:
// matching arity, each argument a byValue symbol whose declared type
// conforms to the corresponding placeholder's bound. Returns a fresh
// resolved record binding placeholders to the supplied arguments.
func CheckQualifications(file string, line int, qt *QualifiedType, args []ArgSym) *ResolvedType {
	if qt == nil {
		diagnostics.Fail(file, line, "cannot parameterize nonqualified type")
	}
	if len(qt.Qualifiers) != len(args) {
		diagnostics.Fail(file, line, "wrong number of qualifiers")
	}
	for i, placeholder := range qt.Qualifiers {
		arg := args[i]
		if arg.ArgForm() != ByValue {
			diagnostics.Fail(file, line, "cannot use storage form in this context")
		}
		if !Conformable(placeholder.Base, arg.ArgType()) {
			diagnostics.Fail(file, line, "invalid type parameterization")
		}
	}
	return &ResolvedType{Base: qt.Base, Patterns: qt.Qualifiers, Replacements: args}
}

// FixResolvedType substitutes: if t equals any placeholder bound by rt,
// returns the corresponding replacement's declared type; otherwise wraps
// t in a fresh resolved record carrying the same substitution for later
// recursive lookups. A nil t or rt is returned unchanged (matches
// fixResolvedType's null guards).
func FixResolvedType(t Type, rt *ResolvedType) Type {
	if t == nil || rt == nil {
		return t
	}
	for i, pattern := range rt.Patterns {
		if t == pattern {
			return rt.Replacements[i].ArgType()
		}
	}
	return &ResolvedType{Base: t, Patterns: rt.Patterns, Replacements: rt.Replacements}
}

// ArgumentNumber returns the i-th argument descriptor of a function (or
// resolved-function) type, applying the type substitution when t is
// resolved.
func ArgumentNumber(t Type, i int) ArgSym {
	switch tt := t.(type) {
	case *FunctionType:
		return tt.Arguments[i]
	case *ResolvedType:
		base := ArgumentNumber(tt.Base, i)
		return &resolvedArg{base: base, typ: FixResolvedType(base.ArgType(), tt)}
	default:
		diagnostics.Failf("argumentNumber impossible case")
		return nil
	}
}

// resolvedArg re-presents a base argument descriptor with its type
// rewritten through a resolved-type substitution, mirroring
// argumentNumber's fresh symbolRecord copy in types.c.
type resolvedArg struct {
	base ArgSym
	typ  Type
}

func (r *resolvedArg) ArgName() string     { return r.base.ArgName() }
func (r *resolvedArg) ArgType() Type       { return r.typ }
func (r *resolvedArg) ArgForm() Form       { return r.base.ArgForm() }
func (r *resolvedArg) ArgLocation() int    { return r.base.ArgLocation() }
