package tree

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// ResolveIdentifier implements §4.4.1: starting from the innermost
// scope, walk outward one enclosing link at a time, prefixing a
// getOffset(ctx,1) hop onto the address expression for every scope we
// step past, until the name is found or the chain is exhausted.
//
// A method's function scope has the owning class as its Enclosing
// table (see symbols.AddFunctionSymbol), so by the time the walk
// reaches class scope the accumulated ctx expression already equals
// the receiver (getOffset(ctx,1) on a method activation yields self,
// per §4.3) — lookup_field's class-scope rule (§4.4.2) is reused
// directly for that final step, with no special-casing needed here.
func ResolveIdentifier(file string, line int, scope *symbols.Table, name string) Expr {
	ctx := Expr(NewGetCurrentContext())

	for cur := scope; cur != nil; cur = cur.Enclosing {
		sym := cur.LookupLocal(name)
		if sym == nil {
			ctx = NewGetOffset(ctx, 1, nil)
			continue
		}

		switch cur.Kind {
		case symbols.ScopeGlobal:
			return addressOf(sym, nil)

		case symbols.ScopeFunction:
			switch sym.Kind {
			case symbols.KindVar, symbols.KindConstant:
				locals := NewGetOffset(ctx, 3, nil)
				return addressOf(sym, locals)
			case symbols.KindArgument:
				base := NewGetOffset(ctx, sym.Location, sym.DeclaredType)
				return wrapArgumentForm(sym, base)
			default:
				diagnostics.Failf("identifier %s resolves to non-variable symbol in function scope", name)
			}

		case symbols.ScopeClass:
			return lookupOnClassScope(ctx, sym)
		}
	}

	diagnostics.Fail(file, line, "undeclared identifier: %s", name)
	return nil
}

// ResolveLValue mirrors ResolveIdentifier's scope walk but builds a
// writable MakeReference address rather than a read expression — the
// shape an assignment's left side, a byReference argument, and the <-
// operator's left operand all require (§4.4.1's read-side walk and
// this write-side walk are the same lookup viewed from the two
// positions an identifier can occur in). Only ordinary (byValue)
// variables, arguments and fields are made assignable here; assigning
// through a byName/byReference parameter's own storage, rather than
// the value it denotes, is not a shape this front end's surface
// grammar produces.
func ResolveLValue(file string, line int, scope *symbols.Table, name string) Expr {
	ctx := Expr(NewGetCurrentContext())

	for cur := scope; cur != nil; cur = cur.Enclosing {
		sym := cur.LookupLocal(name)
		if sym == nil {
			ctx = NewGetOffset(ctx, 1, nil)
			continue
		}

		switch cur.Kind {
		case symbols.ScopeGlobal:
			return NewMakeReference(NewGetGlobalContext(), sym.Location)

		case symbols.ScopeFunction:
			switch sym.Kind {
			case symbols.KindVar, symbols.KindConstant:
				locals := NewGetOffset(ctx, 3, nil)
				return NewMakeReference(locals, sym.Location)
			case symbols.KindArgument:
				return NewMakeReference(ctx, sym.Location)
			default:
				diagnostics.Failf("identifier %s resolves to non-variable symbol in function scope", name)
			}

		case symbols.ScopeClass:
			if sym.Kind != symbols.KindVar {
				diagnostics.Fail(file, line, "%s is not an assignable field", name)
			}
			return NewMakeReference(ctx, sym.Location)
		}
	}

	diagnostics.Fail(file, line, "undeclared identifier: %s", name)
	return nil
}

// addressOf returns the getOffset/getGlobalOffset leaf for a var or
// constant symbol found directly in a global or locals-cell scope.
// base is nil for globals (addressed via the separate globalContext
// register) and the locals-cell expression otherwise.
func addressOf(sym *symbols.Symbol, base Expr) Expr {
	if base == nil {
		return NewGetGlobalOffset(sym.Location, sym.DeclaredType)
	}
	return NewGetOffset(base, sym.Location, sym.DeclaredType)
}

// wrapArgumentForm applies the byName/byReference auto-conversion of
// §4.4.1: a byValue argument's slot already holds the value; byName
// holds a thunk to force; byReference holds a reference cell to
// dereference.
func wrapArgumentForm(sym *symbols.Symbol, base Expr) Expr {
	switch sym.Form {
	case types.ByName:
		return NewEvalThunk(base, sym.DeclaredType)
	case types.ByReference:
		return NewEvalReference(base, sym.DeclaredType)
	default:
		return base
	}
}

// lookupOnClassScope resolves a symbol already found in a class's own
// table: an instance field reads directly off the receiver (ctx, which
// by construction already denotes the receiver at this point in the
// walk); a method produces a virtual-dispatch method-context cell.
func lookupOnClassScope(ctx Expr, sym *symbols.Symbol) Expr {
	switch sym.Kind {
	case symbols.KindVar:
		return NewGetOffset(ctx, sym.Location, sym.DeclaredType)
	case symbols.KindFunction:
		return NewMakeMethodContext(ctx, sym.Location, sym.DeclaredType)
	default:
		diagnostics.Failf("identifier %s resolves to non-field, non-method class symbol", sym.Name)
		return nil
	}
}
