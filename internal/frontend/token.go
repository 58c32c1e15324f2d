// Package frontend is the minimal lexer + recursive-descent parser
// SPEC_FULL.md §A adds as an upstream collaborator for internal/tree:
// spec.md §1 explicitly puts "the lexer/parser that drives the tree
// builder" out of scope for the core, describing only the interface it
// calls through (§6.1 — "the parser invokes the tree-builder
// constructors directly with already-allocated symbol-table, type and
// expression records"). This package is exactly that collaborator: it
// owns no semantics of its own, deferring every type/scope/lowering
// decision to internal/tree, internal/symbols and internal/bootstrap.
package frontend

import "fmt"

// Kind enumerates the token classes this lexer produces.
type Kind int

const (
	EOF Kind = iota
	IDENT
	INT
	REAL
	STRING

	// keywords
	KwClass
	KwFunction
	KwVar
	KwIf
	KwElse
	KwWhile
	KwFor
	KwTo
	KwReturn
	KwNew
	KwTrue
	KwFalse
	KwNil
	KwSelf
	KwByName
	KwByRef
	KwAnd
	KwOr
	KwNot
	KwMatch
	KwEach

	// punctuation / operators
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Comma
	Colon
	Semicolon
	Dot

	Assign // :=
	Plus
	Minus
	Star
	Slash
	Less
	Greater
	LessEq
	GreaterEq
	Eq  // =
	Neq // ~=
)

var keywords = map[string]Kind{
	"class":    KwClass,
	"function": KwFunction,
	"var":      KwVar,
	"if":       KwIf,
	"else":     KwElse,
	"while":    KwWhile,
	"for":      KwFor,
	"to":       KwTo,
	"return":   KwReturn,
	"new":      KwNew,
	"true":     KwTrue,
	"false":    KwFalse,
	"NIL":      KwNil,
	"self":     KwSelf,
	"byName":   KwByName,
	"byRef":    KwByRef,
	"and":      KwAnd,
	"or":       KwOr,
	"not":      KwNot,
	"match":    KwMatch,
	"each":     KwEach,
}

// Token is one lexical unit, carrying the file/line position every
// tree-builder constructor needs (spec.md §6.1: "supplies fileName and
// linenumber as process-wide variables observed at every statement
// creation" — here threaded as explicit fields instead, since nothing
// about Go favors hidden process-wide state for this).
type Token struct {
	Kind    Kind
	Lexeme  string
	IntVal  int64
	RealVal float64
	Line    int
}

func (t Token) String() string {
	return fmt.Sprintf("%d:%q", t.Line, t.Lexeme)
}
