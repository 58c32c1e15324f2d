package frontend

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/tree"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// Program is §4.4's upstream collaborator, driving tree's constructors
// directly with already-allocated symbol-table and type records exactly
// as spec.md §6.1 describes the parser's job: it owns no tree-shape
// decisions of its own, only surface grammar and scope bookkeeping.
//
// globals must already carry the seed declarations (bootstrap.SeedGlobals);
// Program extends it in place with every top-level class and function in
// src, and returns the statement list the top-level script body itself
// consists of — the driver still owes it a makeLocals wrapper the same
// way bootstrap's own global context does (see cmd/ledac), since a
// top-level var declaration resolves through getGlobalOffset, not a
// locals cell.
type Parser struct {
	file    string
	lex     *Lexer
	tok     Token
	globals *symbols.Table
	seed    *Seed
}

// Seed is the subset of bootstrap.Seed the parser needs to resolve
// built-in type names; bootstrap.Seed satisfies it structurally so
// callers pass that value directly.
type Seed struct {
	Object   *types.ClassType
	Boolean  *types.ClassType
	Integer  *types.ClassType
	Real     *types.ClassType
	String   *types.ClassType
	Array    *types.ClassType
	Relation *types.FunctionType
}

// NewParser creates a parser over src, attributed to file for
// diagnostics, extending globals (already seeded) with src's own
// declarations.
func NewParser(file, src string, globals *symbols.Table, seed *Seed) *Parser {
	p := &Parser{file: file, lex: New(file, src), globals: globals, seed: seed}
	p.advance()
	return p
}

func (p *Parser) advance() { p.tok = p.lex.NextToken() }

func (p *Parser) at(k Kind) bool { return p.tok.Kind == k }

func (p *Parser) expect(k Kind, what string) Token {
	if p.tok.Kind != k {
		diagnostics.Fail(p.file, p.tok.Line, "expected %s, got %q", what, p.tok.Lexeme)
	}
	t := p.tok
	p.advance()
	return t
}

func (p *Parser) line() int { return p.tok.Line }

// ParseProgram consumes the whole token stream, declaring every
// top-level class and function into p.globals as it goes, and returns
// the statement list formed by the top-level (non-declaration)
// statements, in source order.
func (p *Parser) ParseProgram() *tree.Stmt {
	var top *tree.Stmt
	for !p.at(EOF) {
		switch {
		case p.at(KwClass):
			p.parseClassDecl()
		case p.at(KwFunction):
			p.parseFuncDecl(p.globals, nil)
		default:
			top = tree.Append(top, p.parseStatement(p.globals, nil))
		}
	}
	return top
}

// resolveTypeName looks up a type name against the seed registers
// first (so "integer", "boolean", etc. never require walking the
// scope chain as ordinary identifiers) and falls back to the global
// table for user classes and type aliases.
func (p *Parser) resolveTypeName(name string) types.Type {
	switch name {
	case "object":
		return p.seed.Object
	case "boolean":
		return p.seed.Boolean
	case "integer":
		return p.seed.Integer
	case "real":
		return p.seed.Real
	case "string":
		return p.seed.String
	case "array":
		return p.seed.Array
	case "relation":
		return p.seed.Relation
	}
	sym := p.globals.LookupLocal(name)
	if sym == nil {
		diagnostics.Fail(p.file, p.tok.Line, "undeclared type name: %s", name)
	}
	switch sym.Kind {
	case symbols.KindClassDef:
		return sym.Class
	case symbols.KindType:
		return sym.DeclaredType
	default:
		diagnostics.Fail(p.file, p.tok.Line, "%s does not name a type", name)
		return nil
	}
}

func (p *Parser) parseTypeName() types.Type {
	name := p.expect(IDENT, "type name").Lexeme
	return p.resolveTypeName(name)
}
