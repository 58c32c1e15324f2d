package frontend

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/tree"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// parseClassDecl implements ClassDecl: "class" Ident [":" Ident] "{"
// {FieldDecl | FuncDecl} "}". Every class's parent defaults to object
// when omitted, matching bootstrap's own seed classes: nothing in this
// language is parentless except object itself.
func (p *Parser) parseClassDecl() {
	line := p.line()
	p.expect(KwClass, "'class'")
	name := p.expect(IDENT, "class name").Lexeme

	parent := types.Type(p.seed.Object)
	if p.at(Colon) {
		p.advance()
		parentName := p.expect(IDENT, "parent class name").Lexeme
		parent = p.resolveTypeName(parentName)
	}

	sym, ct, table := symbols.NewClassSymbol(p.file, line, p.globals, name)
	parentClass, ok := parent.(*types.ClassType)
	if !ok {
		diagnostics.Fail(p.file, line, "%s does not name a class", name)
	}
	symbols.FillInParent(ct, table, parentClass, nil)
	_ = sym

	p.expect(LBrace, "'{'")
	for !p.at(RBrace) {
		switch {
		case p.at(KwVar):
			p.parseFieldDecl(table)
		case p.at(KwFunction):
			p.parseFuncDecl(table, ct)
		default:
			diagnostics.Fail(p.file, p.tok.Line, "expected field or function declaration, got %q", p.tok.Lexeme)
		}
	}
	p.expect(RBrace, "'}'")
}

// parseFieldDecl implements FieldDecl: "var" Ident ":" TypeName ";".
func (p *Parser) parseFieldDecl(classTable *symbols.Table) {
	line := p.line()
	p.expect(KwVar, "'var'")
	name := p.expect(IDENT, "field name").Lexeme
	p.expect(Colon, "':'")
	typ := p.parseTypeName()
	p.expect(Semicolon, "';'")
	classTable.AddVariable(p.file, line, name, typ)
}

// parseFuncDecl implements FuncDecl: "function" Ident "(" [ParamList]
// ")" [":" TypeName] Block. scope is either the global table (a
// top-level function, ownerClass nil) or a class's member table (a
// method, ownerClass its class).
func (p *Parser) parseFuncDecl(scope *symbols.Table, ownerClass *types.ClassType) {
	line := p.line()
	p.expect(KwFunction, "'function'")
	name := p.expect(IDENT, "function name").Lexeme

	sym, funcScope := symbols.AddFunctionSymbol(p.file, line, scope, name, ownerClass)

	p.expect(LParen, "'('")
	for !p.at(RParen) {
		p.parseParam(funcScope)
		if p.at(Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(RParen, "')'")

	var returnType types.Type
	if p.at(Colon) {
		p.advance()
		returnType = p.parseTypeName()
	}

	var args []types.ArgSym
	for _, s := range funcScope.Symbols {
		if s.Kind == symbols.KindArgument && s.Location != 1 {
			args = append(args, s)
		}
	}
	sym.DeclaredType = types.NewFunctionType(args, returnType)

	userStmts := p.parseBlock(funcScope)
	sym.Code = tree.GenerateBody(p.file, line, funcScope, userStmts)
}

// parseParam implements Param: ["byName" | "byRef"] Ident ":" TypeName.
func (p *Parser) parseParam(funcScope *symbols.Table) {
	line := p.line()
	form := types.ByValue
	if p.at(KwByName) {
		form = types.ByName
		p.advance()
	} else if p.at(KwByRef) {
		form = types.ByReference
		p.advance()
	}
	name := p.expect(IDENT, "parameter name").Lexeme
	p.expect(Colon, "':'")
	typ := p.parseTypeName()
	funcScope.AddArgument(p.file, line, name, typ, form)
}
