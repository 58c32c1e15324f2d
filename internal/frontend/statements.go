package frontend

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/tree"
)

// parseBlock implements Block: "{" {Statement} "}".
func (p *Parser) parseBlock(scope *symbols.Table) *tree.Stmt {
	p.expect(LBrace, "'{'")
	var head *tree.Stmt
	for !p.at(RBrace) {
		head = tree.Append(head, p.parseStatement(scope, nil))
	}
	p.expect(RBrace, "'}'")
	if head == nil {
		return tree.NewNull(p.file, p.line())
	}
	return head
}

// enclosingFuncScope is scope itself when scope is a function scope,
// or nil at top level — exactly the value tree.GenerateReturnCall
// needs to decide whether a return-call qualifies for the tail-call
// shape of §4.4.4.
func enclosingFuncScope(scope *symbols.Table) *symbols.Table {
	if scope.Kind == symbols.ScopeFunction {
		return scope
	}
	return nil
}

// parseStatement implements Statement: VarDecl | IfStmt | WhileStmt |
// ForStmt | ReturnStmt | Block | ExprStmt.
func (p *Parser) parseStatement(scope *symbols.Table, _ *tree.Stmt) *tree.Stmt {
	switch {
	case p.at(KwVar):
		return p.parseVarDecl(scope)
	case p.at(KwIf):
		return p.parseIfStmt(scope)
	case p.at(KwWhile):
		return p.parseWhileStmt(scope)
	case p.at(KwFor):
		return p.parseForStmt(scope)
	case p.at(KwReturn):
		return p.parseReturnStmt(scope)
	case p.at(LBrace):
		return p.parseBlock(scope)
	default:
		return p.parseExprStmt(scope)
	}
}

// parseVarDecl implements VarDecl: "var" Ident ":" TypeName [":="
// Expr] ";". The declared variable is usable by name starting
// immediately after this statement, matching a sequential declare-
// then-initialize block scope (there is no forward reference to a
// local the way there is to a sibling top-level class or function).
func (p *Parser) parseVarDecl(scope *symbols.Table) *tree.Stmt {
	line := p.line()
	p.expect(KwVar, "'var'")
	name := p.expect(IDENT, "variable name").Lexeme
	p.expect(Colon, "':'")
	typ := p.parseTypeName()

	sym := scope.AddVariable(p.file, line, name, typ)

	if !p.at(Assign) {
		p.expect(Semicolon, "';'")
		return tree.NewNull(p.file, line)
	}
	p.advance()
	value := p.parseExpr(scope)
	p.expect(Semicolon, "';'")

	var ref tree.Expr
	if scope.Kind == symbols.ScopeGlobal {
		ref = tree.NewMakeReference(tree.NewGetGlobalContext(), sym.Location)
	} else {
		locals := tree.NewGetOffset(tree.NewGetCurrentContext(), 3, nil)
		ref = tree.NewMakeReference(locals, sym.Location)
	}
	return tree.NewExpressionStmt(p.file, line, tree.NewAssignment(ref, value))
}

// parseIfStmt implements IfStmt: "if" "(" Expr ")" Block ["else"
// (IfStmt | Block)].
func (p *Parser) parseIfStmt(scope *symbols.Table) *tree.Stmt {
	line := p.line()
	p.expect(KwIf, "'if'")
	p.expect(LParen, "'('")
	cond := p.parseExpr(scope)
	p.expect(RParen, "')'")
	truePart := p.parseBlock(scope)

	var falsePart *tree.Stmt
	if p.at(KwElse) {
		p.advance()
		if p.at(KwIf) {
			falsePart = p.parseIfStmt(scope)
		} else {
			falsePart = p.parseBlock(scope)
		}
	}
	return tree.NewConditional(p.file, line, cond, truePart, falsePart)
}

// parseWhileStmt implements WhileStmt: "while" "(" Expr ")" Block.
// Lowering needs a function-scope temporary to hold the loop closure
// (tree.LowerWhile), so a while loop is only valid inside a function
// body — top-level script statements run directly against
// globalContext with no locals cell of their own (§4.6 step 5), a
// deliberate scope narrowing this front end accepts rather than
// inventing a global-context lowering path the original tree builder
// has no analog for.
func (p *Parser) parseWhileStmt(scope *symbols.Table) *tree.Stmt {
	line := p.line()
	if scope.Kind != symbols.ScopeFunction {
		diagnostics.Fail(p.file, line, "while loops are only allowed inside a function body")
	}
	p.expect(KwWhile, "'while'")
	p.expect(LParen, "'('")
	cond := p.parseExpr(scope)
	p.expect(RParen, "')'")
	body := p.parseBlock(scope)

	loopFnType := p.seed.Relation
	return tree.LowerWhile(p.file, line, scope, cond, body, loopFnType)
}

// parseForStmt implements ForStmt: "for" "(" Ident "=" Expr "to" Expr
// ")" Block | "for" "each" "(" Expr ")" Block, lowered via
// tree.LowerArithmeticFor/tree.LowerForRelation exactly like
// parseWhileStmt's loop-closure temporary, so the same function-scope
// restriction applies to both forms. The "each" keyword disambiguates
// the two grammars with one token of lookahead rather than needing a
// full backtracking attempt at the arithmetic form first.
func (p *Parser) parseForStmt(scope *symbols.Table) *tree.Stmt {
	line := p.line()
	if scope.Kind != symbols.ScopeFunction {
		diagnostics.Fail(p.file, line, "for loops are only allowed inside a function body")
	}
	p.expect(KwFor, "'for'")
	if p.at(KwEach) {
		return p.parseForRelationStmt(scope, line)
	}
	p.expect(LParen, "'('")
	varName := p.expect(IDENT, "loop variable name").Lexeme

	sym := scope.LookupLocal(varName)
	if sym == nil {
		sym = scope.AddVariable(p.file, line, varName, p.seed.Integer)
	}
	locals := func() tree.Expr { return tree.NewGetOffset(tree.NewGetCurrentContext(), 3, nil) }
	readVar := func() tree.Expr { return tree.NewGetOffset(locals(), sym.Location, sym.DeclaredType) }

	p.expect(Eq, "'='")
	start := p.parseExpr(scope)
	init := tree.NewExpressionStmt(p.file, line, tree.NewAssignment(tree.NewMakeReference(locals(), sym.Location), start))

	p.expect(KwTo, "'to'")
	stop := p.parseExpr(scope)
	stopRead, stopAssign := declareForTemp(p, scope, "forLimit", stop)
	init = tree.Append(init, stopAssign)

	p.expect(RParen, "')'")
	body := p.parseBlock(scope)

	cond := tree.ResolveBinaryOperator(p.file, line, scope, "<=", readVar(), stopRead)
	step := tree.NewExpressionStmt(p.file, line, tree.NewAssignment(
		tree.NewMakeReference(locals(), sym.Location),
		tree.ResolveBinaryOperator(p.file, line, scope, "+", readVar(), tree.NewIntegerConstant(1, p.seed.Integer)),
	))

	loopFnType := p.seed.Relation
	return tree.LowerArithmeticFor(p.file, line, scope, init, cond, step, body, loopFnType)
}

// parseForRelationStmt implements the "for each (Expr) Block" form:
// Expr must have relation type (a thunked, zero-argument boolean
// stream per §D.1/§4.4.5), evaluated and re-evaluated by
// tree.LowerForRelation's own lowering until it yields false.
func (p *Parser) parseForRelationStmt(scope *symbols.Table, line int) *tree.Stmt {
	p.expect(KwEach, "'each'")
	p.expect(LParen, "'('")
	relation := p.parseExpr(scope)
	p.expect(RParen, "')'")
	body := p.parseBlock(scope)

	return tree.LowerForRelation(p.file, line, scope, relation, body, p.seed.Boolean, p.seed.Relation)
}

// declareForTemp stashes the for-loop's upper bound in a fresh local so
// it is only evaluated once, the same discipline tree.declareTemp
// applies internally for relation/pattern-match lowering (that helper
// is unexported, so the for-loop's own call site here mirrors its
// shape rather than reusing it directly).
func declareForTemp(p *Parser, scope *symbols.Table, prefix string, init tree.Expr) (read tree.Expr, assign *tree.Stmt) {
	sym := scope.AddVariable(p.file, p.line(), tree.GenerateTemporaryName(prefix), init.ResultType())
	locals := func() tree.Expr { return tree.NewGetOffset(tree.NewGetCurrentContext(), 3, nil) }
	ref := tree.NewMakeReference(locals(), sym.Location)
	assign = tree.NewExpressionStmt(p.file, p.line(), tree.NewAssignment(ref, init))
	read = tree.NewGetOffset(locals(), sym.Location, sym.DeclaredType)
	return read, assign
}

// parseReturnStmt implements ReturnStmt: "return" [Expr] ";", routing
// through tree.GenerateReturnCall when the returned expression is
// itself a call, so §4.4.4's tail-call recognition gets a chance to
// fire.
func (p *Parser) parseReturnStmt(scope *symbols.Table) *tree.Stmt {
	line := p.line()
	p.expect(KwReturn, "'return'")
	if p.at(Semicolon) {
		p.advance()
		return tree.NewReturn(p.file, line, nil)
	}
	value, callee, rawArgs, isCall := p.parseExprMaybeCall(scope)
	p.expect(Semicolon, "';'")
	if isCall {
		return tree.GenerateReturnCall(p.file, line, enclosingFuncScope(scope), callee, rawArgs)
	}
	return tree.NewReturn(p.file, line, value)
}

// parseExprStmt implements ExprStmt: Expr ";".
func (p *Parser) parseExprStmt(scope *symbols.Table) *tree.Stmt {
	line := p.line()
	e := p.parseExpr(scope)
	p.expect(Semicolon, "';'")
	return tree.NewExpressionStmt(p.file, line, e)
}
