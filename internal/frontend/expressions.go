package frontend

import (
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/tree"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// postfixInfo rides alongside every expression-parsing level's result,
// recording whether that result is STILL, unmodified, something the
// statement layer can treat specially: a bare call (return's tail-call
// candidate) or an lvalue (assignment's and <-'s left side). Any level
// that actually combines its operand with an operator produces a new
// expression that is neither, so it returns the zero value instead of
// forwarding its operand's info — info only ever survives a level that
// found nothing to apply and passed its operand straight through.
type postfixInfo struct {
	isCall     bool
	callCallee tree.Expr
	callArgs   []tree.Expr

	isLValue bool
	lvField  bool // false: identifier in scope; true: base.name field
	lvName   string
	lvBase   tree.Expr // only set when lvField
}

// parseExpr implements Expr := Assignment, the grammar's entry point
// for any position that just wants a value.
func (p *Parser) parseExpr(scope *symbols.Table) tree.Expr {
	e, _ := p.parseAssignment(scope)
	return e
}

// parseExprMaybeCall parses a full expression and additionally reports
// whether the result is exactly a bare call (§4.4.4's return-statement
// tail-call candidate), returning its callee/rawArgs uncoerced so
// tree.GenerateReturnCall can apply its own arity/form coercion itself.
func (p *Parser) parseExprMaybeCall(scope *symbols.Table) (value tree.Expr, callee tree.Expr, rawArgs []tree.Expr, isCall bool) {
	e, info := p.parseAssignment(scope)
	return e, info.callCallee, info.callArgs, info.isCall
}

func (p *Parser) parseAssignment(scope *symbols.Table) (tree.Expr, postfixInfo) {
	left, info := p.parseLogicOr(scope)
	if !p.at(Assign) {
		return left, info
	}
	line := p.line()
	if !info.isLValue {
		diagnostics.Fail(p.file, line, "left side of := must be an assignable variable or field")
	}
	p.advance()
	right, _ := p.parseAssignment(scope)

	ref := p.buildLValue(line, scope, info)
	return tree.NewAssignment(ref, right), postfixInfo{}
}

func (p *Parser) buildLValue(line int, scope *symbols.Table, info postfixInfo) tree.Expr {
	if info.lvField {
		return tree.LookupFieldLValue(p.file, line, info.lvBase, info.lvBase.ResultType(), info.lvName)
	}
	return tree.ResolveLValue(p.file, line, scope, info.lvName)
}

func (p *Parser) parseLogicOr(scope *symbols.Table) (tree.Expr, postfixInfo) {
	left, info := p.parseLogicAnd(scope)
	for p.at(KwOr) {
		line := p.line()
		p.advance()
		right, _ := p.parseLogicAnd(scope)
		left = tree.ResolveBinaryOperator(p.file, line, scope, "or", left, right)
		info = postfixInfo{}
	}
	return left, info
}

func (p *Parser) parseLogicAnd(scope *symbols.Table) (tree.Expr, postfixInfo) {
	left, info := p.parseEquality(scope)
	for p.at(KwAnd) {
		line := p.line()
		p.advance()
		right, _ := p.parseEquality(scope)
		left = tree.ResolveBinaryOperator(p.file, line, scope, "and", left, right)
		info = postfixInfo{}
	}
	return left, info
}

func (p *Parser) parseEquality(scope *symbols.Table) (tree.Expr, postfixInfo) {
	left, info := p.parseMatch(scope)
	for p.at(Eq) || p.at(Neq) {
		line := p.line()
		op := "="
		if p.at(Neq) {
			op = "~="
		}
		p.advance()
		right, _ := p.parseMatch(scope)
		left = tree.ResolveBinaryOperator(p.file, line, scope, op, left, right)
		info = postfixInfo{}
	}
	return left, info
}

// parseMatch implements §4.4.5's pattern-match expression, §8 S6's
// `x match Cons(h, t)` form: Relational ["match" Ident "(" [IdentList]
// ")"]. The matched class's fields are bound positionally (the
// i-th name in parens binds to the i-th declared field, exactly the
// slot order tree.NewPatternMatch/evalPatternMatch read at slot 2+i),
// so h and t line up with Cons's own field declaration order with no
// separate arity check needed beyond what tree.NewPatternMatch already
// enforces at eval time.
func (p *Parser) parseMatch(scope *symbols.Table) (tree.Expr, postfixInfo) {
	left, info := p.parseRelational(scope)
	if p.at(KwMatch) {
		left = p.parseMatchSuffix(scope, left)
		info = postfixInfo{}
	}
	return left, info
}

func (p *Parser) parseMatchSuffix(scope *symbols.Table, scrutinee tree.Expr) tree.Expr {
	line := p.line()
	p.advance() // consume 'match'
	className := p.expect(IDENT, "class name").Lexeme
	classExpr := tree.ResolveIdentifier(p.file, line, scope, className)

	classType := p.resolveTypeName(className)
	classCt, ok := classType.(*types.ClassType)
	if !ok {
		diagnostics.Fail(p.file, line, "%s does not name a class", className)
	}
	members, _ := classCt.Members.(*symbols.Table)

	p.expect(LParen, "'('")
	var bindings []tree.Expr
	idx := 0
	if !p.at(RParen) {
		for {
			name := p.expect(IDENT, "binding name").Lexeme
			fieldType := types.Type(p.seed.Object)
			if members != nil && idx < len(members.Symbols) {
				fieldType = members.Symbols[idx].DeclaredType
			}
			bindings = append(bindings, p.matchBindingRef(scope, name, fieldType))
			idx++
			if p.at(Comma) {
				p.advance()
				continue
			}
			break
		}
	}
	p.expect(RParen, "')'")

	return tree.NewPatternMatch(scrutinee, classExpr, bindings, p.seed.Boolean)
}

// matchBindingRef resolves name against scope (reusing an existing
// local the way parseForStmt's loop variable does) or declares a fresh
// one typed from the matched field, then returns a MakeReference into
// it — the "reference-producing expression" tree.PatternMatch's
// Bindings contract calls for.
func (p *Parser) matchBindingRef(scope *symbols.Table, name string, fieldType types.Type) tree.Expr {
	line := p.line()
	sym := scope.LookupLocal(name)
	if sym == nil {
		sym = scope.AddVariable(p.file, line, name, fieldType)
	}
	if scope.Kind == symbols.ScopeGlobal {
		return tree.NewMakeReference(tree.NewGetGlobalContext(), sym.Location)
	}
	locals := tree.NewGetOffset(tree.NewGetCurrentContext(), 3, nil)
	return tree.NewMakeReference(locals, sym.Location)
}

func (p *Parser) parseRelational(scope *symbols.Table) (tree.Expr, postfixInfo) {
	left, info := p.parseAdditive(scope)
	for p.at(Less) || p.at(Greater) || p.at(LessEq) || p.at(GreaterEq) {
		line := p.line()
		op := map[Kind]string{Less: "<", Greater: ">", LessEq: "<=", GreaterEq: ">="}[p.tok.Kind]
		p.advance()
		right, _ := p.parseAdditive(scope)
		left = tree.ResolveBinaryOperator(p.file, line, scope, op, left, right)
		info = postfixInfo{}
	}
	return left, info
}

func (p *Parser) parseAdditive(scope *symbols.Table) (tree.Expr, postfixInfo) {
	left, info := p.parseMultiplicative(scope)
	for p.at(Plus) || p.at(Minus) {
		line := p.line()
		op := "+"
		if p.at(Minus) {
			op = "-"
		}
		p.advance()
		right, _ := p.parseMultiplicative(scope)
		left = tree.ResolveBinaryOperator(p.file, line, scope, op, left, right)
		info = postfixInfo{}
	}
	return left, info
}

func (p *Parser) parseMultiplicative(scope *symbols.Table) (tree.Expr, postfixInfo) {
	left, info := p.parseUnary(scope)
	for p.at(Star) || p.at(Slash) {
		line := p.line()
		op := "*"
		if p.at(Slash) {
			op = "/"
		}
		p.advance()
		right, _ := p.parseUnary(scope)
		left = tree.ResolveBinaryOperator(p.file, line, scope, op, left, right)
		info = postfixInfo{}
	}
	return left, info
}

func (p *Parser) parseUnary(scope *symbols.Table) (tree.Expr, postfixInfo) {
	if p.at(KwNot) {
		line := p.line()
		p.advance()
		operand, _ := p.parseUnary(scope)
		return tree.ResolveUnaryOperator(p.file, line, scope, "not", operand), postfixInfo{}
	}
	if p.at(Minus) {
		line := p.line()
		p.advance()
		operand, _ := p.parseUnary(scope)
		return p.negate(line, scope, operand), postfixInfo{}
	}
	return p.parsePostfix(scope)
}

// negate builds unary minus as 0 - operand rather than giving integer
// and real their own unary "-" method: a class's member table can only
// hold one symbol per name, and binary "-" already occupies it, so a
// distinct unary operator method would need a name no other operator
// uses. Folding to the binary form needs no such name and reuses the
// same seed methods installed in bootstrap/operators.go.
func (p *Parser) negate(line int, scope *symbols.Table, operand tree.Expr) tree.Expr {
	rt := operand.ResultType()
	switch {
	case rt == types.Type(p.seed.Integer):
		return tree.ResolveBinaryOperator(p.file, line, scope, "-", tree.NewIntegerConstant(0, p.seed.Integer), operand)
	case rt == types.Type(p.seed.Real):
		return tree.ResolveBinaryOperator(p.file, line, scope, "-", tree.NewRealConstant(0, p.seed.Real), operand)
	default:
		diagnostics.Fail(p.file, line, "unary - requires an integer or real operand")
		return nil
	}
}

// parsePostfix implements Postfix := Primary { "." Ident ["(" Args
// ")"] | "(" Args ")" }, threading postfixInfo so the statement layer
// can recover the raw callee/args of a trailing bare call or the raw
// target of a trailing assignable selector.
func (p *Parser) parsePostfix(scope *symbols.Table) (tree.Expr, postfixInfo) {
	e, info := p.parsePrimary(scope)

	for {
		switch {
		case p.at(Dot):
			p.advance()
			line := p.line()
			name := p.expect(IDENT, "field or method name").Lexeme
			base := e
			field := tree.LookupField(p.file, line, base, base.ResultType(), name)
			if p.at(LParen) {
				p.advance()
				args := p.parseArgs(scope)
				p.expect(RParen, "')'")
				e = tree.GenerateCall(p.file, line, field, args)
				info = postfixInfo{isCall: true, callCallee: field, callArgs: args}
			} else {
				e = field
				info = postfixInfo{isLValue: true, lvField: true, lvBase: base, lvName: name}
			}

		case p.at(LParen):
			line := p.line()
			p.advance()
			args := p.parseArgs(scope)
			p.expect(RParen, "')'")
			callee := e
			e = tree.GenerateCall(p.file, line, callee, args)
			info = postfixInfo{isCall: true, callCallee: callee, callArgs: args}

		default:
			return e, info
		}
	}
}

// parseArgs implements Args := Expr { "," Expr }, used both for call
// argument lists and "new" instantiation's field-value lists.
func (p *Parser) parseArgs(scope *symbols.Table) []tree.Expr {
	var args []tree.Expr
	if p.at(RParen) {
		return args
	}
	for {
		args = append(args, p.parseExpr(scope))
		if p.at(Comma) {
			p.advance()
			continue
		}
		break
	}
	return args
}

// parsePrimary implements Primary := INT | REAL | STRING | "true" |
// "false" | "NIL" | "self" | Ident | "new" Ident "(" Args ")" | "("
// Expr ")" | "[" [Args] "]".
func (p *Parser) parsePrimary(scope *symbols.Table) (tree.Expr, postfixInfo) {
	line := p.line()
	switch {
	case p.at(INT):
		v := p.tok.IntVal
		p.advance()
		return tree.NewIntegerConstant(v, p.seed.Integer), postfixInfo{}

	case p.at(REAL):
		v := p.tok.RealVal
		p.advance()
		return tree.NewRealConstant(v, p.seed.Real), postfixInfo{}

	case p.at(STRING):
		v := p.tok.Lexeme
		p.advance()
		return tree.NewStringConstant(v, p.seed.String), postfixInfo{}

	case p.at(KwTrue):
		p.advance()
		return tree.ResolveIdentifier(p.file, line, scope, "true"), postfixInfo{}

	case p.at(KwFalse):
		p.advance()
		return tree.ResolveIdentifier(p.file, line, scope, "false"), postfixInfo{}

	case p.at(KwNil):
		p.advance()
		return tree.ResolveIdentifier(p.file, line, scope, "NIL"), postfixInfo{}

	case p.at(KwSelf):
		p.advance()
		return tree.ResolveIdentifier(p.file, line, scope, "self"), postfixInfo{}

	case p.at(KwNew):
		p.advance()
		className := p.expect(IDENT, "class name").Lexeme
		classExpr := tree.ResolveIdentifier(p.file, line, scope, className)
		p.expect(LParen, "'('")
		args := p.parseArgs(scope)
		p.expect(RParen, "')'")
		return tree.GenerateCall(p.file, line, classExpr, args), postfixInfo{}

	case p.at(LParen):
		p.advance()
		e := p.parseExpr(scope)
		p.expect(RParen, "')'")
		return e, postfixInfo{}

	case p.at(LBracket):
		p.advance()
		elements := p.parseArgs(scope)
		p.expect(RBracket, "']'")
		arrayClassExpr := tree.ResolveIdentifier(p.file, line, scope, "array")
		return tree.LowerArrayLiteral(p.file, line, arrayClassExpr, elements, p.seed.Integer), postfixInfo{}

	case p.at(IDENT):
		name := p.tok.Lexeme
		p.advance()
		return tree.ResolveIdentifier(p.file, line, scope, name), postfixInfo{isLValue: true, lvName: name}

	default:
		diagnostics.Fail(p.file, line, "unexpected token %q in expression", p.tok.Lexeme)
		return nil, postfixInfo{}
	}
}
