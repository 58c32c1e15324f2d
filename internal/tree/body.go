package tree

import "github.com/GunterMueller/Leda-Language/internal/symbols"

// GenerateBody implements §4.4.7: every function/method/closure body is
// a make-locals statement sized to the scope's local-slot count,
// followed by one assignment per declared constant (evaluating its
// initializer into its slot, in declaration order), followed by the
// user's own statements.
func GenerateBody(file string, line int, funcScope *symbols.Table, userStmts *Stmt) *Stmt {
	body := NewMakeLocals(file, line, funcScope.Size)

	for _, sym := range funcScope.Symbols {
		if sym.Kind != symbols.KindConstant {
			continue
		}
		valueExpr, ok := sym.ValueExpr.(Expr)
		if !ok {
			continue
		}
		locals := NewGetOffset(NewGetCurrentContext(), 3, nil)
		ref := NewMakeReference(locals, sym.Location)
		body = Append(body, NewExpressionStmt(file, line, NewAssignment(ref, valueExpr)))
	}

	return Append(body, userStmts)
}
