package bootstrap

import (
	"github.com/GunterMueller/Leda-Language/internal/eval"
	"github.com/GunterMueller/Leda-Language/internal/symbols"
	"github.com/GunterMueller/Leda-Language/internal/tree"
	"github.com/GunterMueller/Leda-Language/internal/types"
)

// installNumericAndBooleanOperators gives integer, real, string and
// boolean real operator methods — "+", "<", "=", and so on — so that
// tree.ResolveBinaryOperator's method-lookup-first rule (§4.4.6) finds a
// built-in operator exactly the way it would find a user-defined
// overload, rather than needing a special case anywhere in the front
// end for operators on primitive types. Each method's Code is a tiny
// statement tree wrapping the matching DoSpecialCall primitive (§6.2);
// there being no boolean-negation primitive index, <=, >=, and ~= are
// instead built from the direct primitive by branching to the global
// true/false singletons.
func installNumericAndBooleanOperators(globals *symbols.Table, boolean, integer, real, str *types.ClassType) {
	trueSym := globals.LookupLocal("true")
	falseSym := globals.LookupLocal("false")
	boolT := types.Type(boolean)

	readTrue := func() tree.Expr { return tree.NewGetGlobalOffset(trueSym.Location, boolT) }
	readFalse := func() tree.Expr { return tree.NewGetGlobalOffset(falseSym.Location, boolT) }

	negate := func(cond tree.Expr) *tree.Stmt {
		return tree.NewConditional(bootstrapFile, 0, cond,
			tree.NewReturn(bootstrapFile, 0, readFalse()),
			tree.NewReturn(bootstrapFile, 0, readTrue()))
	}

	installNumeric(globals, integer, boolT,
		eval.PrimIntegerAdd, eval.PrimIntegerMinus, eval.PrimIntegerTimes, eval.PrimIntegerDivide,
		eval.PrimIntegerLess, eval.PrimIntegerEquals, negate)
	installNumeric(globals, real, boolT,
		eval.PrimRealAdd, eval.PrimRealSubtract, eval.PrimRealMultiply, eval.PrimRealDivide,
		eval.PrimRealLess, eval.PrimRealEquals, negate)
	installString(globals, str, boolT, negate)
	installBooleanEquality(globals, boolean, boolT, negate)
	installConversions(globals, integer, real, str)
}

// installConversions wires the handful of primitive-backed conversion
// and inspection methods §6.2's remaining indices exist for: asString/
// asReal/asInteger, string length and substring, and a bare print. None
// of these need the negate helper — each is a single direct primitive
// call.
func installConversions(globals *symbols.Table, integer, real, str *types.ClassType) {
	intT := types.Type(integer)
	realT := types.Type(real)
	strT := types.Type(str)

	selfI, _ := selfAndOther(intT, intT)
	unaryMethod(integer, "asString", strT, tree.NewReturn(bootstrapFile, 0, tree.NewDoSpecialCall(eval.PrimIntegerAsString, []tree.Expr{selfI}, strT)))

	selfI2, _ := selfAndOther(intT, intT)
	unaryMethod(integer, "asReal", realT, tree.NewReturn(bootstrapFile, 0, tree.NewDoSpecialCall(eval.PrimIntegerAsReal, []tree.Expr{selfI2}, realT)))

	selfR, _ := selfAndOther(realT, realT)
	unaryMethod(real, "asString", strT, tree.NewReturn(bootstrapFile, 0, tree.NewDoSpecialCall(eval.PrimRealAsString, []tree.Expr{selfR}, strT)))

	selfR2, _ := selfAndOther(realT, realT)
	unaryMethod(real, "asInteger", intT, tree.NewReturn(bootstrapFile, 0, tree.NewDoSpecialCall(eval.PrimRealAsInteger, []tree.Expr{selfR2}, intT)))

	selfS, _ := selfAndOther(strT, strT)
	unaryMethod(str, "length", intT, tree.NewReturn(bootstrapFile, 0, tree.NewDoSpecialCall(eval.PrimStringLength, []tree.Expr{selfS}, intT)))

	selfP, _ := selfAndOther(strT, strT)
	unaryMethod(str, "print", nil, tree.NewReturn(bootstrapFile, 0, tree.NewDoSpecialCall(eval.PrimStringPrint, []tree.Expr{selfP}, nil)))

	// substring(start, length): string takes two arguments beyond self,
	// a shape binaryMethod doesn't cover, so it is wired directly here
	// exactly like array's atPut below.
	table, _ := str.Members.(*symbols.Table)
	sym, funcScope := symbols.AddFunctionSymbol(bootstrapFile, 0, table, "substring", str)
	startArg := funcScope.AddArgument(bootstrapFile, 0, "start", intT, types.ByValue)
	lenArg := funcScope.AddArgument(bootstrapFile, 0, "length", intT, types.ByValue)
	sym.DeclaredType = types.NewFunctionType([]types.ArgSym{startArg, lenArg}, strT)

	ctx := tree.Expr(tree.NewGetCurrentContext())
	self := tree.NewGetOffset(ctx, 1, strT)
	start := tree.NewGetOffset(ctx, startArg.Location, intT)
	length := tree.NewGetOffset(ctx, lenArg.Location, intT)
	call := tree.NewDoSpecialCall(eval.PrimStringSubstring, []tree.Expr{self, start, length}, strT)
	sym.Code = tree.GenerateBody(bootstrapFile, 0, funcScope, tree.NewReturn(bootstrapFile, 0, call))
}

// installArrayOperators wires "at"/"atPut", array's read/write index
// operations, against the payload cell's raw slots (primIndexAt/
// primIndexAtPut address a bare instance by 0-based slot, not the array
// wrapper), adjusting for lowBound so index 1 reaches the first element
// — the convention tree.LowerArrayLiteral's payload already assumes.
func installArrayOperators(globals *symbols.Table, arrayClass, integerClass *types.ClassType) {
	table, _ := arrayClass.Members.(*symbols.Table)
	payloadSym := table.LookupLocal("payload")
	lowBoundSym := table.LookupLocal("lowBound")
	objT := payloadSym.DeclaredType
	intT := types.Type(integerClass)
	arrT := types.Type(arrayClass)

	self, index := selfAndOther(arrT, intT)
	payload := tree.NewGetOffset(self, payloadSym.Location, objT)
	lowBound := tree.NewGetOffset(self, lowBoundSym.Location, intT)
	zeroBased := tree.NewDoSpecialCall(eval.PrimIntegerMinus, []tree.Expr{index, lowBound}, intT)
	at := tree.NewDoSpecialCall(eval.PrimIndexAt, []tree.Expr{payload, zeroBased}, objT)
	binaryMethod(globals, arrayClass, "at", intT, objT, tree.NewReturn(bootstrapFile, 0, at))

	sym, funcScope := symbols.AddFunctionSymbol(bootstrapFile, 0, table, "atPut", arrayClass)
	idxArg := funcScope.AddArgument(bootstrapFile, 0, "index", intT, types.ByValue)
	valArg := funcScope.AddArgument(bootstrapFile, 0, "value", objT, types.ByValue)
	sym.DeclaredType = types.NewFunctionType([]types.ArgSym{idxArg, valArg}, objT)

	ctx := tree.Expr(tree.NewGetCurrentContext())
	self2 := tree.NewGetOffset(ctx, 1, arrT)
	payload2 := tree.NewGetOffset(self2, payloadSym.Location, objT)
	lowBound2 := tree.NewGetOffset(self2, lowBoundSym.Location, intT)
	indexRead := tree.NewGetOffset(ctx, idxArg.Location, intT)
	valueRead := tree.NewGetOffset(ctx, valArg.Location, objT)
	zeroBased2 := tree.NewDoSpecialCall(eval.PrimIntegerMinus, []tree.Expr{indexRead, lowBound2}, intT)
	atPut := tree.NewDoSpecialCall(eval.PrimIndexAtPut, []tree.Expr{payload2, zeroBased2, valueRead}, objT)
	sym.Code = tree.GenerateBody(bootstrapFile, 0, funcScope, tree.NewReturn(bootstrapFile, 0, atPut))
}

// binaryMethod declares a binary method named opName on owner, with a
// single byValue argument "other" of type argType and return type
// retType, whose body is exactly bodyStmt (built by the caller from
// self = getOffset(ctx,1) and other = getOffset(ctx,4)).
func binaryMethod(globals *symbols.Table, owner *types.ClassType, opName string, argType, retType types.Type, bodyStmt *tree.Stmt) {
	table, _ := owner.Members.(*symbols.Table)
	sym, funcScope := symbols.AddFunctionSymbol(bootstrapFile, 0, table, opName, owner)
	other := funcScope.AddArgument(bootstrapFile, 0, "other", argType, types.ByValue)
	sym.DeclaredType = types.NewFunctionType([]types.ArgSym{other}, retType)
	sym.Code = tree.GenerateBody(bootstrapFile, 0, funcScope, bodyStmt)
}

// unaryMethod declares a zero-argument method named opName on owner.
func unaryMethod(owner *types.ClassType, opName string, retType types.Type, bodyStmt *tree.Stmt) {
	table, _ := owner.Members.(*symbols.Table)
	sym, funcScope := symbols.AddFunctionSymbol(bootstrapFile, 0, table, opName, owner)
	sym.DeclaredType = types.NewFunctionType(nil, retType)
	sym.Code = tree.GenerateBody(bootstrapFile, 0, funcScope, bodyStmt)
}

// selfAndOther builds the two operand-reading leaves every binary
// numeric/string method body starts from: self at the receiver's fixed
// activation slot 1, the sole argument at slot 4 (AddFunctionSymbol
// always reserves slot 1 for self on a method scope; AddArgument then
// starts the first real argument at slot 4, per symbols.AddArgument).
func selfAndOther(selfType, otherType types.Type) (self, other tree.Expr) {
	ctx := tree.Expr(tree.NewGetCurrentContext())
	return tree.NewGetOffset(ctx, 1, selfType), tree.NewGetOffset(ctx, 4, otherType)
}

func installNumeric(globals *symbols.Table, numType *types.ClassType, boolT types.Type,
	addIdx, subIdx, mulIdx, divIdx, lessIdx, eqIdx int, negate func(tree.Expr) *tree.Stmt) {
	numT := types.Type(numType)

	wrap := func(idx int, rt types.Type) *tree.Stmt {
		self, other := selfAndOther(numT, numT)
		return tree.NewReturn(bootstrapFile, 0, tree.NewDoSpecialCall(idx, []tree.Expr{self, other}, rt))
	}
	binaryMethod(globals, numType, "+", numT, numT, wrap(addIdx, numT))
	binaryMethod(globals, numType, "-", numT, numT, wrap(subIdx, numT))
	binaryMethod(globals, numType, "*", numT, numT, wrap(mulIdx, numT))
	binaryMethod(globals, numType, "/", numT, numT, wrap(divIdx, numT))
	binaryMethod(globals, numType, "<", numT, boolT, wrap(lessIdx, boolT))
	binaryMethod(globals, numType, "=", numT, boolT, wrap(eqIdx, boolT))

	// a > b  iff  b < a
	selfA, otherA := selfAndOther(numT, numT)
	greater := tree.NewReturn(bootstrapFile, 0, tree.NewDoSpecialCall(lessIdx, []tree.Expr{otherA, selfA}, boolT))
	binaryMethod(globals, numType, ">", numT, boolT, greater)

	// a <= b  iff  not (b < a)
	selfB, otherB := selfAndOther(numT, numT)
	lessSwapped := tree.NewDoSpecialCall(lessIdx, []tree.Expr{otherB, selfB}, boolT)
	binaryMethod(globals, numType, "<=", numT, boolT, negate(lessSwapped))

	// a >= b  iff  not (a < b)
	selfC, otherC := selfAndOther(numT, numT)
	lessDirect := tree.NewDoSpecialCall(lessIdx, []tree.Expr{selfC, otherC}, boolT)
	binaryMethod(globals, numType, ">=", numT, boolT, negate(lessDirect))

	// a ~= b  iff  not (a = b)
	selfD, otherD := selfAndOther(numT, numT)
	eqDirect := tree.NewDoSpecialCall(eqIdx, []tree.Expr{selfD, otherD}, boolT)
	binaryMethod(globals, numType, "~=", numT, boolT, negate(eqDirect))
}

// installString wires string's "+" (concatenation) and its comparison
// operators, all derived from the three-way primStringCompare result —
// there is no direct string-less-than primitive, only the comparison
// one, so <, <=, >, >=, =, ~= are all built by comparing that result
// against the integer constant 0.
func installString(globals *symbols.Table, strType *types.ClassType, boolT types.Type, negate func(tree.Expr) *tree.Stmt) {
	strT := types.Type(strType)
	zero := func() tree.Expr { return tree.NewIntegerConstant(0, nil) }

	self, other := selfAndOther(strT, strT)
	concat := tree.NewReturn(bootstrapFile, 0, tree.NewDoSpecialCall(eval.PrimStringConcat, []tree.Expr{self, other}, strT))
	binaryMethod(globals, strType, "+", strT, strT, concat)

	compareLess := func() tree.Expr {
		self, other := selfAndOther(strT, strT)
		cmp := tree.NewDoSpecialCall(eval.PrimStringCompare, []tree.Expr{self, other}, nil)
		return tree.NewDoSpecialCall(eval.PrimIntegerLess, []tree.Expr{cmp, zero()}, boolT)
	}
	binaryMethod(globals, strType, "<", strT, boolT, tree.NewReturn(bootstrapFile, 0, compareLess()))

	compareEqual := func() tree.Expr {
		self, other := selfAndOther(strT, strT)
		cmp := tree.NewDoSpecialCall(eval.PrimStringCompare, []tree.Expr{self, other}, nil)
		return tree.NewDoSpecialCall(eval.PrimIntegerEquals, []tree.Expr{cmp, zero()}, boolT)
	}
	binaryMethod(globals, strType, "=", strT, boolT, tree.NewReturn(bootstrapFile, 0, compareEqual()))

	// a > b  iff  b < a
	compareGreater := func() tree.Expr {
		self, other := selfAndOther(strT, strT)
		cmp := tree.NewDoSpecialCall(eval.PrimStringCompare, []tree.Expr{other, self}, nil)
		return tree.NewDoSpecialCall(eval.PrimIntegerLess, []tree.Expr{cmp, zero()}, boolT)
	}
	binaryMethod(globals, strType, ">", strT, boolT, tree.NewReturn(bootstrapFile, 0, compareGreater()))

	binaryMethod(globals, strType, "<=", strT, boolT, negate(compareGreater()))
	binaryMethod(globals, strType, ">=", strT, boolT, negate(compareLess()))
	binaryMethod(globals, strType, "~=", strT, boolT, negate(compareEqual()))
}

// installBooleanEquality wires "=" and "~=" on boolean itself via
// object identity (True and False are each a single static singleton,
// per Materialize, so identity comparison is exactly value equality).
// Both True and False inherit these through FillInParent, which is why
// this must run before either is declared.
func installBooleanEquality(globals *symbols.Table, boolType *types.ClassType, boolT types.Type, negate func(tree.Expr) *tree.Stmt) {
	self, other := selfAndOther(boolT, boolT)
	eq := tree.NewDoSpecialCall(eval.PrimObjectEquals, []tree.Expr{self, other}, boolT)
	binaryMethod(globals, boolType, "=", boolT, boolT, tree.NewReturn(bootstrapFile, 0, eq))

	self2, other2 := selfAndOther(boolT, boolT)
	eq2 := tree.NewDoSpecialCall(eval.PrimObjectEquals, []tree.Expr{self2, other2}, boolT)
	binaryMethod(globals, boolType, "~=", boolT, boolT, negate(eq2))
}

// installBooleanLogic wires and/or/not directly on True and False by
// selecting self or the argument, the ordinary Smalltalk-style
// definition of boolean logic as double dispatch rather than a
// primitive: True.and(x) is x, False.and(x) is False, and symmetrically
// for or/not. No primitive index exists for any of these; the whole
// point of giving booleans their own True/False classes is that the
// class itself already encodes which branch to take.
func installBooleanLogic(globals *symbols.Table, trueClass, falseClass, boolean *types.ClassType) {
	boolT := types.Type(boolean)

	self, other := selfAndOther(boolT, boolT)
	binaryMethod(globals, trueClass, "and", boolT, boolT, tree.NewReturn(bootstrapFile, 0, other))
	binaryMethod(globals, trueClass, "or", boolT, boolT, tree.NewReturn(bootstrapFile, 0, self))

	self2, other2 := selfAndOther(boolT, boolT)
	binaryMethod(globals, falseClass, "and", boolT, boolT, tree.NewReturn(bootstrapFile, 0, self2))
	binaryMethod(globals, falseClass, "or", boolT, boolT, tree.NewReturn(bootstrapFile, 0, other2))

	falseSym := globals.LookupLocal("false")
	trueSym := globals.LookupLocal("true")
	unaryMethod(trueClass, "not", boolT, tree.NewReturn(bootstrapFile, 0, tree.NewGetGlobalOffset(falseSym.Location, boolT)))
	unaryMethod(falseClass, "not", boolT, tree.NewReturn(bootstrapFile, 0, tree.NewGetGlobalOffset(trueSym.Location, boolT)))
}
