package eval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/heap"
	"github.com/GunterMueller/Leda-Language/internal/tree"
)

// The 31 primitive indices of §6.2, evaluateSpecial's case table in
// interp.c. Each evaluates its own Args (not pre-evaluated by the
// caller, since some primitives — isDefined, the short-circuit-free but
// order-sensitive indexed-store forms — need control over exactly when
// and whether an argument is forced).
const (
	primObjectEquals = iota
	primStringCompare
	primStringPrint
	primStringConcat
	primIntegerEquals
	primIntegerAdd
	primIntegerMinus
	primIntegerTimes
	primIntegerDivide
	primIntegerAsString
	primIntegerLess
	primIntegerOr
	primIntegerAnd
	primIntegerInvert
	primIntegerAsReal
	primAllocate
	primIndexAt
	primIndexAtPut
	primEvaluateValue
	primStringLength
	primStringSubstring
	primStdinRead
	primIsDefined
	primRealAsString
	primRealAdd
	primRealSubtract
	primRealMultiply
	primRealDivide
	primRealLess
	primRealAsInteger
	primRealEquals
)

// Exported aliases of the indices above, for packages outside eval that
// need to build a DoSpecialCall node — bootstrap's built-in operator
// methods, chiefly — without duplicating this table or exporting the
// whole identifier set evalSpecial itself uses.
const (
	PrimObjectEquals  = primObjectEquals
	PrimStringCompare = primStringCompare
	PrimStringConcat  = primStringConcat
	PrimIntegerEquals = primIntegerEquals
	PrimIntegerAdd    = primIntegerAdd
	PrimIntegerMinus  = primIntegerMinus
	PrimIntegerTimes  = primIntegerTimes
	PrimIntegerDivide = primIntegerDivide
	PrimIntegerLess   = primIntegerLess
	PrimRealAdd       = primRealAdd
	PrimRealSubtract  = primRealSubtract
	PrimRealMultiply  = primRealMultiply
	PrimRealDivide    = primRealDivide
	PrimRealLess      = primRealLess
	PrimRealEquals    = primRealEquals

	PrimIntegerAsString  = primIntegerAsString
	PrimIntegerAsReal    = primIntegerAsReal
	PrimRealAsString     = primRealAsString
	PrimRealAsInteger    = primRealAsInteger
	PrimStringLength     = primStringLength
	PrimStringSubstring  = primStringSubstring
	PrimStringPrint      = primStringPrint
	PrimIndexAt          = primIndexAt
	PrimIndexAtPut       = primIndexAtPut
)

// evalSpecial dispatches a DoSpecialCall to its primitive, per §6.2.
// Binary arithmetic/comparison primitives evaluate their two arguments
// strictly left to right, pinning the left result on the root stack
// while the right is evaluated (the right's evaluation can allocate and
// relocate the left), mirroring evaluateSpecial's push/evaluate/pop
// pattern throughout interp.c.
func (ev *Evaluator) evalSpecial(e *tree.DoSpecialCall) heap.Ptr {
	args := e.Args

	switch e.Index {
	case primObjectEquals:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.Bool(a.Equal(b))

	case primStringCompare:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewInteger(int64(strings.Compare(a.StringValue(), b.StringValue())))

	case primStringPrint:
		s := ev.EvalExpr(args[0])
		undefCheck(s, "string print operand")
		fmt.Print(s.StringValue())
		return heap.Nil

	case primStringConcat:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewString(a.StringValue() + b.StringValue())

	case primIntegerEquals:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.Bool(a.IntValue() == b.IntValue())

	case primIntegerAdd:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewInteger(a.IntValue() + b.IntValue())

	case primIntegerMinus:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewInteger(a.IntValue() - b.IntValue())

	case primIntegerTimes:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewInteger(a.IntValue() * b.IntValue())

	case primIntegerDivide:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		if b.IntValue() == 0 {
			diagnostics.Failf("division by zero")
		}
		return ev.NewInteger(a.IntValue() / b.IntValue())

	case primIntegerAsString:
		a := ev.EvalExpr(args[0])
		undefCheck(a, "integer asString operand")
		return ev.NewString(fmt.Sprintf("%d", a.IntValue()))

	case primIntegerLess:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.Bool(a.IntValue() < b.IntValue())

	case primIntegerOr:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewInteger(a.IntValue() | b.IntValue())

	case primIntegerAnd:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewInteger(a.IntValue() & b.IntValue())

	case primIntegerInvert:
		a := ev.EvalExpr(args[0])
		undefCheck(a, "integer invert operand")
		return ev.NewInteger(^a.IntValue())

	case primIntegerAsReal:
		a := ev.EvalExpr(args[0])
		undefCheck(a, "integer asReal operand")
		return ev.NewReal(float64(a.IntValue()))

	case primAllocate:
		return ev.evalAllocate(args)

	case primIndexAt:
		return ev.evalIndexAt(args)

	case primIndexAtPut:
		return ev.evalIndexAtPut(args)

	case primEvaluateValue:
		return ev.specialCast(args)

	case primStringLength:
		a := ev.EvalExpr(args[0])
		undefCheck(a, "string length operand")
		return ev.NewInteger(int64(len(a.StringValue())))

	case primStringSubstring:
		return ev.evalSubstring(args)

	case primStdinRead:
		return ev.evalStdinRead()

	case primIsDefined:
		v := ev.EvalExpr(args[0])
		return ev.Bool(!v.IsNil())

	case primRealAsString:
		a := ev.EvalExpr(args[0])
		undefCheck(a, "real asString operand")
		return ev.NewString(fmt.Sprintf("%g", a.RealValue()))

	case primRealAdd:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewReal(a.RealValue() + b.RealValue())

	case primRealSubtract:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewReal(a.RealValue() - b.RealValue())

	case primRealMultiply:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewReal(a.RealValue() * b.RealValue())

	case primRealDivide:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.NewReal(a.RealValue() / b.RealValue())

	case primRealLess:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.Bool(a.RealValue() < b.RealValue())

	case primRealAsInteger:
		a := ev.EvalExpr(args[0])
		undefCheck(a, "real asInteger operand")
		return ev.NewInteger(int64(a.RealValue()))

	case primRealEquals:
		a, b := ev.evalLeftThenRight(args[0], args[1])
		return ev.Bool(a.RealValue() == b.RealValue())

	default:
		diagnostics.Failf("unknown primitive index %d", e.Index)
		return heap.Nil
	}
}

// evalLeftThenRight evaluates a then b left to right, pinning a's
// result on the root stack while b is evaluated since b's evaluation
// can allocate and relocate a — the push/evaluate/pop-refresh pattern
// every ordinary binary primitive in evaluateSpecial uses.
func (ev *Evaluator) evalLeftThenRight(a, b tree.Expr) (heap.Ptr, heap.Ptr) {
	av := ev.EvalExpr(a)
	undefCheck(av, "primitive operand")
	ev.Heap.Push(av)
	bv := ev.EvalExpr(b)
	av = ev.Heap.Pop()
	undefCheck(bv, "primitive operand")
	return av, bv
}

// specialCast implements primitive 18 (object_cast, SPEC_FULL.md §D.3):
// a type-system-only cast with no runtime effect, evaluating its one
// argument and returning it unchanged.
func (ev *Evaluator) specialCast(args []tree.Expr) heap.Ptr {
	return ev.EvalExpr(args[0])
}

// evalAllocate implements primitive 15 (object_allocate): the first
// argument evaluates to the new cell's slot count, and every remaining
// argument fills the cell in order starting at slot 0 — not slot 2, as
// BuildInstance does, since this primitive builds a bare payload cell
// with no class/context header of its own (array literals use it only
// for the array's element payload, per tree.LowerArrayLiteral).
func (ev *Evaluator) evalAllocate(args []tree.Expr) heap.Ptr {
	sizeVal := ev.EvalExpr(args[0])
	undefCheck(sizeVal, "allocate size")
	n := int(sizeVal.IntValue())

	cell := ev.Heap.NewInstance(n)
	for i, argExpr := range args[1:] {
		ev.Heap.Push(cell)
		v := ev.EvalExpr(argExpr)
		cell = ev.Heap.Pop()
		cell.SetSlot(i, v)
	}
	return cell
}

// evalIndexAt implements primitive 16: a.slot[b], where a is already
// the bare payload cell (not the array instance itself) and b is an
// integer object whose 0-based value is the slot index.
func (ev *Evaluator) evalIndexAt(args []tree.Expr) heap.Ptr {
	a, b := ev.evalLeftThenRight(args[0], args[1])
	idx := int(b.IntValue())
	if idx < 0 || idx >= a.NumSlots() {
		diagnostics.Failf("array index %d out of range", idx)
	}
	return a.Slot(idx)
}

// evalIndexAtPut implements primitive 17: a.slot[b] = c, pinning a
// across evaluating b (the index) and again across evaluating c (the
// value to store), since either evaluation can allocate.
func (ev *Evaluator) evalIndexAtPut(args []tree.Expr) heap.Ptr {
	a := ev.EvalExpr(args[0])
	undefCheck(a, "indexed store target")
	ev.Heap.Push(a)
	b := ev.EvalExpr(args[1])
	a = ev.Heap.Pop()
	undefCheck(b, "indexed store index")
	idx := int(b.IntValue())

	ev.Heap.Push(a)
	c := ev.EvalExpr(args[2])
	a = ev.Heap.Pop()
	if idx < 0 || idx >= a.NumSlots() {
		diagnostics.Failf("array index %d out of range", idx)
	}
	a.SetSlot(idx, c)
	return c
}

// evalSubstring implements primitive 20: substring(s, start, length),
// start being the 1-based index §4's array/string indexing convention
// uses throughout (matching array literals' lowBound=1).
func (ev *Evaluator) evalSubstring(args []tree.Expr) heap.Ptr {
	s := ev.EvalExpr(args[0])
	undefCheck(s, "substring operand")
	ev.Heap.Push(s)
	startVal := ev.EvalExpr(args[1])
	s = ev.Heap.Pop()
	ev.Heap.Push(s)
	lenVal := ev.EvalExpr(args[2])
	s = ev.Heap.Pop()

	str := s.StringValue()
	start := int(startVal.IntValue()) - 1
	length := int(lenVal.IntValue())
	if start < 0 || length < 0 || start+length > len(str) {
		diagnostics.Failf("substring range out of bounds")
	}
	return ev.NewString(str[start : start+length])
}

// stdinReader lazily wraps os.Stdin the first time primitive 21 runs;
// the bootstrap sequence never needs a reader, so there is no reason to
// allocate one before a Leda program actually calls stdinRead.
var stdinReader *bufio.Reader

// evalStdinRead implements primitive 21: one line from stdin, or Nil on
// EOF — mirroring fgets returning NULL at end of input.
func (ev *Evaluator) evalStdinRead() heap.Ptr {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(os.Stdin)
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil && err != io.EOF {
		diagnostics.Failf("reading stdin: %v", err)
	}
	if err == io.EOF && line == "" {
		return heap.Nil
	}
	return ev.NewString(strings.TrimRight(line, "\n"))
}
