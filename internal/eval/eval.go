// Package eval implements the L5 layer: the tree-walking evaluator that
// executes the core statement/expression tree of §4.5 against an
// internal/heap.Heap, using the calling convention, tail-call
// activation-splice optimization and primitive table of §4.5/§6.2.
//
// Evaluator carries the well-known class/object registers the
// bootstrap sequence (internal/bootstrap, not yet built at the time
// this package was written) installs once before any user code runs —
// mirroring the original's static globals (integerClass, trueObject,
// the interned-integer table) as explicit fields rather than package
// state, per §9's design note.
package eval

import (
	"github.com/GunterMueller/Leda-Language/internal/config"
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/heap"
)

// Evaluator holds the heap and the registers every primitive and
// calling-convention clause needs: the three value classes, the two
// canonical boolean instances, and the interned small-integer cache.
type Evaluator struct {
	Heap *heap.Heap

	IntegerClass heap.Ptr
	RealClass    heap.Ptr
	StringClass  heap.Ptr
	BooleanClass heap.Ptr

	TrueObject  heap.Ptr
	FalseObject heap.Ptr

	// InternedIntegers holds one pre-boxed cell per value in
	// [config.InternedIntegerLow, config.InternedIntegerHigh], set by
	// the bootstrap sequence. Reusing these avoids allocating a fresh
	// integer cell for the overwhelmingly common small values (loop
	// counters, array indices), matching the original's integerTable.
	InternedIntegers []heap.Ptr
}

// New creates an evaluator over h. The class/boolean/interned-integer
// registers are left zero; the bootstrap sequence must fill them in
// before any user code runs.
func New(h *heap.Heap) *Evaluator {
	return &Evaluator{Heap: h}
}

// NewInteger returns the canonical cell for v: an interned static cell
// when v falls in the bootstrap's interned range and the table has been
// filled in, otherwise a freshly allocated cell in the active semispace.
func (ev *Evaluator) NewInteger(v int64) heap.Ptr {
	lo := int64(config.InternedIntegerLow)
	hi := int64(config.InternedIntegerHigh)
	if v >= lo && v <= hi && ev.InternedIntegers != nil {
		return ev.InternedIntegers[v-lo]
	}
	return ev.Heap.NewIntegerCell(false, ev.IntegerClass, ev.Heap.GlobalContext(), v)
}

// NewReal allocates a fresh real cell for v.
func (ev *Evaluator) NewReal(v float64) heap.Ptr {
	return ev.Heap.NewRealCell(false, ev.RealClass, ev.Heap.GlobalContext(), v)
}

// NewString allocates a fresh string cell for s.
func (ev *Evaluator) NewString(s string) heap.Ptr {
	return ev.Heap.NewStringCell(false, ev.StringClass, ev.Heap.GlobalContext(), s)
}

// Bool returns the canonical TrueObject or FalseObject for v.
func (ev *Evaluator) Bool(v bool) heap.Ptr {
	if v {
		return ev.TrueObject
	}
	return ev.FalseObject
}

// IsTrue implements §E's canonical-true rule: anything not
// pointer-equal to the single canonical TrueObject — including the nil
// pointer and FalseObject itself — is false. This governs conditional
// dispatch (tree.SConditional) and pattern-match results.
func (ev *Evaluator) IsTrue(p heap.Ptr) bool {
	return !p.IsNil() && p.Equal(ev.TrueObject)
}

// undefCheck fails with a diagnostic if p is nil, mirroring the
// original's undefCheck(n, arg, what) calls scattered through
// evaluateExpression/evaluateSpecial — every dereference of a
// user-reachable pointer is preceded by exactly this check.
func undefCheck(p heap.Ptr, what string) {
	if p.IsNil() {
		diagnostics.Failf("undefined value used as %s", what)
	}
}
