// Package heap implements the L1 layer: a tagged-cell allocator, a
// two-space copying collector, a non-collected static arena and the
// root-stack discipline that keeps evaluator-local temporaries alive
// across an allocation.
//
// The original implementation represents every cell as a raw
// `struct ledaValue*` and encodes size/binary/forwarded into the header
// word's low bits (see memory.h). Go gives us tagged structs, so a Ptr
// here is an (arena, index) pair rather than an address, and the
// forwarded/binary bits become ordinary struct fields on the cell itself.
package heap

// space is an arena of cells: either one of the two semispaces the
// collector swaps between, or the static region that is never collected.
type space struct {
	cells []cell
}

// Ptr addresses a single cell inside one of the heap's arenas. The zero
// value is the canonical "null" pointer (Leda's NIL) and is distinct from
// any cell ever allocated, since a valid Ptr always carries a non-nil
// space.
type Ptr struct {
	space *space
	idx   int32
}

// Nil is the null object pointer.
var Nil = Ptr{}

// IsNil reports whether p is the null pointer.
func (p Ptr) IsNil() bool { return p.space == nil }

// Equal reports whether p and q address the same cell. Two pointers into
// different arenas (e.g. one stale after a collection) never compare
// equal even if their indices coincide.
func (p Ptr) Equal(q Ptr) bool { return p.space == q.space && p.idx == q.idx }

func (p Ptr) cell() *cell {
	return &p.space.cells[p.idx]
}
