package heap

// cell is the payload behind a Ptr. It plays the role of the original
// struct ledaValue{size; data[0]}, split into the pieces the collector
// actually needs to tell apart rather than one bit-packed header word:
//
//   - slots holds child pointers that the collector traces and relocates.
//   - raw holds an opaque byte payload (integer/real/string bits) that is
//     copied byte-wise and never traced, matching the "binary" cells of
//     §3.3/§4.1.
//   - untraced holds a single opaque pointer payload that is likewise
//     copied but never followed — this is how a reference cell carries
//     its base-cell pointer while still being a "binary" cell per the
//     original's layout (see DESIGN.md for why that's a faithful
//     translation rather than a Go-specific shortcut).
//   - code holds opaque, non-heap payload: statement-tree roots for
//     closures, thunks, method contexts and class method tables. These
//     are ordinary Go pointers into program structure, already kept
//     alive by the host GC, so the collector does not need to know their
//     shape at all.
//
// A cell uses whichever subset of these four fields its canonical shape
// calls for; the others stay nil/zero.
type cell struct {
	forwarded bool
	forward   Ptr

	slots    []Ptr
	raw      []byte
	untraced Ptr
	code     []any
}

// Size reports the cell's payload length for diagnostic purposes: slot
// count if it has child pointers, else byte count, else code-entry count.
func (p Ptr) Size() int {
	c := p.cell()
	switch {
	case c.slots != nil:
		return len(c.slots)
	case c.raw != nil:
		return len(c.raw)
	default:
		return len(c.code)
	}
}

// IsBinary reports whether the cell's payload is raw bytes rather than
// traced child pointers.
func (p Ptr) IsBinary() bool { return p.cell().raw != nil }

// Slot returns the i-th traced child pointer.
func (p Ptr) Slot(i int) Ptr { return p.cell().slots[i] }

// SetSlot overwrites the i-th traced child pointer.
func (p Ptr) SetSlot(i int, v Ptr) { p.cell().slots[i] = v }

// NumSlots returns the number of traced child-pointer slots.
func (p Ptr) NumSlots() int { return len(p.cell().slots) }

// Raw returns the raw byte payload.
func (p Ptr) Raw() []byte { return p.cell().raw }

// SetRaw overwrites the raw byte payload.
func (p Ptr) SetRaw(b []byte) { p.cell().raw = b }

// Untraced returns the opaque, never-relocated pointer payload (used by
// reference cells to hold their base pointer).
func (p Ptr) Untraced() Ptr { return p.cell().untraced }

// SetUntraced sets the opaque pointer payload.
func (p Ptr) SetUntraced(v Ptr) { p.cell().untraced = v }

// Code returns the i-th opaque code-pointer payload entry.
func (p Ptr) Code(i int) any { return p.cell().code[i] }

// SetCode overwrites the i-th opaque code-pointer payload entry.
func (p Ptr) SetCode(i int, v any) { p.cell().code[i] = v }

// NumCode returns the number of code-pointer payload entries.
func (p Ptr) NumCode() int { return len(p.cell().code) }
