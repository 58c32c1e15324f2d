package heap

// Collect performs a two-space (Baker/Cheney) copying collection. Roots
// are the static region's outgoing slots, globalContext, currentContext
// and the live prefix of the root stack (§4.1). need is the size of the
// allocation that triggered collection; it only influences the new
// semispace's preallocated capacity, since a Go slice grows on demand
// rather than aborting like the original's fixed arena would.
//
// On copy a cell's forwarded flag is set and its forward field holds the
// new address; evacuate follows that forward on any later reference to
// the same cell, so a cell already seen during this collection is copied
// exactly once. Binary cells are copied byte-wise and never scanned for
// outgoing pointers, matching §4.1.
func (h *Heap) Collect(need int) {
	newCap := cap(h.from.cells)
	if need+1 > newCap {
		newCap = need + 1
	}
	to := &space{cells: make([]cell, 0, newCap)}

	evac := func(p Ptr) Ptr {
		if p.IsNil() {
			return p
		}
		if p.space != h.from {
			// Already in the static region or the new space: never moves.
			return p
		}
		c := &p.space.cells[p.idx]
		if c.forwarded {
			return c.forward
		}
		newIdx := len(to.cells)
		nc := cell{untraced: c.untraced}
		if c.slots != nil {
			nc.slots = append([]Ptr(nil), c.slots...)
		}
		if c.raw != nil {
			nc.raw = append([]byte(nil), c.raw...)
		}
		if c.code != nil {
			nc.code = append([]any(nil), c.code...)
		}
		to.cells = append(to.cells, nc)
		newPtr := Ptr{space: to, idx: int32(newIdx)}
		c.forwarded = true
		c.forward = newPtr
		return newPtr
	}

	h.globalContext = evac(h.globalContext)
	h.currentContext = evac(h.currentContext)
	for i := 0; i < h.rootTop; i++ {
		h.rootStack[i] = evac(h.rootStack[i])
	}

	for i := range h.static.cells {
		sc := &h.static.cells[i]
		for j := range sc.slots {
			sc.slots[j] = evac(sc.slots[j])
		}
	}

	// Scan-and-copy: to.cells grows while we walk it, exactly the
	// Cheney two-finger technique (scan pointer trails the copy
	// pointer, which here is simply len(to.cells)). The untraced and
	// code payloads are never walked: that is the whole point of §4.1's
	// "binary cells are not traced" contract.
	for scan := 0; scan < len(to.cells); scan++ {
		c := &to.cells[scan]
		for j := range c.slots {
			c.slots[j] = evac(c.slots[j])
		}
	}

	oldFrom := h.from
	h.from = to
	h.to = oldFrom
	h.to.cells = h.to.cells[:0]
}
