package heap

import "math"

// This file builds the canonical runtime shapes of §3.3 on top of the
// generic cell primitives in cell.go. Each constructor picks the
// allocator (static during bootstrap, semispace otherwise) the caller
// asks for by calling either the *Static or the plain variant.

// NewInstance allocates the canonical object shape: slot 0 = class
// table, slot 1 = enclosing context, remaining slots zeroed. size is the
// class's total instance-field count (at least 2).
func (h *Heap) NewInstance(size int) Ptr {
	return h.Alloc(size)
}

// NewActivation allocates a function-activation cell: slot 0 = class
// table (always the function's own descriptor, may be Nil), slot 1 =
// enclosing (lexical) context, slot 2 = caller context, slot 3 = locals
// cell (filled lazily by makeLocalsStatement), slots 4..4+argc-1 =
// arguments.
func (h *Heap) NewActivation(argc int) Ptr {
	return h.Alloc(4 + argc)
}

// NewReference allocates a reference cell: an lvalue handle pairing a
// base cell with a slot index. Per §3.3 this is a "binary" cell; base is
// carried in the untraced payload rather than a traced slot, matching
// the original layout (see DESIGN.md).
func (h *Heap) NewReference(base Ptr, slot int) Ptr {
	h.Push(base)
	p := h.allocRaw(cell{raw: encodeInt(int64(slot))})
	base = h.Pop()
	p.SetUntraced(base)
	return p
}

// ReferenceBase and ReferenceSlot read back a reference cell's payload.
func (p Ptr) ReferenceBase() Ptr   { return p.Untraced() }
func (p Ptr) ReferenceSlot() int   { return int(decodeInt(p.Raw())) }

// NewClosure allocates a closure cell: context cell + opaque code
// pointer. Thunks (call-by-name) use the identical shape; callers
// distinguish them only by which opcode evaluates the result.
func (h *Heap) NewClosure(ctx Ptr, code any) Ptr {
	h.Push(ctx)
	p := h.allocRaw(cell{slots: make([]Ptr, 1), code: []any{code}})
	ctx = h.Pop()
	p.SetSlot(0, ctx)
	return p
}

func (p Ptr) ClosureContext() Ptr { return p.Slot(0) }
func (p Ptr) ClosureCode() any    { return p.Code(0) }

// NewMethodContext allocates a method-context cell produced by virtual
// dispatch: slot 0 unused (reserved to match the canonical shape's class
// slot), slot 1 = receiver, opaque code = the resolved method body.
func (h *Heap) NewMethodContext(receiver Ptr, code any) Ptr {
	h.Push(receiver)
	p := h.allocRaw(cell{slots: make([]Ptr, 2), code: []any{code}})
	receiver = h.Pop()
	p.SetSlot(1, receiver)
	return p
}

func (p Ptr) MethodContextReceiver() Ptr { return p.Slot(1) }
func (p Ptr) MethodContextCode() any     { return p.Code(0) }

// NewClassTable allocates a class static table: slot 0 = metaclass
// table, slot 1 = global context, slot 2 = name (string cell), slot 3 =
// method-table size (an interned integer cell), slot 4 = parent's
// static table, code entries indexed by (location-5) = method bodies.
// Allocated statically, since static tables are program-lifetime data
// never subject to collection.
func (h *Heap) NewClassTable(methodTableSize int) Ptr {
	codeCount := methodTableSize - 5
	if codeCount < 0 {
		codeCount = 0
	}
	return h.allocRawStatic(cell{
		slots: make([]Ptr, 5),
		code:  make([]any, codeCount),
	})
}

func (p Ptr) ClassMeta() Ptr          { return p.Slot(0) }
func (p Ptr) SetClassMeta(v Ptr)      { p.SetSlot(0, v) }
func (p Ptr) ClassGlobal() Ptr        { return p.Slot(1) }
func (p Ptr) SetClassGlobal(v Ptr)    { p.SetSlot(1, v) }
func (p Ptr) ClassName() Ptr          { return p.Slot(2) }
func (p Ptr) SetClassName(v Ptr)      { p.SetSlot(2, v) }
func (p Ptr) ClassSizeSlot() Ptr      { return p.Slot(3) }
func (p Ptr) SetClassSizeSlot(v Ptr)  { p.SetSlot(3, v) }
func (p Ptr) ClassParent() Ptr        { return p.Slot(4) }
func (p Ptr) SetClassParent(v Ptr)    { p.SetSlot(4, v) }

// ClassMethodCode and SetClassMethodCode address the method table by its
// natural location numbering (starting at 5, per §3.2's
// methodTableSize), not by a zero-based code index.
func (p Ptr) ClassMethodCode(location int) any {
	if location-5 >= p.NumCode() {
		return nil
	}
	return p.Code(location - 5)
}

func (p Ptr) SetClassMethodCode(location int, code any) {
	p.SetCode(location-5, code)
}

// NewIntegerCell, NewRealCell and NewStringCell allocate the 3-slot
// (class, context, raw payload) shape shared by integers, reals and
// strings. static selects the static arena (bootstrap-time interning);
// otherwise the active semispace is used.
func (h *Heap) newValueCell(static bool, class, ctx Ptr, raw []byte) Ptr {
	if static {
		return h.allocRawStatic(cell{slots: []Ptr{class, ctx}, raw: raw})
	}
	h.Push(class)
	h.Push(ctx)
	p := h.allocRaw(cell{slots: make([]Ptr, 2), raw: raw})
	ctx = h.Pop()
	class = h.Pop()
	p.SetSlot(0, class)
	p.SetSlot(1, ctx)
	return p
}

func (h *Heap) NewIntegerCell(static bool, class, ctx Ptr, v int64) Ptr {
	return h.newValueCell(static, class, ctx, encodeInt(v))
}

func (h *Heap) NewRealCell(static bool, class, ctx Ptr, v float64) Ptr {
	return h.newValueCell(static, class, ctx, encodeInt(int64(math.Float64bits(v))))
}

func (h *Heap) NewStringCell(static bool, class, ctx Ptr, s string) Ptr {
	return h.newValueCell(static, class, ctx, []byte(s))
}

func (p Ptr) ValueClass() Ptr   { return p.Slot(0) }
func (p Ptr) ValueContext() Ptr { return p.Slot(1) }

func (p Ptr) IntValue() int64     { return decodeInt(p.Raw()) }
func (p Ptr) RealValue() float64  { return math.Float64frombits(uint64(decodeInt(p.Raw()))) }
func (p Ptr) StringValue() string { return string(p.Raw()) }

func (p Ptr) SetIntValue(v int64)    { p.SetRaw(encodeInt(v)) }
func (p Ptr) SetRealValue(v float64) { p.SetRaw(encodeInt(int64(math.Float64bits(v)))) }
func (p Ptr) SetStringValue(s string) { p.SetRaw([]byte(s)) }

func encodeInt(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	return b
}

func decodeInt(b []byte) int64 {
	var u uint64
	for i := 0; i < 8 && i < len(b); i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}
