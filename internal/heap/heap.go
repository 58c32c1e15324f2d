package heap

import (
	"github.com/GunterMueller/Leda-Language/internal/config"
)

// Heap owns the static arena, the two semispaces, the process-wide
// context registers and the root stack. §9's design note calls for
// centralizing currentContext/globalContext/rootStack/rootTop/
// memoryPointer/memoryBase in one runtime object rather than package
// globals; Heap is that object.
type Heap struct {
	static *space
	from   *space
	to     *space

	globalContext  Ptr
	currentContext Ptr

	rootStack []Ptr
	rootTop   int

	semispaceWords int
}

// New creates a heap with the given semispace capacity (in cells) and
// root-stack depth limit.
func New(semispaceWords, rootStackLimit int) *Heap {
	return &Heap{
		static:         &space{},
		from:           &space{cells: make([]cell, 0, semispaceWords)},
		to:             &space{cells: make([]cell, 0, semispaceWords)},
		rootStack:      make([]Ptr, rootStackLimit),
		semispaceWords: semispaceWords,
	}
}

// NewDefault creates a heap using the package-level defaults in
// internal/config.
func NewDefault() *Heap {
	return New(config.Resolved.SemispaceWords, config.Resolved.RootStackLimit)
}

// GlobalContext returns the global-context register.
func (h *Heap) GlobalContext() Ptr { return h.globalContext }

// SetGlobalContext sets the global-context register. Only the bootstrap
// sequence should call this.
func (h *Heap) SetGlobalContext(p Ptr) { h.globalContext = p }

// CurrentContext returns the current-context register.
func (h *Heap) CurrentContext() Ptr { return h.currentContext }

// SetCurrentContext sets the current-context register. Only the
// evaluator's calling convention should call this, and every call site
// must restore the previous value on the way out (§5).
func (h *Heap) SetCurrentContext(p Ptr) { h.currentContext = p }

// StaticAlloc allocates an n-slot, pointer-bearing cell in the
// non-collected static region. Used only during bootstrap and for class
// tables.
func (h *Heap) StaticAlloc(n int) Ptr {
	return allocIn(h.static, cell{slots: make([]Ptr, n)})
}

// StaticAllocBinary allocates an n-byte binary cell in the static region.
func (h *Heap) StaticAllocBinary(n int) Ptr {
	return allocIn(h.static, cell{raw: make([]byte, n)})
}

// Alloc allocates an n-slot, pointer-bearing cell from the active
// semispace, running a collection first if there is not enough room.
func (h *Heap) Alloc(n int) Ptr {
	h.ensureRoom(n)
	return allocIn(h.from, cell{slots: make([]Ptr, n)})
}

// AllocBinary allocates an n-byte binary cell from the active semispace.
func (h *Heap) AllocBinary(n int) Ptr {
	h.ensureRoom(n)
	return allocIn(h.from, cell{raw: make([]byte, n)})
}

// allocRaw allocates a cell combining any subset of the four payload
// kinds, for the canonical runtime shapes (integers, references,
// closures, class tables) whose layout mixes traced slots with opaque
// payload. Bootstrap-time callers pass the heap's static space via
// allocInStatic; ordinary runtime allocation goes through the active
// semispace and may trigger a collection.
func (h *Heap) allocRaw(c cell) Ptr {
	need := len(c.slots)
	if n := len(c.raw); n > need {
		need = n
	}
	h.ensureRoom(need)
	return allocIn(h.from, c)
}

func (h *Heap) allocRawStatic(c cell) Ptr {
	return allocIn(h.static, c)
}

func allocIn(s *space, c cell) Ptr {
	idx := len(s.cells)
	s.cells = append(s.cells, c)
	return Ptr{space: s, idx: int32(idx)}
}

func (h *Heap) ensureRoom(n int) {
	if len(h.from.cells)+1 > cap(h.from.cells) {
		h.Collect(n)
	}
}
