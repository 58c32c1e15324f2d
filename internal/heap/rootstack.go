package heap

import "github.com/GunterMueller/Leda-Language/internal/diagnostics"

// Push records p as a live root so a subsequent Alloc/Collect cannot
// reclaim it out from under an in-flight expression evaluation. Every
// evaluator clause that allocates while a temporary is only reachable
// from a local Go variable MUST push that temporary first (§4.1, §5).
// Root-stack overflow is fatal, matching the original's fixed-size
// rootStack array.
func (h *Heap) Push(p Ptr) {
	if h.rootTop >= len(h.rootStack) {
		diagnostics.Failf("root stack overflow (limit %d)", len(h.rootStack))
	}
	h.rootStack[h.rootTop] = p
	h.rootTop++
}

// Pop discards the most recently pushed root and returns it (possibly
// relocated, if a collection ran while it was pushed).
func (h *Heap) Pop() Ptr {
	h.rootTop--
	p := h.rootStack[h.rootTop]
	h.rootStack[h.rootTop] = Nil
	return p
}

// RootDepth returns the current root-stack depth, for the "depth on
// entry equals depth on exit" invariant (§8, invariant 3) that tests
// assert around each statement evaluation.
func (h *Heap) RootDepth() int { return h.rootTop }

// Top peeks the most recently pushed root without popping it, returning
// its current (possibly just-relocated) value. Evaluator clauses that
// fill several slots of a pinned cell one allocation at a time — each of
// which can trigger a collection — re-fetch the cell through Top after
// every allocation instead of popping and re-pushing it.
func (h *Heap) Top() Ptr { return h.rootStack[h.rootTop-1] }

// Guard pushes p and returns a function that pops it; used as
//
//	defer h.Guard(p)()
//
// so a clause that allocates cannot forget to restore the root-stack
// depth on any exit path, including a panic unwinding through
// diagnostics.Fail.
func (h *Heap) Guard(p Ptr) func() {
	h.Push(p)
	return func() { h.Pop() }
}
