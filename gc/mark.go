package gc

import "github.com/embergc/corevm/object"

// MarkRoot marks v as reachable from outside the heap — the embedder's
// registry of live threads/globals, the currently running thread's
// stack, and anything else the runtime layer considers a root.
// Safe to call in any phase; it is a no-op once the invariant no longer
// needs enforcing (the sweep phases, CALLFIN and PAUSE).
func (c *Collector) MarkRoot(v object.Value) {
	if !c.state.keepsInvariant() {
		return
	}
	c.markValue(v)
}

// markValue is the single entry point that turns a white Value into a
// gray one queued for propagation, or paints a non-traversable leaf
// (a string) directly black. Called by MarkRoot, by markRoots, and for
// each child visited during propagation.
func (c *Collector) markValue(v object.Value) {
	if !v.Tag().Collectable() {
		return
	}
	o := object.FromValue(v)
	if o == nil {
		return
	}
	c.markObject(o)
}

func (c *Collector) markObject(o object.GCObject) {
	h := o.Header()
	if !h.IsWhite() {
		return
	}
	if _, ok := o.(object.Traversable); !ok {
		// Leaf object (TString): nothing to traverse, go straight to black.
		h.MarkBlack()
		return
	}
	h.MarkGray()
	c.gray = append(c.gray, o)
}

// propagateOne pops one object off the gray list, visits its children,
// and paints it black.
// Returns the approximate amount of work performed, in abstract units
// proportional to the number of child slots visited, for debt-based
// step pacing.
func (c *Collector) propagateOne() int64 {
	if len(c.gray) == 0 {
		return 0
	}
	o := c.gray[len(c.gray)-1]
	c.gray = c.gray[:len(c.gray)-1]

	h := o.Header()
	if !h.IsGray() {
		return 1
	}

	var work int64
	_, isThread := o.(*object.Thread)
	if t, ok := o.(*object.Table); ok {
		work = c.traverseTable(t)
	} else if trav, ok := o.(object.Traversable); ok {
		trav.Traverse(func(v object.Value) {
			c.markValue(v)
			work++
		})
	}
	h.MarkBlack()
	if isThread {
		// A thread's stack is mutated directly by its owning goroutine
		// (Thread.Push/Set/PushCallInfo install no write barrier), so a
		// black thread can silently gain a reference to a white, freshly
		// allocated value. Per spec.md §4.3 "Propagation", threads stay on
		// grayAgain permanently so atomic() always re-traverses them
		// before sweep. Unlike a barrier-backed table, this happens
		// unconditionally: there is no barrier call to trigger it reactively.
		c.grayAgain = append(c.grayAgain, o)
	}
	c.stats.ObjectsMarked++
	if work < 1 {
		work = 1
	}
	return work
}

// propagateAll drains the gray list completely, used when entering the
// atomic phase and by FullGC.
func (c *Collector) propagateAll() {
	for len(c.gray) > 0 {
		c.propagateOne()
	}
}
