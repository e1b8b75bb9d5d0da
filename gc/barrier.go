package gc

import "github.com/embergc/corevm/object"

// BarrierForward must be called whenever a black object gains a
// reference to a white one while the invariant is live. Typical call sites: a
// closure's upvalue being closed over a new value, or a userdata's user
// value being set. Thread stack writes need no call: propagateOne keeps
// every traversed thread on grayAgain so atomic re-traverses it.
func (c *Collector) BarrierForward(owner object.GCObject, v object.Value) {
	if !v.Tag().Collectable() {
		return
	}
	target := object.FromValue(v)
	if target == nil {
		return
	}

	if c.Mode == ModeGenerational {
		// An old non-table object gaining a reference to a young one needs
		// the same "rescan me next minor collection" tracking BarrierBack
		// gives tables; there is no cheap in-place repaint for an arbitrary
		// Traversable, so it goes on grayAgain exactly like a touched table.
		if owner.Header().IsOld() && !target.Header().IsOld() && owner.Header().Age() != object.AgeTouched1 {
			owner.Header().SetAge(object.AgeTouched1)
			c.grayAgain = append(c.grayAgain, owner)
		}
		return
	}

	if !c.state.keepsInvariant() {
		return
	}
	if !owner.Header().IsBlack() {
		return
	}
	if !target.Header().IsWhite() {
		return
	}
	c.markObject(target)
}

// BarrierBack must be called whenever a black table gains a reference
// to a white object through a raw set. Repainting the whole table gray
// again is more expensive per call than BarrierForward but amortizes
// better for tables that receive many writes per GC cycle.
func (c *Collector) BarrierBack(t *object.Table) {
	if c.Mode == ModeGenerational {
		if t.Header().IsOld() && t.Header().Age() != object.AgeTouched1 {
			t.Header().SetAge(object.AgeTouched1)
			c.grayAgain = append(c.grayAgain, t)
		}
		return
	}
	if !c.state.keepsInvariant() {
		return
	}
	if !t.Header().IsBlack() {
		return
	}
	t.Header().MarkGray()
	c.grayAgain = append(c.grayAgain, t)
}

// OnSetField is the single hook the object model's table/userdata/
// upvalue mutators are expected to call after a raw write: it picks the
// cheaper of the two barriers depending on whether owner is a table.
func (c *Collector) OnSetField(owner object.GCObject, v object.Value) {
	if t, ok := owner.(*object.Table); ok {
		c.BarrierBack(t)
		return
	}
	c.BarrierForward(owner, v)
}
