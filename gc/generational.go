package gc

import "github.com/embergc/corevm/object"

// Generational mode: instead of tracing the whole heap every cycle, most
// collections are "minor" — they trust that objects promoted to
// AgeOld were already fully traced by some earlier pass and only
// re-trace them if a write barrier flagged them "touched" since. Minor
// collections are synchronous (not broken into Step-sized slices); a
// MajorGC falls back to the same incremental machinery FullGC in
// incremental mode uses, to re-establish the old generation's
// correctness and reclaim anything a minor pass structurally can't.
//
// This is a simplified rendering of the aging scheme in the design
// notes (AgeNew -> AgeSurvival -> AgeOld0 -> AgeOld1 -> AgeOld, with
// AgeTouched1 standing in for a rescan request and always resolving
// back to AgeOld after one rescan rather than AgeTouched1->AgeTouched2's
// two-round grace period).

// minorMarkValue is markValue's generational counterpart: an object
// already promoted past AgeSurvival is assumed reachable without
// re-traversing its children, since some earlier pass already did so
// and BarrierBack/touched-tracking is responsible for catching any
// young object it has since come to reference.
func (c *Collector) minorMarkValue(v object.Value) {
	if !v.Tag().Collectable() {
		return
	}
	o := object.FromValue(v)
	if o == nil {
		return
	}
	h := o.Header()
	if h.IsOld() {
		return
	}
	c.markObject(o)
}

// MinorGC runs one generational minor collection. Unlike the
// incremental cycle, a minor collection is a single synchronous
// mark-sweep pass rather than several steps spread over time, so it
// uses plain "reset every young object to unmarked, mark what's
// reachable, sweep what's still unmarked" semantics instead of the
// white-bit-flip trick incremental mode needs to tell two overlapping
// cycles' whites apart.
func (c *Collector) MinorGC() {
	c.stats = CycleStats{}
	c.gray = c.gray[:0]

	c.resetYoungMarks()

	if c.Roots != nil {
		c.Roots(c.minorMarkValue)
	}
	for len(c.gray) > 0 {
		c.propagateOne()
	}

	c.rescanTouched()

	c.sweepYoung()
	c.ageYoungSurvivors()

	c.stats.MinorCollections++
	c.totalStats.add(c.stats)

	if c.shouldFallBackToMajor() {
		c.MajorGC()
	}
}

// resetYoungMarks paints every non-old object white again before a
// minor mark pass, so propagateOne/markObject's ordinary
// "skip if already non-white" shortcut doesn't mistake a young
// object's mark from a previous minor cycle for already-reached-this-
// cycle.
func (c *Collector) resetYoungMarks() {
	for o := c.allgc; o != nil; o = o.Header().Next() {
		if !o.Header().IsOld() {
			o.Header().MarkWhite(c.currentWhite)
		}
	}
}

// rescanTouched re-traverses every old table a backward barrier
// flagged AgeTouched1 since the last minor collection, marking any
// young object it references, then resolves the touch back to AgeOld.
func (c *Collector) rescanTouched() {
	touched := c.grayAgain
	c.grayAgain = c.grayAgain[:0]
	for _, o := range touched {
		if t, ok := o.(*object.Table); ok {
			t.TraverseStrong(c.minorMarkValue, func(k, v object.Value) {
				c.minorMarkValue(k)
				c.minorMarkValue(v)
			})
		} else if trav, ok := o.(object.Traversable); ok {
			trav.Traverse(c.minorMarkValue)
		}
		o.Header().SetAge(object.AgeOld)
	}
	for len(c.gray) > 0 {
		c.propagateOne()
	}
}

// sweepYoung walks the whole allgc list (there is no separate young
// list in this rendering) freeing dead young objects and leaving every
// old object untouched, matching a minor collection's restricted scope.
func (c *Collector) sweepYoung() {
	var prev object.GCObject
	cur := c.allgc
	for cur != nil {
		next := cur.Header().Next()
		h := cur.Header()
		if !h.IsOld() {
			if h.IsWhite() {
				c.unlink(&c.allgc, prev, cur, next)
				c.Mem.AddDebt(-approxSize(cur))
				c.stats.ObjectsSwept++
				cur = next
				continue
			}
		}
		prev = cur
		cur = next
	}
}

// ageYoungSurvivors advances the generational age of every live object
// younger than AgeOld (AgeOld0 and AgeOld1 included) one step, promoting
// survivors toward AgeOld over successive minor collections.
func (c *Collector) ageYoungSurvivors() {
	for o := c.allgc; o != nil; o = o.Header().Next() {
		h := o.Header()
		switch h.Age() {
		case object.AgeNew:
			h.SetAge(object.AgeSurvival)
		case object.AgeSurvival:
			h.SetAge(object.AgeOld0)
		case object.AgeOld0:
			h.SetAge(object.AgeOld1)
		case object.AgeOld1:
			h.SetAge(object.AgeOld)
		}
	}
}

// shouldFallBackToMajor reports whether the heap has grown enough since
// the last major collection that a minor pass's restricted scope is no
// longer sufficient, matching the real collector's
// "too many bytes survived as old generation" escape valve.
func (c *Collector) shouldFallBackToMajor() bool {
	if c.MajorMultiplier <= 0 {
		return false
	}
	return c.Mem.TrueUsage() > c.bytesAtCycleStart*int64(c.MajorMultiplier)/100
}

// MajorGC runs one full incremental cycle to completion — the
// generational-mode fallback, and also what FullGC uses when Mode is
// ModeGenerational.
func (c *Collector) MajorGC() {
	c.lastAtomic = true
	c.bytesAtCycleStart = c.Mem.TrueUsage()
	prevMode := c.Mode
	c.Mode = ModeIncremental
	c.RunCycle()
	c.Mode = prevMode
}
