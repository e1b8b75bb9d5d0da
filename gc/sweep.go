package gc

import "github.com/embergc/corevm/object"

// approxSize estimates a live object's current byte footprint for the
// memory-debt accounting that sweep credits back, mirroring the real
// collector's per-type sizeof helpers (sizestring, sizeudata, ...)
// closely enough for pacing purposes without claiming byte-exact
// accounting (see alloc.go's overhead constants).
func approxSize(o object.GCObject) int64 {
	switch v := o.(type) {
	case *object.TString:
		return headerOverhead + int64(v.Len())
	case *object.Table:
		return headerOverhead + v.Len()*valueOverhead
	case *object.Userdata:
		return headerOverhead + int64(len(v.Data)) + int64(len(v.UserValues))*valueOverhead
	case *object.LClosure:
		return headerOverhead + int64(len(v.Upvals))*8
	case *object.CClosure:
		return headerOverhead + int64(len(v.Upvalues))*valueOverhead
	case *object.Thread:
		return headerOverhead + int64(v.Top())*valueOverhead
	case *object.Proto:
		return headerOverhead + int64(len(v.Code))
	default:
		return headerOverhead
	}
}

// sweepAllGCStep incrementally sweeps the allgc list, freeing dead
// (other-white) objects and flipping survivors to the new current
// white, visiting at most budget objects.
// A negative budget sweeps to completion; a zero budget does no work
// and reports false. Finalizable dead objects are
// diverted onto tobefnz instead of being freed outright.
func (c *Collector) sweepAllGCStep(budget int64) (done bool) {
	for budget != 0 {
		if c.sweepCur == nil {
			c.sweepCur = c.allgc
			c.sweepPrev = nil
		}
		if c.sweepCur == nil {
			return true
		}
		cur := c.sweepCur
		next := cur.Header().Next()
		if cur.Header().IsDead(c.currentWhite) {
			c.unlink(&c.allgc, c.sweepPrev, cur, next)
			c.evictInterned(cur)
			if cur.Header().ToFinalize() {
				cur.Header().SetNext(c.tobefnz)
				c.tobefnz = cur
			} else {
				c.Mem.AddDebt(-approxSize(cur))
			}
			c.stats.ObjectsSwept++
			c.sweepCur = next
		} else {
			cur.Header().MarkWhite(c.currentWhite)
			c.sweepPrev = cur
			c.sweepCur = next
		}
		if budget > 0 {
			budget--
		}
		if c.sweepCur == nil {
			return true
		}
	}
	return false
}

// unlink splices node out of the list rooted at head, given the
// previously-surviving node prev (nil if node is currently the head).
func (c *Collector) unlink(head *object.GCObject, prev, node, next object.GCObject) {
	if prev != nil {
		prev.Header().SetNext(next)
	} else {
		*head = next
	}
	node.Header().SetNext(nil)
}

// evictInterned removes a freed short string's entry from the owning
// runtime's intern table. Without this, Intern would keep handing out
// a *TString this sweep already unlinked from allgc and debited from
// TotalBytes, silently resurrecting freed memory on the next intern of
// the same content. Long strings are never interned and Strings may be
// nil (e.g. in collector-only tests), so both are no-ops.
func (c *Collector) evictInterned(o object.GCObject) {
	if c.Strings == nil {
		return
	}
	s, ok := o.(*object.TString)
	if !ok || s.IsLong() {
		return
	}
	c.Strings.Remove(s.Content())
}

// resurrectFinalizers walks finobj during atomic, before SwpAllGC runs,
// for any entry ordinary marking left unreached. Spec.md §4.3
// "Finalization" requires the object (and everything reachable from
// it) to be forcibly marked reachable here and moved onto tobefnz,
// so a __gc-equivalent finalizer can safely dereference its fields
// later and nothing it alone keeps alive gets swept as ordinary
// garbage in this same cycle.
func (c *Collector) resurrectFinalizers() {
	var prev object.GCObject
	cur := c.finobj
	for cur != nil {
		next := cur.Header().Next()
		if cur.Header().IsWhite() {
			c.unlink(&c.finobj, prev, cur, next)
			c.markObject(cur)
			cur.Header().SetNext(c.tobefnz)
			c.tobefnz = cur
		} else {
			prev = cur
		}
		cur = next
	}
	c.propagateAll()
}

// sweepFinObj fully sweeps the (expected-small) finobj list left after
// resurrectFinalizers has already pulled every unreachable entry onto
// tobefnz: every survivor here was independently reachable, so this
// pass only flips each one to the new current white and leaves it
// registered as finalizable for a future cycle.
func (c *Collector) sweepFinObj() {
	cur := c.finobj
	for cur != nil {
		cur.Header().MarkWhite(c.currentWhite)
		cur = cur.Header().Next()
	}
}

// SetFinalizable moves o from allgc onto finobj, the set of objects the
// collector must run CallFinalizer over before actually freeing them.
// The runtime layer calls this the first time a finalizing metatable
// is attached to a userdata or table.
func (c *Collector) SetFinalizable(o object.GCObject) {
	if o.Header().ToFinalize() {
		return
	}
	var prev object.GCObject
	cur := c.allgc
	for cur != nil && cur != o {
		prev = cur
		cur = cur.Header().Next()
	}
	if cur == nil {
		// Not found on allgc (already moved, or newly allocated directly
		// onto finobj by a future caller); just set the flag.
		o.Header().SetToFinalize(true)
		return
	}
	next := cur.Header().Next()
	c.unlink(&c.allgc, prev, cur, next)
	o.Header().SetToFinalize(true)
	o.Header().SetNext(c.finobj)
	c.finobj = o
}

// runCallFin calls CallFinalizer on every object queued in tobefnz,
// unlinking as it goes, and downgrades any error to OnFinalizerError
// rather than letting it propagate. Order is FIFO, the order objects
// were queued in.
func (c *Collector) runCallFin() {
	// tobefnz is built by prepending, so walking front-to-back visits the
	// most-recently-queued object first; reverse into FIFO order.
	var order []object.GCObject
	for o := c.tobefnz; o != nil; o = o.Header().Next() {
		order = append(order, o)
	}
	for i := len(order) - 1; i >= 0; i-- {
		o := order[i]
		o.Header().SetToFinalize(false)
		if c.CallFinalizer != nil {
			if err := c.CallFinalizer(o); err != nil && c.OnFinalizerError != nil {
				c.OnFinalizerError(o, err)
			}
		}
		c.Mem.AddDebt(-approxSize(o))
		c.stats.ObjectsFinalized++
	}
	c.tobefnz = nil
}
