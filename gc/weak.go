package gc

import "github.com/embergc/corevm/object"

// weakMode reads a table's __mode metafield: "k" marks weak keys, "v" marks weak values, "kv"
// (or any string containing both letters) marks both.
func (c *Collector) weakMode(t *object.Table) (weakKeys, weakValues bool) {
	if t.Metatable == nil {
		return false, false
	}
	mv := t.Metatable.GetStrContent("__mode", c.seed)
	if !mv.IsString() {
		return false, false
	}
	s := object.AsTString(mv).Content()
	for _, ch := range s {
		switch ch {
		case 'k':
			weakKeys = true
		case 'v':
			weakValues = true
		}
	}
	return weakKeys, weakValues
}

// traverseTable marks a table's children, splitting off into the
// weak/ephemeron/allweak lists for later resolution whenever __mode
// says part of the table should not keep its contents alive:
//
//   - no weak parts:        ordinary strong traversal, marks everything now.
//   - weak values only:     keys are marked now; values deferred to "weak".
//   - weak keys only:       this is an ephemeron: a value is only kept
//     alive once its key is found reachable by other means, resolved by
//     convergeEphemerons's fixed-point loop.
//   - weak keys and values: "allweak": neither half is marked now; an
//     entry survives only if both its key and value are independently
//     reachable.
func (c *Collector) traverseTable(t *object.Table) int64 {
	weakKeys, weakValues := c.weakMode(t)
	var work int64

	markMeta := func(v object.Value) { c.markValue(v); work++ }

	switch {
	case !weakKeys && !weakValues:
		t.TraverseStrong(markMeta, func(_, v object.Value) {
			c.markValue(v)
			work++
		})
	case weakKeys && !weakValues:
		// Ephemeron: keys are not marked now; values are marked only once
		// convergeEphemerons finds their key reachable. A non-collectable
		// key (a number or boolean, including every array-part index) is
		// always reachable, so its value is marked here.
		t.TraverseStrong(markMeta, func(k, v object.Value) {
			if !k.IsCollectable() {
				c.markValue(v)
				work++
			}
		})
		c.ephemeron = append(c.ephemeron, t)
	case !weakKeys && weakValues:
		t.TraverseStrong(markMeta, func(k, _ object.Value) {
			c.markValue(k)
			work++
		})
		c.weak = append(c.weak, t)
	default:
		markMeta(t.Metatable.ToValue())
		c.allWeak = append(c.allWeak, t)
	}
	return work
}

// convergeEphemerons repeatedly scans every ephemeron table, marking a
// value whenever its key has become black, until a full pass marks
// nothing new.
// Run once at the start of the atomic phase, after the ordinary gray
// list (including grayagain, re-pushed by backward barriers) has fully
// drained.
func (c *Collector) convergeEphemerons() {
	for {
		c.stats.EphemeronPasses++
		dirty := false
		for _, t := range c.ephemeron {
			t.VisitEphemeron(func(key, val object.Value) {
				ko := object.FromValue(key)
				if ko == nil || !ko.Header().IsBlack() {
					return
				}
				vo := object.FromValue(val)
				if vo == nil {
					return
				}
				if vo.Header().IsWhite() {
					c.markObject(vo)
					dirty = true
				}
			})
		}
		c.propagateAll()
		if !dirty {
			break
		}
	}
}

// clearWeakTables removes dead entries from every table on the
// weak/ephemeron/allweak lists and resets those lists, called at the
// end of the atomic phase once the ephemeron fixed point has settled
// and every reachable object has been marked black.
func (c *Collector) clearWeakTables() {
	// Called before the end-of-atomic white flip, so "never marked this
	// cycle" is exactly IsWhite(), not IsDead(currentWhite): an object
	// allocated after startCycle and only weakly referenced carries the
	// same white bit as anything already marked, not the other one.
	isDead := func(v object.Value) bool {
		o := object.FromValue(v)
		if o == nil {
			return false
		}
		return o.Header().IsWhite()
	}
	for _, t := range c.weak {
		t.ClearDeadValues(isDead)
	}
	for _, t := range c.ephemeron {
		t.ClearDeadKeys(isDead)
	}
	for _, t := range c.allWeak {
		t.ClearDeadKeys(isDead)
		t.ClearDeadValues(isDead)
	}
	c.weak = c.weak[:0]
	c.ephemeron = c.ephemeron[:0]
	c.allWeak = c.allWeak[:0]
}
