package gc

import (
	"testing"

	"github.com/embergc/corevm/mem"
	"github.com/embergc/corevm/object"
)

func newCollector(t *testing.T) *Collector {
	t.Helper()
	m := mem.New(nil, nil, nil)
	c := New(m, nil, 1)
	return c
}

// A table reachable only through this slice is what markRoots marks;
// tests that want an object to survive a cycle stash it here and wire
// Collector.Roots to walk it.
func rootMarker(roots []object.Value) RootMarker {
	return func(mark func(object.Value)) {
		for _, v := range roots {
			mark(v)
		}
	}
}

func TestFullGCSweepsUnreachableTable(t *testing.T) {
	c := newCollector(t)
	c.Roots = rootMarker(nil)

	tbl := c.NewTable(0, 0)
	c.FullGC()

	found := false
	for o := c.allgc; o != nil; o = o.Header().Next() {
		if o == object.GCObject(tbl) {
			found = true
		}
	}
	if found {
		t.Error("unreachable table survived a full collection")
	}
}

func TestFullGCKeepsRootedTable(t *testing.T) {
	c := newCollector(t)
	tbl := c.NewTable(0, 0)
	c.Roots = rootMarker([]object.Value{tbl.ToValue()})

	c.FullGC()

	found := false
	for o := c.allgc; o != nil; o = o.Header().Next() {
		if o == object.GCObject(tbl) {
			found = true
		}
	}
	if !found {
		t.Error("rooted table was swept")
	}
}

// A table reachable only via another table's value must survive, and
// the nested table must actually be traversed rather than just the
// outer one.
func TestFullGCFollowsNestedReferences(t *testing.T) {
	c := newCollector(t)
	outer := c.NewTable(0, 1)
	inner := c.NewTable(0, 0)
	key := c.NewLongString("child")
	if err := outer.Set(key.ToValue(), inner.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.Roots = rootMarker([]object.Value{outer.ToValue()})

	c.FullGC()

	got := outer.Get(key.ToValue(), c.Seed())
	if object.FromValue(got) != object.GCObject(inner) {
		t.Error("nested table was not reachable after GC, or its identity changed")
	}
	foundInner := false
	for o := c.allgc; o != nil; o = o.Header().Next() {
		if o == object.GCObject(inner) {
			foundInner = true
		}
	}
	if !foundInner {
		t.Error("nested table was collected despite being reachable from a root")
	}
}

// Scenario 6: a write to an already-black table during PROPAGATE must
// be caught by BarrierBack, or the newly attached white child would be
// swept despite being reachable.
func TestBarrierBackKeepsLateAttachedChildAlive(t *testing.T) {
	c := newCollector(t)
	outer := c.NewTable(0, 1)
	c.Roots = rootMarker([]object.Value{outer.ToValue()})

	c.startCycle()
	// Drive propagation until outer itself is marked black.
	for !outer.Header().IsBlack() && len(c.gray) > 0 {
		c.propagateOne()
	}
	if !outer.Header().IsBlack() {
		t.Fatal("outer table never went black; test setup assumption broke")
	}

	child := c.NewTable(0, 0) // born white under the cycle's current white
	key := c.NewLongString("late")
	if err := outer.Set(key.ToValue(), child.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.BarrierBack(outer)

	// Finish the cycle by hand, the same sequence Step would drive.
	for c.state == StatePropagate {
		c.stepPropagate()
	}
	c.atomic()
	for c.sweepAllGCStep(-1) == false {
	}
	c.sweepFinObj()
	c.runCallFin()

	found := false
	for o := c.allgc; o != nil; o = o.Header().Next() {
		if o == object.GCObject(child) {
			found = true
		}
	}
	if !found {
		t.Error("child attached to a black table after BarrierBack was still collected")
	}
}

// Scenario 4: a weak-valued table must drop an entry once nothing else
// keeps the value alive, without dropping the key.
func TestWeakValueTableDropsUnreachableValue(t *testing.T) {
	c := newCollector(t)
	meta := c.NewTable(0, 1)
	modeKey := c.NewLongString("__mode")
	modeVal := c.NewLongString("v")
	if err := meta.Set(modeKey.ToValue(), modeVal.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set mode: %v", err)
	}

	weak := c.NewTable(0, 1)
	weak.Metatable = meta
	key := c.NewLongString("k")
	val := c.NewTable(0, 0) // reachable only through weak's value slot
	if err := weak.Set(key.ToValue(), val.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c.Roots = rootMarker([]object.Value{weak.ToValue(), meta.ToValue()})
	c.FullGC()

	got := weak.Get(key.ToValue(), c.Seed())
	if !got.IsNil() {
		t.Errorf("weak value survived collection: %v", got)
	}
}

// Scenario 5: an ephemeron (weak keys) keeps its value alive exactly as
// long as its key is independently reachable, and drops it once the key
// is not.
func TestEphemeronValueSurvivesWhileKeyReachableElsewhere(t *testing.T) {
	c := newCollector(t)
	meta := c.NewTable(0, 1)
	modeKey := c.NewLongString("__mode")
	modeVal := c.NewLongString("k")
	if err := meta.Set(modeKey.ToValue(), modeVal.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set mode: %v", err)
	}

	ephemeron := c.NewTable(0, 1)
	ephemeron.Metatable = meta
	ephKey := c.NewTable(0, 0) // the ephemeron's key
	val := c.NewTable(0, 0)    // the ephemeron's value, weak only via this table
	if err := ephemeron.Set(ephKey.ToValue(), val.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Root the key through a second, ordinary strong table so it stays
	// reachable independently of the ephemeron.
	anchor := c.NewTable(0, 1)
	anchorKey := c.NewLongString("anchor")
	if err := anchor.Set(anchorKey.ToValue(), ephKey.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set anchor: %v", err)
	}

	c.Roots = rootMarker([]object.Value{ephemeron.ToValue(), meta.ToValue(), anchor.ToValue()})
	c.FullGC()

	got := ephemeron.Get(ephKey.ToValue(), c.Seed())
	if object.FromValue(got) != object.GCObject(val) {
		t.Errorf("ephemeron value did not survive despite its key being reachable: %v", got)
	}
}

func TestEphemeronValueDroppedWhenKeyUnreachable(t *testing.T) {
	c := newCollector(t)
	meta := c.NewTable(0, 1)
	modeKey := c.NewLongString("__mode")
	modeVal := c.NewLongString("k")
	if err := meta.Set(modeKey.ToValue(), modeVal.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set mode: %v", err)
	}

	ephemeron := c.NewTable(0, 1)
	ephemeron.Metatable = meta
	ephKey := c.NewTable(0, 0) // reachable only as the ephemeron key itself
	val := c.NewTable(0, 0)
	if err := ephemeron.Set(ephKey.ToValue(), val.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c.Roots = rootMarker([]object.Value{ephemeron.ToValue(), meta.ToValue()})
	c.FullGC()

	got := ephemeron.Get(ephKey.ToValue(), c.Seed())
	if !got.IsNil() {
		t.Errorf("ephemeron value survived despite an unreachable key: %v", got)
	}
}

// Invariant: the memory debt is rebaselined by finishCycle so that
// TrueUsage()+GCDebt() still holds (mem's own invariant 5) after a
// whole cycle completes.
func TestFinishCycleRebaselinesDebtAroundPause(t *testing.T) {
	c := newCollector(t)
	c.Roots = rootMarker(nil)
	for i := 0; i < 5; i++ {
		c.NewTable(0, 0)
	}
	before := c.Mem.TrueUsage()
	c.FullGC()
	after := c.Mem.TrueUsage()
	if after > before {
		t.Errorf("TrueUsage grew across a full collection of unreachable garbage: before=%d after=%d", before, after)
	}
	wantDebt := -(after * int64(c.Pause) / 100)
	if c.Mem.GCDebt() != wantDebt {
		t.Errorf("GCDebt() = %d, want %d", c.Mem.GCDebt(), wantDebt)
	}
}

// RunCycle must always return to StatePause, regardless of how many
// Step calls it takes internally.
func TestRunCycleReturnsToPause(t *testing.T) {
	c := newCollector(t)
	c.Roots = rootMarker(nil)
	c.NewTable(0, 0)
	c.RunCycle()
	if c.State() != StatePause {
		t.Errorf("State() after RunCycle = %v, want pause", c.State())
	}
}

func TestEmergencyCollectReportsWhetherItFreedAnything(t *testing.T) {
	c := newCollector(t)
	c.Roots = rootMarker(nil)
	c.NewTable(0, 4)

	freed := c.emergencyCollect()
	if !freed {
		t.Error("emergencyCollect() = false, want true after collecting an unreachable table")
	}

	freedAgain := c.emergencyCollect()
	if freedAgain {
		t.Error("emergencyCollect() = true on an already-empty heap")
	}
}

func TestMinorGCPromotesSurvivorsTowardOld(t *testing.T) {
	c := newCollector(t)
	c.ChangeMode(ModeGenerational)
	tbl := c.NewTable(0, 0)
	c.Roots = rootMarker([]object.Value{tbl.ToValue()})

	if tbl.Header().Age() != object.AgeNew {
		t.Fatalf("newly allocated table age = %v, want AgeNew", tbl.Header().Age())
	}
	c.MinorGC()
	if tbl.Header().Age() != object.AgeSurvival {
		t.Errorf("age after one MinorGC = %v, want AgeSurvival", tbl.Header().Age())
	}
	c.MinorGC()
	if tbl.Header().Age() != object.AgeOld0 {
		t.Errorf("age after two MinorGCs = %v, want AgeOld0", tbl.Header().Age())
	}
}

func TestMinorGCSweepsUnreachableYoungObject(t *testing.T) {
	c := newCollector(t)
	c.ChangeMode(ModeGenerational)
	c.Roots = rootMarker(nil)
	tbl := c.NewTable(0, 0)

	c.MinorGC()

	for o := c.allgc; o != nil; o = o.Header().Next() {
		if o == object.GCObject(tbl) {
			t.Error("unreachable young table survived MinorGC")
		}
	}
}

func TestStepGenerationalModeRunsMinorCollectionFromPause(t *testing.T) {
	c := newCollector(t)
	c.ChangeMode(ModeGenerational)
	c.Roots = rootMarker(nil)
	c.NewTable(0, 0)

	c.Step()

	if c.totalStats.MinorCollections != 1 {
		t.Errorf("MinorCollections = %d, want 1", c.totalStats.MinorCollections)
	}
	if c.State() != StatePause {
		t.Errorf("State() after a generational Step = %v, want pause", c.State())
	}
}

// Thread.Push/Set/PushCallInfo install no write barrier, so a thread
// that has already gone black during PROPAGATE must stay on grayAgain
// to be re-traversed at atomic; otherwise a value pushed onto its
// stack afterward is invisible to the collector and gets swept despite
// being live on th.stack.
func TestThreadSurvivesPushAfterGoingBlackMidPropagate(t *testing.T) {
	c := newCollector(t)
	th := c.NewThread(4)
	c.Roots = rootMarker([]object.Value{th.ToValue()})

	c.startCycle()
	for !th.Header().IsBlack() && len(c.gray) > 0 {
		c.propagateOne()
	}
	if !th.Header().IsBlack() {
		t.Fatal("thread never went black; test setup assumption broke")
	}

	fresh := c.NewTable(0, 0)
	th.Push(fresh.ToValue())

	for c.state == StatePropagate {
		c.stepPropagate()
	}
	c.atomic()
	for !c.sweepAllGCStep(-1) {
	}
	c.sweepFinObj()
	c.runCallFin()

	found := false
	for o := c.allgc; o != nil; o = o.Header().Next() {
		if o == object.GCObject(fresh) {
			found = true
		}
	}
	if !found {
		t.Error("value pushed onto an already-black thread's stack was swept: thread did not stay on grayAgain")
	}
}

// At atomic, a finalizable object left unreached by ordinary marking
// must be resurrected (marked, and everything it references traversed)
// before SwpAllGC runs, so nothing reachable only through it is swept
// out from under a finalizer that still needs to dereference it.
func TestAtomicResurrectsFinalizableObjectBeforeSweep(t *testing.T) {
	c := newCollector(t)
	c.Roots = rootMarker(nil)

	fin := c.NewTable(0, 1)
	child := c.NewTable(0, 0) // reachable only through fin's field
	key := c.NewLongString("child")
	if err := fin.Set(key.ToValue(), child.ToValue(), c.Seed()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.SetFinalizable(fin)

	var finalized []object.GCObject
	c.CallFinalizer = func(o object.GCObject) error {
		finalized = append(finalized, o)
		return nil
	}

	c.FullGC()

	if len(finalized) != 1 || finalized[0] != object.GCObject(fin) {
		t.Fatalf("finalized = %v, want exactly [fin]", finalized)
	}

	foundChild := false
	for o := c.allgc; o != nil; o = o.Header().Next() {
		if o == object.GCObject(child) {
			foundChild = true
		}
	}
	if !foundChild {
		t.Error("table reachable only through a to-be-finalized object was swept in the same cycle")
	}
}

// Sweeping a short interned string must evict its entry from the
// intern table, or the table keeps handing out a pointer the collector
// has already unlinked from allgc and debited from TotalBytes.
func TestSweepEvictsInternedStringFromTable(t *testing.T) {
	c := newCollector(t)
	it := object.NewInternTable(c.Seed())
	c.Strings = it
	c.Roots = rootMarker(nil)

	s := c.InternString(it, "evicted")
	if it.Len() != 1 {
		t.Fatalf("InternTable.Len() = %d right after interning, want 1", it.Len())
	}

	c.FullGC()

	if it.Len() != 0 {
		t.Errorf("InternTable.Len() = %d after sweeping the only reference, want 0", it.Len())
	}
	if _, ok := it.Lookup("evicted"); ok {
		t.Error("swept short string is still served from the intern table")
	}

	reinterned := c.InternString(it, "evicted")
	if reinterned == s {
		t.Error("InternString reused a pointer the collector already swept and debited")
	}
}
