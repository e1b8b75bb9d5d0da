package gc

import "github.com/embergc/corevm/object"

// RootMarker marks everything the collector cannot discover on its own:
// the globals table, the registry, and every live thread. The owning runtime.State sets Collector.Roots once; the
// collector calls it at PROPAGATE's start and again at ENTERATOMIC to
// catch anything a root slot changed to since.
type RootMarker func(mark func(object.Value))

// stepWork converts the tuning knobs into an abstract work budget for
// one incremental step: StepSizeLog2 sets
// the base, and StepMul scales it as a percentage (100 leaves it
// unchanged; a non-positive StepMul returns the base as is).
func (c *Collector) stepWork() int64 {
	base := int64(1) << uint(c.StepSizeLog2)
	if c.StepMul <= 0 {
		return base
	}
	return base * int64(c.StepMul) / 100
}

// Step advances the collector's state machine by roughly one unit of
// incremental work. Call it frequently (e.g. once per bytecode dispatch
// loop iteration, or on every Nth allocation) so collection work is
// spread across normal execution instead of causing long pauses
//. In ModeGenerational, Step instead drives whole minor
// collections synchronously — see generational.go.
func (c *Collector) Step() {
	if c.Mode == ModeGenerational && c.state == StatePause {
		c.MinorGC()
		return
	}
	switch c.state {
	case StatePause:
		c.startCycle()
	case StatePropagate:
		c.stepPropagate()
	case StateEnterAtomic:
		c.atomic()
	case StateSwpAllGC:
		if c.sweepAllGCStep(c.stepWork()) {
			c.state = StateSwpFinObj
		}
	case StateSwpFinObj:
		c.sweepFinObj()
		c.state = StateSwpToBeFnz
	case StateSwpToBeFnz:
		c.state = StateSwpEnd
	case StateSwpEnd:
		c.finishCycle()
		c.state = StateCallFin
	case StateCallFin:
		c.runCallFin()
		c.state = StatePause
	}
}

func (c *Collector) markRoots() {
	if c.Roots != nil {
		c.Roots(c.markValue)
	}
}

func (c *Collector) startCycle() {
	c.gray = c.gray[:0]
	c.grayAgain = c.grayAgain[:0]
	c.weak = c.weak[:0]
	c.ephemeron = c.ephemeron[:0]
	c.allWeak = c.allWeak[:0]
	c.stats = CycleStats{}
	c.bytesAtCycleStart = c.Mem.TrueUsage()
	c.markRoots()
	c.state = StatePropagate
}

func (c *Collector) stepPropagate() {
	budget := c.stepWork()
	var performed int64
	for performed < budget && len(c.gray) > 0 {
		performed += c.propagateOne()
	}
	if len(c.gray) == 0 {
		c.state = StateEnterAtomic
	}
}

// atomic finishes marking in one uninterruptible pass: drains gray and grayagain, remarks roots once
// more to catch anything mutated since startCycle, resolves ephemerons,
// clears dead weak entries, then flips the current white bit so sweep
// can tell this cycle's survivors from true garbage.
func (c *Collector) atomic() {
	c.propagateAll()
	for len(c.grayAgain) > 0 {
		o := c.grayAgain[len(c.grayAgain)-1]
		c.grayAgain = c.grayAgain[:len(c.grayAgain)-1]
		if o.Header().IsWhite() {
			continue
		}
		o.Header().MarkGray()
		c.gray = append(c.gray, o)
	}
	c.propagateAll()
	c.markRoots()
	c.propagateAll()
	c.resurrectFinalizers()
	c.convergeEphemerons()
	c.clearWeakTables()

	c.currentWhite ^= uint8(3) // bitWhite0|bitWhite1
	c.sweepCur, c.sweepPrev = nil, nil
	c.state = StateSwpAllGC
}

func (c *Collector) finishCycle() {
	newDebt := -(c.Mem.TrueUsage() * int64(c.Pause) / 100)
	c.Mem.SetDebt(newDebt)
	c.totalStats.add(c.stats)
	c.totalStats.MajorCollections++
}

// RunCycle drives Step repeatedly until one full collection cycle
// completes (back to StatePause having passed through CallFin). Used
// by FullGC and by anything that wants a deterministic, complete
// collection rather than incremental slices of one.
func (c *Collector) RunCycle() {
	if c.state == StatePause {
		c.Step() // enter the cycle
	}
	for c.state != StatePause {
		c.Step()
	}
}

// FullGC runs one complete, non-incremental collection regardless of
// Mode: a full stop-the-world collection can always be requested
// explicitly.
func (c *Collector) FullGC() {
	if c.Mode == ModeGenerational {
		c.MajorGC()
		return
	}
	c.RunCycle()
}

// emergencyCollect is wired into mem.State.EmergencyCollect: it runs a
// full collection synchronously and reports whether it freed anything,
// so SafeRealloc knows whether retrying the failed allocation is worth
// it.
func (c *Collector) emergencyCollect() bool {
	before := c.Mem.TrueUsage()
	c.totalStats.EmergencyRuns++
	c.log.Warn("emergency collection", "bytes_before", before)
	c.FullGC()
	freed := before - c.Mem.TrueUsage()
	c.log.Warn("emergency collection done", "bytes_freed", freed)
	return freed > 0
}
