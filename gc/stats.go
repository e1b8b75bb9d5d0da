package gc

// CycleStats accumulates counters for one collection cycle (reset at
// each PAUSE->PROPAGATE transition) plus the running lifetime totals
// surfaced through Stats. Callers read them through Stats (cmd/corevm
// prints them); the collector itself never formats or logs them.
type CycleStats struct {
	BytesAllocated   int64
	ObjectsMarked    int64
	ObjectsSwept     int64
	ObjectsFinalized int64
	EphemeronPasses  int64
	MinorCollections int64
	MajorCollections int64
	EmergencyRuns    int64
}

func (s *CycleStats) add(o CycleStats) {
	s.BytesAllocated += o.BytesAllocated
	s.ObjectsMarked += o.ObjectsMarked
	s.ObjectsSwept += o.ObjectsSwept
	s.ObjectsFinalized += o.ObjectsFinalized
	s.EphemeronPasses += o.EphemeronPasses
	s.MinorCollections += o.MinorCollections
	s.MajorCollections += o.MajorCollections
	s.EmergencyRuns += o.EmergencyRuns
}

// Stats returns a snapshot of lifetime collector counters.
func (c *Collector) Stats() CycleStats { return c.totalStats }
