// Package gc implements the runtime's tri-color incremental/generational
// collector over the object model defined in package object: the phase
// state machine, forward/backward write barriers, gray work lists, weak
// table clearing (including ephemerons), sweep, and finalization.
package gc

import (
	"github.com/embergc/corevm/diag"
	"github.com/embergc/corevm/mem"
	"github.com/embergc/corevm/object"
)

// Mode selects which collector algorithm drives stepping.
type Mode uint8

const (
	ModeIncremental Mode = iota
	ModeGenerational
)

func (m Mode) String() string {
	if m == ModeGenerational {
		return "generational"
	}
	return "incremental"
}

// State is the collector's phase, following the state machine:
//
//	PAUSE -> PROPAGATE -> ENTERATOMIC -> ATOMIC
//	      -> SWP_ALLGC -> SWP_FINOBJ -> SWP_TOBEFNZ -> SWP_END
//	      -> CALLFIN -> PAUSE
type State uint8

const (
	StatePropagate State = iota
	StateEnterAtomic
	StateAtomic
	StateSwpAllGC
	StateSwpFinObj
	StateSwpToBeFnz
	StateSwpEnd
	StateCallFin
	StatePause
)

func (s State) String() string {
	switch s {
	case StatePropagate:
		return "propagate"
	case StateEnterAtomic:
		return "enteratomic"
	case StateAtomic:
		return "atomic"
	case StateSwpAllGC:
		return "swp_allgc"
	case StateSwpFinObj:
		return "swp_finobj"
	case StateSwpToBeFnz:
		return "swp_tobefnz"
	case StateSwpEnd:
		return "swp_end"
	case StateCallFin:
		return "callfin"
	default:
		return "pause"
	}
}

// isSweepPhase reports whether s lies within the sweep phases, during
// which the black<-white invariant is suspended.
func (s State) isSweepPhase() bool { return s >= StateSwpAllGC && s <= StateSwpEnd }

// keepsInvariant reports whether the main tri-color invariant (no black
// object may reference a white one) must currently hold.
func (s State) keepsInvariant() bool { return s <= StateAtomic }

// Default tuning parameters. These are
// starting points the embedder is expected to tune, not load-bearing
// constants.
const (
	DefaultPause          = 200 // % heap growth before a new cycle starts
	DefaultStepMul        = 100 // % work per byte allocated
	DefaultStepSizeLog2   = 13  // log2(bytes) of minimum work per step
	DefaultMinorMultiplier = 20
	DefaultMajorMultiplier = 100
)

// Collector owns the entire GC state machine for one runtime instance.
// There is no process-global mutable state: every runtime.State
// constructs its own Collector.
type Collector struct {
	Mem *mem.State
	log *diag.Logger

	Mode  Mode
	state State

	currentWhite uint8 // which of the two white bits is "current"

	allgc   object.GCObject
	finobj  object.GCObject
	tobefnz object.GCObject

	// sweepPrev/sweepCur track where an incremental SWP_ALLGC pass left
	// off, so sweepAllGCStep can resume across multiple calls instead of
	// re-walking from the head every time.
	sweepPrev object.GCObject
	sweepCur  object.GCObject

	gray      []object.GCObject
	grayAgain []object.GCObject
	weak      []*object.Table
	ephemeron []*object.Table
	allWeak   []*object.Table

	Pause           int
	StepMul         int
	StepSizeLog2    int
	MinorMultiplier int
	MajorMultiplier int

	// lastAtomic is non-zero when a generational cycle fell back to a
	// full incremental/atomic pass.
	lastAtomic bool

	// bytesAtCycleStart baselines the minor-cycle heap-growth check used
	// by the generational-mode fallback.
	bytesAtCycleStart int64

	// Roots marks everything reachable from outside the heap (globals,
	// registry, live threads). Set once by the owning runtime.State;
	// every cycle remarks through it at PROPAGATE's start and again at
	// ENTERATOMIC.
	Roots RootMarker

	// Strings is the owning runtime's short-string intern table. Set
	// once by runtime.State, analogous to Roots: when sweep frees a
	// short string, it must evict that string's entry here too, or the
	// table keeps handing out a pointer the collector has already
	// unlinked and debited.
	Strings *object.InternTable

	// CallFinalizer invokes an object's __gc-equivalent metamethod. The
	// collector has no notion of method dispatch itself; the owning
	// runtime.State wires this in. A nil CallFinalizer makes
	// finalization a no-op sweep-through.
	CallFinalizer func(o object.GCObject) error

	// OnFinalizerError receives any error CallFinalizer returns; these
	// are downgraded to warnings and never propagate.
	OnFinalizerError func(o object.GCObject, err error)

	finalizersThisStep int
	stats              CycleStats
	totalStats         CycleStats
	seed               uint32
}

// New creates a Collector in incremental mode with default parameters.
// seed should be a per-runtime-instance string-hash seed;
// it is surfaced via Seed for the object package's table/string hashing.
func New(m *mem.State, log *diag.Logger, seed uint32) *Collector {
	if log == nil {
		log = diag.Discard()
	}
	c := &Collector{
		Mem:             m,
		log:             log,
		Mode:            ModeIncremental,
		state:           StatePause,
		currentWhite:    1, // bit 0 of whiteBits
		Pause:           DefaultPause,
		StepMul:         DefaultStepMul,
		StepSizeLog2:    DefaultStepSizeLog2,
		MinorMultiplier: DefaultMinorMultiplier,
		MajorMultiplier: DefaultMajorMultiplier,
		seed:            seed,
	}
	m.EmergencyCollect = c.emergencyCollect
	return c
}

// Seed returns the per-instance string-hash seed.
func (c *Collector) Seed() uint32 { return c.seed }

// State returns the collector's current phase.
func (c *Collector) State() State { return c.state }

// CurrentWhite returns which white bit newly allocated objects are born with.
func (c *Collector) CurrentWhite() uint8 { return c.currentWhite }

// ChangeMode switches between incremental and generational collection.
// Takes effect at the next pause.
func (c *Collector) ChangeMode(m Mode) {
	if c.Mode == m {
		return
	}
	c.Mode = m
	if m == ModeIncremental {
		c.lastAtomic = false
	}
}

// SetParams overrides the pause/step-mul/step-size tuning triple.
func (c *Collector) SetParams(pause, stepMul, stepSizeLog2 int) {
	c.Pause, c.StepMul, c.StepSizeLog2 = pause, stepMul, stepSizeLog2
}
