// Package runtime ties the memory manager, object model, collector and
// lexer together into one runnable instance: it owns construction
// order, the globals table and thread registry the collector marks as
// roots, and the per-instance string-hash seed.
package runtime

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/embergc/corevm/config"
	"github.com/embergc/corevm/diag"
	"github.com/embergc/corevm/gc"
	"github.com/embergc/corevm/lexer"
	"github.com/embergc/corevm/mem"
	"github.com/embergc/corevm/object"
)

// State is one embeddable runtime instance. Nothing outside a State is
// shared with any other State in the same process.
type State struct {
	Config *config.Config
	Log    *diag.Logger

	Mem       *mem.State
	GC        *gc.Collector
	Strings   *object.InternTable
	Globals   *object.Table
	Registry  *object.Table

	mainThread *object.Thread
	threads    []*object.Thread
}

// New constructs a fully wired runtime instance from cfg. A nil cfg
// uses config.Default(). The construction order follows the module
// dependency chain: mem -> gc -> object's InternTable -> lexer's
// reserved-word table, with the collector's Roots wired to the
// globals table, the registry, and the live thread list only once
// every piece exists.
func New(cfg *config.Config, log *diag.Logger) *State {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	if log == nil {
		log = diag.Discard()
	}

	m := mem.New(nil, nil, log.WithComponent("mem"))
	m.MaxBytes = cfg.Memory.MaxBytes

	seed := newSeed()
	c := gc.New(m, log.WithComponent("gc"), seed)
	applyGCConfig(c, cfg.GC)

	strings := object.NewInternTable(seed)
	lexer.InitReservedWords(c, strings)

	s := &State{
		Config:   cfg,
		Log:      log,
		Mem:      m,
		GC:       c,
		Strings:  strings,
		Globals:  c.NewTable(0, 64),
		Registry: c.NewTable(0, 8),
	}

	c.Roots = s.markRoots
	c.Strings = strings
	s.mainThread = s.NewThread(256)
	return s
}

// newSeed derives the per-instance string-hash seed from wall-clock
// time, the process ID, a stack variable's address, and a well-known
// function's address.
func newSeed() uint32 {
	var probe int
	addr := addressOf(&probe)
	fnAddr := addressOf(newSeed)
	t := uint64(time.Now().UnixNano())
	h := t ^ addr<<1 ^ fnAddr>>1 ^ uint64(os.Getpid())
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return uint32(h)
}

// addressOf folds an arbitrary value's pointer into a uint64 via its
// %p representation, avoiding an explicit unsafe.Pointer conversion at
// every call site.
func addressOf(p any) uint64 {
	s := strings.TrimPrefix(fmt.Sprintf("%p", p), "0x")
	v, _ := strconv.ParseUint(s, 16, 64)
	return v
}

func applyGCConfig(c *gc.Collector, g config.GCConfig) {
	if g.Mode == "generational" {
		c.ChangeMode(gc.ModeGenerational)
	}
	c.SetParams(g.Pause, g.StepMul, g.StepSizeLog2)
	c.MinorMultiplier = g.MinorMul
	c.MajorMultiplier = g.MajorMul
}

// markRoots is the collector's RootMarker: the
// globals table, the registry, and every live thread's reachable stack
// and call-frame values are handed to the collector's own traversal,
// not walked by hand here.
func (s *State) markRoots(mark func(object.Value)) {
	mark(s.Globals.ToValue())
	mark(s.Registry.ToValue())
	for _, th := range s.threads {
		mark(th.ToValue())
	}
}

// NewThread allocates and registers a coroutine, adding it to the set
// of roots the collector marks every cycle.
func (s *State) NewThread(stackSize int) *object.Thread {
	th := s.GC.NewThread(stackSize)
	th.GlobalState = s
	s.threads = append(s.threads, th)
	return th
}

// MainThread returns the thread created alongside this State.
func (s *State) MainThread() *object.Thread { return s.mainThread }

// NewLexer builds a lexer reading src under chunk name source, wired
// to this State's collector, intern table and configured \u{...}
// ceiling (config.LexerConfig.MaxCodepoint).
func (s *State) NewLexer(source, src string) *lexer.Lexer {
	return lexer.NewFromString(s.GC, s.Strings, s.Log.WithComponent("lexer"), source, src, s.Config.Lexer.MaxCodepoint)
}

// Step advances the collector by one incremental unit, the same call
// an embedder's bytecode dispatch loop would make between
// instructions. Exposed at the State level since no bytecode executor
// exists in this module to make the call itself.
func (s *State) Step() { s.GC.Step() }

// FullGC runs one complete, non-incremental collection.
func (s *State) FullGC() { s.GC.FullGC() }
