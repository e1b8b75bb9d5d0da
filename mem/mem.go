// Package mem implements the runtime's memory manager: a single
// realloc-shaped allocator entry point plus the byte/debt accounting that
// drives garbage collector scheduling.
package mem

import (
	"errors"

	"github.com/embergc/corevm/diag"
)

// ErrMem is returned (and ultimately raised through the owning thread's
// protected-call boundary) when the embedder's allocator reports failure.
var ErrMem = errors.New("corevm: out of memory")

// Allocator is the single reallocator function supplied by the embedder.
// It must behave like C's realloc: ptr == nil allocates, newSize == 0
// frees and returns nil, otherwise it grows/shrinks/moves the block.
// A nil return with newSize > 0 signals allocation failure.
type Allocator func(userdata any, ptr []byte, oldSize, newSize int) []byte

// DefaultAllocator is a Go-native stand-in for the embedder's allocator:
// it never fails short of the Go runtime itself failing, and is the
// allocator State uses unless the embedder supplies its own.
func DefaultAllocator(_ any, ptr []byte, oldSize, newSize int) []byte {
	if newSize == 0 {
		return nil
	}
	out := make([]byte, newSize)
	copy(out, ptr[:min(oldSize, newSize)])
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// State tracks the two counters that drive GC scheduling.
//
// Invariant: TotalBytes()+GCDebt() equals the true current byte usage at
// every GC-observable checkpoint.
type State struct {
	allocator Allocator
	userdata  any
	log       *diag.Logger

	totalBytes int64 // bytes allocated minus GCDebt
	gcDebt     int64 // bytes allocated since the last scheduling point; may be negative

	// MaxBytes caps TrueUsage before every growing allocation fails
	// outright (config.MemoryConfig.MaxBytes). Zero means unlimited.
	MaxBytes int64

	// EmergencyCollect is invoked by SafeRealloc when a normal allocation
	// fails; it must run a full collection and return true if it freed
	// anything (worth retrying). Wired up by gc.New so mem has no
	// import-time dependency on the collector.
	EmergencyCollect func() bool
}

// New creates a memory manager state. A nil allocator defaults to
// DefaultAllocator; a nil logger discards all log output.
func New(allocator Allocator, userdata any, log *diag.Logger) *State {
	if allocator == nil {
		allocator = DefaultAllocator
	}
	if log == nil {
		log = diag.Discard()
	}
	return &State{allocator: allocator, userdata: userdata, log: log}
}

// TotalBytes returns the tracked byte count, excluding outstanding debt.
func (s *State) TotalBytes() int64 { return s.totalBytes }

// GCDebt returns the signed debt counter.
func (s *State) GCDebt() int64 { return s.gcDebt }

// TrueUsage returns TotalBytes()+GCDebt(), the actual live byte count.
func (s *State) TrueUsage() int64 { return s.totalBytes + s.gcDebt }

// AddDebt adjusts the debt counter by delta bytes. A caller that observes
// the debt crossing zero should schedule one GC step; State itself never
// triggers a step since it has no knowledge of the collector.
func (s *State) AddDebt(delta int64) {
	s.gcDebt += delta
}

// SetDebt pins the debt counter, used by the collector when entering a
// new cycle to re-baseline scheduling.
func (s *State) SetDebt(debt int64) {
	diff := debt - s.gcDebt
	s.totalBytes -= diff
	s.gcDebt = debt
}

// Realloc performs ptr (old size oldSize) -> newSize, updating accounting.
// Returns ErrMem if the allocator fails. Frees (newSize == 0) never fail.
func (s *State) Realloc(ptr []byte, oldSize, newSize int) ([]byte, error) {
	if s.MaxBytes > 0 && newSize > oldSize && s.TrueUsage()+int64(newSize-oldSize) > s.MaxBytes {
		s.log.Warn("allocation would exceed configured memory limit", "max_bytes", s.MaxBytes, "requested", newSize-oldSize)
		return nil, ErrMem
	}
	out := s.allocator(s.userdata, ptr, oldSize, newSize)
	if newSize > 0 && out == nil {
		s.log.Warn("allocation failed", "old_size", oldSize, "new_size", newSize)
		return nil, ErrMem
	}
	delta := int64(newSize - oldSize)
	s.gcDebt += delta
	return out, nil
}

// SafeRealloc behaves like Realloc but, on failure, asks the collector
// (via EmergencyCollect) to run an emergency full collection and retries
// exactly once before giving up.
func (s *State) SafeRealloc(ptr []byte, oldSize, newSize int) ([]byte, error) {
	out, err := s.Realloc(ptr, oldSize, newSize)
	if err == nil {
		return out, nil
	}
	if s.EmergencyCollect == nil || !s.EmergencyCollect() {
		return nil, err
	}
	s.log.Info("emergency collection freed memory, retrying allocation")
	return s.Realloc(ptr, oldSize, newSize)
}

// Alloc is shorthand for Realloc(nil, 0, size).
func (s *State) Alloc(size int) ([]byte, error) {
	return s.Realloc(nil, 0, size)
}

// Free is shorthand for Realloc(ptr, oldSize, 0). It never fails.
func (s *State) Free(ptr []byte, oldSize int) {
	_, _ = s.Realloc(ptr, oldSize, 0)
}
