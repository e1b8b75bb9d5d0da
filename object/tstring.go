package object

import (
	"unsafe"

	"github.com/zeebo/xxh3"
)

// ShortStringLimit is the length threshold below which strings are
// interned: "short strings (<= a threshold, e.g. 40
// bytes) are interned".
const ShortStringLimit = 40

// HashLimit bounds how many bytes of a long string are hashed on first
// use.
// 2^5 = 32-byte stride, matching the reference implementation's default.
const HashLimit = 32

// TString is the heap object backing both short (interned) and long
// (content-hashed-on-demand) strings.
type TString struct {
	GCHeader

	data []byte

	// Extra holds the reserved word's token Kind for short strings known
	// to the lexer (0 means "not a reserved word"). Long strings do not
	// use it; hashValid records whether their hash has been computed.
	Extra int32

	hash      uint32
	hashValid bool // meaningful only for long strings; short strings always have a valid hash
}

// IsLong reports whether s is a non-interned long string.
func (s *TString) IsLong() bool { return s.Header().Tag() == TagLongStr }

// Content returns s's bytes as a string (no copy).
func (s *TString) Content() string { return string(s.data) }

// Len returns the byte length of s.
func (s *TString) Len() int { return len(s.data) }

// Hash returns s's 32-bit hash, computing and caching it on first call
// for long strings; short strings are always hashed at intern time.
func (s *TString) Hash(seed uint32) uint32 {
	if s.IsLong() {
		if !s.hashValid {
			s.hash = hashBytesSeeded(s.data, seed, true)
			s.hashValid = true
		}
		return s.hash
	}
	return s.hash
}

// hashBytesSeeded computes the runtime's string hash. Collision-attack
// resistance comes from a per-state seed; xxh3 is a much stronger,
// faster mixer than a hand-rolled FNV loop and is used directly rather
// than reimplemented.
func hashBytesSeeded(data []byte, seed uint32, limited bool) uint32 {
	if limited && len(data) > 0 {
		// Step through at most the first N*HashLimit-strided bytes, matching
		// the reference implementation's "step" sampling for long strings.
		step := 1
		if n := len(data) / HashLimit; n > step {
			step = n
		}
		if step > 1 {
			sampled := make([]byte, 0, len(data)/step+1)
			for i := 0; i < len(data); i += step {
				sampled = append(sampled, data[i])
			}
			return uint32(xxh3.HashSeed(sampled, uint64(seed)))
		}
	}
	return uint32(xxh3.HashSeed(data, uint64(seed)))
}

// HashContent computes the runtime string hash for content directly,
// without allocating a TString. Used by Table.GetStrContent to probe for
// a string key (e.g. a metatable's "__mode" field) that may not be
// interned.
func HashContent(content string, seed uint32) uint32 {
	return hashBytesSeeded([]byte(content), seed, true)
}

// ToValue boxes s according to whether it is short (interned) or long.
func (s *TString) ToValue() Value {
	tag := TagShortStr
	if s.IsLong() {
		tag = TagLongStr
	}
	return Value{tag: tag, bits: heapPtr(unsafe.Pointer(s))}
}

// AsTString extracts a *TString from v, or nil if v is not a string.
func AsTString(v Value) *TString {
	if v.tag.Base() != BaseString {
		return nil
	}
	return (*TString)(pointerFromBits(v.bits))
}

// ---------------------------------------------------------------------------
// Intern table
// ---------------------------------------------------------------------------

// InternTable is the global hash table (per runtime state) mapping short
// string content to a canonical *TString. Two short strings with equal
// content are guaranteed to be the same pointer.
//
// It is mutated only by the owning thread: no locking.
type InternTable struct {
	seed    uint32
	buckets map[string]*TString
}

// NewInternTable creates an empty intern table seeded with seed, which
// should be derived once per runtime state from time/address entropy
// to defeat hash-flooding attacks against the table.
func NewInternTable(seed uint32) *InternTable {
	return &InternTable{seed: seed, buckets: make(map[string]*TString, 256)}
}

// Seed returns the table's hash seed.
func (t *InternTable) Seed() uint32 { return t.seed }

// Len returns the number of interned strings.
func (t *InternTable) Len() int { return len(t.buckets) }

// Intern returns the canonical *TString for content, allocating and
// registering a new one (via newObj, typically the collector's object
// allocator) if content has not been seen before.
func (t *InternTable) Intern(content string, newObj func(size int) *TString) *TString {
	if s, ok := t.buckets[content]; ok {
		return s
	}
	s := newObj(len(content))
	s.data = []byte(content)
	s.hash = hashBytesSeeded(s.data, t.seed, false)
	s.hashValid = true
	t.buckets[content] = s
	return s
}

// Remove deletes content's entry, called by the collector's sweep when
// the last reference to an interned string dies.
func (t *InternTable) Remove(content string) { delete(t.buckets, content) }

// Lookup returns the interned string for content without creating one.
func (t *InternTable) Lookup(content string) (*TString, bool) {
	s, ok := t.buckets[content]
	return s, ok
}

// NewLongString wraps content as a non-interned long TString. The
// caller (collector) is responsible for Init'ing the header's color and
// linking it into allgc; the long-string tag is set here, so IsLong,
// Hash and ToValue treat the string as long even before that.
func NewLongString(content string) *TString {
	s := &TString{data: []byte(content)}
	s.tag = TagLongStr
	return s
}

// NewShortStringShell allocates a TString with no content yet set,
// for use as the newObj hook passed to InternTable.Intern. The caller
// (collector) is responsible for Init'ing the header, linking it into
// allgc, and charging its allocation before handing it to Intern.
func NewShortStringShell() *TString { return &TString{} }
