package object

import (
	"errors"
	"math"
	"unsafe"
)

// ErrInvalidKey is returned by Next when the supplied key does not
// correspond to any live or dead position in the table (mirrors the
// reference implementation's "invalid key to 'next'" error).
var ErrInvalidKey = errors.New("object: invalid key to next")

// node is one slot of the hash part: open addressing with chaining via
// next, an absolute index into the owning table's node slice. A node whose key is VEmpty is unused; dead marks a node whose
// key has been deleted but whose slot must survive so that an
// in-progress traversal can still find its successor.
type node struct {
	key   Value
	value Value
	next  int32
	dead  bool
}

const noNext int32 = -1

// Table is a hybrid array+hash structure: an array part covering
// 1..len(array), plus an open-addressed hash part with chaining, a
// BITRAS-style alimit hint, and a cached "metamethod known absent"
// flags byte.
type Table struct {
	GCHeader

	array []Value

	// alimit is either the real array size, or — when bitRAS is set — a
	// hint; the real size is then the smallest power of two >= alimit.
	// Len() does not read it; it searches the array slice directly.
	alimit uint32
	bitRAS bool

	node     []node
	lastFree int // one past the last position not yet tried as an insertion target

	Metatable *Table
	flags     uint8 // bit i set => metamethod tag i is known absent
}

// NewTable allocates a table with an initial array part of narr slots
// and a hash part sized to hold at least nhash entries.
func NewTable(narr, nhash int) *Table {
	t := &Table{}
	if narr > 0 {
		t.array = make([]Value, narr)
		for i := range t.array {
			t.array[i] = Nil
		}
		t.alimit = uint32(narr)
	}
	sz := 1
	for sz < nhash {
		sz <<= 1
	}
	t.node = newNodeArray(sz)
	t.lastFree = sz
	return t
}

func newNodeArray(size int) []node {
	if size < 1 {
		size = 1
	}
	nodes := make([]node, size)
	for i := range nodes {
		nodes[i] = node{key: VEmpty, next: noNext}
	}
	return nodes
}

// ToValue boxes t as a table Value.
func (t *Table) ToValue() Value {
	return Value{tag: TagTable, bits: heapPtr(unsafe.Pointer(t))}
}

// AsTable extracts a *Table from v, or nil if v is not a table.
func AsTable(v Value) *Table {
	if v.tag != TagTable {
		return nil
	}
	return (*Table)(pointerFromBits(v.bits))
}

// realArraySize returns the true backing-array length honoring the
// alimit hint/bitRAS trick.
func (t *Table) realArraySize() int {
	if !t.bitRAS {
		return len(t.array)
	}
	n := 1
	for n < int(t.alimit) {
		n <<= 1
	}
	return n
}

func (t *Table) numHashSlots() int { return len(t.node) }

func (t *Table) mainPosition(h uint32) int {
	return int(h) & (len(t.node) - 1)
}

// ---------------------------------------------------------------------------
// Raw get
// ---------------------------------------------------------------------------

// Get performs a raw table lookup, returning Nil on a miss. Positive
// integer keys within the array range are O(1); everything else walks
// the hash chain.
func (t *Table) Get(key Value, seed uint32) Value {
	if key.IsInt() {
		i := key.Int()
		if i >= 1 && i <= int64(len(t.array)) {
			return t.array[i-1]
		}
	}
	return t.getHash(key, seed)
}

func (t *Table) getHash(key Value, seed uint32) Value {
	if len(t.node) == 0 {
		return Nil
	}
	h := hashValue(key, seed)
	idx := t.mainPosition(h)
	for {
		n := &t.node[idx]
		if !n.dead && n.key.tag != TagEmpty && n.key.RawEqual(key) {
			return n.value
		}
		if n.next == noNext {
			return Nil
		}
		idx = int(n.next)
	}
}

// GetStr is a convenience wrapper for the extremely common case of a
// short-string key, avoiding a Value allocation at call sites that
// already hold a *TString.
func (t *Table) GetStr(key *TString, seed uint32) Value {
	return t.getHash(key.ToValue(), seed)
}

// GetStrContent looks up a string key by raw content without requiring
// an interned or otherwise allocated *TString, used by the collector to
// probe a metatable for "__mode" without fabricating a TString whose
// header tag it would have to fake.
func (t *Table) GetStrContent(content string, seed uint32) Value {
	if len(t.node) == 0 {
		return Nil
	}
	h := HashContent(content, seed)
	idx := t.mainPosition(h)
	for {
		n := &t.node[idx]
		if !n.dead && n.key.tag.Base() == BaseString {
			if s := AsTString(n.key); s != nil && s.Content() == content {
				return n.value
			}
		}
		if n.next == noNext {
			return Nil
		}
		idx = int(n.next)
	}
}

// ---------------------------------------------------------------------------
// Raw set
// ---------------------------------------------------------------------------

// Set performs a raw table assignment. Setting a key to Nil logically
// removes it (the array slot is cleared; hash nodes are left as dead
// markers so in-flight Next traversals remain valid).
func (t *Table) Set(key Value, val Value, seed uint32) error {
	if key.IsNilish() {
		return errors.New("object: table index is nil")
	}
	if key.IsFloat() {
		if f := key.Float(); !math.IsNaN(f) {
			if i := int64(f); float64(i) == f {
				key = IntValue(i)
			}
		} else {
			return errors.New("object: table index is NaN")
		}
	}

	if key.IsInt() {
		i := key.Int()
		if i >= 1 && i <= int64(len(t.array)) {
			t.array[i-1] = val
			return nil
		}
		if i == int64(len(t.array))+1 && !val.IsNil() {
			t.growArray(key, val, seed)
			return nil
		}
	}

	t.setHash(key, val, seed)
	return nil
}

// growArray appends key (== len(array)+1) to the array part, migrating
// any now-contiguous integer keys out of the hash part. It does not
// rehash.
func (t *Table) growArray(key Value, val Value, seed uint32) {
	t.array = append(t.array, val)
	t.alimit = uint32(len(t.array))
	t.bitRAS = false

	// Pull any integer keys that are now array-contiguous out of the hash part.
	for {
		next := IntValue(int64(len(t.array) + 1))
		h := hashValue(next, seed)
		idx := t.mainPosition(h)
		found := -1
		for idx != -1 {
			n := &t.node[idx]
			if !n.dead && n.key.tag != TagEmpty && n.key.RawEqual(next) {
				found = idx
				break
			}
			if n.next == noNext {
				break
			}
			idx = int(n.next)
		}
		if found == -1 {
			break
		}
		v := t.node[found].value
		t.removeNodeAt(found, seed)
		t.array = append(t.array, v)
		t.alimit = uint32(len(t.array))
	}
}

func (t *Table) removeNodeAt(idx int, seed uint32) {
	t.node[idx].dead = true
	t.node[idx].value = Nil
}

func (t *Table) setHash(key Value, val Value, seed uint32) {
	if val.IsNil() {
		// Deletion: mark the node dead rather than empty so Next() can
		// still find a successor for a traversal in progress.
		if n := t.findLiveNode(key, seed); n != nil {
			n.dead = true
		}
		return
	}

	if n := t.findLiveNode(key, seed); n != nil {
		n.value = val
		return
	}
	t.newKey(key, val, seed)
}

func (t *Table) findLiveNode(key Value, seed uint32) *node {
	if len(t.node) == 0 {
		return nil
	}
	idx := t.mainPosition(hashValue(key, seed))
	for {
		n := &t.node[idx]
		if !n.dead && n.key.tag != TagEmpty && n.key.RawEqual(key) {
			return n
		}
		if n.next == noNext {
			return nil
		}
		idx = int(n.next)
	}
}

// newKey inserts key/val as a brand new entry, implementing the
// classic open-addressing-with-chaining insertion: if the key's main
// position is free, use it; if occupied by a node that is itself not
// at its own main position, evict that node to a free slot and take
// over the main position; otherwise chain off the occupant.
func (t *Table) newKey(key Value, val Value, seed uint32) {
	h := hashValue(key, seed)
	mp := t.mainPosition(h)
	occ := &t.node[mp]

	if occ.key.tag == TagEmpty {
		occ.key, occ.value, occ.next, occ.dead = key, val, noNext, false
		t.markFreeUsed(mp)
		return
	}

	free := t.getFreePos()
	if free == -1 {
		t.rehash(key, val, seed)
		return
	}

	occMain := t.mainPosition(hashValue(occ.key, seed))
	if occMain != mp {
		// occ is not at its own main position: relocate it to free,
		// relink whatever points to it, and take over mp for the new key.
		prev := occMain
		for t.node[prev].next != int32(mp) {
			prev = int(t.node[prev].next)
		}
		t.node[prev].next = int32(free)
		t.node[free] = *occ
		*occ = node{key: key, value: val, next: noNext}
		return
	}

	// occ sits at its rightful main position: chain the new key after it.
	t.node[free] = node{key: key, value: val, next: occ.next}
	occ.next = int32(free)
}

func (t *Table) markFreeUsed(idx int) {
	if idx == t.lastFree-1 {
		t.lastFree--
	}
}

// getFreePos searches backward from lastFree for an unused slot.
func (t *Table) getFreePos() int {
	for t.lastFree > 0 {
		t.lastFree--
		if t.node[t.lastFree].key.tag == TagEmpty {
			return t.lastFree
		}
	}
	return -1
}

// rehash grows the table to accommodate extraKey/extraVal plus all
// current contents, picking the array-part size as the largest power
// of two where more than half of slots 1..n hold integer keys.
func (t *Table) rehash(extraKey, extraVal Value, seed uint32) {
	type kv = struct {
		k, v Value
	}
	var pairs []kv
	for i, v := range t.array {
		if !v.IsNil() {
			pairs = append(pairs, kv{IntValue(int64(i + 1)), v})
		}
	}
	for _, n := range t.node {
		if !n.dead && n.key.tag != TagEmpty {
			pairs = append(pairs, kv{n.key, n.value})
		}
	}
	pairs = append(pairs, kv{extraKey, extraVal})

	arraySize := computeArraySize(pairs)

	var hashPairs []kv
	newArray := make([]Value, arraySize)
	for i := range newArray {
		newArray[i] = Nil
	}
	for _, p := range pairs {
		if p.k.IsInt() {
			i := p.k.Int()
			if i >= 1 && i <= int64(arraySize) {
				newArray[i-1] = p.v
				continue
			}
		}
		hashPairs = append(hashPairs, p)
	}

	hashSize := 1
	for hashSize < len(hashPairs) {
		hashSize <<= 1
	}
	if hashSize < 1 {
		hashSize = 1
	}

	t.array = newArray
	t.alimit = uint32(arraySize)
	t.bitRAS = false
	t.node = newNodeArray(hashSize)
	t.lastFree = hashSize

	for _, p := range hashPairs {
		t.newKey(p.k, p.v, seed)
	}
}

// computeArraySize implements the power-of-two density scan: for each
// candidate n = 1,2,4,8,..., count integer keys in [1,n] and keep the
// largest n where more than half the slots are occupied.
func computeArraySize(pairs []struct{ k, v Value }) int {
	const maxPow = 30
	counts := make([]int, maxPow+1)
	for _, p := range pairs {
		if !p.k.IsInt() {
			continue
		}
		i := p.k.Int()
		if i < 1 {
			continue
		}
		for b := 0; b <= maxPow; b++ {
			n := int64(1) << b
			if i <= n {
				counts[b]++
			}
		}
	}
	best, bestN := 0, 0
	for b := 0; b <= maxPow; b++ {
		n := 1 << b
		if counts[b] > n/2 && counts[b] > best {
			best = counts[b]
			bestN = n
		}
	}
	return bestN
}

// ---------------------------------------------------------------------------
// Length
// ---------------------------------------------------------------------------

// Len computes a border: an index n such that t[n] is non-nil (or n==0)
// and t[n+1] is nil, by binary search over the array part or, when the
// array part is full, over a hash-part range found by doubling.
func (t *Table) Len() int64 {
	n := len(t.array)
	if n > 0 && t.array[n-1].IsNil() {
		// Binary search for a border within the array part.
		lo, hi := 0, n
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if t.array[mid-1].IsNil() {
				hi = mid
			} else {
				lo = mid
			}
		}
		return int64(lo)
	}
	if len(t.node) == 0 {
		return int64(n)
	}
	// Array is fully populated (or empty); probe the hash part for a
	// contiguous continuation, doubling until a nil is found.
	lo, hi := int64(n), int64(n)+1
	for !t.getHash(IntValue(hi), 0).IsNil() {
		lo = hi
		if hi > (1 << 40) {
			break // pathological; bail rather than loop forever
		}
		hi *= 2
	}
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if t.getHash(IntValue(mid), 0).IsNil() {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}

// ---------------------------------------------------------------------------
// Iteration ("next")
// ---------------------------------------------------------------------------

// Next returns the key/value pair following prevKey in table-iteration
// order, scanning the array part then the hash part. Passing Nil starts
// iteration from the beginning. Must behave correctly even if prevKey
// was deleted since being returned.
func (t *Table) Next(prevKey Value, seed uint32) (Value, Value, bool, error) {
	startHash := 0
	if prevKey.IsNil() {
		if idx, ok := t.nextArrayIndex(0); ok {
			return IntValue(int64(idx+1)), t.array[idx], true, nil
		}
	} else if prevKey.IsInt() && prevKey.Int() >= 1 && prevKey.Int() <= int64(len(t.array)) {
		if idx, ok := t.nextArrayIndex(int(prevKey.Int())); ok {
			return IntValue(int64(idx+1)), t.array[idx], true, nil
		}
	} else {
		pos := t.findNodePos(prevKey, seed)
		if pos == -1 {
			return Nil, Nil, false, ErrInvalidKey
		}
		startHash = pos + 1
	}

	for i := startHash; i < len(t.node); i++ {
		n := &t.node[i]
		if !n.dead && n.key.tag != TagEmpty {
			return n.key, n.value, true, nil
		}
	}
	return Nil, Nil, false, nil
}

func (t *Table) nextArrayIndex(from int) (int, bool) {
	for i := from; i < len(t.array); i++ {
		if !t.array[i].IsNil() {
			return i, true
		}
	}
	return 0, false
}

// findNodePos locates prevKey's slot, counting dead nodes (DEADKEY) as
// valid positions so a traversal can still resume after a deletion.
func (t *Table) findNodePos(key Value, seed uint32) int {
	if len(t.node) == 0 {
		return -1
	}
	idx := t.mainPosition(hashValue(key, seed))
	for {
		n := &t.node[idx]
		if n.key.tag != TagEmpty && n.key.RawEqual(key) {
			return idx
		}
		if n.next == noNext {
			return -1
		}
		idx = int(n.next)
	}
}

// ---------------------------------------------------------------------------
// Metamethod-absence flag cache
// ---------------------------------------------------------------------------

// MetaAbsent reports whether tag bit is cached as "definitely absent".
// The cache is a subset of the true absent set: a
// false negative just costs a redundant metatable lookup, never an
// incorrect hit.
func (t *Table) MetaAbsent(tag uint) bool {
	if tag >= 8 {
		return false
	}
	return t.flags&(1<<tag) != 0
}

// SetMetaAbsent records that metamethod tag is absent from t's
// metatable. Must be invalidated (InvalidateMetaCache) on any
// metatable mutation.
func (t *Table) SetMetaAbsent(tag uint) {
	if tag < 8 {
		t.flags |= 1 << tag
	}
}

// InvalidateMetaCache clears all cached absence bits, called whenever
// the metatable itself changes.
func (t *Table) InvalidateMetaCache() { t.flags = 0 }

// ---------------------------------------------------------------------------
// Traversal for the collector
// ---------------------------------------------------------------------------

// Traverse visits every live value reachable directly from t: its
// metatable and all array/hash slots. The collector is responsible for
// treating weak array/hash parts specially (see package gc).
func (t *Table) Traverse(mark func(Value)) {
	if t.Metatable != nil {
		mark(t.Metatable.ToValue())
	}
	for _, v := range t.array {
		mark(v)
	}
	for i := range t.node {
		n := &t.node[i]
		if !n.dead && n.key.tag != TagEmpty {
			mark(n.key)
			mark(n.value)
		}
	}
}

// ---------------------------------------------------------------------------
// Weak-table support for the collector. These methods only inspect/mutate raw slots; deciding
// which half of a table is weak, and when to call them, is the
// collector's job, not the object model's.
// ---------------------------------------------------------------------------

// TraverseStrong visits only the metatable and, if the caller asks,
// invokes the given callbacks for every array/hash slot while letting
// the collector decide whether to mark the key, the value, both, or
// neither — the hook a plain Table.Traverse cannot provide since it
// always marks both halves of every entry.
func (t *Table) TraverseStrong(markMeta func(Value), visit func(key, val Value)) {
	if t.Metatable != nil {
		markMeta(t.Metatable.ToValue())
	}
	for i, v := range t.array {
		visit(IntValue(int64(i+1)), v)
	}
	for i := range t.node {
		n := &t.node[i]
		if !n.dead && n.key.tag != TagEmpty {
			visit(n.key, n.value)
		}
	}
}

// ClearDeadValues nils out every array/hash value for which isDead
// returns true (weak-value clearing). Hash nodes are marked dead rather
// than emptied so an in-progress Next traversal stays valid.
func (t *Table) ClearDeadValues(isDead func(Value) bool) {
	for i, v := range t.array {
		if !v.IsNil() && isDead(v) {
			t.array[i] = Nil
		}
	}
	for i := range t.node {
		n := &t.node[i]
		if !n.dead && n.key.tag != TagEmpty && !n.value.IsNil() && isDead(n.value) {
			n.dead = true
			n.value = Nil
		}
	}
}

// ClearDeadKeys removes every hash entry whose key is dead (weak-key
// clearing). Array-part keys are plain integers and are never
// collectable, so only the hash part is examined.
func (t *Table) ClearDeadKeys(isDead func(Value) bool) {
	for i := range t.node {
		n := &t.node[i]
		if !n.dead && n.key.tag != TagEmpty && isDead(n.key) {
			n.dead = true
			n.value = Nil
		}
	}
}

// VisitEphemeron calls f(key, value) for every live hash entry, letting
// the collector's ephemeron fixed-point pass mark a value whenever its
// key has already been marked, without exposing node internals.
func (t *Table) VisitEphemeron(f func(key, val Value)) {
	for i := range t.node {
		n := &t.node[i]
		if !n.dead && n.key.tag != TagEmpty {
			f(n.key, n.value)
		}
	}
}

// ---------------------------------------------------------------------------
// Hashing
// ---------------------------------------------------------------------------

func hashValue(v Value, seed uint32) uint32 {
	switch {
	case v.IsString():
		return AsTString(v).Hash(seed)
	case v.IsInt():
		n := uint64(v.Int())
		return uint32(n) ^ uint32(n>>32)
	case v.IsFloat():
		n := math.Float64bits(v.Float())
		return uint32(n) ^ uint32(n>>32)
	case v.IsBoolean():
		if v.Bool() {
			return 1
		}
		return 0
	default:
		n := v.bits
		return uint32(n) ^ uint32(n>>32) ^ seed
	}
}
