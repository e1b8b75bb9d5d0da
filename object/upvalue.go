package object

// UpVal is a captured local variable. While open it
// points at a live slot on its owning thread's stack (stored as an
// index, since the stack is a growable slice whose backing array can
// move — see design notes on "open upvalues sharing stack memory").
// Once closed it owns its value inline. Open -> closed is one-way.
type UpVal struct {
	GCHeader

	owner    *Thread
	stackIdx int // valid only while open
	closedV  Value

	open bool

	// openNext/openPrev thread this upvalue into its owning thread's
	// open-upvalue list, kept sorted by stackIdx.
	openNext *UpVal
	openPrev *UpVal
}

// NewOpenUpVal creates an upvalue referencing stack slot idx on th.
func NewOpenUpVal(th *Thread, idx int) *UpVal {
	return &UpVal{owner: th, stackIdx: idx, open: true}
}

// NewClosedUpVal creates an already-closed upvalue owning v directly,
// used for upvalues captured by native closures with no live thread.
func NewClosedUpVal(v Value) *UpVal {
	return &UpVal{closedV: v}
}

// IsOpen reports whether the upvalue still references a live stack slot.
func (uv *UpVal) IsOpen() bool { return uv.open }

// Get returns the upvalue's current value, reading through to the
// owning thread's stack while open.
func (uv *UpVal) Get() Value {
	if uv.open {
		return uv.owner.stack[uv.stackIdx]
	}
	return uv.closedV
}

// Set stores v into the upvalue, writing through to the stack while open.
func (uv *UpVal) Set(v Value) {
	if uv.open {
		uv.owner.stack[uv.stackIdx] = v
		return
	}
	uv.closedV = v
}

// StackIndex returns the stack slot an open upvalue references. Panics
// if the upvalue is closed.
func (uv *UpVal) StackIndex() int {
	if !uv.open {
		panic("object: UpVal.StackIndex on closed upvalue")
	}
	return uv.stackIdx
}

// Close copies the current stack value into the upvalue and detaches it
// from its owning thread's open list; idempotent.
func (uv *UpVal) Close() {
	if !uv.open {
		return
	}
	uv.closedV = uv.owner.stack[uv.stackIdx]
	uv.open = false
	uv.owner.unlinkOpenUpVal(uv)
	uv.owner = nil
}

// UpVals are not one of the nine tagged base types exposed to script
// code; they are only reachable indirectly through a closure's upvalue
// array, so there is no ToValue/AsUpVal pair. The collector does not
// link them into its object lists either: the closure or thread holding
// one calls its Traverse directly while being traversed itself.

// Traverse visits the upvalue's current value.
func (uv *UpVal) Traverse(mark func(Value)) {
	mark(uv.Get())
}
