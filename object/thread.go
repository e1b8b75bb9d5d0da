package object

import "unsafe"

// Status is a thread's run status (coroutine state).
type Status uint8

const (
	StatusOK Status = iota
	StatusYield
	StatusRunning
	StatusNormal // resumed another coroutine, itself suspended
	StatusDead
)

// CallInfo is one activation record, doubly linked into the owning
// thread's call stack.
type CallInfo struct {
	Prev, Next *CallInfo

	Closure  Value // VLCL/VLCF/VCCL
	Base     int   // stack index of this call's first local
	Top      int   // stack index one past this call's last used slot
	SavedPC  int   // saved bytecode instruction pointer (script calls only)
	NumResultsWanted int
}

// Thread is a coroutine: its own value stack, call-frame list, open
// upvalues, and status, sharing the heap and collector state with every
// other thread in the same runtime instance.
type Thread struct {
	GCHeader

	stack    []Value
	top      int // index of the first free stack slot
	ci       *CallInfo
	baseCI   CallInfo

	openUpvals *UpVal // head of the list, sorted by ascending stackIdx

	Status       Status
	ErrorHandler int

	// HookMask/HookCount carry embedder-installed instruction-count/line-change
	// hook state; the hook
	// callback itself lives at the runtime layer to avoid this package
	// depending on it.
	HookMask  uint8
	HookCount int

	// GlobalState is an opaque back-pointer to the owning runtime.State,
	// typed as any to avoid object importing runtime (which imports
	// object). Threads never dereference it themselves; it exists so
	// native functions reached via th can recover the shared state.
	GlobalState any
}

// NewThread allocates a thread with an initial stack of the given size.
func NewThread(stackSize int) *Thread {
	th := &Thread{stack: make([]Value, stackSize)}
	for i := range th.stack {
		th.stack[i] = Nil
	}
	th.ci = &th.baseCI
	th.baseCI.Top = 0
	return th
}

// ToValue boxes th as a thread Value.
func (th *Thread) ToValue() Value {
	return Value{tag: TagThread, bits: heapPtr(unsafe.Pointer(th))}
}

// AsThread extracts a *Thread from v, or nil.
func AsThread(v Value) *Thread {
	if v.tag != TagThread {
		return nil
	}
	return (*Thread)(pointerFromBits(v.bits))
}

// Top returns the index of the first free stack slot.
func (th *Thread) Top() int { return th.top }

// Get returns the value at stack slot idx.
func (th *Thread) Get(idx int) Value { return th.stack[idx] }

// Set stores v at stack slot idx.
func (th *Thread) Set(idx int, v Value) { th.stack[idx] = v }

// Push appends v at the top of the stack, growing the backing array if
// needed.
func (th *Thread) Push(v Value) {
	if th.top >= len(th.stack) {
		th.grow()
	}
	th.stack[th.top] = v
	th.top++
}

func (th *Thread) grow() {
	newStack := make([]Value, len(th.stack)*2+8)
	copy(newStack, th.stack)
	for i := len(th.stack); i < len(newStack); i++ {
		newStack[i] = Nil
	}
	th.stack = newStack
	// Open upvalues hold stack indices, not pointers, so growth needs no
	// fixup beyond the copy above (design notes, "open upvalues sharing
	// stack memory").
}

// Pop removes and returns the top stack value.
func (th *Thread) Pop() Value {
	th.top--
	v := th.stack[th.top]
	th.stack[th.top] = Nil
	return v
}

// CurrentCallInfo returns the active call frame.
func (th *Thread) CurrentCallInfo() *CallInfo { return th.ci }

// PushCallInfo pushes a new call frame for closure and returns it.
func (th *Thread) PushCallInfo(closure Value, base int) *CallInfo {
	ci := &CallInfo{Prev: th.ci, Base: base, Top: base}
	th.ci.Next = ci
	ci.Closure = closure
	th.ci = ci
	return ci
}

// PopCallInfo pops the active call frame, closing any upvalues that
// referenced slots at or above its base.
func (th *Thread) PopCallInfo() {
	th.CloseUpvalsFrom(th.ci.Base)
	th.ci = th.ci.Prev
	if th.ci != nil {
		th.ci.Next = nil
	}
}

// ---------------------------------------------------------------------------
// Open upvalues
// ---------------------------------------------------------------------------

// FindOrCreateUpVal returns the open upvalue for stack slot idx,
// creating and inserting one in sorted order if none exists yet.
func (th *Thread) FindOrCreateUpVal(idx int) *UpVal {
	var prev *UpVal
	cur := th.openUpvals
	for cur != nil && cur.stackIdx < idx {
		prev = cur
		cur = cur.openNext
	}
	if cur != nil && cur.stackIdx == idx {
		return cur
	}
	uv := NewOpenUpVal(th, idx)
	uv.openPrev = prev
	uv.openNext = cur
	if prev != nil {
		prev.openNext = uv
	} else {
		th.openUpvals = uv
	}
	if cur != nil {
		cur.openPrev = uv
	}
	return uv
}

func (th *Thread) unlinkOpenUpVal(uv *UpVal) {
	if uv.openPrev != nil {
		uv.openPrev.openNext = uv.openNext
	} else if th.openUpvals == uv {
		th.openUpvals = uv.openNext
	}
	if uv.openNext != nil {
		uv.openNext.openPrev = uv.openPrev
	}
	uv.openNext, uv.openPrev = nil, nil
}

// CloseUpvalsFrom closes every open upvalue referencing a stack slot at
// or above idx, called when a frame exits.
func (th *Thread) CloseUpvalsFrom(idx int) {
	// The list is sorted ascending, so skip the slots below idx first.
	uv := th.openUpvals
	for uv != nil && uv.stackIdx < idx {
		uv = uv.openNext
	}
	for uv != nil {
		next := uv.openNext
		uv.Close()
		uv = next
	}
}

// Traverse visits every live stack slot, every call frame's closure,
// and every open upvalue.
func (th *Thread) Traverse(mark func(Value)) {
	for i := 0; i < th.top; i++ {
		mark(th.stack[i])
	}
	for ci := th.ci; ci != nil; ci = ci.Prev {
		mark(ci.Closure)
	}
	for uv := th.openUpvals; uv != nil; uv = uv.openNext {
		uv.Traverse(mark)
	}
}
