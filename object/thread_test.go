package object

import "testing"

func TestThreadPushPopGrowsStack(t *testing.T) {
	th := NewThread(2)
	th.Push(IntValue(1))
	th.Push(IntValue(2))
	th.Push(IntValue(3)) // forces grow() past the initial size of 2

	if got := th.Pop(); !got.RawEqual(IntValue(3)) {
		t.Errorf("Pop() = %v, want 3", got)
	}
	if got := th.Pop(); !got.RawEqual(IntValue(2)) {
		t.Errorf("Pop() = %v, want 2", got)
	}
	if th.Top() != 1 {
		t.Errorf("Top() = %d, want 1", th.Top())
	}
}

func TestThreadGetSet(t *testing.T) {
	th := NewThread(4)
	th.Set(0, IntValue(42))
	if got := th.Get(0); !got.RawEqual(IntValue(42)) {
		t.Errorf("Get(0) = %v, want 42", got)
	}
}

func TestFindOrCreateUpValReturnsSameUpValForSameSlot(t *testing.T) {
	th := NewThread(4)
	a := th.FindOrCreateUpVal(1)
	b := th.FindOrCreateUpVal(1)
	if a != b {
		t.Error("FindOrCreateUpVal returned two distinct upvalues for the same stack slot")
	}
}

func TestFindOrCreateUpValKeepsSortedOrder(t *testing.T) {
	th := NewThread(4)
	th.FindOrCreateUpVal(3)
	th.FindOrCreateUpVal(1)
	th.FindOrCreateUpVal(2)

	var order []int
	for uv := th.openUpvals; uv != nil; uv = uv.openNext {
		order = append(order, uv.stackIdx)
	}
	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("open upvalue list = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("open upvalue list = %v, want %v", order, want)
			break
		}
	}
}

func TestCloseUpvalsFromClosesAndDetaches(t *testing.T) {
	th := NewThread(4)
	th.Set(0, IntValue(10))
	th.Set(1, IntValue(20))
	uv0 := th.FindOrCreateUpVal(0)
	uv1 := th.FindOrCreateUpVal(1)

	th.CloseUpvalsFrom(1)

	if uv1.IsOpen() {
		t.Error("upvalue at slot 1 still open after CloseUpvalsFrom(1)")
	}
	if !uv0.IsOpen() {
		t.Error("upvalue at slot 0 was closed despite being below the cutoff")
	}
	if got := uv1.Get(); !got.RawEqual(IntValue(20)) {
		t.Errorf("closed upvalue value = %v, want 20", got)
	}
	if th.openUpvals != uv0 {
		t.Error("closed upvalue was not unlinked from the thread's open list")
	}
}

func TestPopCallInfoClosesUpvalsAtOrAboveBase(t *testing.T) {
	th := NewThread(4)
	th.Set(0, IntValue(1))
	th.PushCallInfo(Nil, 0)
	uv := th.FindOrCreateUpVal(0)

	th.PopCallInfo()

	if uv.IsOpen() {
		t.Error("upvalue referencing the popped frame's base slot should be closed")
	}
}

func TestThreadTraverseVisitsStackCallInfoAndUpvals(t *testing.T) {
	th := NewThread(4)
	th.Push(IntValue(7))
	closureVal := NewLClosure(NewProto(NewLongString("c"))).ToValue()
	th.PushCallInfo(closureVal, 0)
	th.FindOrCreateUpVal(0)

	var seen []Value
	th.Traverse(func(v Value) { seen = append(seen, v) })

	foundStack, foundClosure := false, false
	for _, v := range seen {
		if v.RawEqual(IntValue(7)) {
			foundStack = true
		}
		if v.RawEqual(closureVal) {
			foundClosure = true
		}
	}
	if !foundStack {
		t.Error("Traverse did not visit the live stack slot")
	}
	if !foundClosure {
		t.Error("Traverse did not visit the call frame's closure")
	}
}
