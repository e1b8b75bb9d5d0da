package object

import (
	"testing"
	"unsafe"
)

func TestIntValueRoundTrip(t *testing.T) {
	v := IntValue(-42)
	if !v.IsInt() || v.Int() != -42 {
		t.Fatalf("IntValue(-42) round-tripped to %v", v)
	}
}

func TestFloatValueRoundTrip(t *testing.T) {
	v := FloatValue(3.5)
	if !v.IsFloat() || v.Float() != 3.5 {
		t.Fatalf("FloatValue(3.5) round-tripped to %v", v)
	}
}

func TestNilVariantsAreDistinctButAllNilish(t *testing.T) {
	for _, v := range []Value{Nil, VEmpty, VAbsKey} {
		if !v.IsNilish() {
			t.Errorf("%v should be nilish", v)
		}
	}
	if Nil.IsNil() != true || VEmpty.IsNil() || VAbsKey.IsNil() {
		t.Error("only the standard Nil variant should satisfy IsNil")
	}
}

func TestRawEqualMixedIntFloat(t *testing.T) {
	if !IntValue(3).RawEqual(FloatValue(3.0)) {
		t.Error("3 (int) should raw-equal 3.0 (float)")
	}
	if IntValue(3).RawEqual(FloatValue(3.5)) {
		t.Error("3 (int) should not raw-equal 3.5 (float)")
	}
}

func TestRawEqualBooleans(t *testing.T) {
	if !True.RawEqual(True) || True.RawEqual(False) {
		t.Error("boolean RawEqual mismatch")
	}
}

func TestLightUserdataRoundTrip(t *testing.T) {
	x := 42
	v := LightUserdataValue(unsafe.Pointer(&x))
	if !v.IsLightUserdata() {
		t.Fatal("expected a light userdata value")
	}
	got := (*int)(v.LightUserdataPtr())
	if got != &x {
		t.Errorf("LightUserdataPtr round-trip mismatch")
	}
}
