package object

import "testing"

func TestInternReturnsSamePointerForEqualContent(t *testing.T) {
	it := NewInternTable(7)
	a := it.Intern("hello", func(int) *TString { return NewShortStringShell() })
	b := it.Intern("hello", func(int) *TString { return NewShortStringShell() })
	if a != b {
		t.Error("two interns of the same content returned different *TString pointers")
	}
	if it.Len() != 1 {
		t.Errorf("Len() = %d, want 1", it.Len())
	}
}

func TestInternDistinctContentDistinctPointers(t *testing.T) {
	it := NewInternTable(7)
	a := it.Intern("foo", func(int) *TString { return NewShortStringShell() })
	b := it.Intern("bar", func(int) *TString { return NewShortStringShell() })
	if a == b {
		t.Error("distinct content interned to the same pointer")
	}
}

func TestLookupMissesUninternedContent(t *testing.T) {
	it := NewInternTable(1)
	if _, ok := it.Lookup("never-interned"); ok {
		t.Error("Lookup found content that was never interned")
	}
}

func TestRemoveDropsEntry(t *testing.T) {
	it := NewInternTable(1)
	it.Intern("gone", func(int) *TString { return NewShortStringShell() })
	it.Remove("gone")
	if _, ok := it.Lookup("gone"); ok {
		t.Error("Lookup still found an entry after Remove")
	}
}

func TestLongStringHashIsSeedDependent(t *testing.T) {
	// Hash caches its first result per string, so each seed gets its own
	// string object.
	s1 := NewLongString("some reasonably long content for hashing")
	s2 := NewLongString("some reasonably long content for hashing")
	s3 := NewLongString("some reasonably long content for hashing")
	if s1.Hash(1) == s3.Hash(2) {
		t.Error("the same content hashed with two different seeds produced the same value")
	}
	if s1.Hash(1) != s2.Hash(1) {
		t.Error("two long strings with identical content hashed differently under the same seed")
	}
}

func TestShortStringRawEqualByContentViaGetStrContent(t *testing.T) {
	tbl := NewTable(0, 4)
	it := NewInternTable(3)
	s := it.Intern("greeting", func(int) *TString { return NewShortStringShell() })
	if err := tbl.Set(s.ToValue(), IntValue(42), it.Seed()); err != nil {
		t.Fatal(err)
	}
	if got := tbl.GetStrContent("greeting", it.Seed()); !got.RawEqual(IntValue(42)) {
		t.Errorf("GetStrContent via interned short string = %v, want 42", got)
	}
}
