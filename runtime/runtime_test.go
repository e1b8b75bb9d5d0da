package runtime

import (
	"testing"

	"github.com/embergc/corevm/config"
	"github.com/embergc/corevm/lexer"
	"github.com/embergc/corevm/object"
)

func TestNewWiresCollectorRoots(t *testing.T) {
	s := New(nil, nil)
	if s.GC.State().String() != "pause" {
		t.Fatalf("fresh collector should start paused, got %v", s.GC.State())
	}
	// A globals write followed by a full GC must not collect the
	// globals table or anything it references.
	foo := s.GC.InternString(s.Strings, "foo")
	nested := s.GC.NewTable(0, 0)
	if err := s.Globals.Set(foo.ToValue(), nested.ToValue(), s.GC.Seed()); err != nil {
		t.Fatalf("globals set: %v", err)
	}
	s.FullGC()
	got := s.Globals.GetStrContent("foo", s.GC.Seed())
	if object.FromValue(got) != object.GCObject(nested) {
		t.Error("globals-reachable table was collected despite being rooted")
	}
}

func TestNewThreadRegistersAsRoot(t *testing.T) {
	s := New(nil, nil)
	if s.MainThread() == nil {
		t.Fatal("expected a main thread")
	}
	th := s.NewThread(64)
	if th.GlobalState != s {
		t.Error("thread's GlobalState should point back at the owning runtime.State")
	}
	if len(s.threads) != 2 {
		t.Fatalf("got %d registered threads, want 2", len(s.threads))
	}
}

func TestSeedsDifferAcrossInstances(t *testing.T) {
	a := New(nil, nil)
	b := New(nil, nil)
	if a.GC.Seed() == b.GC.Seed() {
		t.Error("two runtime.States should not share a hash seed")
	}
}

func TestMemoryConfigAppliesMaxBytes(t *testing.T) {
	cfg := config.Default()
	cfg.Memory.MaxBytes = 1
	s := New(&cfg, nil)
	if s.Mem.MaxBytes != 1 {
		t.Errorf("MaxBytes = %d, want 1", s.Mem.MaxBytes)
	}
	if _, err := s.Mem.Alloc(1 << 20); err == nil {
		t.Error("expected allocation over MaxBytes to fail")
	}
}

func TestGenerationalModeFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.GC.Mode = "generational"
	s := New(&cfg, nil)
	if s.GC.Mode.String() != "generational" {
		t.Errorf("mode = %v, want generational", s.GC.Mode)
	}
}

func TestNewLexerTokenizesAgainstSharedState(t *testing.T) {
	s := New(nil, nil)
	l := s.NewLexer("chunk", "local x = 1")
	tok, err := l.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Kind != lexer.KindLocal {
		t.Fatalf("got %v, want 'local'", tok)
	}
}
