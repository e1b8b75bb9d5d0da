package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWritesLevelFilteredText(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo)

	log.Debug("should not appear", "x", 1)
	log.Info("should appear", "x", 2)

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("debug record leaked through an Info-level logger: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("expected the info record in output, got %q", out)
	}
}

func TestNewNilWriterDiscards(t *testing.T) {
	log := New(nil, slog.LevelDebug)
	// Must not panic and must produce no observable output; there's
	// nothing to assert against a discard handler beyond that.
	log.Info("dropped")
}

func TestDiscardDropsEverything(t *testing.T) {
	log := Discard()
	log.Error("dropped", "err", "boom")
}

func TestWithComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo)
	sub := log.WithComponent("gc")

	sub.Info("cycle started")

	out := buf.String()
	if !strings.Contains(out, "component=gc") {
		t.Errorf("expected component=gc in output, got %q", out)
	}
}
