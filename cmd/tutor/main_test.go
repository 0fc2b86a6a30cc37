package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/jajabor-ai/tutor/pkg/playback"
)

func TestTerminalSinkPrintsGrowth(t *testing.T) {
	var buf bytes.Buffer
	s := &terminalSink{w: &buf}

	s.Frame(playback.Frame{Text: "ক"})
	s.Frame(playback.Frame{Text: "কখ"})
	s.Frame(playback.Frame{Text: "কখগ"})
	if buf.String() != "কখগ" {
		t.Errorf("expected suffixes only, got %q", buf.String())
	}

	s.Frame(playback.Frame{Text: "stopped"})
	if buf.String() != "কখগ\nstopped" {
		t.Errorf("expected replacement on a new line, got %q", buf.String())
	}
	if s.text() != "stopped" {
		t.Errorf("expected last frame text, got %q", s.text())
	}
}

func TestTerminalSinkQuiet(t *testing.T) {
	var buf bytes.Buffer
	s := &terminalSink{w: &buf, quiet: true}
	s.Frame(playback.Frame{Text: "answer"})
	if buf.Len() != 0 {
		t.Errorf("quiet sink should not print, got %q", buf.String())
	}
	if s.text() != "answer" {
		t.Errorf("expected answer, got %q", s.text())
	}
}

func TestLoadConfigDefaultMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutor.yaml")

	cfg, err := loadConfig(path, false)
	if err != nil {
		t.Fatalf("missing default config should fall back: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen, got %s", cfg.Listen)
	}

	if _, err := loadConfig(path, true); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutor.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  backend: memcached\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path, false); err == nil {
		t.Error("invalid config must not fall back to defaults")
	}
}

func TestFormatTranscripts(t *testing.T) {
	if got := formatTranscripts(nil); got != "No transcript entries found.\n" {
		t.Errorf("unexpected empty output %q", got)
	}

	out := formatTranscripts([]models.TranscriptEntry{{
		SessionID:  "sess-1",
		UserPrefix: "ab12cd34",
		SubjectID:  "math",
		Source:     "cache",
		Outcome:    "completed",
		LatencyMs:  42,
		CreatedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}})
	for _, want := range []string{"sess-1", "ab12cd34", "math", "42ms", "2026-03-01 10:00:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTranscriptStats(t *testing.T) {
	out := formatTranscriptStats([]models.TranscriptStat{{SubjectID: "science", Day: "2026-03-01", Count: 7}})
	if !strings.Contains(out, "science") || !strings.Contains(out, "7") {
		t.Errorf("unexpected stats output:\n%s", out)
	}
}
