package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jajabor-ai/tutor/pkg/config"
	"github.com/jajabor-ai/tutor/pkg/models"
)

func tempCfg(t *testing.T) config.AuditConfig {
	t.Helper()
	return config.AuditConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays: 90,
		MaxChars:      1024,
		Include:       []string{"questions", "answers"},
	}
}

func mustNew(t *testing.T, cfg config.AuditConfig) *Logger {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleEntry() models.TranscriptEntry {
	hash, prefix := HashUser("rina@example.com")
	return models.TranscriptEntry{
		SessionID:  "sess-001",
		UserHash:   hash,
		UserPrefix: prefix,
		SubjectID:  "math",
		ChapterID:  "math_1",
		Source:     models.SourceLive,
		Outcome:    "completed",
		Question:   "প্ৰমাণ কৰা যে √2 এটা অমূলদ সংখ্যা",
		Answer:     "ধৰা হওক √2 মূলদ।",
		LatencyMs:  1500,
		CreatedAt:  time.Now(),
	}
}

func TestLogAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.TranscriptQuery{SubjectID: "math"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].SessionID != "sess-001" {
		t.Errorf("expected sess-001, got %s", entries[0].SessionID)
	}
	if entries[0].Question != sampleEntry().Question {
		t.Errorf("question not stored: %q", entries[0].Question)
	}
}

func TestQueryByUserPrefix(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()
	_ = l.Log(ctx, sampleEntry())

	entries, err := l.Query(ctx, models.TranscriptQuery{UserPrefix: "rina@exa"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1, got %d", len(entries))
	}

	entries, err = l.Query(ctx, models.TranscriptQuery{UserPrefix: "someone"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0, got %d", len(entries))
	}
}

func TestTextTruncation(t *testing.T) {
	cfg := tempCfg(t)
	cfg.MaxChars = 16
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.Answer = strings.Repeat("অ", 100)
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.TranscriptQuery{SessionID: "sess-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if n := len([]rune(entries[0].Answer)); n != 16 {
		t.Errorf("expected 16 runes, got %d", n)
	}
}

func TestIncludeFiltering(t *testing.T) {
	cfg := tempCfg(t)
	cfg.Include = nil
	l := mustNew(t, cfg)
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.TranscriptQuery{SessionID: "sess-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if entries[0].Question != "" || entries[0].Answer != "" {
		t.Errorf("expected text to be dropped, got %q / %q", entries[0].Question, entries[0].Answer)
	}
	if entries[0].Outcome != "completed" {
		t.Errorf("metadata should be kept, got %+v", entries[0])
	}
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.CreatedAt = time.Now().AddDate(0, 0, -1)
	_ = l.Log(ctx, entry)

	deleted, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	e2 := sampleEntry()
	e2.SessionID = "sess-002"
	_ = l.Log(ctx, e2)

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected one group, got %+v", stats)
	}
	if stats[0].Count != 2 || stats[0].SubjectID != "math" {
		t.Errorf("unexpected stat: %+v", stats[0])
	}
}

func TestHashUser(t *testing.T) {
	hash, prefix := HashUser("rina@example.com")
	if len(hash) != 64 {
		t.Errorf("expected 64-char hash, got %d", len(hash))
	}
	if prefix != "rina@exa" {
		t.Errorf("expected prefix rina@exa, got %s", prefix)
	}
}

func TestNilLoggerSafe(t *testing.T) {
	var l *Logger
	if err := l.Log(context.Background(), sampleEntry()); err != nil {
		t.Errorf("nil logger should be safe: %v", err)
	}
}

func TestNewInvalidPath(t *testing.T) {
	cfg := config.AuditConfig{
		Enabled: true,
		DBPath:  filepath.Join(os.TempDir(), "nonexistent", "deep", "path", "audit.db"),
	}
	if _, err := New(cfg); err == nil {
		t.Error("expected error for invalid path")
	}
}
