package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory Backend for store tests.
type memBackend struct {
	mu      sync.Mutex
	entries map[string]models.CacheEntry
	touched int
	fail    error
}

func newMemBackend() *memBackend {
	return &memBackend{entries: make(map[string]models.CacheEntry)}
}

func (m *memBackend) Lookup(_ context.Context, key, subjectID, chapterID string) (models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return models.CacheEntry{}, m.fail
	}
	e, ok := m.entries[key]
	if !ok || e.SubjectID != subjectID || e.ChapterID != chapterID {
		return models.CacheEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *memBackend) Upsert(_ context.Context, e models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.entries[e.Key] = e
	return nil
}

func (m *memBackend) Touch(_ context.Context, e models.CacheEntry, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	cur := m.entries[e.Key]
	cur.AccessCount++
	cur.LastAccessedAt = at
	m.entries[e.Key] = cur
	return nil
}

func (m *memBackend) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

func (m *memBackend) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]models.CacheEntry)
	return nil
}

func (m *memBackend) Close() error { return nil }

func (m *memBackend) entry(key string) models.CacheEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key]
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("Circle AREA", "math", "math_1")
	b := Fingerprint("  circle   area ", "math", "math_1")
	c := Fingerprint("circle area?!", "math", "math_1")
	assert.Equal(t, "math_math_1_circle area", a)
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)

	assert.NotEqual(t, a, Fingerprint("circle area", "math", "math_2"))
	assert.NotEqual(t, a, Fingerprint("circle area", "science", "math_1"))
}

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "প্ৰমাণ কৰা যে 2 এটা অমূলদ সংখ্যা", NormalizeQuestion("প্ৰমাণ কৰা যে √2 এটা অমূলদ সংখ্যা।"))
	assert.Equal(t, "snake_case ok", NormalizeQuestion("snake_case, OK."))
	assert.Equal(t, "tabs and newlines", NormalizeQuestion("tabs\tand\n\nnewlines"))

	// punctuation is stripped after whitespace is collapsed
	assert.Equal(t, "what is hcf ", NormalizeQuestion("What is HCF ?"))
	assert.Equal(t, "a  b", NormalizeQuestion("a - b"))
	assert.Equal(t, "x  y", NormalizeQuestion("  x \t-\n  y  "))
	assert.Equal(t, "math_math_1_what is hcf ", Fingerprint("What is HCF ?", "math", "math_1"))

	long := strings.Repeat("ক", 250)
	got := NormalizeQuestion(long)
	assert.Equal(t, 200, len([]rune(got)))
	assert.Equal(t, got, NormalizeQuestion(long+" extra words"))
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := New(b)

	_, ok := s.Get(ctx, "What is HCF?", "math", "math_1")
	assert.False(t, ok)

	require.True(t, s.Put(ctx, "What is HCF?", "the highest common factor", "math", "math_1"))

	key := Fingerprint("What is HCF?", "math", "math_1")
	assert.Equal(t, int64(0), b.entry(key).AccessCount)

	answer, ok := s.Get(ctx, "what is hcf", "math", "math_1")
	require.True(t, ok)
	assert.Equal(t, "the highest common factor", answer)
	s.Wait()
	first := b.entry(key).AccessCount
	assert.Equal(t, int64(1), first)

	_, ok = s.Get(ctx, "what is hcf", "math", "math_1")
	require.True(t, ok)
	s.Wait()
	assert.Equal(t, first+1, b.entry(key).AccessCount)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CacheStats{Entries: 1, Hits: 2, Misses: 1}, stats)
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := New(newMemBackend())
	require.True(t, s.Put(ctx, "q", "first", "math", "math_1"))
	require.True(t, s.Put(ctx, "Q", "second", "math", "math_1"))

	answer, ok := s.Get(ctx, "q", "math", "math_1")
	require.True(t, ok)
	assert.Equal(t, "second", answer)
}

func TestScopeIsPartOfTheLookup(t *testing.T) {
	ctx := context.Background()
	s := New(newMemBackend())
	require.True(t, s.Put(ctx, "q", "a", "math", "math_1"))

	_, ok := s.Get(ctx, "q", "math", "math_2")
	assert.False(t, ok)
}

func TestBackendFailureDegrades(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	b.fail = errors.New("connection refused")
	s := New(b)

	_, ok := s.Get(ctx, "q", "math", "math_1")
	assert.False(t, ok)
	assert.False(t, s.Put(ctx, "q", "a", "math", "math_1"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestDisabledStore(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	assert.False(t, s.Enabled())
	assert.False(t, s.Put(ctx, "q", "a", "math", "math_1"))
	_, ok := s.Get(ctx, "q", "math", "math_1")
	assert.False(t, ok)
	assert.NoError(t, s.Clear(ctx))
	assert.NoError(t, s.Close())

	var nilStore *Store
	assert.False(t, nilStore.Enabled())
	_, ok = nilStore.Get(ctx, "q", "math", "math_1")
	assert.False(t, ok)
	nilStore.Wait()
}

func TestClock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := newMemBackend()
	s := New(b, WithClock(func() time.Time { return fixed }))
	require.True(t, s.Put(ctx, "q", "a", "math", "math_1"))

	e := b.entry(Fingerprint("q", "math", "math_1"))
	assert.Equal(t, fixed, e.CreatedAt)
	assert.Equal(t, fixed, e.LastAccessedAt)
}
