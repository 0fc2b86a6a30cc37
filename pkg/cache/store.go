// Package cache implements the answer cache: fingerprinting and get/put over a
// pluggable backend. Backend failures never reach the caller; they are logged
// and reported as a miss or a failed write.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jajabor-ai/tutor/pkg/logging"
	"github.com/jajabor-ai/tutor/pkg/metrics"
	"github.com/jajabor-ai/tutor/pkg/models"
)

// ErrNotFound is returned by a Backend lookup that matched no row.
var ErrNotFound = errors.New("cache entry not found")

// Backend is a remote answer table.
type Backend interface {
	// Lookup returns the newest entry matching key, subject and chapter.
	Lookup(ctx context.Context, key, subjectID, chapterID string) (models.CacheEntry, error)
	// Upsert writes e, replacing any entry with the same key.
	Upsert(ctx context.Context, e models.CacheEntry) error
	// Touch increments the access count of e and sets its last access time.
	Touch(ctx context.Context, e models.CacheEntry, at time.Time) error
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// Close releases resources.
	Close() error
}

// DefaultTimeout bounds each backend call.
const DefaultTimeout = 5 * time.Second

// Option configures a Store.
type Option func(*Store)

// WithTimeout sets the per-operation backend timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = logging.OrDiscard(l).With("component", "cache") }
}

// WithMetrics records lookups and writes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the answer cache used by the tutor. A Store with a nil backend is
// disabled: Get always misses and Put always reports false.
type Store struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	wg     sync.WaitGroup
	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// New creates a Store over b. b may be nil.
func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		timeout: DefaultTimeout,
		logger:  logging.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a backend is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.backend != nil
}

func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// Get returns the cached answer for the question, if any. A hit bumps the
// entry's access count in the background.
func (s *Store) Get(ctx context.Context, question, subjectID, chapterID string) (string, bool) {
	if !s.Enabled() {
		return "", false
	}
	key := Fingerprint(question, subjectID, chapterID)

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	entry, err := s.backend.Lookup(qctx, key, subjectID, chapterID)
	switch {
	case errors.Is(err, ErrNotFound):
		s.misses.Add(1)
		s.metrics.CacheLookup("miss")
		s.logger.Debug("cache miss", "key", shortKey(key))
		return "", false
	case err != nil:
		s.errors.Add(1)
		s.metrics.CacheLookup("error")
		s.logger.Warn("cache lookup failed", "key", shortKey(key), "err", err)
		return "", false
	}

	s.hits.Add(1)
	s.metrics.CacheLookup("hit")
	s.logger.Debug("cache hit", "key", shortKey(key))

	at := s.now().UTC()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.backend.Touch(tctx, entry, at); err != nil {
			s.logger.Warn("cache access update failed", "key", shortKey(key), "err", err)
		}
	}()
	return entry.Answer, true
}

// Put stores answer under the question's fingerprint, replacing any previous
// answer. It reports whether the write succeeded.
func (s *Store) Put(ctx context.Context, question, answer, subjectID, chapterID string) bool {
	if !s.Enabled() {
		return false
	}
	now := s.now().UTC()
	entry := models.CacheEntry{
		Key:            Fingerprint(question, subjectID, chapterID),
		Question:       question,
		Answer:         answer,
		SubjectID:      subjectID,
		ChapterID:      chapterID,
		AccessCount:    0,
		LastAccessedAt: now,
		CreatedAt:      now,
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if err := s.backend.Upsert(qctx, entry); err != nil {
		s.metrics.CacheWrite(false)
		s.logger.Warn("cache save failed", "key", shortKey(entry.Key), "err", err)
		return false
	}
	s.metrics.CacheWrite(true)
	s.logger.Debug("saved to cache", "key", shortKey(entry.Key))
	return true
}

// Stats returns the stored entry count and this process's lookup counters.
func (s *Store) Stats(ctx context.Context) (models.CacheStats, error) {
	if !s.Enabled() {
		return models.CacheStats{}, nil
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	n, err := s.backend.Count(qctx)
	if err != nil {
		return models.CacheStats{}, err
	}
	return models.CacheStats{
		Entries: n,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Errors:  s.errors.Load(),
	}, nil
}

// Clear removes every entry. Operator action; the tutor never calls it.
func (s *Store) Clear(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.backend.Clear(qctx)
}

// Wait blocks until background access updates have finished.
func (s *Store) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// Close waits for background work and closes the backend.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	s.wg.Wait()
	return s.backend.Close()
}

func shortKey(key string) string {
	r := []rune(key)
	if len(r) > 50 {
		return string(r[:50])
	}
	return key
}
