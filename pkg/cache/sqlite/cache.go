// Package sqlite is a local answer cache backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jajabor-ai/tutor/pkg/cache"
	"github.com/jajabor-ai/tutor/pkg/models"
)

// Backend stores answers in a SQLite table.
type Backend struct {
	db *sql.DB
}

var _ cache.Backend = (*Backend)(nil)

const createAnswerTable = `
CREATE TABLE IF NOT EXISTS answer_cache (
	cache_key TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	chapter_id TEXT NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_answer_cache_scope ON answer_cache(subject_id, chapter_id);
`

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Backend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createAnswerTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Backend{db: db}, nil
}

// Lookup returns the newest entry for key within the subject and chapter.
func (b *Backend) Lookup(ctx context.Context, key, subjectID, chapterID string) (models.CacheEntry, error) {
	var e models.CacheEntry
	err := b.db.QueryRowContext(ctx,
		`SELECT cache_key, question, answer, subject_id, chapter_id, access_count, last_accessed, created_at
		 FROM answer_cache
		 WHERE cache_key = ? AND subject_id = ? AND chapter_id = ?
		 ORDER BY created_at DESC LIMIT 1`,
		key, subjectID, chapterID,
	).Scan(&e.Key, &e.Question, &e.Answer, &e.SubjectID, &e.ChapterID, &e.AccessCount, &e.LastAccessedAt, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, cache.ErrNotFound
	}
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache lookup: %w", err)
	}
	return e, nil
}

// Upsert writes e, replacing any row with the same key.
func (b *Backend) Upsert(ctx context.Context, e models.CacheEntry) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO answer_cache
		 (cache_key, question, answer, subject_id, chapter_id, access_count, last_accessed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.Question, e.Answer, e.SubjectID, e.ChapterID, e.AccessCount, e.LastAccessedAt.UTC(), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// Touch increments the access count in place.
func (b *Backend) Touch(ctx context.Context, e models.CacheEntry, at time.Time) error {
	_, err := b.db.ExecContext(ctx,
		`UPDATE answer_cache SET access_count = access_count + 1, last_accessed = ? WHERE cache_key = ?`,
		at.UTC(), e.Key,
	)
	if err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	return nil
}

// Count returns the number of stored answers.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answer_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Clear removes every answer.
func (b *Backend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM answer_cache`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}
