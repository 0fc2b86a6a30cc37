package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jajabor-ai/tutor/pkg/models"
)

// Tracker records finished tutor sessions and reports on them.
type Tracker interface {
	// Record stores a session record.
	Record(ctx context.Context, rec models.SessionRecord) error
	// Recent returns the newest records, optionally filtered by user email.
	Recent(ctx context.Context, userEmail string, limit int) ([]models.SessionRecord, error)
	// CountSince returns how many sessions a user started since a given time.
	CountSince(ctx context.Context, userEmail string, since time.Time) (int, error)
	// Summary returns records aggregated by subject, source and outcome,
	// optionally filtered by user email.
	Summary(ctx context.Context, userEmail string) ([]models.SessionSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS tutor_sessions (
	id TEXT PRIMARY KEY,
	user_email TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	chapter_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	chars INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tutor_sessions_user_time ON tutor_sessions(user_email, created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores a session record.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO tutor_sessions (id, user_email, source, subject_id, chapter_id, outcome, chars, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserEmail, rec.Source, rec.SubjectID, rec.ChapterID, rec.Outcome, rec.Chars,
		rec.Duration.Milliseconds(), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// Recent returns the newest records first.
func (t *SQLiteTracker) Recent(ctx context.Context, userEmail string, limit int) ([]models.SessionRecord, error) {
	query := `SELECT id, user_email, source, subject_id, chapter_id, outcome, chars, duration_ms, created_at
		 FROM tutor_sessions`
	var args []any
	if userEmail != "" {
		query += ` WHERE user_email = ?`
		args = append(args, userEmail)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var records []models.SessionRecord
	for rows.Next() {
		var r models.SessionRecord
		var ms int64
		if err := rows.Scan(&r.ID, &r.UserEmail, &r.Source, &r.SubjectID, &r.ChapterID, &r.Outcome, &r.Chars, &ms, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountSince returns how many sessions a user started since a given time.
func (t *SQLiteTracker) CountSince(ctx context.Context, userEmail string, since time.Time) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tutor_sessions WHERE user_email = ? AND created_at >= ?`,
		userEmail, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Summary returns records aggregated by subject, source and outcome.
func (t *SQLiteTracker) Summary(ctx context.Context, userEmail string) ([]models.SessionSummary, error) {
	query := `SELECT subject_id, source, outcome, COUNT(*), CAST(AVG(duration_ms) AS INTEGER)
		 FROM tutor_sessions`
	var args []any
	if userEmail != "" {
		query += ` WHERE user_email = ?`
		args = append(args, userEmail)
	}
	query += ` GROUP BY subject_id, source, outcome ORDER BY subject_id, source, outcome`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.SessionSummary
	for rows.Next() {
		var s models.SessionSummary
		if err := rows.Scan(&s.SubjectID, &s.Source, &s.Outcome, &s.Count, &s.AvgMillis); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
