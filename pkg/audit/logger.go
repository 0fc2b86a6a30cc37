// Package audit keeps an optional transcript of questions and replies in a
// dedicated SQLite database, with retention.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/jajabor-ai/tutor/pkg/config"
	"github.com/jajabor-ai/tutor/pkg/models"
	_ "modernc.org/sqlite"
)

// Logger writes and queries transcript entries.
type Logger struct {
	db      *sql.DB
	cfg     config.AuditConfig
	done    chan struct{}
	wg      sync.WaitGroup
	include map[string]bool
}

// New opens the transcript database and creates the schema.
func New(cfg config.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	inc := make(map[string]bool, len(cfg.Include))
	for _, v := range cfg.Include {
		inc[v] = true
	}
	l := &Logger{
		db:      db,
		cfg:     cfg,
		done:    make(chan struct{}),
		include: inc,
	}
	l.wg.Add(1)
	go l.retentionLoop()
	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS transcripts (
		session_id  TEXT PRIMARY KEY,
		user_hash   TEXT NOT NULL,
		user_prefix TEXT NOT NULL,
		subject_id  TEXT NOT NULL,
		chapter_id  TEXT NOT NULL,
		source      TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		question    TEXT,
		answer      TEXT,
		latency_ms  INTEGER,
		created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_subject ON transcripts(subject_id)`)
	return err
}

// Log inserts an entry. Question and answer text are dropped unless
// included by configuration.
func (l *Logger) Log(ctx context.Context, e models.TranscriptEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if !l.include["questions"] {
		e.Question = ""
	}
	if !l.include["answers"] {
		e.Answer = ""
	}
	e.Question = clip(e.Question, l.cfg.MaxChars)
	e.Answer = clip(e.Answer, l.cfg.MaxChars)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transcripts
		(session_id, user_hash, user_prefix, subject_id, chapter_id, source, outcome,
		 question, answer, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.UserHash, e.UserPrefix, e.SubjectID, e.ChapterID, e.Source, e.Outcome,
		e.Question, e.Answer, e.LatencyMs, e.CreatedAt.UTC(),
	)
	return err
}

// Query returns entries matching q, newest first.
func (l *Logger) Query(ctx context.Context, q models.TranscriptQuery) ([]models.TranscriptEntry, error) {
	query := `SELECT session_id, user_hash, user_prefix, subject_id, chapter_id, source, outcome,
		question, answer, latency_ms, created_at
		FROM transcripts WHERE 1=1`
	var args []any

	if q.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, q.SessionID)
	}
	if q.SubjectID != "" {
		query += " AND subject_id = ?"
		args = append(args, q.SubjectID)
	}
	if q.UserPrefix != "" {
		query += " AND user_prefix = ?"
		args = append(args, q.UserPrefix)
	}
	if !q.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, q.Since.UTC())
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var entries []models.TranscriptEntry
	for rows.Next() {
		var e models.TranscriptEntry
		var question, answer sql.NullString
		if err := rows.Scan(
			&e.SessionID, &e.UserHash, &e.UserPrefix, &e.SubjectID, &e.ChapterID,
			&e.Source, &e.Outcome, &question, &answer, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		e.Question = question.String
		e.Answer = answer.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns entry counts grouped by subject and day.
func (l *Logger) Stats(ctx context.Context) ([]models.TranscriptStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT subject_id, substr(created_at, 1, 10) AS day, count(*)
		 FROM transcripts GROUP BY subject_id, day ORDER BY day DESC, subject_id`)
	if err != nil {
		return nil, fmt.Errorf("transcript stats: %w", err)
	}
	defer rows.Close()

	var stats []models.TranscriptStat
	for rows.Next() {
		var s models.TranscriptStat
		var day sql.NullString
		if err := rows.Scan(&s.SubjectID, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan transcript stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx, `DELETE FROM transcripts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("transcript cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

// HashUser returns the SHA-256 hex hash and an 8-rune prefix of a student
// identifier.
func HashUser(id string) (hash, prefix string) {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:]), clip(id, 8)
}

func clip(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
