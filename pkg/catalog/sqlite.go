package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jajabor-ai/tutor/pkg/models"
)

// SQLiteSource reads the catalog from SQLite tables.
type SQLiteSource struct {
	db *sql.DB
}

const createCatalogTables = `
CREATE TABLE IF NOT EXISTS subjects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	display_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chapters (
	id TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL,
	name TEXT NOT NULL,
	display_name TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chapters_subject ON chapters(subject_id);
CREATE TABLE IF NOT EXISTS questions (
	id TEXT PRIMARY KEY,
	chapter_id TEXT NOT NULL,
	question TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_chapter ON questions(chapter_id);
`

// NewSQLite opens (or creates) the catalog tables at dbPath.
func NewSQLite(dbPath string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	if _, err := db.Exec(createCatalogTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog db: %w", err)
	}

	return &SQLiteSource{db: db}, nil
}

// Subjects returns every subject ordered by id.
func (s *SQLiteSource) Subjects(ctx context.Context) ([]models.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, display_name FROM subjects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var out []models.Subject
	for rows.Next() {
		var sub models.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.DisplayName); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Chapters returns chapters of subjectID, or all chapters when it is empty.
func (s *SQLiteSource) Chapters(ctx context.Context, subjectID string) ([]models.Chapter, error) {
	query := `SELECT id, subject_id, name, display_name FROM chapters`
	var args []any
	if subjectID != "" {
		query += ` WHERE subject_id = ?`
		args = append(args, subjectID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	var out []models.Chapter
	for rows.Next() {
		var ch models.Chapter
		if err := rows.Scan(&ch.ID, &ch.SubjectID, &ch.Name, &ch.DisplayName); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Questions returns questions of chapterID, or all questions when it is empty.
func (s *SQLiteSource) Questions(ctx context.Context, chapterID string) ([]models.Question, error) {
	query := `SELECT id, chapter_id, question FROM questions`
	var args []any
	if chapterID != "" {
		query += ` WHERE chapter_id = ?`
		args = append(args, chapterID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.ChapterID, &q.Question); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Seed inserts or replaces the given rows in one transaction.
func (s *SQLiteSource) Seed(ctx context.Context, subjects []models.Subject, chapters []models.Chapter, questions []models.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	defer tx.Rollback()

	for _, sub := range subjects {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO subjects (id, name, display_name) VALUES (?, ?, ?)`,
			sub.ID, sub.Name, sub.DisplayName,
		); err != nil {
			return fmt.Errorf("seed subject %s: %w", sub.ID, err)
		}
	}
	for _, ch := range chapters {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chapters (id, subject_id, name, display_name) VALUES (?, ?, ?, ?)`,
			ch.ID, ch.SubjectID, ch.Name, ch.DisplayName,
		); err != nil {
			return fmt.Errorf("seed chapter %s: %w", ch.ID, err)
		}
	}
	for _, q := range questions {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO questions (id, chapter_id, question) VALUES (?, ?, ?)`,
			q.ID, q.ChapterID, q.Question,
		); err != nil {
			return fmt.Errorf("seed question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// Close releases the database connection.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
