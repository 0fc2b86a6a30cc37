package models

import "time"

// Answer sources.
const (
	SourceLive     = "live"
	SourceCache    = "cache"
	SourceRejected = "rejected"
)

// SessionRecord is a finished question/answer exchange kept for reporting.
type SessionRecord struct {
	ID        string        `json:"id"`
	UserEmail string        `json:"user_email,omitempty"`
	Source    string        `json:"source"`
	SubjectID string        `json:"subject_id"`
	ChapterID string        `json:"chapter_id"`
	Outcome   string        `json:"outcome"`
	Chars     int           `json:"chars"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// SessionSummary aggregates session records by subject, source and outcome.
type SessionSummary struct {
	SubjectID string `json:"subject_id"`
	Source    string `json:"source"`
	Outcome   string `json:"outcome"`
	Count     int    `json:"count"`
	AvgMillis int64  `json:"avg_ms"`
}
