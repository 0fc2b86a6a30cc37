package models

import "time"

// TranscriptEntry is one question and the text shown in reply, kept for
// review when transcript logging is enabled.
type TranscriptEntry struct {
	SessionID  string    `json:"session_id"`
	UserHash   string    `json:"user_hash"`
	UserPrefix string    `json:"user_prefix"`
	SubjectID  string    `json:"subject_id"`
	ChapterID  string    `json:"chapter_id"`
	Source     string    `json:"source"`
	Outcome    string    `json:"outcome"`
	Question   string    `json:"question,omitempty"`
	Answer     string    `json:"answer,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// TranscriptQuery filters transcript entries.
type TranscriptQuery struct {
	SessionID  string
	SubjectID  string
	UserPrefix string
	Since      time.Time
	Limit      int
}

// TranscriptStat counts entries per subject and day.
type TranscriptStat struct {
	SubjectID string `json:"subject_id"`
	Day       string `json:"day"`
	Count     int    `json:"count"`
}
