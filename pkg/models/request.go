package models

import "time"

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Question  string `json:"question"`
	SubjectID string `json:"subject_id"`
	ChapterID string `json:"chapter_id"`
}

// InteractionEvent reports pointer or touch activity over the chat area.
type InteractionEvent struct {
	Kind  string `json:"kind"`  // "pointer" or "touch"
	Phase string `json:"phase"` // "start" or "end"
}

// ScrollState is a snapshot of auto-scroll suspension.
type ScrollState struct {
	Suspended      bool       `json:"suspended"`
	HoverStartedAt *time.Time `json:"hover_started_at,omitempty"`
}

// User is an authenticated student.
type User struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}
