package models

// Subject is a top-level syllabus subject.
type Subject struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Chapter belongs to a subject.
type Chapter struct {
	ID          string `json:"id"`
	SubjectID   string `json:"subject_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Question is an exercise question listed under a chapter.
type Question struct {
	ID        string `json:"id"`
	ChapterID string `json:"chapter_id"`
	Question  string `json:"question"`
}
