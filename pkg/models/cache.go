package models

import "time"

// CacheEntry stores a cached tutor answer.
type CacheEntry struct {
	Key            string    `json:"cache_key" msgpack:"k"`
	Question       string    `json:"question" msgpack:"q"`
	Answer         string    `json:"answer" msgpack:"a"`
	SubjectID      string    `json:"subject_id" msgpack:"s"`
	ChapterID      string    `json:"chapter_id" msgpack:"c"`
	AccessCount    int64     `json:"access_count" msgpack:"-"`
	LastAccessedAt time.Time `json:"last_accessed" msgpack:"-"`
	CreatedAt      time.Time `json:"created_at" msgpack:"t"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Errors  int64 `json:"errors"`
}
