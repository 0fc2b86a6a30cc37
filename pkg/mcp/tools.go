package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/jajabor-ai/tutor/pkg/playback"
	"github.com/jajabor-ai/tutor/pkg/stream"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"tutor_ask":         handleAsk,
	"tutor_subjects":    handleSubjects,
	"tutor_chapters":    handleChapters,
	"tutor_questions":   handleQuestions,
	"tutor_stats":       handleStats,
	"tutor_quota":       handleQuota,
	"tutor_cache_stats": handleCacheStats,
	"tutor_transcripts": handleTranscripts,
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var allTools = []ToolDefinition{
	{
		Name:        "tutor_ask",
		Description: "Ask the tutor a question within a subject and chapter and return the final answer.",
		InputSchema: object([]string{"question", "subject_id", "chapter_id"}, map[string]any{
			"question":   stringProp("The student's question"),
			"subject_id": stringProp("Subject id, e.g. math"),
			"chapter_id": stringProp("Chapter id, e.g. math_1"),
		}),
	},
	{
		Name:        "tutor_subjects",
		Description: "List the subjects the tutor covers.",
		InputSchema: object(nil, map[string]any{}),
	},
	{
		Name:        "tutor_chapters",
		Description: "List the chapters of a subject.",
		InputSchema: object([]string{"subject_id"}, map[string]any{
			"subject_id": stringProp("Subject id"),
		}),
	},
	{
		Name:        "tutor_questions",
		Description: "List sample questions for a chapter.",
		InputSchema: object([]string{"chapter_id"}, map[string]any{
			"chapter_id": stringProp("Chapter id"),
		}),
	},
	{
		Name:        "tutor_stats",
		Description: "Show answered questions grouped by subject, source and outcome, optionally for one student.",
		InputSchema: object(nil, map[string]any{
			"user": stringProp("Student email (optional, omit for everyone)"),
		}),
	},
	{
		Name:        "tutor_quota",
		Description: "Show question quota usage for a student.",
		InputSchema: object([]string{"user"}, map[string]any{
			"user": stringProp("Student email"),
		}),
	},
	{
		Name:        "tutor_cache_stats",
		Description: "Show answer cache statistics (entries, hits, misses, hit rate).",
		InputSchema: object(nil, map[string]any{}),
	},
	{
		Name:        "tutor_transcripts",
		Description: "Search the transcript log with optional filters.",
		InputSchema: object(nil, map[string]any{
			"subject_id":  stringProp("Filter by subject (optional)"),
			"since":       stringProp("Start date in YYYY-MM-DD format (optional)"),
			"user_prefix": stringProp("Filter by student prefix (optional)"),
			"session_id":  stringProp("Filter by session ID (optional)"),
		}),
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func decode(raw json.RawMessage, v any) {
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, v)
	}
}

// lastFrame keeps only the most recent frame of an answer.
type lastFrame struct {
	mu    sync.Mutex
	text  string
	state stream.State
}

func (f *lastFrame) Frame(fr playback.Frame) {
	f.mu.Lock()
	f.text = fr.Text
	f.mu.Unlock()
}

func (f *lastFrame) ScrollToBottom() {}

func (f *lastFrame) State(st stream.State) {
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
}

func handleAsk(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.d.Tutor == nil {
		return textResult("Asking is not configured.")
	}
	var req models.AskRequest
	decode(raw, &req)

	ctx, cancel := context.WithTimeout(ctx, s.d.AskTimeout)
	defer cancel()
	sink := &lastFrame{}
	out, err := s.d.Tutor.Ask(ctx, req, sink)
	if err != nil {
		return errorResult(err.Error())
	}
	res := textResult(formatAnswer(out, sink.text))
	res.IsError = out.State == stream.Failed || errors.Is(ctx.Err(), context.DeadlineExceeded)
	return res
}

type subjectArgs struct {
	SubjectID string `json:"subject_id"`
}

type chapterArgs struct {
	ChapterID string `json:"chapter_id"`
}

func handleSubjects(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.d.Catalog == nil {
		return textResult("Catalog is not configured.")
	}
	return textResult(formatSubjects(s.d.Catalog.Subjects()))
}

func handleChapters(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.d.Catalog == nil {
		return textResult("Catalog is not configured.")
	}
	var args subjectArgs
	decode(raw, &args)
	if args.SubjectID == "" {
		return errorResult("subject_id is required")
	}
	return textResult(formatChapters(s.d.Catalog.Chapters(ctx, args.SubjectID)))
}

func handleQuestions(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.d.Catalog == nil {
		return textResult("Catalog is not configured.")
	}
	var args chapterArgs
	decode(raw, &args)
	if args.ChapterID == "" {
		return errorResult("chapter_id is required")
	}
	return textResult(formatQuestions(s.d.Catalog.Questions(ctx, args.ChapterID)))
}

type userArgs struct {
	User string `json:"user"`
}

func handleStats(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.d.Tracker == nil {
		return textResult("Session tracking is not configured.")
	}
	var args userArgs
	decode(raw, &args)
	rows, err := s.d.Tracker.Summary(ctx, args.User)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	return textResult(formatSummary(rows))
}

func handleQuota(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.d.Quota == nil {
		return textResult("Question quotas are not configured.")
	}
	var args userArgs
	decode(raw, &args)
	if args.User == "" {
		return errorResult("user is required")
	}
	statuses, err := s.d.Quota.Status(ctx, args.User)
	if err != nil {
		return errorResult("Error fetching quota status: " + err.Error())
	}
	return textResult(formatQuotaStatus(statuses))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.d.Cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.d.Cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

type transcriptArgs struct {
	SubjectID  string `json:"subject_id"`
	Since      string `json:"since"`
	UserPrefix string `json:"user_prefix"`
	SessionID  string `json:"session_id"`
}

func handleTranscripts(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.d.Transcripts == nil {
		return textResult("Transcript logging is not configured.")
	}
	var args transcriptArgs
	decode(raw, &args)

	q := models.TranscriptQuery{
		SubjectID:  args.SubjectID,
		UserPrefix: args.UserPrefix,
		SessionID:  args.SessionID,
		Limit:      50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		q.Since = t
	}
	entries, err := s.d.Transcripts.Query(ctx, q)
	if err != nil {
		return errorResult("Error searching transcripts: " + err.Error())
	}
	return textResult(formatTranscripts(entries))
}
