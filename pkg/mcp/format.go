package mcp

import (
	"fmt"
	"strings"

	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/jajabor-ai/tutor/pkg/tutor"
)

func formatAnswer(out tutor.Outcome, text string) string {
	return fmt.Sprintf("[%s, %s]\n\n%s", out.Source, out.State, text)
}

func formatSubjects(subjects []models.Subject) string {
	if len(subjects) == 0 {
		return "No subjects found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %s\n", "ID", "Name")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	for _, s := range subjects {
		fmt.Fprintf(&b, "%-12s %s\n", s.ID, s.DisplayName)
	}
	return b.String()
}

func formatChapters(chapters []models.Chapter) string {
	if len(chapters) == 0 {
		return "No chapters found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %s\n", "ID", "Name")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	for _, c := range chapters {
		fmt.Fprintf(&b, "%-16s %s\n", c.ID, c.DisplayName)
	}
	return b.String()
}

func formatQuestions(questions []models.Question) string {
	if len(questions) == 0 {
		return "No questions found."
	}
	var b strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Question)
	}
	return b.String()
}

func formatSummary(rows []models.SessionSummary) string {
	if len(rows) == 0 {
		return "No sessions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-10s %-22s %8s %10s\n", "Subject", "Source", "Outcome", "Count", "Avg ms")
	b.WriteString(strings.Repeat("-", 66) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %-10s %-22s %8d %10d\n", r.SubjectID, r.Source, r.Outcome, r.Count, r.AvgMillis)
	}
	return b.String()
}

func formatQuotaStatus(statuses []models.QuotaStatus) string {
	if len(statuses) == 0 {
		return "No quota policies apply."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-8s %8s %8s %10s %6s\n", "User", "Period", "Max", "Used", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, s := range statuses {
		pct := float64(s.Used) / float64(s.Policy.MaxQuestions) * 100
		fmt.Fprintf(&b, "%-24s %-8s %8d %8d %10d %5.1f%%\n",
			s.Policy.User, s.Policy.Period, s.Policy.MaxQuestions, s.Used, s.Remaining, pct)
	}
	return b.String()
}

func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Answer Cache\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Errors:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, stats.Errors, hitRate)
}

func formatTranscripts(entries []models.TranscriptEntry) string {
	if len(entries) == 0 {
		return "No transcripts found."
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s  %s/%s  %s (%s)  %dms\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.UserPrefix, e.SubjectID, e.ChapterID,
			e.Outcome, e.Source, e.LatencyMs)
		if e.Question != "" {
			fmt.Fprintf(&b, "  Q: %s\n", e.Question)
		}
		if e.Answer != "" {
			fmt.Fprintf(&b, "  A: %s\n", e.Answer)
		}
	}
	return b.String()
}
