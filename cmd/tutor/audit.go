package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jajabor-ai/tutor/pkg/audit"
	"github.com/jajabor-ai/tutor/pkg/models"
)

func newAuditCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the transcript log",
	}
	cmd.AddCommand(
		newAuditSearchCmd(load),
		newAuditShowCmd(load),
		newAuditStatsCmd(load),
		newAuditCleanupCmd(load),
	)
	return cmd
}

func openAuditLogger(load configLoader) (*audit.Logger, func(), error) {
	cfg, err := load()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Audit.Enabled {
		return nil, nil, fmt.Errorf("transcript logging is disabled (audit.enabled)")
	}
	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func newAuditSearchCmd(load configLoader) *cobra.Command {
	var (
		subject    string
		since      string
		userPrefix string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search transcript entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(load)
			if err != nil {
				return err
			}
			defer cleanup()

			q := models.TranscriptQuery{SubjectID: subject, UserPrefix: userPrefix, Limit: limit}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				q.Since = t
			}

			entries, err := l.Query(context.Background(), q)
			if err != nil {
				return err
			}
			fmt.Print(formatTranscripts(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "filter by subject")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&userPrefix, "user-prefix", "", "filter by student prefix")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	return cmd
}

func newAuditShowCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Show one transcript entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(load)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.TranscriptQuery{SessionID: args[0], Limit: 1})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No entry found for that session.")
				return nil
			}

			e := entries[0]
			fmt.Printf("Session:   %s\n", e.SessionID)
			fmt.Printf("Student:   %s...\n", e.UserPrefix)
			fmt.Printf("Scope:     %s / %s\n", e.SubjectID, e.ChapterID)
			fmt.Printf("Outcome:   %s (%s)\n", e.Outcome, e.Source)
			fmt.Printf("Latency:   %dms\n", e.LatencyMs)
			fmt.Printf("Time:      %s\n", e.CreatedAt.Format(time.RFC3339))
			if e.Question != "" {
				fmt.Printf("\n--- Question ---\n%s\n", e.Question)
			}
			if e.Answer != "" {
				fmt.Printf("\n--- Answer ---\n%s\n", e.Answer)
			}
			return nil
		},
	}
	return cmd
}

func newAuditStatsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show transcript counts by subject and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(load)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatTranscriptStats(stats))
			return nil
		},
	}
}

func newAuditCleanupCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete transcript entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(load)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d transcript entries.\n", deleted)
			return nil
		},
	}
}

func formatTranscripts(entries []models.TranscriptEntry) string {
	if len(entries) == 0 {
		return "No transcript entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-10s %-10s %-10s %-22s %8s %-20s\n",
		"SESSION", "STUDENT", "SUBJECT", "SOURCE", "OUTCOME", "LATENCY", "TIME")
	b.WriteString(strings.Repeat("-", 124) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-38s %-10s %-10s %-10s %-22s %6dms %-20s\n",
			e.SessionID, e.UserPrefix, e.SubjectID, e.Source, e.Outcome,
			e.LatencyMs, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatTranscriptStats(stats []models.TranscriptStat) string {
	if len(stats) == 0 {
		return "No transcript stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-12s %8s\n", "SUBJECT", "DAY", "COUNT")
	b.WriteString(strings.Repeat("-", 34) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-12s %-12s %8d\n", s.SubjectID, s.Day, s.Count)
	}
	return b.String()
}
