package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jajabor-ai/tutor/pkg/tracker"
)

func newStatsCmd(load configLoader) *cobra.Command {
	var (
		user   string
		recent int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show answered questions by subject, source and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			tr, err := tracker.New(cfg.Tracker.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

			if recent > 0 {
				recs, err := tr.Recent(ctx, user, recent)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Println("No sessions found.")
					return nil
				}
				fmt.Fprintln(w, "SESSION\tUSER\tSUBJECT\tCHAPTER\tSOURCE\tOUTCOME\tCHARS\tDURATION\tTIME")
				for _, r := range recs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						r.ID, r.UserEmail, r.SubjectID, r.ChapterID, r.Source, r.Outcome,
						r.Chars, r.Duration, r.CreatedAt.Format("2006-01-02T15:04:05"))
				}
				return w.Flush()
			}

			rows, err := tr.Summary(ctx, user)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}
			fmt.Fprintln(w, "SUBJECT\tSOURCE\tOUTCOME\tCOUNT\tAVG MS")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", r.SubjectID, r.Source, r.Outcome, r.Count, r.AvgMillis)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "filter by student email")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent sessions instead of the summary")
	return cmd
}
