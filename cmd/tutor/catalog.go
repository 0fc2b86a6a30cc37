package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jajabor-ai/tutor/pkg/catalog"
	"github.com/jajabor-ai/tutor/pkg/logging"
)

func newCatalogCmd(load configLoader) *cobra.Command {
	var (
		subject string
		chapter string
		seed    bool
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List subjects, chapters and sample questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Catalog.DBPath == "" {
				return fmt.Errorf("catalog.db_path is not set")
			}
			src, err := catalog.NewSQLite(cfg.Catalog.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			ctx := cmd.Context()
			if seed {
				s, c, q := catalog.Fallback()
				if err := src.Seed(ctx, s, c, q); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Seeded %d subjects, %d chapters, %d questions.\n", len(s), len(c), len(q))
			}

			cat := catalog.New(src, logging.New(cfg.Log))
			cat.Load(ctx)
			if cat.UsingFallback() {
				fmt.Fprintln(cmd.ErrOrStderr(), "Catalog database is empty; showing built-in data.")
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			switch {
			case chapter != "":
				fmt.Fprintln(w, "ID\tQUESTION")
				for _, q := range cat.Questions(ctx, chapter) {
					fmt.Fprintf(w, "%s\t%s\n", q.ID, q.Question)
				}
			case subject != "":
				fmt.Fprintln(w, "ID\tNAME")
				for _, c := range cat.Chapters(ctx, subject) {
					fmt.Fprintf(w, "%s\t%s\n", c.ID, c.DisplayName)
				}
			default:
				fmt.Fprintln(w, "ID\tNAME")
				for _, s := range cat.Subjects() {
					fmt.Fprintf(w, "%s\t%s\n", s.ID, s.DisplayName)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "list the chapters of a subject")
	cmd.Flags().StringVar(&chapter, "chapter", "", "list the sample questions of a chapter")
	cmd.Flags().BoolVar(&seed, "seed", false, "write the built-in catalog into the database first")
	return cmd
}
