package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jajabor-ai/tutor/pkg/quota"
	"github.com/jajabor-ai/tutor/pkg/tracker"
)

func newQuotaCmd(load configLoader) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show question quota usage for a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if len(cfg.Quota.Policies) == 0 {
				fmt.Println("No question quotas are configured.")
				return nil
			}
			if user == "" {
				return fmt.Errorf("--user is required")
			}

			tr, err := tracker.New(cfg.Tracker.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			statuses, err := quota.New(cfg.Quota.Policies, tr).Status(context.Background(), user)
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Println("No quota policies apply to this student.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "POLICY\tPERIOD\tMAX\tUSED\tREMAINING")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
					s.Policy.User, s.Policy.Period, s.Policy.MaxQuestions, s.Used, s.Remaining)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "student email")
	return cmd
}
