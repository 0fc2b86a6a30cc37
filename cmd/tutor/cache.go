package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jajabor-ai/tutor/pkg/cache"
	"github.com/jajabor-ai/tutor/pkg/logging"
)

func withCache(cmd *cobra.Command, load configLoader, fn func(*cache.Store) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	store, err := openCache(cmd.Context(), cfg.Cache, logging.New(cfg.Log), nil)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Answer cache is disabled.")
		return nil
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func newCacheCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the answer cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the number of cached answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, load, func(s *cache.Store) error {
				stats, err := s.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\n", stats.Entries)
				return nil
			})
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}
			return withCache(cmd, load, func(s *cache.Store) error {
				if err := s.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All cached answers cleared.")
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting every cached answer")

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
