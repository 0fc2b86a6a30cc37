package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jajabor-ai/tutor/pkg/mcp"
	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/jajabor-ai/tutor/pkg/playback"
	"github.com/jajabor-ai/tutor/pkg/tutor"
)

func newMCPCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tutor as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.watchPolicy(ctx)

			d := a.tutorDeps()
			// no one watches the typing animation over MCP
			d.Playback = playback.Timing{Poll: d.Playback.Poll}
			t := tutor.New(models.User{Name: "mcp"}, d)
			defer t.Close()

			deps := mcp.Deps{
				Tutor:   t,
				Catalog: a.catalog,
				Quota:   a.quota,
				Version: version,
				Logger:  a.logger,
			}
			if a.tracker != nil {
				deps.Tracker = a.tracker
			}
			if a.cache != nil {
				deps.Cache = a.cache
			}
			if a.audit != nil {
				deps.Transcripts = a.audit
			}
			return mcp.New(deps).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
