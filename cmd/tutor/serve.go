package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jajabor-ai/tutor/pkg/server"
)

func newServeCmd(load configLoader) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tutor HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.watchPolicy(ctx)

			srv := server.New(cfg, server.Deps{
				Tutor:    a.tutorDeps(),
				Catalog:  a.catalog,
				Quota:    a.quota,
				Gatherer: a.registry,
				Logger:   a.logger,
			})
			a.logger.Info("starting tutor",
				"cache", cfg.Cache.Backend,
				"endpoints", len(cfg.Endpoints),
				"catalog_fallback", a.catalog.UsingFallback(),
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
