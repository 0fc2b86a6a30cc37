package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jajabor-ai/tutor/pkg/audit"
	"github.com/jajabor-ai/tutor/pkg/cache"
	"github.com/jajabor-ai/tutor/pkg/cache/postgrest"
	"github.com/jajabor-ai/tutor/pkg/cache/redis"
	"github.com/jajabor-ai/tutor/pkg/cache/sqlite"
	"github.com/jajabor-ai/tutor/pkg/catalog"
	"github.com/jajabor-ai/tutor/pkg/config"
	"github.com/jajabor-ai/tutor/pkg/logging"
	"github.com/jajabor-ai/tutor/pkg/metrics"
	"github.com/jajabor-ai/tutor/pkg/playback"
	"github.com/jajabor-ai/tutor/pkg/quota"
	"github.com/jajabor-ai/tutor/pkg/render"
	"github.com/jajabor-ai/tutor/pkg/router"
	"github.com/jajabor-ai/tutor/pkg/scroll"
	"github.com/jajabor-ai/tutor/pkg/syllabus"
	"github.com/jajabor-ai/tutor/pkg/tracker"
	"github.com/jajabor-ai/tutor/pkg/tutor"
)

// app holds every long-lived component built from the config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	cache    *cache.Store
	catalog  *catalog.Catalog
	tracker  *tracker.SQLiteTracker
	audit    *audit.Logger
	quota    *quota.Enforcer
	filter   *syllabus.Filter

	closers []func() error
}

func openCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger, m *metrics.Metrics) (*cache.Store, error) {
	var b cache.Backend
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil, nil
	case config.BackendSQLite:
		sb, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		b = sb
	case config.BackendPostgREST:
		b = postgrest.New(cfg.PostgREST.URL, cfg.PostgREST.APIKey, cfg.PostgREST.Table, &http.Client{Timeout: cfg.Timeout})
	case config.BackendRedis:
		rb, err := redis.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		b = rb
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	return cache.New(b,
		cache.WithTimeout(cfg.Timeout),
		cache.WithLogger(logger),
		cache.WithMetrics(m),
	), nil
}

// openApp builds the components. Cache, catalog and tracker failures are
// fatal; a broken policy file falls back to the built-in policy.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logging.New(cfg.Log),
		registry: prometheus.NewRegistry(),
	}
	a.metrics = metrics.New(a.registry)

	var err error
	a.cache, err = openCache(ctx, cfg.Cache, a.logger, a.metrics)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		a.closers = append(a.closers, a.cache.Close)
	}

	var src catalog.Source
	if cfg.Catalog.DBPath != "" {
		s, err := catalog.NewSQLite(cfg.Catalog.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		src = s
	}
	a.catalog = catalog.New(src, a.logger)
	a.catalog.Load(ctx)

	if cfg.Tracker.Enabled {
		a.tracker, err = tracker.New(cfg.Tracker.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open tracker: %w", err)
		}
		a.closers = append(a.closers, a.tracker.Close)
		a.quota = quota.New(cfg.Quota.Policies, a.tracker)
	}

	if cfg.Audit.Enabled {
		a.audit, err = audit.New(cfg.Audit)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open audit: %w", err)
		}
		a.closers = append(a.closers, a.audit.Close)
	}

	policy := syllabus.DefaultPolicy()
	if p := cfg.Syllabus.PolicyPath; p != "" {
		loaded, err := syllabus.LoadPolicy(p)
		if err != nil {
			a.logger.Warn("using built-in syllabus policy", "path", p, "err", err)
		} else {
			policy = loaded
		}
	}
	a.filter = syllabus.New(policy)
	return a, nil
}

// watchPolicy reloads the syllabus policy on change until ctx is done.
func (a *app) watchPolicy(ctx context.Context) {
	p := a.cfg.Syllabus.PolicyPath
	if p == "" || !a.cfg.Syllabus.Watch {
		return
	}
	if err := a.filter.Watch(ctx, p, a.logger); err != nil {
		a.logger.Warn("policy watch disabled", "err", err)
	}
}

// tutorDeps returns the shared Tutor collaborators.
func (a *app) tutorDeps() tutor.Deps {
	d := tutor.Deps{
		Filter:   a.filter,
		Cache:    a.cache,
		Resolver: router.New(a.cfg),
		Catalog:  a.catalog,
		Metrics:  a.metrics,
		Logger:   a.logger,
		Renderer: render.New(nil, a.logger),
		Playback: playback.TimingFromConfig(a.cfg.Playback),
		Scroll:   scroll.TimingFromConfig(a.cfg.Scroll),
	}
	if a.tracker != nil {
		d.Tracker = a.tracker
	}
	if a.audit != nil {
		d.Audit = a.audit
	}
	return d
}

// Close releases everything in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintln(os.Stderr, "close:", err)
		}
	}
	a.closers = nil
}
