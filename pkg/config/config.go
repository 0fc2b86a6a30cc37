package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jajabor-ai/tutor/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all tutor configuration.
type Config struct {
	Listen    string           `yaml:"listen"`
	Log       LogConfig        `yaml:"log"`
	Auth      AuthConfig       `yaml:"auth"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Router    RouterConfig     `yaml:"router"`
	Cache     CacheConfig      `yaml:"cache"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	Tracker   TrackerConfig    `yaml:"tracker"`
	Syllabus  SyllabusConfig   `yaml:"syllabus"`
	Playback  PlaybackConfig   `yaml:"playback"`
	Scroll    ScrollConfig     `yaml:"scroll"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Quota     QuotaConfig      `yaml:"quota"`
	Audit     AuditConfig      `yaml:"audit"`
}

// LogConfig selects the slog handler and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// AuthConfig lists the bearer tokens allowed to use the API.
// An empty list disables the check; browsers are then told apart by a
// cookie and each gets its own chat.
type AuthConfig struct {
	Users []UserConfig `yaml:"users"`
}

// UserConfig maps a bearer token to a student.
type UserConfig struct {
	Token string `yaml:"token"`
	models.User `yaml:",inline"`
}

// EndpointConfig defines an upstream streaming completion endpoint.
type EndpointConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// RouterConfig maps subjects to endpoints.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig sends every question of Subject to Endpoint.
type RouteConfig struct {
	Subject  string `yaml:"subject"`
	Endpoint string `yaml:"endpoint"`
}

// Cache backends.
const (
	BackendNone      = "none"
	BackendSQLite    = "sqlite"
	BackendPostgREST = "postgrest"
	BackendRedis     = "redis"
)

// CacheConfig controls the answer cache.
type CacheConfig struct {
	Backend   string          `yaml:"backend"`
	DBPath    string          `yaml:"db_path"`
	Timeout   time.Duration   `yaml:"timeout"`
	PostgREST PostgRESTConfig `yaml:"postgrest"`
	Redis     RedisConfig     `yaml:"redis"`
}

// PostgRESTConfig points at a hosted Postgres REST API.
type PostgRESTConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Table  string `yaml:"table"`
}

// RedisConfig points at a Redis server.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CatalogConfig controls the subject/chapter/question source.
type CatalogConfig struct {
	DBPath string `yaml:"db_path"`
}

// TrackerConfig controls the session ledger.
type TrackerConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// SyllabusConfig points at an optional policy file.
type SyllabusConfig struct {
	PolicyPath string `yaml:"policy_path"`
	Watch      bool   `yaml:"watch"`
}

// PlaybackConfig tunes live and cached playback pacing.
type PlaybackConfig struct {
	Yield  time.Duration `yaml:"yield"`
	Poll   time.Duration `yaml:"poll"`
	Typing time.Duration `yaml:"typing"`
	Chunk  time.Duration `yaml:"chunk"`
}

// ScrollConfig tunes scroll suspension.
type ScrollConfig struct {
	Brief    time.Duration `yaml:"brief"`
	Debounce time.Duration `yaml:"debounce"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// RateLimitConfig is a per-user token bucket for /v1/ask.
type RateLimitConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

// QuotaConfig lists question quotas. No policies means no limit.
type QuotaConfig struct {
	Policies []models.QuotaPolicy `yaml:"policies"`
}

// AuditConfig controls the transcript log. Question and answer text are
// only stored when listed in Include ("questions", "answers").
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	MaxChars      int      `yaml:"max_chars"`
	Include       []string `yaml:"include"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			Backend: BackendSQLite,
			DBPath:  "tutor.db",
			Timeout: 5 * time.Second,
			PostgREST: PostgRESTConfig{
				Table: "answer_cache",
			},
			Redis: RedisConfig{
				Prefix: "answer",
			},
		},
		Catalog: CatalogConfig{
			DBPath: "tutor.db",
		},
		Tracker: TrackerConfig{
			Enabled: true,
			DBPath:  "tutor.db",
		},
		Playback: PlaybackConfig{
			Yield:  10 * time.Millisecond,
			Poll:   500 * time.Millisecond,
			Typing: 60 * time.Millisecond,
			Chunk:  40 * time.Millisecond,
		},
		Scroll: ScrollConfig{
			Brief:    100 * time.Millisecond,
			Debounce: 100 * time.Millisecond,
			Cooldown: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 20,
			Burst:     5,
		},
		Audit: AuditConfig{
			DBPath:        "audit.db",
			RetentionDays: 90,
			MaxChars:      8000,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "", BackendNone, BackendSQLite, BackendPostgREST, BackendRedis:
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == BackendPostgREST && c.Cache.PostgREST.URL == "" {
		return fmt.Errorf("cache: postgrest backend needs a url")
	}
	if c.Cache.Backend == BackendRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache: redis backend needs an addr")
	}

	for i, p := range c.Quota.Policies {
		if p.User == "" || p.MaxQuestions <= 0 {
			return fmt.Errorf("quota.policies[%d]: user and a positive max_questions are required", i)
		}
		switch p.Period {
		case models.QuotaDaily, models.QuotaMonthly:
		default:
			return fmt.Errorf("quota.policies[%d]: unknown period %q", i, p.Period)
		}
	}
	if c.Audit.Enabled && c.Audit.DBPath == "" {
		return fmt.Errorf("audit: db_path is required when enabled")
	}

	names := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Name == "" || ep.URL == "" {
			return fmt.Errorf("endpoints[%d]: name and url are required", i)
		}
		names[ep.Name] = true
	}
	for _, r := range c.Router.Routes {
		if !names[r.Endpoint] {
			return fmt.Errorf("route %q: unknown endpoint %q", r.Subject, r.Endpoint)
		}
	}
	return nil
}
