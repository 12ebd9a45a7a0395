// Package config defines the worker's configuration tree and its koanf-based
// loading: defaults, then an optional YAML file, then ARENA_-prefixed
// environment variables, each layer overriding the previous one. Weight and
// tier validation happens at load time; a bad partition or weight sum is a
// startup failure, never a per-member runtime error.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/leaderboard"
	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/internal/infrastructure/external/tracker"
	"github.com/arena-hub/arena-rank/internal/infrastructure/persistence/postgres"
	"github.com/arena-hub/arena-rank/internal/infrastructure/persistence/redis"
	"github.com/arena-hub/arena-rank/internal/infrastructure/scheduler"
	"github.com/arena-hub/arena-rank/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/arena-hub/arena-rank/internal/interface/http"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidConfig wraps every validation failure so callers can branch
	// with errors.Is.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrUnknownBackend is returned for an index backend outside
	// memory/redis.
	ErrUnknownBackend = errors.New("config: unknown index backend")
)

// ══════════════════════════════════════════════════════════════════════════════
// SECTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Environment names the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// AppConfig holds general process settings.
type AppConfig struct {
	Name        string      `koanf:"name"`
	Environment Environment `koanf:"environment"`
	Version     string      `koanf:"version"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// LogLevel is debug, info, warn or error; LogFormat is json or text.
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// IndexBackend selects the ranking index implementation.
type IndexBackend string

const (
	BackendMemory IndexBackend = "memory"
	BackendRedis  IndexBackend = "redis"
)

// IndexConfig selects and tunes the ranking index.
type IndexConfig struct {
	// Backend is "redis" in production, "memory" for single-node runs and
	// development.
	Backend IndexBackend `koanf:"backend"`
}

// LeagueConfig carries the tier catalog. An empty Tiers list means the
// built-in five-tier catalog.
type LeagueConfig struct {
	Tiers []league.Tier `koanf:"tiers"`
}

// SchedulerConfig holds the background job plan. Schedules are cron
// expressions in the scheduler's five-field dialect.
type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`

	// MaxHistory caps the in-memory job run history.
	MaxHistory int `koanf:"max_history"`

	// AggregationSchedule runs daily aggregation for the previous day.
	AggregationSchedule string `koanf:"aggregation_schedule"`

	// ClassificationSchedule runs weekly league classification.
	ClassificationSchedule string `koanf:"classification_schedule"`

	// RebuildInterval runs the full index rebuild.
	RebuildInterval time.Duration `koanf:"rebuild_interval"`

	Aggregation    jobs.DailyAggregationConfig     `koanf:"aggregation"`
	Classification jobs.WeeklyClassificationConfig `koanf:"classification"`
	Rebuild        jobs.RebuildIndexConfig         `koanf:"rebuild"`
}

// MetricsConfig holds the Prometheus exposition settings. Addr runs a
// standalone /metrics listener so the worker stays scrapeable when the read
// API is disabled; empty skips the extra listener.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config is the full worker configuration tree.
type Config struct {
	App         AppConfig          `koanf:"app"`
	Scoring     scoring.Config     `koanf:"scoring"`
	Leaderboard leaderboard.Policy `koanf:"leaderboard"`
	League      LeagueConfig       `koanf:"league"`
	Postgres    postgres.Config    `koanf:"postgres"`
	Redis       redis.Config       `koanf:"redis"`
	Index       IndexConfig        `koanf:"index"`
	Tracker     tracker.Config     `koanf:"tracker"`
	Scheduler   SchedulerConfig    `koanf:"scheduler"`
	API         httpapi.Config     `koanf:"api"`
	Metrics     MetricsConfig      `koanf:"metrics"`
}

// Default returns the configuration used when no file or environment
// overrides anything. The tracker base URL has no sensible default and must
// come from the environment.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "arena-rank",
			Environment:     EnvDevelopment,
			Version:         "0.1.0",
			ShutdownTimeout: 30 * time.Second,
			LogLevel:        "info",
			LogFormat:       "json",
		},
		Scoring:     scoring.DefaultConfig(),
		Leaderboard: leaderboard.DefaultPolicy(),
		Postgres:    postgres.DefaultConfig(),
		Redis:       redis.DefaultConfig(),
		Index:       IndexConfig{Backend: BackendMemory},
		Tracker:     tracker.DefaultConfig(""),
		Scheduler: SchedulerConfig{
			Enabled:                true,
			MaxHistory:             200,
			AggregationSchedule:    "30 0 * * *",
			ClassificationSchedule: "0 1 * * 1",
			RebuildInterval:        6 * time.Hour,
			Aggregation:            jobs.DefaultDailyAggregationConfig(),
			Classification:         jobs.DefaultWeeklyClassificationConfig(),
			Rebuild:                jobs.DefaultRebuildIndexConfig(),
		},
		API:     httpapi.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
	}
}

// Validate checks the tree. Anything wrong here is a startup fatal.
func (c *Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Leaderboard.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Index.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Index.Backend)
	}
	if c.Scheduler.Enabled {
		if _, err := scheduler.ParseCronExpression(c.Scheduler.AggregationSchedule); err != nil {
			return fmt.Errorf("%w: aggregation schedule: %w", ErrInvalidConfig, err)
		}
		if _, err := scheduler.ParseCronExpression(c.Scheduler.ClassificationSchedule); err != nil {
			return fmt.Errorf("%w: classification schedule: %w", ErrInvalidConfig, err)
		}
		if c.Scheduler.RebuildInterval <= 0 {
			return fmt.Errorf("%w: rebuild interval must be positive", ErrInvalidConfig)
		}
	}
	return nil
}

// Catalog builds the league tier catalog from the configured tiers, falling
// back to the built-in catalog when none are configured.
func (c *Config) Catalog() (*league.Catalog, error) {
	if len(c.League.Tiers) == 0 {
		return league.DefaultCatalog(), nil
	}
	return league.NewCatalog(c.League.Tiers)
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}
