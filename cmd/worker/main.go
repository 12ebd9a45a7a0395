// Package main is the ranking worker: it aggregates daily activity into
// performance snapshots, keeps the ranking index projected, classifies
// leagues on the weekly boundary, and serves the read-side REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/arena-hub/arena-rank/config"
	"github.com/arena-hub/arena-rank/internal/application/query"
	"github.com/arena-hub/arena-rank/internal/domain/leaderboard"
	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/ranking"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/internal/infrastructure/external/tracker"
	"github.com/arena-hub/arena-rank/internal/infrastructure/persistence/memory"
	"github.com/arena-hub/arena-rank/internal/infrastructure/persistence/postgres"
	"github.com/arena-hub/arena-rank/internal/infrastructure/persistence/redis"
	"github.com/arena-hub/arena-rank/internal/infrastructure/scheduler"
	"github.com/arena-hub/arena-rank/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/arena-hub/arena-rank/internal/interface/http"
	"github.com/arena-hub/arena-rank/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	log.Info("starting arena-rank worker",
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
		"index_backend", cfg.Index.Backend,
	)

	var mgr *metrics.Manager
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mgr = metrics.NewManager()
		if cfg.Metrics.Addr != "" {
			metricsSrv = mgr.Server(cfg.Metrics.Addr)
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics listener failed", "error", err)
				}
			}()
			log.Info("metrics exposed", "addr", cfg.Metrics.Addr)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Storage
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := postgres.NewConnection(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	memberRepo := postgres.NewMemberRepository(conn)
	snapshotRepo := postgres.NewSnapshotRepository(conn)
	leagueRepo := postgres.NewLeagueRepository(conn)

	var index ranking.Index
	switch cfg.Index.Backend {
	case config.BackendRedis:
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() { _ = client.Close() }()
		index = redis.NewRankingIndex(client)
		log.Info("ranking index on redis", "addr", cfg.Redis.Addr())
	case config.BackendMemory:
		index = memory.NewRankingIndex()
		log.Warn("ranking index in memory, contents are lost on restart")
	}
	if mgr != nil {
		index = ranking.Instrument(index, mgr)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Activity source and domain services
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Tracker.BaseURL == "" {
		return errors.New("tracker base url is required (ARENA_TRACKER__BASE_URL)")
	}
	source := tracker.NewClient(cfg.Tracker, mgr, log)

	aggregator, err := scoring.NewAggregator(cfg.Scoring, source, snapshotRepo, log)
	if err != nil {
		return fmt.Errorf("build aggregator: %w", err)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("build tier catalog: %w", err)
	}
	classifier, err := league.NewClassifier(catalog, snapshotRepo, leagueRepo, log)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}

	builder, err := leaderboard.NewBuilder(snapshotRepo, cfg.Leaderboard, log)
	if err != nil {
		return fmt.Errorf("build leaderboard builder: %w", err)
	}

	projector, err := jobs.NewIndexProjector(snapshotRepo, leagueRepo, index, log)
	if err != nil {
		return fmt.Errorf("build index projector: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = setupScheduler(cfg, log, mgr, memberRepo, aggregator, classifier, projector)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()
	} else {
		log.Warn("scheduler disabled, snapshots and classifications will not advance")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Read-side API
	// ─────────────────────────────────────────────────────────────────────────
	var apiErr <-chan error
	var api *httpapi.Server
	if cfg.API.Enabled {
		api, err = setupAPI(cfg, log, mgr, builder, leagueRepo, catalog, index, conn)
		if err != nil {
			return err
		}
		apiErr = api.StartAsync()
	}

	log.Info("arena-rank worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// Shutdown
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-apiErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if api != nil {
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Error("api shutdown failed", "error", err)
		}
	}
	if sched != nil {
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
			log.Error("scheduler stop failed", "error", err)
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics listener shutdown failed", "error", err)
		}
	}

	log.Info("shutdown complete")
	return nil
}

// setupScheduler registers the three batch jobs on their schedules.
func setupScheduler(
	cfg *config.Config,
	log *slog.Logger,
	mgr *metrics.Manager,
	directory *postgres.MemberRepository,
	aggregator *scoring.Aggregator,
	classifier *league.Classifier,
	projector *jobs.IndexProjector,
) (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.Config{
		Logger:         log,
		MaxHistorySize: cfg.Scheduler.MaxHistory,
	})
	sched.OnJobComplete(func(result scheduler.JobResult) {
		mgr.RecordJobRun(result.JobName, result.Error, result.Duration)
	})

	aggregation, err := jobs.NewDailyAggregationJob(directory, aggregator, projector, cfg.Scheduler.Aggregation, mgr, log)
	if err != nil {
		return nil, fmt.Errorf("build aggregation job: %w", err)
	}
	aggregationSchedule, err := scheduler.ParseCronExpression(cfg.Scheduler.AggregationSchedule)
	if err != nil {
		return nil, fmt.Errorf("aggregation schedule: %w", err)
	}
	if err := sched.Register(aggregation, aggregationSchedule); err != nil {
		return nil, err
	}

	classification, err := jobs.NewWeeklyClassificationJob(directory, classifier, projector, cfg.Scheduler.Classification, mgr, log)
	if err != nil {
		return nil, fmt.Errorf("build classification job: %w", err)
	}
	classificationSchedule, err := scheduler.ParseCronExpression(cfg.Scheduler.ClassificationSchedule)
	if err != nil {
		return nil, fmt.Errorf("classification schedule: %w", err)
	}
	if err := sched.Register(classification, classificationSchedule); err != nil {
		return nil, err
	}

	rebuild, err := jobs.NewRebuildIndexJob(directory, projector, cfg.Scheduler.Rebuild, log)
	if err != nil {
		return nil, fmt.Errorf("build rebuild job: %w", err)
	}
	if err := sched.Register(rebuild, scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildInterval)); err != nil {
		return nil, err
	}

	return sched, nil
}

// setupAPI wires the query handlers into the REST server.
func setupAPI(
	cfg *config.Config,
	log *slog.Logger,
	mgr *metrics.Manager,
	builder *leaderboard.Builder,
	assignments league.AssignmentStore,
	catalog *league.Catalog,
	index ranking.Index,
	conn *postgres.Connection,
) (*httpapi.Server, error) {
	lb, err := query.NewGetLeaderboardHandler(builder)
	if err != nil {
		return nil, err
	}
	mr, err := query.NewGetMyRankingHandler(builder)
	if err != nil {
		return nil, err
	}
	ml, err := query.NewGetMyLeagueHandler(assignments, catalog, index)
	if err != nil {
		return nil, err
	}
	ll, err := query.NewGetLeagueLeaderboardHandler(catalog, index)
	if err != nil {
		return nil, err
	}
	top, err := query.NewGetTopStandingsHandler(index)
	if err != nil {
		return nil, err
	}
	near, err := query.NewGetNearbyStandingsHandler(index)
	if err != nil {
		return nil, err
	}
	page, err := query.NewGetStandingsPageHandler(index)
	if err != nil {
		return nil, err
	}

	var metricsHandler http.Handler
	if mgr != nil {
		metricsHandler = mgr.Handler()
	}

	return httpapi.NewServer(cfg.API, httpapi.Dependencies{
		Leaderboard:       lb,
		MyRanking:         mr,
		MyLeague:          ml,
		LeagueLeaderboard: ll,
		TopStandings:      top,
		NearbyStandings:   near,
		StandingsPage:     page,
		MetricsHandler:    metricsHandler,
		Pinger:            conn,
		Logger:            log,
	})
}

// setupLogger builds the process logger from the app section.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.App.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.App.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("service", cfg.App.Name)
	slog.SetDefault(log)
	return log
}
