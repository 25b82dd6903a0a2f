package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	progressionservice "cliparena/contexts/tournament/progression-service"
	progresspostgres "cliparena/contexts/tournament/progression-service/adapters/postgres"
	votingengine "cliparena/contexts/tournament/voting-engine"
	votingpostgres "cliparena/contexts/tournament/voting-engine/adapters/postgres"
	"cliparena/contexts/tournament/voting-engine/application/commands"
	votingworkers "cliparena/contexts/tournament/voting-engine/application/workers"
	votingports "cliparena/contexts/tournament/voting-engine/ports"
	"cliparena/internal/platform/config"
	"cliparena/internal/platform/db"
	"cliparena/internal/platform/httpserver"
	"cliparena/internal/platform/messaging"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres         *db.Postgres
	consumer         votingworkers.QueueConsumer
	reconciler       votingworkers.CounterReconciler
	progression      progressionservice.Module
	pollInterval     time.Duration
	progressInterval time.Duration
	logger           *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	pg, wiring, err := buildModules(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(
		wiring.voting,
		wiring.progression,
		cfg.CronSecret,
		logger,
		normalizeAddr(cfg.HTTPPort),
	)
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	pg, wiring, err := buildModules(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerApp{
		postgres: pg,
		consumer: votingworkers.QueueConsumer{
			Queue:       wiring.queue,
			Ledger:      wiring.ledger,
			Clock:       votingpostgres.SystemClock{},
			BatchSize:   cfg.QueueBatchSize,
			MaxAttempts: cfg.QueueMaxAttempts,
			OrphanGrace: cfg.QueueOrphanGrace,
			Logger:      logger,
		},
		reconciler: votingworkers.CounterReconciler{
			Reader:  wiring.reader,
			Counter: wiring.counter,
			Flags:   wiring.flags,
			Logger:  logger,
		},
		progression:      wiring.progression,
		pollInterval:     cfg.WorkerInterval,
		progressInterval: cfg.ProgressInterval,
		logger:           logger,
	}, nil
}

type moduleWiring struct {
	voting      votingengine.Module
	progression progressionservice.Module
	ledger      votingports.VoteLedger
	reader      *votingpostgres.Repository
	counter     *votingpostgres.CounterStore
	queue       *votingpostgres.Queue
	flags       *votingpostgres.FlagProvider
}

func buildModules(cfg config.Config, logger *slog.Logger) (*db.Postgres, moduleWiring, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, moduleWiring{}, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, moduleWiring{}, err
	}

	clock := votingpostgres.SystemClock{}
	repo := votingpostgres.NewRepository(pg.DB, logger)

	// Ledger strategy is chosen once per process, not per request.
	probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ledger votingports.VoteLedger = repo
	if !votingpostgres.ProbeAtomicSupport(probeCtx, pg.DB) {
		logger.Warn("atomic vote primitive unavailable, using legacy ledger",
			"event", "bootstrap_legacy_ledger_selected",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		ledger = votingpostgres.NewLegacyLedger(pg.DB, logger)
	}

	// The fast-path counter and freeze state live in shared tables: the api
	// absorbs deltas that the worker's reconciler drains, and a freeze set by
	// either process is visible to both.
	counter := votingpostgres.NewCounterStore(pg.DB, clock, logger)
	queue := votingpostgres.NewQueue(pg.DB, clock, logger)
	flags := votingpostgres.NewFlagProvider(pg.DB, clock, cfg.FlagCacheTTL, logger)
	bus := messaging.NewBus(logger)

	voting := votingengine.NewModule(votingengine.Dependencies{
		Ledger:    ledger,
		Reader:    repo,
		Counter:   counter,
		Queue:     queue,
		Flags:     flags,
		Publisher: bus,
		Clock:     clock,
		IDGen:     votingpostgres.UUIDGenerator{},
		Quotas: commands.Quotas{
			DailyLimit:     cfg.DailyVoteLimit,
			StandardWeight: cfg.StandardWeight,
			SuperWeight:    cfg.SuperWeight,
			MegaWeight:     cfg.MegaWeight,
		},
		PageSize: cfg.StatePageSize,
		Logger:   logger,
	})

	progressRepo := progresspostgres.NewRepository(pg.DB, logger)
	progression := progressionservice.NewModule(progressionservice.Dependencies{
		Repo:           progressRepo,
		Lock:           progresspostgres.NewCronLock(pg.DB, logger),
		Counter:        counter,
		FastPath:       flags,
		Clock:          clock,
		LockTTL:        cfg.CronLockTTL,
		FreezeBuffer:   cfg.FreezeBuffer,
		VotingDuration: cfg.VotingDuration,
		Logger:         logger,
	})

	return pg, moduleWiring{
		voting:      voting,
		progression: progression,
		ledger:      ledger,
		reader:      repo,
		counter:     counter,
		queue:       queue,
		flags:       flags,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

// Run drives the queue consumer and counter reconciler on one cadence and
// slot progression on another until the context is cancelled.
func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"progress_interval", w.progressInterval.String(),
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			if err := w.consumer.RunOnce(ctx); err != nil {
				return err
			}
			if err := w.reconciler.RunOnce(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	group.Go(func() error {
		ticker := time.NewTicker(w.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			if _, err := w.progression.Progress.Run(ctx); err != nil {
				w.logger.Error("progression tick failed",
					"event", "bootstrap_progression_tick_failed",
					"module", "internal/app/bootstrap",
					"layer", "platform",
					"error", err.Error(),
				)
			}
		}
	})

	return group.Wait()
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
