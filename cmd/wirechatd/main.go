// wirechatd is the reference WireChat server. It serves the chat protocol
// over one WebSocket endpoint, persisting conversations in PostgreSQL (or
// in memory) and streaming completions through NATS (or in process).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wirechat/wirechat/internal/adapter/memqueue"
	"github.com/wirechat/wirechat/internal/adapter/memstore"
	wcnats "github.com/wirechat/wirechat/internal/adapter/nats"
	"github.com/wirechat/wirechat/internal/adapter/natskv"
	wcotel "github.com/wirechat/wirechat/internal/adapter/otel"
	"github.com/wirechat/wirechat/internal/adapter/postgres"
	"github.com/wirechat/wirechat/internal/adapter/ristretto"
	"github.com/wirechat/wirechat/internal/adapter/tiered"
	"github.com/wirechat/wirechat/internal/config"
	"github.com/wirechat/wirechat/internal/logger"
	"github.com/wirechat/wirechat/internal/port/cache"
	"github.com/wirechat/wirechat/internal/port/database"
	"github.com/wirechat/wirechat/internal/port/messagequeue"
	"github.com/wirechat/wirechat/internal/resilience"
	"github.com/wirechat/wirechat/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"postgres", cfg.Postgres.DSN != "",
		"nats", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := wcotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// --- Storage ---
	var store database.Store
	storeKind := "memory"
	if cfg.Postgres.DSN != "" {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
		storeKind = "postgres"
		log.Info("postgres connected")
	} else {
		store = memstore.New()
		log.Warn("no postgres dsn configured, conversations are not durable")
	}

	// --- Queue ---
	var queue messagequeue.Queue
	queueKind := "memory"
	if cfg.NATS.URL != "" {
		q, err := wcnats.Connect(ctx, cfg.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		queue = q
		queueKind = "nats"
	} else {
		queue = memqueue.New(log)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			log.Warn("queue drain failed", "error", err)
		}
	}()

	// --- Cache ---
	local, err := ristretto.New(cfg.Cache.MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer local.Close()

	var listCache cache.Cache = local
	if q, ok := queue.(*wcnats.Queue); ok {
		kv, err := q.KeyValue(ctx, "wirechat-directory", cfg.Cache.ListTTL)
		if err != nil {
			return fmt.Errorf("cache kv: %w", err)
		}
		listCache = tiered.New(local, natskv.New(kv), cfg.Cache.ListTTL)
		log.Info("directory cache tiered over nats kv")
	}

	// --- Services ---
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	svc := server.NewService(store, listCache, queue, breaker,
		server.CannedGenerator, cfg.Cache.ListTTL, log)

	worker := server.NewWorker(store, queue, server.CannedGenerator, log)
	cancelWorker, err := worker.Start(ctx)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	defer cancelWorker()

	// --- HTTP ---
	handler := server.NewHandler(svc, queue, cfg.Server.CORSOrigin, log)
	router := server.NewRouter(handler,
		server.HealthHandler(svc, storeKind, queueKind), cfg.Logging.Service)

	return server.New(cfg.Server, router, log).Run(ctx)
}
