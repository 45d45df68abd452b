// Package main is the entry point for the forgeplane controller.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forgeplane/internal/admission"
	"forgeplane/internal/config"
	"forgeplane/internal/controller"
	"forgeplane/internal/controller/handlers"
	"forgeplane/internal/logger"
	"forgeplane/internal/observability"
	"forgeplane/internal/sched"
	"forgeplane/internal/store"
	"forgeplane/internal/store/postgres"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: Postgres when a database is configured, in-memory
	// otherwise. The in-memory log loses crash recovery.
	var (
		txlog     store.TxLog
		customers store.CustomerStore
		ping      func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()

		if *migrateFlag {
			log.Info("running database migrations")
			if err := postgres.Migrate(pg.DB()); err != nil {
				log.Error("migration failed", "error", err)
				os.Exit(1)
			}
			log.Info("migrations completed")
		}
		txlog = pg
		customers = pg
		ping = pg.Ping
	} else {
		log.Warn("no DATABASE_URL set, using in-memory transaction log")
		txlog = store.NewMemoryLog()
		customers = store.NewMemoryCustomers()
	}

	shutdownTracer, err := observability.InitTracer(ctx, "forgeplane-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Error("failed to shutdown metrics", "error", err)
		}
	}()

	schedMetrics, err := observability.NewSchedulerMetrics()
	if err != nil {
		log.Error("failed to create scheduler metrics", "error", err)
		os.Exit(1)
	}

	scheduler := sched.New(sched.Config{
		AgeWeight:          cfg.AgeWeight,
		MaxReroutes:        cfg.MaxReroutes,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		HeartbeatMisses:    cfg.HeartbeatMisses,
		CancelTimeoutTicks: cfg.CancelTimeoutTicks,
		SweepInterval:      cfg.SweepInterval,
	}, txlog, log)

	lastArrival, err := scheduler.Restore(ctx)
	if err != nil {
		log.Error("transaction log replay failed", "error", err)
		os.Exit(1)
	}
	log.Info("state restored", "last_arrival", lastArrival)

	if err := observability.RegisterQueueDepthGauge(func() map[string]int {
		depth := make(map[string]int)
		for capability, n := range scheduler.Snapshot().QueueDepth() {
			depth[string(capability)] = n
		}
		return depth
	}); err != nil {
		log.Error("failed to register queue depth gauge", "error", err)
	}

	go scheduler.Run(ctx)
	go controller.PumpEvents(ctx, scheduler.Events(), schedMetrics, log)

	h := handlers.New(scheduler, admission.New(txlog, lastArrival), customers, log, ping)
	srv := controller.NewServer(cfg.HTTPPort, h, customers, cfg.UnitSecret, metricsHandler, log)

	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server stopped", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("shutting down controller")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	cancel()
}
