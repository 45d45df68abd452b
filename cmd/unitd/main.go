// Package main is the entry point for the forgeplane unit agent. One
// unitd process sits next to one fabrication unit, polls the controller
// for work and drives the hardware.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"forgeplane/internal/config"
	"forgeplane/internal/logger"
	"forgeplane/internal/observability"
	"forgeplane/internal/unit"
	"forgeplane/internal/unit/driver"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.UnitID == "" {
		log.Error("UNIT_ID is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.InitTracer(ctx, "forgeplane-unitd", cfg.OTELEndpoint)
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

	// The simulated driver is the only one wired up today. A hardware
	// driver plugs in behind the same interface.
	d := driver.NewSim(driver.SimConfig{})

	agent := unit.New(unit.Config{
		UnitID:            cfg.UnitID,
		Capability:        cfg.UnitCapability,
		ControllerURL:     cfg.ControllerURL,
		Token:             cfg.UnitSecret,
		PollInterval:      cfg.UnitPollInterval,
		HeartbeatInterval: cfg.UnitHeartbeatInterval,
	}, d, log)

	go agent.Run(ctx)

	// Dedicated metrics listener, scraped separately from the controller.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Info("unitd metrics listening", "addr", ":6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down unit agent")
	cancel()
	<-agent.Done()
}
