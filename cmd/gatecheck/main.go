package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyoxu/myguild-sub003/internal/application/usecase"
	"github.com/skyoxu/myguild-sub003/internal/gate"
	"github.com/skyoxu/myguild-sub003/pkg/config"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// gatecheck is the standalone release-gate service: it runs the check set on
// an interval and serves the latest verdict to CI tooling, without the rest
// of the control plane.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("Starting standalone gate service",
		"interval", cfg.Gate.Interval.String(),
		"strict_mode", cfg.Gate.StrictMode,
	)

	checks := []gate.Check{
		gate.NewConfigCheck(func() error {
			return cfg.ToStrategy().Validate()
		}),
	}
	if cfg.Gate.TrackerEndpoint != "" {
		checks = append(checks, gate.NewTrackerEndpointCheck(cfg.Gate.TrackerEndpoint, nil))
	}

	engine := gate.NewEngine(gate.EngineConfig{
		CheckTimeout: cfg.Gate.CheckTimeout,
		StrictMode:   cfg.Gate.StrictMode,
	}, log, checks...)

	// No fan-out backends in standalone mode, the verdict only serves HTTP.
	evaluator := usecase.NewRunGateUseCase(engine, nil, nil, nil, nil, nil, nil, log)

	runner := gate.NewRunner(evaluator, log, cfg.Gate.Interval)
	h := gate.NewHandler(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := runner.RunOnce(ctx); err != nil {
		log.Error("Initial gate run failed", err)
	}

	go runner.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Info("Gate HTTP server started", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Gate HTTP server failed", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Gate HTTP server shutdown failed", err)
	}

	log.Info("Gate service stopped")
}
