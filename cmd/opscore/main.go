package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	// Application
	"github.com/skyoxu/myguild-sub003/internal/application/port"
	"github.com/skyoxu/myguild-sub003/internal/application/usecase"

	// Domain
	"github.com/skyoxu/myguild-sub003/internal/domain/sampling"
	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
	"github.com/skyoxu/myguild-sub003/internal/gate"
	"github.com/skyoxu/myguild-sub003/internal/resilience"

	// Infrastructure
	"github.com/skyoxu/myguild-sub003/internal/infrastructure/cache/redis"
	"github.com/skyoxu/myguild-sub003/internal/infrastructure/collector"
	natsInfra "github.com/skyoxu/myguild-sub003/internal/infrastructure/messaging/nats"
	wsInfra "github.com/skyoxu/myguild-sub003/internal/infrastructure/notification/websocket"
	"github.com/skyoxu/myguild-sub003/internal/infrastructure/observability/cloudwatch"

	// Interfaces
	httpInterface "github.com/skyoxu/myguild-sub003/internal/interfaces/http"
	"github.com/skyoxu/myguild-sub003/internal/interfaces/http/handler"
	"github.com/skyoxu/myguild-sub003/internal/interfaces/http/middleware"

	// Shared
	"github.com/skyoxu/myguild-sub003/pkg/config"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

const logSinkResource = "cloudwatch-logs"

func main() {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Logger
	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("Starting operability control plane",
		"environment", string(cfg.Control.Environment),
		"evaluation_interval", cfg.Control.EvaluationInterval.String(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Resilience core
	breakers := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	})

	orchestrator := resilience.NewOrchestrator(resilience.OrchestratorConfig{
		MaxRetries:     cfg.Recovery.MaxRetries,
		RetryBaseDelay: cfg.Recovery.RetryBaseDelay,
		AttemptTimeout: cfg.Recovery.AttemptTimeout,
	}, breakers, log)
	defer orchestrator.Close()

	// 4. Metric inputs
	signals := collector.NewSignalStore()
	metricsProvider := collector.NewRuntimeCollector(signals)

	// 5. Sampling controller
	controller, err := sampling.NewController(slo.DefaultTargets(), cfg.ToStrategy())
	if err != nil {
		log.Error("Failed to build sampling controller", err)
		os.Exit(1)
	}

	// 6. Optional backends
	var eventPublisher port.EventPublisher
	if cfg.NATS.Enabled {
		publisher, err := natsInfra.NewPublisher(cfg.NATS.URL, log)
		if err != nil {
			log.Error("Failed to connect to NATS", err)
			os.Exit(1)
		}
		defer func() { _ = publisher.Close() }()
		eventPublisher = publisher
	} else {
		log.Warn("NATS is disabled, control-plane events will not be published")
	}

	var cache port.Cache
	if cfg.Redis.Enabled {
		redisCache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			TTL:          cfg.Redis.TTL,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Error("Failed to connect to Redis", err)
			os.Exit(1)
		}
		defer func() { _ = redisCache.Close() }()
		cache = redisCache
	} else {
		log.Warn("Redis is disabled, latest decisions will not be cached")
	}

	var telemetry port.TelemetrySink
	var decisionLog port.DecisionLog
	if cfg.CloudWatch.Enabled {
		gauges, err := cloudwatch.NewGaugePublisher(ctx, cloudwatch.GaugePublisherConfig{
			Namespace:       cfg.CloudWatch.Namespace,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			DefaultDimensions: map[string]string{
				"Environment": string(cfg.Control.Environment),
			},
			FlushInterval: cfg.CloudWatch.FlushInterval,
		}, log)
		if err != nil {
			log.Error("Failed to initialize CloudWatch gauges", err)
			os.Exit(1)
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer closeCancel()
			_ = gauges.Close(closeCtx)
		}()
		telemetry = gauges

		logs, err := cloudwatch.NewDecisionLogPublisher(ctx, cloudwatch.DecisionLogConfig{
			LogGroupName:    cfg.CloudWatch.LogGroupName,
			LogStreamName:   cfg.CloudWatch.LogStreamName,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			BufferCap:       cfg.CloudWatch.LogBufferCap,
			FlushInterval:   cfg.CloudWatch.FlushInterval,
			AutoCreate:      cfg.CloudWatch.AutoCreateLogs,
		}, breakers.Get(logSinkResource), log)
		if err != nil {
			log.Error("Failed to initialize CloudWatch decision log", err)
			os.Exit(1)
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer closeCancel()
			_ = logs.Close(closeCtx)
		}()
		decisionLog = logs
	} else {
		log.Warn("CloudWatch is disabled, gauges and the decision audit trail stay local")
	}

	// 7. Recovery actions
	registerRecoveryActions(orchestrator, cfg, cache, decisionLog)

	// 8. WebSocket hub
	hub := wsInfra.NewHub(log)
	go hub.Run()

	// 9. Use cases
	samplingUC := usecase.NewEvaluateSamplingUseCase(
		metricsProvider,
		controller,
		cache,
		eventPublisher,
		telemetry,
		orchestrator,
		cfg.Control.Environment,
		log,
	)

	engine := gate.NewEngine(gate.EngineConfig{
		CheckTimeout: cfg.Gate.CheckTimeout,
		StrictMode:   cfg.Gate.StrictMode,
	}, log, buildGateChecks(cfg, controller, metricsProvider, breakers, decisionLog)...)

	gateUC := usecase.NewRunGateUseCase(
		engine,
		cache,
		eventPublisher,
		hub,
		telemetry,
		decisionLog,
		orchestrator,
		log,
	)

	gateRunner := gate.NewRunner(gateUC, log, cfg.Gate.Interval)

	// 10. Background loops
	if _, err := gateRunner.RunOnce(ctx); err != nil {
		log.Error("Initial gate run failed", err)
	}
	go gateRunner.Start(ctx)

	sweep := resilience.NewSweep(resilience.SweepConfig{
		Interval:          cfg.Sweep.Interval,
		MemoryPressurePct: cfg.Sweep.MemoryPressurePct,
		DiskPressurePct:   cfg.Sweep.DiskPressurePct,
		Path:              cfg.Sweep.Path,
	}, orchestrator, log)
	go sweep.Start(ctx)

	go runControlLoop(ctx, cfg, samplingUC, orchestrator, hub, eventPublisher, telemetry, log)

	// 11. HTTP surface
	opsHandler := handler.NewOpsHandler(orchestrator, samplingUC, controller, signals, log)
	gateAPIHandler := handler.NewGateAPIHandler(gateRunner, log)
	websocketHandler := handler.NewWebSocketHandler(hub, cfg.Security.AllowedOrigins, log)

	var rateLimiter *middleware.IPRateLimiter
	if cfg.Security.RateLimitEnabled {
		rateLimiter = middleware.NewIPRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	}

	router := httpInterface.NewRouter(opsHandler, gateAPIHandler, websocketHandler, rateLimiter, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 12. Graceful shutdown
	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	log.Info("Control plane stopped gracefully")
}

// registerRecoveryActions installs the type-specific recovery work the
// orchestrator drives. Types without a sensible in-process remedy stay
// unregistered: their attempts exhaust and the component falls back with one
// degradation step, which is the intended response.
func registerRecoveryActions(orch *resilience.Orchestrator, cfg *config.Config, cache port.Cache, decisionLog port.DecisionLog) {
	orch.RegisterAction(resilience.FailureLogging,
		resilience.RecoveryActionFunc(func(ctx context.Context, f resilience.ActiveFailure) error {
			if decisionLog == nil {
				return nil
			}
			return decisionLog.Flush(ctx)
		}))

	orch.RegisterAction(resilience.FailureDependencyUnavailable,
		resilience.RecoveryActionFunc(func(ctx context.Context, f resilience.ActiveFailure) error {
			if cache == nil {
				return nil
			}
			// Probe write verifies the dependency is answering again.
			return cache.Set(ctx, "ops:probe", time.Now().Unix())
		}))

	orch.RegisterAction(resilience.FailureMemoryExhausted,
		resilience.RecoveryActionFunc(func(ctx context.Context, f resilience.ActiveFailure) error {
			debug.FreeOSMemory()
			return nil
		}))

	orch.RegisterAction(resilience.FailureConfig,
		resilience.RecoveryActionFunc(func(ctx context.Context, f resilience.ActiveFailure) error {
			return cfg.ToStrategy().Validate()
		}))

	orch.RegisterAction(resilience.FailureNetwork,
		resilience.RecoveryActionFunc(func(ctx context.Context, f resilience.ActiveFailure) error {
			// Transient by definition; the backoff schedule itself is the
			// remedy, the attempt just confirms the wait.
			return nil
		}))

	orch.RegisterAction(resilience.FailureUnknown,
		resilience.RecoveryActionFunc(func(ctx context.Context, f resilience.ActiveFailure) error {
			return nil
		}))
}

// buildGateChecks assembles the check set from configuration; checks for
// disabled backends are omitted rather than failing every run.
func buildGateChecks(
	cfg *config.Config,
	controller *sampling.Controller,
	metrics port.MetricsProvider,
	breakers *resilience.Registry,
	decisionLog port.DecisionLog,
) []gate.Check {
	checks := []gate.Check{
		gate.NewConfigCheck(func() error {
			return controller.StrategySnapshot().Validate()
		}),
		gate.NewTrackerQuotaCheck(metrics.Cost),
	}

	if cfg.Gate.TrackerEndpoint != "" {
		checks = append(checks, gate.NewTrackerEndpointCheck(cfg.Gate.TrackerEndpoint, nil))
	}

	if decisionLog != nil {
		checks = append(checks, gate.NewLoggingHealthCheck(breakers, logSinkResource, decisionLog.Buffered, cfg.CloudWatch.LogBufferCap))
	}

	return checks
}

// runControlLoop drives the periodic sampling evaluation and pushes health
// transitions to subscribers.
func runControlLoop(
	ctx context.Context,
	cfg *config.Config,
	samplingUC *usecase.EvaluateSamplingUseCase,
	orch *resilience.Orchestrator,
	hub *wsInfra.Hub,
	publisher port.EventPublisher,
	telemetry port.TelemetrySink,
	log *logger.Logger,
) {
	ticker := time.NewTicker(cfg.Control.EvaluationInterval)
	defer ticker.Stop()

	log.Info("Control loop started", "interval", cfg.Control.EvaluationInterval.String())

	var lastStatus resilience.OverallStatus

	for {
		select {
		case <-ticker.C:
			if _, err := samplingUC.Execute(ctx, ""); err != nil {
				log.Error("Sampling evaluation failed", err)
			}

			health := orch.Health()
			if health.OverallStatus != lastStatus {
				log.Info("System health changed",
					"from", string(lastStatus),
					"to", string(health.OverallStatus),
					"degradation", health.DegradationLevel.String(),
				)
				hub.BroadcastHealth(health)
				if publisher != nil {
					if err := publisher.PublishEvent(ctx, port.SubjectHealthChanged, health); err != nil {
						log.Warn("Failed to publish health change", "error", err.Error())
					}
				}
				lastStatus = health.OverallStatus
			}

			if telemetry != nil {
				gauge := port.Gauge{
					Name:  "DegradationLevel",
					Value: float64(health.DegradationLevel),
					Unit:  "count",
					At:    health.GeneratedAt,
				}
				if err := telemetry.PublishGauges(ctx, []port.Gauge{gauge}); err != nil {
					log.Warn("Failed to export degradation gauge", "error", err.Error())
				}
			}

			orch.ReapResolved()

		case <-ctx.Done():
			log.Info("Control loop stopped")
			return
		}
	}
}
