package usecase

import (
	"context"
	"fmt"

	"github.com/skyoxu/myguild-sub003/internal/application/port"
	"github.com/skyoxu/myguild-sub003/internal/domain/sampling"
	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
	"github.com/skyoxu/myguild-sub003/internal/resilience"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// EvaluateSamplingUseCase drives one sampling-control cycle: collect inputs,
// compute the rate decision, then fan the decision out to cache, broker and
// the metrics backend.
//
// Fan-out targets are best-effort. A broker or cache outage degrades the
// cycle (and is reported to the resilience orchestrator) but never fails it;
// the decision itself is always returned to the caller.
type EvaluateSamplingUseCase struct {
	provider     port.MetricsProvider
	controller   *sampling.Controller
	cache        port.Cache
	publisher    port.EventPublisher
	telemetry    port.TelemetrySink
	orchestrator *resilience.Orchestrator
	env          slo.Environment
	logger       *logger.Logger
}

// NewEvaluateSamplingUseCase creates a new use case. cache, publisher and
// telemetry may be nil when the corresponding backend is disabled.
func NewEvaluateSamplingUseCase(
	provider port.MetricsProvider,
	controller *sampling.Controller,
	cache port.Cache,
	publisher port.EventPublisher,
	telemetry port.TelemetrySink,
	orchestrator *resilience.Orchestrator,
	env slo.Environment,
	logger *logger.Logger,
) *EvaluateSamplingUseCase {
	return &EvaluateSamplingUseCase{
		provider:     provider,
		controller:   controller,
		cache:        cache,
		publisher:    publisher,
		telemetry:    telemetry,
		orchestrator: orchestrator,
		env:          env,
		logger:       logger,
	}
}

// Execute computes the sampling decision for one transaction (empty name
// means the default, non-critical path) and distributes it.
func (uc *EvaluateSamplingUseCase) Execute(ctx context.Context, transactionName string) (sampling.Decision, error) {
	// 1. Collect the inputs. Without a metric snapshot there is nothing to
	// decide on, so this is the one hard failure of the cycle.
	snapshot, err := uc.provider.Snapshot(ctx)
	if err != nil {
		uc.logger.Error("Failed to collect metric snapshot", err)
		return sampling.Decision{}, fmt.Errorf("collect metric snapshot: %w", err)
	}

	cost, err := uc.provider.Cost(ctx)
	if err != nil {
		// Missing cost data must not stall sampling control: fall back to an
		// empty utilization, which maps to the neutral x1.0 multiplier.
		uc.logger.Warn("Cost data unavailable, assuming zero utilization", "error", err.Error())
		cost = slo.CostUtilization{}
	}

	// 2. Compute the decision.
	decision := uc.controller.Report(snapshot, cost, uc.env, transactionName)

	uc.logger.Debug("Sampling decision computed",
		"rate", decision.Rate,
		"slo_score", decision.SLOScore,
		"critical_override", decision.CriticalOverride,
	)

	// 3. Fan out, best-effort.
	uc.cacheDecision(ctx, decision)
	uc.publishDecision(ctx, decision)
	uc.exportGauges(ctx, decision)

	return decision, nil
}

func (uc *EvaluateSamplingUseCase) cacheDecision(ctx context.Context, decision sampling.Decision) {
	if uc.cache == nil {
		return
	}

	if err := uc.cache.Set(ctx, port.CacheKeySamplingDecision, decision); err != nil {
		uc.logger.Warn("Failed to cache sampling decision", "error", err.Error())
		uc.reportFailure(ctx, resilience.FailureDependencyUnavailable, "redis-cache", err)
	}
}

func (uc *EvaluateSamplingUseCase) publishDecision(ctx context.Context, decision sampling.Decision) {
	if uc.publisher == nil {
		return
	}

	if err := uc.publisher.PublishEvent(ctx, port.SubjectSamplingDecision, decision); err != nil {
		uc.logger.Warn("Failed to publish sampling decision", "error", err.Error())
		uc.reportFailure(ctx, resilience.FailureNetwork, "nats-broker", err)
	}
}

func (uc *EvaluateSamplingUseCase) exportGauges(ctx context.Context, decision sampling.Decision) {
	if uc.telemetry == nil {
		return
	}

	gauges := []port.Gauge{
		{Name: "SLOScore", Value: float64(decision.SLOScore), Unit: "None", At: decision.DecidedAt},
		{Name: "SamplingRate", Value: decision.Rate, Unit: "None", At: decision.DecidedAt},
		{Name: "CostMultiplier", Value: decision.CostMultiplier, Unit: "None", At: decision.DecidedAt},
	}
	if err := uc.telemetry.PublishGauges(ctx, gauges); err != nil {
		uc.logger.Warn("Failed to export sampling gauges", "error", err.Error())
		uc.reportFailure(ctx, resilience.FailureDependencyUnavailable, "cloudwatch-metrics", err)
	}
}

func (uc *EvaluateSamplingUseCase) reportFailure(ctx context.Context, ft resilience.FailureType, component string, cause error) {
	if uc.orchestrator == nil {
		return
	}

	if _, err := uc.orchestrator.ReportFailure(ctx, ft, component, cause.Error()); err != nil {
		uc.logger.Error("Failed to report failure", err, "component", component)
	}
}
