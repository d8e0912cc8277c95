package usecase

import (
	"context"

	"github.com/skyoxu/myguild-sub003/internal/application/port"
	"github.com/skyoxu/myguild-sub003/internal/gate"
	"github.com/skyoxu/myguild-sub003/internal/resilience"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// RunGateUseCase executes one release-gate evaluation and distributes the
// verdict: cache for dashboard reads, broker for downstream automation,
// websocket for live clients and the decision log for the audit trail.
//
// It implements gate.Evaluator so the periodic runner can drive it. Like the
// sampling cycle, fan-out is best-effort: the verdict is computed from the
// checks alone and is returned even when every distribution target is down.
type RunGateUseCase struct {
	engine       *gate.Engine
	cache        port.Cache
	publisher    port.EventPublisher
	notifier     port.Notifier
	telemetry    port.TelemetrySink
	decisionLog  port.DecisionLog
	orchestrator *resilience.Orchestrator
	logger       *logger.Logger
}

// NewRunGateUseCase creates a new use case. Every dependency except the
// engine and logger may be nil when the corresponding backend is disabled.
func NewRunGateUseCase(
	engine *gate.Engine,
	cache port.Cache,
	publisher port.EventPublisher,
	notifier port.Notifier,
	telemetry port.TelemetrySink,
	decisionLog port.DecisionLog,
	orchestrator *resilience.Orchestrator,
	logger *logger.Logger,
) *RunGateUseCase {
	return &RunGateUseCase{
		engine:       engine,
		cache:        cache,
		publisher:    publisher,
		notifier:     notifier,
		telemetry:    telemetry,
		decisionLog:  decisionLog,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Evaluate runs all checks and fans the verdict out.
func (uc *RunGateUseCase) Evaluate(ctx context.Context) (*gate.Result, error) {
	// 1. Run the checks. The engine absorbs per-check failures into the
	// verdict, so this never errors.
	result := uc.engine.Run(ctx)

	// 2. Distribute, best-effort.
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, port.CacheKeyGateResult, result); err != nil {
			uc.logger.Warn("Failed to cache gate result", "error", err.Error())
			uc.reportFailure(ctx, resilience.FailureDependencyUnavailable, "redis-cache", err)
		}
	}

	if uc.publisher != nil {
		if err := uc.publisher.PublishEvent(ctx, port.SubjectGateResult, result); err != nil {
			uc.logger.Warn("Failed to publish gate result", "error", err.Error())
			uc.reportFailure(ctx, resilience.FailureNetwork, "nats-broker", err)
		}
	}

	if uc.notifier != nil {
		uc.notifier.BroadcastGate(result)
	}

	if uc.telemetry != nil {
		gauge := port.Gauge{Name: "GateScore", Value: float64(result.OverallScore), Unit: "None", At: result.GeneratedAt}
		if err := uc.telemetry.PublishGauges(ctx, []port.Gauge{gauge}); err != nil {
			uc.logger.Warn("Failed to export gate score gauge", "error", err.Error())
			uc.reportFailure(ctx, resilience.FailureDependencyUnavailable, "cloudwatch-metrics", err)
		}
	}

	// 3. Append to the audit trail.
	uc.appendAudit(ctx, result)

	return result, nil
}

func (uc *RunGateUseCase) appendAudit(ctx context.Context, result *gate.Result) {
	if uc.decisionLog == nil {
		return
	}

	entry := port.LogEntry{
		Timestamp: result.GeneratedAt,
		Level:     "info",
		Message:   "gate verdict",
		Fields: map[string]interface{}{
			"run_id":         result.RunID,
			"score":          result.OverallScore,
			"grade":          result.Grade,
			"recommendation": string(result.Recommendation),
			"confidence":     result.Confidence,
			"p0_issues":      len(result.Issues[gate.P0]),
			"p1_issues":      len(result.Issues[gate.P1]),
		},
	}

	if err := uc.decisionLog.Publish(ctx, entry); err != nil {
		uc.logger.Warn("Failed to append gate verdict to decision log", "error", err.Error())
		uc.reportFailure(ctx, resilience.FailureLogging, "cloudwatch-logs", err)
	}
}

func (uc *RunGateUseCase) reportFailure(ctx context.Context, ft resilience.FailureType, component string, cause error) {
	if uc.orchestrator == nil {
		return
	}

	if _, err := uc.orchestrator.ReportFailure(ctx, ft, component, cause.Error()); err != nil {
		uc.logger.Error("Failed to report failure", err, "component", component)
	}
}
