package sampling

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
)

// Decision is the explainable output of a sampling-rate computation.
// Consumed by the telemetry emitter to set its per-event sampling probability.
type Decision struct {
	Rate             float64         `json:"rate"`
	SLOScore         int             `json:"slo_score"`
	BaseRate         float64         `json:"base_rate"`
	SLOMultiplier    float64         `json:"slo_multiplier"`
	CostMultiplier   float64         `json:"cost_multiplier"`
	EnvMultiplier    float64         `json:"env_multiplier"`
	Environment      slo.Environment `json:"environment"`
	TransactionName  string          `json:"transaction_name,omitempty"`
	CriticalOverride bool            `json:"critical_override"`
	Rationale        string          `json:"rationale"`
	DecidedAt        time.Time       `json:"decided_at"`
}

// Controller combines the SLO score, cost utilization, environment and the
// critical-transaction allowlist into a bounded sampling rate.
//
// Rate and Report are pure given their inputs and the active strategy;
// UpdateStrategy is the only mutation and swaps the whole strategy at once,
// so concurrent queries always see a consistent configuration.
type Controller struct {
	calc    *slo.Calculator
	targets slo.Targets

	mu       sync.RWMutex
	strategy Strategy
}

// NewController validates the targets and strategy and fails fast on either.
func NewController(targets slo.Targets, strategy Strategy) (*Controller, error) {
	if err := targets.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SLO targets: %w", err)
	}
	if err := strategy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampling strategy: %w", err)
	}

	return &Controller{
		calc:     slo.NewCalculator(),
		targets:  targets,
		strategy: strategy.clone(),
	}, nil
}

// UpdateStrategy atomically replaces the active strategy after validation.
func (c *Controller) UpdateStrategy(s Strategy) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid sampling strategy: %w", err)
	}

	c.mu.Lock()
	c.strategy = s.clone()
	c.mu.Unlock()

	return nil
}

// StrategySnapshot returns a copy of the active strategy.
func (c *Controller) StrategySnapshot() Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strategy.clone()
}

// Rate computes the sampling rate for the given inputs, clamped to [0.01,1.0].
func (c *Controller) Rate(m slo.MetricSnapshot, cost slo.CostUtilization, env slo.Environment, transactionName string) float64 {
	return c.Report(m, cost, env, transactionName).Rate
}

// Report computes the sampling rate and exposes every intermediate multiplier
// together with a human-readable rationale.
func (c *Controller) Report(m slo.MetricSnapshot, cost slo.CostUtilization, env slo.Environment, transactionName string) Decision {
	c.mu.RLock()
	strategy := c.strategy
	c.mu.RUnlock()

	score := c.calc.Score(m, c.targets)
	sloMult := sloMultiplier(score)
	costMult := costMultiplier(cost.MonthlyUtilization)
	envMult := envMultiplier(strategy, env)

	rate := strategy.BaseSampleRate * sloMult * costMult * envMult

	critical := transactionName != "" && matchesCritical(strategy.CriticalTransactions, transactionName)
	if critical && rate < strategy.CriticalMinRate {
		rate = strategy.CriticalMinRate
	}

	rate = clamp(rate)

	rationale := fmt.Sprintf("slo score %d -> x%.2f, cost %.0f%% of budget -> x%.2f, env %s -> x%.2f",
		score, sloMult, cost.MonthlyUtilization*100, costMult, env, envMult)
	if critical {
		rationale += fmt.Sprintf("; critical transaction %q floors rate at %.2f", transactionName, strategy.CriticalMinRate)
	}

	return Decision{
		Rate:             rate,
		SLOScore:         score,
		BaseRate:         strategy.BaseSampleRate,
		SLOMultiplier:    sloMult,
		CostMultiplier:   costMult,
		EnvMultiplier:    envMult,
		Environment:      env,
		TransactionName:  transactionName,
		CriticalOverride: critical,
		Rationale:        rationale,
		DecidedAt:        time.Now(),
	}
}

// sloMultiplier oversamples while the SLO is degrading: the worse the score,
// the more telemetry is kept for diagnosis.
func sloMultiplier(score int) float64 {
	switch {
	case score >= 95:
		return 0.8
	case score >= 90:
		return 1.0
	case score >= 80:
		return 1.5
	case score >= 70:
		return 2.0
	default:
		return 3.0
	}
}

// costMultiplier throttles sampling as spend approaches the monthly budget.
func costMultiplier(utilization float64) float64 {
	switch {
	case utilization < 0.5:
		return 1.0
	case utilization < 0.7:
		return 0.8
	case utilization < 0.8:
		return 0.6
	case utilization < 0.9:
		return 0.4
	case utilization < 0.95:
		return 0.2
	default:
		return 0.1
	}
}

func envMultiplier(s Strategy, env slo.Environment) float64 {
	if mult, ok := s.EnvironmentMultipliers[env]; ok {
		return mult
	}
	// Unknown environments sample like production rather than failing the call.
	return 1.0
}

func matchesCritical(allowlist []string, transactionName string) bool {
	for _, entry := range allowlist {
		if entry != "" && strings.Contains(transactionName, entry) {
			return true
		}
	}
	return false
}

func clamp(rate float64) float64 {
	if rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}
