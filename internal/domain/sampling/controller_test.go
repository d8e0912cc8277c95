package sampling

import (
	"math"
	"testing"

	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
)

func healthySnapshot() slo.MetricSnapshot {
	return slo.MetricSnapshot{
		UIResponseTimeMs:       50,
		EventProcessingDelayMs: 20,
		CrashFreeSessionsPct:   99.9,
		MemoryUsageMb:          256,
		CPUUsagePct:            20,
	}
}

func degradedSnapshot() slo.MetricSnapshot {
	return slo.MetricSnapshot{
		UIResponseTimeMs:       600,
		EventProcessingDelayMs: 500,
		CrashFreeSessionsPct:   97.0,
		MemoryUsageMb:          2048,
		CPUUsagePct:            95,
	}
}

func newTestController(t *testing.T) *Controller {
	t.Helper()

	c, err := NewController(slo.DefaultTargets(), DefaultStrategy())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

func TestRateWorkedExample(t *testing.T) {
	// score=100, utilization=0.3, production, base=0.1
	// => 0.1 * 0.8 * 1.0 * 1.0 = 0.08
	c := newTestController(t)

	report := c.Report(healthySnapshot(), slo.CostUtilization{MonthlyUtilization: 0.3}, slo.EnvProduction, "")

	if report.SLOScore != 100 {
		t.Fatalf("expected score 100, got %d", report.SLOScore)
	}
	if report.SLOMultiplier != 0.8 || report.CostMultiplier != 1.0 || report.EnvMultiplier != 1.0 {
		t.Fatalf("unexpected multipliers: slo=%g cost=%g env=%g",
			report.SLOMultiplier, report.CostMultiplier, report.EnvMultiplier)
	}
	if math.Abs(report.Rate-0.08) > 1e-9 {
		t.Errorf("expected rate 0.08, got %g", report.Rate)
	}
}

func TestRateCriticalTransactionFloor(t *testing.T) {
	c := newTestController(t)

	rate := c.Rate(healthySnapshot(), slo.CostUtilization{MonthlyUtilization: 0.3}, slo.EnvProduction, "ai.decision")
	if rate != 0.5 {
		t.Errorf("expected critical min rate 0.5, got %g", rate)
	}

	// Substring match counts.
	rate = c.Rate(healthySnapshot(), slo.CostUtilization{MonthlyUtilization: 0.3}, slo.EnvProduction, "guild.battle.resolve")
	if rate != 0.5 {
		t.Errorf("expected substring match to floor rate at 0.5, got %g", rate)
	}
}

func TestCriticalOverrideNeverLowersRate(t *testing.T) {
	c := newTestController(t)

	// Development multiplier x10 pushes the computed rate above the critical
	// floor; the override must not drag it back down.
	report := c.Report(degradedSnapshot(), slo.CostUtilization{MonthlyUtilization: 0.1}, slo.EnvDevelopment, "ai.decision")
	if report.Rate < 0.5 {
		t.Errorf("critical override lowered rate to %g", report.Rate)
	}
	if report.Rate != 1.0 {
		t.Errorf("expected rate clamped to 1.0, got %g", report.Rate)
	}
}

func TestRateBounds(t *testing.T) {
	c := newTestController(t)

	tests := []struct {
		name     string
		snapshot slo.MetricSnapshot
		cost     slo.CostUtilization
		env      slo.Environment
	}{
		{"min pressure", healthySnapshot(), slo.CostUtilization{MonthlyUtilization: 0.99}, slo.EnvProduction},
		{"max pressure", degradedSnapshot(), slo.CostUtilization{MonthlyUtilization: 0.0}, slo.EnvDevelopment},
		{"unknown environment", healthySnapshot(), slo.CostUtilization{MonthlyUtilization: 0.5}, slo.Environment("canary")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate := c.Rate(tt.snapshot, tt.cost, tt.env, "")
			if rate < MinRate || rate > MaxRate {
				t.Errorf("rate %g outside [%g,%g]", rate, MinRate, MaxRate)
			}
		})
	}
}

func TestRateMonotoneInCostUtilization(t *testing.T) {
	c := newTestController(t)

	prev := math.Inf(1)
	for _, utilization := range []float64{0.1, 0.55, 0.75, 0.85, 0.92, 0.99} {
		rate := c.Rate(healthySnapshot(), slo.CostUtilization{MonthlyUtilization: utilization}, slo.EnvProduction, "")
		if rate > prev {
			t.Errorf("rate increased from %g to %g as utilization rose to %g", prev, rate, utilization)
		}
		prev = rate
	}
}

func TestSLOMultiplierMonotoneInScore(t *testing.T) {
	prev := 0.0
	for _, score := range []int{100, 92, 85, 75, 40} {
		mult := sloMultiplier(score)
		if mult < prev {
			t.Errorf("slo multiplier decreased to %g as score degraded to %d", mult, score)
		}
		prev = mult
	}
}

func TestRateIdempotent(t *testing.T) {
	c := newTestController(t)
	cost := slo.CostUtilization{MonthlyUtilization: 0.6}

	first := c.Rate(degradedSnapshot(), cost, slo.EnvStaging, "ui.render")
	second := c.Rate(degradedSnapshot(), cost, slo.EnvStaging, "ui.render")
	if first != second {
		t.Errorf("identical inputs produced %g then %g", first, second)
	}
}

func TestUpdateStrategy(t *testing.T) {
	c := newTestController(t)

	updated := DefaultStrategy()
	updated.BaseSampleRate = 0.2
	if err := c.UpdateStrategy(updated); err != nil {
		t.Fatalf("UpdateStrategy: %v", err)
	}

	report := c.Report(healthySnapshot(), slo.CostUtilization{MonthlyUtilization: 0.3}, slo.EnvProduction, "")
	if report.BaseRate != 0.2 {
		t.Errorf("expected updated base rate 0.2, got %g", report.BaseRate)
	}

	invalid := DefaultStrategy()
	invalid.BaseSampleRate = 5.0
	if err := c.UpdateStrategy(invalid); err == nil {
		t.Error("expected error for out-of-range base rate")
	}

	// Failed update must leave the active strategy untouched.
	if got := c.StrategySnapshot().BaseSampleRate; got != 0.2 {
		t.Errorf("strategy mutated by rejected update: base rate %g", got)
	}
}

func TestStrategyValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Strategy)
		expectErr bool
	}{
		{"default is valid", func(s *Strategy) {}, false},
		{"zero base rate", func(s *Strategy) { s.BaseSampleRate = 0 }, true},
		{"critical min above max", func(s *Strategy) { s.CriticalMinRate = 1.5 }, true},
		{"empty multipliers", func(s *Strategy) { s.EnvironmentMultipliers = nil }, true},
		{"unknown environment", func(s *Strategy) {
			s.EnvironmentMultipliers[slo.Environment("qa")] = 2.0
		}, true},
		{"non-positive multiplier", func(s *Strategy) {
			s.EnvironmentMultipliers[slo.EnvStaging] = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultStrategy()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.expectErr {
				t.Errorf("Validate() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}
