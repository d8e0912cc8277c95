package slo

import (
	"errors"
	"fmt"
)

// Direction indicates which way a metric improves.
type Direction int

const (
	LowerIsBetter Direction = iota
	HigherIsBetter
)

// Threshold holds the target/warning/critical bounds for one metric.
// For LowerIsBetter metrics the bounds must be non-decreasing
// (target <= warning <= critical); for HigherIsBetter the mirror holds.
type Threshold struct {
	Target    float64
	Warning   float64
	Critical  float64
	Direction Direction

	// CriticalSlope is the score decay per unit past the critical bound.
	// Zero means the sub-score stays at the critical floor.
	CriticalSlope float64
}

// Validate rejects malformed bounds at construction time.
func (t Threshold) Validate() error {
	switch t.Direction {
	case LowerIsBetter:
		if t.Target > t.Warning || t.Warning > t.Critical {
			return fmt.Errorf("thresholds must satisfy target <= warning <= critical, got %g/%g/%g",
				t.Target, t.Warning, t.Critical)
		}
	case HigherIsBetter:
		if t.Target < t.Warning || t.Warning < t.Critical {
			return fmt.Errorf("thresholds must satisfy target >= warning >= critical, got %g/%g/%g",
				t.Target, t.Warning, t.Critical)
		}
	default:
		return errors.New("unknown threshold direction")
	}

	if t.CriticalSlope < 0 {
		return errors.New("critical slope cannot be negative")
	}

	return nil
}

// Targets is the full set of SLO thresholds the score is computed against.
// Loaded once from configuration and read-only thereafter.
type Targets struct {
	UIResponseTimeMs       Threshold
	EventProcessingDelayMs Threshold
	CrashFreeSessionsPct   Threshold
	MemoryUsageMb          Threshold
	CPUUsagePct            Threshold
}

// DefaultTargets returns the built-in SLO targets for the client runtime.
func DefaultTargets() Targets {
	return Targets{
		UIResponseTimeMs:       Threshold{Target: 100, Warning: 200, Critical: 500, Direction: LowerIsBetter, CriticalSlope: 0.1},
		EventProcessingDelayMs: Threshold{Target: 50, Warning: 150, Critical: 400, Direction: LowerIsBetter, CriticalSlope: 0.1},
		CrashFreeSessionsPct:   Threshold{Target: 99.5, Warning: 99.0, Critical: 98.0, Direction: HigherIsBetter, CriticalSlope: 25},
		MemoryUsageMb:          Threshold{Target: 512, Warning: 768, Critical: 1024, Direction: LowerIsBetter, CriticalSlope: 0.05},
		CPUUsagePct:            Threshold{Target: 40, Warning: 60, Critical: 85, Direction: LowerIsBetter, CriticalSlope: 1},
	}
}

// Validate checks every threshold; the first malformed one is reported.
func (t Targets) Validate() error {
	checks := []struct {
		name string
		th   Threshold
	}{
		{"ui_response_time_ms", t.UIResponseTimeMs},
		{"event_processing_delay_ms", t.EventProcessingDelayMs},
		{"crash_free_sessions_pct", t.CrashFreeSessionsPct},
		{"memory_usage_mb", t.MemoryUsageMb},
		{"cpu_usage_pct", t.CPUUsagePct},
	}

	for _, c := range checks {
		if err := c.th.Validate(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}

	return nil
}
