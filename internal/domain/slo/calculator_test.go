package slo

import (
	"math"
	"testing"
)

func perfectSnapshot() MetricSnapshot {
	return MetricSnapshot{
		UIResponseTimeMs:       50,
		EventProcessingDelayMs: 20,
		CrashFreeSessionsPct:   99.9,
		MemoryUsageMb:          256,
		CPUUsagePct:            20,
	}
}

func TestScorePerfectSnapshot(t *testing.T) {
	calc := NewCalculator()

	score := calc.Score(perfectSnapshot(), DefaultTargets())
	if score != 100 {
		t.Errorf("expected score 100 for all-at-target snapshot, got %d", score)
	}
}

func TestScoreRange(t *testing.T) {
	calc := NewCalculator()
	targets := DefaultTargets()

	tests := []struct {
		name     string
		snapshot MetricSnapshot
	}{
		{"all at target", perfectSnapshot()},
		{"all beyond critical", MetricSnapshot{
			UIResponseTimeMs:       5000,
			EventProcessingDelayMs: 5000,
			CrashFreeSessionsPct:   50,
			MemoryUsageMb:          8192,
			CPUUsagePct:            100,
		}},
		{"mixed", MetricSnapshot{
			UIResponseTimeMs:       150,
			EventProcessingDelayMs: 30,
			CrashFreeSessionsPct:   99.2,
			MemoryUsageMb:          900,
			CPUUsagePct:            70,
		}},
		{"zero value snapshot", MetricSnapshot{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calc.Score(tt.snapshot, targets)
			if score < 0 || score > 100 {
				t.Errorf("score %d out of [0,100]", score)
			}
		})
	}
}

func TestScoreNot100WhenAnyMetricPastTarget(t *testing.T) {
	calc := NewCalculator()
	targets := DefaultTargets()

	tests := []struct {
		name      string
		deviation float64
	}{
		// A marginal overshoot must not round back up to 100.
		{"marginal deviation", 0.001},
		{"clear deviation", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := perfectSnapshot()
			snapshot.UIResponseTimeMs = targets.UIResponseTimeMs.Target + tt.deviation

			if score := calc.Score(snapshot, targets); score == 100 {
				t.Errorf("score = 100 although UIResponseTimeMs is %g past its target", tt.deviation)
			}
		})
	}
}

func TestSubScoreSegments(t *testing.T) {
	calc := NewCalculator()
	th := Threshold{Target: 100, Warning: 200, Critical: 500, Direction: LowerIsBetter, CriticalSlope: 0.1}

	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"at target", 100, 100},
		{"better than target", 10, 100},
		{"midway target-warning", 150, 90},
		{"at warning", 200, 80},
		{"midway warning-critical", 350, 65},
		{"at critical", 500, 50},
		{"past critical decays", 600, 40},
		{"floored at zero", 10000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.SubScore(tt.value, th)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SubScore(%g) = %g, want %g", tt.value, got, tt.want)
			}
		})
	}
}

func TestSubScoreHigherIsBetter(t *testing.T) {
	calc := NewCalculator()
	th := Threshold{Target: 99.5, Warning: 99.0, Critical: 98.0, Direction: HigherIsBetter, CriticalSlope: 25}

	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"at target", 99.5, 100},
		{"above target", 99.9, 100},
		{"midway target-warning", 99.25, 90},
		{"at warning", 99.0, 80},
		{"at critical", 98.0, 50},
		{"one point past critical", 97.0, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.SubScore(tt.value, th)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SubScore(%g) = %g, want %g", tt.value, got, tt.want)
			}
		})
	}
}

func TestSubScoreZeroWidthSegments(t *testing.T) {
	calc := NewCalculator()

	// warning == target: any value past target jumps straight to the warning score.
	th := Threshold{Target: 100, Warning: 100, Critical: 200, Direction: LowerIsBetter}
	if got := calc.SubScore(100.5, th); got != scoreAtWarning {
		t.Errorf("zero-width target-warning segment: got %g, want %g", got, scoreAtWarning)
	}

	// critical == warning: a value past warning jumps straight to the critical score.
	th = Threshold{Target: 100, Warning: 200, Critical: 200, Direction: LowerIsBetter}
	if got := calc.SubScore(200.5, th); got != 0 && got != scoreAtCritical {
		// With zero slope the score holds at the critical floor.
		t.Errorf("zero-width warning-critical segment: got %g, want %g", got, scoreAtCritical)
	}
}

func TestThresholdValidate(t *testing.T) {
	tests := []struct {
		name      string
		th        Threshold
		expectErr bool
	}{
		{"valid lower-is-better", Threshold{Target: 1, Warning: 2, Critical: 3, Direction: LowerIsBetter}, false},
		{"valid higher-is-better", Threshold{Target: 3, Warning: 2, Critical: 1, Direction: HigherIsBetter}, false},
		{"inverted lower-is-better", Threshold{Target: 3, Warning: 2, Critical: 1, Direction: LowerIsBetter}, true},
		{"inverted higher-is-better", Threshold{Target: 1, Warning: 2, Critical: 3, Direction: HigherIsBetter}, true},
		{"equal bounds allowed", Threshold{Target: 2, Warning: 2, Critical: 2, Direction: LowerIsBetter}, false},
		{"negative slope", Threshold{Target: 1, Warning: 2, Critical: 3, Direction: LowerIsBetter, CriticalSlope: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if (err != nil) != tt.expectErr {
				t.Errorf("Validate() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestDefaultTargetsValid(t *testing.T) {
	if err := DefaultTargets().Validate(); err != nil {
		t.Fatalf("default targets must validate: %v", err)
	}
}
