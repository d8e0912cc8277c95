package slo

import "math"

// Segment floor scores of the piecewise-linear compliance curve.
const (
	scoreAtTarget   = 100.0
	scoreAtWarning  = 80.0
	scoreAtCritical = 50.0
)

// Fixed weights per sub-metric. They sum to 1.0.
const (
	weightUIResponse = 0.3
	weightEventDelay = 0.2
	weightCrashFree  = 0.3
	weightMemory     = 0.1
	weightCPU        = 0.1
)

// Calculator converts a metric snapshot into a single 0-100 compliance score.
// It is stateless and safe for concurrent use.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Score combines the five weighted sub-scores and rounds to the nearest integer.
// The result is always in [0,100] and equals 100 only when every sub-metric is
// at or better than its target.
func (c *Calculator) Score(m MetricSnapshot, t Targets) int {
	ui := c.SubScore(m.UIResponseTimeMs, t.UIResponseTimeMs)
	event := c.SubScore(m.EventProcessingDelayMs, t.EventProcessingDelayMs)
	crash := c.SubScore(m.CrashFreeSessionsPct, t.CrashFreeSessionsPct)
	memory := c.SubScore(m.MemoryUsageMb, t.MemoryUsageMb)
	cpu := c.SubScore(m.CPUUsagePct, t.CPUUsagePct)

	weighted := ui*weightUIResponse + event*weightEventDelay + crash*weightCrashFree +
		memory*weightMemory + cpu*weightCPU

	score := int(math.Round(weighted))

	// Rounding must not produce a perfect score while any metric sits past
	// its target, however marginally.
	if score == 100 && (ui < scoreAtTarget || event < scoreAtTarget ||
		crash < scoreAtTarget || memory < scoreAtTarget || cpu < scoreAtTarget) {
		score = 99
	}

	return score
}

// SubScore evaluates one metric against its threshold using three-segment
// piecewise-linear interpolation. A zero-width segment is an immediate jump
// to the next segment's score.
func (c *Calculator) SubScore(value float64, th Threshold) float64 {
	// Distance "into the bad direction" past each bound, normalized so the
	// same arithmetic serves both directions.
	var past func(bound float64) float64
	if th.Direction == HigherIsBetter {
		past = func(bound float64) float64 { return bound - value }
	} else {
		past = func(bound float64) float64 { return value - bound }
	}

	if past(th.Target) <= 0 {
		return scoreAtTarget
	}

	if past(th.Warning) <= 0 {
		width := math.Abs(th.Warning - th.Target)
		if width == 0 {
			return scoreAtWarning
		}
		return scoreAtTarget - (scoreAtTarget-scoreAtWarning)*past(th.Target)/width
	}

	if past(th.Critical) <= 0 {
		width := math.Abs(th.Critical - th.Warning)
		if width == 0 {
			return scoreAtCritical
		}
		return scoreAtWarning - (scoreAtWarning-scoreAtCritical)*past(th.Warning)/width
	}

	score := scoreAtCritical - th.CriticalSlope*past(th.Critical)
	if score < 0 {
		return 0
	}
	return score
}
