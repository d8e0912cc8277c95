package resilience

import "time"

// DegradationLevel is the coarse rung describing how much normal
// functionality is currently reduced.
type DegradationLevel int

const (
	DegradationNone DegradationLevel = iota
	DegradationMinimal
	DegradationModerate
	DegradationSevere
	DegradationCritical
)

func (d DegradationLevel) String() string {
	switch d {
	case DegradationNone:
		return "none"
	case DegradationMinimal:
		return "minimal"
	case DegradationModerate:
		return "moderate"
	case DegradationSevere:
		return "severe"
	case DegradationCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// next returns the level one step worse, saturating at critical.
func (d DegradationLevel) next() DegradationLevel {
	if d >= DegradationCritical {
		return DegradationCritical
	}
	return d + 1
}

// MarshalText lets the level serialize as its name in JSON payloads.
func (d DegradationLevel) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ComponentStatus is the health of one monitored component.
type ComponentStatus string

const (
	ComponentHealthy  ComponentStatus = "healthy"
	ComponentDegraded ComponentStatus = "degraded"
	ComponentError    ComponentStatus = "error"
)

// OverallStatus summarizes the whole system.
type OverallStatus string

const (
	StatusHealthy  OverallStatus = "healthy"
	StatusDegraded OverallStatus = "degraded"
	StatusCritical OverallStatus = "critical"
	StatusFailed   OverallStatus = "failed"
)

// SystemHealth is the on-demand health snapshot served to the operations
// dashboard. Recomputed from component health and active failures; never
// stored.
type SystemHealth struct {
	OverallStatus    OverallStatus              `json:"overall_status"`
	DegradationLevel DegradationLevel           `json:"degradation_level"`
	Components       map[string]ComponentStatus `json:"components"`
	ActiveFailures   []ActiveFailure            `json:"active_failures"`
	GeneratedAt      time.Time                  `json:"generated_at"`
}

// overallFor derives the system status from the degradation level and the
// set of unresolved failures.
func overallFor(level DegradationLevel, unresolved int) OverallStatus {
	switch {
	case level >= DegradationCritical:
		return StatusFailed
	case level >= DegradationSevere:
		return StatusCritical
	case level > DegradationNone || unresolved > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
