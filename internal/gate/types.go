package gate

import (
	"context"
	"time"
)

// Severity tags one finding reported by a check.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Priority is the gate bucket a finding lands in.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
)

// Priority maps finding severity to a gate priority: critical blocks, high
// warns, everything else is informational.
func (s Severity) Priority() Priority {
	switch s {
	case SeverityCritical:
		return P0
	case SeverityHigh:
		return P1
	default:
		return P2
	}
}

// Finding is one issue surfaced by a check, carrying a remediation hint.
type Finding struct {
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// CheckResult is the score and findings one check produced.
type CheckResult struct {
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	Findings []Finding `json:"findings,omitempty"`
}

// Check is one independent release-gate probe.
type Check interface {
	Name() string
	Run(ctx context.Context) (CheckResult, error)
}

// Recommendation is the gate verdict.
type Recommendation string

const (
	RecommendProceed Recommendation = "proceed"
	RecommendWarning Recommendation = "warning"
	RecommendBlock   Recommendation = "block"
)

// Result is the aggregated outcome of one gate run. Immutable after
// construction.
type Result struct {
	RunID          string                 `json:"run_id"`
	OverallScore   int                    `json:"overall_score"`
	Grade          string                 `json:"grade"`
	Recommendation Recommendation         `json:"recommendation"`
	Confidence     float64                `json:"confidence"`
	Issues         map[Priority][]Finding `json:"issues_by_priority"`
	Checks         []CheckResult          `json:"checks"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Duration       time.Duration          `json:"duration"`
}

// gradeFor maps the overall score to a letter grade.
func gradeFor(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
