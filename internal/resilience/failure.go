package resilience

import (
	"errors"
	"time"
)

// ErrUnknownFailureType indicates an integration bug: a failure type outside
// the taxonomy was reported. This is the only error class that propagates out
// of the orchestrator.
var ErrUnknownFailureType = errors.New("unknown failure type")

// FailureType classifies an operational fault by its origin.
type FailureType string

const (
	FailureDependencyUnavailable FailureType = "dependency_unavailable"
	FailureLogging               FailureType = "logging_failure"
	FailureNetwork               FailureType = "network_error"
	FailureStorageFull           FailureType = "storage_full"
	FailureConfig                FailureType = "config_error"
	FailureMemoryExhausted       FailureType = "memory_exhausted"
	FailurePermissionDenied      FailureType = "permission_denied"
	FailureUnknown               FailureType = "unknown_error"
)

// Valid reports whether the failure type belongs to the taxonomy.
func (ft FailureType) Valid() bool {
	switch ft {
	case FailureDependencyUnavailable, FailureLogging, FailureNetwork,
		FailureStorageFull, FailureConfig, FailureMemoryExhausted,
		FailurePermissionDenied, FailureUnknown:
		return true
	default:
		return false
	}
}

// FailureSeverity ranks how much a failure threatens normal operation.
type FailureSeverity string

const (
	SeverityLow      FailureSeverity = "low"
	SeverityMedium   FailureSeverity = "medium"
	SeverityHigh     FailureSeverity = "high"
	SeverityCritical FailureSeverity = "critical"
)

// severityFor assigns a default severity per failure type.
func severityFor(ft FailureType) FailureSeverity {
	switch ft {
	case FailureMemoryExhausted, FailureStorageFull:
		return SeverityCritical
	case FailureDependencyUnavailable, FailureNetwork, FailureConfig, FailurePermissionDenied:
		return SeverityHigh
	case FailureLogging:
		return SeverityMedium
	default:
		return SeverityMedium
	}
}

// RecoveryStrategy names the configured response to a failure type.
type RecoveryStrategy string

const (
	RecoverImmediateRetry      RecoveryStrategy = "immediate_retry"
	RecoverExponentialBackoff  RecoveryStrategy = "exponential_backoff"
	RecoverCircuitBreaker      RecoveryStrategy = "circuit_breaker"
	RecoverGracefulDegradation RecoveryStrategy = "graceful_degradation"
	RecoverFailover            RecoveryStrategy = "failover"
	RecoverCacheFallback       RecoveryStrategy = "cache_fallback"
	RecoverLocalStorage        RecoveryStrategy = "local_storage"
)

// defaultStrategyTable maps every failure type to its recovery strategy.
func defaultStrategyTable() map[FailureType]RecoveryStrategy {
	return map[FailureType]RecoveryStrategy{
		FailureDependencyUnavailable: RecoverCircuitBreaker,
		FailureLogging:               RecoverLocalStorage,
		FailureNetwork:               RecoverExponentialBackoff,
		FailureStorageFull:           RecoverGracefulDegradation,
		FailureConfig:                RecoverCacheFallback,
		FailureMemoryExhausted:       RecoverGracefulDegradation,
		FailurePermissionDenied:      RecoverFailover,
		FailureUnknown:               RecoverImmediateRetry,
	}
}

// ActiveFailure tracks one reported failure through its recovery attempts.
// Created on report, mutated only by the owning orchestrator, removed once
// resolved and reaped.
type ActiveFailure struct {
	ID           string           `json:"id"`
	Type         FailureType      `json:"type"`
	Severity     FailureSeverity  `json:"severity"`
	Component    string           `json:"component"`
	Detail       string           `json:"detail,omitempty"`
	Strategy     RecoveryStrategy `json:"strategy"`
	StartedAt    time.Time        `json:"started_at"`
	AttemptCount int              `json:"attempt_count"`
	Resolved     bool             `json:"resolved"`
	ResolvedAt   time.Time        `json:"resolved_at,omitzero"`
}
