package port

import (
	"context"
)

// EventPublisher defines the interface for publishing control-plane events
// to a message broker.
type EventPublisher interface {
	// PublishEvent publishes an event to the specified subject.
	PublishEvent(ctx context.Context, subject string, event interface{}) error

	// Close closes the connection to the message broker.
	Close() error
}

// Subjects the control plane publishes on.
const (
	SubjectSamplingDecision = "ops.sampling.decision"
	SubjectHealthChanged    = "ops.health.changed"
	SubjectGateResult       = "ops.gate.result"
)
