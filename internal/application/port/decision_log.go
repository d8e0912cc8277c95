package port

import (
	"context"
	"time"
)

// LogEntry is one structured decision-log record.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// DecisionLog records gate verdicts and sampling decisions in an external
// log sink. Implementations buffer locally; the sink is a guarded resource
// whose failures flow through the resilience orchestrator.
type DecisionLog interface {
	// Publish buffers one entry for batched delivery.
	Publish(ctx context.Context, entry LogEntry) error

	// Buffered returns the current local buffer depth.
	Buffered() int

	// Flush forces delivery of buffered entries.
	Flush(ctx context.Context) error

	// Close stops background flushing and attempts a final delivery.
	Close(ctx context.Context) error
}
