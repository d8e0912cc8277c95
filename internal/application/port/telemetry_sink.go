package port

import (
	"context"
	"time"
)

// Gauge is one control-plane measurement exported to the metrics backend.
type Gauge struct {
	Name       string
	Value      float64
	Unit       string
	At         time.Time
	Dimensions map[string]string
}

// TelemetrySink exports control-plane gauges (slo score, sampling rate,
// degradation level, gate score) to an external metrics backend.
type TelemetrySink interface {
	// PublishGauges buffers gauges for batched export.
	PublishGauges(ctx context.Context, gauges []Gauge) error

	// Flush forces immediate export of buffered gauges.
	Flush(ctx context.Context) error

	// Close stops background flushing and drains the buffer.
	Close(ctx context.Context) error
}
