package port

import (
	"context"

	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
)

// MetricsProvider supplies the control loop's inputs: the latest performance
// snapshot and the current telemetry cost picture.
type MetricsProvider interface {
	// Snapshot returns the most recent metric snapshot.
	Snapshot(ctx context.Context) (slo.MetricSnapshot, error)

	// Cost returns the current cost utilization.
	Cost(ctx context.Context) (slo.CostUtilization, error)
}
