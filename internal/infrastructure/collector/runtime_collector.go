package collector

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
)

// ReportedSignals carries the client-reported half of a metric snapshot:
// interaction latency, pipeline delay and crash-free rate cannot be measured
// from this process and arrive over the signals endpoint.
type ReportedSignals struct {
	UIResponseTimeMs       float64 `json:"ui_response_time_ms"`
	EventProcessingDelayMs float64 `json:"event_processing_delay_ms"`
	CrashFreeSessionsPct   float64 `json:"crash_free_sessions_pct"`
}

// SignalStore holds the most recent reported signals and cost figures.
// Writers are HTTP handlers, readers are the control loop; both sides only
// ever touch whole values under the lock.
type SignalStore struct {
	mu         sync.RWMutex
	signals    ReportedSignals
	cost       slo.CostUtilization
	reportedAt time.Time
}

// NewSignalStore starts from an optimistic baseline: perfect crash-free rate
// and zero latency, so a fresh process samples at the healthy rate until real
// reports arrive.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		signals: ReportedSignals{CrashFreeSessionsPct: 100},
	}
}

// UpdateSignals replaces the reported signals.
func (s *SignalStore) UpdateSignals(signals ReportedSignals) {
	s.mu.Lock()
	s.signals = signals
	s.reportedAt = time.Now()
	s.mu.Unlock()
}

// UpdateCost replaces the cost utilization figures.
func (s *SignalStore) UpdateCost(cost slo.CostUtilization) {
	s.mu.Lock()
	s.cost = cost
	s.mu.Unlock()
}

// Signals returns the current reported signals and when they arrived.
func (s *SignalStore) Signals() (ReportedSignals, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signals, s.reportedAt
}

// Cost returns the current cost utilization.
func (s *SignalStore) Cost() slo.CostUtilization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cost
}

// RuntimeCollector assembles metric snapshots from two sources: host CPU and
// memory readings taken in-process, and the client-reported signals from the
// store. Implements port.MetricsProvider.
type RuntimeCollector struct {
	signals *SignalStore
}

// NewRuntimeCollector creates a collector over the given signal store.
func NewRuntimeCollector(signals *SignalStore) *RuntimeCollector {
	return &RuntimeCollector{signals: signals}
}

// Snapshot combines host readings with reported signals.
func (c *RuntimeCollector) Snapshot(ctx context.Context) (slo.MetricSnapshot, error) {
	signals, _ := c.signals.Signals()

	snapshot := slo.MetricSnapshot{
		UIResponseTimeMs:       signals.UIResponseTimeMs,
		EventProcessingDelayMs: signals.EventProcessingDelayMs,
		CrashFreeSessionsPct:   signals.CrashFreeSessionsPct,
		CollectedAt:            time.Now(),
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return slo.MetricSnapshot{}, err
	}
	snapshot.MemoryUsageMb = float64(vm.Used) / (1024 * 1024)

	// Instant reading; a sampling interval here would stall the control loop.
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return slo.MetricSnapshot{}, err
	}
	if len(percentages) > 0 {
		snapshot.CPUUsagePct = percentages[0]
	}

	return snapshot, nil
}

// Cost returns the reported cost utilization.
func (c *RuntimeCollector) Cost(ctx context.Context) (slo.CostUtilization, error) {
	return c.signals.Cost(), nil
}
