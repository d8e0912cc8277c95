package collector

import (
	"context"
	"testing"

	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
)

func TestSignalStoreDefaults(t *testing.T) {
	store := NewSignalStore()

	signals, reportedAt := store.Signals()
	if signals.CrashFreeSessionsPct != 100 {
		t.Errorf("crash-free default = %v, want 100", signals.CrashFreeSessionsPct)
	}
	if !reportedAt.IsZero() {
		t.Error("expected zero reportedAt before first update")
	}

	cost := store.Cost()
	if cost.MonthlyUtilization != 0 {
		t.Errorf("cost default = %v, want 0", cost.MonthlyUtilization)
	}
}

func TestSignalStoreUpdates(t *testing.T) {
	store := NewSignalStore()

	store.UpdateSignals(ReportedSignals{
		UIResponseTimeMs:       120,
		EventProcessingDelayMs: 45,
		CrashFreeSessionsPct:   99.1,
	})
	store.UpdateCost(slo.CostUtilization{MonthlyUtilization: 0.7, DailyEventCount: 5000})

	signals, reportedAt := store.Signals()
	if signals.UIResponseTimeMs != 120 || signals.CrashFreeSessionsPct != 99.1 {
		t.Errorf("signals = %+v", signals)
	}
	if reportedAt.IsZero() {
		t.Error("reportedAt not set")
	}

	if cost := store.Cost(); cost.MonthlyUtilization != 0.7 {
		t.Errorf("cost = %+v", cost)
	}
}

func TestRuntimeCollectorMergesSignals(t *testing.T) {
	store := NewSignalStore()
	store.UpdateSignals(ReportedSignals{
		UIResponseTimeMs:       80,
		EventProcessingDelayMs: 30,
		CrashFreeSessionsPct:   99.8,
	})

	c := NewRuntimeCollector(store)

	snapshot, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snapshot.UIResponseTimeMs != 80 {
		t.Errorf("ui response = %v, want the reported value", snapshot.UIResponseTimeMs)
	}
	if snapshot.MemoryUsageMb <= 0 {
		t.Errorf("memory usage = %v, want a host reading", snapshot.MemoryUsageMb)
	}
	if snapshot.CollectedAt.IsZero() {
		t.Error("CollectedAt not set")
	}
}
