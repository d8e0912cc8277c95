package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// SweepConfig controls the proactive pressure sweep.
type SweepConfig struct {
	// Interval between sweeps. Default 30s.
	Interval time.Duration

	// MemoryPressurePct is the used-memory percentage above which the sweep
	// originates a memory_exhausted failure. Default 90.
	MemoryPressurePct float64

	// DiskPressurePct is the used-disk percentage above which the sweep
	// originates a storage_full failure. Default 95.
	DiskPressurePct float64

	// Path is the mount point checked for storage pressure. Default "/".
	Path string
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.MemoryPressurePct <= 0 {
		c.MemoryPressurePct = 90
	}
	if c.DiskPressurePct <= 0 {
		c.DiskPressurePct = 95
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

// pressureReader abstracts gopsutil so tests can feed deterministic readings.
type pressureReader interface {
	MemoryUsedPct(ctx context.Context) (float64, error)
	DiskUsedPct(ctx context.Context, path string) (float64, error)
}

type systemPressureReader struct{}

func (systemPressureReader) MemoryUsedPct(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (systemPressureReader) DiskUsedPct(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// Sweep periodically re-evaluates memory and storage pressure so the
// orchestrator learns about resource exhaustion proactively, not only when a
// dependent call fails.
type Sweep struct {
	cfg    SweepConfig
	orch   *Orchestrator
	log    *logger.Logger
	reader pressureReader
}

// NewSweep creates a sweep bound to the orchestrator.
func NewSweep(cfg SweepConfig, orch *Orchestrator, log *logger.Logger) *Sweep {
	return &Sweep{
		cfg:    cfg.withDefaults(),
		orch:   orch,
		log:    log,
		reader: systemPressureReader{},
	}
}

// Start blocks, sweeping every Interval until the context is cancelled.
// Run it in its own goroutine.
func (s *Sweep) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("Health sweep started", "interval", s.cfg.Interval.String())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			s.log.Info("Health sweep stopped")
			return
		}
	}
}

// RunOnce performs a single pressure evaluation.
func (s *Sweep) RunOnce(ctx context.Context) {
	if memPct, err := s.reader.MemoryUsedPct(ctx); err != nil {
		s.log.Warn("Memory pressure read failed", "error", err.Error())
	} else if memPct >= s.cfg.MemoryPressurePct {
		s.report(ctx, FailureMemoryExhausted, "runtime-memory", memPct)
	}

	if diskPct, err := s.reader.DiskUsedPct(ctx, s.cfg.Path); err != nil {
		s.log.Warn("Disk pressure read failed", "error", err.Error())
	} else if diskPct >= s.cfg.DiskPressurePct {
		s.report(ctx, FailureStorageFull, "local-storage", diskPct)
	}
}

func (s *Sweep) report(ctx context.Context, ft FailureType, component string, usedPct float64) {
	detail := fmt.Sprintf("%s pressure: %.1f%% used", component, usedPct)
	if _, err := s.orch.ReportFailure(ctx, ft, component, detail); err != nil {
		s.log.Error("Sweep failure report rejected", err, "type", string(ft))
	}
}
