package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// Evaluator produces one gate result per invocation. Implemented by the
// run-gate use case; the runner stays decoupled from the fan-out sinks.
type Evaluator interface {
	Evaluate(ctx context.Context) (*Result, error)
}

// Snapshot is the runner's externally visible state.
type Snapshot struct {
	StartedAt  time.Time     `json:"started_at"`
	Interval   time.Duration `json:"interval"`
	LastRunAt  time.Time     `json:"last_run_at"`
	LastError  string        `json:"last_error,omitempty"`
	LastResult *Result       `json:"last_result,omitempty"`
}

// Runner drives periodic gate evaluations and keeps the latest verdict
// available for the HTTP surface.
type Runner struct {
	evaluator Evaluator
	log       *logger.Logger
	interval  time.Duration

	runMu sync.Mutex

	mu         sync.RWMutex
	startedAt  time.Time
	lastRunAt  time.Time
	lastError  string
	lastResult *Result
}

func NewRunner(evaluator Evaluator, log *logger.Logger, interval time.Duration) *Runner {
	return &Runner{
		evaluator: evaluator,
		log:       log,
		interval:  interval,
		startedAt: time.Now(),
	}
}

// Start blocks, evaluating every interval until the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				// RunOnce already stores error state and logs context.
				continue
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single gate evaluation. Concurrent callers are
// serialized; each still gets a fresh result.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	result, err := r.evaluator.Evaluate(ctx)
	runAt := time.Now()

	if err != nil {
		wrappedErr := fmt.Errorf("gate run failed: %w", err)
		r.updateFailure(runAt, wrappedErr)
		r.log.Error("Gate run failed", wrappedErr)
		return nil, wrappedErr
	}

	r.updateSuccess(runAt, result)

	return result, nil
}

// Snapshot returns a consistent copy of the runner state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := Snapshot{
		StartedAt: r.startedAt,
		Interval:  r.interval,
		LastRunAt: r.lastRunAt,
		LastError: r.lastError,
	}

	if r.lastResult != nil {
		copied := *r.lastResult
		copied.Checks = append([]CheckResult(nil), r.lastResult.Checks...)
		snapshot.LastResult = &copied
	}

	return snapshot
}

func (r *Runner) updateFailure(runAt time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastRunAt = runAt
	r.lastError = err.Error()
}

func (r *Runner) updateSuccess(runAt time.Time, result *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastRunAt = runAt
	r.lastError = ""
	r.lastResult = result
}
