package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

// RecoveryAction performs the type-specific recovery work for a failure:
// flushing a local buffer, reloading configuration, switching endpoints.
// Injected so tests control success/failure sequencing deterministically.
type RecoveryAction interface {
	Recover(ctx context.Context, f ActiveFailure) error
}

// RecoveryActionFunc adapts a plain function to RecoveryAction.
type RecoveryActionFunc func(ctx context.Context, f ActiveFailure) error

func (fn RecoveryActionFunc) Recover(ctx context.Context, f ActiveFailure) error {
	return fn(ctx, f)
}

// OrchestratorConfig bounds recovery attempts.
type OrchestratorConfig struct {
	// MaxRetries is the retry budget per failure instance. Default 3.
	MaxRetries int

	// RetryBaseDelay seeds the retry delay. Default 500ms.
	RetryBaseDelay time.Duration

	// AttemptTimeout bounds a single recovery attempt. Default 5s.
	AttemptTimeout time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	return c
}

// Orchestrator turns raw failure reports into bounded recovery attempts and
// an updated system health picture.
//
// All mutable shared state (active failures, component health, degradation
// level) lives behind one mutex; the public methods are safe to call
// concurrently. Recoverable failures never propagate to callers as errors —
// the only hard error is an unknown failure type, which indicates an
// integration bug.
type Orchestrator struct {
	cfg        OrchestratorConfig
	log        *logger.Logger
	breakers   *Registry
	strategies map[FailureType]RecoveryStrategy
	clock      func() time.Time

	mu          sync.Mutex
	actions     map[FailureType]RecoveryAction
	failures    map[string]*ActiveFailure
	components  map[string]ComponentStatus
	fallbacks   map[string]bool
	degradation DegradationLevel
	timers      map[string]*time.Timer
	closed      bool
}

// NewOrchestrator wires the orchestrator to a breaker registry.
func NewOrchestrator(cfg OrchestratorConfig, breakers *Registry, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		log:        log,
		breakers:   breakers,
		strategies: defaultStrategyTable(),
		clock:      time.Now,
		actions:    make(map[FailureType]RecoveryAction),
		failures:   make(map[string]*ActiveFailure),
		components: make(map[string]ComponentStatus),
		fallbacks:  make(map[string]bool),
		timers:     make(map[string]*time.Timer),
	}
}

// WithClock overrides the clock for testing.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// RegisterAction installs the recovery action for one failure type.
func (o *Orchestrator) RegisterAction(ft FailureType, action RecoveryAction) {
	o.mu.Lock()
	o.actions[ft] = action
	o.mu.Unlock()
}

// Breakers exposes the registry so collaborators can guard their own calls.
func (o *Orchestrator) Breakers() *Registry {
	return o.breakers
}

// ReportFailure records a failure, marks the owning component unhealthy and
// drives one recovery attempt. The returned ActiveFailure reflects state
// after that first attempt; callers get a resolved/unresolved status, never
// an exception, except for the unknown-type invariant violation.
func (o *Orchestrator) ReportFailure(ctx context.Context, ft FailureType, component, detail string) (ActiveFailure, error) {
	if !ft.Valid() {
		return ActiveFailure{}, fmt.Errorf("%w: %q", ErrUnknownFailureType, ft)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ActiveFailure{}, errors.New("orchestrator is shut down")
	}

	f := &ActiveFailure{
		ID:        uuid.New().String(),
		Type:      ft,
		Severity:  severityFor(ft),
		Component: component,
		Detail:    detail,
		Strategy:  o.strategies[ft],
		StartedAt: o.clock(),
	}
	o.failures[f.ID] = f
	o.components[component] = ComponentError
	o.mu.Unlock()

	o.log.Warn("Failure reported",
		"id", f.ID,
		"type", string(ft),
		"component", component,
		"strategy", string(f.Strategy),
	)

	o.attempt(ctx, f.ID)

	o.mu.Lock()
	snapshot := *f
	if current, ok := o.failures[f.ID]; ok {
		snapshot = *current
	}
	o.mu.Unlock()
	return snapshot, nil
}

// attempt drives one recovery attempt for the failure and schedules the
// follow-up (delayed retry or permanent fallback) on repeated failure.
func (o *Orchestrator) attempt(ctx context.Context, id string) {
	o.mu.Lock()
	f, ok := o.failures[id]
	if !ok || f.Resolved || o.closed {
		o.mu.Unlock()
		return
	}
	delete(o.timers, id)
	f.AttemptCount++
	snapshot := *f
	action := o.actions[f.Type]
	o.mu.Unlock()

	if snapshot.Strategy == RecoverCircuitBreaker {
		breaker := o.breakers.Get(snapshot.Component)
		if err := breaker.Allow(); err != nil {
			// The guarded resource is known to be down: short-circuit to the
			// degraded fallback path without touching it.
			o.log.Warn("Breaker open, switching to fallback",
				"component", snapshot.Component, "error", err.Error())
			o.enableFallback(snapshot.Component)
			return
		}

		err := o.runAction(ctx, action, snapshot)
		if err != nil {
			breaker.RecordFailure()
			o.onAttemptFailed(ctx, id, err)
			return
		}

		breaker.RecordSuccess()
		o.resolve(id)
		return
	}

	if err := o.runAction(ctx, action, snapshot); err != nil {
		o.onAttemptFailed(ctx, id, err)
		return
	}

	o.resolve(id)
}

func (o *Orchestrator) runAction(ctx context.Context, action RecoveryAction, f ActiveFailure) error {
	if action == nil {
		return fmt.Errorf("no recovery action registered for %s", f.Type)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	return action.Recover(attemptCtx, f)
}

// onAttemptFailed either schedules a delayed retry or, once the retry budget
// is exhausted, permanently enables the degraded fallback for the component.
func (o *Orchestrator) onAttemptFailed(ctx context.Context, id string, cause error) {
	o.mu.Lock()
	f, ok := o.failures[id]
	if !ok || o.closed {
		o.mu.Unlock()
		return
	}

	attempts := f.AttemptCount
	if attempts >= o.cfg.MaxRetries {
		component := f.Component
		o.mu.Unlock()
		o.log.Error("Retry budget exhausted, enabling fallback", cause,
			"id", id, "component", component, "attempts", attempts)
		o.enableFallback(component)
		return
	}

	delay := o.retryDelay(f.Strategy, attempts)
	o.timers[id] = time.AfterFunc(delay, func() {
		o.attempt(context.Background(), id)
	})
	o.mu.Unlock()

	o.log.Warn("Recovery attempt failed, retry scheduled",
		"id", id, "attempt", attempts, "delay", delay.String(), "error", cause.Error())
}

// retryDelay grows exponentially for the exponential_backoff strategy and
// linearly for everything else.
func (o *Orchestrator) retryDelay(strategy RecoveryStrategy, attempt int) time.Duration {
	if strategy == RecoverExponentialBackoff {
		delay := o.cfg.RetryBaseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		return delay
	}
	return o.cfg.RetryBaseDelay * time.Duration(attempt)
}

func (o *Orchestrator) resolve(id string) {
	o.mu.Lock()
	f, ok := o.failures[id]
	if !ok {
		o.mu.Unlock()
		return
	}

	f.Resolved = true
	f.ResolvedAt = o.clock()
	if !o.fallbacks[f.Component] {
		o.components[f.Component] = ComponentHealthy
	}
	component, attempts := f.Component, f.AttemptCount
	o.mu.Unlock()

	o.log.Info("Failure resolved", "id", id, "component", component, "attempts", attempts)
}

// enableFallback puts the component into permanent degraded-fallback mode and
// raises the degradation level by exactly one step.
func (o *Orchestrator) enableFallback(component string) {
	o.mu.Lock()
	o.fallbacks[component] = true
	o.components[component] = ComponentDegraded
	o.degradation = o.degradation.next()
	level := o.degradation
	o.mu.Unlock()

	o.log.Warn("Degraded fallback enabled", "component", component, "degradation", level.String())
}

// RaiseDegradation sets the level to max(current, requested). Skip-level
// jumps are therefore an explicit caller decision; automatic paths only ever
// move one step at a time.
func (o *Orchestrator) RaiseDegradation(to DegradationLevel) {
	o.mu.Lock()
	if to > o.degradation {
		o.degradation = to
	}
	level := o.degradation
	o.mu.Unlock()

	o.log.Info("Degradation level set", "degradation", level.String())
}

// FallbackActive reports whether a component runs in degraded-fallback mode.
func (o *Orchestrator) FallbackActive(component string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fallbacks[component]
}

// Health recomputes the system health snapshot on demand.
func (o *Orchestrator) Health() SystemHealth {
	o.mu.Lock()
	defer o.mu.Unlock()

	components := make(map[string]ComponentStatus, len(o.components))
	for name, status := range o.components {
		components[name] = status
	}

	failures := make([]ActiveFailure, 0, len(o.failures))
	unresolved := 0
	for _, f := range o.failures {
		failures = append(failures, *f)
		if !f.Resolved {
			unresolved++
		}
	}

	return SystemHealth{
		OverallStatus:    overallFor(o.degradation, unresolved),
		DegradationLevel: o.degradation,
		Components:       components,
		ActiveFailures:   failures,
		GeneratedAt:      o.clock(),
	}
}

// ReapResolved removes resolved failures from the active set and returns how
// many were removed.
func (o *Orchestrator) ReapResolved() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	reaped := 0
	for id, f := range o.failures {
		if f.Resolved {
			delete(o.failures, id)
			reaped++
		}
	}
	return reaped
}

// Close cancels outstanding retry timers. Further reports are rejected.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true

	for id, timer := range o.timers {
		timer.Stop()
		delete(o.timers, id)
	}
}
