package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when a call is rejected without reaching the
// guarded resource.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerState is the per-resource circuit state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// BreakerConfig controls when a breaker trips and recovers.
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before opening. Default 5.
	FailureThreshold int

	// SuccessThreshold is consecutive half-open successes before closing. Default 3.
	SuccessThreshold int

	// RecoveryTimeout is the cooldown before the next call may probe the
	// resource again. Default 30s.
	RecoveryTimeout time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	return c
}

// BreakerSnapshot is a consistent read of one breaker's state.
type BreakerSnapshot struct {
	Resource      string       `json:"resource"`
	State         BreakerState `json:"state"`
	FailureCount  int          `json:"failure_count"`
	SuccessCount  int          `json:"success_count"`
	LastFailureAt time.Time    `json:"last_failure_at,omitzero"`
	NextRetryAt   time.Time    `json:"next_retry_at,omitzero"`
}

// Breaker guards one named resource. All state mutation happens under a
// single mutex, so transitions are linearizable per resource.
//
// The open -> half_open transition is lazy: it happens on the first Allow
// after the cooldown elapses, not on a timer.
type Breaker struct {
	resource string
	cfg      BreakerConfig
	clock    func() time.Time

	mu            sync.Mutex
	state         BreakerState
	failureCount  int
	successCount  int
	probeInFlight bool
	lastFailureAt time.Time
	nextRetryAt   time.Time
}

func newBreaker(resource string, cfg BreakerConfig, clock func() time.Time) *Breaker {
	return &Breaker{
		resource: resource,
		cfg:      cfg.withDefaults(),
		clock:    clock,
		state:    StateClosed,
	}
}

// Allow reports whether a call may proceed. While open and inside the
// cooldown it returns ErrBreakerOpen immediately; the first call after
// nextRetryAt moves the breaker to half_open and is let through. Half-open
// admits one probe at a time: further callers are rejected until the
// outcome of the in-flight probe is recorded.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return fmt.Errorf("%w: resource %q half-open probe in flight",
				ErrBreakerOpen, b.resource)
		}
		b.probeInFlight = true
		return nil
	case StateOpen:
		if b.clock().Before(b.nextRetryAt) {
			return fmt.Errorf("%w: resource %q retries at %s",
				ErrBreakerOpen, b.resource, b.nextRetryAt.Format(time.RFC3339))
		}
		b.state = StateHalfOpen
		b.successCount = 0
		b.probeInFlight = true
		return nil
	default:
		return fmt.Errorf("breaker %q in unknown state %q", b.resource, b.state)
	}
}

// RecordSuccess counts a successful call against the state machine.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.probeInFlight = false
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

// RecordFailure counts a failed call. Reaching the failure threshold while
// closed, or any failure while half-open, opens the breaker and schedules
// the next retry window.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	b.lastFailureAt = now

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.open(now)
		}
	case StateHalfOpen:
		b.open(now)
	case StateOpen:
		// Failure reported while already open (e.g. an in-flight call
		// finishing late); just refresh the cooldown.
		b.nextRetryAt = now.Add(b.cfg.RecoveryTimeout)
	}
}

// open must be called with the mutex held.
func (b *Breaker) open(now time.Time) {
	b.state = StateOpen
	b.successCount = 0
	b.probeInFlight = false
	b.nextRetryAt = now.Add(b.cfg.RecoveryTimeout)
}

// Execute runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}

	b.RecordSuccess()
	return nil
}

// Snapshot returns a consistent copy of the breaker state.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerSnapshot{
		Resource:      b.resource,
		State:         b.state,
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		LastFailureAt: b.lastFailureAt,
		NextRetryAt:   b.nextRetryAt,
	}
}

// Reset forces the breaker back to closed with all counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.probeInFlight = false
	b.nextRetryAt = time.Time{}
}

// Registry manages one breaker per monitored resource, keyed by name.
// Breakers are created on first registration and never removed.
type Registry struct {
	defaults BreakerConfig
	clock    func() time.Time

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry with defaults applied to breakers
// created on demand.
func NewRegistry(defaults BreakerConfig) *Registry {
	return &Registry{
		defaults: defaults.withDefaults(),
		clock:    time.Now,
		breakers: make(map[string]*Breaker),
	}
}

// WithClock overrides the registry clock for testing. Breakers capture the
// clock when they are created, so this must be called before the first Get
// or GetWithConfig; breakers created earlier keep the real clock.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.mu.Lock()
	r.clock = clock
	r.mu.Unlock()
	return r
}

// Get returns the breaker for a resource, creating it with the registry
// defaults if needed.
func (r *Registry) Get(resource string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[resource]
	r.mu.RUnlock()
	if ok {
		return b
	}

	return r.register(resource, r.defaults)
}

// GetWithConfig returns the breaker for a resource, creating it with a
// caller-specific config (e.g. a longer recovery timeout) if needed.
// An existing breaker keeps its original config.
func (r *Registry) GetWithConfig(resource string, cfg BreakerConfig) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[resource]
	r.mu.RUnlock()
	if ok {
		return b
	}

	return r.register(resource, cfg)
}

func (r *Registry) register(resource string, cfg BreakerConfig) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[resource]; ok {
		return b
	}

	b := newBreaker(resource, cfg, r.clock)
	r.breakers[resource] = b
	return b
}

// Snapshots returns a consistent snapshot of every registered breaker.
func (r *Registry) Snapshots() map[string]BreakerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]BreakerSnapshot, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Snapshot()
	}
	return out
}

// ResetAll closes every breaker. Intended for operator intervention after an
// external fix.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}
