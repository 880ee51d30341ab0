// Package resilience provides the fault-handling primitives shared by the
// engine's outbound calls: a per-dependency circuit breaker and a retry
// engine with exponential backoff and jitter.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call without attempting
// it. It is never retryable.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// State is the breaker's current mode.
type State string

const (
	// StateClosed admits all calls.
	StateClosed State = "closed"

	// StateOpen rejects all calls until the recovery timeout elapses.
	StateOpen State = "open"

	// StateHalfOpen admits a single probe call at a time.
	StateHalfOpen State = "half_open"
)

// BreakerConfig tunes a [Breaker]. Zero values select the defaults.
type BreakerConfig struct {
	// Name identifies the protected dependency in logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Default: 5.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes that
	// closes the breaker. Default: 2.
	SuccessThreshold int

	// RecoveryTimeout is how long the breaker stays open before admitting a
	// probe. Default: 60s.
	RecoveryTimeout time.Duration

	// OnStateChange, when set, is invoked after every transition.
	OnStateChange func(name string, from, to State)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	return c
}

// Breaker is a three-state circuit breaker. Consecutive failures open it;
// after the recovery timeout it admits one probe at a time, and enough
// consecutive probe successes close it again. A single failure while half
// open re-opens it immediately.
//
// All methods are safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	openedAt      time.Time
	probeInFlight bool
	now           func() time.Time // stubbed in tests
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{
		cfg:   cfg.withDefaults(),
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call may proceed. Every admitted call must be
// followed by exactly one RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			return false
		}
		b.transition(StateHalfOpen)
		b.probeInFlight = true
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
	return false
}

// RecordSuccess reports a successful admitted call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probeInFlight = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// RecordFailure reports a failed admitted call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.probeInFlight = false
		b.open()
	}
}

// Execute runs op under the breaker: rejected calls return [ErrCircuitOpen],
// and the outcome of admitted calls is recorded automatically.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if !b.Allow() {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.cfg.Name)
	}
	if err := op(ctx); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// State returns the breaker's current mode, accounting for an elapsed
// recovery timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Stats is a point-in-time view of a breaker, for status output.
type Stats struct {
	Name                string
	State               State
	ConsecutiveFailures int
}

// Stats returns the breaker's current counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Name: b.cfg.Name, State: b.state, ConsecutiveFailures: b.failures}
}

// open must be called with the mutex held.
func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	slog.Info("breaker.state_change", "breaker", b.cfg.Name, "from", from, "to", to)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
