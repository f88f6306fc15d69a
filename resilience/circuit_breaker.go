// Package resilience wraps calls that cross the process boundary — edge
// purges in particular — with a token bucket rate limiter, a three-state
// circuit breaker, and a size/time windowed batcher. The three pieces are
// independent and composable around any operation.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the breaker rejects a call without
	// executing it.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig defines configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a
	// half-open probe is allowed.
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls is the number of concurrent trial calls permitted
	// while half-open.
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns a default configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker fails fast after repeated failures and probes recovery.
//
// Closed calls execute directly; FailureThreshold consecutive failures open
// the circuit. Open calls are rejected until RecoveryTimeout has elapsed
// since the last failure, after which up to HalfOpenMaxCalls concurrent
// trials run half-open. Any trial failure reopens the circuit; a trial
// success resets the failure count and closes it. All transitions for one
// breaker are serialized under a single mutex.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mutex         sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenCalls int
}

// NewCircuitBreaker creates a circuit breaker with the given configuration.
// Zero-valued fields fall back to DefaultCircuitBreakerConfig.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Execute runs fn under the breaker. When the circuit rejects the call,
// ErrCircuitOpen is returned and fn is not invoked. Execute adds no timeout
// of its own; bound fn through its context.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cfg.RecoveryTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 1
		return nil
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			return ErrCircuitOpen
		}
		cb.halfOpenCalls++
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.halfOpenCalls = 0
		}
		return
	}
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.halfOpenCalls = 0
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failures
}

// Reset manually returns the circuit breaker to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0
}

// CircuitBreakerStats is a point-in-time snapshot of breaker state.
type CircuitBreakerStats struct {
	State         State
	Failures      int
	HalfOpenCalls int
}

// Stats returns current statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return CircuitBreakerStats{
		State:         cb.state,
		Failures:      cb.failures,
		HalfOpenCalls: cb.halfOpenCalls,
	}
}
