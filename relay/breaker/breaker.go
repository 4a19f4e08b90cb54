// Package breaker guards upstream targets with a closed/open/half-open circuit breaker.
package breaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation; requests pass through.
	StateOpen                  // Failing; requests are rejected locally.
	StateHalfOpen              // Probing; requests pass to test recovery.
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings configures a breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens a closed circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes the circuit.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before letting a probe through.
	Timeout time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
	// OnStateChange is called with the old and new state after each transition, under the breaker lock.
	OnStateChange func(from, to State)
}

// CircuitBreaker tracks consecutive failures of one target. All methods are safe for
// concurrent use and every transition happens under a single mutex.
type CircuitBreaker struct {
	mu       sync.Mutex
	settings Settings

	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a closed breaker. Thresholds below 1 are raised to 1.
func New(settings Settings) *CircuitBreaker {
	if settings.FailureThreshold < 1 {
		settings.FailureThreshold = 1
	}
	if settings.SuccessThreshold < 1 {
		settings.SuccessThreshold = 1
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &CircuitBreaker{settings: settings}
}

// CanExecute reports whether a call may proceed. An open circuit whose timeout has
// elapsed moves to half-open and admits the calling request as the probe.
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.lastFailureTime.IsZero() || b.settings.Now().Sub(b.lastFailureTime) < b.settings.Timeout {
			return false
		}
		b.successCount = 0
		b.transition(StateHalfOpen)
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.settings.SuccessThreshold {
			b.failureCount = 0
			b.successCount = 0
			b.transition(StateClosed)
		}
	}
}

// RecordFailure records a failed call. Any half-open failure reopens the circuit.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.settings.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.settings.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.successCount = 0
		b.transition(StateOpen)
	}
}

// State returns the current state without triggering the open to half-open transition.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns the current failure and success counters.
func (b *CircuitBreaker) Counts() (failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount, b.successCount
}

// Reset forces the breaker back to closed.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}
	b.transition(StateClosed)
}

func (b *CircuitBreaker) transition(to State) {
	from := b.state
	b.state = to
	if from != to && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(from, to)
	}
}
