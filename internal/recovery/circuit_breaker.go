package recovery

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling through while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - normal operation, commands reach the device
	StateClosed CircuitState = iota
	// StateOpen - device considered unresponsive, commands fail fast
	StateOpen
	// StateHalfOpen - probing, a limited number of commands allowed
	StateHalfOpen
)

// String returns the string representation of the circuit state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for circuit breaker
type CircuitBreakerConfig struct {
	MaxFailures      int           // Default: 5
	Timeout          time.Duration // Default: 30 seconds
	HalfOpenMaxTries int           // Default: 3

	// IsFailure decides which errors count against the breaker. Nil counts every error.
	IsFailure func(error) bool

	// OnStateChange is called outside the lock after every transition
	OnStateChange func(from, to CircuitState)
}

// CircuitBreaker fails fast once the device stopped answering
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	state            CircuitState
	failures         int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	halfOpenAttempts int

	mu sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker with given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxTries == 0 {
		config.HalfOpenMaxTries = 3
	}

	return &CircuitBreaker{
		cfg:             config,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Call executes fn if the circuit allows it and records the outcome
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()

	counted := err != nil
	if counted && cb.cfg.IsFailure != nil {
		counted = cb.cfg.IsFailure(err)
	}
	cb.afterCall(counted)

	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailureTime) <= cb.cfg.Timeout {
			wait := time.Until(cb.lastFailureTime.Add(cb.cfg.Timeout))
			failures := cb.failures
			cb.mu.Unlock()
			return fmt.Errorf("%w (failed %d times, retry in %.0fs)", ErrCircuitOpen, failures, wait.Seconds())
		}
		from := cb.transition(StateHalfOpen)
		cb.halfOpenAttempts = 1
		cb.mu.Unlock()
		cb.notify(from, StateHalfOpen)
		return nil

	case StateHalfOpen:
		if cb.halfOpenAttempts >= cb.cfg.HalfOpenMaxTries {
			cb.mu.Unlock()
			return fmt.Errorf("%w (half-open, max test attempts reached)", ErrCircuitOpen)
		}
		cb.halfOpenAttempts++
	}

	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) afterCall(failed bool) {
	cb.mu.Lock()

	from := cb.state
	to := from

	if failed {
		cb.failures++
		cb.lastFailureTime = time.Now()
		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.cfg.MaxFailures {
				to = StateOpen
			}
		case StateHalfOpen:
			to = StateOpen
			cb.halfOpenAttempts = 0
		}
	} else {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			if cb.halfOpenAttempts >= cb.cfg.HalfOpenMaxTries {
				to = StateClosed
				cb.failures = 0
				cb.halfOpenAttempts = 0
			}
		}
	}

	if to != from {
		cb.transition(to)
	}
	cb.mu.Unlock()

	if to != from {
		cb.notify(from, to)
	}
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to CircuitState) CircuitState {
	from := cb.state
	cb.state = to
	cb.lastStateChange = time.Now()
	return from
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.transition(StateClosed)
	cb.failures = 0
	cb.halfOpenAttempts = 0
	cb.mu.Unlock()

	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:                    cb.state,
		Failures:                 cb.failures,
		LastFailureTime:          cb.lastFailureTime,
		HalfOpenAttempts:         cb.halfOpenAttempts,
		TimeSinceLastStateChange: time.Since(cb.lastStateChange),
	}
}

// CircuitBreakerStats holds statistics about the circuit breaker
type CircuitBreakerStats struct {
	State                    CircuitState  `json:"-"`
	Failures                 int           `json:"failures"`
	LastFailureTime          time.Time     `json:"last_failure_time"`
	HalfOpenAttempts         int           `json:"half_open_attempts"`
	TimeSinceLastStateChange time.Duration `json:"-"`
}

// String returns a string representation of the stats
func (s CircuitBreakerStats) String() string {
	return fmt.Sprintf("State: %s, Failures: %d, Last State Change: %s ago",
		s.State, s.Failures, s.TimeSinceLastStateChange.Round(time.Second))
}
