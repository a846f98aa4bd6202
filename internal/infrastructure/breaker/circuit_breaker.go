package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without invoking the wrapped operation while
// the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
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

// CircuitBreaker isolates a failing dependency. All state transitions
// happen under a single mutex; the wrapped operation itself runs outside
// the lock.
type CircuitBreaker struct {
	name   string
	logger *zap.Logger

	mu           sync.Mutex
	state        State
	failureCount int
	lastFailure  time.Time
	probing      bool // a half-open trial is in flight

	failureThreshold int
	recoveryTimeout  time.Duration

	timeNow func() time.Time // for testing
}

// Config holds construction parameters for a breaker. Fixed at first
// creation of each named instance.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

func New(name string, cfg Config, logger *zap.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		name:             name,
		logger:           logger,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		timeNow:          time.Now,
	}
}

// Call runs op under the breaker. While open it fails fast with
// ErrCircuitOpen; after the recovery timeout exactly one trial call is
// admitted.
func (cb *CircuitBreaker) Call(op func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := op()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.timeNow().Sub(cb.lastFailure) >= cb.recoveryTimeout {
			cb.state = StateHalfOpen
			cb.probing = true
			cb.logger.Info("circuit breaker half-open, admitting trial call",
				zap.String("breaker", cb.name))
			return nil
		}
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)

	case StateHalfOpen:
		// Exactly one trial at a time.
		if cb.probing {
			return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
		}
		cb.probing = true
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.logger.Info("circuit breaker closed (recovered)",
				zap.String("breaker", cb.name))
		}
		cb.state = StateClosed
		cb.failureCount = 0
		cb.probing = false
		return
	}

	cb.lastFailure = cb.timeNow()
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = StateOpen
			cb.logger.Warn("circuit breaker open",
				zap.String("breaker", cb.name),
				zap.Int("failures", cb.failureCount))
		}

	case StateHalfOpen:
		// Trial failed, back to open.
		cb.state = StateOpen
		cb.probing = false
		cb.logger.Warn("circuit breaker reopened (trial failed)",
			zap.String("breaker", cb.name))
	}
}

// GetState returns the current state for monitoring.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the breaker state for the status endpoint.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:         cb.name,
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
		LastFailure:  cb.lastFailure,
	}
}

type Snapshot struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}
