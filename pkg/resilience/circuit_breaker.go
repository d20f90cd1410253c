package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iln-nexus/iln/pkg/core"
	"github.com/iln-nexus/iln/pkg/logger"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows a single probe request
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
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

// ErrorClassifier determines which errors should count toward circuit breaker thresholds
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts transport faults only. A remote that
// answered with a failure is healthy from the breaker's point of view.
func DefaultErrorClassifier(err error) bool {
	return err != nil && core.KindOf(err) == core.KindTransport
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker
	Name string

	// FailureThreshold is the number of consecutive counted failures before opening
	FailureThreshold int

	// SleepWindow is how long to wait before entering half-open state
	SleepWindow time.Duration

	// ErrorClassifier determines which errors count as failures
	ErrorClassifier ErrorClassifier

	// Logger for circuit breaker events
	Logger logger.Logger
}

// DefaultConfig returns the defaults used around the remote collaborator
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "default",
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           logger.NoOpLogger{},
	}
}

// Validate checks the configuration
func (c *CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure threshold must be at least 1", core.ErrInvalidConfiguration)
	}
	if c.SleepWindow <= 0 {
		return fmt.Errorf("%w: sleep window must be positive", core.ErrInvalidConfiguration)
	}
	return nil
}

// CircuitBreaker stops calling a failing dependency for a sleep window
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu             sync.Mutex
	state          CircuitState
	failures       int
	stateChangedAt time.Time
	probeInFlight  bool
	rejected       int64
	listeners      []func(name string, from, to CircuitState)
	now            func() time.Time
}

// NewCircuitBreaker creates a circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Logger == nil {
		config.Logger = logger.NoOpLogger{}
	}
	return &CircuitBreaker{
		config:         config,
		state:          StateClosed,
		stateChangedAt: time.Now(),
		now:            time.Now,
	}, nil
}

// Execute runs fn if the circuit allows it and records the outcome
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.CanExecute() {
		return &core.Error{
			Op:      "circuit_breaker.Execute",
			Kind:    core.KindTransport,
			ID:      cb.config.Name,
			Message: fmt.Sprintf("circuit breaker %s is open", cb.config.Name),
			Err:     core.ErrCircuitOpen,
		}
	}
	if err := ctx.Err(); err != nil {
		cb.release()
		return err
	}

	err := fn()
	if cb.config.ErrorClassifier(err) {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return err
}

// CanExecute checks if the circuit breaker allows execution. In half-open
// state only one probe is admitted at a time.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.stateChangedAt) >= cb.config.SleepWindow {
			cb.transitionLocked(StateHalfOpen)
			cb.probeInFlight = true
			return true
		}
	case StateHalfOpen:
		if !cb.probeInFlight {
			cb.probeInFlight = true
			return true
		}
	}
	cb.rejected++
	return false
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
}

// RecordSuccess records a successful operation
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probeInFlight = false
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// RecordFailure records a failed operation
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.probeInFlight = false
	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.stateChangedAt = cb.now()
	if to == StateClosed {
		cb.failures = 0
	}
	cb.config.Logger.Info("Circuit breaker state changed", map[string]interface{}{
		"name":     cb.config.Name,
		"from":     from.String(),
		"to":       to.String(),
		"failures": cb.failures,
	})
	for _, l := range cb.listeners {
		l(cb.config.Name, from, to)
	}
}

// AddStateChangeListener registers a callback invoked on every transition
func (cb *CircuitBreaker) AddStateChangeListener(listener func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// GetState returns the current state name
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// GetMetrics returns a snapshot of the breaker
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"name":             cb.config.Name,
		"state":            cb.state.String(),
		"failures":         cb.failures,
		"rejected":         cb.rejected,
		"state_changed_at": cb.stateChangedAt,
	}
}

// Reset closes the circuit and clears counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
	cb.rejected = 0
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
	cb.failures = 0
}
