// Package circuitbreaker stops calls to an RPC node that keeps failing.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed lets every call through
	StateClosed State = "closed"
	// StateOpen refuses calls until the timeout elapses
	StateOpen State = "open"
	// StateHalfOpen lets a limited number of probe calls through
	StateHalfOpen State = "half_open"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when every half-open probe slot is taken
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config configures a circuit breaker
type Config struct {
	Name string

	// MaxFailures consecutive failures open the breaker. It is also the
	// minimum number of calls before FailureThreshold is considered.
	MaxFailures int

	// FailureThreshold opens the breaker once failures/calls reaches it
	FailureThreshold float64

	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration

	// HalfOpenMaxCalls probes must succeed to close the breaker again
	HalfOpenMaxCalls int

	// IsFailure decides which errors count against the breaker.
	// Nil counts every non-nil error.
	IsFailure func(error) bool

	// OnStateChange is called after every transition, outside the lock
	OnStateChange func(name string, from, to State)

	// Now overrides the clock, for tests
	Now func() time.Time
}

// DefaultConfig returns the configuration used for chain RPC nodes
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      5,
		FailureThreshold: 0.5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker guards calls to one dependency
type CircuitBreaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	calls       int
	failures    int
	consecutive int
	openedAt    time.Time
	probes      int
	probeOK     int
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	cfg := *config
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

type transition struct {
	from, to State
}

// Execute runs fn unless the breaker refuses the call. fn's error is
// returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	failed := err != nil
	if failed && cb.cfg.IsFailure != nil {
		failed = cb.cfg.IsFailure(err)
	}
	cb.record(failed)

	return err
}

func (cb *CircuitBreaker) admit() error {
	var changes []transition
	defer func() { cb.notify(changes) }()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.Timeout {
			return ErrCircuitOpen
		}
		changes = append(changes, cb.moveTo(StateHalfOpen))
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMaxCalls {
			return ErrTooManyRequests
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(failed bool) {
	var changes []transition
	defer func() { cb.notify(changes) }()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.calls++
		if !failed {
			cb.consecutive = 0
			return
		}
		cb.failures++
		cb.consecutive++
		if cb.shouldOpen() {
			changes = append(changes, cb.moveTo(StateOpen))
		}

	case StateHalfOpen:
		if failed {
			changes = append(changes, cb.moveTo(StateOpen))
			return
		}
		cb.probeOK++
		if cb.probeOK >= cb.cfg.HalfOpenMaxCalls {
			changes = append(changes, cb.moveTo(StateClosed))
		}

	case StateOpen:
		// A call admitted before the breaker opened; its outcome is stale.
	}
}

func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutive >= cb.cfg.MaxFailures {
		return true
	}
	if cb.calls < cb.cfg.MaxFailures {
		return false
	}
	return float64(cb.failures)/float64(cb.calls) >= cb.cfg.FailureThreshold
}

// moveTo must be called with mu held
func (cb *CircuitBreaker) moveTo(to State) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	cb.calls, cb.failures, cb.consecutive = 0, 0, 0
	cb.probes, cb.probeOK = 0, 0
	if to == StateOpen {
		cb.openedAt = cb.cfg.Now()
	}
	return t
}

func (cb *CircuitBreaker) notify(changes []transition) {
	if cb.cfg.OnStateChange == nil {
		return
	}
	for _, t := range changes {
		cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
	}
}

// State returns the current state. An open breaker whose timeout elapsed
// still reports open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakerManager hands out one breaker per name
type CircuitBreakerManager struct {
	breakers map[string]*CircuitBreaker
	mu       sync.RWMutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker registered under name, creating it from
// config (or DefaultConfig when nil) on first use
func (cbm *CircuitBreakerManager) GetOrCreate(name string, config *Config) *CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if cb, exists := cbm.breakers[name]; exists {
		return cb
	}

	if config == nil {
		config = DefaultConfig(name)
	}

	cb := NewCircuitBreaker(config)
	cbm.breakers[name] = cb
	return cb
}

// States returns the state of every registered breaker
func (cbm *CircuitBreakerManager) States() map[string]State {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	result := make(map[string]State, len(cbm.breakers))
	for name, cb := range cbm.breakers {
		result[name] = cb.State()
	}
	return result
}
