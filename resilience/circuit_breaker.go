// Package resilience implements the circuit breaker and retry policies that
// wrap every port call (OrderRepository, DriverRepository, Router,
// Notifier, ...). Adapted from the teacher's resilience.CircuitBreaker —
// kept the closed/open/half-open state machine and sliding error-rate
// window, dropped the orphaned-request bookkeeping and pluggable
// MetricsCollector/ErrorClassifier layers the teacher needed for its
// generic tool framework but this module does not.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
)

// CircuitState is one of closed, open, half-open.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

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

// CircuitBreakerConfig tunes the state machine.
type CircuitBreakerConfig struct {
	Name                string
	FailureThreshold    int           // failures within WindowSize needed to trip while closed
	WindowSize          time.Duration // sliding window used while closed
	MinRequestsInWindow int           // don't trip on a tiny sample size
	ErrorRateThreshold  float64       // 0..1, fraction of window that must fail to trip
	OpenTimeout         time.Duration // how long to stay open before probing
	HalfOpenMaxRequests int           // concurrent probes allowed while half-open
}

// DefaultCircuitBreakerConfig mirrors spec §7's Transient retry posture:
// a short recovery probe window, since most port failures here are Redis or
// HTTP blips rather than sustained outages.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                name,
		FailureThreshold:    5,
		WindowSize:          10 * time.Second,
		MinRequestsInWindow: 5,
		ErrorRateThreshold:  0.5,
		OpenTimeout:         5 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// CircuitBreaker protects a single named dependency (e.g. "order-repository",
// "router-port") from cascading failure.
type CircuitBreaker struct {
	cfg    CircuitBreakerConfig
	logger core.Logger

	mu            sync.Mutex
	state         CircuitState
	openedAt      time.Time
	halfOpenInUse int
	windowStart   time.Time
	windowSuccess int
	windowFailure int
}

// NewCircuitBreaker builds a CircuitBreaker starting in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:         cfg,
		logger:      &core.NoOpLogger{},
		state:       StateClosed,
		windowStart: time.Now(),
	}
}

func (cb *CircuitBreaker) SetLogger(logger core.Logger) {
	if logger == nil {
		cb.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		cb.logger = cal.WithComponent("resilience/" + cb.cfg.Name)
		return
	}
	cb.logger = logger
}

var ErrCircuitOpen = errors.New("circuit breaker open")

// Execute runs fn if the circuit allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allow() {
		return core.NewError(cb.cfg.Name, core.KindUnavailable, "", fmt.Errorf("%w: %w", core.ErrPortUnavailable, ErrCircuitOpen))
	}
	err := fn(ctx)
	cb.recordResult(err)
	return err
}

// ExecuteWithTimeout wraps Execute with a per-call deadline, the suspension
// point every port call carries per spec §5.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return cb.Execute(cctx, func(c context.Context) error {
		done := make(chan error, 1)
		go func() { done <- fn(c) }()
		select {
		case err := <-done:
			return err
		case <-c.Done():
			return core.NewError(cb.cfg.Name, core.KindTransient, "", fmt.Errorf("%w: %w", core.ErrTimeout, c.Err()))
		}
	})
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.OpenTimeout {
			cb.transition(StateHalfOpen)
			cb.halfOpenInUse = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenInUse < cb.cfg.HalfOpenMaxRequests {
			cb.halfOpenInUse++
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.halfOpenInUse--
		if err != nil {
			cb.transition(StateOpen)
			cb.openedAt = time.Now()
			return
		}
		cb.transition(StateClosed)
		cb.windowStart = time.Now()
		cb.windowSuccess, cb.windowFailure = 0, 0
		return
	}

	if time.Since(cb.windowStart) > cb.cfg.WindowSize {
		cb.windowStart = time.Now()
		cb.windowSuccess, cb.windowFailure = 0, 0
	}

	if err != nil {
		cb.windowFailure++
	} else {
		cb.windowSuccess++
	}

	total := cb.windowSuccess + cb.windowFailure
	if total >= cb.cfg.MinRequestsInWindow {
		rate := float64(cb.windowFailure) / float64(total)
		if cb.windowFailure >= cb.cfg.FailureThreshold || rate >= cb.cfg.ErrorRateThreshold {
			cb.transition(StateOpen)
			cb.openedAt = time.Now()
		}
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.logger.Info("circuit breaker state change", map[string]interface{}{
		"name": cb.cfg.Name, "from": from.String(), "to": to.String(),
	})
}

// GetState returns the breaker's current state as a string.
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// Reset forces the breaker back to closed, clearing window counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.windowStart = time.Now()
	cb.windowSuccess, cb.windowFailure = 0, 0
	cb.halfOpenInUse = 0
}
