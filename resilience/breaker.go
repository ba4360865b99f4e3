package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/willibrandon/gonpm/observability"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // requests flow
	StateOpen                         // requests rejected until the cooldown ends
	StateHalfOpen                     // a limited number of probes allowed
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned while a breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint

	// Cooldown is how long an open circuit waits before allowing probes.
	Cooldown time.Duration

	// MaxProbes is the number of concurrent requests allowed while half-open.
	MaxProbes uint
}

// DefaultCircuitBreakerConfig opens after 5 consecutive failures and probes
// again after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
		MaxProbes:   1,
	}
}

// CircuitBreaker is a three-state circuit breaker.
type CircuitBreaker struct {
	config  CircuitBreakerConfig
	now     func() time.Time
	onState func(CircuitState)

	mu       sync.Mutex
	state    CircuitState
	failures uint
	openedAt time.Time
	probes   uint
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxProbes == 0 {
		config.MaxProbes = 1
	}
	return &CircuitBreaker{config: config, now: time.Now}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a request may proceed. A nil return must be paired
// with exactly one RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.Cooldown {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probes = 0
	}

	if cb.probes >= cb.config.MaxProbes {
		return ErrCircuitOpen
	}
	cb.probes++
	return nil
}

// RecordSuccess closes a half-open circuit and clears the failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
	cb.failures = 0
	cb.setState(StateClosed)
}

// RecordFailure extends the failure streak; any probe failure reopens.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.MaxFailures {
			cb.open()
		}
	case StateHalfOpen:
		if cb.probes > 0 {
			cb.probes--
		}
		cb.open()
	}
}

// Reset forces the circuit closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probes = 0
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	if cb.state == s {
		return
	}
	cb.state = s
	if cb.onState != nil {
		cb.onState(s)
	}
}

// HostBreakers keeps one circuit breaker per registry host and publishes
// their state to the circuit breaker gauge.
type HostBreakers struct {
	breakers *hostMap[*CircuitBreaker]
}

// NewHostBreakers creates per-host breakers sharing config.
func NewHostBreakers(config CircuitBreakerConfig) *HostBreakers {
	return &HostBreakers{
		breakers: newHostMap(func(host string) *CircuitBreaker {
			cb := NewCircuitBreaker(config)
			cb.onState = func(s CircuitState) {
				observability.CircuitBreakerState.WithLabelValues(host).Set(float64(s))
			}
			return cb
		}),
	}
}

// HTTPOperation performs one HTTP exchange.
type HTTPOperation func(ctx context.Context) (*http.Response, error)

// Execute runs op through the breaker for host. Transport errors and 5xx
// responses count as failures; the response is still returned to the caller.
func (hb *HostBreakers) Execute(ctx context.Context, host string, op HTTPOperation) (*http.Response, error) {
	cb := hb.breakers.get(host)
	if err := cb.Allow(); err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}

	resp, err := op(ctx)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			cb.RecordFailure()
		} else {
			// Cancellation says nothing about the host.
			cb.RecordSuccess()
		}
		return nil, err
	case resp.StatusCode >= 500:
		cb.RecordFailure()
	default:
		cb.RecordSuccess()
	}
	return resp, nil
}

// State returns the breaker state for host; unknown hosts are closed.
func (hb *HostBreakers) State(host string) CircuitState {
	if cb, ok := hb.breakers.lookup(host); ok {
		return cb.State()
	}
	return StateClosed
}

// ResetAll closes every breaker.
func (hb *HostBreakers) ResetAll() {
	hb.breakers.each(func(_ string, cb *CircuitBreaker) { cb.Reset() })
}
