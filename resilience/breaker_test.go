package resilience

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, Cooldown: time.Second, MaxProbes: 1})
	cb.now = clock.Now
	return cb
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if cb.State() != StateClosed {
			t.Fatalf("state after %d failures = %v, want Closed", i+1, cb.State())
		}
	}
	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want Open", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want Closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	tests := []struct {
		name      string
		probe     func(*CircuitBreaker)
		wantState CircuitState
	}{
		{"probe succeeds", (*CircuitBreaker).RecordSuccess, StateClosed},
		{"probe fails", (*CircuitBreaker).RecordFailure, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			cb := newTestBreaker(clock)
			for i := 0; i < 3; i++ {
				cb.RecordFailure()
			}

			clock.Advance(999 * time.Millisecond)
			if err := cb.Allow(); err == nil {
				t.Fatal("Allow() succeeded before cooldown")
			}

			clock.Advance(time.Millisecond)
			if err := cb.Allow(); err != nil {
				t.Fatalf("Allow() after cooldown = %v", err)
			}
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %v, want HalfOpen", cb.State())
			}
			if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
				t.Errorf("second probe Allow() = %v, want ErrCircuitOpen", err)
			}

			tt.probe(cb)
			if cb.State() != tt.wantState {
				t.Errorf("state = %v, want %v", cb.State(), tt.wantState)
			}
		})
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := newTestBreaker(newFakeClock())
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want Closed", cb.State())
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() = %v", err)
	}
}

func TestCircuitState_String(t *testing.T) {
	for state, want := range map[CircuitState]string{
		StateClosed:      "Closed",
		StateOpen:        "Open",
		StateHalfOpen:    "HalfOpen",
		CircuitState(42): "Unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func respond(code int) HTTPOperation {
	return func(context.Context) (*http.Response, error) {
		return &http.Response{StatusCode: code, Body: http.NoBody}, nil
	}
}

func TestHostBreakers_Execute(t *testing.T) {
	hb := NewHostBreakers(CircuitBreakerConfig{MaxFailures: 2, Cooldown: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := hb.Execute(ctx, "bad.example", respond(http.StatusBadGateway))
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", resp.StatusCode)
		}
	}

	if hb.State("bad.example") != StateOpen {
		t.Fatalf("state = %v, want Open", hb.State("bad.example"))
	}
	if _, err := hb.Execute(ctx, "bad.example", respond(http.StatusOK)); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() on open host = %v, want ErrCircuitOpen", err)
	}

	// Other hosts are isolated.
	if _, err := hb.Execute(ctx, "good.example", respond(http.StatusOK)); err != nil {
		t.Errorf("Execute() on healthy host = %v", err)
	}
	if hb.State("unknown.example") != StateClosed {
		t.Error("unknown host should report Closed")
	}

	hb.ResetAll()
	if hb.State("bad.example") != StateClosed {
		t.Error("ResetAll() did not close breaker")
	}
}

func TestHostBreakers_TransportErrorsCount(t *testing.T) {
	hb := NewHostBreakers(CircuitBreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	boom := errors.New("connection reset")

	_, err := hb.Execute(context.Background(), "h", func(context.Context) (*http.Response, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() = %v, want %v", err, boom)
	}
	if hb.State("h") != StateOpen {
		t.Errorf("state = %v, want Open", hb.State("h"))
	}
}

func TestHostBreakers_CancellationDoesNotTrip(t *testing.T) {
	hb := NewHostBreakers(CircuitBreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _ = hb.Execute(ctx, "h", func(ctx context.Context) (*http.Response, error) {
		return nil, ctx.Err()
	})
	if hb.State("h") != StateClosed {
		t.Errorf("state = %v, want Closed", hb.State("h"))
	}
}

func TestHostBreakers_Concurrent(t *testing.T) {
	hb := NewHostBreakers(DefaultCircuitBreakerConfig())

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := http.StatusOK
			if i%4 == 0 {
				code = http.StatusServiceUnavailable
			}
			for range 50 {
				_, _ = hb.Execute(context.Background(), "registry", respond(code))
			}
		}(i)
	}
	wg.Wait()
}
