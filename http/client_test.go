package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/willibrandon/gonpm/auth"
	"github.com/willibrandon/gonpm/resilience"
)

func fastRetry(n int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:     n,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, DefaultUserAgent)
	}
	if !cfg.Transport.EnableHTTP2 {
		t.Error("EnableHTTP2 = false, want true")
	}
	if cfg.RetryConfig.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.RetryConfig.MaxRetries)
	}
}

func TestNewClient_UserAgent(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{"nil config uses defaults", nil, DefaultUserAgent},
		{"empty user agent uses default", &Config{}, DefaultUserAgent},
		{"custom user agent", &Config{UserAgent: "custom/1.0"}, "custom/1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewClient(tt.cfg).UserAgent(); got != tt.want {
				t.Errorf("UserAgent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_Get_SendsDefaultHeaders(t *testing.T) {
	var ua, session atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		session.Store(r.Header.Get("npm-session"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClientWithOptions(
		WithUserAgent("gonpm-test/1.0"),
		WithHeader("npm-session", "abc123"),
	)
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()

	if got := ua.Load(); got != "gonpm-test/1.0" {
		t.Errorf("User-Agent = %v", got)
	}
	if got := session.Load(); got != "abc123" {
		t.Errorf("npm-session = %v", got)
	}
}

func TestClient_Do_KeepsExplicitHeader(t *testing.T) {
	var ua atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("User-Agent", "explicit")

	resp, err := NewClient(nil).Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	if got := ua.Load(); got != "explicit" {
		t.Errorf("User-Agent = %v, want explicit", got)
	}
}

type failingAuth struct{}

func (failingAuth) Authenticate(*http.Request) error { return errors.New("keychain locked") }

func TestClient_Authenticator(t *testing.T) {
	authHeader := func(got *atomic.Value) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got.Store(r.Header.Get("Authorization"))
		}))
	}
	var registryAuth, cdnAuth atomic.Value
	registry := authHeader(&registryAuth)
	defer registry.Close()
	cdn := authHeader(&cdnAuth)
	defer cdn.Close()

	scoped, err := auth.ForRegistry(registry.URL, auth.NewBearerAuthenticator("tok"))
	if err != nil {
		t.Fatalf("ForRegistry() error = %v", err)
	}
	client := NewClientWithOptions(WithAuthenticator(scoped), WithRetryConfig(fastRetry(0)))

	for _, url := range []string{registry.URL + "/left-pad", cdn.URL + "/left-pad.tgz"} {
		resp, err := client.Get(context.Background(), url)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", url, err)
		}
		_ = resp.Body.Close()
	}

	if got := registryAuth.Load(); got != "Bearer tok" {
		t.Errorf("registry Authorization = %v, want Bearer tok", got)
	}
	if got := cdnAuth.Load(); got != "" {
		t.Errorf("other hosts must not receive credentials, got %v", got)
	}

	failing := NewClientWithOptions(WithAuthenticator(failingAuth{}))
	if _, err := failing.Get(context.Background(), registry.URL); err == nil {
		t.Error("Get() should fail when the authenticator fails")
	}
}

func TestClient_DoWithRetry_TransientStatus(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		status    int
		wantCalls int32
		wantCode  int
	}{
		{"recovers after 503", 2, http.StatusServiceUnavailable, 3, http.StatusOK},
		{"recovers after 429", 1, http.StatusTooManyRequests, 2, http.StatusOK},
		{"exhausts retries", 10, http.StatusGatewayTimeout, 4, http.StatusGatewayTimeout},
		{"404 not retried", 10, http.StatusNotFound, 1, http.StatusNotFound},
		{"500 not retried", 10, http.StatusInternalServerError, 1, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := NewClientWithOptions(WithRetryConfig(fastRetry(3)))
			resp, err := client.Get(context.Background(), server.URL)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			_ = resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestClient_DoWithRetry_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClientWithOptions(WithRetryConfig(fastRetry(2)))
	_, err := client.Get(context.Background(), url)
	if err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestClient_DoWithRetry_NonIdempotentNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL, nil)
	resp, err := NewClientWithOptions(WithRetryConfig(fastRetry(3))).DoWithRetry(context.Background(), req)
	if err != nil {
		t.Fatalf("DoWithRetry() error = %v", err)
	}
	_ = resp.Body.Close()

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestClient_DoWithRetry_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewClient(nil).Get(ctx, server.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Get() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry wait ignored context cancellation")
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClientWithOptions(
		WithRetryConfig(fastRetry(0)),
		WithCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, Cooldown: time.Hour}),
	)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Get() #%d error = %v", i+1, err)
		}
		_ = resp.Body.Close()
	}

	_, err := client.Get(context.Background(), server.URL)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Get() after trip = %v, want ErrCircuitOpen", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestClient_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := NewClientWithOptions(WithRateLimit(resilience.TokenBucketConfig{Burst: 1, PerSecond: 0.001}))

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("first Get() error = %v", err)
	}
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Get(ctx, server.URL); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Get() = %v, want DeadlineExceeded", err)
	}
}

func TestClient_Tracing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	resp, err := NewClientWithOptions(WithTracing(true)).Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()
}
