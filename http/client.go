// Package http provides the HTTP client used to talk to npm registries.
//
// It wraps the standard http.Client with registry-specific configuration:
// timeouts, default headers (User-Agent, npm-session), HTTP/2 and optional
// HTTP/3 transports, bounded retry of transient GET failures, and optional
// per-host circuit breaking and rate limiting.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/willibrandon/gonpm/auth"
	"github.com/willibrandon/gonpm/observability"
	"github.com/willibrandon/gonpm/resilience"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultUserAgent = "gonpm/0.1.0"
)

// Client wraps http.Client with registry configuration.
type Client struct {
	httpClient  *http.Client
	headers     http.Header
	retryConfig *RetryConfig
	logger      observability.Logger
	breakers    *resilience.HostBreakers // nil disables
	limiter     *resilience.HostLimiter  // nil disables
	closer      io.Closer
	auth        auth.Authenticator // nil sends no credentials
}

// Config holds HTTP client configuration.
type Config struct {
	Timeout              time.Duration
	UserAgent            string
	Headers              map[string]string // extra default headers, e.g. npm-session
	Transport            TransportConfig
	RoundTripper         http.RoundTripper // overrides Transport when set
	RetryConfig          *RetryConfig
	Logger               observability.Logger
	EnableTracing        bool
	CircuitBreakerConfig *resilience.CircuitBreakerConfig // nil disables
	RateLimiterConfig    *resilience.TokenBucketConfig    // nil disables
	Authenticator        auth.Authenticator               // nil sends no credentials
}

// DefaultConfig returns a client configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:     DefaultTimeout,
		UserAgent:   DefaultUserAgent,
		Transport:   DefaultTransportConfig(),
		RetryConfig: DefaultRetryConfig(),
	}
}

// NewClient creates a client from cfg; nil uses DefaultConfig.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	rt := cfg.RoundTripper
	if rt == nil {
		rt = NewTransport(cfg.Transport)
	}
	closer, _ := rt.(io.Closer)
	if cfg.EnableTracing {
		rt = observability.NewHTTPTracingTransport(rt, "github.com/willibrandon/gonpm/http")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	headers := http.Header{}
	headers.Set("User-Agent", cfg.UserAgent)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	client := &Client{
		httpClient:  &http.Client{Transport: rt, Timeout: cfg.Timeout},
		headers:     headers,
		retryConfig: cfg.RetryConfig,
		logger:      logger,
		closer:      closer,
		auth:        cfg.Authenticator,
	}
	if cfg.CircuitBreakerConfig != nil {
		client.breakers = resilience.NewHostBreakers(*cfg.CircuitBreakerConfig)
	}
	if cfg.RateLimiterConfig != nil {
		client.limiter = resilience.NewHostLimiter(*cfg.RateLimiterConfig)
	}
	return client
}

// UserAgent returns the User-Agent sent with every request.
func (c *Client) UserAgent() string {
	return c.headers.Get("User-Agent")
}

// StdClient returns the underlying client. Requests sent through it skip
// retries and the per-host policies.
func (c *Client) StdClient() *http.Client {
	return c.httpClient
}

// Close releases transport resources (HTTP/3 connections).
func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *Client) applyHeaders(req *http.Request) error {
	for k, vs := range c.headers {
		if req.Header.Get(k) == "" {
			req.Header[k] = vs
		}
	}
	if c.auth != nil {
		if err := c.auth.Authenticate(req); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}
	return nil
}

// roundTrip performs one attempt and records metrics.
func (c *Client) roundTrip(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	host := req.URL.Host

	if err != nil {
		c.logger.DebugContext(ctx, "HTTP {Method} {URL} failed after {Duration}ms: {Error}",
			req.Method, req.URL.String(), elapsed.Milliseconds(), err)
		observability.HTTPRequestsTotal.WithLabelValues(req.Method, "error", host).Inc()
		return nil, err
	}

	c.logger.VerboseContext(ctx, "HTTP {Method} {URL} -> {StatusCode} ({Duration}ms)",
		req.Method, req.URL.String(), resp.StatusCode, elapsed.Milliseconds())
	observability.HTTPRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode), host).Inc()
	observability.HTTPRequestDuration.WithLabelValues(req.Method, host).Observe(elapsed.Seconds())
	return resp, nil
}

func (c *Client) guarded(ctx context.Context, host string, op resilience.HTTPOperation) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, host); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if c.breakers != nil {
		return c.breakers.Execute(ctx, host, op)
	}
	return op(ctx)
}

// Do executes req once with default headers applied.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.Clone(ctx)
	if err := c.applyHeaders(req); err != nil {
		return nil, err
	}
	return c.guarded(ctx, req.URL.Host, func(ctx context.Context) (*http.Response, error) {
		return c.roundTrip(ctx, req)
	})
}

// Get performs a GET request with retry.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.DoWithRetry(ctx, req)
}

// DoWithRetry executes req, retrying transient failures of idempotent
// requests up to MaxRetries times. Retry-After overrides the backoff.
// Non-idempotent requests are attempted once.
func (c *Client) DoWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !isIdempotent(req.Method) {
		return c.Do(ctx, req)
	}

	host := req.URL.Host
	maxRetries := c.retryConfig.MaxRetries
	schedule := c.retryConfig.NewBackOff()

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptReq := req.Clone(ctx)
		if err := c.applyHeaders(attemptReq); err != nil {
			return nil, err
		}

		resp, lastErr = c.guarded(ctx, host, func(ctx context.Context) (*http.Response, error) {
			return c.roundTrip(ctx, attemptReq)
		})

		if lastErr == nil && !IsRetriableStatus(resp.StatusCode) {
			if attempt > 0 {
				c.logger.DebugContext(ctx, "HTTP {Method} {URL} succeeded after {Attempt} retries",
					req.Method, req.URL.String(), attempt)
			}
			return resp, nil
		}
		if lastErr != nil && !IsRetriable(lastErr) {
			return nil, lastErr
		}
		if attempt == maxRetries {
			break
		}

		wait := schedule.NextBackOff()
		reason := "transport error"
		if resp != nil {
			reason = resp.Status
			if ra := ParseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
				wait = ra
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		c.logger.DebugContext(ctx, "HTTP {Method} {URL} retry {Attempt}/{MaxRetries} in {Backoff}ms ({Reason})",
			req.Method, req.URL.String(), attempt+1, maxRetries, wait.Milliseconds(), reason)
		observability.HTTPRetriesTotal.WithLabelValues(host).Inc()
		observability.RecordRetry(ctx, attempt+1, reason)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if lastErr != nil {
		c.logger.WarnContext(ctx, "HTTP {Method} {URL} failed after {MaxRetries} retries: {Error}",
			req.Method, req.URL.String(), maxRetries, lastErr)
		return nil, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
	}
	// Retries exhausted on a transient status; the caller classifies it.
	return resp, nil
}

// Option is a functional option for configuring the client
type Option func(*Config)

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *Config) {
		cfg.Timeout = timeout
	}
}

// WithUserAgent sets the user agent string
func WithUserAgent(ua string) Option {
	return func(cfg *Config) {
		cfg.UserAgent = ua
	}
}

// WithHeader adds a default header sent with every request
func WithHeader(key, value string) Option {
	return func(cfg *Config) {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[key] = value
	}
}

// WithTLSConfig sets custom TLS configuration
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *Config) {
		cfg.Transport.TLSConfig = tlsCfg
	}
}

// WithHTTP3 enables the HTTP/3 transport with TCP fallback
func WithHTTP3(enabled bool) Option {
	return func(cfg *Config) {
		cfg.Transport.EnableHTTP3 = enabled
	}
}

// WithRoundTripper replaces the transport entirely
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(cfg *Config) {
		cfg.RoundTripper = rt
	}
}

// WithRetryConfig sets custom retry configuration
func WithRetryConfig(retryCfg *RetryConfig) Option {
	return func(cfg *Config) {
		cfg.RetryConfig = retryCfg
	}
}

// WithMaxRetries sets the maximum number of retries
func WithMaxRetries(n int) Option {
	return func(cfg *Config) {
		if cfg.RetryConfig == nil {
			cfg.RetryConfig = DefaultRetryConfig()
		}
		cfg.RetryConfig.MaxRetries = n
	}
}

// WithLogger sets the logger
func WithLogger(logger observability.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

// WithTracing wraps the transport with OpenTelemetry spans
func WithTracing(enabled bool) Option {
	return func(cfg *Config) {
		cfg.EnableTracing = enabled
	}
}

// WithCircuitBreaker enables per-host circuit breaking
func WithCircuitBreaker(config resilience.CircuitBreakerConfig) Option {
	return func(cfg *Config) {
		cfg.CircuitBreakerConfig = &config
	}
}

// WithRateLimit enables per-host rate limiting
func WithRateLimit(config resilience.TokenBucketConfig) Option {
	return func(cfg *Config) {
		cfg.RateLimiterConfig = &config
	}
}

// WithAuthenticator adds credentials to every request. Scope it with
// auth.ForRegistry so other hosts do not receive them.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(cfg *Config) {
		cfg.Authenticator = a
	}
}

// NewClientWithOptions creates a client with functional options
func NewClientWithOptions(opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewClient(cfg)
}
