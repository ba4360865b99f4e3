package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"network timeout", &net.DNSError{IsTimeout: true}, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, false},
		{"other error", errors.New("other"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetriable(tt.err); got != tt.want {
				t.Errorf("IsRetriable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetriableStatus(t *testing.T) {
	for code, want := range map[int]bool{
		200: false, 404: false, 429: true, 500: false, 502: false, 503: true, 504: true,
	} {
		if got := IsRetriableStatus(code); got != want {
			t.Errorf("IsRetriableStatus(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		min   time.Duration
		max   time.Duration
	}{
		{"empty", "", 0, 0},
		{"seconds", "5", 5 * time.Second, 5 * time.Second},
		{"padded", " 2 ", 2 * time.Second, 2 * time.Second},
		{"negative", "-3", 0, 0},
		{"capped", "100000", maxRetryAfter, maxRetryAfter},
		{"garbage", "soon", 0, 0},
		{"past date", "Mon, 02 Jan 2006 15:04:05 GMT", 0, 0},
		{"future date", time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat), 20 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRetryAfter(tt.value)
			if got < tt.min || got > tt.max {
				t.Errorf("ParseRetryAfter(%q) = %v, want in [%v, %v]", tt.value, got, tt.min, tt.max)
			}
		})
	}
}

func TestRetryConfig_NewBackOff(t *testing.T) {
	rc := &RetryConfig{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
		BackoffFactor:  2,
	}
	b := rc.NewBackOff()

	want := []time.Duration{10, 20, 40, 40}
	for i, w := range want {
		if got := b.NextBackOff(); got != w*time.Millisecond {
			t.Errorf("NextBackOff() #%d = %v, want %v", i+1, got, w*time.Millisecond)
		}
	}
}

func TestIsIdempotent(t *testing.T) {
	for method, want := range map[string]bool{
		http.MethodGet: true, http.MethodHead: true, http.MethodPost: false, http.MethodPut: false,
	} {
		if got := isIdempotent(method); got != want {
			t.Errorf("isIdempotent(%s) = %v, want %v", method, got, want)
		}
	}
}
