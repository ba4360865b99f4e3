package install

import (
	"time"

	"github.com/willibrandon/gonpm/observability"
	"github.com/willibrandon/gonpm/resilience"
)

// Verbosity levels accepted by Options.Verbosity.
const (
	VerbosityQuiet      = "quiet"
	VerbosityMinimal    = "minimal"
	VerbosityNormal     = "normal"
	VerbosityDetailed   = "detailed"
	VerbosityDiagnostic = "diagnostic"
)

// Options holds install configuration.
type Options struct {
	// ProjectDir holds package.json
	ProjectDir string

	// Prefix is the install root; relative paths are taken from ProjectDir.
	// Empty means ProjectDir/node_modules.
	Prefix string

	Registry  string
	UserAgent string
	Timeout   time.Duration

	// MaxRetries bounds retries of failed registry requests. Zero uses the
	// transport default; a negative value disables retries.
	MaxRetries int

	// AuthToken is sent as a bearer token to the registry host. LegacyAuth
	// is an .npmrc "_auth" value, used when AuthToken is empty.
	AuthToken  string
	LegacyAuth string

	// CacheDir enables the on-disk tarball cache when set.
	CacheDir string
	NoCache  bool

	HTTP3   bool
	Tracing bool

	// CircuitBreaker and RateLimit are nil unless enabled.
	CircuitBreaker *resilience.CircuitBreakerConfig
	RateLimit      *resilience.TokenBucketConfig

	Verbosity string
	Logger    observability.Logger

	// TTYDetector decides whether the live status line is drawn. Nil uses
	// DefaultTTYDetector.
	TTYDetector TTYDetector
}

func (o *Options) isQuiet() bool {
	switch o.Verbosity {
	case VerbosityQuiet, "q", VerbosityMinimal, "m":
		return true
	}
	return false
}

func (o *Options) isDetailed() bool {
	switch o.Verbosity {
	case VerbosityDetailed, "d", VerbosityDiagnostic, "diag":
		return true
	}
	return false
}

func (o *Options) isDiagnostic() bool {
	return o.Verbosity == VerbosityDiagnostic || o.Verbosity == "diag"
}
