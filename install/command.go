// Package install implements "gonpm install": it reads package.json,
// resolves the dependency graph against the registry and materializes it
// in a flat install root.
package install

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/willibrandon/gonpm/auth"
	"github.com/willibrandon/gonpm/cache"
	"github.com/willibrandon/gonpm/core/resolver"
	gonpmhttp "github.com/willibrandon/gonpm/http"
	"github.com/willibrandon/gonpm/observability"
	"github.com/willibrandon/gonpm/packaging"
	"github.com/willibrandon/gonpm/registry"
)

// DefaultPrefix is the install root below the project directory.
const DefaultPrefix = "node_modules"

// Result summarizes a run.
type Result struct {
	Root      string
	SessionID string

	// Packages is the number of distinct names claimed.
	Packages  int
	Extracted int
	Skipped   int
	Fallbacks int

	// Nodes holds every claimed package sorted by name.
	Nodes    []*resolver.Node
	Duration time.Duration
}

// InstallRoot returns the install root opts selects.
func InstallRoot(opts *Options) string {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if filepath.IsAbs(prefix) {
		return prefix
	}
	return filepath.Join(opts.ProjectDir, prefix)
}

// Run executes an install (entry point called from the CLI). On failure
// the partial Result is returned alongside the error.
func Run(ctx context.Context, opts *Options, console Console) (*Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	manifest, err := LoadManifest(opts.ProjectDir)
	if err != nil {
		return nil, err
	}
	roots := manifest.Roots()
	root := InstallRoot(opts)

	session := cache.NewSession()
	session.NoCache = opts.NoCache
	ctx = cache.WithSession(ctx, session)
	result := &Result{Root: root, SessionID: session.ID}

	if len(roots) == 0 {
		if !opts.isQuiet() {
			console.Printf("up to date, nothing to install\n")
		}
		return result, nil
	}

	httpClient, err := newHTTPClient(opts, session, logger)
	if err != nil {
		return result, err
	}
	defer func() { _ = httpClient.Close() }()

	regOpts := []registry.Option{registry.WithRegistry(opts.Registry), registry.WithLogger(logger)}
	if opts.CacheDir != "" && !opts.NoCache {
		dc, err := cache.NewDiskCache(opts.CacheDir)
		if err != nil {
			logger.Warn("Tarball cache disabled: {Error}", err)
		} else {
			regOpts = append(regOpts, registry.WithDiskCache(dc))
		}
	}
	client := registry.NewClient(httpClient, regOpts...)
	installer := packaging.NewInstaller(root, client, packaging.WithLogger(logger))

	status := NewTerminalStatus(console, opts.TTYDetector)
	defer status.Stop()

	walker := resolver.NewWalker(client, installer,
		resolver.WithLogger(logger),
		resolver.WithObserver(&progressObserver{
			status:  status,
			logger:  logger,
			console: console,
			verbose: opts.isDiagnostic(),
		}),
	)

	logger.Info("Installing {Count} dependencies of {Manifest} into {Root} (session {Session})",
		len(roots), manifest.Path, root, session.ID)

	n, err := walker.Run(ctx, roots)
	status.Stop()

	result.Packages = n
	result.Nodes = walker.Visited().Nodes()
	result.Duration = time.Since(start)
	for _, node := range result.Nodes {
		switch {
		case node.Version == "":
		case node.Skipped:
			result.Skipped++
		default:
			result.Extracted++
		}
		if node.Fallback {
			result.Fallbacks++
		}
	}
	if err != nil {
		return result, err
	}

	printSummary(opts, console, result)
	return result, nil
}

func newHTTPClient(opts *Options, session *cache.Session, logger observability.Logger) (*gonpmhttp.Client, error) {
	httpOpts := []gonpmhttp.Option{
		gonpmhttp.WithHeader("npm-session", session.ID),
		gonpmhttp.WithLogger(logger),
		gonpmhttp.WithHTTP3(opts.HTTP3),
		gonpmhttp.WithTracing(opts.Tracing),
	}
	if opts.UserAgent != "" {
		httpOpts = append(httpOpts, gonpmhttp.WithUserAgent(opts.UserAgent))
	}
	if opts.Timeout > 0 {
		httpOpts = append(httpOpts, gonpmhttp.WithTimeout(opts.Timeout))
	}
	httpOpts = append(httpOpts, gonpmhttp.WithMaxRetries(retries(opts.MaxRetries)))
	if opts.CircuitBreaker != nil {
		httpOpts = append(httpOpts, gonpmhttp.WithCircuitBreaker(*opts.CircuitBreaker))
	}
	if opts.RateLimit != nil {
		httpOpts = append(httpOpts, gonpmhttp.WithRateLimit(*opts.RateLimit))
	}

	authenticator, err := registryAuth(opts)
	if err != nil {
		return nil, err
	}
	if authenticator != nil {
		httpOpts = append(httpOpts, gonpmhttp.WithAuthenticator(authenticator))
	}
	return gonpmhttp.NewClientWithOptions(httpOpts...), nil
}

// retries maps Options.MaxRetries to the transport setting: zero keeps the
// default, a negative value disables retries.
func retries(n int) int {
	switch {
	case n == 0:
		return gonpmhttp.DefaultRetryConfig().MaxRetries
	case n < 0:
		return 0
	}
	return n
}

// registryAuth scopes the configured credentials to the registry host.
func registryAuth(opts *Options) (auth.Authenticator, error) {
	var inner auth.Authenticator
	switch {
	case opts.AuthToken != "":
		inner = auth.NewBearerAuthenticator(opts.AuthToken)
	case opts.LegacyAuth != "":
		basic, err := auth.ParseLegacyAuth(opts.LegacyAuth)
		if err != nil {
			return nil, fmt.Errorf("invalid registry credentials: %w", err)
		}
		inner = basic
	default:
		return nil, nil
	}

	reg := opts.Registry
	if reg == "" {
		reg = registry.DefaultRegistry
	}
	scoped, err := auth.ForRegistry(reg, inner)
	if err != nil {
		return nil, fmt.Errorf("invalid registry credentials: %w", err)
	}
	return scoped, nil
}

func printSummary(opts *Options, console Console, result *Result) {
	if opts.isQuiet() {
		return
	}

	if opts.isDetailed() {
		for _, node := range result.Nodes {
			note := ""
			switch {
			case node.Skipped:
				note = " (already installed)"
			case node.Fallback:
				note = " (no match for " + node.Request.Range + ")"
			}
			console.Printf("+ %s@%s%s\n", node.Request.Name, node.Version, note)
		}
		if result.Fallbacks > 0 {
			console.Warning("%d packages installed a version outside the requested range\n", result.Fallbacks)
		}
	}

	console.Printf("added %d packages in %dms\n", result.Packages, result.Duration.Milliseconds())
}
