// Package resolver walks the dependency graph of a manifest and installs
// every package it reaches.
//
// The Walker visits each request concurrently: one goroutine per graph
// edge, no pool limit. A VisitedSet claims each package name at most once
// per run, so every name is resolved and installed once no matter how
// many parents request it; the first claim's version wins. A node's
// install runs alongside the visits of its children and the node finishes
// only when both are done. The first failure cancels the run.
package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/willibrandon/gonpm/core"
	"github.com/willibrandon/gonpm/observability"
	"github.com/willibrandon/gonpm/packaging"
	"github.com/willibrandon/gonpm/registry"
	"github.com/willibrandon/gonpm/version"
)

// MetadataSource provides package indexes and version manifests.
// *registry.Client implements it.
type MetadataSource interface {
	FetchPackageIndex(ctx context.Context, name string) (*registry.PackageIndex, error)
	FetchResolvedPackage(ctx context.Context, name, ver string) (*registry.ResolvedPackage, error)
}

// PackageInstaller materializes a resolved package. *packaging.Installer
// implements it.
type PackageInstaller interface {
	Install(ctx context.Context, name string, dist registry.Dist) (*packaging.InstallResult, error)
	Root() string
}

// Walker resolves and installs a dependency graph.
type Walker struct {
	source    MetadataSource
	installer PackageInstaller
	logger    observability.Logger
	observer  Observer
	visited   *VisitedSet
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(w *Walker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithObserver registers an observer for state transitions.
func WithObserver(o Observer) Option {
	return func(w *Walker) {
		w.observer = o
	}
}

// NewWalker creates a walker for one run.
func NewWalker(source MetadataSource, installer PackageInstaller, opts ...Option) *Walker {
	w := &Walker{
		source:    source,
		installer: installer,
		logger:    observability.NewNullLogger(),
		visited:   NewVisitedSet(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Visited returns the set of names claimed so far.
func (w *Walker) Visited() *VisitedSet {
	return w.visited
}

// Run visits every root request and everything reachable from them. It
// returns the number of claimed names. On failure the first error is
// returned, annotated with the failing package, range and version, and
// no new visits start after it.
func (w *Walker) Run(ctx context.Context, roots []core.DependencyRequest) (int, error) {
	ctx, span := observability.StartInstallRunSpan(ctx, w.installer.Root(), len(roots))

	g, gctx := errgroup.WithContext(ctx)
	for _, req := range roots {
		g.Go(func() error {
			return w.visit(gctx, req)
		})
	}
	err := g.Wait()

	observability.EndSpanWithError(span, err)
	return w.visited.Len(), err
}

func (w *Walker) visit(ctx context.Context, req core.DependencyRequest) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	node, claimed := w.visited.Claim(req)
	if !claimed {
		observability.DedupHitsTotal.Inc()
		w.logger.VerboseContext(ctx, "{Package}@{Range} already claimed by {Claimant}",
			req.Name, req.Range, node.Request.String())
		w.notify(Event{Request: req, State: StateDone, Deduplicated: true})
		return nil
	}

	observability.VisitsInFlight.Inc()
	defer observability.VisitsInFlight.Dec()

	ctx, span := observability.StartVisitSpan(ctx, req.Name, req.Range, req.Parent)
	defer func() {
		if err != nil {
			w.notify(Event{Request: req, State: StateFailed, Version: node.Version, Err: err})
		}
		observability.EndSpanWithError(span, err)
	}()

	w.notify(Event{Request: req, State: StateResolving})
	pkg, sel, err := w.resolve(ctx, req)
	if err != nil {
		return core.Annotate(err, req, "")
	}
	node.Version = pkg.Version
	node.Fallback = sel.Fallback

	children := pkg.Requests()
	node.Children = make([]string, 0, len(children))
	for _, child := range children {
		node.Children = append(node.Children, child.Name)
	}

	g, gctx := errgroup.WithContext(ctx)

	w.notify(Event{Request: req, State: StateInstalling, Version: pkg.Version})
	g.Go(func() error {
		res, err := w.installer.Install(gctx, req.Name, pkg.Dist)
		if err != nil {
			return core.Annotate(err, req, pkg.Version)
		}
		node.Skipped = res.Skipped
		return nil
	})

	w.notify(Event{Request: req, State: StateExpanding, Version: pkg.Version})
	for _, child := range children {
		// Cheap pre-check; Claim inside visit stays authoritative.
		if w.visited.Contains(child.Name) {
			observability.DedupHitsTotal.Inc()
			w.notify(Event{Request: child, State: StateDone, Deduplicated: true})
			continue
		}
		g.Go(func() error {
			return w.visit(gctx, child)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	w.logger.DebugContext(ctx, "Installed {Package}@{Version}", req.Name, pkg.Version)
	w.notify(Event{Request: req, State: StateDone, Version: pkg.Version})
	return nil
}

// resolve fetches the index of the request's target, selects a version
// and fetches its manifest. For "npm:" aliases the target differs from
// the name the package is installed under.
func (w *Walker) resolve(ctx context.Context, req core.DependencyRequest) (*registry.ResolvedPackage, version.Selection, error) {
	target, rng := req.Target()
	ctx, span := observability.StartResolveSpan(ctx, target, rng)

	pkg, sel, err := w.selectAndFetch(ctx, target, rng)
	if err == nil {
		span.SetAttributes(
			observability.AttrPackageVersion.String(pkg.Version),
			observability.AttrFallback.Bool(sel.Fallback),
		)
	}
	observability.EndSpanWithError(span, err)
	return pkg, sel, err
}

func (w *Walker) selectAndFetch(ctx context.Context, target, rng string) (*registry.ResolvedPackage, version.Selection, error) {
	idx, err := w.source.FetchPackageIndex(ctx, target)
	if err != nil {
		return nil, version.Selection{}, err
	}

	sel, err := idx.Select(rng)
	if err != nil {
		return nil, sel, err
	}
	if sel.Fallback {
		observability.VersionSelectionsTotal.WithLabelValues("fallback").Inc()
		w.logger.WarnContext(ctx, "No version of {Package} satisfies {Range}, using {Version}",
			target, rng, sel.Version.String())
	} else {
		observability.VersionSelectionsTotal.WithLabelValues("matched").Inc()
	}

	pkg, err := w.source.FetchResolvedPackage(ctx, target, sel.Version.String())
	if err != nil {
		return nil, sel, err
	}
	return pkg, sel, nil
}

func (w *Walker) notify(e Event) {
	if w.observer != nil {
		w.observer.OnTransition(e)
	}
}
