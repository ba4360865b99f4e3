package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the tracer name for gonpm operations
	TracerName = "github.com/willibrandon/gonpm"
)

// Common attribute keys
const (
	AttrPackageName    = attribute.Key("npm.package.name")
	AttrPackageVersion = attribute.Key("npm.package.version")
	AttrPackageRange   = attribute.Key("npm.package.range")
	AttrParent         = attribute.Key("npm.package.parent")
	AttrURL            = attribute.Key("npm.registry.url")
	AttrOperation      = attribute.Key("npm.operation")
	AttrCacheHit       = attribute.Key("npm.cache.hit")
	AttrFallback       = attribute.Key("npm.resolve.fallback")
	AttrFileCount      = attribute.Key("npm.archive.file_count")
)

// StartInstallRunSpan starts the span covering a whole install run
func StartInstallRunSpan(ctx context.Context, installRoot string, rootCount int) (context.Context, trace.Span) {
	return startSpan(ctx, "install.run",
		attribute.String("install.root", installRoot),
		attribute.Int("install.roots", rootCount),
		AttrOperation.String("install"),
	)
}

// StartVisitSpan starts a span for one dependency visit
func StartVisitSpan(ctx context.Context, name, rng, parent string) (context.Context, trace.Span) {
	return startSpan(ctx, "dependency.visit",
		AttrPackageName.String(name),
		AttrPackageRange.String(rng),
		AttrParent.String(parent),
		AttrOperation.String("visit"),
	)
}

// StartResolveSpan starts a span for selecting a version
func StartResolveSpan(ctx context.Context, name, rng string) (context.Context, trace.Span) {
	return startSpan(ctx, "dependency.resolve",
		AttrPackageName.String(name),
		AttrPackageRange.String(rng),
		AttrOperation.String("resolve"),
	)
}

// StartFetchSpan starts a span for a registry fetch of the given kind
// (index, manifest, archive).
func StartFetchSpan(ctx context.Context, kind, url string) (context.Context, trace.Span) {
	return startSpan(ctx, "registry.fetch."+kind,
		AttrURL.String(url),
		AttrOperation.String("fetch_"+kind),
	)
}

// StartArchiveInstallSpan starts a span for extracting one package
func StartArchiveInstallSpan(ctx context.Context, name string, fileCount int) (context.Context, trace.Span) {
	return startSpan(ctx, "archive.install",
		AttrPackageName.String(name),
		AttrFileCount.Int(fileCount),
		AttrOperation.String("extract"),
	)
}

// RecordCacheHit records cache hit/miss on the current span
func RecordCacheHit(ctx context.Context, hit bool) {
	trace.SpanFromContext(ctx).SetAttributes(AttrCacheHit.Bool(hit))
}

// RecordRetry records a retry attempt on the current span
func RecordRetry(ctx context.Context, attempt int, reason string) {
	trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
		attribute.Int("retry.attempt", attempt),
		attribute.String("retry.reason", reason),
	))
}

// EndSpanWithError ends a span, marking it failed when err is non-nil
func EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
