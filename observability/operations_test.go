package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func TestOperationSpans(t *testing.T) {
	tests := []struct {
		name     string
		start    func(context.Context)
		wantName string
		wantAttr attribute.KeyValue
	}{
		{
			name:     "install run",
			start:    func(ctx context.Context) { _, s := StartInstallRunSpan(ctx, "/proj", 3); s.End() },
			wantName: "install.run",
			wantAttr: attribute.Int("install.roots", 3),
		},
		{
			name:     "visit",
			start:    func(ctx context.Context) { _, s := StartVisitSpan(ctx, "express", "^4.18.0", "root"); s.End() },
			wantName: "dependency.visit",
			wantAttr: AttrParent.String("root"),
		},
		{
			name:     "resolve",
			start:    func(ctx context.Context) { _, s := StartResolveSpan(ctx, "left-pad", "^1.3.0"); s.End() },
			wantName: "dependency.resolve",
			wantAttr: AttrPackageRange.String("^1.3.0"),
		},
		{
			name:     "fetch",
			start:    func(ctx context.Context) { _, s := StartFetchSpan(ctx, "index", "http://r/left-pad"); s.End() },
			wantName: "registry.fetch.index",
			wantAttr: AttrOperation.String("fetch_index"),
		},
		{
			name:     "archive",
			start:    func(ctx context.Context) { _, s := StartArchiveInstallSpan(ctx, "left-pad", 3); s.End() },
			wantName: "archive.install",
			wantAttr: AttrFileCount.Int(3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := recordSpans(t)
			tt.start(context.Background())

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			if spans[0].Name != tt.wantName {
				t.Errorf("span name = %q, want %q", spans[0].Name, tt.wantName)
			}
			v, ok := spanAttr(spans[0], tt.wantAttr.Key)
			if !ok || v != tt.wantAttr.Value {
				t.Errorf("attribute %s = %v, want %v", tt.wantAttr.Key, v.Emit(), tt.wantAttr.Value.Emit())
			}
		})
	}
}

func TestRecordCacheHitAndRetry(t *testing.T) {
	exporter := recordSpans(t)

	ctx, span := StartFetchSpan(context.Background(), "manifest", "http://r/a/1.0.0")
	RecordCacheHit(ctx, true)
	RecordRetry(ctx, 2, "503")
	span.End()

	got := exporter.GetSpans()[0]
	if v, ok := spanAttr(got, AttrCacheHit); !ok || !v.AsBool() {
		t.Error("cache hit attribute not recorded")
	}
	if len(got.Events) != 1 || got.Events[0].Name != "retry" {
		t.Errorf("events = %+v, want one retry event", got.Events)
	}
}

func TestEndSpanWithError(t *testing.T) {
	exporter := recordSpans(t)

	_, good := StartVisitSpan(context.Background(), "a", "1", "root")
	EndSpanWithError(good, nil)
	_, failed := StartVisitSpan(context.Background(), "b", "1", "root")
	EndSpanWithError(failed, errors.New("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "boom" {
		t.Errorf("status = %+v, want Error boom", spans[1].Status)
	}
}
