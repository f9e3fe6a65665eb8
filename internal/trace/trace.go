// Package trace provides a small OpenCensus tracing and latency-metrics
// helper for components that wrap a backend service; the Blob Broker
// (package blob) is the one that uses it. It reconstructs the shape of
// thatique-awan's internal/trace helper from its call sites in
// blob.go (Tracer.Start/End, LatencyMeasure, Views, ProviderKey) since
// that package itself was not present in the retrieved source.
package trace

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	octrace "go.opencensus.io/trace"
)

// ProviderKey is the tag key used to record which backend provider
// (e.g. "s3", "file") served a call.
var ProviderKey = tag.MustNewKey("provider")

// Tracer starts and ends OpenCensus spans and latency measurements for
// calls made by a portable wrapper type to its driver.
type Tracer struct {
	Package        string
	Provider       string
	LatencyMeasure *stats.Float64Measure
}

type spanState struct {
	span  *octrace.Span
	start time.Time
}

type spanKey struct{}

// Start begins a span named Package.method and records the start time
// for latency measurement. The returned context must be passed to End.
func (t *Tracer) Start(ctx context.Context, method string) context.Context {
	ctx, span := octrace.StartSpan(ctx, t.Package+"."+method)
	return context.WithValue(ctx, spanKey{}, &spanState{span: span, start: time.Now()})
}

// End completes the span started by Start, marks the span with err's
// message if err is non-nil, and records the call's latency tagged by
// provider only (the outcome is not a metric tag).
func (t *Tracer) End(ctx context.Context, err error) {
	s, _ := ctx.Value(spanKey{}).(*spanState)
	if s == nil {
		return
	}
	defer s.span.End()
	if err != nil {
		s.span.SetStatus(octrace.Status{Code: int32(octrace.StatusCodeUnknown), Message: err.Error()})
	}
	if t.LatencyMeasure == nil {
		return
	}
	elapsed := float64(time.Since(s.start)) / float64(time.Millisecond)
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(ProviderKey, t.Provider)}, t.LatencyMeasure.M(elapsed))
}

// LatencyMeasure creates the latency measure for a package, named
// pkgName + "/latency", in milliseconds.
func LatencyMeasure(pkgName string) *stats.Float64Measure {
	return stats.Float64(pkgName+"/latency", "Latency of calls in milliseconds", stats.UnitMilliseconds)
}

// Views returns the standard set of OpenCensus views (call counts and
// latency distribution, by provider) for a package's latency measure.
func Views(pkgName string, latencyMeasure *stats.Float64Measure) []*view.View {
	return []*view.View{
		{
			Name:        pkgName + "/completed_calls",
			Measure:     latencyMeasure,
			Description: "Count of calls by provider.",
			TagKeys:     []tag.Key{ProviderKey},
			Aggregation: view.Count(),
		},
		{
			Name:        pkgName + "/latency",
			Measure:     latencyMeasure,
			Description: "Latency distribution of calls, by provider.",
			TagKeys:     []tag.Key{ProviderKey},
			Aggregation: view.Distribution(0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
		},
	}
}

// ProviderName returns the provider name for metric tagging: the
// result of driver's ProviderName() method if it has one, otherwise
// "unknown".
func ProviderName(driver interface{}) string {
	if pn, ok := driver.(interface{ ProviderName() string }); ok {
		return pn.ProviderName()
	}
	return "unknown"
}
