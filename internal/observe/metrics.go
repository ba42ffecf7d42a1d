// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API; [InitProvider]
// bridges them to a Prometheus exporter so they can be scraped via the
// standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a private [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/hearthware/applicall"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// CallsStarted counts calls answered by the signaling webhook.
	CallsStarted metric.Int64Counter

	// CallsEnded counts bridges torn down, by reason.
	CallsEnded metric.Int64Counter

	// ActiveCalls tracks the number of live bridged calls.
	ActiveCalls metric.Int64UpDownCounter

	// MediaFrames counts audio frames crossing the bridge, by direction.
	MediaFrames metric.Int64Counter

	// AudioLevel samples the peak level of metered inbound frames.
	AudioLevel metric.Float64Histogram

	// ModelEvents counts realtime model events by type.
	ModelEvents metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolDuration tracks tool execution latency by tool name.
	ToolDuration metric.Float64Histogram

	// SessionOps counts session store operations by op name.
	SessionOps metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// levelBuckets defines bucket boundaries for normalized audio peak levels.
var levelBuckets = []float64{
	0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 0.9, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CallsStarted, err = m.Int64Counter("applicall.calls.started",
		metric.WithDescription("Total calls answered by the signaling webhook."),
	); err != nil {
		return nil, err
	}
	if met.CallsEnded, err = m.Int64Counter("applicall.calls.ended",
		metric.WithDescription("Total bridges torn down, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCalls, err = m.Int64UpDownCounter("applicall.active_calls",
		metric.WithDescription("Number of live bridged calls."),
	); err != nil {
		return nil, err
	}
	if met.MediaFrames, err = m.Int64Counter("applicall.media.frames",
		metric.WithDescription("Audio frames crossing the bridge, by direction."),
	); err != nil {
		return nil, err
	}
	if met.AudioLevel, err = m.Float64Histogram("applicall.audio.level",
		metric.WithDescription("Peak level of metered inbound audio frames."),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(levelBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelEvents, err = m.Int64Counter("applicall.model.events",
		metric.WithDescription("Realtime model events by type."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("applicall.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("applicall.tool.duration",
		metric.WithDescription("Tool execution latency by tool name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionOps, err = m.Int64Counter("applicall.session.ops",
		metric.WithDescription("Session store operations by op name."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("applicall.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Pre-built attribute sets for the per-frame hot path.
var (
	attrsInbound  = metric.WithAttributeSet(attribute.NewSet(attribute.String("direction", "inbound")))
	attrsOutbound = metric.WithAttributeSet(attribute.NewSet(attribute.String("direction", "outbound")))
)

// RecordMediaFrame counts one audio frame. Called per frame (50/s per
// direction per call), hence the pre-built attribute sets.
func (m *Metrics) RecordMediaFrame(ctx context.Context, inbound bool) {
	opt := attrsOutbound
	if inbound {
		opt = attrsInbound
	}
	m.MediaFrames.Add(ctx, 1, opt)
}

// RecordModelEvent counts one realtime model event by type.
func (m *Metrics) RecordModelEvent(ctx context.Context, eventType string) {
	m.ModelEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// RecordToolCall records one tool invocation with its outcome and duration.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordCallEnded counts one bridge teardown by reason.
func (m *Metrics) RecordCallEnded(ctx context.Context, reason string) {
	m.CallsEnded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordSessionOp counts one session store operation.
func (m *Metrics) RecordSessionOp(ctx context.Context, op string) {
	m.SessionOps.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}
