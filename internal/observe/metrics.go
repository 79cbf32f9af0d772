// Package observe provides the pipeline's OpenTelemetry metrics and the
// Prometheus endpoint that exposes them.
//
// Instruments are created from a [metric.MeterProvider]. Production code uses
// [DefaultMetrics], which is bound to the global provider and therefore a
// no-op until [InitProvider] installs the Prometheus bridge. Tests should use
// [NewMetrics] with their own provider to avoid cross-test pollution.
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
const meterName = "spectro"

// Pipeline modes used as the "mode" attribute.
const (
	ModeLive = "live"
	ModeFile = "file"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// TransformDuration tracks the time spent turning one frame into a row.
	TransformDuration metric.Float64Histogram

	// FramesPushed counts rows appended to the spectrogram. Use with
	// attribute.String("mode", ...).
	FramesPushed metric.Int64Counter

	// FramesDropped counts live frames overwritten before the consumer saw
	// them.
	FramesDropped metric.Int64Counter

	// StreamInterruptions counts capture callbacks that reported a status
	// flag. Use with attribute.String("kind", ...).
	StreamInterruptions metric.Int64Counter

	// TrackLoads counts Load calls. Use with attribute.String("status", ...).
	TrackLoads metric.Int64Counter

	// DecodeErrors counts failed decodes. Use with attribute.String("op", ...).
	DecodeErrors metric.Int64Counter

	// SinkSends counts payloads written by network sinks. Use with
	// attribute.String("sink", ...), attribute.String("status", ...).
	SinkSends metric.Int64Counter

	// SinkClients tracks connected websocket clients.
	SinkClients metric.Int64UpDownCounter
}

// transformBuckets are histogram bucket boundaries (in seconds) sized for a
// single FFT of a few thousand points.
var transformBuckets = []float64{
	0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TransformDuration, err = m.Float64Histogram("spectro.transform.duration",
		metric.WithDescription("Time to window, transform and compress one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(transformBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FramesPushed, err = m.Int64Counter("spectro.frames.pushed",
		metric.WithDescription("Spectrum rows appended to the spectrogram by mode."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("spectro.frames.dropped",
		metric.WithDescription("Captured frames overwritten before they were transformed."),
	); err != nil {
		return nil, err
	}
	if met.StreamInterruptions, err = m.Int64Counter("spectro.stream.interruptions",
		metric.WithDescription("Capture callbacks that reported an overflow or underflow."),
	); err != nil {
		return nil, err
	}
	if met.TrackLoads, err = m.Int64Counter("spectro.track.loads",
		metric.WithDescription("Track loads by status."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("spectro.decode.errors",
		metric.WithDescription("Failed decodes by stage."),
	); err != nil {
		return nil, err
	}
	if met.SinkSends, err = m.Int64Counter("spectro.sink.sends",
		metric.WithDescription("Payloads sent by network sinks by sink and status."),
	); err != nil {
		return nil, err
	}
	if met.SinkClients, err = m.Int64UpDownCounter("spectro.sink.clients",
		metric.WithDescription("Number of connected websocket clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. The global provider delegates to
// whatever InitProvider installs later, so early callers are not lost.
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

// RecordTransform records how long one frame took to transform.
func (m *Metrics) RecordTransform(ctx context.Context, d time.Duration) {
	m.TransformDuration.Record(ctx, d.Seconds())
}

// RecordFramePushed increments the pushed-row counter for mode.
func (m *Metrics) RecordFramePushed(ctx context.Context, mode string) {
	m.FramesPushed.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordFramesDropped adds n to the dropped-frame counter.
func (m *Metrics) RecordFramesDropped(ctx context.Context, n int64) {
	if n <= 0 {
		return
	}
	m.FramesDropped.Add(ctx, n)
}

// RecordStreamInterruption adds n interruptions of the given kind.
func (m *Metrics) RecordStreamInterruption(ctx context.Context, kind string, n int64) {
	if n <= 0 {
		return
	}
	m.StreamInterruptions.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTrackLoad records a load attempt with status "ok" or "error".
func (m *Metrics) RecordTrackLoad(ctx context.Context, status string) {
	m.TrackLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDecodeError records a failed decode at stage op.
func (m *Metrics) RecordDecodeError(ctx context.Context, op string) {
	m.DecodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordSinkSend records one payload sent by sink with status "ok" or "error".
func (m *Metrics) RecordSinkSend(ctx context.Context, sink, status string) {
	m.SinkSends.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sink", sink),
			attribute.String("status", status),
		),
	)
}
