// Package telemetry records relay metrics and job spans through OpenTelemetry.
// The global providers are no-ops unless the process installs real ones.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "docrelay"

var (
	attrOutcome = attribute.Key("outcome")
	attrReason  = attribute.Key("reason")
	attrJob     = attribute.Key("job")
	attrFormat  = attribute.Key("format")
)

// Metrics groups the relay instruments. A nil *Metrics records nothing.
type Metrics struct {
	sessions   metric.Int64UpDownCounter
	uploads    metric.Int64Counter
	paragraphs metric.Int64Counter
	dropped    metric.Int64Counter
	jobLatency metric.Float64Histogram
	tracer     trace.Tracer
}

// New builds instruments from the global meter and tracer providers.
func New() (*Metrics, error) {
	return NewWithProviders(otel.GetMeterProvider(), otel.GetTracerProvider())
}

// NewWithProviders builds instruments from explicit providers.
func NewWithProviders(mp metric.MeterProvider, tp trace.TracerProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	sessions, err := meter.Int64UpDownCounter("docrelay.sessions.active", metric.WithDescription("Open client sessions."))
	if err != nil {
		return nil, err
	}
	uploads, err := meter.Int64Counter("docrelay.uploads.total", metric.WithDescription("Documents accepted by the upload endpoint."))
	if err != nil {
		return nil, err
	}
	paragraphs, err := meter.Int64Counter("docrelay.paragraphs.total", metric.WithDescription("Paragraphs processed by translation jobs."))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("docrelay.events.dropped.total", metric.WithDescription("Outbound events that could not be delivered."))
	if err != nil {
		return nil, err
	}
	jobLatency, err := meter.Float64Histogram("docrelay.job.duration.ms", metric.WithDescription("Job wall time in milliseconds."), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sessions:   sessions,
		uploads:    uploads,
		paragraphs: paragraphs,
		dropped:    dropped,
		jobLatency: jobLatency,
		tracer:     tp.Tracer(instrumentationName + "/pipeline"),
	}, nil
}

func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1)
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, -1)
}

func (m *Metrics) RecordUpload(ctx context.Context, extension string) {
	if m == nil {
		return
	}
	m.uploads.Add(ctx, 1, metric.WithAttributes(attrFormat.String(extension)))
}

func (m *Metrics) RecordParagraph(ctx context.Context, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.paragraphs.Add(ctx, 1, metric.WithAttributes(attrOutcome.String(outcome)))
}

func (m *Metrics) RecordDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(attrReason.String(reason)))
}

// StartJob opens a span for job and returns a finish func that ends it and
// records the elapsed time.
func (m *Metrics) StartJob(ctx context.Context, job string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	if m == nil {
		return ctx, func(error) {}
	}
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, job, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		elapsed := float64(time.Since(start)) / float64(time.Millisecond)
		m.jobLatency.Record(ctx, elapsed, metric.WithAttributes(attrJob.String(job)))
	}
}
