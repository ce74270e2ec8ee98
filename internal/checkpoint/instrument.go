package checkpoint

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "qr-access-control/checkpoint"

type instruments struct {
	tracer    trace.Tracer
	decisions metric.Int64Counter
	duration  metric.Float64Histogram
}

// newInstruments builds the scan span and metrics. Nil providers use the otel globals.
func newInstruments(mp metric.MeterProvider, tp trace.TracerProvider) (*instruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	meter := mp.Meter(instrumentationName)
	decisions, err := meter.Int64Counter("checkpoint.decisions",
		metric.WithDescription("Checkpoint scan decisions by kind, outcome and reason."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("checkpoint.scan.duration",
		metric.WithDescription("Checkpoint scan latency."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &instruments{tracer: tp.Tracer(instrumentationName), decisions: decisions, duration: duration}, nil
}

func (in *instruments) start(ctx context.Context, cp Context) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "checkpoint.scan", trace.WithAttributes(
		attribute.String("checkpoint.kind", string(cp.Kind)),
		attribute.String("checkpoint.id", cp.ID),
	))
}

func (in *instruments) record(ctx context.Context, span trace.Span, cp Context, d Decision, elapsed time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", string(cp.Kind)),
		attribute.String("outcome", string(d.Outcome)),
		attribute.String("reason", string(d.Reason)),
	}
	in.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
	in.duration.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(attrs[0], attrs[1]))
	span.SetAttributes(
		attribute.String("checkpoint.outcome", string(d.Outcome)),
		attribute.String("checkpoint.reason", string(d.Reason)),
		attribute.Bool("checkpoint.unavailable", d.Unavailable),
	)
	span.End()
}
