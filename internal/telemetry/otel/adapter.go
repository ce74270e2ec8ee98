package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"qr-access-control/internal/telemetry"
)

// scopeName is the instrumentation scope for scan decision log records.
const scopeName = "qr-access-control/checkpoint"

// recordEmitter is the subset of otellog.Logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends scan events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(scopeName)}
}

// NewEventEmitterWithLogger wraps any record emitter (e.g. an otellog.Logger).
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.ScanEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the scan event to an OTel log record: the JSON event as body, the
// low-cardinality fields as attributes. Denials are logged at WARN.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.ScanEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	if event.Outcome == "DENY" {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	}
	if body, err := json.Marshal(event); err == nil {
		rec.SetBody(otellog.BytesValue(body))
	}

	attrs := []otellog.KeyValue{
		otellog.String("event_type", event.EventType),
		otellog.String("checkpoint_kind", event.CheckpointKind),
		otellog.String("checkpoint_id", event.CheckpointID),
		otellog.String("outcome", event.Outcome),
		otellog.Bool("unavailable", event.Unavailable),
	}
	if event.Source != "" {
		attrs = append(attrs, otellog.String("source", event.Source))
	}
	if event.Reason != "" {
		attrs = append(attrs, otellog.String("reason", event.Reason))
	}
	if event.TicketID != "" {
		attrs = append(attrs, otellog.String("ticket_id", event.TicketID))
	}
	if event.EventID != "" {
		attrs = append(attrs, otellog.String("event_id", event.EventID))
	}
	rec.AddAttributes(attrs...)
	e.logger.Emit(ctx, rec)
	return nil
}
