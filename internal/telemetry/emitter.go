package telemetry

import (
	"context"
	"errors"
)

// EventEmitter emits scan events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *ScanEvent) error
}

// Fanout emits every event to each non-nil emitter and joins their errors.
type Fanout []EventEmitter

// Emit sends event to all emitters; one failing emitter does not stop the others.
func (f Fanout) Emit(ctx context.Context, event *ScanEvent) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
