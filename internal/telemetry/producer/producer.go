// Package producer ships scan events to a message broker for downstream consumers.
package producer

import (
	"context"

	"qr-access-control/internal/telemetry"
)

// Producer emits scan events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call via telemetry.EmitAsync.
	Emit(ctx context.Context, event *telemetry.ScanEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
