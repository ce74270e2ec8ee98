package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before shutting down OTel
// providers and the Kafka writer, so in-flight async emits can complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the scan response is not blocked.
// emitter and event may be nil; EmitAsync then returns without starting a goroutine.
// The goroutine uses context.Background() so request cancellation does not abort the emit.
func EmitAsync(emitter EventEmitter, event *ScanEvent, logger *zap.Logger) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil && logger != nil {
			logger.Warn("telemetry: async emit failed", zap.String("event_type", event.EventType), zap.Error(err))
		}
	}()
}
