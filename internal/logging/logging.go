// Package logging builds the zap logger shared by the server, worker, and CLI.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level   string // debug|info|warn|error
	Format  string // json|console
	Service string
}

// New creates a configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var zcfg zap.Config
	if strings.ToLower(cfg.Format) == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}

	service := cfg.Service
	if service == "" {
		service = "qr-access-control"
	}
	return logger.With(zap.String("service", service)), nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// OrNop returns logger, or a no-op logger when logger is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Addr returns a zap field for a listen address.
func Addr(addr string) zap.Field { return zap.String("addr", addr) }

// TicketID returns a zap field for a ticket identity.
func TicketID(id string) zap.Field { return zap.String("ticket_id", id) }

// EventID returns a zap field for an event identity.
func EventID(id string) zap.Field { return zap.String("event_id", id) }

// GateID returns a zap field for a gate identity.
func GateID(id string) zap.Field { return zap.String("gate_id", id) }

// ZoneCheckpointID returns a zap field for a zone checkpoint identity.
func ZoneCheckpointID(id string) zap.Field { return zap.String("zone_checkpoint_id", id) }

// StaffID returns a zap field for a staff identity.
func StaffID(id string) zap.Field { return zap.String("staff_id", id) }

// Reason returns a zap field for a decision reason code.
func Reason(code string) zap.Field { return zap.String("reason", code) }

// State returns a zap field for a controller state.
func State(s string) zap.Field { return zap.String("state", s) }

// Method returns a zap field for an HTTP method.
func Method(method string) zap.Field { return zap.String("method", method) }

// Path returns a zap field for a URL path.
func Path(path string) zap.Field { return zap.String("path", path) }

// RemoteIP returns a zap field for a remote IP address.
func RemoteIP(ip string) zap.Field { return zap.String("remote_ip", ip) }
