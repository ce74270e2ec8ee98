// Package audit records checkpoint scan attempts for the ticket history view.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qr-access-control/internal/audit/domain"
	auditrepo "qr-access-control/internal/audit/repository"
)

// writeTimeout bounds one attempt write so a slow store cannot stall a scan.
const writeTimeout = 2 * time.Second

// ScanRecorder writes one scan attempt. LogScan is best-effort: failures are logged and do not affect the caller.
type ScanRecorder interface {
	LogScan(ctx context.Context, a domain.Attempt)
}

// Logger implements ScanRecorder using the attempt repository.
type Logger struct {
	repo   auditrepo.Repository
	logger *zap.Logger
	nowF   func() time.Time
}

var _ ScanRecorder = (*Logger)(nil)

// NewLogger returns a ScanRecorder that persists to repo. logger may be nil.
func NewLogger(repo auditrepo.Repository, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, logger: logger.Named("audit"), nowF: time.Now}
}

// LogScan fills ID and CreatedAt when unset and writes the attempt.
// The write is detached from ctx cancellation so an aborted request is still recorded.
func (l *Logger) LogScan(ctx context.Context, a domain.Attempt) {
	if l == nil || l.repo == nil {
		return
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = l.nowF().UTC()
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := l.repo.Create(writeCtx, &a); err != nil {
		l.logger.Warn("failed to record scan attempt",
			zap.String("ticket_id", a.TicketID),
			zap.String("checkpoint_id", a.CheckpointID),
			zap.Error(err))
	}
}
