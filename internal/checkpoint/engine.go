package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"qr-access-control/internal/audit"
	auditdomain "qr-access-control/internal/audit/domain"
	"qr-access-control/internal/credential"
	"qr-access-control/internal/logging"
	policyengine "qr-access-control/internal/policy/engine"
	"qr-access-control/internal/telemetry"
	"qr-access-control/internal/ticket/domain"
	ticketrepo "qr-access-control/internal/ticket/repository"
)

// DefaultDirectoryTimeout bounds each directory call when Deps.DirectoryTimeout is zero.
const DefaultDirectoryTimeout = 2 * time.Second

// TokenVerifier checks a raw token; *credential.Verifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string, now time.Time) (*credential.Token, error)
}

// Deps are the collaborators of an Engine. Verifier and Tickets are required.
type Deps struct {
	Verifier TokenVerifier
	Tickets  ticketrepo.Repository
	// Zones maps zone checkpoint ids to zone ids; nil treats every checkpoint id as its zone id.
	Zones ticketrepo.CheckpointRepository
	// Policy adds deployment-specific denies before commit; nil disables it.
	Policy policyengine.Evaluator
	Audit  audit.ScanRecorder
	Events telemetry.EventEmitter
	Logger *zap.Logger
	// EventID, when set, rejects tokens minted for another event.
	EventID          string
	DirectoryTimeout time.Duration
	MeterProvider    metric.MeterProvider
	TracerProvider   trace.TracerProvider
}

// Engine applies the checkpoint algorithm. It holds no per-ticket state; concurrent
// commits for one ticket are arbitrated by the directory's conditional writes.
type Engine struct {
	verifier TokenVerifier
	tickets  ticketrepo.Repository
	zones    ticketrepo.CheckpointRepository
	policy   policyengine.Evaluator
	audit    audit.ScanRecorder
	events   telemetry.EventEmitter
	logger   *zap.Logger
	eventID  string
	timeout  time.Duration
	inst     *instruments
	nowF     func() time.Time
}

// NewEngine returns an Engine. It fails only when a required dependency is missing or
// the metric instruments cannot be created.
func NewEngine(d Deps) (*Engine, error) {
	if d.Verifier == nil || d.Tickets == nil {
		return nil, errors.New("checkpoint: verifier and ticket repository are required")
	}
	inst, err := newInstruments(d.MeterProvider, d.TracerProvider)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: instruments: %w", err)
	}
	timeout := d.DirectoryTimeout
	if timeout <= 0 {
		timeout = DefaultDirectoryTimeout
	}
	return &Engine{
		verifier: d.Verifier,
		tickets:  d.Tickets,
		zones:    d.Zones,
		policy:   d.Policy,
		audit:    d.Audit,
		events:   d.Events,
		logger:   logging.OrNop(d.Logger).Named("checkpoint"),
		eventID:  d.EventID,
		timeout:  timeout,
		inst:     inst,
		nowF:     time.Now,
	}, nil
}

// ScanGate validates a token at a gate.
func (e *Engine) ScanGate(ctx context.Context, raw, gateID string) Decision {
	return e.Scan(ctx, raw, Gate(gateID))
}

// ScanZone validates a token at a zone checkpoint.
func (e *Engine) ScanZone(ctx context.Context, raw, zoneCheckpointID string) Decision {
	return e.Scan(ctx, raw, Zone(zoneCheckpointID))
}

// Scan runs the full decision for one token at one checkpoint. It never returns an error:
// internal failures become DENY(INVALID) with Unavailable set and are logged.
func (e *Engine) Scan(ctx context.Context, raw string, cp Context) (d Decision) {
	start := time.Now()
	now := e.nowF()
	ctx, span := e.inst.start(ctx, cp)
	var ticketID string
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("scan panicked", zap.Any("panic", p), zap.String("checkpoint_id", cp.ID))
			d = unavailable()
		}
		elapsed := time.Since(start)
		e.inst.record(ctx, span, cp, d, elapsed)
		e.observe(ctx, cp, ticketID, d, now, elapsed)
	}()

	if cp.Kind != KindGate && cp.Kind != KindZone {
		return deny(ReasonInvalid)
	}
	var t *domain.Ticket
	ticketID, t, d = e.admit(ctx, raw, now)
	if t == nil {
		return d
	}
	if cp.Kind == KindGate {
		return e.scanGate(ctx, t, cp.ID, now)
	}
	return e.scanZone(ctx, t, cp.ID, now)
}

// admit runs the token and lookup steps shared by both checkpoint kinds. A nil ticket
// means the returned decision is final. The ticket id is returned once the signature verified.
func (e *Engine) admit(ctx context.Context, raw string, now time.Time) (string, *domain.Ticket, Decision) {
	verifyCtx, cancel := context.WithTimeout(ctx, e.timeout)
	tok, err := e.verifier.Verify(verifyCtx, raw, now)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, credential.ErrExpired) && tok != nil:
		return tok.TicketID, nil, deny(ReasonExpired)
	case credential.IsInfrastructure(err):
		e.logger.Warn("session key lookup failed", zap.Error(err))
		return "", nil, unavailable()
	default:
		return "", nil, deny(ReasonInvalid)
	}
	if e.eventID != "" && tok.EventID != e.eventID {
		return tok.TicketID, nil, deny(ReasonInvalid)
	}

	t, err := e.find(ctx, tok.TicketID)
	if err != nil {
		e.logger.Warn("ticket lookup failed", logging.TicketID(tok.TicketID), zap.Error(err))
		return tok.TicketID, nil, unavailable()
	}
	if t == nil {
		return tok.TicketID, nil, deny(ReasonNotFound)
	}
	if t.EventID != tok.EventID {
		return tok.TicketID, nil, deny(ReasonInvalid)
	}
	return tok.TicketID, t, Decision{}
}

func (e *Engine) scanGate(ctx context.Context, t *domain.Ticket, gateID string, now time.Time) Decision {
	// REVOKED and EXPIRED are reported as USED to keep the reason set closed.
	if t.Status != domain.StatusActive {
		return deny(ReasonUsed)
	}
	if !t.GateAllowed(gateID) {
		return deny(ReasonGate)
	}
	if d, ok := e.applyPolicy(ctx, policyInput(t, KindGate, gateID, "", nil, now)); !ok {
		return d
	}

	commitCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.tickets.TransitionToUsed(commitCtx, t.ID, gateID, now); err != nil {
		if errors.Is(err, ticketrepo.ErrConflict) {
			return deny(ReasonUsed)
		}
		e.logger.Warn("gate commit failed", logging.TicketID(t.ID), logging.GateID(gateID), zap.Error(err))
		return unavailable()
	}
	return Decision{Outcome: Allow, TicketID: t.ID, Entitlements: t.Entitlements}
}

func (e *Engine) scanZone(ctx context.Context, t *domain.Ticket, checkpointID string, now time.Time) Decision {
	if t.Status != domain.StatusUsed {
		return deny(ReasonNoGateEntry)
	}
	zoneID, err := e.zoneFor(ctx, checkpointID)
	if err != nil {
		e.logger.Warn("zone checkpoint lookup failed", logging.ZoneCheckpointID(checkpointID), zap.Error(err))
		return unavailable()
	}
	ent, ok := t.Entitlement(zoneID)
	if !ok {
		return deny(ReasonNoEntitlement)
	}
	if ent.TimeWindow != nil && !ent.TimeWindow.Contains(now) {
		return deny(ReasonTimeWindow)
	}
	if ent.Exhausted() {
		return deny(ReasonReentryBlock)
	}
	if d, ok := e.applyPolicy(ctx, policyInput(t, KindZone, checkpointID, zoneID, &ent, now)); !ok {
		return d
	}

	commitCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.tickets.IncrementReentry(commitCtx, t.ID, zoneID); err != nil {
		if errors.Is(err, ticketrepo.ErrConflict) {
			return deny(ReasonReentryBlock)
		}
		e.logger.Warn("zone commit failed", logging.TicketID(t.ID), logging.ZoneCheckpointID(checkpointID), zap.Error(err))
		return unavailable()
	}
	return Decision{Outcome: Allow, TicketID: t.ID}
}

func (e *Engine) find(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.tickets.Find(ctx, ticketID)
}

func (e *Engine) zoneFor(ctx context.Context, checkpointID string) (string, error) {
	if e.zones == nil {
		return checkpointID, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	zoneID, err := e.zones.ZoneFor(ctx, checkpointID)
	if err != nil {
		return "", err
	}
	if zoneID == "" {
		return checkpointID, nil
	}
	return zoneID, nil
}

// applyPolicy returns ok=false with the final decision when the policy denies or fails.
func (e *Engine) applyPolicy(ctx context.Context, in policyengine.Input) (Decision, bool) {
	if e.policy == nil {
		return Decision{}, true
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	code, err := e.policy.DenyReason(ctx, in)
	if err != nil {
		e.logger.Error("checkpoint policy evaluation failed", logging.TicketID(in.TicketID), zap.Error(err))
		return unavailable(), false
	}
	if code == "" {
		return Decision{}, true
	}
	return deny(ParseReason(code)), false
}

func policyInput(t *domain.Ticket, kind Kind, checkpointID, zoneID string, ent *domain.Entitlement, now time.Time) policyengine.Input {
	in := policyengine.Input{
		Kind:          string(kind),
		CheckpointID:  checkpointID,
		ZoneID:        zoneID,
		TicketID:      t.ID,
		EventID:       t.EventID,
		HolderName:    t.HolderName,
		Status:        string(t.Status),
		GateAllowlist: t.GateAllowlist,
		Now:           now,
	}
	if ent != nil {
		in.Entitlement = &policyengine.EntitlementInput{
			ZoneID:       ent.ZoneID,
			ZoneName:     ent.ZoneName,
			ReentryLimit: ent.ReentryLimit,
			ReentryUsed:  ent.ReentryUsed,
		}
	}
	return in
}

// observe logs the decision, records the attempt and emits telemetry. All best-effort.
func (e *Engine) observe(ctx context.Context, cp Context, ticketID string, d Decision, now time.Time, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("kind", string(cp.Kind)),
		zap.String("checkpoint_id", cp.ID),
		zap.String("outcome", string(d.Outcome)),
		logging.Reason(string(d.Reason)),
		zap.Bool("unavailable", d.Unavailable),
		zap.Duration("elapsed", elapsed),
	}
	if ticketID != "" {
		fields = append(fields, logging.TicketID(ticketID))
	}
	if d.Unavailable {
		e.logger.Warn("scan decided while unavailable", fields...)
	} else {
		e.logger.Info("scan decided", fields...)
	}

	if e.audit != nil && ticketID != "" {
		e.audit.LogScan(ctx, auditdomain.Attempt{
			TicketID:       ticketID,
			CheckpointKind: string(cp.Kind),
			CheckpointID:   cp.ID,
			Outcome:        string(d.Outcome),
			Reason:         string(d.Reason),
			Unavailable:    d.Unavailable,
			CreatedAt:      now.UTC(),
		})
	}
	telemetry.EmitAsync(e.events, &telemetry.ScanEvent{
		EventType:      telemetry.EventTypeScanDecision,
		Source:         "checkpoint_engine",
		EventID:        e.eventID,
		TicketID:       ticketID,
		CheckpointKind: string(cp.Kind),
		CheckpointID:   cp.ID,
		Outcome:        string(d.Outcome),
		Reason:         string(d.Reason),
		Unavailable:    d.Unavailable,
		LatencyMs:      float64(elapsed.Microseconds()) / 1000,
		CreatedAt:      now.UTC(),
	}, e.logger)
}
