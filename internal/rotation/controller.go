// Package rotation keeps one attendee's rotating token fresh: it re-signs on the token ttl
// and re-syncs the session context from the issuer on a slower cadence.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"qr-access-control/internal/credential"
	"qr-access-control/internal/logging"
	"qr-access-control/internal/session/domain"
	sessionservice "qr-access-control/internal/session/service"
)

// State is the controller lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Syncing
	Active
	StaleSync
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Syncing:
		return "SYNCING"
	case Active:
		return "ACTIVE"
	case StaleSync:
		return "STALE_SYNC"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

const (
	DefaultSyncInterval  = 60 * time.Second
	DefaultIssuerTimeout = 5 * time.Second

	// rotateLead is how long before a token's exp its replacement is minted.
	rotateLead = 250 * time.Millisecond
)

var (
	// ErrNoSession is returned by ForceRotate when there is no unexpired session context.
	ErrNoSession = errors.New("rotation: no usable session context")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("rotation: already started")
	errExpiredContext = errors.New("rotation: issuer returned an expired session context")
)

// Issuer returns a session context for a ticket. *service.Issuer and the HTTP client implement it.
type Issuer interface {
	Issue(ctx context.Context, ticketID string) (*domain.Context, error)
}

// Options configure a Controller. TicketID is required.
type Options struct {
	TicketID string
	// EventID is used when the issued context carries none.
	EventID      string
	SyncInterval time.Duration
	// RefreshAhead triggers an early sync when the context has less than this left. Defaults to SyncInterval.
	RefreshAhead  time.Duration
	IssuerTimeout time.Duration
	// IsUnrecoverable reports issuer errors that end the session at once. Defaults to
	// ticket-not-found and ticket-not-active.
	IsUnrecoverable func(error) bool
	// OnToken, when set, is called from the loop after each new token.
	OnToken func(*credential.Token)
	Logger  *zap.Logger
}

// Snapshot is a consistent view of the controller for display.
type Snapshot struct {
	State            State
	Token            *credential.Token
	SessionExpiresAt time.Time
	LastError        error
}

// Controller drives one ticket's token rotation. Rotation and sync never overlap:
// every state change runs under opMu, and the current token is swapped atomically.
// Readers never take opMu, which is held across issuer calls.
type Controller struct {
	issuer Issuer
	signer *credential.Signer
	opts   Options
	logger *zap.Logger
	nowF   func() time.Time

	opMu    sync.Mutex
	state   atomic.Int32
	session *domain.Context
	lastErr error
	token   atomic.Pointer[credential.Token]
	view    atomic.Pointer[syncView]
	minted  chan struct{}

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController returns a controller in the UNINITIALIZED state.
func NewController(issuer Issuer, signer *credential.Signer, opts Options) (*Controller, error) {
	if issuer == nil || signer == nil {
		return nil, errors.New("rotation: issuer and signer are required")
	}
	if opts.TicketID == "" {
		return nil, errors.New("rotation: ticket id is required")
	}
	if signer.TTL <= 0 {
		return nil, errors.New("rotation: signer ttl must be positive")
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.RefreshAhead <= 0 {
		opts.RefreshAhead = opts.SyncInterval
	}
	if opts.IssuerTimeout <= 0 {
		opts.IssuerTimeout = DefaultIssuerTimeout
	}
	if opts.IsUnrecoverable == nil {
		opts.IsUnrecoverable = defaultUnrecoverable
	}
	logger := logging.OrNop(opts.Logger).Named("rotation").With(logging.TicketID(opts.TicketID))
	return &Controller{
		issuer: issuer,
		signer: signer,
		opts:   opts,
		logger: logger,
		nowF:   time.Now,
		minted: make(chan struct{}, 1),
	}, nil
}

func defaultUnrecoverable(err error) bool {
	return errors.Is(err, sessionservice.ErrTicketNotFound) || errors.Is(err, sessionservice.ErrTicketNotActive)
}

// Start syncs the session and begins rotating in a background loop until Stop or ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.done != nil {
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(loopCtx, c.done)
	return nil
}

// Stop cancels both timers and waits for the loop to exit. Safe to call more than once.
func (c *Controller) Stop() {
	c.lifeMu.Lock()
	cancel, done := c.cancel, c.done
	c.lifeMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	c.opMu.Lock()
	c.sync(ctx, false)
	c.opMu.Unlock()

	rotate := time.NewTimer(c.untilRotate())
	defer rotate.Stop()
	resync := time.NewTicker(c.opts.SyncInterval)
	defer resync.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rotate.C:
			c.rotateTick(ctx)
			rotate.Reset(c.untilRotate())
		case <-c.minted:
			rotate.Reset(c.untilRotate())
		case <-resync.C:
			c.syncTick(ctx)
		}
	}
}

// untilRotate is the delay before the showing token must be replaced: rotateLead ahead of
// its exp, which is whole seconds and so can fall up to a second short of mint time + TTL.
// With no token showing it is one TTL.
func (c *Controller) untilRotate() time.Duration {
	tok := c.token.Load()
	if tok == nil {
		return c.signer.TTL
	}
	lead := min(rotateLead, c.signer.TTL/4)
	d := tok.ExpiresAt.Sub(c.nowF()) - lead
	return max(min(d, c.signer.TTL), lead)
}

// Token returns the current token, or nil when none may be shown.
func (c *Controller) Token() *credential.Token { return c.token.Load() }

// State returns the current state.
func (c *Controller) State() State { return State(c.state.Load()) }

type syncView struct {
	expiresAt time.Time
	lastErr   error
}

// Snapshot returns the state, token, session expiry and last sync error.
// It does not wait for an in-flight sync.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{State: c.State(), Token: c.token.Load()}
	if v := c.view.Load(); v != nil {
		s.SessionExpiresAt = v.expiresAt
		s.LastError = v.lastErr
	}
	return s
}

// publish copies session expiry and the last error for Snapshot. Callers hold opMu.
func (c *Controller) publish() {
	v := &syncView{lastErr: c.lastErr}
	if c.session != nil {
		v.expiresAt = c.session.ExpiresAt
	}
	c.view.Store(v)
}

// Retry re-runs the issuer and on success immediately mints a token. It is the only way out of FAILED.
func (c *Controller) Retry(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.sync(ctx, true)
}

// ForceRotate re-signs now without touching the sync timer.
func (c *Controller) ForceRotate() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.State() == Failed || c.session == nil || c.session.Expired(c.nowF()) {
		return ErrNoSession
	}
	return c.mint()
}

func (c *Controller) rotateTick(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.State() == Failed || c.session == nil {
		return
	}
	now := c.nowF()
	if c.session.Expired(now) {
		// Never sign from an expired context; mint again only after a successful sync.
		c.token.Store(nil)
		_ = c.sync(ctx, true)
		return
	}
	if c.session.Remaining(now) < c.opts.RefreshAhead {
		// An early sync failure leaves the old context in place; mint from it below.
		_ = c.sync(ctx, false)
		if c.State() == Failed {
			return
		}
	}
	if err := c.mint(); err != nil {
		c.logger.Error("token signing failed", zap.Error(err))
	}
}

func (c *Controller) syncTick(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.State() == Failed {
		return
	}
	_ = c.sync(ctx, false)
}

// sync calls the issuer and applies the result. forceMint re-signs on success even when a
// token is already showing. Callers hold opMu.
func (c *Controller) sync(ctx context.Context, forceMint bool) error {
	if c.session == nil || c.State() == StaleSync || c.State() == Failed {
		c.setState(Syncing)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.IssuerTimeout)
	sc, err := c.issuer.Issue(callCtx, c.opts.TicketID)
	cancel()
	now := c.nowF()
	if err == nil && (sc == nil || len(sc.Key) == 0) {
		err = errors.New("rotation: issuer returned an empty session context")
	}
	if err == nil && sc.Expired(now) {
		err = errExpiredContext
	}
	if err != nil {
		c.lastErr = err
		c.onSyncFailure(err, now)
		c.publish()
		return err
	}

	c.lastErr = nil
	c.session = sc
	c.publish()
	c.setState(Active)
	if forceMint || c.token.Load() == nil {
		if err := c.mint(); err != nil {
			c.logger.Error("token signing failed", zap.Error(err))
			return err
		}
	}
	return nil
}

func (c *Controller) onSyncFailure(err error, now time.Time) {
	switch {
	case c.opts.IsUnrecoverable(err):
		c.logger.Warn("session lost", zap.Error(err))
		c.fail()
	case c.session != nil && !c.session.Expired(now):
		c.logger.Warn("session sync failed; serving last known context", zap.Error(err), zap.Time("session_expires_at", c.session.ExpiresAt))
		c.setState(StaleSync)
	default:
		c.logger.Warn("session sync failed with no usable context", zap.Error(err))
		c.fail()
	}
}

func (c *Controller) fail() {
	c.session = nil
	c.token.Store(nil)
	c.setState(Failed)
}

// mint signs a token from the current context. Callers hold opMu.
func (c *Controller) mint() error {
	now := c.nowF()
	if c.session == nil || c.session.Expired(now) {
		return ErrNoSession
	}
	eventID := c.session.EventID
	if eventID == "" {
		eventID = c.opts.EventID
	}
	tok, err := c.signer.Sign(c.opts.TicketID, eventID, c.session.Key, now)
	if err != nil {
		return err
	}
	c.token.Store(tok)
	select {
	case c.minted <- struct{}{}:
	default:
	}
	if c.opts.OnToken != nil {
		c.opts.OnToken(tok)
	}
	return nil
}

func (c *Controller) setState(s State) {
	if prev := State(c.state.Swap(int32(s))); prev != s {
		c.logger.Debug("rotation state changed", zap.String("from", prev.String()), logging.State(s.String()))
	}
}
