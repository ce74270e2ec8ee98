package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"qr-access-control/internal/audit"
	auditdomain "qr-access-control/internal/audit/domain"
	"qr-access-control/internal/credential"
	policyengine "qr-access-control/internal/policy/engine"
	"qr-access-control/internal/telemetry"
	"qr-access-control/internal/ticket/domain"
	ticketrepo "qr-access-control/internal/ticket/repository"
)

var t0 = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

type mockKeyResolver struct {
	mu   sync.Mutex
	keys map[string][]byte
	err  error
}

var _ credential.KeyResolver = (*mockKeyResolver)(nil)

func (m *mockKeyResolver) ActiveKeys(_ context.Context, ticketID string, _ time.Time) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if k, ok := m.keys[ticketID]; ok {
		return [][]byte{k}, nil
	}
	return nil, nil
}

type mockRecorder struct {
	mu       sync.Mutex
	attempts []auditdomain.Attempt
}

var _ audit.ScanRecorder = (*mockRecorder)(nil)

func (m *mockRecorder) LogScan(_ context.Context, a auditdomain.Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
}

type mockEmitter struct {
	mu     sync.Mutex
	events []*telemetry.ScanEvent
}

var _ telemetry.EventEmitter = (*mockEmitter)(nil)

func (m *mockEmitter) Emit(_ context.Context, ev *telemetry.ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type mockPolicy struct {
	code  string
	err   error
	calls int
	last  policyengine.Input
}

var _ policyengine.Evaluator = (*mockPolicy)(nil)

func (m *mockPolicy) DenyReason(_ context.Context, in policyengine.Input) (string, error) {
	m.calls++
	m.last = in
	return m.code, m.err
}

// faultyRepo wraps a repository and injects failures.
type faultyRepo struct {
	ticketrepo.Repository
	findErr   error
	commitErr error
	panicFind bool
}

func (f *faultyRepo) Find(ctx context.Context, id string) (*domain.Ticket, error) {
	if f.panicFind {
		panic("directory exploded")
	}
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Repository.Find(ctx, id)
}

func (f *faultyRepo) TransitionToUsed(ctx context.Context, id, gate string, at time.Time) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	return f.Repository.TransitionToUsed(ctx, id, gate, at)
}

type fixture struct {
	engine   *Engine
	tickets  *ticketrepo.MemoryRepository
	keys     *mockKeyResolver
	signer   *credential.Signer
	recorder *mockRecorder
	emitter  *mockEmitter
	reader   *sdkmetric.ManualReader
}

func keyFor(b byte) []byte {
	k := make([]byte, credential.DefaultKeyBytes)
	for i := range k {
		k[i] = b ^ byte(i*7)
	}
	return k
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	ctx := context.Background()
	tickets := ticketrepo.NewMemoryRepository()
	mustPut := func(tk *domain.Ticket) {
		if err := tickets.Put(ctx, tk); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	mustPut(&domain.Ticket{ID: "T-1", EventID: "evt_1", Status: domain.StatusActive, GateAllowlist: []string{"G1"},
		Entitlements: []domain.Entitlement{{ZoneID: "Z1", ZoneName: "VIP", ReentryLimit: 1}}})
	mustPut(&domain.Ticket{ID: "T-2", EventID: "evt_1", Status: domain.StatusUsed,
		Entitlements: []domain.Entitlement{
			{ZoneID: "Z1", ZoneName: "VIP", ReentryLimit: 1},
			{ZoneID: "Z2", ZoneName: "Backstage", TimeWindow: &domain.TimeWindow{
				Start: t0, End: t0.Add(4 * time.Hour),
			}},
		}})
	mustPut(&domain.Ticket{ID: "T-3", EventID: "evt_1", Status: domain.StatusRevoked})
	mustPut(&domain.Ticket{ID: "T-4", EventID: "evt_2", Status: domain.StatusActive})
	if err := tickets.PutZoneCheckpoint(ctx, "zc_10", "Z1"); err != nil {
		t.Fatalf("PutZoneCheckpoint: %v", err)
	}

	keys := &mockKeyResolver{keys: map[string][]byte{
		"T-1": keyFor(1), "T-2": keyFor(2), "T-3": keyFor(3), "T-4": keyFor(4), "T-404": keyFor(9),
	}}
	reader := sdkmetric.NewManualReader()
	f := &fixture{
		tickets:  tickets,
		keys:     keys,
		signer:   credential.NewSigner(20*time.Second, 0, credential.DefaultKeyBytes),
		recorder: &mockRecorder{},
		emitter:  &mockEmitter{},
		reader:   reader,
	}
	deps := Deps{
		Verifier:      credential.NewVerifier(keys),
		Tickets:       tickets,
		Zones:         tickets,
		Audit:         f.recorder,
		Events:        f.emitter,
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
	if mutate != nil {
		mutate(&deps)
	}
	e, err := NewEngine(deps)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.nowF = func() time.Time { return t0 }
	f.engine = e
	return f
}

func (f *fixture) token(t *testing.T, ticketID, eventID string, at time.Time) string {
	t.Helper()
	tok, err := f.signer.Sign(ticketID, eventID, f.keys.keys[ticketID], at)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tok.Raw
}

func (f *fixture) at(now time.Time) { f.engine.nowF = func() time.Time { return now } }

func assertDecision(t *testing.T, got Decision, outcome Outcome, reason Reason) {
	t.Helper()
	if got.Outcome != outcome || got.Reason != reason {
		t.Fatalf("decision = %s/%s, want %s/%s", got.Outcome, got.Reason, outcome, reason)
	}
}

func TestScanGate_AllowThenUsedTakesPrecedenceOverAllowlist(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	d := f.engine.ScanGate(ctx, f.token(t, "T-1", "evt_1", t0), "G1")
	assertDecision(t, d, Allow, "")
	if d.TicketID != "T-1" || len(d.Entitlements) != 1 || d.Entitlements[0].ZoneID != "Z1" {
		t.Errorf("allow payload = %+v", d)
	}
	stored, _ := f.tickets.Find(ctx, "T-1")
	if stored.Status != domain.StatusUsed || stored.AdmittedGate != "G1" || stored.AdmittedAt == nil || !stored.AdmittedAt.Equal(t0) {
		t.Errorf("stored = %+v", stored)
	}

	// G2 is not in the allowlist, but the ticket is already USED.
	d = f.engine.ScanGate(ctx, f.token(t, "T-1", "evt_1", t0.Add(time.Second)), "G2")
	assertDecision(t, d, Deny, ReasonUsed)
	if d.TicketID != "" || d.Entitlements != nil {
		t.Errorf("deny must not carry ticket data: %+v", d)
	}
}

func TestScanGate_AllowlistMismatch(t *testing.T) {
	f := newFixture(t, nil)
	d := f.engine.ScanGate(context.Background(), f.token(t, "T-1", "evt_1", t0), "G2")
	assertDecision(t, d, Deny, ReasonGate)
	stored, _ := f.tickets.Find(context.Background(), "T-1")
	if stored.Status != domain.StatusActive {
		t.Errorf("denied scan mutated status to %s", stored.Status)
	}
}

func TestScanGate_TerminalStatusesReportUsed(t *testing.T) {
	f := newFixture(t, nil)
	assertDecision(t, f.engine.ScanGate(context.Background(), f.token(t, "T-3", "evt_1", t0), "G1"), Deny, ReasonUsed)
	assertDecision(t, f.engine.ScanGate(context.Background(), f.token(t, "T-2", "evt_1", t0), "G1"), Deny, ReasonUsed)
}

func TestScanGate_ConcurrentSameTicket(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Tickets = &faultyRepo{Repository: d.Tickets} })
	// Drop the allowlist so both gates pass the read-only checks.
	ctx := context.Background()
	if err := f.tickets.Put(ctx, &domain.Ticket{ID: "T-1", EventID: "evt_1", Status: domain.StatusActive}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	const n = 16
	results := make([]Decision, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gate := "G1"
			if i%2 == 1 {
				gate = "G2"
			}
			results[i] = f.engine.ScanGate(ctx, f.token(t, "T-1", "evt_1", t0), gate)
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, d := range results {
		switch {
		case d.Outcome == Allow:
			allowed++
		case d.Reason != ReasonUsed:
			t.Errorf("loser reason = %s, want USED", d.Reason)
		}
	}
	if allowed != 1 {
		t.Fatalf("allowed = %d, want exactly 1", allowed)
	}
	stored, _ := f.tickets.Find(ctx, "T-1")
	if stored.Status != domain.StatusUsed {
		t.Errorf("status = %s", stored.Status)
	}
}

func TestScanZone_ReentryLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	d := f.engine.ScanZone(ctx, f.token(t, "T-2", "evt_1", t0), "zc_10")
	assertDecision(t, d, Allow, "")
	if d.TicketID != "T-2" || d.Entitlements != nil {
		t.Errorf("zone allow payload = %+v", d)
	}
	stored, _ := f.tickets.Find(ctx, "T-2")
	if ent, _ := stored.Entitlement("Z1"); ent.ReentryUsed != 1 {
		t.Errorf("reentryUsed = %d, want 1", ent.ReentryUsed)
	}

	d = f.engine.ScanZone(ctx, f.token(t, "T-2", "evt_1", t0), "zc_10")
	assertDecision(t, d, Deny, ReasonReentryBlock)
	stored, _ = f.tickets.Find(ctx, "T-2")
	if ent, _ := stored.Entitlement("Z1"); ent.ReentryUsed != 1 {
		t.Errorf("reentryUsed after block = %d, want 1", ent.ReentryUsed)
	}
}

func TestScanZone_TimeWindowBounds(t *testing.T) {
	testCases := []struct {
		name   string
		now    time.Time
		want   Outcome
		reason Reason
	}{
		{"one minute early", t0.Add(-time.Minute), Deny, ReasonTimeWindow},
		{"at start", t0, Allow, ""},
		{"last second", t0.Add(4*time.Hour - time.Second), Allow, ""},
		{"at end", t0.Add(4 * time.Hour), Deny, ReasonTimeWindow},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.at(tc.now)
			// Z2 is unmapped, so the checkpoint id is the zone id.
			d := f.engine.ScanZone(context.Background(), f.token(t, "T-2", "evt_1", tc.now), "Z2")
			assertDecision(t, d, tc.want, tc.reason)
		})
	}
}

func TestScanZone_Denies(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	assertDecision(t, f.engine.ScanZone(ctx, f.token(t, "T-1", "evt_1", t0), "zc_10"), Deny, ReasonNoGateEntry)
	assertDecision(t, f.engine.ScanZone(ctx, f.token(t, "T-2", "evt_1", t0), "Z-PRESS"), Deny, ReasonNoEntitlement)
}

func TestScan_TokenFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	valid := f.token(t, "T-1", "evt_1", t0)

	parts := strings.Split(valid, ".")
	payload := []byte(parts[1])
	if payload[4] == 'A' {
		payload[4] = 'B'
	} else {
		payload[4] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	// A token for T-2 signed with T-1's key.
	forged, err := f.signer.Sign("T-2", "evt_1", keyFor(1), t0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	testCases := []struct {
		name   string
		raw    string
		reason Reason
	}{
		{"empty", "", ReasonInvalid},
		{"two segments", "a.b", ReasonInvalid},
		{"empty segment", "a..c", ReasonInvalid},
		{"tampered payload", tampered, ReasonInvalid},
		{"cross ticket key", forged.Raw, ReasonInvalid},
		{"expired", f.token(t, "T-1", "evt_1", t0.Add(-21*time.Second)), ReasonExpired},
		{"unknown ticket", f.token(t, "T-404", "evt_1", t0), ReasonNotFound},
		{"event mismatch", f.token(t, "T-1", "evt_2", t0), ReasonInvalid},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := f.engine.ScanGate(ctx, tc.raw, "G1")
			assertDecision(t, d, Deny, tc.reason)
			if d.Unavailable {
				t.Error("token failures are not infrastructure failures")
			}
		})
	}
	stored, _ := f.tickets.Find(ctx, "T-1")
	if stored.Status != domain.StatusActive {
		t.Errorf("failed scans mutated the ticket: %s", stored.Status)
	}
}

func TestScan_DeploymentEventBinding(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.EventID = "evt_1" })
	assertDecision(t, f.engine.ScanGate(context.Background(), f.token(t, "T-4", "evt_2", t0), "G1"), Deny, ReasonInvalid)
}

func TestScan_InfrastructureFailuresAreUnavailable(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Deps)
		keyErr error
	}{
		{"key store down", nil, errors.New("sessions unreachable")},
		{"directory down", func(d *Deps) { d.Tickets = &faultyRepo{Repository: d.Tickets, findErr: errors.New("timeout")} }, nil},
		{"commit failed", func(d *Deps) { d.Tickets = &faultyRepo{Repository: d.Tickets, commitErr: errors.New("conn reset")} }, nil},
		{"panic", func(d *Deps) { d.Tickets = &faultyRepo{Repository: d.Tickets, panicFind: true} }, nil},
		{"policy error", func(d *Deps) { d.Policy = &mockPolicy{err: errors.New("rego")} }, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.mutate)
			raw := f.token(t, "T-1", "evt_1", t0)
			f.keys.err = tc.keyErr
			d := f.engine.ScanGate(context.Background(), raw, "G1")
			assertDecision(t, d, Deny, ReasonInvalid)
			if !d.Unavailable {
				t.Error("Unavailable = false, want true")
			}
			stored, _ := f.tickets.Find(context.Background(), "T-1")
			if stored.Status != domain.StatusActive {
				t.Errorf("status = %s, want ACTIVE", stored.Status)
			}
		})
	}
}

func TestScan_PolicyHook(t *testing.T) {
	t.Run("deny with known code", func(t *testing.T) {
		p := &mockPolicy{code: "GATE"}
		f := newFixture(t, func(d *Deps) { d.Policy = p })
		assertDecision(t, f.engine.ScanGate(context.Background(), f.token(t, "T-1", "evt_1", t0), "G1"), Deny, ReasonGate)
		stored, _ := f.tickets.Find(context.Background(), "T-1")
		if stored.Status != domain.StatusActive {
			t.Error("policy deny must not commit")
		}
		if p.last.Kind != "GATE" || p.last.TicketID != "T-1" || p.last.CheckpointID != "G1" || !p.last.Now.Equal(t0) {
			t.Errorf("policy input = %+v", p.last)
		}
	})
	t.Run("unknown code maps to invalid", func(t *testing.T) {
		f := newFixture(t, func(d *Deps) { d.Policy = &mockPolicy{code: "VIP_ONLY"} })
		assertDecision(t, f.engine.ScanGate(context.Background(), f.token(t, "T-1", "evt_1", t0), "G1"), Deny, ReasonInvalid)
	})
	t.Run("zone input carries entitlement", func(t *testing.T) {
		p := &mockPolicy{}
		f := newFixture(t, func(d *Deps) { d.Policy = p })
		assertDecision(t, f.engine.ScanZone(context.Background(), f.token(t, "T-2", "evt_1", t0), "zc_10"), Allow, "")
		if p.last.ZoneID != "Z1" || p.last.Entitlement == nil || p.last.Entitlement.ReentryLimit != 1 {
			t.Errorf("policy input = %+v", p.last)
		}
	})
	t.Run("not consulted after built-in deny", func(t *testing.T) {
		p := &mockPolicy{}
		f := newFixture(t, func(d *Deps) { d.Policy = p })
		f.engine.ScanGate(context.Background(), f.token(t, "T-1", "evt_1", t0), "G2")
		if p.calls != 0 {
			t.Errorf("policy calls = %d", p.calls)
		}
	})
}

func TestScan_RegoPolicy(t *testing.T) {
	module := `package checkpoint

deny_reason := "TIME_WINDOW" if {
	input.kind == "GATE"
	input.checkpoint_id == "G-LATE"
}`
	ev, err := policyengine.NewOPAEvaluator(context.Background(), map[string]string{"gate.rego": module})
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	f := newFixture(t, func(d *Deps) { d.Policy = ev })
	if err := f.tickets.Put(context.Background(), &domain.Ticket{ID: "T-1", EventID: "evt_1", Status: domain.StatusActive}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	assertDecision(t, f.engine.ScanGate(context.Background(), f.token(t, "T-1", "evt_1", t0), "G-LATE"), Deny, ReasonTimeWindow)
	assertDecision(t, f.engine.ScanGate(context.Background(), f.token(t, "T-1", "evt_1", t0), "G1"), Allow, "")
}

func TestScan_ObservesDecisions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.engine.ScanGate(ctx, f.token(t, "T-1", "evt_1", t0), "G1")
	f.engine.ScanGate(ctx, "garbage", "G1")

	f.recorder.mu.Lock()
	attempts := append([]auditdomain.Attempt(nil), f.recorder.attempts...)
	f.recorder.mu.Unlock()
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1 (unattributable scans are not recorded)", len(attempts))
	}
	if a := attempts[0]; a.TicketID != "T-1" || a.Outcome != "ALLOW" || a.CheckpointKind != "GATE" || a.CheckpointID != "G1" {
		t.Errorf("attempt = %+v", a)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.emitter.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.emitter.count() != 2 {
		t.Fatalf("events = %d, want 2", f.emitter.count())
	}

	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "checkpoint.decisions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("checkpoint.decisions data = %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 2 {
		t.Errorf("checkpoint.decisions = %d, want 2", total)
	}
}

func TestScan_UnknownKind(t *testing.T) {
	f := newFixture(t, nil)
	assertDecision(t, f.engine.Scan(context.Background(), f.token(t, "T-1", "evt_1", t0), Context{Kind: "DOOR", ID: "D1"}), Deny, ReasonInvalid)
}

func TestNewEngine_RequiresDeps(t *testing.T) {
	if _, err := NewEngine(Deps{}); err == nil {
		t.Error("NewEngine without verifier should fail")
	}
}

func TestParseReason(t *testing.T) {
	for _, code := range []string{"INVALID", "EXPIRED", "NOT_FOUND", "USED", "NO_ENTITLEMENT", "TIME_WINDOW", "REENTRY_BLOCK", "GATE", "NO_GATE_ENTRY"} {
		if got := ParseReason(code); string(got) != code {
			t.Errorf("ParseReason(%q) = %q", code, got)
		}
	}
	for _, code := range []string{"", "used", "OFFLINE"} {
		if got := ParseReason(code); got != ReasonInvalid {
			t.Errorf("ParseReason(%q) = %q, want INVALID", code, got)
		}
	}
}

func TestDecision_JSON(t *testing.T) {
	b, _ := json.Marshal(deny(ReasonUsed))
	if string(b) != `{"decision":"DENY","reason":"USED","unavailable":false}` {
		t.Errorf("deny json = %s", b)
	}
	b, _ = json.Marshal(Decision{Outcome: Allow, TicketID: "T-1"})
	if string(b) != `{"decision":"ALLOW","ticketId":"T-1","unavailable":false}` {
		t.Errorf("allow json = %s", b)
	}
}
