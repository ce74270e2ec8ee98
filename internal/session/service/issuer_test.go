package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"qr-access-control/internal/session/repository"
	ticketdomain "qr-access-control/internal/ticket/domain"
)

type mockTicketRepo struct {
	tickets map[string]*ticketdomain.Ticket
	err     error
}

var _ TicketRepo = (*mockTicketRepo)(nil)

func (m *mockTicketRepo) Find(_ context.Context, id string) (*ticketdomain.Ticket, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tickets[id].Clone(), nil
}

func newTestIssuer(t *testing.T, status ticketdomain.Status) (*Issuer, *time.Time) {
	t.Helper()
	tickets := &mockTicketRepo{tickets: map[string]*ticketdomain.Ticket{
		"T-1": {ID: "T-1", EventID: "evt_1", Status: status},
	}}
	iss := NewIssuer(tickets, repository.NewMemoryRepository(), Options{
		EventID:       "evt_1",
		TTL:           24 * time.Hour,
		RefreshWindow: time.Hour,
		TokenTTL:      20 * time.Second,
		KeyBytes:      32,
	}, nil)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	iss.nowF = func() time.Time { return now }
	return iss, &now
}

func TestIssue_NewContext(t *testing.T) {
	iss, now := newTestIssuer(t, ticketdomain.StatusActive)
	c, err := iss.Issue(context.Background(), "T-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if c.TicketID != "T-1" || c.EventID != "evt_1" || len(c.Key) != 32 || c.ID == "" {
		t.Errorf("context = %+v", c)
	}
	if !c.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v", c.ExpiresAt)
	}
}

func TestIssue_ReusesUntilRefreshWindow(t *testing.T) {
	iss, now := newTestIssuer(t, ticketdomain.StatusActive)
	ctx := context.Background()
	first, _ := iss.Issue(ctx, "T-1")

	*now = now.Add(10 * time.Hour)
	second, err := iss.Issue(ctx, "T-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !bytes.Equal(first.Key, second.Key) {
		t.Error("context should be reused outside the refresh window")
	}

	*now = now.Add(13*time.Hour + 30*time.Minute)
	third, _ := iss.Issue(ctx, "T-1")
	if bytes.Equal(first.Key, third.Key) {
		t.Error("a new key should be minted inside the refresh window")
	}

	keys, err := iss.ActiveKeys(ctx, "T-1", *now)
	if err != nil {
		t.Fatalf("ActiveKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("overlapping contexts should both verify, got %d keys", len(keys))
	}
}

func TestIssue_UsedTicketStillIssues(t *testing.T) {
	iss, _ := newTestIssuer(t, ticketdomain.StatusUsed)
	if _, err := iss.Issue(context.Background(), "T-1"); err != nil {
		t.Errorf("USED ticket: %v", err)
	}
}

func TestIssue_Errors(t *testing.T) {
	for _, status := range []ticketdomain.Status{ticketdomain.StatusRevoked, ticketdomain.StatusExpired} {
		iss, _ := newTestIssuer(t, status)
		if _, err := iss.Issue(context.Background(), "T-1"); !errors.Is(err, ErrTicketNotActive) {
			t.Errorf("%s: want ErrTicketNotActive, got %v", status, err)
		}
	}
	iss, _ := newTestIssuer(t, ticketdomain.StatusActive)
	if _, err := iss.Issue(context.Background(), "T-404"); !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("missing: want ErrTicketNotFound, got %v", err)
	}
	if _, err := iss.Issue(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty: want ErrInvalidRequest, got %v", err)
	}

	iss.opts.EventID = "evt_other"
	if _, err := iss.Issue(context.Background(), "T-1"); !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("other event: want ErrTicketNotFound, got %v", err)
	}

	boom := errors.New("db down")
	iss.tickets = &mockTicketRepo{err: boom}
	if _, err := iss.Issue(context.Background(), "T-1"); !errors.Is(err, boom) {
		t.Errorf("infra: want wrapped cause, got %v", err)
	}
}

func TestActiveKeys_GraceAfterExpiry(t *testing.T) {
	iss, now := newTestIssuer(t, ticketdomain.StatusActive)
	ctx := context.Background()
	c, _ := iss.Issue(ctx, "T-1")

	if keys, _ := iss.ActiveKeys(ctx, "T-1", c.ExpiresAt.Add(10*time.Second)); len(keys) != 1 {
		t.Error("key should verify within token ttl after expiry")
	}
	if keys, _ := iss.ActiveKeys(ctx, "T-1", c.ExpiresAt.Add(time.Minute)); len(keys) != 0 {
		t.Error("key should not verify long after expiry")
	}
	if keys, _ := iss.ActiveKeys(ctx, "T-2", *now); len(keys) != 0 {
		t.Error("unknown ticket has no keys")
	}
}

func TestPurge(t *testing.T) {
	iss, now := newTestIssuer(t, ticketdomain.StatusActive)
	ctx := context.Background()
	_, _ = iss.Issue(ctx, "T-1")
	*now = now.Add(25 * time.Hour)
	n, err := iss.Purge(ctx)
	if err != nil || n != 1 {
		t.Errorf("Purge = %d, %v", n, err)
	}
}
