package domain

import (
	"testing"
	"time"
)

func TestTimeWindow_HalfOpen(t *testing.T) {
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	w := TimeWindow{Start: start, End: start.Add(4 * time.Hour)}
	cases := []struct {
		at   time.Time
		want bool
	}{
		{start.Add(-time.Minute), false},
		{start, true},
		{start.Add(4*time.Hour - time.Nanosecond), true},
		{start.Add(4 * time.Hour), false},
	}
	for _, c := range cases {
		if got := w.Contains(c.at); got != c.want {
			t.Errorf("Contains(%v) = %v, want %v", c.at, got, c.want)
		}
	}
}

func TestEntitlement_Exhausted(t *testing.T) {
	if (Entitlement{ReentryLimit: 0, ReentryUsed: 100}).Exhausted() {
		t.Error("limit 0 is unlimited")
	}
	if (Entitlement{ReentryLimit: 2, ReentryUsed: 1}).Exhausted() {
		t.Error("1 of 2 used is not exhausted")
	}
	if !(Entitlement{ReentryLimit: 2, ReentryUsed: 2}).Exhausted() {
		t.Error("2 of 2 used is exhausted")
	}
}

func TestTicket_GateAllowed(t *testing.T) {
	open := &Ticket{}
	if !open.GateAllowed("any") {
		t.Error("empty allowlist admits any gate")
	}
	tk := &Ticket{GateAllowlist: []string{"G1"}}
	if !tk.GateAllowed("G1") || tk.GateAllowed("G2") {
		t.Error("allowlist not honored")
	}
}

func TestTicket_CloneIsDeep(t *testing.T) {
	now := time.Now()
	orig := &Ticket{
		ID:            "T-1",
		GateAllowlist: []string{"G1"},
		Entitlements:  []Entitlement{{ZoneID: "Z1", TimeWindow: &TimeWindow{Start: now, End: now}}},
		AdmittedAt:    &now,
	}
	c := orig.Clone()
	c.GateAllowlist[0] = "X"
	c.Entitlements[0].ReentryUsed = 5
	c.Entitlements[0].TimeWindow.End = now.Add(time.Hour)
	*c.AdmittedAt = now.Add(time.Hour)

	if orig.GateAllowlist[0] != "G1" || orig.Entitlements[0].ReentryUsed != 0 ||
		!orig.Entitlements[0].TimeWindow.End.Equal(now) || !orig.AdmittedAt.Equal(now) {
		t.Error("Clone shares state with the original")
	}
	if (*Ticket)(nil).Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusActive, StatusUsed, StatusRevoked, StatusExpired} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("LOST").Valid() {
		t.Error("unknown status should be invalid")
	}
}
