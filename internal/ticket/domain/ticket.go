package domain

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusUsed    Status = "USED"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusUsed, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls in [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Entitlement grants access to one zone. ReentryLimit 0 means unlimited.
type Entitlement struct {
	ZoneID       string      `json:"zoneId"`
	ZoneName     string      `json:"zoneName"`
	ReentryLimit int         `json:"reentryLimit"`
	ReentryUsed  int         `json:"reentryUsed"`
	TimeWindow   *TimeWindow `json:"timeWindow,omitempty"`
}

// Exhausted reports whether no further zone entries are allowed.
func (e Entitlement) Exhausted() bool {
	return e.ReentryLimit > 0 && e.ReentryUsed >= e.ReentryLimit
}

// Ticket is the authoritative record for one admission credential.
type Ticket struct {
	ID            string
	EventID       string
	HolderName    string
	Status        Status
	Entitlements  []Entitlement
	GateAllowlist []string // empty means any gate
	AdmittedAt    *time.Time
	AdmittedGate  string
}

// Entitlement returns the entitlement for zoneID, if any.
func (t *Ticket) Entitlement(zoneID string) (Entitlement, bool) {
	for _, e := range t.Entitlements {
		if e.ZoneID == zoneID {
			return e, true
		}
	}
	return Entitlement{}, false
}

// GateAllowed reports whether gateID may admit this ticket.
func (t *Ticket) GateAllowed(gateID string) bool {
	return len(t.GateAllowlist) == 0 || slices.Contains(t.GateAllowlist, gateID)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.GateAllowlist = slices.Clone(t.GateAllowlist)
	c.Entitlements = make([]Entitlement, len(t.Entitlements))
	for i, e := range t.Entitlements {
		c.Entitlements[i] = e
		if e.TimeWindow != nil {
			w := *e.TimeWindow
			c.Entitlements[i].TimeWindow = &w
		}
	}
	if t.AdmittedAt != nil {
		at := *t.AdmittedAt
		c.AdmittedAt = &at
	}
	return &c
}
