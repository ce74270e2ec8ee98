// Package checkpoint decides whether a scanned rotating token admits its ticket at a gate or zone.
package checkpoint

import "qr-access-control/internal/ticket/domain"

// Outcome is the top-level result of a scan.
type Outcome string

const (
	Allow Outcome = "ALLOW"
	Deny  Outcome = "DENY"
)

// Reason is a deny reason code. The set is closed; see ParseReason.
type Reason string

const (
	ReasonInvalid       Reason = "INVALID"
	ReasonExpired       Reason = "EXPIRED"
	ReasonNotFound      Reason = "NOT_FOUND"
	ReasonUsed          Reason = "USED"
	ReasonNoEntitlement Reason = "NO_ENTITLEMENT"
	ReasonTimeWindow    Reason = "TIME_WINDOW"
	ReasonReentryBlock  Reason = "REENTRY_BLOCK"
	ReasonGate          Reason = "GATE"
	ReasonNoGateEntry   Reason = "NO_GATE_ENTRY"
)

// ParseReason maps a wire code to a Reason. Unknown codes become ReasonInvalid.
func ParseReason(code string) Reason {
	switch r := Reason(code); r {
	case ReasonInvalid, ReasonExpired, ReasonNotFound, ReasonUsed, ReasonNoEntitlement,
		ReasonTimeWindow, ReasonReentryBlock, ReasonGate, ReasonNoGateEntry:
		return r
	}
	return ReasonInvalid
}

// Kind is the checkpoint kind.
type Kind string

const (
	KindGate Kind = "GATE"
	KindZone Kind = "ZONE"
)

// Context identifies the checkpoint performing a scan. ID is a gate id for KindGate
// and a zone checkpoint id for KindZone.
type Context struct {
	Kind Kind
	ID   string
}

// Gate returns a gate checkpoint context.
func Gate(gateID string) Context { return Context{Kind: KindGate, ID: gateID} }

// Zone returns a zone checkpoint context.
func Zone(zoneCheckpointID string) Context { return Context{Kind: KindZone, ID: zoneCheckpointID} }

// Decision is the result of one scan. TicketID is set on ALLOW; Entitlements only on a gate ALLOW.
// Unavailable marks a deny caused by an infrastructure failure rather than the ticket.
type Decision struct {
	Outcome      Outcome              `json:"decision"`
	Reason       Reason               `json:"reason,omitempty"`
	TicketID     string               `json:"ticketId,omitempty"`
	Entitlements []domain.Entitlement `json:"entitlements,omitempty"`
	Unavailable  bool                 `json:"unavailable"`
}

// Allowed reports whether the decision admits the ticket.
func (d Decision) Allowed() bool { return d.Outcome == Allow }

func deny(r Reason) Decision { return Decision{Outcome: Deny, Reason: r} }

func unavailable() Decision { return Decision{Outcome: Deny, Reason: ReasonInvalid, Unavailable: true} }
