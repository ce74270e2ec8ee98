// Package engine evaluates deployment checkpoint policies written in Rego.
package engine

import (
	"context"
	"time"
)

// Input is what a checkpoint policy sees for one scan, after the built-in checks passed
// and before the ticket is committed.
type Input struct {
	// Kind is "GATE" or "ZONE".
	Kind          string
	CheckpointID  string
	ZoneID        string // zone scans only
	TicketID      string
	EventID       string
	HolderName    string
	Status        string
	GateAllowlist []string
	// Entitlement is the zone entitlement being consumed; nil on gate scans.
	Entitlement *EntitlementInput
	Now         time.Time
}

// EntitlementInput mirrors a zone entitlement for policy input.
type EntitlementInput struct {
	ZoneID       string
	ZoneName     string
	ReentryLimit int
	ReentryUsed  int
}

// Evaluator decides whether a deployment policy adds a deny to an otherwise allowed scan.
type Evaluator interface {
	// DenyReason returns "" to allow, or a reason code to deny. An error means the
	// policy could not be evaluated; callers fail closed.
	DenyReason(ctx context.Context, in Input) (string, error)
}
