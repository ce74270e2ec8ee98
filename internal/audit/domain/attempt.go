// Package domain holds the scan-attempt record kept for ticket history.
package domain

import "time"

// Attempt is one checkpoint decision for one ticket.
type Attempt struct {
	ID             string    `json:"id"`
	TicketID       string    `json:"ticketId"`
	CheckpointKind string    `json:"checkpointKind"`
	CheckpointID   string    `json:"checkpointId"`
	Outcome        string    `json:"decision"`
	Reason         string    `json:"reason,omitempty"`
	Unavailable    bool      `json:"unavailable"`
	CreatedAt      time.Time `json:"createdAt"`
}
