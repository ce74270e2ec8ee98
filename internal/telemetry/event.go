package telemetry

import "time"

// EventTypeScanDecision is the event type for checkpoint decisions.
const EventTypeScanDecision = "scan_decision"

// ScanEvent is one checkpoint decision as shipped to OTel logs and Kafka.
// It never carries token material or session keys.
type ScanEvent struct {
	EventType      string    `json:"event_type"`
	Source         string    `json:"source"`
	EventID        string    `json:"event_id,omitempty"`
	TicketID       string    `json:"ticket_id,omitempty"`
	CheckpointKind string    `json:"checkpoint_kind"`
	CheckpointID   string    `json:"checkpoint_id"`
	Outcome        string    `json:"outcome"`
	Reason         string    `json:"reason,omitempty"`
	Unavailable    bool      `json:"unavailable"`
	LatencyMs      float64   `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}
