package models

import "time"

// Outbound lead lifecycle event types
const (
	LeadEventCreated = "lead.created"
	LeadEventScored  = "lead.scored"
	LeadEventMerged  = "lead.merged"
)

// LeadLifecycleEvent is the message published to the lead-events topic
// whenever a lead is created, scored, or merged.
type LeadLifecycleEvent struct {
	Type        string      `json:"type"`
	LeadID      string      `json:"lead_id"`
	Score       int         `json:"score"`
	Temperature Temperature `json:"temperature"`
	// Merge fields, set only for lead.merged
	DuplicateID *string `json:"duplicate_id,omitempty"`
	// Scoring fields, set only for lead.scored
	EventType     *string   `json:"event_type,omitempty"`
	PointsApplied *int      `json:"points_applied,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
