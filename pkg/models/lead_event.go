package models

import (
	"encoding/json"
	"time"
)

// Event types produced by the provider adapters
const (
	EventTypeEmailOpened        = "email_opened"
	EventTypeEmailClicked       = "email_clicked"
	EventTypeEmailBounced       = "email_bounced"
	EventTypeEmailUnsubscribed  = "email_unsubscribed"
	EventTypeWhatsAppMessage    = "whatsapp_message_received"
	EventTypeWhatsAppJoinedGrp  = "whatsapp_joined_group"
	EventTypeWhatsAppLeftGroup  = "whatsapp_left_group"
	EventTypeFormSubmitted      = "form_submitted"
	EventTypePurchaseCompleted  = "purchase_completed"
	EventTypePageVisited        = "page_visited"
)

// LeadEvent is an immutable fact about a lead. Rows are only ever
// inserted (by scoring) or re-parented (by merge); score can always be
// rebuilt by replaying them.
type LeadEvent struct {
	ID            string          `json:"id" db:"id"`
	LeadID        string          `json:"lead_id" db:"lead_id"`
	EventType     string          `json:"event_type" db:"event_type"`
	CampaignID    *string         `json:"campaign_id,omitempty" db:"campaign_id"`
	PointsApplied int             `json:"points_applied" db:"points_applied"`
	OccurredAt    time.Time       `json:"occurred_at" db:"occurred_at"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// EventChannel returns the interaction channel for an event type,
// used to maintain the per-channel last-interaction timestamps.
func EventChannel(eventType string) string {
	switch eventType {
	case EventTypeEmailOpened, EventTypeEmailClicked, EventTypeEmailBounced, EventTypeEmailUnsubscribed:
		return "email"
	case EventTypeWhatsAppMessage, EventTypeWhatsAppJoinedGrp, EventTypeWhatsAppLeftGroup:
		return "whatsapp"
	default:
		return ""
	}
}

// LeadEventListResponse is the response for listing a lead's events
type LeadEventListResponse struct {
	Items      []LeadEvent `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}
