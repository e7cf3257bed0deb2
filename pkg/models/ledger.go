package models

import (
	"encoding/json"
	"time"
)

// Ledger entry statuses. "processed" is terminal and immutable; "failed"
// entries are only retried by an explicit reprocess call.
const (
	LedgerStatusNew       = "new"
	LedgerStatusProcessed = "processed"
	LedgerStatusFailed    = "failed"
)

// WebhookLedgerEntry is the deduplicated durable record of one inbound
// provider event. The idempotency key is derived from the event's stable
// fields; a second delivery of the same event lands on the same key and
// is returned unchanged.
type WebhookLedgerEntry struct {
	ID             string          `json:"id" db:"id"`
	IdempotencyKey string          `json:"idempotency_key" db:"idempotency_key"`
	Source         string          `json:"source" db:"source"`
	EventType      string          `json:"event_type" db:"event_type"`
	ExternalID     *string         `json:"external_id,omitempty" db:"external_id"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	Status         string          `json:"status" db:"status"`
	LeadID         *string         `json:"lead_id,omitempty" db:"lead_id"`
	ErrorMessage   *string         `json:"error_message,omitempty" db:"error_message"`
	ReceivedAt     time.Time       `json:"received_at" db:"received_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the entry has finished processing
func (e *WebhookLedgerEntry) IsTerminal() bool {
	return e.Status == LedgerStatusProcessed
}

// LedgerListResponse is the response for listing ledger entries
type LedgerListResponse struct {
	Items      []WebhookLedgerEntry `json:"items"`
	TotalCount int                  `json:"total_count"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
}
