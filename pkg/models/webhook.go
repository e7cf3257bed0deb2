package models

import (
	"encoding/json"
	"time"
)

// Webhook sources
const (
	WebhookSourceMailchimp = "mailchimp"
	WebhookSourceWhatsApp  = "whatsapp"
	WebhookSourceForm      = "form"
	WebhookSourceImport    = "import"
)

// SubjectIdentity is the raw (pre-normalization) identity carried by a
// provider event. At least one of email/phone must be present.
type SubjectIdentity struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Name  string `json:"name,omitempty"`
}

// WebhookEvent is the generic shape every provider adapter produces
// before ingestion. FiredAt is the provider-side event time; ExternalID
// is the provider's own event id when it has one.
type WebhookEvent struct {
	Source          string          `json:"source" validate:"required"`
	Type            string          `json:"type" validate:"required"`
	ExternalID      *string         `json:"external_id,omitempty"`
	SubjectIdentity SubjectIdentity `json:"subject_identity"`
	CampaignID      *string         `json:"campaign_id,omitempty"`
	FiredAt         time.Time       `json:"fired_at"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}
