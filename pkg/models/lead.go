package models

import (
	"time"

	"github.com/lib/pq"
)

// Temperature is the engagement tier derived from a lead's score
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

// LeadStatus constants
const (
	LeadStatusActive        = "active"
	LeadStatusEmailInvalido = "email_invalido"
	LeadStatusDescadastrado = "descadastrado"
	LeadStatusMerged        = "merged"
)

// Score bounds. BaseScore is the score every lead starts with; replays
// and increments clamp into [ScoreMin, ScoreMax].
const (
	BaseScore = 10
	ScoreMin  = 0
	ScoreMax  = 100
)

// Lead is a tracked person record. Email and phone are stored in
// canonical form (see pkg/normalizers); nil means no identity of that
// kind is known.
type Lead struct {
	ID                string         `json:"id" db:"id"`
	Name              *string        `json:"name,omitempty" db:"name"`
	Email             *string        `json:"email,omitempty" db:"email"`
	Phone             *string        `json:"phone,omitempty" db:"phone"`
	Score             int            `json:"score" db:"score"`
	Temperature       Temperature    `json:"temperature" db:"temperature"`
	Status            string         `json:"status" db:"status"`
	Tags              pq.StringArray `json:"tags" db:"tags"`
	CampaignID        *string        `json:"campaign_id,omitempty" db:"campaign_id"`
	MergedInto        *string        `json:"merged_into,omitempty" db:"merged_into"`
	LastEmailAt       *time.Time     `json:"last_email_at,omitempty" db:"last_email_at"`
	LastWhatsAppAt    *time.Time     `json:"last_whatsapp_at,omitempty" db:"last_whatsapp_at"`
	LastInteractionAt *time.Time     `json:"last_interaction_at,omitempty" db:"last_interaction_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// IdentityKey is the pair of canonical identifiers used for duplicate
// detection. Derived from a Lead, never stored independently.
type IdentityKey struct {
	Email string
	Phone string
}

// Identity returns the lead's identity key with nils flattened to ""
func (l *Lead) Identity() IdentityKey {
	key := IdentityKey{}
	if l.Email != nil {
		key.Email = *l.Email
	}
	if l.Phone != nil {
		key.Phone = *l.Phone
	}
	return key
}

// IsEmpty reports whether the key carries no usable identity
func (k IdentityKey) IsEmpty() bool {
	return k.Email == "" && k.Phone == ""
}

// TemperatureFor classifies a score against the configured thresholds.
// Monotonic: a higher score never yields a lower tier.
func TemperatureFor(score, warmThreshold, hotThreshold int) Temperature {
	switch {
	case score >= hotThreshold:
		return TemperatureHot
	case score >= warmThreshold:
		return TemperatureWarm
	default:
		return TemperatureCold
	}
}

// ClampScore bounds a score into [ScoreMin, ScoreMax]
func ClampScore(score int) int {
	if score < ScoreMin {
		return ScoreMin
	}
	if score > ScoreMax {
		return ScoreMax
	}
	return score
}

// CreateLeadRequest is the request to create a lead directly (import, form)
type CreateLeadRequest struct {
	Name       *string  `json:"name,omitempty"`
	Email      *string  `json:"email,omitempty"`
	Phone      *string  `json:"phone,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CampaignID *string  `json:"campaign_id,omitempty"`
}

// UpdateLeadRequest is the request to update mutable lead fields
type UpdateLeadRequest struct {
	Name       *string  `json:"name,omitempty"`
	Email      *string  `json:"email,omitempty"`
	Phone      *string  `json:"phone,omitempty"`
	Status     *string  `json:"status,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CampaignID *string  `json:"campaign_id,omitempty"`
}

// LeadListResponse is the response for listing leads
type LeadListResponse struct {
	Items      []Lead `json:"items"`
	TotalCount int    `json:"total_count"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}
