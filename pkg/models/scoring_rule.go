package models

import (
	"encoding/json"
	"time"
)

// ScoringRule maps an event type to a point delta. A rule scoped to a
// campaign beats a global rule (campaign_id null) for the same event
// type; only active rules participate in evaluation.
type ScoringRule struct {
	ID         string          `json:"id" db:"id"`
	Name       string          `json:"name" db:"name"`
	EventType  string          `json:"event_type" db:"event_type"`
	Points     int             `json:"points" db:"points"`
	CampaignID *string         `json:"campaign_id,omitempty" db:"campaign_id"`
	Conditions json.RawMessage `json:"conditions,omitempty" db:"conditions"`
	IsActive   bool            `json:"is_active" db:"is_active"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// AppliesTo reports whether the rule can score an event in the given
// campaign. Global rules apply everywhere; scoped rules only inside
// their campaign.
func (r *ScoringRule) AppliesTo(campaignID *string) bool {
	if !r.IsActive {
		return false
	}
	if r.CampaignID == nil {
		return true
	}
	return campaignID != nil && *campaignID == *r.CampaignID
}

// CreateScoringRuleRequest is the request to create a scoring rule
type CreateScoringRuleRequest struct {
	Name       string          `json:"name" validate:"required"`
	EventType  string          `json:"event_type" validate:"required"`
	Points     int             `json:"points"`
	CampaignID *string         `json:"campaign_id,omitempty"`
	Conditions json.RawMessage `json:"conditions,omitempty"`
	IsActive   bool            `json:"is_active"`
}

// UpdateScoringRuleRequest is the request to update a scoring rule
type UpdateScoringRuleRequest struct {
	Name       *string         `json:"name,omitempty"`
	EventType  *string         `json:"event_type,omitempty"`
	Points     *int            `json:"points,omitempty"`
	CampaignID *string         `json:"campaign_id,omitempty"`
	Conditions json.RawMessage `json:"conditions,omitempty"`
	IsActive   *bool           `json:"is_active,omitempty"`
}

// ScoringStatus is the recalculation dirty bit the UI polls after rule
// edits. Set on any rule mutation, cleared only by a successful full
// recalculation.
type ScoringStatus struct {
	NeedsRecalculation bool       `json:"needs_recalculation" db:"needs_recalculation"`
	WarmThreshold      int        `json:"warm_threshold" db:"warm_threshold"`
	HotThreshold       int        `json:"hot_threshold" db:"hot_threshold"`
	LastUpdate         *time.Time `json:"last_update,omitempty" db:"last_update"`
	LastRecalculation  *time.Time `json:"last_recalculation,omitempty" db:"last_recalculation"`
}

// RecalculationResult summarizes a full score recalculation run
type RecalculationResult struct {
	Total     int      `json:"total"`
	Updated   int      `json:"updated"`
	Failed    int      `json:"failed"`
	ElapsedMs int64    `json:"elapsed_ms"`
	Errors    []string `json:"errors,omitempty"`
}
