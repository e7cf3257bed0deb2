// Package scoring implements the rule engine: rule resolution, atomic
// per-event score application, and full score recalculation from event
// history.
package scoring

import (
	"encoding/json"

	"github.com/Ramsey-B/clover/pkg/criteria"
	"github.com/Ramsey-B/clover/pkg/models"
)

// ResolveRule picks the authoritative rule for an event: an active rule
// scoped to the event's campaign beats an active global rule for the
// same event type. Rules carrying metadata conditions only apply when
// the event metadata satisfies them. Returns nil when no active rule
// applies, which scores zero points but still records the event.
func ResolveRule(rules []models.ScoringRule, eventType string, campaignID *string, metadata json.RawMessage) *models.ScoringRule {
	var global *models.ScoringRule

	for i := range rules {
		rule := &rules[i]
		if rule.EventType != eventType || !rule.AppliesTo(campaignID) {
			continue
		}
		if !criteria.MatchesMetadata(metadata, rule.Conditions) {
			continue
		}
		if rule.CampaignID != nil {
			return rule
		}
		if global == nil {
			global = rule
		}
	}

	return global
}

// ReplayScore replays an event history against the current rule set and
// returns the resulting score. The clamp applies per event, exactly as
// incremental application would have done, so a replay always equals
// the sum of the increments it is reconciling.
func ReplayScore(events []models.LeadEvent, rules []models.ScoringRule) int {
	score := models.BaseScore
	for i := range events {
		points := PointsFor(rules, events[i].EventType, events[i].CampaignID, events[i].Metadata)
		score = models.ClampScore(score + points)
	}
	return score
}

// PointsFor returns the point delta the current rule set assigns to an
// event, zero when no rule applies
func PointsFor(rules []models.ScoringRule, eventType string, campaignID *string, metadata json.RawMessage) int {
	if rule := ResolveRule(rules, eventType, campaignID, metadata); rule != nil {
		return rule.Points
	}
	return 0
}
