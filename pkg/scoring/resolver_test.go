package scoring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func strPtr(s string) *string { return &s }

func rule(id, eventType string, points int, campaignID *string) models.ScoringRule {
	return models.ScoringRule{
		ID:         id,
		Name:       id,
		EventType:  eventType,
		Points:     points,
		CampaignID: campaignID,
		IsActive:   true,
	}
}

func TestResolveRuleCampaignBeatsGlobal(t *testing.T) {
	rules := []models.ScoringRule{
		rule("global", models.EventTypeEmailOpened, 5, nil),
		rule("scoped", models.EventTypeEmailOpened, 15, strPtr("camp-1")),
	}

	resolved := ResolveRule(rules, models.EventTypeEmailOpened, strPtr("camp-1"), nil)
	require.NotNil(t, resolved)
	assert.Equal(t, "scoped", resolved.ID)

	// A different campaign falls back to the global rule
	resolved = ResolveRule(rules, models.EventTypeEmailOpened, strPtr("camp-2"), nil)
	require.NotNil(t, resolved)
	assert.Equal(t, "global", resolved.ID)

	// No campaign on the event also uses the global rule
	resolved = ResolveRule(rules, models.EventTypeEmailOpened, nil, nil)
	require.NotNil(t, resolved)
	assert.Equal(t, "global", resolved.ID)
}

func TestResolveRuleNoMatch(t *testing.T) {
	rules := []models.ScoringRule{
		rule("opened", models.EventTypeEmailOpened, 5, nil),
	}

	assert.Nil(t, ResolveRule(rules, models.EventTypeEmailClicked, nil, nil))
	assert.Nil(t, ResolveRule(nil, models.EventTypeEmailOpened, nil, nil))
}

func TestResolveRuleSkipsInactive(t *testing.T) {
	inactive := rule("off", models.EventTypeEmailOpened, 5, nil)
	inactive.IsActive = false

	assert.Nil(t, ResolveRule([]models.ScoringRule{inactive}, models.EventTypeEmailOpened, nil, nil))
}

func TestResolveRuleConditionsGate(t *testing.T) {
	conditional := rule("big-purchase", "purchase_completed", 40, nil)
	conditional.Conditions = json.RawMessage(`{"value":{"$gte":400}}`)
	fallback := rule("any-purchase", "purchase_completed", 10, nil)

	rules := []models.ScoringRule{conditional, fallback}

	resolved := ResolveRule(rules, "purchase_completed", nil, json.RawMessage(`{"value":497}`))
	require.NotNil(t, resolved)
	assert.Equal(t, "big-purchase", resolved.ID)

	resolved = ResolveRule(rules, "purchase_completed", nil, json.RawMessage(`{"value":97}`))
	require.NotNil(t, resolved)
	assert.Equal(t, "any-purchase", resolved.ID)

	// Without metadata the conditional rule cannot apply
	resolved = ResolveRule(rules, "purchase_completed", nil, nil)
	require.NotNil(t, resolved)
	assert.Equal(t, "any-purchase", resolved.ID)
}

func TestPointsFor(t *testing.T) {
	rules := []models.ScoringRule{
		rule("opened", models.EventTypeEmailOpened, 5, nil),
	}

	assert.Equal(t, 5, PointsFor(rules, models.EventTypeEmailOpened, nil, nil))
	assert.Equal(t, 0, PointsFor(rules, models.EventTypeEmailClicked, nil, nil))
}

func TestReplayScore(t *testing.T) {
	rules := []models.ScoringRule{
		rule("opened", models.EventTypeEmailOpened, 5, nil),
		rule("clicked", models.EventTypeEmailClicked, 10, nil),
	}

	events := []models.LeadEvent{
		{EventType: models.EventTypeEmailOpened},
		{EventType: models.EventTypeEmailClicked},
		{EventType: "unknown_event"},
	}

	assert.Equal(t, models.BaseScore+5+10, ReplayScore(events, rules))
	assert.Equal(t, models.BaseScore, ReplayScore(nil, rules))
}

func TestReplayScoreClampsPerEvent(t *testing.T) {
	rules := []models.ScoringRule{
		rule("penalty", models.EventTypeEmailBounced, -50, nil),
		rule("opened", models.EventTypeEmailOpened, 5, nil),
	}

	// The bounce floors the score at 0 before the open applies, so the
	// result matches what incremental application would have produced.
	events := []models.LeadEvent{
		{EventType: models.EventTypeEmailBounced},
		{EventType: models.EventTypeEmailOpened},
	}
	assert.Equal(t, 5, ReplayScore(events, rules))

	// Ceiling behaves the same way
	boost := []models.ScoringRule{rule("big", "purchase_completed", 95, nil)}
	purchases := []models.LeadEvent{
		{EventType: "purchase_completed"},
		{EventType: "purchase_completed"},
	}
	assert.Equal(t, models.ScoreMax, ReplayScore(purchases, boost))
}

func TestReplayScoreUsesEventMetadata(t *testing.T) {
	conditional := rule("big-purchase", "purchase_completed", 40, nil)
	conditional.Conditions = json.RawMessage(`{"value":{"$gte":400}}`)

	events := []models.LeadEvent{
		{EventType: "purchase_completed", Metadata: json.RawMessage(`{"value":497}`)},
		{EventType: "purchase_completed", Metadata: json.RawMessage(`{"value":97}`)},
	}

	assert.Equal(t, models.BaseScore+40, ReplayScore(events, []models.ScoringRule{conditional}))
}
