package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/scoring"
)

func strPtr(s string) *string { return &s }

// TestRedeliveryProducesOneLedgerKey walks the idempotency path: the
// same provider event delivered three times, each time with different
// delivery metadata, must always map to the same ledger key.
func TestRedeliveryProducesOneLedgerKey(t *testing.T) {
	base := models.WebhookEvent{
		Source:     "rdstation",
		Type:       models.EventTypeEmailOpened,
		ExternalID: strPtr("evt-42"),
		SubjectIdentity: models.SubjectIdentity{
			Email: "Maria.Silva@Example.COM",
		},
		FiredAt: time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC),
	}

	keys := map[string]bool{}
	for attempt := 1; attempt <= 3; attempt++ {
		delivery := base
		delivery.Metadata, _ = json.Marshal(map[string]any{"delivery_attempt": attempt})
		keys[fingerprint.ForWebhookEvent(delivery)] = true
	}

	assert.Len(t, keys, 1)
}

// TestIdentityConvergence verifies that the three ways the same person
// can present a phone number all normalize to one identity key.
func TestIdentityConvergence(t *testing.T) {
	variants := []string{
		"+55 (11) 98765-4321",
		"11987654321",
		"011 98765 4321",
	}

	canonical := normalizers.NormalizePhone(variants[0])
	for _, v := range variants[1:] {
		assert.Equal(t, canonical, normalizers.NormalizePhone(v), "variant %q", v)
	}

	assert.Equal(t,
		normalizers.NormalizeEmail("maria@example.com"),
		normalizers.NormalizeEmail("  MARIA@example.COM "))
}

// TestScoringLifecycle replays a lead's journey from first sighting to
// hot, then verifies a rule edit plus recalculation lands on the same
// score a fresh replay produces.
func TestScoringLifecycle(t *testing.T) {
	rules := []models.ScoringRule{
		{ID: "r1", Name: "open", EventType: models.EventTypeEmailOpened, Points: 5, IsActive: true},
		{ID: "r2", Name: "click", EventType: models.EventTypeEmailClicked, Points: 10, IsActive: true},
		{ID: "r3", Name: "buy", EventType: models.EventTypePurchaseCompleted, Points: 40, IsActive: true},
	}

	history := []models.LeadEvent{
		{EventType: models.EventTypeEmailOpened},
		{EventType: models.EventTypeEmailClicked},
		{EventType: models.EventTypeEmailOpened},
		{EventType: models.EventTypePurchaseCompleted},
	}

	score := models.BaseScore
	for _, ev := range history {
		score = models.ClampScore(score + scoring.PointsFor(rules, ev.EventType, ev.CampaignID, ev.Metadata))
	}

	assert.Equal(t, 70, score)
	assert.Equal(t, models.TemperatureHot, models.TemperatureFor(score, 30, 70))

	// Incremental application and a full replay agree
	assert.Equal(t, score, scoring.ReplayScore(history, rules))

	// Devalue opens and replay: the score reflects the new policy
	rules[0].Points = 1
	recalculated := scoring.ReplayScore(history, rules)
	assert.Equal(t, 62, recalculated)
	assert.Equal(t, models.TemperatureWarm, models.TemperatureFor(recalculated, 30, 70))
}

// TestDuplicateDetectionToMerge runs the duplicate pipeline in memory:
// two sightings of the same person, pair classification, survivor
// choice, and the conservative field fill.
func TestDuplicateDetectionToMerge(t *testing.T) {
	phone := normalizers.NormalizePhone("+55 11 98765-4321")

	first := &models.Lead{
		ID:        "lead-form",
		Name:      strPtr("Maria"),
		Email:     strPtr(normalizers.NormalizeEmail("maria@example.com")),
		Phone:     &phone,
		CreatedAt: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	second := &models.Lead{
		ID:         "lead-whatsapp",
		Phone:      strPtr(normalizers.NormalizePhone("11987654321")),
		CampaignID: strPtr("camp-lancamento"),
		CreatedAt:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	// Same canonical phone, different emails
	phoneMatched := first.Phone != nil && second.Phone != nil && *first.Phone == *second.Phone
	emailMatched := first.Email != nil && second.Email != nil && *first.Email == *second.Email
	require.True(t, phoneMatched)
	require.False(t, emailMatched)

	cfg := matching.DefaultConfig()
	similarity := matching.Similarity(phoneMatched, emailMatched, cfg)
	engine := matching.NewEngine(nil, nil, nil, cfg)
	assert.Equal(t, models.MergeCandidateStatusPending, engine.Classify(similarity))

	// The first lead has the longer history and survives
	survivor, duplicate := merging.ChooseSurvivor(first, second, 7, 2)
	assert.Equal(t, "lead-form", survivor.ID)

	changed := merging.NewFieldMerger().Merge(survivor, duplicate)
	assert.True(t, changed)
	assert.Equal(t, "Maria", *survivor.Name)
	assert.Equal(t, "camp-lancamento", *survivor.CampaignID)
}

// TestCandidatePairIsCanonical ensures the ordered-pair rule holds no
// matter which direction a scan discovers the pair from.
func TestCandidatePairIsCanonical(t *testing.T) {
	a1, b1 := models.OrderPair("lead-x", "lead-y")
	a2, b2 := models.OrderPair("lead-y", "lead-x")

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.Less(t, a1, b1)
}
