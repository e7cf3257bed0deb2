package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestGenerateDeterministic(t *testing.T) {
	data := map[string]any{
		"source": "rdstation",
		"type":   "email_opened",
		"nested": map[string]any{"b": 2, "a": 1},
	}

	first := Generate(data)
	second := Generate(data)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestGenerateKeyOrderIndependent(t *testing.T) {
	a := Generate(map[string]any{"x": 1, "y": "two", "z": []any{1, 2}})
	b := Generate(map[string]any{"z": []any{1, 2}, "y": "two", "x": 1})
	assert.Equal(t, a, b)
}

func TestGenerateArrayOrderSignificant(t *testing.T) {
	a := Generate(map[string]any{"tags": []any{"a", "b"}})
	b := Generate(map[string]any{"tags": []any{"b", "a"}})
	assert.NotEqual(t, a, b)
}

func TestForWebhookEventUsesExternalID(t *testing.T) {
	event := models.WebhookEvent{
		Source:     "rdstation",
		Type:       "email_opened",
		ExternalID: strPtr("evt-123"),
		SubjectIdentity: models.SubjectIdentity{
			Email: "a@example.com",
		},
		FiredAt: time.Now(),
	}

	key := ForWebhookEvent(event)

	// With an external id the identity and fire time are irrelevant
	event.SubjectIdentity.Email = "b@example.com"
	event.FiredAt = event.FiredAt.Add(time.Hour)
	assert.Equal(t, key, ForWebhookEvent(event))

	// But a different external id is a different event
	event.ExternalID = strPtr("evt-124")
	assert.NotEqual(t, key, ForWebhookEvent(event))
}

func TestForWebhookEventIdentityFallback(t *testing.T) {
	fired := time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)

	event := models.WebhookEvent{
		Source: "hotmart",
		Type:   "purchase_completed",
		SubjectIdentity: models.SubjectIdentity{
			Email: "a@example.com",
			Phone: "5511987654321",
		},
		FiredAt: fired,
	}

	key := ForWebhookEvent(event)
	assert.Equal(t, key, ForWebhookEvent(event))

	// Same identity at a different time is a distinct event
	later := event
	later.FiredAt = fired.Add(time.Minute)
	assert.NotEqual(t, key, ForWebhookEvent(later))

	// Empty external id falls back the same way as nil
	withEmpty := event
	withEmpty.ExternalID = strPtr("")
	assert.Equal(t, key, ForWebhookEvent(withEmpty))
}

func TestForWebhookEventIgnoresDeliveryMetadata(t *testing.T) {
	event := models.WebhookEvent{
		Source:     "activecampaign",
		Type:       "email_clicked",
		ExternalID: strPtr("evt-9"),
		Metadata:   []byte(`{"delivery_attempt":1}`),
	}

	key := ForWebhookEvent(event)

	event.Metadata = []byte(`{"delivery_attempt":2,"redelivered":true}`)
	assert.Equal(t, key, ForWebhookEvent(event))
}

func TestForWebhookEventFireTimeTimezoneInsensitive(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	utc := time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC)

	a := models.WebhookEvent{
		Source:          "rdstation",
		Type:            "form_submitted",
		SubjectIdentity: models.SubjectIdentity{Email: "a@example.com"},
		FiredAt:         utc,
	}
	b := a
	b.FiredAt = utc.In(loc)

	assert.Equal(t, ForWebhookEvent(a), ForWebhookEvent(b))
}
