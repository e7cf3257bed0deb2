package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookEvent(t *testing.T) {
	msg := &IncomingMessage{
		Value: []byte(`{
			"source": "rdstation",
			"type": "email_opened",
			"subject_identity": {"email": "a@example.com"},
			"fired_at": "2026-03-14T12:30:00Z"
		}`),
	}

	require.NoError(t, msg.ParseWebhookEvent())
	require.NotNil(t, msg.WebhookEvent)
	assert.Equal(t, "rdstation", msg.WebhookEvent.Source)
	assert.Equal(t, "email_opened", msg.WebhookEvent.Type)
	assert.Equal(t, "a@example.com", msg.WebhookEvent.SubjectIdentity.Email)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC), msg.WebhookEvent.FiredAt)
}

func TestParseWebhookEventFiredAtFallback(t *testing.T) {
	received := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	msg := &IncomingMessage{
		Value:     []byte(`{"source": "hotmart", "type": "purchase_completed"}`),
		Timestamp: received,
	}

	require.NoError(t, msg.ParseWebhookEvent())
	assert.Equal(t, received, msg.WebhookEvent.FiredAt)
}

func TestParseWebhookEventInvalidJSON(t *testing.T) {
	msg := &IncomingMessage{Value: []byte(`{broken`)}

	assert.Error(t, msg.ParseWebhookEvent())
	assert.Nil(t, msg.WebhookEvent)
}

func TestGetSource(t *testing.T) {
	msg := &IncomingMessage{
		Headers: map[string]string{"source": "header-source"},
	}
	assert.Equal(t, "header-source", msg.GetSource())

	msg.Value = []byte(`{"source": "rdstation", "type": "email_opened"}`)
	require.NoError(t, msg.ParseWebhookEvent())
	assert.Equal(t, "rdstation", msg.GetSource())
}
