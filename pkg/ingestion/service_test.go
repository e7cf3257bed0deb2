package ingestion

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestService() *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(logger, nil)
}

func TestValidateEventAcceptsMetadataOnlyIdentity(t *testing.T) {
	svc := newTestService()

	// Providers like Mailchimp carry the contact only in the payload;
	// intake must record these and leave resolution to the processor.
	event := models.WebhookEvent{
		Source:   models.WebhookSourceMailchimp,
		Type:     models.EventTypeEmailOpened,
		FiredAt:  time.Now(),
		Metadata: json.RawMessage(`{"contact":{"email":"maria@example.com"}}`),
	}

	assert.NoError(t, svc.validateEvent(event))
}

func TestValidateEventAcceptsEmptyIdentity(t *testing.T) {
	svc := newTestService()

	// Even an event with no identity anywhere passes intake; it fails
	// later at lead resolution and lands on the ledger as failed, so
	// the consumer can commit and the delivery is never replayed.
	event := models.WebhookEvent{
		Source:  models.WebhookSourceWhatsApp,
		Type:    models.EventTypeWhatsAppMessage,
		FiredAt: time.Now(),
	}

	assert.NoError(t, svc.validateEvent(event))
}

func TestValidateEventRequiresSourceAndType(t *testing.T) {
	svc := newTestService()

	event := models.WebhookEvent{
		SubjectIdentity: models.SubjectIdentity{Email: "a@example.com"},
		FiredAt:         time.Now(),
	}

	assert.Error(t, svc.validateEvent(event))
	assert.Error(t, svc.validateEvent(models.WebhookEvent{Source: "form"}))
}
