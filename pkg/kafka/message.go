package kafka

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	// Parsed content
	WebhookEvent *models.WebhookEvent
}

// ParseWebhookEvent parses the message value as a provider webhook event
func (m *IncomingMessage) ParseWebhookEvent() error {
	var event models.WebhookEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return err
	}
	if event.FiredAt.IsZero() {
		event.FiredAt = m.Timestamp
	}
	m.WebhookEvent = &event
	return nil
}

// GetSource returns the provider source, falling back to the header
func (m *IncomingMessage) GetSource() string {
	if m.WebhookEvent != nil && m.WebhookEvent.Source != "" {
		return m.WebhookEvent.Source
	}
	return m.Headers["source"]
}
