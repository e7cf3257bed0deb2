// Package ingestion fronts the webhook ledger: deduplicated intake of
// provider events and their processing status transitions.
package ingestion

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/internal/repositories/ledger"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Service guarantees at-most-once effective processing of at-least-once
// delivered provider events
type Service struct {
	logger     ectologger.Logger
	ledgerRepo *ledger.Repository
	validate   *validator.Validate
}

// NewService creates a new ingestion service
func NewService(logger ectologger.Logger, ledgerRepo *ledger.Repository) *Service {
	return &Service{
		logger:     logger,
		ledgerRepo: ledgerRepo,
		validate:   validator.New(),
	}
}

// Ingest records a provider event in the ledger. A redelivery of an
// already-seen event returns the existing entry unchanged with
// created=false; that is the system's sole deduplication guarantee.
// Only structural validation happens here: an event with a resolvable
// source and type is always worth recording, even when its subject
// identity turns out to be unusable — that failure must land on the
// ledger entry where an operator can see it, not bounce the delivery.
func (s *Service) Ingest(ctx context.Context, event models.WebhookEvent) (*models.WebhookLedgerEntry, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.Ingest")
	defer span.End()

	if err := s.validateEvent(event); err != nil {
		return nil, false, err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, false, httperror.NewHTTPError(http.StatusBadRequest, "failed to serialize webhook event")
	}

	entry := &models.WebhookLedgerEntry{
		IdempotencyKey: fingerprint.ForWebhookEvent(event),
		Source:         event.Source,
		EventType:      event.Type,
		ExternalID:     event.ExternalID,
		Payload:        payload,
		ReceivedAt:     event.FiredAt,
	}

	stored, created, err := s.ledgerRepo.Insert(ctx, entry)
	if err != nil {
		return nil, false, err
	}

	if !created {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"entry_id": stored.ID,
			"source":   stored.Source,
		}).Debug("Duplicate webhook delivery, returning original ledger entry")
	}

	return stored, created, nil
}

// validateEvent checks the structural envelope only. Identity is
// deliberately not validated: it may live anywhere in the provider
// payload and resolution owns that concern.
func (s *Service) validateEvent(event models.WebhookEvent) error {
	if err := s.validate.Struct(event); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// MarkProcessed transitions a ledger entry to its terminal state,
// recording the lead the event was attributed to
func (s *Service) MarkProcessed(ctx context.Context, entryID string, leadID *string) error {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.MarkProcessed")
	defer span.End()

	return s.ledgerRepo.MarkProcessed(ctx, entryID, leadID)
}

// MarkFailed records a processing failure for later inspection. Failed
// entries sit until an operator reprocesses them; there is no automatic
// retry of malformed payloads.
func (s *Service) MarkFailed(ctx context.Context, entryID string, processingErr error) error {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.MarkFailed")
	defer span.End()

	message := "unknown error"
	if processingErr != nil {
		message = processingErr.Error()
	}
	return s.ledgerRepo.MarkFailed(ctx, entryID, message)
}

// Reprocess resets a failed entry to new and returns it with its
// original payload decoded, ready for another processing attempt
func (s *Service) Reprocess(ctx context.Context, entryID string) (*models.WebhookLedgerEntry, *models.WebhookEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.Reprocess")
	defer span.End()

	entry, err := s.ledgerRepo.ResetForReprocess(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(entry.Payload, &event); err != nil {
		return nil, nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "ledger entry payload is not a valid webhook event")
	}

	return entry, &event, nil
}

// Get retrieves a ledger entry
func (s *Service) Get(ctx context.Context, entryID string) (*models.WebhookLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.Get")
	defer span.End()

	return s.ledgerRepo.Get(ctx, entryID)
}

// ListByStatus lists ledger entries by processing status, the view the
// UI uses to distinguish "safely ignored" from "needs attention"
func (s *Service) ListByStatus(ctx context.Context, status string, limit int) ([]models.WebhookLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.ListByStatus")
	defer span.End()

	switch status {
	case models.LedgerStatusNew, models.LedgerStatusProcessed, models.LedgerStatusFailed:
	default:
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "unknown ledger status")
	}

	return s.ledgerRepo.ListByStatus(ctx, status, limit)
}
