// Package processor wires ingestion, identity resolution, and scoring
// into the webhook processing pipeline.
package processor

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/lead"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/extractor"
	"github.com/Ramsey-B/clover/pkg/ingestion"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Processor drives a webhook event from ledger intake to scored lead
type Processor struct {
	logger   ectologger.Logger
	ingest   *ingestion.Service
	leadRepo *lead.Repository
	scorer   *scoring.Engine
	emitter  *events.Emitter
}

// NewProcessor creates a new webhook event processor
func NewProcessor(
	logger ectologger.Logger,
	ingest *ingestion.Service,
	leadRepo *lead.Repository,
	scorer *scoring.Engine,
	emitter *events.Emitter,
) *Processor {
	return &Processor{
		logger:   logger,
		ingest:   ingest,
		leadRepo: leadRepo,
		scorer:   scorer,
		emitter:  emitter,
	}
}

// HandleMessage is the Kafka consumer entry point. A returned error
// means the ledger could not even record the event; the message stays
// uncommitted and redelivery is safe because ingestion deduplicates.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	if msg.WebhookEvent == nil {
		return nil
	}

	_, err := p.ProcessEvent(ctx, *msg.WebhookEvent)
	return err
}

// ProcessEvent runs the full pipeline for one provider event: ledger
// intake, duplicate short-circuit, lead resolution, scoring, and the
// terminal status transition. A processing failure lands in the ledger
// as failed and is not returned as an error; only failing to reach the
// ledger at all propagates.
func (p *Processor) ProcessEvent(ctx context.Context, event models.WebhookEvent) (*models.WebhookLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessEvent")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"source":     event.Source,
		"event_type": event.Type,
	})

	entry, created, err := p.ingest.Ingest(ctx, event)
	if err != nil {
		return nil, err
	}

	if !created {
		// Duplicate delivery. Processed and failed entries stay
		// untouched; an entry still in new was left behind by a
		// crashed processor and is safe to run again.
		if entry.Status != models.LedgerStatusNew {
			log.WithFields(map[string]any{"entry_id": entry.ID, "status": entry.Status}).Debug("Duplicate event, ignoring")
			return entry, nil
		}
	}

	if err := p.processEntry(ctx, entry, event); err != nil {
		log.WithError(err).WithFields(map[string]any{"entry_id": entry.ID}).Error("Failed to process ledger entry")
		if markErr := p.ingest.MarkFailed(ctx, entry.ID, err); markErr != nil {
			return entry, markErr
		}
	}

	return entry, nil
}

// ReprocessEntry retries a failed ledger entry with its original payload
func (p *Processor) ReprocessEntry(ctx context.Context, entryID string) (*models.WebhookLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ReprocessEntry")
	defer span.End()

	entry, event, err := p.ingest.Reprocess(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if err := p.processEntry(ctx, entry, *event); err != nil {
		if markErr := p.ingest.MarkFailed(ctx, entry.ID, err); markErr != nil {
			return entry, markErr
		}
		return p.ingest.Get(ctx, entry.ID)
	}

	return p.ingest.Get(ctx, entry.ID)
}

// processEntry attributes the event to a lead, applies scoring and
// status transitions, and marks the entry processed
func (p *Processor) processEntry(ctx context.Context, entry *models.WebhookLedgerEntry, event models.WebhookEvent) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.processEntry")
	defer span.End()

	target, isNew, err := p.ResolveLead(ctx, event)
	if err != nil {
		return err
	}

	if isNew {
		p.emitter.EmitLeadCreated(ctx, target)
	}

	if status := statusTransitionFor(event.Type); status != "" && target.Status == models.LeadStatusActive {
		update := models.UpdateLeadRequest{Status: &status}
		if _, err := p.leadRepo.Update(ctx, target.ID, update); err != nil {
			return err
		}
	}

	points, scored, err := p.scorer.ApplyEventScoring(ctx, target.ID, event.Type, event.CampaignID, event.FiredAt, event.Metadata)
	if err != nil {
		return err
	}
	p.emitter.EmitLeadScored(ctx, scored, event.Type, points)

	return p.ingest.MarkProcessed(ctx, entry.ID, &target.ID)
}

// ResolveLead finds the lead a provider event belongs to, creating one
// on first sighting. Returns the lead and whether it was created.
func (p *Processor) ResolveLead(ctx context.Context, event models.WebhookEvent) (*models.Lead, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ResolveLead")
	defer span.End()

	subjectName := event.SubjectIdentity.Name
	key := models.IdentityKey{
		Email: normalizers.NormalizeEmail(event.SubjectIdentity.Email),
		Phone: normalizers.NormalizePhone(event.SubjectIdentity.Phone),
	}
	if key.IsEmpty() {
		// Some providers omit the subject block; probe the raw payload
		email, phone, name := extractor.IdentityFromMetadata(event.Metadata)
		if email != nil {
			key.Email = normalizers.NormalizeEmail(*email)
		}
		if phone != nil {
			key.Phone = normalizers.NormalizePhone(*phone)
		}
		if subjectName == "" && name != nil {
			subjectName = *name
		}
	}
	if key.IsEmpty() {
		return nil, false, httperror.NewHTTPError(http.StatusUnprocessableEntity, "event subject has no usable identity")
	}

	matches, err := p.leadRepo.GetByIdentity(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if len(matches) > 0 {
		// Phone matches order first; the oldest match wins
		return &matches[0], false, nil
	}

	// The identity may live on a retired lead whose values were not
	// copied onto the survivor; follow the merge pointer instead of
	// minting a second lead for a person we already know.
	retired, err := p.leadRepo.GetRetiredByIdentity(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if len(retired) > 0 {
		survivor, err := followMergedInto(ctx, p.leadRepo.Get, &retired[0])
		if err != nil {
			return nil, false, err
		}
		if survivor.Status != models.LeadStatusMerged {
			return survivor, false, nil
		}
	}

	newLead := &models.Lead{CampaignID: event.CampaignID}
	if subjectName != "" {
		newLead.Name = &subjectName
	}
	if key.Email != "" {
		email := key.Email
		newLead.Email = &email
	}
	if key.Phone != "" {
		phone := key.Phone
		newLead.Phone = &phone
	}

	created, err := p.leadRepo.Create(ctx, newLead)
	if err != nil {
		return nil, false, err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"lead_id": created.ID,
		"source":  event.Source,
	}).Info("Created lead from first identity sighting")

	return created, true, nil
}

// followMergedInto walks merged_into pointers to the current survivor.
// Chains form when a survivor is later merged itself; a revisited id
// means the chain is corrupt and resolution must not guess.
func followMergedInto(ctx context.Context, get func(context.Context, string) (*models.Lead, error), start *models.Lead) (*models.Lead, error) {
	seen := map[string]bool{start.ID: true}

	current := start
	for current.Status == models.LeadStatusMerged && current.MergedInto != nil {
		next := *current.MergedInto
		if seen[next] {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "merge pointer cycle detected")
		}
		seen[next] = true

		resolved, err := get(ctx, next)
		if err != nil {
			return nil, err
		}
		current = resolved
	}

	return current, nil
}

// statusTransitionFor maps hard provider signals onto lead statuses.
// Bounces invalidate the address, unsubscribes opt the lead out.
func statusTransitionFor(eventType string) string {
	switch eventType {
	case models.EventTypeEmailBounced:
		return models.LeadStatusEmailInvalido
	case models.EventTypeEmailUnsubscribed:
		return models.LeadStatusDescadastrado
	default:
		return ""
	}
}
