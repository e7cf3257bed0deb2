// Package events handles event emission for lead lifecycle changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Emitter publishes lead lifecycle events. Emission is best-effort:
// the caller's state change has already committed, so failures are
// logged and swallowed rather than rolling anything back.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter. A nil producer disables
// emission entirely.
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *Emitter) publish(ctx context.Context, event *models.LeadLifecycleEvent, name string) {
	if e.producer == nil {
		return
	}
	if err := e.producer.PublishLeadEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit " + name + " event")
	}
}

// EmitLeadCreated emits a lead.created event
func (e *Emitter) EmitLeadCreated(ctx context.Context, lead *models.Lead) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitLeadCreated")
	defer span.End()

	event := &models.LeadLifecycleEvent{
		Type:        models.LeadEventCreated,
		LeadID:      lead.ID,
		Score:       lead.Score,
		Temperature: lead.Temperature,
	}

	e.publish(ctx, event, "lead.created")
}

// EmitLeadScored emits a lead.scored event
func (e *Emitter) EmitLeadScored(ctx context.Context, lead *models.Lead, eventType string, pointsApplied int) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitLeadScored")
	defer span.End()

	event := &models.LeadLifecycleEvent{
		Type:          models.LeadEventScored,
		LeadID:        lead.ID,
		Score:         lead.Score,
		Temperature:   lead.Temperature,
		EventType:     &eventType,
		PointsApplied: &pointsApplied,
	}

	e.publish(ctx, event, "lead.scored")
}

// EmitLeadMerged emits a lead.merged event for the survivor
func (e *Emitter) EmitLeadMerged(ctx context.Context, result *models.MergeResult) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitLeadMerged")
	defer span.End()

	event := &models.LeadLifecycleEvent{
		Type:        models.LeadEventMerged,
		LeadID:      result.SurvivorID,
		Score:       result.SurvivorScore,
		Temperature: models.Temperature(result.SurvivorTemp),
		DuplicateID: &result.DuplicateID,
	}

	e.publish(ctx, event, "lead.merged")
}
