package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/lead"
	"github.com/Ramsey-B/clover/internal/repositories/leadevent"
	"github.com/Ramsey-B/clover/internal/repositories/scoringrule"
	"github.com/Ramsey-B/clover/internal/repositories/scoringstate"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Engine applies scoring rules to lead events and keeps score and
// temperature consistent with event history
type Engine struct {
	logger    ectologger.Logger
	leadRepo  *lead.Repository
	eventRepo *leadevent.Repository
	ruleRepo  *scoringrule.Repository
	stateRepo *scoringstate.Repository
}

// NewEngine creates a new scoring engine
func NewEngine(
	logger ectologger.Logger,
	leadRepo *lead.Repository,
	eventRepo *leadevent.Repository,
	ruleRepo *scoringrule.Repository,
	stateRepo *scoringstate.Repository,
) *Engine {
	return &Engine{
		logger:    logger,
		leadRepo:  leadRepo,
		eventRepo: eventRepo,
		ruleRepo:  ruleRepo,
		stateRepo: stateRepo,
	}
}

// ApplyEventScoring records an immutable LeadEvent and applies the
// authoritative rule's points to the lead's score, clamped to the score
// bounds, updating temperature from the configured thresholds. The
// event insert and the score update commit as one unit; the row lock on
// the lead serializes concurrent events for the same lead.
func (e *Engine) ApplyEventScoring(ctx context.Context, leadID, eventType string, campaignID *string, occurredAt time.Time, metadata json.RawMessage) (int, *models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Engine.ApplyEventScoring")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"lead_id":    leadID,
		"event_type": eventType,
	})

	rules, err := e.ruleRepo.ListActive(ctx)
	if err != nil {
		return 0, nil, err
	}

	state, err := e.stateRepo.Get(ctx)
	if err != nil {
		return 0, nil, err
	}

	ctxTx, tx, err := e.leadRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback(ctx)

	target, err := e.leadRepo.GetForUpdate(ctxTx, leadID)
	if err != nil {
		return 0, nil, err
	}

	points := PointsFor(rules, eventType, campaignID, metadata)

	event := &models.LeadEvent{
		LeadID:        target.ID,
		EventType:     eventType,
		CampaignID:    campaignID,
		PointsApplied: points,
		OccurredAt:    occurredAt,
		Metadata:      metadata,
	}
	if _, err := e.eventRepo.Create(ctxTx, event); err != nil {
		return 0, nil, err
	}

	target.Score = models.ClampScore(target.Score + points)
	target.Temperature = models.TemperatureFor(target.Score, state.WarmThreshold, state.HotThreshold)

	if err := e.leadRepo.UpdateScore(ctxTx, target.ID, target.Score, target.Temperature); err != nil {
		return 0, nil, err
	}

	if channel := models.EventChannel(eventType); channel != "" {
		if err := e.leadRepo.TouchChannel(ctxTx, target.ID, channel, occurredAt); err != nil {
			return 0, nil, err
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		return 0, nil, err
	}

	log.WithFields(map[string]any{
		"points":      points,
		"score":       target.Score,
		"temperature": target.Temperature,
	}).Info("Applied event scoring")

	return points, target, nil
}

// RecalculateLead replays a lead's full event history against the
// current rule set and sets score and temperature to the replay result.
// Returns true when the stored score or temperature changed.
func (e *Engine) RecalculateLead(ctx context.Context, leadID string, rules []models.ScoringRule, state *models.ScoringStatus) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Engine.RecalculateLead")
	defer span.End()

	ctxTx, tx, err := e.leadRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	target, err := e.leadRepo.GetForUpdate(ctxTx, leadID)
	if err != nil {
		return false, err
	}

	events, err := e.eventRepo.ListByLead(ctxTx, leadID)
	if err != nil {
		return false, err
	}

	score := models.BaseScore
	for i := range events {
		points := PointsFor(rules, events[i].EventType, events[i].CampaignID, events[i].Metadata)
		score = models.ClampScore(score + points)
		if points != events[i].PointsApplied {
			if err := e.eventRepo.UpdatePointsApplied(ctxTx, events[i].ID, points); err != nil {
				return false, err
			}
		}
	}

	temperature := models.TemperatureFor(score, state.WarmThreshold, state.HotThreshold)
	changed := score != target.Score || temperature != target.Temperature
	if changed {
		if err := e.leadRepo.UpdateScore(ctxTx, target.ID, score, temperature); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		return false, err
	}

	return changed, nil
}

// RecalculateAll replays every affected lead's history against the
// current rule set. This is the reconciliation path after rule or
// threshold edits: running it twice in a row with no intervening events
// is a no-op. Per-lead failures are collected rather than aborting the
// whole run, so a re-run can pick up where this one left off.
func (e *Engine) RecalculateAll(ctx context.Context, campaignID *string, batchSize int) (*models.RecalculationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Engine.RecalculateAll")
	defer span.End()

	start := time.Now()
	log := e.logger.WithContext(ctx)

	rules, err := e.ruleRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	state, err := e.stateRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.RecalculationResult{}
	afterID := ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ids, err := e.leadRepo.ListIDs(ctx, campaignID, afterID, batchSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			result.Total++
			changed, err := e.RecalculateLead(ctx, id, rules, state)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("lead %s: %v", id, err))
				continue
			}
			if changed {
				result.Updated++
			}
		}
		afterID = ids[len(ids)-1]
	}

	result.ElapsedMs = time.Since(start).Milliseconds()

	// The dirty bit only clears on a clean full run; a campaign-scoped
	// pass leaves other campaigns unreconciled.
	if campaignID == nil && result.Failed == 0 {
		if err := e.stateRepo.ClearDirty(ctx); err != nil {
			return result, err
		}
	}

	log.WithFields(map[string]any{
		"total":      result.Total,
		"updated":    result.Updated,
		"failed":     result.Failed,
		"elapsed_ms": result.ElapsedMs,
	}).Info("Recalculated lead scores")

	return result, nil
}

// Status returns the recalculation dirty bit and thresholds
func (e *Engine) Status(ctx context.Context) (*models.ScoringStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Engine.Status")
	defer span.End()

	return e.stateRepo.Get(ctx)
}
