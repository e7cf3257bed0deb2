// Package merging collapses duplicate lead records into one without
// losing history.
package merging

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/lead"
	"github.com/Ramsey-B/clover/internal/repositories/leadevent"
	"github.com/Ramsey-B/clover/internal/repositories/ledger"
	"github.com/Ramsey-B/clover/internal/repositories/mergeaudit"
	"github.com/Ramsey-B/clover/internal/repositories/mergecandidate"
	"github.com/Ramsey-B/clover/internal/repositories/scoringrule"
	"github.com/Ramsey-B/clover/internal/repositories/scoringstate"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Engine executes merges atomically: re-parenting, field fill, soft
// retirement, and survivor rescore commit as one transaction or not at
// all
type Engine struct {
	logger        ectologger.Logger
	leadRepo      *lead.Repository
	eventRepo     *leadevent.Repository
	ledgerRepo    *ledger.Repository
	candidateRepo *mergecandidate.Repository
	auditRepo     *mergeaudit.Repository
	ruleRepo      *scoringrule.Repository
	stateRepo     *scoringstate.Repository
	fieldMerger   *FieldMerger
}

// NewEngine creates a new merge engine
func NewEngine(
	logger ectologger.Logger,
	leadRepo *lead.Repository,
	eventRepo *leadevent.Repository,
	ledgerRepo *ledger.Repository,
	candidateRepo *mergecandidate.Repository,
	auditRepo *mergeaudit.Repository,
	ruleRepo *scoringrule.Repository,
	stateRepo *scoringstate.Repository,
) *Engine {
	return &Engine{
		logger:        logger,
		leadRepo:      leadRepo,
		eventRepo:     eventRepo,
		ledgerRepo:    ledgerRepo,
		candidateRepo: candidateRepo,
		auditRepo:     auditRepo,
		ruleRepo:      ruleRepo,
		stateRepo:     stateRepo,
		fieldMerger:   NewFieldMerger(),
	}
}

// ChooseSurvivor picks the survivor deterministically: the lead with
// the longer event history wins, then the older record, then the lower
// id. Stable across retries.
func ChooseSurvivor(a, b *models.Lead, eventsA, eventsB int) (survivor, duplicate *models.Lead) {
	if eventsA != eventsB {
		if eventsA > eventsB {
			return a, b
		}
		return b, a
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return a, b
		}
		return b, a
	}
	if a.ID < b.ID {
		return a, b
	}
	return b, a
}

// MergeCandidate resolves a candidate pair: chooses the survivor by
// policy, executes the merge, and marks the candidate merged
func (e *Engine) MergeCandidate(ctx context.Context, candidate *models.MergeCandidate, mergedBy *string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergeCandidate")
	defer span.End()

	leadA, err := e.leadRepo.Get(ctx, candidate.LeadAID)
	if err != nil {
		return nil, err
	}
	leadB, err := e.leadRepo.Get(ctx, candidate.LeadBID)
	if err != nil {
		return nil, err
	}

	eventsA, err := e.eventRepo.CountByLead(ctx, leadA.ID)
	if err != nil {
		return nil, err
	}
	eventsB, err := e.eventRepo.CountByLead(ctx, leadB.ID)
	if err != nil {
		return nil, err
	}

	survivor, duplicate := ChooseSurvivor(leadA, leadB, eventsA, eventsB)
	return e.Merge(ctx, survivor.ID, duplicate.ID, &candidate.ID, &candidate.Similarity, mergedBy)
}

// Merge collapses the duplicate lead into the survivor. Every dependent
// row is re-parented, survivor gaps are filled from the duplicate, the
// duplicate is soft-retired with a pointer to the survivor, and the
// survivor's score is replayed over the combined history. Both leads
// are row-locked in canonical order for the duration, so concurrent
// scoring for either waits and lands on the survivor.
func (e *Engine) Merge(ctx context.Context, survivorID, duplicateID string, candidateID *string, similarity *float64, mergedBy *string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	if survivorID == duplicateID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot merge a lead into itself")
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"survivor_id":  survivorID,
		"duplicate_id": duplicateID,
	})

	rules, err := e.ruleRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	state, err := e.stateRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	ctxTx, tx, err := e.leadRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lock both rows in canonical id order to avoid lock inversion with
	// a concurrent merge of the same pair
	firstID, secondID := models.OrderPair(survivorID, duplicateID)
	first, err := e.leadRepo.GetForUpdate(ctxTx, firstID)
	if err != nil {
		return nil, err
	}
	second, err := e.leadRepo.GetForUpdate(ctxTx, secondID)
	if err != nil {
		return nil, err
	}

	survivor, duplicate := first, second
	if survivor.ID != survivorID {
		survivor, duplicate = second, first
	}

	if survivor.Status == models.LeadStatusMerged {
		return nil, httperror.NewHTTPError(http.StatusConflict, "survivor lead is already merged")
	}
	if duplicate.Status == models.LeadStatusMerged {
		return nil, httperror.NewHTTPError(http.StatusConflict, "duplicate lead is already merged")
	}

	eventsMoved, err := e.eventRepo.Reparent(ctxTx, duplicate.ID, survivor.ID)
	if err != nil {
		return nil, err
	}

	ledgerMoved, err := e.ledgerRepo.ReparentLead(ctxTx, duplicate.ID, survivor.ID)
	if err != nil {
		return nil, err
	}

	e.fieldMerger.Merge(survivor, duplicate)
	if err := e.leadRepo.UpdateFields(ctxTx, survivor); err != nil {
		return nil, err
	}

	if err := e.leadRepo.MergeInto(ctxTx, duplicate.ID, survivor.ID); err != nil {
		return nil, err
	}

	// Replay the combined history so the survivor's score reflects both
	// leads' events under current rules
	events, err := e.eventRepo.ListByLead(ctxTx, survivor.ID)
	if err != nil {
		return nil, err
	}
	survivor.Score = scoring.ReplayScore(events, rules)
	survivor.Temperature = models.TemperatureFor(survivor.Score, state.WarmThreshold, state.HotThreshold)
	if err := e.leadRepo.UpdateScore(ctxTx, survivor.ID, survivor.Score, survivor.Temperature); err != nil {
		return nil, err
	}

	if candidateID != nil {
		if err := e.candidateRepo.UpdateStatus(ctxTx, *candidateID, models.MergeCandidateStatusMerged, mergedBy); err != nil {
			return nil, err
		}
	}
	// Open candidates still pointing at the retired lead are moot
	if err := e.candidateRepo.ResolveForLead(ctxTx, duplicate.ID, models.MergeCandidateStatusRejected); err != nil {
		return nil, err
	}

	audit := &models.MergeAuditEntry{
		SurvivorID:       survivor.ID,
		DuplicateID:      duplicate.ID,
		CandidateID:      candidateID,
		Similarity:       similarity,
		EventsReparented: eventsMoved,
		MergedBy:         mergedBy,
	}
	if _, err := e.auditRepo.Create(ctxTx, audit); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"events_reparented": eventsMoved,
		"ledger_reparented": ledgerMoved,
		"survivor_score":    survivor.Score,
	}).Info("Merged duplicate lead")

	return &models.MergeResult{
		SurvivorID:       survivor.ID,
		DuplicateID:      duplicate.ID,
		EventsReparented: eventsMoved,
		LedgerReparented: ledgerMoved,
		SurvivorScore:    survivor.Score,
		SurvivorTemp:     string(survivor.Temperature),
	}, nil
}

// SweepResult summarizes one auto-merge pass over pending candidates
type SweepResult struct {
	Scanned int                   `json:"scanned"`
	Merged  int                   `json:"merged"`
	Skipped int                   `json:"skipped"`
	Failed  int                   `json:"failed"`
	Results []*models.MergeResult `json:"results,omitempty"`
}

// AutoMergeSweep merges every pending candidate without operator
// involvement. Pending means the pair cleared the auto threshold at
// classification; review-tier candidates are never touched. A failure
// on one pair is logged and the sweep continues, and a pair whose lead
// was already retired earlier in the same pass is skipped rather than
// chased through the pointer mid-sweep.
func (e *Engine) AutoMergeSweep(ctx context.Context, limit int) (*SweepResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.AutoMergeSweep")
	defer span.End()

	pending := models.MergeCandidateStatusPending
	candidates, err := e.candidateRepo.List(ctx, &pending, limit)
	if err != nil {
		return nil, err
	}

	mergedBy := "auto"
	result := &SweepResult{Scanned: len(candidates)}
	retired := map[string]bool{}

	for i := range candidates {
		candidate := &candidates[i]
		if retired[candidate.LeadAID] || retired[candidate.LeadBID] {
			result.Skipped++
			continue
		}

		merged, err := e.MergeCandidate(ctx, candidate, &mergedBy)
		if err != nil {
			result.Failed++
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"candidate_id": candidate.ID,
			}).Error("Auto-merge failed for candidate")
			continue
		}

		retired[merged.DuplicateID] = true
		result.Merged++
		result.Results = append(result.Results, merged)
	}

	return result, nil
}
