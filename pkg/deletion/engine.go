// Package deletion implements lead erasure for LGPD data subject
// requests. Erasure removes the lead row and its event history, scrubs
// personal data out of the webhook ledger while keeping idempotency
// keys, and drops every merge artifact touching the lead, all in one
// transaction.
package deletion

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/lead"
	"github.com/Ramsey-B/clover/internal/repositories/leadevent"
	"github.com/Ramsey-B/clover/internal/repositories/ledger"
	"github.com/Ramsey-B/clover/internal/repositories/mergeaudit"
	"github.com/Ramsey-B/clover/internal/repositories/mergecandidate"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErasureResult summarizes what an erasure removed
type ErasureResult struct {
	LeadID            string `json:"lead_id"`
	EventsDeleted     int    `json:"events_deleted"`
	LedgerScrubbed    int    `json:"ledger_scrubbed"`
	CandidatesDeleted int    `json:"candidates_deleted"`
	AuditDeleted      int    `json:"audit_deleted"`
}

// Engine executes lead erasure
type Engine struct {
	logger        ectologger.Logger
	leadRepo      *lead.Repository
	eventRepo     *leadevent.Repository
	ledgerRepo    *ledger.Repository
	candidateRepo *mergecandidate.Repository
	auditRepo     *mergeaudit.Repository
}

// NewEngine creates a new erasure engine
func NewEngine(
	logger ectologger.Logger,
	leadRepo *lead.Repository,
	eventRepo *leadevent.Repository,
	ledgerRepo *ledger.Repository,
	candidateRepo *mergecandidate.Repository,
	auditRepo *mergeaudit.Repository,
) *Engine {
	return &Engine{
		logger:        logger,
		leadRepo:      leadRepo,
		eventRepo:     eventRepo,
		ledgerRepo:    ledgerRepo,
		candidateRepo: candidateRepo,
		auditRepo:     auditRepo,
	}
}

// EraseLead removes a lead and all personal data attached to it. The
// ledger keeps scrubbed rows so redelivered webhooks stay deduplicated
// instead of resurrecting the identity.
func (e *Engine) EraseLead(ctx context.Context, leadID string) (*ErasureResult, error) {
	ctx, span := tracing.StartSpan(ctx, "deletion.Engine.EraseLead")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{"lead_id": leadID})

	ctxTx, tx, err := e.leadRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := e.leadRepo.GetForUpdate(ctxTx, leadID); err != nil {
		return nil, err
	}

	result := &ErasureResult{LeadID: leadID}

	result.EventsDeleted, err = e.eventRepo.DeleteByLead(ctxTx, leadID)
	if err != nil {
		return nil, err
	}

	result.LedgerScrubbed, err = e.ledgerRepo.ScrubLead(ctxTx, leadID)
	if err != nil {
		return nil, err
	}

	result.CandidatesDeleted, err = e.candidateRepo.DeleteForLead(ctxTx, leadID)
	if err != nil {
		return nil, err
	}

	result.AuditDeleted, err = e.auditRepo.DeleteForLead(ctxTx, leadID)
	if err != nil {
		return nil, err
	}

	if err := e.leadRepo.DetachMergedInto(ctxTx, leadID); err != nil {
		return nil, err
	}

	if err := e.leadRepo.Delete(ctxTx, leadID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		log.WithError(err).Error("Failed to commit lead erasure")
		return nil, err
	}

	log.WithFields(map[string]any{
		"events_deleted":  result.EventsDeleted,
		"ledger_scrubbed": result.LedgerScrubbed,
	}).Info("Erased lead")

	return result, nil
}
