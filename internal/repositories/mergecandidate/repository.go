package mergecandidate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{
	"id", "lead_a_id", "lead_b_id", "similarity", "phone_matched", "email_matched",
	"status", "identity_hash", "created_at", "updated_at", "resolved_at", "resolved_by",
}

// Repository handles merge candidate persistence. Pairs are stored
// ordered (lead_a_id < lead_b_id) with a unique index, so regenerating
// candidates can never duplicate a pair.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch inserts or refreshes detected candidate pairs. Operator
// accepts and executed merges are left untouched; open candidates get
// their similarity and tier refreshed. A rejected pair stays rejected
// only while the identities it was judged on are unchanged — when the
// identity hash differs the verdict is stale and the row reopens.
func (r *Repository) UpsertBatch(ctx context.Context, candidates []*models.MergeCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.UpsertBatch")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_candidates")
	sb.Cols("id", "lead_a_id", "lead_b_id", "similarity", "phone_matched", "email_matched", "status", "identity_hash", "created_at", "updated_at")
	for _, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.LeadAID, c.LeadBID = models.OrderPair(c.LeadAID, c.LeadBID)
		sb.Values(c.ID, c.LeadAID, c.LeadBID, c.Similarity, c.PhoneMatched, c.EmailMatched, c.Status, c.IdentityHash, now, now)
	}

	query, args := sb.Build()
	query += " ON CONFLICT (lead_a_id, lead_b_id) DO UPDATE SET" +
		" similarity = EXCLUDED.similarity," +
		" phone_matched = EXCLUDED.phone_matched," +
		" email_matched = EXCLUDED.email_matched," +
		" status = EXCLUDED.status," +
		" identity_hash = EXCLUDED.identity_hash," +
		" resolved_at = NULL," +
		" resolved_by = NULL," +
		" updated_at = EXCLUDED.updated_at" +
		" WHERE merge_candidates.status IN ('pending', 'review')" +
		" OR (merge_candidates.status = 'rejected'" +
		" AND merge_candidates.identity_hash <> EXCLUDED.identity_hash)"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert merge candidates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert merge candidates")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(candidates)}).Debug("Upserted merge candidates")
	return nil
}

// Get retrieves a merge candidate by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_candidates")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var candidate models.MergeCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("merge candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge candidate")
	}

	return &candidate, nil
}

// GetByPair retrieves the candidate for two leads regardless of the
// order the caller passes them in
func (r *Repository) GetByPair(ctx context.Context, leadA, leadB string) (*models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.GetByPair")
	defer span.End()

	a, b := models.OrderPair(leadA, leadB)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_candidates")
	sb.Where(
		sb.Equal("lead_a_id", a),
		sb.Equal("lead_b_id", b),
	)

	query, args := sb.Build()
	var candidate models.MergeCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge candidate by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge candidate")
	}

	return &candidate, nil
}

// List retrieves merge candidates filtered by status, highest
// similarity first
func (r *Repository) List(ctx context.Context, status *string, limit int) ([]models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_candidates")
	if status != nil {
		sb.Where(sb.Equal("status", *status))
	}
	sb.OrderBy("similarity DESC", "created_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.MergeCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge candidates")
	}

	return candidates, nil
}

// ListByLead retrieves open candidates involving a lead
func (r *Repository) ListByLead(ctx context.Context, leadID string) ([]models.MergeCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.ListByLead")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_candidates")
	sb.Where(
		sb.Or(
			sb.Equal("lead_a_id", leadID),
			sb.Equal("lead_b_id", leadID),
		),
		sb.In("status", models.MergeCandidateStatusPending, models.MergeCandidateStatusReview),
	)
	sb.OrderBy("similarity DESC")

	query, args := sb.Build()
	var candidates []models.MergeCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge candidates by lead")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge candidates")
	}

	return candidates, nil
}

// UpdateStatus records an operator verdict or an executed merge on a
// candidate. Runs in the caller's transaction when one is open.
func (r *Repository) UpdateStatus(ctx context.Context, id, status string, resolvedBy *string) error {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.UpdateStatus")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("merge_candidates")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update merge candidate status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update merge candidate status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("merge candidate %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": status}).Info("Updated merge candidate status")
	return nil
}

// DiscardBelow removes open candidates whose similarity fell under the
// review threshold; they are not surfaced and not kept as rejected
func (r *Repository) DiscardBelow(ctx context.Context, threshold float64) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.DiscardBelow")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("merge_candidates")
	sb.Where(
		sb.LessThan("similarity", threshold),
		sb.In("status", models.MergeCandidateStatusPending, models.MergeCandidateStatusReview),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to discard merge candidates")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to discard merge candidates")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// DeleteForLead removes every candidate touching a lead, whatever its
// status. Only erasure calls this. Runs in the caller's transaction.
func (r *Repository) DeleteForLead(ctx context.Context, leadID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.DeleteForLead")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("merge_candidates")
	sb.Where(
		sb.Or(
			sb.Equal("lead_a_id", leadID),
			sb.Equal("lead_b_id", leadID),
		),
	)

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete merge candidates for lead")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete merge candidates")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// ResolveForLead closes open candidates that reference a lead retired
// by a merge. Runs in the caller's transaction.
func (r *Repository) ResolveForLead(ctx context.Context, leadID, status string) error {
	ctx, span := tracing.StartSpan(ctx, "mergecandidate.Repository.ResolveForLead")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("merge_candidates")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Or(
			sb.Equal("lead_a_id", leadID),
			sb.Equal("lead_b_id", leadID),
		),
		sb.In("status", models.MergeCandidateStatusPending, models.MergeCandidateStatusReview),
	)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve merge candidates for lead")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve merge candidates")
	}

	return nil
}
