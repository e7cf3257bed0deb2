package mergeaudit

import (
	"context"
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

// Repository handles merge audit persistence. One row per executed
// merge, written inside the merge transaction.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records an executed merge. Runs in the caller's transaction.
func (r *Repository) Create(ctx context.Context, entry *models.MergeAuditEntry) (*models.MergeAuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.Create")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_audit")
	sb.Cols("id", "survivor_id", "duplicate_id", "candidate_id", "similarity", "events_reparented", "merged_by", "created_at")
	sb.Values(
		entry.ID, entry.SurvivorID, entry.DuplicateID, entry.CandidateID,
		entry.Similarity, entry.EventsReparented, entry.MergedBy, entry.CreatedAt,
	)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create merge audit entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge audit entry")
	}

	return entry, nil
}

// DeleteForLead removes audit entries touching a lead so its row can be
// erased. Runs in the caller's transaction.
func (r *Repository) DeleteForLead(ctx context.Context, leadID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.DeleteForLead")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("merge_audit")
	sb.Where(
		sb.Or(
			sb.Equal("survivor_id", leadID),
			sb.Equal("duplicate_id", leadID),
		),
	)

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete merge audit entries for lead")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete merge audit entries")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// ListBySurvivor retrieves the merge history that produced a lead
func (r *Repository) ListBySurvivor(ctx context.Context, survivorID string) ([]models.MergeAuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.ListBySurvivor")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "survivor_id", "duplicate_id", "candidate_id", "similarity", "events_reparented", "merged_by", "created_at")
	sb.From("merge_audit")
	sb.Where(sb.Equal("survivor_id", survivorID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var entries []models.MergeAuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge audit entries")
	}

	return entries, nil
}
