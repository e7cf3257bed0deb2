package ledger

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
	"id", "idempotency_key", "source", "event_type", "external_id", "payload",
	"status", "lead_id", "error_message", "received_at", "processed_at",
	"created_at", "updated_at",
}

// Repository handles webhook ledger persistence. The unique index on
// idempotency_key is the system's sole deduplication guarantee.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new ledger entry, deduplicating on idempotency key.
// Returns the stored entry and whether this call created it; on a
// duplicate the existing entry comes back unchanged.
func (r *Repository) Insert(ctx context.Context, entry *models.WebhookLedgerEntry) (*models.WebhookLedgerEntry, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.Insert")
	defer span.End()

	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.Status = models.LedgerStatusNew
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = now
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("webhook_ledger")
	sb.Cols("id", "idempotency_key", "source", "event_type", "external_id", "payload", "status", "received_at", "created_at", "updated_at")
	sb.Values(
		entry.ID, entry.IdempotencyKey, entry.Source, entry.EventType,
		entry.ExternalID, database.JSONBValue(entry.Payload), entry.Status, entry.ReceivedAt,
		entry.CreatedAt, entry.UpdatedAt,
	)
	sb.SQL("ON CONFLICT (idempotency_key) DO NOTHING")

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert ledger entry")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert ledger entry")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Duplicate delivery: hand back the original entry untouched
		existing, err := r.GetByIdempotencyKey(ctx, entry.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return entry, true, nil
}

// Get retrieves a ledger entry by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.WebhookLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("webhook_ledger")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entry models.WebhookLedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("ledger entry %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get ledger entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ledger entry")
	}

	return &entry, nil
}

// GetByIdempotencyKey retrieves a ledger entry by its idempotency key
func (r *Repository) GetByIdempotencyKey(ctx context.Context, key string) (*models.WebhookLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.GetByIdempotencyKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("webhook_ledger")
	sb.Where(sb.Equal("idempotency_key", key))

	query, args := sb.Build()
	var entry models.WebhookLedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "ledger entry not found")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get ledger entry by key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ledger entry")
	}

	return &entry, nil
}

// MarkProcessed transitions an entry to the terminal processed state.
// Processed entries are immutable, so an already-processed entry is not
// touched again.
func (r *Repository) MarkProcessed(ctx context.Context, id string, leadID *string) error {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.MarkProcessed")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("webhook_ledger")
	sb.Set(
		sb.Assign("status", models.LedgerStatusProcessed),
		sb.Assign("lead_id", leadID),
		sb.Assign("error_message", nil),
		sb.Assign("processed_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.NotEqual("status", models.LedgerStatusProcessed),
	)

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark ledger entry processed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark ledger entry processed")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("ledger entry %s is already processed or missing", id))
	}

	return nil
}

// MarkFailed records a processing failure. Failed entries are only
// retried by an explicit reprocess call, never automatically.
func (r *Repository) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.MarkFailed")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("webhook_ledger")
	sb.Set(
		sb.Assign("status", models.LedgerStatusFailed),
		sb.Assign("error_message", errorMessage),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.NotEqual("status", models.LedgerStatusProcessed),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark ledger entry failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark ledger entry failed")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("ledger entry %s is already processed or missing", id))
	}

	return nil
}

// ResetForReprocess moves a failed entry back to new so the processor
// picks it up again. Only failed entries are eligible.
func (r *Repository) ResetForReprocess(ctx context.Context, id string) (*models.WebhookLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.ResetForReprocess")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("webhook_ledger")
	sb.Set(
		sb.Assign("status", models.LedgerStatusNew),
		sb.Assign("error_message", nil),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.LedgerStatusFailed),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to reset ledger entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reset ledger entry")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("ledger entry %s is not in a failed state", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Reset ledger entry for reprocessing")
	return r.Get(ctx, id)
}

// ListByStatus retrieves ledger entries in a given status, oldest first
// so pending work is drained in arrival order
func (r *Repository) ListByStatus(ctx context.Context, status string, limit int) ([]models.WebhookLedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.ListByStatus")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("webhook_ledger")
	sb.Where(sb.Equal("status", status))
	sb.OrderBy("received_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var entries []models.WebhookLedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list ledger entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list ledger entries")
	}

	return entries, nil
}

// ScrubLead strips personal data from a lead's ledger entries while
// keeping the idempotency keys, so erased identities cannot be
// resurrected by provider redeliveries. Runs in the caller's
// transaction.
func (r *Repository) ScrubLead(ctx context.Context, leadID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.ScrubLead")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("webhook_ledger")
	sb.Set(
		sb.Assign("payload", "{}"),
		sb.Assign("lead_id", nil),
		sb.Assign("error_message", nil),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("lead_id", leadID))

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to scrub ledger entries")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to scrub ledger entries")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// ReparentLead repoints processed ledger attributions from a merged
// duplicate to its survivor. Runs in the caller's transaction.
func (r *Repository) ReparentLead(ctx context.Context, fromLeadID, toLeadID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Repository.ReparentLead")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("webhook_ledger")
	sb.Set(
		sb.Assign("lead_id", toLeadID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("lead_id", fromLeadID))

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to reparent ledger entries")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reparent ledger entries")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}
