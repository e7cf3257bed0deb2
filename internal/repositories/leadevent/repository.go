package leadevent

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

var columns = []string{
	"id", "lead_id", "event_type", "campaign_id", "points_applied",
	"occurred_at", "metadata", "created_at",
}

// Repository handles lead event persistence. Events are immutable:
// rows are inserted by scoring and re-parented by merges, never updated
// or deleted.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new lead event repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transaction control
func (r *Repository) DB() database.DB {
	return r.db
}

// Create inserts an immutable lead event. Runs in the caller's
// transaction so the event commits with its score delta.
func (r *Repository) Create(ctx context.Context, event *models.LeadEvent) (*models.LeadEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "leadevent.Repository.Create")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = time.Now().UTC()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = event.CreatedAt
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("lead_events")
	sb.Cols(columns...)
	sb.Values(
		event.ID, event.LeadID, event.EventType, event.CampaignID,
		event.PointsApplied, event.OccurredAt, database.JSONBValue(event.Metadata), event.CreatedAt,
	)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create lead event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create lead event")
	}

	return event, nil
}

// ListByLead retrieves a lead's full event history in replay order
// (occurred_at ascending, insertion order breaking ties). Runs in the
// caller's transaction so replays see rows reparented in the same unit.
func (r *Repository) ListByLead(ctx context.Context, leadID string) ([]models.LeadEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "leadevent.Repository.ListByLead")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("lead_events")
	sb.Where(sb.Equal("lead_id", leadID))
	sb.OrderBy("occurred_at ASC", "created_at ASC", "id ASC")

	query, args := sb.Build()
	var events []models.LeadEvent
	if err := tx.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list lead events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list lead events")
	}

	return events, nil
}

// CountByLead returns the number of events attributed to a lead
func (r *Repository) CountByLead(ctx context.Context, leadID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "leadevent.Repository.CountByLead")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("lead_events")
	sb.Where(sb.Equal("lead_id", leadID))

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count lead events")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count lead events")
	}

	return count, nil
}

// Reparent moves every event from one lead to another and returns the
// number of rows moved. Runs in the caller's transaction; a partial
// move must never commit.
func (r *Repository) Reparent(ctx context.Context, fromLeadID, toLeadID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "leadevent.Repository.Reparent")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("lead_events")
	sb.Set(sb.Assign("lead_id", toLeadID))
	sb.Where(sb.Equal("lead_id", fromLeadID))

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to reparent lead events")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reparent lead events")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// DeleteByLead removes every event for a lead and returns the number of
// rows removed. Only erasure calls this; merges re-parent instead. Runs
// in the caller's transaction.
func (r *Repository) DeleteByLead(ctx context.Context, leadID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "leadevent.Repository.DeleteByLead")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("lead_events")
	sb.Where(sb.Equal("lead_id", leadID))

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete lead events")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete lead events")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// UpdatePointsApplied records the points a replay attributed to an
// event. Runs in the caller's transaction.
func (r *Repository) UpdatePointsApplied(ctx context.Context, eventID string, points int) error {
	ctx, span := tracing.StartSpan(ctx, "leadevent.Repository.UpdatePointsApplied")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("lead_events")
	sb.Set(sb.Assign("points_applied", points))
	sb.Where(sb.Equal("id", eventID))

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update event points")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update event points")
	}

	return nil
}

// ListByLeadPaged retrieves a page of a lead's events, newest first
func (r *Repository) ListByLeadPaged(ctx context.Context, leadID string, page, pageSize int) ([]models.LeadEvent, int, error) {
	ctx, span := tracing.StartSpan(ctx, "leadevent.Repository.ListByLeadPaged")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := r.CountByLead(ctx, leadID)
	if err != nil {
		return nil, 0, err
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("lead_events")
	sb.Where(sb.Equal("lead_id", leadID))
	sb.OrderBy("occurred_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var events []models.LeadEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list lead events")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list lead events")
	}

	return events, total, nil
}
