package scoringstate

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository handles the single-row scoring state: the recalculation
// dirty bit and the temperature thresholds. The row is seeded once at
// startup and only ever updated after that.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new scoring state repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Seed inserts the single state row with the configured thresholds.
// A no-op once the row exists: operator edits always win over env
// defaults on later boots.
func (r *Repository) Seed(ctx context.Context, warm, hot int) error {
	ctx, span := tracing.StartSpan(ctx, "scoringstate.Repository.Seed")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("scoring_state")
	sb.Cols("id", "warm_threshold", "hot_threshold")
	sb.Values(1, warm, hot)

	query, args := sb.Build()
	query += " ON CONFLICT (id) DO NOTHING"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to seed scoring state")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to seed scoring state")
	}
	return nil
}

// Get retrieves the current scoring state
func (r *Repository) Get(ctx context.Context) (*models.ScoringStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "scoringstate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("needs_recalculation", "warm_threshold", "hot_threshold", "last_update", "last_recalculation")
	sb.From("scoring_state")
	sb.Limit(1)

	query, args := sb.Build()
	var state models.ScoringStatus
	if err := r.db.GetContext(ctx, &state, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get scoring state")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get scoring state")
	}

	return &state, nil
}

// MarkDirty sets the needs-recalculation flag. Called on every rule
// mutation; cleared only by a successful full recalculation.
func (r *Repository) MarkDirty(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "scoringstate.Repository.MarkDirty")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("scoring_state")
	sb.Set(
		sb.Assign("needs_recalculation", true),
		sb.Assign("last_update", time.Now().UTC()),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark scoring state dirty")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark scoring state dirty")
	}

	return nil
}

// ClearDirty clears the needs-recalculation flag after a successful
// full recalculation
func (r *Repository) ClearDirty(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "scoringstate.Repository.ClearDirty")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("scoring_state")
	sb.Set(
		sb.Assign("needs_recalculation", false),
		sb.Assign("last_update", now),
		sb.Assign("last_recalculation", now),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear scoring state")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear scoring state")
	}

	return nil
}

// UpdateThresholds changes the temperature thresholds and marks the
// state dirty, since stored temperatures may no longer match
func (r *Repository) UpdateThresholds(ctx context.Context, warm, hot int) error {
	ctx, span := tracing.StartSpan(ctx, "scoringstate.Repository.UpdateThresholds")
	defer span.End()

	if warm < models.ScoreMin || hot > models.ScoreMax || warm >= hot {
		return httperror.NewHTTPError(http.StatusBadRequest, "thresholds must satisfy 0 <= warm < hot <= 100")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("scoring_state")
	sb.Set(
		sb.Assign("warm_threshold", warm),
		sb.Assign("hot_threshold", hot),
		sb.Assign("needs_recalculation", true),
		sb.Assign("last_update", time.Now().UTC()),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update thresholds")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update thresholds")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"warm": warm, "hot": hot}).Info("Updated temperature thresholds")
	return nil
}
