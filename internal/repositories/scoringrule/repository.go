package scoringrule

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
	"id", "name", "event_type", "points", "campaign_id", "conditions",
	"is_active", "created_at", "updated_at", "deleted_at",
}

// Repository handles scoring rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new scoring rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new scoring rule
func (r *Repository) Create(ctx context.Context, req models.CreateScoringRuleRequest) (*models.ScoringRule, error) {
	ctx, span := tracing.StartSpan(ctx, "scoringrule.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":     "Create",
		"event_type": req.EventType,
		"name":       req.Name,
	})

	now := time.Now().UTC()
	rule := &models.ScoringRule{
		ID:         uuid.New().String(),
		Name:       req.Name,
		EventType:  req.EventType,
		Points:     req.Points,
		CampaignID: req.CampaignID,
		Conditions: req.Conditions,
		IsActive:   req.IsActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("scoring_rules")
	sb.Cols("id", "name", "event_type", "points", "campaign_id", "conditions", "is_active", "created_at", "updated_at")
	sb.Values(rule.ID, rule.Name, rule.EventType, rule.Points, rule.CampaignID, database.JSONBValue(rule.Conditions), rule.IsActive, rule.CreatedAt, rule.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create scoring rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create scoring rule")
	}

	log.WithFields(map[string]any{"id": rule.ID}).Info("Created scoring rule")
	return rule, nil
}

// Get retrieves a scoring rule by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ScoringRule, error) {
	ctx, span := tracing.StartSpan(ctx, "scoringrule.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("scoring_rules")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var rule models.ScoringRule
	if err := r.db.GetContext(ctx, &rule, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("scoring rule %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get scoring rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get scoring rule")
	}

	return &rule, nil
}

// ListActive retrieves every active rule, the working set for rule
// resolution and score replays
func (r *Repository) ListActive(ctx context.Context) ([]models.ScoringRule, error) {
	ctx, span := tracing.StartSpan(ctx, "scoringrule.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("scoring_rules")
	sb.Where(
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var rules []models.ScoringRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active scoring rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list active scoring rules")
	}

	return rules, nil
}

// List retrieves all scoring rules
func (r *Repository) List(ctx context.Context, eventType *string, page, pageSize int) ([]models.ScoringRule, int, error) {
	ctx, span := tracing.StartSpan(ctx, "scoringrule.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("scoring_rules")
	countWhere := []string{countSb.IsNull("deleted_at")}
	if eventType != nil {
		countWhere = append(countWhere, countSb.Equal("event_type", *eventType))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count scoring rules")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count scoring rules")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("scoring_rules")
	where := []string{sb.IsNull("deleted_at")}
	if eventType != nil {
		where = append(where, sb.Equal("event_type", *eventType))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var rules []models.ScoringRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list scoring rules")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list scoring rules")
	}

	return rules, totalCount, nil
}

// Update updates a scoring rule
func (r *Repository) Update(ctx context.Context, id string, req models.UpdateScoringRuleRequest) (*models.ScoringRule, error) {
	ctx, span := tracing.StartSpan(ctx, "scoringrule.Repository.Update")
	defer span.End()

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.EventType != nil {
		existing.EventType = *req.EventType
	}
	if req.Points != nil {
		existing.Points = *req.Points
	}
	if req.CampaignID != nil {
		existing.CampaignID = req.CampaignID
	}
	if req.Conditions != nil {
		existing.Conditions = req.Conditions
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	existing.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("scoring_rules")
	sb.Set(
		sb.Assign("name", existing.Name),
		sb.Assign("event_type", existing.EventType),
		sb.Assign("points", existing.Points),
		sb.Assign("campaign_id", existing.CampaignID),
		sb.Assign("conditions", database.JSONBValue(existing.Conditions)),
		sb.Assign("is_active", existing.IsActive),
		sb.Assign("updated_at", existing.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update scoring rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update scoring rule")
	}

	return existing, nil
}

// Delete soft deletes a scoring rule
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "scoringrule.Repository.Delete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("scoring_rules")
	sb.Set(sb.Assign("deleted_at", now))
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete scoring rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete scoring rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("scoring rule %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted scoring rule")
	return nil
}
