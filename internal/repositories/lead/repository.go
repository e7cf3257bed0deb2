package lead

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{
	"id", "name", "email", "phone", "score", "temperature", "status", "tags",
	"campaign_id", "merged_into", "last_email_at", "last_whatsapp_at",
	"last_interaction_at", "created_at", "updated_at",
}

// Repository handles lead persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new lead repository
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

// Create inserts a new lead with the base score
func (r *Repository) Create(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusActive
	}
	if lead.Tags == nil {
		lead.Tags = pq.StringArray{}
	}
	if lead.Temperature == "" {
		lead.Temperature = models.TemperatureCold
	}
	lead.Score = models.BaseScore
	lead.CreatedAt = now
	lead.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("leads")
	sb.Cols(columns...)
	sb.Values(
		lead.ID, lead.Name, lead.Email, lead.Phone, lead.Score, lead.Temperature,
		lead.Status, lead.Tags, lead.CampaignID, lead.MergedInto, lead.LastEmailAt,
		lead.LastWhatsAppAt, lead.LastInteractionAt, lead.CreatedAt, lead.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create lead")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create lead")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": lead.ID}).Info("Created lead")
	return lead, nil
}

// Get retrieves a lead by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("leads")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var lead models.Lead
	if err := r.db.GetContext(ctx, &lead, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("lead %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get lead")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lead")
	}

	return &lead, nil
}

// GetForUpdate retrieves a lead by ID with a row lock, serializing
// concurrent score updates and merges for the same lead. Runs in the
// caller's transaction.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.GetForUpdate")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("leads")
	sb.Where(sb.Equal("id", id))
	sb.SQL("FOR UPDATE")

	query, args := sb.Build()
	var lead models.Lead
	if err := tx.GetContext(ctx, &lead, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("lead %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock lead")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock lead")
	}

	return &lead, nil
}

// GetByIdentity finds active leads matching a canonical phone or email.
// Phone is the primary signal, so phone matches come back first.
func (r *Repository) GetByIdentity(ctx context.Context, key models.IdentityKey) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.GetByIdentity")
	defer span.End()

	if key.IsEmpty() {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("leads")

	identity := []string{}
	if key.Phone != "" {
		identity = append(identity, sb.Equal("phone", key.Phone))
	}
	if key.Email != "" {
		identity = append(identity, sb.Equal("email", key.Email))
	}
	sb.Where(
		sb.Or(identity...),
		sb.NotEqual("status", models.LeadStatusMerged),
	)
	if key.Phone != "" {
		sb.OrderBy("(phone = "+sb.Var(key.Phone)+") DESC NULLS LAST", "created_at ASC")
	} else {
		sb.OrderBy("created_at ASC")
	}

	query, args := sb.Build()
	var leads []models.Lead
	if err := r.db.SelectContext(ctx, &leads, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find leads by identity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find leads by identity")
	}

	return leads, nil
}

// GetRetiredByIdentity finds merged (retired) leads matching a
// canonical phone or email. Used when no live lead carries the
// identity: the retired lead's merged_into pointer leads to the
// survivor the event belongs to.
func (r *Repository) GetRetiredByIdentity(ctx context.Context, key models.IdentityKey) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.GetRetiredByIdentity")
	defer span.End()

	if key.IsEmpty() {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("leads")

	identity := []string{}
	if key.Phone != "" {
		identity = append(identity, sb.Equal("phone", key.Phone))
	}
	if key.Email != "" {
		identity = append(identity, sb.Equal("email", key.Email))
	}
	sb.Where(
		sb.Or(identity...),
		sb.Equal("status", models.LeadStatusMerged),
	)
	sb.OrderBy("updated_at DESC")

	query, args := sb.Build()
	var leads []models.Lead
	if err := r.db.SelectContext(ctx, &leads, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find retired leads by identity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find retired leads by identity")
	}

	return leads, nil
}

// Update applies mutable field changes to a lead
func (r *Repository) Update(ctx context.Context, id string, req models.UpdateLeadRequest) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.Update")
	defer span.End()

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = req.Name
	}
	if req.Email != nil {
		existing.Email = req.Email
	}
	if req.Phone != nil {
		existing.Phone = req.Phone
	}
	if req.Status != nil {
		existing.Status = *req.Status
	}
	if req.Tags != nil {
		existing.Tags = pq.StringArray(req.Tags)
	}
	if req.CampaignID != nil {
		existing.CampaignID = req.CampaignID
	}
	existing.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("leads")
	sb.Set(
		sb.Assign("name", existing.Name),
		sb.Assign("email", existing.Email),
		sb.Assign("phone", existing.Phone),
		sb.Assign("status", existing.Status),
		sb.Assign("tags", existing.Tags),
		sb.Assign("campaign_id", existing.CampaignID),
		sb.Assign("updated_at", existing.UpdatedAt),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update lead")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update lead")
	}

	return existing, nil
}

// UpdateScore persists a new score and temperature. Runs in the
// caller's transaction so the score change commits with its LeadEvent.
func (r *Repository) UpdateScore(ctx context.Context, id string, score int, temperature models.Temperature) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.UpdateScore")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("leads")
	sb.Set(
		sb.Assign("score", score),
		sb.Assign("temperature", temperature),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update lead score")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update lead score")
	}

	return nil
}

// TouchChannel updates the per-channel and overall last-interaction
// timestamps. Runs in the caller's transaction when one is open.
func (r *Repository) TouchChannel(ctx context.Context, id, channel string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.TouchChannel")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("leads")
	assignments := []string{
		sb.Assign("last_interaction_at", at),
		sb.Assign("updated_at", time.Now().UTC()),
	}
	switch channel {
	case "email":
		assignments = append(assignments, sb.Assign("last_email_at", at))
	case "whatsapp":
		assignments = append(assignments, sb.Assign("last_whatsapp_at", at))
	}
	sb.Set(assignments...)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to touch lead channel")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to touch lead channel")
	}

	return nil
}

// MergeInto soft-retires a duplicate lead and records the pointer to
// its survivor. Runs in the caller's transaction.
func (r *Repository) MergeInto(ctx context.Context, duplicateID, survivorID string) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.MergeInto")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("leads")
	sb.Set(
		sb.Assign("status", models.LeadStatusMerged),
		sb.Assign("merged_into", survivorID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", duplicateID))

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark lead merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark lead merged")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("lead %s not found", duplicateID))
	}

	return nil
}

// DetachMergedInto clears merged_into pointers referencing a lead about
// to be erased, so retired duplicates survive the erasure of their
// survivor. Runs in the caller's transaction.
func (r *Repository) DetachMergedInto(ctx context.Context, leadID string) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.DetachMergedInto")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("leads")
	sb.Set(
		sb.Assign("merged_into", nil),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("merged_into", leadID))

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to detach merged_into pointers")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to detach merged_into pointers")
	}

	return nil
}

// Delete hard-deletes a lead row. Only erasure calls this; every other
// path retires leads with a merged pointer. Runs in the caller's
// transaction.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.Delete")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("leads")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete lead")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete lead")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("lead %s not found", id))
	}

	return nil
}

// UpdateFields persists survivor field fills after a merge. Runs in the
// caller's transaction.
func (r *Repository) UpdateFields(ctx context.Context, lead *models.Lead) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.UpdateFields")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}

	lead.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("leads")
	sb.Set(
		sb.Assign("name", lead.Name),
		sb.Assign("email", lead.Email),
		sb.Assign("phone", lead.Phone),
		sb.Assign("tags", lead.Tags),
		sb.Assign("campaign_id", lead.CampaignID),
		sb.Assign("last_email_at", lead.LastEmailAt),
		sb.Assign("last_whatsapp_at", lead.LastWhatsAppAt),
		sb.Assign("last_interaction_at", lead.LastInteractionAt),
		sb.Assign("updated_at", lead.UpdatedAt),
	)
	sb.Where(sb.Equal("id", lead.ID))

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update lead fields")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update lead fields")
	}

	return nil
}

// OverlapPair is one detected identity overlap between two leads,
// already in canonical order (lead_a_id < lead_b_id)
type OverlapPair struct {
	LeadAID      string `db:"lead_a_id"`
	LeadBID      string `db:"lead_b_id"`
	PhoneMatched bool   `db:"phone_matched"`
	EmailMatched bool   `db:"email_matched"`

	// Identity values the overlap was judged on, for snapshotting on
	// the candidate
	PhoneA string `db:"phone_a"`
	EmailA string `db:"email_a"`
	PhoneB string `db:"phone_b"`
	EmailB string `db:"email_b"`
}

// ListIdentityOverlaps scans for pairs of non-merged leads sharing a
// canonical phone or email. Phone is the primary signal; the flags say
// which identity fields matched so the caller can weight them.
func (r *Repository) ListIdentityOverlaps(ctx context.Context, limit int) ([]OverlapPair, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.ListIdentityOverlaps")
	defer span.End()

	if limit < 1 {
		limit = 1000
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(
		"a.id AS lead_a_id",
		"b.id AS lead_b_id",
		"(a.phone IS NOT NULL AND a.phone = b.phone) AS phone_matched",
		"(a.email IS NOT NULL AND a.email = b.email) AS email_matched",
		"COALESCE(a.phone, '') AS phone_a",
		"COALESCE(a.email, '') AS email_a",
		"COALESCE(b.phone, '') AS phone_b",
		"COALESCE(b.email, '') AS email_b",
	)
	sb.From("leads a")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "leads b",
		"a.id < b.id",
		"((a.phone IS NOT NULL AND a.phone = b.phone) OR (a.email IS NOT NULL AND a.email = b.email))",
	)
	sb.Where(
		sb.NotEqual("a.status", models.LeadStatusMerged),
		sb.NotEqual("b.status", models.LeadStatusMerged),
	)
	sb.OrderBy("a.id ASC", "b.id ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var pairs []OverlapPair
	if err := r.db.SelectContext(ctx, &pairs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to scan identity overlaps")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to scan identity overlaps")
	}

	return pairs, nil
}

// List retrieves leads filtered by status and campaign
func (r *Repository) List(ctx context.Context, status, campaignID *string, page, pageSize int) ([]models.Lead, int, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.List")
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
	countSb.From("leads")
	countWhere := []string{}
	if status != nil {
		countWhere = append(countWhere, countSb.Equal("status", *status))
	} else {
		countWhere = append(countWhere, countSb.NotEqual("status", models.LeadStatusMerged))
	}
	if campaignID != nil {
		countWhere = append(countWhere, countSb.Equal("campaign_id", *campaignID))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count leads")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count leads")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("leads")
	where := []string{}
	if status != nil {
		where = append(where, sb.Equal("status", *status))
	} else {
		where = append(where, sb.NotEqual("status", models.LeadStatusMerged))
	}
	if campaignID != nil {
		where = append(where, sb.Equal("campaign_id", *campaignID))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var leads []models.Lead
	if err := r.db.SelectContext(ctx, &leads, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list leads")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list leads")
	}

	return leads, totalCount, nil
}

// ListIDs streams active lead ids for batch recalculation, keyset
// paginated on id so re-runs are restartable.
func (r *Repository) ListIDs(ctx context.Context, campaignID *string, afterID string, limit int) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.ListIDs")
	defer span.End()

	if limit < 1 {
		limit = 500
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("leads")
	where := []string{sb.NotEqual("status", models.LeadStatusMerged)}
	if campaignID != nil {
		where = append(where, sb.Equal("campaign_id", *campaignID))
	}
	if afterID != "" {
		where = append(where, sb.GreaterThan("id", afterID))
	}
	sb.Where(where...)
	sb.OrderBy("id ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list lead ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list lead ids")
	}

	return ids, nil
}
