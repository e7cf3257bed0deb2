package mergecandidate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/mergecandidate"
	pkgcontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Register registers merge candidate routes
func Register(g *echo.Group) {
	g.GET("", ListCandidates)
	g.GET("/:id", GetCandidate)
	g.POST("/:id/accept", AcceptCandidate)
	g.POST("/:id/reject", RejectCandidate)
	g.POST("/refresh", RefreshCandidates)
}

// ListCandidates lists merge candidates, highest similarity first
func ListCandidates(c echo.Context) error {
	ctx := c.Request().Context()

	var status *string
	if s := c.QueryParam("status"); s != "" {
		status = &s
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*mergecandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidates, err := repo.List(ctx, status, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidates)
}

// GetCandidate gets a merge candidate by ID
func GetCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*mergecandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidate)
}

// ResolveCandidateRequest is the request body for accepting or rejecting
// a merge candidate
type ResolveCandidateRequest struct {
	ResolvedBy *string `json:"resolved_by,omitempty"`
}

func resolvedBy(c echo.Context) *string {
	var req ResolveCandidateRequest
	if err := c.Bind(&req); err == nil && req.ResolvedBy != nil && *req.ResolvedBy != "" {
		return req.ResolvedBy
	}
	if userID := pkgcontext.GetUserID(c.Request().Context()); userID != "" {
		return &userID
	}
	return nil
}

// AcceptCandidate accepts a merge candidate and executes the merge
func AcceptCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	mergedBy := resolvedBy(c)

	ctx, repo, err := ectoinject.GetContext[*mergecandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if candidate.Status != models.MergeCandidateStatusPending && candidate.Status != models.MergeCandidateStatusReview {
		return httperror.NewHTTPError(http.StatusConflict, "candidate has already been resolved")
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.MergeCandidate(ctx, candidate, mergedBy)
	if err != nil {
		return err
	}

	ctx, emitter, _ := ectoinject.GetContext[*events.Emitter](ctx)
	if emitter != nil {
		emitter.EmitLeadMerged(ctx, result)
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"candidate_id": candidate.ID,
			"survivor_id":  result.SurvivorID,
			"duplicate_id": result.DuplicateID,
		}).Info("Merged candidate pair")
	}

	return c.JSON(http.StatusOK, result)
}

// RejectCandidate rejects a merge candidate. Rejected pairs are never
// regenerated by candidate refresh.
func RejectCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	by := resolvedBy(c)

	ctx, repo, err := ectoinject.GetContext[*mergecandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if candidate.Status != models.MergeCandidateStatusPending && candidate.Status != models.MergeCandidateStatusReview {
		return httperror.NewHTTPError(http.StatusConflict, "candidate has already been resolved")
	}

	if err := repo.UpdateStatus(ctx, id, models.MergeCandidateStatusRejected, by); err != nil {
		return err
	}

	updated, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// RefreshResponse is the outcome of one refresh pass, including the
// auto-merge sweep when it is enabled
type RefreshResponse struct {
	Refresh   *matching.RefreshResult `json:"refresh"`
	AutoMerge *merging.SweepResult    `json:"auto_merge,omitempty"`
}

// RefreshCandidates rescans lead identity overlaps and upserts
// candidates, then auto-merges the pending tier when the deployment
// allows it
func RefreshCandidates(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, cfg, err := ectoinject.GetContext[config.Config](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = cfg.CandidateScanBatchSize
	}

	ctx, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.RefreshCandidates(ctx, limit)
	if err != nil {
		return err
	}

	response := &RefreshResponse{Refresh: result}
	if cfg.AutoMergeEnabled {
		ctx, merger, err := ectoinject.GetContext[*merging.Engine](ctx)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
		}

		sweep, err := merger.AutoMergeSweep(ctx, limit)
		if err != nil {
			return err
		}
		response.AutoMerge = sweep

		ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
		if err == nil && emitter != nil {
			for _, merged := range sweep.Results {
				emitter.EmitLeadMerged(ctx, merged)
			}
		}
	}

	return c.JSON(http.StatusOK, response)
}
