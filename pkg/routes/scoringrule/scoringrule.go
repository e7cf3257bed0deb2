package scoringrule

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/scoringrule"
	"github.com/Ramsey-B/clover/internal/repositories/scoringstate"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Register registers scoring rule routes
func Register(g *echo.Group) {
	g.GET("", ListScoringRules)
	g.GET("/:id", GetScoringRule)
	g.POST("", CreateScoringRule)
	g.PUT("/:id", UpdateScoringRule)
	g.DELETE("/:id", DeleteScoringRule)
}

// ScoringRuleListResponse is the response for listing scoring rules
type ScoringRuleListResponse struct {
	Items      []models.ScoringRule `json:"items"`
	TotalCount int                  `json:"total_count"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
}

// ListScoringRules lists scoring rules with an optional event type filter
func ListScoringRules(c echo.Context) error {
	ctx := c.Request().Context()

	var eventType *string
	if et := c.QueryParam("event_type"); et != "" {
		eventType = &et
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*scoringrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rules, total, err := repo.List(ctx, eventType, page, pageSize)
	if err != nil {
		return err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	return c.JSON(http.StatusOK, ScoringRuleListResponse{
		Items:      rules,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// GetScoringRule gets a scoring rule by ID
func GetScoringRule(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*scoringrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rule, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rule)
}

// markDirty flags scoring state after any rule mutation so stored scores
// are known to be stale until the next full recalculation.
func markDirty(ctx echo.Context) {
	reqCtx := ctx.Request().Context()

	reqCtx, stateRepo, err := ectoinject.GetContext[*scoringstate.Repository](reqCtx)
	if err != nil {
		return
	}

	if err := stateRepo.MarkDirty(reqCtx); err != nil {
		reqCtx, logger, _ := ectoinject.GetContext[ectologger.Logger](reqCtx)
		if logger != nil {
			logger.WithContext(reqCtx).WithError(err).Error("Failed to mark scoring state dirty")
		}
	}
}

// CreateScoringRule creates a new scoring rule
func CreateScoringRule(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CreateScoringRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Name == "" || req.EventType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "name and event_type are required")
	}

	ctx, repo, err := ectoinject.GetContext[*scoringrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := repo.Create(ctx, req)
	if err != nil {
		return err
	}

	markDirty(c)

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{"id": created.ID, "event_type": created.EventType}).Info("Created scoring rule")
	}

	return c.JSON(http.StatusCreated, created)
}

// UpdateScoringRule updates a scoring rule
func UpdateScoringRule(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	var req models.UpdateScoringRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, repo, err := ectoinject.GetContext[*scoringrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	updated, err := repo.Update(ctx, id, req)
	if err != nil {
		return err
	}

	markDirty(c)

	return c.JSON(http.StatusOK, updated)
}

// DeleteScoringRule soft deletes a scoring rule
func DeleteScoringRule(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*scoringrule.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Delete(ctx, id); err != nil {
		return err
	}

	markDirty(c)

	return c.NoContent(http.StatusNoContent)
}
