package scoring

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/scoringstate"
	"github.com/Ramsey-B/clover/pkg/scoring"
)

// Register registers scoring routes
func Register(g *echo.Group) {
	g.GET("/status", GetStatus)
	g.POST("/recalculate", Recalculate)
	g.PUT("/thresholds", UpdateThresholds)
}

// GetStatus returns the scoring state including the needs-recalculation flag
func GetStatus(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, engine, err := ectoinject.GetContext[*scoring.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	status, err := engine.Status(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, status)
}

// RecalculateRequest is the request body for triggering a recalculation
type RecalculateRequest struct {
	CampaignID *string `json:"campaign_id,omitempty"`
}

// Recalculate replays every lead's event history against the current rule
// set. Scoped to a campaign when campaign_id is provided; only an
// unscoped run clears the needs-recalculation flag.
func Recalculate(c echo.Context) error {
	ctx := c.Request().Context()

	var req RecalculateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	batchSize := 500
	ctx, cfg, err := ectoinject.GetContext[config.Config](ctx)
	if err == nil && cfg.RecalcBatchSize > 0 {
		batchSize = cfg.RecalcBatchSize
	}

	ctx, engine, err := ectoinject.GetContext[*scoring.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.RecalculateAll(ctx, req.CampaignID, batchSize)
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"total":      result.Total,
			"updated":    result.Updated,
			"failed":     result.Failed,
			"elapsed_ms": result.ElapsedMs,
		}).Info("Recalculated lead scores")
	}

	return c.JSON(http.StatusOK, result)
}

// UpdateThresholdsRequest is the request body for updating temperature
// thresholds
type UpdateThresholdsRequest struct {
	WarmThreshold int `json:"warm_threshold"`
	HotThreshold  int `json:"hot_threshold"`
}

// UpdateThresholds updates the warm and hot temperature thresholds and
// flags stored temperatures as stale
func UpdateThresholds(c echo.Context) error {
	ctx := c.Request().Context()

	var req UpdateThresholdsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, stateRepo, err := ectoinject.GetContext[*scoringstate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := stateRepo.UpdateThresholds(ctx, req.WarmThreshold, req.HotThreshold); err != nil {
		return err
	}

	status, err := stateRepo.Get(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, status)
}
