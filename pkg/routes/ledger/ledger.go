package ledger

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/ingestion"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/processor"
)

// Register registers webhook ledger routes
func Register(g *echo.Group) {
	g.GET("", ListEntries)
	g.GET("/:id", GetEntry)
	g.POST("/:id/reprocess", ReprocessEntry)
	g.POST("/ingest", IngestEvent)
}

// ListEntries lists ledger entries by status, oldest first
func ListEntries(c echo.Context) error {
	ctx := c.Request().Context()

	status := c.QueryParam("status")
	if status == "" {
		status = models.LedgerStatusFailed
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, svc, err := ectoinject.GetContext[*ingestion.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entries, err := svc.ListByStatus(ctx, status, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

// GetEntry gets a ledger entry by ID
func GetEntry(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*ingestion.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entry, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entry)
}

// ReprocessEntry re-runs a failed ledger entry through the processing
// pipeline. Only failed entries can be reprocessed.
func ReprocessEntry(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entry, err := proc.ReprocessEntry(ctx, id)
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{"entry_id": id, "status": entry.Status}).Info("Reprocessed ledger entry")
	}

	return c.JSON(http.StatusOK, entry)
}

// IngestEvent accepts a webhook event over HTTP for providers that cannot
// publish to the input topic. Duplicates return the existing entry.
func IngestEvent(c echo.Context) error {
	ctx := c.Request().Context()

	var event models.WebhookEvent
	if err := c.Bind(&event); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entry, err := proc.ProcessEvent(ctx, event)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, entry)
}
