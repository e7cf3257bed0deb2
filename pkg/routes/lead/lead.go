package lead

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/lead"
	"github.com/Ramsey-B/clover/internal/repositories/leadevent"
	"github.com/Ramsey-B/clover/pkg/deletion"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Register registers lead routes
func Register(g *echo.Group) {
	g.GET("", ListLeads)
	g.GET("/:id", GetLead)
	g.PUT("/:id", UpdateLead)
	g.GET("/:id/events", ListLeadEvents)
	g.DELETE("/:id", EraseLead)
}

// ListLeads lists leads with optional status and campaign filters
func ListLeads(c echo.Context) error {
	ctx := c.Request().Context()

	var status, campaignID *string
	if s := c.QueryParam("status"); s != "" {
		status = &s
	}
	if cid := c.QueryParam("campaign_id"); cid != "" {
		campaignID = &cid
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*lead.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	leads, total, err := repo.List(ctx, status, campaignID, page, pageSize)
	if err != nil {
		return err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	return c.JSON(http.StatusOK, models.LeadListResponse{
		Items:      leads,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// GetLead gets a lead by ID
func GetLead(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*lead.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	found, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, found)
}

// UpdateLead updates mutable lead fields. Email and phone are normalized
// before they are stored so identity lookups stay canonical.
func UpdateLead(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	var req models.UpdateLeadRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Email != nil {
		email := normalizers.NormalizeEmail(*req.Email)
		if email == "" {
			req.Email = nil
		} else {
			req.Email = &email
		}
	}
	if req.Phone != nil {
		phone := normalizers.NormalizePhone(*req.Phone)
		if phone == "" {
			req.Phone = nil
		} else {
			req.Phone = &phone
		}
	}

	ctx, repo, err := ectoinject.GetContext[*lead.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	updated, err := repo.Update(ctx, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// EraseLead erases a lead and its personal data for an LGPD data
// subject request
func EraseLead(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, engine, err := ectoinject.GetContext[*deletion.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.EraseLead(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// LeadEventsResponse is the response for listing a lead's events
type LeadEventsResponse struct {
	Items      []models.LeadEvent `json:"items"`
	TotalCount int                `json:"total_count"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
}

// ListLeadEvents lists a lead's events, newest first
func ListLeadEvents(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, leadRepo, err := ectoinject.GetContext[*lead.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	// 404 on unknown leads instead of an empty list
	if _, err := leadRepo.Get(ctx, id); err != nil {
		return err
	}

	ctx, eventRepo, err := ectoinject.GetContext[*leadevent.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	events, total, err := eventRepo.ListByLeadPaged(ctx, id, page, pageSize)
	if err != nil {
		return err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	return c.JSON(http.StatusOK, LeadEventsResponse{
		Items:      events,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}
