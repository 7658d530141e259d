package compliance

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/phr/ledger/internal/domain/audit"
	"github.com/phr/ledger/internal/platform/apperr"
	"github.com/phr/ledger/internal/platform/auth"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/users/:userId/compliance-dashboard", h.GetDashboard, auth.RequireSubjectOrRole("userId", auth.RoleAuditor))
	api.GET("/users/:userId/audit-reports", h.ListReports, auth.RequireSubjectOrRole("userId", auth.RoleAuditor))
	api.POST("/audit-reports", h.GenerateReport)
	api.GET("/audit-reports/:id", h.GetReport)
	api.GET("/audit-reports/:id/download", h.DownloadReport)
}

func (h *Handler) GetDashboard(c echo.Context) error {
	win, err := audit.ParseWindow(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.engine.Dashboard(c.Request().Context(), c.Param("userId"), win)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GenerateReport(c echo.Context) error {
	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID != "" && !auth.CanAccessSubject(c.Request().Context(), req.UserID, auth.RoleAuditor) {
		return echo.NewHTTPError(http.StatusForbidden, "cannot generate reports for another user")
	}
	report, err := h.engine.GenerateAuditReport(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, report)
}

func (h *Handler) ListReports(c echo.Context) error {
	reports, err := h.engine.ListAuditReports(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, reports)
}

func (h *Handler) GetReport(c echo.Context) error {
	report, err := h.engine.GetAuditReport(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	if !auth.CanAccessSubject(c.Request().Context(), report.UserID, auth.RoleAuditor) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) DownloadReport(c echo.Context) error {
	ctx := c.Request().Context()
	report, err := h.engine.GetAuditReport(ctx, c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	if !auth.CanAccessSubject(ctx, report.UserID, auth.RoleAuditor) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	rc, report, err := h.engine.DownloadAuditReport(ctx, report.ID)
	if err != nil {
		return apperr.HTTP(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", report.FileName))
	return c.Stream(http.StatusOK, report.ContentType, rc)
}
