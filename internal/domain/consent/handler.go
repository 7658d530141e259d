package consent

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/phr/ledger/internal/platform/apperr"
	"github.com/phr/ledger/internal/platform/auth"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/users/:userId/consents", auth.RequireSubjectOrRole("userId", auth.RoleAuditor))
	g.GET("", h.ListConsents)
	g.GET("/:consentId/status", h.GetStatus)
	g.GET("/:consentId/timeline", h.GetTimeline)
}

func (h *Handler) ListConsents(c echo.Context) error {
	records, err := h.tracker.Records(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) GetStatus(c echo.Context) error {
	status, err := h.tracker.CurrentStatus(c.Request().Context(), c.Param("userId"), c.Param("consentId"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"consentId": c.Param("consentId"),
		"status":    status,
	})
}

func (h *Handler) GetTimeline(c echo.Context) error {
	entries, err := h.tracker.Timeline(c.Request().Context(), c.Param("userId"), c.Param("consentId"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, entries)
}
