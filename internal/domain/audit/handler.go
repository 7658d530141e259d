package audit

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/phr/ledger/internal/platform/apperr"
	"github.com/phr/ledger/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	subject := api.Group("/users/:userId", auth.RequireSubjectOrRole("userId", auth.RoleAuditor))
	subject.GET("/data-access-logs", h.ListDataAccessLogs)
	subject.GET("/consent-audit-logs", h.ListConsentAuditLogs)
	subject.GET("/gateway-logs", h.ListGatewayLogs)
	subject.GET("/security-events", h.ListSecurityEvents)

	ingest := api.Group("", auth.RequireRole(auth.RoleService))
	ingest.POST("/data-access-logs", h.CreateDataAccessLog)
	ingest.POST("/consent-events", h.CreateConsentEvent)
	ingest.POST("/gateway-logs", h.CreateGatewayLog)
	ingest.POST("/security-events", h.CreateSecurityEvent)

	api.POST("/security-events/:id/acknowledge", h.AcknowledgeSecurityEvent)
}

// ParseWindow reads the optional RFC 3339 from/to query parameters.
func ParseWindow(c echo.Context) (Window, error) {
	var w Window
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &w.From}, {"to", &w.To}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Window{}, apperr.Validation("invalid %s: expected RFC 3339 timestamp", p.name)
		}
		*p.dst = &t
	}
	return w, nil
}

func (h *Handler) ListDataAccessLogs(c echo.Context) error {
	win, err := ParseWindow(c)
	if err != nil {
		return apperr.HTTP(err)
	}
	logs, err := h.svc.DataAccessLogs(c.Request().Context(), DataAccessQuery{
		UserID: c.Param("userId"),
		Source: c.QueryParam("source"),
		Action: c.QueryParam("action"),
		Window: win,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *Handler) ListConsentAuditLogs(c echo.Context) error {
	win, err := ParseWindow(c)
	if err != nil {
		return apperr.HTTP(err)
	}
	events, err := h.svc.ConsentAuditLogs(c.Request().Context(), ConsentAuditQuery{
		UserID:    c.Param("userId"),
		ConsentID: c.QueryParam("consent_id"),
		Window:    win,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) ListGatewayLogs(c echo.Context) error {
	win, err := ParseWindow(c)
	if err != nil {
		return apperr.HTTP(err)
	}
	logs, err := h.svc.GatewayLogs(c.Request().Context(), GatewayQuery{
		UserID: c.Param("userId"),
		Status: c.QueryParam("status"),
		Window: win,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *Handler) ListSecurityEvents(c echo.Context) error {
	win, err := ParseWindow(c)
	if err != nil {
		return apperr.HTTP(err)
	}
	events, err := h.svc.SecurityEvents(c.Request().Context(), SecurityEventQuery{
		UserID: c.Param("userId"),
		Window: win,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) CreateDataAccessLog(c echo.Context) error {
	var l DataAccessLog
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.RecordDataAccess(c.Request().Context(), &l); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) CreateConsentEvent(c echo.Context) error {
	var e ConsentAuditEvent
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.RecordConsentEvent(c.Request().Context(), &e); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) CreateGatewayLog(c echo.Context) error {
	var g GatewayLog
	if err := c.Bind(&g); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.RecordGatewayLog(c.Request().Context(), &g); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) CreateSecurityEvent(c echo.Context) error {
	var e SecurityEvent
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.RecordSecurityEvent(c.Request().Context(), &e); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

// AcknowledgeSecurityEvent is allowed for the event's owner and admins.
func (h *Handler) AcknowledgeSecurityEvent(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	ev, err := h.svc.GetSecurityEvent(ctx, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if !auth.CanAccessSubject(ctx, ev.UserID) {
		return echo.NewHTTPError(http.StatusForbidden, "cannot acknowledge another user's security event")
	}
	ev, err = h.svc.Acknowledge(ctx, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ev)
}
