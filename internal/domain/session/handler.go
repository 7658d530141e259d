package session

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/phr/ledger/internal/platform/apperr"
	"github.com/phr/ledger/internal/platform/auth"
)

// HeaderSessionID names the caller's current session.
const HeaderSessionID = "X-Session-ID"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	user := api.Group("/users/:userId/sessions", auth.RequireSubjectOrRole("userId"))
	user.GET("", h.ListSessions)
	user.POST("", h.CreateSession)
	user.POST("/terminate-others", h.TerminateOthers)

	api.DELETE("/sessions/:id", h.TerminateSession)
	api.POST("/sessions/:id/touch", h.TouchSession)
}

func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userId")
	current := c.Request().Header.Get(HeaderSessionID)

	activeOnly := false
	if v := c.QueryParam("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "active must be a boolean")
		}
		activeOnly = b
	}

	var (
		items []*Session
		err   error
	)
	if activeOnly {
		items, err = h.svc.ActiveSessions(ctx, userID, current)
	} else {
		items, err = h.svc.ListSessions(ctx, userID, current)
	}
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateSession(c echo.Context) error {
	var dev DeviceInfo
	if err := c.Bind(&dev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if dev.IPAddress == "" {
		dev.IPAddress = c.RealIP()
	}
	sess, err := h.svc.CreateSession(c.Request().Context(), c.Param("userId"), dev)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) TerminateOthers(c echo.Context) error {
	var body struct {
		ExceptSessionID string `json:"exceptSessionId"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if body.ExceptSessionID == "" {
		body.ExceptSessionID = c.Request().Header.Get(HeaderSessionID)
	}
	res, err := h.svc.TerminateAllOthers(c.Request().Context(), c.Param("userId"), body.ExceptSessionID)
	// Partial failures are logged by the service and reported in res.
	if err != nil && res.Terminated == 0 && res.Failed == 0 {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

// owned loads the session and hides it from callers that are neither its
// owner nor an admin.
func (h *Handler) owned(c echo.Context) (*Session, error) {
	sess, err := h.svc.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, apperr.HTTP(err)
	}
	if !auth.CanAccessSubject(c.Request().Context(), sess.UserID) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func (h *Handler) TerminateSession(c echo.Context) error {
	sess, err := h.owned(c)
	if err != nil {
		return err
	}
	if err := h.svc.Terminate(c.Request().Context(), sess.ID); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) TouchSession(c echo.Context) error {
	sess, err := h.owned(c)
	if err != nil {
		return err
	}
	sess, err = h.svc.Touch(c.Request().Context(), sess.ID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, sess)
}
