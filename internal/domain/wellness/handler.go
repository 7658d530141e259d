package wellness

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/phr/ledger/internal/platform/apperr"
	"github.com/phr/ledger/internal/platform/auth"
	"github.com/phr/ledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	owner := api.Group("/users/:userId/family-members", auth.RequireSubjectOrRole("userId"))
	owner.GET("", h.ListMembers)
	owner.POST("", h.CreateMember)

	api.GET("/family-members/:id", h.GetMember)
	api.PUT("/family-members/:id", h.UpdateMember)
	api.DELETE("/family-members/:id", h.DeleteMember)
	api.GET("/family-members/:id/goals", h.ListGoals)
	api.POST("/family-members/:id/goals", h.CreateGoal)
	api.PUT("/goals/:id/progress", h.UpdateGoalProgress)
	api.GET("/family-members/:id/vaccinations", h.ListVaccinations)
	api.POST("/family-members/:id/vaccinations", h.AddVaccination)
}

// member loads the member named by memberID, hiding members of other users.
func (h *Handler) member(c echo.Context, memberID string) (*FamilyMember, error) {
	m, err := h.svc.GetMember(c.Request().Context(), memberID)
	if err != nil {
		return nil, apperr.HTTP(err)
	}
	if !auth.CanAccessSubject(c.Request().Context(), m.OwnerID) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "family member not found")
	}
	return m, nil
}

func (h *Handler) ListMembers(c echo.Context) error {
	items, err := h.svc.ListMembers(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return pagination.Respond(c, items, pagination.FromContext(c))
}

func (h *Handler) CreateMember(c echo.Context) error {
	var m FamilyMember
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m.OwnerID = c.Param("userId")
	if err := h.svc.CreateMember(c.Request().Context(), &m); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMember(c echo.Context) error {
	m, err := h.member(c, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateMember(c echo.Context) error {
	if _, err := h.member(c, c.Param("id")); err != nil {
		return err
	}
	var m FamilyMember
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	updated, err := h.svc.UpdateMember(c.Request().Context(), c.Param("id"), &m)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteMember(c echo.Context) error {
	if _, err := h.member(c, c.Param("id")); err != nil {
		return err
	}
	if err := h.svc.DeleteMember(c.Request().Context(), c.Param("id")); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListGoals(c echo.Context) error {
	m, err := h.member(c, c.Param("id"))
	if err != nil {
		return err
	}
	items, err := h.svc.ListGoals(c.Request().Context(), m.ID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return pagination.Respond(c, items, pagination.FromContext(c))
}

func (h *Handler) CreateGoal(c echo.Context) error {
	m, err := h.member(c, c.Param("id"))
	if err != nil {
		return err
	}
	var g Goal
	if err := c.Bind(&g); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CreateGoal(c.Request().Context(), m.ID, &g); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) UpdateGoalProgress(c echo.Context) error {
	g, err := h.svc.GetGoal(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	if _, err := h.member(c, g.MemberID); err != nil {
		return err
	}
	var body struct {
		Current *float64 `json:"current"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.Current == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "current is required")
	}
	g, err = h.svc.UpdateGoalProgress(c.Request().Context(), g.ID, *body.Current)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) ListVaccinations(c echo.Context) error {
	m, err := h.member(c, c.Param("id"))
	if err != nil {
		return err
	}
	items, err := h.svc.ListVaccinations(c.Request().Context(), m.ID, c.QueryParam("status"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return pagination.Respond(c, items, pagination.FromContext(c))
}

func (h *Handler) AddVaccination(c echo.Context) error {
	m, err := h.member(c, c.Param("id"))
	if err != nil {
		return err
	}
	var v Vaccination
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.AddVaccination(c.Request().Context(), m.ID, &v); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}
