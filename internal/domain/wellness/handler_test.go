package wellness

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/phr/ledger/internal/platform/auth"
)

func request(method, body, caller string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), caller))
}

func TestHandler_CreateAndListMembers(t *testing.T) {
	svc := newTestService()
	h, e := NewHandler(svc), echo.New()

	body := `{"name":"Ravi","relationship":"son","dateOfBirth":"2015-02-01T00:00:00Z","heightCm":140,"weightKg":33}`
	rec := httptest.NewRecorder()
	c := e.NewContext(request(http.MethodPost, body, "u1"), rec)
	c.SetParamNames("userId")
	c.SetParamValues("u1")
	if err := h.CreateMember(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var m FamilyMember
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.OwnerID != "u1" || m.Age != 11 || m.AgeGroup != AgeChild {
		t.Errorf("unexpected member: %+v", m)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(request(http.MethodGet, "", "u1"), rec)
	c.SetParamNames("userId")
	c.SetParamValues("u1")
	if err := h.ListMembers(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var page struct {
		Data  []FamilyMember `json:"data"`
		Total int            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || len(page.Data) != 1 {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestHandler_GetMember_OtherUser(t *testing.T) {
	svc := newTestService()
	m := addMember(t, svc, "u1")
	h, e := NewHandler(svc), echo.New()

	c := e.NewContext(request(http.MethodGet, "", "u2"), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(m.ID)
	err := h.GetMember(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_UpdateGoalProgress(t *testing.T) {
	svc := newTestService()
	m := addMember(t, svc, "u1")
	g := &Goal{Title: "Water", Target: 8, Unit: "glasses"}
	if err := svc.CreateGoal(context.Background(), m.ID, g); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	h, e := NewHandler(svc), echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(request(http.MethodPut, `{"current":6}`, "u1"), rec)
	c.SetParamNames("id")
	c.SetParamValues(g.ID)
	if err := h.UpdateGoalProgress(c); err != nil {
		t.Fatalf("update: %v", err)
	}
	var got Goal
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Progress != 75 || got.Completed {
		t.Errorf("unexpected goal: %+v", got)
	}

	c = e.NewContext(request(http.MethodPut, `{}`, "u1"), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(g.ID)
	err := h.UpdateGoalProgress(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ListVaccinations_BadStatus(t *testing.T) {
	svc := newTestService()
	m := addMember(t, svc, "u1")
	h, e := NewHandler(svc), echo.New()

	req := request(http.MethodGet, "", "u1")
	req.URL.RawQuery = "status=missed"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(m.ID)
	err := h.ListVaccinations(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
