package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/phr/ledger/internal/platform/auth"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture(NewMemoryRepository())
	return NewHandler(f.svc), f, echo.New()
}

func userContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, caller string, roles ...string) echo.Context {
	req = req.WithContext(auth.WithIdentity(req.Context(), caller, roles...))
	return e.NewContext(req, rec)
}

func TestHandler_CreateAndListSessions(t *testing.T) {
	h, f, e := newTestHandler()

	body := `{"deviceId":"deviceA","deviceName":"iPhone 15","platform":"iOS"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
	rec := httptest.NewRecorder()
	c := userContext(e, req, rec, "u1")
	c.SetParamNames("userId")
	c.SetParamValues("u1")

	if err := h.CreateSession(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created Session
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Platform != PlatformIOS || created.IPAddress != "203.0.113.7" || !created.IsActive {
		t.Errorf("unexpected session: %+v", created)
	}

	f.now = t0.Add(time.Minute)
	f.login(t, "deviceB")

	req = httptest.NewRequest(http.MethodGet, "/?active=true", nil)
	req.Header.Set(HeaderSessionID, created.ID)
	rec = httptest.NewRecorder()
	c = userContext(e, req, rec, "u1")
	c.SetParamNames("userId")
	c.SetParamValues("u1")
	if err := h.ListSessions(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var list []Session
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0].ID != created.ID || !list[0].IsCurrent {
		t.Errorf("expected current session first, got %+v", list)
	}
}

func TestHandler_ListSessions_BadActiveParam(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?active=maybe", nil)
	c := userContext(e, req, httptest.NewRecorder(), "u1")
	c.SetParamNames("userId")
	c.SetParamValues("u1")

	err := h.ListSessions(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_TerminateSession(t *testing.T) {
	h, f, e := newTestHandler()
	s := f.login(t, "deviceA")

	terminate := func(caller string) (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		c := userContext(e, httptest.NewRequest(http.MethodDelete, "/", nil), rec, caller)
		c.SetParamNames("id")
		c.SetParamValues(s.ID)
		return rec, h.TerminateSession(c)
	}

	if _, err := terminate("u2"); err == nil {
		t.Fatal("expected another user's terminate to fail")
	} else if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	for i := 0; i < 2; i++ {
		rec, err := terminate("u1")
		if err != nil {
			t.Fatalf("terminate #%d: %v", i+1, err)
		}
		if rec.Code != http.StatusNoContent {
			t.Errorf("terminate #%d: expected 204, got %d", i+1, rec.Code)
		}
	}
}

func TestHandler_TerminateOthers(t *testing.T) {
	h, f, e := newTestHandler()
	keep := f.login(t, "deviceA")
	f.login(t, "deviceB")

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderSessionID, keep.ID)
	rec := httptest.NewRecorder()
	c := userContext(e, req, rec, "u1")
	c.SetParamNames("userId")
	c.SetParamValues("u1")

	if err := h.TerminateOthers(c); err != nil {
		t.Fatalf("terminate others: %v", err)
	}
	var res TerminateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Terminated != 1 || res.Failed != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHandler_TerminateOthers_PartialFailure(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: NewMemoryRepository()}
	f := newFixture(repo)
	h, e := NewHandler(f.svc), echo.New()
	keep := f.login(t, "deviceA")
	bad := f.login(t, "deviceB")
	f.login(t, "deviceC")
	repo.failID = bad.ID

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderSessionID, keep.ID)
	rec := httptest.NewRecorder()
	c := userContext(e, req, rec, "u1")
	c.SetParamNames("userId")
	c.SetParamValues("u1")

	if err := h.TerminateOthers(c); err != nil {
		t.Fatalf("terminate others: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res TerminateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Terminated != 1 || res.Failed != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHandler_TouchSession_Terminated(t *testing.T) {
	h, f, e := newTestHandler()
	s := f.login(t, "deviceA")
	if err := f.svc.Terminate(context.Background(), s.ID); err != nil {
		t.Fatalf("terminate: %v", err)
	}

	c := userContext(e, httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder(), "u1")
	c.SetParamNames("id")
	c.SetParamValues(s.ID)
	err := h.TouchSession(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}
