package compliance

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/phr/ledger/internal/domain/audit"
	"github.com/phr/ledger/internal/platform/auth"
)

func asIdentity(req *http.Request, userID string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), userID, roles...))
}

func expectHTTPStatus(t *testing.T, err error, status int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError with %d, got %v", status, err)
	}
	if httpErr.Code != status {
		t.Errorf("expected %d, got %d", status, httpErr.Code)
	}
}

func TestHandler_GetDashboard(t *testing.T) {
	f := newFixture(t)
	f.access(t, audit.ActionView, audit.SourceDoctor, "City Clinic", "c1", now0.Add(-time.Hour))
	h, e := NewHandler(f.engine), echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?from=2026-04-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("userId")
	c.SetParamValues("u1")

	if err := h.GetDashboard(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var d Dashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.TotalDataAccesses != 1 || d.AccessesBySource["doctor"] != 1 {
		t.Errorf("unexpected dashboard: %+v", d)
	}
}

func TestHandler_GetDashboard_FromAfterTo(t *testing.T) {
	f := newFixture(t)
	h, e := NewHandler(f.engine), echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-04-10T00:00:00Z&to=2026-04-01T00:00:00Z", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("userId")
	c.SetParamValues("u1")

	expectHTTPStatus(t, h.GetDashboard(c), http.StatusBadRequest)
}

func generate(t *testing.T, h *Handler, e *echo.Echo, body string, caller string, roles ...string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = asIdentity(req, caller, roles...)
	rec := httptest.NewRecorder()
	return rec, h.GenerateReport(e.NewContext(req, rec))
}

const csvReportBody = `{"userId":"u1","format":"csv","includeDataAccess":true,
	"dateRange":{"from":"2026-04-01T00:00:00Z","to":"2026-04-15T12:00:00Z"}}`

func TestHandler_GenerateAndDownloadReport(t *testing.T) {
	f := newFixture(t)
	f.access(t, audit.ActionView, audit.SourceDoctor, "City Clinic", "c1", now0.Add(-time.Hour))
	h, e := NewHandler(f.engine), echo.New()

	rec, err := generate(t, h, e, csvReportBody, "u1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var report AuditReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Summary.DataAccessLogs != 1 {
		t.Errorf("expected 1 data access log, got %+v", report.Summary)
	}

	req := asIdentity(httptest.NewRequest(http.MethodGet, "/", nil), "u1")
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(report.ID)
	if err := h.DownloadReport(c); err != nil {
		t.Fatalf("download: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/csv" {
		t.Errorf("expected text/csv, got %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, report.FileName) {
		t.Errorf("expected disposition with %s, got %q", report.FileName, cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "category,id,timestamp") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	// another user sees nothing
	req = asIdentity(httptest.NewRequest(http.MethodGet, "/", nil), "u2")
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(report.ID)
	expectHTTPStatus(t, h.DownloadReport(c), http.StatusNotFound)

	// expired
	f.now = now0.Add(25 * time.Hour)
	req = asIdentity(httptest.NewRequest(http.MethodGet, "/", nil), "u1")
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(report.ID)
	expectHTTPStatus(t, h.DownloadReport(c), http.StatusGone)
}

func TestHandler_GenerateReport_Forbidden(t *testing.T) {
	f := newFixture(t)
	h, e := NewHandler(f.engine), echo.New()

	_, err := generate(t, h, e, csvReportBody, "u2")
	expectHTTPStatus(t, err, http.StatusForbidden)

	rec, err := generate(t, h, e, csvReportBody, "auditor-1", auth.RoleAuditor)
	if err != nil {
		t.Fatalf("auditor generate: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 for auditor, got %d", rec.Code)
	}
}

func TestHandler_GenerateReport_Invalid(t *testing.T) {
	f := newFixture(t)
	h, e := NewHandler(f.engine), echo.New()

	body := `{"userId":"u1","format":"csv","includeDataAccess":true,
		"dateRange":{"from":"2026-04-15T00:00:00Z","to":"2026-04-01T00:00:00Z"}}`
	_, err := generate(t, h, e, body, "u1")
	expectHTTPStatus(t, err, http.StatusBadRequest)
}

func TestHandler_GetReport_NotFound(t *testing.T) {
	f := newFixture(t)
	h, e := NewHandler(f.engine), echo.New()
	req := asIdentity(httptest.NewRequest(http.MethodGet, "/", nil), "u1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("missing")

	expectHTTPStatus(t, h.GetReport(c), http.StatusNotFound)
}

func TestHandler_ListReports(t *testing.T) {
	f := newFixture(t)
	h, e := NewHandler(f.engine), echo.New()
	if _, err := generate(t, h, e, csvReportBody, "u1"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	req := asIdentity(httptest.NewRequest(http.MethodGet, "/", nil), "u1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("userId")
	c.SetParamValues("u1")
	if err := h.ListReports(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var reports []AuditReport
	if err := json.Unmarshal(rec.Body.Bytes(), &reports); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reports) != 1 || reports[0].Format != FormatCSV || reports[0].UserID != "u1" {
		t.Errorf("unexpected reports: %+v", reports)
	}
}
