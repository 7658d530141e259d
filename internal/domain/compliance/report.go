package compliance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phr/ledger/internal/domain/audit"
	"github.com/phr/ledger/internal/platform/apperr"
	"github.com/phr/ledger/internal/platform/blobstore"
)

var contentTypes = map[string]string{
	FormatPDF:  blobstore.ContentTypePDF,
	FormatCSV:  blobstore.ContentTypeCSV,
	FormatJSON: blobstore.ContentTypeJSON,
}

// reportData is everything that goes into a report file.
type reportData struct {
	Report   *AuditReport
	Access   []*audit.DataAccessLog
	Consent  []*audit.ConsentAuditEvent
	Gateway  []*audit.GatewayLog
	Activity []*audit.SecurityEvent
}

func validateReportRequest(req ReportRequest) error {
	if req.UserID == "" {
		return apperr.Validation("userId is required")
	}
	if req.DateRange.From.IsZero() || req.DateRange.To.IsZero() {
		return apperr.Validation("dateRange.from and dateRange.to are required")
	}
	if req.DateRange.From.After(req.DateRange.To) {
		return apperr.Validation("dateRange.from must not be after dateRange.to")
	}
	if _, ok := contentTypes[req.Format]; !ok {
		return apperr.Validation("format must be one of pdf, csv, json")
	}
	if !req.IncludeDataAccess && !req.IncludeConsents && !req.IncludeABDMTransactions && !req.IncludeUserActivity {
		return apperr.Validation("at least one log category must be included")
	}
	return nil
}

// GenerateAuditReport collects the requested categories, renders them and
// stores the file. The descriptor becomes visible to DownloadAuditReport only
// after the file is stored; a cancelled ctx leaves nothing behind.
func (e *Engine) GenerateAuditReport(ctx context.Context, req ReportRequest) (*AuditReport, error) {
	if err := validateReportRequest(req); err != nil {
		return nil, err
	}

	from, to := req.DateRange.From, req.DateRange.To
	win := audit.Window{From: &from, To: &to}
	data := &reportData{}

	g, gctx := errgroup.WithContext(ctx)
	if req.IncludeDataAccess {
		g.Go(func() (err error) {
			data.Access, err = e.store.QueryDataAccess(gctx, audit.DataAccessQuery{UserID: req.UserID, Window: win})
			return err
		})
	}
	if req.IncludeConsents {
		g.Go(func() (err error) {
			data.Consent, err = e.store.QueryConsentAudit(gctx, audit.ConsentAuditQuery{UserID: req.UserID, Window: win})
			return err
		})
	}
	if req.IncludeABDMTransactions {
		g.Go(func() (err error) {
			data.Gateway, err = e.store.QueryGatewayLogs(gctx, audit.GatewayQuery{UserID: req.UserID, Window: win})
			return err
		})
	}
	if req.IncludeUserActivity {
		g.Go(func() (err error) {
			data.Activity, err = e.store.QuerySecurityEvents(gctx, audit.SecurityEventQuery{UserID: req.UserID, Window: win})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect report data: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	report := &AuditReport{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Format:      req.Format,
		ContentType: contentTypes[req.Format],
		DateRange:   DateRange{From: from.UTC(), To: to.UTC()},
		Summary: ReportSummary{
			DataAccessLogs:   len(data.Access),
			ConsentLogs:      len(data.Consent),
			ABDMLogs:         len(data.Gateway),
			UserActivityLogs: len(data.Activity),
		},
		GeneratedAt: now,
		ExpiresAt:   now.Add(e.ttl),
	}
	report.Summary.TotalLogs = report.Summary.DataAccessLogs + report.Summary.ConsentLogs +
		report.Summary.ABDMLogs + report.Summary.UserActivityLogs
	report.FileName = fmt.Sprintf("audit-report-%s-%s.%s", req.UserID, now.Format("20060102-150405"), req.Format)
	data.Report = report

	content, err := render(req.Format, data)
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", req.Format, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := e.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    report.FileName,
		ContentType: report.ContentType,
		OwnerID:     req.UserID,
		Tags:        map[string]string{"report_id": report.ID, "format": req.Format},
	}, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	if err := ctx.Err(); err != nil {
		if derr := e.blobs.Delete(context.Background(), blob.ID); derr != nil {
			e.logger.Error().Err(derr).Str("blob_id", blob.ID).Msg("failed to delete abandoned report blob")
		}
		return nil, err
	}
	report.blobID = blob.ID
	report.SizeBytes = blob.Size

	e.mu.Lock()
	e.reports[report.ID] = report
	e.mu.Unlock()

	e.logger.Info().
		Str("user_id", req.UserID).Str("report_id", report.ID).Str("format", req.Format).
		Int("total_logs", report.Summary.TotalLogs).Int64("size_bytes", report.SizeBytes).
		Msg("audit report generated")

	out := *report
	return &out, nil
}

// GetAuditReport returns a report descriptor.
func (e *Engine) GetAuditReport(_ context.Context, reportID string) (*AuditReport, error) {
	e.mu.RLock()
	r, ok := e.reports[reportID]
	e.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("report %s not found", reportID)
	}
	out := *r
	return &out, nil
}

// ListAuditReports returns the user's reports whose files are still stored,
// newest generated first. Swept reports are left out.
func (e *Engine) ListAuditReports(ctx context.Context, userID string) ([]*AuditReport, error) {
	blobs, err := e.blobs.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list report files: %w", err)
	}

	out := []*AuditReport{}
	e.mu.RLock()
	for _, b := range blobs {
		r, ok := e.reports[b.Tags["report_id"]]
		if !ok || r.blobID != b.ID {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].GeneratedAt.After(out[j].GeneratedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DownloadAuditReport opens the report file. It fails with an expired error
// once the report's expiresAt has passed.
func (e *Engine) DownloadAuditReport(ctx context.Context, reportID string) (io.ReadCloser, *AuditReport, error) {
	r, err := e.GetAuditReport(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	if e.now().After(r.ExpiresAt) {
		return nil, nil, apperr.Expired("report %s expired at %s", reportID, r.ExpiresAt.Format(time.RFC3339))
	}
	rc, _, err := e.blobs.Download(ctx, r.blobID)
	if err != nil {
		return nil, nil, fmt.Errorf("open report %s: %w", reportID, err)
	}
	return rc, r, nil
}

// SweepExpired deletes the files of expired reports and returns how many were
// removed. Descriptors are kept so later downloads still report expiry.
func (e *Engine) SweepExpired(ctx context.Context) int {
	now := e.now()
	var expired []*AuditReport
	e.mu.RLock()
	for _, r := range e.reports {
		if r.blobID != "" && now.After(r.ExpiresAt) {
			expired = append(expired, r)
		}
	}
	e.mu.RUnlock()

	removed := 0
	for _, r := range expired {
		if err := e.blobs.Delete(ctx, r.blobID); err != nil {
			e.logger.Warn().Err(err).Str("report_id", r.ID).Msg("failed to delete expired report")
			continue
		}
		e.mu.Lock()
		r.blobID = ""
		e.mu.Unlock()
		removed++
	}
	return removed
}
