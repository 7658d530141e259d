package compliance

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/phr/ledger/internal/domain/audit"
)

// Report row categories.
const (
	categoryDataAccess   = "data-access"
	categoryConsent      = "consent"
	categoryGateway      = "abdm-transaction"
	categoryUserActivity = "user-activity"
)

var csvHeader = []string{"category", "id", "timestamp", "type", "actor", "detail", "status"}

// row is the flattened form of one log entry shared by the CSV and PDF renderers.
type row struct {
	Category  string
	ID        string
	Timestamp time.Time
	Type      string
	Actor     string
	Detail    string
	Status    string
}

func (d *reportData) rows() []row {
	rows := make([]row, 0, len(d.Access)+len(d.Consent)+len(d.Gateway)+len(d.Activity))
	for _, l := range d.Access {
		status := "success"
		if !l.Success {
			status = "failed"
		}
		detail := l.RecordTitle
		if l.FailureReason != "" {
			detail = strings.TrimSpace(detail + " " + l.FailureReason)
		}
		actor := l.AccessedBy.Name
		if l.AccessedBy.FacilityName != "" {
			actor += " (" + l.AccessedBy.FacilityName + ")"
		}
		rows = append(rows, row{categoryDataAccess, l.ID, l.Timestamp, l.Action, actor, detail, status})
	}
	for _, e := range d.Consent {
		actor := ""
		switch {
		case e.UsedBy != nil:
			actor = e.UsedBy.Name
		case e.RequestedBy != nil:
			actor = e.RequestedBy.Name
		}
		rows = append(rows, row{categoryConsent, e.ID, e.Timestamp, e.EventType, actor, e.Description, e.ConsentID})
	}
	for _, g := range d.Gateway {
		detail := g.TransactionID
		if g.ErrorCode != "" {
			detail += " " + g.ErrorCode
		}
		rows = append(rows, row{categoryGateway, g.ID, g.Timestamp, g.RequestType, g.GatewayID, detail, g.Status})
	}
	for _, e := range d.Activity {
		status := "open"
		if e.Acknowledged {
			status = "acknowledged"
		}
		rows = append(rows, row{categoryUserActivity, e.ID, e.Timestamp, e.EventType, e.DeviceName, e.Details, e.Severity + "/" + status})
	}
	return rows
}

func render(format string, d *reportData) ([]byte, error) {
	switch format {
	case FormatJSON:
		return renderJSON(d)
	case FormatCSV:
		return renderCSV(d)
	case FormatPDF:
		return renderPDF(d)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func renderJSON(d *reportData) ([]byte, error) {
	doc := struct {
		Report       *AuditReport               `json:"report"`
		DataAccess   []*audit.DataAccessLog     `json:"dataAccess,omitempty"`
		Consents     []*audit.ConsentAuditEvent `json:"consents,omitempty"`
		Transactions []*audit.GatewayLog        `json:"abdmTransactions,omitempty"`
		UserActivity []*audit.SecurityEvent     `json:"userActivity,omitempty"`
	}{d.Report, d.Access, d.Consent, d.Gateway, d.Activity}
	return json.MarshalIndent(doc, "", "  ")
}

func renderCSV(d *reportData) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range d.rows() {
		rec := []string{r.Category, r.ID, r.Timestamp.UTC().Format(time.RFC3339), r.Type, r.Actor, r.Detail, r.Status}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ---------------------------------------------------------------------------
// PDF
// ---------------------------------------------------------------------------

const (
	pdfLinesPerPage = 50
	pdfFontSize     = 9
	pdfLineHeight   = 5 // mm
	pdfMargin       = 14
	pdfMaxLineRunes = 110
)

func (d *reportData) textLines() []string {
	r := d.Report
	lines := []string{
		"Audit Report",
		"User: " + r.UserID,
		fmt.Sprintf("Period: %s to %s", r.DateRange.From.Format(time.RFC3339), r.DateRange.To.Format(time.RFC3339)),
		"Generated: " + r.GeneratedAt.Format(time.RFC3339),
		fmt.Sprintf("Total logs: %d (data access %d, consent %d, ABDM %d, user activity %d)",
			r.Summary.TotalLogs, r.Summary.DataAccessLogs, r.Summary.ConsentLogs,
			r.Summary.ABDMLogs, r.Summary.UserActivityLogs),
		"",
	}
	for _, row := range d.rows() {
		line := fmt.Sprintf("%s  [%s] %s  %s  %s  %s",
			row.Timestamp.UTC().Format("2006-01-02 15:04"), row.Category, row.Type, row.Actor, row.Detail, row.Status)
		if rs := []rune(line); len(rs) > pdfMaxLineRunes {
			line = string(rs[:pdfMaxLineRunes-3]) + "..."
		}
		lines = append(lines, line)
	}
	return lines
}

// buildPDF lays the report out on A4 pages of pdfLinesPerPage lines each.
// Text is translated to cp1252 for the core Helvetica font.
func buildPDF(d *reportData) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.SetCreationDate(d.Report.GeneratedAt)
	pdf.SetModificationDate(d.Report.GeneratedAt)
	pdf.SetTitle("Audit Report", true)
	pdf.SetSubject("Audit report for "+d.Report.UserID, true)
	pdf.SetCreator("ledger-server", true)
	pdf.SetFont("Helvetica", "", pdfFontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, line := range d.textLines() {
		if i%pdfLinesPerPage == 0 {
			pdf.AddPage()
		}
		pdf.CellFormat(0, pdfLineHeight, tr(line), "", 1, "L", false, 0, "")
	}
	return pdf
}

func renderPDF(d *reportData) ([]byte, error) {
	pdf := buildPDF(d)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
