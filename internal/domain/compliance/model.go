package compliance

import (
	"time"
)

// Compliance levels.
const (
	LevelExcellent      = "excellent"
	LevelGood           = "good"
	LevelNeedsAttention = "needs-attention"
)

// Deduction is one scored penalty, kept on the dashboard so the score is explainable.
type Deduction struct {
	Category string  `json:"category"`
	Points   float64 `json:"points"`
	Reason   string  `json:"reason"`
}

// Dashboard is computed per request and never stored.
type Dashboard struct {
	UserID      string     `json:"userId"`
	GeneratedAt time.Time  `json:"generatedAt"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`

	TotalDataAccesses  int            `json:"totalDataAccesses"`
	AccessesLast30Days int            `json:"accessesLast30Days"`
	AccessesBySource   map[string]int `json:"accessesBySource"`

	TotalConsents   int `json:"totalConsents"`
	ActiveConsents  int `json:"activeConsents"`
	RevokedConsents int `json:"revokedConsents"`
	ExpiredConsents int `json:"expiredConsents"`

	TotalDataTransfers int `json:"totalDataTransfers"`
	FailedTransfers    int `json:"failedTransfers"`

	RecordsShared     int `json:"recordsShared"`
	RecordsViewed     int `json:"recordsViewed"`
	DownloadsCount    int `json:"downloadsCount"`
	EmergencyAccesses int `json:"emergencyAccesses"`
	LinkedFacilities  int `json:"linkedFacilities"`

	UnacknowledgedCriticalEvents int `json:"unacknowledgedCriticalEvents"`

	ComplianceScore int         `json:"complianceScore"`
	ComplianceLevel string      `json:"complianceLevel"`
	Recommendations []string    `json:"recommendations"`
	Deductions      []Deduction `json:"deductions"`
}

// Report formats.
const (
	FormatPDF  = "pdf"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ReportRequest selects the categories and window of an audit report.
type ReportRequest struct {
	UserID                  string    `json:"userId"`
	DateRange               DateRange `json:"dateRange"`
	IncludeDataAccess       bool      `json:"includeDataAccess"`
	IncludeConsents         bool      `json:"includeConsents"`
	IncludeABDMTransactions bool      `json:"includeABDMTransactions"`
	IncludeUserActivity     bool      `json:"includeUserActivity"`
	Format                  string    `json:"format"`
}

type ReportSummary struct {
	TotalLogs        int `json:"totalLogs"`
	DataAccessLogs   int `json:"dataAccessLogs"`
	ConsentLogs      int `json:"consentLogs"`
	ABDMLogs         int `json:"abdmLogs"`
	UserActivityLogs int `json:"userActivityLogs"`
}

// AuditReport describes a generated report file. It is published only once
// the file is fully stored.
type AuditReport struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	Format      string        `json:"format"`
	FileName    string        `json:"fileName"`
	ContentType string        `json:"contentType"`
	SizeBytes   int64         `json:"sizeBytes"`
	DateRange   DateRange     `json:"dateRange"`
	Summary     ReportSummary `json:"summary"`
	GeneratedAt time.Time     `json:"generatedAt"`
	ExpiresAt   time.Time     `json:"expiresAt"`

	blobID string
}
