package consent

import (
	"time"

	"github.com/phr/ledger/internal/domain/audit"
)

// Status is the derived state of a consent.
type Status string

const (
	StatusRequested Status = "requested"
	StatusGranted   Status = "granted"
	StatusDenied    Status = "denied"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

// Record is a consent projected from its audit events. It is never stored;
// Status is computed at read time.
type Record struct {
	ID           string           `json:"id"`
	SubjectID    string           `json:"subjectId"`
	RequestedBy  *audit.Party     `json:"requestedBy,omitempty"`
	Purpose      string           `json:"purpose,omitempty"`
	DataTypes    []string         `json:"dataTypes"`
	DateRange    *audit.DateRange `json:"dateRange,omitempty"`
	ExpiryDate   *time.Time       `json:"expiryDate,omitempty"`
	Status       Status           `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastActivity time.Time        `json:"lastActivity"`
	EventCount   int              `json:"eventCount"`
}

// TimelineEntry is one event of a consent's history together with the
// status in effect after it.
type TimelineEntry struct {
	*audit.ConsentAuditEvent
	StatusAfter Status `json:"statusAfter"`
}

// Summary counts a user's consents by derived status. Active means granted.
type Summary struct {
	Total     int `json:"totalConsents"`
	Active    int `json:"activeConsents"`
	Requested int `json:"requestedConsents"`
	Denied    int `json:"deniedConsents"`
	Revoked   int `json:"revokedConsents"`
	Expired   int `json:"expiredConsents"`
}
