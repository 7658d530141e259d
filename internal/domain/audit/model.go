package audit

import (
	"time"
)

// Party identifies who requested, used, or accessed a subject's data.
type Party struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	FacilityName string `json:"facilityName,omitempty"`
}

// DateRange bounds the health data covered by a consent.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Consent audit event types.
const (
	ConsentCreated  = "created"
	ConsentGranted  = "granted"
	ConsentDenied   = "denied"
	ConsentRevoked  = "revoked"
	ConsentExpired  = "expired"
	ConsentUsed     = "used"
	ConsentModified = "modified"
)

var consentEventTypes = map[string]bool{
	ConsentCreated: true, ConsentGranted: true, ConsentDenied: true,
	ConsentRevoked: true, ConsentExpired: true, ConsentUsed: true, ConsentModified: true,
}

// ConsentAuditEvent is one immutable lifecycle event of a consent.
// Purpose, DataTypes, DateRange and ExpiryDate describe the consent itself and
// are normally only present on created/granted/modified events.
type ConsentAuditEvent struct {
	ID              string     `json:"id"`
	Seq             int64      `json:"seq"`
	UserID          string     `json:"userId"`
	ConsentID       string     `json:"consentId"`
	EventType       string     `json:"eventType"`
	Timestamp       time.Time  `json:"timestamp"`
	Description     string     `json:"description"`
	RequestedBy     *Party     `json:"requestedBy,omitempty"`
	UsedBy          *Party     `json:"usedBy,omitempty"`
	RecordsAccessed int        `json:"recordsAccessed"`
	Purpose         string     `json:"purpose,omitempty"`
	DataTypes       []string   `json:"dataTypes,omitempty"`
	DateRange       *DateRange `json:"dateRange,omitempty"`
	ExpiryDate      *time.Time `json:"expiryDate,omitempty"`
}

// Data access actions.
const (
	ActionView            = "view"
	ActionDownload        = "download"
	ActionShare           = "share"
	ActionEmergencyAccess = "emergency-access"
)

var accessActions = map[string]bool{
	ActionView: true, ActionDownload: true, ActionShare: true, ActionEmergencyAccess: true,
}

// Accessor (source) types. Unknown types are accepted and counted as SourceOther.
const (
	SourceDoctor    = "doctor"
	SourceHospital  = "hospital"
	SourceLab       = "lab"
	SourcePharmacy  = "pharmacy"
	SourceEmergency = "emergency"
	SourceOther     = "other"
)

// KnownSources lists accessor types in display order.
func KnownSources() []string {
	return []string{SourceDoctor, SourceHospital, SourceLab, SourcePharmacy, SourceEmergency, SourceOther}
}

// NormalizeSource maps an accessor type onto one of KnownSources.
func NormalizeSource(t string) string {
	for _, s := range KnownSources() {
		if s == t {
			return s
		}
	}
	return SourceOther
}

// DataAccessLog is one immutable access to a subject's health data.
type DataAccessLog struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	UserID        string    `json:"userId"`
	Action        string    `json:"action"`
	AccessedBy    Party     `json:"accessedBy"`
	RecordTitle   string    `json:"recordTitle,omitempty"`
	Purpose       string    `json:"purpose,omitempty"`
	ConsentID     string    `json:"consentId,omitempty"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failureReason,omitempty"`
	Duration      *int64    `json:"duration,omitempty"` // seconds
	Location      string    `json:"location,omitempty"`
	IPAddress     string    `json:"ipAddress,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Gateway request types, directions and statuses.
const (
	RequestConsent        = "consent-request"
	RequestDataTransfer   = "data-transfer"
	RequestLinkRecords    = "link-records"
	RequestDiscovery      = "discovery"
	RequestAuthentication = "authentication"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	GatewayPending = "pending"
	GatewaySuccess = "success"
	GatewayFailed  = "failed"
)

var (
	gatewayRequestTypes = map[string]bool{
		RequestConsent: true, RequestDataTransfer: true, RequestLinkRecords: true,
		RequestDiscovery: true, RequestAuthentication: true,
	}
	gatewayDirections = map[string]bool{DirectionInbound: true, DirectionOutbound: true}
	gatewayStatuses   = map[string]bool{GatewayPending: true, GatewaySuccess: true, GatewayFailed: true}
)

// GatewayLog is one immutable record of a transaction exchanged with the
// health-data gateway. TransactionID may repeat across retries.
type GatewayLog struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	UserID        string    `json:"userId"`
	TransactionID string    `json:"transactionId"`
	RequestType   string    `json:"requestType"`
	Direction     string    `json:"direction"`
	GatewayID     string    `json:"gatewayId"`
	HIPID         string    `json:"hipId,omitempty"`
	HIUID         string    `json:"hiuId,omitempty"`
	Status        string    `json:"status"`
	ResponseTime  *int64    `json:"responseTime,omitempty"` // milliseconds
	ErrorCode     string    `json:"errorCode,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	Metadata      Metadata  `json:"metadata"`
	Timestamp     time.Time `json:"timestamp"`
}

// Security event types and severities.
const (
	SecurityLogin              = "login"
	SecurityLogout             = "logout"
	SecurityFailedLogin        = "failed-login"
	SecurityNewDevice          = "new-device"
	SecurityPasswordChange     = "password-change"
	SecuritySuspiciousActivity = "suspicious-activity"

	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

var (
	securityEventTypes = map[string]bool{
		SecurityLogin: true, SecurityLogout: true, SecurityFailedLogin: true,
		SecurityNewDevice: true, SecurityPasswordChange: true, SecuritySuspiciousActivity: true,
	}
	severities = map[string]bool{SeverityInfo: true, SeverityWarning: true, SeverityCritical: true}
)

// SecurityEvent is an account security event. Acknowledged is the only
// mutable field and only ever flips from false to true.
type SecurityEvent struct {
	ID           string    `json:"id"`
	Seq          int64     `json:"seq"`
	UserID       string    `json:"userId"`
	EventType    string    `json:"eventType"`
	Severity     string    `json:"severity"`
	Details      string    `json:"details"`
	DeviceName   string    `json:"deviceName,omitempty"`
	Location     string    `json:"location,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// Window is an optional inclusive time range. Nil bounds are open.
type Window struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// DataAccessQuery filters data access logs. Empty fields match everything.
type DataAccessQuery struct {
	UserID string
	Source string
	Action string
	Window
}

type ConsentAuditQuery struct {
	UserID    string
	ConsentID string
	Window
}

type GatewayQuery struct {
	UserID string
	Status string
	Window
}

type SecurityEventQuery struct {
	UserID string
	Window
}
