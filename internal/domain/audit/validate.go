package audit

import (
	"github.com/phr/ledger/internal/platform/apperr"
)

func validateConsentEvent(e *ConsentAuditEvent) error {
	if e.UserID == "" {
		return apperr.Validation("userId is required")
	}
	if e.ConsentID == "" {
		return apperr.Validation("consentId is required")
	}
	if !consentEventTypes[e.EventType] {
		return apperr.Validation("unknown consent event type %q", e.EventType)
	}
	if e.RecordsAccessed < 0 {
		return apperr.Validation("recordsAccessed must be >= 0")
	}
	if e.DateRange != nil && e.DateRange.From.After(e.DateRange.To) {
		return apperr.Validation("dateRange.from must not be after dateRange.to")
	}
	return nil
}

func validateDataAccess(l *DataAccessLog) error {
	if l.UserID == "" {
		return apperr.Validation("userId is required")
	}
	if !accessActions[l.Action] {
		return apperr.Validation("unknown access action %q", l.Action)
	}
	if l.AccessedBy.ID == "" || l.AccessedBy.Name == "" {
		return apperr.Validation("accessedBy.id and accessedBy.name are required")
	}
	if l.AccessedBy.Type == "" {
		return apperr.Validation("accessedBy.type is required")
	}
	if l.Duration != nil && *l.Duration < 0 {
		return apperr.Validation("duration must be >= 0")
	}
	if l.Action == ActionEmergencyAccess {
		return nil
	}
	if !l.Success && l.FailureReason == "" {
		return apperr.Validation("failureReason is required when success is false")
	}
	if l.Success && l.ConsentID == "" {
		return apperr.Validation("consentId is required for a successful %s", l.Action)
	}
	return nil
}

func validateGatewayLog(g *GatewayLog) error {
	if g.UserID == "" {
		return apperr.Validation("userId is required")
	}
	if g.TransactionID == "" {
		return apperr.Validation("transactionId is required")
	}
	if g.GatewayID == "" {
		return apperr.Validation("gatewayId is required")
	}
	if !gatewayRequestTypes[g.RequestType] {
		return apperr.Validation("unknown request type %q", g.RequestType)
	}
	if !gatewayDirections[g.Direction] {
		return apperr.Validation("unknown direction %q", g.Direction)
	}
	if !gatewayStatuses[g.Status] {
		return apperr.Validation("unknown gateway status %q", g.Status)
	}
	if g.Status == GatewayFailed && g.ErrorCode == "" {
		return apperr.Validation("errorCode is required when status is failed")
	}
	if g.Status == GatewayPending && g.ResponseTime != nil {
		return apperr.Validation("responseTime must be absent while status is pending")
	}
	if g.ResponseTime != nil && *g.ResponseTime < 0 {
		return apperr.Validation("responseTime must be >= 0")
	}
	if err := g.Metadata.validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	return nil
}

func validateSecurityEvent(e *SecurityEvent) error {
	if e.UserID == "" {
		return apperr.Validation("userId is required")
	}
	if !securityEventTypes[e.EventType] {
		return apperr.Validation("unknown security event type %q", e.EventType)
	}
	if !severities[e.Severity] {
		return apperr.Validation("unknown severity %q", e.Severity)
	}
	if e.Details == "" {
		return apperr.Validation("details is required")
	}
	if e.Acknowledged {
		return apperr.Validation("a new security event cannot be acknowledged")
	}
	return nil
}
