package audit

import (
	"context"
)

// Store is the append-only audit log. Append methods assign Seq from a
// store-wide monotonic sequence and must serialize writers per UserID.
// Query methods return newest first: timestamp descending, then Seq
// descending. Unknown users yield an empty result.
type Store interface {
	AppendConsentEvent(ctx context.Context, e *ConsentAuditEvent) error
	AppendDataAccess(ctx context.Context, l *DataAccessLog) error
	AppendGatewayLog(ctx context.Context, g *GatewayLog) error
	AppendSecurityEvent(ctx context.Context, e *SecurityEvent) error

	QueryDataAccess(ctx context.Context, q DataAccessQuery) ([]*DataAccessLog, error)
	QueryConsentAudit(ctx context.Context, q ConsentAuditQuery) ([]*ConsentAuditEvent, error)
	QueryGatewayLogs(ctx context.Context, q GatewayQuery) ([]*GatewayLog, error)
	QuerySecurityEvents(ctx context.Context, q SecurityEventQuery) ([]*SecurityEvent, error)
	GetSecurityEvent(ctx context.Context, eventID string) (*SecurityEvent, error)

	// Acknowledge flips a security event's acknowledged flag. It returns
	// apperr.ErrNotFound for an unknown id and succeeds if already set.
	Acknowledge(ctx context.Context, eventID string) (*SecurityEvent, error)
}
