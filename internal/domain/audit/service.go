package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phr/ledger/internal/platform/apperr"
)

// DefaultClockSkew is how far in the future an event timestamp may lie.
const DefaultClockSkew = 5 * time.Minute

// Service validates events and appends them to a Store.
type Service struct {
	store  Store
	logger zerolog.Logger
	skew   time.Duration
	now    func() time.Time
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "audit").Logger(),
		skew:   DefaultClockSkew,
		now:    time.Now,
	}
}

// SetClockSkew overrides the future-timestamp tolerance.
func (s *Service) SetClockSkew(d time.Duration) { s.skew = d }

// SetClock replaces the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Store returns the underlying store for read-side components.
func (s *Service) Store() Store { return s.store }

// stamp defaults a zero timestamp to now and rejects timestamps beyond the skew tolerance.
func (s *Service) stamp(ts *time.Time) error {
	now := s.now().UTC()
	if ts.IsZero() {
		*ts = now
		return nil
	}
	if ts.After(now.Add(s.skew)) {
		return apperr.Validation("timestamp %s is more than %s in the future", ts.Format(time.RFC3339), s.skew)
	}
	*ts = ts.UTC()
	return nil
}

func (s *Service) RecordConsentEvent(ctx context.Context, e *ConsentAuditEvent) error {
	if err := validateConsentEvent(e); err != nil {
		return err
	}
	if err := s.stamp(&e.Timestamp); err != nil {
		return err
	}
	e.ID = uuid.NewString()
	if err := s.store.AppendConsentEvent(ctx, e); err != nil {
		return err
	}
	s.logger.Info().
		Str("kind", "consent").Str("user_id", e.UserID).Str("id", e.ID).Int64("seq", e.Seq).
		Str("consent_id", e.ConsentID).Str("event_type", e.EventType).
		Msg("consent event recorded")
	return nil
}

func (s *Service) RecordDataAccess(ctx context.Context, l *DataAccessLog) error {
	if err := validateDataAccess(l); err != nil {
		return err
	}
	if err := s.stamp(&l.Timestamp); err != nil {
		return err
	}
	l.ID = uuid.NewString()
	if err := s.store.AppendDataAccess(ctx, l); err != nil {
		return err
	}
	ev := s.logger.Info()
	if l.Action == ActionEmergencyAccess {
		ev = s.logger.Warn()
	}
	ev.Str("kind", "data_access").Str("user_id", l.UserID).Str("id", l.ID).Int64("seq", l.Seq).
		Str("action", l.Action).Str("accessed_by", l.AccessedBy.ID).Bool("success", l.Success).
		Msg("data access recorded")
	return nil
}

func (s *Service) RecordGatewayLog(ctx context.Context, g *GatewayLog) error {
	if err := validateGatewayLog(g); err != nil {
		return err
	}
	if err := s.stamp(&g.Timestamp); err != nil {
		return err
	}
	if g.Metadata == nil {
		g.Metadata = Metadata{}
	}
	g.ID = uuid.NewString()
	if err := s.store.AppendGatewayLog(ctx, g); err != nil {
		return err
	}
	s.logger.Info().
		Str("kind", "gateway").Str("user_id", g.UserID).Str("id", g.ID).Int64("seq", g.Seq).
		Str("transaction_id", g.TransactionID).Str("request_type", g.RequestType).Str("status", g.Status).
		Msg("gateway log recorded")
	return nil
}

func (s *Service) RecordSecurityEvent(ctx context.Context, e *SecurityEvent) error {
	if err := validateSecurityEvent(e); err != nil {
		return err
	}
	if err := s.stamp(&e.Timestamp); err != nil {
		return err
	}
	e.ID = uuid.NewString()
	if err := s.store.AppendSecurityEvent(ctx, e); err != nil {
		return err
	}
	ev := s.logger.Info()
	if e.Severity == SeverityCritical {
		ev = s.logger.Warn()
	}
	ev.Str("kind", "security").Str("user_id", e.UserID).Str("id", e.ID).Int64("seq", e.Seq).
		Str("event_type", e.EventType).Str("severity", e.Severity).
		Msg("security event recorded")
	return nil
}

func validWindow(w Window) error {
	if w.From != nil && w.To != nil && w.From.After(*w.To) {
		return apperr.Validation("from must not be after to")
	}
	return nil
}

func (s *Service) DataAccessLogs(ctx context.Context, q DataAccessQuery) ([]*DataAccessLog, error) {
	if err := validWindow(q.Window); err != nil {
		return nil, err
	}
	if q.Action != "" && !accessActions[q.Action] {
		return nil, apperr.Validation("unknown access action %q", q.Action)
	}
	return s.store.QueryDataAccess(ctx, q)
}

func (s *Service) ConsentAuditLogs(ctx context.Context, q ConsentAuditQuery) ([]*ConsentAuditEvent, error) {
	if err := validWindow(q.Window); err != nil {
		return nil, err
	}
	return s.store.QueryConsentAudit(ctx, q)
}

func (s *Service) GatewayLogs(ctx context.Context, q GatewayQuery) ([]*GatewayLog, error) {
	if err := validWindow(q.Window); err != nil {
		return nil, err
	}
	if q.Status != "" && !gatewayStatuses[q.Status] {
		return nil, apperr.Validation("unknown gateway status %q", q.Status)
	}
	return s.store.QueryGatewayLogs(ctx, q)
}

func (s *Service) SecurityEvents(ctx context.Context, q SecurityEventQuery) ([]*SecurityEvent, error) {
	if err := validWindow(q.Window); err != nil {
		return nil, err
	}
	return s.store.QuerySecurityEvents(ctx, q)
}

func (s *Service) GetSecurityEvent(ctx context.Context, eventID string) (*SecurityEvent, error) {
	return s.store.GetSecurityEvent(ctx, eventID)
}

func (s *Service) Acknowledge(ctx context.Context, eventID string) (*SecurityEvent, error) {
	if eventID == "" {
		return nil, apperr.Validation("event id is required")
	}
	e, err := s.store.Acknowledge(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("kind", "security").Str("user_id", e.UserID).Str("id", e.ID).Msg("security event acknowledged")
	return e, nil
}
