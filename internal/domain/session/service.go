package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phr/ledger/internal/domain/audit"
	"github.com/phr/ledger/internal/platform/apperr"
)

// DefaultTTL is the lifetime of a new session.
const DefaultTTL = 30 * 24 * time.Hour

type Service struct {
	repo   Repository
	events *audit.Service
	logger zerolog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewService returns a session service. Logins, new devices and logouts are
// recorded as security events through events.
func NewService(repo Repository, events *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		logger: logger.With().Str("component", "session").Logger(),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
}

func (s *Service) SetTTL(d time.Duration) { s.ttl = d }

// SetClock replaces the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) CreateSession(ctx context.Context, userID string, dev DeviceInfo) (*Session, error) {
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if dev.DeviceID == "" {
		return nil, apperr.Validation("deviceId is required")
	}
	if dev.DeviceName == "" {
		dev.DeviceName = dev.DeviceID
	}

	now := s.now().UTC()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		DeviceID:     dev.DeviceID,
		DeviceName:   dev.DeviceName,
		Platform:     NormalizePlatform(dev.Platform),
		IPAddress:    dev.IPAddress,
		Location:     dev.Location,
		LoginTime:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
		IsActive:     true,
	}
	res, err := s.repo.Create(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if len(res.Superseded) > 0 {
		s.logger.Warn().Str("user_id", userID).Str("device_id", dev.DeviceID).
			Strs("superseded", res.Superseded).Str("session_id", sess.ID).Msg("session superseded on same device")
	}
	s.logger.Info().Str("user_id", userID).Str("session_id", sess.ID).Str("platform", sess.Platform).Msg("session created")

	s.recordEvent(ctx, sess, audit.SecurityLogin, audit.SeverityInfo,
		fmt.Sprintf("Logged in on %s (%s)", sess.DeviceName, sess.Platform))
	if !res.KnownDevice {
		s.recordEvent(ctx, sess, audit.SecurityNewDevice, audit.SeverityWarning,
			fmt.Sprintf("First login from new device %s", sess.DeviceName))
	}
	return sess, nil
}

// recordEvent appends a security event for sess. A failure is logged and
// does not undo the session change.
func (s *Service) recordEvent(ctx context.Context, sess *Session, eventType, severity, details string) {
	ev := &audit.SecurityEvent{
		UserID:     sess.UserID,
		EventType:  eventType,
		Severity:   severity,
		Details:    details,
		DeviceName: sess.DeviceName,
		Location:   sess.Location,
		IPAddress:  sess.IPAddress,
	}
	if err := s.events.RecordSecurityEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("session_id", sess.ID).Str("event_type", eventType).Msg("failed to record security event")
	}
}

// view applies read-time derivations: expired sessions read as inactive.
func (s *Service) view(sess *Session, now time.Time, currentID string) *Session {
	if sess.IsActive && now.After(sess.ExpiresAt) {
		sess.IsActive = false
	}
	sess.IsCurrent = currentID != "" && sess.ID == currentID
	return sess
}

func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(sess, s.now(), ""), nil
}

// ListSessions returns all sessions of userID with currentID first and the
// rest by last activity, newest first. Full ties keep the repository order,
// which is newest created first.
func (s *Service) ListSessions(ctx context.Context, userID, currentID string) ([]*Session, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, sess := range items {
		s.view(sess, now, currentID)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsCurrent != items[j].IsCurrent {
			return items[i].IsCurrent
		}
		if !items[i].LastActivity.Equal(items[j].LastActivity) {
			return items[i].LastActivity.After(items[j].LastActivity)
		}
		if !items[i].LoginTime.Equal(items[j].LoginTime) {
			return items[i].LoginTime.After(items[j].LoginTime)
		}
		// Same instant: the active session is the one that superseded.
		return items[i].IsActive && !items[j].IsActive
	})
	return items, nil
}

// ActiveSessions is ListSessions restricted to sessions currently active.
func (s *Service) ActiveSessions(ctx context.Context, userID, currentID string) ([]*Session, error) {
	items, err := s.ListSessions(ctx, userID, currentID)
	if err != nil {
		return nil, err
	}
	active := make([]*Session, 0, len(items))
	for _, sess := range items {
		if sess.IsActive {
			active = append(active, sess)
		}
	}
	return active, nil
}

// Touch records activity on a session. Expired or terminated sessions yield
// a conflict error.
func (s *Service) Touch(ctx context.Context, id string) (*Session, error) {
	now := s.now().UTC()
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if now.After(cur.ExpiresAt) {
		return nil, apperr.Conflict("session %s has expired", id)
	}
	sess, err := s.repo.Touch(ctx, id, now)
	if err != nil {
		return nil, err
	}
	return s.view(sess, now, ""), nil
}

// Terminate deactivates a session. Terminating an inactive session is a no-op.
func (s *Service) Terminate(ctx context.Context, id string) error {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	changed, err := s.repo.Deactivate(ctx, id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("terminate session %s: %w", id, err)
	}
	if !changed {
		return nil
	}
	s.logger.Info().Str("user_id", sess.UserID).Str("session_id", id).Msg("session terminated")
	s.recordEvent(ctx, sess, audit.SecurityLogout, audit.SeverityInfo,
		fmt.Sprintf("Logged out of %s", sess.DeviceName))
	return nil
}

// TerminateAllOthers terminates every active session of userID except
// exceptID. It keeps going past failures; the returned error joins them.
func (s *Service) TerminateAllOthers(ctx context.Context, userID, exceptID string) (TerminateResult, error) {
	var res TerminateResult
	if userID == "" {
		return res, apperr.Validation("userId is required")
	}
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return res, err
	}

	var errs []error
	for _, sess := range items {
		if sess.ID == exceptID || !sess.IsActive {
			continue
		}
		if err := s.Terminate(ctx, sess.ID); err != nil {
			res.Failed++
			errs = append(errs, err)
			continue
		}
		res.Terminated++
	}
	if len(errs) > 0 {
		s.logger.Warn().Str("user_id", userID).Int("terminated", res.Terminated).Int("failed", res.Failed).
			Msg("some sessions could not be terminated")
	}
	return res, errors.Join(errs...)
}
