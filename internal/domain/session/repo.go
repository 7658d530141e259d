package session

import (
	"context"
	"time"
)

type Repository interface {
	// Create stores s and, in the same step, deactivates every active
	// session of s.UserID on s.DeviceID.
	Create(ctx context.Context, s *Session) (*CreateResult, error)
	GetByID(ctx context.Context, id string) (*Session, error)
	// ListByUser returns every session of userID, active or not, newest
	// created first. Unknown users yield an empty slice.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	// Deactivate marks the session inactive at at. It reports false when the
	// session was already inactive.
	Deactivate(ctx context.Context, id string, at time.Time) (bool, error)
	// Touch sets LastActivity on an active session.
	Touch(ctx context.Context, id string, at time.Time) (*Session, error)
}
