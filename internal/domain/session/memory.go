package session

import (
	"context"
	"sync"
	"time"

	"github.com/phr/ledger/internal/platform/apperr"
)

type userSessions struct {
	mu       sync.Mutex
	sessions []*Session
	devices  map[string]bool
}

// MemoryRepository keeps sessions in process, with one lock per user.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*userSessions
	owner map[string]string // session id -> user id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]*userSessions),
		owner: make(map[string]string),
	}
}

func (r *MemoryRepository) user(userID string, create bool) *userSessions {
	r.mu.RLock()
	u := r.users[userID]
	r.mu.RUnlock()
	if u != nil || !create {
		return u
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if u = r.users[userID]; u == nil {
		u = &userSessions{devices: make(map[string]bool)}
		r.users[userID] = u
	}
	return u
}

// find returns the live session pointer and its user's shard. The caller
// must lock the shard before reading the session.
func (r *MemoryRepository) find(id string) (*userSessions, error) {
	r.mu.RLock()
	userID, ok := r.owner[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("session %s not found", id)
	}
	return r.user(userID, false), nil
}

func (u *userSessions) byID(id string) *Session {
	for _, s := range u.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (r *MemoryRepository) Create(_ context.Context, s *Session) (*CreateResult, error) {
	u := r.user(s.UserID, true)
	u.mu.Lock()
	defer u.mu.Unlock()

	res := &CreateResult{KnownDevice: u.devices[s.DeviceID]}
	for _, old := range u.sessions {
		if old.IsActive && old.DeviceID == s.DeviceID {
			old.IsActive = false
			at := s.LoginTime
			old.TerminatedAt = &at
			res.Superseded = append(res.Superseded, old.ID)
		}
	}
	stored := *s
	u.sessions = append(u.sessions, &stored)
	u.devices[s.DeviceID] = true

	// u.mu is held while taking r.mu; r.mu is never held while taking a user lock.
	r.mu.Lock()
	r.owner[s.ID] = s.UserID
	r.mu.Unlock()
	return res, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Session, error) {
	u, err := r.find(id)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if s := u.byID(id); s != nil {
		out := *s
		return &out, nil
	}
	return nil, apperr.NotFound("session %s not found", id)
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]*Session, error) {
	u := r.user(userID, false)
	if u == nil {
		return []*Session{}, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*Session, 0, len(u.sessions))
	for i := len(u.sessions) - 1; i >= 0; i-- {
		cp := *u.sessions[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepository) Deactivate(_ context.Context, id string, at time.Time) (bool, error) {
	u, err := r.find(id)
	if err != nil {
		return false, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	s := u.byID(id)
	if s == nil {
		return false, apperr.NotFound("session %s not found", id)
	}
	if !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.TerminatedAt = &at
	return true, nil
}

func (r *MemoryRepository) Touch(_ context.Context, id string, at time.Time) (*Session, error) {
	u, err := r.find(id)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	s := u.byID(id)
	if s == nil {
		return nil, apperr.NotFound("session %s not found", id)
	}
	if !s.IsActive {
		return nil, apperr.Conflict("session %s is not active", id)
	}
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
	out := *s
	return &out, nil
}
