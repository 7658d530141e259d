package audit

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phr/ledger/internal/platform/apperr"
)

// userLog holds one user's events. Writers for the user take mu exclusively;
// readers copy a snapshot under the read lock and release it before sorting.
type userLog struct {
	mu       sync.RWMutex
	consent  []ConsentAuditEvent
	access   []DataAccessLog
	gateway  []GatewayLog
	security []SecurityEvent
}

// MemoryStore is an in-process Store. Users are sharded so writes for
// different users never contend on the same lock.
type MemoryStore struct {
	seq atomic.Int64

	mu    sync.RWMutex
	users map[string]*userLog
	// security event id -> user id, for Acknowledge.
	securityOwner map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*userLog),
		securityOwner: make(map[string]string),
	}
}

func (s *MemoryStore) shard(userID string, create bool) *userLog {
	s.mu.RLock()
	u := s.users[userID]
	s.mu.RUnlock()
	if u != nil || !create {
		return u
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u = s.users[userID]; u == nil {
		u = &userLog{}
		s.users[userID] = u
	}
	return u
}

func (s *MemoryStore) AppendConsentEvent(_ context.Context, e *ConsentAuditEvent) error {
	u := s.shard(e.UserID, true)
	u.mu.Lock()
	defer u.mu.Unlock()
	e.Seq = s.seq.Add(1)
	u.consent = append(u.consent, e.clone())
	return nil
}

func (s *MemoryStore) AppendDataAccess(_ context.Context, l *DataAccessLog) error {
	u := s.shard(l.UserID, true)
	u.mu.Lock()
	defer u.mu.Unlock()
	l.Seq = s.seq.Add(1)
	u.access = append(u.access, l.clone())
	return nil
}

func (s *MemoryStore) AppendGatewayLog(_ context.Context, g *GatewayLog) error {
	u := s.shard(g.UserID, true)
	u.mu.Lock()
	defer u.mu.Unlock()
	g.Seq = s.seq.Add(1)
	u.gateway = append(u.gateway, g.clone())
	return nil
}

func (s *MemoryStore) AppendSecurityEvent(_ context.Context, e *SecurityEvent) error {
	u := s.shard(e.UserID, true)
	u.mu.Lock()
	defer u.mu.Unlock()
	e.Seq = s.seq.Add(1)
	u.security = append(u.security, *e)

	s.mu.Lock()
	s.securityOwner[e.ID] = e.UserID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) QueryDataAccess(_ context.Context, q DataAccessQuery) ([]*DataAccessLog, error) {
	out := []*DataAccessLog{}
	u := s.shard(q.UserID, false)
	if u == nil {
		return out, nil
	}

	u.mu.RLock()
	for i := range u.access {
		l := &u.access[i]
		if q.Source != "" && l.AccessedBy.Type != q.Source && NormalizeSource(l.AccessedBy.Type) != q.Source {
			continue
		}
		if q.Action != "" && l.Action != q.Action {
			continue
		}
		if !q.Contains(l.Timestamp) {
			continue
		}
		c := l.clone()
		out = append(out, &c)
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].Timestamp, out[i].Seq, out[j].Timestamp, out[j].Seq)
	})
	return out, nil
}

func (s *MemoryStore) QueryConsentAudit(_ context.Context, q ConsentAuditQuery) ([]*ConsentAuditEvent, error) {
	out := []*ConsentAuditEvent{}
	u := s.shard(q.UserID, false)
	if u == nil {
		return out, nil
	}

	u.mu.RLock()
	for i := range u.consent {
		e := &u.consent[i]
		if q.ConsentID != "" && e.ConsentID != q.ConsentID {
			continue
		}
		if !q.Contains(e.Timestamp) {
			continue
		}
		c := e.clone()
		out = append(out, &c)
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].Timestamp, out[i].Seq, out[j].Timestamp, out[j].Seq)
	})
	return out, nil
}

func (s *MemoryStore) QueryGatewayLogs(_ context.Context, q GatewayQuery) ([]*GatewayLog, error) {
	out := []*GatewayLog{}
	u := s.shard(q.UserID, false)
	if u == nil {
		return out, nil
	}

	u.mu.RLock()
	for i := range u.gateway {
		g := &u.gateway[i]
		if q.Status != "" && g.Status != q.Status {
			continue
		}
		if !q.Contains(g.Timestamp) {
			continue
		}
		c := g.clone()
		out = append(out, &c)
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].Timestamp, out[i].Seq, out[j].Timestamp, out[j].Seq)
	})
	return out, nil
}

func (s *MemoryStore) QuerySecurityEvents(_ context.Context, q SecurityEventQuery) ([]*SecurityEvent, error) {
	out := []*SecurityEvent{}
	u := s.shard(q.UserID, false)
	if u == nil {
		return out, nil
	}

	u.mu.RLock()
	for i := range u.security {
		e := u.security[i]
		if !q.Contains(e.Timestamp) {
			continue
		}
		out = append(out, &e)
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].Timestamp, out[i].Seq, out[j].Timestamp, out[j].Seq)
	})
	return out, nil
}

func (s *MemoryStore) GetSecurityEvent(_ context.Context, eventID string) (*SecurityEvent, error) {
	s.mu.RLock()
	userID, ok := s.securityOwner[eventID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("security event %s not found", eventID)
	}

	u := s.shard(userID, false)
	u.mu.RLock()
	defer u.mu.RUnlock()
	for i := range u.security {
		if u.security[i].ID == eventID {
			e := u.security[i]
			return &e, nil
		}
	}
	return nil, apperr.NotFound("security event %s not found", eventID)
}

func (s *MemoryStore) Acknowledge(_ context.Context, eventID string) (*SecurityEvent, error) {
	s.mu.RLock()
	userID, ok := s.securityOwner[eventID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("security event %s not found", eventID)
	}

	u := s.shard(userID, false)
	u.mu.Lock()
	defer u.mu.Unlock()
	for i := range u.security {
		if u.security[i].ID == eventID {
			u.security[i].Acknowledged = true
			e := u.security[i]
			return &e, nil
		}
	}
	return nil, apperr.NotFound("security event %s not found", eventID)
}

// The clone methods deep-copy everything an event shares by reference, so
// stored events and returned events never alias.

func (e *ConsentAuditEvent) clone() ConsentAuditEvent {
	c := *e
	c.RequestedBy = clonePtr(e.RequestedBy)
	c.UsedBy = clonePtr(e.UsedBy)
	c.DateRange = clonePtr(e.DateRange)
	c.ExpiryDate = clonePtr(e.ExpiryDate)
	if e.DataTypes != nil {
		c.DataTypes = append([]string{}, e.DataTypes...)
	}
	return c
}

func (l *DataAccessLog) clone() DataAccessLog {
	c := *l
	c.Duration = clonePtr(l.Duration)
	return c
}

func (g *GatewayLog) clone() GatewayLog {
	c := *g
	c.ResponseTime = clonePtr(g.ResponseTime)
	c.Metadata = g.Metadata.Clone()
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// newerFirst orders by timestamp descending, breaking ties by the later sequence number.
func newerFirst(ti time.Time, si int64, tj time.Time, sj int64) bool {
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return si > sj
}
