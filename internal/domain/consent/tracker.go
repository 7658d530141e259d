// Package consent derives consent status and history from the consent audit
// events held by the audit store. Nothing here is persisted: every status is
// recomputed from the event log on read.
package consent

import (
	"context"
	"sort"
	"time"

	"github.com/phr/ledger/internal/domain/audit"
	"github.com/phr/ledger/internal/platform/apperr"
)

// Tracker reads consent audit events and projects them into statuses,
// timelines and records.
type Tracker struct {
	store audit.Store
	now   func() time.Time
}

func NewTracker(store audit.Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// oldestFirst sorts events by timestamp ascending, then by sequence number.
func oldestFirst(events []*audit.ConsentAuditEvent) []*audit.ConsentAuditEvent {
	out := append([]*audit.ConsentAuditEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// step applies one event to the running status.
func step(prev Status, e *audit.ConsentAuditEvent) Status {
	switch e.EventType {
	case audit.ConsentCreated:
		return StatusRequested
	case audit.ConsentGranted, audit.ConsentUsed:
		return StatusGranted
	case audit.ConsentDenied:
		return StatusDenied
	case audit.ConsentRevoked:
		return StatusRevoked
	case audit.ConsentExpired:
		return StatusExpired
	case audit.ConsentModified:
		if prev == "" {
			return StatusRequested
		}
		return prev
	}
	return prev
}

// governs reports whether e carries the consent's terms.
func governs(e *audit.ConsentAuditEvent) bool {
	switch e.EventType {
	case audit.ConsentCreated, audit.ConsentGranted, audit.ConsentModified:
		return true
	}
	return false
}

// DeriveStatus computes the status of one consent from its events, in any
// order. Revocation and denial are final as of the latest event. Otherwise
// the consent is expired once now passes the expiry date on the latest
// created, granted or modified event that sets one.
func DeriveStatus(events []*audit.ConsentAuditEvent, now time.Time) Status {
	var status Status
	var expiry *time.Time
	for _, e := range oldestFirst(events) {
		status = step(status, e)
		if governs(e) && e.ExpiryDate != nil {
			expiry = e.ExpiryDate
		}
	}
	if status == StatusRevoked || status == StatusDenied {
		return status
	}
	if expiry != nil && now.After(*expiry) {
		return StatusExpired
	}
	return status
}

// GroupByConsent buckets events by consent id. Each bucket is newest first.
func GroupByConsent(events []*audit.ConsentAuditEvent) map[string][]*audit.ConsentAuditEvent {
	groups := make(map[string][]*audit.ConsentAuditEvent)
	for _, e := range events {
		groups[e.ConsentID] = append(groups[e.ConsentID], e)
	}
	for id, g := range groups {
		asc := oldestFirst(g)
		for i, j := 0, len(asc)-1; i < j; i, j = i+1, j-1 {
			asc[i], asc[j] = asc[j], asc[i]
		}
		groups[id] = asc
	}
	return groups
}

func (t *Tracker) events(ctx context.Context, userID, consentID string) ([]*audit.ConsentAuditEvent, error) {
	if userID == "" || consentID == "" {
		return nil, apperr.Validation("userId and consentId are required")
	}
	events, err := t.store.QueryConsentAudit(ctx, audit.ConsentAuditQuery{UserID: userID, ConsentID: consentID})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperr.NotFound("consent %s not found", consentID)
	}
	return events, nil
}

// CurrentStatus returns the derived status of a consent as of now.
func (t *Tracker) CurrentStatus(ctx context.Context, userID, consentID string) (Status, error) {
	events, err := t.events(ctx, userID, consentID)
	if err != nil {
		return "", err
	}
	return DeriveStatus(events, t.now()), nil
}

// Timeline returns a consent's events oldest first, each with the status in
// effect right after it. The last entry is evaluated as of now, so it shows
// an expiry that happened since.
func (t *Tracker) Timeline(ctx context.Context, userID, consentID string) ([]TimelineEntry, error) {
	events, err := t.events(ctx, userID, consentID)
	if err != nil {
		return nil, err
	}

	now := t.now()
	asc := oldestFirst(events)
	entries := make([]TimelineEntry, len(asc))
	for i, e := range asc {
		at := e.Timestamp
		if i == len(asc)-1 {
			at = now
		}
		entries[i] = TimelineEntry{
			ConsentAuditEvent: e,
			StatusAfter:       DeriveStatus(asc[:i+1], at),
		}
	}
	return entries, nil
}

// Records projects every consent of a user, most recently active first.
func (t *Tracker) Records(ctx context.Context, userID string) ([]Record, error) {
	events, err := t.store.QueryConsentAudit(ctx, audit.ConsentAuditQuery{UserID: userID})
	if err != nil {
		return nil, err
	}

	now := t.now()
	records := make([]Record, 0)
	for id, group := range GroupByConsent(events) {
		records = append(records, project(userID, id, group, now))
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].LastActivity.Equal(records[j].LastActivity) {
			return records[i].LastActivity.After(records[j].LastActivity)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// project builds a Record from one consent's events, given newest first.
func project(userID, id string, newestFirst []*audit.ConsentAuditEvent, now time.Time) Record {
	r := Record{
		ID:         id,
		SubjectID:  userID,
		DataTypes:  []string{},
		Status:     DeriveStatus(newestFirst, now),
		EventCount: len(newestFirst),
	}
	if len(newestFirst) == 0 {
		return r
	}
	r.LastActivity = newestFirst[0].Timestamp
	r.CreatedAt = newestFirst[len(newestFirst)-1].Timestamp

	for i := len(newestFirst) - 1; i >= 0; i-- {
		e := newestFirst[i]
		if e.RequestedBy != nil {
			r.RequestedBy = e.RequestedBy
		}
		if !governs(e) {
			continue
		}
		if e.Purpose != "" {
			r.Purpose = e.Purpose
		}
		if len(e.DataTypes) > 0 {
			r.DataTypes = e.DataTypes
		}
		if e.DateRange != nil {
			r.DateRange = e.DateRange
		}
		if e.ExpiryDate != nil {
			r.ExpiryDate = e.ExpiryDate
		}
	}
	return r
}

// Summarize counts consents by derived status.
func Summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case StatusGranted:
			s.Active++
		case StatusRequested:
			s.Requested++
		case StatusDenied:
			s.Denied++
		case StatusRevoked:
			s.Revoked++
		case StatusExpired:
			s.Expired++
		}
	}
	return s
}
