package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phr/ledger/internal/platform/apperr"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func access(user, action, source string, ts time.Time) *DataAccessLog {
	return &DataAccessLog{
		ID:         fmt.Sprintf("%s-%s-%d", user, action, ts.UnixNano()),
		UserID:     user,
		Action:     action,
		AccessedBy: Party{ID: "dr-1", Name: "Dr. Rao", Type: source, FacilityName: "City Clinic"},
		ConsentID:  "c1",
		Success:    true,
		Timestamp:  ts,
	}
}

func TestMemoryStore_QueryDataAccess_NewestFirstWithTies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := access("u1", ActionView, SourceDoctor, t0)
	second := access("u1", ActionView, SourceDoctor, t0)
	second.ID = "tie"
	older := access("u1", ActionDownload, SourceLab, t0.Add(-time.Hour))
	require.NoError(t, s.AppendDataAccess(ctx, first))
	require.NoError(t, s.AppendDataAccess(ctx, older))
	require.NoError(t, s.AppendDataAccess(ctx, second))

	got, err := s.QueryDataAccess(ctx, DataAccessQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "tie", got[0].ID, "later insert wins a timestamp tie")
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, older.ID, got[2].ID)
	assert.Greater(t, got[0].Seq, got[1].Seq)
}

func TestMemoryStore_QueryDataAccess_Filters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.AppendDataAccess(ctx, access("u1", ActionView, SourceDoctor, t0.Add(-3*time.Hour))))
	require.NoError(t, s.AppendDataAccess(ctx, access("u1", ActionDownload, SourceLab, t0.Add(-2*time.Hour))))
	require.NoError(t, s.AppendDataAccess(ctx, access("u1", ActionView, "insurer", t0.Add(-time.Hour))))
	require.NoError(t, s.AppendDataAccess(ctx, access("u2", ActionView, SourceDoctor, t0)))

	views, err := s.QueryDataAccess(ctx, DataAccessQuery{UserID: "u1", Action: ActionView})
	require.NoError(t, err)
	assert.Len(t, views, 2)

	labs, err := s.QueryDataAccess(ctx, DataAccessQuery{UserID: "u1", Source: SourceLab})
	require.NoError(t, err)
	require.Len(t, labs, 1)
	assert.Equal(t, ActionDownload, labs[0].Action)

	other, err := s.QueryDataAccess(ctx, DataAccessQuery{UserID: "u1", Source: SourceOther})
	require.NoError(t, err)
	require.Len(t, other, 1, "unknown accessor types count as other")
	assert.Equal(t, "insurer", other[0].AccessedBy.Type)

	from := t0.Add(-150 * time.Minute)
	windowed, err := s.QueryDataAccess(ctx, DataAccessQuery{UserID: "u1", Window: Window{From: &from}})
	require.NoError(t, err)
	assert.Len(t, windowed, 2)
}

func TestMemoryStore_UnknownUserIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	logs, err := s.QueryDataAccess(ctx, DataAccessQuery{UserID: "no-such-user"})
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)

	events, err := s.QueryConsentAudit(ctx, ConsentAuditQuery{UserID: "no-such-user"})
	require.NoError(t, err)
	assert.Empty(t, events)

	gw, err := s.QueryGatewayLogs(ctx, GatewayQuery{UserID: "no-such-user"})
	require.NoError(t, err)
	assert.Empty(t, gw)

	sec, err := s.QuerySecurityEvents(ctx, SecurityEventQuery{UserID: "no-such-user"})
	require.NoError(t, err)
	assert.Empty(t, sec)
}

func TestMemoryStore_AcknowledgeIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ev := &SecurityEvent{ID: "sec-1", UserID: "u1", EventType: SecurityNewDevice, Severity: SeverityCritical, Details: "new phone", Timestamp: t0}
	require.NoError(t, s.AppendSecurityEvent(ctx, ev))

	first, err := s.Acknowledge(ctx, "sec-1")
	require.NoError(t, err)
	assert.True(t, first.Acknowledged)

	second, err := s.Acknowledge(ctx, "sec-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	events, err := s.QuerySecurityEvents(ctx, SecurityEventQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Acknowledged)

	_, err = s.Acknowledge(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryStore_ResultsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rt := int64(120)
	g := &GatewayLog{ID: "g1", UserID: "u1", TransactionID: "tx-1", RequestType: RequestDataTransfer,
		Direction: DirectionOutbound, GatewayID: "gw", Status: GatewaySuccess, Timestamp: t0,
		ResponseTime: &rt, Metadata: Metadata{"retries": Number(1)}}
	require.NoError(t, s.AppendGatewayLog(ctx, g))
	g.Metadata["retries"] = Number(9)
	*g.ResponseTime = 999

	got, err := s.QueryGatewayLogs(ctx, GatewayQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Number(1), got[0].Metadata["retries"])
	assert.Equal(t, int64(120), *got[0].ResponseTime)

	got[0].Metadata["retries"] = Number(5)
	*got[0].ResponseTime = 5
	again, err := s.QueryGatewayLogs(ctx, GatewayQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, Number(1), again[0].Metadata["retries"])
	assert.Equal(t, int64(120), *again[0].ResponseTime)
}

func TestMemoryStore_ConsentEventsAreDeepCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	expiry := t0.Add(30 * 24 * time.Hour)
	e := &ConsentAuditEvent{
		ID: "e1", UserID: "u1", ConsentID: "c1", EventType: ConsentUsed, Timestamp: t0,
		RequestedBy: &Party{ID: "hiu-1", Name: "City Clinic"},
		UsedBy:      &Party{ID: "dr-1", Name: "Dr. Rao"},
		DataTypes:   []string{"Prescription"},
		DateRange:   &DateRange{From: t0.Add(-time.Hour), To: t0},
		ExpiryDate:  &expiry,
	}
	require.NoError(t, s.AppendConsentEvent(ctx, e))
	e.RequestedBy.Name = "changed"
	e.UsedBy.Name = "changed"
	e.DataTypes[0] = "changed"
	e.DateRange.To = t0.Add(time.Hour)
	*e.ExpiryDate = t0

	check := func(got *ConsentAuditEvent) {
		t.Helper()
		assert.Equal(t, "City Clinic", got.RequestedBy.Name)
		assert.Equal(t, "Dr. Rao", got.UsedBy.Name)
		assert.Equal(t, []string{"Prescription"}, got.DataTypes)
		assert.Equal(t, t0, got.DateRange.To)
		assert.Equal(t, expiry, *got.ExpiryDate)
	}

	got, err := s.QueryConsentAudit(ctx, ConsentAuditQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	check(got[0])

	got[0].RequestedBy.Name = "mutated"
	got[0].UsedBy.Name = "mutated"
	got[0].DataTypes[0] = "mutated"
	got[0].DateRange.To = t0.Add(2 * time.Hour)
	*got[0].ExpiryDate = t0.Add(time.Minute)

	again, err := s.QueryConsentAudit(ctx, ConsentAuditQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, again, 1)
	check(again[0])
}

func TestMemoryStore_DataAccessDurationIsCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	d := int64(45)
	l := access("u1", ActionView, SourceDoctor, t0)
	l.Duration = &d
	require.NoError(t, s.AppendDataAccess(ctx, l))
	*l.Duration = 1

	got, err := s.QueryDataAccess(ctx, DataAccessQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(45), *got[0].Duration)

	*got[0].Duration = 2
	again, err := s.QueryDataAccess(ctx, DataAccessQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(45), *again[0].Duration)
}

func TestMemoryStore_ConcurrentAppendsAssignUniqueIncreasingSeq(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const users, perUser = 8, 50
	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				l := access(fmt.Sprintf("u%d", u), ActionView, SourceDoctor, t0)
				l.ID = fmt.Sprintf("u%d-%d", u, i)
				assert.NoError(t, s.AppendDataAccess(ctx, l))
			}
		}(u)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for u := 0; u < users; u++ {
		logs, err := s.QueryDataAccess(ctx, DataAccessQuery{UserID: fmt.Sprintf("u%d", u)})
		require.NoError(t, err)
		require.Len(t, logs, perUser)
		for i, l := range logs {
			assert.False(t, seen[l.Seq], "duplicate seq %d", l.Seq)
			seen[l.Seq] = true
			if i > 0 {
				assert.Greater(t, logs[i-1].Seq, l.Seq)
			}
			// Same timestamp, so per-user insertion order is reversed.
			assert.Equal(t, fmt.Sprintf("u%d-%d", u, perUser-1-i), l.ID)
		}
	}
	assert.Len(t, seen, users*perUser)
}

func TestMemoryStore_ConcurrentAcknowledgeAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.AppendSecurityEvent(ctx, &SecurityEvent{ID: "sec-1", UserID: "u1",
		EventType: SecurityFailedLogin, Severity: SeverityWarning, Details: "x", Timestamp: t0}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Acknowledge(ctx, "sec-1")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.QuerySecurityEvents(ctx, SecurityEventQuery{UserID: "u1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetSecurityEvent(ctx, "sec-1")
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)
}
