// Package compliance computes the per-user compliance dashboard and
// generates downloadable audit reports from the audit log.
package compliance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/phr/ledger/internal/domain/audit"
	"github.com/phr/ledger/internal/domain/consent"
	"github.com/phr/ledger/internal/platform/apperr"
	"github.com/phr/ledger/internal/platform/blobstore"
)

// DefaultReportTTL is how long a generated report stays downloadable.
const DefaultReportTTL = 24 * time.Hour

const recentWindow = 30 * 24 * time.Hour

type Engine struct {
	store   audit.Store
	tracker *consent.Tracker
	blobs   blobstore.BlobStore
	logger  zerolog.Logger
	ttl     time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	reports map[string]*AuditReport
}

func NewEngine(store audit.Store, tracker *consent.Tracker, blobs blobstore.BlobStore, logger zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		tracker: tracker,
		blobs:   blobs,
		logger:  logger.With().Str("component", "compliance").Logger(),
		ttl:     DefaultReportTTL,
		now:     time.Now,
		reports: make(map[string]*AuditReport),
	}
}

// SetReportTTL overrides the report download lifetime.
func (e *Engine) SetReportTTL(d time.Duration) { e.ttl = d }

// SetClock replaces the time source. Used by tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Dashboard computes the compliance snapshot of a user over an optional window.
func (e *Engine) Dashboard(ctx context.Context, userID string, win audit.Window) (*Dashboard, error) {
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if win.From != nil && win.To != nil && win.From.After(*win.To) {
		return nil, apperr.Validation("from must not be after to")
	}

	var (
		accesses []*audit.DataAccessLog
		gateway  []*audit.GatewayLog
		security []*audit.SecurityEvent
		records  []consent.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		accesses, err = e.store.QueryDataAccess(gctx, audit.DataAccessQuery{UserID: userID, Window: win})
		return err
	})
	g.Go(func() (err error) {
		gateway, err = e.store.QueryGatewayLogs(gctx, audit.GatewayQuery{UserID: userID, Window: win})
		return err
	})
	g.Go(func() (err error) {
		security, err = e.store.QuerySecurityEvents(gctx, audit.SecurityEventQuery{UserID: userID, Window: win})
		return err
	})
	g.Go(func() (err error) {
		records, err = e.tracker.Records(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := e.now()
	d := &Dashboard{
		UserID:           userID,
		GeneratedAt:      now,
		From:             win.From,
		To:               win.To,
		AccessesBySource: make(map[string]int),
	}
	for _, s := range audit.KnownSources() {
		d.AccessesBySource[s] = 0
	}

	active := make(map[string]bool)
	sum := consent.Summarize(records)
	for _, r := range records {
		if r.Status == consent.StatusGranted {
			active[r.ID] = true
		}
	}
	d.TotalConsents = sum.Total
	d.ActiveConsents = sum.Active
	d.RevokedConsents = sum.Revoked
	d.ExpiredConsents = sum.Expired

	facilities := make(map[string]bool)
	recentFrom := now.Add(-recentWindow)
	for _, l := range accesses {
		d.TotalDataAccesses++
		d.AccessesBySource[audit.NormalizeSource(l.AccessedBy.Type)]++
		if !l.Timestamp.Before(recentFrom) && !l.Timestamp.After(now) {
			d.AccessesLast30Days++
		}
		switch l.Action {
		case audit.ActionView:
			d.RecordsViewed++
		case audit.ActionDownload:
			d.DownloadsCount++
		case audit.ActionShare:
			d.RecordsShared++
		case audit.ActionEmergencyAccess:
			d.EmergencyAccesses++
		}
		if l.ConsentID != "" && active[l.ConsentID] && l.AccessedBy.FacilityName != "" {
			facilities[l.AccessedBy.FacilityName] = true
		}
	}
	d.LinkedFacilities = len(facilities)

	d.TotalDataTransfers, d.FailedTransfers = countTransfers(gateway)

	for _, ev := range security {
		if ev.Severity == audit.SeverityCritical && !ev.Acknowledged {
			d.UnacknowledgedCriticalEvents++
		}
	}

	res := Score(ScoreInputs{
		UnacknowledgedCritical: d.UnacknowledgedCriticalEvents,
		TotalTransfers:         d.TotalDataTransfers,
		FailedTransfers:        d.FailedTransfers,
		EmergencyAccesses:      d.EmergencyAccesses,
	})
	d.ComplianceScore = res.Score
	d.ComplianceLevel = res.Level
	d.Recommendations = res.Recommendations
	d.Deductions = res.Deductions

	e.logger.Debug().Str("user_id", userID).Int("score", d.ComplianceScore).Msg("dashboard computed")
	return d, nil
}

// countTransfers counts logical data transfers. Retries share a transaction
// id, so each transaction counts once with the status of its latest log.
// logs must be newest first.
func countTransfers(logs []*audit.GatewayLog) (total, failed int) {
	seen := make(map[string]bool)
	for _, g := range logs {
		if g.RequestType != audit.RequestDataTransfer || seen[g.TransactionID] {
			continue
		}
		seen[g.TransactionID] = true
		total++
		if g.Status == audit.GatewayFailed {
			failed++
		}
	}
	return total, failed
}
