package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phr/ledger/internal/platform/apperr"
	"github.com/phr/ledger/internal/platform/db"
)

// PGStore is the Postgres-backed Store. Every append runs in its own
// transaction holding the user's advisory lock; seq comes from BIGSERIAL.
type PGStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

func (r *PGStore) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clause string
	args   []interface{}
}

func (w *where) add(format string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clause += " AND " + fmt.Sprintf(format, len(w.args))
}

func (w *where) window(col string, win Window) {
	if win.From != nil {
		w.add(col+" >= $%d", *win.From)
	}
	if win.To != nil {
		w.add(col+" <= $%d", *win.To)
	}
}

func marshalNullable(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// -- Consent events --

const consentCols = `id, seq, user_id, consent_id, event_type, timestamp, description,
	requested_by, used_by, records_accessed, purpose, data_types, date_from, date_to, expiry_date`

func (r *PGStore) AppendConsentEvent(ctx context.Context, e *ConsentAuditEvent) error {
	var requestedBy, usedBy interface{}
	var err error
	if e.RequestedBy != nil {
		if requestedBy, err = marshalNullable(e.RequestedBy); err != nil {
			return fmt.Errorf("encode requested_by: %w", err)
		}
	}
	if e.UsedBy != nil {
		if usedBy, err = marshalNullable(e.UsedBy); err != nil {
			return fmt.Errorf("encode used_by: %w", err)
		}
	}
	var from, to *time.Time
	if e.DateRange != nil {
		from, to = &e.DateRange.From, &e.DateRange.To
	}
	dataTypes := e.DataTypes
	if dataTypes == nil {
		dataTypes = []string{}
	}

	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := db.LockSubject(ctx, tx, e.UserID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO consent_audit_event (id, user_id, consent_id, event_type, timestamp, description,
				requested_by, used_by, records_accessed, purpose, data_types, date_from, date_to, expiry_date)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			RETURNING seq`,
			e.ID, e.UserID, e.ConsentID, e.EventType, e.Timestamp, e.Description,
			requestedBy, usedBy, e.RecordsAccessed, e.Purpose, dataTypes, from, to, e.ExpiryDate,
		).Scan(&e.Seq)
	})
}

func scanConsentEvent(row pgx.Row) (*ConsentAuditEvent, error) {
	var e ConsentAuditEvent
	var requestedBy, usedBy []byte
	var from, to *time.Time
	if err := row.Scan(&e.ID, &e.Seq, &e.UserID, &e.ConsentID, &e.EventType, &e.Timestamp, &e.Description,
		&requestedBy, &usedBy, &e.RecordsAccessed, &e.Purpose, &e.DataTypes, &from, &to, &e.ExpiryDate); err != nil {
		return nil, err
	}
	if requestedBy != nil {
		e.RequestedBy = &Party{}
		if err := json.Unmarshal(requestedBy, e.RequestedBy); err != nil {
			return nil, fmt.Errorf("decode requested_by: %w", err)
		}
	}
	if usedBy != nil {
		e.UsedBy = &Party{}
		if err := json.Unmarshal(usedBy, e.UsedBy); err != nil {
			return nil, fmt.Errorf("decode used_by: %w", err)
		}
	}
	if from != nil && to != nil {
		e.DateRange = &DateRange{From: *from, To: *to}
	}
	return &e, nil
}

func (r *PGStore) QueryConsentAudit(ctx context.Context, q ConsentAuditQuery) ([]*ConsentAuditEvent, error) {
	w := &where{}
	w.add("user_id = $%d", q.UserID)
	if q.ConsentID != "" {
		w.add("consent_id = $%d", q.ConsentID)
	}
	w.window("timestamp", q.Window)

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+consentCols+` FROM consent_audit_event WHERE 1=1`+w.clause+` ORDER BY timestamp DESC, seq DESC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("query consent audit: %w", err)
	}
	defer rows.Close()

	items := []*ConsentAuditEvent{}
	for rows.Next() {
		e, err := scanConsentEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// -- Data access --

const accessCols = `id, seq, user_id, action, accessed_by_id, accessed_by_name, accessed_by_type,
	accessed_by_facility, record_title, purpose, consent_id, success, failure_reason,
	duration_seconds, location, ip_address, timestamp`

func (r *PGStore) AppendDataAccess(ctx context.Context, l *DataAccessLog) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := db.LockSubject(ctx, tx, l.UserID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO data_access_log (id, user_id, action, accessed_by_id, accessed_by_name, accessed_by_type,
				accessed_by_facility, record_title, purpose, consent_id, success, failure_reason,
				duration_seconds, location, ip_address, timestamp)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			RETURNING seq`,
			l.ID, l.UserID, l.Action, l.AccessedBy.ID, l.AccessedBy.Name, l.AccessedBy.Type,
			l.AccessedBy.FacilityName, l.RecordTitle, l.Purpose, l.ConsentID, l.Success, l.FailureReason,
			l.Duration, l.Location, l.IPAddress, l.Timestamp,
		).Scan(&l.Seq)
	})
}

func scanDataAccess(row pgx.Row) (*DataAccessLog, error) {
	var l DataAccessLog
	err := row.Scan(&l.ID, &l.Seq, &l.UserID, &l.Action, &l.AccessedBy.ID, &l.AccessedBy.Name, &l.AccessedBy.Type,
		&l.AccessedBy.FacilityName, &l.RecordTitle, &l.Purpose, &l.ConsentID, &l.Success, &l.FailureReason,
		&l.Duration, &l.Location, &l.IPAddress, &l.Timestamp)
	return &l, err
}

func (r *PGStore) QueryDataAccess(ctx context.Context, q DataAccessQuery) ([]*DataAccessLog, error) {
	w := &where{}
	w.add("user_id = $%d", q.UserID)
	switch {
	case q.Source == SourceOther:
		w.add("(accessed_by_type = 'other' OR accessed_by_type <> ALL($%d))", KnownSources())
	case q.Source != "":
		w.add("accessed_by_type = $%d", q.Source)
	}
	if q.Action != "" {
		w.add("action = $%d", q.Action)
	}
	w.window("timestamp", q.Window)

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+accessCols+` FROM data_access_log WHERE 1=1`+w.clause+` ORDER BY timestamp DESC, seq DESC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("query data access: %w", err)
	}
	defer rows.Close()

	items := []*DataAccessLog{}
	for rows.Next() {
		l, err := scanDataAccess(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

// -- Gateway logs --

const gatewayCols = `id, seq, user_id, transaction_id, request_type, direction, gateway_id, hip_id, hiu_id,
	status, response_time_ms, error_code, error_message, metadata, timestamp`

func (r *PGStore) AppendGatewayLog(ctx context.Context, g *GatewayLog) error {
	meta, err := json.Marshal(g.Metadata.Clone())
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := db.LockSubject(ctx, tx, g.UserID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO gateway_log (id, user_id, transaction_id, request_type, direction, gateway_id, hip_id, hiu_id,
				status, response_time_ms, error_code, error_message, metadata, timestamp)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			RETURNING seq`,
			g.ID, g.UserID, g.TransactionID, g.RequestType, g.Direction, g.GatewayID, g.HIPID, g.HIUID,
			g.Status, g.ResponseTime, g.ErrorCode, g.ErrorMessage, string(meta), g.Timestamp,
		).Scan(&g.Seq)
	})
}

func scanGatewayLog(row pgx.Row) (*GatewayLog, error) {
	var g GatewayLog
	var meta []byte
	if err := row.Scan(&g.ID, &g.Seq, &g.UserID, &g.TransactionID, &g.RequestType, &g.Direction, &g.GatewayID,
		&g.HIPID, &g.HIUID, &g.Status, &g.ResponseTime, &g.ErrorCode, &g.ErrorMessage, &meta, &g.Timestamp); err != nil {
		return nil, err
	}
	g.Metadata = Metadata{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &g.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &g, nil
}

func (r *PGStore) QueryGatewayLogs(ctx context.Context, q GatewayQuery) ([]*GatewayLog, error) {
	w := &where{}
	w.add("user_id = $%d", q.UserID)
	if q.Status != "" {
		w.add("status = $%d", q.Status)
	}
	w.window("timestamp", q.Window)

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+gatewayCols+` FROM gateway_log WHERE 1=1`+w.clause+` ORDER BY timestamp DESC, seq DESC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("query gateway logs: %w", err)
	}
	defer rows.Close()

	items := []*GatewayLog{}
	for rows.Next() {
		g, err := scanGatewayLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

// -- Security events --

const securityCols = `id, seq, user_id, event_type, severity, details, device_name, location, ip_address,
	timestamp, acknowledged`

func (r *PGStore) AppendSecurityEvent(ctx context.Context, e *SecurityEvent) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := db.LockSubject(ctx, tx, e.UserID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO security_event (id, user_id, event_type, severity, details, device_name, location,
				ip_address, timestamp, acknowledged)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING seq`,
			e.ID, e.UserID, e.EventType, e.Severity, e.Details, e.DeviceName, e.Location,
			e.IPAddress, e.Timestamp, e.Acknowledged,
		).Scan(&e.Seq)
	})
}

func scanSecurityEvent(row pgx.Row) (*SecurityEvent, error) {
	var e SecurityEvent
	err := row.Scan(&e.ID, &e.Seq, &e.UserID, &e.EventType, &e.Severity, &e.Details, &e.DeviceName,
		&e.Location, &e.IPAddress, &e.Timestamp, &e.Acknowledged)
	return &e, err
}

func (r *PGStore) QuerySecurityEvents(ctx context.Context, q SecurityEventQuery) ([]*SecurityEvent, error) {
	w := &where{}
	w.add("user_id = $%d", q.UserID)
	w.window("timestamp", q.Window)

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+securityCols+` FROM security_event WHERE 1=1`+w.clause+` ORDER BY timestamp DESC, seq DESC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	items := []*SecurityEvent{}
	for rows.Next() {
		e, err := scanSecurityEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *PGStore) GetSecurityEvent(ctx context.Context, eventID string) (*SecurityEvent, error) {
	e, err := scanSecurityEvent(r.conn(ctx).QueryRow(ctx, `SELECT `+securityCols+` FROM security_event WHERE id = $1`, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("security event %s not found", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("get security event: %w", err)
	}
	return e, nil
}

// Acknowledge looks up the owner first so the update runs under the owner's lock.
func (r *PGStore) Acknowledge(ctx context.Context, eventID string) (*SecurityEvent, error) {
	var userID string
	err := r.conn(ctx).QueryRow(ctx, `SELECT user_id FROM security_event WHERE id = $1`, eventID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("security event %s not found", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup security event: %w", err)
	}

	var out *SecurityEvent
	err = db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := db.LockSubject(ctx, tx, userID); err != nil {
			return err
		}
		e, err := scanSecurityEvent(tx.QueryRow(ctx,
			`UPDATE security_event SET acknowledged = TRUE WHERE id = $1 RETURNING `+securityCols, eventID))
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("security event %s not found", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("acknowledge security event: %w", err)
	}
	return out, nil
}
