package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phr/ledger/internal/platform/apperr"
	"github.com/phr/ledger/internal/platform/db"
)

// PGRepository stores sessions in login_session. A partial unique index on
// (user_id, device_id) WHERE is_active backs the one-active-per-device rule.
type PGRepository struct{ pool *pgxpool.Pool }

func NewPGRepository(pool *pgxpool.Pool) *PGRepository { return &PGRepository{pool: pool} }

func (r *PGRepository) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const sessionCols = `id, user_id, device_id, device_name, platform, ip_address, location,
	login_time, last_activity, expires_at, is_active, terminated_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.DeviceName, &s.Platform, &s.IPAddress, &s.Location,
		&s.LoginTime, &s.LastActivity, &s.ExpiresAt, &s.IsActive, &s.TerminatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PGRepository) Create(ctx context.Context, s *Session) (*CreateResult, error) {
	res := &CreateResult{}
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := db.LockSubject(ctx, tx, s.UserID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM login_session WHERE user_id = $1 AND device_id = $2)`,
			s.UserID, s.DeviceID).Scan(&res.KnownDevice); err != nil {
			return fmt.Errorf("check device: %w", err)
		}

		rows, err := tx.Query(ctx, `
			UPDATE login_session SET is_active = FALSE, terminated_at = $3
			WHERE user_id = $1 AND device_id = $2 AND is_active
			RETURNING id`, s.UserID, s.DeviceID, s.LoginTime)
		if err != nil {
			return fmt.Errorf("supersede sessions: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("supersede sessions: %w", err)
		}
		res.Superseded = ids

		_, err = tx.Exec(ctx, `
			INSERT INTO login_session (id, user_id, device_id, device_name, platform, ip_address, location,
				login_time, last_activity, expires_at, is_active)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			s.ID, s.UserID, s.DeviceID, s.DeviceName, s.Platform, s.IPAddress, s.Location,
			s.LoginTime, s.LastActivity, s.ExpiresAt, s.IsActive)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM login_session WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *PGRepository) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+sessionCols+` FROM login_session WHERE user_id = $1
		 ORDER BY last_activity DESC, login_time DESC, created_seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	items := []*Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// lockOwner resolves the session's user and takes that user's lock in tx.
func lockOwner(ctx context.Context, tx pgx.Tx, id string) error {
	var userID string
	err := tx.QueryRow(ctx, `SELECT user_id FROM login_session WHERE id = $1`, id).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("session %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	return db.LockSubject(ctx, tx, userID)
}

func (r *PGRepository) Deactivate(ctx context.Context, id string, at time.Time) (bool, error) {
	var changed bool
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE login_session SET is_active = FALSE, terminated_at = $2 WHERE id = $1 AND is_active`, id, at)
		if err != nil {
			return fmt.Errorf("deactivate session: %w", err)
		}
		changed = tag.RowsAffected() == 1
		return nil
	})
	return changed, err
}

func (r *PGRepository) Touch(ctx context.Context, id string, at time.Time) (*Session, error) {
	var out *Session
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, id); err != nil {
			return err
		}
		s, err := scanSession(tx.QueryRow(ctx, `
			UPDATE login_session SET last_activity = GREATEST(last_activity, $2)
			WHERE id = $1 AND is_active
			RETURNING `+sessionCols, id, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Conflict("session %s is not active", id)
		}
		if err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		out = s
		return nil
	})
	return out, err
}
