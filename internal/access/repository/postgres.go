package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"support-access-plane/internal/access/domain"
)

// pgUniqueViolation is the Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a scoped session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, admin_id, target_id, reason, duration_minutes, token_hash, status, created_at, expires_at, ended_at`

// Create persists the session. Returns ErrDuplicateActive when the partial
// unique index on (admin_id, target_id) WHERE status='active' rejects the row.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scoped_sessions
			(id, admin_id, target_id, reason, duration_minutes, token_hash, status, created_at, expires_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.AdminID, s.TargetID, s.Reason, s.DurationMinutes, s.TokenHash,
		string(s.Status), s.CreatedAt, s.ExpiresAt, timeToNullTime(s.EndedAt),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "scoped_sessions_one_active_idx" {
		return ErrDuplicateActive
	}
	return err
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM scoped_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// GetByTokenHash returns the session whose token hashes to tokenHash, or nil if
// none does. The token_hash column is unique, so at most one row matches.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM scoped_sessions WHERE token_hash = $1`, tokenHash)
	return scanSession(row)
}

// FindActiveByAdminAndTarget returns the active session for the pair, or nil.
// The partial unique index guarantees at most one row.
func (r *PostgresRepository) FindActiveByAdminAndTarget(ctx context.Context, adminID, targetID string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM scoped_sessions
		WHERE admin_id = $1 AND target_id = $2 AND status = 'active'`, adminID, targetID)
	return scanSession(row)
}

// ListActiveByAdmin returns the admin's active sessions that have not yet
// passed expiry, newest first. Stale active rows past expiry are excluded;
// the sweeper or lazy self-heal will correct them.
func (r *PostgresRepository) ListActiveByAdmin(ctx context.Context, adminID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM scoped_sessions
		WHERE admin_id = $1 AND status = 'active' AND expires_at >= $2
		ORDER BY created_at DESC`, adminID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkExpired flips the session to expired if it is still active. Writing over
// an already-terminal row is a no-op, which keeps the lazy self-heal and the
// bulk sweep safe to race.
func (r *PostgresRepository) MarkExpired(ctx context.Context, id string, endedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scoped_sessions SET status = 'expired', ended_at = $2
		WHERE id = $1 AND status = 'active'`, id, endedAt)
	return err
}

// End flips the session to the given terminal status if it is still active.
func (r *PostgresRepository) End(ctx context.Context, id string, status domain.Status, endedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scoped_sessions SET status = $2, ended_at = $3
		WHERE id = $1 AND status = 'active'`, id, string(status), endedAt)
	return err
}

// ExpireOlderThan bulk-transitions stale active sessions to expired in a single
// predicate-based UPDATE, so concurrent sweeps coalesce without double-counting.
// ended_at is set to each row's own expires_at, when access actually ceased.
func (r *PostgresRepository) ExpireOlderThan(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scoped_sessions SET status = 'expired', ended_at = expires_at
		WHERE status = 'active' AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	s, err := scanSessionFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSessionRows(rows *sql.Rows) (*domain.Session, error) {
	return scanSessionFrom(rows)
}

func scanSessionFrom(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var status string
	var endedAt sql.NullTime
	err := row.Scan(&s.ID, &s.AdminID, &s.TargetID, &s.Reason, &s.DurationMinutes,
		&s.TokenHash, &status, &s.CreatedAt, &s.ExpiresAt, &endedAt)
	if err != nil {
		return nil, err
	}
	s.Status = domain.Status(status)
	s.EndedAt = nullTimeToPtr(endedAt)
	return &s, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
