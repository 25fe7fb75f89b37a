package repository

import (
	"context"
	"database/sql"

	"support-access-plane/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit entry repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_entries
			(id, session_id, admin_id, target_id, action_type, resource_type, resource_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID,
		nullString(e.SessionID),
		e.AdminID,
		nullString(e.TargetID),
		e.ActionType,
		nullString(e.ResourceType),
		nullString(e.ResourceID),
		e.Details,
		e.IPAddress,
		e.UserAgent,
		e.CreatedAt,
	)
	return err
}

// ListBySession returns all entries for the given session ordered by created_at
// ascending, insertion order breaking ties. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, admin_id, target_id, action_type, resource_type, resource_id, details, ip_address, user_agent, created_at
		FROM audit_entries
		WHERE session_id = $1
		ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		var sessionID, targetID, resourceType, resourceID sql.NullString
		if err := rows.Scan(&e.ID, &sessionID, &e.AdminID, &targetID, &e.ActionType,
			&resourceType, &resourceID, &e.Details, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		e.TargetID = targetID.String
		e.ResourceType = resourceType.String
		e.ResourceID = resourceID.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
