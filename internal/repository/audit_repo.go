package repository

import (
	"context"
	"database/sql"

	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

type auditRepo struct {
	db database.DBTX
}

// NewAuditRepo creates a new audit log repository
func NewAuditRepo(db database.DBTX) AuditRepository {
	return &auditRepo{db: db}
}

// Append writes one immutable audit record
func (r *auditRepo) Append(ctx context.Context, e *models.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action_type, target_type, target_id, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.ActorID, e.ActionType, e.TargetType, e.TargetID, e.OldValue, e.NewValue, e.CreatedAt)
	return wrapErr(err, "append audit log")
}

// ListByTarget returns the audit history of one target, oldest first
func (r *auditRepo) ListByTarget(ctx context.Context, targetType, targetID string) ([]*models.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_id, action_type, target_type, target_id, old_value, new_value, created_at
		FROM audit_log WHERE target_type = $1 AND target_id = $2 ORDER BY created_at, id
	`, targetType, targetID)
	if err != nil {
		return nil, wrapErr(err, "list audit log")
	}
	defer rows.Close()

	var out []*models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &actorID, &e.ActionType, &e.TargetType, &e.TargetID, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = strPtr(actorID)
		out = append(out, &e)
	}
	return out, rows.Err()
}
