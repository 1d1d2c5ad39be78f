package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

const outboxColumns = `id, parent_id, event_type, audience, recipient, user_id, subject, body, payload,
	idempotency_key, status, attempts, next_attempt_at, last_error, created_at, completed_at`

// outboxRepo is the concrete implementation of OutboxRepository
type outboxRepo struct {
	db database.DBTX
}

// NewOutboxRepo creates a new notification outbox repository
func NewOutboxRepo(db database.DBTX) OutboxRepository {
	return &outboxRepo{db: db}
}

// Enqueue inserts a new pending item
func (r *outboxRepo) Enqueue(ctx context.Context, item *models.OutboxItem) error {
	query := `
		INSERT INTO notification_outbox (` + outboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.ParentID, item.EventType, item.Audience, item.Recipient, item.UserID,
		item.Subject, item.Body, item.Payload, nullString(item.IdempotencyKey),
		item.Status, item.Attempts, item.NextAttemptAt, item.LastError, item.CreatedAt, item.CompletedAt,
	)
	return wrapErr(err, "enqueue notification")
}

// GetByID retrieves an outbox item by ID
func (r *outboxRepo) GetByID(ctx context.Context, id string) (*models.OutboxItem, error) {
	item, err := scanOutboxItem(r.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM notification_outbox WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "get outbox item")
	}
	return item, nil
}

// GetDue retrieves pending items whose next attempt is due. Rows are not
// locked; MarkProcessing decides which worker owns each one.
func (r *outboxRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]*models.OutboxItem, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM notification_outbox WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at, created_at
		LIMIT $2
	`
	return r.list(ctx, query, now, limit)
}

// MarkProcessing atomically claims a pending item
func (r *outboxRepo) MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE notification_outbox SET status = 'processing', claimed_at = $1
		WHERE id = $2 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return false, wrapErr(err, "claim outbox item")
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Complete moves a claimed item to a final status
func (r *outboxRepo) Complete(ctx context.Context, id string, status models.OutboxStatus, lastError string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox SET status = $1, last_error = $2, completed_at = $3, claimed_at = NULL
		WHERE id = $4
	`, status, lastError, now, id)
	return wrapErr(err, "complete outbox item")
}

// Reschedule returns a claimed item to pending after a failed attempt
func (r *outboxRepo) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox SET status = 'pending', attempts = $1, next_attempt_at = $2, last_error = $3, claimed_at = NULL
		WHERE id = $4
	`, attempts, next, lastError, id)
	return wrapErr(err, "reschedule outbox item")
}

// Fail leaves an item permanently failed after its last attempt
func (r *outboxRepo) Fail(ctx context.Context, id string, attempts int, lastError string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox SET status = 'failed', attempts = $1, last_error = $2, completed_at = $3, claimed_at = NULL
		WHERE id = $4
	`, attempts, lastError, now, id)
	return wrapErr(err, "fail outbox item")
}

// RecoverStale releases items left processing by a crashed worker
func (r *outboxRepo) RecoverStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < $1
	`, claimedBefore)
	if err != nil {
		return 0, wrapErr(err, "recover stale outbox items")
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// ListFailed returns permanently failed items, newest first
func (r *outboxRepo) ListFailed(ctx context.Context, limit int) ([]*models.OutboxItem, error) {
	query := `SELECT ` + outboxColumns + ` FROM notification_outbox WHERE status = 'failed' ORDER BY created_at DESC`
	if limit > 0 {
		return r.list(ctx, query+` LIMIT $1`, limit)
	}
	return r.list(ctx, query)
}

// Requeue resets a failed item to pending with a fresh attempt budget
func (r *outboxRepo) Requeue(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox SET status = 'pending', attempts = 0, next_attempt_at = $1, completed_at = NULL
		WHERE id = $2 AND status = 'failed'
	`, now, id)
	if err != nil {
		return false, wrapErr(err, "requeue outbox item")
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *outboxRepo) list(ctx context.Context, query string, args ...any) ([]*models.OutboxItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err, "list outbox items")
	}
	defer rows.Close()

	var items []*models.OutboxItem
	for rows.Next() {
		item, err := scanOutboxItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOutboxItem(row rowScanner) (*models.OutboxItem, error) {
	var item models.OutboxItem
	var parentID, userID, key sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&item.ID, &parentID, &item.EventType, &item.Audience, &item.Recipient, &userID,
		&item.Subject, &item.Body, &item.Payload, &key,
		&item.Status, &item.Attempts, &item.NextAttemptAt, &item.LastError, &item.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	item.ParentID = strPtr(parentID)
	item.UserID = strPtr(userID)
	item.IdempotencyKey = key.String
	item.CompletedAt = timePtr(completedAt)
	return &item, nil
}
