package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

type notificationRepo struct {
	db database.DBTX
}

// NewNotificationRepo creates a new notification repository
func NewNotificationRepo(db database.DBTX) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, outbox_id, user_id, event_type, payload, status, idempotency_key, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.OutboxID, n.UserID, n.EventType, n.Payload, n.Status, nullString(n.IdempotencyKey), n.SentAt, n.CreatedAt)
	return wrapErr(err, "create notification")
}

func (r *notificationRepo) CreateEmailLog(ctx context.Context, l *models.EmailLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_logs (id, notification_id, to_email, subject, body, provider_message_id, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, l.ID, l.NotificationID, l.ToEmail, l.Subject, l.Body, l.ProviderMessageID, l.Status, l.Error, l.CreatedAt)
	return wrapErr(err, "create email log")
}

// MarkSent marks both records of one attempt as sent
func (r *notificationRepo) MarkSent(ctx context.Context, notificationID, emailLogID, messageID string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'sent', sent_at = $1 WHERE id = $2`, at, notificationID); err != nil {
		return wrapErr(err, "mark notification sent")
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_logs SET status = 'sent', provider_message_id = $1 WHERE id = $2`, messageID, emailLogID)
	return wrapErr(err, "mark email log sent")
}

// MarkFailed marks both records of one attempt as failed
func (r *notificationRepo) MarkFailed(ctx context.Context, notificationID, emailLogID, errMsg string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'failed' WHERE id = $1`, notificationID); err != nil {
		return wrapErr(err, "mark notification failed")
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_logs SET status = 'failed', error = $1 WHERE id = $2`, errMsg, emailLogID)
	return wrapErr(err, "mark email log failed")
}

// HasSent reports whether a notification with this event type and key was already sent
func (r *notificationRepo) HasSent(ctx context.Context, eventType, idempotencyKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM notifications WHERE event_type = $1 AND idempotency_key = $2 AND status = 'sent')
	`, eventType, idempotencyKey).Scan(&exists)
	return exists, wrapErr(err, "check sent notification")
}

func (r *notificationRepo) ListByOutbox(ctx context.Context, outboxID string) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, outbox_id, user_id, event_type, payload, status, idempotency_key, sent_at, created_at
		FROM notifications WHERE outbox_id = $1 ORDER BY created_at
	`, outboxID)
	if err != nil {
		return nil, wrapErr(err, "list notifications")
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		var userID, key sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.OutboxID, &userID, &n.EventType, &n.Payload, &n.Status, &key, &sentAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.UserID = strPtr(userID)
		n.IdempotencyKey = key.String
		n.SentAt = timePtr(sentAt)
		out = append(out, &n)
	}
	return out, rows.Err()
}
