package repository

import (
	"context"
	"time"

	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Upsert(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ListApprovedEditors(ctx context.Context) ([]*models.User, error)
}

// TopicAreaRepository defines the interface for topic area data operations
type TopicAreaRepository interface {
	Create(ctx context.Context, topic *models.TopicArea) error
	GetByID(ctx context.Context, id string) (*models.TopicArea, error)
	List(ctx context.Context) ([]*models.TopicArea, error)
}

// SubmissionRepository defines the interface for submission data operations
type SubmissionRepository interface {
	Create(ctx context.Context, s *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	// GetForUpdate locks the submission row until the enclosing transaction ends
	GetForUpdate(ctx context.Context, id string) (*models.Submission, error)
	// Save writes every mutable field only if the stored status still equals
	// expected, and returns a ConflictError otherwise
	Save(ctx context.Context, s *models.Submission, expected models.SubmissionStatus) error
	Delete(ctx context.Context, id string) error
	ListByAuthor(ctx context.Context, authorID string) ([]*models.Submission, error)
	List(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error)
	AddSupplementaryFile(ctx context.Context, f *models.SupplementaryFile) error
	ListSupplementaryFiles(ctx context.Context, submissionID string) ([]models.SupplementaryFile, error)
}

// VersionRepository defines the interface for submission version data operations
type VersionRepository interface {
	Create(ctx context.Context, v *models.SubmissionVersion) error
	Latest(ctx context.Context, submissionID string) (*models.SubmissionVersion, error)
	List(ctx context.Context, submissionID string) ([]*models.SubmissionVersion, error)
}

// AssignmentRepository defines the interface for review assignment data operations
type AssignmentRepository interface {
	Create(ctx context.Context, a *models.ReviewAssignment) error
	GetByID(ctx context.Context, id string) (*models.ReviewAssignment, error)
	GetForUpdate(ctx context.Context, id string) (*models.ReviewAssignment, error)
	GetByToken(ctx context.Context, token string) (*models.ReviewAssignment, error)
	GetByTokenForUpdate(ctx context.Context, token string) (*models.ReviewAssignment, error)
	// Save writes status, reviewer and responded_at only if the stored status
	// still equals expected, and returns a ConflictError otherwise
	Save(ctx context.Context, a *models.ReviewAssignment, expected models.AssignmentStatus) error
	ExistsForInvite(ctx context.Context, submissionID, versionID, email string) (bool, error)
	ListForReviewer(ctx context.Context, userID, email string) ([]*models.ReviewAssignment, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]*models.ReviewAssignment, error)
	ListOverdueInvited(ctx context.Context, now time.Time) ([]*models.ReviewAssignment, error)
}

// ReviewRepository defines the interface for review data operations
type ReviewRepository interface {
	Create(ctx context.Context, r *models.Review) error
	GetByAssignment(ctx context.Context, assignmentID string) (*models.Review, error)
}

// AuditRepository is the append-only audit sink
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditLog) error
	ListByTarget(ctx context.Context, targetType, targetID string) ([]*models.AuditLog, error)
}

// OutboxRepository defines the interface for the durable notification queue
type OutboxRepository interface {
	Enqueue(ctx context.Context, item *models.OutboxItem) error
	GetByID(ctx context.Context, id string) (*models.OutboxItem, error)
	GetDue(ctx context.Context, now time.Time, limit int) ([]*models.OutboxItem, error)
	MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error)
	Complete(ctx context.Context, id string, status models.OutboxStatus, lastError string, now time.Time) error
	Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastError string) error
	Fail(ctx context.Context, id string, attempts int, lastError string, now time.Time) error
	RecoverStale(ctx context.Context, claimedBefore time.Time) (int, error)
	ListFailed(ctx context.Context, limit int) ([]*models.OutboxItem, error)
	Requeue(ctx context.Context, id string, now time.Time) (bool, error)
}

// NotificationRepository stores the dispatcher's notification and email log records
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateEmailLog(ctx context.Context, l *models.EmailLog) error
	MarkSent(ctx context.Context, notificationID, emailLogID, messageID string, at time.Time) error
	MarkFailed(ctx context.Context, notificationID, emailLogID, errMsg string) error
	HasSent(ctx context.Context, eventType, idempotencyKey string) (bool, error)
	ListByOutbox(ctx context.Context, outboxID string) ([]*models.Notification, error)
}

// ReplayRepository stores responses for client-supplied Idempotency-Key headers
type ReplayRepository interface {
	Get(ctx context.Context, actorID, key string) (*models.RequestReplay, error)
	// Reserve inserts an in-progress placeholder, taking over one created
	// before staleBefore. It reports false when another request holds the key.
	Reserve(ctx context.Context, r *models.RequestReplay, staleBefore time.Time) (bool, error)
	Save(ctx context.Context, r *models.RequestReplay) error
	Release(ctx context.Context, actorID, key string) error
}

// Repositories holds all repository interfaces
type Repositories struct {
	User         UserRepository
	TopicArea    TopicAreaRepository
	Submission   SubmissionRepository
	Version      VersionRepository
	Assignment   AssignmentRepository
	Review       ReviewRepository
	Audit        AuditRepository
	Outbox       OutboxRepository
	Notification NotificationRepository
	Replay       ReplayRepository
}

// New creates all repositories bound to db, which may be a pool or a transaction
func New(db database.DBTX) *Repositories {
	return &Repositories{
		User:         NewUserRepo(db),
		TopicArea:    NewTopicAreaRepo(db),
		Submission:   NewSubmissionRepo(db),
		Version:      NewVersionRepo(db),
		Assignment:   NewAssignmentRepo(db),
		Review:       NewReviewRepo(db),
		Audit:        NewAuditRepo(db),
		Outbox:       NewOutboxRepo(db),
		Notification: NewNotificationRepo(db),
		Replay:       NewReplayRepo(db),
	}
}

// TxRunner runs a unit of work against repositories bound to one transaction
type TxRunner interface {
	// Repos returns repositories bound to the connection pool
	Repos() *Repositories
	// WithTx commits if fn returns nil and rolls back otherwise
	WithTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
}

type pgTxRunner struct {
	db    *database.DB
	repos *Repositories
}

// NewTxRunner creates a TxRunner over a PostgreSQL connection pool
func NewTxRunner(db *database.DB) TxRunner {
	return &pgTxRunner{db: db, repos: New(db)}
}

func (r *pgTxRunner) Repos() *Repositories {
	return r.repos
}

func (r *pgTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	return r.db.WithTx(ctx, nil, func(ctx context.Context, tx database.DBTX) error {
		return fn(ctx, New(tx))
	})
}
