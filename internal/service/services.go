package service

import (
	"context"
	"time"

	"github.com/ejournal-workflow-api/internal/blobstore"
	"github.com/ejournal-workflow-api/internal/config"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/transport"
	"github.com/ejournal-workflow-api/internal/validation"
	"github.com/rs/zerolog"
)

// Authorizer answers capability questions about the acting user
type Authorizer interface {
	RequireAuthor(ctx context.Context, actor models.Actor) (*models.User, error)
	RequireEditor(ctx context.Context, actor models.Actor) (*models.User, error)
	RequireReviewer(ctx context.Context, actor models.Actor) (*models.User, error)
	ApprovedEditorEmails(ctx context.Context) ([]string, error)
}

// SubmissionService defines the author-facing operations
type SubmissionService interface {
	CreateDraft(ctx context.Context, actor models.Actor, patch *models.SubmissionPatch) (*models.Submission, error)
	UpdateDraft(ctx context.Context, actor models.Actor, id string, patch *models.SubmissionPatch) (*models.Submission, error)
	DeleteDraft(ctx context.Context, actor models.Actor, id string) error
	UploadFile(ctx context.Context, actor models.Actor, id string, kind models.FileKind, name string, data []byte) (*models.UploadResult, error)
	Submit(ctx context.Context, actor models.Actor, id string) (*models.Submission, error)
	Resubmit(ctx context.Context, actor models.Actor, id string) (*models.Submission, error)
	Withdraw(ctx context.Context, actor models.Actor, id string) (*models.Submission, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Submission, error)
	ListMine(ctx context.Context, actor models.Actor) ([]*models.Submission, error)
	ListVersions(ctx context.Context, actor models.Actor, id string) ([]*models.SubmissionVersion, error)
	ListTopicAreas(ctx context.Context) ([]*models.TopicArea, error)
}

// EditorialService defines the editor-facing operations
type EditorialService interface {
	StartScreening(ctx context.Context, actor models.Actor, id string) (*models.Submission, error)
	DeskReject(ctx context.Context, actor models.Actor, id, reason string) (*models.Submission, error)
	SendToReview(ctx context.Context, actor models.Actor, id string) (*models.Submission, error)
	InviteReviewer(ctx context.Context, actor models.Actor, id string, req *models.InviteRequest) (*models.ReviewAssignment, error)
	MoveToDecision(ctx context.Context, actor models.Actor, id string) (*models.Submission, error)
	Decide(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Submission, error)
	Publish(ctx context.Context, actor models.Actor, id string) (*models.Submission, error)
	Remind(ctx context.Context, actor models.Actor, assignmentID string) (*models.ReviewAssignment, error)
	List(ctx context.Context, actor models.Actor, status models.SubmissionStatus) ([]*models.Submission, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.SubmissionDetail, error)
}

// ReviewService defines the reviewer-facing operations
type ReviewService interface {
	Accept(ctx context.Context, actor models.Actor, assignmentID string) (*models.ReviewAssignment, error)
	Decline(ctx context.Context, actor models.Actor, assignmentID string) (*models.ReviewAssignment, error)
	AcceptByToken(ctx context.Context, actor models.Actor, token string) (*models.ReviewAssignment, error)
	LookupToken(ctx context.Context, actor models.Actor, token string) (*models.ReviewAssignment, error)
	SubmitReview(ctx context.Context, actor models.Actor, assignmentID string, in *models.ReviewInput) (*models.Review, error)
	ListMine(ctx context.Context, actor models.Actor) ([]*models.ReviewAssignment, error)
	ExpireOverdue(ctx context.Context) (int, error)
}

// NotificationService defines the notification dispatcher
type NotificationService interface {
	// Enqueue adds a request to the outbox using the caller's transaction
	Enqueue(ctx context.Context, repos *repository.Repositories, req models.NotificationRequest) (*models.OutboxItem, error)
	StartProcessor(ctx context.Context)
	StopProcessor()
	// ProcessDue drains every item that is due now and returns how many were handled
	ProcessDue(ctx context.Context) (int, error)
	Deliver(ctx context.Context, item *models.OutboxItem) (models.DeliveryOutcome, error)
	ListFailed(ctx context.Context, limit int) ([]*models.OutboxItem, error)
	Requeue(ctx context.Context, id string) error
}

// Services holds all service interfaces
type Services struct {
	Submission   SubmissionService
	Editorial    EditorialService
	Review       ReviewService
	Notification NotificationService
}

// NewServices creates all services
func NewServices(
	runner repository.TxRunner,
	authz Authorizer,
	blobs blobstore.Store,
	mailer transport.Transport,
	cfg *config.Config,
	log zerolog.Logger,
) *Services {
	notifySvc := newNotificationService(runner, authz, mailer, cfg.Notify, log)

	eng := &engine{
		runner:    runner,
		authz:     authz,
		blobs:     blobs,
		notify:    notifySvc,
		validator: validation.NewValidator(),
		now:       time.Now,
	}

	return &Services{
		Submission:   newSubmissionService(eng, cfg.Storage.MaxUploadSize, log),
		Editorial:    newEditorialService(eng, log),
		Review:       newReviewService(eng, log),
		Notification: notifySvc,
	}
}
