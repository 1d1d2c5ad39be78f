package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/blobstore"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/validation"
	"github.com/ejournal-workflow-api/internal/workflow"
	"github.com/google/uuid"
)

// engine carries the collaborators shared by every action handler. Each
// action runs inside one transaction: row lock, transition check, write,
// audit append and outbox enqueue commit or roll back together.
type engine struct {
	runner    repository.TxRunner
	authz     Authorizer
	blobs     blobstore.Store
	notify    *notificationService
	validator *validation.Validator
	now       func() time.Time
}

// submissionChange describes one submission edge traversal
type submissionChange struct {
	to     models.SubmissionStatus
	action string
	// mutate applies extra field changes that commit with the status write
	mutate func(s *models.Submission)
	// extra is merged into the audit record's new_value
	extra models.JSONMap
}

// lockSubmission loads a submission for update or returns NotFound
func lockSubmission(ctx context.Context, repos *repository.Repositories, id string) (*models.Submission, error) {
	s, err := repos.Submission.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperrors.NewNotFound("submission", id)
	}
	return s, nil
}

// lockAssignment loads a review assignment for update or returns NotFound
func lockAssignment(ctx context.Context, repos *repository.Repositories, id string) (*models.ReviewAssignment, error) {
	a, err := repos.Assignment.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperrors.NewNotFound("review assignment", id)
	}
	return a, nil
}

// transitionSubmission applies a validated status change to s, writes the
// audit record and enqueues the author notification
func (e *engine) transitionSubmission(ctx context.Context, repos *repository.Repositories, actor models.Actor, s *models.Submission, ch submissionChange) error {
	from := s.Status
	if err := workflow.SubmissionTransitions.ValidateTransition(from, ch.to); err != nil {
		return err
	}

	s.Status = ch.to
	if ch.mutate != nil {
		ch.mutate(s)
	}
	if err := repos.Submission.Save(ctx, s, from); err != nil {
		return err
	}

	action := ch.action
	if action == "" {
		action = models.ActionStatusTransition
	}
	newValue := models.JSONMap{"status": string(ch.to)}
	for k, v := range ch.extra {
		newValue[k] = v
	}
	if err := e.audit(ctx, repos, actor, action, models.TargetSubmission, s.ID,
		models.JSONMap{"status": string(from)}, newValue); err != nil {
		return err
	}

	author, err := repos.User.GetByID(ctx, s.AuthorID)
	if err != nil {
		return err
	}
	if author == nil {
		return apperrors.NewNotFound("user", s.AuthorID)
	}

	version := 0
	latest, err := repos.Version.Latest(ctx, s.ID)
	if err != nil {
		return err
	}
	if latest != nil {
		version = latest.VersionNumber
	}

	msg := workflow.StatusChangeMessage(s, from, ch.to)
	_, err = e.notify.Enqueue(ctx, repos, models.NotificationRequest{
		EventType: msg.EventType,
		Recipient: author.Email,
		UserID:    &author.ID,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Payload: models.JSONMap{
			"submission_id": s.ID,
			"old_status":    string(from),
			"new_status":    string(ch.to),
		},
		IdempotencyKey: workflow.StatusChangeKey(s.ID, version, from, ch.to),
	})
	return err
}

// transitionAssignment applies a validated status change to a, writes the
// audit record and, when notifyEditors is set, enqueues the editor fan-out
func (e *engine) transitionAssignment(ctx context.Context, repos *repository.Repositories, actor models.Actor,
	a *models.ReviewAssignment, to models.AssignmentStatus, action string, notifyEditors bool) error {
	from := a.Status
	if err := workflow.AssignmentTransitions.ValidateTransition(from, to); err != nil {
		return err
	}

	a.Status = to
	if err := repos.Assignment.Save(ctx, a, from); err != nil {
		return err
	}

	newValue := models.JSONMap{"status": string(to)}
	if a.ReviewerID != nil {
		newValue["reviewer_id"] = *a.ReviewerID
	}
	if err := e.audit(ctx, repos, actor, action, models.TargetReviewAssignment, a.ID,
		models.JSONMap{"status": string(from)}, newValue); err != nil {
		return err
	}

	if !notifyEditors {
		return nil
	}

	s, err := repos.Submission.GetByID(ctx, a.SubmissionID)
	if err != nil {
		return err
	}
	if s == nil {
		return apperrors.NewNotFound("submission", a.SubmissionID)
	}

	msg := workflow.ReviewerResponseMessage(s, to)
	_, err = e.notify.Enqueue(ctx, repos, models.NotificationRequest{
		EventType: msg.EventType,
		Audience:  models.AudienceEditors,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Payload: models.JSONMap{
			"submission_id": s.ID,
			"assignment_id": a.ID,
			"old_status":    string(from),
			"new_status":    string(to),
		},
		IdempotencyKey: workflow.AssignmentChangeKey(a.ID, from, to),
	})
	return err
}

// createVersion snapshots the manuscript and supplementary files as the
// next SubmissionVersion
func (e *engine) createVersion(ctx context.Context, repos *repository.Repositories, s *models.Submission) (*models.SubmissionVersion, error) {
	latest, err := repos.Version.Latest(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	number := 1
	if latest != nil {
		number = latest.VersionNumber + 1
	}

	snapshot := make([]models.FileSnapshot, 0, len(s.SupplementaryFiles))
	for _, f := range s.SupplementaryFiles {
		url, err := e.blobs.URL(ctx, f.Locator)
		if err != nil {
			return nil, fmt.Errorf("resolve url for %s: %w", f.Name, err)
		}
		snapshot = append(snapshot, models.FileSnapshot{Name: f.Name, URL: url})
	}

	v := &models.SubmissionVersion{
		ID:                    uuid.NewString(),
		SubmissionID:          s.ID,
		VersionNumber:         number,
		ManuscriptLocator:     s.ManuscriptLocator,
		SupplementarySnapshot: snapshot,
		CreatedAt:             e.now(),
	}
	if err := repos.Version.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// audit appends one record to the audit sink inside the caller's transaction
func (e *engine) audit(ctx context.Context, repos *repository.Repositories, actor models.Actor,
	action, targetType, targetID string, oldValue, newValue models.JSONMap) error {
	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		ActionType: action,
		TargetType: targetType,
		TargetID:   targetID,
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  e.now(),
	}
	if actor.UserID != "" {
		id := actor.UserID
		entry.ActorID = &id
	}
	if err := repos.Audit.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit %s: %w", action, err)
	}
	return nil
}

// newInviteToken returns an opaque URL-safe accept token
func newInviteToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
