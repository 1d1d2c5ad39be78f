package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/workflow"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// editorialService is the concrete implementation of EditorialService
type editorialService struct {
	*engine
	log zerolog.Logger
}

// newEditorialService creates the editor-facing service
func newEditorialService(eng *engine, log zerolog.Logger) *editorialService {
	return &editorialService{
		engine: eng,
		log:    log.With().Str("service", "editorial").Logger(),
	}
}

// move runs one editor-triggered submission transition
func (s *editorialService) move(ctx context.Context, actor models.Actor, id string, ch submissionChange) (*models.Submission, error) {
	if _, err := s.authz.RequireEditor(ctx, actor); err != nil {
		return nil, err
	}

	var sub *models.Submission
	err := s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		sub, err = lockSubmission(ctx, repos, id)
		if err != nil {
			return err
		}
		return s.transitionSubmission(ctx, repos, actor, sub, ch)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("submission_id", id).
		Str("status", string(sub.Status)).
		Str("editor_id", actor.UserID).
		Msg("Submission status changed")
	return sub, nil
}

// StartScreening moves a submitted or resubmitted manuscript to screening
func (s *editorialService) StartScreening(ctx context.Context, actor models.Actor, id string) (*models.Submission, error) {
	return s.move(ctx, actor, id, submissionChange{to: models.SubmissionScreening})
}

// DeskReject rejects a manuscript during screening with a reason
func (s *editorialService) DeskReject(ctx context.Context, actor models.Actor, id, reason string) (*models.Submission, error) {
	if err := s.validator.ValidateDeskReject(reason); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	return s.move(ctx, actor, id, submissionChange{
		to:     models.SubmissionDeskRejected,
		mutate: func(sub *models.Submission) { sub.DeskRejectReason = reason },
		extra:  models.JSONMap{"desk_reject_reason": reason},
	})
}

// SendToReview moves a screened or resubmitted manuscript to under_review
func (s *editorialService) SendToReview(ctx context.Context, actor models.Actor, id string) (*models.Submission, error) {
	return s.move(ctx, actor, id, submissionChange{to: models.SubmissionUnderReview})
}

// MoveToDecision moves a reviewed manuscript to decision_pending
func (s *editorialService) MoveToDecision(ctx context.Context, actor models.Actor, id string) (*models.Submission, error) {
	return s.move(ctx, actor, id, submissionChange{to: models.SubmissionDecisionPending})
}

// Decide records the editorial decision and its letter with the status change
func (s *editorialService) Decide(ctx context.Context, actor models.Actor, id string, req *models.DecisionRequest) (*models.Submission, error) {
	if err := s.validator.ValidateDecision(req); err != nil {
		return nil, err
	}
	to, ok := workflow.DecisionStatus(req.Decision)
	if !ok {
		return nil, apperrors.Field("decision", "decision must be one of: accept, reject, revision_required")
	}
	letter := strings.TrimSpace(req.DecisionLetter)
	return s.move(ctx, actor, id, submissionChange{
		to:     to,
		action: models.ActionDecision,
		mutate: func(sub *models.Submission) {
			sub.EditorialDecision = req.Decision
			sub.DecisionLetter = letter
		},
		extra: models.JSONMap{"editorial_decision": string(req.Decision)},
	})
}

// Publish moves an accepted manuscript to published
func (s *editorialService) Publish(ctx context.Context, actor models.Actor, id string) (*models.Submission, error) {
	return s.move(ctx, actor, id, submissionChange{to: models.SubmissionPublished})
}

// InviteReviewer creates an invited assignment pinned to the latest version
// and queues the invitation email
func (s *editorialService) InviteReviewer(ctx context.Context, actor models.Actor, id string, req *models.InviteRequest) (*models.ReviewAssignment, error) {
	if _, err := s.authz.RequireEditor(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateInvite(req); err != nil {
		return nil, err
	}

	token, err := newInviteToken()
	if err != nil {
		return nil, err
	}

	var assignment *models.ReviewAssignment
	err = s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var reviewerID *string
		email := strings.ToLower(strings.TrimSpace(req.ReviewerEmail))

		if userID := strings.TrimSpace(req.ReviewerUserID); userID != "" {
			reviewer, err := repos.User.GetByID(ctx, userID)
			if err != nil {
				return err
			}
			if reviewer == nil {
				return apperrors.NewNotFound("user", userID)
			}
			if !reviewer.IsApprovedReviewer() {
				return apperrors.NewValidation("invalid invitation", apperrors.FieldError{
					Field: "reviewer_user_id", Message: "user is not an approved reviewer", Value: userID,
				})
			}
			reviewerID = &reviewer.ID
			email = strings.ToLower(reviewer.Email)
		}

		sub, err := lockSubmission(ctx, repos, id)
		if err != nil {
			return err
		}
		if sub.Status != models.SubmissionScreening && sub.Status != models.SubmissionUnderReview {
			return apperrors.NewValidation("reviewers can only be invited during screening or review", apperrors.FieldError{
				Field: "status", Message: fmt.Sprintf("submission is %s", sub.Status),
			})
		}

		version, err := repos.Version.Latest(ctx, sub.ID)
		if err != nil {
			return err
		}
		if version == nil {
			return apperrors.NewValidation("submission has no version to review")
		}

		exists, err := repos.Assignment.ExistsForInvite(ctx, sub.ID, version.ID, email)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.NewConflict("%s is already invited to review version %d", email, version.VersionNumber)
		}

		assignment = &models.ReviewAssignment{
			ID:                  uuid.NewString(),
			SubmissionID:        sub.ID,
			SubmissionVersionID: version.ID,
			ReviewerID:          reviewerID,
			InvitedEmail:        email,
			Token:               token,
			Status:              models.AssignmentInvited,
			DueDate:             req.DueDate,
			InvitedAt:           s.now(),
		}
		if err := repos.Assignment.Create(ctx, assignment); err != nil {
			return err
		}

		if err := s.audit(ctx, repos, actor, models.ActionReviewerInvited, models.TargetReviewAssignment, assignment.ID,
			nil, models.JSONMap{
				"status":         string(assignment.Status),
				"invited_email":  email,
				"submission_id":  sub.ID,
				"version_number": version.VersionNumber,
			}); err != nil {
			return err
		}

		msg := workflow.InviteMessage(sub, assignment)
		_, err = s.notify.Enqueue(ctx, repos, models.NotificationRequest{
			EventType: msg.EventType,
			Recipient: email,
			UserID:    reviewerID,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Payload: models.JSONMap{
				"submission_id": sub.ID,
				"assignment_id": assignment.ID,
			},
			IdempotencyKey: workflow.InviteKey(assignment.ID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("submission_id", id).
		Str("assignment_id", assignment.ID).
		Str("invited_email", assignment.InvitedEmail).
		Msg("Reviewer invited")
	return assignment, nil
}

// Remind queues a reminder to the reviewer of an open assignment
func (s *editorialService) Remind(ctx context.Context, actor models.Actor, assignmentID string) (*models.ReviewAssignment, error) {
	if _, err := s.authz.RequireEditor(ctx, actor); err != nil {
		return nil, err
	}

	var assignment *models.ReviewAssignment
	err := s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		assignment, err = lockAssignment(ctx, repos, assignmentID)
		if err != nil {
			return err
		}
		if assignment.Status != models.AssignmentInvited && assignment.Status != models.AssignmentAccepted {
			return apperrors.NewValidation("reminders can only be sent for open assignments", apperrors.FieldError{
				Field: "status", Message: fmt.Sprintf("assignment is %s", assignment.Status),
			})
		}

		sub, err := repos.Submission.GetByID(ctx, assignment.SubmissionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return apperrors.NewNotFound("submission", assignment.SubmissionID)
		}

		recipient := assignment.InvitedEmail
		if assignment.ReviewerID != nil {
			reviewer, err := repos.User.GetByID(ctx, *assignment.ReviewerID)
			if err != nil {
				return err
			}
			if reviewer != nil {
				recipient = reviewer.Email
			}
		}

		msg := workflow.ReminderMessage(sub, assignment)
		if _, err := s.notify.Enqueue(ctx, repos, models.NotificationRequest{
			EventType: msg.EventType,
			Recipient: recipient,
			UserID:    assignment.ReviewerID,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Payload:   models.JSONMap{"submission_id": sub.ID, "assignment_id": assignment.ID},
		}); err != nil {
			return err
		}
		return s.audit(ctx, repos, actor, models.ActionReminderQueued, models.TargetReviewAssignment, assignment.ID,
			nil, models.JSONMap{"recipient": recipient})
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// List returns submissions visible to editors, optionally filtered by status
func (s *editorialService) List(ctx context.Context, actor models.Actor, status models.SubmissionStatus) ([]*models.Submission, error) {
	if _, err := s.authz.RequireEditor(ctx, actor); err != nil {
		return nil, err
	}
	if status != "" {
		if _, ok := workflow.SubmissionTransitions.Edges[status]; !ok {
			return nil, apperrors.Field("status", fmt.Sprintf("unknown status %q", status))
		}
	}
	return s.runner.Repos().Submission.List(ctx, status)
}

// Get returns a submission with its versions and review assignments
func (s *editorialService) Get(ctx context.Context, actor models.Actor, id string) (*models.SubmissionDetail, error) {
	if _, err := s.authz.RequireEditor(ctx, actor); err != nil {
		return nil, err
	}
	repos := s.runner.Repos()
	sub, err := repos.Submission.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperrors.NewNotFound("submission", id)
	}
	versions, err := repos.Version.List(ctx, id)
	if err != nil {
		return nil, err
	}
	assignments, err := repos.Assignment.ListBySubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.SubmissionDetail{Submission: sub, Versions: versions, Assignments: assignments}, nil
}
