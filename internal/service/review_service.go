package service

import (
	"context"
	"strings"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// reviewService is the concrete implementation of ReviewService
type reviewService struct {
	*engine
	log zerolog.Logger
}

// newReviewService creates the reviewer-facing service
func newReviewService(eng *engine, log zerolog.Logger) *reviewService {
	return &reviewService{
		engine: eng,
		log:    log.With().Str("service", "review").Logger(),
	}
}

// assignedTo reports whether a belongs to reviewer, by identity or, for
// email-only invites, by invited email
func assignedTo(a *models.ReviewAssignment, reviewer *models.User) bool {
	if a.ReviewerID != nil {
		return *a.ReviewerID == reviewer.ID
	}
	return strings.EqualFold(a.InvitedEmail, reviewer.Email)
}

// respond runs accept or decline on an assignment chosen by lookup
func (s *reviewService) respond(ctx context.Context, actor models.Actor, to models.AssignmentStatus, byToken bool,
	lookup func(ctx context.Context, repos *repository.Repositories) (*models.ReviewAssignment, error)) (*models.ReviewAssignment, error) {
	reviewer, err := s.authz.RequireReviewer(ctx, actor)
	if err != nil {
		return nil, err
	}

	action := models.ActionReviewerAccepted
	if to == models.AssignmentDeclined {
		action = models.ActionReviewerDeclined
	}

	var assignment *models.ReviewAssignment
	err = s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		assignment, err = lookup(ctx, repos)
		if err != nil {
			return err
		}

		// Token holders may claim an email-only invite, never someone else's
		if byToken {
			if assignment.ReviewerID != nil && *assignment.ReviewerID != reviewer.ID {
				return apperrors.NewAuthorization("this invitation belongs to another reviewer")
			}
		} else if !assignedTo(assignment, reviewer) {
			return apperrors.NewAuthorization("this invitation belongs to another reviewer")
		}

		if assignment.Status != models.AssignmentInvited {
			return apperrors.NewConflict("invitation already responded to (status %s)", assignment.Status)
		}

		if assignment.ReviewerID == nil {
			assignment.ReviewerID = &reviewer.ID
		}
		now := s.now()
		assignment.RespondedAt = &now
		return s.transitionAssignment(ctx, repos, actor, assignment, to, action, true)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("assignment_id", assignment.ID).
		Str("reviewer_id", reviewer.ID).
		Str("status", string(to)).
		Msg("Reviewer responded")
	return assignment, nil
}

func byID(id string) func(ctx context.Context, repos *repository.Repositories) (*models.ReviewAssignment, error) {
	return func(ctx context.Context, repos *repository.Repositories) (*models.ReviewAssignment, error) {
		return lockAssignment(ctx, repos, id)
	}
}

// Accept moves an invited assignment to accepted
func (s *reviewService) Accept(ctx context.Context, actor models.Actor, assignmentID string) (*models.ReviewAssignment, error) {
	return s.respond(ctx, actor, models.AssignmentAccepted, false, byID(assignmentID))
}

// Decline moves an invited assignment to declined
func (s *reviewService) Decline(ctx context.Context, actor models.Actor, assignmentID string) (*models.ReviewAssignment, error) {
	return s.respond(ctx, actor, models.AssignmentDeclined, false, byID(assignmentID))
}

// AcceptByToken accepts the invitation identified by its accept token
func (s *reviewService) AcceptByToken(ctx context.Context, actor models.Actor, token string) (*models.ReviewAssignment, error) {
	if err := s.validator.ValidateToken(token); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	return s.respond(ctx, actor, models.AssignmentAccepted, true,
		func(ctx context.Context, repos *repository.Repositories) (*models.ReviewAssignment, error) {
			a, err := repos.Assignment.GetByTokenForUpdate(ctx, token)
			if err != nil {
				return nil, err
			}
			if a == nil {
				return nil, apperrors.NewNotFound("invitation", "")
			}
			return a, nil
		})
}

// LookupToken returns the invitation for a token while it is still open
func (s *reviewService) LookupToken(ctx context.Context, actor models.Actor, token string) (*models.ReviewAssignment, error) {
	if _, err := s.authz.RequireReviewer(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateToken(token); err != nil {
		return nil, err
	}
	a, err := s.runner.Repos().Assignment.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperrors.NewNotFound("invitation", "")
	}
	if a.Status != models.AssignmentInvited {
		return nil, apperrors.NewConflict("invitation already responded to (status %s)", a.Status)
	}
	return a, nil
}

// SubmitReview creates the one review for an accepted assignment and moves
// it to review_submitted
func (s *reviewService) SubmitReview(ctx context.Context, actor models.Actor, assignmentID string, in *models.ReviewInput) (*models.Review, error) {
	reviewer, err := s.authz.RequireReviewer(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateReview(in); err != nil {
		return nil, err
	}

	var review *models.Review
	err = s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		a, err := lockAssignment(ctx, repos, assignmentID)
		if err != nil {
			return err
		}
		if !assignedTo(a, reviewer) {
			return apperrors.NewAuthorization("only the assigned reviewer may submit this review")
		}

		existing, err := repos.Review.GetByAssignment(ctx, a.ID)
		if err != nil {
			return err
		}
		if existing != nil || a.Status == models.AssignmentReviewSubmitted {
			return apperrors.NewConflict("a review was already submitted for assignment %s", a.ID)
		}
		if a.Status != models.AssignmentAccepted {
			return apperrors.NewValidation("assignment must be accepted before submitting a review",
				apperrors.FieldError{Field: "status", Message: "assignment is " + string(a.Status)})
		}
		// An accepted assignment is always bound to the reviewer who accepted it
		if a.ReviewerID == nil || *a.ReviewerID != reviewer.ID {
			return apperrors.NewAuthorization("only the assigned reviewer may submit this review")
		}

		review = &models.Review{
			ID:                   uuid.NewString(),
			AssignmentID:         a.ID,
			Summary:              strings.TrimSpace(in.Summary),
			Strengths:            strings.TrimSpace(in.Strengths),
			Weaknesses:           strings.TrimSpace(in.Weaknesses),
			ConfidentialToEditor: strings.TrimSpace(in.ConfidentialToEditor),
			Recommendation:       in.Recommendation,
			SubmittedAt:          s.now(),
		}
		if err := repos.Review.Create(ctx, review); err != nil {
			return err
		}
		return s.transitionAssignment(ctx, repos, actor, a, models.AssignmentReviewSubmitted, models.ActionReviewSubmitted, true)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("assignment_id", assignmentID).
		Str("recommendation", string(review.Recommendation)).
		Msg("Review submitted")
	return review, nil
}

// ListMine returns assignments bound to the reviewer or addressed to their email
func (s *reviewService) ListMine(ctx context.Context, actor models.Actor) ([]*models.ReviewAssignment, error) {
	reviewer, err := s.authz.RequireReviewer(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.runner.Repos().Assignment.ListForReviewer(ctx, reviewer.ID, reviewer.Email)
}

// ExpireOverdue expires invited assignments whose due date has passed. Each
// assignment commits on its own so one failure does not hold back the rest.
func (s *reviewService) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.runner.Repos().Assignment.ListOverdueInvited(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range overdue {
		changed := false
		err := s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
			a, err := lockAssignment(ctx, repos, candidate.ID)
			if err != nil {
				return err
			}
			if a.Status != models.AssignmentInvited {
				return nil
			}
			changed = true
			return s.transitionAssignment(ctx, repos, models.Actor{}, a, models.AssignmentExpired, models.ActionAssignmentExpired, false)
		})
		if err != nil {
			s.log.Error().Err(err).Str("assignment_id", candidate.ID).Msg("Failed to expire assignment")
			continue
		}
		if changed {
			expired++
		}
	}

	s.log.Info().Int("expired", expired).Msg("Overdue invitations expired")
	return expired, nil
}
