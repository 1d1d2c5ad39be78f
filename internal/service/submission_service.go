package service

import (
	"context"
	"fmt"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
	"github.com/ejournal-workflow-api/internal/workflow"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// submissionService is the concrete implementation of SubmissionService
type submissionService struct {
	*engine
	maxUploadSize int64
	log           zerolog.Logger
}

// newSubmissionService creates the author-facing service
func newSubmissionService(eng *engine, maxUploadSize int64, log zerolog.Logger) *submissionService {
	return &submissionService{
		engine:        eng,
		maxUploadSize: maxUploadSize,
		log:           log.With().Str("service", "submission").Logger(),
	}
}

// lockOwned loads a submission for update and checks that actor owns it
func lockOwned(ctx context.Context, repos *repository.Repositories, actor models.Actor, id string) (*models.Submission, error) {
	s, err := lockSubmission(ctx, repos, id)
	if err != nil {
		return nil, err
	}
	if s.AuthorID != actor.UserID {
		return nil, apperrors.NewAuthorization("only the submission's author may do this")
	}
	return s, nil
}

// checkTopic validates that a patched topic area exists
func checkTopic(ctx context.Context, repos *repository.Repositories, p *models.SubmissionPatch) error {
	if p.TopicAreaID == nil || *p.TopicAreaID == "" {
		return nil
	}
	topic, err := repos.TopicArea.GetByID(ctx, *p.TopicAreaID)
	if err != nil {
		return err
	}
	if topic == nil {
		return apperrors.NewValidation("invalid submission fields", apperrors.FieldError{
			Field: "topic_area_id", Message: "topic area does not exist", Value: *p.TopicAreaID,
		})
	}
	return nil
}

// editable reports whether the author may still edit metadata and files
func editable(status models.SubmissionStatus) bool {
	return status == models.SubmissionDraft || status == models.SubmissionRevisionRequired
}

// CreateDraft creates a new submission in draft
func (s *submissionService) CreateDraft(ctx context.Context, actor models.Actor, patch *models.SubmissionPatch) (*models.Submission, error) {
	if _, err := s.authz.RequireAuthor(ctx, actor); err != nil {
		return nil, err
	}
	if patch == nil {
		patch = &models.SubmissionPatch{}
	}
	if err := s.validator.ValidateDraftPatch(patch); err != nil {
		return nil, err
	}

	now := s.now()
	sub := &models.Submission{
		ID:        uuid.NewString(),
		AuthorID:  actor.UserID,
		Status:    models.SubmissionDraft,
		Keywords:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	workflow.ApplyPatch(sub, patch, now)

	err := s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		if err := checkTopic(ctx, repos, patch); err != nil {
			return err
		}
		if err := repos.Submission.Create(ctx, sub); err != nil {
			return err
		}
		return s.audit(ctx, repos, actor, models.ActionSubmissionCreated, models.TargetSubmission, sub.ID,
			nil, models.JSONMap{"status": string(sub.Status), "title": sub.Title})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("submission_id", sub.ID).Str("author_id", actor.UserID).Msg("Draft created")
	return sub, nil
}

// UpdateDraft patches author-editable fields
func (s *submissionService) UpdateDraft(ctx context.Context, actor models.Actor, id string, patch *models.SubmissionPatch) (*models.Submission, error) {
	if _, err := s.authz.RequireAuthor(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateDraftPatch(patch); err != nil {
		return nil, err
	}

	var sub *models.Submission
	err := s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		sub, err = lockOwned(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if !editable(sub.Status) {
			return apperrors.NewValidation("submission cannot be edited", apperrors.FieldError{
				Field: "status", Message: fmt.Sprintf("submission is %s", sub.Status),
			})
		}
		if err := checkTopic(ctx, repos, patch); err != nil {
			return err
		}

		workflow.ApplyPatch(sub, patch, s.now())
		if err := repos.Submission.Save(ctx, sub, sub.Status); err != nil {
			return err
		}
		return s.audit(ctx, repos, actor, models.ActionSubmissionUpdated, models.TargetSubmission, sub.ID,
			nil, models.JSONMap{"fields": patchedFields(patch)})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func patchedFields(p *models.SubmissionPatch) []string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Abstract != nil {
		fields = append(fields, "abstract")
	}
	if p.Keywords != nil {
		fields = append(fields, "keywords")
	}
	if p.TopicAreaID != nil {
		fields = append(fields, "topic_area_id")
	}
	if p.OriginalityConfirmation != nil {
		fields = append(fields, "originality_confirmation")
	}
	if p.PlagiarismAgreement != nil {
		fields = append(fields, "plagiarism_agreement")
	}
	if p.EthicsCompliance != nil {
		fields = append(fields, "ethics_compliance")
	}
	if p.CopyrightAgreement != nil {
		fields = append(fields, "copyright_agreement")
	}
	return fields
}

// DeleteDraft removes a submission that never left draft
func (s *submissionService) DeleteDraft(ctx context.Context, actor models.Actor, id string) error {
	if _, err := s.authz.RequireAuthor(ctx, actor); err != nil {
		return err
	}
	return s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		sub, err := lockOwned(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if sub.Status != models.SubmissionDraft {
			return apperrors.NewValidation("only drafts can be deleted", apperrors.FieldError{
				Field: "status", Message: fmt.Sprintf("submission is %s", sub.Status),
			})
		}
		if err := repos.Submission.Delete(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, repos, actor, models.ActionSubmissionDeleted, models.TargetSubmission, id,
			models.JSONMap{"status": string(sub.Status), "title": sub.Title}, nil)
	})
}

// UploadFile stores a manuscript or supplementary file and attaches it
func (s *submissionService) UploadFile(ctx context.Context, actor models.Actor, id string, kind models.FileKind, name string, data []byte) (*models.UploadResult, error) {
	if _, err := s.authz.RequireAuthor(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateUpload(kind, name, int64(len(data)), s.maxUploadSize); err != nil {
		return nil, err
	}

	// Check ownership and state before writing the blob
	current, err := s.runner.Repos().Submission.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.NewNotFound("submission", id)
	}
	if current.AuthorID != actor.UserID {
		return nil, apperrors.NewAuthorization("only the submission's author may do this")
	}
	if !editable(current.Status) {
		return nil, apperrors.NewValidation("files can only be uploaded to drafts or submissions awaiting revision")
	}

	locator, err := s.blobs.Put(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	result := &models.UploadResult{FileType: kind, Locator: locator}
	err = s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		sub, err := lockOwned(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if !editable(sub.Status) {
			return apperrors.NewValidation("files can only be uploaded to drafts or submissions awaiting revision")
		}

		switch kind {
		case models.FileManuscript:
			sub.ManuscriptLocator = locator
			if err := repos.Submission.Save(ctx, sub, sub.Status); err != nil {
				return err
			}
		case models.FileSupplementary:
			f := &models.SupplementaryFile{
				ID:           uuid.NewString(),
				SubmissionID: sub.ID,
				Name:         name,
				Locator:      locator,
				CreatedAt:    s.now(),
			}
			if err := repos.Submission.AddSupplementaryFile(ctx, f); err != nil {
				return err
			}
			result.ID = f.ID
		}
		return s.audit(ctx, repos, actor, models.ActionFileUploaded, models.TargetSubmission, sub.ID,
			nil, models.JSONMap{"file_type": string(kind), "name": name, "locator": locator})
	})
	if err != nil {
		return nil, err
	}

	if result.URL, err = s.blobs.URL(ctx, locator); err != nil {
		s.log.Warn().Err(err).Str("locator", locator).Msg("Failed to resolve file URL")
	}
	s.log.Info().Str("submission_id", id).Str("file_type", string(kind)).Int("bytes", len(data)).Msg("File uploaded")
	return result, nil
}

// Submit moves a ready draft to submitted and creates version 1
func (s *submissionService) Submit(ctx context.Context, actor models.Actor, id string) (*models.Submission, error) {
	if _, err := s.authz.RequireAuthor(ctx, actor); err != nil {
		return nil, err
	}

	var sub *models.Submission
	err := s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		sub, err = lockOwned(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if sub.Status == models.SubmissionDraft {
			if err := workflow.CheckSubmitReadiness(sub); err != nil {
				return err
			}
		}
		if err := workflow.SubmissionTransitions.ValidateTransition(sub.Status, models.SubmissionSubmitted); err != nil {
			return err
		}
		if _, err := s.createVersion(ctx, repos, sub); err != nil {
			return err
		}
		return s.transitionSubmission(ctx, repos, actor, sub, submissionChange{to: models.SubmissionSubmitted})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("submission_id", id).Msg("Submission submitted")
	return sub, nil
}

// Resubmit moves a revision_required submission to resubmitted and creates the next version
func (s *submissionService) Resubmit(ctx context.Context, actor models.Actor, id string) (*models.Submission, error) {
	if _, err := s.authz.RequireAuthor(ctx, actor); err != nil {
		return nil, err
	}

	var sub *models.Submission
	err := s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		sub, err = lockOwned(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		if err := workflow.SubmissionTransitions.ValidateTransition(sub.Status, models.SubmissionResubmitted); err != nil {
			return err
		}
		if sub.ManuscriptLocator == "" {
			return apperrors.Field("manuscript", "manuscript file is required")
		}
		v, err := s.createVersion(ctx, repos, sub)
		if err != nil {
			return err
		}
		return s.transitionSubmission(ctx, repos, actor, sub, submissionChange{
			to:    models.SubmissionResubmitted,
			extra: models.JSONMap{"version_number": v.VersionNumber},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("submission_id", id).Msg("Submission resubmitted")
	return sub, nil
}

// Withdraw moves any non-terminal submission to withdrawn
func (s *submissionService) Withdraw(ctx context.Context, actor models.Actor, id string) (*models.Submission, error) {
	if _, err := s.authz.RequireAuthor(ctx, actor); err != nil {
		return nil, err
	}

	var sub *models.Submission
	err := s.runner.WithTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		sub, err = lockOwned(ctx, repos, actor, id)
		if err != nil {
			return err
		}
		return s.transitionSubmission(ctx, repos, actor, sub, submissionChange{to: models.SubmissionWithdrawn})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Get returns one of the actor's submissions
func (s *submissionService) Get(ctx context.Context, actor models.Actor, id string) (*models.Submission, error) {
	if _, err := s.authz.RequireAuthor(ctx, actor); err != nil {
		return nil, err
	}
	sub, err := s.runner.Repos().Submission.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.AuthorID != actor.UserID {
		return nil, apperrors.NewNotFound("submission", id)
	}
	return sub, nil
}

// ListMine returns the actor's submissions, newest first
func (s *submissionService) ListMine(ctx context.Context, actor models.Actor) ([]*models.Submission, error) {
	if _, err := s.authz.RequireAuthor(ctx, actor); err != nil {
		return nil, err
	}
	return s.runner.Repos().Submission.ListByAuthor(ctx, actor.UserID)
}

// ListVersions returns the snapshots of one of the actor's submissions
func (s *submissionService) ListVersions(ctx context.Context, actor models.Actor, id string) ([]*models.SubmissionVersion, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.runner.Repos().Version.List(ctx, id)
}

// ListTopicAreas returns every topic area
func (s *submissionService) ListTopicAreas(ctx context.Context) ([]*models.TopicArea, error) {
	return s.runner.Repos().TopicArea.List(ctx)
}
