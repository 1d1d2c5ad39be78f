package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/google/uuid"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	slugRegex  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

const (
	maxTitleLength    = 500
	maxKeywordLength  = 100
	maxFileNameLength = 255
)

// Validator checks action input before any state is read or written
type Validator struct {
	now func() time.Time
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateDraftPatch validates author edits to a submission
func (v *Validator) ValidateDraftPatch(p *models.SubmissionPatch) error {
	var errors []apperrors.FieldError

	// Validate title
	if p.Title != nil && len(*p.Title) > maxTitleLength {
		errors = append(errors, apperrors.FieldError{
			Field:   "title",
			Message: fmt.Sprintf("title exceeds maximum of %d characters", maxTitleLength),
		})
	}

	// Validate keywords
	if p.Keywords != nil {
		kept := 0
		for _, k := range *p.Keywords {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			kept++
			if len(k) > maxKeywordLength {
				errors = append(errors, apperrors.FieldError{Field: "keywords", Message: "keyword is too long", Value: k})
			}
		}
		if kept > models.MaxKeywords {
			errors = append(errors, apperrors.FieldError{
				Field:   "keywords",
				Message: fmt.Sprintf("at most %d keywords are allowed (has %d)", models.MaxKeywords, kept),
			})
		}
	}

	// Validate topic_area_id (FK checked by the caller)
	if p.TopicAreaID != nil && *p.TopicAreaID != "" && !isValidUUID(*p.TopicAreaID) {
		errors = append(errors, apperrors.FieldError{Field: "topic_area_id", Message: "invalid UUID format", Value: *p.TopicAreaID})
	}

	return toError("invalid submission fields", errors)
}

// ValidateUpload validates an uploaded file's metadata
func (v *Validator) ValidateUpload(kind models.FileKind, name string, size, maxSize int64) error {
	var errors []apperrors.FieldError

	if kind != models.FileManuscript && kind != models.FileSupplementary {
		errors = append(errors, apperrors.FieldError{
			Field:   "file_type",
			Message: "file_type must be one of: manuscript, supplementary",
			Value:   string(kind),
		})
	}
	if name == "" {
		errors = append(errors, apperrors.FieldError{Field: "file", Message: "file is required"})
	} else if len(name) > maxFileNameLength {
		errors = append(errors, apperrors.FieldError{Field: "file", Message: "file name is too long"})
	}
	if size == 0 {
		errors = append(errors, apperrors.FieldError{Field: "file", Message: "file is empty"})
	} else if maxSize > 0 && size > maxSize {
		errors = append(errors, apperrors.FieldError{
			Field:   "file",
			Message: fmt.Sprintf("file exceeds maximum size of %d bytes", maxSize),
		})
	}

	return toError("invalid upload", errors)
}

// ValidateDeskReject requires a non-blank reason
func (v *Validator) ValidateDeskReject(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperrors.Field("reason", "reason is required")
	}
	return nil
}

// ValidateInvite requires exactly one of reviewer_user_id and reviewer_email
func (v *Validator) ValidateInvite(req *models.InviteRequest) error {
	var errors []apperrors.FieldError

	userID := strings.TrimSpace(req.ReviewerUserID)
	email := strings.TrimSpace(req.ReviewerEmail)

	switch {
	case userID == "" && email == "":
		errors = append(errors, apperrors.FieldError{Field: "reviewer", Message: "reviewer_user_id or reviewer_email is required"})
	case userID != "" && email != "":
		errors = append(errors, apperrors.FieldError{Field: "reviewer", Message: "provide only one of reviewer_user_id or reviewer_email"})
	case userID != "" && !isValidUUID(userID):
		errors = append(errors, apperrors.FieldError{Field: "reviewer_user_id", Message: "invalid UUID format", Value: userID})
	case email != "" && !emailRegex.MatchString(email):
		errors = append(errors, apperrors.FieldError{Field: "reviewer_email", Message: "invalid email format", Value: email})
	}

	// Validate due_date
	if req.DueDate != nil && req.DueDate.Before(v.now()) {
		errors = append(errors, apperrors.FieldError{Field: "due_date", Message: "due_date must be in the future"})
	}

	return toError("invalid invitation", errors)
}

// ValidateDecision validates an editorial decision
func (v *Validator) ValidateDecision(req *models.DecisionRequest) error {
	switch req.Decision {
	case models.DecisionAccept, models.DecisionReject, models.DecisionRevisionRequired:
		return nil
	case models.DecisionNone:
		return apperrors.Field("decision", "decision is required")
	}
	return apperrors.NewValidation("invalid decision", apperrors.FieldError{
		Field:   "decision",
		Message: "decision must be one of: accept, reject, revision_required",
		Value:   string(req.Decision),
	})
}

// ValidateReview validates a reviewer's structured verdict
func (v *Validator) ValidateReview(in *models.ReviewInput) error {
	var errors []apperrors.FieldError

	if in.Recommendation == "" {
		errors = append(errors, apperrors.FieldError{Field: "recommendation", Message: "recommendation is required"})
	} else if !models.ValidRecommendations[in.Recommendation] {
		errors = append(errors, apperrors.FieldError{
			Field:   "recommendation",
			Message: "invalid recommendation, must be one of: accept, minor_revision, major_revision, reject",
			Value:   string(in.Recommendation),
		})
	}

	return toError("invalid review", errors)
}

// ValidateToken rejects blank accept tokens
func (v *Validator) ValidateToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.Field("token", "token is required")
	}
	return nil
}

// ValidateTopicArea validates a topic area record
func (v *Validator) ValidateTopicArea(t *models.TopicArea) error {
	var errors []apperrors.FieldError
	if strings.TrimSpace(t.Name) == "" {
		errors = append(errors, apperrors.FieldError{Field: "name", Message: "name is required"})
	}
	if !slugRegex.MatchString(t.Slug) {
		errors = append(errors, apperrors.FieldError{
			Field:   "slug",
			Message: "slug must be kebab-case (lowercase letters, numbers, hyphens)",
			Value:   t.Slug,
		})
	}
	return toError("invalid topic area", errors)
}

func toError(message string, fields []apperrors.FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return apperrors.NewValidation(message, fields...)
}

// isValidUUID checks if a string is a valid UUID
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
