package workflow

import (
	"strings"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/models"
)

// CheckSubmitReadiness verifies a draft has everything needed to leave draft.
// All failing clauses are reported together.
func CheckSubmitReadiness(s *models.Submission) error {
	var fields []apperrors.FieldError
	add := func(field, msg string) {
		fields = append(fields, apperrors.FieldError{Field: field, Message: msg})
	}

	if !s.OriginalityConfirmation {
		add("originality_confirmation", "originality confirmation is required")
	}
	if !s.PlagiarismAgreement {
		add("plagiarism_agreement", "plagiarism agreement is required")
	}
	if !s.EthicsCompliance {
		add("ethics_compliance", "ethics compliance is required")
	}
	if !s.CopyrightAgreement {
		add("copyright_agreement", "copyright agreement is required")
	}
	if strings.TrimSpace(s.Title) == "" {
		add("title", "title is required")
	}
	if strings.TrimSpace(s.Abstract) == "" {
		add("abstract", "abstract is required")
	}
	if len(s.Keywords) < models.MinKeywordsToSubmit {
		add("keywords", "at least 3 keywords are required")
	}
	if s.TopicAreaID == nil || *s.TopicAreaID == "" {
		add("topic_area_id", "topic area is required")
	}
	if s.ManuscriptLocator == "" {
		add("manuscript", "manuscript file is required")
	}

	if len(fields) == 0 {
		return nil
	}
	return apperrors.NewValidation("submission is not ready to submit", fields...)
}

// ApplyPatch copies the set fields of p onto s. Agreement timestamps are
// stamped the first time a flag becomes true and are never cleared.
func ApplyPatch(s *models.Submission, p *models.SubmissionPatch, now time.Time) {
	if p.Title != nil {
		s.Title = strings.TrimSpace(*p.Title)
	}
	if p.Abstract != nil {
		s.Abstract = strings.TrimSpace(*p.Abstract)
	}
	if p.Keywords != nil {
		s.Keywords = NormalizeKeywords(*p.Keywords)
	}
	if p.TopicAreaID != nil {
		if *p.TopicAreaID == "" {
			s.TopicAreaID = nil
		} else {
			id := *p.TopicAreaID
			s.TopicAreaID = &id
		}
	}

	stamp(&s.OriginalityConfirmation, &s.OriginalityConfirmedAt, p.OriginalityConfirmation, now)
	stamp(&s.PlagiarismAgreement, &s.PlagiarismAgreedAt, p.PlagiarismAgreement, now)
	stamp(&s.EthicsCompliance, &s.EthicsConfirmedAt, p.EthicsCompliance, now)
	stamp(&s.CopyrightAgreement, &s.CopyrightAgreedAt, p.CopyrightAgreement, now)
}

func stamp(flag *bool, at **time.Time, v *bool, now time.Time) {
	if v == nil {
		return
	}
	*flag = *v
	if *v && *at == nil {
		t := now
		*at = &t
	}
}

// NormalizeKeywords trims each keyword and drops empty ones
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
