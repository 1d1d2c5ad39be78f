// Package workflow holds the submission and review-assignment state machines.
// The tables are closed maps: every status has an entry, terminal statuses
// map to an empty set.
package workflow

import (
	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/models"
)

// Table is a finite transition table from a status to its allowed successors
type Table[S ~string] struct {
	Entity string
	Edges  map[S][]S
}

// SubmissionTransitions is the submission lifecycle
var SubmissionTransitions = Table[models.SubmissionStatus]{
	Entity: "submission",
	Edges: map[models.SubmissionStatus][]models.SubmissionStatus{
		models.SubmissionDraft:            {models.SubmissionSubmitted, models.SubmissionWithdrawn},
		models.SubmissionSubmitted:        {models.SubmissionScreening, models.SubmissionWithdrawn},
		models.SubmissionScreening:        {models.SubmissionDeskRejected, models.SubmissionUnderReview, models.SubmissionWithdrawn},
		models.SubmissionUnderReview:      {models.SubmissionDecisionPending, models.SubmissionWithdrawn},
		models.SubmissionDecisionPending:  {models.SubmissionAccepted, models.SubmissionRejected, models.SubmissionRevisionRequired, models.SubmissionWithdrawn},
		models.SubmissionRevisionRequired: {models.SubmissionResubmitted, models.SubmissionWithdrawn},
		models.SubmissionResubmitted:      {models.SubmissionUnderReview, models.SubmissionScreening, models.SubmissionWithdrawn},
		models.SubmissionAccepted:         {models.SubmissionPublished, models.SubmissionWithdrawn},
		models.SubmissionDeskRejected:     {},
		models.SubmissionRejected:         {},
		models.SubmissionPublished:        {},
		models.SubmissionWithdrawn:        {},
	},
}

// AssignmentTransitions is the review-assignment lifecycle
var AssignmentTransitions = Table[models.AssignmentStatus]{
	Entity: "review assignment",
	Edges: map[models.AssignmentStatus][]models.AssignmentStatus{
		models.AssignmentInvited:         {models.AssignmentAccepted, models.AssignmentDeclined, models.AssignmentExpired},
		models.AssignmentAccepted:        {models.AssignmentReviewSubmitted},
		models.AssignmentDeclined:        {},
		models.AssignmentReviewSubmitted: {},
		models.AssignmentExpired:         {},
	},
}

// Allowed returns the successors of from
func (t Table[S]) Allowed(from S) []S {
	return t.Edges[from]
}

// CanTransition reports whether from -> to is in the table.
// A transition to the current status is never allowed.
func (t Table[S]) CanTransition(from, to S) bool {
	if from == to {
		return false
	}
	for _, s := range t.Edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an InvalidTransitionError when from -> to is not allowed
func (t Table[S]) ValidateTransition(from, to S) error {
	if t.CanTransition(from, to) {
		return nil
	}
	allowed := make([]string, 0, len(t.Edges[from]))
	for _, s := range t.Edges[from] {
		allowed = append(allowed, string(s))
	}
	return &apperrors.InvalidTransitionError{
		Entity:  t.Entity,
		From:    string(from),
		To:      string(to),
		Allowed: allowed,
	}
}

// IsTerminal reports whether s has no outgoing transitions
func (t Table[S]) IsTerminal(s S) bool {
	return len(t.Edges[s]) == 0
}

// DecisionStatus maps an editorial decision to the submission status it produces
func DecisionStatus(d models.EditorialDecision) (models.SubmissionStatus, bool) {
	switch d {
	case models.DecisionAccept:
		return models.SubmissionAccepted, true
	case models.DecisionReject:
		return models.SubmissionRejected, true
	case models.DecisionRevisionRequired:
		return models.SubmissionRevisionRequired, true
	}
	return "", false
}
