package models

import (
	"time"
)

// AssignmentStatus is the lifecycle state of a reviewer invitation
type AssignmentStatus string

const (
	AssignmentInvited         AssignmentStatus = "invited"
	AssignmentAccepted        AssignmentStatus = "accepted"
	AssignmentDeclined        AssignmentStatus = "declined"
	AssignmentReviewSubmitted AssignmentStatus = "review_submitted"
	AssignmentExpired         AssignmentStatus = "expired"
)

// AllAssignmentStatuses lists every assignment status
var AllAssignmentStatuses = []AssignmentStatus{
	AssignmentInvited,
	AssignmentAccepted,
	AssignmentDeclined,
	AssignmentReviewSubmitted,
	AssignmentExpired,
}

// Recommendation is the reviewer's verdict
type Recommendation string

const (
	RecommendAccept        Recommendation = "accept"
	RecommendMinorRevision Recommendation = "minor_revision"
	RecommendMajorRevision Recommendation = "major_revision"
	RecommendReject        Recommendation = "reject"
)

// ValidRecommendations defines allowed review recommendations
var ValidRecommendations = map[Recommendation]bool{
	RecommendAccept:        true,
	RecommendMinorRevision: true,
	RecommendMajorRevision: true,
	RecommendReject:        true,
}

// ReviewAssignment binds a reviewer (user or bare email) to one submission version
type ReviewAssignment struct {
	ID                  string           `json:"id" db:"id"`
	SubmissionID        string           `json:"submission_id" db:"submission_id"`
	SubmissionVersionID string           `json:"submission_version_id" db:"submission_version_id"`
	ReviewerID          *string          `json:"reviewer_id,omitempty" db:"reviewer_id"`
	InvitedEmail        string           `json:"invited_email" db:"invited_email"`
	Token               string           `json:"token,omitempty" db:"token"`
	Status              AssignmentStatus `json:"status" db:"status"`
	DueDate             *time.Time       `json:"due_date,omitempty" db:"due_date"`
	InvitedAt           time.Time        `json:"invited_at" db:"invited_at"`
	RespondedAt         *time.Time       `json:"responded_at,omitempty" db:"responded_at"`
}

// Review is the structured verdict submitted against exactly one assignment
type Review struct {
	ID                   string         `json:"id" db:"id"`
	AssignmentID         string         `json:"assignment_id" db:"assignment_id"`
	Summary              string         `json:"summary" db:"summary"`
	Strengths            string         `json:"strengths" db:"strengths"`
	Weaknesses           string         `json:"weaknesses" db:"weaknesses"`
	ConfidentialToEditor string         `json:"confidential_to_editor" db:"confidential_to_editor"`
	Recommendation       Recommendation `json:"recommendation" db:"recommendation"`
	SubmittedAt          time.Time      `json:"submitted_at" db:"submitted_at"`
}

// InviteRequest is the editor input for inviting a reviewer
type InviteRequest struct {
	ReviewerUserID string     `json:"reviewer_user_id"`
	ReviewerEmail  string     `json:"reviewer_email"`
	DueDate        *time.Time `json:"due_date"`
}

// ReviewInput is the reviewer input for submitting a review
type ReviewInput struct {
	Summary              string         `json:"summary"`
	Strengths            string         `json:"strengths"`
	Weaknesses           string         `json:"weaknesses"`
	ConfidentialToEditor string         `json:"confidential_to_editor"`
	Recommendation       Recommendation `json:"recommendation"`
}

// DecisionRequest is the editor input for recording a decision
type DecisionRequest struct {
	Decision       EditorialDecision `json:"decision"`
	DecisionLetter string            `json:"decision_letter"`
}
