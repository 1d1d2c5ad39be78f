package models

import (
	"time"
)

// AuditLog is an immutable record of who did what to which target
type AuditLog struct {
	ID         string    `json:"id" db:"id"`
	ActorID    *string   `json:"actor_id,omitempty" db:"actor_id"`
	ActionType string    `json:"action_type" db:"action_type"`
	TargetType string    `json:"target_type" db:"target_type"`
	TargetID   string    `json:"target_id" db:"target_id"`
	OldValue   JSONMap   `json:"old_value,omitempty" db:"old_value"`
	NewValue   JSONMap   `json:"new_value,omitempty" db:"new_value"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Audit action types
const (
	ActionSubmissionCreated = "submission_created"
	ActionSubmissionUpdated = "submission_updated"
	ActionSubmissionDeleted = "submission_deleted"
	ActionFileUploaded      = "file_uploaded"
	ActionStatusTransition  = "status_transition"
	ActionDecision          = "decision"
	ActionReviewerInvited   = "reviewer_invited"
	ActionReviewerAccepted  = "reviewer_accepted"
	ActionReviewerDeclined  = "reviewer_declined"
	ActionReviewSubmitted   = "review_submitted"
	ActionAssignmentExpired = "assignment_expired"
	ActionReminderQueued    = "review_reminder_queued"
)

// Audit target types
const (
	TargetSubmission       = "submission"
	TargetReviewAssignment = "review_assignment"
)
