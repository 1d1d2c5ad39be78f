package workflow

import (
	"fmt"

	"github.com/ejournal-workflow-api/internal/models"
)

// StatusChangeKey is the idempotency key for one submission edge traversal.
// version is the latest snapshot number (0 before the first submit); an edge
// repeated in a later revision cycle gets a new key.
func StatusChangeKey(submissionID string, version int, from, to models.SubmissionStatus) string {
	return fmt.Sprintf("status_%s_v%d_%s_%s", submissionID, version, from, to)
}

// AssignmentChangeKey is the idempotency key for one assignment edge traversal
func AssignmentChangeKey(assignmentID string, from, to models.AssignmentStatus) string {
	return fmt.Sprintf("assignment_%s_%s_%s", assignmentID, from, to)
}

// InviteKey is the idempotency key for an invitation email
func InviteKey(assignmentID string) string {
	return "invite_" + assignmentID
}

// Message is a rendered notification
type Message struct {
	EventType string
	Subject   string
	Body      string
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// StatusChangeMessage renders the author notification for a submission edge.
// Decision outcomes and publication have their own templates.
func StatusChangeMessage(s *models.Submission, from, to models.SubmissionStatus) Message {
	switch to {
	case models.SubmissionSubmitted:
		return Message{
			EventType: models.EventSubmissionReceived,
			Subject:   "Your submission has been received",
			Body:      fmt.Sprintf("Your submission (ID: %s) has been received and is under review.", s.ID),
		}
	case models.SubmissionAccepted:
		return Message{
			EventType: models.EventDecisionAccepted,
			Subject:   "Your submission has been accepted",
			Body:      fmt.Sprintf("Congratulations! Your submission (ID: %s) has been accepted.", s.ID),
		}
	case models.SubmissionRejected:
		return Message{
			EventType: models.EventSubmissionRejected,
			Subject:   "Update on your submission",
			Body:      fmt.Sprintf("Your submission (ID: %s) was not accepted.\n\n%s", s.ID, s.DecisionLetter),
		}
	case models.SubmissionRevisionRequired:
		return Message{
			EventType: models.EventRevisionRequested,
			Subject:   "Revision requested for your submission",
			Body:      fmt.Sprintf("Revision has been requested for your submission (ID: %s).\n\n%s", s.ID, s.DecisionLetter),
		}
	case models.SubmissionPublished:
		return Message{
			EventType: models.EventSubmissionPublished,
			Subject:   "Your submission has been published",
			Body:      fmt.Sprintf("Your submission (ID: %s) has been published.", s.ID),
		}
	}
	return Message{
		EventType: models.EventSubmissionStatusChanged,
		Subject:   fmt.Sprintf("Submission status update: %s", to),
		Body:      fmt.Sprintf("Submission %s status changed from %s to %s.", s.ID, from, to),
	}
}

// InviteMessage renders the invitation sent to the invited email
func InviteMessage(s *models.Submission, a *models.ReviewAssignment) Message {
	body := fmt.Sprintf("You have been invited to review the submission: %s. Please log in to accept or decline.", s.Title)
	if a.DueDate != nil {
		body += fmt.Sprintf("\n\nThe review is due by %s.", a.DueDate.Format("2006-01-02"))
	}
	body += fmt.Sprintf("\n\nInvitation token: %s", a.Token)
	return Message{
		EventType: models.EventReviewerInvited,
		Subject:   "Review invitation: " + truncate(s.Title, 50),
		Body:      body,
	}
}

// ReviewerResponseMessage renders the editor notification for an assignment edge
func ReviewerResponseMessage(s *models.Submission, to models.AssignmentStatus) Message {
	switch to {
	case models.AssignmentAccepted:
		return Message{
			EventType: models.EventReviewerAccepted,
			Subject:   "Reviewer accepted: " + truncate(s.Title, 50),
			Body:      fmt.Sprintf("A reviewer has accepted the invitation for submission: %s.", s.Title),
		}
	case models.AssignmentDeclined:
		return Message{
			EventType: models.EventReviewerDeclined,
			Subject:   "Reviewer declined: " + truncate(s.Title, 50),
			Body:      fmt.Sprintf("A reviewer has declined the invitation for submission: %s.", s.Title),
		}
	default:
		return Message{
			EventType: models.EventReviewSubmitted,
			Subject:   "Review submitted: " + truncate(s.Title, 50),
			Body:      fmt.Sprintf("A review has been submitted for: %s.", s.Title),
		}
	}
}

// ReminderMessage renders a review reminder
func ReminderMessage(s *models.Submission, a *models.ReviewAssignment) Message {
	due := "the given deadline"
	if a.DueDate != nil {
		due = a.DueDate.Format("2006-01-02")
	}
	return Message{
		EventType: models.EventReviewReminder,
		Subject:   "Reminder: Review due for submission - " + truncate(s.Title, 50),
		Body: fmt.Sprintf("You have a pending review for the submission %q.\n\n"+
			"Please submit your review by %s.\n\n"+
			"Login to the journal system to access your assignments.\n", s.Title, due),
	}
}
