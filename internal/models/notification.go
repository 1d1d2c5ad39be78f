package models

import (
	"time"
)

// OutboxStatus represents the status of a queued notification
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxSent       OutboxStatus = "sent"
	OutboxSkipped    OutboxStatus = "skipped"
	OutboxFailed     OutboxStatus = "failed"
	OutboxFannedOut  OutboxStatus = "fanned_out"
)

// Audience says who an outbox item is addressed to
type Audience string

const (
	// AudienceRecipient delivers to the Recipient email
	AudienceRecipient Audience = "recipient"
	// AudienceEditors is expanded at dispatch time to every approved editor
	AudienceEditors Audience = "editors"
)

// Notification event types
const (
	EventSubmissionReceived      = "submission_received"
	EventSubmissionStatusChanged = "submission_status_changed"
	EventDecisionAccepted        = "decision_accepted"
	EventRevisionRequested       = "revision_requested"
	EventSubmissionRejected      = "rejected"
	EventSubmissionPublished     = "published"
	EventReviewerInvited         = "reviewer_invited"
	EventReviewerAccepted        = "reviewer_accepted"
	EventReviewerDeclined        = "reviewer_declined"
	EventReviewSubmitted         = "review_submitted"
	EventReviewReminder          = "review_reminder"
)

// NotificationRequest is the input to the dispatcher's enqueue
type NotificationRequest struct {
	EventType      string
	Recipient      string
	Audience       Audience
	UserID         *string
	Subject        string
	Body           string
	Payload        JSONMap
	IdempotencyKey string
}

// OutboxItem is a durable queued notification drained by the dispatcher
type OutboxItem struct {
	ID             string       `json:"id" db:"id"`
	ParentID       *string      `json:"parent_id,omitempty" db:"parent_id"`
	EventType      string       `json:"event_type" db:"event_type"`
	Audience       Audience     `json:"audience" db:"audience"`
	Recipient      string       `json:"recipient" db:"recipient"`
	UserID         *string      `json:"user_id,omitempty" db:"user_id"`
	Subject        string       `json:"subject" db:"subject"`
	Body           string       `json:"body" db:"body"`
	Payload        JSONMap      `json:"payload,omitempty" db:"payload"`
	IdempotencyKey string       `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Status         OutboxStatus `json:"status" db:"status"`
	Attempts       int          `json:"attempts" db:"attempts"`
	NextAttemptAt  time.Time    `json:"next_attempt_at" db:"next_attempt_at"`
	LastError      string       `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

// RecordStatus is the state of a Notification or EmailLog record
type RecordStatus string

const (
	RecordQueued RecordStatus = "queued"
	RecordSent   RecordStatus = "sent"
	RecordFailed RecordStatus = "failed"
)

// Notification is the business event created for one delivery attempt
type Notification struct {
	ID             string       `json:"id" db:"id"`
	OutboxID       string       `json:"outbox_id" db:"outbox_id"`
	UserID         *string      `json:"user_id,omitempty" db:"user_id"`
	EventType      string       `json:"event_type" db:"event_type"`
	Payload        JSONMap      `json:"payload,omitempty" db:"payload"`
	Status         RecordStatus `json:"status" db:"status"`
	IdempotencyKey string       `json:"idempotency_key,omitempty" db:"idempotency_key"`
	SentAt         *time.Time   `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// EmailLog is the delivery attempt paired with a Notification
type EmailLog struct {
	ID                string       `json:"id" db:"id"`
	NotificationID    string       `json:"notification_id" db:"notification_id"`
	ToEmail           string       `json:"to_email" db:"to_email"`
	Subject           string       `json:"subject" db:"subject"`
	Body              string       `json:"body" db:"body"`
	ProviderMessageID string       `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Status            RecordStatus `json:"status" db:"status"`
	Error             string       `json:"error,omitempty" db:"error"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}

// DeliveryStatus is the observable outcome of one delivery attempt
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliverySkipped DeliveryStatus = "skipped"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryOutcome reports what a single delivery attempt did
type DeliveryOutcome struct {
	Status         DeliveryStatus `json:"status"`
	Reason         string         `json:"reason,omitempty"`
	NotificationID string         `json:"notification_id,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
}

// SkipReasonIdempotent marks a skip caused by an earlier sent record with the same key
const SkipReasonIdempotent = "idempotent"
