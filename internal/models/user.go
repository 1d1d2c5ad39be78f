package models

import (
	"time"
)

// Role names a capability a user may hold
type Role string

const (
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
	RoleEditor   Role = "editor"
)

// ApprovalStatus tracks whether a requested reviewer/editor role was granted
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "none"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// User represents a user in the system
type User struct {
	ID             string         `json:"id" db:"id"`
	Email          string         `json:"email" db:"email"`
	FullName       string         `json:"full_name" db:"full_name"`
	IsAuthor       bool           `json:"is_author" db:"is_author"`
	ReviewerStatus ApprovalStatus `json:"reviewer_status" db:"reviewer_status"`
	EditorStatus   ApprovalStatus `json:"editor_status" db:"editor_status"`
	Active         bool           `json:"active" db:"active"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsApprovedReviewer reports whether the user may act as a reviewer
func (u *User) IsApprovedReviewer() bool {
	return u != nil && u.Active && u.ReviewerStatus == ApprovalApproved
}

// IsApprovedEditor reports whether the user may act as an editor
func (u *User) IsApprovedEditor() bool {
	return u != nil && u.Active && u.EditorStatus == ApprovalApproved
}

// CanAuthor reports whether the user may own submissions
func (u *User) CanAuthor() bool {
	return u != nil && u.Active && u.IsAuthor
}

// InProgress reports whether the reserving request has not finished yet
func (r *RequestReplay) InProgress() bool {
	return r.StatusCode == 0
}

// Actor is the authenticated caller of an action
type Actor struct {
	UserID string
	Email  string
}

// RequestReplay is a stored response for a client-supplied Idempotency-Key
type RequestReplay struct {
	ActorID    string    `json:"actor_id" db:"actor_id"`
	Key        string    `json:"key" db:"key"`
	Method     string    `json:"method" db:"method"`
	Path       string    `json:"path" db:"path"`
	StatusCode int       `json:"status_code" db:"status_code"` // 0 while the request is in progress
	Body       []byte    `json:"-" db:"body"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
