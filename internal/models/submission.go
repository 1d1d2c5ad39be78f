package models

import (
	"time"
)

// SubmissionStatus is the workflow state of a manuscript
type SubmissionStatus string

const (
	SubmissionDraft            SubmissionStatus = "draft"
	SubmissionSubmitted        SubmissionStatus = "submitted"
	SubmissionScreening        SubmissionStatus = "screening"
	SubmissionDeskRejected     SubmissionStatus = "desk_rejected"
	SubmissionUnderReview      SubmissionStatus = "under_review"
	SubmissionRevisionRequired SubmissionStatus = "revision_required"
	SubmissionResubmitted      SubmissionStatus = "resubmitted"
	SubmissionDecisionPending  SubmissionStatus = "decision_pending"
	SubmissionAccepted         SubmissionStatus = "accepted"
	SubmissionRejected         SubmissionStatus = "rejected"
	SubmissionPublished        SubmissionStatus = "published"
	SubmissionWithdrawn        SubmissionStatus = "withdrawn"
)

// AllSubmissionStatuses lists every submission status in workflow order
var AllSubmissionStatuses = []SubmissionStatus{
	SubmissionDraft,
	SubmissionSubmitted,
	SubmissionScreening,
	SubmissionDeskRejected,
	SubmissionUnderReview,
	SubmissionRevisionRequired,
	SubmissionResubmitted,
	SubmissionDecisionPending,
	SubmissionAccepted,
	SubmissionRejected,
	SubmissionPublished,
	SubmissionWithdrawn,
}

// EditorialDecision is the outcome recorded on a decision_pending submission
type EditorialDecision string

const (
	DecisionNone             EditorialDecision = ""
	DecisionAccept           EditorialDecision = "accept"
	DecisionReject           EditorialDecision = "reject"
	DecisionRevisionRequired EditorialDecision = "revision_required"
)

// MaxKeywords is the maximum number of keywords a submission may carry
const MaxKeywords = 10

// MinKeywordsToSubmit is the number of keywords required to leave draft
const MinKeywordsToSubmit = 3

// Submission represents a manuscript and its workflow state
type Submission struct {
	ID       string           `json:"id" db:"id"`
	AuthorID string           `json:"author_id" db:"author_id"`
	Status   SubmissionStatus `json:"status" db:"status"`

	OriginalityConfirmation bool       `json:"originality_confirmation" db:"originality_confirmation"`
	OriginalityConfirmedAt  *time.Time `json:"originality_confirmed_at,omitempty" db:"originality_confirmed_at"`
	PlagiarismAgreement     bool       `json:"plagiarism_agreement" db:"plagiarism_agreement"`
	PlagiarismAgreedAt      *time.Time `json:"plagiarism_agreed_at,omitempty" db:"plagiarism_agreed_at"`
	EthicsCompliance        bool       `json:"ethics_compliance" db:"ethics_compliance"`
	EthicsConfirmedAt       *time.Time `json:"ethics_confirmed_at,omitempty" db:"ethics_confirmed_at"`
	CopyrightAgreement      bool       `json:"copyright_agreement" db:"copyright_agreement"`
	CopyrightAgreedAt       *time.Time `json:"copyright_agreed_at,omitempty" db:"copyright_agreed_at"`

	Title       string   `json:"title" db:"title"`
	Abstract    string   `json:"abstract" db:"abstract"`
	Keywords    []string `json:"keywords" db:"keywords"` // Stored as JSONB
	TopicAreaID *string  `json:"topic_area_id,omitempty" db:"topic_area_id"`

	ManuscriptLocator  string              `json:"manuscript_locator,omitempty" db:"manuscript_locator"`
	SupplementaryFiles []SupplementaryFile `json:"supplementary_files" db:"-"`

	DeskRejectReason  string            `json:"desk_reject_reason" db:"desk_reject_reason"`
	EditorialDecision EditorialDecision `json:"editorial_decision" db:"editorial_decision"`
	DecisionLetter    string            `json:"decision_letter" db:"decision_letter"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SupplementaryFile is an optional file attached alongside the manuscript
type SupplementaryFile struct {
	ID           string    `json:"id" db:"id"`
	SubmissionID string    `json:"submission_id" db:"submission_id"`
	Name         string    `json:"name" db:"name"`
	Locator      string    `json:"locator" db:"locator"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// FileSnapshot is a {name, url} pair frozen into a SubmissionVersion
type FileSnapshot struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SubmissionVersion is an immutable snapshot taken on every submit/resubmit
type SubmissionVersion struct {
	ID                    string         `json:"id" db:"id"`
	SubmissionID          string         `json:"submission_id" db:"submission_id"`
	VersionNumber         int            `json:"version_number" db:"version_number"`
	ManuscriptLocator     string         `json:"manuscript_locator" db:"manuscript_locator"`
	SupplementarySnapshot []FileSnapshot `json:"supplementary_files_snapshot" db:"supplementary_snapshot"`
	CreatedAt             time.Time      `json:"created_at" db:"created_at"`
}

// TopicArea categorizes a manuscript
type TopicArea struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// SubmissionPatch carries author edits; nil fields are left unchanged
type SubmissionPatch struct {
	Title                   *string   `json:"title"`
	Abstract                *string   `json:"abstract"`
	Keywords                *[]string `json:"keywords"`
	TopicAreaID             *string   `json:"topic_area_id"`
	OriginalityConfirmation *bool     `json:"originality_confirmation"`
	PlagiarismAgreement     *bool     `json:"plagiarism_agreement"`
	EthicsCompliance        *bool     `json:"ethics_compliance"`
	CopyrightAgreement      *bool     `json:"copyright_agreement"`
}

// FileKind distinguishes uploaded manuscript files from supplementary ones
type FileKind string

const (
	FileManuscript    FileKind = "manuscript"
	FileSupplementary FileKind = "supplementary"
)

// UploadResult is returned after a file is stored for a submission
type UploadResult struct {
	FileType FileKind `json:"file_type"`
	Locator  string   `json:"locator"`
	URL      string   `json:"url"`
	ID       string   `json:"id,omitempty"`
}

// SubmissionDetail is a submission with its versions and review assignments
type SubmissionDetail struct {
	*Submission
	Versions    []*SubmissionVersion `json:"versions"`
	Assignments []*ReviewAssignment  `json:"review_assignments"`
}
