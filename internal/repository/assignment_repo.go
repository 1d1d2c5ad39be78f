package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

const assignmentColumns = `id, submission_id, submission_version_id, reviewer_id, invited_email, token,
	status, due_date, invited_at, responded_at`

type assignmentRepo struct {
	db database.DBTX
}

// NewAssignmentRepo creates a new review assignment repository
func NewAssignmentRepo(db database.DBTX) AssignmentRepository {
	return &assignmentRepo{db: db}
}

// Create inserts an invitation. The (submission, version, email) triple and
// the token are unique.
func (r *assignmentRepo) Create(ctx context.Context, a *models.ReviewAssignment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO review_assignments (`+assignmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.SubmissionID, a.SubmissionVersionID, a.ReviewerID, strings.ToLower(a.InvitedEmail), a.Token,
		a.Status, a.DueDate, a.InvitedAt, a.RespondedAt,
	)
	return wrapErr(err, "create review assignment")
}

func (r *assignmentRepo) GetByID(ctx context.Context, id string) (*models.ReviewAssignment, error) {
	return r.getOne(ctx, `SELECT `+assignmentColumns+` FROM review_assignments WHERE id = $1`, id)
}

func (r *assignmentRepo) GetForUpdate(ctx context.Context, id string) (*models.ReviewAssignment, error) {
	return r.getOne(ctx, `SELECT `+assignmentColumns+` FROM review_assignments WHERE id = $1 FOR UPDATE`, id)
}

func (r *assignmentRepo) GetByToken(ctx context.Context, token string) (*models.ReviewAssignment, error) {
	return r.getOne(ctx, `SELECT `+assignmentColumns+` FROM review_assignments WHERE token = $1`, token)
}

func (r *assignmentRepo) GetByTokenForUpdate(ctx context.Context, token string) (*models.ReviewAssignment, error) {
	return r.getOne(ctx, `SELECT `+assignmentColumns+` FROM review_assignments WHERE token = $1 FOR UPDATE`, token)
}

func (r *assignmentRepo) getOne(ctx context.Context, query, arg string) (*models.ReviewAssignment, error) {
	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "get review assignment")
	}
	return a, nil
}

// Save updates an assignment guarded by its expected current status
func (r *assignmentRepo) Save(ctx context.Context, a *models.ReviewAssignment, expected models.AssignmentStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE review_assignments SET status = $1, reviewer_id = $2, responded_at = $3
		WHERE id = $4 AND status = $5
	`, a.Status, a.ReviewerID, a.RespondedAt, a.ID, expected)
	if err != nil {
		return wrapErr(err, "save review assignment")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NewConflict("review assignment %s is no longer %s", a.ID, expected)
	}
	return nil
}

// ExistsForInvite checks whether the email was already invited to this version
func (r *assignmentRepo) ExistsForInvite(ctx context.Context, submissionID, versionID, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM review_assignments
		WHERE submission_id = $1 AND submission_version_id = $2 AND invited_email = $3)
	`, submissionID, versionID, strings.ToLower(email)).Scan(&exists)
	return exists, wrapErr(err, "check invite")
}

// ListForReviewer returns assignments bound to the user or addressed to their email
func (r *assignmentRepo) ListForReviewer(ctx context.Context, userID, email string) ([]*models.ReviewAssignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM review_assignments
		WHERE reviewer_id = $1 OR (reviewer_id IS NULL AND invited_email = $2)
		ORDER BY invited_at DESC`, userID, strings.ToLower(email))
}

func (r *assignmentRepo) ListBySubmission(ctx context.Context, submissionID string) ([]*models.ReviewAssignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM review_assignments
		WHERE submission_id = $1 ORDER BY invited_at`, submissionID)
}

// ListOverdueInvited returns invited assignments whose due date has passed
func (r *assignmentRepo) ListOverdueInvited(ctx context.Context, now time.Time) ([]*models.ReviewAssignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM review_assignments
		WHERE status = 'invited' AND due_date IS NOT NULL AND due_date < $1
		ORDER BY due_date`, now)
}

func (r *assignmentRepo) list(ctx context.Context, query string, args ...any) ([]*models.ReviewAssignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err, "list review assignments")
	}
	defer rows.Close()

	var out []*models.ReviewAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row rowScanner) (*models.ReviewAssignment, error) {
	var a models.ReviewAssignment
	var reviewerID sql.NullString
	var dueDate, respondedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.SubmissionID, &a.SubmissionVersionID, &reviewerID, &a.InvitedEmail, &a.Token,
		&a.Status, &dueDate, &a.InvitedAt, &respondedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ReviewerID = strPtr(reviewerID)
	a.DueDate = timePtr(dueDate)
	a.RespondedAt = timePtr(respondedAt)
	return &a, nil
}
