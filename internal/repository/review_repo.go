package repository

import (
	"context"
	"database/sql"

	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

type reviewRepo struct {
	db database.DBTX
}

// NewReviewRepo creates a new review repository
func NewReviewRepo(db database.DBTX) ReviewRepository {
	return &reviewRepo{db: db}
}

// Create inserts the review; assignment_id is unique so a second review is a conflict
func (r *reviewRepo) Create(ctx context.Context, rv *models.Review) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (id, assignment_id, summary, strengths, weaknesses, confidential_to_editor, recommendation, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rv.ID, rv.AssignmentID, rv.Summary, rv.Strengths, rv.Weaknesses, rv.ConfidentialToEditor, rv.Recommendation, rv.SubmittedAt)
	return wrapErr(err, "create review")
}

func (r *reviewRepo) GetByAssignment(ctx context.Context, assignmentID string) (*models.Review, error) {
	var rv models.Review
	err := r.db.QueryRowContext(ctx, `
		SELECT id, assignment_id, summary, strengths, weaknesses, confidential_to_editor, recommendation, submitted_at
		FROM reviews WHERE assignment_id = $1
	`, assignmentID).Scan(
		&rv.ID, &rv.AssignmentID, &rv.Summary, &rv.Strengths, &rv.Weaknesses,
		&rv.ConfidentialToEditor, &rv.Recommendation, &rv.SubmittedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "get review")
	}
	return &rv, nil
}
