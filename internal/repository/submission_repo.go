package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

const submissionColumns = `
	id, author_id, status,
	originality_confirmation, originality_confirmed_at,
	plagiarism_agreement, plagiarism_agreed_at,
	ethics_compliance, ethics_confirmed_at,
	copyright_agreement, copyright_agreed_at,
	title, abstract, keywords, topic_area_id, manuscript_locator,
	desk_reject_reason, editorial_decision, decision_letter,
	created_at, updated_at`

// submissionRepo is the concrete implementation of SubmissionRepository
type submissionRepo struct {
	db database.DBTX
}

// NewSubmissionRepo creates a new submission repository
func NewSubmissionRepo(db database.DBTX) SubmissionRepository {
	return &submissionRepo{db: db}
}

// Create inserts a new submission
func (r *submissionRepo) Create(ctx context.Context, s *models.Submission) error {
	keywords, err := jsonValue(keywordsOrEmpty(s.Keywords))
	if err != nil {
		return err
	}
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.AuthorID, s.Status,
		s.OriginalityConfirmation, s.OriginalityConfirmedAt,
		s.PlagiarismAgreement, s.PlagiarismAgreedAt,
		s.EthicsCompliance, s.EthicsConfirmedAt,
		s.CopyrightAgreement, s.CopyrightAgreedAt,
		s.Title, s.Abstract, keywords, s.TopicAreaID, s.ManuscriptLocator,
		s.DeskRejectReason, s.EditorialDecision, s.DecisionLetter,
		s.CreatedAt, s.UpdatedAt,
	)
	return wrapErr(err, "create submission")
}

// GetByID retrieves a submission by ID
func (r *submissionRepo) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	return r.getOne(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
}

// GetForUpdate retrieves a submission and locks its row
func (r *submissionRepo) GetForUpdate(ctx context.Context, id string) (*models.Submission, error) {
	return r.getOne(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id)
}

func (r *submissionRepo) getOne(ctx context.Context, query, id string) (*models.Submission, error) {
	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "get submission")
	}
	files, err := r.ListSupplementaryFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	s.SupplementaryFiles = files
	return s, nil
}

// Save updates a submission guarded by its expected current status
func (r *submissionRepo) Save(ctx context.Context, s *models.Submission, expected models.SubmissionStatus) error {
	keywords, err := jsonValue(keywordsOrEmpty(s.Keywords))
	if err != nil {
		return err
	}
	s.UpdatedAt = time.Now()
	query := `
		UPDATE submissions SET
			status = $1,
			originality_confirmation = $2, originality_confirmed_at = $3,
			plagiarism_agreement = $4, plagiarism_agreed_at = $5,
			ethics_compliance = $6, ethics_confirmed_at = $7,
			copyright_agreement = $8, copyright_agreed_at = $9,
			title = $10, abstract = $11, keywords = $12, topic_area_id = $13,
			manuscript_locator = $14, desk_reject_reason = $15,
			editorial_decision = $16, decision_letter = $17, updated_at = $18
		WHERE id = $19 AND status = $20
	`
	result, err := r.db.ExecContext(ctx, query,
		s.Status,
		s.OriginalityConfirmation, s.OriginalityConfirmedAt,
		s.PlagiarismAgreement, s.PlagiarismAgreedAt,
		s.EthicsCompliance, s.EthicsConfirmedAt,
		s.CopyrightAgreement, s.CopyrightAgreedAt,
		s.Title, s.Abstract, keywords, s.TopicAreaID,
		s.ManuscriptLocator, s.DeskRejectReason,
		s.EditorialDecision, s.DecisionLetter, s.UpdatedAt,
		s.ID, expected,
	)
	if err != nil {
		return wrapErr(err, "save submission")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NewConflict("submission %s is no longer %s", s.ID, expected)
	}
	return nil
}

// Delete removes a draft submission; other statuses are never deleted
func (r *submissionRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return wrapErr(err, "delete submission")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NewConflict("submission %s is not a draft", id)
	}
	return nil
}

// ListByAuthor returns an author's submissions, newest first
func (r *submissionRepo) ListByAuthor(ctx context.Context, authorID string) ([]*models.Submission, error) {
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE author_id = $1 ORDER BY created_at DESC`, authorID)
}

// List returns submissions in status, or every non-draft submission when status is empty
func (r *submissionRepo) List(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error) {
	if status == "" {
		return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE status <> 'draft' ORDER BY updated_at DESC`)
	}
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE status = $1 ORDER BY updated_at DESC`, status)
}

func (r *submissionRepo) list(ctx context.Context, query string, args ...any) ([]*models.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err, "list submissions")
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// AddSupplementaryFile attaches a supplementary file to a submission
func (r *submissionRepo) AddSupplementaryFile(ctx context.Context, f *models.SupplementaryFile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO submission_supplementary_files (id, submission_id, name, locator, created_at) VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.SubmissionID, f.Name, f.Locator, f.CreatedAt,
	)
	return wrapErr(err, "add supplementary file")
}

// ListSupplementaryFiles returns a submission's supplementary files in upload order
func (r *submissionRepo) ListSupplementaryFiles(ctx context.Context, submissionID string) ([]models.SupplementaryFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, submission_id, name, locator, created_at FROM submission_supplementary_files
		 WHERE submission_id = $1 ORDER BY created_at, id`, submissionID)
	if err != nil {
		return nil, wrapErr(err, "list supplementary files")
	}
	defer rows.Close()

	files := []models.SupplementaryFile{}
	for rows.Next() {
		var f models.SupplementaryFile
		if err := rows.Scan(&f.ID, &f.SubmissionID, &f.Name, &f.Locator, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var s models.Submission
	var originalityAt, plagiarismAt, ethicsAt, copyrightAt sql.NullTime
	var topicAreaID sql.NullString
	var keywords []byte

	err := row.Scan(
		&s.ID, &s.AuthorID, &s.Status,
		&s.OriginalityConfirmation, &originalityAt,
		&s.PlagiarismAgreement, &plagiarismAt,
		&s.EthicsCompliance, &ethicsAt,
		&s.CopyrightAgreement, &copyrightAt,
		&s.Title, &s.Abstract, &keywords, &topicAreaID, &s.ManuscriptLocator,
		&s.DeskRejectReason, &s.EditorialDecision, &s.DecisionLetter,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.OriginalityConfirmedAt = timePtr(originalityAt)
	s.PlagiarismAgreedAt = timePtr(plagiarismAt)
	s.EthicsConfirmedAt = timePtr(ethicsAt)
	s.CopyrightAgreedAt = timePtr(copyrightAt)
	s.TopicAreaID = strPtr(topicAreaID)
	s.Keywords = []string{}
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &s.Keywords); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func keywordsOrEmpty(k []string) []string {
	if k == nil {
		return []string{}
	}
	return k
}
