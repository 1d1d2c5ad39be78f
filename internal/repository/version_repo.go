package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

const versionColumns = `id, submission_id, version_number, manuscript_locator, supplementary_snapshot, created_at`

type versionRepo struct {
	db database.DBTX
}

// NewVersionRepo creates a new submission version repository
func NewVersionRepo(db database.DBTX) VersionRepository {
	return &versionRepo{db: db}
}

// Create appends a version; (submission_id, version_number) is unique
func (r *versionRepo) Create(ctx context.Context, v *models.SubmissionVersion) error {
	snapshot := v.SupplementarySnapshot
	if snapshot == nil {
		snapshot = []models.FileSnapshot{}
	}
	raw, err := jsonValue(snapshot)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO submission_versions (`+versionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.SubmissionID, v.VersionNumber, v.ManuscriptLocator, raw, v.CreatedAt,
	)
	return wrapErr(err, "create submission version")
}

// Latest returns the highest-numbered version, or nil if none exists
func (r *versionRepo) Latest(ctx context.Context, submissionID string) (*models.SubmissionVersion, error) {
	v, err := scanVersion(r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM submission_versions WHERE submission_id = $1
		 ORDER BY version_number DESC LIMIT 1`, submissionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "get latest version")
	}
	return v, nil
}

// List returns every version in ascending order
func (r *versionRepo) List(ctx context.Context, submissionID string) ([]*models.SubmissionVersion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM submission_versions WHERE submission_id = $1 ORDER BY version_number`, submissionID)
	if err != nil {
		return nil, wrapErr(err, "list versions")
	}
	defer rows.Close()

	var versions []*models.SubmissionVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanVersion(row rowScanner) (*models.SubmissionVersion, error) {
	var v models.SubmissionVersion
	var raw []byte
	if err := row.Scan(&v.ID, &v.SubmissionID, &v.VersionNumber, &v.ManuscriptLocator, &raw, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.SupplementarySnapshot = []models.FileSnapshot{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v.SupplementarySnapshot); err != nil {
			return nil, err
		}
	}
	return &v, nil
}
