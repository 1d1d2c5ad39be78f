package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

const userColumns = `id, email, full_name, is_author, reviewer_status, editor_status, active, created_at, updated_at`

// userRepo is the concrete implementation of UserRepository
type userRepo struct {
	db database.DBTX
}

// NewUserRepo creates a new user repository
func NewUserRepo(db database.DBTX) UserRepository {
	return &userRepo{db: db}
}

// Upsert inserts or updates a user by email
func (r *userRepo) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, full_name, is_author, reviewer_status, editor_status, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (email) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			is_author = EXCLUDED.is_author,
			reviewer_status = EXCLUDED.reviewer_status,
			editor_status = EXCLUDED.editor_status,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	_, err := r.db.ExecContext(ctx, query,
		user.ID, strings.ToLower(user.Email), user.FullName, user.IsAuthor,
		user.ReviewerStatus, user.EditorStatus, user.Active, user.CreatedAt, now,
	)
	return wrapErr(err, "upsert user")
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
}

// ListApprovedEditors returns every active, approved editor
func (r *userRepo) ListApprovedEditors(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE editor_status = 'approved' AND active ORDER BY email`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr(err, "list editors")
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *userRepo) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "get user")
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Email, &user.FullName, &user.IsAuthor,
		&user.ReviewerStatus, &user.EditorStatus, &user.Active,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
