package auth

import (
	"context"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
)

// Authorizer answers role and approval questions from the users table
type Authorizer struct {
	users repository.UserRepository
}

// NewAuthorizer creates an Authorizer
func NewAuthorizer(users repository.UserRepository) *Authorizer {
	return &Authorizer{users: users}
}

func (a *Authorizer) lookup(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, apperrors.NewAuthorization("authentication required")
	}
	u, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Active {
		return nil, apperrors.NewAuthorization("unknown or inactive user")
	}
	return u, nil
}

// IsApprovedReviewer reports whether the user holds an approved reviewer role
func (a *Authorizer) IsApprovedReviewer(ctx context.Context, userID string) (bool, error) {
	u, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsApprovedReviewer(), nil
}

// IsApprovedEditor reports whether the user holds an approved editor role
func (a *Authorizer) IsApprovedEditor(ctx context.Context, userID string) (bool, error) {
	u, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsApprovedEditor(), nil
}

// IsAuthor reports whether the user may own submissions
func (a *Authorizer) IsAuthor(ctx context.Context, userID string) (bool, error) {
	u, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.CanAuthor(), nil
}

// RequireEditor returns the actor's user record or an AuthorizationError
func (a *Authorizer) RequireEditor(ctx context.Context, actor models.Actor) (*models.User, error) {
	u, err := a.lookup(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !u.IsApprovedEditor() {
		return nil, apperrors.NewAuthorization("approved editor role required")
	}
	return u, nil
}

// RequireReviewer returns the actor's user record or an AuthorizationError
func (a *Authorizer) RequireReviewer(ctx context.Context, actor models.Actor) (*models.User, error) {
	u, err := a.lookup(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !u.IsApprovedReviewer() {
		return nil, apperrors.NewAuthorization("approved reviewer role required")
	}
	return u, nil
}

// RequireAuthor returns the actor's user record or an AuthorizationError
func (a *Authorizer) RequireAuthor(ctx context.Context, actor models.Actor) (*models.User, error) {
	u, err := a.lookup(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !u.CanAuthor() {
		return nil, apperrors.NewAuthorization("author role required")
	}
	return u, nil
}

// ApprovedEditorEmails returns the current editor recipient set
func (a *Authorizer) ApprovedEditorEmails(ctx context.Context) ([]string, error) {
	editors, err := a.users.ListApprovedEditors(ctx)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(editors))
	for _, e := range editors {
		emails = append(emails, e.Email)
	}
	return emails, nil
}
