package users

import (
	"context"
	"errors"

	"github.com/storefront/storefront/backend/auth-service/internal/models"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrExternalIDTaken = errors.New("external id belongs to another user")
	ErrAlreadyLinked   = errors.New("user already linked to an external id")
)

// UserRepository defines persistence operations for users. Lookups return
// (nil, nil) when no user matches. Emails are stored already normalized.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	// Create assigns ID and timestamps and returns the stored user.
	Create(ctx context.Context, u *models.User) (*models.User, error)
	// AttachExternalID sets the external id only when the user has none.
	// It returns ErrAlreadyLinked when one is already set, and (nil, nil) when
	// the user does not exist.
	AttachExternalID(ctx context.Context, id int64, externalID string) (*models.User, error)
}
