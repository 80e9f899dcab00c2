package users

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/storefront/storefront/backend/auth-service/internal/apperr"
	"github.com/storefront/storefront/backend/auth-service/internal/events"
	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"github.com/storefront/storefront/backend/auth-service/internal/password"
)

const (
	MinPasswordLength = 8
	MinUsernameLength = 3
	MaxUsernameLength = 12
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,12}$`)

// PasswordHasher produces the stored form of a new password.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// Service encapsulates user-related business logic
type Service struct {
	repo      UserRepository
	hasher    PasswordHasher
	publisher events.Publisher
}

func NewService(r UserRepository, h PasswordHasher) *Service {
	return &Service{repo: r, hasher: h, publisher: events.LogPublisher{}}
}

func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

// Repository exposes the underlying directory to the auth and linking services.
func (s *Service) Repository() UserRepository { return s.repo }

// NormalizeEmail trims and lowercases an address. It is the only form stored or queried.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail reports whether email is a bare address (no display name).
func ValidateEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func ValidateUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Address  *models.Address
}

// Register creates a password account with the default role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := NormalizeEmail(in.Email)

	if !ValidateUsername(username) {
		return nil, apperr.New(apperr.KindInvalidInput, "username must be 3-12 letters, digits, '.', '_' or '-'").With("field", "username")
	}
	if !ValidateEmail(email) {
		return nil, apperr.New(apperr.KindInvalidInput, "email is not a valid address").With("field", "email")
	}
	if len(in.Password) < MinPasswordLength || len(in.Password) > password.MaxLength {
		return nil, apperr.New(apperr.KindInvalidInput, "password must be 8-72 bytes").With("field", "password")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}

	u, err := s.repo.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: &hash,
		Role:         models.RoleUser,
		Address:      in.Address,
	})
	switch {
	case errors.Is(err, ErrEmailTaken):
		return nil, apperr.New(apperr.KindConflict, "email already registered").With("field", "email")
	case errors.Is(err, ErrUsernameTaken):
		return nil, apperr.New(apperr.KindConflict, "username already taken").With("field", "username")
	case err != nil:
		return nil, apperr.Storage("create user", err)
	}

	events.Send(ctx, s.publisher, events.New(events.UserRegistered, u.ID, nil))
	return u, nil
}

// GetByID returns the user or a UserNotFound error.
func (s *Service) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage("find user", err)
	}
	if u == nil {
		return nil, apperr.New(apperr.KindUserNotFound, "user not found")
	}
	return u, nil
}

// FindByEmail normalizes email before the lookup. A miss is (nil, nil).
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, apperr.Storage("find user", err)
	}
	return u, nil
}
