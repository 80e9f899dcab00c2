package users

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/storefront/storefront/backend/auth-service/internal/apperr"
	"github.com/storefront/storefront/backend/auth-service/internal/events"
	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainHasher avoids bcrypt cost in unit tests.
type plainHasher struct{ err error }

func (h plainHasher) Hash(p string) (string, error) { return "hashed:" + p, h.err }

type recordingPublisher struct{ got []events.Event }

func (r *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	r.got = append(r.got, e)
	return nil
}

type failingRepo struct{ err error }

func (f failingRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, f.err
}
func (f failingRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return nil, f.err
}
func (f failingRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	return nil, f.err
}
func (f failingRepo) AttachExternalID(ctx context.Context, id int64, ext string) (*models.User, error) {
	return nil, f.err
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("a@x.com"))
	assert.False(t, ValidateEmail(""))
	assert.False(t, ValidateEmail("not-an-email"))
	assert.False(t, ValidateEmail("Alice <a@x.com>"))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewService(NewMemoryUserRepository(), plainHasher{}).WithPublisher(pub)

	u, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: " A@X.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	require.NotNil(t, u.PasswordHash)
	assert.Equal(t, "hashed:secret123", *u.PasswordHash)
	assert.False(t, u.IsLinked())

	require.Len(t, pub.got, 1)
	assert.Equal(t, events.UserRegistered, pub.got[0].Type)
	assert.Equal(t, u.ID, pub.got[0].UserID)

	found, err := svc.FindByEmail(ctx, "a@x.COM")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, u.ID, found.ID)
}

func TestRegister_Validation(t *testing.T) {
	svc := NewService(NewMemoryUserRepository(), plainHasher{})
	cases := map[string]struct {
		in    RegisterInput
		field string
	}{
		"short username": {RegisterInput{Username: "al", Email: "a@x.com", Password: "secret123"}, "username"},
		"long username":  {RegisterInput{Username: "abcdefghijklm", Email: "a@x.com", Password: "secret123"}, "username"},
		"bad chars":      {RegisterInput{Username: "al ice", Email: "a@x.com", Password: "secret123"}, "username"},
		"bad email":      {RegisterInput{Username: "alice", Email: "nope", Password: "secret123"}, "email"},
		"short password": {RegisterInput{Username: "alice", Email: "a@x.com", Password: "short"}, "password"},
		"long password":  {RegisterInput{Username: "alice", Email: "a@x.com", Password: strings.Repeat("p", 73)}, "password"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.in)
			require.True(t, apperr.Is(err, apperr.KindInvalidInput), "got %v", err)
			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tc.field, ae.Context["field"])
		})
	}
}

func TestRegister_Conflicts(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryUserRepository(), plainHasher{})
	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice2", Email: "A@x.com", Password: "secret123"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "b@x.com", Password: "secret123"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestRegister_HashFailure(t *testing.T) {
	svc := NewService(NewMemoryUserRepository(), plainHasher{err: errors.New("boom")})
	_, err := svc.Register(context.Background(), RegisterInput{Username: "alice", Email: "a@x.com", Password: "secret123"})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestService_StorageErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(failingRepo{err: errors.New("connection refused")}, plainHasher{})

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "secret123"})
	assert.True(t, apperr.Is(err, apperr.KindStorageUnavailable))

	_, err = svc.GetByID(ctx, 1)
	assert.True(t, apperr.Is(err, apperr.KindStorageUnavailable))

	_, err = svc.FindByEmail(ctx, "a@x.com")
	assert.True(t, apperr.Is(err, apperr.KindStorageUnavailable))
}

func TestGetByID_NotFound(t *testing.T) {
	svc := NewService(NewMemoryUserRepository(), plainHasher{})
	_, err := svc.GetByID(context.Background(), 42)
	assert.True(t, apperr.Is(err, apperr.KindUserNotFound))
}
