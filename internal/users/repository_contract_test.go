package users

import (
	"context"
	"testing"

	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

// runRepositoryContract exercises the behavior every UserRepository backend must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) UserRepository) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		r := newRepo(t)
		u, err := r.Create(ctx, &models.User{
			Username: "alice", Email: "a@x.com", PasswordHash: strp("h"), Role: models.RoleUser,
			Address: &models.Address{City: "Lyon", Country: "FR"},
		})
		require.NoError(t, err)
		assert.NotZero(t, u.ID)
		assert.False(t, u.CreatedAt.IsZero())

		byEmail, err := r.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, u.ID, byEmail.ID)
		require.NotNil(t, byEmail.Address)
		assert.Equal(t, "Lyon", byEmail.Address.City)

		byID, err := r.FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, "alice", byID.Username)
		assert.True(t, byID.HasPassword())
	})

	t.Run("miss is nil", func(t *testing.T) {
		r := newRepo(t)
		u, err := r.FindByEmail(ctx, "ghost@x.com")
		require.NoError(t, err)
		assert.Nil(t, u)
		u, err = r.FindByID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("unique email and username", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Create(ctx, &models.User{Username: "bob", Email: "b@x.com", Role: models.RoleUser})
		require.NoError(t, err)
		_, err = r.Create(ctx, &models.User{Username: "bob2", Email: "b@x.com", Role: models.RoleUser})
		assert.ErrorIs(t, err, ErrEmailTaken)
		_, err = r.Create(ctx, &models.User{Username: "bob", Email: "c@x.com", Role: models.RoleUser})
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("attach external id", func(t *testing.T) {
		r := newRepo(t)
		u, err := r.Create(ctx, &models.User{Username: "carol", Email: "c@x.com", PasswordHash: strp("h"), Role: models.RoleUser})
		require.NoError(t, err)

		linked, err := r.AttachExternalID(ctx, u.ID, "google-1")
		require.NoError(t, err)
		require.NotNil(t, linked)
		assert.True(t, linked.IsLinked())
		assert.True(t, linked.HasPassword(), "password survives linking")

		_, err = r.AttachExternalID(ctx, u.ID, "google-2")
		assert.ErrorIs(t, err, ErrAlreadyLinked)

		after, err := r.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "google-1", *after.ExternalID)

		missing, err := r.AttachExternalID(ctx, 999999, "google-3")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("external id is unique", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Create(ctx, &models.User{Username: "dave", Email: "d@x.com", Role: models.RoleUser, ExternalID: strp("google-9")})
		require.NoError(t, err)
		e, err := r.Create(ctx, &models.User{Username: "erin", Email: "e@x.com", Role: models.RoleUser})
		require.NoError(t, err)
		_, err = r.AttachExternalID(ctx, e.ID, "google-9")
		assert.ErrorIs(t, err, ErrExternalIDTaken)
	})

	t.Run("oauth-only account has no hash", func(t *testing.T) {
		r := newRepo(t)
		u, err := r.Create(ctx, &models.User{Username: "frank", Email: "f@x.com", Role: models.RoleUser, ExternalID: strp("google-f")})
		require.NoError(t, err)
		got, err := r.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Nil(t, got.PasswordHash)
		assert.False(t, got.HasPassword())
	})
}

func TestMemoryUserRepository_Contract(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) UserRepository { return NewMemoryUserRepository() })
}

func TestMemoryUserRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryUserRepository()
	u, err := r.Create(ctx, &models.User{Username: "alice", Email: "a@x.com", Role: models.RoleUser})
	require.NoError(t, err)
	u.Role = models.RoleAdmin

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, got.Role)

	r.SetRole(u.ID, models.RoleAdmin)
	got, err = r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
}
