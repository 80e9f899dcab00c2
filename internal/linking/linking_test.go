package linking

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/storefront/storefront/backend/auth-service/internal/apperr"
	"github.com/storefront/storefront/backend/auth-service/internal/events"
	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"github.com/storefront/storefront/backend/auth-service/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct{ got []events.Type }

func (r *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	r.got = append(r.got, e.Type)
	return nil
}

func strp(s string) *string { return &s }

func profile(sub, email string) models.ExternalProfile {
	return models.ExternalProfile{Subject: sub, Email: email, EmailVerified: true, Name: "Test"}
}

func TestResolve_CreatesNewUser(t *testing.T) {
	ctx := context.Background()
	repo := users.NewMemoryUserRepository()
	pub := &recordingPublisher{}
	l := NewLinker(repo, nil).WithPublisher(pub)

	res, err := l.Resolve(ctx, profile("g-1", " New.Person@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, "new.person@example.com", res.User.Email)
	assert.Nil(t, res.User.PasswordHash)
	assert.Equal(t, models.RoleUser, res.User.Role)
	require.NotNil(t, res.User.ExternalID)
	assert.Equal(t, "g-1", *res.User.ExternalID)
	assert.True(t, users.ValidateUsername(res.User.Username), res.User.Username)
	assert.Equal(t, []events.Type{events.UserCreatedViaOAuth}, pub.got)

	// second login with the same identity resolves to the same user
	again, err := l.Resolve(ctx, profile("g-1", "new.person@example.com"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExisting, again.Outcome)
	assert.Equal(t, res.User.ID, again.User.ID)
}

func TestResolve_LinksExistingPasswordAccount(t *testing.T) {
	ctx := context.Background()
	repo := users.NewMemoryUserRepository()
	u, err := repo.Create(ctx, &models.User{Username: "alice", Email: "a@x.com", PasswordHash: strp("h"), Role: models.RoleUser})
	require.NoError(t, err)
	pub := &recordingPublisher{}

	res, err := NewLinker(repo, nil).WithPublisher(pub).Resolve(ctx, profile("g-a", "A@x.com"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeLinked, res.Outcome)
	assert.Equal(t, u.ID, res.User.ID)
	require.NotNil(t, res.User.PasswordHash)
	assert.Equal(t, "h", *res.User.PasswordHash)
	assert.Equal(t, []events.Type{events.AccountLinked}, pub.got)
}

func TestResolve_ConflictLeavesUserUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := users.NewMemoryUserRepository()
	u, err := repo.Create(ctx, &models.User{Username: "alice", Email: "a@x.com", Role: models.RoleUser, ExternalID: strp("A")})
	require.NoError(t, err)

	_, err = NewLinker(repo, nil).Resolve(ctx, profile("B", "a@x.com"))
	assert.True(t, apperr.Is(err, apperr.KindLinkingConflict), "got %v", err)

	after, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, *u, *after)
}

func TestResolve_SubjectLinkedToOtherEmail(t *testing.T) {
	ctx := context.Background()
	repo := users.NewMemoryUserRepository()
	_, err := repo.Create(ctx, &models.User{Username: "alice", Email: "a@x.com", Role: models.RoleUser, ExternalID: strp("S")})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.User{Username: "bob", Email: "b@x.com", Role: models.RoleUser})
	require.NoError(t, err)

	_, err = NewLinker(repo, nil).Resolve(ctx, profile("S", "b@x.com"))
	assert.True(t, apperr.Is(err, apperr.KindLinkingConflict))

	_, err = NewLinker(repo, nil).Resolve(ctx, profile("S", "c@x.com"))
	assert.True(t, apperr.Is(err, apperr.KindLinkingConflict))
}

func TestResolve_Rejections(t *testing.T) {
	repo := users.NewMemoryUserRepository()
	l := NewLinker(repo, []string{" Example.com "})
	cases := map[string]models.ExternalProfile{
		"no email":       {Subject: "s", EmailVerified: true},
		"unverified":     {Subject: "s", Email: "a@example.com"},
		"no subject":     {Email: "a@example.com", EmailVerified: true},
		"domain blocked": {Subject: "s", Email: "a@other.com", EmailVerified: true},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.Resolve(context.Background(), p)
			assert.True(t, apperr.Is(err, apperr.KindOAuthRejected), "got %v", err)
		})
	}

	res, err := l.Resolve(context.Background(), profile("s", "a@EXAMPLE.com"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
}

// raceDirectory reports the email as free on first lookup, then rejects Create
// as if a concurrent sign-up won.
type raceDirectory struct {
	*users.MemoryUserRepository
	lookups int
}

func (r *raceDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.MemoryUserRepository.FindByEmail(ctx, email)
}

func TestResolve_CreateRaceFallsBackToLink(t *testing.T) {
	ctx := context.Background()
	dir := &raceDirectory{MemoryUserRepository: users.NewMemoryUserRepository()}
	u, err := dir.Create(ctx, &models.User{Username: "alice", Email: "a@x.com", Role: models.RoleUser})
	require.NoError(t, err)

	res, err := NewLinker(dir, nil).Resolve(ctx, profile("g", "a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeLinked, res.Outcome)
	assert.Equal(t, u.ID, res.User.ID)
}

func TestResolve_UsernameCollisionsRetry(t *testing.T) {
	ctx := context.Background()
	repo := users.NewMemoryUserRepository()
	_, err := repo.Create(ctx, &models.User{Username: "bob_0000", Email: "other@x.com", Role: models.RoleUser})
	require.NoError(t, err)

	l := NewLinker(repo, nil)
	n := 0
	l.suffix = func() string {
		n++
		if n == 1 {
			return "0000"
		}
		return fmt.Sprintf("%04d", n)
	}
	res, err := l.Resolve(ctx, profile("g", "bob@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "bob_0002", res.User.Username)

	l.suffix = func() string { return "0000" }
	_, err = l.Resolve(ctx, profile("g2", "bob@y.com"))
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

type brokenDirectory struct{ *users.MemoryUserRepository }

func (*brokenDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestResolve_StorageUnavailable(t *testing.T) {
	_, err := NewLinker(&brokenDirectory{users.NewMemoryUserRepository()}, nil).Resolve(context.Background(), profile("g", "a@x.com"))
	assert.True(t, apperr.Is(err, apperr.KindStorageUnavailable))
}

func TestUsernameBase(t *testing.T) {
	assert.Equal(t, "a.very.", usernameBase("a.very.long.name@x.com"))
	assert.LessOrEqual(t, len(usernameBase("averyveryverylongname@x.com")), users.MaxUsernameLength-5)
	assert.Equal(t, "user", usernameBase("+++@x.com"))
	assert.Equal(t, "bob", usernameBase("Bob@x.com"))
}
