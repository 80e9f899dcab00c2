// Package linking resolves an external identity to a local user, creating or
// linking the account by verified email.
package linking

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/storefront/storefront/backend/auth-service/internal/apperr"
	"github.com/storefront/storefront/backend/auth-service/internal/events"
	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"github.com/storefront/storefront/backend/auth-service/internal/users"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
)

// Directory is the part of the user store linking needs.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) (*models.User, error)
	AttachExternalID(ctx context.Context, id int64, externalID string) (*models.User, error)
}

type Outcome int

const (
	OutcomeExisting Outcome = iota
	OutcomeCreated
	OutcomeLinked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeLinked:
		return "linked"
	default:
		return "existing"
	}
}

type Result struct {
	User    *models.User
	Outcome Outcome
}

const usernameAttempts = 5

type Linker struct {
	dir            Directory
	allowedDomains []string
	publisher      events.Publisher
	suffix         func() string
}

// NewLinker builds a Linker. An empty allowedDomains accepts every domain.
func NewLinker(dir Directory, allowedDomains []string) *Linker {
	domains := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	return &Linker{
		dir:            dir,
		allowedDomains: domains,
		publisher:      events.LogPublisher{},
		suffix:         func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:4] },
	}
}

func (l *Linker) WithPublisher(p events.Publisher) *Linker {
	l.publisher = p
	return l
}

func (l *Linker) domainAllowed(email string) bool {
	if len(l.allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, d := range l.allowedDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// Resolve maps the profile to a local user. A user already linked to a different
// subject is never modified.
func (l *Linker) Resolve(ctx context.Context, p models.ExternalProfile) (*Result, error) {
	if strings.TrimSpace(p.Subject) == "" {
		return nil, apperr.New(apperr.KindOAuthRejected, "provider returned no subject")
	}
	email := users.NormalizeEmail(p.Email)
	// an unverified address cannot key the join
	if email == "" || !p.EmailVerified {
		return nil, apperr.New(apperr.KindOAuthRejected, "provider returned no verified email")
	}
	if !l.domainAllowed(email) {
		return nil, apperr.New(apperr.KindOAuthRejected, "email domain not allowed").With("email", email)
	}

	existing, err := l.dir.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Storage("find user", err)
	}
	if existing == nil {
		created, err := l.create(ctx, email, p.Subject)
		if err == nil {
			events.Send(ctx, l.publisher, events.New(events.UserCreatedViaOAuth, created.ID, nil))
			return &Result{User: created, Outcome: OutcomeCreated}, nil
		}
		if !errors.Is(err, users.ErrEmailTaken) {
			return nil, err
		}
		// lost a race with a concurrent sign-up for the same email
		existing, err = l.dir.FindByEmail(ctx, email)
		if err != nil {
			return nil, apperr.Storage("find user", err)
		}
		if existing == nil {
			return nil, apperr.New(apperr.KindInternal, "user vanished during linking")
		}
	}
	return l.link(ctx, existing, p.Subject)
}

func (l *Linker) link(ctx context.Context, u *models.User, subject string) (*Result, error) {
	if u.IsLinked() {
		if *u.ExternalID == subject {
			return &Result{User: u, Outcome: OutcomeExisting}, nil
		}
		return nil, l.conflict(u.ID)
	}

	linked, err := l.dir.AttachExternalID(ctx, u.ID, subject)
	switch {
	case errors.Is(err, users.ErrAlreadyLinked):
		// someone linked it between our read and write; re-read to decide
		fresh, ferr := l.dir.FindByEmail(ctx, u.Email)
		if ferr != nil {
			return nil, apperr.Storage("find user", ferr)
		}
		if fresh != nil && fresh.IsLinked() && *fresh.ExternalID == subject {
			return &Result{User: fresh, Outcome: OutcomeExisting}, nil
		}
		return nil, l.conflict(u.ID)
	case errors.Is(err, users.ErrExternalIDTaken):
		return nil, l.conflict(u.ID)
	case err != nil:
		return nil, apperr.Storage("attach external id", err)
	case linked == nil:
		return nil, apperr.New(apperr.KindUserNotFound, "user not found")
	}

	logger.InfoFields("account_linked", logger.Fields{"user_id": linked.ID})
	events.Send(ctx, l.publisher, events.New(events.AccountLinked, linked.ID, nil))
	return &Result{User: linked, Outcome: OutcomeLinked}, nil
}

func (l *Linker) conflict(userID int64) error {
	logger.WarnFields("oauth_linking_conflict", logger.Fields{"user_id": userID})
	return apperr.New(apperr.KindLinkingConflict, "email is linked to a different account").With("user_id", userID)
}

func (l *Linker) create(ctx context.Context, email, subject string) (*models.User, error) {
	base := usernameBase(email)
	ext := subject
	for attempt := 0; attempt < usernameAttempts; attempt++ {
		u, err := l.dir.Create(ctx, &models.User{
			Username:   base + "_" + l.suffix(),
			Email:      email,
			Role:       models.RoleUser,
			ExternalID: &ext,
		})
		switch {
		case err == nil:
			return u, nil
		case errors.Is(err, users.ErrUsernameTaken):
			continue
		case errors.Is(err, users.ErrEmailTaken):
			return nil, err
		case errors.Is(err, users.ErrExternalIDTaken):
			return nil, apperr.New(apperr.KindLinkingConflict, "external identity is linked to a different account")
		default:
			return nil, apperr.Storage("create user", err)
		}
	}
	return nil, apperr.New(apperr.KindConflict, "could not allocate a username")
}

// usernameBase keeps the allowed characters of the email's local part, trimmed so
// that base + "_" + 4 chars fits the username limit.
func usernameBase(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
		if b.Len() == users.MaxUsernameLength-5 {
			break
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}
