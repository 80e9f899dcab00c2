package users

import (
	"context"
	"sync"
	"time"

	"github.com/storefront/storefront/backend/auth-service/internal/models"
)

// MemoryUserRepository is an in-process UserRepository for development and tests.
type MemoryUserRepository struct {
	mu     sync.RWMutex
	byID   map[int64]*models.User
	nextID int64
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{byID: make(map[int64]*models.User), nextID: 1}
}

func clone(u *models.User) *models.User {
	cp := *u
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		cp.PasswordHash = &h
	}
	if u.ExternalID != nil {
		e := *u.ExternalID
		cp.ExternalID = &e
	}
	if u.Address != nil {
		a := *u.Address
		cp.Address = &a
	}
	return &cp
}

func (m *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.byID {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (m *MemoryUserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return clone(u), nil
}

func (m *MemoryUserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return nil, ErrEmailTaken
		}
		if existing.Username == u.Username {
			return nil, ErrUsernameTaken
		}
		if u.IsLinked() && existing.IsLinked() && *existing.ExternalID == *u.ExternalID {
			return nil, ErrExternalIDTaken
		}
	}
	stored := clone(u)
	stored.ID = m.nextID
	m.nextID++
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.byID[stored.ID] = stored
	return clone(stored), nil
}

func (m *MemoryUserRepository) AttachExternalID(ctx context.Context, id int64, externalID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	if u.IsLinked() {
		return nil, ErrAlreadyLinked
	}
	for _, other := range m.byID {
		if other.IsLinked() && *other.ExternalID == externalID {
			return nil, ErrExternalIDTaken
		}
	}
	u.ExternalID = &externalID
	u.UpdatedAt = time.Now().UTC()
	return clone(u), nil
}

// SetRole changes a user's role. Only used by tooling and tests; the auth core
// never edits roles.
func (m *MemoryUserRepository) SetRole(id int64, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.Role = role
	}
}
