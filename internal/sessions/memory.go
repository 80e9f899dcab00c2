package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps refresh tokens in process memory. It is meant for local
// development and tests; records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

func (m *MemoryStore) Insert(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := HashToken(token)
	if _, ok := m.records[h]; ok {
		return ErrDuplicateToken
	}
	m.records[h] = Record{TokenHash: h, UserID: userID, CreatedAt: m.now().UTC(), ExpiresAt: expiresAt.UTC()}
	return nil
}

func (m *MemoryStore) FindByToken(ctx context.Context, token string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[HashToken(token)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryStore) DeleteByToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, HashToken(token))
	return nil
}

func (m *MemoryStore) Consume(ctx context.Context, token string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := HashToken(token)
	r, ok := m.records[h]
	if !ok {
		return nil, nil
	}
	delete(m.records, h)
	return &r, nil
}

func (m *MemoryStore) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, r := range m.records {
		if r.UserID == userID {
			delete(m.records, h)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, r := range m.records {
		if r.ExpiresAt.Before(before) {
			delete(m.records, h)
			n++
		}
	}
	return n, nil
}

// Len reports how many records are held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
