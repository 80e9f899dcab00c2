package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	require.NoError(t, s.Insert(ctx, 1, "old", now.Add(-time.Minute)))
	require.NoError(t, s.Insert(ctx, 1, "fresh", now.Add(time.Hour)))

	n, err := s.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, s.Len())

	rec, err := s.FindByToken(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("abc"))
	assert.NotEqual(t, h, HashToken("abd"))
}
