package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:refresh:"), m
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, _ := newMiniredisStore(t)
		return s
	})
}

func TestRedisStore_KeysAreHashed(t *testing.T) {
	s, m := newMiniredisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 1, "raw-token-value", time.Now().Add(time.Minute)))

	assert.True(t, m.Exists("test:refresh:"+HashToken("raw-token-value")))
	assert.False(t, m.Exists("test:refresh:raw-token-value"))
	members, err := m.Members("test:refresh:user:1")
	require.NoError(t, err)
	assert.Equal(t, []string{HashToken("raw-token-value")}, members)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	s, m := newMiniredisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 2, "r2", time.Now().Add(2*time.Second)))

	got, err := s.FindByToken(ctx, "r2")
	require.NoError(t, err)
	require.NotNil(t, got)

	// advance miniredis clock past TTL
	m.FastForward(3 * time.Second)

	got2, err := s.FindByToken(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, got2)
}

func TestRedisStore_ConsumeUnindexes(t *testing.T) {
	s, m := newMiniredisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 3, "a", time.Now().Add(time.Minute)))
	require.NoError(t, s.Insert(ctx, 3, "b", time.Now().Add(time.Minute)))

	rec, err := s.Consume(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, rec)

	members, err := m.Members("test:refresh:user:3")
	require.NoError(t, err)
	assert.Equal(t, []string{HashToken("b")}, members)
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, m := newMiniredisStore(t)
	m.Close()
	_, err := s.FindByToken(context.Background(), "x")
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}

func TestRedisStore_IndexOutlivesTokens(t *testing.T) {
	s, m := newMiniredisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 4, "long", time.Now().Add(time.Hour)))
	require.NoError(t, s.Insert(ctx, 4, "short", time.Now().Add(time.Minute)))

	assert.Greater(t, m.TTL("test:refresh:user:4"), 59*time.Minute)

	m.FastForward(2 * time.Minute)
	n, err := s.DeleteAllForUser(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, m.Exists("test:refresh:user:4"))
}
