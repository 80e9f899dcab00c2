package sessions

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behavior every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	t.Run("insert then find", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, 1, "tok-a", exp))

		rec, err := s.FindByToken(ctx, "tok-a")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, int64(1), rec.UserID)
		assert.Equal(t, HashToken("tok-a"), rec.TokenHash)
		assert.WithinDuration(t, exp, rec.ExpiresAt, time.Second)
	})

	t.Run("unknown token is nil", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.FindByToken(ctx, "never-issued")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("duplicate insert", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, 1, "tok-dup", exp))
		assert.ErrorIs(t, s.Insert(ctx, 1, "tok-dup", exp), ErrDuplicateToken)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, 1, "tok-del", exp))
		require.NoError(t, s.DeleteByToken(ctx, "tok-del"))
		require.NoError(t, s.DeleteByToken(ctx, "tok-del"))
		rec, err := s.FindByToken(ctx, "tok-del")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("consume returns the record once", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, 9, "tok-c", exp))

		rec, err := s.Consume(ctx, "tok-c")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, int64(9), rec.UserID)

		again, err := s.Consume(ctx, "tok-c")
		require.NoError(t, err)
		assert.Nil(t, again)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, 2, "tok-race", exp))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec, err := s.Consume(ctx, "tok-race")
				if err == nil && rec != nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("delete all for user", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Insert(ctx, 5, fmt.Sprintf("u5-%d", i), exp))
		}
		require.NoError(t, s.Insert(ctx, 6, "u6-0", exp))

		n, err := s.DeleteAllForUser(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		for i := 0; i < 3; i++ {
			rec, err := s.FindByToken(ctx, fmt.Sprintf("u5-%d", i))
			require.NoError(t, err)
			assert.Nil(t, rec)
		}
		other, err := s.FindByToken(ctx, "u6-0")
		require.NoError(t, err)
		assert.NotNil(t, other, "other users keep their tokens")

		n, err = s.DeleteAllForUser(ctx, 5)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("insert racing delete all stays revocable", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 50; i++ {
			require.NoError(t, s.Insert(ctx, 7, fmt.Sprintf("old-%d", i), exp))

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = s.DeleteAllForUser(ctx, 7)
			}()
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Insert(ctx, 7, fmt.Sprintf("new-%d", i), exp))
			}()
			wg.Wait()

			_, err := s.DeleteAllForUser(ctx, 7)
			require.NoError(t, err)
			rec, err := s.FindByToken(ctx, fmt.Sprintf("new-%d", i))
			require.NoError(t, err)
			require.Nil(t, rec, "round %d: token survived a later DeleteAllForUser", i)
		}
	})
}
