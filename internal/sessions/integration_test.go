package sessions

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/storefront/backend/auth-service/internal/database"
	"github.com/stretchr/testify/require"
)

// These run only against real databases:
//   TEST_DATABASE_URL=postgres://... TEST_MONGODB_URI=mongodb://... go test ./internal/sessions/

func TestPostgresStore_Contract(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := database.ConnectPostgres(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(ctx, db))

	runStoreContract(t, func(t *testing.T) Store {
		_, err := db.ExecContext(ctx, `DELETE FROM refresh_tokens`)
		require.NoError(t, err)
		return NewPostgresStore(db)
	})

	t.Run("purge expired", func(t *testing.T) {
		s := NewPostgresStore(db)
		require.NoError(t, s.Insert(ctx, 77, "pg-old", time.Now().Add(-time.Minute)))
		n, err := s.PurgeExpired(ctx, time.Now())
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, int64(1))
	})
}

func TestMongoStore_Contract(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}
	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, uri, 10*time.Second)
	require.NoError(t, err)
	dbName := "sessions_test_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_ = client.Database(dbName).Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	runStoreContract(t, func(t *testing.T) Store {
		col := client.Database(dbName).Collection("refresh_tokens_" + uuid.NewString()[:8])
		s := NewMongoStore(col)
		require.NoError(t, s.EnsureIndexes(ctx))
		return s
	})
}
