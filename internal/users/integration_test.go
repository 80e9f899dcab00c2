package users

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
//   TEST_DATABASE_URL=postgres://... TEST_MONGODB_URI=mongodb://... go test ./internal/users/

func TestPostgresUserRepository_Contract(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := database.ConnectPostgres(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(ctx, db))

	runRepositoryContract(t, func(t *testing.T) UserRepository {
		_, err := db.ExecContext(ctx, `DELETE FROM users`)
		require.NoError(t, err)
		return NewPostgresUserRepository(db)
	})
}

func TestMongoUserRepository_Contract(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}
	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, uri, 10*time.Second)
	require.NoError(t, err)
	dbName := "users_test_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_ = client.Database(dbName).Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	runRepositoryContract(t, func(t *testing.T) UserRepository {
		suffix := uuid.NewString()[:8]
		db := client.Database(dbName)
		r := NewMongoUserRepository(db.Collection("users_"+suffix), db.Collection("counters_"+suffix))
		require.NoError(t, r.EnsureIndexes(ctx))
		return r
	})
}
