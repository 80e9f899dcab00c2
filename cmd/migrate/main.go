// Command migrate prepares the databases the auth service runs against: it
// applies the embedded Postgres migrations and creates the MongoDB indexes.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/storefront/storefront/backend/auth-service/internal/database"
	"github.com/storefront/storefront/backend/auth-service/internal/sessions"
	"github.com/storefront/storefront/backend/auth-service/internal/users"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
)

func main() {
	list := flag.Bool("list", false, "print the embedded migration versions and exit")
	flag.Parse()

	_ = godotenv.Load()
	logger.Init(os.Getenv("LOG_LEVEL"))

	if *list {
		versions, err := database.Migrations()
		if err != nil {
			logger.Fatalf("%v", err)
		}
		for _, v := range versions {
			logger.Infof("%s", v)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgURL := os.Getenv("DATABASE_URL")
	mongoURI := os.Getenv("MONGODB_URI")
	if pgURL == "" && mongoURI == "" {
		logger.Fatalf("set DATABASE_URL and/or MONGODB_URI")
	}

	if pgURL != "" {
		db, err := database.ConnectPostgres(ctx, pgURL, 2)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer db.Close()
		if err := database.RunMigrations(ctx, db); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		logger.Infof("postgres schema is up to date")
	}

	if mongoURI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, mongoURI, 10*time.Second)
		if err != nil {
			logger.Fatalf("mongodb: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		name := os.Getenv("MONGODB_DATABASE")
		if name == "" {
			name = "storefront"
		}
		mdb := client.Database(name)
		if err := users.NewMongoUserRepository(mdb.Collection("users"), mdb.Collection("counters")).EnsureIndexes(ctx); err != nil {
			logger.Fatalf("user indexes: %v", err)
		}
		if err := sessions.NewMongoStore(mdb.Collection("refresh_tokens")).EnsureIndexes(ctx); err != nil {
			logger.Fatalf("session indexes: %v", err)
		}
		logger.Infof("mongodb indexes are in place (database %s)", name)
	}
}
