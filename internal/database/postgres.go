package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
)

// ConnectPostgres opens a pgx-backed *sql.DB and retries the first ping with backoff
// to tolerate the database starting after us.
func ConnectPostgres(ctx context.Context, url string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	const maxAttempts = 5
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}
		if attempt == maxAttempts {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		logger.Warnf("attempt %d/%d: failed to reach Postgres: %v", attempt, maxAttempts, err)
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
