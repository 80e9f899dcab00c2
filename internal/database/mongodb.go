package database

import (
	"context"
	"fmt"
	"time"

	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// ConnectMongoWithRetry retries ConnectMongo with exponential backoff to tolerate startup races.
func ConnectMongoWithRetry(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	const maxAttempts = 5
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, err := ConnectMongo(ctx, uri, timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("could not connect to MongoDB after %d attempts: %w", maxAttempts, lastErr)
}
