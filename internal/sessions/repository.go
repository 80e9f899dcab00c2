package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store using a Mongo collection keyed by token hash.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

// EnsureIndexes creates the per-user index and a TTL index on expiresAt.
func (r *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return fmt.Errorf("create refresh token indexes: %w", err)
	}
	return nil
}

func (r *MongoStore) Insert(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	rec := Record{
		TokenHash: HashToken(token),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	if _, err := r.col.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *MongoStore) FindByToken(ctx context.Context, token string) (*Record, error) {
	var rec Record
	if err := r.col.FindOne(ctx, bson.M{"_id": HashToken(token)}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rec, nil
}

func (r *MongoStore) DeleteByToken(ctx context.Context, token string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": HashToken(token)}); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *MongoStore) Consume(ctx context.Context, token string) (*Record, error) {
	var rec Record
	if err := r.col.FindOneAndDelete(ctx, bson.M{"_id": HashToken(token)}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &rec, nil
}

func (r *MongoStore) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	return res.DeletedCount, nil
}

// PurgeExpired backs up the TTL monitor, which only runs once a minute.
func (r *MongoStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *MongoStore) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}
