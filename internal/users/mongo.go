package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storefront/storefront/backend/auth-service/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUserRepository implements UserRepository using MongoDB. Numeric ids come
// from a counters collection so they match the Postgres backend.
type MongoUserRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collections
func NewMongoUserRepository(col, counters *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col, counters: counters}
}

// EnsureIndexes creates the unique indexes Create relies on.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "externalId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) nextID(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx, bson.M{"_id": "users"}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("allocate user id: %w", err)
	}
	return doc.Seq, nil
}

func (r *MongoUserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	id, err := r.nextID(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	stored := *u
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, stored); err != nil {
		if mapped := mapDuplicateKey(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &stored, nil
}

func (r *MongoUserRepository) AttachExternalID(ctx context.Context, id int64, externalID string) (*models.User, error) {
	filter := bson.M{"_id": id, "externalId": bson.M{"$exists": false}}
	update := bson.M{"$set": bson.M{"externalId": externalID, "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.User
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if mapped := mapDuplicateKey(err); mapped != nil {
		return nil, mapped
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("attach external id: %w", err)
	}
	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	return nil, ErrAlreadyLinked
}

func mapDuplicateKey(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "email_1"):
		return ErrEmailTaken
	case strings.Contains(msg, "username_1"):
		return ErrUsernameTaken
	case strings.Contains(msg, "externalId_1"):
		return ErrExternalIDTaken
	}
	return nil
}
