package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrDuplicateToken is returned by Insert when the token is already stored.
var ErrDuplicateToken = errors.New("refresh token already stored")

// Record is one live refresh token. A record exists exactly while its token may
// still be exchanged; deleting it is the only way a refresh token is revoked.
// Backends key records by the SHA-256 of the token, never the token itself.
type Record struct {
	TokenHash string    `bson:"_id" json:"tokenHash"`
	UserID    int64     `bson:"userId" json:"userId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
}

// Store persists refresh tokens. Lookups return (nil, nil) when the token is unknown.
type Store interface {
	Insert(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	FindByToken(ctx context.Context, token string) (*Record, error)
	DeleteByToken(ctx context.Context, token string) error
	// Consume atomically deletes the record and returns what was deleted.
	// Two concurrent calls for the same token never both get a record.
	Consume(ctx context.Context, token string) (*Record, error)
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
}

// Purger is implemented by backends that need expired rows removed explicitly.
type Purger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashToken returns the lookup key stored in place of a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
