package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis.
// Each token lives under "<prefix><sha256>" as JSON with TTL = expiresAt - now, and
// "<prefix>user:<id>" is a set of the user's token hashes used for global logout.
// Every write touching both keys runs as one Lua script.
// Expired tokens disappear on their own, so RedisStore has no PurgeExpired.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-based refresh token store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "refresh:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(hash string) string {
	return r.prefix + hash
}

func (r *RedisStore) userKey(userID int64) string {
	return r.prefix + "user:" + strconv.FormatInt(userID, 10)
}

// insertScript stores the record and indexes it in one step. The index TTL only
// ever grows so it outlives every token it lists.
var insertScript = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
	return 0
end
redis.call('SADD', KEYS[2], ARGV[3])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[2]) then
	redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
return 1
`)

// consumeScript deletes a token and unindexes it, returning the deleted record.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return false
end
redis.call('DEL', KEYS[1])
local uid = string.match(v, '"userId":(%-?%d+)')
if uid then
	redis.call('SREM', ARGV[1] .. 'user:' .. uid, ARGV[2])
end
return v
`)

// deleteAllScript removes every indexed token of one user.
var deleteAllScript = redis.NewScript(`
local n = 0
for _, h in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	n = n + redis.call('DEL', ARGV[1] .. h)
	redis.call('SREM', KEYS[1], h)
end
return n
`)

func (r *RedisStore) Insert(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	h := HashToken(token)
	rec := Record{TokenHash: h, UserID: userID, CreatedAt: time.Now().UTC(), ExpiresAt: expiresAt.UTC()}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		// ensure a minimal TTL so Redis won't keep expired tokens
		ttl = time.Second
	}

	keys := []string{r.key(h), r.userKey(userID)}
	ok, err := insertScript.Run(ctx, r.client, keys, b, ttl.Milliseconds(), h).Int()
	if err != nil {
		return fmt.Errorf("redis insert refresh token: %w", err)
	}
	if ok == 0 {
		return ErrDuplicateToken
	}
	return nil
}

func (r *RedisStore) decode(b []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode refresh token record: %w", err)
	}
	return &rec, nil
}

func (r *RedisStore) FindByToken(ctx context.Context, token string) (*Record, error) {
	b, err := r.client.Get(ctx, r.key(HashToken(token))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get refresh token: %w", err)
	}
	return r.decode(b)
}

func (r *RedisStore) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.Consume(ctx, token)
	return err
}

func (r *RedisStore) Consume(ctx context.Context, token string) (*Record, error) {
	h := HashToken(token)
	b, err := consumeScript.Run(ctx, r.client, []string{r.key(h)}, r.prefix, h).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis consume refresh token: %w", err)
	}
	return r.decode([]byte(b))
}

func (r *RedisStore) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := deleteAllScript.Run(ctx, r.client, []string{r.userKey(userID)}, r.prefix).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis delete user refresh tokens: %w", err)
	}
	return n, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
