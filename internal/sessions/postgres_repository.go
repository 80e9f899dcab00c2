package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PostgresStore implements Store on the refresh_tokens table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (r *PostgresStore) Insert(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, HashToken(token), userID, time.Now().UTC(), expiresAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateToken
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *PostgresStore) FindByToken(ctx context.Context, token string) (*Record, error) {
	rec := Record{TokenHash: HashToken(token)}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, created_at, expires_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, rec.TokenHash).Scan(&rec.UserID, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query refresh token: %w", err)
	}
	return &rec, nil
}

func (r *PostgresStore) DeleteByToken(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, HashToken(token)); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// Consume relies on DELETE ... RETURNING: of two concurrent statements for the
// same row only one sees it.
func (r *PostgresStore) Consume(ctx context.Context, token string) (*Record, error) {
	rec := Record{TokenHash: HashToken(token)}
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
		RETURNING user_id, created_at, expires_at
	`, rec.TokenHash).Scan(&rec.UserID, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &rec, nil
}

func (r *PostgresStore) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *PostgresStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
