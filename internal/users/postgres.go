package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/storefront/storefront/backend/auth-service/internal/models"
)

// PostgresUserRepository implements UserRepository on the users table.
type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, role, external_id,
	street, city, postal_code, country, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                             models.User
		hash, ext                     sql.NullString
		street, city, postal, country sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &hash, &u.Role, &ext,
		&street, &city, &postal, &country, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if hash.Valid {
		u.PasswordHash = &hash.String
	}
	if ext.Valid {
		u.ExternalID = &ext.String
	}
	if street.Valid || city.Valid || postal.Valid || country.Valid {
		u.Address = &models.Address{Street: street.String, City: city.String, PostalCode: postal.String, Country: country.String}
	}
	return &u, nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `email = $1`, email)
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func addressField(a *models.Address, f func(*models.Address) string) any {
	if a == nil || f(a) == "" {
		return nil
	}
	return f(a)
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, role, external_id,
			street, city, postal_code, country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING `+userColumns,
		u.Username, u.Email, nullable(u.PasswordHash), u.Role, nullable(u.ExternalID),
		addressField(u.Address, func(a *models.Address) string { return a.Street }),
		addressField(u.Address, func(a *models.Address) string { return a.City }),
		addressField(u.Address, func(a *models.Address) string { return a.PostalCode }),
		addressField(u.Address, func(a *models.Address) string { return a.Country }),
		now,
	)
	created, err := scanUser(row)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (r *PostgresUserRepository) AttachExternalID(ctx context.Context, id int64, externalID string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET external_id = $2, updated_at = $3
		WHERE id = $1 AND external_id IS NULL
		RETURNING `+userColumns, id, externalID, time.Now().UTC())
	u, err := scanUser(row)
	if err == nil {
		return u, nil
	}
	if mapped := mapUniqueViolation(err); mapped != nil {
		return nil, mapped
	}
	if !errors.Is(err, sql.ErrNoRows) {
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

// mapUniqueViolation turns a unique constraint failure into the matching sentinel.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return ErrEmailTaken
	case strings.Contains(pgErr.ConstraintName, "username"):
		return ErrUsernameTaken
	case strings.Contains(pgErr.ConstraintName, "external_id"):
		return ErrExternalIDTaken
	}
	return nil
}
