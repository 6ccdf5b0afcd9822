// Package postgres implements the credential store on PostgreSQL via
// database/sql with the pgx stdlib driver. Schema management is done
// with embedded goose migrations; Open runs them before returning.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ledgerly/auth"
	"github.com/ledgerly/auth/store/postgres/migrations"
)

// Store is a PostgreSQL-backed [auth.CredentialStore]. The unique index
// on lower(email) is what makes Create an atomic check-and-insert: two
// concurrent signups for the same address race on the index and exactly
// one insert wins.
type Store struct {
	db *sql.DB
}

// Open connects to dsn, applies pending migrations and returns a ready
// Store. The caller owns the store and must Close it on shutdown.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	s := &Store{db: db}
	if err := s.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return s, nil
}

// NewStore wraps an existing connection pool without running migrations.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RunMigrations applies the embedded goose migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

func (s *Store) Close() error {
	return s.db.Close()
}

const userColumns = `id, email, display_name, password_hash, email_verified, two_factor_enabled, two_factor_secret, created_at`

func (s *Store) Create(ctx context.Context, input auth.CreateUserInput) (auth.User, error) {
	query := `INSERT INTO users (id, email, display_name, password_hash)
	          VALUES ($1, $2, $3, $4)
	          RETURNING ` + userColumns

	id := uuid.NewString()

	user, err := scanUser(s.db.QueryRowContext(ctx, query,
		id, input.Email, input.DisplayName, input.PasswordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, auth.ErrDuplicateEmail
		}
		return auth.User{}, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrNotFound
		}
		return auth.User{}, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (s *Store) FindByID(ctx context.Context, userID string) (auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrNotFound
		}
		return auth.User{}, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (s *Store) ReplacePasswordHash(ctx context.Context, userID, newHash string) error {
	return s.execOnUser(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, userID, newHash)
}

func (s *Store) SetEmailVerified(ctx context.Context, userID string) error {
	return s.execOnUser(ctx,
		`UPDATE users SET email_verified = true WHERE id = $1`, userID)
}

func (s *Store) EnableTwoFactor(ctx context.Context, userID, secret string) error {
	return s.execOnUser(ctx,
		`UPDATE users SET two_factor_enabled = true, two_factor_secret = $2 WHERE id = $1`,
		userID, secret)
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.execOnUser(ctx, `DELETE FROM users WHERE id = $1`, userID)
}

// execOnUser runs a statement keyed on a user ID and maps a zero-row
// result to auth.ErrNotFound.
func (s *Store) execOnUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash,
		&u.EmailVerified, &u.TwoFactorEnabled, &u.TwoFactorSecret, &u.CreatedAt)
	return u, err
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
// (SQLSTATE 23505), which the users_email_unique index raises for a
// duplicate address.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
