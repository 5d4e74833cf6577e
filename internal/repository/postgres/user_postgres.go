package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"pdflearn/internal/model"
	"pdflearn/internal/repository"
)

const uniqueViolation = "23505"

// UserPostgres is a PostgreSQL implementation of repository.UserRepository.
type UserPostgres struct {
	db *sql.DB
}

// NewUserPostgres creates a new UserPostgres repository.
func NewUserPostgres(db *sql.DB) *UserPostgres {
	return &UserPostgres{db: db}
}

var _ repository.UserRepository = (*UserPostgres)(nil)

// Create inserts a new user row and returns the stored record.
func (r *UserPostgres) Create(ctx context.Context, u *model.User) (*model.User, error) {
	const q = `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at, updated_at
	`
	var out model.User
	err := r.db.QueryRowContext(ctx, q, u.Email, u.PasswordHash).Scan(
		&out.ID,
		&out.Email,
		&out.PasswordHash,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// FindByEmail fetches a single user by email.
func (r *UserPostgres) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, q, email))
}

// FindByID fetches a single user by its ID.
func (r *UserPostgres) FindByID(ctx context.Context, id string) (*model.User, error) {
	const q = `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, q, id))
}

func (r *UserPostgres) scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// UpdatePassword replaces the password hash and bumps updated_at.
func (r *UserPostgres) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// UpsertProfile inserts or replaces the profile record of a user.
func (r *UserPostgres) UpsertProfile(ctx context.Context, p *model.Profile) error {
	const q = `
		INSERT INTO profiles (user_id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
	`
	_, err := r.db.ExecContext(ctx, q, p.UserID, p.Email, nullString(p.Name))
	return err
}

// FindProfile fetches the profile record of a user.
func (r *UserPostgres) FindProfile(ctx context.Context, userID string) (*model.Profile, error) {
	const q = `
		SELECT user_id, email, name, created_at
		FROM profiles
		WHERE user_id = $1
	`
	var (
		p    model.Profile
		name sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&p.UserID, &p.Email, &name, &p.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if name.Valid {
		p.Name = &name.String
	}
	return &p, nil
}

func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
