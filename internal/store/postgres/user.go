package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ciforge/internal/cierr"
	"ciforge/internal/store"

	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// CreateUser inserts a new user. Returns a cierr.Conflict error if the
// email already exists.
func (s *Store) CreateUser(ctx context.Context, user *store.User) error {
	query := `
		INSERT INTO users (id, name, email, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.CreatedAt, user.IsActive,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return cierr.Wrap(cierr.Conflict, fmt.Sprintf("email %q already in use", user.Email), err)
		}
		return cierr.Wrap(cierr.Transient, "inserting user", err)
	}
	return nil
}

// GetUser returns a user by id, or nil if not found.
func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at, is_active FROM users WHERE id = $1`, id))
}

// GetUserByEmail returns a user by email, or nil if not found.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at, is_active FROM users WHERE email = $1`, email))
}

func (s *Store) scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cierr.Wrap(cierr.Transient, "reading user", err)
	}
	return &u, nil
}

// ListUsers returns every user, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, created_at, is_active FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, cierr.Wrap(cierr.Transient, "listing users", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var u store.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.IsActive); err != nil {
			return nil, cierr.Wrap(cierr.Transient, "scanning user", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// SetUserActive flips a user's is_active flag.
func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return cierr.Wrap(cierr.Transient, "updating user active flag", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cierr.Wrap(cierr.Transient, "checking update result", err)
	}
	if n == 0 {
		return cierr.New(cierr.NotFound, "user not found")
	}
	return nil
}
