package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ciforge/internal/cierr"
	"ciforge/internal/store"

	"github.com/lib/pq"
)

const apiKeyColumns = `id, user_id, name, key_hash, created_at, last_used_at, is_active`

// CreateAPIKey inserts a key row. The caller supplies KeyHash; plaintext
// secrets never reach this layer.
func (s *Store) CreateAPIKey(ctx context.Context, key *store.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, name, key_hash, created_at, last_used_at, is_active)
		VALUES ($1, $2, $3, $4, $5, NULL, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		key.ID, key.UserID, key.Name, key.KeyHash, key.CreatedAt, key.IsActive,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pgForeignKeyViolation:
				return cierr.Wrap(cierr.InvalidInput, fmt.Sprintf("user %s does not exist", key.UserID), err)
			case pgUniqueViolation:
				return cierr.Wrap(cierr.Conflict, "key hash already exists", err)
			}
		}
		return cierr.Wrap(cierr.Transient, "inserting api key", err)
	}
	return nil
}

// GetAPIKeyByHash looks up a key by its hash via the unique index, or
// returns nil if no key matches.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*store.APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	return scanAPIKeyRow(row)
}

// ListAPIKeys returns keys for userID, or every key if userID is empty.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*store.APIKey, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	}
	if err != nil {
		return nil, cierr.Wrap(cierr.Transient, "listing api keys", err)
	}
	defer rows.Close()

	var keys []*store.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows.Scan)
		if err != nil {
			return nil, cierr.Wrap(cierr.Transient, "scanning api key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey flips is_active to false. The next authentication attempt
// with the key fails; in-flight streams opened before revocation are not
// torn down.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return cierr.Wrap(cierr.Transient, "revoking api key", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cierr.Wrap(cierr.Transient, "checking update result", err)
	}
	if n == 0 {
		return cierr.New(cierr.NotFound, "api key not found")
	}
	return nil
}

// TouchAPIKey updates last_used_at. Best-effort: callers ignore the error,
// so this never fails the request that triggered it.
func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return cierr.Wrap(cierr.Transient, "touching api key", err)
	}
	return nil
}

func scanAPIKeyRow(row *sql.Row) (*store.APIKey, error) {
	k, err := scanAPIKey(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cierr.Wrap(cierr.Transient, "reading api key", err)
	}
	return k, nil
}

func scanAPIKey(scan func(dest ...interface{}) error) (*store.APIKey, error) {
	var (
		k        store.APIKey
		lastUsed sql.NullTime
	)
	err := scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.CreatedAt, &lastUsed, &k.IsActive)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsedAt = &t
	}
	return &k, nil
}
