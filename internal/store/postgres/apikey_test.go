package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestGetAPIKeyByHash_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	keyID := uuid.NewString()
	userID := uuid.NewString()
	createdAt := time.Now().UTC().Truncate(time.Second)
	hash := "abc123hash"

	mock.ExpectQuery(`SELECT id, user_id, name, key_hash, created_at, last_used_at, is_active FROM api_keys WHERE key_hash = \$1`).
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "key_hash", "created_at", "last_used_at", "is_active"}).
			AddRow(keyID, userID, "ci key", hash, createdAt, nil, true))

	key, err := s.GetAPIKeyByHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("GetAPIKeyByHash failed: %v", err)
	}
	if key == nil {
		t.Fatal("expected key, got nil")
	}
	if key.ID != keyID {
		t.Errorf("got ID %s, want %s", key.ID, keyID)
	}
	if key.UserID != userID {
		t.Errorf("got UserID %s, want %s", key.UserID, userID)
	}
	if key.LastUsedAt != nil {
		t.Errorf("expected nil LastUsedAt, got %v", key.LastUsedAt)
	}
	if !key.IsActive {
		t.Error("expected active key")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetAPIKeyByHash_Miss(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT id, user_id, name, key_hash, created_at, last_used_at, is_active FROM api_keys WHERE key_hash = \$1`).
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "key_hash", "created_at", "last_used_at", "is_active"}))

	key, err := s.GetAPIKeyByHash(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("GetAPIKeyByHash failed: %v", err)
	}
	if key != nil {
		t.Error("expected nil key for unknown hash")
	}
}

func TestRevokeAPIKey(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.NewString()
	mock.ExpectExec(`UPDATE api_keys SET is_active = FALSE WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RevokeAPIKey(context.Background(), id); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}
}

func TestTouchAPIKey_IgnoresNoRows(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.NewString()
	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE api_keys SET last_used_at = \$1 WHERE id = \$2`).
		WithArgs(at, id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.TouchAPIKey(context.Background(), id, at); err != nil {
		t.Fatalf("TouchAPIKey should be best-effort, got: %v", err)
	}
}
