package postgres

import (
	"context"
	"testing"
	"time"

	"ciforge/internal/cierr"
	"ciforge/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func TestCreateUser_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	user := &store.User{
		ID:        uuid.NewString(),
		Name:      "Alice",
		Email:     "alice@example.com",
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(user.ID, user.Name, user.Email, user.CreatedAt, user.IsActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	user := &store.User{
		ID:        uuid.NewString(),
		Name:      "Alice",
		Email:     "alice@example.com",
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	err := s.CreateUser(ctx, user)
	if !cierr.Is(err, cierr.Conflict) {
		t.Errorf("expected Conflict error, got %v", err)
	}
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT id, name, email, created_at, is_active FROM users WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at", "is_active"}))

	user, err := s.GetUserByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if user != nil {
		t.Error("expected nil user")
	}
}

func TestSetUserActive_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.NewString()
	mock.ExpectExec(`UPDATE users SET is_active = \$1 WHERE id = \$2`).
		WithArgs(false, id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetUserActive(context.Background(), id, false)
	if !cierr.Is(err, cierr.NotFound) {
		t.Errorf("expected NotFound error, got %v", err)
	}
}
