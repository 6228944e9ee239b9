package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ciforge/internal/auth"
	"ciforge/internal/store"
	"ciforge/internal/store/memory"

	"github.com/google/uuid"
)

type authFixture struct {
	store     *memory.Store
	user      *store.User
	plaintext string
	key       *store.APIKey
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	user := &store.User{
		ID:        uuid.NewString(),
		Name:      "alice",
		Email:     "alice@example.com",
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	plaintext, hash, err := auth.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	key := &store.APIKey{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      "ci",
		KeyHash:   hash,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	return &authFixture{store: s, user: user, plaintext: plaintext, key: key}
}

func doAuth(t *testing.T, fx *authFixture, token string) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	var passed bool
	var gotUserID string
	handler := Auth(fx.store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		passed = true
		gotUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if passed && gotUserID != fx.user.ID {
		t.Errorf("handler saw user id %q, want %q", gotUserID, fx.user.ID)
	}
	return rec, passed
}

func TestAuth_Success(t *testing.T) {
	fx := newAuthFixture(t)

	rec, passed := doAuth(t, fx, fx.plaintext)
	if !passed || rec.Code != http.StatusOK {
		t.Fatalf("expected request to pass, got %d", rec.Code)
	}

	// last_used_at is recorded.
	keys, _ := fx.store.ListAPIKeys(context.Background(), fx.user.ID)
	if len(keys) != 1 || keys[0].LastUsedAt == nil {
		t.Error("expected last_used_at to be touched")
	}
}

func TestAuth_MissingCredential(t *testing.T) {
	fx := newAuthFixture(t)

	rec, passed := doAuth(t, fx, "")
	if passed {
		t.Fatal("handler must not run without a credential")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestAuth_UnknownKey(t *testing.T) {
	fx := newAuthFixture(t)

	rec, passed := doAuth(t, fx, "ci_notarealkey")
	if passed {
		t.Fatal("handler must not run with an unknown key")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestAuth_RevokedKey(t *testing.T) {
	fx := newAuthFixture(t)
	if err := fx.store.RevokeAPIKey(context.Background(), fx.key.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	rec, passed := doAuth(t, fx, fx.plaintext)
	if passed {
		t.Fatal("handler must not run with a revoked key")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestAuth_InactiveUser(t *testing.T) {
	fx := newAuthFixture(t)
	if err := fx.store.SetUserActive(context.Background(), fx.user.ID, false); err != nil {
		t.Fatalf("SetUserActive failed: %v", err)
	}

	rec, passed := doAuth(t, fx, fx.plaintext)
	if passed {
		t.Fatal("handler must not run for an inactive user")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("got %d, want 403", rec.Code)
	}
}
