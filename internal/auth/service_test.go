package auth

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"agora/internal/database"
)

// setupTestDB opens a migrated SQLite database in a temp directory.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "auth.db"), database.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.DB
}

func TestSignUp_Success(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(0, nil)

	user, err := service.SignUp(ctx, db, "  Alice ", " Alice@Example.com ", "SecurePass123!")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.Name != "Alice" {
		t.Errorf("Expected trimmed name, got %q", user.Name)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Expected lower-cased email, got %q", user.Email)
	}
	if user.Role != RoleUser {
		t.Errorf("Expected role %s, got %s", RoleUser, user.Role)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users WHERE email = ?", "alice@example.com").Scan(&count); err != nil {
		t.Fatalf("Failed to query created user: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 user, got %d", count)
	}
}

func TestSignUp_AdminEmail(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(0, []string{"Root@Example.com"})

	user, err := service.SignUp(context.Background(), db, "Root", "root@example.com", "SecurePass123!")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if !user.IsAdmin() {
		t.Errorf("Expected admin role, got %s", user.Role)
	}
}

func TestSignUp_Validation(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(0, nil)

	tests := []struct {
		name, userName, email, password string
		wantErr                         error
	}{
		{"missing name", " ", "a@example.com", "password123", ErrNameRequired},
		{"missing email", "A", "  ", "password123", ErrEmailRequired},
		{"short password", "A", "a@example.com", "1234567", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.SignUp(context.Background(), db, tt.userName, tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(0, nil)

	if _, err := service.SignUp(ctx, db, "A", "a@example.com", "password123"); err != nil {
		t.Fatalf("First SignUp failed: %v", err)
	}
	_, err := service.SignUp(ctx, db, "B", "A@EXAMPLE.COM", "password456")
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthenticate_Success(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(0, nil)
	service.SignUp(ctx, db, "A", "a@example.com", "password123")

	user, session, err := service.Authenticate(ctx, db, "A@example.com", "password123")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.Email != "a@example.com" {
		t.Errorf("Unexpected user %+v", user)
	}
	if len(session.Token) != 2*sessionTokenBytes {
		t.Errorf("Expected %d hex characters, got %d", 2*sessionTokenBytes, len(session.Token))
	}
	if session.TokenHash != HashToken(session.Token) {
		t.Error("Expected stored hash to match token")
	}
	if got := session.ExpiresAt.Sub(session.CreatedAt); got != DefaultSessionTTL {
		t.Errorf("Expected TTL %v, got %v", DefaultSessionTTL, got)
	}

	var stored int
	db.QueryRow("SELECT COUNT(*) FROM sessions WHERE token_hash = ?", session.Token).Scan(&stored)
	if stored != 0 {
		t.Error("Expected raw token never to be stored")
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(0, nil)
	service.SignUp(ctx, db, "A", "a@example.com", "password123")

	if _, _, err := service.Authenticate(ctx, db, "a@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := service.Authenticate(ctx, db, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestValidateSession(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(time.Hour, nil)
	service.SignUp(ctx, db, "A", "a@example.com", "password123")
	_, session, _ := service.Authenticate(ctx, db, "a@example.com", "password123")

	got, user, err := service.ValidateSession(ctx, db, session.Token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if got.UserID != user.ID || user.Email != "a@example.com" {
		t.Errorf("Unexpected session/user: %+v %+v", got, user)
	}

	for _, token := range []string{"", "not-a-token", session.TokenHash} {
		if _, _, err := service.ValidateSession(ctx, db, token); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("ValidateSession(%q): expected ErrSessionNotFound, got %v", token, err)
		}
	}
}

func TestValidateSession_Expired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(time.Hour, nil)
	user, _ := service.SignUp(ctx, db, "A", "a@example.com", "password123")
	session, err := service.CreateSession(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	service.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if _, _, err := service.ValidateSession(ctx, db, session.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound for expired session, got %v", err)
	}

	removed, err := service.CleanExpiredSessions(ctx, db)
	if err != nil {
		t.Fatalf("CleanExpiredSessions failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 expired session removed, got %d", removed)
	}
}

func TestInvalidateSession(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(0, nil)
	user, _ := service.SignUp(ctx, db, "A", "a@example.com", "password123")
	first, _ := service.CreateSession(ctx, db, user.ID)
	second, _ := service.CreateSession(ctx, db, user.ID)

	if err := service.InvalidateSession(ctx, db, first.Token); err != nil {
		t.Fatalf("InvalidateSession failed: %v", err)
	}
	if _, _, err := service.ValidateSession(ctx, db, first.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected first session gone, got %v", err)
	}
	if _, _, err := service.ValidateSession(ctx, db, second.Token); err != nil {
		t.Errorf("Expected second session still valid, got %v", err)
	}

	if err := service.InvalidateUserSessions(ctx, db, user.ID); err != nil {
		t.Fatalf("InvalidateUserSessions failed: %v", err)
	}
	if _, _, err := service.ValidateSession(ctx, db, second.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected all sessions gone, got %v", err)
	}
}

func TestSetRole(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(0, nil)
	service.SignUp(ctx, db, "A", "a@example.com", "password123")

	if err := service.SetRole(ctx, db, "A@example.com", RoleAdmin); err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	user, err := service.GetUserByEmail(ctx, db, "a@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if !user.IsAdmin() {
		t.Errorf("Expected admin, got %s", user.Role)
	}

	if err := service.SetRole(ctx, db, "a@example.com", "superuser"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Expected ErrInvalidRole, got %v", err)
	}
	if err := service.SetRole(ctx, db, "nobody@example.com", RoleAdmin); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}
