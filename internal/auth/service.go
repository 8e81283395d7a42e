package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"agora/internal/database"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	sessionTTL  time.Duration
	adminEmails map[string]bool
	now         func() time.Time
}

// NewService returns a Service whose sessions last ttl. Accounts created
// through SignUp with one of adminEmails get the admin role.
func NewService(ttl time.Duration, adminEmails []string) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = normaliseEmail(e); e != "" {
			admins[e] = true
		}
	}
	return &Service{
		sessionTTL:  ttl,
		adminEmails: admins,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RoleFor returns the role a new account with this email receives.
func (s *Service) RoleFor(email string) string {
	if s.adminEmails[normaliseEmail(email)] {
		return RoleAdmin
	}
	return RoleUser
}

// SignUp registers a user with the role derived from the admin list.
func (s *Service) SignUp(ctx context.Context, db *sql.DB, name, email, password string) (*User, error) {
	return s.CreateUser(ctx, db, name, email, password, s.RoleFor(email))
}

// CreateUser registers a user with an explicit role.
func (s *Service) CreateUser(ctx context.Context, db *sql.DB, name, email, password, role string) (*User, error) {
	name = strings.TrimSpace(name)
	email = normaliseEmail(email)
	switch {
	case name == "":
		return nil, ErrNameRequired
	case email == "":
		return nil, ErrEmailRequired
	case len(password) < MinPasswordLength:
		return nil, ErrWeakPassword
	case role != RoleUser && role != RoleAdmin:
		return nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("error inserting user: %w", err)
	}
	return user, nil
}

// Authenticate verifies email and password, returns a new session if successful
func (s *Service) Authenticate(ctx context.Context, db *sql.DB, email, password string) (*User, *Session, error) {
	user, err := s.getUser(ctx, db, "email = ?", normaliseEmail(email))
	if err == ErrUserNotFound {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(user.PasswordHash),
		[]byte(password),
	); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.CreateSession(ctx, db, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// CreateSession opens a new session for userID.
func (s *Service) CreateSession(ctx context.Context, db *sql.DB, userID string) (*Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("error generating session token: %w", err)
	}
	now := s.now()
	session := &Session{
		Token:     token,
		TokenHash: HashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO sessions (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		session.TokenHash, session.UserID, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	return session, nil
}

// ValidateSession resolves a raw session token to its live session and user.
func (s *Service) ValidateSession(ctx context.Context, db *sql.DB, token string) (*Session, *User, error) {
	if token == "" {
		return nil, nil, ErrSessionNotFound
	}
	session := Session{TokenHash: HashToken(token)}
	err := db.QueryRowContext(ctx,
		`SELECT user_id, created_at, expires_at
         FROM sessions
         WHERE token_hash = ? AND expires_at > ?`,
		session.TokenHash, s.now(),
	).Scan(&session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error validating session: %w", err)
	}

	user, err := s.GetUserByID(ctx, db, session.UserID)
	if err == ErrUserNotFound {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return &session, user, nil
}

// InvalidateSession removes a session from the database
func (s *Service) InvalidateSession(ctx context.Context, db *sql.DB, token string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", HashToken(token))
	return err
}

// InvalidateUserSessions logs the user out everywhere.
func (s *Service) InvalidateUserSessions(ctx context.Context, db *sql.DB, userID string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	return err
}

// CleanExpiredSessions removes all expired sessions
func (s *Service) CleanExpiredSessions(ctx context.Context, db *sql.DB) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", s.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Service) GetUserByID(ctx context.Context, db *sql.DB, id string) (*User, error) {
	return s.getUser(ctx, db, "id = ?", id)
}

func (s *Service) GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*User, error) {
	return s.getUser(ctx, db, "email = ?", normaliseEmail(email))
}

// SetRole changes the role of the user with the given email.
func (s *Service) SetRole(ctx context.Context, db *sql.DB, email, role string) error {
	if role != RoleUser && role != RoleAdmin {
		return ErrInvalidRole
	}
	res, err := db.ExecContext(ctx, "UPDATE users SET role = ? WHERE email = ?", role, normaliseEmail(email))
	if err != nil {
		return fmt.Errorf("error updating role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) getUser(ctx context.Context, db *sql.DB, where string, arg any) (*User, error) {
	var u User
	err := db.QueryRowContext(ctx,
		"SELECT id, name, email, role, password_hash, created_at FROM users WHERE "+where,
		arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return &u, nil
}
