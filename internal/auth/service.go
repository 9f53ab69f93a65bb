// Package auth signs users in, issues JWTs and guards routes by role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"smartattend/internal/logging"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrRoleMismatch       = errors.New("auth: role mismatch")
	ErrNotFound           = errors.New("auth: not found")
	ErrSessionRevoked     = errors.New("auth: session revoked")
)

// Role is what a user may do.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleTeacher || r == RoleStudent }

// User is a stored account.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Department   string
	Year         string
}

// Identity is who a request acts as.
type Identity struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	Role       Role   `json:"role"`
	Department string `json:"department,omitempty"`
	Year       string `json:"year,omitempty"`
}

// Session is the result of a successful sign-in.
type Session struct {
	Identity Identity  `json:"identity"`
	Tokens   TokenPair `json:"tokens"`
}

// UserStore looks up accounts. UserByEmail returns ErrNotFound for unknown
// addresses.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (User, error)
}

// RefreshStore tracks issued refresh tokens so logout can revoke them.
type RefreshStore interface {
	SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, token string) (bool, error)
}

// SessionDenylist remembers signed-out sessions until their access tokens
// expire.
type SessionDenylist interface {
	DenySession(ctx context.Context, sid string, until time.Time) error
	SessionDenied(ctx context.Context, sid string) (bool, error)
}

// Config tunes a Service. A nil Denylist keeps signed-out sessions in
// process memory.
type Config struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
	Denylist   SessionDenylist
}

// Service signs users in and out.
type Service struct {
	users   UserStore
	refresh RefreshStore
	cfg     Config
}

// NewService creates a Service.
func NewService(users UserStore, refresh RefreshStore, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	if cfg.Denylist == nil {
		mem := NewMemoryStore()
		mem.now = cfg.Now
		cfg.Denylist = mem
	}
	return &Service{users: users, refresh: refresh, cfg: cfg}
}

// SignIn checks email and password and that the account has the role the
// user signed in as.
func (s *Service) SignIn(ctx context.Context, email, password string, role Role) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	logger := logging.FromContext(ctx, s.cfg.Logger).With("email", email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	u, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Info("sign-in failed", "reason", "unknown_email")
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("auth: lookup user: %w", err)
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		logger.Info("sign-in failed", "reason", "bad_password")
		return Session{}, ErrInvalidCredentials
	}
	if role != "" && u.Role != role {
		logger.Info("sign-in failed", "reason", "role_mismatch", "role", string(role))
		return Session{}, ErrRoleMismatch
	}

	id := Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Department: u.Department, Year: u.Year}
	tokens, err := Issue(id, s.cfg.Issuer, s.cfg.SigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL, s.cfg.Now())
	if err != nil {
		return Session{}, fmt.Errorf("auth: issue tokens: %w", err)
	}
	if err := s.refresh.SaveRefreshToken(ctx, u.ID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		return Session{}, fmt.Errorf("auth: save refresh token: %w", err)
	}
	logger.Info("signed in", "user_id", u.ID, "role", string(u.Role))
	return Session{Identity: id, Tokens: tokens}, nil
}

// SignOut revokes a refresh token and the access token issued with it.
// It returns the identity the tokens were issued to.
func (s *Service) SignOut(ctx context.Context, refreshToken string) (Identity, error) {
	claims, err := Parse(refreshToken, s.cfg.SigningKey, s.cfg.Issuer)
	if err != nil || claims.Kind != kindRefresh {
		return Identity{}, ErrInvalidCredentials
	}
	revoked, err := s.refresh.RevokeRefreshToken(ctx, refreshToken)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: revoke refresh token: %w", err)
	}
	if !revoked {
		return Identity{}, ErrSessionRevoked
	}
	if claims.Session != "" && claims.IssuedAt != nil {
		until := claims.IssuedAt.Time.Add(s.cfg.AccessTTL)
		if err := s.cfg.Denylist.DenySession(ctx, claims.Session, until); err != nil {
			return Identity{}, fmt.Errorf("auth: deny session: %w", err)
		}
	}
	logging.FromContext(ctx, s.cfg.Logger).Info("signed out", "user_id", claims.Subject)
	return claims.Identity(), nil
}

// Authenticate parses an access token and rejects signed-out sessions.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Claims, error) {
	claims, err := Parse(accessToken, s.cfg.SigningKey, s.cfg.Issuer)
	if err != nil {
		return Claims{}, err
	}
	if claims.Kind != kindAccess {
		return Claims{}, errors.New("not an access token")
	}
	if claims.Session != "" {
		denied, err := s.cfg.Denylist.SessionDenied(ctx, claims.Session)
		if err != nil {
			return Claims{}, fmt.Errorf("auth: check session: %w", err)
		}
		if denied {
			return Claims{}, ErrSessionRevoked
		}
	}
	return claims, nil
}
