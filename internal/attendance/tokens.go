package attendance

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartattend/internal/logging"
)

// secretAlphabet is Crockford's base32: no I, L, O or U, so secrets read
// aloud or typed from a projector survive.
const secretAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var secretEncoding = base32.NewEncoding(secretAlphabet).WithPadding(base32.NoPadding)

// NewSecret returns 8 characters carrying 40 random bits.
func NewSecret() (string, error) {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return secretEncoding.EncodeToString(b), nil
}

// NormalizeSecret upper-cases and trims a secret as typed by a learner.
func NormalizeSecret(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

const issueAttempts = 3

// TokenManager issues, revokes and validates attendance tokens.
type TokenManager struct {
	store     TokenStore
	ttl       time.Duration
	now       func() time.Time
	loc       *time.Location
	newSecret func() (string, error)
	logger    *slog.Logger
}

// TokenManagerOption customises a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLocation sets the time zone session days are counted in. It must
// match the verifier's so a session and its records share a day.
func WithLocation(loc *time.Location) TokenManagerOption {
	return func(m *TokenManager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithSecretSource overrides secret generation.
func WithSecretSource(fn func() (string, error)) TokenManagerOption {
	return func(m *TokenManager) {
		if fn != nil {
			m.newSecret = fn
		}
	}
}

// WithTokenLogger sets the fallback logger.
func WithTokenLogger(l *slog.Logger) TokenManagerOption {
	return func(m *TokenManager) { m.logger = l }
}

// NewTokenManager creates a manager issuing tokens valid for ttl.
func NewTokenManager(store TokenStore, ttl time.Duration, opts ...TokenManagerOption) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	m := &TokenManager{
		store:     store,
		ttl:       ttl,
		now:       time.Now,
		loc:       time.UTC,
		newSecret: NewSecret,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL is the validity window of issued tokens.
func (m *TokenManager) TTL() time.Duration { return m.ttl }

// Create issues a new token for classID, superseding any active one.
func (m *TokenManager) Create(ctx context.Context, classID, issuerID string) (Token, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(classID) == "" {
		verr.add("class_id", "required")
	}
	if strings.TrimSpace(issuerID) == "" {
		verr.add("issuer_id", "required")
	}
	if err := verr.orNil(); err != nil {
		return Token{}, err
	}

	logger := logging.FromContext(ctx, m.logger).With("class_id", classID)
	var lastErr error
	for attempt := 0; attempt < issueAttempts; attempt++ {
		secret, err := m.newSecret()
		if err != nil {
			return Token{}, storageErr("generate secret", err)
		}
		now := m.now().UTC()
		tok := Token{
			ID:        uuid.NewString(),
			ClassID:   classID,
			IssuerID:  issuerID,
			Secret:    NormalizeSecret(secret),
			Day:       now.In(m.loc).Format(DayLayout),
			IssuedAt:  now,
			ExpiresAt: now.Add(m.ttl),
			Active:    true,
		}
		err = m.store.Issue(ctx, tok, now)
		if err == nil {
			logger.Info("token issued", "token_id", tok.ID, "expires_at", tok.ExpiresAt)
			return tok, nil
		}
		if !errors.Is(err, ErrSecretTaken) {
			return Token{}, storageErr("issue token", err)
		}
		logger.Warn("secret collision, regenerating", "attempt", attempt+1)
		lastErr = err
	}
	return Token{}, storageErr("issue token", lastErr)
}

// Validate returns the token owning secret if it is active and unexpired.
// It has no side effects: the token stays usable by other learners until
// it expires or is superseded.
func (m *TokenManager) Validate(ctx context.Context, secret string) (Token, error) {
	secret = NormalizeSecret(secret)
	if secret == "" {
		return Token{}, ErrInvalidToken
	}
	tok, err := m.store.TokenBySecret(ctx, secret)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Token{}, ErrInvalidToken
		}
		return Token{}, storageErr("lookup token", err)
	}
	if state := tok.State(m.now()); state != TokenActive {
		logging.FromContext(ctx, m.logger).Debug("token rejected", "token_id", tok.ID, "state", string(state))
		return Token{}, ErrInvalidToken
	}
	return tok, nil
}

// Active returns the currently valid token for classID.
func (m *TokenManager) Active(ctx context.Context, classID string) (Token, error) {
	tok, err := m.store.ActiveToken(ctx, classID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Token{}, ErrInvalidToken
		}
		return Token{}, storageErr("active token", err)
	}
	if tok.State(m.now()) != TokenActive {
		return Token{}, ErrInvalidToken
	}
	return tok, nil
}

// Revoke deactivates the class's active token. It reports whether one was
// revoked.
func (m *TokenManager) Revoke(ctx context.Context, classID string) (bool, error) {
	revoked, err := m.store.RevokeActive(ctx, classID, m.now().UTC())
	if err != nil {
		return false, storageErr("revoke token", err)
	}
	if revoked {
		logging.FromContext(ctx, m.logger).Info("token revoked", "class_id", classID)
	}
	return revoked, nil
}
