package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix    = "attendance:"
	defaultTokenRetention = 24 * time.Hour
	maxWatchRetries       = 5
)

// RedisTokenStore keeps tokens in Redis. Each token lives under its secret
// with a TTL of its validity window plus a retention period; a per-class
// key points at the active secret. Writes go through WATCH/MULTI on the
// class key so issue-and-revoke stays atomic.
type RedisTokenStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisTokenStore builds a store under key prefix (default "attendance:").
func NewRedisTokenStore(client *redis.Client, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisTokenStore{client: client, prefix: prefix, retention: defaultTokenRetention}
}

func (s *RedisTokenStore) tokenKey(secret string) string { return s.prefix + "token:" + secret }
func (s *RedisTokenStore) activeKey(classID string) string {
	return s.prefix + "class:" + classID + ":active"
}
func (s *RedisTokenStore) daysKey(classID string) string { return s.prefix + "class:" + classID + ":days" }

func (s *RedisTokenStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func getToken(ctx context.Context, c redis.Cmdable, key string) (Token, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// activeLocked reads the class's active token inside a WATCH.
func (s *RedisTokenStore) activeLocked(ctx context.Context, tx *redis.Tx, classID string) (*Token, error) {
	secret, err := tx.Get(ctx, s.activeKey(classID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tok, err := getToken(ctx, tx, s.tokenKey(secret))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func revokeInPipe(ctx context.Context, pipe redis.Pipeliner, key string, tok Token, now time.Time) error {
	at := now
	tok.Active = false
	tok.RevokedAt = &at
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	pipe.Set(ctx, key, b, redis.KeepTTL)
	return nil
}

// Issue implements TokenStore.
func (s *RedisTokenStore) Issue(ctx context.Context, tok Token, now time.Time) error {
	payload, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	ttl := tok.ExpiresAt.Sub(now) + s.retention
	activeKey := s.activeKey(tok.ClassID)
	tokenKey := s.tokenKey(tok.Secret)

	return s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, tokenKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSecretTaken
		}
		prev, err := s.activeLocked(ctx, tx, tok.ClassID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev != nil && prev.Active {
				if err := revokeInPipe(ctx, pipe, s.tokenKey(prev.Secret), *prev, now); err != nil {
					return err
				}
			}
			pipe.Set(ctx, tokenKey, payload, ttl)
			pipe.Set(ctx, activeKey, tok.Secret, 0)
			pipe.SAdd(ctx, s.daysKey(tok.ClassID), tok.SessionDay())
			return nil
		})
		return err
	}, activeKey, tokenKey)
}

// TokenBySecret implements TokenStore.
func (s *RedisTokenStore) TokenBySecret(ctx context.Context, secret string) (Token, error) {
	return getToken(ctx, s.client, s.tokenKey(secret))
}

// ActiveToken implements TokenStore.
func (s *RedisTokenStore) ActiveToken(ctx context.Context, classID string) (Token, error) {
	secret, err := s.client.Get(ctx, s.activeKey(classID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	return getToken(ctx, s.client, s.tokenKey(secret))
}

// RevokeActive implements TokenStore.
func (s *RedisTokenStore) RevokeActive(ctx context.Context, classID string, now time.Time) (bool, error) {
	activeKey := s.activeKey(classID)
	revoked := false
	err := s.watch(ctx, func(tx *redis.Tx) error {
		revoked = false
		prev, err := s.activeLocked(ctx, tx, classID)
		if err != nil || prev == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev.Active {
				if err := revokeInPipe(ctx, pipe, s.tokenKey(prev.Secret), *prev, now); err != nil {
					return err
				}
			}
			pipe.Del(ctx, activeKey)
			return nil
		})
		revoked = err == nil && prev.Active
		return err
	}, activeKey)
	return revoked, err
}

// SessionsHeld counts the distinct session days per class.
func (s *RedisTokenStore) SessionsHeld(ctx context.Context, classIDs []string) (int, error) {
	if len(classIDs) == 0 {
		return 0, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, 0, len(classIDs))
	for _, id := range classIDs {
		cmds = append(cmds, pipe.SCard(ctx, s.daysKey(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	total := 0
	for _, c := range cmds {
		total += int(c.Val())
	}
	return total, nil
}
