package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDenylist shares signed-out sessions across API instances. Keys
// expire with the access tokens they block.
type RedisDenylist struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisDenylist builds a denylist under key prefix (default "auth:denied:").
func NewRedisDenylist(client *redis.Client, prefix string) *RedisDenylist {
	if prefix == "" {
		prefix = "auth:denied:"
	}
	return &RedisDenylist{client: client, prefix: prefix, now: time.Now}
}

func (d *RedisDenylist) DenySession(ctx context.Context, sid string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.prefix+sid, 1, ttl).Err()
}

func (d *RedisDenylist) SessionDenied(ctx context.Context, sid string) (bool, error) {
	err := d.client.Get(ctx, d.prefix+sid).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return err == nil, err
}
