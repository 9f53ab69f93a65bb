package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTokens(t *testing.T) (*RedisTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTokenStore(client, ""), mr
}

func TestRedisTokenStore_IssueRevokesPrevious(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisTokens(t)
	c := newClock(t0)
	m := NewTokenManager(store, 5*time.Minute, WithClock(c.Now))

	first, err := m.Create(ctx, "C1", "T1")
	require.NoError(t, err)
	c.Advance(time.Minute)
	second, err := m.Create(ctx, "C1", "T1")
	require.NoError(t, err)

	_, err = m.Validate(ctx, first.Secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
	got, err := m.Validate(ctx, second.Secret)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	old, err := store.TokenBySecret(ctx, first.Secret)
	require.NoError(t, err)
	assert.False(t, old.Active)
	require.NotNil(t, old.RevokedAt)
	assert.True(t, old.RevokedAt.Equal(t0.Add(time.Minute)))

	active, err := store.ActiveToken(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, second.Secret, active.Secret)

	assert.Equal(t, second.Secret, mustGet(t, mr, "attendance:class:C1:active"))
	assert.Greater(t, mr.TTL("attendance:token:"+second.Secret), 24*time.Hour)
}

func TestRedisTokenStore_SecretCollision(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisTokens(t)

	tok := Token{ID: "a", ClassID: "C1", Secret: "AAAAAAAA", IssuedAt: t0, ExpiresAt: t0.Add(time.Minute), Active: true}
	require.NoError(t, store.Issue(ctx, tok, t0))

	dup := tok
	dup.ID, dup.ClassID = "b", "C2"
	assert.ErrorIs(t, store.Issue(ctx, dup, t0), ErrSecretTaken)

	_, err := store.ActiveToken(ctx, "C2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisTokenStore_RevokeActive(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisTokens(t)

	revoked, err := store.RevokeActive(ctx, "C1", t0)
	require.NoError(t, err)
	assert.False(t, revoked)

	tok := Token{ID: "a", ClassID: "C1", Secret: "AAAAAAAA", IssuedAt: t0, ExpiresAt: t0.Add(time.Minute), Active: true}
	require.NoError(t, store.Issue(ctx, tok, t0))

	revoked, err = store.RevokeActive(ctx, "C1", t0)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = store.ActiveToken(ctx, "C1")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := store.TokenBySecret(ctx, "AAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, TokenRevoked, got.State(t0))
}

func TestRedisTokenStore_SessionsHeld(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisTokens(t)
	c := newClock(t0)
	m := NewTokenManager(store, time.Minute, WithClock(c.Now))

	for _, step := range []struct {
		class   string
		advance time.Duration
	}{
		{"C1", 0}, {"C1", time.Hour}, {"C2", 0}, {"C1", 24 * time.Hour},
	} {
		c.Advance(step.advance)
		_, err := m.Create(ctx, step.class, "T1")
		require.NoError(t, err)
	}

	n, err := store.SessionsHeld(ctx, []string{"C1", "C2", "C3"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.SessionsHeld(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisTokenStore_SessionsHeldUsesSessionDay(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisTokens(t)
	ist := time.FixedZone("IST", 5*3600+1800)
	c := newClock(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC))
	m := NewTokenManager(store, time.Minute, WithClock(c.Now), WithLocation(ist))

	_, err := m.Create(ctx, "C1", "T1")
	require.NoError(t, err)
	c.Advance(time.Hour)
	_, err = m.Create(ctx, "C1", "T1")
	require.NoError(t, err)

	n, err := store.SessionsHeld(ctx, []string{"C1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	members, err := mr.Members("attendance:class:C1:days")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-03"}, members)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
