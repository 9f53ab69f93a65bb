package attendance

import (
	"math"
	"sync"
	"time"

	"smartattend/internal/geo"
)

var (
	t0     = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	campus = geo.Position{Latitude: 12.9716, Longitude: 77.5946}
	fence  = geo.Fence{Center: campus, RadiusMeters: 100}
)

// clock is a controllable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(start time.Time) *clock { return &clock{now: start} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// northOf returns the point d meters due north of p.
func northOf(p geo.Position, d float64) geo.Position {
	return geo.Position{
		Latitude:  p.Latitude + d/geo.EarthRadiusMeters*180/math.Pi,
		Longitude: p.Longitude,
	}
}

// sequence returns a secret source yielding the given secrets in order.
func sequence(secrets ...string) func() (string, error) {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(secrets) == 0 {
			return NewSecret()
		}
		s := secrets[0]
		secrets = secrets[1:]
		return s, nil
	}
}

type fixture struct {
	clock    *clock
	store    *MemoryStore
	tokens   *TokenManager
	verifier *Verifier
}

func newFixture(opts ...func(*VerifierConfig)) *fixture {
	c := newClock(t0)
	store := NewMemoryStore()
	f := fence
	store.PutClass(Class{ID: "C1", Name: "Networks", TeacherID: "T1", Department: "CSE", Year: "3", Fence: &f})
	store.PutClass(Class{ID: "C2", Name: "Compilers", TeacherID: "T1", Department: "CSE", Year: "3"})
	store.PutClass(Class{ID: "C3", Name: "Databases", TeacherID: "T2", Department: "CSE", Year: "3"})

	cfg := VerifierConfig{Now: c.Now, LocationTimeout: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	tokens := NewTokenManager(store, 5*time.Minute, WithClock(c.Now), WithLocation(cfg.Location))
	return &fixture{
		clock:    c,
		store:    store,
		tokens:   tokens,
		verifier: NewVerifier(tokens, store, store, cfg),
	}
}
