package geo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var campus = Position{Latitude: 12.9716, Longitude: 77.5946}

func TestDistance(t *testing.T) {
	t.Run("zero for identical points", func(t *testing.T) {
		assert.Equal(t, 0.0, Distance(campus, campus))
	})

	t.Run("symmetric", func(t *testing.T) {
		other := Position{Latitude: 13.0827, Longitude: 80.2707}
		assert.InDelta(t, Distance(campus, other), Distance(other, campus), 1e-9)
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		a := Position{Latitude: 0, Longitude: 0}
		b := Position{Latitude: 1, Longitude: 0}
		assert.InDelta(t, 111194.93, Distance(a, b), 0.01)
	})

	t.Run("known city pair", func(t *testing.T) {
		london := Position{Latitude: 51.5074, Longitude: -0.1278}
		paris := Position{Latitude: 48.8566, Longitude: 2.3522}
		assert.InDelta(t, 343_556, Distance(london, paris), 500)
	})
}

// northOf returns the point d meters due north of p.
func northOf(p Position, d float64) Position {
	return Position{Latitude: p.Latitude + radiansToDegrees(d/EarthRadiusMeters), Longitude: p.Longitude}
}

func radiansToDegrees(r float64) float64 { return r * 180 / math.Pi }

func TestFenceContains(t *testing.T) {
	fence := Fence{Center: campus, RadiusMeters: 100}

	tests := []struct {
		name   string
		offset float64
		inside bool
	}{
		{name: "center", offset: 0, inside: true},
		{name: "well inside", offset: 50, inside: true},
		{name: "one meter beyond", offset: 101, inside: false},
		{name: "far away", offset: 500, inside: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, d := fence.Contains(northOf(campus, tt.offset))
			assert.Equal(t, tt.inside, ok)
			assert.InDelta(t, tt.offset, d, 0.01)
		})
	}

	t.Run("exactly on the boundary is accepted", func(t *testing.T) {
		edge := northOf(campus, 100)
		exact := Fence{Center: campus, RadiusMeters: Distance(campus, edge)}
		ok, _ := exact.Contains(edge)
		assert.True(t, ok)
	})
}

func TestFenceValidate(t *testing.T) {
	assert.NoError(t, Fence{Center: campus, RadiusMeters: 50}.Validate())
	assert.Error(t, Fence{Center: campus, RadiusMeters: 0}.Validate())
	assert.Error(t, Fence{Center: Position{Latitude: 91}, RadiusMeters: 10}.Validate())
	assert.Error(t, Fence{Center: Position{Longitude: -181}, RadiusMeters: 10}.Validate())
	assert.Error(t, Fence{Center: campus, RadiusMeters: math.Inf(1)}.Validate())
	assert.Error(t, Fence{Center: Position{Latitude: math.NaN()}, RadiusMeters: 10}.Validate())
}

func TestPositionValidate(t *testing.T) {
	assert.NoError(t, campus.Validate())
	assert.NoError(t, Position{Latitude: -90, Longitude: 180}.Validate())

	for _, p := range []Position{
		{Latitude: campus.Latitude + 360, Longitude: campus.Longitude},
		{Latitude: 0, Longitude: -180.5},
		{Latitude: math.NaN()},
		{Longitude: math.NaN()},
		{Latitude: math.Inf(-1)},
	} {
		assert.ErrorIs(t, p.Validate(), ErrInvalidPosition, "%+v", p)
	}
}

func TestParseFence(t *testing.T) {
	f, ok, err := ParseFence(" 12.5, 77.25 , 150 ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Fence{Center: Position{Latitude: 12.5, Longitude: 77.25}, RadiusMeters: 150}, f)

	_, ok, err = ParseFence("")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseFence("1,2")
	assert.Error(t, err)
	_, _, err = ParseFence("a,b,c")
	assert.Error(t, err)
	_, _, err = ParseFence("1,2,-5")
	assert.Error(t, err)
}

func TestAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the reported position", func(t *testing.T) {
		pos, err := Acquire(ctx, Fixed(&campus), time.Second)
		require.NoError(t, err)
		assert.Equal(t, campus, pos)
	})

	t.Run("missing position is unavailable, not the origin", func(t *testing.T) {
		pos, err := Acquire(ctx, Fixed(nil), time.Second)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, Position{}, pos)
	})

	t.Run("provider failure is wrapped", func(t *testing.T) {
		denied := LocatorFunc(func(context.Context) (Position, error) {
			return Position{}, errors.New("permission denied")
		})
		_, err := Acquire(ctx, denied, time.Second)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), "permission denied")
	})

	t.Run("times out", func(t *testing.T) {
		hang := LocatorFunc(func(ctx context.Context) (Position, error) {
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			return Position{}, ctx.Err()
		})
		start := time.Now()
		_, err := Acquire(ctx, hang, 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("rejects out of range coordinates", func(t *testing.T) {
		bad := Position{Latitude: 120}
		_, err := Acquire(ctx, Fixed(&bad), time.Second)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("nil locator", func(t *testing.T) {
		_, err := Acquire(ctx, nil, time.Second)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
