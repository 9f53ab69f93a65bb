package geo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is returned when a device position could not be obtained:
// permission denied, provider failure or timeout.
var ErrUnavailable = errors.New("location unavailable")

// DefaultTimeout bounds a single position acquisition.
const DefaultTimeout = 12 * time.Second

// Locator yields the caller's current position. Implementations should
// return an error rather than a zero Position when no fix is available.
type Locator interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Position, error)

// CurrentPosition calls f.
func (f LocatorFunc) CurrentPosition(ctx context.Context) (Position, error) { return f(ctx) }

// Fixed returns a Locator reporting p, or ErrUnavailable when p is nil.
// It is what request handlers use for a position reported by the client.
func Fixed(p *Position) Locator {
	return LocatorFunc(func(context.Context) (Position, error) {
		if p == nil {
			return Position{}, ErrUnavailable
		}
		return *p, nil
	})
}

// Acquire asks loc for a position, giving up after timeout. Every failure
// is reported as ErrUnavailable (wrapping the cause when there is one).
func Acquire(ctx context.Context, loc Locator, timeout time.Duration) (Position, error) {
	if loc == nil {
		return Position{}, ErrUnavailable
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		pos Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pos, err := loc.CurrentPosition(ctx)
		ch <- result{pos, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, ErrUnavailable) {
				return Position{}, r.err
			}
			return Position{}, fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}
		if err := r.pos.Validate(); err != nil {
			return Position{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return r.pos, nil
	case <-ctx.Done():
		return Position{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}
