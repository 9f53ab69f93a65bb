package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EarthRadiusMeters is the mean earth radius used by Distance.
const EarthRadiusMeters = 6371000.0

var validate = validator.New()

// Position is a WGS84 coordinate in decimal degrees.
type Position struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// ErrInvalidPosition is returned for coordinates outside the WGS84 ranges
// or not finite.
var ErrInvalidPosition = errors.New("geo: invalid position")

// Validate rejects NaN, infinite and out-of-range coordinates.
func (p Position) Validate() error {
	if !finite(p.Latitude) || !finite(p.Longitude) {
		return fmt.Errorf("%w: non-finite coordinate", ErrInvalidPosition)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Fence is a circular region around Center.
type Fence struct {
	Center       Position `json:"center"`
	RadiusMeters float64  `json:"radius_meters" validate:"gt=0"`
}

// Validate checks coordinate ranges and that the radius is positive.
func (f Fence) Validate() error {
	if !finite(f.RadiusMeters) {
		return fmt.Errorf("invalid fence: non-finite radius")
	}
	if err := f.Center.Validate(); err != nil {
		return fmt.Errorf("invalid fence: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid fence: %w", err)
	}
	return nil
}

// Contains reports whether p lies inside or exactly on the fence boundary,
// along with the computed distance from the center.
func (f Fence) Contains(p Position) (bool, float64) {
	d := Distance(f.Center, p)
	return d <= f.RadiusMeters, d
}

// Distance returns the great-circle distance in meters between a and b
// using the haversine formula.
func Distance(a, b Position) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// ParseFence reads a fence from "lat,lng,radius". An empty string yields
// ok=false and no error.
func ParseFence(s string) (Fence, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Fence{}, false, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Fence{}, false, fmt.Errorf("fence %q: want lat,lng,radius", s)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Fence{}, false, fmt.Errorf("fence %q: %w", s, err)
		}
		vals[i] = v
	}
	f := Fence{Center: Position{Latitude: vals[0], Longitude: vals[1]}, RadiusMeters: vals[2]}
	if err := f.Validate(); err != nil {
		return Fence{}, false, err
	}
	return f, true, nil
}
