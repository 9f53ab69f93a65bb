package attendance

import (
	"errors"
	"fmt"

	"smartattend/internal/geo"
)

var (
	// ErrInvalidToken covers unknown, revoked and expired secrets alike.
	ErrInvalidToken = errors.New("attendance: invalid token")
	// ErrAlreadyMarked is returned when the student already holds a record
	// for the class on that day.
	ErrAlreadyMarked = errors.New("attendance: already marked")
	// ErrLocationUnavailable is returned when no device position could be
	// obtained. It is never replaced by a default coordinate.
	ErrLocationUnavailable = geo.ErrUnavailable
	// ErrFenceNotFound means neither the class nor the configuration
	// defines a geofence.
	ErrFenceNotFound = errors.New("attendance: geofence not configured")

	ErrNotFound   = errors.New("attendance: not found")
	ErrForbidden  = errors.New("attendance: forbidden")
	ErrNotPending = errors.New("attendance: correction already reviewed")

	// ErrSecretTaken is reported by a TokenStore when a generated secret
	// collides with an existing token.
	ErrSecretTaken = errors.New("attendance: secret already in use")
)

// OutsideGeofenceError carries the measured distance for diagnostics.
type OutsideGeofenceError struct {
	Distance float64
	Radius   float64
}

func (e *OutsideGeofenceError) Error() string {
	return fmt.Sprintf("attendance: outside geofence (%.0fm from center, limit %.0fm)", e.Distance, e.Radius)
}

// StorageError wraps a failure of the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("attendance: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ConfigurationError reports missing or invalid deployment configuration.
type ConfigurationError struct {
	ClassID string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("attendance: configuration for class %s: %v", e.ClassID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError captures field level problems with caller input.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %d field(s)", len(v.FieldErrors))
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) orNil() error {
	if v == nil || len(v.FieldErrors) == 0 {
		return nil
	}
	return v
}

// ErrorKind maps errors to a stable label for logs and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrAlreadyMarked):
		return "already_marked"
	case errors.Is(err, ErrLocationUnavailable):
		return "location_unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotPending):
		return "not_pending"
	}

	var outside *OutsideGeofenceError
	var cfg *ConfigurationError
	var storage *StorageError
	var validation *ValidationError
	switch {
	case errors.As(err, &outside):
		return "outside_geofence"
	case errors.As(err, &cfg):
		return "configuration"
	case errors.As(err, &storage):
		return "storage"
	case errors.As(err, &validation):
		return "validation"
	}
	return "unexpected"
}
