package attendance

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartattend/internal/geo"
	"smartattend/internal/logging"
)

// SubmitRequest is one check-in attempt.
type SubmitRequest struct {
	Secret    string
	StudentID string
	Position  geo.Position
	// Day is the calendar day (DayLayout) the record is filed under. Empty
	// means today in the verifier's time zone.
	Day string
}

// VerifierConfig tunes a Verifier.
type VerifierConfig struct {
	// DefaultFence applies to classes without their own fence. Nil means
	// such classes cannot accept check-ins.
	DefaultFence    *geo.Fence
	Location        *time.Location
	LocationTimeout time.Duration
	Now             func() time.Time
	Logger          *slog.Logger
}

// Verifier decides whether a check-in is accepted and commits the record.
type Verifier struct {
	tokens       *TokenManager
	records      RecordStore
	fences       FenceStore
	defaultFence *geo.Fence
	loc          *time.Location
	locTimeout   time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewVerifier wires a verifier over the token manager and stores.
func NewVerifier(tokens *TokenManager, records RecordStore, fences FenceStore, cfg VerifierConfig) *Verifier {
	v := &Verifier{
		tokens:       tokens,
		records:      records,
		fences:       fences,
		defaultFence: cfg.DefaultFence,
		loc:          cfg.Location,
		locTimeout:   cfg.LocationTimeout,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
	if v.loc == nil {
		v.loc = time.UTC
	}
	if v.locTimeout <= 0 {
		v.locTimeout = geo.DefaultTimeout
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// Today returns the current calendar day in the verifier's time zone.
func (v *Verifier) Today() string {
	return v.now().In(v.loc).Format(DayLayout)
}

// Submit checks the token, the duplicate key and the geofence in that
// order, then commits exactly one record.
func (v *Verifier) Submit(ctx context.Context, req SubmitRequest) (Record, error) {
	pos := req.Position
	return v.submit(ctx, req.Secret, req.StudentID, req.Day, func(context.Context) (geo.Position, error) {
		return pos, nil
	})
}

// SubmitFrom is Submit with the position obtained from loc. The position
// is only requested once the token and duplicate checks have passed.
func (v *Verifier) SubmitFrom(ctx context.Context, secret, studentID, day string, loc geo.Locator) (Record, error) {
	return v.submit(ctx, secret, studentID, day, func(ctx context.Context) (geo.Position, error) {
		return geo.Acquire(ctx, loc, v.locTimeout)
	})
}

func (v *Verifier) submit(ctx context.Context, secret, studentID, day string, locate func(context.Context) (geo.Position, error)) (Record, error) {
	logger := logging.FromContext(ctx, v.logger).With("student_id", studentID)

	studentID = strings.TrimSpace(studentID)
	verr := &ValidationError{}
	if studentID == "" {
		verr.add("student_id", "required")
	}
	if day == "" {
		day = v.Today()
	} else if _, err := time.Parse(DayLayout, day); err != nil {
		verr.add("day", "must be YYYY-MM-DD")
	}
	if err := verr.orNil(); err != nil {
		return Record{}, err
	}

	tok, err := v.tokens.Validate(ctx, secret)
	if err != nil {
		logger.Info("check-in rejected", "reason", ErrorKind(err))
		return Record{}, err
	}
	logger = logger.With("class_id", tok.ClassID, "day", day)

	key := RecordKey{ClassID: tok.ClassID, Day: day, StudentID: studentID}
	if _, err := v.records.FindRecord(ctx, key); err == nil {
		logger.Info("check-in rejected", "reason", "already_marked")
		return Record{}, ErrAlreadyMarked
	} else if !errors.Is(err, ErrNotFound) {
		return Record{}, storageErr("find record", err)
	}

	fence, err := v.fenceFor(ctx, tok.ClassID)
	if err != nil {
		logger.Error("geofence lookup failed", "error", err)
		return Record{}, err
	}

	pos, err := locate(ctx)
	if err != nil {
		if !errors.Is(err, ErrLocationUnavailable) {
			err = errors.Join(ErrLocationUnavailable, err)
		}
		logger.Info("check-in rejected", "reason", "location_unavailable", "error", err)
		return Record{}, err
	}
	if err := pos.Validate(); err != nil {
		logger.Info("check-in rejected", "reason", "location_unavailable", "error", err)
		return Record{}, errors.Join(ErrLocationUnavailable, err)
	}

	inside, distance := fence.Contains(pos)
	if !inside {
		logger.Info("check-in rejected", "reason", "outside_geofence", "distance_m", distance)
		return Record{}, &OutsideGeofenceError{Distance: distance, Radius: fence.RadiusMeters}
	}

	rec := Record{
		ID:               uuid.NewString(),
		ClassID:          tok.ClassID,
		Day:              day,
		StudentID:        studentID,
		TokenID:          tok.ID,
		Status:           StatusPresent,
		LocationVerified: true,
		TokenVerified:    true,
		Distance:         distance,
		MarkedAt:         v.now().UTC(),
	}
	saved, err := v.records.InsertRecord(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrAlreadyMarked) {
			logger.Info("check-in rejected", "reason", "already_marked", "race", true)
			return Record{}, ErrAlreadyMarked
		}
		return Record{}, storageErr("insert record", err)
	}
	logger.Info("attendance marked", "record_id", saved.ID, "distance_m", distance)
	return saved, nil
}

func (v *Verifier) fenceFor(ctx context.Context, classID string) (geo.Fence, error) {
	fence, err := v.fences.Fence(ctx, classID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		if v.defaultFence == nil {
			return geo.Fence{}, &ConfigurationError{ClassID: classID, Err: ErrFenceNotFound}
		}
		fence = *v.defaultFence
	default:
		return geo.Fence{}, storageErr("lookup fence", err)
	}
	if err := fence.Validate(); err != nil {
		return geo.Fence{}, &ConfigurationError{ClassID: classID, Err: err}
	}
	return fence, nil
}
