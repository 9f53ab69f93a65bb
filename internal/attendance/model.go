package attendance

import (
	"time"

	"smartattend/internal/geo"
)

// DayLayout formats the calendar day an attendance record belongs to.
const DayLayout = "2006-01-02"

// DefaultTokenTTL is how long a freshly issued token accepts check-ins.
const DefaultTokenTTL = 5 * time.Minute

// Token is one instructor-issued opportunity to check in to a class.
type Token struct {
	ID        string     `json:"id"`
	ClassID   string     `json:"class_id"`
	IssuerID  string     `json:"issuer_id"`
	Secret    string     `json:"secret"`
	Day       string     `json:"day"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Active    bool       `json:"active"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// TokenState distinguishes why a token stopped accepting check-ins.
type TokenState string

const (
	TokenActive  TokenState = "active"
	TokenExpired TokenState = "expired"
	TokenRevoked TokenState = "revoked"
)

// State reports the token's lifecycle state at now. Revocation wins over
// expiry so a superseded token is reported as revoked.
func (t Token) State(now time.Time) TokenState {
	switch {
	case !t.Active:
		return TokenRevoked
	case now.After(t.ExpiresAt):
		return TokenExpired
	default:
		return TokenActive
	}
}

// SessionDay is the calendar day the token opens a session for. Tokens
// stored without one fall back to the UTC day of issue.
func (t Token) SessionDay() string {
	if t.Day != "" {
		return t.Day
	}
	return t.IssuedAt.UTC().Format(DayLayout)
}

// Status of an attendance record.
type Status string

const (
	StatusPresent   Status = "present"
	StatusCorrected Status = "corrected"
)

// Record is one accepted check-in, unique per (ClassID, Day, StudentID).
type Record struct {
	ID               string    `json:"id"`
	ClassID          string    `json:"class_id"`
	Day              string    `json:"day"`
	StudentID        string    `json:"student_id"`
	TokenID          string    `json:"token_id,omitempty"`
	Status           Status    `json:"status"`
	LocationVerified bool      `json:"location_verified"`
	TokenVerified    bool      `json:"token_verified"`
	Distance         float64   `json:"distance_meters"`
	MarkedAt         time.Time `json:"marked_at"`
}

// RecordKey identifies the single record a student may hold per class per day.
type RecordKey struct {
	ClassID   string
	Day       string
	StudentID string
}

// Key returns the record's unique key.
func (r Record) Key() RecordKey {
	return RecordKey{ClassID: r.ClassID, Day: r.Day, StudentID: r.StudentID}
}

// Class is a class meeting series owned by a teacher.
type Class struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TeacherID  string     `json:"teacher_id"`
	Department string     `json:"department"`
	Year       string     `json:"year"`
	Fence      *geo.Fence `json:"fence,omitempty"`
}

// CorrectionStatus tracks review of a correction request.
type CorrectionStatus string

const (
	CorrectionPending  CorrectionStatus = "pending"
	CorrectionApproved CorrectionStatus = "approved"
	CorrectionRejected CorrectionStatus = "rejected"
)

// Correction is a student's request to have a missed check-in recorded.
type Correction struct {
	ID         string           `json:"id"`
	ClassID    string           `json:"class_id"`
	StudentID  string           `json:"student_id"`
	Day        string           `json:"day"`
	Reason     string           `json:"reason"`
	Status     CorrectionStatus `json:"status"`
	ReviewedBy string           `json:"reviewed_by,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ReviewedAt *time.Time       `json:"reviewed_at,omitempty"`
}
