package attendance

import (
	"context"
	"time"

	"smartattend/internal/geo"
)

// TokenStore persists tokens. Issue must revoke the class's active token
// and save the new one as a single atomic unit so that at most one token
// per class is ever active.
type TokenStore interface {
	Issue(ctx context.Context, tok Token, now time.Time) error
	TokenBySecret(ctx context.Context, secret string) (Token, error)
	ActiveToken(ctx context.Context, classID string) (Token, error)
	RevokeActive(ctx context.Context, classID string, now time.Time) (bool, error)
}

// RecordStore persists attendance records. InsertRecord must fail with
// ErrAlreadyMarked, without writing, when a record with the same key
// exists, even under concurrent calls.
type RecordStore interface {
	FindRecord(ctx context.Context, key RecordKey) (Record, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	MarkCorrected(ctx context.Context, rec Record) (Record, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]Record, error)
}

// RecordFilter narrows ListRecords. Empty fields match everything.
type RecordFilter struct {
	ClassID   string
	StudentID string
	Day       string
	Limit     int
	Offset    int
}

func (f RecordFilter) normalized() RecordFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// FenceStore resolves the geofence configured for a class. It returns
// ErrNotFound when the class has none.
type FenceStore interface {
	Fence(ctx context.Context, classID string) (geo.Fence, error)
}

// ClassStore reads and renames classes.
type ClassStore interface {
	Class(ctx context.Context, id string) (Class, error)
	ClassesByTeacher(ctx context.Context, teacherID string) ([]Class, error)
	ClassesByCohort(ctx context.Context, department, year string) ([]Class, error)
	RenameClass(ctx context.Context, id, name string) error
}

// CorrectionStore persists correction requests.
type CorrectionStore interface {
	CreateCorrection(ctx context.Context, c Correction) error
	Correction(ctx context.Context, id string) (Correction, error)
	PendingCorrections(ctx context.Context, classIDs []string) ([]Correction, error)
	ReviewCorrection(ctx context.Context, c Correction) error
}

// ReportStore answers the aggregate questions behind a student's standing.
type ReportStore interface {
	// SessionsHeld counts distinct (class, day) pairs with an issued token.
	SessionsHeld(ctx context.Context, classIDs []string) (int, error)
	// SessionsAttended counts the student's records in those classes.
	SessionsAttended(ctx context.Context, studentID string, classIDs []string) (int, error)
}
