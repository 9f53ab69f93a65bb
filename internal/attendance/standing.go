package attendance

import (
	"context"
	"math"
)

// Band classifies an attendance percentage.
type Band string

const (
	BandGood    Band = "good"
	BandWarning Band = "warning"
	BandAtRisk  Band = "at_risk"
)

const (
	goodThreshold    = 75.0
	warningThreshold = 60.0
)

// Standing summarises a student's attendance across their classes.
type Standing struct {
	Attended   int     `json:"attended"`
	Held       int     `json:"held"`
	Percentage float64 `json:"percentage"`
	Band       Band    `json:"band"`
}

// ClassifyStanding computes the percentage and band. With no sessions held
// the student has missed nothing and is reported at 100%.
func ClassifyStanding(attended, held int) Standing {
	s := Standing{Attended: attended, Held: held, Percentage: 100}
	if held > 0 {
		s.Percentage = math.Round(float64(attended)/float64(held)*10000) / 100
	}
	switch {
	case s.Percentage >= goodThreshold:
		s.Band = BandGood
	case s.Percentage >= warningThreshold:
		s.Band = BandWarning
	default:
		s.Band = BandAtRisk
	}
	return s
}

// StandingService computes standings from stored sessions and records.
type StandingService struct {
	classes ClassStore
	reports ReportStore
}

// NewStandingService creates a StandingService.
func NewStandingService(classes ClassStore, reports ReportStore) *StandingService {
	return &StandingService{classes: classes, reports: reports}
}

// Standing returns the standing of a student in the given cohort.
func (s *StandingService) Standing(ctx context.Context, studentID, department, year string) (Standing, error) {
	classes, err := s.classes.ClassesByCohort(ctx, department, year)
	if err != nil {
		return Standing{}, storageErr("list classes", err)
	}
	ids := classIDs(classes)
	if len(ids) == 0 {
		return ClassifyStanding(0, 0), nil
	}
	held, err := s.reports.SessionsHeld(ctx, ids)
	if err != nil {
		return Standing{}, storageErr("count sessions", err)
	}
	attended, err := s.reports.SessionsAttended(ctx, studentID, ids)
	if err != nil {
		return Standing{}, storageErr("count attendance", err)
	}
	if attended > held {
		held = attended
	}
	return ClassifyStanding(attended, held), nil
}

func classIDs(classes []Class) []string {
	ids := make([]string, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ID)
	}
	return ids
}

// SplitReports answers SessionsHeld from the token store and
// SessionsAttended from the record store, for deployments that keep tokens
// outside the main database.
type SplitReports struct {
	Held interface {
		SessionsHeld(ctx context.Context, classIDs []string) (int, error)
	}
	Attended interface {
		SessionsAttended(ctx context.Context, studentID string, classIDs []string) (int, error)
	}
}

// SessionsHeld implements ReportStore.
func (r SplitReports) SessionsHeld(ctx context.Context, classIDs []string) (int, error) {
	return r.Held.SessionsHeld(ctx, classIDs)
}

// SessionsAttended implements ReportStore.
func (r SplitReports) SessionsAttended(ctx context.Context, studentID string, classIDs []string) (int, error) {
	return r.Attended.SessionsAttended(ctx, studentID, classIDs)
}
