package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CorrectionService runs the correction request/approval workflow.
type CorrectionService struct {
	corrections CorrectionStore
	classes     *ClassService
	records     RecordStore
	now         func() time.Time
}

// NewCorrectionService creates a CorrectionService.
func NewCorrectionService(corrections CorrectionStore, classes *ClassService, records RecordStore, now func() time.Time) *CorrectionService {
	if now == nil {
		now = time.Now
	}
	return &CorrectionService{corrections: corrections, classes: classes, records: records, now: now}
}

// Request files a pending correction for a missed check-in.
func (s *CorrectionService) Request(ctx context.Context, studentID, classID, day, reason string) (Correction, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(studentID) == "" {
		verr.add("student_id", "required")
	}
	if strings.TrimSpace(classID) == "" {
		verr.add("class_id", "required")
	}
	if _, err := time.Parse(DayLayout, day); err != nil {
		verr.add("day", "must be YYYY-MM-DD")
	}
	if err := verr.orNil(); err != nil {
		return Correction{}, err
	}

	c := Correction{
		ID:        uuid.NewString(),
		ClassID:   classID,
		StudentID: studentID,
		Day:       day,
		Reason:    strings.TrimSpace(reason),
		Status:    CorrectionPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.corrections.CreateCorrection(ctx, c); err != nil {
		return Correction{}, storageErr("create correction", err)
	}
	return c, nil
}

// Pending lists pending corrections for the teacher's classes.
func (s *CorrectionService) Pending(ctx context.Context, teacherID string) ([]Correction, error) {
	classes, err := s.classes.ForTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, nil
	}
	list, err := s.corrections.PendingCorrections(ctx, classIDs(classes))
	return list, storageErr("list corrections", err)
}

// Approve accepts a pending correction and files the record as corrected.
func (s *CorrectionService) Approve(ctx context.Context, teacherID, id string) (Correction, error) {
	c, err := s.review(ctx, teacherID, id, CorrectionApproved)
	if err != nil {
		return Correction{}, err
	}
	rec := Record{
		ID:        uuid.NewString(),
		ClassID:   c.ClassID,
		Day:       c.Day,
		StudentID: c.StudentID,
		Status:    StatusCorrected,
		MarkedAt:  s.now().UTC(),
	}
	if _, err := s.records.MarkCorrected(ctx, rec); err != nil {
		return Correction{}, storageErr("mark corrected", err)
	}
	return c, nil
}

// Reject declines a pending correction.
func (s *CorrectionService) Reject(ctx context.Context, teacherID, id string) (Correction, error) {
	return s.review(ctx, teacherID, id, CorrectionRejected)
}

func (s *CorrectionService) review(ctx context.Context, teacherID, id string, status CorrectionStatus) (Correction, error) {
	c, err := s.corrections.Correction(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Correction{}, ErrNotFound
		}
		return Correction{}, storageErr("get correction", err)
	}
	if _, err := s.classes.Owned(ctx, teacherID, c.ClassID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Correction{}, ErrForbidden
		}
		return Correction{}, err
	}
	if c.Status != CorrectionPending {
		return Correction{}, ErrNotPending
	}
	now := s.now().UTC()
	c.Status = status
	c.ReviewedBy = teacherID
	c.ReviewedAt = &now
	if err := s.corrections.ReviewCorrection(ctx, c); err != nil {
		if errors.Is(err, ErrNotPending) {
			return Correction{}, ErrNotPending
		}
		return Correction{}, storageErr("review correction", err)
	}
	return c, nil
}
