package attendance

import (
	"context"
	"errors"
	"strings"
)

const maxClassNameLen = 120

// ClassService lists classes for teachers and students and lets owners
// rename them.
type ClassService struct {
	store ClassStore
}

// NewClassService creates a ClassService.
func NewClassService(store ClassStore) *ClassService {
	return &ClassService{store: store}
}

// ForTeacher lists the classes a teacher owns.
func (s *ClassService) ForTeacher(ctx context.Context, teacherID string) ([]Class, error) {
	classes, err := s.store.ClassesByTeacher(ctx, teacherID)
	return classes, storageErr("list classes", err)
}

// ForStudent lists the classes of a department/year cohort.
func (s *ClassService) ForStudent(ctx context.Context, department, year string) ([]Class, error) {
	classes, err := s.store.ClassesByCohort(ctx, department, year)
	return classes, storageErr("list classes", err)
}

// Owned returns the class if teacherID owns it, ErrForbidden if someone
// else does and ErrNotFound if it does not exist.
func (s *ClassService) Owned(ctx context.Context, teacherID, classID string) (Class, error) {
	c, err := s.store.Class(ctx, classID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Class{}, ErrNotFound
		}
		return Class{}, storageErr("get class", err)
	}
	if c.TeacherID != teacherID {
		return Class{}, ErrForbidden
	}
	return c, nil
}

// Rename changes a class name on behalf of its owner.
func (s *ClassService) Rename(ctx context.Context, teacherID, classID, name string) (Class, error) {
	name = strings.TrimSpace(name)
	verr := &ValidationError{}
	if name == "" {
		verr.add("name", "required")
	} else if len(name) > maxClassNameLen {
		verr.add("name", "too long")
	}
	if err := verr.orNil(); err != nil {
		return Class{}, err
	}

	c, err := s.Owned(ctx, teacherID, classID)
	if err != nil {
		return Class{}, err
	}
	if err := s.store.RenameClass(ctx, classID, name); err != nil {
		return Class{}, storageErr("rename class", err)
	}
	c.Name = name
	return c, nil
}

// Enrolled returns the class if it belongs to the department/year cohort,
// ErrNotFound otherwise.
func (s *ClassService) Enrolled(ctx context.Context, classID, department, year string) (Class, error) {
	c, err := s.store.Class(ctx, classID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Class{}, ErrNotFound
		}
		return Class{}, storageErr("get class", err)
	}
	if c.Department != department || c.Year != year {
		return Class{}, ErrNotFound
	}
	return c, nil
}
