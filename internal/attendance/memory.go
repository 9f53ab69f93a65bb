package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"smartattend/internal/geo"
)

// MemoryStore implements every attendance store in process memory. It is
// used for development and tests; a single mutex makes Issue and
// InsertRecord atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	tokens      map[string]*Token // by secret
	active      map[string]string // class id -> secret
	records     map[RecordKey]Record
	classes     map[string]Class
	corrections map[string]Correction
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:      make(map[string]*Token),
		active:      make(map[string]string),
		records:     make(map[RecordKey]Record),
		classes:     make(map[string]Class),
		corrections: make(map[string]Correction),
	}
}

// PutClass adds or replaces a class.
func (s *MemoryStore) PutClass(c Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[c.ID] = c
}

// Issue implements TokenStore.
func (s *MemoryStore) Issue(_ context.Context, tok Token, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.tokens[tok.Secret]; taken {
		return ErrSecretTaken
	}
	s.revokeLocked(tok.ClassID, now)
	t := tok
	s.tokens[tok.Secret] = &t
	s.active[tok.ClassID] = tok.Secret
	return nil
}

func (s *MemoryStore) revokeLocked(classID string, now time.Time) bool {
	secret, ok := s.active[classID]
	if !ok {
		return false
	}
	delete(s.active, classID)
	prev := s.tokens[secret]
	if prev == nil || !prev.Active {
		return false
	}
	at := now
	prev.Active = false
	prev.RevokedAt = &at
	return true
}

// TokenBySecret implements TokenStore.
func (s *MemoryStore) TokenBySecret(_ context.Context, secret string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[secret]
	if !ok {
		return Token{}, ErrNotFound
	}
	return *tok, nil
}

// ActiveToken implements TokenStore.
func (s *MemoryStore) ActiveToken(_ context.Context, classID string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.active[classID]
	if !ok {
		return Token{}, ErrNotFound
	}
	return *s.tokens[secret], nil
}

// RevokeActive implements TokenStore.
func (s *MemoryStore) RevokeActive(_ context.Context, classID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeLocked(classID, now), nil
}

// Tokens returns every token ever issued for classID, oldest first.
func (s *MemoryStore) Tokens(classID string) []Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Token
	for _, t := range s.tokens {
		if t.ClassID == classID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

// FindRecord implements RecordStore.
func (s *MemoryStore) FindRecord(_ context.Context, key RecordKey) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// InsertRecord implements RecordStore.
func (s *MemoryStore) InsertRecord(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.Key()]; exists {
		return Record{}, ErrAlreadyMarked
	}
	s.records[rec.Key()] = rec
	return rec, nil
}

// MarkCorrected implements RecordStore.
func (s *MemoryStore) MarkCorrected(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.Key()]; ok {
		existing.Status = StatusCorrected
		s.records[rec.Key()] = existing
		return existing, nil
	}
	rec.Status = StatusCorrected
	s.records[rec.Key()] = rec
	return rec, nil
}

// ListRecords implements RecordStore.
func (s *MemoryStore) ListRecords(_ context.Context, f RecordFilter) ([]Record, error) {
	f = f.normalized()
	s.mu.RLock()
	var out []Record
	for _, r := range s.records {
		if (f.ClassID == "" || r.ClassID == f.ClassID) &&
			(f.StudentID == "" || r.StudentID == f.StudentID) &&
			(f.Day == "" || r.Day == f.Day) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.After(out[j].MarkedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Fence implements FenceStore.
func (s *MemoryStore) Fence(_ context.Context, classID string) (geo.Fence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[classID]
	if !ok || c.Fence == nil {
		return geo.Fence{}, ErrNotFound
	}
	return *c.Fence, nil
}

// Class implements ClassStore.
func (s *MemoryStore) Class(_ context.Context, id string) (Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[id]
	if !ok {
		return Class{}, ErrNotFound
	}
	return c, nil
}

// ClassesByTeacher implements ClassStore.
func (s *MemoryStore) ClassesByTeacher(_ context.Context, teacherID string) ([]Class, error) {
	return s.filterClasses(func(c Class) bool { return c.TeacherID == teacherID }), nil
}

// ClassesByCohort implements ClassStore.
func (s *MemoryStore) ClassesByCohort(_ context.Context, department, year string) ([]Class, error) {
	return s.filterClasses(func(c Class) bool { return c.Department == department && c.Year == year }), nil
}

func (s *MemoryStore) filterClasses(keep func(Class) bool) []Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Class
	for _, c := range s.classes {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RenameClass implements ClassStore.
func (s *MemoryStore) RenameClass(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return ErrNotFound
	}
	c.Name = name
	s.classes[id] = c
	return nil
}

// CreateCorrection implements CorrectionStore.
func (s *MemoryStore) CreateCorrection(_ context.Context, c Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrections[c.ID] = c
	return nil
}

// Correction implements CorrectionStore.
func (s *MemoryStore) Correction(_ context.Context, id string) (Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corrections[id]
	if !ok {
		return Correction{}, ErrNotFound
	}
	return c, nil
}

// PendingCorrections implements CorrectionStore.
func (s *MemoryStore) PendingCorrections(_ context.Context, classIDs []string) ([]Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(classIDs))
	for _, id := range classIDs {
		want[id] = true
	}
	var out []Correction
	for _, c := range s.corrections {
		if c.Status == CorrectionPending && want[c.ClassID] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ReviewCorrection implements CorrectionStore. Only pending corrections
// can be reviewed.
func (s *MemoryStore) ReviewCorrection(_ context.Context, c Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.corrections[c.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != CorrectionPending {
		return ErrNotPending
	}
	s.corrections[c.ID] = c
	return nil
}

// SessionsHeld implements ReportStore.
func (s *MemoryStore) SessionsHeld(_ context.Context, classIDs []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := toSet(classIDs)
	type session struct{ class, day string }
	seen := make(map[session]bool)
	for _, t := range s.tokens {
		if want[t.ClassID] {
			seen[session{t.ClassID, t.SessionDay()}] = true
		}
	}
	return len(seen), nil
}

// SessionsAttended implements ReportStore.
func (s *MemoryStore) SessionsAttended(_ context.Context, studentID string, classIDs []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := toSet(classIDs)
	n := 0
	for k := range s.records {
		if k.StudentID == studentID && want[k.ClassID] {
			n++
		}
	}
	return n, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
