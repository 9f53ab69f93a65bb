// Package audit records who did what, and summarises it per action.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartattend/internal/logging"
)

// Action names a user-visible operation.
type Action string

const (
	ActionLoggedIn            Action = "USER_LOGGED_IN"
	ActionLoggedOut           Action = "USER_LOGGED_OUT"
	ActionQRGenerated         Action = "QR_GENERATED"
	ActionTokenRevoked        Action = "TOKEN_REVOKED"
	ActionClassUpdated        Action = "CLASS_UPDATED"
	ActionAttendanceMarked    Action = "ATTENDANCE_MARKED"
	ActionCorrectionRequested Action = "CORRECTION_REQUESTED"
	ActionCorrectionApproved  Action = "CORRECTION_APPROVED"
	ActionCorrectionRejected  Action = "CORRECTION_REJECTED"
)

const (
	defaultRecent = 10
	maxRecent     = 200
)

// Entry is one audit log line.
type Entry struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Role   string    `json:"role"`
	Action Action    `json:"action"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// ActionCount is one row of the per-action summary.
type ActionCount struct {
	Action Action `json:"action"`
	Count  int    `json:"count"`
}

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first. An empty userID
	// matches everyone.
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
	CountByAction(ctx context.Context) (map[Action]int, error)
}

// Service writes and reads the audit log.
type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a Service. A nil now uses time.Now.
func NewService(store Store, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now, logger: logger}
}

// Log appends an entry, filling in its id and timestamp when missing.
func (s *Service) Log(ctx context.Context, e Entry) (Entry, error) {
	if strings.TrimSpace(string(e.Action)) == "" {
		return Entry{}, errors.New("audit: action required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	if err := s.store.Append(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("audit: append: %w", err)
	}
	logging.FromContext(ctx, s.logger).Debug("audit entry", "action", string(e.Action), "user_id", e.UserID)
	return e, nil
}

// Recent lists the newest entries for userID (all users when empty).
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = defaultRecent
	case limit > maxRecent:
		limit = maxRecent
	}
	entries, err := s.store.Recent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return entries, nil
}

// Summary counts entries per action, most frequent first.
func (s *Service) Summary(ctx context.Context) ([]ActionCount, error) {
	counts, err := s.store.CountByAction(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: summary: %w", err)
	}
	out := make([]ActionCount, 0, len(counts))
	for a, n := range counts {
		out = append(out, ActionCount{Action: a, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}
