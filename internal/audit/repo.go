package audit

import (
	"context"
	"database/sql"
)

// Repository stores entries in the audit_logs table.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a Postgres-backed store.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Append(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, role, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.UserID, e.Role, string(e.Action), e.Detail, e.At)
	return err
}

func (r *Repository) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, role, action, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Role, &action, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) CountByAction(ctx context.Context) (map[Action]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM audit_logs GROUP BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Action]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[Action(action)] = n
	}
	return counts, rows.Err()
}
