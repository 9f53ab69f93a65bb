package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"smartattend/internal/geo"
)

const pgUniqueViolation = "23505"

// Repository persists attendance data in Postgres. It implements every
// attendance store interface.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const tokenColumns = `id, class_id, issuer_id, secret, to_char(day, 'YYYY-MM-DD'), issued_at, expires_at, active, revoked_at`

func scanToken(row interface{ Scan(...any) error }) (Token, error) {
	var t Token
	var revoked sql.NullTime
	if err := row.Scan(&t.ID, &t.ClassID, &t.IssuerID, &t.Secret, &t.Day, &t.IssuedAt, &t.ExpiresAt, &t.Active, &revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	if revoked.Valid {
		at := revoked.Time
		t.RevokedAt = &at
	}
	return t, nil
}

// Issue revokes the class's active token and inserts tok in one
// transaction. A per-class advisory lock serialises concurrent issuers.
func (r *Repository) Issue(ctx context.Context, tok Token, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tok.ClassID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE attendance_tokens SET active = FALSE, revoked_at = $2
		WHERE class_id = $1 AND active
	`, tok.ClassID, now); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_tokens (id, class_id, issuer_id, secret, day, issued_at, expires_at, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tok.ID, tok.ClassID, tok.IssuerID, tok.Secret, tok.SessionDay(), tok.IssuedAt, tok.ExpiresAt, tok.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "attendance_tokens_secret_key" {
			return ErrSecretTaken
		}
		return err
	}
	return tx.Commit()
}

// TokenBySecret returns the token with the given secret.
func (r *Repository) TokenBySecret(ctx context.Context, secret string) (Token, error) {
	return scanToken(r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM attendance_tokens WHERE secret = $1`, secret))
}

// ActiveToken returns the class's active token.
func (r *Repository) ActiveToken(ctx context.Context, classID string) (Token, error) {
	return scanToken(r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM attendance_tokens WHERE class_id = $1 AND active`, classID))
}

// RevokeActive marks the class's active token revoked.
func (r *Repository) RevokeActive(ctx context.Context, classID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_tokens SET active = FALSE, revoked_at = $2
		WHERE class_id = $1 AND active
	`, classID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const recordColumns = `id, class_id, to_char(day, 'YYYY-MM-DD'), student_id, COALESCE(token_id, ''), status, location_verified, token_verified, distance_m, marked_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	if err := row.Scan(&rec.ID, &rec.ClassID, &rec.Day, &rec.StudentID, &rec.TokenID, &rec.Status,
		&rec.LocationVerified, &rec.TokenVerified, &rec.Distance, &rec.MarkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// FindRecord returns the record for key.
func (r *Repository) FindRecord(ctx context.Context, key RecordKey) (Record, error) {
	return scanRecord(r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE class_id = $1 AND day = $2 AND student_id = $3
	`, key.ClassID, key.Day, key.StudentID))
}

// InsertRecord writes rec unless its key is taken, in which case it
// returns ErrAlreadyMarked.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, class_id, day, student_id, token_id, status, location_verified, token_verified, distance_m, marked_at)
		VALUES ($1,$2,$3,$4,NULLIF($5, ''),$6,$7,$8,$9,$10)
		ON CONFLICT (class_id, day, student_id) DO NOTHING
		RETURNING id
	`, rec.ID, rec.ClassID, rec.Day, rec.StudentID, rec.TokenID, rec.Status,
		rec.LocationVerified, rec.TokenVerified, rec.Distance, rec.MarkedAt)
	if err := row.Scan(&rec.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrAlreadyMarked
		}
		return Record{}, err
	}
	return rec, nil
}

// MarkCorrected upserts the record for rec's key with status corrected.
func (r *Repository) MarkCorrected(ctx context.Context, rec Record) (Record, error) {
	return scanRecord(r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, class_id, day, student_id, status, location_verified, token_verified, distance_m, marked_at)
		VALUES ($1,$2,$3,$4,'corrected',FALSE,FALSE,0,$5)
		ON CONFLICT (class_id, day, student_id) DO UPDATE SET status = 'corrected'
		RETURNING `+recordColumns,
		rec.ID, rec.ClassID, rec.Day, rec.StudentID, rec.MarkedAt))
}

// ListRecords returns records with basic filters, newest first.
func (r *Repository) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	f = f.normalized()
	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if f.ClassID != "" {
		args = append(args, f.ClassID)
		clauses = append(clauses, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if f.Day != "" {
		args = append(args, f.Day)
		clauses = append(clauses, fmt.Sprintf("day = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY marked_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

const classColumns = `id, name, teacher_id, department, year, fence_lat, fence_lng, fence_radius_m`

func scanClass(row interface{ Scan(...any) error }) (Class, error) {
	var c Class
	var lat, lng, radius sql.NullFloat64
	if err := row.Scan(&c.ID, &c.Name, &c.TeacherID, &c.Department, &c.Year, &lat, &lng, &radius); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Class{}, ErrNotFound
		}
		return Class{}, err
	}
	if lat.Valid && lng.Valid && radius.Valid {
		c.Fence = &geo.Fence{
			Center:       geo.Position{Latitude: lat.Float64, Longitude: lng.Float64},
			RadiusMeters: radius.Float64,
		}
	}
	return c, nil
}

func (r *Repository) queryClasses(ctx context.Context, query string, args ...any) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// Fence returns the class's geofence, ErrNotFound if it has none.
func (r *Repository) Fence(ctx context.Context, classID string) (geo.Fence, error) {
	c, err := r.Class(ctx, classID)
	if err != nil {
		return geo.Fence{}, err
	}
	if c.Fence == nil {
		return geo.Fence{}, ErrNotFound
	}
	return *c.Fence, nil
}

// Class returns a class by id.
func (r *Repository) Class(ctx context.Context, id string) (Class, error) {
	return scanClass(r.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id))
}

// ClassesByTeacher lists a teacher's classes.
func (r *Repository) ClassesByTeacher(ctx context.Context, teacherID string) ([]Class, error) {
	return r.queryClasses(ctx, `SELECT `+classColumns+` FROM classes WHERE teacher_id = $1 ORDER BY name`, teacherID)
}

// ClassesByCohort lists the classes of a department and year.
func (r *Repository) ClassesByCohort(ctx context.Context, department, year string) ([]Class, error) {
	return r.queryClasses(ctx, `SELECT `+classColumns+` FROM classes WHERE department = $1 AND year = $2 ORDER BY name`, department, year)
}

// RenameClass updates a class name.
func (r *Repository) RenameClass(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE classes SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const correctionColumns = `id, class_id, student_id, to_char(day, 'YYYY-MM-DD'), reason, status, COALESCE(reviewed_by, ''), created_at, reviewed_at`

func scanCorrection(row interface{ Scan(...any) error }) (Correction, error) {
	var c Correction
	var reviewedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.ClassID, &c.StudentID, &c.Day, &c.Reason, &c.Status, &c.ReviewedBy, &c.CreatedAt, &reviewedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Correction{}, ErrNotFound
		}
		return Correction{}, err
	}
	if reviewedAt.Valid {
		at := reviewedAt.Time
		c.ReviewedAt = &at
	}
	return c, nil
}

// CreateCorrection stores a new correction request.
func (r *Repository) CreateCorrection(ctx context.Context, c Correction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO corrections (id, class_id, student_id, day, reason, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.ClassID, c.StudentID, c.Day, c.Reason, c.Status, c.CreatedAt)
	return err
}

// Correction returns a correction by id.
func (r *Repository) Correction(ctx context.Context, id string) (Correction, error) {
	return scanCorrection(r.db.QueryRowContext(ctx, `SELECT `+correctionColumns+` FROM corrections WHERE id = $1`, id))
}

// PendingCorrections lists pending corrections for the given classes.
func (r *Repository) PendingCorrections(ctx context.Context, classIDs []string) ([]Correction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+correctionColumns+` FROM corrections
		WHERE status = 'pending' AND class_id = ANY($1)
		ORDER BY created_at
	`, classIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Correction
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ReviewCorrection records the review outcome of a pending correction.
func (r *Repository) ReviewCorrection(ctx context.Context, c Correction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE corrections SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
	`, c.ID, c.Status, c.ReviewedBy, c.ReviewedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotPending
	}
	return nil
}

// SessionsHeld counts distinct (class, day) pairs with an issued token.
func (r *Repository) SessionsHeld(ctx context.Context, classIDs []string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT DISTINCT class_id, day
			FROM attendance_tokens WHERE class_id = ANY($1)
		) s
	`, classIDs).Scan(&n)
	return n, err
}

// SessionsAttended counts a student's records in the given classes.
func (r *Repository) SessionsAttended(ctx context.Context, studentID string, classIDs []string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records
		WHERE student_id = $1 AND class_id = ANY($2)
	`, studentID, classIDs).Scan(&n)
	return n, err
}
