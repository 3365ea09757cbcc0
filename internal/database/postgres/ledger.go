package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

// Ledger provides PostgreSQL-backed user and attendance storage.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new PostgreSQL ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

const userColumns = `id, employee_id, name, department, face_image, registered_at`

const recordColumns = `id, user_id, user_name, recorded_at, punch_type, confidence, method`

// ListUsers returns all users in registration order.
func (l *Ledger) ListUsers(ctx context.Context) ([]attendance.User, error) {
	rows, err := l.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_seq`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []attendance.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// GetUser retrieves a user by internal id.
func (l *Ledger) GetUser(ctx context.Context, id string) (*attendance.User, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser inserts u or replaces the user with the same employee id.
// The existing row keeps its id and registration position.
func (l *Ledger) UpsertUser(ctx context.Context, u attendance.User) (attendance.User, error) {
	query := `
		INSERT INTO users (id, employee_id, name, department, face_image, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (employee_id) DO UPDATE SET
			name = EXCLUDED.name,
			department = EXCLUDED.department,
			face_image = EXCLUDED.face_image,
			registered_at = EXCLUDED.registered_at
		RETURNING ` + userColumns

	row := l.pool.QueryRow(ctx, query, u.ID, u.EmployeeID, u.Name, u.Department, u.FaceImage, u.RegisteredAt)
	stored, err := scanUser(row)
	if err != nil {
		return attendance.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return stored, nil
}

// DeleteUser removes a user by internal id. Records are kept.
func (l *Ledger) DeleteUser(ctx context.Context, id string) error {
	result, err := l.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ListRecords returns records newest first.
func (l *Ledger) ListRecords(ctx context.Context, filter database.RecordFilter) ([]attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	var args []any
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += ` WHERE user_id = $1`
	}
	query += ` ORDER BY recorded_at DESC, seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// MostRecentRecordFor returns the latest record of userID, nil when none.
// Records with equal timestamps are ordered by insertion.
func (l *Ledger) MostRecentRecordFor(ctx context.Context, userID string) (*attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records
		WHERE user_id = $1
		ORDER BY recorded_at DESC, seq DESC
		LIMIT 1`

	r, err := scanRecord(l.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// AppendRecord stores a new attendance record.
func (l *Ledger) AppendRecord(ctx context.Context, r attendance.Record) error {
	query := `
		INSERT INTO attendance_records (id, user_id, user_name, recorded_at, punch_type, confidence, method)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := l.pool.Exec(ctx, query, r.ID, r.UserID, r.UserName, r.Timestamp, string(r.Type), r.Confidence, r.Method)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// ClearAll truncates users and records in one transaction.
func (l *Ledger) ClearAll(ctx context.Context) error {
	tx, err := l.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "TRUNCATE attendance_records, users RESTART IDENTITY"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear ledger: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (l *Ledger) Close() error {
	return l.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (attendance.User, error) {
	var u attendance.User
	err := row.Scan(&u.ID, &u.EmployeeID, &u.Name, &u.Department, &u.FaceImage, &u.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, err
	}
	if err != nil {
		return u, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func scanRecord(row rowScanner) (attendance.Record, error) {
	var r attendance.Record
	var punch string
	err := row.Scan(&r.ID, &r.UserID, &r.UserName, &r.Timestamp, &punch, &r.Confidence, &r.Method)
	if errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("scan record: %w", err)
	}
	r.Type = attendance.PunchType(punch)
	return r, nil
}
