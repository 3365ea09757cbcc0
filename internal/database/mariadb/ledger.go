package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

// Ledger provides MariaDB-backed user and attendance storage using sqlx.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new MariaDB ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS users (
		created_seq   BIGINT AUTO_INCREMENT PRIMARY KEY,
		id            VARCHAR(64) NOT NULL UNIQUE,
		employee_id   VARCHAR(255) NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		department    TEXT NOT NULL,
		face_image    MEDIUMBLOB NOT NULL,
		registered_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		seq         BIGINT AUTO_INCREMENT PRIMARY KEY,
		id          VARCHAR(64) NOT NULL UNIQUE,
		user_id     VARCHAR(64) NOT NULL,
		user_name   TEXT NOT NULL,
		recorded_at DATETIME(6) NOT NULL,
		punch_type  VARCHAR(3) NOT NULL,
		confidence  DOUBLE NOT NULL DEFAULT 0,
		method      VARCHAR(64) NOT NULL,
		INDEX attendance_records_user_latest_idx (user_id, recorded_at, seq)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureTables creates the ledger tables if they do not exist (idempotent).
func (l *Ledger) EnsureTables(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := l.pool.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}
	return nil
}

type userRow struct {
	ID           string    `db:"id"`
	EmployeeID   string    `db:"employee_id"`
	Name         string    `db:"name"`
	Department   string    `db:"department"`
	FaceImage    []byte    `db:"face_image"`
	RegisteredAt time.Time `db:"registered_at"`
}

func (r userRow) toUser() attendance.User {
	return attendance.User{
		ID:           r.ID,
		EmployeeID:   r.EmployeeID,
		Name:         r.Name,
		Department:   r.Department,
		FaceImage:    r.FaceImage,
		RegisteredAt: r.RegisteredAt.UTC(),
	}
}

type recordRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	UserName   string    `db:"user_name"`
	RecordedAt time.Time `db:"recorded_at"`
	PunchType  string    `db:"punch_type"`
	Confidence float64   `db:"confidence"`
	Method     string    `db:"method"`
}

func (r recordRow) toRecord() attendance.Record {
	return attendance.Record{
		ID:         r.ID,
		UserID:     r.UserID,
		UserName:   r.UserName,
		Timestamp:  r.RecordedAt.UTC(),
		Type:       attendance.PunchType(r.PunchType),
		Confidence: r.Confidence,
		Method:     r.Method,
	}
}

const userColumns = `id, employee_id, name, department, face_image, registered_at`

const recordColumns = `id, user_id, user_name, recorded_at, punch_type, confidence, method`

// ListUsers returns all users in registration order.
func (l *Ledger) ListUsers(ctx context.Context) ([]attendance.User, error) {
	var rows []userRow
	if err := l.pool.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_seq`); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	users := make([]attendance.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

// GetUser retrieves a user by internal id.
func (l *Ledger) GetUser(ctx context.Context, id string) (*attendance.User, error) {
	var row userRow
	err := l.pool.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u := row.toUser()
	return &u, nil
}

// UpsertUser inserts u or replaces the user with the same employee id,
// keeping the stored id.
func (l *Ledger) UpsertUser(ctx context.Context, u attendance.User) (attendance.User, error) {
	tx, err := l.pool.db.BeginTxx(ctx, nil)
	if err != nil {
		return attendance.User{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO users (id, employee_id, name, department, face_image, registered_at)
		VALUES (:id, :employee_id, :name, :department, :face_image, :registered_at)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			department = VALUES(department),
			face_image = VALUES(face_image),
			registered_at = VALUES(registered_at)`
	row := userRow{
		ID:           u.ID,
		EmployeeID:   u.EmployeeID,
		Name:         u.Name,
		Department:   u.Department,
		FaceImage:    u.FaceImage,
		RegisteredAt: u.RegisteredAt.UTC(),
	}
	if _, err := tx.NamedExecContext(ctx, q, row); err != nil {
		return attendance.User{}, fmt.Errorf("upsert user: %w", err)
	}

	var stored userRow
	if err := tx.GetContext(ctx, &stored, `SELECT `+userColumns+` FROM users WHERE employee_id = ?`, u.EmployeeID); err != nil {
		return attendance.User{}, fmt.Errorf("reload user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return attendance.User{}, fmt.Errorf("commit upsert: %w", err)
	}
	return stored.toUser(), nil
}

// DeleteUser removes a user by internal id. Records are kept.
func (l *Ledger) DeleteUser(ctx context.Context, id string) error {
	result, err := l.pool.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
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
		query += ` WHERE user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY recorded_at DESC, seq DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var rows []recordRow
	if err := l.pool.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toRecord())
	}
	return records, nil
}

// MostRecentRecordFor returns the latest record of userID, nil when none.
func (l *Ledger) MostRecentRecordFor(ctx context.Context, userID string) (*attendance.Record, error) {
	var row recordRow
	err := l.pool.db.GetContext(ctx, &row, `SELECT `+recordColumns+` FROM attendance_records
		WHERE user_id = ?
		ORDER BY recorded_at DESC, seq DESC
		LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("most recent record: %w", err)
	}
	r := row.toRecord()
	return &r, nil
}

// AppendRecord stores a new attendance record.
func (l *Ledger) AppendRecord(ctx context.Context, r attendance.Record) error {
	q := `INSERT INTO attendance_records (id, user_id, user_name, recorded_at, punch_type, confidence, method)
		VALUES (:id, :user_id, :user_name, :recorded_at, :punch_type, :confidence, :method)`
	row := recordRow{
		ID:         r.ID,
		UserID:     r.UserID,
		UserName:   r.UserName,
		RecordedAt: r.Timestamp.UTC(),
		PunchType:  string(r.Type),
		Confidence: r.Confidence,
		Method:     r.Method,
	}
	if _, err := l.pool.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// ClearAll deletes users and records in one transaction. DELETE is used
// instead of TRUNCATE, which commits implicitly in MariaDB.
func (l *Ledger) ClearAll(ctx context.Context) error {
	return withTx(ctx, l.pool.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_records`); err != nil {
			return fmt.Errorf("clear records: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
			return fmt.Errorf("clear users: %w", err)
		}
		return nil
	})
}

// Close closes the underlying pool.
func (l *Ledger) Close() error {
	return l.pool.Close()
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
