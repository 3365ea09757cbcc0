package database

import (
	"context"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
)

// UserReader provides read-only access to the user registry
type UserReader interface {
	// ListUsers returns all users in registration order (first registration
	// of an employee id), reference images included
	ListUsers(ctx context.Context) ([]attendance.User, error)
	// GetUser retrieves a user by internal id, ErrNotFound if missing
	GetUser(ctx context.Context, id string) (*attendance.User, error)
}

// UserWriter provides write access to the user registry
type UserWriter interface {
	UserReader

	// UpsertUser inserts u, or replaces the user with the same employee id.
	// On replace the stored internal id is kept so ledger history stays
	// linked; the returned user is what was stored.
	UpsertUser(ctx context.Context, u attendance.User) (attendance.User, error)

	// DeleteUser removes a user by internal id, ErrNotFound if missing.
	// Attendance records of the user are kept.
	DeleteUser(ctx context.Context, id string) error
}

// RecordReader provides read-only access to the attendance ledger
type RecordReader interface {
	// ListRecords returns records newest first
	ListRecords(ctx context.Context, filter RecordFilter) ([]attendance.Record, error)
	// MostRecentRecordFor returns the user's latest record by timestamp,
	// nil when the user has none
	MostRecentRecordFor(ctx context.Context, userID string) (*attendance.Record, error)
}

// RecordWriter provides append access to the attendance ledger
type RecordWriter interface {
	RecordReader

	// AppendRecord adds a record at the head of the ledger
	AppendRecord(ctx context.Context, r attendance.Record) error
}

// Ledger is the complete persisted state of the kiosk
type Ledger interface {
	UserWriter
	RecordWriter

	// ClearAll removes every user and every record in one step
	ClearAll(ctx context.Context) error
	// Close releases the backend's resources
	Close() error
}
