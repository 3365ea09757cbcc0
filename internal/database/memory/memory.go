// Package memory provides a process-local ledger, optionally persisted to a
// JSON snapshot file. It is the default backend for a single kiosk and the
// ledger used in tests.
//
// A file-backed ledger may be shared by several processes (the server and
// CLI commands). Every operation takes a lock on "<file>.lock", reloads the
// snapshot and, for mutations, writes it back before releasing the lock.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/config"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

func init() {
	database.RegisterBackend(config.BackendMemory, func(_ context.Context, cfg *config.Config, logger *zap.Logger) (database.Ledger, error) {
		if cfg.Database.LedgerFile == "" {
			logger.Warn("memory ledger without LEDGER_FILE, data is lost on restart")
			return New(), nil
		}
		return Open(cfg.Database.LedgerFile)
	})
}

// Ledger keeps users in registration order and records newest first.
type Ledger struct {
	mu      sync.RWMutex
	users   []attendance.User
	records []attendance.Record
	path    string
	lock    *flock.Flock

	// Error injection
	ListUsersError  error
	GetUserError    error
	UpsertUserError error
	DeleteUserError error
	ListRecordsErr  error
	MostRecentError error
	AppendError     error
	ClearError      error
}

// New creates an empty ledger that is never written to disk.
func New() *Ledger {
	return &Ledger{}
}

// Open loads the snapshot at path, creating the ledger empty when the file
// does not exist yet.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, lock: flock.New(path + ".lock")}
	if err := l.read(func() error { return nil }); err != nil {
		return nil, err
	}
	return l, nil
}

// loadLocked replaces the in-memory collections with the file contents.
// Callers hold l.mu and the file lock.
func (l *Ledger) loadLocked() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.users, l.records = nil, nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading ledger file: %w", err)
	}
	if len(data) == 0 {
		l.users, l.records = nil, nil
		return nil
	}

	var snap database.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing ledger file %s: %w", l.path, err)
	}
	l.users = snap.Users
	l.records = snap.Records
	return nil
}

// read runs fn on the current state.
func (l *Ledger) read(fn func() error) error {
	if l.path == "" {
		l.mu.RLock()
		defer l.mu.RUnlock()
		return fn()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.lock.RLock(); err != nil {
		return fmt.Errorf("locking ledger file: %w", err)
	}
	defer l.lock.Unlock()

	if err := l.loadLocked(); err != nil {
		return err
	}
	return fn()
}

// write runs fn on the current state and persists the result. fn must not
// change anything when it returns an error. A failed write restores the
// previous in-memory state.
func (l *Ledger) write(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path != "" {
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("locking ledger file: %w", err)
		}
		defer l.lock.Unlock()

		if err := l.loadLocked(); err != nil {
			return err
		}
	}

	prevUsers, prevRecords := slices.Clone(l.users), slices.Clone(l.records)
	if err := fn(); err != nil {
		return err
	}
	if err := l.persistLocked(); err != nil {
		l.users, l.records = prevUsers, prevRecords
		return err
	}
	return nil
}

// Snapshot returns a copy of both collections. A file that cannot be
// reloaded leaves the last known state.
func (l *Ledger) Snapshot() database.Snapshot {
	var snap database.Snapshot
	fill := func() error {
		snap = database.Snapshot{
			Users:   slices.Clone(l.users),
			Records: slices.Clone(l.records),
		}
		return nil
	}
	if err := l.read(fill); err != nil {
		l.mu.RLock()
		defer l.mu.RUnlock()
		_ = fill()
	}
	return snap
}

// ListUsers returns all users in registration order.
func (l *Ledger) ListUsers(ctx context.Context) ([]attendance.User, error) {
	if l.ListUsersError != nil {
		return nil, l.ListUsersError
	}
	var users []attendance.User
	err := l.read(func() error {
		users = slices.Clone(l.users)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser retrieves a user by internal id.
func (l *Ledger) GetUser(ctx context.Context, id string) (*attendance.User, error) {
	if l.GetUserError != nil {
		return nil, l.GetUserError
	}
	var found *attendance.User
	err := l.read(func() error {
		for _, u := range l.users {
			if u.ID == id {
				found = &u
				return nil
			}
		}
		return database.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// UpsertUser replaces the user with the same employee id in place, or
// appends a new one.
func (l *Ledger) UpsertUser(ctx context.Context, u attendance.User) (attendance.User, error) {
	if l.UpsertUserError != nil {
		return attendance.User{}, l.UpsertUserError
	}
	err := l.write(func() error {
		idx := slices.IndexFunc(l.users, func(existing attendance.User) bool {
			return existing.EmployeeID == u.EmployeeID
		})
		if idx >= 0 {
			u.ID = l.users[idx].ID
			l.users[idx] = u
		} else {
			l.users = append(l.users, u)
		}
		return nil
	})
	if err != nil {
		return attendance.User{}, err
	}
	return u, nil
}

// DeleteUser removes a user by internal id. Records are kept.
func (l *Ledger) DeleteUser(ctx context.Context, id string) error {
	if l.DeleteUserError != nil {
		return l.DeleteUserError
	}
	return l.write(func() error {
		idx := slices.IndexFunc(l.users, func(u attendance.User) bool { return u.ID == id })
		if idx < 0 {
			return database.ErrNotFound
		}
		l.users = slices.Delete(l.users, idx, idx+1)
		return nil
	})
}

// ListRecords returns records newest first.
func (l *Ledger) ListRecords(ctx context.Context, filter database.RecordFilter) ([]attendance.Record, error) {
	if l.ListRecordsErr != nil {
		return nil, l.ListRecordsErr
	}
	var records []attendance.Record
	err := l.read(func() error {
		records = filter.Apply(l.records)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MostRecentRecordFor returns the latest record of userID by timestamp.
func (l *Ledger) MostRecentRecordFor(ctx context.Context, userID string) (*attendance.Record, error) {
	if l.MostRecentError != nil {
		return nil, l.MostRecentError
	}
	var last *attendance.Record
	err := l.read(func() error {
		last = attendance.LatestFor(l.records, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// AppendRecord prepends r to the ledger.
func (l *Ledger) AppendRecord(ctx context.Context, r attendance.Record) error {
	if l.AppendError != nil {
		return l.AppendError
	}
	return l.write(func() error {
		l.records = append([]attendance.Record{r}, l.records...)
		return nil
	})
}

// ClearAll empties both collections.
func (l *Ledger) ClearAll(ctx context.Context) error {
	if l.ClearError != nil {
		return l.ClearError
	}
	return l.write(func() error {
		l.users, l.records = nil, nil
		return nil
	})
}

// Close releases the lock file handle; every mutation is already on disk.
func (l *Ledger) Close() error {
	if l.lock == nil {
		return nil
	}
	return l.lock.Close()
}

// persistLocked writes the snapshot atomically (temp file + rename).
// Callers hold l.mu and the file lock.
func (l *Ledger) persistLocked() error {
	if l.path == "" {
		return nil
	}

	snap := database.Snapshot{Users: l.users, Records: l.records}
	if snap.Users == nil {
		snap.Users = []attendance.User{}
	}
	if snap.Records == nil {
		snap.Records = []attendance.Record{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("creating temp ledger file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing ledger file: %w", err)
	}
	return nil
}
