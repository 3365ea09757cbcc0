package database

import (
	"errors"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
)

// ErrNotFound is returned when a user lookup has no match.
var ErrNotFound = errors.New("not found")

// RecordFilter narrows ListRecords. Zero values mean no restriction.
type RecordFilter struct {
	UserID string
	Limit  int
}

// Apply filters records (newest first) in memory.
func (f RecordFilter) Apply(records []attendance.Record) []attendance.Record {
	out := make([]attendance.Record, 0, len(records))
	for _, r := range records {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Snapshot is the two-collection export of a ledger, keyed the way the
// kiosk stored them in the browser.
type Snapshot struct {
	Users   []attendance.User   `json:"faceauth_users"`
	Records []attendance.Record `json:"faceauth_logs"`
}
