package attendance

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for punch state validation.
var (
	ErrAlreadyCheckedIn = errors.New("already checked in")
	ErrNotCheckedIn     = errors.New("not checked in")
)

// PunchError describes a rejected punch. Last is the user's most recent
// record at the time of the check, nil when the user has none.
type PunchError struct {
	Attempted PunchType
	Last      *Record
	err       error
}

func (e *PunchError) Error() string {
	if errors.Is(e.err, ErrAlreadyCheckedIn) && e.Last != nil {
		return fmt.Sprintf("Already checked in (last: %s)", e.Last.Timestamp.Local().Format(time.Kitchen))
	}
	return "Cannot check out: not checked in"
}

func (e *PunchError) Unwrap() error {
	return e.err
}

// ValidatePunch checks that punching p is legal given the user's most recent
// record. Punches strictly alternate per user, starting with IN.
func ValidatePunch(p PunchType, last *Record) error {
	switch p {
	case PunchIn:
		if last != nil && last.Type == PunchIn {
			return &PunchError{Attempted: p, Last: last, err: ErrAlreadyCheckedIn}
		}
	case PunchOut:
		if last == nil || last.Type == PunchOut {
			return &PunchError{Attempted: p, Last: last, err: ErrNotCheckedIn}
		}
	default:
		return fmt.Errorf("unknown punch type %q", p)
	}
	return nil
}

// LatestFor returns the most recent record of userID by timestamp, or nil.
// It does not rely on the slice order; ties keep the earlier slice position,
// which for newest-first slices is the most recently appended entry.
func LatestFor(records []Record, userID string) *Record {
	var latest *Record
	for i := range records {
		r := &records[i]
		if r.UserID != userID {
			continue
		}
		if latest == nil || r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	if latest == nil {
		return nil
	}
	out := *latest
	return &out
}
