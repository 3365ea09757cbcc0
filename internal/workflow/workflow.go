// Package workflow implements the kiosk session state machines: the
// attendance punch flow and the user registration flow. Both are safe for
// concurrent use; the remote AI calls run without holding the lock and
// their results are dropped when the session moved on in the meantime.
package workflow

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

// DefaultSuccessDelay is how long the success screen stays before the
// attendance workflow returns to idle.
const DefaultSuccessDelay = 3500 * time.Millisecond

// Verifier identifies a live face among registered users.
type Verifier interface {
	Verify(ctx context.Context, image []byte, users []attendance.User, action attendance.LivenessAction) attendance.VerificationResult
}

// ImageChecker validates and normalizes registration images.
type ImageChecker interface {
	ValidateImage(ctx context.Context, image []byte) attendance.ImageValidation
	Normalize(image []byte) ([]byte, error)
}

// AttendanceLedger is the storage used by the attendance workflow.
type AttendanceLedger interface {
	database.UserReader
	database.RecordWriter
}

// Options configures a workflow. Zero values select real time, a random
// challenge source, DefaultSuccessDelay and a no-op logger.
type Options struct {
	Clock        clockwork.Clock
	Rand         *rand.Rand
	SuccessDelay time.Duration
	Logger       *zap.Logger
	// OnChange is called on every transition while the workflow lock is
	// held, so calls arrive in transition order. It must not block or call
	// back into the workflow.
	OnChange func(State)
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.SuccessDelay <= 0 {
		o.SuccessDelay = DefaultSuccessDelay
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// session is implemented by both workflows so that starting one can
// abandon the other.
type session interface {
	abandon()
}

// Link makes the two workflows share one logical kiosk session: starting
// either cancels whatever the other one was doing.
func Link(a *Attendance, r *Registration) {
	a.mu.Lock()
	a.peer = r
	a.mu.Unlock()

	r.mu.Lock()
	r.peer = a
	r.mu.Unlock()
}
