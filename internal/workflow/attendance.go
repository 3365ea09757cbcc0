package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

const (
	reasonVerificationFailed = "Verification failed"
	reasonUserMissing        = "Identity matched but user record missing"
)

// Attendance is the check-in/check-out workflow.
type Attendance struct {
	mu       sync.Mutex
	state    State
	gen      uint64
	inflight context.CancelFunc
	timer    clockwork.Timer
	peer     session

	verifier Verifier
	ledger   AttendanceLedger
	clock    clockwork.Clock
	rng      *rand.Rand
	delay    time.Duration
	logger   *zap.Logger
	onChange func(State)
}

// NewAttendance creates an attendance workflow in the Idle state.
func NewAttendance(verifier Verifier, ledger AttendanceLedger, opts Options) *Attendance {
	opts = opts.withDefaults()
	return &Attendance{
		state:    Idle{},
		verifier: verifier,
		ledger:   ledger,
		clock:    opts.Clock,
		rng:      opts.Rand,
		delay:    opts.SuccessDelay,
		logger:   opts.Logger,
		onChange: opts.OnChange,
	}
}

// State returns the current state.
func (w *Attendance) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start opens the punch type selection.
func (w *Attendance) Start() (State, error) {
	w.mu.Lock()
	if _, ok := w.state.(Idle); !ok {
		defer w.mu.Unlock()
		return w.state, w.invalid("start")
	}
	s := w.setLocked(SelectingMode{})
	peer := w.peer
	w.mu.Unlock()

	if peer != nil {
		peer.abandon()
	}
	return s, nil
}

// SelectMode records the punch intent and issues a liveness challenge.
// It is accepted from Idle as a shortcut for Start followed by SelectMode.
func (w *Attendance) SelectMode(p attendance.PunchType) (State, error) {
	if p != attendance.PunchIn && p != attendance.PunchOut {
		return w.State(), &ValidationError{Message: fmt.Sprintf("unknown punch type %q", p)}
	}

	w.mu.Lock()
	var fromIdle bool
	switch w.state.(type) {
	case Idle:
		fromIdle = true
	case SelectingMode:
	default:
		defer w.mu.Unlock()
		return w.state, w.invalid("select mode")
	}
	s := w.setLocked(ChallengeIssued{Punch: p, Challenge: w.issueChallenge()})
	peer := w.peer
	w.mu.Unlock()

	if fromIdle && peer != nil {
		peer.abandon()
	}
	return s, nil
}

// AcceptChallenge starts capturing.
func (w *Attendance) AcceptChallenge() (State, error) {
	w.mu.Lock()
	st, ok := w.state.(ChallengeIssued)
	if !ok {
		defer w.mu.Unlock()
		return w.state, w.invalid("accept challenge")
	}
	s := w.setLocked(Capturing(st))
	w.mu.Unlock()
	return s, nil
}

// Capture verifies image against all registered users and, when the
// verification and the punch alternation rule allow it, appends a record.
// Verification and storage problems end in a Failure state, not an error.
// ErrSessionAbandoned is returned when the workflow was cancelled while
// the verification was running.
func (w *Attendance) Capture(ctx context.Context, image []byte) (State, error) {
	if len(image) == 0 {
		return w.State(), &ValidationError{Message: "image is required"}
	}

	w.mu.Lock()
	st, ok := w.state.(Capturing)
	if !ok {
		defer w.mu.Unlock()
		return w.state, w.invalid("capture")
	}
	w.setLocked(Processing(st))
	gen := w.gen
	callCtx, cancel := context.WithCancel(ctx)
	w.inflight = cancel
	w.mu.Unlock()
	defer cancel()

	var result attendance.VerificationResult
	users, err := w.ledger.ListUsers(callCtx)
	if err == nil {
		result = w.verifier.Verify(callCtx, image, users, st.Challenge)
	}

	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		w.logger.Info("discarding verification result of abandoned session",
			zap.String("punch_type", string(st.Punch)),
			zap.Bool("match", result.Match),
		)
		return w.State(), ErrSessionAbandoned
	}
	w.inflight = nil

	var next State
	if err != nil {
		w.logger.Error("failed to list users", zap.Error(err))
		next = storageFailure(st.Punch, nil, err)
	} else {
		next = w.settle(ctx, st.Punch, result)
	}
	s := w.setLocked(next)
	w.mu.Unlock()
	return s, nil
}

// settle turns a verification result into the final state. Called with
// the lock held so that a concurrent Cancel cannot interleave with the
// ledger write.
func (w *Attendance) settle(ctx context.Context, punch attendance.PunchType, result attendance.VerificationResult) State {
	if !result.Accepted() {
		reason := result.Reason
		if reason == "" {
			reason = reasonVerificationFailed
		}
		w.logger.Info("verification rejected",
			zap.Bool("match", result.Match),
			zap.Bool("liveness", result.LivenessConfirmed),
			zap.Bool("spoof", result.SpoofDetected),
			zap.String("reason", reason),
		)
		return Failure{Punch: punch, Reason: reason, Cause: CauseVerification, Result: &result}
	}

	user, err := w.ledger.GetUser(ctx, result.UserID)
	if errors.Is(err, database.ErrNotFound) {
		w.logger.Error("matched user is not in the registry", zap.String("user_id", result.UserID))
		return Failure{Punch: punch, Reason: reasonUserMissing, Cause: CauseInconsistency, Result: &result}
	}
	if err != nil {
		w.logger.Error("failed to load matched user", zap.String("user_id", result.UserID), zap.Error(err))
		return storageFailure(punch, &result, err)
	}

	last, err := w.ledger.MostRecentRecordFor(ctx, user.ID)
	if err != nil {
		w.logger.Error("failed to load last record", zap.String("user_id", user.ID), zap.Error(err))
		return storageFailure(punch, &result, err)
	}

	if err := attendance.ValidatePunch(punch, last); err != nil {
		f := Failure{Punch: punch, Reason: err.Error(), Cause: CauseState, Result: &result}
		var pe *attendance.PunchError
		if errors.As(err, &pe) && pe.Last != nil {
			at := pe.Last.Timestamp
			f.LastRecordAt = &at
		}
		w.logger.Info("punch rejected", zap.String("user_id", user.ID), zap.String("punch_type", string(punch)), zap.Error(err))
		return f
	}

	now := w.clock.Now()
	id, err := ksuid.NewRandomWithTime(now)
	if err != nil {
		return storageFailure(punch, &result, fmt.Errorf("generating record id: %w", err))
	}
	record := attendance.Record{
		ID:         id.String(),
		UserID:     user.ID,
		UserName:   user.Name,
		Timestamp:  now,
		Type:       punch,
		Confidence: result.Confidence,
		Method:     attendance.MethodFaceBiometric,
	}
	if err := w.ledger.AppendRecord(ctx, record); err != nil {
		w.logger.Error("failed to append record", zap.String("user_id", user.ID), zap.Error(err))
		return storageFailure(punch, &result, err)
	}

	w.logger.Info("attendance recorded",
		zap.String("record_id", record.ID),
		zap.String("user_id", user.ID),
		zap.String("punch_type", string(punch)),
		zap.Float64("confidence", record.Confidence),
	)
	return Success{Record: record, Result: result}
}

func storageFailure(punch attendance.PunchType, result *attendance.VerificationResult, err error) State {
	return Failure{
		Punch:  punch,
		Reason: "Storage Error: " + err.Error(),
		Cause:  CauseStorage,
		Result: result,
	}
}

// Retry issues a new challenge for the same punch type after a failure.
func (w *Attendance) Retry() (State, error) {
	w.mu.Lock()
	st, ok := w.state.(Failure)
	if !ok {
		defer w.mu.Unlock()
		return w.state, w.invalid("retry")
	}
	s := w.setLocked(ChallengeIssued{Punch: st.Punch, Challenge: w.issueChallenge()})
	w.mu.Unlock()
	return s, nil
}

// Dismiss leaves a result screen.
func (w *Attendance) Dismiss() (State, error) {
	w.mu.Lock()
	switch w.state.(type) {
	case Success, Failure:
	default:
		defer w.mu.Unlock()
		return w.state, w.invalid("dismiss")
	}
	s := w.setLocked(Idle{})
	w.mu.Unlock()
	return s, nil
}

// Cancel returns to Idle from any state, abandoning a running verification.
func (w *Attendance) Cancel() State {
	w.mu.Lock()
	if _, ok := w.state.(Idle); ok {
		defer w.mu.Unlock()
		return w.state
	}
	s := w.setLocked(Idle{})
	w.mu.Unlock()
	return s
}

func (w *Attendance) abandon() {
	w.Cancel()
}

func (w *Attendance) autoReturn(gen uint64) {
	w.mu.Lock()
	if _, ok := w.state.(Success); !ok || w.gen != gen {
		w.mu.Unlock()
		return
	}
	w.setLocked(Idle{})
	w.mu.Unlock()

	w.logger.Debug("success screen timed out")
}

// issueChallenge draws a fresh liveness action.
func (w *Attendance) issueChallenge() attendance.LivenessAction {
	return attendance.ChooseChallenge(w.rng)
}

// setLocked switches to s, invalidating in-flight work and timers of the
// previous state, and publishes s.
func (w *Attendance) setLocked(s State) State {
	w.gen++
	if w.inflight != nil {
		w.inflight()
		w.inflight = nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.state = s
	if w.onChange != nil {
		w.onChange(s)
	}

	if _, ok := s.(Success); ok {
		gen := w.gen
		w.timer = w.clock.AfterFunc(w.delay, func() { w.autoReturn(gen) })
	}
	return s
}

func (w *Attendance) invalid(event string) error {
	return &TransitionError{Event: event, From: w.state.Name()}
}
