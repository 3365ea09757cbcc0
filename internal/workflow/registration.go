package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

const reasonRequiredFields = "Please fill in required fields"

// Registration is the user enrollment workflow.
type Registration struct {
	mu       sync.Mutex
	state    State
	gen      uint64
	inflight context.CancelFunc
	peer     session

	checker  ImageChecker
	users    database.UserWriter
	clock    clockwork.Clock
	logger   *zap.Logger
	onChange func(State)
}

// NewRegistration creates a registration workflow showing an empty form.
func NewRegistration(checker ImageChecker, users database.UserWriter, opts Options) *Registration {
	opts = opts.withDefaults()
	return &Registration{
		state:    RegistrationForm{},
		checker:  checker,
		users:    users,
		clock:    opts.Clock,
		logger:   opts.Logger,
		onChange: opts.OnChange,
	}
}

// State returns the current state.
func (w *Registration) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SubmitForm stores the entered details and moves on to capturing. Name
// and employee id are required; on missing input the form stays with a
// message and a *ValidationError is returned.
func (w *Registration) SubmitForm(name, employeeID, department string) (State, error) {
	form := Form{
		Name:       strings.TrimSpace(name),
		EmployeeID: strings.TrimSpace(employeeID),
		Department: strings.TrimSpace(department),
	}

	w.mu.Lock()
	if _, ok := w.state.(RegistrationForm); !ok {
		defer w.mu.Unlock()
		return w.state, w.invalid("submit form")
	}
	if form.Name == "" || form.EmployeeID == "" {
		s := w.setLocked(RegistrationForm{Form: form, Message: reasonRequiredFields})
		w.mu.Unlock()
		return s, &ValidationError{Message: reasonRequiredFields}
	}
	s := w.setLocked(RegistrationCapture{Form: form})
	peer := w.peer
	w.mu.Unlock()

	if peer != nil {
		peer.abandon()
	}
	return s, nil
}

// Capture keeps image for preview.
func (w *Registration) Capture(image []byte) (State, error) {
	if len(image) == 0 {
		return w.State(), &ValidationError{Message: "image is required"}
	}

	w.mu.Lock()
	st, ok := w.state.(RegistrationCapture)
	if !ok {
		defer w.mu.Unlock()
		return w.state, w.invalid("capture")
	}
	s := w.setLocked(RegistrationPreview{Form: st.Form, Image: image})
	w.mu.Unlock()
	return s, nil
}

// Retake discards the previewed image.
func (w *Registration) Retake() (State, error) {
	w.mu.Lock()
	st, ok := w.state.(RegistrationPreview)
	if !ok {
		defer w.mu.Unlock()
		return w.state, w.invalid("retake")
	}
	s := w.setLocked(RegistrationCapture{Form: st.Form})
	w.mu.Unlock()
	return s, nil
}

// BackToForm returns from capturing to the form, keeping entered fields.
func (w *Registration) BackToForm() (State, error) {
	w.mu.Lock()
	st, ok := w.state.(RegistrationCapture)
	if !ok {
		defer w.mu.Unlock()
		return w.state, w.invalid("go back to form")
	}
	s := w.setLocked(RegistrationForm{Form: st.Form})
	w.mu.Unlock()
	return s, nil
}

// Confirm validates the previewed image and, when accepted, stores the
// user. Rejections and storage failures return to the preview with a
// reason. ErrSessionAbandoned is returned when the workflow was reset
// while the validation was running.
func (w *Registration) Confirm(ctx context.Context) (State, error) {
	w.mu.Lock()
	st, ok := w.state.(RegistrationPreview)
	if !ok {
		defer w.mu.Unlock()
		return w.state, w.invalid("confirm")
	}
	w.setLocked(RegistrationValidating{Form: st.Form})
	gen := w.gen
	callCtx, cancel := context.WithCancel(ctx)
	w.inflight = cancel
	w.mu.Unlock()
	defer cancel()

	validation := w.checker.ValidateImage(callCtx, st.Image)
	var normalized []byte
	var normErr error
	if validation.Valid {
		normalized, normErr = w.checker.Normalize(st.Image)
	}

	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		w.logger.Info("discarding validation result of abandoned registration",
			zap.String("employee_id", st.Form.EmployeeID),
		)
		return w.State(), ErrSessionAbandoned
	}
	w.inflight = nil

	next := w.complete(ctx, st, validation, normalized, normErr)
	s := w.setLocked(next)
	w.mu.Unlock()
	return s, nil
}

func (w *Registration) complete(ctx context.Context, st RegistrationPreview, validation attendance.ImageValidation, normalized []byte, normErr error) State {
	retake := func(reason string) State {
		return RegistrationPreview{Form: st.Form, Image: st.Image, Rejection: reason}
	}

	if !validation.Valid {
		reason := validation.Reason
		if reason == "" {
			reason = "Face not clearly visible"
		}
		w.logger.Info("registration image rejected",
			zap.String("employee_id", st.Form.EmployeeID),
			zap.String("reason", reason),
		)
		return retake(fmt.Sprintf("Image rejected: %s. Please retake.", strings.TrimSuffix(reason, ".")))
	}
	if normErr != nil {
		w.logger.Error("failed to normalize registration image", zap.Error(normErr))
		return retake("Could not process image: " + normErr.Error())
	}

	user := attendance.User{
		ID:           uuid.NewString(),
		EmployeeID:   st.Form.EmployeeID,
		Name:         st.Form.Name,
		Department:   st.Form.Department,
		FaceImage:    normalized,
		RegisteredAt: w.clock.Now(),
	}
	stored, err := w.users.UpsertUser(ctx, user)
	if err != nil {
		w.logger.Error("failed to store user", zap.String("employee_id", user.EmployeeID), zap.Error(err))
		return retake("Could not save user: " + err.Error())
	}

	w.logger.Info("user registered",
		zap.String("user_id", stored.ID),
		zap.String("employee_id", stored.EmployeeID),
		zap.Bool("replaced", stored.ID != user.ID),
	)
	return RegistrationComplete{User: stored}
}

// Reset returns to an empty form, abandoning a running validation.
func (w *Registration) Reset() State {
	w.mu.Lock()
	if st, ok := w.state.(RegistrationForm); ok && st == (RegistrationForm{}) {
		defer w.mu.Unlock()
		return w.state
	}
	s := w.setLocked(RegistrationForm{})
	w.mu.Unlock()
	return s
}

func (w *Registration) abandon() {
	w.Reset()
}

func (w *Registration) setLocked(s State) State {
	w.gen++
	if w.inflight != nil {
		w.inflight()
		w.inflight = nil
	}
	w.state = s
	if w.onChange != nil {
		w.onChange(s)
	}
	return s
}

func (w *Registration) invalid(event string) error {
	return &TransitionError{Event: event, From: w.state.Name()}
}
