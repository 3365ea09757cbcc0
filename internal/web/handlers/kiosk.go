package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/workflow"
)

// KioskHandler drives the attendance and registration workflows.
type KioskHandler struct {
	attendance   *workflow.Attendance
	registration *workflow.Registration
	logger       *zap.Logger
}

// NewKioskHandler creates a new kiosk handler
func NewKioskHandler(a *workflow.Attendance, r *workflow.Registration, logger *zap.Logger) *KioskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KioskHandler{attendance: a, registration: r, logger: logger}
}

// workflowErrorResponse carries the state the workflow stayed in along
// with the error, so the kiosk UI can re-render without another request.
type workflowErrorResponse struct {
	Error string        `json:"error"`
	State workflow.View `json:"state"`
}

// respondState writes the outcome of a workflow operation.
func (h *KioskHandler) respondState(w http.ResponseWriter, s workflow.State, err error) {
	if err == nil {
		respondJSON(w, http.StatusOK, workflow.Describe(s))
		return
	}

	status := http.StatusInternalServerError
	var ve *workflow.ValidationError
	switch {
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrSessionAbandoned):
		status = http.StatusConflict
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
	default:
		h.logger.Error("workflow operation failed", zap.Error(err))
	}
	respondJSON(w, status, workflowErrorResponse{Error: err.Error(), State: workflow.Describe(s)})
}

// detach keeps a verification running when the kiosk client disconnects;
// only Cancel or a newer session abandons it.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// GetAttendance returns the current attendance state.
func (h *KioskHandler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, workflow.Describe(h.attendance.State()))
}

// StartAttendance opens punch type selection.
func (h *KioskHandler) StartAttendance(w http.ResponseWriter, r *http.Request) {
	s, err := h.attendance.Start()
	h.respondState(w, s, err)
}

type selectModeRequest struct {
	Type string `json:"type"`
}

// SelectMode chooses check-in or check-out and issues a challenge.
func (h *KioskHandler) SelectMode(w http.ResponseWriter, r *http.Request) {
	var req selectModeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	punch, err := attendance.ParsePunchType(req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.attendance.SelectMode(punch)
	h.respondState(w, s, err)
}

// AcceptChallenge starts capturing.
func (h *KioskHandler) AcceptChallenge(w http.ResponseWriter, r *http.Request) {
	s, err := h.attendance.AcceptChallenge()
	h.respondState(w, s, err)
}

// CaptureAttendance verifies the captured frame and records the punch.
func (h *KioskHandler) CaptureAttendance(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		h.logger.Debug("rejected attendance image", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid image: "+err.Error())
		return
	}
	s, err := h.attendance.Capture(detach(r), image)
	h.respondState(w, s, err)
}

// RetryAttendance issues a new challenge after a failure.
func (h *KioskHandler) RetryAttendance(w http.ResponseWriter, r *http.Request) {
	s, err := h.attendance.Retry()
	h.respondState(w, s, err)
}

// DismissAttendance leaves the result screen.
func (h *KioskHandler) DismissAttendance(w http.ResponseWriter, r *http.Request) {
	s, err := h.attendance.Dismiss()
	h.respondState(w, s, err)
}

// CancelAttendance returns to idle from any state.
func (h *KioskHandler) CancelAttendance(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, h.attendance.Cancel(), nil)
}

// GetRegistration returns the current registration state.
func (h *KioskHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, workflow.Describe(h.registration.State()))
}

// SubmitForm stores the registration details.
func (h *KioskHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	var req workflow.Form
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	s, err := h.registration.SubmitForm(req.Name, req.EmployeeID, req.Department)
	h.respondState(w, s, err)
}

// CaptureRegistration keeps the captured frame for preview.
func (h *KioskHandler) CaptureRegistration(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		h.logger.Debug("rejected registration image", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid image: "+err.Error())
		return
	}
	s, err := h.registration.Capture(image)
	h.respondState(w, s, err)
}

// Retake discards the previewed frame.
func (h *KioskHandler) Retake(w http.ResponseWriter, r *http.Request) {
	s, err := h.registration.Retake()
	h.respondState(w, s, err)
}

// BackToForm returns from capturing to the form.
func (h *KioskHandler) BackToForm(w http.ResponseWriter, r *http.Request) {
	s, err := h.registration.BackToForm()
	h.respondState(w, s, err)
}

// ConfirmRegistration validates the previewed frame and stores the user.
func (h *KioskHandler) ConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	s, err := h.registration.Confirm(detach(r))
	h.respondState(w, s, err)
}

// ResetRegistration returns to an empty form.
func (h *KioskHandler) ResetRegistration(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, h.registration.Reset(), nil)
}
