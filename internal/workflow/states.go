package workflow

import (
	"time"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
)

// State is one step of a kiosk workflow. Each concrete type carries only
// the data valid in that step.
type State interface {
	Name() string
	state()
}

// Attendance state names.
const (
	StateIdle            = "idle"
	StateSelectingMode   = "mode_select"
	StateChallengeIssued = "challenge"
	StateCapturing       = "capturing"
	StateProcessing      = "processing"
	StateSuccess         = "success"
	StateFailure         = "failure"
)

// Registration state names.
const (
	StateForm       = "form"
	StateCapture    = "capture"
	StatePreview    = "preview"
	StateValidating = "validating"
	StateComplete   = "complete"
)

// Cause classifies why an attendance attempt failed.
type Cause string

// Failure causes.
const (
	CauseVerification  Cause = "verification"
	CauseState         Cause = "state"
	CauseInconsistency Cause = "inconsistency"
	CauseStorage       Cause = "storage"
)

type Idle struct{}

type SelectingMode struct{}

type ChallengeIssued struct {
	Punch     attendance.PunchType
	Challenge attendance.LivenessAction
}

type Capturing struct {
	Punch     attendance.PunchType
	Challenge attendance.LivenessAction
}

type Processing struct {
	Punch     attendance.PunchType
	Challenge attendance.LivenessAction
}

type Success struct {
	Record attendance.Record
	Result attendance.VerificationResult
}

// Failure ends an attempt. Result is nil when the verifier was never
// reached; LastRecordAt is set when a duplicate check-in was rejected.
type Failure struct {
	Punch        attendance.PunchType
	Reason       string
	Cause        Cause
	Result       *attendance.VerificationResult
	LastRecordAt *time.Time
}

func (Idle) Name() string            { return StateIdle }
func (SelectingMode) Name() string   { return StateSelectingMode }
func (ChallengeIssued) Name() string { return StateChallengeIssued }
func (Capturing) Name() string       { return StateCapturing }
func (Processing) Name() string      { return StateProcessing }
func (Success) Name() string         { return StateSuccess }
func (Failure) Name() string         { return StateFailure }

func (Idle) state()            {}
func (SelectingMode) state()   {}
func (ChallengeIssued) state() {}
func (Capturing) state()       {}
func (Processing) state()      {}
func (Success) state()         {}
func (Failure) state()         {}

// Form holds the registration details entered by the user.
type Form struct {
	Name       string `json:"name"`
	EmployeeID string `json:"employee_id"`
	Department string `json:"department"`
}

type RegistrationForm struct {
	Form    Form
	Message string
}

type RegistrationCapture struct {
	Form Form
}

// RegistrationPreview shows the captured image. Rejection is set when the
// image was refused by the quality check or could not be stored.
type RegistrationPreview struct {
	Form      Form
	Image     []byte
	Rejection string
}

type RegistrationValidating struct {
	Form Form
}

type RegistrationComplete struct {
	User attendance.User
}

func (RegistrationForm) Name() string       { return StateForm }
func (RegistrationCapture) Name() string    { return StateCapture }
func (RegistrationPreview) Name() string    { return StatePreview }
func (RegistrationValidating) Name() string { return StateValidating }
func (RegistrationComplete) Name() string   { return StateComplete }

func (RegistrationForm) state()       {}
func (RegistrationCapture) state()    {}
func (RegistrationPreview) state()    {}
func (RegistrationValidating) state() {}
func (RegistrationComplete) state()   {}

// View is the JSON form of a workflow state sent to kiosk clients.
// Images are never included; HasImage tells whether a preview is pending.
type View struct {
	Workflow     string                         `json:"workflow"`
	State        string                         `json:"state"`
	Punch        attendance.PunchType           `json:"punch_type,omitempty"`
	PunchLabel   string                         `json:"punch_label,omitempty"`
	Challenge    attendance.LivenessAction      `json:"challenge,omitempty"`
	Record       *attendance.Record             `json:"record,omitempty"`
	Result       *attendance.VerificationResult `json:"result,omitempty"`
	Reason       string                         `json:"reason,omitempty"`
	Cause        Cause                          `json:"cause,omitempty"`
	LastRecordAt *time.Time                     `json:"last_record_at,omitempty"`
	Form         *Form                          `json:"form,omitempty"`
	Message      string                         `json:"message,omitempty"`
	HasImage     bool                           `json:"has_image,omitempty"`
	User         *attendance.User               `json:"user,omitempty"`
}

// Workflow names used in views.
const (
	WorkflowAttendance   = "attendance"
	WorkflowRegistration = "registration"
)

// Describe converts a state into its view.
func Describe(s State) View {
	switch st := s.(type) {
	case Idle, SelectingMode:
		return View{Workflow: WorkflowAttendance, State: st.Name()}
	case ChallengeIssued:
		return punchView(st, st.Punch, st.Challenge)
	case Capturing:
		return punchView(st, st.Punch, st.Challenge)
	case Processing:
		return punchView(st, st.Punch, st.Challenge)
	case Success:
		rec, res := st.Record, st.Result
		return View{
			Workflow:   WorkflowAttendance,
			State:      st.Name(),
			Punch:      rec.Type,
			PunchLabel: rec.Type.Label(),
			Record:     &rec,
			Result:     &res,
		}
	case Failure:
		return View{
			Workflow:     WorkflowAttendance,
			State:        st.Name(),
			Punch:        st.Punch,
			PunchLabel:   st.Punch.Label(),
			Result:       st.Result,
			Reason:       st.Reason,
			Cause:        st.Cause,
			LastRecordAt: st.LastRecordAt,
		}
	case RegistrationForm:
		form := st.Form
		return View{Workflow: WorkflowRegistration, State: st.Name(), Form: &form, Message: st.Message}
	case RegistrationCapture:
		form := st.Form
		return View{Workflow: WorkflowRegistration, State: st.Name(), Form: &form}
	case RegistrationPreview:
		form := st.Form
		return View{
			Workflow: WorkflowRegistration,
			State:    st.Name(),
			Form:     &form,
			HasImage: len(st.Image) > 0,
			Reason:   st.Rejection,
		}
	case RegistrationValidating:
		form := st.Form
		return View{Workflow: WorkflowRegistration, State: st.Name(), Form: &form}
	case RegistrationComplete:
		u := st.User
		u.FaceImage = nil
		return View{Workflow: WorkflowRegistration, State: st.Name(), User: &u}
	default:
		return View{State: "unknown"}
	}
}

func punchView(s State, p attendance.PunchType, c attendance.LivenessAction) View {
	return View{
		Workflow:   WorkflowAttendance,
		State:      s.Name(),
		Punch:      p,
		PunchLabel: p.Label(),
		Challenge:  c,
	}
}
