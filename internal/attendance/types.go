// Package attendance holds the kiosk domain model: registered users, the
// attendance ledger entries, verification outcomes and the liveness
// challenge vocabulary.
package attendance

import (
	"fmt"
	"strings"
	"time"
)

// MethodFaceBiometric is the method tag stamped on every attendance record.
const MethodFaceBiometric = "face-biometric"

// PunchType is the direction of an attendance event.
type PunchType string

// Punch types.
const (
	PunchIn  PunchType = "IN"
	PunchOut PunchType = "OUT"
)

// ParsePunchType accepts IN/OUT in any case, plus the check-in/check-out aliases.
func ParsePunchType(s string) (PunchType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IN", "CHECK-IN", "CHECKIN", "PUNCH_IN":
		return PunchIn, nil
	case "OUT", "CHECK-OUT", "CHECKOUT", "PUNCH_OUT":
		return PunchOut, nil
	default:
		return "", fmt.Errorf("unknown punch type %q (expected IN or OUT)", s)
	}
}

// Label returns the human readable form shown on the kiosk.
func (p PunchType) Label() string {
	if p == PunchOut {
		return "CHECK OUT"
	}
	return "CHECK IN"
}

// User is a registered person with a reference face image.
type User struct {
	ID           string    `json:"id"`
	EmployeeID   string    `json:"employee_id"`
	Name         string    `json:"name"`
	Department   string    `json:"department"`
	FaceImage    []byte    `json:"face_image,omitempty"` // JPEG
	RegisteredAt time.Time `json:"registered_at"`
}

// Record is an immutable attendance ledger entry.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Timestamp  time.Time `json:"timestamp"`
	Type       PunchType `json:"type"`
	Confidence float64   `json:"confidence"`
	Method     string    `json:"method"`
}

// VerificationResult is the outcome of one face verification call.
// UserID is empty when no registered user matched.
type VerificationResult struct {
	Match             bool    `json:"match"`
	UserID            string  `json:"user_id,omitempty"`
	Confidence        float64 `json:"confidence"`
	LivenessConfirmed bool    `json:"liveness_confirmed"`
	SpoofDetected     bool    `json:"spoof_detected"`
	Reason            string  `json:"reason"`
}

// Accepted reports whether the result identifies a live, non-spoofed, matched user.
func (r VerificationResult) Accepted() bool {
	return r.Match && r.LivenessConfirmed && !r.SpoofDetected && r.UserID != ""
}

// Failed builds a negative verification result carrying only a reason.
func Failed(reason string) VerificationResult {
	return VerificationResult{Reason: reason}
}

// ImageValidation is the answer of the registration image quality check.
type ImageValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
