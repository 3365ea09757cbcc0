package ai

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
)

// ErrNoAPIKey is returned when the selected provider has no credentials.
var ErrNoAPIKey = errors.New("API key is missing")

// VerifyRequest is one face verification call. Images are JPEG bytes,
// already compressed; Candidates are in the order their indexes refer to.
type VerifyRequest struct {
	LiveImage  []byte
	Candidates [][]byte
	Action     attendance.LivenessAction
}

// Verdict is the raw answer of the vision model. MatchedUserIndex refers to
// VerifyRequest.Candidates, -1 when no one matched.
type Verdict struct {
	Match             bool    `json:"match"`
	MatchedUserIndex  int     `json:"matchedUserIndex"`
	LivenessConfirmed bool    `json:"livenessConfirmed"`
	SpoofDetected     bool    `json:"spoofDetected"`
	Confidence        float64 `json:"confidence"`
	Reason            string  `json:"reason"`
}

// UnmarshalJSON defaults a missing matchedUserIndex to -1.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	type plain Verdict
	p := plain{MatchedUserIndex: -1}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = Verdict(p)
	return nil
}

// Provider defines the interface for vision model backends.
type Provider interface {
	Name() string
	VerifyFace(ctx context.Context, req VerifyRequest) (*Verdict, error)
	ValidateFace(ctx context.Context, image []byte) (*attendance.ImageValidation, error)

	// Usage tracking.
	GetUsage() Usage
	ResetUsage()
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"` // in USD
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageTracker is embedded by providers; calls may come from the attendance
// and registration workflows at the same time.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (t *usageTracker) trackUsage(inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Requests++
	t.usage.InputTokens += int(inputTokens)
	t.usage.OutputTokens += int(outputTokens)
	t.usage.TotalCost += float64(inputTokens) / 1_000_000 * t.pricing.Input
	t.usage.TotalCost += float64(outputTokens) / 1_000_000 * t.pricing.Output
}

func (t *usageTracker) GetUsage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

func (t *usageTracker) ResetUsage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = Usage{}
}
