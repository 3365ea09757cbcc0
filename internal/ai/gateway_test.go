package ai

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/config"
)

type fakeProvider struct {
	mu sync.Mutex

	verdict    *Verdict
	verifyErr  error
	validation *attendance.ImageValidation
	validErr   error
	block      bool

	lastVerify   VerifyRequest
	lastValidate []byte
	verifyCalls  int
	usageTracker
}

func (f *fakeProvider) Name() string { return "fake-model" }

func (f *fakeProvider) VerifyFace(ctx context.Context, req VerifyRequest) (*Verdict, error) {
	f.mu.Lock()
	f.lastVerify = req
	f.verifyCalls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.trackUsage(100, 10)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	v := *f.verdict
	return &v, nil
}

func (f *fakeProvider) ValidateFace(ctx context.Context, image []byte) (*attendance.ImageValidation, error) {
	f.mu.Lock()
	f.lastValidate = image
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.validErr != nil {
		return nil, f.validErr
	}
	v := *f.validation
	return &v, nil
}

func testUsers(n int) []attendance.User {
	face := encodeJPEG(createTestImage(600, 600, color.Gray{Y: 128}))
	users := make([]attendance.User, n)
	for i := range n {
		users[i] = attendance.User{
			ID:         fmt.Sprintf("user-%d", i),
			EmployeeID: fmt.Sprintf("E%03d", i),
			Name:       "User",
			FaceImage:  face,
		}
	}
	return users
}

func liveImage() []byte {
	return encodeJPEG(createTestImage(1280, 720, color.White))
}

func TestGateway_NoProvider(t *testing.T) {
	g := NewGateway(nil, DefaultGatewayOptions(), nil)

	res := g.Verify(t.Context(), liveImage(), testUsers(1), attendance.ActionBlink)
	if res.Match || res.Reason != "System Error: API Key is missing." {
		t.Errorf("unexpected result: %+v", res)
	}

	v := g.ValidateImage(t.Context(), liveImage())
	if v.Valid || v.Reason != "API Key is missing." {
		t.Errorf("unexpected validation: %+v", v)
	}

	if g.ProviderName() != "" {
		t.Errorf("expected empty provider name, got %q", g.ProviderName())
	}
	if g.Usage() != (Usage{}) {
		t.Errorf("expected zero usage, got %+v", g.Usage())
	}
}

func TestGateway_NoUsers(t *testing.T) {
	p := &fakeProvider{verdict: &Verdict{Match: true, MatchedUserIndex: 0}}
	g := NewGateway(p, DefaultGatewayOptions(), nil)

	res := g.Verify(t.Context(), liveImage(), nil, attendance.ActionBlink)
	if res.Match || res.Reason != "No users registered in the database." {
		t.Errorf("unexpected result: %+v", res)
	}
	if p.verifyCalls != 0 {
		t.Errorf("provider should not be called, got %d calls", p.verifyCalls)
	}
}

func TestGateway_VerifyMapsIndexToUser(t *testing.T) {
	p := &fakeProvider{verdict: &Verdict{
		Match:             true,
		MatchedUserIndex:  1,
		LivenessConfirmed: true,
		Confidence:        0.91,
		Reason:            "same person",
	}}
	g := NewGateway(p, DefaultGatewayOptions(), nil)
	users := testUsers(3)

	res := g.Verify(t.Context(), liveImage(), users, attendance.ActionLookLeft)

	if !res.Accepted() {
		t.Fatalf("expected accepted result, got %+v", res)
	}
	if res.UserID != users[1].ID {
		t.Errorf("expected user %s, got %s", users[1].ID, res.UserID)
	}
	if res.Confidence != 0.91 || res.Reason != "same person" {
		t.Errorf("unexpected result: %+v", res)
	}

	req := p.lastVerify
	if req.Action != attendance.ActionLookLeft {
		t.Errorf("expected action to be forwarded, got %q", req.Action)
	}
	if len(req.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(req.Candidates))
	}
	bounds, format := decodeBounds(t, req.LiveImage)
	if format != "jpeg" || bounds.Dx() != 200 {
		t.Errorf("expected live image compressed to 200px jpeg, got %s %dx%d", format, bounds.Dx(), bounds.Dy())
	}
	cb, _ := decodeBounds(t, req.Candidates[0])
	if cb.Dx() != 200 {
		t.Errorf("expected candidate compressed to 200px, got %d", cb.Dx())
	}
}

func TestGateway_VerifyIndexOutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		verdict Verdict
	}{
		{"negative", Verdict{Match: true, MatchedUserIndex: -1, LivenessConfirmed: true}},
		{"past end", Verdict{Match: true, MatchedUserIndex: 5, LivenessConfirmed: true}},
		{"index without match", Verdict{Match: false, MatchedUserIndex: 0, LivenessConfirmed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{verdict: &tt.verdict}
			g := NewGateway(p, DefaultGatewayOptions(), nil)
			res := g.Verify(t.Context(), liveImage(), testUsers(2), attendance.ActionSmile)
			if res.UserID != "" {
				t.Errorf("expected no user id, got %q", res.UserID)
			}
			if res.Accepted() {
				t.Error("result must not be accepted")
			}
		})
	}
}

func TestGateway_VerifyTruncatesCandidates(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &fakeProvider{verdict: &Verdict{Match: true, MatchedUserIndex: 2, LivenessConfirmed: true}}
	opts := DefaultGatewayOptions()
	opts.MaxCandidates = 3
	opts.CandidateOrder = attendance.OrderNewest
	g := NewGateway(p, opts, zap.New(core))
	users := testUsers(5)

	res := g.Verify(t.Context(), liveImage(), users, attendance.ActionBlink)

	if len(p.lastVerify.Candidates) != 3 {
		t.Errorf("expected 3 candidates, got %d", len(p.lastVerify.Candidates))
	}
	// Newest order keeps users[2:], so index 2 is users[4].
	if res.UserID != users[4].ID {
		t.Errorf("expected %s, got %s", users[4].ID, res.UserID)
	}
	entries := logs.FilterMessage("candidate pool truncated").All()
	if len(entries) != 1 {
		t.Fatalf("expected one truncation warning, got %d", len(entries))
	}
	if dropped := entries[0].ContextMap()["dropped"]; dropped != int64(2) {
		t.Errorf("expected dropped=2, got %v", dropped)
	}
}

func TestGateway_VerifyProviderError(t *testing.T) {
	p := &fakeProvider{verifyErr: errors.New("gemini API error: Error 429, Message: quota")}
	g := NewGateway(p, DefaultGatewayOptions(), nil)

	res := g.Verify(t.Context(), liveImage(), testUsers(1), attendance.ActionBlink)
	if res.Match {
		t.Error("expected no match")
	}
	want := "Verification Error: AI quota exceeded (429). Try again later."
	if res.Reason != want {
		t.Errorf("expected %q, got %q", want, res.Reason)
	}
}

func TestGateway_VerifyTimeout(t *testing.T) {
	p := &fakeProvider{block: true}
	opts := DefaultGatewayOptions()
	opts.Timeout = 20 * time.Millisecond
	g := NewGateway(p, opts, nil)

	res := g.Verify(t.Context(), liveImage(), testUsers(1), attendance.ActionBlink)
	if !strings.HasPrefix(res.Reason, "Verification Error: ") {
		t.Errorf("expected verification error, got %q", res.Reason)
	}
}

func TestGateway_UncompressibleCandidateSentAsIs(t *testing.T) {
	p := &fakeProvider{verdict: &Verdict{MatchedUserIndex: -1}}
	g := NewGateway(p, DefaultGatewayOptions(), nil)
	users := testUsers(1)
	users[0].FaceImage = []byte("legacy blob")

	g.Verify(t.Context(), liveImage(), users, attendance.ActionBlink)

	if string(p.lastVerify.Candidates[0]) != "legacy blob" {
		t.Error("expected original bytes when compression fails")
	}
}

func TestGateway_ConfidenceClamped(t *testing.T) {
	for _, tt := range []struct{ in, want float64 }{{1.7, 1}, {-0.2, 0}, {0.5, 0.5}} {
		p := &fakeProvider{verdict: &Verdict{Confidence: tt.in, MatchedUserIndex: -1}}
		g := NewGateway(p, DefaultGatewayOptions(), nil)
		res := g.Verify(t.Context(), liveImage(), testUsers(1), attendance.ActionBlink)
		if res.Confidence != tt.want {
			t.Errorf("confidence %v: expected %v, got %v", tt.in, tt.want, res.Confidence)
		}
	}
}

func TestGateway_ValidateImage(t *testing.T) {
	p := &fakeProvider{validation: &attendance.ImageValidation{Valid: true}}
	g := NewGateway(p, DefaultGatewayOptions(), nil)

	v := g.ValidateImage(t.Context(), liveImage())
	if !v.Valid {
		t.Errorf("expected valid, got %+v", v)
	}
	bounds, _ := decodeBounds(t, p.lastValidate)
	if bounds.Dx() != 300 {
		t.Errorf("expected validation image at 300px, got %d", bounds.Dx())
	}
}

func TestGateway_ValidateImageFailures(t *testing.T) {
	t.Run("rejected without reason", func(t *testing.T) {
		p := &fakeProvider{validation: &attendance.ImageValidation{Valid: false}}
		v := NewGateway(p, DefaultGatewayOptions(), nil).ValidateImage(t.Context(), liveImage())
		if v.Valid || v.Reason == "" {
			t.Errorf("expected a rejection reason, got %+v", v)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		p := &fakeProvider{validErr: errors.New("boom")}
		v := NewGateway(p, DefaultGatewayOptions(), nil).ValidateImage(t.Context(), liveImage())
		if v.Valid || v.Reason != "Validation Error: boom" {
			t.Errorf("unexpected validation: %+v", v)
		}
	})

	t.Run("undecodable image", func(t *testing.T) {
		p := &fakeProvider{validation: &attendance.ImageValidation{Valid: true}}
		v := NewGateway(p, DefaultGatewayOptions(), nil).ValidateImage(t.Context(), []byte("nope"))
		if v.Valid || !strings.HasPrefix(v.Reason, "Validation Error: ") {
			t.Errorf("unexpected validation: %+v", v)
		}
		if p.lastValidate != nil {
			t.Error("provider should not be called for undecodable images")
		}
	})
}

func TestGateway_Normalize(t *testing.T) {
	g := NewGateway(nil, DefaultGatewayOptions(), nil)

	out, err := g.Normalize(encodePNG(createTestImage(1000, 500, color.White)))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	bounds, format := decodeBounds(t, out)
	if format != "jpeg" || bounds.Dx() != 400 || bounds.Dy() != 200 {
		t.Errorf("expected 400x200 jpeg, got %s %dx%d", format, bounds.Dx(), bounds.Dy())
	}
}

func TestGateway_Usage(t *testing.T) {
	p := &fakeProvider{verdict: &Verdict{MatchedUserIndex: -1}}
	g := NewGateway(p, DefaultGatewayOptions(), nil)

	g.Verify(t.Context(), liveImage(), testUsers(1), attendance.ActionBlink)
	g.Verify(t.Context(), liveImage(), testUsers(1), attendance.ActionBlink)

	u := g.Usage()
	if u.Requests != 2 || u.InputTokens != 200 || u.OutputTokens != 20 {
		t.Errorf("unexpected usage: %+v", u)
	}
	if g.ProviderName() != "fake-model" {
		t.Errorf("unexpected provider name %q", g.ProviderName())
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Kiosk.MaxCandidates = 12
	cfg.Kiosk.CandidateOrder = "newest"
	cfg.AI.VerifyWidth = 180
	cfg.AI.Timeout = 5 * time.Second

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	if opts.MaxCandidates != 12 || opts.CandidateOrder != attendance.OrderNewest || opts.VerifyWidth != 180 || opts.Timeout != 5*time.Second {
		t.Errorf("unexpected options: %+v", opts)
	}

	cfg.Kiosk.CandidateOrder = "random"
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("expected error for unknown candidate order")
	}
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.AI.Provider = config.ProviderGemini
	missing, err := NewProvider(t.Context(), cfg)
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil provider, got %T", missing)
	}

	cfg.AI.Provider = config.ProviderOpenAI
	cfg.OpenAI.Token = "sk-test"
	p, err := NewProvider(t.Context(), cfg)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "gpt-4.1-mini" {
		t.Errorf("unexpected model %q", p.Name())
	}

	cfg.AI.Provider = "llama"
	if _, err := NewProvider(t.Context(), cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}
