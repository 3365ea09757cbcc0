package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/config"
)

// Reasons reported without calling the model.
const (
	ReasonNoAPIKey           = "System Error: API Key is missing."
	ReasonNoUsers            = "No users registered in the database."
	ReasonNoAPIKeyValidation = "API Key is missing."
)

// GatewayOptions controls how requests are shaped before reaching a provider.
type GatewayOptions struct {
	MaxCandidates  int
	CandidateOrder attendance.CandidateOrder

	VerifyWidth      int
	VerifyQuality    int
	ValidateWidth    int
	ValidateQuality  int
	ReferenceWidth   int
	ReferenceQuality int

	Timeout time.Duration
}

// DefaultGatewayOptions returns the kiosk defaults.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		MaxCandidates:    40,
		CandidateOrder:   attendance.OrderRegistration,
		VerifyWidth:      200,
		VerifyQuality:    50,
		ValidateWidth:    300,
		ValidateQuality:  70,
		ReferenceWidth:   400,
		ReferenceQuality: 92,
		Timeout:          60 * time.Second,
	}
}

// OptionsFromConfig builds gateway options from the loaded config.
func OptionsFromConfig(cfg *config.Config) (GatewayOptions, error) {
	order, err := attendance.ParseCandidateOrder(cfg.Kiosk.CandidateOrder)
	if err != nil {
		return GatewayOptions{}, err
	}
	return GatewayOptions{
		MaxCandidates:    cfg.Kiosk.MaxCandidates,
		CandidateOrder:   order,
		VerifyWidth:      cfg.AI.VerifyWidth,
		VerifyQuality:    cfg.AI.VerifyQuality,
		ValidateWidth:    cfg.AI.ValidateWidth,
		ValidateQuality:  cfg.AI.ValidateQuality,
		ReferenceWidth:   cfg.AI.ReferenceWidth,
		ReferenceQuality: cfg.AI.ReferenceQuality,
		Timeout:          cfg.AI.Timeout,
	}, nil
}

// NewProvider creates the provider selected in cfg. It returns ErrNoAPIKey
// when the provider has no credentials.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	pricing := func(model string) RequestPricing {
		p := cfg.GetModelPricing(model).Standard
		return RequestPricing{Input: p.Input, Output: p.Output}
	}

	// Errors must yield a nil interface, not a typed nil.
	switch cfg.AI.Provider {
	case config.ProviderGemini, "":
		p, err := NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, pricing(cfg.Gemini.Model))
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.OpenAI.Token, cfg.OpenAI.Model, pricing(cfg.OpenAI.Model))
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AI.Provider)
	}
}

// Gateway adapts a Provider to the kiosk workflows. It never returns provider
// errors: every failure becomes a negative result carrying a reason.
type Gateway struct {
	provider Provider
	opts     GatewayOptions
	logger   *zap.Logger
}

// NewGateway creates a gateway. A nil provider means no API key is
// configured; verification then fails with a readable reason.
func NewGateway(provider Provider, opts GatewayOptions, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{provider: provider, opts: opts, logger: logger}
}

// ProviderName returns the model name, empty without a provider.
func (g *Gateway) ProviderName() string {
	if g.provider == nil {
		return ""
	}
	return g.provider.Name()
}

// Usage returns the provider's accumulated token usage.
func (g *Gateway) Usage() Usage {
	if g.provider == nil {
		return Usage{}
	}
	return g.provider.GetUsage()
}

// Options returns the gateway options.
func (g *Gateway) Options() GatewayOptions {
	return g.opts
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.opts.Timeout)
}

// compress shrinks data for sending; on failure the original bytes are sent.
func (g *Gateway) compress(data []byte, width, quality int, what string) []byte {
	out, err := CompressImage(data, width, quality)
	if err != nil {
		g.logger.Warn("image compression failed, sending original", zap.String("image", what), zap.Error(err))
		return data
	}
	return out
}

// Verify matches image against users while checking the liveness action.
// At most MaxCandidates users are sent; the returned user id refers to the
// user at the model's matched index in the list actually sent.
func (g *Gateway) Verify(ctx context.Context, image []byte, users []attendance.User, action attendance.LivenessAction) attendance.VerificationResult {
	if g.provider == nil {
		return attendance.Failed(ReasonNoAPIKey)
	}
	if len(users) == 0 {
		return attendance.Failed(ReasonNoUsers)
	}

	pool, dropped := attendance.CandidatePool(users, g.opts.MaxCandidates, g.opts.CandidateOrder)
	if dropped > 0 {
		g.logger.Warn("candidate pool truncated",
			zap.Int("registered", len(users)),
			zap.Int("sent", len(pool)),
			zap.Int("dropped", dropped),
			zap.String("order", string(g.opts.CandidateOrder)),
		)
	}

	req := VerifyRequest{
		LiveImage:  g.compress(image, g.opts.VerifyWidth, g.opts.VerifyQuality, "live"),
		Candidates: make([][]byte, len(pool)),
		Action:     action,
	}
	for i, u := range pool {
		req.Candidates[i] = g.compress(u.FaceImage, g.opts.VerifyWidth, g.opts.VerifyQuality, u.ID)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	verdict, err := g.provider.VerifyFace(ctx, req)
	if err != nil {
		g.logger.Error("verification failed", zap.Error(err), zap.Int("status", StatusCode(err)))
		return attendance.Failed("Verification Error: " + FriendlyError(err))
	}

	result := attendance.VerificationResult{
		Match:             verdict.Match,
		Confidence:        clampConfidence(verdict.Confidence),
		LivenessConfirmed: verdict.LivenessConfirmed,
		SpoofDetected:     verdict.SpoofDetected,
		Reason:            verdict.Reason,
	}
	if verdict.Match && verdict.MatchedUserIndex >= 0 && verdict.MatchedUserIndex < len(pool) {
		result.UserID = pool[verdict.MatchedUserIndex].ID
	}

	g.logger.Info("verification completed",
		zap.Bool("match", result.Match),
		zap.Int("matched_index", verdict.MatchedUserIndex),
		zap.String("user_id", result.UserID),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("liveness", result.LivenessConfirmed),
		zap.Bool("spoof", result.SpoofDetected),
		zap.Int("candidates", len(pool)),
		zap.Duration("took", time.Since(start)),
	)
	return result
}

// ValidateImage checks that image shows exactly one clear face.
func (g *Gateway) ValidateImage(ctx context.Context, image []byte) attendance.ImageValidation {
	if g.provider == nil {
		return attendance.ImageValidation{Valid: false, Reason: ReasonNoAPIKeyValidation}
	}

	compressed, err := CompressImage(image, g.opts.ValidateWidth, g.opts.ValidateQuality)
	if err != nil {
		return attendance.ImageValidation{Valid: false, Reason: "Validation Error: " + err.Error()}
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	v, err := g.provider.ValidateFace(ctx, compressed)
	if err != nil {
		g.logger.Error("image validation failed", zap.Error(err))
		return attendance.ImageValidation{Valid: false, Reason: "Validation Error: " + errorMessage(err)}
	}
	if !v.Valid && v.Reason == "" {
		v.Reason = "Face not clearly visible"
	}
	return *v
}

// Normalize produces the stored reference image.
func (g *Gateway) Normalize(image []byte) ([]byte, error) {
	return CompressImage(image, g.opts.ReferenceWidth, g.opts.ReferenceQuality)
}

func errorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}

func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
