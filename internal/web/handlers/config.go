package handlers

import (
	"net/http"

	"github.com/kozaktomas/faceauth-station/internal/ai"
	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/config"
)

// UsageReporter reports which AI provider serves the kiosk and what it has
// cost so far.
type UsageReporter interface {
	ProviderName() string
	Usage() ai.Usage
}

// ConfigHandler handles the kiosk configuration endpoint
type ConfigHandler struct {
	config *config.Config
	usage  UsageReporter
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, usage UsageReporter) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
		usage:  usage,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Challenges     []attendance.LivenessAction `json:"challenges"`
	Provider       string                      `json:"provider"`
	ProviderReady  bool                        `json:"provider_ready"`
	MaxCandidates  int                         `json:"max_candidates"`
	CandidateOrder string                      `json:"candidate_order"`
	SuccessDelayMs int64                       `json:"success_delay_ms"`
	Usage          ai.Usage                    `json:"usage"`
	AuthRequired   bool                        `json:"auth_required"`
}

// Get returns what the kiosk UI needs to render
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		Challenges:     attendance.LivenessActions(),
		Provider:       h.usage.ProviderName(),
		MaxCandidates:  h.config.Kiosk.MaxCandidates,
		CandidateOrder: h.config.Kiosk.CandidateOrder,
		SuccessDelayMs: h.config.Kiosk.SuccessReturnDelay.Milliseconds(),
		Usage:          h.usage.Usage(),
		AuthRequired:   h.config.Web.AdminPasswordHash != "",
	}
	response.ProviderReady = response.Provider != ""

	respondJSON(w, http.StatusOK, response)
}
