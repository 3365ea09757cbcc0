package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/ai"
	"github.com/kozaktomas/faceauth-station/internal/config"
	"github.com/kozaktomas/faceauth-station/internal/database"
	"github.com/kozaktomas/faceauth-station/internal/logging"

	// Ledger backends register themselves with the database package.
	_ "github.com/kozaktomas/faceauth-station/internal/database/mariadb"
	_ "github.com/kozaktomas/faceauth-station/internal/database/memory"
	_ "github.com/kozaktomas/faceauth-station/internal/database/postgres"
)

// app bundles what every command needs: configuration, logger, ledger and
// the AI gateway.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	ledger  database.Ledger
	gateway *ai.Gateway
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() *config.Config {
	cfg := config.Load()
	if providerOverride != "" {
		cfg.AI.Provider = strings.ToLower(providerOverride)
	}
	if memoryLedger {
		cfg.Database.Backend = config.BackendMemory
	}
	return cfg
}

func newApp(ctx context.Context) (*app, error) {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	ledger, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	gateway, err := newGateway(ctx, cfg, logger)
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, ledger: ledger, gateway: gateway}, nil
}

// newGateway creates the gateway for the configured provider. A missing API
// key is not fatal: the kiosk still starts and every verification fails
// with a readable reason.
func newGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ai.Gateway, error) {
	provider, err := ai.NewProvider(ctx, cfg)
	if errors.Is(err, ai.ErrNoAPIKey) {
		logger.Warn("no API key configured, verification is disabled", zap.String("provider", cfg.AI.Provider))
		provider = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}

	opts, err := ai.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return ai.NewGateway(provider, opts, logger), nil
}

func (a *app) Close() {
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn("failed to close ledger", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// readImageFile loads an image from disk and checks that it decodes.
func readImageFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if err := ai.CheckImage(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
