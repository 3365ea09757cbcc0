package database

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/config"
)

// Opener connects a ledger backend.
type Opener func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Ledger, error)

var (
	backends   = make(map[string]Opener)
	backendsMu sync.RWMutex
)

// RegisterBackend registers a ledger backend constructor under name.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = open
}

// Backends returns the registered backend names.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open connects the backend selected by cfg.Database.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Ledger, error) {
	backendsMu.RLock()
	open, ok := backends[cfg.Database.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ledger backend %q not registered (available: %v)", cfg.Database.Backend, Backends())
	}
	ledger, err := open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s ledger: %w", cfg.Database.Backend, err)
	}
	return ledger, nil
}
