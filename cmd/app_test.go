package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/faceauth-station/internal/config"
)

func TestLoadConfig_GlobalFlags(t *testing.T) {
	t.Setenv("AI_PROVIDER", "gemini")
	t.Setenv("DATABASE_BACKEND", "postgres")

	oldProvider, oldMemory := providerOverride, memoryLedger
	t.Cleanup(func() { providerOverride, memoryLedger = oldProvider, oldMemory })

	providerOverride, memoryLedger = "", false
	cfg := loadConfig()
	if cfg.AI.Provider != config.ProviderGemini || cfg.Database.Backend != config.BackendPostgres {
		t.Fatalf("expected environment values, got %q/%q", cfg.AI.Provider, cfg.Database.Backend)
	}

	providerOverride, memoryLedger = "OpenAI", true
	cfg = loadConfig()
	if cfg.AI.Provider != config.ProviderOpenAI {
		t.Errorf("expected provider override, got %q", cfg.AI.Provider)
	}
	if cfg.Database.Backend != config.BackendMemory {
		t.Errorf("expected memory backend, got %q", cfg.Database.Backend)
	}
}

func TestReadImageFile(t *testing.T) {
	dir := t.TempDir()

	notImage := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notImage, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := readImageFile(notImage); err == nil || !strings.Contains(err.Error(), "unsupported image") {
		t.Errorf("expected unsupported image error, got %v", err)
	}

	if _, err := readImageFile(filepath.Join(dir, "missing.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "punch", "register", "users", "records", "clear", "challenge", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
