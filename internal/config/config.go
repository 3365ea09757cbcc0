package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

// Supported AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Supported ledger backends.
const (
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
	BackendMemory   = "memory"
)

type Config struct {
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	AI       AIConfig
	Database DatabaseConfig
	Kiosk    KioskConfig
	Web      WebConfig
	Logging  LoggingConfig
	Prices   PricesConfig
}

type OpenAIConfig struct {
	Token string
	Model string // defaults to gpt-4.1-mini
}

type GeminiConfig struct {
	APIKey string
	Model  string // defaults to gemini-2.5-flash
}

// AIConfig selects the vision provider and the image sizes sent to it.
type AIConfig struct {
	Provider string // gemini or openai

	VerifyWidth      int // live and candidate images
	VerifyQuality    int
	ValidateWidth    int // registration quality check
	ValidateQuality  int
	ReferenceWidth   int // stored reference image
	ReferenceQuality int

	Timeout time.Duration
}

type DatabaseConfig struct {
	Backend      string // postgres, mariadb or memory
	URL          string // PostgreSQL connection URL
	MariaDBDSN   string // e.g. kiosk:kiosk@tcp(mariadb:3306)/kiosk?parseTime=true
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	LedgerFile   string // JSON snapshot for the memory backend (optional)
}

type KioskConfig struct {
	MaxCandidates      int           // users sent per verification request
	CandidateOrder     string        // registration or newest
	SuccessReturnDelay time.Duration // success screen auto-return
}

type WebConfig struct {
	Host              string
	Port              int
	SessionSecret     string
	AdminPasswordHash string // bcrypt; admin routes are open when empty
	AllowedOrigins    []string
}

type LoggingConfig struct {
	Level  string
	Dev    bool
	File   string // rotated log file pattern base, stdout only when empty
	MaxAge time.Duration
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads a Go duration ("3.5s") or a plain number of seconds.
// Returns the default value if the env var is unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, skipping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	cfg := &Config{
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
			Model: envString("OPENAI_MODEL", "gpt-4.1-mini"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  envString("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		AI: AIConfig{
			Provider:         strings.ToLower(envString("AI_PROVIDER", ProviderGemini)),
			VerifyWidth:      envInt("AI_VERIFY_WIDTH", 200),
			VerifyQuality:    envInt("AI_VERIFY_QUALITY", 50),
			ValidateWidth:    envInt("AI_VALIDATE_WIDTH", 300),
			ValidateQuality:  envInt("AI_VALIDATE_QUALITY", 70),
			ReferenceWidth:   envInt("AI_REFERENCE_WIDTH", 400),
			ReferenceQuality: envInt("AI_REFERENCE_QUALITY", 92),
			Timeout:          envDuration("AI_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Backend:      strings.ToLower(os.Getenv("DATABASE_BACKEND")),
			URL:          os.Getenv("DATABASE_URL"),
			MariaDBDSN:   os.Getenv("MARIADB_DSN"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			LedgerFile:   os.Getenv("LEDGER_FILE"),
		},
		Kiosk: KioskConfig{
			MaxCandidates:      envInt("KIOSK_MAX_CANDIDATES", 40),
			CandidateOrder:     strings.ToLower(envString("KIOSK_CANDIDATE_ORDER", "registration")),
			SuccessReturnDelay: envDuration("KIOSK_SUCCESS_RETURN_DELAY", 3500*time.Millisecond),
		},
		Web: WebConfig{
			Host:              envString("WEB_HOST", "0.0.0.0"),
			Port:              envInt("WEB_PORT", 8080),
			SessionSecret:     os.Getenv("WEB_SESSION_SECRET"),
			AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			AllowedOrigins:    envList("WEB_ALLOWED_ORIGINS"),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Dev:    envBool("LOG_DEV"),
			File:   os.Getenv("LOG_FILE"),
			MaxAge: envDuration("LOG_MAX_AGE", 7*24*time.Hour),
		},
		Prices: prices,
	}

	if cfg.Database.Backend == "" {
		cfg.Database.Backend = cfg.defaultBackend()
	}
	return cfg
}

// defaultBackend picks a backend from whichever connection setting is present.
func (c *Config) defaultBackend() string {
	switch {
	case c.Database.URL != "":
		return BackendPostgres
	case c.Database.MariaDBDSN != "":
		return BackendMariaDB
	default:
		return BackendMemory
	}
}

// Validate checks the settings the server and the workflows depend on.
// A missing API key is not an error: verification then fails with a
// readable reason instead of refusing to start.
func (c *Config) Validate() error {
	var errs []error

	switch c.AI.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER %q is not supported (gemini, openai)", c.AI.Provider))
	}

	switch c.Database.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendMariaDB:
		if c.Database.MariaDBDSN == "" {
			errs = append(errs, errors.New("MARIADB_DSN is required for the mariadb backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("DATABASE_BACKEND %q is not supported (postgres, mariadb, memory)", c.Database.Backend))
	}

	switch c.Kiosk.CandidateOrder {
	case "registration", "newest":
	default:
		errs = append(errs, fmt.Errorf("KIOSK_CANDIDATE_ORDER %q is not supported (registration, newest)", c.Kiosk.CandidateOrder))
	}

	if c.Web.AdminPasswordHash != "" && c.Web.SessionSecret == "" {
		errs = append(errs, errors.New("WEB_SESSION_SECRET is required when ADMIN_PASSWORD_HASH is set"))
	}

	for name, q := range map[string]int{
		"AI_VERIFY_QUALITY":    c.AI.VerifyQuality,
		"AI_VALIDATE_QUALITY":  c.AI.ValidateQuality,
		"AI_REFERENCE_QUALITY": c.AI.ReferenceQuality,
	} {
		if q > 100 {
			errs = append(errs, fmt.Errorf("%s must be between 1 and 100, got %d", name, q))
		}
	}

	return errors.Join(errs...)
}

// HasAPIKey reports whether the selected provider has credentials.
func (c *Config) HasAPIKey() bool {
	switch c.AI.Provider {
	case ProviderOpenAI:
		return c.OpenAI.Token != ""
	default:
		return c.Gemini.APIKey != ""
	}
}

// ModelName returns the model used by the selected provider.
func (c *Config) ModelName() string {
	if c.AI.Provider == ProviderOpenAI {
		return c.OpenAI.Model
	}
	return c.Gemini.Model
}

// GetModelPricing returns pricing for a specific model, with fallback defaults
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	// Return zero pricing if model not found
	return ModelPricing{}
}
