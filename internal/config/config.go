// Package config handles application configuration.
//
// Go Pattern: Configuration via environment variables with sensible defaults.
// In Go, we typically use structs to hold configuration, and a function to
// load values from environment variables. Viewer tuning that operators want
// to keep under version control can also come from a small YAML file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"go.yaml.in/yaml/v2"
)

// Config holds all application configuration.
// Go Pattern: We use exported (capitalized) fields so other packages can read them.
type Config struct {
	// Server settings
	Port    string
	GinMode string // "debug", "release", or "test"

	// OpenRouter AI settings (the tutor behind explain/quiz/flashcards/chat)
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string

	// Uploads and sessions
	MaxUploadMB   int           // Largest accepted PDF
	MaxViewers    int           // Open viewers held in memory at once
	ViewerIdleTTL time.Duration // Idle viewers are closed after this long
	RenderWait    time.Duration // How long a request waits for a render to settle

	// Rasterizations running at once across all viewers (0 = no cap)
	RenderConcurrency int

	// Host event delivery (optional)
	HostWebhookURL    string
	HostWebhookSecret string

	// Rate limiting
	RateLimitPerMinute int
	RateLimitBurst     int

	// CORS
	AllowedOrigins []string

	// Viewer tunables, optionally overridden by VIEWER_CONFIG
	ViewerConfigPath string
	Viewer           Viewer
}

// Viewer holds the knobs of the PDF pipeline. The YAML keys match the
// field tags; anything left out keeps its default.
type Viewer struct {
	MinScale      float64       `yaml:"min_scale"`
	MaxScale      float64       `yaml:"max_scale"`
	ScaleStep     float64       `yaml:"scale_step"`
	DefaultScale  float64       `yaml:"default_scale"`
	AscentRatio   float64       `yaml:"ascent_ratio"`
	LineThreshold float64       `yaml:"line_threshold"`
	Debounce      time.Duration `yaml:"debounce"`
	AnchorLift    float64       `yaml:"anchor_lift"`
}

// DefaultViewer returns the stock viewer tuning.
func DefaultViewer() Viewer {
	return Viewer{
		MinScale:      0.5,
		MaxScale:      3.0,
		ScaleStep:     0.1,
		DefaultScale:  1.2,
		AscentRatio:   0.8,
		LineThreshold: 5,
		Debounce:      10 * time.Millisecond,
		AnchorLift:    10,
	}
}

// Load reads configuration from environment variables with sensible defaults.
//
// Go Pattern: Functions that can fail return (value, error). This is Go's
// alternative to exceptions - the caller MUST handle the error.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// OpenRouter AI - optional; without a key the actions still build
		// requests and fire host events, they just don't get a reply.
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "anthropic/claude-4.5-sonnet-20250929"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),

		// Uploads and sessions
		MaxUploadMB:   getEnvInt("MAX_UPLOAD_MB", 50),
		MaxViewers:    getEnvInt("MAX_VIEWERS", 64),
		ViewerIdleTTL: getEnvDuration("VIEWER_IDLE_TTL", 30*time.Minute),
		RenderWait:    getEnvDuration("RENDER_WAIT", 10*time.Second),

		RenderConcurrency: getEnvInt("RENDER_CONCURRENCY", runtime.NumCPU()),

		// Host events - where chat seeds and viewer closes are POSTed
		HostWebhookURL:    getEnv("HOST_WEBHOOK_URL", ""),
		HostWebhookSecret: getEnv("HOST_WEBHOOK_SECRET", ""),

		// Rate limiting
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 30),

		// CORS - in production, set this to your frontend URL
		AllowedOrigins: []string{
			getEnv("CORS_ORIGIN", "http://localhost:5173"), // Vite dev server default
		},

		ViewerConfigPath: getEnv("VIEWER_CONFIG", ""),
		Viewer:           DefaultViewer(),
	}

	if cfg.ViewerConfigPath != "" {
		if err := cfg.Viewer.LoadFile(cfg.ViewerConfigPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	switch c.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.GinMode)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if c.MaxViewers < 0 {
		return fmt.Errorf("MAX_VIEWERS must not be negative, got %d", c.MaxViewers)
	}
	if c.RenderConcurrency < 0 {
		return fmt.Errorf("RENDER_CONCURRENCY must not be negative, got %d", c.RenderConcurrency)
	}
	if c.RenderWait <= 0 {
		return fmt.Errorf("RENDER_WAIT must be positive, got %s", c.RenderWait)
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be positive")
	}
	return c.Viewer.Validate()
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// LoadFile overlays values from a YAML file onto v.
func (v *Viewer) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read viewer config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, v); err != nil {
		return fmt.Errorf("failed to parse viewer config %s: %w", path, err)
	}
	return nil
}

// Validate checks the scale policy and text layer heuristics.
func (v Viewer) Validate() error {
	if v.MinScale <= 0 || v.MaxScale < v.MinScale {
		return fmt.Errorf("viewer scale range [%v, %v] is invalid", v.MinScale, v.MaxScale)
	}
	if v.DefaultScale < v.MinScale || v.DefaultScale > v.MaxScale {
		return fmt.Errorf("viewer default_scale %v is outside [%v, %v]", v.DefaultScale, v.MinScale, v.MaxScale)
	}
	if v.ScaleStep <= 0 {
		return fmt.Errorf("viewer scale_step must be positive")
	}
	if v.AscentRatio <= 0 || v.AscentRatio > 1 {
		return fmt.Errorf("viewer ascent_ratio must be in (0, 1], got %v", v.AscentRatio)
	}
	if v.LineThreshold <= 0 {
		return fmt.Errorf("viewer line_threshold must be positive")
	}
	if v.Debounce < 0 {
		return fmt.Errorf("viewer debounce must not be negative")
	}
	return nil
}

// getEnv reads an environment variable with a fallback default.
// Go Pattern: Small helper functions are idiomatic. Go favors simple,
// composable functions over complex frameworks.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvInt reads an integer environment variable with a fallback.
func getEnvInt(key string, fallback int) int {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	// strconv.Atoi converts a string to an int - like parseInt() in JavaScript
	val, err := strconv.Atoi(str)
	if err != nil {
		return fallback
	}
	return val
}

// getEnvDuration reads a duration like "30m" or "1500ms" with a fallback.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	val, err := time.ParseDuration(str)
	if err != nil {
		return fallback
	}
	return val
}
