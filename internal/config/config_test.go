package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "MAX_UPLOAD_MB", "VIEWER_CONFIG", "VIEWER_IDLE_TTL", "RENDER_WAIT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 50, cfg.MaxUploadMB)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 30*time.Minute, cfg.ViewerIdleTTL)
	assert.Equal(t, DefaultViewer(), cfg.Viewer)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_VIEWERS", "5")
	t.Setenv("VIEWER_IDLE_TTL", "90s")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 5, cfg.MaxViewers)
	assert.Equal(t, 90*time.Second, cfg.ViewerIdleTTL)
	assert.Equal(t, 30, cfg.RateLimitBurst, "unparseable values fall back")
}

func TestLoad_GinMode(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.GinMode)

	t.Setenv("GIN_MODE", "production")
	_, err = Load()
	assert.ErrorContains(t, err, "GIN_MODE")
}

func TestLoad_ViewerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_scale: 4\nline_threshold: 3.5\ndebounce: 25ms\n"), 0o600))
	t.Setenv("VIEWER_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4.0, cfg.Viewer.MaxScale)
	assert.Equal(t, 3.5, cfg.Viewer.LineThreshold)
	assert.Equal(t, 25*time.Millisecond, cfg.Viewer.Debounce)
	assert.Equal(t, 0.5, cfg.Viewer.MinScale, "unset keys keep defaults")
}

func TestLoad_ViewerFileErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "zoom: 2\n"},
		{"bad yaml", "max_scale: [\n"},
		{"inverted range", "min_scale: 2\nmax_scale: 1\n"},
		{"default outside range", "default_scale: 9\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			t.Setenv("VIEWER_CONFIG", path)

			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("VIEWER_CONFIG", filepath.Join(dir, "absent.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:               "8080",
			MaxUploadMB:        10,
			RenderWait:         time.Second,
			RateLimitPerMinute: 60,
			RateLimitBurst:     10,
			Viewer:             DefaultViewer(),
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"unknown gin mode", func(c *Config) { c.GinMode = "production" }},
		{"zero upload", func(c *Config) { c.MaxUploadMB = 0 }},
		{"negative viewers", func(c *Config) { c.MaxViewers = -1 }},
		{"zero render wait", func(c *Config) { c.RenderWait = 0 }},
		{"negative render concurrency", func(c *Config) { c.RenderConcurrency = -1 }},
		{"zero rate", func(c *Config) { c.RateLimitPerMinute = 0 }},
		{"ascent above one", func(c *Config) { c.Viewer.AscentRatio = 1.5 }},
		{"zero step", func(c *Config) { c.Viewer.ScaleStep = 0 }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}
