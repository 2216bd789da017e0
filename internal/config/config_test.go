package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{configFileEnv, "PORT", "PUBLIC_BASE_URL", "STORAGE_ROOT", "ARTIFACT_TTL", "QUEUE_ENABLED", "POSTGRES_DSN"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.API.Port)
	assert.Equal(t, ":3000", cfg.API.Addr())
	assert.Equal(t, "https://compression1.vercel.app", cfg.API.AllowedOrigin)
	assert.Equal(t, StorageBackendLocal, cfg.Storage.Backend)
	assert.Equal(t, "./uploads", cfg.Storage.Root)
	assert.Equal(t, 800, cfg.Conversion.Width)
	assert.Equal(t, 100, cfg.Conversion.Quality)
	assert.Zero(t, cfg.Artifact.TTL)
	assert.False(t, cfg.Queue.Enabled)
	assert.Empty(t, cfg.Database.DSN)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("PUBLIC_BASE_URL", "https://img.example.com/")
	t.Setenv("STORAGE_ROOT", "/var/lib/webpress")
	t.Setenv("ARTIFACT_TTL", "36h")
	t.Setenv("QUEUE_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.API.Port)
	assert.Equal(t, "https://img.example.com", cfg.API.PublicBaseURL)
	assert.Equal(t, "/var/lib/webpress", cfg.Storage.Root)
	assert.Equal(t, 36*time.Hour, cfg.Artifact.TTL)
	assert.True(t, cfg.Queue.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "webpress.toml")
	contents := "port = 4000\n\n[conversion]\nwidth = 640\nquality = 90\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	t.Setenv(configFileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.API.Port)
	assert.Equal(t, 640, cfg.Conversion.Width)
	assert.Equal(t, 90, cfg.Conversion.Quality)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			API:        APIConfig{Port: 3000, PublicBaseURL: "http://localhost:3000"},
			Storage:    StorageConfig{Backend: StorageBackendLocal, Root: "./uploads"},
			Upload:     UploadConfig{MaxBytes: 1 << 20},
			Conversion: ConversionConfig{Width: 800, Quality: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.API.PublicBaseURL = "uploads" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, wantErr: true},
		{name: "quality out of range", mutate: func(c *Config) { c.Conversion.Quality = 101 }, wantErr: true},
		{name: "negative ttl", mutate: func(c *Config) { c.Artifact.TTL = -time.Second }, wantErr: true},
		{
			name: "rate limit without window",
			mutate: func(c *Config) {
				c.RateLimit = RateLimitConfig{Enabled: true, Capacity: 10}
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
