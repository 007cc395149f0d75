package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ValidTTL)
	assert.Equal(t, 1*time.Minute, cfg.Cache.DeniedTTL)
	assert.Equal(t, 10000, cfg.Cache.FallbackMaxSize)
	assert.Equal(t, "database", cfg.License.Mode)
	assert.Equal(t, 48*time.Hour, cfg.License.GracePeriod)
	assert.Equal(t, 80, cfg.Usage.WarningThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Usage.WarningDedupRange)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
license:
  mode: file
  file_path: /etc/hrsm/license.dat
cache:
  valid_ttl: 5m
  denied_ttl: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file", cfg.License.Mode)
	assert.Equal(t, "/etc/hrsm/license.dat", cfg.License.FilePath)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ValidTTL)
	assert.Equal(t, 30*time.Second, cfg.Cache.DeniedTTL)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	t.Setenv("HRSM_SERVER_PORT", "7070")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "invalid license mode",
			mutate:  func(c *Config) { c.License.Mode = "sheets" },
			wantErr: "invalid license mode",
		},
		{
			name:    "zero valid TTL",
			mutate:  func(c *Config) { c.Cache.ValidTTL = 0 },
			wantErr: "cache TTLs must be positive",
		},
		{
			name:    "denied TTL exceeds valid TTL",
			mutate:  func(c *Config) { c.Cache.DeniedTTL = c.Cache.ValidTTL + time.Minute },
			wantErr: "must not exceed",
		},
		{
			name:    "warning threshold out of range",
			mutate:  func(c *Config) { c.Usage.WarningThreshold = 150 },
			wantErr: "warning threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
