package app

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/config"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
)

func testApp(cfg *config.Config) *Application {
	return &Application{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestBuildSourceOfTruthDatabaseMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.License.Mode = config.LicenseModeDatabase
	cfg.License.DatabasePath = filepath.Join(t.TempDir(), "licenses.db")

	a := testApp(cfg)
	resolver, usageRepo, sinks, err := a.buildSourceOfTruth()
	require.NoError(t, err)
	t.Cleanup(func() { a.sqlite.Close() })

	assert.IsType(t, &license.DatabaseResolver{}, resolver)
	assert.NotNil(t, usageRepo)
	// Database mode persists audit entries alongside the slog sink.
	assert.Len(t, sinks, 2)
}

func TestBuildSourceOfTruthFileMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.License.Mode = config.LicenseModeFile
	cfg.License.FilePath = filepath.Join(t.TempDir(), "license.dat")

	a := testApp(cfg)
	resolver, usageRepo, sinks, err := a.buildSourceOfTruth()
	require.NoError(t, err)

	assert.IsType(t, &license.FileResolver{}, resolver)
	assert.NotNil(t, usageRepo)
	assert.Len(t, sinks, 1)
}

func TestBuildSourceOfTruthRejectsBadPublicKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.License.Mode = config.LicenseModeFile
	cfg.License.PublicKey = "not-hex"

	a := testApp(cfg)
	_, _, _, err := a.buildSourceOfTruth()
	assert.Error(t, err)
}

func TestBuildSourceOfTruthUnknownMode(t *testing.T) {
	cfg := &config.Config{}
	cfg.License.Mode = "ledger"

	a := testApp(cfg)
	_, _, _, err := a.buildSourceOfTruth()
	assert.ErrorContains(t, err, "unknown license mode")
}
