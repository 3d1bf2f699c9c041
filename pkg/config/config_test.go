package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
database:
  host: db.internal
  user: syncd
  password: secret
  database: retail
storefront:
  api_url: https://shop.example.com/admin/api/graphql
  access_token: shpat_test
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, 500*time.Millisecond, cfg.Storefront.MinCallInterval)
	require.Equal(t, 3, cfg.Storefront.MaxRetries)
	require.Equal(t, 100, cfg.Sync.PageSize)
	require.Equal(t, 25, cfg.Sync.BatchSize)
	require.Equal(t, 50, cfg.Sync.CheckpointEvery)
	require.Equal(t, 24*time.Hour, cfg.Checkpoint.StaleAfter)
	require.True(t, cfg.Detector.Enabled)
	require.Equal(t, 15*time.Minute, cfg.Detector.Interval)
	require.Equal(t, 30*time.Minute, cfg.Detector.SafetyWindow)
	require.False(t, cfg.StockSync.Enabled)
	require.Equal(t, 30, cfg.StockSync.DelayMinutes)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_OverridesFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
sync:
  page_size: 200
  schedule: "0 3 * * *"
detector:
  enabled: false
stock_sync:
  enabled: true
  delay_minutes: 10
  state_path: /tmp/stock_state.json
`))
	require.NoError(t, err)

	require.Equal(t, 200, cfg.Sync.PageSize)
	require.Equal(t, "0 3 * * *", cfg.Sync.Schedule)
	require.False(t, cfg.Detector.Enabled)
	require.True(t, cfg.StockSync.Enabled)
	require.Equal(t, 10, cfg.StockSync.DelayMinutes)
}

func TestLoad_RejectsMissingRequiredFields(t *testing.T) {
	_, err := Load(writeConfig(t, `
storefront:
  api_url: https://shop.example.com/admin/api/graphql
  access_token: shpat_test
database:
  host: db.internal
  database: retail
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation")
}

func TestLoad_RejectsInvalidURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  host: db.internal
  user: syncd
  database: retail
storefront:
  api_url: not-a-url
  access_token: shpat_test
`))
	require.Error(t, err)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
