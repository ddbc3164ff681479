package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "USA", cfg.History.Partner)

	err = cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "data.geojson")
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariffsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data:
  trade_csv: data/trade.csv
  geojson: data/africa.geojson
server:
  addr: ":9000"
  session_ttl: 90s
cache:
  redis_addr: localhost:6379
  ttl: 1m
log:
  level: debug
`), 0o644))

	t.Setenv("TARIFFSIM_ADDR", ":9100")
	t.Setenv("TARIFFSIM_REDIS_DB", "3")
	t.Setenv("TARIFFSIM_LOG_PRETTY", "yes")
	t.Setenv("TARIFFSIM_MAX_SESSIONS", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "data/trade.csv", cfg.Data.TradeCSV)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.Server.SessionTTL)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 3, cfg.Cache.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, defaultMaxSessions, cfg.Server.MaxSessions)
	assert.Equal(t, defaultReadTimeout, cfg.Server.ReadTimeout)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidateAcceptsStoreInsteadOfCSV(t *testing.T) {
	cfg := Default()
	cfg.Data.GeoJSON = "africa.geojson"
	cfg.Store.Path = "tariffsim.db"
	assert.NoError(t, cfg.Validate())

	cfg.History.FromYear = 2020
	cfg.History.ToYear = 2018
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
