package config_test

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmasklabs/rgbd/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Datadir())
	assert.Equal(t, &chaincfg.MainNetParams, cfg.Network())
	assert.Equal(t, config.NetworkMainnet, cfg.NetworkName())
	assert.Equal(t, "https://blockstream.info/api", cfg.ExplorerEndpoint())
	assert.Equal(t, 15*time.Second, cfg.ExplorerTimeout())
	assert.Equal(t, 4, cfg.LogLevel())
	assert.False(t, cfg.ForceAcceptAdvancesState())
	assert.Equal(t, 10*time.Minute, cfg.StatsInterval())
	assert.Contains(t, cfg.DBDir(), cfg.Datadir())
	assert.Contains(t, cfg.BlobDir(), cfg.Datadir())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RGBD_NETWORK", "regtest")
	t.Setenv("RGBD_DATA_DIR_PATH", t.TempDir())
	t.Setenv("RGBD_EXPLORER_ENDPOINT", "http://localhost:3001")
	t.Setenv("RGBD_EXPLORER_REQUEST_TIMEOUT", "2000")
	t.Setenv("RGBD_FORCE_ACCEPT_ADVANCES_STATE", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, &chaincfg.RegressionNetParams, cfg.Network())
	assert.Equal(t, "http://localhost:3001", cfg.ExplorerEndpoint())
	assert.Equal(t, 2*time.Second, cfg.ExplorerTimeout())
	assert.True(t, cfg.ForceAcceptAdvancesState())
}

func TestLoadInvalid(t *testing.T) {
	t.Run("unknown_network", func(t *testing.T) {
		t.Setenv("RGBD_NETWORK", "signet")
		_, err := config.Load()
		require.Error(t, err)
	})
	t.Run("non_positive_timeout", func(t *testing.T) {
		t.Setenv("RGBD_EXPLORER_REQUEST_TIMEOUT", "0")
		_, err := config.Load()
		require.Error(t, err)
	})
}
