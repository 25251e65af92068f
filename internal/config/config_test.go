package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("DROP_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Service.HTTPPort)
	require.Equal(t, time.Minute, cfg.Service.HMACClockSkew)
	require.Equal(t, "ETH", cfg.Chain.NativeSymbol)
	require.Equal(t, 10*time.Second, cfg.Chain.ReadTimeout)
	require.False(t, cfg.Chain.Live())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.json")
	raw := `{
  "name": "Developer Collection",
  "chain": {"chainId": 5, "rpcUrl": "http://file:8545", "nativeSymbol": "GOR"},
  "contracts": {"nftDrop": "0x00000000000000000000000000000000000000d1"},
  "timeouts": {"rpcTimeoutMs": 1500},
  "dev": {"claimed": 3, "totalSupply": 10, "priceWei": "10000000000000000"}
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv("DROP_CONFIG_PATH", path)
	t.Setenv("CHAIN_RPC_URL", "http://env:8545")
	t.Setenv("API_HTTP_PORT", "8081")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Developer Collection", cfg.File.Name)
	require.Equal(t, "http://env:8545", cfg.Chain.RPCURL)
	require.Equal(t, "GOR", cfg.Chain.NativeSymbol)
	require.Equal(t, 1500*time.Millisecond, cfg.Chain.ReadTimeout)
	require.Equal(t, 8081, cfg.Service.HTTPPort)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, uint64(10), cfg.File.Dev.TotalSupply)
	require.True(t, cfg.Chain.Live())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	t.Setenv("DROP_CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
}
