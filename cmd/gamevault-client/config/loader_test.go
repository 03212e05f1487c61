package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvNetwork, "")

	cfg, err := load("", []string{t.TempDir()})
	require.NoError(t, err)

	require.Equal(t, "mainnet", cfg.Ledger.Network)
	require.Equal(t, nodeURLs["mainnet"], cfg.Ledger.NodeURL)
	require.Len(t, cfg.Ledger.ModuleAddress, 66)
	require.Equal(t, 15*time.Second, cfg.Ledger.RequestTimeout)
	require.Equal(t, 60*time.Second, cfg.Ledger.ConfirmTimeout)
	require.Equal(t, uint64(200_000), cfg.Signer.MaxGasAmount)
	require.True(t, cfg.Signer.Confirm)
	require.Equal(t, 10*time.Minute, cfg.Cache.PositiveTTL)
	require.Equal(t, 30*time.Second, cfg.Cache.KnowledgeTTL)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, "6138", cfg.Server.Port)
	require.Equal(t, []string{"http://127.0.0.1:6137", "http://localhost:6137"}, cfg.Server.AllowedOrigins)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "gamevault-client", cfg.Tracing.ServiceName)
}

func TestLoadUserFileOverridesDefaults(t *testing.T) {
	t.Setenv(EnvNetwork, "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
ledger:
  network: devnet
  module_address: "0xCAFE"
server:
  port: "7000"
  allowed_origins:
    - http://localhost:3000/
`), 0o600))

	cfg, err := load("", []string{dir})
	require.NoError(t, err)

	require.Equal(t, nodeURLs["devnet"], cfg.Ledger.NodeURL)
	require.Equal(t, "0x"+strings.Repeat("0", 60)+"cafe", cfg.Ledger.ModuleAddress)
	require.Equal(t, "7000", cfg.Server.Port)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	// untouched keys keep their defaults
	require.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadExplicitFile(t *testing.T) {
	t.Setenv(EnvNetwork, "")
	f := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(f, []byte("ledger:\n  node_url: http://node.internal:8080/v1\n"), 0o600))

	cfg, err := load(f, nil)
	require.NoError(t, err)
	require.Equal(t, "http://node.internal:8080/v1", cfg.Ledger.NodeURL)

	_, err = load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvNetwork, "testnet")
	t.Setenv("GAMEVAULT_SERVER_PORT", "9999")
	t.Setenv("GAMEVAULT_SIGNER_READ_ONLY", "true")
	t.Setenv("GAMEVAULT_CACHE_NEGATIVE_TTL", "2s")

	cfg, err := load("", []string{t.TempDir()})
	require.NoError(t, err)

	require.Equal(t, "testnet", cfg.Ledger.Network)
	require.Equal(t, nodeURLs["testnet"], cfg.Ledger.NodeURL)
	require.Equal(t, "9999", cfg.Server.Port)
	require.True(t, cfg.Signer.ReadOnly)
	require.Equal(t, 2*time.Second, cfg.Cache.NegativeTTL)
}

func TestInvalidSettings(t *testing.T) {
	t.Setenv(EnvNetwork, "moonnet")
	_, err := load("", []string{t.TempDir()})
	require.Error(t, err)

	t.Setenv(EnvNetwork, "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("ledger:\n  module_address: nothex\n"), 0o600))
	_, err = load("", []string{dir})
	require.Error(t, err)

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  allowed_origins: [\"localhost:6137\"]\n"), 0o600))
	_, err = load("", []string{dir})
	require.Error(t, err)

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("ledger:\n  network: marsnet\n"), 0o600))
	_, err = load("", []string{dir})
	require.Error(t, err)
}
