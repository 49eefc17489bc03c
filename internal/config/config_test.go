package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDeployments(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployments.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromDeployments(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", writeDeployments(t, `{
		"chainId": 80002,
		"network": "amoy",
		"rpcUrl": "https://amoy.example/rpc",
		"contracts": {"PortfolioMandala": "0x00000000000000000000000000000000000000c0"}
	}`))
	t.Setenv("TX_STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000c0", cfg.Contract.Address)
	assert.Equal(t, "https://amoy.example/rpc", cfg.Chain.RPCURL)
	assert.Equal(t, uint64(80002), cfg.Chain.ChainID)
	assert.Equal(t, "amoy", cfg.Chain.NetworkName)
	assert.Equal(t, 5000, cfg.Service.HTTPPort)
	assert.Equal(t, "/api", cfg.Service.BasePath)
	assert.Equal(t, []string{"*"}, cfg.Service.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.Service.TxRecordTTL)
	assert.Equal(t, uint64(500000), cfg.Contract.GasLimit)
	assert.InDelta(t, 1.1, cfg.Contract.GasMultiplier, 1e-9)
	assert.Equal(t, 250, cfg.Metadata.RoyaltyBPS)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestEnvOverridesDeployments(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", writeDeployments(t, `{"chainId": 1, "contracts": {"PortfolioMandala": "0x1"}}`))
	t.Setenv("CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000c1")
	t.Setenv("CHAIN_ID", "80002")
	t.Setenv("API_HTTP_PORT", "8080")
	t.Setenv("API_BASE_PATH", "v2/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("GAS_PRICE_MULTIPLIER", "1.25")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TX_STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000c1", cfg.Contract.Address)
	assert.Equal(t, uint64(80002), cfg.Chain.ChainID)
	assert.Equal(t, 8080, cfg.Service.HTTPPort)
	assert.Equal(t, "/v2", cfg.Service.BasePath)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Service.AllowedOrigins)
	assert.InDelta(t, 1.25, cfg.Contract.GasMultiplier, 1e-9)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadRequiresContract(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("CONTRACT_ADDRESS", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("CONTRACT_FAKE", "true")
	t.Setenv("TX_STORE", "memory")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Contract.Fake)
}

func TestLoadRejectsBadStore(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("CONTRACT_FAKE", "true")

	t.Setenv("TX_STORE", "redis")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("TX_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("NFT_API_URL", "http://localhost:5000/api/")
	t.Setenv("MINT_POLL_INTERVAL_SECONDS", "2")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
	assert.Equal(t, uint64(80002), cfg.ChainID)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 60, cfg.MaxPollAttempts)
}
