package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, SettlementNative, cfg.Settlement)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file must be written")
}

func TestLoadTokenSettlement(t *testing.T) {
	path := writeConfig(t, `
RPCAddress = ":9090"
DataDir = "/tmp/market"
Settlement = "token"
TokenSymbol = "usdc"
TokenDecimals = 6

[[Genesis]]
Address = "mkt1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"
Balance = "100000000000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.RPCAddress)
	require.Equal(t, SettlementToken, cfg.Settlement)
	require.Equal(t, "USDC", cfg.TokenSymbol, "symbol must be upper-cased")
	require.Equal(t, uint8(6), cfg.TokenDecimals)
	require.Len(t, cfg.Genesis, 1)
}

func TestLoadRejectsUnknownSettlement(t *testing.T) {
	path := writeConfig(t, `Settlement = "barter"`)

	_, err := Load(path)
	require.ErrorContains(t, err, "unknown Settlement variant")
}

func TestLoadRejectsTokenWithoutSymbol(t *testing.T) {
	path := writeConfig(t, `Settlement = "token"`)

	_, err := Load(path)
	require.ErrorContains(t, err, "TokenSymbol")
}

func TestLoadRejectsBadGenesisBalance(t *testing.T) {
	path := writeConfig(t, `
[[Genesis]]
Address = "mkt1example"
Balance = "lots"
`)

	_, err := Load(path)
	require.ErrorContains(t, err, "invalid balance")
}

func TestValidateDecimalsRange(t *testing.T) {
	cfg := &Config{Settlement: SettlementToken, TokenSymbol: "USDC", TokenDecimals: 19}
	require.ErrorContains(t, Validate(cfg), "TokenDecimals out of range")
}
