package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFailsWithNoChainsConfigured(t *testing.T) {
	t.Setenv("SOLVER_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadAppliesYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solver.yaml")
	yamlContent := `
solver:
  chains:
    polygon:
      name: polygon
      rpc_url: https://rpc.example/polygon
      orderbook: "0xorderbook"
      block_poll_period: 2s
  owner_limit_overrides:
    "0xabc": 50
  base_tokens:
    - "0xusdc"
    - "0xweth"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))
	t.Setenv("SOLVER_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	require.Contains(t, cfg.Solver.Chains, "polygon")
	chain := cfg.Solver.Chains["polygon"]
	assert.Equal(t, "https://rpc.example/polygon", chain.RPCURL)
	assert.Equal(t, "0xorderbook", chain.Orderbook)
	assert.Equal(t, 2*time.Second, chain.BlockPollPeriod)

	assert.Equal(t, uint32(50), cfg.Solver.OwnerLimitOverrides["0xabc"])
	assert.Equal(t, []string{"0xusdc", "0xweth"}, cfg.Solver.BaseTokens)

	// env-derived defaults remain untouched by the overlay
	assert.Equal(t, uint32(25), cfg.Solver.DefaultOwnerLimit)
}

func TestLoadEnvVarOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("solver:\n  chains:\n    eth:\n      rpc_url: https://rpc.example\n"), 0o644))
	t.Setenv("SOLVER_CONFIG_FILE", path)
	t.Setenv("SOLVER_ROUND_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Solver.RoundInterval)
}
