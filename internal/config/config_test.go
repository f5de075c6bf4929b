package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithEnvRPC(t *testing.T) {
	t.Setenv("ARB_ETH_RPC_URL", "http://localhost:8545")

	cfg, err := Load("")
	require.NoError(t, err)

	eth, ok := cfg.ChainByID(1)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8545", eth.RPCURL)
	assert.Equal(t, 0.4, cfg.Risk.FlashLoanWeight)
	assert.Equal(t, 0.6, cfg.Risk.NetworkStateWeight)
	assert.Equal(t, uint64(150000), cfg.MEV.BaselineGas)
	assert.Equal(t, 30*time.Second, cfg.Settlement.SplitInterval)
	assert.Equal(t, 3, cfg.Settlement.BatchSize)

	pool, ok := eth.Address(eth.AavePool)
	assert.True(t, ok)
	assert.NotEqual(t, common.Address{}, pool)

	mantle, ok := cfg.ChainByID(5000)
	require.True(t, ok)
	_, ok = mantle.Address(mantle.AavePool)
	assert.False(t, ok)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chains:
  mantle:
    rpc_url: https://rpc.mantle.xyz
mev:
  min_block_delay: 2
  max_block_delay: 8
settlement:
  max_slippage: 0.5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	mantle, ok := cfg.ChainByID(5000)
	require.True(t, ok)
	assert.Equal(t, "https://rpc.mantle.xyz", mantle.RPCURL)
	assert.Equal(t, uint64(8), cfg.MEV.MaxBlockDelay)
	assert.Equal(t, 0.5, cfg.Settlement.MaxSlippage)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Chains: map[string]ChainConfig{
				"ethereum": {ChainID: 1, RPCURL: "http://localhost:8545"},
			},
			Risk:       RiskConfig{FlashLoanWeight: 0.4, NetworkStateWeight: 0.6, CrossChainWeight: 0.6},
			MEV:        MEVConfig{MinBlockDelay: 1, MaxBlockDelay: 5, BaselineGas: 150000},
			Settlement: SettlementConfig{MinLiquidity: "1000", BatchSize: 3},
			StateProof: StateProofConfig{Mode: "rpc"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no rpc", func(c *Config) {
			c.Chains["ethereum"] = ChainConfig{ChainID: 1}
		}, "rpc_url"},
		{"duplicate chain id", func(c *Config) {
			c.Chains["mainnet"] = ChainConfig{ChainID: 1}
		}, "share chain_id"},
		{"bad address", func(c *Config) {
			ch := c.Chains["ethereum"]
			ch.AavePool = "not-an-address"
			c.Chains["ethereum"] = ch
		}, "aave_pool"},
		{"delay bounds", func(c *Config) { c.MEV.MinBlockDelay = 9 }, "min_block_delay"},
		{"zero weight", func(c *Config) { c.Risk.FlashLoanWeight = 0 }, "weights"},
		{"bad liquidity", func(c *Config) { c.Settlement.MinLiquidity = "lots" }, "min_liquidity"},
		{"http proof needs url", func(c *Config) { c.StateProof.Mode = "http" }, "stateproof.url"},
		{"unknown proof mode", func(c *Config) { c.StateProof.Mode = "zk" }, "stateproof.mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
