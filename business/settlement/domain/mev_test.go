package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func pools(n int) []Pool {
	out := make([]Pool, n)
	for i := range out {
		out[i] = Pool{Fee: 3000, Liquidity: big.NewInt(1)}
	}
	return out
}

func TestScoreMEV(t *testing.T) {
	tests := []struct {
		name       string
		amount     *big.Int
		liq        *AggregatedLiquidity
		wantScore  float64
		wantLadder []ProtectionStrategy
		wantDelay  uint64
		wantLoss   string
		wantWarns  []string
	}{
		{
			name:   "moderate swap",
			amount: eth(10),
			// 5 + 10 + 10 + 6
			liq:        &AggregatedLiquidity{Pools: pools(4), TotalLiquidity: eth(200), PriceImpact: 0.5, EstimatedGas: 150000},
			wantScore:  31,
			wantLadder: []ProtectionStrategy{ProtectPrivateTx},
			wantDelay:  2,
			wantLoss:   "50000000000000000",
			wantWarns:  []string{},
		},
		{
			name:   "every budget saturated",
			amount: eth(50),
			// 40 + 30 + 20 + 9
			liq:        &AggregatedLiquidity{Pools: pools(1), TotalLiquidity: eth(100), PriceImpact: 3, EstimatedGas: 450000},
			wantScore:  99,
			wantLadder: []ProtectionStrategy{ProtectPrivateTx, ProtectTimeDelay, ProtectBundle, ProtectFlashbots},
			wantDelay:  4,
			wantLoss:   "1500000000000000000",
			wantWarns:  []string{WarnLargeTrade, WarnHighPriceImpact, WarnLimitedPools, WarnHighGasCosts},
		},
		{
			name:   "quiet pair",
			amount: eth(1),
			// 0.1 + 0 + 5 + 0
			liq:        &AggregatedLiquidity{Pools: pools(12), TotalLiquidity: eth(1000), EstimatedGas: 75000},
			wantScore:  5.1,
			wantLadder: []ProtectionStrategy{},
			wantDelay:  1,
			wantLoss:   "0",
			wantWarns:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreMEV(DefaultMEVConfig(), 1, tt.amount, tt.liq)

			assert.InDelta(t, tt.wantScore, got.RiskScore, 1e-9)
			assert.Equal(t, tt.wantLadder, got.ProtectionStrategies)
			assert.Equal(t, tt.wantDelay, got.RecommendedBlockDelay)
			assert.Equal(t, tt.wantLoss, got.EstimatedLoss.String())
			assert.Equal(t, tt.wantWarns, got.Warnings)
		})
	}
}

func TestScoreMEV_NoLiquidity(t *testing.T) {
	got := ScoreMEV(DefaultMEVConfig(), 1, eth(1), &AggregatedLiquidity{TotalLiquidity: new(big.Int), EstimatedGas: 150000})

	// 40 + 0 + 10 + 10
	assert.InDelta(t, 60, got.RiskScore, 1e-9)
	assert.Contains(t, got.Warnings, WarnLargeTrade)
	assert.Contains(t, got.Warnings, WarnLimitedPools)
	assert.True(t, got.Has(ProtectTimeDelay))
	assert.False(t, got.Has(ProtectBundle))
}

func TestScoreMEV_BoundedForAllInputs(t *testing.T) {
	for _, pi := range []float64{0, 0.1, 1, 10, 1e6} {
		for _, gas := range []uint64{0, 21000, 1e7} {
			got := ScoreMEV(DefaultMEVConfig(), 1, eth(1000), &AggregatedLiquidity{TotalLiquidity: eth(1), PriceImpact: pi, EstimatedGas: gas})
			require.GreaterOrEqual(t, got.RiskScore, 0.0)
			require.LessOrEqual(t, got.RiskScore, 100.0)
			require.LessOrEqual(t, got.RecommendedBlockDelay, DefaultMEVConfig().MaxBlockDelay)
		}
	}
}

func TestBlockDelay(t *testing.T) {
	cfg := MEVConfig{MinBlockDelay: 2, MaxBlockDelay: 12}

	assert.Equal(t, uint64(2), blockDelay(cfg, 0))
	assert.Equal(t, uint64(7), blockDelay(cfg, 50))
	assert.Equal(t, uint64(7), blockDelay(cfg, 59.9))
	assert.Equal(t, uint64(12), blockDelay(cfg, 100))

	assert.Equal(t, uint64(3), blockDelay(MEVConfig{MinBlockDelay: 3, MaxBlockDelay: 3}, 80))
}
