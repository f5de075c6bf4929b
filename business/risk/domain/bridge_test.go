package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreBridge(t *testing.T) {
	cfg := DefaultBridgeConfig()

	t.Run("ample liquidity", func(t *testing.T) {
		r := ScoreBridge(cfg, CrossChainRiskMetrics{
			LatencyMs:          30000,
			Reliability:        0.99,
			AvailableLiquidity: big.NewInt(500),
		}, big.NewInt(100))

		assert.InDelta(t, 20.0, r.LatencyScore, 1e-9)
		assert.InDelta(t, 0.3, r.ReliabilityScore, 1e-9)
		assert.InDelta(t, 15.0, r.LiquidityScore, 1e-9)
		assert.Equal(t, 35, r.Score)
		assert.Empty(t, r.Warnings)
		assert.False(t, r.Recommends(cfg))
	})

	t.Run("all warnings", func(t *testing.T) {
		r := ScoreBridge(cfg, CrossChainRiskMetrics{
			LatencyMs:          90000,
			Reliability:        0.5,
			AvailableLiquidity: big.NewInt(150),
		}, big.NewInt(100))

		assert.InDelta(t, 40.0, r.LatencyScore, 1e-9)
		assert.InDelta(t, 15.0, r.ReliabilityScore, 1e-9)
		assert.InDelta(t, 30.0, r.LiquidityScore, 1e-9)
		assert.Equal(t, 85, r.Score)
		assert.Equal(t, []string{WarnHighBridgeLatency, WarnLowBridgeReliability, WarnInsufficientBridgeLiq}, r.Warnings)
		assert.True(t, r.Recommends(cfg))
	})

	t.Run("saturated inputs never exceed 100", func(t *testing.T) {
		for _, scale := range []float64{1, 10, 1000} {
			r := ScoreBridge(cfg, CrossChainRiskMetrics{
				LatencyMs:   60000 * scale,
				Reliability: 0,
			}, big.NewInt(1))
			assert.Equal(t, 100, r.Score)
		}
	})

	t.Run("unknown amount skips liquidity", func(t *testing.T) {
		r := ScoreBridge(cfg, CrossChainRiskMetrics{LatencyMs: 0, Reliability: 1}, nil)
		assert.Zero(t, r.Score)
		assert.Zero(t, r.Coverage)
		assert.Empty(t, r.Warnings)
	})
}
