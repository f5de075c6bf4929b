package domain

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Bridge score budgets.
const (
	latencyBudget     = 40
	reliabilityBudget = 30
	liquidityBudget   = 30
)

// Bridge warnings and recommendation.
const (
	WarnHighBridgeLatency       = "High bridge latency"
	WarnLowBridgeReliability    = "Low bridge reliability"
	WarnInsufficientBridgeLiq   = "Insufficient cross-chain liquidity"
	RecommendHighCrossChainRisk = "High cross-chain risk detected"
)

// BridgeConfig calibrates the bridge scorer.
type BridgeConfig struct {
	LatencyCeilingMs float64 // latency that consumes the whole latency budget
	MinReliability   float64
	MinCoverage      float64 // liquidity / amount below this warns
	LiquidityScale   float64 // liquidity score = min(30, scale / coverage)
	RecommendAbove   float64
}

// DefaultBridgeConfig returns the reference calibration.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		LatencyCeilingMs: 60000,
		MinReliability:   0.95,
		MinCoverage:      2,
		LiquidityScale:   75,
		RecommendAbove:   70,
	}
}

// CrossChainRiskMetrics are the bridge's observed properties.
type CrossChainRiskMetrics struct {
	LatencyMs          float64  `json:"latencyMs"`
	Reliability        float64  `json:"reliability"`
	AvailableLiquidity *big.Int `json:"availableLiquidity,omitempty"`
}

// BridgeRisk is the scored bridge.
type BridgeRisk struct {
	Score            int                   `json:"score"`
	LatencyScore     float64               `json:"latencyScore"`
	ReliabilityScore float64               `json:"reliabilityScore"`
	LiquidityScore   float64               `json:"liquidityScore"`
	Coverage         float64               `json:"coverage,omitempty"` // liquidity / amount; 0 when amount is unknown
	Warnings         []string              `json:"warnings"`
	Metrics          CrossChainRiskMetrics `json:"metrics"`
}

// Recommends reports whether the score warrants the cross-chain recommendation.
func (b *BridgeRisk) Recommends(cfg BridgeConfig) bool {
	return float64(b.Score) > cfg.RecommendAbove
}

// ScoreBridge scores a bridge for moving amount. A nil or zero amount skips
// the liquidity contribution.
func ScoreBridge(cfg BridgeConfig, m CrossChainRiskMetrics, amount *big.Int) *BridgeRisk {
	latency := 0.0
	if cfg.LatencyCeilingMs > 0 {
		latency = clamp(m.LatencyMs*latencyBudget/cfg.LatencyCeilingMs, 0, latencyBudget)
	}

	reliability := clamp(m.Reliability, 0, 1)
	reliabilityScore := clamp((1-reliability)*100*0.3, 0, reliabilityBudget)

	var coverage, liquidity float64
	sized := amount != nil && amount.Sign() > 0
	if sized {
		if m.AvailableLiquidity == nil || m.AvailableLiquidity.Sign() <= 0 {
			coverage = 0
			liquidity = liquidityBudget
		} else {
			coverage, _ = decimal.NewFromBigInt(m.AvailableLiquidity, 0).
				Div(decimal.NewFromBigInt(amount, 0)).Float64()
			liquidity = math.Min(liquidityBudget, cfg.LiquidityScale/coverage)
		}
	}

	var warnings []string
	if m.LatencyMs > cfg.LatencyCeilingMs {
		warnings = append(warnings, WarnHighBridgeLatency)
	}
	if reliability < cfg.MinReliability {
		warnings = append(warnings, WarnLowBridgeReliability)
	}
	if sized && coverage < cfg.MinCoverage {
		warnings = append(warnings, WarnInsufficientBridgeLiq)
	}

	return &BridgeRisk{
		Score:            int(math.Round(math.Min(MaxScore, latency+reliabilityScore+liquidity))),
		LatencyScore:     latency,
		ReliabilityScore: reliabilityScore,
		LiquidityScore:   liquidity,
		Coverage:         coverage,
		Warnings:         warnings,
		Metrics:          m,
	}
}
