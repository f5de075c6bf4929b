package domain

import (
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ProtectionStrategy is one measure taken against MEV extraction.
type ProtectionStrategy string

const (
	ProtectPrivateTx ProtectionStrategy = "private-tx"
	ProtectTimeDelay ProtectionStrategy = "time-delay"
	ProtectBundle    ProtectionStrategy = "bundle-submission"
	ProtectFlashbots ProtectionStrategy = "flashbots"
)

// Warnings emitted by the MEV assessment.
const (
	WarnLargeTrade      = "Large trade relative to pool liquidity"
	WarnHighPriceImpact = "High price impact"
	WarnLimitedPools    = "Limited pool diversity"
	WarnHighGasCosts    = "High gas costs expected"
)

// Score budgets and ladder thresholds.
const (
	liquidityBudget       = 40
	priceImpactBudget     = 30
	gasBudget             = 20
	poolDiversityBudget   = 10
	priceImpactMultiplier = 20
	gasMultiplierPoints   = 10

	largeTradeRatio  = 0.1
	minPoolDiversity = 3

	privateTxAbove = 30
	timeDelayAbove = 50
	bundleAbove    = 70
	flashbotsAbove = 90
)

// MEVConfig calibrates MEV exposure scoring.
type MEVConfig struct {
	MinBlockDelay    uint64
	MaxBlockDelay    uint64
	MaxPriceImpact   float64 // percent
	HighGasThreshold uint64
	BaselineGas      uint64 // gas of a plain swap
}

// DefaultMEVConfig returns the reference calibration.
func DefaultMEVConfig() MEVConfig {
	return MEVConfig{
		MinBlockDelay:    1,
		MaxBlockDelay:    5,
		MaxPriceImpact:   1.0,
		HighGasThreshold: 300000,
		BaselineGas:      150000,
	}
}

// MEVRiskFactors are the inputs of the MEV score.
type MEVRiskFactors struct {
	LiquidityRatio float64 `json:"liquidityRatio"`
	PriceImpact    float64 `json:"priceImpact"`
	GasMultiplier  float64 `json:"gasMultiplier"`
	PoolCount      int     `json:"poolCount"`
}

// MEVRiskAssessment is a swap's exposure to front-running and sandwiching.
type MEVRiskAssessment struct {
	ChainID               uint64               `json:"chainId"`
	RiskScore             float64              `json:"riskScore"`
	Factors               MEVRiskFactors       `json:"factors"`
	ProtectionStrategies  []ProtectionStrategy `json:"protectionStrategies"`
	RecommendedBlockDelay uint64               `json:"recommendedBlockDelay"`
	EstimatedLoss         *big.Int             `json:"estimatedLoss"`
	Warnings              []string             `json:"warnings"`
}

// Has reports whether s is among the selected strategies.
func (a *MEVRiskAssessment) Has(s ProtectionStrategy) bool {
	for _, p := range a.ProtectionStrategies {
		if p == s {
			return true
		}
	}
	return false
}

// ScoreMEV scores swapping amount against liq.
func ScoreMEV(cfg MEVConfig, chainID uint64, amount *big.Int, liq *AggregatedLiquidity) *MEVRiskAssessment {
	baseline := cfg.BaselineGas
	if baseline == 0 {
		baseline = DefaultMEVConfig().BaselineGas
	}

	f := MEVRiskFactors{
		LiquidityRatio: ratio(amount, liq.TotalLiquidity),
		PriceImpact:    liq.PriceImpact,
		GasMultiplier:  float64(liq.EstimatedGas) / float64(baseline),
		PoolCount:      liq.PoolCount(),
	}

	score := math.Min(f.LiquidityRatio*100, liquidityBudget) +
		math.Min(math.Max(f.PriceImpact, 0)*priceImpactMultiplier, priceImpactBudget) +
		math.Min(f.GasMultiplier*gasMultiplierPoints, gasBudget) +
		math.Max(0, float64(poolDiversityBudget-f.PoolCount))
	score = math.Min(100, math.Max(0, score))

	a := &MEVRiskAssessment{
		ChainID:               chainID,
		RiskScore:             score,
		Factors:               f,
		ProtectionStrategies:  protectionLadder(score),
		RecommendedBlockDelay: blockDelay(cfg, score),
		EstimatedLoss:         estimatedLoss(amount, f.PriceImpact),
		Warnings:              []string{},
	}

	if f.LiquidityRatio > largeTradeRatio {
		a.Warnings = append(a.Warnings, WarnLargeTrade)
	}
	if f.PriceImpact > cfg.MaxPriceImpact {
		a.Warnings = append(a.Warnings, WarnHighPriceImpact)
	}
	if f.PoolCount < minPoolDiversity {
		a.Warnings = append(a.Warnings, WarnLimitedPools)
	}
	if liq.EstimatedGas > cfg.HighGasThreshold {
		a.Warnings = append(a.Warnings, WarnHighGasCosts)
	}
	return a
}

// protectionLadder is cumulative: each threshold adds a measure.
func protectionLadder(score float64) []ProtectionStrategy {
	out := []ProtectionStrategy{}
	if score > privateTxAbove {
		out = append(out, ProtectPrivateTx)
	}
	if score > timeDelayAbove {
		out = append(out, ProtectTimeDelay)
	}
	if score > bundleAbove {
		out = append(out, ProtectBundle)
	}
	if score > flashbotsAbove {
		out = append(out, ProtectFlashbots)
	}
	return out
}

func blockDelay(cfg MEVConfig, score float64) uint64 {
	if cfg.MaxBlockDelay <= cfg.MinBlockDelay {
		return cfg.MaxBlockDelay
	}
	span := float64(cfg.MaxBlockDelay - cfg.MinBlockDelay)
	d := cfg.MinBlockDelay + uint64(math.Floor(span*score/100))
	if d > cfg.MaxBlockDelay {
		d = cfg.MaxBlockDelay
	}
	return d
}

func estimatedLoss(amount *big.Int, priceImpact float64) *big.Int {
	if amount == nil || priceImpact <= 0 {
		return new(big.Int)
	}
	return decimal.NewFromBigInt(amount, 0).
		Mul(decimal.NewFromFloat(priceImpact)).
		Div(decimal.NewFromInt(100)).
		Truncate(0).
		BigInt()
}

// ProtectedTransaction is a transaction handed to a private relay.
type ProtectedTransaction struct {
	ChainID     uint64               `json:"chainId"`
	Hash        common.Hash          `json:"hash"`
	Relay       string               `json:"relay"`
	Strategies  []ProtectionStrategy `json:"strategies"`
	BlockDelay  uint64               `json:"blockDelay"`
	SubmittedAt time.Time            `json:"submittedAt"`
}
