package domain

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// FlashLoanConfig calibrates the flash-loan scorer.
type FlashLoanConfig struct {
	UtilizationWeight    float64
	VolatilityWeight     float64
	SizingWeight         float64
	CollateralWeight     float64
	MaxLoanRatio         float64 // share of available liquidity that may be borrowed
	CollateralMultiplier float64
	ViableMaxScore       int     // viable only strictly below this score
	ViableMaxUtilization float64 // viable only strictly below this utilization
	WarningThreshold     float64 // sub-scores above this emit a warning
}

// DefaultFlashLoanConfig returns the reference calibration.
func DefaultFlashLoanConfig() FlashLoanConfig {
	return FlashLoanConfig{
		UtilizationWeight:    0.3,
		VolatilityWeight:     0.3,
		SizingWeight:         0.2,
		CollateralWeight:     0.2,
		MaxLoanRatio:         0.8,
		CollateralMultiplier: 1.5,
		ViableMaxScore:       80,
		ViableMaxUtilization: 0.95,
		WarningThreshold:     70,
	}
}

// FlashLoanRisk is the scored outcome of a proposed flash loan.
type FlashLoanRisk struct {
	ChainID uint64         `json:"chainId"`
	Token   common.Address `json:"token"`
	User    common.Address `json:"user"`
	Amount  *big.Int       `json:"amount"`

	RiskScore       int      `json:"riskScore"`
	UtilizationRisk float64  `json:"utilizationRisk"`
	VolatilityRisk  float64  `json:"volatilityRisk"`
	SizingRisk      float64  `json:"sizingRisk"`
	CollateralRisk  float64  `json:"collateralRisk"`
	Warnings        []string `json:"warnings"`

	MaxLoanAmount         *big.Int        `json:"maxLoanAmount"`
	RecommendedCollateral *big.Int        `json:"recommendedCollateral"`
	CollateralUSD         decimal.Decimal `json:"collateralUsd"`
	IsViable              bool            `json:"isViable"`

	Market    *MarketCondition `json:"market"`
	Timestamp time.Time        `json:"timestamp"`
}

// Component returns the score and warnings as a RiskComponentScore.
func (f *FlashLoanRisk) Component() RiskComponentScore {
	return RiskComponentScore{Score: f.RiskScore, Warnings: f.Warnings}
}

// UtilizationRisk maps a utilization rate in [0,1] to a sub-score.
// Segments are [0,0.5), [0.5,0.8) and [0.8,1]. The middle segment saturates
// at 100 from 0.75 and the curve restarts at 80 on 0.8, so it is not
// monotone across that boundary.
func UtilizationRisk(rate float64) float64 {
	switch {
	case rate < 0.5:
		return clampScore(rate * 100)
	case rate < 0.8:
		return clampScore(50 + (rate-0.5)*200)
	default:
		return clampScore(80 + (rate-0.8)*100)
	}
}

// thresholdRisk is the shared curve for volatility and sizing: breakpoints at
// 2 and 5.
func thresholdRisk(x float64) float64 {
	switch {
	case x < 2:
		return clampScore(x * 25)
	case x < 5:
		return clampScore(50 + (x-2)*10)
	default:
		return clampScore(80 + (x-5)*4)
	}
}

// VolatilityRisk maps 24h volatility in percent to a sub-score.
func VolatilityRisk(volatilityPct float64) float64 {
	return thresholdRisk(math.Abs(volatilityPct))
}

// SizingRisk maps amount / average transaction size to a sub-score.
func SizingRisk(ratio float64) float64 {
	return thresholdRisk(ratio)
}

// CollateralRisk maps collateral value / loan value to a sub-score.
func CollateralRisk(ratio float64) float64 {
	switch {
	case ratio > 2:
		return 20
	case ratio > 1.5:
		return 40
	case ratio > 1:
		return 60
	default:
		return clampScore(80 + (1-ratio)*20)
	}
}

// sizingRatio is amount / averageSize. An unknown average makes the loan
// maximally outsized.
func sizingRatio(amount, averageSize *big.Int) float64 {
	if averageSize == nil || averageSize.Sign() <= 0 {
		return math.Inf(1)
	}
	r, _ := decimal.NewFromBigInt(amount, 0).Div(decimal.NewFromBigInt(averageSize, 0)).Float64()
	return r
}

// ScoreFlashLoan scores borrowing amount of the market's token for a user
// holding collateralUSD. amount must be positive.
func ScoreFlashLoan(cfg FlashLoanConfig, market *MarketCondition, user common.Address, amount *big.Int, collateralUSD decimal.Decimal) *FlashLoanRisk {
	utilization := UtilizationRisk(market.UtilizationRate)
	volatility := VolatilityRisk(market.Volatility24h)
	ratio := sizingRatio(amount, market.AverageTransactionSize)
	sizing := SizingRisk(ratio)

	var collateralRatio float64
	if loanUSD := market.ValueUSD(amount); loanUSD.IsPositive() {
		collateralRatio, _ = collateralUSD.Div(loanUSD).Float64()
	}
	collateral := CollateralRisk(collateralRatio)

	score := roundScore(utilization*cfg.UtilizationWeight +
		volatility*cfg.VolatilityWeight +
		sizing*cfg.SizingWeight +
		collateral*cfg.CollateralWeight)

	var warnings []string
	if utilization > cfg.WarningThreshold {
		warnings = append(warnings, fmt.Sprintf("High pool utilization: %.1f%%", market.UtilizationRate*100))
	}
	if volatility > cfg.WarningThreshold {
		warnings = append(warnings, fmt.Sprintf("High market volatility: %.2f%% in 24h", math.Abs(market.Volatility24h)))
	}
	if sizing > cfg.WarningThreshold {
		if math.IsInf(ratio, 1) {
			warnings = append(warnings, "Loan size cannot be compared to average transaction size")
		} else {
			warnings = append(warnings, fmt.Sprintf("Loan is %.1fx the average transaction size", ratio))
		}
	}
	if collateral > cfg.WarningThreshold {
		warnings = append(warnings, fmt.Sprintf("Low collateral coverage (%.2fx): increase collateral", collateralRatio))
	}

	total := market.TotalLiquidity
	return &FlashLoanRisk{
		ChainID:               market.ChainID,
		Token:                 market.Token,
		User:                  user,
		Amount:                new(big.Int).Set(amount),
		RiskScore:             score,
		UtilizationRisk:       utilization,
		VolatilityRisk:        volatility,
		SizingRisk:            sizing,
		CollateralRisk:        collateral,
		Warnings:              warnings,
		MaxLoanAmount:         scale(total, cfg.MaxLoanRatio),
		RecommendedCollateral: scale(amount, cfg.CollateralMultiplier),
		CollateralUSD:         collateralUSD,
		IsViable: score < cfg.ViableMaxScore &&
			total.Cmp(amount) > 0 &&
			market.UtilizationRate < cfg.ViableMaxUtilization,
		Market:    market,
		Timestamp: time.Now(),
	}
}

// scale multiplies v by factor exactly and truncates to an integer.
func scale(v *big.Int, factor float64) *big.Int {
	return decimal.NewFromBigInt(v, 0).Mul(decimal.NewFromFloat(factor)).Truncate(0).BigInt()
}
