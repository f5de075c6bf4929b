package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ReserveData is the lending pool state of one reserve, in base units.
type ReserveData struct {
	AvailableLiquidity *big.Int
	TotalStableDebt    *big.Int
	TotalVariableDebt  *big.Int
}

// TotalDebt returns stable plus variable debt.
func (r ReserveData) TotalDebt() *big.Int {
	total := new(big.Int)
	if r.TotalStableDebt != nil {
		total.Add(total, r.TotalStableDebt)
	}
	if r.TotalVariableDebt != nil {
		total.Add(total, r.TotalVariableDebt)
	}
	return total
}

// UtilizationRate is debt / (available + debt); 0 for an empty reserve.
func (r ReserveData) UtilizationRate() float64 {
	debt := r.TotalDebt()
	supply := new(big.Int).Set(debt)
	if r.AvailableLiquidity != nil {
		supply.Add(supply, r.AvailableLiquidity)
	}
	if supply.Sign() == 0 {
		return 0
	}
	f, _ := decimal.NewFromBigInt(debt, 0).Div(decimal.NewFromBigInt(supply, 0)).Float64()
	return f
}

// MarketStats are off-chain market statistics for an asset.
type MarketStats struct {
	Volatility24h          float64         // absolute 24h price change, percent
	AverageTransactionSize *big.Int        // base units
	PriceUSD               decimal.Decimal // zero when unknown
}

// MarketCondition is the market state a flash loan is scored against.
type MarketCondition struct {
	ChainID                uint64          `json:"chainId"`
	Token                  common.Address  `json:"token"`
	Decimals               uint8           `json:"decimals"`
	TotalLiquidity         *big.Int        `json:"totalLiquidity"`
	UtilizationRate        float64         `json:"utilizationRate"`
	Volatility24h          float64         `json:"volatility24h"`
	AverageTransactionSize *big.Int        `json:"averageTransactionSize"`
	PriceUSD               decimal.Decimal `json:"priceUsd"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// NewMarketCondition combines on-chain reserve data with market stats.
// TotalLiquidity is the liquidity available to borrow.
func NewMarketCondition(chainID uint64, token common.Address, decimals uint8, reserve ReserveData, stats MarketStats) *MarketCondition {
	available := new(big.Int)
	if reserve.AvailableLiquidity != nil {
		available.Set(reserve.AvailableLiquidity)
	}
	avgSize := new(big.Int)
	if stats.AverageTransactionSize != nil {
		avgSize.Set(stats.AverageTransactionSize)
	}

	return &MarketCondition{
		ChainID:                chainID,
		Token:                  token,
		Decimals:               decimals,
		TotalLiquidity:         available,
		UtilizationRate:        reserve.UtilizationRate(),
		Volatility24h:          stats.Volatility24h,
		AverageTransactionSize: avgSize,
		PriceUSD:               stats.PriceUSD,
		UpdatedAt:              time.Now(),
	}
}

// ValueUSD prices amount (base units). Assets without a known price are
// valued at one dollar per unit.
func (m *MarketCondition) ValueUSD(amount *big.Int) decimal.Decimal {
	units := decimal.NewFromBigInt(amount, -int32(m.Decimals))
	if m.PriceUSD.IsPositive() {
		return units.Mul(m.PriceUSD)
	}
	return units
}
