// Package domain contains the settlement and MEV decision logic.
package domain

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Pool is one venue that can fill a swap.
type Pool struct {
	Address   common.Address `json:"address"`
	Fee       uint32         `json:"fee"`       // hundredths of a bip
	Liquidity *big.Int       `json:"liquidity"` // input-token balance, base units
	AmountOut *big.Int       `json:"amountOut"` // quoted output for the requested amount
}

// AggregatedLiquidity summarises the venues for a token pair.
type AggregatedLiquidity struct {
	Pools          []Pool          `json:"pools"`
	TotalLiquidity *big.Int        `json:"totalLiquidity"`
	BestPrice      decimal.Decimal `json:"bestPrice"`   // output per input, whole units
	PriceImpact    float64         `json:"priceImpact"` // percent
	EstimatedGas   uint64          `json:"estimatedGas"`
}

// PoolCount returns the number of venues.
func (l *AggregatedLiquidity) PoolCount() int {
	return len(l.Pools)
}

// SumLiquidity adds up pool liquidity.
func SumLiquidity(pools []Pool) *big.Int {
	total := new(big.Int)
	for _, p := range pools {
		if p.Liquidity != nil {
			total.Add(total, p.Liquidity)
		}
	}
	return total
}

// ratio returns a/b as a float. A positive amount against no liquidity
// saturates to MaxFloat64 so the value stays JSON encodable.
func ratio(a, b *big.Int) float64 {
	if a == nil || a.Sign() == 0 {
		return 0
	}
	if b == nil || b.Sign() == 0 {
		return math.MaxFloat64
	}
	f, _ := decimal.NewFromBigInt(a, 0).Div(decimal.NewFromBigInt(b, 0)).Float64()
	return f
}
