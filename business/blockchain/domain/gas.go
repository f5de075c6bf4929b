package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

var weiPerGwei = decimal.New(1, 9)

// GasPrice is a chain's suggested gas price at a point in time.
type GasPrice struct {
	ChainID   uint64
	Wei       *big.Int
	Timestamp time.Time
	Capped    bool // the node suggested more than the configured ceiling
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(chainID uint64, wei *big.Int) *GasPrice {
	return &GasPrice{
		ChainID:   chainID,
		Wei:       wei,
		Timestamp: time.Now(),
	}
}

// Gwei returns the price in gwei.
func (g *GasPrice) Gwei() float64 {
	f, _ := decimal.NewFromBigInt(g.Wei, 0).Div(weiPerGwei).Float64()
	return f
}

// Exceeds reports whether the price is strictly above maxWei.
func (g *GasPrice) Exceeds(maxWei *big.Int) bool {
	return maxWei != nil && g.Wei.Cmp(maxWei) > 0
}

// GweiToWei converts a gwei amount to wei, truncating below one wei.
func GweiToWei(gwei float64) *big.Int {
	return decimal.NewFromFloat(gwei).Mul(weiPerGwei).Truncate(0).BigInt()
}

// GasEstimate is a gas limit priced at a gas price.
type GasEstimate struct {
	GasLimit uint64
	GasPrice *GasPrice
	TotalWei *big.Int
}

// NewGasEstimate computes the total cost of gasLimit at price.
func NewGasEstimate(gasLimit uint64, price *GasPrice) *GasEstimate {
	total := new(big.Int).Mul(price.Wei, new(big.Int).SetUint64(gasLimit))
	return &GasEstimate{GasLimit: gasLimit, GasPrice: price, TotalWei: total}
}
