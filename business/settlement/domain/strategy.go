package domain

import (
	"math"
	"math/big"
	"time"
)

// StrategyKind names an execution strategy.
type StrategyKind string

const (
	StrategyStandard StrategyKind = "standard"
	StrategySplit    StrategyKind = "split"
	StrategyBatched  StrategyKind = "batched"
	StrategyPrivate  StrategyKind = "private"
)

// Valid reports whether k is a known strategy.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategyStandard, StrategySplit, StrategyBatched, StrategyPrivate:
		return true
	}
	return false
}

// SettlementStrategy is a tagged variant: only the fields of Kind are set.
type SettlementStrategy struct {
	Kind            StrategyKind `json:"type"`
	Parts           int          `json:"parts,omitempty"`
	IntervalSeconds int64        `json:"interval,omitempty"`
	BatchSize       int          `json:"batchSize,omitempty"`
	IsPrivate       bool         `json:"isPrivate,omitempty"`
}

// Interval is the pause between split parts.
func (s SettlementStrategy) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Standard is a single transaction.
func Standard() SettlementStrategy {
	return SettlementStrategy{Kind: StrategyStandard}
}

// Split executes parts sequentially, interval apart.
func Split(parts int, interval time.Duration) SettlementStrategy {
	return SettlementStrategy{Kind: StrategySplit, Parts: parts, IntervalSeconds: int64(interval / time.Second)}
}

// Batched executes batchSize parts concurrently.
func Batched(batchSize int) SettlementStrategy {
	return SettlementStrategy{Kind: StrategyBatched, BatchSize: batchSize}
}

// Private routes a single transaction through a private relay.
func Private() SettlementStrategy {
	return SettlementStrategy{Kind: StrategyPrivate, IsPrivate: true}
}

// LargeAmount returns the batching threshold in base units.
func (r SettlementRules) LargeAmount(decimals uint8) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return scale.Mul(scale, big.NewInt(r.LargeAmountUnits))
}

// DetermineStrategy picks the execution strategy. Rules apply in order and
// a later match replaces an earlier one: split on price impact, private on
// MEV warning, batched on high impact with a large amount.
func DetermineStrategy(rules SettlementRules, v *SettlementValidation, amount *big.Int, decimals uint8) SettlementStrategy {
	s := Standard()

	if v.PriceImpact > rules.SplitAbovePriceImpact {
		s = Split(int(math.Ceil(v.PriceImpact*2)), rules.SplitInterval)
	}
	if v.HasWarning(WarnHighMEVRisk) {
		s = Private()
	}
	if v.PriceImpact > rules.BatchAbovePriceImpact && amount != nil && amount.Cmp(rules.LargeAmount(decimals)) > 0 {
		s = Batched(rules.BatchSize)
	}
	return s
}

// SplitAmount divides amount into parts; the remainder goes to the last.
func SplitAmount(amount *big.Int, parts int) []*big.Int {
	if parts < 1 {
		parts = 1
	}
	n := big.NewInt(int64(parts))
	each, rem := new(big.Int).QuoRem(amount, n, new(big.Int))

	out := make([]*big.Int, parts)
	for i := range out {
		out[i] = new(big.Int).Set(each)
	}
	out[parts-1].Add(out[parts-1], rem)
	return out
}
