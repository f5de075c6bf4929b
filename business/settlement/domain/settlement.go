package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Validation messages.
const (
	ErrInsufficientLiquidity = "Insufficient liquidity for settlement"
	ErrSlippageExceeded      = "Expected slippage exceeds maximum allowed"
	WarnPriceImpact          = "High price impact detected"
	WarnHighMEVRisk          = "High MEV risk detected"
)

const (
	mevSlippageWeight   = 0.5
	baseVolatilityTerm  = 0.2
	defaultMEVWarnAbove = 70
)

// SettlementRules bound what the engine accepts and how it executes.
type SettlementRules struct {
	MaxSlippage          float64  // percent
	MinLiquidity         *big.Int // base units
	MaxGasPrice          *big.Int // wei
	MinConfirmations     uint64
	MaxExecutionDelay    time.Duration
	PriceImpactThreshold float64 // percent, warns above
	MEVWarningAbove      float64

	SplitAbovePriceImpact float64 // percent
	SplitInterval         time.Duration
	BatchAbovePriceImpact float64 // percent
	BatchSize             int
	LargeAmountUnits      int64 // whole tokens above which batching applies
}

// DefaultSettlementRules returns the reference rules.
func DefaultSettlementRules() SettlementRules {
	return SettlementRules{
		MaxSlippage:           1.0,
		MinLiquidity:          new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18)),
		MaxGasPrice:           big.NewInt(100e9),
		MinConfirmations:      2,
		MaxExecutionDelay:     5 * time.Minute,
		PriceImpactThreshold:  0.5,
		MEVWarningAbove:       defaultMEVWarnAbove,
		SplitAbovePriceImpact: 1.0,
		SplitInterval:         30 * time.Second,
		BatchAbovePriceImpact: 2.0,
		BatchSize:             3,
		LargeAmountUnits:      10,
	}
}

// SettlementValidation is the verdict on a prospective settlement.
type SettlementValidation struct {
	IsValid          bool               `json:"isValid"`
	Errors           []string           `json:"errors"`
	Warnings         []string           `json:"warnings"`
	EstimatedGas     uint64             `json:"estimatedGas"`
	ExpectedSlippage float64            `json:"expectedSlippage"`
	PriceImpact      float64            `json:"priceImpact"`
	MEV              *MEVRiskAssessment `json:"mevAssessment,omitempty"`
}

// HasWarning reports whether w was raised.
func (v *SettlementValidation) HasWarning(w string) bool {
	for _, x := range v.Warnings {
		if x == w {
			return true
		}
	}
	return false
}

// ValidateSettlement checks liq and mev against rules. Rule violations
// are reported in the result, never as errors.
func ValidateSettlement(rules SettlementRules, liq *AggregatedLiquidity, mev *MEVRiskAssessment) *SettlementValidation {
	v := &SettlementValidation{
		IsValid:      true,
		Errors:       []string{},
		Warnings:     []string{},
		EstimatedGas: liq.EstimatedGas,
		PriceImpact:  liq.PriceImpact,
		MEV:          mev,
	}

	if rules.MinLiquidity != nil && (liq.TotalLiquidity == nil || liq.TotalLiquidity.Cmp(rules.MinLiquidity) < 0) {
		v.IsValid = false
		v.Errors = append(v.Errors, ErrInsufficientLiquidity)
	}
	if liq.PriceImpact > rules.PriceImpactThreshold {
		v.Warnings = append(v.Warnings, WarnPriceImpact)
	}

	warnAbove := rules.MEVWarningAbove
	if warnAbove == 0 {
		warnAbove = defaultMEVWarnAbove
	}
	mevScore := 0.0
	if mev != nil {
		mevScore = mev.RiskScore
	}
	if mevScore > warnAbove {
		v.Warnings = append(v.Warnings, WarnHighMEVRisk)
	}

	v.ExpectedSlippage = liq.PriceImpact + (mevScore/100)*mevSlippageWeight + baseVolatilityTerm
	if v.ExpectedSlippage > rules.MaxSlippage {
		v.IsValid = false
		v.Errors = append(v.Errors, ErrSlippageExceeded)
	}
	return v
}

// SettlementRequest asks the engine to settle amount of SourceToken into
// TargetToken for User. A nil Strategy is determined by the engine.
type SettlementRequest struct {
	ChainID     uint64
	SourceToken common.Address
	TargetToken common.Address
	Amount      *big.Int
	User        common.Address
	Strategy    *SettlementStrategy
}

// ExecutedTx is one confirmed settlement transaction.
type ExecutedTx struct {
	Hash        common.Hash `json:"hash"`
	Amount      *big.Int    `json:"amount"`
	BlockNumber uint64      `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`
	Private     bool        `json:"private"`
}

// SettlementResult describes a finished settlement.
type SettlementResult struct {
	ChainID      uint64                `json:"chainId"`
	Strategy     SettlementStrategy    `json:"strategy"`
	Transactions []ExecutedTx          `json:"transactions"`
	Protected    *ProtectedTransaction `json:"protected,omitempty"`
	GasPrice     *big.Int              `json:"gasPrice"`
	StartedAt    time.Time             `json:"startedAt"`
	CompletedAt  time.Time             `json:"completedAt"`
}

// TotalGasUsed sums gas over all transactions.
func (r *SettlementResult) TotalGasUsed() uint64 {
	var total uint64
	for _, tx := range r.Transactions {
		total += tx.GasUsed
	}
	return total
}
