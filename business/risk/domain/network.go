package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Contribution caps of the network-state score.
const (
	lagBudget        = 30
	validatorBudget  = 30
	blockTimeBudget  = 20
	invalidStatePts  = 20
	healthyThreshold = 50
)

// NetworkThresholds are the per-chain limits the network state is held to.
type NetworkThresholds struct {
	MaxValidationLag  uint64 // blocks
	MinValidatorCount uint64
	MaxBlockTimeMs    float64
}

// DefaultNetworkThresholds returns the reference thresholds.
func DefaultNetworkThresholds() NetworkThresholds {
	return NetworkThresholds{
		MaxValidationLag:  10,
		MinValidatorCount: 3,
		MaxBlockTimeMs:    15000,
	}
}

// NetworkStateMetrics describes a chain's consensus and settlement state.
type NetworkStateMetrics struct {
	BlockHeight        uint64      `json:"blockHeight"`
	LastValidatedBlock uint64      `json:"lastValidatedBlock"`
	ValidationLag      uint64      `json:"validationLag"`
	StateRoot          common.Hash `json:"stateRoot"`
	IsHealthy          bool        `json:"isHealthy"`
	ValidatorCount     uint64      `json:"validatorCount"`
	AverageBlockTimeMs float64     `json:"averageBlockTimeMs"`
}

// StateValidationResult is the outcome of validating one chain.
type StateValidationResult struct {
	ChainID        uint64              `json:"chainId"`
	IsValid        bool                `json:"isValid"`
	NetworkMetrics NetworkStateMetrics `json:"networkMetrics"`
	RiskScore      int                 `json:"riskScore"`
	Warnings       []string            `json:"warnings"`
	Timestamp      time.Time           `json:"timestamp"`
}

// Component returns the score and warnings as a RiskComponentScore.
func (r *StateValidationResult) Component() RiskComponentScore {
	return RiskComponentScore{Score: r.RiskScore, Warnings: r.Warnings}
}

// StateProof is the verdict of a state-root validation.
type StateProof struct {
	IsValid   bool
	Timestamp time.Time
}

// ScoreNetworkState scores m against th. Each contribution is computed
// multiply-first so exact thresholds yield exact points. It returns the
// clamped score and one warning per breached threshold.
func ScoreNetworkState(th NetworkThresholds, m NetworkStateMetrics, stateValid bool) (int, []string) {
	var (
		score    float64
		warnings []string
	)

	if th.MaxValidationLag > 0 {
		score += clamp(float64(m.ValidationLag)*lagBudget/float64(th.MaxValidationLag), 0, lagBudget)
	}
	if m.ValidationLag > th.MaxValidationLag {
		warnings = append(warnings, fmt.Sprintf("Validation lag of %d blocks exceeds maximum of %d", m.ValidationLag, th.MaxValidationLag))
	}

	if th.MinValidatorCount > 0 {
		deficit := float64(th.MinValidatorCount) - float64(m.ValidatorCount)
		score += clamp(deficit*validatorBudget/float64(th.MinValidatorCount), 0, validatorBudget)
	}
	if m.ValidatorCount < th.MinValidatorCount {
		warnings = append(warnings, fmt.Sprintf("Validator count %d is below minimum of %d", m.ValidatorCount, th.MinValidatorCount))
	}

	if th.MaxBlockTimeMs > 0 {
		score += clamp((m.AverageBlockTimeMs-th.MaxBlockTimeMs)*blockTimeBudget/th.MaxBlockTimeMs, 0, blockTimeBudget)
	}
	if m.AverageBlockTimeMs > th.MaxBlockTimeMs {
		warnings = append(warnings, fmt.Sprintf("Average block time %.0fms exceeds maximum of %.0fms", m.AverageBlockTimeMs, th.MaxBlockTimeMs))
	}

	if !stateValid {
		score += invalidStatePts
		warnings = append(warnings, fmt.Sprintf("State root %s failed validation", m.StateRoot.Hex()))
	}

	return roundScore(score), warnings
}

// IsHealthy reports whether a network-state score is below the unhealthy line.
func IsHealthy(score int) bool {
	return score < healthyThreshold
}

// AverageBlockTimeMs is the mean spacing of span blocks whose endpoints are
// first and last. span counts blocks, not intervals.
func AverageBlockTimeMs(first, last time.Time, span uint64) float64 {
	if span < 2 {
		return 0
	}
	return float64(last.Sub(first).Milliseconds()) / float64(span-1)
}

// SearchWindow returns the inclusive block range [lo, hi] searched for the
// last validated block below head.
func SearchWindow(head, window uint64) (lo, hi uint64) {
	if head == 0 {
		return 0, 0
	}
	hi = head - 1
	if head > window {
		lo = head - window
	}
	return lo, hi
}
