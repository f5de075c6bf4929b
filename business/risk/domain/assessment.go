package domain

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Recommendations emitted by the composite assessment.
const (
	RecommendDelayHighValue = "Network state is unhealthy: delay high-value transactions"
	RecommendNotViable      = "Flash loan is not viable under current market conditions"
)

// CompositeWeights weight each component in the overall score.
type CompositeWeights struct {
	FlashLoan    float64
	NetworkState float64
	CrossChain   float64
}

// DefaultCompositeWeights returns the reference weights.
func DefaultCompositeWeights() CompositeWeights {
	return CompositeWeights{FlashLoan: 0.4, NetworkState: 0.6, CrossChain: 0.6}
}

// AssessmentParams selects what a composite assessment covers. The flash-loan
// component needs Token, Amount and User; the zero address and a nil Amount
// mean absent.
type AssessmentParams struct {
	Token               common.Address
	Amount              *big.Int
	User                common.Address
	TargetChainID       uint64
	IncludeNetworkState bool
}

// WantsFlashLoan reports whether the flash-loan component applies.
func (p AssessmentParams) WantsFlashLoan() bool {
	return p.Token != (common.Address{}) && p.User != (common.Address{}) && p.Amount != nil
}

// WantsCrossChain reports whether the cross-chain component applies.
func (p AssessmentParams) WantsCrossChain() bool {
	return p.TargetChainID != 0
}

// AssessmentKey identifies a cached assessment.
type AssessmentKey string

// NewAssessmentKey builds the "chainId-token-user" key; absent addresses are
// empty strings.
func NewAssessmentKey(chainID uint64, token, user common.Address) AssessmentKey {
	return AssessmentKey(fmt.Sprintf("%d-%s-%s", chainID, addrKey(token), addrKey(user)))
}

func addrKey(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return strings.ToLower(a.Hex())
}

// NetworkStateComponent is the network-state component with its metrics.
type NetworkStateComponent struct {
	RiskComponentScore
	Metrics NetworkStateMetrics `json:"metrics"`
}

// CrossChainComponent is the bridge component with the target chain's state.
type CrossChainComponent struct {
	RiskComponentScore
	TargetChainID uint64                `json:"targetChainId"`
	Metrics       CrossChainRiskMetrics `json:"metrics"`
	TargetNetwork NetworkStateMetrics   `json:"targetNetwork"`
}

// Components holds whichever components were computed.
type Components struct {
	FlashLoanRisk    *RiskComponentScore    `json:"flashLoanRisk,omitempty"`
	CollateralRisk   *RiskComponentScore    `json:"collateralRisk,omitempty"`
	NetworkStateRisk *NetworkStateComponent `json:"networkStateRisk,omitempty"`
	CrossChainRisk   *CrossChainComponent   `json:"crossChainRisk,omitempty"`
}

// RiskAssessmentResult is a composite assessment.
type RiskAssessmentResult struct {
	ChainID          uint64        `json:"chainId"`
	Key              AssessmentKey `json:"key"`
	OverallRiskScore int           `json:"overallRiskScore"`
	Components       Components    `json:"components"`
	Recommendations  []string      `json:"recommendations"`
	Timestamp        time.Time     `json:"timestamp"`
}

// CompositeInputs are the computed pieces a composite is built from.
type CompositeInputs struct {
	FlashLoan    *FlashLoanRisk
	NetworkState *StateValidationResult
	CrossChain   *BridgeRisk
	Target       *StateValidationResult // target chain state for the cross-chain component
	TargetChain  uint64
}

// Compose builds the composite result. It returns false when no component is
// present, since the weighted mean is undefined then.
func Compose(w CompositeWeights, bridgeCfg BridgeConfig, chainID uint64, key AssessmentKey, in CompositeInputs) (*RiskAssessmentResult, bool) {
	res := &RiskAssessmentResult{
		ChainID:         chainID,
		Key:             key,
		Recommendations: []string{},
		Timestamp:       time.Now(),
	}

	var weighted, weights float64

	if fl := in.FlashLoan; fl != nil {
		c := fl.Component()
		res.Components.FlashLoanRisk = &c
		res.Components.CollateralRisk = &RiskComponentScore{Score: roundScore(fl.CollateralRisk), Warnings: collateralWarnings(fl)}
		weighted += float64(fl.RiskScore) * w.FlashLoan
		weights += w.FlashLoan

		if len(fl.Warnings) > 0 {
			res.Recommendations = append(res.Recommendations, "Flash loan risk factors: "+strings.Join(fl.Warnings, "; "))
		}
		if !fl.IsViable {
			res.Recommendations = append(res.Recommendations, RecommendNotViable)
		}
	}

	if ns := in.NetworkState; ns != nil {
		res.Components.NetworkStateRisk = &NetworkStateComponent{
			RiskComponentScore: ns.Component(),
			Metrics:            ns.NetworkMetrics,
		}
		weighted += float64(ns.RiskScore) * w.NetworkState
		weights += w.NetworkState

		if !ns.NetworkMetrics.IsHealthy {
			res.Recommendations = append(res.Recommendations, RecommendDelayHighValue)
		}
		if len(ns.Warnings) > 0 {
			res.Recommendations = append(res.Recommendations, "Network state warnings: "+strings.Join(ns.Warnings, "; "))
		}
	}

	if br := in.CrossChain; br != nil {
		comp := &CrossChainComponent{
			RiskComponentScore: RiskComponentScore{Score: br.Score, Warnings: append([]string(nil), br.Warnings...)},
			TargetChainID:      in.TargetChain,
			Metrics:            br.Metrics,
		}
		if t := in.Target; t != nil {
			comp.TargetNetwork = t.NetworkMetrics
			comp.Warnings = append(comp.Warnings, t.Warnings...)
			if !t.NetworkMetrics.IsHealthy {
				res.Recommendations = append(res.Recommendations, RecommendDelayHighValue)
			}
		}
		res.Components.CrossChainRisk = comp
		weighted += float64(br.Score) * w.CrossChain
		weights += w.CrossChain

		if br.Recommends(bridgeCfg) {
			res.Recommendations = append(res.Recommendations, RecommendHighCrossChainRisk)
		}
		if len(comp.Warnings) > 0 {
			res.Recommendations = append(res.Recommendations, "Cross-chain warnings: "+strings.Join(comp.Warnings, "; "))
		}
	}

	if weights <= 0 {
		return nil, false
	}
	res.OverallRiskScore = int(math.Round(clampScore(weighted / weights)))
	return res, true
}

func collateralWarnings(fl *FlashLoanRisk) []string {
	for _, w := range fl.Warnings {
		if strings.Contains(w, "increase collateral") {
			return []string{w}
		}
	}
	return nil
}
