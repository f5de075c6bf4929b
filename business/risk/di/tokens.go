// Package di contains dependency injection tokens for the risk context.
package di

import (
	"github.com/fd1az/arbguard/business/risk/app"
	"github.com/fd1az/arbguard/business/risk/infra/aave"
	"github.com/fd1az/arbguard/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Assessor = di.NewToken[*app.Assessor]("risk.Assessor")
)

// Private dependency tokens - internal to risk module
var (
	AaveProvider        = di.NewToken[*aave.Provider]("risk:aaveProvider")
	MarketConditions    = di.NewToken[app.MarketConditionProvider]("risk:marketConditions")
	CollateralProvider  = di.NewToken[app.CollateralProvider]("risk:collateralProvider")
	StateProofValidator = di.NewToken[app.StateProofValidator]("risk:stateProofValidator")
	ValidatorRegistry   = di.NewToken[app.ValidatorRegistry]("risk:validatorRegistry")
	BridgeMetrics       = di.NewToken[app.BridgeMetricsProvider]("risk:bridgeMetrics")
	FlashLoanScorer     = di.NewToken[*app.FlashLoanScorer]("risk:flashLoanScorer")
	StateValidator      = di.NewToken[*app.StateValidator]("risk:stateValidator")
	BridgeScorer        = di.NewToken[*app.BridgeScorer]("risk:bridgeScorer")
)

func GetAssessor(c di.ServiceRegistry) *app.Assessor {
	return di.GetToken(c, Assessor)
}

func GetAaveProvider(c di.ServiceRegistry) *aave.Provider {
	return di.GetToken(c, AaveProvider)
}

func GetMarketConditions(c di.ServiceRegistry) app.MarketConditionProvider {
	return di.GetToken(c, MarketConditions)
}

func GetCollateralProvider(c di.ServiceRegistry) app.CollateralProvider {
	return di.GetToken(c, CollateralProvider)
}

func GetStateProofValidator(c di.ServiceRegistry) app.StateProofValidator {
	return di.GetToken(c, StateProofValidator)
}

func GetValidatorRegistry(c di.ServiceRegistry) app.ValidatorRegistry {
	return di.GetToken(c, ValidatorRegistry)
}

func GetBridgeMetrics(c di.ServiceRegistry) app.BridgeMetricsProvider {
	return di.GetToken(c, BridgeMetrics)
}

func GetFlashLoanScorer(c di.ServiceRegistry) *app.FlashLoanScorer {
	return di.GetToken(c, FlashLoanScorer)
}

func GetStateValidator(c di.ServiceRegistry) *app.StateValidator {
	return di.GetToken(c, StateValidator)
}

func GetBridgeScorer(c di.ServiceRegistry) *app.BridgeScorer {
	return di.GetToken(c, BridgeScorer)
}
