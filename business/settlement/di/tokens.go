// Package di contains dependency injection tokens for the settlement context.
package di

import (
	"github.com/fd1az/arbguard/business/settlement/app"
	"github.com/fd1az/arbguard/internal/di"
)

// Public service tokens - exposed to other modules
var (
	MEVAssessor = di.NewToken[*app.MEVAssessor]("settlement.MEVAssessor")
	Engine      = di.NewToken[*app.Engine]("settlement.Engine")
)

// Private dependency tokens - internal to settlement module
var (
	Liquidity    = di.NewToken[app.LiquidityAggregator]("settlement:liquidity")
	Builder      = di.NewToken[app.TransactionBuilder]("settlement:builder")
	MEVProtector = di.NewToken[app.MEVProtector]("settlement:mevProtector")
)

func GetMEVAssessor(c di.ServiceRegistry) *app.MEVAssessor {
	return di.GetToken(c, MEVAssessor)
}

func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetLiquidity(c di.ServiceRegistry) app.LiquidityAggregator {
	return di.GetToken(c, Liquidity)
}

func GetBuilder(c di.ServiceRegistry) app.TransactionBuilder {
	return di.GetToken(c, Builder)
}

func GetMEVProtector(c di.ServiceRegistry) app.MEVProtector {
	return di.GetToken(c, MEVProtector)
}
