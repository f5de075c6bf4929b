// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/fd1az/arbguard/business/blockchain/app"
	"github.com/fd1az/arbguard/business/blockchain/infra/ethereum"
	"github.com/fd1az/arbguard/internal/di"
)

// Public service tokens - exposed to other modules
var (
	BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")
	ClientPool        = di.NewToken[*ethereum.ClientPool]("blockchain.ClientPool")
)

// Private dependency tokens - internal to blockchain module
var (
	GasOracle = di.NewToken[app.GasOracle]("blockchain:gasOracle")
)

func GetBlockchainService(c di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(c, BlockchainService)
}

func GetClientPool(c di.ServiceRegistry) *ethereum.ClientPool {
	return di.GetToken(c, ClientPool)
}

func GetGasOracle(c di.ServiceRegistry) app.GasOracle {
	return di.GetToken(c, GasOracle)
}
