// Package blockchain implements the multi-chain RPC gateway shared by the
// risk and settlement contexts.
package blockchain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fd1az/arbguard/business/blockchain/app"
	blockchainDI "github.com/fd1az/arbguard/business/blockchain/di"
	"github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/business/blockchain/infra/ethereum"
	"github.com/fd1az/arbguard/internal/config"
	"github.com/fd1az/arbguard/internal/di"
	"github.com/fd1az/arbguard/internal/logger"
	"github.com/fd1az/arbguard/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, blockchainDI.ClientPool, func(sr di.ServiceRegistry) *ethereum.ClientPool {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		pool, err := ethereum.NewClientPool(context.Background(), endpoints(cfg), log)
		if err != nil {
			panic("failed to create client pool: " + err.Error())
		}
		return pool
	})

	di.RegisterToken(c, blockchainDI.GasOracle, func(sr di.ServiceRegistry) app.GasOracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		pool := blockchainDI.GetClientPool(sr)

		oracle, err := ethereum.NewGasOracle(gasOracleConfig(cfg), func(chainID uint64) (ethereum.GasSuggester, error) {
			client, err := pool.Client(chainID)
			if err != nil {
				return nil, err
			}
			return client, nil
		}, log)
		if err != nil {
			panic("failed to create gas oracle: " + err.Error())
		}
		return oracle
	})

	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewBlockchainService(blockchainDI.GetClientPool(sr), blockchainDI.GetGasOracle(sr), log)
	})

	return nil
}

// Startup verifies chain endpoints and registers one readiness check per chain.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	pool := blockchainDI.GetClientPool(mono.Services())
	mono.OnClose(pool)

	if err := pool.Verify(ctx); err != nil {
		// Endpoints may come up later; readiness checks report it.
		log.Error(ctx, "chain endpoint verification failed", "error", err)
	}

	svc := blockchainDI.GetBlockchainService(mono.Services())
	if hs := mono.Health(); hs != nil {
		for _, chainID := range svc.ChainIDs() {
			hs.RegisterCheck(fmt.Sprintf("chain-%d", chainID), func(ctx context.Context) (bool, string) {
				head, err := svc.Ping(ctx, chainID)
				if err != nil {
					return false, err.Error()
				}
				return true, fmt.Sprintf("head %d", head)
			})
		}
	}

	log.Info(ctx, "blockchain module started", "chains", svc.ChainIDs())
	return nil
}

func endpoints(cfg *config.Config) []ethereum.Endpoint {
	names := make([]string, 0, len(cfg.Chains))
	for name := range cfg.Chains {
		names = append(names, name)
	}
	sort.Strings(names)

	eps := make([]ethereum.Endpoint, 0, len(names))
	for _, name := range names {
		ch := cfg.Chains[name]
		eps = append(eps, ethereum.Endpoint{ChainID: ch.ChainID, Name: name, RPCURL: ch.RPCURL})
	}
	return eps
}

func gasOracleConfig(cfg *config.Config) ethereum.GasOracleConfig {
	out := ethereum.GasOracleConfig{
		Chains:     make(map[uint64]ethereum.ChainGasConfig, len(cfg.Chains)),
		DefaultTTL: 12 * time.Second,
	}
	for _, ch := range cfg.Chains {
		gc := ethereum.ChainGasConfig{CacheTTL: ch.GasCacheTTL}
		if ch.MaxGasPriceGwei > 0 {
			gc.MaxGasPrice = domain.GweiToWei(ch.MaxGasPriceGwei)
		}
		out.Chains[ch.ChainID] = gc
	}
	return out
}
