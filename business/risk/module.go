// Package risk implements the risk bounded context: flash-loan scoring,
// network-state validation, bridge scoring and the composite assessor.
package risk

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	blockchainDI "github.com/fd1az/arbguard/business/blockchain/di"
	"github.com/fd1az/arbguard/business/risk/app"
	riskDI "github.com/fd1az/arbguard/business/risk/di"
	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/business/risk/infra/aave"
	"github.com/fd1az/arbguard/business/risk/infra/binance"
	"github.com/fd1az/arbguard/business/risk/infra/bridge"
	riskEthereum "github.com/fd1az/arbguard/business/risk/infra/ethereum"
	"github.com/fd1az/arbguard/business/risk/infra/stateproof"
	"github.com/fd1az/arbguard/internal/asset"
	"github.com/fd1az/arbguard/internal/cache"
	"github.com/fd1az/arbguard/internal/config"
	"github.com/fd1az/arbguard/internal/di"
	"github.com/fd1az/arbguard/internal/logger"
	"github.com/fd1az/arbguard/internal/monolith"
)

// Module implements the risk bounded context.
type Module struct{}

// RegisterServices registers all risk services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, riskDI.AaveProvider, func(sr di.ServiceRegistry) *aave.Provider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		pool := blockchainDI.GetClientPool(sr)

		provider, err := aave.NewProvider(aaveDeployments(cfg), func(chainID uint64) (ethereum.ContractCaller, error) {
			return pool.Caller(chainID)
		}, log)
		if err != nil {
			panic("failed to create aave provider: " + err.Error())
		}
		return provider
	})

	di.RegisterToken(c, riskDI.MarketConditions, func(sr di.ServiceRegistry) app.MarketConditionProvider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		client, err := binance.NewHTTPClient(binance.HTTPClientConfig{
			BaseURL:   cfg.Binance.BaseURL,
			Timeout:   cfg.Binance.Timeout,
			RateLimit: cfg.Binance.RateLimit,
			Burst:     cfg.Binance.Burst,
		}, log)
		if err != nil {
			panic("failed to create binance client: " + err.Error())
		}
		stats, err := binance.NewProvider(client, binance.ProviderConfig{
			QuoteAsset: cfg.Binance.QuoteAsset,
			StablePair: cfg.Binance.StablePair,
			MaxAge:     cfg.Binance.StatsMaxAge,
		}, registry, log)
		if err != nil {
			panic("failed to create binance provider: " + err.Error())
		}

		return app.NewMarketConditions(riskDI.GetAaveProvider(sr), stats, registry)
	})

	di.RegisterToken(c, riskDI.CollateralProvider, func(sr di.ServiceRegistry) app.CollateralProvider {
		return riskDI.GetAaveProvider(sr)
	})

	di.RegisterToken(c, riskDI.StateProofValidator, func(sr di.ServiceRegistry) app.StateProofValidator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.StateProof.Mode == "http" {
			v, err := stateproof.NewHTTPValidator(stateproof.HTTPConfig{
				BaseURL: cfg.StateProof.URL,
				Timeout: cfg.StateProof.Timeout,
			}, log)
			if err != nil {
				panic("failed to create state proof client: " + err.Error())
			}
			return v
		}

		pool := blockchainDI.GetClientPool(sr)
		v, err := stateproof.NewRPCValidator(proofAccounts(cfg), func(chainID uint64) (stateproof.ProofFetcher, error) {
			proofs, err := pool.Proofs(chainID)
			if err != nil {
				return nil, err
			}
			return proofs, nil
		}, log)
		if err != nil {
			panic("failed to create state proof validator: " + err.Error())
		}
		return v
	})

	di.RegisterToken(c, riskDI.ValidatorRegistry, func(sr di.ServiceRegistry) app.ValidatorRegistry {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		pool := blockchainDI.GetClientPool(sr)

		registry, err := riskEthereum.NewValidatorRegistry(validatorSources(cfg), func(chainID uint64) (ethereum.ContractCaller, error) {
			return pool.Caller(chainID)
		}, log)
		if err != nil {
			panic("failed to create validator registry: " + err.Error())
		}
		return registry
	})

	di.RegisterToken(c, riskDI.BridgeMetrics, func(sr di.ServiceRegistry) app.BridgeMetricsProvider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.Bridge.BaseURL == "" {
			return bridge.Unconfigured{}
		}
		client, err := bridge.NewClient(bridge.Config{
			BaseURL:  cfg.Bridge.BaseURL,
			Timeout:  cfg.Bridge.Timeout,
			RetryMax: cfg.Bridge.RetryMax,
		}, log)
		if err != nil {
			panic("failed to create bridge client: " + err.Error())
		}
		return client
	})

	di.RegisterToken(c, riskDI.FlashLoanScorer, func(sr di.ServiceRegistry) *app.FlashLoanScorer {
		cfg := sr.Get("config").(*config.Config)
		markets := mustCache[string, *domain.MarketCondition](cfg)
		return app.NewFlashLoanScorer(
			riskDI.GetMarketConditions(sr),
			riskDI.GetCollateralProvider(sr),
			flashLoanConfig(cfg),
			markets,
		)
	})

	di.RegisterToken(c, riskDI.StateValidator, func(sr di.ServiceRegistry) *app.StateValidator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		validations := mustCache[uint64, *domain.StateValidationResult](cfg)
		return app.NewStateValidator(
			blockchainDI.GetBlockchainService(sr),
			riskDI.GetStateProofValidator(sr),
			riskDI.GetValidatorRegistry(sr),
			stateValidatorConfig(cfg),
			validations,
			log,
		)
	})

	di.RegisterToken(c, riskDI.BridgeScorer, func(sr di.ServiceRegistry) *app.BridgeScorer {
		cfg := sr.Get("config").(*config.Config)
		return app.NewBridgeScorer(riskDI.GetBridgeMetrics(sr), bridgeConfig(cfg))
	})

	di.RegisterToken(c, riskDI.Assessor, func(sr di.ServiceRegistry) *app.Assessor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		assessor, err := app.NewAssessor(
			riskDI.GetFlashLoanScorer(sr),
			riskDI.GetStateValidator(sr),
			riskDI.GetBridgeScorer(sr),
			compositeWeights(cfg),
			mustCache[domain.AssessmentKey, *domain.RiskAssessmentResult](cfg),
			log,
		)
		if err != nil {
			panic("failed to create risk assessor: " + err.Error())
		}
		return assessor
	})

	return nil
}

// Startup resolves the assessor so wiring errors surface at boot.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	riskDI.GetAssessor(mono.Services())

	mono.Logger().Info(ctx, "risk module started",
		"state_proof_mode", cfg.StateProof.Mode,
		"bridge_configured", cfg.Bridge.BaseURL != "",
		"cache_size", cfg.Risk.CacheSize,
		"cache_ttl", cfg.Risk.CacheTTL)
	return nil
}

func mustCache[K comparable, V any](cfg *config.Config) *cache.Cache[K, V] {
	c, err := cache.New[K, V](cfg.Risk.CacheSize, cfg.Risk.CacheTTL)
	if err != nil {
		panic(fmt.Sprintf("failed to create risk cache: %v", err))
	}
	return c
}

func aaveDeployments(cfg *config.Config) map[uint64]aave.Deployment {
	out := make(map[uint64]aave.Deployment)
	for _, ch := range cfg.Chains {
		pool, hasPool := ch.Address(ch.AavePool)
		data, hasData := ch.Address(ch.AaveDataProvider)
		if !hasPool && !hasData {
			continue
		}
		out[ch.ChainID] = aave.Deployment{Pool: pool, PoolDataProvider: data}
	}
	return out
}

func proofAccounts(cfg *config.Config) map[uint64]common.Address {
	out := make(map[uint64]common.Address)
	for _, ch := range cfg.Chains {
		if addr, ok := ch.Address(ch.ProofAccount); ok {
			out[ch.ChainID] = addr
		}
	}
	return out
}

func validatorSources(cfg *config.Config) map[uint64]riskEthereum.ValidatorSource {
	out := make(map[uint64]riskEthereum.ValidatorSource)
	for _, ch := range cfg.Chains {
		registry, _ := ch.Address(ch.ValidatorRegistry)
		out[ch.ChainID] = riskEthereum.ValidatorSource{Registry: registry, Count: ch.ValidatorCount}
	}
	return out
}

func flashLoanConfig(cfg *config.Config) domain.FlashLoanConfig {
	r := cfg.Risk
	return domain.FlashLoanConfig{
		UtilizationWeight:    r.UtilizationWeight,
		VolatilityWeight:     r.VolatilityWeight,
		SizingWeight:         r.SizingWeight,
		CollateralWeight:     r.CollateralWeight,
		MaxLoanRatio:         r.MaxLoanRatio,
		CollateralMultiplier: r.CollateralMultiplier,
		ViableMaxScore:       r.ViableMaxScore,
		ViableMaxUtilization: r.ViableMaxUtilization,
		WarningThreshold:     r.WarningThreshold,
	}
}

func stateValidatorConfig(cfg *config.Config) app.StateValidatorConfig {
	r := cfg.Risk
	return app.StateValidatorConfig{
		Thresholds: domain.NetworkThresholds{
			MaxValidationLag:  r.MaxValidationLag,
			MinValidatorCount: r.MinValidatorCount,
			MaxBlockTimeMs:    r.MaxBlockTimeMs,
		},
		BlockSampleSize:   r.BlockSampleSize,
		SearchWindow:      r.SearchWindow,
		SearchConcurrency: r.SearchConcurrency,
	}
}

func bridgeConfig(cfg *config.Config) domain.BridgeConfig {
	r := cfg.Risk
	return domain.BridgeConfig{
		LatencyCeilingMs: r.BridgeLatencyCeilingMs,
		MinReliability:   r.BridgeMinReliability,
		MinCoverage:      r.BridgeMinCoverage,
		LiquidityScale:   r.BridgeLiquidityScale,
		RecommendAbove:   r.BridgeRecommendAbove,
	}
}

func compositeWeights(cfg *config.Config) domain.CompositeWeights {
	return domain.CompositeWeights{
		FlashLoan:    cfg.Risk.FlashLoanWeight,
		NetworkState: cfg.Risk.NetworkStateWeight,
		CrossChain:   cfg.Risk.CrossChainWeight,
	}
}
