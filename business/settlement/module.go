// Package settlement implements the settlement bounded context: MEV
// assessment and protection, settlement validation and the four execution
// strategies.
package settlement

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	blockchainDI "github.com/fd1az/arbguard/business/blockchain/di"
	blockchainDomain "github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/business/settlement/app"
	settlementDI "github.com/fd1az/arbguard/business/settlement/di"
	"github.com/fd1az/arbguard/business/settlement/domain"
	settlementEthereum "github.com/fd1az/arbguard/business/settlement/infra/ethereum"
	"github.com/fd1az/arbguard/business/settlement/infra/oneinch"
	"github.com/fd1az/arbguard/business/settlement/infra/relay"
	"github.com/fd1az/arbguard/business/settlement/infra/uniswap"
	"github.com/fd1az/arbguard/internal/asset"
	"github.com/fd1az/arbguard/internal/config"
	"github.com/fd1az/arbguard/internal/di"
	"github.com/fd1az/arbguard/internal/logger"
	"github.com/fd1az/arbguard/internal/monolith"
)

const defaultDecimals = 18

// Module implements the settlement bounded context.
type Module struct{}

// RegisterServices registers all settlement services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, settlementDI.Liquidity, func(sr di.ServiceRegistry) app.LiquidityAggregator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)
		pool := blockchainDI.GetClientPool(sr)

		aggregator, err := uniswap.NewAggregator(uniswapDeployments(cfg), func(chainID uint64) (ethereum.ContractCaller, error) {
			return pool.Caller(chainID)
		}, registry, log)
		if err != nil {
			panic("failed to create uniswap aggregator: " + err.Error())
		}
		return aggregator
	})

	di.RegisterToken(c, settlementDI.Builder, func(sr di.ServiceRegistry) app.TransactionBuilder {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		client, err := oneinch.NewClient(oneinch.ClientConfig{
			BaseURL:   cfg.OneInch.BaseURL,
			APIKey:    cfg.OneInch.APIKey,
			Timeout:   cfg.OneInch.Timeout,
			RateLimit: cfg.OneInch.RateLimit,
			Burst:     cfg.OneInch.Burst,
			Slippage:  cfg.OneInch.Slippage,
		}, log)
		if err != nil {
			panic("failed to create 1inch client: " + err.Error())
		}

		var signer oneinch.Signer
		if cfg.Settlement.SignerKey != "" {
			s, err := settlementEthereum.NewSigner(cfg.Settlement.SignerKey, blockchainDI.GetBlockchainService(sr), log)
			if err != nil {
				panic("failed to create settlement signer: " + err.Error())
			}
			signer = s
		}

		builder, err := oneinch.NewBuilder(client, signer, log)
		if err != nil {
			panic("failed to create swap builder: " + err.Error())
		}
		return builder
	})

	di.RegisterToken(c, settlementDI.MEVProtector, func(sr di.ServiceRegistry) app.MEVProtector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return relay.NewClient(relay.Config{
			URLs:     relayURLs(cfg),
			Timeout:  cfg.Relay.Timeout,
			RetryMax: cfg.Relay.RetryMax,
			Fast:     cfg.Relay.Fast,
		}, log)
	})

	di.RegisterToken(c, settlementDI.MEVAssessor, func(sr di.ServiceRegistry) *app.MEVAssessor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		assessor, err := app.NewMEVAssessor(
			settlementDI.GetLiquidity(sr),
			blockchainDI.GetBlockchainService(sr),
			settlementDI.GetMEVProtector(sr),
			mevConfig(cfg),
			cfg.Settlement.ConfirmPollInterval,
			log,
		)
		if err != nil {
			panic("failed to create mev assessor: " + err.Error())
		}
		return assessor
	})

	di.RegisterToken(c, settlementDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)

		rules, err := settlementRules(cfg)
		if err != nil {
			panic("invalid settlement rules: " + err.Error())
		}

		engine, err := app.NewEngine(
			settlementDI.GetLiquidity(sr),
			settlementDI.GetMEVAssessor(sr),
			blockchainDI.GetBlockchainService(sr),
			settlementDI.GetBuilder(sr),
			tokenDecimals(registry),
			rules,
			app.ExecutorConfig{
				ConfirmPoll:   cfg.Settlement.ConfirmPollInterval,
				SubmitRetries: cfg.Settlement.SubmitRetries,
			},
			log,
		)
		if err != nil {
			panic("failed to create settlement engine: " + err.Error())
		}
		return engine
	})

	return nil
}

// Startup resolves the engine so wiring errors surface at boot.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	engine := settlementDI.GetEngine(mono.Services())
	rules := engine.Rules()

	mono.Logger().Info(ctx, "settlement module started",
		"uniswap_chains", len(uniswapDeployments(cfg)),
		"relay_chains", len(relayURLs(cfg)),
		"signer_configured", cfg.Settlement.SignerKey != "",
		"max_gas_price_wei", rules.MaxGasPrice.String(),
		"max_execution_delay", rules.MaxExecutionDelay)
	return nil
}

func uniswapDeployments(cfg *config.Config) map[uint64]uniswap.Deployment {
	out := make(map[uint64]uniswap.Deployment)
	for _, ch := range cfg.Chains {
		factory, hasFactory := ch.Address(ch.UniswapFactory)
		quoter, hasQuoter := ch.Address(ch.UniswapQuoter)
		if !hasFactory || !hasQuoter {
			continue
		}
		out[ch.ChainID] = uniswap.Deployment{Factory: factory, Quoter: quoter}
	}
	return out
}

func relayURLs(cfg *config.Config) map[uint64]string {
	out := make(map[uint64]string)
	for _, ch := range cfg.Chains {
		if ch.RelayURL != "" {
			out[ch.ChainID] = ch.RelayURL
		}
	}
	return out
}

func tokenDecimals(registry *asset.Registry) app.TokenDecimals {
	return func(chainID uint64, token common.Address) uint8 {
		if a, ok := registry.Resolve(chainID, token); ok {
			return a.Decimals()
		}
		return defaultDecimals
	}
}

func mevConfig(cfg *config.Config) domain.MEVConfig {
	return domain.MEVConfig{
		MinBlockDelay:    cfg.MEV.MinBlockDelay,
		MaxBlockDelay:    cfg.MEV.MaxBlockDelay,
		MaxPriceImpact:   cfg.MEV.MaxPriceImpact,
		HighGasThreshold: cfg.MEV.HighGasThreshold,
		BaselineGas:      cfg.MEV.BaselineGas,
	}
}

// settlementRules maps config onto the rules. Strategy cutoffs and the MEV
// warning level are not configurable.
func settlementRules(cfg *config.Config) (domain.SettlementRules, error) {
	s := cfg.Settlement
	minLiquidity, err := s.MinLiquidityDecimal()
	if err != nil {
		return domain.SettlementRules{}, err
	}

	rules := domain.DefaultSettlementRules()
	rules.MaxSlippage = s.MaxSlippage
	rules.MinLiquidity = minLiquidity.Truncate(0).BigInt()
	rules.MaxGasPrice = blockchainDomain.GweiToWei(s.MaxGasPriceGwei)
	rules.MinConfirmations = s.MinConfirmations
	rules.MaxExecutionDelay = s.MaxExecutionDelay
	rules.PriceImpactThreshold = s.PriceImpactThreshold
	rules.SplitInterval = s.SplitInterval
	rules.BatchSize = s.BatchSize
	rules.LargeAmountUnits = s.LargeAmountUnits
	return rules, nil
}
