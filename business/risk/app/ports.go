// Package app contains the risk scoring services and the ports they consume.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	blockchainDomain "github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/business/risk/domain"
)

// ReserveDataProvider reads lending-pool reserve state for a token.
type ReserveDataProvider interface {
	ReserveData(ctx context.Context, chainID uint64, token common.Address) (*domain.ReserveData, error)
}

// MarketStatsProvider supplies off-chain market statistics for a token.
type MarketStatsProvider interface {
	MarketStats(ctx context.Context, chainID uint64, token common.Address) (*domain.MarketStats, error)
}

// MarketConditionProvider returns the market condition of a token.
type MarketConditionProvider interface {
	MarketCondition(ctx context.Context, chainID uint64, token common.Address) (*domain.MarketCondition, error)
}

// CollateralProvider returns a user's aggregate collateral value in USD.
type CollateralProvider interface {
	CollateralUSD(ctx context.Context, chainID uint64, user common.Address) (decimal.Decimal, error)
}

// ChainReader reads block headers.
type ChainReader interface {
	BlockNumber(ctx context.Context, chainID uint64) (uint64, error)
	Block(ctx context.Context, chainID, number uint64) (*blockchainDomain.Block, error)
}

// StateProofValidator checks a block's state root.
type StateProofValidator interface {
	ValidateState(ctx context.Context, chainID, blockNumber uint64, stateRoot common.Hash) (*domain.StateProof, error)
}

// ValidatorRegistry reports the active validator count of a chain.
type ValidatorRegistry interface {
	ValidatorCount(ctx context.Context, chainID uint64) (uint64, error)
}

// BridgeMetricsProvider reports a bridge route's latency, reliability and
// available liquidity.
type BridgeMetricsProvider interface {
	BridgeMetrics(ctx context.Context, sourceChainID, targetChainID uint64, token common.Address) (*domain.CrossChainRiskMetrics, error)
}
