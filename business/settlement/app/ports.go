// Package app contains the MEV assessor and the settlement engine.
package app

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	blockchainDomain "github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/business/settlement/domain"
)

// LiquidityAggregator reports the venues able to fill a swap of amount.
type LiquidityAggregator interface {
	AggregatedLiquidity(ctx context.Context, chainID uint64, tokenIn, tokenOut common.Address, amount *big.Int) (*domain.AggregatedLiquidity, error)
}

// HeadReader returns the current block of a chain.
type HeadReader interface {
	BlockNumber(ctx context.Context, chainID uint64) (uint64, error)
}

// ChainGateway is what the executors need from a chain.
type ChainGateway interface {
	HeadReader
	GasPrice(ctx context.Context, chainID uint64) (*blockchainDomain.GasPrice, error)
	SendTransaction(ctx context.Context, chainID uint64, tx *types.Transaction) error
	WaitForConfirmations(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64, poll time.Duration) (*types.Receipt, error)
}

// SwapRequest describes one swap transaction to build.
type SwapRequest struct {
	ChainID   uint64
	TokenIn   common.Address
	TokenOut  common.Address
	Amount    *big.Int
	Recipient common.Address
}

// TransactionBuilder produces signed swap transactions. Consecutive calls
// for the same chain return consecutive nonces.
type TransactionBuilder interface {
	BuildSwap(ctx context.Context, req SwapRequest) (*types.Transaction, error)
}

// MEVProtector submits a raw transaction to a private relay.
type MEVProtector interface {
	Protect(ctx context.Context, chainID uint64, rawTx []byte, strategies []domain.ProtectionStrategy, blockDelay uint64) (*domain.ProtectedTransaction, error)
}

// TokenDecimals resolves the decimals of token on chainID.
type TokenDecimals func(chainID uint64, token common.Address) uint8
