// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/arbguard/business/blockchain/domain"
)

// ChainClient is the subset of an RPC client the service needs.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ChainClients resolves the client for a chain.
type ChainClients interface {
	// Reader fails with CHAIN_NOT_CONFIGURED for unknown chains.
	Reader(chainID uint64) (ChainClient, error)
	ChainIDs() []uint64
}

// GasOracle defines the interface for gas price information.
type GasOracle interface {
	GasPrice(ctx context.Context, chainID uint64) (*domain.GasPrice, error)
}
