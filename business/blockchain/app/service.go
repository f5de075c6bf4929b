package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

const tracerName = "github.com/fd1az/arbguard/business/blockchain/app"

var errPending = errors.New("transaction not yet confirmed")

// BlockchainService is the multi-chain gateway used by the risk and
// settlement contexts.
type BlockchainService struct {
	clients ChainClients
	gas     GasOracle
	logger  logger.LoggerInterface
	tracer  trace.Tracer
}

// NewBlockchainService creates a new BlockchainService.
func NewBlockchainService(clients ChainClients, gas GasOracle, log logger.LoggerInterface) *BlockchainService {
	return &BlockchainService{
		clients: clients,
		gas:     gas,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}
}

// ChainIDs lists the configured chains.
func (s *BlockchainService) ChainIDs() []uint64 {
	return s.clients.ChainIDs()
}

// BlockNumber returns the chain head.
func (s *BlockchainService) BlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	c, err := s.clients.Reader(chainID)
	if err != nil {
		return 0, err
	}
	n, err := c.BlockNumber(ctx)
	if err != nil {
		return 0, apperror.External(apperror.CodeRPCError, fmt.Sprintf("chain %d: block number", chainID), err)
	}
	return n, nil
}

// Block returns the header of block number.
func (s *BlockchainService) Block(ctx context.Context, chainID, number uint64) (*domain.Block, error) {
	c, err := s.clients.Reader(chainID)
	if err != nil {
		return nil, err
	}
	h, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, apperror.NotFound(apperror.CodeBlockNotFound, fmt.Sprintf("chain %d block %d", chainID, number))
		}
		return nil, apperror.External(apperror.CodeRPCError, fmt.Sprintf("chain %d: header %d", chainID, number), err)
	}
	return domain.BlockFromHeader(chainID, h), nil
}

// GasPrice returns the cached suggested gas price.
func (s *BlockchainService) GasPrice(ctx context.Context, chainID uint64) (*domain.GasPrice, error) {
	return s.gas.GasPrice(ctx, chainID)
}

// PendingNonceAt returns the next nonce of account including pending
// transactions.
func (s *BlockchainService) PendingNonceAt(ctx context.Context, chainID uint64, account common.Address) (uint64, error) {
	c, err := s.clients.Reader(chainID)
	if err != nil {
		return 0, err
	}
	n, err := c.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, apperror.External(apperror.CodeRPCError, fmt.Sprintf("chain %d: nonce of %s", chainID, account.Hex()), err)
	}
	return n, nil
}

// SendTransaction broadcasts a signed transaction.
func (s *BlockchainService) SendTransaction(ctx context.Context, chainID uint64, tx *types.Transaction) error {
	ctx, span := s.tracer.Start(ctx, "blockchain.send_transaction",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.String("tx_hash", tx.Hash().Hex()),
		))
	defer span.End()

	c, err := s.clients.Reader(chainID)
	if err != nil {
		return err
	}
	if err := c.SendTransaction(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return apperror.External(apperror.CodeTransactionFailed, fmt.Sprintf("chain %d tx %s", chainID, tx.Hash().Hex()), err)
	}

	s.logger.Info(ctx, "transaction broadcast", "chain_id", chainID, "tx_hash", tx.Hash().Hex(), "nonce", tx.Nonce())
	return nil
}

// TransactionReceipt returns the receipt, or nil when the transaction is not
// yet mined.
func (s *BlockchainService) TransactionReceipt(ctx context.Context, chainID uint64, hash common.Hash) (*types.Receipt, error) {
	c, err := s.clients.Reader(chainID)
	if err != nil {
		return nil, err
	}
	r, err := c.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.External(apperror.CodeRPCError, fmt.Sprintf("chain %d receipt %s", chainID, hash.Hex()), err)
	}
	return r, nil
}

// WaitForConfirmations polls until hash has the requested confirmations,
// the transaction reverts or ctx ends.
func (s *BlockchainService) WaitForConfirmations(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64, poll time.Duration) (*types.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "blockchain.wait_confirmations",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.String("tx_hash", hash.Hex()),
			attribute.Int64("confirmations", int64(confirmations)),
		))
	defer span.End()

	if confirmations == 0 {
		confirmations = 1
	}

	receipt, err := backoff.Retry(ctx, func() (*types.Receipt, error) {
		r, err := s.TransactionReceipt(ctx, chainID, hash)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, errPending
		}
		if r.Status != types.ReceiptStatusSuccessful {
			return nil, backoff.Permanent(apperror.New(apperror.CodeTransactionReverted,
				apperror.WithContext(fmt.Sprintf("chain %d tx %s", chainID, hash.Hex()))))
		}

		head, err := s.BlockNumber(ctx, chainID)
		if err != nil {
			return nil, err
		}
		if domain.Confirmations(head, r.BlockNumber.Uint64()) < confirmations {
			return nil, errPending
		}
		return r, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(poll)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "not confirmed")
		if ctx.Err() != nil || errors.Is(err, errPending) {
			return nil, apperror.New(apperror.CodeConfirmationTimeout,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("chain %d tx %s", chainID, hash.Hex())))
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int64("block", receipt.BlockNumber.Int64()))
	return receipt, nil
}

// Ping reports the head of chainID, used by health checks.
func (s *BlockchainService) Ping(ctx context.Context, chainID uint64) (uint64, error) {
	return s.BlockNumber(ctx, chainID)
}
