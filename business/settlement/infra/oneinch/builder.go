package oneinch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/arbguard/business/settlement/app"
	"github.com/fd1az/arbguard/business/settlement/infra/ethereum"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/circuitbreaker"
	"github.com/fd1az/arbguard/internal/logger"
)

const (
	// DefaultGasLimit is used when the API returns no estimate.
	DefaultGasLimit uint64 = 300000

	gasBufferPercent = 25
)

var _ app.TransactionBuilder = (*Builder)(nil)

// Signer signs router calls for one account.
type Signer interface {
	Address() common.Address
	Sign(ctx context.Context, chainID uint64, call ethereum.Call) (*types.Transaction, error)
}

type builderMetrics struct {
	builds metric.Int64Counter
}

// Builder turns swap requests into signed router transactions.
type Builder struct {
	client *Client
	signer Signer
	logger logger.LoggerInterface

	cb      *circuitbreaker.CircuitBreaker[*SwapResponse]
	metrics *builderMetrics
}

// NewBuilder creates a Builder. A nil signer yields a builder whose every
// call fails with CONFIGURATION_ERROR, so read-only deployments still start.
func NewBuilder(client *Client, signer Signer, log logger.LoggerInterface) (*Builder, error) {
	b := &Builder{
		client: client,
		signer: signer,
		logger: log,
	}

	cbCfg := circuitbreaker.DefaultConfig("oneinch")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	cbCfg.IsSuccessful = isClientError
	b.cb = circuitbreaker.New[*SwapResponse](cbCfg)

	meter := otel.Meter(meterName)
	builds, err := meter.Int64Counter("oneinch_swaps_built_total",
		metric.WithDescription("Swap transactions built, by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	b.metrics = &builderMetrics{builds: builds}

	return b, nil
}

// BuildSwap fetches router calldata and signs it with the next nonce.
func (b *Builder) BuildSwap(ctx context.Context, req app.SwapRequest) (*types.Transaction, error) {
	if b.signer == nil {
		return nil, apperror.Configuration(apperror.CodeConfigurationError, "settlement.signer_key is not set")
	}

	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = b.signer.Address()
	}

	resp, err := b.cb.Execute(func() (*SwapResponse, error) {
		return b.client.Swap(ctx, SwapParams{
			ChainID:  req.ChainID,
			Src:      req.TokenIn,
			Dst:      req.TokenOut,
			Amount:   req.Amount,
			From:     b.signer.Address(),
			Receiver: recipient,
		})
	})
	if err != nil {
		b.record(ctx, req.ChainID, "error")
		return nil, err
	}

	to, data, value, gasPrice, err := resp.Tx.Decode()
	if err != nil {
		b.record(ctx, req.ChainID, "error")
		return nil, apperror.New(apperror.CodeSwapBuildFailed, apperror.WithCause(err))
	}

	tx, err := b.signer.Sign(ctx, req.ChainID, ethereum.Call{
		To:       to,
		Data:     data,
		Value:    value,
		Gas:      withBuffer(resp.Tx.Gas),
		GasPrice: gasPrice,
	})
	if err != nil {
		b.record(ctx, req.ChainID, "error")
		return nil, err
	}

	b.record(ctx, req.ChainID, "ok")
	b.logger.Info(ctx, "swap transaction built",
		"chain_id", req.ChainID,
		"tx_hash", tx.Hash().Hex(),
		"amount", req.Amount.String(),
		"min_out", resp.DstAmount)

	return tx, nil
}

func (b *Builder) record(ctx context.Context, chainID uint64, outcome string) {
	b.metrics.builds.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("chain_id", int64(chainID)),
		attribute.String("outcome", outcome),
	))
}

// isClientError reports API rejections of the request itself, such as
// insufficient liquidity, which say nothing about the API's health.
func isClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode < 500
}

// withBuffer pads the API gas estimate, falling back to DefaultGasLimit.
func withBuffer(gas uint64) uint64 {
	if gas == 0 {
		return DefaultGasLimit
	}
	return gas * (100 + gasBufferPercent) / 100
}
