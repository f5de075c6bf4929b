// Package ethereum reads chain-level risk inputs from EVM contracts.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbguard/business/risk/app"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/circuitbreaker"
	"github.com/fd1az/arbguard/internal/logger"
)

const tracerName = "github.com/fd1az/arbguard/business/risk/infra/ethereum"

// ValidatorRegistryABI is the subset of a validator registry used here.
const ValidatorRegistryABI = `[
	{
		"inputs": [],
		"name": "getValidatorCount",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var _ app.ValidatorRegistry = (*ValidatorRegistry)(nil)

// CallerResolver returns the contract caller for a chain.
type CallerResolver func(chainID uint64) (ethereum.ContractCaller, error)

// ValidatorSource says where a chain's validator count comes from: a
// registry contract, or a fixed count for chains without one.
type ValidatorSource struct {
	Registry common.Address
	Count    uint64
}

// ValidatorRegistry reports validator counts per chain.
type ValidatorRegistry struct {
	sources map[uint64]ValidatorSource
	callers CallerResolver
	abi     abi.ABI

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]
	tracer trace.Tracer
}

// NewValidatorRegistry creates a registry reader.
func NewValidatorRegistry(sources map[uint64]ValidatorSource, callers CallerResolver, log logger.LoggerInterface) (*ValidatorRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(ValidatorRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse validator registry ABI: %w", err)
	}

	r := &ValidatorRegistry{
		sources: sources,
		callers: callers,
		abi:     parsed,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("validator-registry")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	r.cb = circuitbreaker.New[[]byte](cbCfg)
	return r, nil
}

// ValidatorCount implements app.ValidatorRegistry.
func (r *ValidatorRegistry) ValidatorCount(ctx context.Context, chainID uint64) (uint64, error) {
	ctx, span := r.tracer.Start(ctx, "ethereum.validator_count",
		trace.WithAttributes(attribute.Int64("chain_id", int64(chainID))))
	defer span.End()

	src, ok := r.sources[chainID]
	if !ok || (src.Registry == (common.Address{}) && src.Count == 0) {
		err := apperror.Configuration(apperror.CodeChainNotConfigured,
			fmt.Sprintf("no validator source for chain %d", chainID))
		span.RecordError(err)
		return 0, err
	}
	if src.Registry == (common.Address{}) {
		span.SetAttributes(attribute.Int64("validators", int64(src.Count)))
		return src.Count, nil
	}

	count, err := r.query(ctx, chainID, src.Registry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "getValidatorCount failed")
		return 0, apperror.New(apperror.CodeValidatorQueryFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d registry %s", chainID, src.Registry.Hex())))
	}

	span.SetAttributes(attribute.Int64("validators", int64(count)))
	return count, nil
}

func (r *ValidatorRegistry) query(ctx context.Context, chainID uint64, registry common.Address) (uint64, error) {
	caller, err := r.callers(chainID)
	if err != nil {
		return 0, err
	}
	data, err := r.abi.Pack("getValidatorCount")
	if err != nil {
		return 0, err
	}

	raw, err := r.cb.Execute(func() ([]byte, error) {
		return caller.CallContract(ctx, ethereum.CallMsg{To: &registry, Data: data}, nil)
	})
	if err != nil {
		return 0, err
	}

	out, err := r.abi.Unpack("getValidatorCount", raw)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack: %w", err)
	}
	n := out[0].(*big.Int)
	if !n.IsUint64() {
		return 0, fmt.Errorf("validator count %s overflows", n)
	}
	return n.Uint64(), nil
}
