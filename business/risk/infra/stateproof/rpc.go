// Package stateproof validates block state roots, either by verifying
// eth_getProof account proofs locally or by asking a proof service.
package stateproof

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbguard/business/risk/app"
	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/circuitbreaker"
	"github.com/fd1az/arbguard/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/risk/infra/stateproof"
	meterName  = "github.com/fd1az/arbguard/business/risk/infra/stateproof"
)

var _ app.StateProofValidator = (*RPCValidator)(nil)

// ProofFetcher returns the Merkle proof of an account at a block.
type ProofFetcher interface {
	GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error)
}

// ProofResolver returns the proof fetcher for a chain.
type ProofResolver func(chainID uint64) (ProofFetcher, error)

// Node errors that mean the state at a block is not (or no longer)
// provable. They are a negative verdict, not a failure.
var unprovable = []string{
	"missing trie node",
	"historical state",
	"header not found",
	"state is not available",
}

type validatorMetrics struct {
	verdicts metric.Int64Counter
}

// RPCValidator checks a state root by fetching the proof of a well-known
// account at the block and verifying it against the root.
type RPCValidator struct {
	accounts map[uint64]common.Address
	proofs   ProofResolver
	now      func() time.Time

	logger  logger.LoggerInterface
	cb      *circuitbreaker.CircuitBreaker[*gethclient.AccountResult]
	tracer  trace.Tracer
	metrics *validatorMetrics
}

// NewRPCValidator creates a validator anchored on one account per chain.
func NewRPCValidator(accounts map[uint64]common.Address, proofs ProofResolver, log logger.LoggerInterface) (*RPCValidator, error) {
	v := &RPCValidator{
		accounts: accounts,
		proofs:   proofs,
		now:      time.Now,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("stateproof-rpc")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	// An unprovable block is an answer, not a fault.
	cbCfg.IsSuccessful = func(err error) bool {
		return err == nil || isUnprovable(err)
	}
	v.cb = circuitbreaker.New[*gethclient.AccountResult](cbCfg)

	metrics, err := newValidatorMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	v.metrics = metrics
	return v, nil
}

func newValidatorMetrics() (*validatorMetrics, error) {
	verdicts, err := otel.Meter(meterName).Int64Counter(
		"state_proof_verdicts_total",
		metric.WithDescription("State root validations by verdict"),
	)
	if err != nil {
		return nil, err
	}
	return &validatorMetrics{verdicts: verdicts}, nil
}

// ValidateState implements app.StateProofValidator.
func (v *RPCValidator) ValidateState(ctx context.Context, chainID, blockNumber uint64, stateRoot common.Hash) (*domain.StateProof, error) {
	ctx, span := v.tracer.Start(ctx, "stateproof.rpc.validate",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.Int64("block", int64(blockNumber)),
		))
	defer span.End()

	account, ok := v.accounts[chainID]
	if !ok {
		err := apperror.Configuration(apperror.CodeChainNotConfigured,
			fmt.Sprintf("no proof account for chain %d", chainID))
		span.RecordError(err)
		return nil, err
	}
	fetcher, err := v.proofs(chainID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result, err := v.cb.Execute(func() (*gethclient.AccountResult, error) {
		return fetcher.GetProof(ctx, account, nil, new(big.Int).SetUint64(blockNumber))
	})

	valid := false
	switch {
	case err != nil && isUnprovable(err):
		v.logger.Debug(ctx, "state not provable", "chain_id", chainID, "block", blockNumber, "error", err)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "eth_getProof failed")
		return nil, apperror.New(apperror.CodeStateProofFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d block %d", chainID, blockNumber)))
	default:
		valid = VerifyAccountProof(stateRoot, account, result.AccountProof) == nil
	}

	span.SetAttributes(attribute.Bool("valid", valid))
	v.metrics.verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", "rpc"),
		attribute.Bool("valid", valid),
	))

	return &domain.StateProof{IsValid: valid, Timestamp: v.now()}, nil
}

// VerifyAccountProof checks that proof links account to stateRoot.
func VerifyAccountProof(stateRoot common.Hash, account common.Address, proof []string) error {
	if len(proof) == 0 {
		return fmt.Errorf("empty proof")
	}
	db := memorydb.New()
	for i, enc := range proof {
		node, err := hexutil.Decode(enc)
		if err != nil {
			return fmt.Errorf("proof node %d: %w", i, err)
		}
		if err := db.Put(crypto.Keccak256(node), node); err != nil {
			return err
		}
	}
	value, err := trie.VerifyProof(stateRoot, crypto.Keccak256(account.Bytes()), db)
	if err != nil {
		return err
	}
	if len(value) == 0 {
		return fmt.Errorf("account %s absent from state", account.Hex())
	}
	return nil
}

func isUnprovable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range unprovable {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
