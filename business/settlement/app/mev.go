package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/settlement/app"
	meterName  = "github.com/fd1az/arbguard/business/settlement/app"
)

var errBlockNotReached = errors.New("target block not reached")

type mevMetrics struct {
	assessments metric.Int64Counter
	scores      metric.Float64Histogram
	protected   metric.Int64Counter
}

// MEVAssessor scores swaps for MEV exposure and hands protected
// transactions to a private relay.
type MEVAssessor struct {
	liquidity LiquidityAggregator
	heads     HeadReader
	protector MEVProtector
	cfg       domain.MEVConfig
	poll      time.Duration
	logger    logger.LoggerInterface

	tracer  trace.Tracer
	metrics *mevMetrics
}

// NewMEVAssessor creates an MEVAssessor. poll is how often the chain head
// is read while waiting out a block delay.
func NewMEVAssessor(
	liquidity LiquidityAggregator,
	heads HeadReader,
	protector MEVProtector,
	cfg domain.MEVConfig,
	poll time.Duration,
	log logger.LoggerInterface,
) (*MEVAssessor, error) {
	m := &MEVAssessor{
		liquidity: liquidity,
		heads:     heads,
		protector: protector,
		cfg:       cfg,
		poll:      poll,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return m, nil
}

func (m *MEVAssessor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	m.metrics = &mevMetrics{}

	m.metrics.assessments, err = meter.Int64Counter(
		"mev_assessments_total",
		metric.WithDescription("MEV risk assessments computed"),
		metric.WithUnit("{assessment}"),
	)
	if err != nil {
		return err
	}

	m.metrics.scores, err = meter.Float64Histogram(
		"mev_risk_score",
		metric.WithDescription("Distribution of MEV risk scores"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 40, 50, 60, 70, 80, 90, 100),
	)
	if err != nil {
		return err
	}

	m.metrics.protected, err = meter.Int64Counter(
		"mev_protected_transactions_total",
		metric.WithDescription("Transactions submitted to a private relay, by outcome"),
		metric.WithUnit("{transaction}"),
	)
	return err
}

// Config returns the scoring calibration.
func (m *MEVAssessor) Config() domain.MEVConfig {
	return m.cfg
}

// Assess scores swapping amount of tokenIn for tokenOut on chainID.
func (m *MEVAssessor) Assess(ctx context.Context, chainID uint64, tokenIn, tokenOut common.Address, amount *big.Int) (*domain.MEVRiskAssessment, error) {
	ctx, span := m.tracer.Start(ctx, "mev.assess",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
		))
	defer span.End()

	if amount == nil || amount.Sign() <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidInput, "amount must be greater than zero")
	}

	liq, err := m.liquidity.AggregatedLiquidity(ctx, chainID, tokenIn, tokenOut, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "liquidity fetch failed")
		return nil, err
	}

	a := domain.ScoreMEV(m.cfg, chainID, amount, liq)

	m.metrics.assessments.Add(ctx, 1)
	m.metrics.scores.Record(ctx, a.RiskScore)
	span.SetAttributes(
		attribute.Float64("risk_score", a.RiskScore),
		attribute.Int("strategies", len(a.ProtectionStrategies)),
	)

	m.logger.Debug(ctx, "mev risk assessed",
		"chain_id", chainID,
		"score", a.RiskScore,
		"pools", liq.PoolCount(),
		"price_impact", liq.PriceImpact,
		"delay", a.RecommendedBlockDelay)

	return a, nil
}

// Protect sends tx through the private relay with the strategies of a.
// When time-delay is selected it first waits the recommended number of
// blocks. Relay failures are returned unmodified.
func (m *MEVAssessor) Protect(ctx context.Context, chainID uint64, tx *types.Transaction, a *domain.MEVRiskAssessment) (*domain.ProtectedTransaction, error) {
	ctx, span := m.tracer.Start(ctx, "mev.protect",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.String("tx_hash", tx.Hash().Hex()),
		))
	defer span.End()

	strategies := withPrivateTx(a.ProtectionStrategies)
	delay := uint64(0)
	if a.Has(domain.ProtectTimeDelay) {
		delay = a.RecommendedBlockDelay
	}

	if delay > 0 {
		if err := m.waitBlocks(ctx, chainID, delay); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "block delay")
			return nil, err
		}
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, apperror.New(apperror.CodeMEVProtectionFailed, apperror.WithCause(err))
	}

	p, err := m.protector.Protect(ctx, chainID, raw, strategies, delay)
	if err != nil {
		m.metrics.protected.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay failed")
		return nil, err
	}

	m.metrics.protected.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "submitted")))
	m.logger.Info(ctx, "transaction sent to private relay",
		"chain_id", chainID,
		"tx_hash", p.Hash.Hex(),
		"relay", p.Relay,
		"delay", delay)

	return p, nil
}

// waitBlocks returns once the head is blocks past the head at call time.
func (m *MEVAssessor) waitBlocks(ctx context.Context, chainID, blocks uint64) error {
	start, err := m.heads.BlockNumber(ctx, chainID)
	if err != nil {
		return err
	}
	target := start + blocks

	_, err = backoff.Retry(ctx, func() (uint64, error) {
		head, err := m.heads.BlockNumber(ctx, chainID)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		if head < target {
			return 0, errBlockNotReached
		}
		return head, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(m.poll)),
		backoff.WithMaxElapsedTime(0),
	)
	if errors.Is(err, errBlockNotReached) || ctx.Err() != nil {
		return apperror.New(apperror.CodeExecutionDelayExceeds,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d waiting for block %d", chainID, target)))
	}
	return err
}

// withPrivateTx guarantees a relay submission carries private-tx even when
// the score alone did not select it.
func withPrivateTx(s []domain.ProtectionStrategy) []domain.ProtectionStrategy {
	for _, p := range s {
		if p == domain.ProtectPrivateTx {
			return s
		}
	}
	return append([]domain.ProtectionStrategy{domain.ProtectPrivateTx}, s...)
}
