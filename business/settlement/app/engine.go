package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

const defaultDecimals = 18

// ExecutorConfig tunes transaction submission and confirmation.
type ExecutorConfig struct {
	ConfirmPoll   time.Duration
	SubmitRetries uint
}

type engineMetrics struct {
	validations metric.Int64Counter
	executions  metric.Int64Counter
	duration    metric.Float64Histogram
}

// Engine validates settlements, picks their execution strategy and runs
// them against a chain.
type Engine struct {
	liquidity LiquidityAggregator
	mev       *MEVAssessor
	gateway   ChainGateway
	builder   TransactionBuilder
	decimals  TokenDecimals
	rules     domain.SettlementRules
	exec      ExecutorConfig
	logger    logger.LoggerInterface

	// sleep waits between split parts.
	sleep func(ctx context.Context, d time.Duration) error

	tracer  trace.Tracer
	metrics *engineMetrics
}

// NewEngine creates an Engine. A nil decimals resolver treats every token
// as 18 decimals.
func NewEngine(
	liquidity LiquidityAggregator,
	mev *MEVAssessor,
	gateway ChainGateway,
	builder TransactionBuilder,
	decimals TokenDecimals,
	rules domain.SettlementRules,
	exec ExecutorConfig,
	log logger.LoggerInterface,
) (*Engine, error) {
	if decimals == nil {
		decimals = func(uint64, common.Address) uint8 { return defaultDecimals }
	}
	e := &Engine{
		liquidity: liquidity,
		mev:       mev,
		gateway:   gateway,
		builder:   builder,
		decimals:  decimals,
		rules:     rules,
		exec:      exec,
		logger:    log,
		sleep:     sleepCtx,
		tracer:    otel.Tracer(tracerName),
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &engineMetrics{}

	e.metrics.validations, err = meter.Int64Counter(
		"settlement_validations_total",
		metric.WithDescription("Settlement validations, by verdict"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return err
	}

	e.metrics.executions, err = meter.Int64Counter(
		"settlement_executions_total",
		metric.WithDescription("Settlement executions, by strategy and outcome"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return err
	}

	e.metrics.duration, err = meter.Float64Histogram(
		"settlement_execution_duration_seconds",
		metric.WithDescription("Time from execution start to final confirmation"),
		metric.WithUnit("s"),
	)
	return err
}

// Rules returns the active settlement rules.
func (e *Engine) Rules() domain.SettlementRules {
	return e.rules
}

// ValidateSettlement checks a prospective settlement. Liquidity and MEV
// exposure are fetched concurrently; either failing fails the call.
func (e *Engine) ValidateSettlement(ctx context.Context, chainID uint64, sourceToken, targetToken common.Address, amount *big.Int, user common.Address) (*domain.SettlementValidation, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.validate",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.String("source_token", sourceToken.Hex()),
			attribute.String("target_token", targetToken.Hex()),
			attribute.String("user", user.Hex()),
		))
	defer span.End()

	if amount == nil || amount.Sign() <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidInput, "amount must be greater than zero")
	}

	var (
		liq *domain.AggregatedLiquidity
		mev *domain.MEVRiskAssessment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		liq, err = e.liquidity.AggregatedLiquidity(gctx, chainID, sourceToken, targetToken, amount)
		return err
	})
	g.Go(func() error {
		var err error
		mev, err = e.mev.Assess(gctx, chainID, sourceToken, targetToken, amount)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation inputs")
		return nil, err
	}

	v := domain.ValidateSettlement(e.rules, liq, mev)

	e.metrics.validations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", v.IsValid)))
	span.SetAttributes(
		attribute.Bool("valid", v.IsValid),
		attribute.Float64("expected_slippage", v.ExpectedSlippage),
	)

	return v, nil
}

// DetermineSettlementStrategy picks the execution strategy for amount of
// sourceToken given its validation.
func (e *Engine) DetermineSettlementStrategy(chainID uint64, sourceToken common.Address, v *domain.SettlementValidation, amount *big.Int) domain.SettlementStrategy {
	return domain.DetermineStrategy(e.rules, v, amount, e.decimals(chainID, sourceToken))
}

// ExecuteSettlement runs req to completion. It refuses to start when the
// chain's gas price is above the configured ceiling, whatever the strategy,
// or when the settlement does not validate. A supplied strategy replaces the
// one determined from the validation. The whole run is bounded by the
// maximum execution delay.
func (e *Engine) ExecuteSettlement(ctx context.Context, req domain.SettlementRequest) (*domain.SettlementResult, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidInput, "amount must be greater than zero")
	}

	if e.rules.MaxExecutionDelay > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.rules.MaxExecutionDelay)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "settlement.execute",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(req.ChainID)),
			attribute.String("user", req.User.Hex()),
		))
	defer span.End()

	started := time.Now()

	gas, err := e.gateway.GasPrice(ctx, req.ChainID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if gas.Exceeds(e.rules.MaxGasPrice) {
		err := apperror.New(apperror.CodeGasPriceTooHigh,
			apperror.WithContext(fmt.Sprintf("chain %d: %.2f gwei above ceiling", req.ChainID, gas.Gwei())))
		span.RecordError(err)
		span.SetStatus(codes.Error, "gas price too high")
		return nil, err
	}

	strategy, err := e.resolveStrategy(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "strategy")
		return nil, err
	}
	span.SetAttributes(attribute.String("strategy", string(strategy.Kind)))

	res := &domain.SettlementResult{
		ChainID:   req.ChainID,
		Strategy:  strategy,
		GasPrice:  gas.Wei,
		StartedAt: started,
	}

	switch strategy.Kind {
	case domain.StrategyStandard:
		err = e.executeStandard(ctx, req, res)
	case domain.StrategySplit:
		err = e.executeSplit(ctx, req, strategy, res)
	case domain.StrategyBatched:
		err = e.executeBatched(ctx, req, strategy, res)
	case domain.StrategyPrivate:
		err = e.executePrivate(ctx, req, res)
	default:
		err = apperror.Validation(apperror.CodeUnknownStrategy, string(strategy.Kind))
	}

	outcome := "success"
	if err != nil {
		outcome = "failed"
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = apperror.New(apperror.CodeExecutionDelayExceeds,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("after %s, %d transactions confirmed", e.rules.MaxExecutionDelay, len(res.Transactions))))
		}
	}
	e.metrics.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", string(strategy.Kind)),
		attribute.String("outcome", outcome),
	))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		e.logger.Error(ctx, "settlement failed",
			"chain_id", req.ChainID,
			"strategy", strategy.Kind,
			"confirmed", len(res.Transactions),
			"error", err)
		return nil, err
	}

	res.CompletedAt = time.Now()
	e.metrics.duration.Record(ctx, res.CompletedAt.Sub(started).Seconds(),
		metric.WithAttributes(attribute.String("strategy", string(strategy.Kind))))

	e.logger.Info(ctx, "settlement executed",
		"chain_id", req.ChainID,
		"strategy", strategy.Kind,
		"transactions", len(res.Transactions),
		"gas_used", res.TotalGasUsed())

	return res, nil
}

func (e *Engine) resolveStrategy(ctx context.Context, req domain.SettlementRequest) (domain.SettlementStrategy, error) {
	if req.Strategy != nil && !req.Strategy.Kind.Valid() {
		return domain.SettlementStrategy{}, apperror.Validation(apperror.CodeUnknownStrategy, string(req.Strategy.Kind))
	}

	v, err := e.ValidateSettlement(ctx, req.ChainID, req.SourceToken, req.TargetToken, req.Amount, req.User)
	if err != nil {
		return domain.SettlementStrategy{}, err
	}
	if !v.IsValid {
		return domain.SettlementStrategy{}, apperror.New(apperror.CodeSettlementFailed,
			apperror.WithContext(strings.Join(v.Errors, "; ")))
	}
	if req.Strategy != nil {
		return *req.Strategy, nil
	}
	return e.DetermineSettlementStrategy(req.ChainID, req.SourceToken, v, req.Amount), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
