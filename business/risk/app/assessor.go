package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/cache"
	"github.com/fd1az/arbguard/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/risk/app"
	meterName  = "github.com/fd1az/arbguard/business/risk/app"
)

type assessorMetrics struct {
	assessments metric.Int64Counter
	failures    metric.Int64Counter
	scores      metric.Int64Histogram
}

// Assessor composes the flash-loan, network-state and cross-chain scorers
// and keeps the last assessment per key.
type Assessor struct {
	flashLoans *FlashLoanScorer
	network    *StateValidator
	bridges    *BridgeScorer
	weights    domain.CompositeWeights
	results    *cache.Cache[domain.AssessmentKey, *domain.RiskAssessmentResult]
	logger     logger.LoggerInterface

	tracer  trace.Tracer
	metrics *assessorMetrics
}

// NewAssessor creates an Assessor.
func NewAssessor(
	flashLoans *FlashLoanScorer,
	network *StateValidator,
	bridges *BridgeScorer,
	weights domain.CompositeWeights,
	results *cache.Cache[domain.AssessmentKey, *domain.RiskAssessmentResult],
	log logger.LoggerInterface,
) (*Assessor, error) {
	a := &Assessor{
		flashLoans: flashLoans,
		network:    network,
		bridges:    bridges,
		weights:    weights,
		results:    results,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return a, nil
}

func (a *Assessor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &assessorMetrics{}

	a.metrics.assessments, err = meter.Int64Counter(
		"risk_assessments_total",
		metric.WithDescription("Risk assessments computed, by component"),
		metric.WithUnit("{assessment}"),
	)
	if err != nil {
		return err
	}

	a.metrics.failures, err = meter.Int64Counter(
		"risk_assessment_failures_total",
		metric.WithDescription("Risk assessments that failed"),
		metric.WithUnit("{assessment}"),
	)
	if err != nil {
		return err
	}

	a.metrics.scores, err = meter.Int64Histogram(
		"risk_score",
		metric.WithDescription("Distribution of risk scores, by component"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 40, 50, 60, 70, 80, 90, 100),
	)
	return err
}

func (a *Assessor) record(ctx context.Context, component string, score int) {
	attrs := metric.WithAttributes(attribute.String("component", component))
	a.metrics.assessments.Add(ctx, 1, attrs)
	a.metrics.scores.Record(ctx, int64(score), attrs)
}

// AssessFlashLoanRisk scores a single flash loan.
func (a *Assessor) AssessFlashLoanRisk(ctx context.Context, chainID uint64, token common.Address, amount *big.Int, user common.Address) (*domain.FlashLoanRisk, error) {
	r, err := a.flashLoans.Assess(ctx, chainID, token, amount, user)
	if err != nil {
		return nil, err
	}
	a.record(ctx, "flash_loan", r.RiskScore)
	return r, nil
}

// ValidateNetworkState validates a single chain.
func (a *Assessor) ValidateNetworkState(ctx context.Context, chainID uint64) (*domain.StateValidationResult, error) {
	r, err := a.network.Validate(ctx, chainID)
	if err != nil {
		return nil, err
	}
	a.record(ctx, "network_state", r.RiskScore)
	return r, nil
}

// AssessRisk computes every component params asks for, concurrently, and
// combines them. Nothing is cached when any component fails.
func (a *Assessor) AssessRisk(ctx context.Context, chainID uint64, params domain.AssessmentParams) (*domain.RiskAssessmentResult, error) {
	ctx, span := a.tracer.Start(ctx, "risk.assess",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.Bool("flash_loan", params.WantsFlashLoan()),
			attribute.Bool("network_state", params.IncludeNetworkState),
			attribute.Int64("target_chain_id", int64(params.TargetChainID)),
		))
	defer span.End()

	if !params.WantsFlashLoan() && !params.IncludeNetworkState && !params.WantsCrossChain() {
		err := apperror.Validation(apperror.CodeNoRiskInputs,
			"provide token, amount and user, includeNetworkState or targetChainId")
		span.RecordError(err)
		return nil, err
	}

	var in domain.CompositeInputs
	in.TargetChain = params.TargetChainID

	g, gctx := errgroup.WithContext(ctx)
	if params.WantsFlashLoan() {
		g.Go(func() error {
			var err error
			in.FlashLoan, err = a.AssessFlashLoanRisk(gctx, chainID, params.Token, params.Amount, params.User)
			return err
		})
	}
	if params.IncludeNetworkState {
		g.Go(func() error {
			var err error
			in.NetworkState, err = a.ValidateNetworkState(gctx, chainID)
			return err
		})
	}
	if params.WantsCrossChain() {
		g.Go(func() error {
			var err error
			in.CrossChain, err = a.bridges.Score(gctx, chainID, params.TargetChainID, params.Token, params.Amount)
			if err == nil {
				a.record(gctx, "cross_chain", in.CrossChain.Score)
			}
			return err
		})
		g.Go(func() error {
			var err error
			in.Target, err = a.network.Validate(gctx, params.TargetChainID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		a.metrics.failures.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment failed")
		return nil, err
	}

	key := domain.NewAssessmentKey(chainID, params.Token, params.User)
	res, ok := domain.Compose(a.weights, a.bridges.Config(), chainID, key, in)
	if !ok {
		return nil, apperror.Validation(apperror.CodeNoRiskInputs, "no risk component computed")
	}

	a.results.Set(key, res)
	a.record(ctx, "overall", res.OverallRiskScore)
	span.SetAttributes(attribute.Int("overall_score", res.OverallRiskScore))

	a.logger.Info(ctx, "risk assessed",
		"chain_id", chainID,
		"key", string(key),
		"score", res.OverallRiskScore,
		"recommendations", len(res.Recommendations))

	return res, nil
}

// LastAssessment returns the last assessment stored under the key built from
// chainID, token and user.
func (a *Assessor) LastAssessment(chainID uint64, token, user common.Address) (*domain.RiskAssessmentResult, bool) {
	return a.results.Get(domain.NewAssessmentKey(chainID, token, user))
}

// Invalidate drops the stored assessment for the key. It reports whether an
// entry was present.
func (a *Assessor) Invalidate(chainID uint64, token, user common.Address) bool {
	return a.results.Invalidate(domain.NewAssessmentKey(chainID, token, user))
}

// LastValidation returns the last network-state result for chainID.
func (a *Assessor) LastValidation(chainID uint64) (*domain.StateValidationResult, bool) {
	return a.network.LastValidation(chainID)
}

// LastMarketCondition returns the last market snapshot for token.
func (a *Assessor) LastMarketCondition(chainID uint64, token common.Address) (*domain.MarketCondition, bool) {
	return a.flashLoans.LastMarketCondition(chainID, token)
}
