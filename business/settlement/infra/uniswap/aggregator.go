// Package uniswap aggregates Uniswap V3 liquidity across fee tiers.
package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/arbguard/business/settlement/app"
	"github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/asset"
	"github.com/fd1az/arbguard/internal/circuitbreaker"
	"github.com/fd1az/arbguard/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/settlement/infra/uniswap"
	meterName  = "github.com/fd1az/arbguard/business/settlement/infra/uniswap"

	intrinsicGas    = 21000
	feeDenominator  = 1_000_000
	priceDivPrecise = 40
	defaultDecimals = 18
)

var (
	_ app.LiquidityAggregator = (*Aggregator)(nil)

	q96 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96), 0)
)

// CallerResolver returns the contract caller for a chain.
type CallerResolver func(chainID uint64) (ethereum.ContractCaller, error)

// Deployment is the Uniswap V3 deployment on one chain.
type Deployment struct {
	Factory common.Address
	Quoter  common.Address
}

type aggregatorMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteLatency metric.Float64Histogram
	quoteErrors  metric.Int64Counter
}

// Aggregator reads every fee tier pool of a pair and combines them.
type Aggregator struct {
	deployments map[uint64]Deployment
	callers     CallerResolver
	feeTiers    []uint32
	assets      *asset.Registry

	factoryABI abi.ABI
	poolABI    abi.ABI
	erc20ABI   abi.ABI
	quoterABI  abi.ABI

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *aggregatorMetrics
}

// NewAggregator creates an Aggregator.
func NewAggregator(deployments map[uint64]Deployment, callers CallerResolver, assets *asset.Registry, log logger.LoggerInterface) (*Aggregator, error) {
	a := &Aggregator{
		deployments: deployments,
		callers:     callers,
		feeTiers:    []uint32{FeeTier001, FeeTier005, FeeTier030, FeeTier100},
		assets:      assets,
		logger:      log,
		tracer:      otel.Tracer(tracerName),
	}

	for _, c := range []struct {
		dst  *abi.ABI
		json string
		name string
	}{
		{&a.factoryABI, FactoryABI, "factory"},
		{&a.poolABI, PoolABI, "pool"},
		{&a.erc20ABI, ERC20ABI, "erc20"},
		{&a.quoterABI, QuoterV2ABI, "quoter"},
	} {
		parsed, err := abi.JSON(strings.NewReader(c.json))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s ABI: %w", c.name, err)
		}
		*c.dst = parsed
	}

	cbCfg := circuitbreaker.DefaultConfig("uniswap")
	cbCfg.IsSuccessful = isRevert
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	a.cb = circuitbreaker.New[[]byte](cbCfg)

	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return a, nil
}

func (a *Aggregator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &aggregatorMetrics{}

	a.metrics.quotesTotal, err = meter.Int64Counter(
		"uniswap_quotes_total",
		metric.WithDescription("Total liquidity aggregations"),
	)
	if err != nil {
		return err
	}

	a.metrics.quoteLatency, err = meter.Float64Histogram(
		"uniswap_quote_latency_ms",
		metric.WithDescription("Liquidity aggregation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	a.metrics.quoteErrors, err = meter.Int64Counter(
		"uniswap_quote_errors_total",
		metric.WithDescription("Total failed liquidity aggregations"),
	)
	return err
}

// tierResult is what one fee tier contributed.
type tierResult struct {
	pool  domain.Pool
	spot  decimal.Decimal // tokenOut per tokenIn, base units
	gas   uint64
	found bool
	err   error
}

// AggregatedLiquidity implements app.LiquidityAggregator. Pools are read
// concurrently; a tier that fails is skipped unless every tier fails.
func (a *Aggregator) AggregatedLiquidity(ctx context.Context, chainID uint64, tokenIn, tokenOut common.Address, amount *big.Int) (*domain.AggregatedLiquidity, error) {
	ctx, span := a.tracer.Start(ctx, "uniswap.aggregate_liquidity",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
			attribute.String("amount_in", amount.String()),
		))
	defer span.End()

	d, ok := a.deployments[chainID]
	if !ok {
		err := apperror.Configuration(apperror.CodeChainNotConfigured,
			fmt.Sprintf("no Uniswap deployment for chain %d", chainID))
		span.RecordError(err)
		return nil, err
	}
	caller, err := a.callers(chainID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	start := time.Now()
	a.metrics.quotesTotal.Add(ctx, 1)

	results := make([]tierResult, len(a.feeTiers))
	var g errgroup.Group
	for i, fee := range a.feeTiers {
		g.Go(func() error {
			results[i] = a.readTier(ctx, caller, d, tokenIn, tokenOut, amount, fee)
			return nil
		})
	}
	_ = g.Wait()

	a.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	liq, err := a.combine(chainID, tokenIn, tokenOut, amount, results)
	if err != nil {
		a.metrics.quoteErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no liquidity")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("pools", liq.PoolCount()),
		attribute.String("total_liquidity", liq.TotalLiquidity.String()),
		attribute.Float64("price_impact", liq.PriceImpact),
	)

	a.logger.Debug(ctx, "uniswap liquidity",
		"chain_id", chainID,
		"token_in", tokenIn.Hex(),
		"token_out", tokenOut.Hex(),
		"pools", liq.PoolCount(),
		"best_price", liq.BestPrice.String(),
		"price_impact", liq.PriceImpact)

	return liq, nil
}

func (a *Aggregator) combine(chainID uint64, tokenIn, tokenOut common.Address, amount *big.Int, results []tierResult) (*domain.AggregatedLiquidity, error) {
	var (
		pools     []domain.Pool
		best      *tierResult
		firstErr  error
		lookupsOK bool
	)
	for i := range results {
		r := &results[i]
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		lookupsOK = true
		if !r.found {
			continue
		}
		pools = append(pools, r.pool)
		if r.pool.AmountOut != nil && (best == nil || r.pool.AmountOut.Cmp(best.pool.AmountOut) > 0) {
			best = r
		}
	}

	if !lookupsOK && firstErr != nil {
		return nil, apperror.New(apperror.CodeLiquidityFetchFailed,
			apperror.WithCause(firstErr),
			apperror.WithContext(fmt.Sprintf("chain %d %s/%s", chainID, tokenIn.Hex(), tokenOut.Hex())))
	}
	if len(pools) == 0 {
		return nil, apperror.NotFound(apperror.CodeUniswapPoolNotFound,
			fmt.Sprintf("chain %d %s/%s", chainID, tokenIn.Hex(), tokenOut.Hex()))
	}

	liq := &domain.AggregatedLiquidity{
		Pools:          pools,
		TotalLiquidity: domain.SumLiquidity(pools),
	}
	if best == nil {
		return liq, nil
	}

	in := decimal.NewFromBigInt(amount, 0)
	out := decimal.NewFromBigInt(best.pool.AmountOut, 0)
	decIn, decOut := a.decimals(chainID, tokenIn), a.decimals(chainID, tokenOut)

	liq.BestPrice = out.Shift(-int32(decOut)).DivRound(in.Shift(-int32(decIn)), 18)
	liq.PriceImpact = priceImpact(in, out, best.spot, best.pool.Fee)
	liq.EstimatedGas = best.gas + intrinsicGas
	return liq, nil
}

// priceImpact compares the executed rate with the fee-adjusted spot rate,
// in percent.
func priceImpact(in, out, spot decimal.Decimal, fee uint32) float64 {
	if in.IsZero() || spot.IsZero() {
		return 0
	}
	feeFactor := decimal.NewFromInt(1).Sub(decimal.New(int64(fee), 0).Div(decimal.NewFromInt(feeDenominator)))
	expected := in.Mul(spot).Mul(feeFactor)
	if expected.IsZero() {
		return 0
	}
	impact := decimal.NewFromInt(1).Sub(out.DivRound(expected, priceDivPrecise))
	if impact.IsNegative() {
		return 0
	}
	f, _ := impact.Mul(decimal.NewFromInt(100)).Float64()
	return f
}

// spotPrice converts sqrtPriceX96 into tokenOut per tokenIn in base units.
func spotPrice(sqrtPriceX96 *big.Int, tokenIn, tokenOut common.Address) decimal.Decimal {
	sqrt := decimal.NewFromBigInt(sqrtPriceX96, 0).DivRound(q96, priceDivPrecise)
	price := sqrt.Mul(sqrt) // token1 per token0
	if price.IsZero() {
		return price
	}
	// token0 is the lower address
	if tokenIn.Cmp(tokenOut) > 0 {
		return decimal.NewFromInt(1).DivRound(price, priceDivPrecise)
	}
	return price
}

func (a *Aggregator) readTier(ctx context.Context, caller ethereum.ContractCaller, d Deployment, tokenIn, tokenOut common.Address, amount *big.Int, fee uint32) tierResult {
	out, err := a.call(ctx, caller, d.Factory, a.factoryABI, "getPool", tokenIn, tokenOut, big.NewInt(int64(fee)))
	if err != nil {
		return tierResult{err: err}
	}
	poolAddr := out[0].(common.Address)
	if poolAddr == (common.Address{}) {
		return tierResult{}
	}

	var (
		balance *big.Int
		slot0   []any
		quote   *QuoteResult
		qErr    error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := a.call(gctx, caller, tokenIn, a.erc20ABI, "balanceOf", poolAddr)
		if err != nil {
			return err
		}
		balance = out[0].(*big.Int)
		return nil
	})
	g.Go(func() error {
		var err error
		slot0, err = a.call(gctx, caller, poolAddr, a.poolABI, "slot0")
		return err
	})
	g.Go(func() error {
		quote, qErr = a.quote(gctx, caller, d.Quoter, tokenIn, tokenOut, amount, fee)
		return nil
	})
	if err := g.Wait(); err != nil {
		return tierResult{err: err}
	}

	r := tierResult{
		pool:  domain.Pool{Address: poolAddr, Fee: fee, Liquidity: balance},
		spot:  spotPrice(slot0[0].(*big.Int), tokenIn, tokenOut),
		found: true,
	}
	// A pool too shallow for the amount reverts the quote but still counts
	// towards liquidity.
	if qErr == nil {
		r.pool.AmountOut = quote.AmountOut
		r.gas = quote.GasEstimate.Uint64()
	} else {
		a.logger.Debug(ctx, "uniswap quote failed", "pool", poolAddr.Hex(), "fee", fee, "error", qErr)
	}
	return r
}

func (a *Aggregator) quote(ctx context.Context, caller ethereum.ContractCaller, quoter, tokenIn, tokenOut common.Address, amount *big.Int, fee uint32) (*QuoteResult, error) {
	out, err := a.call(ctx, caller, quoter, a.quoterABI, "quoteExactInputSingle", QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amount,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0), // No price limit
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeUniswapQuoteFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("quoter call failed for fee tier %d", fee)))
	}
	if len(out) < 4 {
		return nil, fmt.Errorf("unexpected output length: %d", len(out))
	}
	return &QuoteResult{
		AmountOut:   out[0].(*big.Int),
		GasEstimate: out[3].(*big.Int),
	}, nil
}

func (a *Aggregator) call(ctx context.Context, caller ethereum.ContractCaller, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	raw, err := a.cb.Execute(func() ([]byte, error) {
		return caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s on %s", method, to.Hex())))
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	return out, nil
}

// isRevert reports a call the node executed and the contract rejected.
func isRevert(err error) bool {
	return strings.Contains(err.Error(), "execution reverted")
}

func (a *Aggregator) decimals(chainID uint64, token common.Address) uint8 {
	if as, ok := a.assets.Resolve(chainID, token); ok {
		return as.Decimals()
	}
	return defaultDecimals
}
