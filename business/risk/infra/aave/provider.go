// Package aave reads reserve and account data from Aave V3 lending pools.
package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"

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

	"github.com/fd1az/arbguard/business/risk/app"
	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/circuitbreaker"
	"github.com/fd1az/arbguard/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/risk/infra/aave"
	meterName  = "github.com/fd1az/arbguard/business/risk/infra/aave"
)

var (
	_ app.ReserveDataProvider = (*Provider)(nil)
	_ app.CollateralProvider  = (*Provider)(nil)
)

// CallerResolver returns the contract caller for a chain.
type CallerResolver func(chainID uint64) (ethereum.ContractCaller, error)

// Deployment is the Aave V3 deployment on one chain.
type Deployment struct {
	Pool             common.Address
	PoolDataProvider common.Address
}

// AccountData is a user's aggregate position.
type AccountData struct {
	CollateralUSD decimal.Decimal
	DebtUSD       decimal.Decimal
	HealthFactor  decimal.Decimal
}

type providerMetrics struct {
	callsTotal metric.Int64Counter
	callErrors metric.Int64Counter
}

// Provider reads Aave V3 contracts on every chain it has a deployment for.
type Provider struct {
	deployments map[uint64]Deployment
	callers     CallerResolver
	dataABI     abi.ABI
	poolABI     abi.ABI

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewProvider creates an Aave provider.
func NewProvider(deployments map[uint64]Deployment, callers CallerResolver, log logger.LoggerInterface) (*Provider, error) {
	dataABI, err := abi.JSON(strings.NewReader(PoolDataProviderABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse data provider ABI: %w", err)
	}
	poolABI, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	p := &Provider{
		deployments: deployments,
		callers:     callers,
		dataABI:     dataABI,
		poolABI:     poolABI,
		logger:      log,
		tracer:      otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("aave")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	p.cb = circuitbreaker.New[[]byte](cbCfg)

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	return p, nil
}

func (p *Provider) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	p.metrics = &providerMetrics{}

	p.metrics.callsTotal, err = meter.Int64Counter(
		"aave_calls_total",
		metric.WithDescription("Total Aave contract calls"),
	)
	if err != nil {
		return err
	}

	p.metrics.callErrors, err = meter.Int64Counter(
		"aave_call_errors_total",
		metric.WithDescription("Total failed Aave contract calls"),
	)
	return err
}

func (p *Provider) deployment(chainID uint64) (Deployment, error) {
	d, ok := p.deployments[chainID]
	if !ok {
		return Deployment{}, apperror.Configuration(apperror.CodeChainNotConfigured,
			fmt.Sprintf("no Aave deployment for chain %d", chainID))
	}
	return d, nil
}

// ReserveData implements app.ReserveDataProvider.
func (p *Provider) ReserveData(ctx context.Context, chainID uint64, token common.Address) (*domain.ReserveData, error) {
	ctx, span := p.tracer.Start(ctx, "aave.get_reserve_data",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.String("asset", token.Hex()),
		))
	defer span.End()

	d, err := p.deployment(chainID)
	if err != nil || d.PoolDataProvider == (common.Address{}) {
		if err == nil {
			err = apperror.Configuration(apperror.CodeChainNotConfigured,
				fmt.Sprintf("no Aave data provider for chain %d", chainID))
		}
		span.RecordError(err)
		return nil, err
	}

	out, err := p.call(ctx, chainID, d.PoolDataProvider, p.dataABI, "getReserveData", token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "getReserveData failed")
		return nil, apperror.New(apperror.CodeReserveDataFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d asset %s", chainID, token.Hex())))
	}

	totalAToken := out[2].(*big.Int)
	stable := out[3].(*big.Int)
	variable := out[4].(*big.Int)

	available := new(big.Int).Sub(totalAToken, stable)
	available.Sub(available, variable)
	if available.Sign() < 0 {
		available.SetInt64(0)
	}

	span.SetAttributes(
		attribute.String("available", available.String()),
		attribute.String("stable_debt", stable.String()),
		attribute.String("variable_debt", variable.String()),
	)

	return &domain.ReserveData{
		AvailableLiquidity: available,
		TotalStableDebt:    stable,
		TotalVariableDebt:  variable,
	}, nil
}

// AccountData returns the user's aggregate Aave position on chainID.
func (p *Provider) AccountData(ctx context.Context, chainID uint64, user common.Address) (*AccountData, error) {
	ctx, span := p.tracer.Start(ctx, "aave.get_user_account_data",
		trace.WithAttributes(attribute.Int64("chain_id", int64(chainID))))
	defer span.End()

	d, err := p.deployment(chainID)
	if err != nil || d.Pool == (common.Address{}) {
		if err == nil {
			err = apperror.Configuration(apperror.CodeChainNotConfigured,
				fmt.Sprintf("no Aave pool for chain %d", chainID))
		}
		span.RecordError(err)
		return nil, err
	}

	out, err := p.call(ctx, chainID, d.Pool, p.poolABI, "getUserAccountData", user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "getUserAccountData failed")
		return nil, apperror.New(apperror.CodeCollateralQueryFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d user %s", chainID, user.Hex())))
	}

	return &AccountData{
		CollateralUSD: decimal.NewFromBigInt(out[0].(*big.Int), -baseCurrencyDecimals),
		DebtUSD:       decimal.NewFromBigInt(out[1].(*big.Int), -baseCurrencyDecimals),
		HealthFactor:  decimal.NewFromBigInt(out[5].(*big.Int), -healthFactorDecimals),
	}, nil
}

// CollateralUSD implements app.CollateralProvider.
func (p *Provider) CollateralUSD(ctx context.Context, chainID uint64, user common.Address) (decimal.Decimal, error) {
	acct, err := p.AccountData(ctx, chainID, user)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.CollateralUSD, nil
}

func (p *Provider) call(ctx context.Context, chainID uint64, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	caller, err := p.callers(chainID)
	if err != nil {
		return nil, err
	}

	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	attrs := metric.WithAttributes(attribute.String("method", method))
	p.metrics.callsTotal.Add(ctx, 1, attrs)

	raw, err := p.cb.Execute(func() ([]byte, error) {
		return caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		p.metrics.callErrors.Add(ctx, 1, attrs)
		return nil, err
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		p.metrics.callErrors.Add(ctx, 1, attrs)
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	return out, nil
}
