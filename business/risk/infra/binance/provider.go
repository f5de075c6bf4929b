package binance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/arbguard/business/risk/app"
	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/asset"
	"github.com/fd1az/arbguard/internal/cache"
	"github.com/fd1az/arbguard/internal/circuitbreaker"
	"github.com/fd1az/arbguard/internal/logger"
)

var _ app.MarketStatsProvider = (*Provider)(nil)

// ProviderConfig configures symbol mapping and caching.
type ProviderConfig struct {
	QuoteAsset string        // e.g. USDT
	StablePair string        // symbol used for the quote asset itself, e.g. USDCUSDT
	MaxAge     time.Duration // how long a ticker is reused
}

type providerMetrics struct {
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

// Provider turns 24h tickers into market stats: volatility is the absolute
// 24h price change, average transaction size is volume / trade count.
type Provider struct {
	client   *HTTPClient
	config   ProviderConfig
	registry *asset.Registry
	logger   logger.LoggerInterface

	tickers *cache.Cache[string, *Ticker24h]
	cb      *circuitbreaker.CircuitBreaker[*Ticker24h]
	metrics *providerMetrics
}

// NewProvider creates a Binance market stats provider.
func NewProvider(client *HTTPClient, cfg ProviderConfig, registry *asset.Registry, log logger.LoggerInterface) (*Provider, error) {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}

	tickers, err := cache.New[string, *Ticker24h](256, cfg.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("ticker cache: %w", err)
	}

	p := &Provider{
		client:   client,
		config:   cfg,
		registry: registry,
		logger:   log,
		tickers:  tickers,
	}

	cbCfg := circuitbreaker.DefaultConfig("binance-rest")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	p.cb = circuitbreaker.New[*Ticker24h](cbCfg)

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return p, nil
}

func (p *Provider) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	p.metrics = &providerMetrics{}

	p.metrics.cacheHits, err = meter.Int64Counter(
		"binance_ticker_cache_hits_total",
		metric.WithDescription("Ticker cache hits"),
	)
	if err != nil {
		return err
	}

	p.metrics.cacheMisses, err = meter.Int64Counter(
		"binance_ticker_cache_misses_total",
		metric.WithDescription("Ticker cache misses"),
	)
	return err
}

// Symbol returns the Binance symbol a token's market data is read from.
func (p *Provider) Symbol(a *asset.Asset) string {
	if a.MarketSymbol() == p.config.QuoteAsset && p.config.StablePair != "" {
		return p.config.StablePair
	}
	return a.MarketSymbol() + p.config.QuoteAsset
}

// MarketStats implements app.MarketStatsProvider.
func (p *Provider) MarketStats(ctx context.Context, chainID uint64, token common.Address) (*domain.MarketStats, error) {
	a, ok := p.registry.Resolve(chainID, token)
	if !ok {
		return nil, apperror.Validation(apperror.CodeInvalidAddress,
			fmt.Sprintf("token %s is not known on chain %d", token.Hex(), chainID))
	}

	symbol := p.Symbol(a)
	t, err := p.ticker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	stats, err := statsFromTicker(t, a.Decimals())
	if err != nil {
		return nil, apperror.New(apperror.CodeMarketDataFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("ticker %s", symbol)))
	}

	// The quote asset is priced at par against itself.
	if a.MarketSymbol() == p.config.QuoteAsset {
		stats.PriceUSD = decimal.NewFromInt(1)
	}
	return stats, nil
}

func (p *Provider) ticker(ctx context.Context, symbol string) (*Ticker24h, error) {
	attrs := metric.WithAttributes(attribute.String("symbol", symbol))
	if t, ok := p.tickers.Get(symbol); ok {
		p.metrics.cacheHits.Add(ctx, 1, attrs)
		return t, nil
	}
	p.metrics.cacheMisses.Add(ctx, 1, attrs)

	t, err := p.cb.Execute(func() (*Ticker24h, error) {
		return p.client.GetTicker24h(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	p.tickers.Set(symbol, t)
	return t, nil
}

func statsFromTicker(t *Ticker24h, decimals uint8) (*domain.MarketStats, error) {
	change, err := decimal.NewFromString(t.PriceChangePercent)
	if err != nil {
		return nil, fmt.Errorf("priceChangePercent: %w", err)
	}
	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("lastPrice: %w", err)
	}
	volume, err := decimal.NewFromString(t.Volume)
	if err != nil {
		return nil, fmt.Errorf("volume: %w", err)
	}

	avg := new(big.Int)
	if t.Count > 0 {
		avg = asset.FromUnits(volume.Div(decimal.NewFromInt(t.Count)), decimals)
	}

	volatility, _ := change.Abs().Float64()
	return &domain.MarketStats{
		Volatility24h:          volatility,
		AverageTransactionSize: avg,
		PriceUSD:               price,
	}, nil
}
