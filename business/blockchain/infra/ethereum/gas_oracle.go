package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/cache"
	"github.com/fd1az/arbguard/internal/circuitbreaker"
	"github.com/fd1az/arbguard/internal/logger"
)

// GasSuggester is implemented by *ethclient.Client.
type GasSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// SuggesterResolver returns the gas suggester for a chain.
type SuggesterResolver func(chainID uint64) (GasSuggester, error)

// ChainGasConfig tunes the oracle for one chain.
type ChainGasConfig struct {
	CacheTTL    time.Duration // ~1 block
	MaxGasPrice *big.Int      // safety ceiling; nil disables
}

// GasOracleConfig holds per-chain configuration.
type GasOracleConfig struct {
	Chains     map[uint64]ChainGasConfig
	DefaultTTL time.Duration
}

type gasOracleMetrics struct {
	gasPriceFetches metric.Int64Counter
	gasPriceGwei    metric.Float64Gauge
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// GasOracle serves suggested gas prices per chain with short-lived caching,
// a circuit breaker per chain and a max-price clamp.
type GasOracle struct {
	config  GasOracleConfig
	resolve SuggesterResolver
	logger  logger.LoggerInterface

	priceCache *cache.Cache[uint64, *domain.GasPrice]
	breakers   map[uint64]*circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *gasOracleMetrics
}

// NewGasOracle creates a new gas oracle instance.
func NewGasOracle(cfg GasOracleConfig, resolve SuggesterResolver, log logger.LoggerInterface) (*GasOracle, error) {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 12 * time.Second
	}

	priceCache, err := cache.New[uint64, *domain.GasPrice](64, cfg.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("gas price cache: %w", err)
	}

	g := &GasOracle{
		config:     cfg,
		resolve:    resolve,
		logger:     log,
		priceCache: priceCache,
		breakers:   make(map[uint64]*circuitbreaker.CircuitBreaker[*big.Int], len(cfg.Chains)),
		tracer:     otel.Tracer(tracerName),
	}

	if err := g.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	for chainID := range cfg.Chains {
		cbCfg := circuitbreaker.DefaultConfig(fmt.Sprintf("gas-oracle-%d", chainID))
		cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		}
		g.breakers[chainID] = circuitbreaker.New[*big.Int](cbCfg)
	}

	return g, nil
}

func (g *GasOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	g.metrics = &gasOracleMetrics{}

	g.metrics.gasPriceFetches, err = meter.Int64Counter(
		"gas_price_fetches_total",
		metric.WithDescription("Total gas price fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	g.metrics.gasPriceGwei, err = meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheHits, err = meter.Int64Counter(
		"gas_cache_hits_total",
		metric.WithDescription("Gas price cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheMisses, err = meter.Int64Counter(
		"gas_cache_misses_total",
		metric.WithDescription("Gas price cache misses"),
		metric.WithUnit("{miss}"),
	)
	return err
}

// GasPrice retrieves the current gas price for chainID.
func (g *GasOracle) GasPrice(ctx context.Context, chainID uint64) (*domain.GasPrice, error) {
	chainAttr := attribute.Int64("chain_id", int64(chainID))
	ctx, span := g.tracer.Start(ctx, "gas.get_price", trace.WithAttributes(chainAttr))
	defer span.End()

	chainCfg, ok := g.config.Chains[chainID]
	if !ok {
		err := apperror.Configuration(apperror.CodeChainNotConfigured, fmt.Sprintf("gas oracle: chain %d", chainID))
		span.RecordError(err)
		return nil, err
	}

	if price, found := g.priceCache.Get(chainID); found {
		g.metrics.cacheHits.Add(ctx, 1, metric.WithAttributes(chainAttr))
		span.AddEvent("cache_hit")
		return price, nil
	}
	g.metrics.cacheMisses.Add(ctx, 1, metric.WithAttributes(chainAttr))
	g.metrics.gasPriceFetches.Add(ctx, 1, metric.WithAttributes(chainAttr))

	client, err := g.resolve(chainID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	wei, err := g.breakers[chainID].Execute(func() (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeRPCError,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d: gas price", chainID)))
	}

	price := domain.NewGasPrice(chainID, wei)
	if price.Exceeds(chainCfg.MaxGasPrice) {
		span.AddEvent("gas_price_exceeded_max",
			trace.WithAttributes(attribute.String("wei", wei.String())))
		g.logger.Warn(ctx, "gas price exceeds max, clamping", "chain_id", chainID, "wei", wei.String())
		price.Wei = new(big.Int).Set(chainCfg.MaxGasPrice)
		price.Capped = true
	}

	ttl := chainCfg.CacheTTL
	if ttl == 0 {
		ttl = g.config.DefaultTTL
	}
	g.priceCache.SetWithTTL(chainID, price, ttl)

	g.metrics.gasPriceGwei.Record(ctx, price.Gwei(), metric.WithAttributes(chainAttr))
	span.SetAttributes(attribute.Float64("gwei", price.Gwei()))

	return price, nil
}
