// Package binance derives market statistics from the Binance REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/httpclient"
	"github.com/fd1az/arbguard/internal/logger"
	"github.com/fd1az/arbguard/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/risk/infra/binance"
	meterName  = "github.com/fd1az/arbguard/business/risk/infra/binance"

	// Binance REST API endpoints
	BaseAPIURL   = "https://api.binance.com"
	BaseAPIURLUS = "https://api.binance.us"

	ticker24hEndpoint = "/api/v3/ticker/24hr"

	httpTimeout = 10 * time.Second
)

// HTTPClientConfig holds configuration for the Binance HTTP client.
type HTTPClientConfig struct {
	BaseURL   string        // API base URL (empty = default)
	Timeout   time.Duration // Request timeout
	RateLimit float64       // requests per second
	Burst     int
}

// DefaultHTTPClientConfig returns sensible defaults.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		BaseURL:   BaseAPIURL,
		Timeout:   httpTimeout,
		RateLimit: 10,
		Burst:     5,
	}
}

// HTTPClient provides rate-limited Binance REST API access.
type HTTPClient struct {
	client  httpclient.Client
	limiter *ratelimit.Limiter
	config  HTTPClientConfig
	logger  logger.LoggerInterface
	tracer  trace.Tracer
}

// NewHTTPClient creates a new Binance HTTP client.
func NewHTTPClient(cfg HTTPClientConfig, log logger.LoggerInterface) (*HTTPClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseAPIURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = DefaultHTTPClientConfig().RateLimit
	}

	tracer := otel.Tracer(tracerName)

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("binance"),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{
			"Accept": "application/json",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &HTTPClient{
		client:  client,
		limiter: ratelimit.New(rps, cfg.Burst),
		config:  cfg,
		logger:  log,
		tracer:  tracer,
	}, nil
}

// Ticker24h is the rolling 24h statistics of a symbol.
type Ticker24h struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	Volume             string `json:"volume"` // base asset
	QuoteVolume        string `json:"quoteVolume"`
	Count              int64  `json:"count"` // trades
	CloseTime          int64  `json:"closeTime"`
}

// GetTicker24h fetches the 24h ticker for a symbol.
func (c *HTTPClient) GetTicker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	ctx, span := c.tracer.Start(ctx, "binance.http.get_ticker_24h",
		trace.WithAttributes(attribute.String("symbol", symbol)),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var result Ticker24h
	resp, err := c.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("endpoint", "ticker_24hr"),
			httpclient.NewLabel("symbol", symbol),
		),
		httpclient.WithResponseErrorHandler(binanceErrorHandler),
	).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get(ctx, ticker24hEndpoint)

	if err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeMarketDataFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("ticker %s", symbol)))
	}

	if resp.IsError() {
		return nil, apperror.New(apperror.CodeMarketDataFailed,
			apperror.WithContext(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.String())))
	}

	span.SetAttributes(
		attribute.String("price_change_percent", result.PriceChangePercent),
		attribute.Int64("count", result.Count),
	)

	c.logger.Debug(ctx, "fetched 24h ticker",
		"symbol", symbol,
		"change_pct", result.PriceChangePercent,
		"trades", result.Count)

	return &result, nil
}

// BinanceAPIError represents an error response from Binance API.
type BinanceAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *BinanceAPIError) Error() string {
	return fmt.Sprintf("binance API error %d: %s", e.Code, e.Message)
}

// binanceErrorHandler parses Binance API error responses.
func binanceErrorHandler(statusCode int, body []byte) error {
	if statusCode >= 400 {
		var apiErr BinanceAPIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
	}
	return nil
}
