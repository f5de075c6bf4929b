// Package bridge reads route health from a bridge status service.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbguard/business/risk/app"
	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/circuitbreaker"
	"github.com/fd1az/arbguard/internal/httpclient"
	"github.com/fd1az/arbguard/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/risk/infra/bridge"

	routesEndpoint = "/routes"
)

var (
	_ app.BridgeMetricsProvider = (*Client)(nil)
	_ app.BridgeMetricsProvider = Unconfigured{}
)

// Unconfigured answers every route with a configuration error. It stands in
// when no bridge status service is set up.
type Unconfigured struct{}

// BridgeMetrics implements app.BridgeMetricsProvider.
func (Unconfigured) BridgeMetrics(_ context.Context, source, target uint64, _ common.Address) (*domain.CrossChainRiskMetrics, error) {
	return nil, apperror.Configuration(apperror.CodeConfigurationError,
		fmt.Sprintf("no bridge status service for route %d->%d", source, target))
}

// Config configures the bridge status client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
}

type routeStatus struct {
	LatencyMs          float64 `json:"latencyMs"`
	Reliability        float64 `json:"reliability"`
	AvailableLiquidity string  `json:"availableLiquidity"` // base units
}

// Client queries the bridge status service.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  logger.LoggerInterface
	cb      *circuitbreaker.CircuitBreaker[*routeStatus]
	tracer  trace.Tracer
}

// NewClient creates a bridge status client.
func NewClient(cfg Config, log logger.LoggerInterface) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.Configuration(apperror.CodeConfigurationError, "bridge status url is empty")
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http: httpclient.NewRetryableClient(httpclient.RetryConfig{
			Name:     "bridge",
			Timeout:  cfg.Timeout,
			RetryMax: cfg.RetryMax,
		}, log),
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("bridge-status")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	cbCfg.IsSuccessful = func(err error) bool {
		return apperror.HasCode(err, apperror.CodeNotFound)
	}
	c.cb = circuitbreaker.New[*routeStatus](cbCfg)
	return c, nil
}

// BridgeMetrics implements app.BridgeMetricsProvider.
func (c *Client) BridgeMetrics(ctx context.Context, sourceChainID, targetChainID uint64, token common.Address) (*domain.CrossChainRiskMetrics, error) {
	ctx, span := c.tracer.Start(ctx, "bridge.route_status",
		trace.WithAttributes(
			attribute.Int64("source_chain_id", int64(sourceChainID)),
			attribute.Int64("target_chain_id", int64(targetChainID)),
			attribute.String("token", token.Hex()),
		))
	defer span.End()

	route := fmt.Sprintf("%d->%d %s", sourceChainID, targetChainID, token.Hex())

	status, err := c.cb.Execute(func() (*routeStatus, error) {
		return c.fetch(ctx, sourceChainID, targetChainID, token)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route status failed")
		if apperror.HasCode(err, apperror.CodeNotFound) {
			return nil, err
		}
		return nil, apperror.External(apperror.CodeBridgeStatusFailed, route, err)
	}

	m := &domain.CrossChainRiskMetrics{
		LatencyMs:   status.LatencyMs,
		Reliability: status.Reliability,
	}
	if status.AvailableLiquidity != "" {
		liq, ok := new(big.Int).SetString(status.AvailableLiquidity, 10)
		if !ok {
			return nil, apperror.External(apperror.CodeBridgeStatusFailed, route,
				fmt.Errorf("invalid availableLiquidity %q", status.AvailableLiquidity))
		}
		m.AvailableLiquidity = liq
	}

	span.SetAttributes(
		attribute.Float64("latency_ms", m.LatencyMs),
		attribute.Float64("reliability", m.Reliability),
	)
	c.logger.Debug(ctx, "bridge route status",
		"route", route,
		"latency_ms", m.LatencyMs,
		"reliability", m.Reliability)

	return m, nil
}

func (c *Client) fetch(ctx context.Context, source, target uint64, token common.Address) (*routeStatus, error) {
	q := url.Values{}
	q.Set("source", strconv.FormatUint(source, 10))
	q.Set("target", strconv.FormatUint(target, 10))
	q.Set("token", token.Hex())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+routesEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperror.NotFound(apperror.CodeNotFound,
			fmt.Sprintf("no bridge route %d->%d for %s", source, target, token.Hex()))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, body)
	}

	var status routeStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &status, nil
}
