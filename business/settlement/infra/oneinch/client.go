// Package oneinch builds settlement swaps from 1inch aggregation router calldata.
package oneinch

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/httpclient"
	"github.com/fd1az/arbguard/internal/logger"
	"github.com/fd1az/arbguard/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/settlement/infra/oneinch"
	meterName  = "github.com/fd1az/arbguard/business/settlement/infra/oneinch"

	BaseAPIURL = "https://api.1inch.dev/swap/v6.0"

	httpTimeout     = 10 * time.Second
	defaultSlippage = 1.0 // percent
)

// ClientConfig holds configuration for the 1inch swap API client.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
	Slippage  float64 // percent
}

// DefaultClientConfig returns the public API defaults. The free tier allows
// one request per second.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:   BaseAPIURL,
		Timeout:   httpTimeout,
		RateLimit: 1,
		Burst:     1,
		Slippage:  defaultSlippage,
	}
}

// Client calls the 1inch swap endpoint.
type Client struct {
	client  httpclient.Client
	limiter *ratelimit.Limiter
	config  ClientConfig
	logger  logger.LoggerInterface
	tracer  trace.Tracer
}

// NewClient creates a rate-limited 1inch client.
func NewClient(cfg ClientConfig, log logger.LoggerInterface) (*Client, error) {
	defaults := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaults.RateLimit
	}
	if cfg.Slippage <= 0 {
		cfg.Slippage = defaults.Slippage
	}

	tracer := otel.Tracer(tracerName)

	headers := map[string]string{"Accept": "application/json"}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("oneinch"),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest),
		httpclient.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Client{
		client:  client,
		limiter: ratelimit.New(cfg.RateLimit, cfg.Burst),
		config:  cfg,
		logger:  log,
		tracer:  tracer,
	}, nil
}

// SwapParams are the inputs of a swap quote with calldata.
type SwapParams struct {
	ChainID  uint64
	Src      common.Address
	Dst      common.Address
	Amount   *big.Int
	From     common.Address
	Receiver common.Address
}

// SwapTx is the router transaction returned by /swap.
type SwapTx struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      uint64 `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

// SwapResponse is the body of a successful /swap call.
type SwapResponse struct {
	DstAmount string `json:"dstAmount"`
	Tx        SwapTx `json:"tx"`
}

// Swap fetches router calldata for p. Balance and allowance checks are left
// to the chain, so the API is asked not to estimate.
func (c *Client) Swap(ctx context.Context, p SwapParams) (*SwapResponse, error) {
	ctx, span := c.tracer.Start(ctx, "oneinch.http.swap",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(p.ChainID)),
			attribute.String("src", p.Src.Hex()),
			attribute.String("dst", p.Dst.Hex()),
			attribute.String("amount", p.Amount.String()),
		),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	chain := strconv.FormatUint(p.ChainID, 10)

	var result SwapResponse
	resp, err := c.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("endpoint", "swap"),
			httpclient.NewLabel("chain_id", chain),
		),
		httpclient.WithResponseErrorHandler(oneInchErrorHandler),
	).
		SetQueryParams(map[string]string{
			"src":             p.Src.Hex(),
			"dst":             p.Dst.Hex(),
			"amount":          p.Amount.String(),
			"from":            p.From.Hex(),
			"origin":          p.From.Hex(),
			"receiver":        p.Receiver.Hex(),
			"slippage":        strconv.FormatFloat(c.config.Slippage, 'f', -1, 64),
			"disableEstimate": "true",
		}).
		SetResult(&result).
		Get(ctx, "/"+chain+"/swap")

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "swap request failed")
		return nil, apperror.New(apperror.CodeSwapBuildFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d %s -> %s", p.ChainID, p.Src.Hex(), p.Dst.Hex())))
	}

	if resp.IsError() {
		return nil, apperror.New(apperror.CodeSwapBuildFailed,
			apperror.WithContext(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.String())))
	}

	if !common.IsHexAddress(result.Tx.To) || result.Tx.Data == "" {
		return nil, apperror.New(apperror.CodeSwapBuildFailed,
			apperror.WithContext("response carries no router transaction"))
	}

	span.SetAttributes(
		attribute.String("dst_amount", result.DstAmount),
		attribute.Int64("gas", int64(result.Tx.Gas)),
	)

	c.logger.Debug(ctx, "fetched swap calldata",
		"chain_id", p.ChainID,
		"router", result.Tx.To,
		"dst_amount", result.DstAmount)

	return &result, nil
}

// Decode converts the wire transaction to typed call fields.
func (t SwapTx) Decode() (to common.Address, data []byte, value, gasPrice *big.Int, err error) {
	to = common.HexToAddress(t.To)

	data, err = hexutil.Decode(t.Data)
	if err != nil {
		return to, nil, nil, nil, fmt.Errorf("calldata: %w", err)
	}

	value = new(big.Int)
	if t.Value != "" {
		if _, ok := value.SetString(t.Value, 10); !ok {
			return to, nil, nil, nil, fmt.Errorf("value %q is not a decimal integer", t.Value)
		}
	}

	if t.GasPrice != "" {
		gasPrice = new(big.Int)
		if _, ok := gasPrice.SetString(t.GasPrice, 10); !ok {
			return to, nil, nil, nil, fmt.Errorf("gas price %q is not a decimal integer", t.GasPrice)
		}
	}

	return to, data, value, gasPrice, nil
}

// APIError is an error body returned by the 1inch API.
type APIError struct {
	StatusCode  int    `json:"statusCode"`
	Kind        string `json:"error"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("1inch API error %d: %s", e.StatusCode, e.Description)
}

func oneInchErrorHandler(statusCode int, body []byte) error {
	if statusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Description != "" {
			if apiErr.StatusCode == 0 {
				apiErr.StatusCode = statusCode
			}
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
	}
	return nil
}
