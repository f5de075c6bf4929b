package stateproof

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
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
	"github.com/fd1az/arbguard/internal/httpclient"
	"github.com/fd1az/arbguard/internal/logger"
)

const validateEndpoint = "/v1/validate"

var _ app.StateProofValidator = (*HTTPValidator)(nil)

// HTTPConfig configures the proof service client.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

type validateRequest struct {
	ChainID     uint64 `json:"chainId"`
	BlockNumber uint64 `json:"blockNumber"`
	StateRoot   string `json:"stateRoot"`
}

type validateResponse struct {
	IsValid   bool  `json:"isValid"`
	Timestamp int64 `json:"timestamp"` // unix seconds
}

// HTTPValidator delegates state-root validation to a proof service.
type HTTPValidator struct {
	client  httpclient.Client
	logger  logger.LoggerInterface
	cb      *circuitbreaker.CircuitBreaker[*validateResponse]
	tracer  trace.Tracer
	metrics *validatorMetrics
}

// NewHTTPValidator creates a proof service client.
func NewHTTPValidator(cfg HTTPConfig, log logger.LoggerInterface) (*HTTPValidator, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.Configuration(apperror.CodeConfigurationError, "state proof service url is empty")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	tracer := otel.Tracer(tracerName)
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("stateproof"),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/json",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	v := &HTTPValidator{
		client: client,
		logger: log,
		tracer: tracer,
	}

	cbCfg := circuitbreaker.DefaultConfig("stateproof-http")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	v.cb = circuitbreaker.New[*validateResponse](cbCfg)

	if v.metrics, err = newValidatorMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return v, nil
}

// ValidateState implements app.StateProofValidator.
func (v *HTTPValidator) ValidateState(ctx context.Context, chainID, blockNumber uint64, stateRoot common.Hash) (*domain.StateProof, error) {
	ctx, span := v.tracer.Start(ctx, "stateproof.http.validate",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.Int64("block", int64(blockNumber)),
		))
	defer span.End()

	out, err := v.cb.Execute(func() (*validateResponse, error) {
		var result validateResponse
		resp, err := v.client.NewRequestWithOptions(
			httpclient.WithLabels(httpclient.NewLabel("endpoint", "validate")),
		).
			SetBody(validateRequest{
				ChainID:     chainID,
				BlockNumber: blockNumber,
				StateRoot:   stateRoot.Hex(),
			}).
			SetResult(&result).
			Post(ctx, validateEndpoint)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.String())
		}
		return &result, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "proof service failed")
		return nil, apperror.New(apperror.CodeStateProofFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d block %d", chainID, blockNumber)))
	}

	span.SetAttributes(attribute.Bool("valid", out.IsValid))
	v.metrics.verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", "http"),
		attribute.Bool("valid", out.IsValid),
	))

	ts := time.Now()
	if out.Timestamp > 0 {
		ts = time.Unix(out.Timestamp, 0)
	}
	return &domain.StateProof{IsValid: out.IsValid, Timestamp: ts}, nil
}
