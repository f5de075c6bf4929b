// Package relay submits transactions to private MEV-protection relays.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbguard/business/settlement/app"
	"github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/circuitbreaker"
	"github.com/fd1az/arbguard/internal/httpclient"
	"github.com/fd1az/arbguard/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/settlement/infra/relay"

	sendPrivateTransaction = "eth_sendPrivateTransaction"
)

var _ app.MEVProtector = (*Client)(nil)

// Config configures the relay client. URLs maps chain id to relay endpoint.
type Config struct {
	URLs     map[uint64]string
	Timeout  time.Duration
	RetryMax int
	Fast     bool // share with every builder for faster inclusion
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type privacy struct {
	Builders []string `json:"builders,omitempty"`
}

type preferences struct {
	Fast    bool     `json:"fast"`
	Privacy *privacy `json:"privacy,omitempty"`
}

type privateTx struct {
	Tx          string      `json:"tx"`
	Preferences preferences `json:"preferences"`
}

// Client sends eth_sendPrivateTransaction to the relay of each chain.
type Client struct {
	config Config
	http   *retryablehttp.Client
	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[common.Hash]
	tracer trace.Tracer
	ids    atomic.Uint64
	now    func() time.Time
}

// NewClient creates a relay client.
func NewClient(cfg Config, log logger.LoggerInterface) *Client {
	c := &Client{
		config: cfg,
		http: httpclient.NewRetryableClient(httpclient.RetryConfig{
			Name:     "mev-relay",
			Timeout:  cfg.Timeout,
			RetryMax: cfg.RetryMax,
		}, log),
		logger: log,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}

	cbCfg := circuitbreaker.DefaultConfig("mev-relay")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	// a relay rejecting one transaction is still up
	cbCfg.IsSuccessful = func(err error) bool {
		var rpcErr *rpcError
		return errors.As(err, &rpcErr)
	}
	c.cb = circuitbreaker.New[common.Hash](cbCfg)
	return c
}

// Protect implements app.MEVProtector.
func (c *Client) Protect(ctx context.Context, chainID uint64, rawTx []byte, strategies []domain.ProtectionStrategy, blockDelay uint64) (*domain.ProtectedTransaction, error) {
	ctx, span := c.tracer.Start(ctx, "relay.send_private_transaction",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(chainID)),
			attribute.Int("strategies", len(strategies)),
			attribute.Int64("block_delay", int64(blockDelay)),
		))
	defer span.End()

	url, ok := c.config.URLs[chainID]
	if !ok || url == "" {
		return nil, apperror.New(apperror.CodeChainNotConfigured,
			apperror.WithContext(fmt.Sprintf("no relay for chain %d", chainID)))
	}

	params := privateTx{
		Tx:          hexutil.Encode(rawTx),
		Preferences: preferences{Fast: c.config.Fast},
	}
	if slices.Contains(strategies, domain.ProtectFlashbots) {
		params.Preferences.Privacy = &privacy{Builders: []string{"flashbots"}}
	}

	hash, err := c.cb.Execute(func() (common.Hash, error) {
		return c.send(ctx, url, params)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay submission failed")
		return nil, apperror.External(apperror.CodeMEVProtectionFailed,
			fmt.Sprintf("chain %d", chainID), err)
	}

	// the relay returns the hash of what it accepted
	if want := crypto.Keccak256Hash(rawTx); hash != want {
		c.logger.Warn(ctx, "relay returned unexpected hash",
			"chain_id", chainID, "got", hash.Hex(), "want", want.Hex())
		hash = want
	}

	span.SetAttributes(attribute.String("tx_hash", hash.Hex()))
	c.logger.Info(ctx, "transaction sent to private relay",
		"chain_id", chainID,
		"tx_hash", hash.Hex(),
		"block_delay", blockDelay)

	return &domain.ProtectedTransaction{
		ChainID:     chainID,
		Hash:        hash,
		Relay:       url,
		Strategies:  strategies,
		BlockDelay:  blockDelay,
		SubmittedAt: c.now(),
	}, nil
}

func (c *Client) send(ctx context.Context, url string, params privateTx) (common.Hash, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.ids.Add(1),
		Method:  sendPrivateTransaction,
		Params:  []any{params},
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return common.Hash{}, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, msg)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return common.Hash{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return common.Hash{}, out.Error
	}

	var hash common.Hash
	if err := json.Unmarshal(out.Result, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("invalid result %s: %w", out.Result, err)
	}
	return hash, nil
}
