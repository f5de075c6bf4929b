package oneinch

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blockchainDomain "github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/business/settlement/app"
	"github.com/fd1az/arbguard/business/settlement/infra/ethereum"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

const testKey = "0x0000000000000000000000000000000000000000000000000000000000000001"

var (
	router    = common.HexToAddress("0x111111125421cA6dc452d289314280a0f8842A65")
	weth      = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakeChain struct {
	mu      sync.Mutex
	pending uint64
}

func (f *fakeChain) PendingNonceAt(context.Context, uint64, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeChain) GasPrice(_ context.Context, chainID uint64) (*blockchainDomain.GasPrice, error) {
	return blockchainDomain.NewGasPrice(chainID, big.NewInt(30e9)), nil
}

type swapServer struct {
	mu      sync.Mutex
	queries []map[string]string
	auth    string
	path    string
	status  int
	body    any
}

func (s *swapServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	s.queries = append(s.queries, q)
	s.auth = r.Header.Get("Authorization")
	s.path = r.URL.Path
	status, body := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func okSwap(gas uint64, gasPrice string) SwapResponse {
	return SwapResponse{
		DstAmount: "3500000000",
		Tx: SwapTx{
			From:     "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf",
			To:       router.Hex(),
			Data:     "0x12aa3caf0000",
			Value:    "0",
			Gas:      gas,
			GasPrice: gasPrice,
		},
	}
}

func newTestBuilder(t *testing.T, srv *swapServer, withSigner bool) *Builder {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	client, err := NewClient(ClientConfig{BaseURL: ts.URL, APIKey: "secret", RateLimit: 100, Burst: 10, Slippage: 0.5}, logger.NewNop())
	require.NoError(t, err)

	var signer Signer
	if withSigner {
		s, err := ethereum.NewSigner(testKey, &fakeChain{pending: 4}, logger.NewNop())
		require.NoError(t, err)
		signer = s
	}

	b, err := NewBuilder(client, signer, logger.NewNop())
	require.NoError(t, err)
	return b
}

func swapRequest() app.SwapRequest {
	return app.SwapRequest{ChainID: 1, TokenIn: weth, TokenOut: usdc, Amount: big.NewInt(1e18), Recipient: recipient}
}

func TestBuilder_BuildSwap(t *testing.T) {
	srv := &swapServer{body: okSwap(200000, "25000000000")}
	b := newTestBuilder(t, srv, true)

	tx, err := b.BuildSwap(context.Background(), swapRequest())
	require.NoError(t, err)

	assert.Equal(t, "/1/swap", srv.path)
	assert.Equal(t, "Bearer secret", srv.auth)
	require.Len(t, srv.queries, 1)
	q := srv.queries[0]
	assert.Equal(t, weth.Hex(), q["src"])
	assert.Equal(t, usdc.Hex(), q["dst"])
	assert.Equal(t, "1000000000000000000", q["amount"])
	assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", q["from"])
	assert.Equal(t, recipient.Hex(), q["receiver"])
	assert.Equal(t, "0.5", q["slippage"])
	assert.Equal(t, "true", q["disableEstimate"])

	assert.Equal(t, &router, tx.To())
	assert.Equal(t, []byte{0x12, 0xaa, 0x3c, 0xaf, 0x00, 0x00}, tx.Data())
	assert.Equal(t, uint64(250000), tx.Gas())
	assert.Equal(t, big.NewInt(25e9), tx.GasPrice())
	assert.Equal(t, uint64(4), tx.Nonce())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"), from)
}

func TestBuilder_Defaults(t *testing.T) {
	srv := &swapServer{body: okSwap(0, "")}
	b := newTestBuilder(t, srv, true)

	req := swapRequest()
	req.Recipient = common.Address{}

	first, err := b.BuildSwap(context.Background(), req)
	require.NoError(t, err)
	second, err := b.BuildSwap(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, DefaultGasLimit, first.Gas())
	assert.Equal(t, big.NewInt(30e9), first.GasPrice())
	assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", srv.queries[0]["receiver"])
	assert.Equal(t, first.Nonce()+1, second.Nonce())
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		srv        *swapServer
		withSigner bool
		wantCode   apperror.Code
	}{
		{
			name:       "no signer",
			srv:        &swapServer{body: okSwap(200000, "")},
			withSigner: false,
			wantCode:   apperror.CodeConfigurationError,
		},
		{
			name: "api rejection",
			srv: &swapServer{status: http.StatusBadRequest, body: map[string]any{
				"statusCode":  400,
				"error":       "Bad Request",
				"description": "insufficient liquidity",
			}},
			withSigner: true,
			wantCode:   apperror.CodeSwapBuildFailed,
		},
		{
			name:       "no router transaction",
			srv:        &swapServer{body: SwapResponse{DstAmount: "1"}},
			withSigner: true,
			wantCode:   apperror.CodeSwapBuildFailed,
		},
		{
			name: "bad calldata",
			srv: &swapServer{body: SwapResponse{Tx: SwapTx{
				To:   router.Hex(),
				Data: "not-hex",
			}}},
			withSigner: true,
			wantCode:   apperror.CodeSwapBuildFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(t, tt.srv, tt.withSigner)
			tx, err := b.BuildSwap(context.Background(), swapRequest())
			assert.Nil(t, tx)
			assert.True(t, apperror.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestBuilder_ClientErrorsDoNotTrip(t *testing.T) {
	srv := &swapServer{status: http.StatusBadRequest, body: map[string]any{
		"statusCode":  400,
		"description": "insufficient liquidity",
	}}
	b := newTestBuilder(t, srv, true)

	for range 8 {
		_, err := b.BuildSwap(context.Background(), swapRequest())
		require.True(t, apperror.HasCode(err, apperror.CodeSwapBuildFailed), "got %v", err)
	}
	assert.Len(t, srv.queries, 8)
}

func TestWithBuffer(t *testing.T) {
	assert.Equal(t, DefaultGasLimit, withBuffer(0))
	assert.Equal(t, uint64(125000), withBuffer(100000))
}
