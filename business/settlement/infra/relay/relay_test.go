package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

var rawTx = []byte{0x02, 0xf8, 0x6f, 0x01, 0x80}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, string, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		URLs:     map[uint64]string{1: srv.URL},
		Timeout:  time.Second,
		RetryMax: 2,
		Fast:     true,
	}, logger.NewNop())
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = 5 * time.Millisecond
	return c, srv.URL, &calls
}

func TestClient_Protect(t *testing.T) {
	want := crypto.Keccak256Hash(rawTx)
	var got rpcRequest
	var params []privateTx

	c, url, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var raw struct {
			rpcRequest
			Params []privateTx `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		got, params = raw.rpcRequest, raw.Params

		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%q}`, raw.ID, want.Hex())
	})

	strategies := []domain.ProtectionStrategy{domain.ProtectPrivateTx, domain.ProtectTimeDelay, domain.ProtectBundle, domain.ProtectFlashbots}
	p, err := c.Protect(context.Background(), 1, rawTx, strategies, 4)
	require.NoError(t, err)

	assert.Equal(t, sendPrivateTransaction, got.Method)
	assert.Equal(t, "2.0", got.JSONRPC)
	require.Len(t, params, 1)
	assert.Equal(t, hexutil.Encode(rawTx), params[0].Tx)
	assert.True(t, params[0].Preferences.Fast)
	require.NotNil(t, params[0].Preferences.Privacy)
	assert.Equal(t, []string{"flashbots"}, params[0].Preferences.Privacy.Builders)

	assert.Equal(t, uint64(1), p.ChainID)
	assert.Equal(t, want, p.Hash)
	assert.Equal(t, url, p.Relay)
	assert.Equal(t, strategies, p.Strategies)
	assert.Equal(t, uint64(4), p.BlockDelay)
	assert.False(t, p.SubmittedAt.IsZero())
}

func TestClient_ProtectWithoutFlashbots(t *testing.T) {
	var params []privateTx
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw struct {
			Params []privateTx `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		params = raw.Params
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%q}`, crypto.Keccak256Hash(rawTx).Hex())
	})

	_, err := c.Protect(context.Background(), 1, rawTx, []domain.ProtectionStrategy{domain.ProtectPrivateTx}, 0)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Nil(t, params[0].Preferences.Privacy)
}

func TestClient_ProtectRetriesServerErrors(t *testing.T) {
	c, _, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := c.Protect(context.Background(), 1, rawTx, nil, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeMEVProtectionFailed), "got %v", err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ProtectRelayRejection(t *testing.T) {
	c, _, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"nonce too low"}}`)
	})

	_, err := c.Protect(context.Background(), 1, rawTx, nil, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeMEVProtectionFailed))
	var rpcErr *rpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "nonce too low", rpcErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ProtectUnknownChain(t *testing.T) {
	c, _, calls := newTestClient(t, func(http.ResponseWriter, *http.Request) {})

	_, err := c.Protect(context.Background(), 5000, rawTx, nil, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeChainNotConfigured))
	assert.Zero(t, calls.Load())
}
