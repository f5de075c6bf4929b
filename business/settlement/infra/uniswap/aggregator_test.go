package uniswap

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/asset"
	"github.com/fd1az/arbguard/internal/logger"
)

var (
	factory  = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	quoter   = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	tokenIn  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	tokenOut = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	pool500  = common.HexToAddress("0x0000000000000000000000000000000000000500")
	pool3000 = common.HexToAddress("0x0000000000000000000000000000000000003000")

	// price of 1 in Q64.96
	sqrtOne = new(big.Int).Lsh(big.NewInt(1), 96)
)

// fakeCaller answers calls by target and exact calldata.
type fakeCaller struct {
	mu        sync.Mutex
	responses map[string][]byte
	err       error
}

func key(to common.Address, data []byte) string {
	return to.Hex() + ":" + hex.EncodeToString(data)
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out, ok := f.responses[key(*msg.To, msg.Data)]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

type chainMock struct {
	t      *testing.T
	caller *fakeCaller
}

func newChainMock(t *testing.T) *chainMock {
	return &chainMock{t: t, caller: &fakeCaller{responses: map[string][]byte{}}}
}

func parse(t *testing.T, abiJSON string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	require.NoError(t, err)
	return parsed
}

func (m *chainMock) on(to common.Address, abiJSON, method string, args []any, returns ...any) {
	m.t.Helper()
	parsed := parse(m.t, abiJSON)
	data, err := parsed.Pack(method, args...)
	require.NoError(m.t, err)
	out, err := parsed.Methods[method].Outputs.Pack(returns...)
	require.NoError(m.t, err)
	m.caller.responses[key(to, data)] = out
}

func (m *chainMock) pool(fee int64, addr common.Address) {
	m.on(factory, FactoryABI, "getPool", []any{tokenIn, tokenOut, big.NewInt(fee)}, addr)
}

func (m *chainMock) state(addr common.Address, balance, sqrtPrice *big.Int) {
	m.on(tokenIn, ERC20ABI, "balanceOf", []any{addr}, balance)
	m.on(addr, PoolABI, "slot0", nil, sqrtPrice, big.NewInt(0), uint16(0), uint16(1), uint16(1), uint8(0), true)
}

func (m *chainMock) quote(fee int64, amountIn, amountOut, gas *big.Int) {
	m.on(quoter, QuoterV2ABI, "quoteExactInputSingle", []any{QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(fee),
		SqrtPriceLimitX96: big.NewInt(0),
	}}, amountOut, sqrtOne, uint32(1), gas)
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// twoPools lists 0.05% and 0.30% pools at a price of one.
func twoPools(t *testing.T) *chainMock {
	m := newChainMock(t)
	m.pool(FeeTier001, common.Address{})
	m.pool(FeeTier005, pool500)
	m.pool(FeeTier030, pool3000)
	m.pool(FeeTier100, common.Address{})
	m.state(pool500, eth(40), sqrtOne)
	m.state(pool3000, eth(60), sqrtOne)
	return m
}

func newTestAggregator(t *testing.T, caller *fakeCaller) *Aggregator {
	t.Helper()
	a, err := NewAggregator(
		map[uint64]Deployment{1: {Factory: factory, Quoter: quoter}},
		func(uint64) (ethereum.ContractCaller, error) { return caller, nil },
		asset.DefaultRegistry(),
		logger.NewNop(),
	)
	require.NoError(t, err)
	return a
}

func TestAggregator_AggregatedLiquidity(t *testing.T) {
	m := twoPools(t)
	amount := big.NewInt(1000)
	m.quote(FeeTier005, amount, big.NewInt(990), big.NewInt(80000))
	m.quote(FeeTier030, amount, big.NewInt(994), big.NewInt(90000))

	liq, err := newTestAggregator(t, m.caller).AggregatedLiquidity(context.Background(), 1, tokenIn, tokenOut, amount)
	require.NoError(t, err)

	require.Equal(t, 2, liq.PoolCount())
	assert.Equal(t, pool500, liq.Pools[0].Address)
	assert.Equal(t, uint32(FeeTier030), liq.Pools[1].Fee)
	assert.Equal(t, 0, liq.TotalLiquidity.Cmp(eth(100)))
	assert.True(t, liq.BestPrice.Equal(decimal.RequireFromString("0.994")), liq.BestPrice.String())
	// 994 out of a fee-adjusted 997
	assert.InDelta(t, (1-994.0/997.0)*100, liq.PriceImpact, 1e-9)
	assert.Equal(t, uint64(111000), liq.EstimatedGas)
}

func TestAggregator_ShallowPoolStillCounts(t *testing.T) {
	m := twoPools(t)
	amount := big.NewInt(1000)
	// the 0.30% pool cannot fill the amount and reverts
	m.quote(FeeTier005, amount, big.NewInt(999), big.NewInt(80000))

	liq, err := newTestAggregator(t, m.caller).AggregatedLiquidity(context.Background(), 1, tokenIn, tokenOut, amount)
	require.NoError(t, err)

	assert.Equal(t, 2, liq.PoolCount())
	assert.Nil(t, liq.Pools[1].AmountOut)
	assert.Equal(t, 0, liq.Pools[0].AmountOut.Cmp(big.NewInt(999)))
	assert.Equal(t, uint64(101000), liq.EstimatedGas)
	// 999 out of a fee-adjusted 999.5
	assert.InDelta(t, (1-999.0/999.5)*100, liq.PriceImpact, 1e-9)
}

func TestAggregator_Errors(t *testing.T) {
	tests := []struct {
		name     string
		chainID  uint64
		mock     func(t *testing.T) *chainMock
		wantCode apperror.Code
	}{
		{
			name:     "unknown chain",
			chainID:  10,
			mock:     newChainMock,
			wantCode: apperror.CodeChainNotConfigured,
		},
		{
			name:    "no pools",
			chainID: 1,
			mock: func(t *testing.T) *chainMock {
				m := newChainMock(t)
				for _, fee := range []int64{FeeTier001, FeeTier005, FeeTier030, FeeTier100} {
					m.pool(fee, common.Address{})
				}
				return m
			},
			wantCode: apperror.CodeUniswapPoolNotFound,
		},
		{
			name:    "rpc down",
			chainID: 1,
			mock: func(t *testing.T) *chainMock {
				m := newChainMock(t)
				m.caller.err = errors.New("dial tcp: connection refused")
				return m
			},
			wantCode: apperror.CodeLiquidityFetchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.mock(t)
			_, err := newTestAggregator(t, m.caller).AggregatedLiquidity(context.Background(), tt.chainID, tokenIn, tokenOut, big.NewInt(1000))
			assert.True(t, apperror.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestSpotPrice(t *testing.T) {
	four := new(big.Int).Lsh(big.NewInt(1), 97) // sqrt price 2

	assert.True(t, spotPrice(four, tokenIn, tokenOut).Equal(decimal.NewFromInt(4)))
	assert.True(t, spotPrice(four, tokenOut, tokenIn).Equal(decimal.RequireFromString("0.25")))
	assert.True(t, spotPrice(big.NewInt(0), tokenIn, tokenOut).IsZero())
}

func TestPriceImpact(t *testing.T) {
	one := decimal.NewFromInt(1)

	assert.Zero(t, priceImpact(decimal.NewFromInt(1000), decimal.NewFromInt(1000), one, 0))
	assert.InDelta(t, 10, priceImpact(decimal.NewFromInt(1000), decimal.NewFromInt(900), one, 0), 1e-9)
	assert.Zero(t, priceImpact(decimal.Zero, decimal.Zero, one, 3000))
}
