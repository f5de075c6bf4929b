package app

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	blockchainDomain "github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/logger"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	user = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func pools(n int) []domain.Pool {
	out := make([]domain.Pool, n)
	for i := range out {
		out[i] = domain.Pool{Fee: 3000, Liquidity: big.NewInt(1)}
	}
	return out
}

// calmLiquidity scores 27 for a 10 ETH swap (5+6+10+6) and validates.
func calmLiquidity() *domain.AggregatedLiquidity {
	return &domain.AggregatedLiquidity{Pools: pools(4), TotalLiquidity: eth(200), PriceImpact: 0.3, EstimatedGas: 150000}
}

// exposedLiquidity scores 32 for a 10 ETH swap (10+6+10+6), enough for a
// private transaction, and still validates.
func exposedLiquidity() *domain.AggregatedLiquidity {
	return &domain.AggregatedLiquidity{Pools: pools(4), TotalLiquidity: eth(100), PriceImpact: 0.3, EstimatedGas: 150000}
}

type fakeLiquidity struct {
	mu    sync.Mutex
	liq   *domain.AggregatedLiquidity
	err   error
	calls int
}

func (f *fakeLiquidity) AggregatedLiquidity(context.Context, uint64, common.Address, common.Address, *big.Int) (*domain.AggregatedLiquidity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	l := *f.liq
	return &l, nil
}

// fakeGateway mines every transaction it receives. The head advances by one
// on every BlockNumber call.
type fakeGateway struct {
	mu       sync.Mutex
	gasWei   int64
	head     uint64
	sendErrs []error // consumed one per SendTransaction call
	attempts int
	sent     []*types.Transaction
	confirms []uint64
	hang     bool // WaitForConfirmations blocks until ctx ends
}

func (g *fakeGateway) BlockNumber(context.Context, uint64) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.head
	g.head++
	return h, nil
}

func (g *fakeGateway) GasPrice(_ context.Context, chainID uint64) (*blockchainDomain.GasPrice, error) {
	return blockchainDomain.NewGasPrice(chainID, big.NewInt(g.gasWei)), nil
}

func (g *fakeGateway) SendTransaction(_ context.Context, _ uint64, tx *types.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts++
	if len(g.sendErrs) > 0 {
		err := g.sendErrs[0]
		g.sendErrs = g.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	g.sent = append(g.sent, tx)
	return nil
}

func (g *fakeGateway) WaitForConfirmations(ctx context.Context, _ uint64, hash common.Hash, confirmations uint64, _ time.Duration) (*types.Receipt, error) {
	if g.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirms = append(g.confirms, confirmations)
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: big.NewInt(100),
		GasUsed:     120000,
	}, nil
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

// fakeBuilder issues unsigned legacy transactions with increasing nonces.
type fakeBuilder struct {
	mu      sync.Mutex
	nonce   uint64
	amounts []*big.Int
	err     error
}

func (b *fakeBuilder) BuildSwap(_ context.Context, req SwapRequest) (*types.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    b.nonce,
		To:       &req.TokenOut,
		Value:    new(big.Int),
		Gas:      200000,
		GasPrice: big.NewInt(1e9),
		Data:     req.Amount.Bytes(),
	})
	b.nonce++
	b.amounts = append(b.amounts, req.Amount)
	return tx, nil
}

type fakeProtector struct {
	mu         sync.Mutex
	raw        []byte
	strategies []domain.ProtectionStrategy
	delay      uint64
	err        error
}

func (p *fakeProtector) Protect(_ context.Context, chainID uint64, rawTx []byte, strategies []domain.ProtectionStrategy, delay uint64) (*domain.ProtectedTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.raw, p.strategies, p.delay = rawTx, strategies, delay

	return &domain.ProtectedTransaction{
		ChainID:     chainID,
		Hash:        crypto.Keccak256Hash(rawTx),
		Relay:       "test-relay",
		Strategies:  strategies,
		BlockDelay:  delay,
		SubmittedAt: time.Now(),
	}, nil
}

type harness struct {
	liquidity *fakeLiquidity
	gateway   *fakeGateway
	builder   *fakeBuilder
	protector *fakeProtector
	mev       *MEVAssessor
	engine    *Engine
	sleeps    []time.Duration
}

func newHarness(rules domain.SettlementRules) *harness {
	h := &harness{
		liquidity: &fakeLiquidity{liq: calmLiquidity()},
		gateway:   &fakeGateway{gasWei: 30e9, head: 1000},
		builder:   &fakeBuilder{},
		protector: &fakeProtector{},
	}

	log := logger.NewNop()
	mev, err := NewMEVAssessor(h.liquidity, h.gateway, h.protector, domain.DefaultMEVConfig(), time.Millisecond, log)
	if err != nil {
		panic(err)
	}
	h.mev = mev

	decimals := func(_ uint64, token common.Address) uint8 {
		if token == usdc {
			return 6
		}
		return 18
	}
	engine, err := NewEngine(h.liquidity, mev, h.gateway, h.builder, decimals, rules,
		ExecutorConfig{ConfirmPoll: time.Millisecond, SubmitRetries: 3}, log)
	if err != nil {
		panic(err)
	}
	engine.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	h.engine = engine
	return h
}
