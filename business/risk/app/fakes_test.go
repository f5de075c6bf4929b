package app

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	blockchainDomain "github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/business/risk/domain"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fakeMarkets struct {
	mu     sync.Mutex
	market *domain.MarketCondition
	err    error
}

func (f *fakeMarkets) set(m *domain.MarketCondition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.market = m
}

func (f *fakeMarkets) MarketCondition(_ context.Context, chainID uint64, token common.Address) (*domain.MarketCondition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m := *f.market
	m.ChainID, m.Token = chainID, token
	return &m, nil
}

type fakeCollateral struct {
	usd decimal.Decimal
	err error
}

func (f fakeCollateral) CollateralUSD(context.Context, uint64, common.Address) (decimal.Decimal, error) {
	return f.usd, f.err
}

// fakeChain serves blocks 0..head spaced blockTime apart. Blocks at or below
// validUpTo have valid state roots.
type fakeChain struct {
	head       uint64
	blockTime  time.Duration
	validUpTo  int64 // -1: nothing validates
	validators uint64
	err        error

	mu      sync.Mutex
	lookups []uint64
}

func (f *fakeChain) BlockNumber(context.Context, uint64) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.head, nil
}

func (f *fakeChain) Block(_ context.Context, chainID, number uint64) (*blockchainDomain.Block, error) {
	return &blockchainDomain.Block{
		ChainID:   chainID,
		Number:    number,
		StateRoot: common.BigToHash(new(big.Int).SetUint64(number + 1)),
		Timestamp: time.Unix(1_700_000_000, 0).Add(time.Duration(number) * f.blockTime),
	}, nil
}

func (f *fakeChain) ValidateState(_ context.Context, _ uint64, number uint64, _ common.Hash) (*domain.StateProof, error) {
	f.mu.Lock()
	f.lookups = append(f.lookups, number)
	f.mu.Unlock()
	return &domain.StateProof{IsValid: int64(number) <= f.validUpTo, Timestamp: time.Now()}, nil
}

func (f *fakeChain) ValidatorCount(context.Context, uint64) (uint64, error) {
	return f.validators, nil
}

type fakeBridge struct {
	metrics domain.CrossChainRiskMetrics
}

func (f fakeBridge) BridgeMetrics(context.Context, uint64, uint64, common.Address) (*domain.CrossChainRiskMetrics, error) {
	m := f.metrics
	return &m, nil
}
