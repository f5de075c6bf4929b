package app

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/cache"
	"github.com/fd1az/arbguard/internal/logger"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	user = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func moderateMarket() *domain.MarketCondition {
	return domain.NewMarketCondition(1, weth, 18, domain.ReserveData{
		AvailableLiquidity: eth(10),
		TotalStableDebt:    eth(2),
		TotalVariableDebt:  eth(3),
	}, domain.MarketStats{
		Volatility24h:          1.5,
		AverageTransactionSize: eth(1),
		PriceUSD:               decimal.NewFromInt(2000),
	})
}

type assessorFixture struct {
	markets  *fakeMarkets
	chain    *fakeChain
	assessor *Assessor
}

func newAssessorFixture(t *testing.T) *assessorFixture {
	t.Helper()

	markets := &fakeMarkets{market: moderateMarket()}
	chain := &fakeChain{head: 5000, blockTime: 12 * time.Second, validUpTo: 5000, validators: 100}

	lastMarket, err := cache.New[string, *domain.MarketCondition](16, 0)
	require.NoError(t, err)
	results, err := cache.New[domain.AssessmentKey, *domain.RiskAssessmentResult](16, 0)
	require.NoError(t, err)

	flash := NewFlashLoanScorer(markets, fakeCollateral{usd: decimal.NewFromInt(6000)}, domain.DefaultFlashLoanConfig(), lastMarket)
	bridge := NewBridgeScorer(fakeBridge{metrics: domain.CrossChainRiskMetrics{
		LatencyMs:          30000,
		Reliability:        0.99,
		AvailableLiquidity: eth(5),
	}}, domain.DefaultBridgeConfig())

	a, err := NewAssessor(flash, newValidator(t, chain), bridge, domain.DefaultCompositeWeights(), results, logger.NewNop())
	require.NoError(t, err)

	return &assessorFixture{markets: markets, chain: chain, assessor: a}
}

func TestFlashLoanScorer_Assess(t *testing.T) {
	f := newAssessorFixture(t)

	r, err := f.assessor.AssessFlashLoanRisk(context.Background(), 1, weth, eth(1), user)
	require.NoError(t, err)
	assert.Equal(t, 30, r.RiskScore)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, 0, r.MaxLoanAmount.Cmp(eth(8)))

	m, ok := f.assessor.LastMarketCondition(1, weth)
	require.True(t, ok)
	assert.Equal(t, 0, m.TotalLiquidity.Cmp(eth(10)))

	_, err = f.assessor.AssessFlashLoanRisk(context.Background(), 1, weth, big.NewInt(0), user)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidLoanAmount))
}

func TestAssessor_NoInputs(t *testing.T) {
	f := newAssessorFixture(t)

	_, err := f.assessor.AssessRisk(context.Background(), 1, domain.AssessmentParams{})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeNoRiskInputs))
}

func TestAssessor_FlashLoanAndNetwork(t *testing.T) {
	f := newAssessorFixture(t)
	// Lag of 10 blocks (30) plus an invalid head root (20): unhealthy at 50.
	f.chain.validUpTo = 4990

	res, err := f.assessor.AssessRisk(context.Background(), 1, domain.AssessmentParams{
		Token:               weth,
		Amount:              eth(1),
		User:                user,
		IncludeNetworkState: true,
	})
	require.NoError(t, err)

	require.NotNil(t, res.Components.FlashLoanRisk)
	require.NotNil(t, res.Components.NetworkStateRisk)
	assert.Equal(t, 30, res.Components.FlashLoanRisk.Score)
	assert.Equal(t, 50, res.Components.NetworkStateRisk.Score)
	// round(30*0.4 + 50*0.6) = 42
	assert.Equal(t, 42, res.OverallRiskScore)
	assert.Contains(t, res.Recommendations, domain.RecommendDelayHighValue)
}

func TestAssessor_CrossChain(t *testing.T) {
	f := newAssessorFixture(t)

	res, err := f.assessor.AssessRisk(context.Background(), 1, domain.AssessmentParams{
		Token:         weth,
		Amount:        eth(1),
		TargetChainID: 5000,
	})
	require.NoError(t, err)

	assert.Nil(t, res.Components.FlashLoanRisk, "flash loan needs a user")
	require.NotNil(t, res.Components.CrossChainRisk)
	// latency 20 + reliability 0.3 + liquidity 75/5 = 35
	assert.Equal(t, 35, res.Components.CrossChainRisk.Score)
	assert.Equal(t, 35, res.OverallRiskScore)
	assert.Equal(t, uint64(5000), res.Components.CrossChainRisk.TargetChainID)
}

func TestAssessor_LastWriteWins(t *testing.T) {
	f := newAssessorFixture(t)
	params := domain.AssessmentParams{Token: weth, Amount: eth(1), User: user}

	first, err := f.assessor.AssessRisk(context.Background(), 1, params)
	require.NoError(t, err)

	stressed := moderateMarket()
	stressed.UtilizationRate = 0.99
	f.markets.set(stressed)

	second, err := f.assessor.AssessRisk(context.Background(), 1, params)
	require.NoError(t, err)
	require.NotEqual(t, first.OverallRiskScore, second.OverallRiskScore)

	last, ok := f.assessor.LastAssessment(1, weth, user)
	require.True(t, ok)
	assert.Same(t, second, last)

	assert.True(t, f.assessor.Invalidate(1, weth, user))
	_, ok = f.assessor.LastAssessment(1, weth, user)
	assert.False(t, ok)
}

func TestAssessor_FailureIsNotCached(t *testing.T) {
	f := newAssessorFixture(t)
	params := domain.AssessmentParams{Token: weth, Amount: eth(1), User: user}

	boom := errors.New("aave unavailable")
	f.markets.err = boom

	_, err := f.assessor.AssessRisk(context.Background(), 1, params)
	require.ErrorIs(t, err, boom)

	_, ok := f.assessor.LastAssessment(1, weth, user)
	assert.False(t, ok)
}
