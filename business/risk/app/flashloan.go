package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/cache"
)

// FlashLoanScorer scores proposed flash loans.
type FlashLoanScorer struct {
	markets    MarketConditionProvider
	collateral CollateralProvider
	config     domain.FlashLoanConfig

	lastMarket *cache.Cache[string, *domain.MarketCondition]
}

// NewFlashLoanScorer creates a FlashLoanScorer. Market snapshots are kept in
// a bounded cache for LastMarketCondition.
func NewFlashLoanScorer(markets MarketConditionProvider, collateral CollateralProvider, cfg domain.FlashLoanConfig, lastMarket *cache.Cache[string, *domain.MarketCondition]) *FlashLoanScorer {
	return &FlashLoanScorer{
		markets:    markets,
		collateral: collateral,
		config:     cfg,
		lastMarket: lastMarket,
	}
}

// Assess scores borrowing amount of token on chainID for user. Market data
// and collateral are fetched concurrently; upstream errors are returned
// unchanged.
func (s *FlashLoanScorer) Assess(ctx context.Context, chainID uint64, token common.Address, amount *big.Int, user common.Address) (*domain.FlashLoanRisk, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidLoanAmount, "amount must be positive")
	}

	var (
		market        *domain.MarketCondition
		collateralUSD decimal.Decimal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		market, err = s.markets.MarketCondition(gctx, chainID, token)
		return err
	})
	g.Go(func() error {
		var err error
		collateralUSD, err = s.collateral.CollateralUSD(gctx, chainID, user)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.lastMarket != nil {
		s.lastMarket.Set(marketKey(chainID, token), market)
	}

	return domain.ScoreFlashLoan(s.config, market, user, amount, collateralUSD), nil
}

// LastMarketCondition returns the most recent market snapshot for a token.
func (s *FlashLoanScorer) LastMarketCondition(chainID uint64, token common.Address) (*domain.MarketCondition, bool) {
	if s.lastMarket == nil {
		return nil, false
	}
	return s.lastMarket.Get(marketKey(chainID, token))
}

func marketKey(chainID uint64, token common.Address) string {
	return fmt.Sprintf("%d-%s", chainID, token.Hex())
}
