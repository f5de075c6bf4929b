package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/asset"
)

// MarketConditions composes reserve data and market stats into a
// MarketCondition. Both fetches run concurrently.
type MarketConditions struct {
	reserves ReserveDataProvider
	stats    MarketStatsProvider
	assets   *asset.Registry
}

var _ MarketConditionProvider = (*MarketConditions)(nil)

// NewMarketConditions creates a MarketConditions.
func NewMarketConditions(reserves ReserveDataProvider, stats MarketStatsProvider, assets *asset.Registry) *MarketConditions {
	return &MarketConditions{reserves: reserves, stats: stats, assets: assets}
}

// MarketCondition implements MarketConditionProvider.
func (m *MarketConditions) MarketCondition(ctx context.Context, chainID uint64, token common.Address) (*domain.MarketCondition, error) {
	a, ok := m.assets.Resolve(chainID, token)
	if !ok {
		return nil, apperror.Validation(apperror.CodeInvalidAddress,
			fmt.Sprintf("token %s is not known on chain %d", token.Hex(), chainID))
	}

	var (
		reserve *domain.ReserveData
		stats   *domain.MarketStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reserve, err = m.reserves.ReserveData(gctx, chainID, token)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = m.stats.MarketStats(gctx, chainID, token)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return domain.NewMarketCondition(chainID, token, a.Decimals(), *reserve, *stats), nil
}
