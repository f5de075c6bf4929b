package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/arbguard/business/risk/domain"
)

// BridgeScorer scores bridge routes.
type BridgeScorer struct {
	metrics BridgeMetricsProvider
	config  domain.BridgeConfig
}

// NewBridgeScorer creates a BridgeScorer.
func NewBridgeScorer(metrics BridgeMetricsProvider, cfg domain.BridgeConfig) *BridgeScorer {
	return &BridgeScorer{metrics: metrics, config: cfg}
}

// Score fetches the route's metrics and scores moving amount of token.
func (b *BridgeScorer) Score(ctx context.Context, sourceChainID, targetChainID uint64, token common.Address, amount *big.Int) (*domain.BridgeRisk, error) {
	m, err := b.metrics.BridgeMetrics(ctx, sourceChainID, targetChainID, token)
	if err != nil {
		return nil, err
	}
	return domain.ScoreBridge(b.config, *m, amount), nil
}

// Config returns the scorer calibration.
func (b *BridgeScorer) Config() domain.BridgeConfig {
	return b.config
}
