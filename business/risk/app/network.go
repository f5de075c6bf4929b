package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	blockchainDomain "github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/cache"
	"github.com/fd1az/arbguard/internal/logger"
)

// StateValidatorConfig tunes network-state validation.
type StateValidatorConfig struct {
	Thresholds        domain.NetworkThresholds
	BlockSampleSize   uint64 // blocks averaged for block time
	SearchWindow      uint64 // blocks searched for the last validated block
	SearchConcurrency int
}

// DefaultStateValidatorConfig returns the reference configuration.
func DefaultStateValidatorConfig() StateValidatorConfig {
	return StateValidatorConfig{
		Thresholds:        domain.DefaultNetworkThresholds(),
		BlockSampleSize:   100,
		SearchWindow:      1000,
		SearchConcurrency: 8,
	}
}

// StateValidator scores a chain's consensus and settlement state.
type StateValidator struct {
	reader     ChainReader
	proofs     StateProofValidator
	validators ValidatorRegistry
	config     StateValidatorConfig
	logger     logger.LoggerInterface

	lastValidation *cache.Cache[uint64, *domain.StateValidationResult]
}

// NewStateValidator creates a StateValidator.
func NewStateValidator(reader ChainReader, proofs StateProofValidator, validators ValidatorRegistry, cfg StateValidatorConfig, lastValidation *cache.Cache[uint64, *domain.StateValidationResult], log logger.LoggerInterface) *StateValidator {
	if cfg.SearchConcurrency < 2 {
		cfg.SearchConcurrency = 2
	}
	if cfg.BlockSampleSize == 0 {
		cfg.BlockSampleSize = 100
	}
	return &StateValidator{
		reader:         reader,
		proofs:         proofs,
		validators:     validators,
		config:         cfg,
		logger:         log,
		lastValidation: lastValidation,
	}
}

// Validate reads the head of chainID, validates its state root and scores
// the chain. Any provider error fails the whole call.
func (v *StateValidator) Validate(ctx context.Context, chainID uint64) (*domain.StateValidationResult, error) {
	head, err := v.reader.BlockNumber(ctx, chainID)
	if err != nil {
		return nil, err
	}
	current, err := v.reader.Block(ctx, chainID, head)
	if err != nil {
		return nil, err
	}

	var (
		proof      *domain.StateProof
		first      *blockchainDomain.Block
		validators uint64
	)
	span := min(v.config.BlockSampleSize, head+1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		proof, err = v.proofs.ValidateState(gctx, chainID, head, current.StateRoot)
		return err
	})
	g.Go(func() error {
		if span < 2 {
			return nil
		}
		var err error
		first, err = v.reader.Block(gctx, chainID, head-span+1)
		return err
	})
	g.Go(func() error {
		var err error
		validators, err = v.validators.ValidatorCount(gctx, chainID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lastValidated := head
	if !proof.IsValid {
		lo, hi := domain.SearchWindow(head, v.config.SearchWindow)
		lastValidated, err = v.lastValidated(ctx, chainID, lo, hi)
		if err != nil {
			return nil, err
		}
	}

	var avgBlockTime float64
	if first != nil {
		avgBlockTime = domain.AverageBlockTimeMs(first.Timestamp, current.Timestamp, span)
	}

	metrics := domain.NetworkStateMetrics{
		BlockHeight:        head,
		LastValidatedBlock: lastValidated,
		ValidationLag:      head - lastValidated,
		StateRoot:          current.StateRoot,
		ValidatorCount:     validators,
		AverageBlockTimeMs: avgBlockTime,
	}
	score, warnings := domain.ScoreNetworkState(v.config.Thresholds, metrics, proof.IsValid)
	metrics.IsHealthy = domain.IsHealthy(score)

	res := &domain.StateValidationResult{
		ChainID:        chainID,
		IsValid:        proof.IsValid,
		NetworkMetrics: metrics,
		RiskScore:      score,
		Warnings:       warnings,
		Timestamp:      time.Now(),
	}

	if v.lastValidation != nil {
		v.lastValidation.Set(chainID, res)
	}

	v.logger.Debug(ctx, "network state validated",
		"chain_id", chainID,
		"head", head,
		"valid", proof.IsValid,
		"lag", metrics.ValidationLag,
		"score", score)

	return res, nil
}

// LastValidation returns the most recent result for chainID.
func (v *StateValidator) LastValidation(chainID uint64) (*domain.StateValidationResult, bool) {
	if v.lastValidation == nil {
		return nil, false
	}
	return v.lastValidation.Get(chainID)
}

// lastValidated finds the highest block in [lo, hi] whose state root
// validates, assuming validity is a prefix property of the window. Each round
// checks up to SearchConcurrency blocks at once and narrows the range to the
// gap above the highest valid point. When lo itself does not validate the
// search stops and lo is returned.
func (v *StateValidator) lastValidated(ctx context.Context, chainID uint64, lo, hi uint64) (uint64, error) {
	k := v.config.SearchConcurrency
	known := false

	for {
		points := searchPoints(lo, hi, k, known)
		if len(points) == 0 {
			return lo, nil
		}

		valid := make([]bool, len(points))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(k)
		for i, n := range points {
			g.Go(func() error {
				ok, err := v.validAt(gctx, chainID, n)
				valid[i] = ok
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}

		best := -1
		for i := len(points) - 1; i >= 0; i-- {
			if valid[i] {
				best = i
				break
			}
		}

		if best < 0 {
			if !known {
				v.logger.Warn(ctx, "no validated block in search window", "chain_id", chainID, "from", lo, "to", hi)
				return lo, nil
			}
			hi = points[0] - 1
			continue
		}

		lo, known = points[best], true
		if best+1 < len(points) {
			hi = points[best+1] - 1
		}
		if lo >= hi {
			return lo, nil
		}
	}
}

func (v *StateValidator) validAt(ctx context.Context, chainID, number uint64) (bool, error) {
	b, err := v.reader.Block(ctx, chainID, number)
	if err != nil {
		return false, err
	}
	p, err := v.proofs.ValidateState(ctx, chainID, number, b.StateRoot)
	if err != nil {
		return false, err
	}
	return p.IsValid, nil
}

// searchPoints spreads up to k search points over [lo, hi], the first at lo (or
// lo+1 when lo is already known to validate) and last at hi.
func searchPoints(lo, hi uint64, k int, known bool) []uint64 {
	start := lo
	if known {
		start++
	}
	if start > hi {
		return nil
	}

	n := hi - start + 1
	if n <= uint64(k) {
		points := make([]uint64, 0, n)
		for b := start; b <= hi; b++ {
			points = append(points, b)
		}
		return points
	}

	points := make([]uint64, k)
	for i := range k {
		points[i] = start + uint64(i)*(n-1)/uint64(k-1)
	}
	return points
}
