package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbguard/business/risk/domain"
	"github.com/fd1az/arbguard/internal/cache"
	"github.com/fd1az/arbguard/internal/logger"
)

func newValidator(t *testing.T, chain *fakeChain) *StateValidator {
	t.Helper()
	last, err := cache.New[uint64, *domain.StateValidationResult](16, 0)
	require.NoError(t, err)
	return NewStateValidator(chain, chain, chain, DefaultStateValidatorConfig(), last, logger.NewNop())
}

func TestStateValidator_HealthyChain(t *testing.T) {
	chain := &fakeChain{head: 5000, blockTime: 12 * time.Second, validUpTo: 5000, validators: 100}
	v := newValidator(t, chain)

	res, err := v.Validate(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, res.IsValid)
	assert.Equal(t, uint64(5000), res.NetworkMetrics.LastValidatedBlock)
	assert.Zero(t, res.NetworkMetrics.ValidationLag)
	assert.InDelta(t, 12000.0, res.NetworkMetrics.AverageBlockTimeMs, 1e-9)
	assert.Equal(t, 0, res.RiskScore)
	assert.True(t, res.NetworkMetrics.IsHealthy)
	assert.Equal(t, []uint64{5000}, chain.lookups, "no search when the head validates")

	cached, ok := v.LastValidation(1)
	require.True(t, ok)
	assert.Same(t, res, cached)
}

func TestStateValidator_FindsLastValidatedBlock(t *testing.T) {
	for _, validUpTo := range []int64{4000, 4001, 4500, 4997, 4998, 4999} {
		chain := &fakeChain{head: 5000, blockTime: 12 * time.Second, validUpTo: validUpTo, validators: 100}
		v := newValidator(t, chain)

		res, err := v.Validate(context.Background(), 1)
		require.NoError(t, err)

		assert.False(t, res.IsValid)
		assert.Equal(t, uint64(validUpTo), res.NetworkMetrics.LastValidatedBlock, "validUpTo %d", validUpTo)
		assert.Equal(t, uint64(5000-validUpTo), res.NetworkMetrics.ValidationLag)
		// Validate plus search lookups stay far below a linear scan.
		assert.Less(t, len(chain.lookups), 60)
	}
}

func TestStateValidator_NothingValidates(t *testing.T) {
	chain := &fakeChain{head: 5000, blockTime: 12 * time.Second, validUpTo: -1, validators: 100}
	v := newValidator(t, chain)

	res, err := v.Validate(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(4000), res.NetworkMetrics.LastValidatedBlock)
	assert.Equal(t, uint64(1000), res.NetworkMetrics.ValidationLag)
	// 30 (lag) + 20 (invalid root)
	assert.Equal(t, 50, res.RiskScore)
	assert.False(t, res.NetworkMetrics.IsHealthy)
	assert.Len(t, res.Warnings, 2)
	// Head lookup, then a single round that starts at the window start.
	assert.Len(t, chain.lookups, 1+DefaultStateValidatorConfig().SearchConcurrency)
	assert.Contains(t, chain.lookups, uint64(4000))
}

func TestStateValidator_ShortChain(t *testing.T) {
	chain := &fakeChain{head: 0, blockTime: time.Second, validUpTo: 0, validators: 5}
	v := newValidator(t, chain)

	res, err := v.Validate(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, res.NetworkMetrics.AverageBlockTimeMs)
}

func TestStateValidator_ProviderErrorIsFatal(t *testing.T) {
	boom := errors.New("rpc down")
	chain := &fakeChain{err: boom}
	v := newValidator(t, chain)

	_, err := v.Validate(context.Background(), 1)
	require.ErrorIs(t, err, boom)

	_, ok := v.LastValidation(1)
	assert.False(t, ok)
}

func TestSearchPoints(t *testing.T) {
	assert.Equal(t, []uint64{10, 11, 12}, searchPoints(10, 12, 8, false))
	assert.Equal(t, []uint64{11, 12}, searchPoints(10, 12, 8, true))
	assert.Nil(t, searchPoints(10, 10, 8, true))

	points := searchPoints(4000, 4999, 4, false)
	assert.Equal(t, []uint64{4000, 4333, 4666, 4999}, points)
}
