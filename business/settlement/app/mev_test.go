package app

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
)

func signedless(nonce uint64) *types.Transaction {
	return types.NewTx(&types.LegacyTx{Nonce: nonce, Value: new(big.Int), Gas: 21000, GasPrice: big.NewInt(1e9)})
}

func TestMEVAssessor_Assess(t *testing.T) {
	tests := []struct {
		name           string
		liq            *domain.AggregatedLiquidity
		wantScore      float64
		wantStrategies []domain.ProtectionStrategy
		wantDelay      uint64
	}{
		{
			name:           "calm pool needs no protection",
			liq:            calmLiquidity(),
			wantScore:      27,
			wantStrategies: []domain.ProtectionStrategy{},
			wantDelay:      2,
		},
		{
			name:           "shallower pool goes private",
			liq:            exposedLiquidity(),
			wantScore:      32,
			wantStrategies: []domain.ProtectionStrategy{domain.ProtectPrivateTx},
			wantDelay:      2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(domain.DefaultSettlementRules())
			h.liquidity.liq = tt.liq

			a, err := h.mev.Assess(context.Background(), 1, weth, usdc, eth(10))
			require.NoError(t, err)

			assert.Equal(t, uint64(1), a.ChainID)
			assert.InDelta(t, tt.wantScore, a.RiskScore, 1e-9)
			assert.Equal(t, tt.wantStrategies, a.ProtectionStrategies)
			assert.Equal(t, tt.wantDelay, a.RecommendedBlockDelay)
			assert.Equal(t, 1, h.liquidity.calls)
		})
	}
}

func TestMEVAssessor_AssessErrors(t *testing.T) {
	h := newHarness(domain.DefaultSettlementRules())

	_, err := h.mev.Assess(context.Background(), 1, weth, usdc, big.NewInt(0))
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidInput))

	upstream := errors.New("quoter reverted")
	h.liquidity.err = upstream
	_, err = h.mev.Assess(context.Background(), 1, weth, usdc, eth(1))
	assert.ErrorIs(t, err, upstream)
}

func TestMEVAssessor_Protect(t *testing.T) {
	tests := []struct {
		name           string
		assessment     *domain.MEVRiskAssessment
		wantStrategies []domain.ProtectionStrategy
		wantDelay      uint64
		wantHead       uint64
	}{
		{
			name:           "no ladder still goes private",
			assessment:     &domain.MEVRiskAssessment{ProtectionStrategies: []domain.ProtectionStrategy{}, RecommendedBlockDelay: 1},
			wantStrategies: []domain.ProtectionStrategy{domain.ProtectPrivateTx},
			wantHead:       1000,
		},
		{
			name:           "delay ignored without time-delay",
			assessment:     &domain.MEVRiskAssessment{ProtectionStrategies: []domain.ProtectionStrategy{domain.ProtectPrivateTx}, RecommendedBlockDelay: 2},
			wantStrategies: []domain.ProtectionStrategy{domain.ProtectPrivateTx},
			wantHead:       1000,
		},
		{
			name: "waits out the block delay",
			assessment: &domain.MEVRiskAssessment{
				ProtectionStrategies:  []domain.ProtectionStrategy{domain.ProtectPrivateTx, domain.ProtectTimeDelay},
				RecommendedBlockDelay: 3,
			},
			wantStrategies: []domain.ProtectionStrategy{domain.ProtectPrivateTx, domain.ProtectTimeDelay},
			wantDelay:      3,
			// start read plus reads at 1001, 1002 and 1003
			wantHead: 1004,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(domain.DefaultSettlementRules())
			tx := signedless(7)

			p, err := h.mev.Protect(context.Background(), 1, tx, tt.assessment)
			require.NoError(t, err)

			raw, err := tx.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, raw, h.protector.raw)
			assert.Equal(t, tt.wantStrategies, h.protector.strategies)
			assert.Equal(t, tt.wantDelay, h.protector.delay)
			assert.Equal(t, tx.Hash(), p.Hash)
			assert.Equal(t, tt.wantHead, h.gateway.head)
		})
	}
}

func TestMEVAssessor_ProtectRelayFailure(t *testing.T) {
	h := newHarness(domain.DefaultSettlementRules())
	relayErr := apperror.New(apperror.CodeMEVProtectionFailed)
	h.protector.err = relayErr

	_, err := h.mev.Protect(context.Background(), 1, signedless(1), &domain.MEVRiskAssessment{})
	assert.Same(t, relayErr, err)
}

func TestMEVAssessor_ProtectDelayCancelled(t *testing.T) {
	h := newHarness(domain.DefaultSettlementRules())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &domain.MEVRiskAssessment{
		ProtectionStrategies:  []domain.ProtectionStrategy{domain.ProtectTimeDelay},
		RecommendedBlockDelay: 50,
	}
	_, err := h.mev.Protect(ctx, 1, signedless(1), a)
	assert.True(t, apperror.HasCode(err, apperror.CodeExecutionDelayExceeds))
	assert.Nil(t, h.protector.raw)
}
