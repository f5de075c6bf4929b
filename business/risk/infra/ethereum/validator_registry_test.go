package ethereum

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

var registryAddr = common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")

type fakeCaller struct {
	count *big.Int
	err   error
	calls int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if *msg.To != registryAddr {
		return nil, errors.New("unexpected target")
	}
	parsed, err := abi.JSON(strings.NewReader(ValidatorRegistryABI))
	if err != nil {
		return nil, err
	}
	return parsed.Methods["getValidatorCount"].Outputs.Pack(f.count)
}

func TestValidatorRegistry_ValidatorCount(t *testing.T) {
	sources := map[uint64]ValidatorSource{
		1:    {Registry: registryAddr},
		5000: {Count: 1},
	}

	tests := []struct {
		name      string
		chainID   uint64
		caller    *fakeCaller
		want      uint64
		wantCalls int
		wantCode  apperror.Code
	}{
		{name: "registry contract", chainID: 1, caller: &fakeCaller{count: big.NewInt(42)}, want: 42, wantCalls: 1},
		{name: "fixed count", chainID: 5000, caller: &fakeCaller{}, want: 1},
		{name: "unknown chain", chainID: 10, caller: &fakeCaller{}, wantCode: apperror.CodeChainNotConfigured},
		{name: "call fails", chainID: 1, caller: &fakeCaller{err: errors.New("execution reverted")}, wantCode: apperror.CodeValidatorQueryFailed, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewValidatorRegistry(sources, func(uint64) (ethereum.ContractCaller, error) {
				return tt.caller, nil
			}, logger.NewNop())
			require.NoError(t, err)

			got, err := r.ValidatorCount(context.Background(), tt.chainID)
			assert.Equal(t, tt.wantCalls, tt.caller.calls)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, apperror.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
