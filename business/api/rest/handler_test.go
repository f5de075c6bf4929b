package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	riskDomain "github.com/fd1az/arbguard/business/risk/domain"
	settlementDomain "github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	user = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakeRisk struct {
	flashArgs   []any
	params      riskDomain.AssessmentParams
	last        *riskDomain.RiskAssessmentResult
	invalidated bool
	err         error
	block       bool
}

func (f *fakeRisk) AssessFlashLoanRisk(_ context.Context, chainID uint64, token common.Address, amount *big.Int, u common.Address) (*riskDomain.FlashLoanRisk, error) {
	f.flashArgs = []any{chainID, token, amount, u}
	if f.err != nil {
		return nil, f.err
	}
	return &riskDomain.FlashLoanRisk{ChainID: chainID, Token: token, User: u, Amount: amount, RiskScore: 42}, nil
}

func (f *fakeRisk) ValidateNetworkState(ctx context.Context, chainID uint64) (*riskDomain.StateValidationResult, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &riskDomain.StateValidationResult{ChainID: chainID, IsValid: true, RiskScore: 10}, nil
}

func (f *fakeRisk) AssessRisk(_ context.Context, chainID uint64, p riskDomain.AssessmentParams) (*riskDomain.RiskAssessmentResult, error) {
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	return &riskDomain.RiskAssessmentResult{ChainID: chainID, OverallRiskScore: 55}, nil
}

func (f *fakeRisk) LastAssessment(uint64, common.Address, common.Address) (*riskDomain.RiskAssessmentResult, bool) {
	return f.last, f.last != nil
}

func (f *fakeRisk) Invalidate(uint64, common.Address, common.Address) bool {
	f.invalidated = true
	return true
}

type fakeMEV struct {
	amount *big.Int
}

func (f *fakeMEV) Assess(_ context.Context, chainID uint64, _, _ common.Address, amount *big.Int) (*settlementDomain.MEVRiskAssessment, error) {
	f.amount = amount
	return &settlementDomain.MEVRiskAssessment{ChainID: chainID, RiskScore: 31}, nil
}

type fakeSettlement struct {
	validation *settlementDomain.SettlementValidation
	req        settlementDomain.SettlementRequest
	execErr    error
}

func (f *fakeSettlement) ValidateSettlement(context.Context, uint64, common.Address, common.Address, *big.Int, common.Address) (*settlementDomain.SettlementValidation, error) {
	return f.validation, nil
}

func (f *fakeSettlement) DetermineSettlementStrategy(uint64, common.Address, *settlementDomain.SettlementValidation, *big.Int) settlementDomain.SettlementStrategy {
	return settlementDomain.Split(3, 30*time.Second)
}

func (f *fakeSettlement) ExecuteSettlement(_ context.Context, req settlementDomain.SettlementRequest) (*settlementDomain.SettlementResult, error) {
	f.req = req
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &settlementDomain.SettlementResult{ChainID: req.ChainID, Strategy: settlementDomain.Standard()}, nil
}

type harness struct {
	risk       *fakeRisk
	mev        *fakeMEV
	settlement *fakeSettlement
	router     *gin.Engine
}

func newHarness(timeout time.Duration) *harness {
	h := &harness{
		risk: &fakeRisk{},
		mev:  &fakeMEV{},
		settlement: &fakeSettlement{validation: &settlementDomain.SettlementValidation{
			IsValid: true, Errors: []string{}, Warnings: []string{}, PriceImpact: 1.2,
		}},
	}
	handler := NewHandler(h.risk, h.mev, h.settlement, timeout, logger.NewNop())
	h.router = NewRouter(handler, logger.NewNop())
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestAssessFlashLoan(t *testing.T) {
	h := newHarness(time.Second)

	w := h.do(t, http.MethodPost, "/v1/risk/flash-loan", gin.H{
		"chainId": 1,
		"token":   weth.Hex(),
		"amount":  "1000000000000000000000000000000",
		"user":    user.Hex(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	amount, _ := new(big.Int).SetString("1000000000000000000000000000000", 10)
	assert.Equal(t, []any{uint64(1), weth, amount, user}, h.risk.flashArgs)
	assert.Equal(t, 42, decode[riskDomain.FlashLoanRisk](t, w).RiskScore)
}

func TestAssessFlashLoan_BadInput(t *testing.T) {
	tests := []struct {
		name     string
		body     gin.H
		wantCode apperror.Code
	}{
		{
			name:     "missing user",
			body:     gin.H{"chainId": 1, "token": weth.Hex(), "amount": "1"},
			wantCode: apperror.CodeInvalidInput,
		},
		{
			name:     "bad token",
			body:     gin.H{"chainId": 1, "token": "weth", "amount": "1", "user": user.Hex()},
			wantCode: apperror.CodeInvalidAddress,
		},
		{
			name:     "fractional amount",
			body:     gin.H{"chainId": 1, "token": weth.Hex(), "amount": "1.5", "user": user.Hex()},
			wantCode: apperror.CodeInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(time.Second)
			w := h.do(t, http.MethodPost, "/v1/risk/flash-loan", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, decode[apperror.ErrorResponse](t, w).Error.Code)
			assert.Nil(t, h.risk.flashArgs)
		})
	}
}

func TestAssessFlashLoan_UpstreamError(t *testing.T) {
	h := newHarness(time.Second)
	h.risk.err = apperror.External(apperror.CodeReserveDataFailed, "chain 1", errors.New("rpc down"))

	w := h.do(t, http.MethodPost, "/v1/risk/flash-loan", gin.H{
		"chainId": 1, "token": weth.Hex(), "amount": "1", "user": user.Hex(),
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, apperror.CodeReserveDataFailed, decode[apperror.ErrorResponse](t, w).Error.Code)
}

func TestValidateNetwork(t *testing.T) {
	h := newHarness(time.Second)

	w := h.do(t, http.MethodGet, "/v1/risk/network/5000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(5000), decode[riskDomain.StateValidationResult](t, w).ChainID)

	w = h.do(t, http.MethodGet, "/v1/risk/network/mantle", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeInvalidChainID, decode[apperror.ErrorResponse](t, w).Error.Code)
}

func TestValidateNetwork_CallTimeout(t *testing.T) {
	h := newHarness(20 * time.Millisecond)
	h.risk.block = true

	w := h.do(t, http.MethodGet, "/v1/risk/network/1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, apperror.CodeServiceTimeout, decode[apperror.ErrorResponse](t, w).Error.Code)
}

func TestAssessRisk(t *testing.T) {
	h := newHarness(time.Second)

	w := h.do(t, http.MethodPost, "/v1/risk/assess", gin.H{
		"chainId":             1,
		"targetChainId":       5000,
		"includeNetworkState": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, riskDomain.AssessmentParams{TargetChainID: 5000, IncludeNetworkState: true}, h.risk.params)
	assert.False(t, h.risk.params.WantsFlashLoan())
	assert.Equal(t, 55, decode[riskDomain.RiskAssessmentResult](t, w).OverallRiskScore)
}

func TestLastAssessment(t *testing.T) {
	h := newHarness(time.Second)
	path := "/v1/risk/last?chainId=1&token=" + weth.Hex() + "&user=" + user.Hex()

	w := h.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	h.risk.last = &riskDomain.RiskAssessmentResult{ChainID: 1, OverallRiskScore: 61}
	w = h.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 61, decode[riskDomain.RiskAssessmentResult](t, w).OverallRiskScore)

	w = h.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.risk.invalidated)

	w = h.do(t, http.MethodGet, "/v1/risk/last", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssessMEV(t *testing.T) {
	h := newHarness(time.Second)

	w := h.do(t, http.MethodPost, "/v1/mev/assess", gin.H{
		"chainId":     1,
		"sourceToken": weth.Hex(),
		"targetToken": usdc.Hex(),
		"amount":      "10000000000000000000",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "10000000000000000000", h.mev.amount.String())
	assert.InDelta(t, 31, decode[settlementDomain.MEVRiskAssessment](t, w).RiskScore, 1e-9)
}

func TestSettlementStrategy(t *testing.T) {
	h := newHarness(time.Second)

	w := h.do(t, http.MethodPost, "/v1/settlement/strategy", gin.H{
		"chainId":     1,
		"sourceToken": weth.Hex(),
		"targetToken": usdc.Hex(),
		"amount":      "10",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode[strategyResponse](t, w)
	assert.Equal(t, settlementDomain.Split(3, 30*time.Second), res.Strategy)
	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.IsValid)
}

func TestValidateSettlement(t *testing.T) {
	h := newHarness(time.Second)

	w := h.do(t, http.MethodPost, "/v1/settlement/validate", gin.H{
		"chainId":     1,
		"sourceToken": weth.Hex(),
		"targetToken": usdc.Hex(),
		"amount":      "10",
		"user":        user.Hex(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 1.2, decode[settlementDomain.SettlementValidation](t, w).PriceImpact, 1e-9)
}

func TestExecuteSettlement(t *testing.T) {
	h := newHarness(time.Second)

	w := h.do(t, http.MethodPost, "/v1/settlement/execute", gin.H{
		"chainId":     1,
		"sourceToken": weth.Hex(),
		"targetToken": usdc.Hex(),
		"amount":      "11000000000000000000",
		"user":        user.Hex(),
		"strategy":    gin.H{"type": "batched", "batchSize": 3},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NotNil(t, h.settlement.req.Strategy)
	assert.Equal(t, settlementDomain.Batched(3), *h.settlement.req.Strategy)
	assert.Equal(t, user, h.settlement.req.User)
	assert.Equal(t, "11000000000000000000", h.settlement.req.Amount.String())
}

func TestExecuteSettlement_Errors(t *testing.T) {
	h := newHarness(time.Second)
	body := gin.H{
		"chainId":     1,
		"sourceToken": weth.Hex(),
		"targetToken": usdc.Hex(),
		"amount":      "1",
		"strategy":    gin.H{"type": "flash"},
	}

	w := h.do(t, http.MethodPost, "/v1/settlement/execute", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeInvalidInput, decode[apperror.ErrorResponse](t, w).Error.Code)

	delete(body, "strategy")
	h.settlement.execErr = apperror.New(apperror.CodeGasPriceTooHigh)
	w = h.do(t, http.MethodPost, "/v1/settlement/execute", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeGasPriceTooHigh, decode[apperror.ErrorResponse](t, w).Error.Code)
	assert.Nil(t, h.settlement.req.Strategy)
}
