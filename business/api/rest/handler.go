// Package rest exposes risk, MEV and settlement operations over HTTP.
package rest

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	riskDomain "github.com/fd1az/arbguard/business/risk/domain"
	settlementDomain "github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

// RiskService is the risk surface served by the API.
type RiskService interface {
	AssessFlashLoanRisk(ctx context.Context, chainID uint64, token common.Address, amount *big.Int, user common.Address) (*riskDomain.FlashLoanRisk, error)
	ValidateNetworkState(ctx context.Context, chainID uint64) (*riskDomain.StateValidationResult, error)
	AssessRisk(ctx context.Context, chainID uint64, params riskDomain.AssessmentParams) (*riskDomain.RiskAssessmentResult, error)
	LastAssessment(chainID uint64, token, user common.Address) (*riskDomain.RiskAssessmentResult, bool)
	Invalidate(chainID uint64, token, user common.Address) bool
}

// MEVService scores MEV exposure.
type MEVService interface {
	Assess(ctx context.Context, chainID uint64, tokenIn, tokenOut common.Address, amount *big.Int) (*settlementDomain.MEVRiskAssessment, error)
}

// SettlementService validates and executes settlements.
type SettlementService interface {
	ValidateSettlement(ctx context.Context, chainID uint64, sourceToken, targetToken common.Address, amount *big.Int, user common.Address) (*settlementDomain.SettlementValidation, error)
	DetermineSettlementStrategy(chainID uint64, sourceToken common.Address, v *settlementDomain.SettlementValidation, amount *big.Int) settlementDomain.SettlementStrategy
	ExecuteSettlement(ctx context.Context, req settlementDomain.SettlementRequest) (*settlementDomain.SettlementResult, error)
}

// Handler serves the /v1 routes.
type Handler struct {
	risk        RiskService
	mev         MEVService
	settlement  SettlementService
	callTimeout time.Duration
	logger      logger.LoggerInterface
}

// NewHandler creates a Handler. callTimeout bounds every read-only call;
// settlement execution carries its own deadline.
func NewHandler(risk RiskService, mev MEVService, settlement SettlementService, callTimeout time.Duration, log logger.LoggerInterface) *Handler {
	return &Handler{
		risk:        risk,
		mev:         mev,
		settlement:  settlement,
		callTimeout: callTimeout,
		logger:      log,
	}
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bounded := r.Group("", h.timeoutMiddleware())

	risk := bounded.Group("/risk")
	risk.POST("/flash-loan", h.AssessFlashLoan)
	risk.GET("/network/:chainId", h.ValidateNetwork)
	risk.POST("/assess", h.AssessRisk)
	risk.GET("/last", h.LastAssessment)
	risk.DELETE("/last", h.InvalidateAssessment)

	bounded.POST("/mev/assess", h.AssessMEV)

	bounded.POST("/settlement/validate", h.ValidateSettlement)
	bounded.POST("/settlement/strategy", h.SettlementStrategy)
	r.POST("/settlement/execute", h.ExecuteSettlement)
}

func (h *Handler) timeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.callTimeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.callTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AssessFlashLoan handles POST /v1/risk/flash-loan.
func (h *Handler) AssessFlashLoan(c *gin.Context) {
	var req flashLoanRequest
	if !h.bind(c, &req) {
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		h.fail(c, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.risk.AssessFlashLoanRisk(c.Request.Context(), req.ChainID, token, amount, user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ValidateNetwork handles GET /v1/risk/network/:chainId.
func (h *Handler) ValidateNetwork(c *gin.Context) {
	chainID, err := strconv.ParseUint(c.Param("chainId"), 10, 64)
	if err != nil || chainID == 0 {
		h.fail(c, apperror.Validation(apperror.CodeInvalidChainID, "chainId: "+c.Param("chainId")))
		return
	}

	res, err := h.risk.ValidateNetworkState(c.Request.Context(), chainID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AssessRisk handles POST /v1/risk/assess.
func (h *Handler) AssessRisk(c *gin.Context) {
	var req assessRequest
	if !h.bind(c, &req) {
		return
	}
	params, err := req.params()
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.risk.AssessRisk(c.Request.Context(), req.ChainID, params)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// LastAssessment handles GET /v1/risk/last?chainId=&token=&user=.
func (h *Handler) LastAssessment(c *gin.Context) {
	chainID, token, user, ok := h.assessmentKey(c)
	if !ok {
		return
	}

	res, found := h.risk.LastAssessment(chainID, token, user)
	if !found {
		h.fail(c, apperror.NotFound(apperror.CodeNotFound, "no assessment cached for this key"))
		return
	}
	c.JSON(http.StatusOK, res)
}

// InvalidateAssessment handles DELETE /v1/risk/last?chainId=&token=&user=.
func (h *Handler) InvalidateAssessment(c *gin.Context) {
	chainID, token, user, ok := h.assessmentKey(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": h.risk.Invalidate(chainID, token, user)})
}

func (h *Handler) assessmentKey(c *gin.Context) (uint64, common.Address, common.Address, bool) {
	chainID, err := strconv.ParseUint(c.Query("chainId"), 10, 64)
	if err != nil || chainID == 0 {
		h.fail(c, apperror.Validation(apperror.CodeInvalidChainID, "chainId: "+c.Query("chainId")))
		return 0, common.Address{}, common.Address{}, false
	}
	token, err := optionalAddress("token", c.Query("token"))
	if err != nil {
		h.fail(c, err)
		return 0, common.Address{}, common.Address{}, false
	}
	user, err := optionalAddress("user", c.Query("user"))
	if err != nil {
		h.fail(c, err)
		return 0, common.Address{}, common.Address{}, false
	}
	return chainID, token, user, true
}

// AssessMEV handles POST /v1/mev/assess.
func (h *Handler) AssessMEV(c *gin.Context) {
	var req swapRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := req.parse()
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.mev.Assess(c.Request.Context(), p.chainID, p.source, p.target, p.amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ValidateSettlement handles POST /v1/settlement/validate.
func (h *Handler) ValidateSettlement(c *gin.Context) {
	var req swapRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := req.parse()
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.settlement.ValidateSettlement(c.Request.Context(), p.chainID, p.source, p.target, p.amount, p.user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SettlementStrategy handles POST /v1/settlement/strategy. It validates
// first and returns the verdict next to the chosen strategy.
func (h *Handler) SettlementStrategy(c *gin.Context) {
	var req swapRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := req.parse()
	if err != nil {
		h.fail(c, err)
		return
	}

	v, err := h.settlement.ValidateSettlement(c.Request.Context(), p.chainID, p.source, p.target, p.amount, p.user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, strategyResponse{
		Strategy:   h.settlement.DetermineSettlementStrategy(p.chainID, p.source, v, p.amount),
		Validation: v,
	})
}

// ExecuteSettlement handles POST /v1/settlement/execute.
func (h *Handler) ExecuteSettlement(c *gin.Context) {
	var req executeRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := req.parse()
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.Strategy != nil && !req.Strategy.Kind.Valid() {
		h.fail(c, apperror.Validation(apperror.CodeInvalidInput, "strategy.type: "+string(req.Strategy.Kind)))
		return
	}

	res, err := h.settlement.ExecuteSettlement(c.Request.Context(), settlementDomain.SettlementRequest{
		ChainID:     p.chainID,
		SourceToken: p.source,
		TargetToken: p.target,
		Amount:      p.amount,
		User:        p.user,
		Strategy:    req.Strategy,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, apperror.New(apperror.CodeInvalidInput,
			apperror.WithCause(err),
			apperror.WithContext(err.Error())))
		return false
	}
	return true
}

// fail renders err as an AppError response. Deadlines become
// SERVICE_TIMEOUT; anything else without a code is an internal error.
func (h *Handler) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var appErr *apperror.AppError
	if errors.Is(err, context.DeadlineExceeded) && !apperror.IsAppError(err) {
		appErr = apperror.New(apperror.CodeServiceTimeout, apperror.WithCause(err))
	} else {
		appErr = apperror.Wrap(err, apperror.CodeInternalError, c.FullPath())
	}

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		appErr.WithTraceID(sc.TraceID().String())
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error(ctx, "request failed", "path", c.FullPath(), "error", appErr.ToLog())
	} else {
		h.logger.Debug(ctx, "request rejected", "path", c.FullPath(), "code", appErr.Code)
	}

	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}
