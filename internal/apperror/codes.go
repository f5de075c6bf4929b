package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeUpstreamFailure      Code = "UPSTREAM_FAILURE"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Chain access error codes
const (
	CodeChainNotConfigured    Code = "CHAIN_NOT_CONFIGURED"
	CodeRPCConnectionFailed   Code = "RPC_CONNECTION_FAILED"
	CodeRPCError              Code = "RPC_ERROR"
	CodeBlockNotFound         Code = "BLOCK_NOT_FOUND"
	CodeGasEstimationFailed   Code = "GAS_ESTIMATION_FAILED"
	CodeContractCallFailed    Code = "CONTRACT_CALL_FAILED"
	CodeTransactionFailed     Code = "TRANSACTION_FAILED"
	CodeTransactionReverted   Code = "TRANSACTION_REVERTED"
	CodeConfirmationTimeout   Code = "CONFIRMATION_TIMEOUT"
	CodeSigningFailed         Code = "SIGNING_FAILED"
	CodeStateProofFailed      Code = "STATE_PROOF_FAILED"
	CodeValidatorQueryFailed  Code = "VALIDATOR_QUERY_FAILED"
	CodeBridgeStatusFailed    Code = "BRIDGE_STATUS_FAILED"
	CodeMarketDataFailed      Code = "MARKET_DATA_FAILED"
	CodeReserveDataFailed     Code = "RESERVE_DATA_FAILED"
	CodeCollateralQueryFailed Code = "COLLATERAL_QUERY_FAILED"
)

// Risk error codes
const (
	CodeNoRiskInputs      Code = "NO_RISK_INPUTS"
	CodeInvalidLoanAmount Code = "INVALID_LOAN_AMOUNT"
	CodeInvalidAddress    Code = "INVALID_ADDRESS"
	CodeInvalidChainID    Code = "INVALID_CHAIN_ID"
	CodeHealthFactorLow   Code = "HEALTH_FACTOR_TOO_LOW"
)

// Settlement error codes
const (
	CodeLiquidityFetchFailed  Code = "LIQUIDITY_FETCH_FAILED"
	CodeUniswapPoolNotFound   Code = "UNISWAP_POOL_NOT_FOUND"
	CodeUniswapQuoteFailed    Code = "UNISWAP_QUOTE_FAILED"
	CodeSwapBuildFailed       Code = "SWAP_BUILD_FAILED"
	CodeGasPriceTooHigh       Code = "GAS_PRICE_TOO_HIGH"
	CodeSettlementFailed      Code = "SETTLEMENT_FAILED"
	CodeUnknownStrategy       Code = "UNKNOWN_STRATEGY"
	CodeMEVProtectionFailed   Code = "MEV_PROTECTION_FAILED"
	CodeExecutionDelayExceeds Code = "EXECUTION_DELAY_EXCEEDED"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
