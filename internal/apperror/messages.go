package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeUpstreamFailure:      "Upstream dependency failed",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Chain access
	CodeChainNotConfigured:    "No provider configured for chain",
	CodeRPCConnectionFailed:   "Failed to connect to chain RPC endpoint",
	CodeRPCError:              "Chain RPC call failed",
	CodeBlockNotFound:         "Block not found",
	CodeGasEstimationFailed:   "Gas estimation failed",
	CodeContractCallFailed:    "Smart contract call failed",
	CodeTransactionFailed:     "Transaction submission failed",
	CodeTransactionReverted:   "Transaction reverted",
	CodeConfirmationTimeout:   "Timed out waiting for confirmations",
	CodeSigningFailed:         "Transaction signing failed",
	CodeStateProofFailed:      "State root validation failed",
	CodeValidatorQueryFailed:  "Validator registry query failed",
	CodeBridgeStatusFailed:    "Bridge status query failed",
	CodeMarketDataFailed:      "Market data query failed",
	CodeReserveDataFailed:     "Lending reserve query failed",
	CodeCollateralQueryFailed: "Collateral query failed",

	// Risk
	CodeNoRiskInputs:      "No risk inputs provided",
	CodeInvalidLoanAmount: "Loan amount must be greater than zero",
	CodeInvalidAddress:    "Invalid address",
	CodeInvalidChainID:    "Invalid chain id",
	CodeHealthFactorLow:   "Cannot disable collateral: health factor too low",

	// Settlement
	CodeLiquidityFetchFailed:  "Failed to aggregate liquidity",
	CodeUniswapPoolNotFound:   "Uniswap pool not found",
	CodeUniswapQuoteFailed:    "Failed to get Uniswap quote",
	CodeSwapBuildFailed:       "Failed to build swap transaction",
	CodeGasPriceTooHigh:       "Gas price too high for settlement",
	CodeSettlementFailed:      "Settlement execution failed",
	CodeUnknownStrategy:       "Unknown settlement strategy",
	CodeMEVProtectionFailed:   "MEV protection submission failed",
	CodeExecutionDelayExceeds: "Settlement exceeded maximum execution delay",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
