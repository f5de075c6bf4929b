package aave

// PoolDataProviderABI covers AaveProtocolDataProvider.getReserveData (V3).
const PoolDataProviderABI = `[
	{
		"inputs": [{"internalType": "address", "name": "asset", "type": "address"}],
		"name": "getReserveData",
		"outputs": [
			{"internalType": "uint256", "name": "unbacked", "type": "uint256"},
			{"internalType": "uint256", "name": "accruedToTreasuryScaled", "type": "uint256"},
			{"internalType": "uint256", "name": "totalAToken", "type": "uint256"},
			{"internalType": "uint256", "name": "totalStableDebt", "type": "uint256"},
			{"internalType": "uint256", "name": "totalVariableDebt", "type": "uint256"},
			{"internalType": "uint256", "name": "liquidityRate", "type": "uint256"},
			{"internalType": "uint256", "name": "variableBorrowRate", "type": "uint256"},
			{"internalType": "uint256", "name": "stableBorrowRate", "type": "uint256"},
			{"internalType": "uint256", "name": "averageStableBorrowRate", "type": "uint256"},
			{"internalType": "uint256", "name": "liquidityIndex", "type": "uint256"},
			{"internalType": "uint256", "name": "variableBorrowIndex", "type": "uint256"},
			{"internalType": "uint40", "name": "lastUpdateTimestamp", "type": "uint40"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// PoolABI covers Pool.getUserAccountData (V3). Base-currency values carry
// 8 decimals (USD).
const PoolABI = `[
	{
		"inputs": [{"internalType": "address", "name": "user", "type": "address"}],
		"name": "getUserAccountData",
		"outputs": [
			{"internalType": "uint256", "name": "totalCollateralBase", "type": "uint256"},
			{"internalType": "uint256", "name": "totalDebtBase", "type": "uint256"},
			{"internalType": "uint256", "name": "availableBorrowsBase", "type": "uint256"},
			{"internalType": "uint256", "name": "currentLiquidationThreshold", "type": "uint256"},
			{"internalType": "uint256", "name": "ltv", "type": "uint256"},
			{"internalType": "uint256", "name": "healthFactor", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// baseCurrencyDecimals is the precision of Aave V3 base-currency amounts.
const baseCurrencyDecimals = 8

// healthFactorDecimals is the precision of the health factor (1e18 = 1.0).
const healthFactorDecimals = 18
