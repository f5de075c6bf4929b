package asset

import "github.com/ethereum/go-ethereum/common"

// Chain IDs
const (
	ChainIDEthereum = 1
	ChainIDOptimism = 10
	ChainIDPolygon  = 137
	ChainIDMantle   = 5000
	ChainIDBase     = 8453
	ChainIDArbitrum = 42161
	ChainIDSepolia  = 11155111
)

// Token addresses
var (
	AddrUSDCEthereum = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	AddrUSDTEthereum = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	AddrDAIEthereum  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	AddrWETHEthereum = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	AddrWBTCEthereum = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")

	AddrWMNTMantle = common.HexToAddress("0x78c1b0C915c4FAA5FffA6CAbf0219DA63d7f4cb8")
	AddrWETHMantle = common.HexToAddress("0xdEAddEaDdeadDEadDEADDEAddEADDEAddead1111")
	AddrUSDCMantle = common.HexToAddress("0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9")
	AddrUSDTMantle = common.HexToAddress("0x201EBa5CC46D216Ce6DC03F6a759e8E766e956aE")

	AddrWETHArbitrum = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	AddrUSDCArbitrum = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")

	// OP-stack predeploy shared by Optimism and Base.
	AddrWETHOPStack  = common.HexToAddress("0x4200000000000000000000000000000000000006")
	AddrUSDCOptimism = common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85")
	AddrUSDCBase     = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	AddrWPOLPolygon = common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")
	AddrWETHPolygon = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	AddrUSDCPolygon = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
)

func native(chainID uint64, symbol, name, market string) *Asset {
	return NewAsset(NewNativeAssetID(chainID), symbol, name, 18, market)
}

func token(chainID uint64, addr common.Address, symbol, name string, decimals uint8, market string) *Asset {
	return NewAsset(NewTokenAssetID(chainID, addr), symbol, name, decimals, market)
}

// DefaultRegistry returns a registry pre-populated with the assets of every
// supported chain.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, a := range []*Asset{
		native(ChainIDEthereum, "ETH", "Ethereum", ""),
		token(ChainIDEthereum, AddrWETHEthereum, "WETH", "Wrapped Ether", 18, "ETH"),
		token(ChainIDEthereum, AddrUSDCEthereum, "USDC", "USD Coin", 6, ""),
		token(ChainIDEthereum, AddrUSDTEthereum, "USDT", "Tether USD", 6, ""),
		token(ChainIDEthereum, AddrDAIEthereum, "DAI", "Dai Stablecoin", 18, ""),
		token(ChainIDEthereum, AddrWBTCEthereum, "WBTC", "Wrapped Bitcoin", 8, "BTC"),

		native(ChainIDMantle, "MNT", "Mantle", ""),
		token(ChainIDMantle, AddrWMNTMantle, "WMNT", "Wrapped Mantle", 18, "MNT"),
		token(ChainIDMantle, AddrWETHMantle, "WETH", "Wrapped Ether", 18, "ETH"),
		token(ChainIDMantle, AddrUSDCMantle, "USDC", "USD Coin", 6, ""),
		token(ChainIDMantle, AddrUSDTMantle, "USDT", "Tether USD", 6, ""),

		native(ChainIDArbitrum, "ETH", "Ethereum", ""),
		token(ChainIDArbitrum, AddrWETHArbitrum, "WETH", "Wrapped Ether", 18, "ETH"),
		token(ChainIDArbitrum, AddrUSDCArbitrum, "USDC", "USD Coin", 6, ""),

		native(ChainIDOptimism, "ETH", "Ethereum", ""),
		token(ChainIDOptimism, AddrWETHOPStack, "WETH", "Wrapped Ether", 18, "ETH"),
		token(ChainIDOptimism, AddrUSDCOptimism, "USDC", "USD Coin", 6, ""),

		native(ChainIDBase, "ETH", "Ethereum", ""),
		token(ChainIDBase, AddrWETHOPStack, "WETH", "Wrapped Ether", 18, "ETH"),
		token(ChainIDBase, AddrUSDCBase, "USDC", "USD Coin", 6, ""),

		native(ChainIDPolygon, "POL", "Polygon", ""),
		token(ChainIDPolygon, AddrWPOLPolygon, "WPOL", "Wrapped POL", 18, "POL"),
		token(ChainIDPolygon, AddrWETHPolygon, "WETH", "Wrapped Ether", 18, "ETH"),
		token(ChainIDPolygon, AddrUSDCPolygon, "USDC", "USD Coin", 6, ""),
	} {
		r.Register(a)
	}

	return r
}
