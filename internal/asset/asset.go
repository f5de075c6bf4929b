package asset

import "github.com/ethereum/go-ethereum/common"

// Asset is reference metadata for an on-chain asset. Identity is the AssetID;
// the symbol is display only.
type Asset struct {
	id           AssetID
	symbol       string
	name         string
	decimals     uint8
	marketSymbol string
}

// NewAsset creates an Asset. marketSymbol is the ticker its price trades
// under on centralized venues (WETH trades as ETH); empty means symbol.
func NewAsset(id AssetID, symbol, name string, decimals uint8, marketSymbol string) *Asset {
	if symbol == "" {
		panic("asset: empty symbol")
	}
	if decimals > 30 {
		panic("asset: suspicious decimals (>30)")
	}
	if marketSymbol == "" {
		marketSymbol = symbol
	}

	return &Asset{
		id:           id,
		symbol:       symbol,
		name:         name,
		decimals:     decimals,
		marketSymbol: marketSymbol,
	}
}

func (a *Asset) ID() AssetID {
	return a.id
}

func (a *Asset) Symbol() string {
	return a.symbol
}

func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}

func (a *Asset) Decimals() uint8 {
	return a.decimals
}

// MarketSymbol returns the ticker used for market data lookups.
func (a *Asset) MarketSymbol() string {
	return a.marketSymbol
}

func (a *Asset) ChainID() uint64 {
	return a.id.ChainID()
}

func (a *Asset) IsNative() bool {
	return a.id.IsNative()
}

func (a *Asset) Address() common.Address {
	return a.id.Address()
}

func (a *Asset) String() string {
	return a.symbol
}
