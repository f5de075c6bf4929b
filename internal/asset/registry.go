package asset

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is a thread-safe registry of known assets.
type Registry struct {
	byID map[AssetID]*Asset
	mu   sync.RWMutex
}

// NewRegistry creates a new empty asset registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[AssetID]*Asset)}
}

// Register adds an asset. Registering the same ID twice is a programming
// error and panics.
func (r *Registry) Register(a *Asset) {
	if a == nil {
		panic("asset: cannot register nil asset")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[a.ID()]; exists {
		panic(fmt.Sprintf("asset: %s already registered", a.ID()))
	}
	r.byID[a.ID()] = a
}

// Get retrieves an asset by its ID.
func (r *Registry) Get(id AssetID) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	return a, ok
}

// Resolve looks up the asset at address on chainID; the zero address
// resolves to the native coin.
func (r *Registry) Resolve(chainID uint64, address common.Address) (*Asset, bool) {
	if address == (common.Address{}) {
		return r.Get(NewNativeAssetID(chainID))
	}
	return r.Get(NewTokenAssetID(chainID, address))
}

// Native retrieves the native coin for a chain.
func (r *Registry) Native(chainID uint64) (*Asset, bool) {
	return r.Get(NewNativeAssetID(chainID))
}

// Count returns the number of registered assets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
