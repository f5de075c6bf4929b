// Package domain contains the core domain types for the blockchain context.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is the header view of a block on a specific chain.
type Block struct {
	ChainID    uint64
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	StateRoot  common.Hash
	Timestamp  time.Time
	GasLimit   uint64
	GasUsed    uint64
	BaseFee    *big.Int
}

// BlockFromHeader converts a go-ethereum header.
func BlockFromHeader(chainID uint64, h *types.Header) *Block {
	return &Block{
		ChainID:    chainID,
		Number:     h.Number.Uint64(),
		Hash:       h.Hash(),
		ParentHash: h.ParentHash,
		StateRoot:  h.Root,
		Timestamp:  time.Unix(int64(h.Time), 0).UTC(),
		GasLimit:   h.GasLimit,
		GasUsed:    h.GasUsed,
		BaseFee:    h.BaseFee,
	}
}

// Confirmations returns how many blocks have been built on top of included,
// counting the inclusion block itself.
func Confirmations(head, included uint64) uint64 {
	if head < included {
		return 0
	}
	return head - included + 1
}
