// Package ethereum signs settlement transactions for the configured account.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	blockchainDomain "github.com/fd1az/arbguard/business/blockchain/domain"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

// nonceTTL bounds how long a locally issued nonce is trusted over the
// node's pending nonce. Transactions signed but never broadcast stop
// blocking the sequence once it expires.
const nonceTTL = time.Minute

// ChainState is what signing needs from a chain.
type ChainState interface {
	PendingNonceAt(ctx context.Context, chainID uint64, account common.Address) (uint64, error)
	GasPrice(ctx context.Context, chainID uint64) (*blockchainDomain.GasPrice, error)
}

// Call is an unsigned contract call.
type Call struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int // nil uses the chain's suggested price
}

type issued struct {
	next uint64
	at   time.Time
}

// Signer signs legacy transactions and hands out consecutive nonces per
// chain, so several transactions can be built before any is mined.
type Signer struct {
	key    *ecdsa.PrivateKey
	from   common.Address
	chain  ChainState
	logger logger.LoggerInterface
	now    func() time.Time

	mu     sync.Mutex
	nonces map[uint64]issued
}

// NewSigner creates a Signer from a hex private key, with or without 0x.
func NewSigner(hexKey string, chain ChainState, log logger.LoggerInterface) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("settlement.signer_key"))
	}

	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, apperror.Configuration(apperror.CodeConfigurationError, "failed to derive public key")
	}

	return &Signer{
		key:    key,
		from:   crypto.PubkeyToAddress(*pub),
		chain:  chain,
		logger: log,
		now:    time.Now,
		nonces: make(map[uint64]issued),
	}, nil
}

// Address returns the signing account.
func (s *Signer) Address() common.Address {
	return s.from
}

// nextNonce returns the larger of the node's pending nonce and the next
// locally issued one.
func (s *Signer) nextNonce(ctx context.Context, chainID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.chain.PendingNonceAt(ctx, chainID, s.from)
	if err != nil {
		return 0, err
	}

	n := pending
	if last, ok := s.nonces[chainID]; ok && s.now().Sub(last.at) < nonceTTL && last.next > n {
		n = last.next
	}
	s.nonces[chainID] = issued{next: n + 1, at: s.now()}
	return n, nil
}

// Sign builds and signs call for chainID.
func (s *Signer) Sign(ctx context.Context, chainID uint64, call Call) (*types.Transaction, error) {
	gasPrice := call.GasPrice
	if gasPrice == nil || gasPrice.Sign() == 0 {
		gp, err := s.chain.GasPrice(ctx, chainID)
		if err != nil {
			return nil, err
		}
		gasPrice = gp.Wei
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := s.nextNonce(ctx, chainID)
	if err != nil {
		return nil, err
	}

	to := call.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      call.Gas,
		GasPrice: gasPrice,
		Data:     call.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), s.key)
	if err != nil {
		return nil, apperror.New(apperror.CodeSigningFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d nonce %d", chainID, nonce)))
	}

	s.logger.Debug(ctx, "transaction signed",
		"chain_id", chainID,
		"tx_hash", signed.Hash().Hex(),
		"nonce", nonce,
		"to", to.Hex())

	return signed, nil
}
