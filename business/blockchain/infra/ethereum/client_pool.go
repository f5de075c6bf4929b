// Package ethereum provides go-ethereum backed adapters for the blockchain context.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"

	"github.com/fd1az/arbguard/business/blockchain/app"
	"github.com/fd1az/arbguard/internal/apperror"
	"github.com/fd1az/arbguard/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbguard/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/arbguard/business/blockchain/infra/ethereum"
)

// Endpoint is one chain's RPC endpoint.
type Endpoint struct {
	ChainID uint64
	Name    string
	RPCURL  string
}

// ClientPool holds one RPC client per configured chain.
type ClientPool struct {
	clients map[uint64]*ethclient.Client
	names   map[uint64]string
	logger  logger.LoggerInterface
}

var _ app.ChainClients = (*ClientPool)(nil)

// NewClientPool dials every endpoint with a non-empty URL. Dialing HTTP
// endpoints does not perform I/O; connectivity is checked by Verify.
func NewClientPool(ctx context.Context, endpoints []Endpoint, log logger.LoggerInterface) (*ClientPool, error) {
	p := &ClientPool{
		clients: make(map[uint64]*ethclient.Client, len(endpoints)),
		names:   make(map[uint64]string, len(endpoints)),
		logger:  log,
	}

	for _, ep := range endpoints {
		if ep.RPCURL == "" {
			continue
		}
		c, err := ethclient.DialContext(ctx, ep.RPCURL)
		if err != nil {
			p.Close()
			return nil, apperror.New(apperror.CodeRPCConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("chain %d (%s)", ep.ChainID, ep.Name)))
		}
		p.clients[ep.ChainID] = c
		p.names[ep.ChainID] = ep.Name
	}

	return p, nil
}

// NewClientPoolFromClients wraps already-constructed clients.
func NewClientPoolFromClients(clients map[uint64]*ethclient.Client, log logger.LoggerInterface) *ClientPool {
	names := make(map[uint64]string, len(clients))
	for id := range clients {
		names[id] = fmt.Sprintf("chain-%d", id)
	}
	return &ClientPool{clients: clients, names: names, logger: log}
}

// Verify checks that each endpoint answers and reports the expected chain id.
func (p *ClientPool) Verify(ctx context.Context) error {
	for id, c := range p.clients {
		got, err := c.ChainID(ctx)
		if err != nil {
			return apperror.New(apperror.CodeRPCConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("chain %d (%s)", id, p.names[id])))
		}
		if got.Cmp(new(big.Int).SetUint64(id)) != 0 {
			return apperror.Configuration(apperror.CodeConfigurationError,
				fmt.Sprintf("chain %s: endpoint reports chain id %s, configured %d", p.names[id], got, id))
		}
		p.logger.Info(ctx, "chain endpoint verified", "chain_id", id, "name", p.names[id])
	}
	return nil
}

// Client returns the raw client for chainID.
func (p *ClientPool) Client(chainID uint64) (*ethclient.Client, error) {
	c, ok := p.clients[chainID]
	if !ok {
		return nil, apperror.Configuration(apperror.CodeChainNotConfigured, fmt.Sprintf("chain %d", chainID))
	}
	return c, nil
}

// Reader implements app.ChainClients.
func (p *ClientPool) Reader(chainID uint64) (app.ChainClient, error) {
	c, err := p.Client(chainID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Caller returns a contract caller for chainID.
func (p *ClientPool) Caller(chainID uint64) (ethereum.ContractCaller, error) {
	c, err := p.Client(chainID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Proofs returns a client able to fetch Merkle proofs on chainID.
func (p *ClientPool) Proofs(chainID uint64) (*gethclient.Client, error) {
	c, err := p.Client(chainID)
	if err != nil {
		return nil, err
	}
	return gethclient.New(c.Client()), nil
}

// ChainIDs returns the configured chain ids in ascending order.
func (p *ClientPool) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close closes every client.
func (p *ClientPool) Close() error {
	for _, c := range p.clients {
		c.Close()
	}
	return nil
}
