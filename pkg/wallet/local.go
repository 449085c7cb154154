package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	"github.com/evidence-registry/evreg/pkg/log"
	"github.com/evidence-registry/evreg/pkg/signer"
)

// Dialer opens chain access for an RPC URL.
type Dialer func(ctx context.Context, rawurl string) (Backend, error)

// DialEthClient is the default Dialer.
func DialEthClient(ctx context.Context, rawurl string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// LocalProvider is a wallet backed by a key held by this process. It keeps its
// own registry of known chains, the way a browser wallet does.
type LocalProvider struct {
	signer signer.Signer
	dial   Dialer
	logger log.Logger

	mu       sync.Mutex
	chains   map[uint64]ChainDescriptor
	active   uint64
	backends map[uint64]Backend

	feed event.Feed
}

var _ Provider = (*LocalProvider)(nil)

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithDialer replaces the ethclient dialer.
func WithDialer(d Dialer) LocalOption {
	return func(p *LocalProvider) { p.dial = d }
}

// WithKnownChains registers additional chains up front.
func WithKnownChains(chains ...ChainDescriptor) LocalOption {
	return func(p *LocalProvider) {
		for _, c := range chains {
			p.chains[c.ChainID.Uint64()] = c
		}
	}
}

// NewLocalProvider returns a wallet that starts on home.
func NewLocalProvider(s signer.Signer, home ChainDescriptor, logger log.Logger, opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		signer:   s,
		dial:     DialEthClient,
		logger:   logger.With("module", "wallet", "type", "local"),
		chains:   map[uint64]ChainDescriptor{home.ChainID.Uint64(): home},
		active:   home.ChainID.Uint64(),
		backends: make(map[uint64]Backend),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RequestAccounts implements Provider.
func (p *LocalProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if p.signer == nil {
		return nil, ErrNoProvider
	}
	addr, err := p.signer.Address()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProvider, err)
	}
	return []common.Address{addr}, nil
}

// ChainID implements Provider.
func (p *LocalProvider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).SetUint64(p.active), nil
}

// SwitchChain implements Provider.
func (p *LocalProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	if !chainID.IsUint64() {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: "chain id out of range"}
	}
	id := chainID.Uint64()

	p.mu.Lock()
	if _, ok := p.chains[id]; !ok {
		p.mu.Unlock()
		return &ProviderError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain ID %q", chainID.String())}
	}
	changed := p.active != id
	p.active = id
	p.mu.Unlock()

	if changed {
		p.logger.Info("switched chain", "chain_id", id)
		p.feed.Send(Notification{Kind: ChainChanged, ChainID: new(big.Int).SetUint64(id)})
	}
	return nil
}

// AddChain implements Provider.
func (p *LocalProvider) AddChain(ctx context.Context, chain ChainDescriptor) error {
	if chain.ChainID == nil || chain.ChainID.Sign() <= 0 || !chain.ChainID.IsUint64() {
		return &ProviderError{Code: -32602, Message: "invalid chain id"}
	}
	if len(chain.RPCURLs) == 0 {
		return &ProviderError{Code: -32602, Message: "chain has no rpc url"}
	}

	p.mu.Lock()
	p.chains[chain.ChainID.Uint64()] = chain
	p.mu.Unlock()

	p.logger.Info("added chain", "chain_id", chain.ChainID, "name", chain.Name)
	return nil
}

// Backend implements Provider. One client is dialed per chain and reused.
func (p *LocalProvider) Backend(ctx context.Context) (Backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.backends[p.active]; ok {
		return b, nil
	}
	chain, ok := p.chains[p.active]
	if !ok || len(chain.RPCURLs) == 0 {
		return nil, fmt.Errorf("no rpc url for chain %d", p.active)
	}
	b, err := p.dial(ctx, chain.RPCURLs[0])
	if err != nil {
		return nil, fmt.Errorf("dialing chain %d: %w", p.active, err)
	}
	p.backends[p.active] = b
	return b, nil
}

// Transactor implements Provider.
func (p *LocalProvider) Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	if p.signer == nil {
		return nil, ErrNoProvider
	}
	addr, err := p.signer.Address()
	if err != nil {
		return nil, err
	}
	if addr != account {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: fmt.Sprintf("account %s is not managed by this wallet", account)}
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := p.signer.Transactor(chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// SubscribeNotifications implements Provider.
func (p *LocalProvider) SubscribeNotifications(ch chan<- Notification) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Close releases the dialed chain clients.
func (p *LocalProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, b := range p.backends {
		if c, ok := b.(interface{ Close() }); ok {
			c.Close()
		}
		delete(p.backends, id)
	}
}
