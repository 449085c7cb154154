package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/evidence-registry/evreg/pkg/log"
)

// RemoteProvider talks to an external wallet over JSON-RPC using the EIP-1193
// method set. The wallet keeps the keys; this process only asks it to sign.
type RemoteProvider struct {
	client       *rpc.Client
	backend      *ethclient.Client
	pollInterval time.Duration
	logger       log.Logger

	mu           sync.Mutex
	lastAccounts []common.Address
	lastChain    *big.Int

	feed event.Feed
}

var _ Provider = (*RemoteProvider)(nil)

// DialRemoteProvider connects to a wallet bridge at rawurl.
func DialRemoteProvider(ctx context.Context, rawurl string, pollInterval time.Duration, logger log.Logger) (*RemoteProvider, error) {
	client, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProvider, err)
	}
	return NewRemoteProvider(client, pollInterval, logger), nil
}

// NewRemoteProvider wraps an established RPC client.
func NewRemoteProvider(client *rpc.Client, pollInterval time.Duration, logger log.Logger) *RemoteProvider {
	return &RemoteProvider{
		client:       client,
		backend:      ethclient.NewClient(client),
		pollInterval: pollInterval,
		logger:       logger.With("module", "wallet", "type", "remote"),
	}
}

// RequestAccounts implements Provider.
func (p *RemoteProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, mapRPCError(err)
	}
	p.mu.Lock()
	p.lastAccounts = slices.Clone(accounts)
	p.mu.Unlock()
	return accounts, nil
}

// ChainID implements Provider.
func (p *RemoteProvider) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, mapRPCError(err)
	}
	return (*big.Int)(&id), nil
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

// SwitchChain implements Provider.
func (p *RemoteProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	err := p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainParams{ChainID: hexutil.EncodeBig(chainID)})
	return mapRPCError(err)
}

type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
}

// AddChain implements Provider.
func (p *RemoteProvider) AddChain(ctx context.Context, chain ChainDescriptor) error {
	params := addChainParams{
		ChainID:           chain.HexChainID(),
		ChainName:         chain.Name,
		RPCURLs:           chain.RPCURLs,
		BlockExplorerURLs: chain.ExplorerURLs,
		NativeCurrency:    chain.Currency,
	}
	return mapRPCError(p.client.CallContext(ctx, nil, "wallet_addEthereumChain", params))
}

// Backend implements Provider. Reads and broadcasts go through the wallet's
// own node connection.
func (p *RemoteProvider) Backend(ctx context.Context) (Backend, error) {
	return p.backend, nil
}

// Transactor implements Provider. Signing is delegated to eth_signTransaction.
func (p *RemoteProvider) Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return &bind.TransactOpts{
		From:    account,
		Context: ctx,
		Signer: func(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if from != account {
				return nil, bind.ErrNotAuthorized
			}
			return p.signTransaction(ctx, from, tx, chainID)
		},
	}, nil
}

// transactionArgs mirrors the eth_signTransaction request object.
type transactionArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

type signTransactionResult struct {
	Raw hexutil.Bytes `json:"raw"`
}

func (p *RemoteProvider) signTransaction(ctx context.Context, from common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	args := transactionArgs{
		From:    from,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Data:    tx.Data(),
		ChainID: (*hexutil.Big)(chainID),
	}
	if tx.Type() == types.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}

	var res signTransactionResult
	if err := p.client.CallContext(ctx, &res, "eth_signTransaction", args); err != nil {
		return nil, mapRPCError(err)
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(res.Raw); err != nil {
		return nil, fmt.Errorf("decoding signed transaction: %w", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		return nil, fmt.Errorf("recovering signer: %w", err)
	}
	if sender != from {
		return nil, fmt.Errorf("wallet signed as %s, expected %s", sender, from)
	}
	return signed, nil
}

// SubscribeNotifications implements Provider. Notifications are only produced
// while Run is active.
func (p *RemoteProvider) SubscribeNotifications(ch chan<- Notification) event.Subscription {
	return p.feed.Subscribe(ch)
}

// Run polls the wallet for account and chain changes until ctx is done.
func (p *RemoteProvider) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.poll(ctx); err != nil && ctx.Err() == nil {
				p.logger.Debug("wallet poll failed", "error", err)
			}
		}
	}
}

func (p *RemoteProvider) poll(ctx context.Context) error {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return err
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return err
	}

	var notes []Notification
	p.mu.Lock()
	if p.lastAccounts != nil && !slices.Equal(p.lastAccounts, accounts) {
		notes = append(notes, Notification{Kind: AccountsChanged, Accounts: slices.Clone(accounts)})
	}
	if p.lastChain != nil && p.lastChain.Cmp(chainID) != 0 {
		notes = append(notes, Notification{Kind: ChainChanged, ChainID: chainID})
	}
	p.lastAccounts = accounts
	p.lastChain = chainID
	p.mu.Unlock()

	for _, n := range notes {
		p.logger.Info("wallet state changed", "kind", n.Kind)
		p.feed.Send(n)
	}
	return nil
}

// Close closes the underlying connection.
func (p *RemoteProvider) Close() {
	p.client.Close()
}

// mapRPCError turns wallet JSON-RPC errors carrying EIP-1193 codes into
// ProviderErrors so callers can match them with errors.Is.
func mapRPCError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch code := rpcErr.ErrorCode(); code {
		case CodeUserRejected, CodeUnauthorized, CodeUnsupported, CodeUnrecognizedChain:
			return &ProviderError{Code: code, Message: rpcErr.Error()}
		}
	}
	return err
}
