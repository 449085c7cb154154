package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"

	"github.com/evidence-registry/evreg/pkg/config"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeUnrecognizedChain = 4902
)

var (
	// ErrNoProvider is returned when no wallet is available to connect to.
	ErrNoProvider = errors.New("no wallet provider available")

	// ErrUserRejected is returned when the wallet user declines a request.
	ErrUserRejected = errors.New("request rejected by user")

	// ErrUnrecognizedChain is returned when the wallet does not know the requested chain.
	ErrUnrecognizedChain = errors.New("unrecognized chain")

	// ErrNoAccounts is returned when the wallet exposes no account.
	ErrNoAccounts = errors.New("wallet returned no accounts")
)

// ProviderError is an error reported by the wallet with an EIP-1193 code.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the EIP-1193 code. It satisfies rpc.Error so the code
// survives a JSON-RPC round trip.
func (e *ProviderError) ErrorCode() int { return e.Code }

// Is maps well known codes onto the package sentinels.
func (e *ProviderError) Is(target error) bool {
	switch e.Code {
	case CodeUserRejected:
		return target == ErrUserRejected
	case CodeUnrecognizedChain:
		return target == ErrUnrecognizedChain
	}
	return false
}

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ChainDescriptor is everything a wallet needs to add a chain it does not know.
type ChainDescriptor struct {
	ChainID      *big.Int
	Name         string
	RPCURLs      []string
	ExplorerURLs []string
	Currency     NativeCurrency
}

// HexChainID returns the 0x prefixed chain id used on the wallet API.
func (d ChainDescriptor) HexChainID() string {
	return hexutil.EncodeBig(d.ChainID)
}

// ChainFromConfig builds the descriptor of the configured required chain.
func ChainFromConfig(cfg config.ChainConfig) ChainDescriptor {
	d := ChainDescriptor{
		ChainID: new(big.Int).SetUint64(cfg.ID),
		Name:    cfg.Name,
		Currency: NativeCurrency{
			Name:     cfg.CurrencyName,
			Symbol:   cfg.CurrencySymbol,
			Decimals: cfg.CurrencyDecimals,
		},
	}
	if cfg.RPCURL != "" {
		d.RPCURLs = []string{cfg.RPCURL}
	}
	if cfg.ExplorerURL != "" {
		d.ExplorerURLs = []string{cfg.ExplorerURL}
	}
	return d
}

// NotificationKind tells which part of the wallet state changed.
type NotificationKind int

const (
	// AccountsChanged is sent when the exposed accounts change.
	AccountsChanged NotificationKind = iota
	// ChainChanged is sent when the active chain changes.
	ChainChanged
)

func (k NotificationKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	}
	return "unknown"
}

// Notification is a wallet state change event.
type Notification struct {
	Kind     NotificationKind
	Accounts []common.Address
	ChainID  *big.Int
}

// Backend is the chain access a provider hands out for the active chain.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Provider is the wallet capability set the client relies on.
type Provider interface {
	// RequestAccounts asks the wallet to expose its accounts. The first is the active one.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// ChainID returns the chain the wallet is currently on.
	ChainID(ctx context.Context) (*big.Int, error)

	// SwitchChain asks the wallet to move to chainID. An unknown chain fails
	// with an error matching ErrUnrecognizedChain.
	SwitchChain(ctx context.Context, chainID *big.Int) error

	// AddChain registers a chain with the wallet.
	AddChain(ctx context.Context, chain ChainDescriptor) error

	// Backend returns chain access for the active chain.
	Backend(ctx context.Context) (Backend, error)

	// Transactor returns options that sign transactions from account on the active chain.
	Transactor(ctx context.Context, account common.Address) (*bind.TransactOpts, error)

	// SubscribeNotifications delivers account and chain changes to ch.
	SubscribeNotifications(ch chan<- Notification) event.Subscription
}
