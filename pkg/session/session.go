// Package session holds the connected wallet account, its roles and the
// contract handle bound for it.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/evidence-registry/evreg/pkg/contract"
	"github.com/evidence-registry/evreg/pkg/log"
	"github.com/evidence-registry/evreg/pkg/network"
	"github.com/evidence-registry/evreg/pkg/roles"
	"github.com/evidence-registry/evreg/pkg/wallet"
)

var (
	// ErrNotConnected is returned by operations that need a connected session.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrInvalidated is returned when the session was reset while an
	// operation was in flight.
	ErrInvalidated = errors.New("session was reset")
	// ErrConnectInProgress is returned when Connect is called concurrently.
	ErrConnectInProgress = errors.New("connection already in progress")
)

// State of the session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	RoleRefreshing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case RoleRefreshing:
		return "role-refreshing"
	}
	return "unknown"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a snapshot of the session state.
type Session struct {
	State     State          `json:"state"`
	Connected bool           `json:"connected"`
	Address   common.Address `json:"address"`
	ChainID   *big.Int       `json:"chainId,omitempty"`
	Roles     roles.Roles    `json:"roles"`
	Role      string         `json:"role"`
	// LastReset is the reason of the most recent invalidation.
	LastReset string `json:"lastReset,omitempty"`
}

// Capabilities is what a connected session lets callers do.
type Capabilities struct {
	Address  common.Address
	Registry *contract.Registry
	Backend  wallet.Backend
	// Transactor returns signing options for Address on the active chain.
	Transactor func(ctx context.Context) (*bind.TransactOpts, error)
}

// Manager drives the session state machine:
//
//	disconnected -> connecting -> connected <-> role-refreshing
//
// Any account or chain change reported by the wallet resets it to disconnected.
type Manager struct {
	provider wallet.Provider
	guard    *network.Guard
	address  common.Address
	logger   log.Logger

	mu         sync.RWMutex
	state      State
	generation uint64
	account    common.Address
	chainID    *big.Int
	roles      roles.Roles
	registry   *contract.Registry
	backend    wallet.Backend
	lastReset  string

	// changes caused by the current connect whose notifications may still be
	// queued; each is ignored once.
	expectChain   bool
	expectAccount *common.Address
}

// NewManager returns a disconnected session for the registry at contractAddress.
func NewManager(provider wallet.Provider, guard *network.Guard, contractAddress common.Address, logger log.Logger) *Manager {
	return &Manager{
		provider: provider,
		guard:    guard,
		address:  contractAddress,
		logger:   logger.With("module", "session"),
	}
}

// Guard returns the network guard used by the session.
func (m *Manager) Guard() *network.Guard {
	return m.guard
}

// Connect requests account access, moves the wallet onto the required chain,
// binds the contract and resolves the account's roles.
func (m *Manager) Connect(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.state == Connecting {
		m.mu.Unlock()
		return Session{}, ErrConnectInProgress
	}
	m.resetLocked()
	m.state = Connecting
	gen := m.generation
	m.mu.Unlock()

	s, err := m.connect(ctx, gen)
	if err != nil {
		m.mu.Lock()
		if m.generation == gen {
			m.resetLocked()
		}
		m.mu.Unlock()
		m.logger.Warn("connect failed", "err", err)
		return Session{}, err
	}
	m.logger.Info("connected", "account", s.Address, "role", s.Role)
	return s, nil
}

func (m *Manager) connect(ctx context.Context, gen uint64) (Session, error) {
	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("requesting accounts: %w", err)
	}
	if len(accounts) == 0 {
		return Session{}, wallet.ErrNoAccounts
	}
	account := accounts[0]

	current, err := m.provider.ChainID(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("%w: reading chain id: %w", network.ErrWrongNetwork, err)
	}
	m.mu.Lock()
	if m.generation == gen {
		m.expectAccount = &account
		m.expectChain = current.Cmp(m.guard.Required().ChainID) != 0
	}
	m.mu.Unlock()

	if err := m.guard.Ensure(ctx); err != nil {
		return Session{}, err
	}

	backend, err := m.provider.Backend(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", wallet.ErrNoProvider, err)
	}
	registry, err := contract.NewRegistry(m.address, backend)
	if err != nil {
		return Session{}, err
	}
	r, err := roles.Resolve(ctx, registry, account)
	if err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return Session{}, ErrInvalidated
	}
	m.state = Connected
	m.account = account
	m.chainID = new(big.Int).Set(m.guard.Required().ChainID)
	m.registry = registry
	m.backend = backend
	m.roles = r
	return m.snapshotLocked(), nil
}

// RefreshRoles re-reads the roles of the connected account.
func (m *Manager) RefreshRoles(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.state != Connected {
		state := m.state
		m.mu.Unlock()
		if state == RoleRefreshing {
			return m.Snapshot(), nil
		}
		return Session{}, ErrNotConnected
	}
	m.state = RoleRefreshing
	gen := m.generation
	registry, account := m.registry, m.account
	m.mu.Unlock()

	r, err := roles.Resolve(ctx, registry, account)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return Session{}, ErrInvalidated
	}
	m.state = Connected
	if err != nil {
		return m.snapshotLocked(), err
	}
	m.roles = r
	m.logger.Debug("roles refreshed", "account", account, "role", r.Classify())
	return m.snapshotLocked(), nil
}

// Invalidate discards the session. In-flight Connect and RefreshRoles calls
// fail with ErrInvalidated.
func (m *Manager) Invalidate(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disconnected {
		m.lastReset = reason
		return
	}
	m.logger.Info("session reset", "reason", reason, "account", m.account)
	m.resetLocked()
	m.lastReset = reason
}

func (m *Manager) resetLocked() {
	m.generation++
	m.state = Disconnected
	m.account = common.Address{}
	m.chainID = nil
	m.roles = roles.Roles{}
	m.registry = nil
	m.backend = nil
	m.expectChain = false
	m.expectAccount = nil
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Session {
	s := Session{
		State:     m.state,
		Connected: m.state == Connected || m.state == RoleRefreshing,
		Address:   m.account,
		Roles:     m.roles,
		Role:      m.roles.Classify().String(),
		LastReset: m.lastReset,
	}
	if m.chainID != nil {
		s.ChainID = new(big.Int).Set(m.chainID)
	}
	return s
}

// Capabilities returns the handles of a connected session.
func (m *Manager) Capabilities() (Capabilities, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Connected && m.state != RoleRefreshing {
		return Capabilities{}, ErrNotConnected
	}
	provider, account := m.provider, m.account
	return Capabilities{
		Address:  account,
		Registry: m.registry,
		Backend:  m.backend,
		Transactor: func(ctx context.Context) (*bind.TransactOpts, error) {
			return provider.Transactor(ctx, account)
		},
	}, nil
}

// Watch resets the session on every wallet account or chain change until ctx
// is done. The only changes ignored are the ones Connect caused itself: the
// account it requested and the switch the network guard made, each once.
func (m *Manager) Watch(ctx context.Context) error {
	ch := make(chan wallet.Notification, 16)
	sub := m.provider.SubscribeNotifications(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case n := <-ch:
			m.handle(n)
		}
	}
}

func (m *Manager) handle(n wallet.Notification) {
	if m.expected(n) {
		m.logger.Debug("ignoring change made while connecting", "kind", n.Kind)
		return
	}
	switch n.Kind {
	case wallet.ChainChanged:
		m.Invalidate(fmt.Sprintf("chain changed to %v", n.ChainID))
	case wallet.AccountsChanged:
		m.Invalidate("accounts changed")
	}
}

// expected reports whether n is the notification of a change the current
// connect made, and consumes the expectation.
func (m *Manager) expected(n wallet.Notification) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disconnected {
		return false
	}
	switch n.Kind {
	case wallet.ChainChanged:
		if m.expectChain && n.ChainID != nil && n.ChainID.Cmp(m.guard.Required().ChainID) == 0 {
			m.expectChain = false
			return true
		}
	case wallet.AccountsChanged:
		if m.expectAccount != nil && len(n.Accounts) > 0 && n.Accounts[0] == *m.expectAccount {
			m.expectAccount = nil
			return true
		}
	}
	return false
}
