// Package network keeps the wallet on the one chain the registry lives on.
package network

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/evidence-registry/evreg/pkg/log"
	"github.com/evidence-registry/evreg/pkg/wallet"
)

// ErrWrongNetwork is returned when the wallet is not, and could not be moved,
// onto the required chain.
var ErrWrongNetwork = errors.New("wrong network")

// ChainSwitcher is the part of a wallet the guard drives.
type ChainSwitcher interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	AddChain(ctx context.Context, chain wallet.ChainDescriptor) error
}

// Guard makes sure the wallet is on the required chain before a state change.
type Guard struct {
	required wallet.ChainDescriptor
	wallet   ChainSwitcher
	logger   log.Logger
}

// NewGuard returns a guard for the required chain.
func NewGuard(required wallet.ChainDescriptor, w ChainSwitcher, logger log.Logger) *Guard {
	return &Guard{
		required: required,
		wallet:   w,
		logger:   logger.With("module", "network"),
	}
}

// Required returns the chain the guard enforces.
func (g *Guard) Required() wallet.ChainDescriptor {
	return g.required
}

// Ensure reads the wallet's chain and, when it differs from the required one,
// requests a single switch. A wallet that does not know the chain is asked to
// add it and the switch is retried once. Every failure wraps ErrWrongNetwork.
func (g *Guard) Ensure(ctx context.Context) error {
	current, err := g.wallet.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading chain id: %w", ErrWrongNetwork, err)
	}
	if current.Cmp(g.required.ChainID) == 0 {
		return nil
	}

	g.logger.Info("wallet on wrong chain, requesting switch",
		"current", current, "required", g.required.ChainID)

	err = g.wallet.SwitchChain(ctx, g.required.ChainID)
	if errors.Is(err, wallet.ErrUnrecognizedChain) {
		g.logger.Info("wallet does not know the chain, requesting add", "chain", g.required.Name)
		if addErr := g.wallet.AddChain(ctx, g.required); addErr != nil {
			return fmt.Errorf("%w: adding %s: %w", ErrWrongNetwork, g.required.Name, addErr)
		}
		err = g.wallet.SwitchChain(ctx, g.required.ChainID)
	}
	if err != nil {
		return fmt.Errorf("%w: please switch to %s: %w", ErrWrongNetwork, g.required.Name, err)
	}
	return nil
}
