// Package roles resolves what an account may do in the registry.
package roles

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/evidence-registry/evreg/pkg/contract"
)

// Role is the single role an account is shown as.
type Role int

const (
	None Role = iota
	CourtOfficial
	Police
	Owner
)

func (r Role) String() string {
	switch r {
	case Owner:
		return "Owner"
	case Police:
		return "Police"
	case CourtOfficial:
		return "Court Official"
	}
	return "User"
}

// Roles holds the three independent role flags of an account.
type Roles struct {
	Owner         bool `json:"owner"`
	Police        bool `json:"police"`
	CourtOfficial bool `json:"courtOfficial"`
}

// Classify applies the precedence owner > police > court official > none.
func (r Roles) Classify() Role {
	switch {
	case r.Owner:
		return Owner
	case r.Police:
		return Police
	case r.CourtOfficial:
		return CourtOfficial
	}
	return None
}

// Any reports whether at least one role is held.
func (r Roles) Any() bool {
	return r.Owner || r.Police || r.CourtOfficial
}

// Reader is the read-only contract surface roles are derived from.
type Reader interface {
	Owner(opts *bind.CallOpts) (common.Address, error)
	IsPolice(opts *bind.CallOpts, account common.Address) (bool, error)
	IsCourtOfficial(opts *bind.CallOpts, account common.Address) (bool, error)
}

// Resolve reads the contract owner and the role flags of account.
func Resolve(ctx context.Context, reader Reader, account common.Address) (Roles, error) {
	opts := &bind.CallOpts{Context: ctx, From: account}

	owner, err := reader.Owner(opts)
	if err != nil {
		return Roles{}, fmt.Errorf("reading owner: %w", err)
	}
	police, err := reader.IsPolice(opts, account)
	if err != nil {
		return Roles{}, fmt.Errorf("reading police role: %w", err)
	}
	court, err := reader.IsCourtOfficial(opts, account)
	if err != nil {
		return Roles{}, fmt.Errorf("reading court official role: %w", err)
	}

	return Roles{
		Owner:         contract.SameAddress(owner.Hex(), account.Hex()),
		Police:        police,
		CourtOfficial: court,
	}, nil
}
