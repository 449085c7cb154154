package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Signer abstracts an account key able to authorize contract transactions.
type Signer interface {
	// Address returns the account controlled by the key.
	Address() (common.Address, error)

	// Transactor returns transaction options that sign for chainID with the key.
	Transactor(chainID *big.Int) (*bind.TransactOpts, error)

	// SignHash signs a 32 byte digest and returns the [R || S || V] signature.
	SignHash(hash []byte) ([]byte, error)
}
