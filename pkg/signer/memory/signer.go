package memory

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evidence-registry/evreg/pkg/signer"
)

// Signer keeps a secp256k1 key in memory only. It backs tests and ephemeral wallets.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ signer.Signer = (*Signer)(nil)

// New wraps an existing key.
func New(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Generate creates a signer with a fresh random key.
func Generate() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return New(key), nil
}

// Address implements signer.Signer.
func (s *Signer) Address() (common.Address, error) {
	return s.address, nil
}

// Transactor implements signer.Signer.
func (s *Signer) Transactor(chainID *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(s.key, chainID)
}

// SignHash implements signer.Signer.
func (s *Signer) SignHash(hash []byte) ([]byte, error) {
	return crypto.Sign(hash, s.key)
}
