package memory

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	addr, err := s.Address()
	require.NoError(t, err)
	assert.NotEqual(t, [20]byte{}, [20]byte(addr))

	hash := crypto.Keccak256([]byte("evidence"))
	sig, err := s.SignHash(hash)
	require.NoError(t, err)

	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, crypto.PubkeyToAddress(*pub))

	opts, err := s.Transactor(big.NewInt(11155111))
	require.NoError(t, err)
	assert.Equal(t, addr, opts.From)
	assert.NotNil(t, opts.Signer)
}
