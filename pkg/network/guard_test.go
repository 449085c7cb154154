package network

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidence-registry/evreg/pkg/log"
	"github.com/evidence-registry/evreg/pkg/wallet"
)

type fakeSwitcher struct {
	chain     *big.Int
	known     map[int64]bool
	switchErr error
	addErr    error
	chainErr  error

	switchCalls int
	addCalls    int
}

func (f *fakeSwitcher) ChainID(context.Context) (*big.Int, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return f.chain, nil
}

func (f *fakeSwitcher) SwitchChain(_ context.Context, id *big.Int) error {
	f.switchCalls++
	if f.switchErr != nil {
		return f.switchErr
	}
	if !f.known[id.Int64()] {
		return &wallet.ProviderError{Code: wallet.CodeUnrecognizedChain, Message: "unknown"}
	}
	f.chain = id
	return nil
}

func (f *fakeSwitcher) AddChain(_ context.Context, d wallet.ChainDescriptor) error {
	f.addCalls++
	if f.addErr != nil {
		return f.addErr
	}
	f.known[d.ChainID.Int64()] = true
	return nil
}

var required = wallet.ChainDescriptor{
	ChainID: big.NewInt(11155111),
	Name:    "Sepolia",
	RPCURLs: []string{"https://rpc.sepolia.org"},
}

func TestGuardEnsure(t *testing.T) {
	testCases := []struct {
		name        string
		switcher    *fakeSwitcher
		wantErr     bool
		wantSwitch  int
		wantAdd     int
		wantChainID int64
	}{
		{
			name:        "already on required chain",
			switcher:    &fakeSwitcher{chain: big.NewInt(11155111), known: map[int64]bool{}},
			wantSwitch:  0,
			wantChainID: 11155111,
		},
		{
			name:        "known chain switches exactly once",
			switcher:    &fakeSwitcher{chain: big.NewInt(1), known: map[int64]bool{1: true, 11155111: true}},
			wantSwitch:  1,
			wantChainID: 11155111,
		},
		{
			name:        "unknown chain is added then switched",
			switcher:    &fakeSwitcher{chain: big.NewInt(1), known: map[int64]bool{1: true}},
			wantSwitch:  2,
			wantAdd:     1,
			wantChainID: 11155111,
		},
		{
			name:        "user rejects switch",
			switcher:    &fakeSwitcher{chain: big.NewInt(1), known: map[int64]bool{}, switchErr: &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "no"}},
			wantErr:     true,
			wantSwitch:  1,
			wantChainID: 1,
		},
		{
			name:        "add chain fails",
			switcher:    &fakeSwitcher{chain: big.NewInt(1), known: map[int64]bool{}, addErr: errors.New("add refused")},
			wantErr:     true,
			wantSwitch:  1,
			wantAdd:     1,
			wantChainID: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGuard(required, tc.switcher, log.NewTestLogger(t))
			err := g.Ensure(context.Background())
			if tc.wantErr {
				require.ErrorIs(t, err, ErrWrongNetwork)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantSwitch, tc.switcher.switchCalls)
			assert.Equal(t, tc.wantAdd, tc.switcher.addCalls)
			assert.Equal(t, tc.wantChainID, tc.switcher.chain.Int64())
		})
	}
}

func TestGuardRejectionKeepsCause(t *testing.T) {
	s := &fakeSwitcher{chain: big.NewInt(1), known: map[int64]bool{}, switchErr: &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "no"}}
	err := NewGuard(required, s, log.NewNopLogger()).Ensure(context.Background())
	assert.ErrorIs(t, err, ErrWrongNetwork)
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
}

func TestGuardChainIDFailure(t *testing.T) {
	s := &fakeSwitcher{chainErr: errors.New("disconnected"), known: map[int64]bool{}}
	err := NewGuard(required, s, log.NewNopLogger()).Ensure(context.Background())
	assert.ErrorIs(t, err, ErrWrongNetwork)
	assert.Zero(t, s.switchCalls)
}
