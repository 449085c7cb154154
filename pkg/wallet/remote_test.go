package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidence-registry/evreg/pkg/log"
)

// fakeWallet emulates an EIP-1193 wallet behind a JSON-RPC bridge.
type fakeWallet struct {
	mu       sync.Mutex
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	known    map[string]bool
	reject   bool
	added    []addChainParams
	switches []string
}

func (w *fakeWallet) address() common.Address {
	return crypto.PubkeyToAddress(w.key.PublicKey)
}

type fakeEthAPI struct{ w *fakeWallet }

func (a *fakeEthAPI) RequestAccounts() ([]common.Address, error) {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	if a.w.reject {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	}
	return []common.Address{a.w.address()}, nil
}

func (a *fakeEthAPI) Accounts() []common.Address {
	return []common.Address{a.w.address()}
}

func (a *fakeEthAPI) ChainId() *hexutil.Big {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).Set(a.w.chainID))
}

func (a *fakeEthAPI) SignTransaction(args transactionArgs) (*signTransactionResult, error) {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	if a.w.reject {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User denied transaction signature."}
	}
	chainID := (*big.Int)(args.ChainID)
	var data types.TxData
	if args.MaxFeePerGas != nil {
		data = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     uint64(args.Nonce),
			GasTipCap: (*big.Int)(args.MaxPriorityFeePerGas),
			GasFeeCap: (*big.Int)(args.MaxFeePerGas),
			Gas:       uint64(args.Gas),
			To:        args.To,
			Value:     (*big.Int)(args.Value),
			Data:      args.Data,
		}
	} else {
		data = &types.LegacyTx{
			Nonce:    uint64(args.Nonce),
			GasPrice: (*big.Int)(args.GasPrice),
			Gas:      uint64(args.Gas),
			To:       args.To,
			Value:    (*big.Int)(args.Value),
			Data:     args.Data,
		}
	}
	tx, err := types.SignNewTx(a.w.key, types.LatestSignerForChainID(chainID), data)
	if err != nil {
		return nil, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &signTransactionResult{Raw: raw}, nil
}

type fakeWalletAPI struct{ w *fakeWallet }

func (a *fakeWalletAPI) SwitchEthereumChain(p switchChainParams) error {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	a.w.switches = append(a.w.switches, p.ChainID)
	if !a.w.known[p.ChainID] {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID " + p.ChainID}
	}
	id, err := hexutil.DecodeBig(p.ChainID)
	if err != nil {
		return err
	}
	a.w.chainID = id
	return nil
}

func (a *fakeWalletAPI) AddEthereumChain(p addChainParams) error {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	a.w.added = append(a.w.added, p)
	a.w.known[p.ChainID] = true
	return nil
}

func newRemoteFixture(t *testing.T) (*fakeWallet, *RemoteProvider) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w := &fakeWallet{
		key:     key,
		chainID: big.NewInt(1),
		known:   map[string]bool{"0x1": true},
	}

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &fakeEthAPI{w: w}))
	require.NoError(t, server.RegisterName("wallet", &fakeWalletAPI{w: w}))
	t.Cleanup(server.Stop)

	client := rpc.DialInProc(server)
	p := NewRemoteProvider(client, 10*time.Millisecond, log.NewTestLogger(t))
	t.Cleanup(p.Close)
	return w, p
}

func TestRemoteProviderAccountsAndChain(t *testing.T) {
	ctx := context.Background()
	w, p := newRemoteFixture(t)

	accounts, err := p.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{w.address()}, accounts)

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Int64())

	w.mu.Lock()
	w.reject = true
	w.mu.Unlock()
	_, err = p.RequestAccounts(ctx)
	assert.ErrorIs(t, err, ErrUserRejected)
}

func TestRemoteProviderSwitchAndAddChain(t *testing.T) {
	ctx := context.Background()
	w, p := newRemoteFixture(t)
	target := sepolia()

	err := p.SwitchChain(ctx, target.ChainID)
	require.ErrorIs(t, err, ErrUnrecognizedChain)

	require.NoError(t, p.AddChain(ctx, target))
	require.NoError(t, p.SwitchChain(ctx, target.ChainID))

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, target.ChainID, id)

	require.Len(t, w.added, 1)
	assert.Equal(t, "0xaa36a7", w.added[0].ChainID)
	assert.Equal(t, "Sepolia", w.added[0].ChainName)
	assert.Equal(t, target.RPCURLs, w.added[0].RPCURLs)
	assert.Equal(t, "ETH", w.added[0].NativeCurrency.Symbol)
	assert.Equal(t, []string{"0xaa36a7", "0xaa36a7"}, w.switches)
}

func TestRemoteProviderTransactorDelegatesSigning(t *testing.T) {
	ctx := context.Background()
	w, p := newRemoteFixture(t)
	from := w.address()

	opts, err := p.Transactor(ctx, from)
	require.NoError(t, err)

	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     7,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       120_000,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      []byte{0xde, 0xad, 0xbe, 0xef},
	})

	signed, err := opts.Signer(from, unsigned)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), signed.Nonce())
	assert.Equal(t, unsigned.Data(), signed.Data())
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed)
	require.NoError(t, err)
	assert.Equal(t, from, sender)

	_, err = opts.Signer(common.HexToAddress("0x01"), unsigned)
	assert.Error(t, err)

	w.mu.Lock()
	w.reject = true
	w.mu.Unlock()
	_, err = opts.Signer(from, unsigned)
	assert.ErrorIs(t, err, ErrUserRejected)
}

func TestRemoteProviderPollEmitsChanges(t *testing.T) {
	ctx := context.Background()
	w, p := newRemoteFixture(t)

	notes := make(chan Notification, 4)
	sub := p.SubscribeNotifications(notes)
	defer sub.Unsubscribe()

	require.NoError(t, p.poll(ctx))
	assert.Empty(t, notes, "first poll only records a baseline")

	w.mu.Lock()
	w.chainID = big.NewInt(11155111)
	w.mu.Unlock()

	require.NoError(t, p.poll(ctx))
	select {
	case n := <-notes:
		assert.Equal(t, ChainChanged, n.Kind)
		assert.Equal(t, int64(11155111), n.ChainID.Int64())
	default:
		t.Fatal("expected chain change notification")
	}
}

func TestRemoteProviderRunStopsWithContext(t *testing.T) {
	_, p := newRemoteFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
