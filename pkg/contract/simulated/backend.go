// Package simulated runs the evidence registry contract rules in process,
// behind the same backend interfaces a node connection offers. Calldata is
// decoded with the real ABI and transactions must be properly signed.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/evidence-registry/evreg/pkg/contract"
	"github.com/evidence-registry/evreg/pkg/wallet"
)

// Revert strings produced by the simulated contract.
const (
	ReasonOnlyOwner       = "Only owner can perform this action"
	ReasonOnlyPolice      = "Only police can add evidence"
	ReasonUnknownEvidence = "Evidence does not exist"
)

var gwei = big.NewInt(1_000_000_000)

// Backend is an in-memory chain hosting one registry contract.
type Backend struct {
	mu       sync.Mutex
	abi      *abi.ABI
	address  common.Address
	chainID  *big.Int
	owner    common.Address
	police   map[common.Address]bool
	court    map[common.Address]bool
	evidence []contract.RawEvidence
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	block    uint64
	now      func() time.Time

	revertNext bool
	sent       []string
}

var _ wallet.Backend = (*Backend)(nil)

// NewBackend deploys a registry owned by owner on chainID.
func NewBackend(owner common.Address, chainID *big.Int) *Backend {
	parsed, err := contract.ParsedABI()
	if err != nil {
		panic(err)
	}
	return &Backend{
		abi:      parsed,
		address:  crypto.CreateAddress(owner, 0),
		chainID:  new(big.Int).Set(chainID),
		owner:    owner,
		police:   make(map[common.Address]bool),
		court:    make(map[common.Address]bool),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		block:    1,
		now:      time.Now,
	}
}

// Address returns the registry contract address.
func (b *Backend) Address() common.Address { return b.address }

// Dialer returns a wallet dialer that connects every chain to b.
func (b *Backend) Dialer() wallet.Dialer {
	return func(context.Context, string) (wallet.Backend, error) {
		return b, nil
	}
}

// SetClock overrides the block timestamp source.
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// RevertNextTransaction makes the next mined transaction fail on-chain
// even though gas estimation succeeded.
func (b *Backend) RevertNextTransaction() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revertNext = true
}

// SeedEvidence stores a record directly, bypassing access control.
func (b *Backend) SeedEvidence(rec contract.RawEvidence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evidence = append(b.evidence, rec)
}

// SentMethods lists the registry methods of every transaction received, in order.
func (b *Backend) SentMethods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

// CodeAt implements bind.ContractCaller.
func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return b.code(account), nil
}

// PendingCodeAt implements bind.ContractTransactor.
func (b *Backend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return b.code(account), nil
}

func (b *Backend) code(account common.Address) []byte {
	if account == b.address {
		return []byte{0x60, 0x80, 0x60, 0x40}
	}
	return nil
}

// CallContract implements bind.ContractCaller.
func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if call.To == nil || *call.To != b.address {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.execute(call.From, call.Data, false)
}

// EstimateGas implements bind.ContractTransactor. Reverting calls fail the
// way a node reports them, with the revert payload as error data.
func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if call.To == nil || *call.To != b.address {
		return 21_000, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.execute(call.From, call.Data, false); err != nil {
		return 0, err
	}
	return 120_000, nil
}

// SuggestGasPrice implements bind.ContractTransactor.
func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(gwei), nil
}

// SuggestGasTipCap implements bind.ContractTransactor.
func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(gwei), nil
}

// HeaderByNumber implements bind.ContractTransactor.
func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{
		Number:  new(big.Int).SetUint64(b.block),
		BaseFee: new(big.Int).Set(gwei),
		Time:    uint64(b.now().Unix()),
	}, nil
}

// PendingNonceAt implements bind.ContractTransactor.
func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

// SendTransaction implements bind.ContractTransactor. The transaction is
// mined immediately into its own block.
func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if tx.Nonce() != b.nonces[from] {
		return fmt.Errorf("nonce too low: address %s, tx: %d state: %d", from, tx.Nonce(), b.nonces[from])
	}
	b.nonces[from]++
	b.block++
	b.sent = append(b.sent, contract.MethodName(tx.Data()))

	status := types.ReceiptStatusSuccessful
	if b.revertNext {
		b.revertNext = false
		status = types.ReceiptStatusFailed
	} else if tx.To() == nil || *tx.To() != b.address {
		status = types.ReceiptStatusSuccessful
	} else if _, err := b.execute(from, tx.Data(), true); err != nil {
		status = types.ReceiptStatusFailed
	}

	b.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: 120_000,
		GasUsed:           120_000,
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(b.block),
		BlockHash:         common.BigToHash(new(big.Int).SetUint64(b.block)),
		Logs:              []*types.Log{},
	}
	return nil
}

// TransactionReceipt implements bind.DeployBackend.
func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// FilterLogs implements bind.ContractFilterer. The registry emits no events here.
func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

// SubscribeFilterLogs implements bind.ContractFilterer.
func (b *Backend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

// execute runs one registry call. b.mu must be held.
func (b *Backend) execute(from common.Address, data []byte, commit bool) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("missing method selector")
	}
	method, err := b.abi.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "owner":
		return method.Outputs.Pack(b.owner)
	case "isPolice":
		return method.Outputs.Pack(b.police[args[0].(common.Address)])
	case "isCourtOfficial":
		return method.Outputs.Pack(b.court[args[0].(common.Address)])
	case "evidenceCount":
		return method.Outputs.Pack(big.NewInt(int64(len(b.evidence))))
	case "getEvidence":
		id := args[0].(*big.Int)
		if id.Sign() <= 0 || !id.IsUint64() || id.Uint64() > uint64(len(b.evidence)) {
			return nil, newRevertError(ReasonUnknownEvidence)
		}
		rec := b.evidence[id.Uint64()-1]
		return method.Outputs.Pack(rec.Id, rec.CaseId, rec.Description, rec.IpfsHash, rec.UploadedBy, rec.Timestamp)
	case "addEvidence":
		if !b.police[from] {
			return nil, newRevertError(ReasonOnlyPolice)
		}
		if commit {
			b.evidence = append(b.evidence, contract.RawEvidence{
				Id:          big.NewInt(int64(len(b.evidence) + 1)),
				CaseId:      args[0].(string),
				Description: args[1].(string),
				IpfsHash:    args[2].(string),
				UploadedBy:  from,
				Timestamp:   big.NewInt(b.now().Unix()),
			})
		}
		return nil, nil
	case "grantPoliceRole", "revokePoliceRole", "grantCourtOfficialRole", "revokeCourtOfficialRole":
		if from != b.owner {
			return nil, newRevertError(ReasonOnlyOwner)
		}
		if commit {
			account := args[0].(common.Address)
			switch method.Name {
			case "grantPoliceRole":
				b.police[account] = true
			case "revokePoliceRole":
				delete(b.police, account)
			case "grantCourtOfficialRole":
				b.court[account] = true
			case "revokeCourtOfficialRole":
				delete(b.court, account)
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported method %s", method.Name)
}

// revertError mimics the JSON-RPC error a node returns for a reverted call.
type revertError struct {
	reason string
	data   []byte
}

func newRevertError(reason string) *revertError {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return &revertError{reason: reason, data: append(append([]byte{}, selector...), packed...)}
}

func (e *revertError) Error() string { return "execution reverted: " + e.reason }

// ErrorCode returns the JSON-RPC code geth uses for reverts.
func (e *revertError) ErrorCode() int { return 3 }

// ErrorData returns the hex encoded revert payload.
func (e *revertError) ErrorData() interface{} { return hexutil.Encode(e.data) }
