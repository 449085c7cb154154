package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/contract"
	"github.com/evidence-registry/evreg/pkg/contract/simulated"
	"github.com/evidence-registry/evreg/pkg/journal"
	"github.com/evidence-registry/evreg/pkg/log"
	"github.com/evidence-registry/evreg/pkg/network"
	"github.com/evidence-registry/evreg/pkg/pinning"
	"github.com/evidence-registry/evreg/pkg/roles"
	"github.com/evidence-registry/evreg/pkg/session"
	"github.com/evidence-registry/evreg/pkg/signer/memory"
	"github.com/evidence-registry/evreg/pkg/wallet"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

type fakePinner struct {
	mu      sync.Mutex
	calls   int
	names   []string
	err     error
	started chan struct{}
	release chan struct{}
}

func (p *fakePinner) Upload(ctx context.Context, name string, r io.Reader) (pinning.Result, error) {
	p.mu.Lock()
	p.calls++
	p.names = append(p.names, name)
	started, release, err := p.started, p.release, p.err
	p.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return pinning.Result{}, err
	}
	data, _ := io.ReadAll(r)
	return pinning.Result{IpfsHash: testCID, PinSize: int64(len(data))}, nil
}

func (p *fakePinner) GatewayURL(contentID string) string {
	return "https://gw.test/ipfs/" + contentID
}

func (p *fakePinner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// switchRejecter refuses chain switches while reject is set.
type switchRejecter struct {
	*wallet.LocalProvider
	reject atomic.Bool
}

func (p *switchRejecter) SwitchChain(ctx context.Context, chainID *big.Int) error {
	if p.reject.Load() {
		return &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request."}
	}
	return p.LocalProvider.SwitchChain(ctx, chainID)
}

type fixture struct {
	svc      *Service
	sessions *session.Manager
	provider *switchRejecter
	backend  *simulated.Backend
	pinner   *fakePinner
	journal  *journal.Journal
	account  common.Address
}

func devnet() wallet.ChainDescriptor {
	return wallet.ChainDescriptor{
		ChainID: big.NewInt(31337),
		Name:    "Hardhat",
		RPCURLs: []string{"http://127.0.0.1:8545"},
	}
}

// newFixture connects a session for a fresh account. The account owns the
// registry unless owner is given.
func newFixture(t *testing.T, owner ...common.Address) *fixture {
	t.Helper()
	required := wallet.ChainFromConfig(config.DefaultConfig.Chain)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := crypto.PubkeyToAddress(key.PublicKey)
	contractOwner := account
	if len(owner) > 0 {
		contractOwner = owner[0]
	}

	logger := log.NewTestLogger(t)
	backend := simulated.NewBackend(contractOwner, required.ChainID)
	backend.SetClock(func() time.Time { return time.Unix(1_714_557_600, 0) })
	provider := &switchRejecter{
		LocalProvider: wallet.NewLocalProvider(memory.New(key), required, logger,
			wallet.WithDialer(backend.Dialer()), wallet.WithKnownChains(devnet())),
	}
	guard := network.NewGuard(required, provider, logger)
	sessions := session.NewManager(provider, guard, backend.Address(), logger)
	_, err = sessions.Connect(context.Background())
	require.NoError(t, err)

	pinner := &fakePinner{}
	j := journal.NewInMemory()
	return &fixture{
		svc:      NewService(sessions, pinner, logger, WithJournal(j)),
		sessions: sessions,
		provider: provider,
		backend:  backend,
		pinner:   pinner,
		journal:  j,
		account:  account,
	}
}

func (f *fixture) becomePolice(t *testing.T) {
	t.Helper()
	res, err := f.svc.GrantPolice(context.Background(), f.account.Hex())
	require.NoError(t, err)
	require.True(t, res.Session.Roles.Police)
}

func TestAddEvidenceSequence(t *testing.T) {
	f := newFixture(t)
	f.becomePolice(t)
	ctx := context.Background()

	var stages []Stage
	res, err := f.svc.AddEvidence(ctx, AddRequest{
		CaseID:      " CASE-42 ",
		Description: "CCTV footage",
		FileName:    "cam1.mp4",
		File:        strings.NewReader("video"),
		Progress:    func(s Stage) { stages = append(stages, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageUploaded, StageNetworkChecked, StageSubmitted, StageConfirmed}, stages)
	assert.Equal(t, 1, f.pinner.Calls())
	assert.Equal(t, []string{"cam1.mp4"}, f.pinner.names)
	assert.Equal(t, testCID, res.CID)
	assert.Equal(t, "https://gw.test/ipfs/"+testCID, res.GatewayURL)
	assert.NotEqual(t, common.Hash{}, res.TxHash)
	assert.Equal(t, []string{"grantPoliceRole", "addEvidence"}, f.backend.SentMethods())

	entries, err := f.journal.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.StatusAnchored, entries[0].Status)
	assert.Equal(t, res.TxHash.Hex(), entries[0].TxHash)
	assert.Equal(t, res.JournalID, entries[0].ID.String())
	assert.EqualValues(t, 5, entries[0].Size)

	count, err := f.svc.EvidenceCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	rec, err := f.svc.GetEvidence(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Record{
		ID:          1,
		CaseID:      "CASE-42",
		Description: "CCTV footage",
		ContentHash: testCID,
		Submitter:   f.account,
		Timestamp:   1_714_557_600,
		GatewayURL:  "https://gw.test/ipfs/" + testCID,
	}, rec)
	assert.Equal(t, 2024, rec.Time().Year())
}

func TestAddEvidenceValidation(t *testing.T) {
	f := newFixture(t)

	testCases := []struct {
		name string
		req  AddRequest
	}{
		{"missing case id", AddRequest{Description: "d", File: strings.NewReader("x")}},
		{"blank case id", AddRequest{CaseID: "  ", Description: "d", File: strings.NewReader("x")}},
		{"missing description", AddRequest{CaseID: "c", File: strings.NewReader("x")}},
		{"missing file", AddRequest{CaseID: "c", Description: "d"}},
		{"file and cid", AddRequest{CaseID: "c", Description: "d", File: strings.NewReader("x"), CID: testCID}},
		{"bad cid", AddRequest{CaseID: "c", Description: "d", CID: "not-a-cid"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddEvidence(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, KindInvalidInput, Classify(err))
		})
	}
	assert.Zero(t, f.pinner.Calls())
	assert.Empty(t, f.backend.SentMethods())
}

func TestAddEvidenceGuardFailureMakesNoCall(t *testing.T) {
	f := newFixture(t)
	f.becomePolice(t)
	ctx := context.Background()

	// the wallet moves away and then refuses to come back
	require.NoError(t, f.provider.LocalProvider.SwitchChain(ctx, big.NewInt(31337)))
	f.provider.reject.Store(true)

	var stages []Stage
	_, err := f.svc.AddEvidence(ctx, AddRequest{
		CaseID: "CASE-1", Description: "knife", File: strings.NewReader("img"),
		Progress: func(s Stage) { stages = append(stages, s) },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, network.ErrWrongNetwork)
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
	assert.Equal(t, KindWrongNetwork, Classify(err))

	assert.Equal(t, []Stage{StageUploaded}, stages)
	assert.Equal(t, []string{"grantPoliceRole"}, f.backend.SentMethods())

	orphans, err := f.journal.Orphaned(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Contains(t, orphans[0].Error, "wrong network")
}

func TestAddEvidenceRevertOrphansUploadThenAnchorByCID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddEvidence(ctx, AddRequest{CaseID: "CASE-7", Description: "gloves", File: strings.NewReader("img")})
	require.Error(t, err)
	assert.Equal(t, KindReverted, Classify(err))
	reason, ok := contract.RevertReason(err)
	require.True(t, ok)
	assert.Equal(t, simulated.ReasonOnlyPolice, reason)

	orphans, err := f.journal.Orphaned(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	orphanID := orphans[0].ID

	f.becomePolice(t)
	res, err := f.svc.AddEvidence(ctx, AddRequest{CaseID: "CASE-7", Description: "gloves", CID: testCID})
	require.NoError(t, err)
	assert.Equal(t, orphanID.String(), res.JournalID)
	assert.Equal(t, 1, f.pinner.Calls(), "anchoring by cid must not upload again")

	entry, err := f.journal.Get(ctx, orphanID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusAnchored, entry.Status)
}

func TestAddEvidenceRevertedOnChain(t *testing.T) {
	f := newFixture(t)
	f.becomePolice(t)
	f.backend.RevertNextTransaction()

	_, err := f.svc.AddEvidence(context.Background(), AddRequest{CaseID: "c", Description: "d", File: strings.NewReader("x")})
	assert.ErrorIs(t, err, contract.ErrReverted)
	assert.Equal(t, KindReverted, Classify(err))
}

func TestAddEvidenceRequiresSession(t *testing.T) {
	f := newFixture(t)
	f.sessions.Invalidate("test")

	_, err := f.svc.AddEvidence(context.Background(), AddRequest{CaseID: "c", Description: "d", File: strings.NewReader("x")})
	assert.ErrorIs(t, err, session.ErrNotConnected)
	assert.Equal(t, KindNotConnected, Classify(err))
	assert.Zero(t, f.pinner.Calls())

	_, err = f.svc.GetEvidence(context.Background(), 1)
	assert.ErrorIs(t, err, session.ErrNotConnected)
}

func TestAddEvidencePlaceholderCredentials(t *testing.T) {
	f := newFixture(t)
	f.becomePolice(t)
	client := pinning.NewClient(config.PinningConfig{
		APIKey:       "PASTE_YOUR_PINATA_API_KEY_HERE",
		SecretAPIKey: "PASTE_YOUR_PINATA_SECRET_API_KEY_HERE",
	}, log.NewTestLogger(t))
	svc := NewService(f.sessions, client, log.NewTestLogger(t))

	_, err := svc.AddEvidence(context.Background(), AddRequest{CaseID: "c", Description: "d", File: strings.NewReader("x")})
	assert.ErrorIs(t, err, pinning.ErrMissingCredentials)
	assert.Equal(t, KindPinning, Classify(err))
	assert.Equal(t, []string{"grantPoliceRole"}, f.backend.SentMethods())
}

func TestBusyFlag(t *testing.T) {
	f := newFixture(t)
	f.becomePolice(t)
	f.pinner.started = make(chan struct{})
	f.pinner.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.AddEvidence(context.Background(), AddRequest{CaseID: "c", Description: "d", File: strings.NewReader("x")})
		done <- err
	}()
	<-f.pinner.started
	assert.True(t, f.svc.Busy(OpAddEvidence))

	_, err := f.svc.AddEvidence(context.Background(), AddRequest{CaseID: "c", Description: "d", File: strings.NewReader("y")})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, KindBusy, Classify(err))

	// other operation kinds are not blocked
	_, err = f.svc.GrantCourtOfficial(context.Background(), "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	assert.NoError(t, err)

	close(f.pinner.release)
	require.NoError(t, <-done)
	assert.False(t, f.svc.Busy(OpAddEvidence))
}

func TestGrantAndRevokePolice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := "0xabc0000000000000000000000000000000000123"
	targetAddr := common.HexToAddress(target)

	caps, err := f.sessions.Capabilities()
	require.NoError(t, err)

	_, err = f.svc.GrantPolice(ctx, target)
	require.NoError(t, err)
	got, err := roles.Resolve(ctx, caps.Registry, targetAddr)
	require.NoError(t, err)
	assert.True(t, got.Police)

	res, err := f.svc.RevokePolice(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, "revoke_police", res.Operation)
	assert.Equal(t, targetAddr, res.Account)
	got, err = roles.Resolve(ctx, caps.Registry, targetAddr)
	require.NoError(t, err)
	assert.False(t, got.Police)

	_, err = f.svc.GrantCourtOfficial(ctx, target)
	require.NoError(t, err)
	got, err = roles.Resolve(ctx, caps.Registry, targetAddr)
	require.NoError(t, err)
	assert.True(t, got.CourtOfficial)
	_, err = f.svc.RevokeCourtOfficial(ctx, target)
	require.NoError(t, err)
	got, err = roles.Resolve(ctx, caps.Registry, targetAddr)
	require.NoError(t, err)
	assert.False(t, got.Any())
}

func TestRoleChangeValidation(t *testing.T) {
	f := newFixture(t)
	for _, addr := range []string{"", "0x123", "0xZZ97970C51812dc3A010C7d01b50e0d17dc79C8", "0x70997970C51812dc3A010C7d01b50e0d17dc79c8"} {
		_, err := f.svc.GrantPolice(context.Background(), addr)
		assert.ErrorIs(t, err, ErrInvalidInput, addr)
	}
	assert.Empty(t, f.backend.SentMethods())
}

func TestRoleChangeByNonOwnerReverts(t *testing.T) {
	f := newFixture(t, common.HexToAddress("0x1000000000000000000000000000000000000001"))

	_, err := f.svc.GrantPolice(context.Background(), f.account.Hex())
	require.Error(t, err)
	reason, ok := contract.RevertReason(err)
	require.True(t, ok)
	assert.Equal(t, simulated.ReasonOnlyOwner, reason)
	assert.Empty(t, f.backend.SentMethods())
}

func TestGetEvidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetEvidence(ctx, 9)
	require.Error(t, err)
	reason, _ := contract.RevertReason(err)
	assert.Equal(t, simulated.ReasonUnknownEvidence, reason)

	maxSafe := new(big.Int).SetUint64(1<<53 - 1)
	f.backend.SeedEvidence(contract.RawEvidence{
		Id: big.NewInt(1), CaseId: "c", Description: "d", IpfsHash: testCID,
		UploadedBy: f.account, Timestamp: maxSafe,
	})
	rec, err := f.svc.GetEvidence(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1<<53-1, rec.Timestamp)

	f.backend.SeedEvidence(contract.RawEvidence{
		Id: new(big.Int).Lsh(big.NewInt(1), 70), CaseId: "c", Description: "d", IpfsHash: testCID,
		UploadedBy: f.account, Timestamp: big.NewInt(1),
	})
	_, err = f.svc.GetEvidence(ctx, 2)
	assert.ErrorIs(t, err, ErrNumericRange)
	assert.Equal(t, KindNumericRange, Classify(err))
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 12 ")
	require.NoError(t, err)
	assert.EqualValues(t, 12, id)

	for _, bad := range []string{"", "-1", "1.5", "abc", "99999999999999999999999"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{ErrInvalidInput, KindInvalidInput},
		{wallet.ErrNoProvider, KindNoWallet},
		{session.ErrNotConnected, KindNotConnected},
		{errors.Join(network.ErrWrongNetwork, wallet.ErrUserRejected), KindWrongNetwork},
		{&wallet.ProviderError{Code: wallet.CodeUserRejected}, KindRejected},
		{&contract.RevertError{Reason: "x"}, KindReverted},
		{errors.New("execution reverted: nope"), KindReverted},
		{pinning.ErrMissingCredentials, KindPinning},
		{&pinning.UploadError{Reason: "x"}, KindPinning},
		{ErrBusy, KindBusy},
		{context.Canceled, KindCanceled},
		{fmt.Errorf("%w: timestamp -1", ErrNumericRange), KindNumericRange},
		{errors.New("boom"), KindUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.want.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
