package view

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidence-registry/evreg/pkg/contract"
	"github.com/evidence-registry/evreg/pkg/evidence"
	"github.com/evidence-registry/evreg/pkg/journal"
	"github.com/evidence-registry/evreg/pkg/network"
	"github.com/evidence-registry/evreg/pkg/roles"
	"github.com/evidence-registry/evreg/pkg/session"
	"github.com/evidence-registry/evreg/pkg/wallet"
)

func TestPanelsFor(t *testing.T) {
	testCases := []struct {
		name       string
		roles      roles.Roles
		want       []Panel
		restricted bool
	}{
		{"none", roles.Roles{}, []Panel{}, true},
		{"owner only", roles.Roles{Owner: true}, []Panel{OwnerControls}, false},
		{"police", roles.Roles{Police: true}, []Panel{AddEvidence, RetrieveEvidence}, false},
		{"court official", roles.Roles{CourtOfficial: true}, []Panel{RetrieveEvidence}, false},
		{"owner and police", roles.Roles{Owner: true, Police: true}, []Panel{OwnerControls, AddEvidence, RetrieveEvidence}, false},
		{"owner and court", roles.Roles{Owner: true, CourtOfficial: true}, []Panel{OwnerControls, RetrieveEvidence}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := PanelsFor(tc.roles)
			assert.Equal(t, tc.want, p.Visible)
			assert.Equal(t, tc.restricted, p.Restricted)
			if tc.restricted {
				assert.Equal(t, RestrictedTitle, p.Title)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require(roles.Roles{Police: true}, AddEvidence))
	assert.ErrorIs(t, Require(roles.Roles{CourtOfficial: true}, AddEvidence), ErrPanelHidden)
	assert.ErrorIs(t, Require(roles.Roles{Owner: true}, RetrieveEvidence), ErrPanelHidden)
}

func TestFailureNotifications(t *testing.T) {
	n := Notifier{ChainName: "Sepolia"}

	testCases := []struct {
		name   string
		action Action
		err    error
		want   Notification
	}{
		{
			"missing input", ActionAddEvidence,
			fmt.Errorf("%w: case id is required", evidence.ErrInvalidInput),
			Notification{"Missing Information", "invalid input: case id is required", VariantDestructive},
		},
		{
			"invalid address", ActionGrantRole,
			evidence.ErrInvalidInput,
			Notification{"Invalid Address", "invalid input", VariantDestructive},
		},
		{
			"wrong network", ActionRevokeRole,
			fmt.Errorf("%w: %w", network.ErrWrongNetwork, wallet.ErrUserRejected),
			Notification{"Wrong Network", "Please switch to Sepolia and try again.", VariantDestructive},
		},
		{
			"revert with reason", ActionGrantRole,
			&contract.RevertError{Reason: "Only owner can perform this action"},
			Notification{"Grant Failed", "Only owner can perform this action", VariantDestructive},
		},
		{
			"revert without reason", ActionAddEvidence,
			&contract.RevertError{TxHash: common.HexToHash("0x01")},
			Notification{"Upload Failed", "The transaction was reverted by the contract.", VariantDestructive},
		},
		{
			"rejected", ActionConnect,
			&wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "denied"},
			Notification{"Connection Failed", "User rejected request.", VariantDestructive},
		},
		{
			"unknown", ActionRetrieveEvidence,
			errors.New("dial tcp: refused"),
			Notification{"Retrieval Failed", "dial tcp: refused", VariantDestructive},
		},
		{
			"contract value out of range", ActionRetrieveEvidence,
			fmt.Errorf("%w: id 1180591620717411303424", evidence.ErrNumericRange),
			Notification{"Retrieval Failed", "The contract returned a value this client cannot represent.", VariantDestructive},
		},
		{
			"no wallet", ActionConnect, wallet.ErrNoProvider,
			Notification{"Wallet Required", "No wallet is available. Create or import a key, or start the remote wallet.", VariantDestructive},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, n.Failure(tc.action, tc.err))
		})
	}
}

func TestStartSuccessProgress(t *testing.T) {
	n := Notifier{}
	assert.Equal(t, "Granting Police role...", n.Start(ActionGrantRole, "Police").Description)
	assert.Equal(t, "Successfully revoked Court Official role!", n.Success(ActionRevokeRole, "Court Official").Description)
	assert.Equal(t, VariantSuccess, n.Success(ActionAddEvidence, "").Variant)
	assert.Equal(t, "Adding to Blockchain", n.Progress(ActionAddEvidence, evidence.StageUploaded).Title)
	assert.Contains(t, n.Progress(ActionGrantRole, evidence.StageNetworkChecked).Description, "the required network")
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	c.Notify(Notification{"Evidence Added", "done", VariantSuccess})
	assert.Equal(t, "✔ Evidence Added done\n", buf.String())

	buf.Reset()
	addr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	c.Session(session.Session{
		State: session.Connected, Connected: true, Address: addr,
		ChainID: big.NewInt(11155111), Roles: roles.Roles{Police: true}, Role: "Police",
	})
	assert.Contains(t, buf.String(), "0xf39F...2266")
	assert.Contains(t, buf.String(), "Police")
	assert.NotContains(t, buf.String(), "\x1b[")

	buf.Reset()
	c.Record(evidence.Record{ID: 3, CaseID: "C-1", ContentHash: "Qm1", GatewayURL: "https://gw/ipfs/Qm1", Submitter: addr, Timestamp: 0})
	assert.Contains(t, buf.String(), "1970-01-01 00:00:00 UTC")
	assert.Contains(t, buf.String(), "https://gw/ipfs/Qm1")

	buf.Reset()
	c.Pins([]journal.PinEntry{{ID: uuid.New(), CID: "Qm2", Status: journal.StatusOrphaned, Error: "reverted", PinnedAt: time.Unix(0, 0)}})
	assert.Contains(t, buf.String(), "orphaned")
	assert.Contains(t, buf.String(), "reverted")

	buf.Reset()
	c.Panels(PanelsFor(roles.Roles{}))
	assert.Contains(t, buf.String(), RestrictedTitle)
}

func TestConsoleColor(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf, true).Notify(Notification{"Wrong Network", "switch", VariantDestructive})
	require.Contains(t, buf.String(), "\x1b[")
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2024-05-01 10:00:00 UTC", FormatTimestamp(1_714_557_600))
}
