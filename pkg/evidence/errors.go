package evidence

import (
	"context"
	"errors"

	"github.com/evidence-registry/evreg/pkg/contract"
	"github.com/evidence-registry/evreg/pkg/network"
	"github.com/evidence-registry/evreg/pkg/pinning"
	"github.com/evidence-registry/evreg/pkg/session"
	"github.com/evidence-registry/evreg/pkg/wallet"
)

var (
	// ErrInvalidInput is returned when a request fails local validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBusy is returned when an operation of the same kind is still running.
	ErrBusy = errors.New("operation already in progress")
	// ErrNumericRange is returned when a contract number does not fit in uint64.
	ErrNumericRange = errors.New("number out of range")
)

// Kind groups errors by how they are reported to the user.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidInput
	KindNoWallet
	KindNotConnected
	KindWrongNetwork
	KindRejected
	KindReverted
	KindPinning
	KindBusy
	KindCanceled
	KindNumericRange
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidInput:
		return "invalid_input"
	case KindNoWallet:
		return "no_wallet"
	case KindNotConnected:
		return "not_connected"
	case KindWrongNetwork:
		return "wrong_network"
	case KindRejected:
		return "rejected"
	case KindReverted:
		return "reverted"
	case KindPinning:
		return "pinning"
	case KindBusy:
		return "busy"
	case KindCanceled:
		return "canceled"
	case KindNumericRange:
		return "numeric_range"
	}
	return "unknown"
}

// Classify maps an error returned by this package, or by the components it
// drives, to its Kind. The wrong-network check comes before the wallet ones
// since a rejected chain switch is reported as a network failure.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrNumericRange):
		return KindNumericRange
	case errors.Is(err, ErrBusy), errors.Is(err, session.ErrConnectInProgress):
		return KindBusy
	case errors.Is(err, network.ErrWrongNetwork):
		return KindWrongNetwork
	case errors.Is(err, wallet.ErrNoProvider), errors.Is(err, wallet.ErrNoAccounts):
		return KindNoWallet
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrInvalidated):
		return KindNotConnected
	case errors.Is(err, wallet.ErrUserRejected):
		return KindRejected
	case errors.Is(err, pinning.ErrMissingCredentials), errors.Is(err, pinning.ErrUploadFailed):
		return KindPinning
	case contract.IsRevert(err):
		return KindReverted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindUnknown
}
