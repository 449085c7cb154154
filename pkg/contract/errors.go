package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrReverted is matched by every RevertError.
var ErrReverted = errors.New("transaction reverted")

// RevertError reports a contract call or transaction the EVM reverted.
type RevertError struct {
	// Reason is the decoded revert string, empty when the contract gave none.
	Reason string
	// TxHash is set when the revert happened on-chain.
	TxHash common.Hash
	cause  error
}

func (e *RevertError) Error() string {
	switch {
	case e.Reason != "" && e.TxHash != (common.Hash{}):
		return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
	case e.Reason != "":
		return "execution reverted: " + e.Reason
	case e.TxHash != (common.Hash{}):
		return fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
	}
	return "execution reverted"
}

func (e *RevertError) Is(target error) bool { return target == ErrReverted }

func (e *RevertError) Unwrap() error { return e.cause }

const revertPrefix = "execution reverted"

// RevertReason extracts the revert string from an error returned by a node,
// first from the JSON-RPC error data and then from the message.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason, re.Reason != ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := decodeRevertData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, revertPrefix+": "); i >= 0 {
		if reason := strings.TrimSpace(msg[i+len(revertPrefix)+2:]); reason != "" {
			return reason, true
		}
	}
	return "", false
}

func decodeRevertData(data interface{}) (string, bool) {
	var raw []byte
	switch d := data.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = d
	default:
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil || reason == "" {
		return "", false
	}
	return reason, true
}

// IsRevert reports whether err describes an EVM revert.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReverted) {
		return true
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(err.Error(), revertPrefix)
}

// ClassifySubmitError converts a revert reported while estimating or sending
// a transaction into a RevertError. Other errors are returned unchanged.
func ClassifySubmitError(err error) error {
	if err == nil || !IsRevert(err) {
		return err
	}
	var re *RevertError
	if errors.As(err, &re) {
		return err
	}
	reason, _ := RevertReason(err)
	return &RevertError{Reason: reason, cause: err}
}
