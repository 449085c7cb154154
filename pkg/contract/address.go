package contract

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsValidAddress reports whether s is a 20 byte hex address, with or without
// 0x prefix. Mixed case input must carry a valid EIP-55 checksum.
func IsValidAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(s).Hex()[2:] == body
}

// ParseAddress validates s and returns the address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !IsValidAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// SameAddress compares two addresses ignoring hex case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ShortAddress renders 0x1234...abcd.
func ShortAddress(a common.Address) string {
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}
