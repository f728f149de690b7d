package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeCurrency is the zero-address sentinel used in place of an ERC20
// token address to mean the chain's native currency.
var NativeCurrency = common.Address{}

// IsNative reports whether token is the native-currency sentinel.
func IsNative(token common.Address) bool {
	return token == NativeCurrency
}

// NormalizeAddress parses a hex address in any letter case into its
// canonical common.Address form. Once normalized, addresses compare with ==.
// An empty string is rejected; callers that accept "native" as empty must
// map it to NativeCurrency themselves.
func NormalizeAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: malformed address %q", ErrInvalidInput, s)
	}
	return common.HexToAddress(s), nil
}

// AddressString renders an address in lowercase hex, the form used in keys,
// logs, and API payloads.
func AddressString(a common.Address) string {
	return strings.ToLower(a.Hex())
}
