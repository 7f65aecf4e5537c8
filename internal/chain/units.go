package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount into the token's integer base unit, truncating extra precision
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FitsDecimals reports whether amount has no more fractional digits than the token supports
func FitsDecimals(amount decimal.Decimal, decimals int32) bool {
	return amount.Equal(amount.Truncate(decimals))
}

// FromBaseUnits converts an integer base-unit amount into a human amount
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// ParseBaseUnits parses a decimal base-unit string as returned by the explorer
func ParseBaseUnits(s string, decimals int32) decimal.Decimal {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return decimal.Zero
	}
	return FromBaseUnits(v, decimals)
}

// IsAddress reports whether s is a 0x-prefixed hex address with a valid checksum when mixed-case
func IsAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	if !common.IsHexAddress(s) {
		return false
	}

	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(s).Hex() == "0x"+body
}

// NormalizeAddress returns the lower-case form of an address
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ShortAddr returns a shortened address for display
func ShortAddr(addr string) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < 13 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
