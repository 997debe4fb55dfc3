package adapter

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTokenDecimals is used when a token contract returns no decimals
// value. USDT uses 6 on Ethereum, Tron and most bridges; BSC-peg USDT uses
// 18 and reports it, so the fallback only applies to silent nodes.
const DefaultTokenDecimals uint8 = 6

// ToDecimal converts a raw integer token amount to a human amount
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ToRaw converts a human amount to the raw integer amount. Digits beyond
// the token's precision are truncated.
func ToRaw(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FormatAmount renders an amount with at least one fractional digit,
// so 5 renders as "5.0" and 5.25 as "5.25".
func FormatAmount(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
