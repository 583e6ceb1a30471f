// Package wei provides fixed-point helpers for token amounts scaled by
// 10^decimals, matching on-chain uint256 arithmetic.
//
// Every division truncates toward zero (big.Int.Quo), which is what the
// EVM does for the non-negative values the contracts see and what ethers'
// BigNumber.div does for signed values.
package wei

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxDecimals is the largest token precision the contracts support.
const MaxDecimals = 18

var (
	// ErrFractionalUnits is returned when a human amount has more fractional
	// digits than the token supports.
	ErrFractionalUnits = errors.New("wei: fractional component exceeds decimals")

	// ErrNotInteger is returned when a decimal expected to hold a raw wei
	// amount carries a fractional part.
	ErrNotInteger = errors.New("wei: amount is not an integer")
)

var (
	Zero = big.NewInt(0)
	One  = big.NewInt(1)
	Two  = big.NewInt(2)
	Ten  = big.NewInt(10)

	// BPS is the basis-point denominator (100%).
	BPS = big.NewInt(10000)

	// E18 is one whole unit at 18 decimals.
	E18 = Pow10(18)
)

// Pow10 returns 10^n. n must be non-negative.
func Pow10(n int) *big.Int {
	return new(big.Int).Exp(Ten, big.NewInt(int64(n)), nil)
}

// MulDiv returns a * b / c truncated toward zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// Abs returns |x| as a new value.
func Abs(x *big.Int) *big.Int {
	return new(big.Int).Abs(x)
}

// Haircut scales x by (10000 - bps) / 10000, truncating toward zero.
//
//	-50.000418499872723281 @ 30bps => -49.850417244373105111
func Haircut(x *big.Int, bps int64) *big.Int {
	keep := new(big.Int).Sub(BPS, big.NewInt(bps))
	return MulDiv(x, keep, BPS)
}

// ParseUnits converts a human amount into its integer representation with
// the given number of decimals, like ethers.utils.parseUnits.
func ParseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrFractionalUnits, amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatUnits converts an integer amount back into human units.
func FormatUnits(amount *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -decimals)
}

// FormatEther renders an 18-decimal amount, e.g. "446.859356779260032153".
func FormatEther(amount *big.Int) string {
	return FormatUnits(amount, MaxDecimals).String()
}

// ToDecimal wraps a raw integer amount for JSON and NUMERIC storage.
func ToDecimal(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, 0)
}

// FromDecimal unwraps a raw integer amount. Fractional input is rejected
// rather than silently truncated.
func FromDecimal(amount decimal.Decimal) (*big.Int, error) {
	if !amount.Equal(amount.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s", ErrNotInteger, amount)
	}
	return amount.BigInt(), nil
}
