// Package positionmath sizes and rebalances two-leg delta-neutral leveraged
// farming positions.
//
// A delta-neutral vault holds a stable (Long) leg that borrows the stable
// token and an asset (Short) leg that borrows the volatile asset. Both legs
// farm the same LP pool, so the asset exposure of one cancels the other.
//
// Every amount is a wei-scale *big.Int and every division truncates toward
// zero, so results match the numbers the vault contracts compute for the
// same inputs. Functions are pure: inputs are never mutated and nothing is
// retained after a call returns.
package positionmath

import (
	"errors"
	"math/big"
)

var (
	// ErrInvalidLeverage is returned when leverage < 2.
	ErrInvalidLeverage = errors.New("positionmath: leverage must be at least 2")

	// ErrUnsupportedDecimals is returned for token decimals above 18, or when
	// the decimal-scaling exponent between two legs would be negative.
	ErrUnsupportedDecimals = errors.New("positionmath: unsupported token decimals")

	// ErrInvalidAmount is returned when a required non-negative amount is
	// negative, or when a position would be opened with nothing deposited.
	ErrInvalidAmount = errors.New("positionmath: invalid amount")

	// ErrInvalidPrice is returned when a price used as a divisor is not positive.
	ErrInvalidPrice = errors.New("positionmath: price must be positive")

	// ErrInsufficientEquity is returned when an equity delta would leave the
	// position with zero or negative total equity.
	ErrInsufficientEquity = errors.New("positionmath: insufficient equity")

	// ErrInvalidSlippage is returned when slippage is outside [0, 10000] bps.
	ErrInvalidSlippage = errors.New("positionmath: slippage must be within [0, 10000] bps")

	// ErrInvalidRole is returned when legs are passed in the wrong order.
	ErrInvalidRole = errors.New("positionmath: leg role does not match its position")

	// ErrDivideByZeroEquity is returned when both legs report zero equity.
	ErrDivideByZeroEquity = errors.New("positionmath: total equity is zero")
)

// MinLeverage is the smallest supported leverage. At 1x nothing is borrowed
// and the split denominator 2L-2 is zero.
const MinLeverage = 2

// Role selects which side of the pair a leg is on.
type Role int

const (
	// Long is the stable leg. Its principal share shrinks as leverage grows.
	Long Role = iota
	// Short is the asset leg. Its principal share grows with leverage.
	Short
)

func (r Role) String() string {
	switch r {
	case Long:
		return "Long"
	case Short:
		return "Short"
	default:
		return "Unknown"
	}
}

// nonNegative reports whether x is set and >= 0.
func nonNegative(x *big.Int) bool {
	return x != nil && x.Sign() >= 0
}

func isPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}
