package positionmath

import (
	"fmt"
	"math/big"

	"github.com/deltavault/position-engine/internal/wei"
)

// Leg is one side of a position being opened.
type Leg struct {
	Role          Role
	DepositAmount *big.Int // user principal in this leg's token
	TokenPrice    *big.Int // wei-scale price in the common quote unit
	TokenDecimals int
}

// LeverageSplit is the work input for one leg of a new position.
type LeverageSplit struct {
	PrincipalAmount *big.Int
	FarmingAmount   *big.Int
	BorrowAmount    *big.Int
}

// OpenPlan holds both legs of a new position.
type OpenPlan struct {
	Long  LeverageSplit
	Short LeverageSplit
}

// ComputeLegSplit computes principal, farming and borrow amounts for one leg.
// Index 0 of each pair is this leg and index 1 is the other leg:
//
//	numerator   = L - 2 (Long) | L (Short)
//	denominator = 2L - 2
//	principal   = deposit[0] * numerator / denominator
//	farming     = deposit[1] * numerator / denominator
//	borrow      = (farming * 10^(dec[0]-dec[1]) * price[1] / price[0] + principal) * (L - 1)
//
// The farming amount is taken from the other leg's deposit: capital put in on
// one side is redistributed across both legs when the position is opened.
func ComputeLegSplit(role Role, deposits [2]*big.Int, leverage int64, prices [2]*big.Int, decimals [2]int) (LeverageSplit, error) {
	if leverage < MinLeverage {
		return LeverageSplit{}, fmt.Errorf("%w: got %d", ErrInvalidLeverage, leverage)
	}
	for _, dec := range decimals {
		if dec < 0 || dec > wei.MaxDecimals {
			return LeverageSplit{}, fmt.Errorf("%w: %d", ErrUnsupportedDecimals, dec)
		}
	}
	// 10^(this - other) must be an integer power.
	if decimals[0] < decimals[1] {
		return LeverageSplit{}, fmt.Errorf("%w: base decimals %d below farming decimals %d",
			ErrUnsupportedDecimals, decimals[0], decimals[1])
	}
	for _, amount := range deposits {
		if !nonNegative(amount) {
			return LeverageSplit{}, fmt.Errorf("%w: deposit %v", ErrInvalidAmount, amount)
		}
	}
	for _, price := range prices {
		if !isPositive(price) {
			return LeverageSplit{}, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
		}
	}

	lev := big.NewInt(leverage)
	numerator := new(big.Int).Set(lev)
	if role == Long {
		numerator.Sub(lev, wei.Two)
	}
	denominator := new(big.Int).Mul(lev, wei.Two)
	denominator.Sub(denominator, wei.Two)
	borrowMultiplier := new(big.Int).Sub(lev, wei.One)

	principal := wei.MulDiv(deposits[0], numerator, denominator)
	farming := wei.MulDiv(deposits[1], numerator, denominator)

	converted := new(big.Int).Mul(farming, wei.Pow10(decimals[0]-decimals[1]))
	converted.Mul(converted, prices[1])
	converted.Quo(converted, prices[0])

	borrow := converted.Add(converted, principal)
	borrow.Mul(borrow, borrowMultiplier)

	return LeverageSplit{
		PrincipalAmount: principal,
		FarmingAmount:   farming,
		BorrowAmount:    borrow,
	}, nil
}

// ComputeOpenPosition sizes both legs of a new position. Long receives
// [long, short] inputs and Short receives [short, long]. At least one side
// must deposit something, and each leg's Role must match its argument.
func ComputeOpenPosition(long, short Leg, leverage int64) (OpenPlan, error) {
	if long.Role != Long || short.Role != Short {
		return OpenPlan{}, fmt.Errorf("%w: got %s, %s", ErrInvalidRole, long.Role, short.Role)
	}
	if !nonNegative(long.DepositAmount) || !nonNegative(short.DepositAmount) {
		return OpenPlan{}, fmt.Errorf("%w: deposits must be non-negative", ErrInvalidAmount)
	}
	if long.DepositAmount.Sign() == 0 && short.DepositAmount.Sign() == 0 {
		return OpenPlan{}, fmt.Errorf("%w: at least one side must deposit", ErrInvalidAmount)
	}

	longSplit, err := ComputeLegSplit(Long,
		[2]*big.Int{long.DepositAmount, short.DepositAmount},
		leverage,
		[2]*big.Int{long.TokenPrice, short.TokenPrice},
		[2]int{long.TokenDecimals, short.TokenDecimals},
	)
	if err != nil {
		return OpenPlan{}, fmt.Errorf("long leg: %w", err)
	}

	shortSplit, err := ComputeLegSplit(Short,
		[2]*big.Int{short.DepositAmount, long.DepositAmount},
		leverage,
		[2]*big.Int{short.TokenPrice, long.TokenPrice},
		[2]int{short.TokenDecimals, long.TokenDecimals},
	)
	if err != nil {
		return OpenPlan{}, fmt.Errorf("short leg: %w", err)
	}

	return OpenPlan{Long: longSplit, Short: shortSplit}, nil
}
