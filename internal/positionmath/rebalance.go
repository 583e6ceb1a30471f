package positionmath

import (
	"fmt"
	"math/big"

	"github.com/deltavault/position-engine/internal/wei"
)

// MaxSlippageBps is 100% in basis points.
const MaxSlippageBps = 10000

// PositionState is the current state of one leveraged leg. Leverage is the
// leg's configured target, not one derived from equity and debt.
type PositionState struct {
	Equity   *big.Int
	Debt     *big.Int
	Leverage int64
}

// RebalancePlan is the result for one leg.
type RebalancePlan struct {
	EquityShare  *big.Int // wei-scale fraction of total equity held by this leg
	TargetEquity *big.Int
	TargetDebt   *big.Int

	DeltaEquity             *big.Int // negative: withdraw
	DeltaDebt               *big.Int // negative: repay
	DeltaEquityWithSlippage *big.Int
	DeltaDebtWithSlippage   *big.Int

	// LpAmountToLiquidate is zero unless DeltaEquity is negative.
	LpAmountToLiquidate *big.Int

	// ExpectedEquity and ExpectedDebt are the leg's state after execution,
	// once the part held back by slippage stays in the position.
	ExpectedEquity *big.Int
	ExpectedDebt   *big.Int
}

// Shrinking reports whether the leg gives up equity.
func (p RebalancePlan) Shrinking() bool {
	return p.DeltaEquity != nil && p.DeltaEquity.Sign() < 0
}

// DebtToRepay is the amount of debt to repay up front, zero if debt grows.
func (p RebalancePlan) DebtToRepay() *big.Int {
	if p.DeltaDebtWithSlippage == nil || p.DeltaDebtWithSlippage.Sign() >= 0 {
		return new(big.Int)
	}
	return wei.Abs(p.DeltaDebtWithSlippage)
}

type rebalanceConfig struct {
	exactShares bool
}

// Option configures ComputeRebalance.
type Option func(*rebalanceConfig)

// WithExactShares computes each target as newTotal * equity / total instead
// of going through a share truncated to 18 decimals. Conservation error is
// then at most one wei per leg, but results no longer match the contracts'
// quantised share bit for bit.
func WithExactShares() Option {
	return func(c *rebalanceConfig) {
		c.exactShares = true
	}
}

// ComputeRebalance computes the per-leg deltas that move a position from its
// current total equity to total + deltaTotalEquity while each leg keeps its
// current share of equity:
//
//	share        = equity * 1e18 / totalEquity
//	targetEquity = newTotalEquity * share / 1e18
//	targetDebt   = targetEquity * leverage - targetEquity
//
// Negative deltas are reduced by slippageBps so that less is pulled out up
// front; the remainder is trued up from sale proceeds at execution. Positive
// deltas are left as they are. lpUnitPrice is only read when a leg shrinks,
// which truncation can cause even for a zero or positive delta, so callers
// should always supply it.
//
// Shares are truncated independently and the remainder is not
// redistributed. By default the deltas may miss deltaTotalEquity by up to
// about totalEquity/1e18 wei, matching the contracts bit for bit. Callers
// that need the sum within 2 wei should pass WithExactShares.
func ComputeRebalance(legs [2]PositionState, deltaTotalEquity *big.Int, slippageBps int64, lpUnitPrice *big.Int, opts ...Option) ([2]RebalancePlan, error) {
	var cfg rebalanceConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var plans [2]RebalancePlan

	if slippageBps < 0 || slippageBps > MaxSlippageBps {
		return plans, fmt.Errorf("%w: got %d", ErrInvalidSlippage, slippageBps)
	}
	if deltaTotalEquity == nil {
		return plans, fmt.Errorf("%w: delta total equity is required", ErrInvalidAmount)
	}
	for i, leg := range legs {
		if !nonNegative(leg.Equity) || !nonNegative(leg.Debt) {
			return plans, fmt.Errorf("%w: leg %d equity %v debt %v", ErrInvalidAmount, i, leg.Equity, leg.Debt)
		}
		if leg.Leverage < MinLeverage {
			return plans, fmt.Errorf("%w: leg %d got %d", ErrInvalidLeverage, i, leg.Leverage)
		}
	}

	totalEquity := new(big.Int).Add(legs[0].Equity, legs[1].Equity)
	if totalEquity.Sign() == 0 {
		return plans, ErrDivideByZeroEquity
	}
	newTotalEquity := new(big.Int).Add(totalEquity, deltaTotalEquity)
	if newTotalEquity.Sign() <= 0 {
		return plans, fmt.Errorf("%w: total %s, delta %s", ErrInsufficientEquity, totalEquity, deltaTotalEquity)
	}

	for i, leg := range legs {
		share := wei.MulDiv(leg.Equity, wei.E18, totalEquity)

		var targetEquity *big.Int
		if cfg.exactShares {
			targetEquity = wei.MulDiv(newTotalEquity, leg.Equity, totalEquity)
		} else {
			targetEquity = wei.MulDiv(newTotalEquity, share, wei.E18)
		}

		positionValue := new(big.Int).Mul(targetEquity, big.NewInt(leg.Leverage))
		targetDebt := positionValue.Sub(positionValue, targetEquity)

		deltaEquity := new(big.Int).Sub(targetEquity, leg.Equity)
		deltaDebt := new(big.Int).Sub(targetDebt, leg.Debt)

		deltaEquityWithSlippage := withSlippage(deltaEquity, slippageBps)
		deltaDebtWithSlippage := withSlippage(deltaDebt, slippageBps)

		lpAmount := new(big.Int)
		if deltaEquity.Sign() < 0 {
			if !isPositive(lpUnitPrice) {
				return [2]RebalancePlan{}, fmt.Errorf("%w: lp unit price %v", ErrInvalidPrice, lpUnitPrice)
			}
			value := wei.Abs(deltaEquityWithSlippage)
			value.Add(value, wei.Abs(deltaDebtWithSlippage))
			lpAmount = wei.MulDiv(value, wei.E18, lpUnitPrice)
		}

		plans[i] = RebalancePlan{
			EquityShare:             share,
			TargetEquity:            targetEquity,
			TargetDebt:              targetDebt,
			DeltaEquity:             deltaEquity,
			DeltaDebt:               deltaDebt,
			DeltaEquityWithSlippage: deltaEquityWithSlippage,
			DeltaDebtWithSlippage:   deltaDebtWithSlippage,
			LpAmountToLiquidate:     lpAmount,
			ExpectedEquity:          new(big.Int).Add(leg.Equity, deltaEquityWithSlippage),
			ExpectedDebt:            new(big.Int).Add(leg.Debt, deltaDebtWithSlippage),
		}
	}

	return plans, nil
}

func withSlippage(delta *big.Int, bps int64) *big.Int {
	if delta.Sign() >= 0 {
		return new(big.Int).Set(delta)
	}
	return wei.Haircut(delta, bps)
}
