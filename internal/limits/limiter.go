// Package limits caps how much quote value the engine will plan into vaults.
//
// Vaults that farm the same asset token move together: a drawdown in the
// asset hits every one of them at once. The limiter therefore enforces two
// caps, one per vault and one across all vaults sharing an asset token.
package limits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/deltavault/position-engine/internal/model"
)

var (
	// ErrVaultLimitExceeded is returned when a deposit would push a single
	// vault's equity beyond the per-vault maximum.
	ErrVaultLimitExceeded = errors.New("limits: per-vault equity limit exceeded")

	// ErrCorrelatedLimitExceeded is returned when a deposit would push the
	// aggregate equity of vaults sharing an asset token beyond the
	// correlated maximum.
	ErrCorrelatedLimitExceeded = errors.New("limits: correlated equity limit exceeded")
)

// ExposureLimiter enforces equity limits with correlation awareness.
// A zero limit disables that check. Amounts are wei of the quote unit.
type ExposureLimiter struct {
	// MaxPerVault is the maximum equity in any single vault.
	MaxPerVault decimal.Decimal

	// MaxCorrelated is the maximum aggregate equity across all vaults
	// that share the same asset token.
	MaxCorrelated decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given per-vault and
// correlated equity limits.
func NewExposureLimiter(maxPerVault, maxCorrelated decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{
		MaxPerVault:   maxPerVault,
		MaxCorrelated: maxCorrelated,
	}
}

// CheckLimit validates whether adding equityDelta to target keeps every cap.
// Withdrawals (delta <= 0) only reduce exposure and always pass.
//
// existing holds the current equity of every vault, target included or not.
func (l *ExposureLimiter) CheckLimit(target model.Exposure, equityDelta decimal.Decimal, existing []model.Exposure) error {
	if !equityDelta.IsPositive() {
		return nil
	}

	current := decimal.Zero
	for _, e := range existing {
		if e.VaultSymbol == target.VaultSymbol {
			current = current.Add(e.Equity)
		}
	}
	newEquity := current.Add(equityDelta)

	if l.MaxPerVault.IsPositive() && newEquity.GreaterThan(l.MaxPerVault) {
		return fmt.Errorf("%w: %s would hold %s (max %s)",
			ErrVaultLimitExceeded, target.VaultSymbol, newEquity, l.MaxPerVault)
	}

	if !l.MaxCorrelated.IsPositive() {
		return nil
	}
	total := newEquity
	for _, e := range existing {
		if e.VaultSymbol == target.VaultSymbol {
			continue // counted in newEquity
		}
		if sameToken(e.AssetToken, target.AssetToken) {
			total = total.Add(e.Equity)
		}
	}
	if total.GreaterThan(l.MaxCorrelated) {
		return fmt.Errorf("%w: %s exposure would be %s (max %s)",
			ErrCorrelatedLimitExceeded, target.AssetToken, total, l.MaxCorrelated)
	}
	return nil
}

// sameToken compares token addresses case-insensitively, since checksummed
// and lower-case forms name the same contract.
func sameToken(a, b string) bool {
	return strings.EqualFold(a, b)
}
