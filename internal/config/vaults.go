package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/deltavault/position-engine/internal/model"
	"github.com/deltavault/position-engine/internal/positionmath"
	"github.com/deltavault/position-engine/internal/symbol"
	"github.com/deltavault/position-engine/internal/wei"
)

// VaultFile is the YAML vault table. Prices seed the in-memory oracle when
// no external feed is configured; keys are token or LP pool addresses and
// values are human quote units.
type VaultFile struct {
	Vaults []model.Vault     `yaml:"vaults"`
	Prices map[string]string `yaml:"prices"`
}

// LoadVaults reads and validates a vault table.
func LoadVaults(path string) (*VaultFile, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vf VaultFile
	if err := yaml.Unmarshal(f, &vf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(vf.Vaults))
	for i := range vf.Vaults {
		v := &vf.Vaults[i]
		if seen[v.Symbol] {
			return nil, fmt.Errorf("duplicate vault %s in %s", v.Symbol, path)
		}
		seen[v.Symbol] = true
		if err := PrepareVault(v); err != nil {
			return nil, fmt.Errorf("vault %d in %s: %w", i, path, err)
		}
	}
	for key, raw := range vf.Prices {
		if _, err := PriceWei(raw); err != nil {
			return nil, fmt.Errorf("price for %s in %s: %w", key, path, err)
		}
	}
	return &vf, nil
}

// PrepareVault validates a vault and fills Leverage from its symbol.
func PrepareVault(v *model.Vault) error {
	sym, err := symbol.Parse(v.Symbol)
	if err != nil {
		return err
	}
	v.Leverage = sym.Leverage

	for _, tok := range []model.Token{v.StableToken, v.AssetToken} {
		if tok.Decimals < 0 || tok.Decimals > wei.MaxDecimals {
			return fmt.Errorf("%w: %s token %s has %d decimals (max %d)",
				positionmath.ErrUnsupportedDecimals, v.Symbol, tok.Symbol, tok.Decimals, wei.MaxDecimals)
		}
	}
	// Each leg scales the other's farming amount by 10^(own - other).
	if v.StableToken.Decimals != v.AssetToken.Decimals {
		return fmt.Errorf("%w: %s pairs %d-decimal %s with %d-decimal %s",
			positionmath.ErrUnsupportedDecimals, v.Symbol,
			v.StableToken.Decimals, v.StableToken.Symbol, v.AssetToken.Decimals, v.AssetToken.Symbol)
	}

	addrs := map[string]string{
		"address":       v.Address,
		"stable_token":  v.StableToken.Address,
		"asset_token":   v.AssetToken.Address,
		"stable_vault":  v.StableVault,
		"asset_vault":   v.AssetVault,
		"stable_worker": v.StableWorker,
		"asset_worker":  v.AssetWorker,
		"lp_pool":       v.LpPool,

		"partial_close_minimize_strat": v.PartialCloseMinimizeStrat,
	}
	for field, addr := range addrs {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s: %s %q is not an address", v.Symbol, field, addr)
		}
	}

	if _, err := sym.TwoSidesStrat(v.StableTwoSidesStrats); err != nil {
		return fmt.Errorf("%s: stable leg: %w", v.Symbol, err)
	}
	if _, err := sym.TwoSidesStrat(v.AssetTwoSidesStrats); err != nil {
		return fmt.Errorf("%s: asset leg: %w", v.Symbol, err)
	}
	return nil
}

// PriceWei parses a human quote price into 18-decimal wei.
func PriceWei(raw string) (decimal.Decimal, error) {
	human, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !human.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %s must be positive", raw)
	}
	amount, err := wei.ParseUnits(human, wei.MaxDecimals)
	if err != nil {
		return decimal.Zero, err
	}
	return wei.ToDecimal(amount), nil
}
