// Package model defines the domain types shared across the position engine.
// Raw token amounts are integer wei held in shopspring/decimal so they
// survive JSON and NUMERIC columns without precision loss. Never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan kinds.
const (
	KindOpen      = "open"
	KindRebalance = "rebalance"
)

// Leg names.
const (
	LegStable = "stable"
	LegAsset  = "asset"
)

// Token is an ERC20 token as configured for a vault.
type Token struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Address  string `json:"address" yaml:"address"`
	Decimals int    `json:"decimals" yaml:"decimals"`
}

// Vault is a delta-neutral vault and the contracts each of its legs talks to.
// Symbol format: L{leverage}x-{PAIR}-{DEX}{n}, e.g. L3x-BUSDBTCB-PCS1.
type Vault struct {
	Symbol  string `json:"symbol" yaml:"symbol"`
	Address string `json:"address" yaml:"address"`

	StableToken  Token  `json:"stable_token" yaml:"stable_token"`
	AssetToken   Token  `json:"asset_token" yaml:"asset_token"`
	StableVault  string `json:"stable_vault" yaml:"stable_vault"`
	AssetVault   string `json:"asset_vault" yaml:"asset_vault"`
	StableWorker string `json:"stable_worker" yaml:"stable_worker"`
	AssetWorker  string `json:"asset_worker" yaml:"asset_worker"`
	LpPool       string `json:"lp_pool" yaml:"lp_pool"`

	// Two-sides-optimal strategy per leg, keyed by DEX
	// (Pancakeswap, Mdex, SpookySwap, Biswap).
	StableTwoSidesStrats map[string]string `json:"stable_two_sides_strats" yaml:"stable_two_sides_strats"`
	AssetTwoSidesStrats  map[string]string `json:"asset_two_sides_strats" yaml:"asset_two_sides_strats"`

	PartialCloseMinimizeStrat string `json:"partial_close_minimize_strat" yaml:"partial_close_minimize_strat"`

	Leverage int64 `json:"leverage" yaml:"-"` // parsed from Symbol

	StablePosID string `json:"stable_pos_id,omitempty" yaml:"stable_pos_id,omitempty"`
	AssetPosID  string `json:"asset_pos_id,omitempty" yaml:"asset_pos_id,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// LegPlan is the computed work for one leg. Fields that don't apply to the
// plan kind stay zero.
type LegPlan struct {
	Leg       string          `json:"leg"` // "stable" or "asset"
	Deposit   decimal.Decimal `json:"deposit"`
	Price     decimal.Decimal `json:"price"`
	Principal decimal.Decimal `json:"principal"`
	Farming   decimal.Decimal `json:"farming"`
	Borrow    decimal.Decimal `json:"borrow"`

	EquityShare             decimal.Decimal `json:"equity_share"`
	TargetEquity            decimal.Decimal `json:"target_equity"`
	TargetDebt              decimal.Decimal `json:"target_debt"`
	DeltaEquity             decimal.Decimal `json:"delta_equity"`
	DeltaDebt               decimal.Decimal `json:"delta_debt"`
	DeltaEquityWithSlippage decimal.Decimal `json:"delta_equity_with_slippage"`
	DeltaDebtWithSlippage   decimal.Decimal `json:"delta_debt_with_slippage"`
	LpToLiquidate           decimal.Decimal `json:"lp_to_liquidate"`
	ExpectedEquity          decimal.Decimal `json:"expected_equity"`
	ExpectedDebt            decimal.Decimal `json:"expected_debt"`

	WorkByte string `json:"work_byte,omitempty"` // 0x-prefixed ABI payload
}

// PlanRecord is an immutable record of one calculation and its inputs.
// Records are never modified; callers replay them against on-chain
// minimum-received guards.
type PlanRecord struct {
	ID          string          `json:"id"`
	VaultSymbol string          `json:"vault_symbol"`
	Kind        string          `json:"kind"` // "open" or "rebalance"
	Leverage    int64           `json:"leverage"`
	SlippageBps int64           `json:"slippage_bps"`
	LpPrice     decimal.Decimal `json:"lp_price"`
	EquityDelta decimal.Decimal `json:"equity_delta"` // signed quote value added to the vault
	Stable      LegPlan         `json:"stable"`
	Asset       LegPlan         `json:"asset"`
	ActionData  string          `json:"action_data,omitempty"` // 0x-prefixed batch for the vault call
	CreatedAt   time.Time       `json:"created_at"`
}

// Exposure is the net quote value deployed in one vault, with the asset token
// that decides which vaults are correlated.
type Exposure struct {
	VaultSymbol string          `json:"vault_symbol"`
	AssetToken  string          `json:"asset_token"`
	Equity      decimal.Decimal `json:"equity"`
}
