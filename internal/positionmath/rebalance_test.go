package positionmath

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltavault/position-engine/internal/wei"
)

// gatewayLegs is the position from the gateway withdraw scenario:
// stable equity 496.86 / debt 1000, asset equity 1490.56 / debt 3000, 3x.
func gatewayLegs() [2]PositionState {
	return [2]PositionState{
		{Equity: ether("496.859775279132755434"), Debt: ether("1000"), Leverage: 3},
		{Equity: ether("1490.562691116413626439"), Debt: ether("3000"), Leverage: 3},
	}
}

func TestComputeRebalance_GatewayWithdraw(t *testing.T) {
	plans, err := ComputeRebalance(gatewayLegs(), ether("-200"), 30, ether("2"))
	require.NoError(t, err)

	stable := plans[0]
	assert.Equal(t, "250002092499363611", stable.EquityShare.String())
	assert.Equal(t, ether("446.859356779260032153").String(), stable.TargetEquity.String())
	assert.Equal(t, ether("893.718713558520064306").String(), stable.TargetDebt.String())
	assert.Equal(t, ether("-50.000418499872723281").String(), stable.DeltaEquity.String())
	assert.Equal(t, ether("-106.281286441479935694").String(), stable.DeltaDebt.String())
	assert.Equal(t, ether("-49.850417244373105111").String(), stable.DeltaEquityWithSlippage.String())
	assert.Equal(t, ether("-105.962442582155495886").String(), stable.DeltaDebtWithSlippage.String())
	assert.Equal(t, ether("447.009358034759650323").String(), stable.ExpectedEquity.String())
	assert.Equal(t, ether("894.037557417844504114").String(), stable.ExpectedDebt.String())
	// (49.850417244373105111 + 105.962442582155495886) / 2
	assert.Equal(t, "77906429913264300498", stable.LpAmountToLiquidate.String())
	assert.Equal(t, ether("105.962442582155495886").String(), stable.DebtToRepay().String())
	assert.True(t, stable.Shrinking())

	asset := plans[1]
	assert.Equal(t, "749997907500636388", asset.EquityShare.String())
	assert.Equal(t, ether("1340.563109616286347932").String(), asset.TargetEquity.String())
	assert.Equal(t, ether("2681.126219232572695864").String(), asset.TargetDebt.String())
	assert.Equal(t, ether("-149.999581500127278507").String(), asset.DeltaEquity.String())
	assert.Equal(t, ether("-318.873780767427304136").String(), asset.DeltaDebt.String())
	assert.Equal(t, ether("-149.549582755626896671").String(), asset.DeltaEquityWithSlippage.String())
	assert.Equal(t, ether("-317.917159425125022223").String(), asset.DeltaDebtWithSlippage.String())
	assert.Equal(t, "233733371090375959447", asset.LpAmountToLiquidate.String())
}

func TestComputeRebalance_ExactSharesConserveEquity(t *testing.T) {
	deltas := []string{"-200", "-1987.4", "150.123456789012345678", "0.000000000000000001", "-0.000000000000000003"}
	for _, d := range deltas {
		delta := ether(d)
		plans, err := ComputeRebalance(gatewayLegs(), delta, 30, ether("2"), WithExactShares())
		require.NoError(t, err)

		sum := new(big.Int).Add(plans[0].DeltaEquity, plans[1].DeltaEquity)
		assertWithin(t, delta, sum, 2, "delta "+d)
	}
}

func TestComputeRebalance_QuantisedSharesConserveEquity(t *testing.T) {
	delta := ether("-200")
	plans, err := ComputeRebalance(gatewayLegs(), delta, 30, ether("2"))
	require.NoError(t, err)

	// One share unit of 1e-18 costs up to newTotal/1e18 wei per leg.
	sum := new(big.Int).Add(plans[0].DeltaEquity, plans[1].DeltaEquity)
	assertWithin(t, delta, sum, 1788+2, "quantised")
}

func TestComputeRebalance_ZeroDeltaOnProportionalLegs(t *testing.T) {
	legs := [2]PositionState{
		{Equity: ether("250"), Debt: ether("500"), Leverage: 3},
		{Equity: ether("750"), Debt: ether("1500"), Leverage: 3},
	}
	plans, err := ComputeRebalance(legs, big.NewInt(0), 30, nil)
	require.NoError(t, err)

	for i, p := range plans {
		assert.Equal(t, "0", p.DeltaEquity.String(), "leg %d equity", i)
		assert.Equal(t, "0", p.DeltaDebt.String(), "leg %d debt", i)
		assert.Equal(t, "0", p.LpAmountToLiquidate.String(), "leg %d lp", i)
		assert.False(t, p.Shrinking())
	}
}

func TestComputeRebalance_SmallDeltaOnUnevenLegs(t *testing.T) {
	thirds := [2]PositionState{
		{Equity: ether("1"), Debt: ether("2"), Leverage: 3},
		{Equity: ether("2"), Debt: ether("4"), Leverage: 3},
	}
	for name, legs := range map[string][2]PositionState{"thirds": thirds, "gateway": gatewayLegs()} {
		total := new(big.Int).Add(legs[0].Equity, legs[1].Equity)
		// A share truncated to 1e-18 misses by less than total/1e18 wei.
		quantisedBound := new(big.Int).Quo(total, wei.E18)
		quantisedBound.Add(quantisedBound, big.NewInt(1))

		for _, delta := range []int64{0, 1} {
			plans, err := ComputeRebalance(legs, big.NewInt(delta), 30, ether("2"))
			require.NoError(t, err, "%s delta %d", name, delta)
			for i, p := range plans {
				assert.True(t, wei.Abs(p.DeltaEquity).Cmp(quantisedBound) <= 0,
					"%s delta %d leg %d moved by %s", name, delta, i, p.DeltaEquity)
			}

			plans, err = ComputeRebalance(legs, big.NewInt(delta), 30, ether("2"), WithExactShares())
			require.NoError(t, err, "%s delta %d exact", name, delta)
			for i, p := range plans {
				assert.True(t, wei.Abs(p.DeltaEquity).Cmp(big.NewInt(1)) <= 0,
					"%s delta %d exact leg %d moved by %s", name, delta, i, p.DeltaEquity)
			}
		}
	}
}

func TestComputeRebalance_TruncationNeedsLpPrice(t *testing.T) {
	legs := [2]PositionState{
		{Equity: ether("1"), Debt: ether("2"), Leverage: 3},
		{Equity: ether("2"), Debt: ether("4"), Leverage: 3},
	}
	// Both legs land a wei or two under their current equity.
	_, err := ComputeRebalance(legs, big.NewInt(0), 30, nil)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestComputeRebalance_DepositSkipsSlippage(t *testing.T) {
	legs := [2]PositionState{
		{Equity: ether("250"), Debt: ether("500"), Leverage: 3},
		{Equity: ether("750"), Debt: ether("1500"), Leverage: 3},
	}
	plans, err := ComputeRebalance(legs, ether("100"), 50, nil)
	require.NoError(t, err)

	stable := plans[0]
	assert.Equal(t, ether("25").String(), stable.DeltaEquity.String())
	assert.Equal(t, ether("50").String(), stable.DeltaDebt.String())
	assert.Equal(t, stable.DeltaEquity.String(), stable.DeltaEquityWithSlippage.String())
	assert.Equal(t, stable.DeltaDebt.String(), stable.DeltaDebtWithSlippage.String())
	assert.Equal(t, "0", stable.DebtToRepay().String())
	assert.Equal(t, "0", stable.LpAmountToLiquidate.String())

	asset := plans[1]
	assert.Equal(t, ether("75").String(), asset.DeltaEquity.String())
	assert.Equal(t, ether("150").String(), asset.DeltaDebt.String())
}

func TestComputeRebalance_PerLegLeverage(t *testing.T) {
	legs := [2]PositionState{
		{Equity: ether("100"), Debt: ether("100"), Leverage: 2},
		{Equity: ether("100"), Debt: ether("300"), Leverage: 4},
	}
	plans, err := ComputeRebalance(legs, ether("-100"), 0, ether("1"))
	require.NoError(t, err)

	assert.Equal(t, ether("50").String(), plans[0].TargetDebt.String())
	assert.Equal(t, ether("150").String(), plans[1].TargetDebt.String())
	// slippage 0: lp = |equity| + |debt| at price 1
	assert.Equal(t, ether("100").String(), plans[0].LpAmountToLiquidate.String())
	assert.Equal(t, ether("200").String(), plans[1].LpAmountToLiquidate.String())
}

func TestComputeRebalance_Errors(t *testing.T) {
	tests := []struct {
		name     string
		legs     [2]PositionState
		delta    *big.Int
		slippage int64
		lpPrice  *big.Int
		want     error
	}{
		{"slippage above max", gatewayLegs(), ether("-1"), 10001, wei.E18, ErrInvalidSlippage},
		{"negative slippage", gatewayLegs(), ether("-1"), -1, wei.E18, ErrInvalidSlippage},
		{"withdraw everything", gatewayLegs(), ether("-1987.422466395546381873"), 30, wei.E18, ErrInsufficientEquity},
		{"withdraw more than equity", gatewayLegs(), ether("-5000"), 30, wei.E18, ErrInsufficientEquity},
		{"zero equity", [2]PositionState{
			{Equity: big.NewInt(0), Debt: big.NewInt(0), Leverage: 3},
			{Equity: big.NewInt(0), Debt: big.NewInt(0), Leverage: 3},
		}, ether("1"), 30, wei.E18, ErrDivideByZeroEquity},
		{"negative debt", [2]PositionState{
			{Equity: ether("1"), Debt: big.NewInt(-1), Leverage: 3},
			{Equity: ether("1"), Debt: big.NewInt(0), Leverage: 3},
		}, ether("1"), 30, wei.E18, ErrInvalidAmount},
		{"leverage one", [2]PositionState{
			{Equity: ether("1"), Debt: big.NewInt(0), Leverage: 1},
			{Equity: ether("1"), Debt: big.NewInt(0), Leverage: 3},
		}, ether("1"), 30, wei.E18, ErrInvalidLeverage},
		{"nil delta", gatewayLegs(), nil, 30, wei.E18, ErrInvalidAmount},
		{"missing lp price on withdraw", gatewayLegs(), ether("-200"), 30, nil, ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeRebalance(tt.legs, tt.delta, tt.slippage, tt.lpPrice)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestComputeRebalance_Deterministic(t *testing.T) {
	a, err := ComputeRebalance(gatewayLegs(), ether("-200"), 30, ether("2"))
	require.NoError(t, err)
	b, err := ComputeRebalance(gatewayLegs(), ether("-200"), 30, ether("2"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
