package workbyte

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	vaultAddr  = "0x1111111111111111111111111111111111111111"
	workerAddr = "0x2222222222222222222222222222222222222222"
	stratAddr  = "0x3333333333333333333333333333333333333333"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestEncodeDeposit_Layout(t *testing.T) {
	payload, err := EncodeDeposit(Deposit{
		Vault:         vaultAddr,
		PositionID:    big.NewInt(0),
		Worker:        workerAddr,
		Principal:     ether(125),
		Borrow:        ether(500),
		TwoSidesStrat: stratAddr,
		Farming:       ether(125),
	})
	require.NoError(t, err)

	vals, err := workArgs.Unpack(payload)
	require.NoError(t, err)
	require.Len(t, vals, 7)

	assert.Equal(t, common.HexToAddress(vaultAddr), vals[0].(common.Address))
	assert.Equal(t, 0, vals[1].(*big.Int).Sign())
	assert.Equal(t, common.HexToAddress(workerAddr), vals[2].(common.Address))
	assert.Equal(t, ether(125).String(), vals[3].(*big.Int).String())
	assert.Equal(t, ether(500).String(), vals[4].(*big.Int).String())
	assert.Equal(t, 0, vals[5].(*big.Int).Sign(), "nil max return encodes as zero")

	strat, err := stratArgs.Unpack(vals[6].([]byte))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(stratAddr), strat[0].(common.Address))

	inner, err := addLpArgs.Unpack(strat[1].([]byte))
	require.NoError(t, err)
	assert.Equal(t, ether(125).String(), inner[0].(*big.Int).String())
	assert.Equal(t, 0, inner[1].(*big.Int).Sign())
}

func TestEncodeWithdraw_Layout(t *testing.T) {
	payload, err := EncodeWithdraw(Withdraw{
		Vault:             vaultAddr,
		PositionID:        big.NewInt(7),
		Worker:            workerAddr,
		Debt:              ether(106),
		PartialCloseStrat: stratAddr,
		MaxLpToLiquidate:  ether(78),
		MaxDebtRepayment:  ether(106),
		MinFarmingToken:   big.NewInt(0),
	})
	require.NoError(t, err)

	vals, err := workArgs.Unpack(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(7), vals[1].(*big.Int).Int64())
	assert.Equal(t, 0, vals[3].(*big.Int).Sign(), "principal is zero on withdraw")
	assert.Equal(t, 0, vals[4].(*big.Int).Sign(), "borrow is zero on withdraw")
	assert.Equal(t, ether(106).String(), vals[5].(*big.Int).String())

	strat, err := stratArgs.Unpack(vals[6].([]byte))
	require.NoError(t, err)
	inner, err := partialArgs.Unpack(strat[1].([]byte))
	require.NoError(t, err)
	assert.Equal(t, ether(78).String(), inner[0].(*big.Int).String())
	assert.Equal(t, ether(106).String(), inner[1].(*big.Int).String())
	assert.Equal(t, 0, inner[2].(*big.Int).Sign())
}

func TestEncodeActions_Empty(t *testing.T) {
	payload, err := EncodeActions(nil)
	require.NoError(t, err)

	// Three offsets followed by three zero lengths.
	require.Len(t, payload, 6*32)
	h := strings.TrimPrefix(Hex(payload), "0x")
	assert.True(t, strings.HasSuffix(h[:64], "60"))
	assert.True(t, strings.HasSuffix(h[64:128], "80"))
	assert.True(t, strings.HasSuffix(h[128:192], "a0"))
	assert.Equal(t, strings.Repeat("0", 192), h[192:])
}

func TestEncodeActions_RoundTrip(t *testing.T) {
	stable, err := EncodeDeposit(Deposit{
		Vault: vaultAddr, Worker: workerAddr, TwoSidesStrat: stratAddr,
		Principal: ether(125), Borrow: ether(500), Farming: ether(125),
	})
	require.NoError(t, err)
	asset, err := EncodeDeposit(Deposit{
		Vault: vaultAddr, Worker: workerAddr, TwoSidesStrat: stratAddr,
		Principal: ether(375), Borrow: ether(1500), Farming: ether(375),
	})
	require.NoError(t, err)

	payload, err := EncodeActions([]Action{
		{Kind: ActionWork, Data: stable},
		{Kind: ActionWork, Value: big.NewInt(0), Data: asset},
	})
	require.NoError(t, err)

	actions, err := DecodeActions(payload)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionWork, actions[0].Kind)
	assert.Equal(t, 0, actions[0].Value.Sign())
	assert.Equal(t, stable, actions[0].Data)
	assert.Equal(t, asset, actions[1].Data)
}

func TestEncode_Deterministic(t *testing.T) {
	d := Deposit{Vault: vaultAddr, Worker: workerAddr, TwoSidesStrat: stratAddr, Principal: ether(1)}
	a, err := EncodeDeposit(d)
	require.NoError(t, err)
	b, err := EncodeDeposit(d)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncode_Errors(t *testing.T) {
	_, err := EncodeDeposit(Deposit{Vault: "not-an-address", Worker: workerAddr, TwoSidesStrat: stratAddr})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = EncodeDeposit(Deposit{Vault: vaultAddr, Worker: workerAddr, TwoSidesStrat: ""})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = EncodeDeposit(Deposit{Vault: vaultAddr, Worker: workerAddr, TwoSidesStrat: stratAddr, Borrow: big.NewInt(-1)})
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = EncodeWithdraw(Withdraw{Vault: vaultAddr, Worker: workerAddr, PartialCloseStrat: stratAddr, Debt: big.NewInt(-5)})
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = EncodeActions([]Action{{Kind: ActionWrap, Value: big.NewInt(-1)}})
	assert.ErrorIs(t, err, ErrNegativeAmount)
}
