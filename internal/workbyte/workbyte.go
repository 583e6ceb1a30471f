// Package workbyte ABI-encodes the payloads a delta-neutral vault forwards to
// its lending vaults: one work call per leg, wrapped in an action batch.
package workbyte

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Action kinds understood by the vault's execute entry point.
const (
	ActionWork uint8 = 1
	ActionWrap uint8 = 2
)

var (
	ErrInvalidAddress = errors.New("workbyte: invalid address")
	ErrNegativeAmount = errors.New("workbyte: negative amount")
	ErrLengthMismatch = errors.New("workbyte: action arrays differ in length")
)

var (
	tAddress   = mustType("address")
	tUint256   = mustType("uint256")
	tBytes     = mustType("bytes")
	tUint8s    = mustType("uint8[]")
	tUint256s  = mustType("uint256[]")
	tBytesList = mustType("bytes[]")

	workArgs    = args(tAddress, tUint256, tAddress, tUint256, tUint256, tUint256, tBytes)
	stratArgs   = args(tAddress, tBytes)
	addLpArgs   = args(tUint256, tUint256)
	partialArgs = args(tUint256, tUint256, tUint256)
	batchArgs   = args(tUint8s, tUint256s, tBytesList)
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("workbyte: abi type %s: %v", t, err))
	}
	return typ
}

func args(types ...abi.Type) abi.Arguments {
	out := make(abi.Arguments, len(types))
	for i, t := range types {
		out[i] = abi.Argument{Type: t}
	}
	return out
}

// Deposit describes a work call that opens or grows a leveraged position
// through a two-sides-optimal strategy.
type Deposit struct {
	Vault         string
	PositionID    *big.Int
	Worker        string
	Principal     *big.Int
	Borrow        *big.Int
	MaxReturn     *big.Int
	TwoSidesStrat string
	Farming       *big.Int
	MinLpReceive  *big.Int
}

// Withdraw describes a work call that partially closes a position through
// the partial-close-minimize-trading strategy.
type Withdraw struct {
	Vault             string
	PositionID        *big.Int
	Worker            string
	Debt              *big.Int
	PartialCloseStrat string
	MaxLpToLiquidate  *big.Int
	MaxDebtRepayment  *big.Int
	MinFarmingToken   *big.Int
}

// Action is one entry of a vault action batch.
type Action struct {
	Kind  uint8
	Value *big.Int
	Data  []byte
}

// EncodeDeposit packs a deposit work call.
func EncodeDeposit(d Deposit) ([]byte, error) {
	strat, err := address(d.TwoSidesStrat)
	if err != nil {
		return nil, err
	}
	if err := checkAmounts(d.Principal, d.Borrow, d.MaxReturn, d.Farming, d.MinLpReceive); err != nil {
		return nil, err
	}
	inner, err := addLpArgs.Pack(amount(d.Farming), amount(d.MinLpReceive))
	if err != nil {
		return nil, fmt.Errorf("pack add-lp data: %w", err)
	}
	stratData, err := stratArgs.Pack(strat, inner)
	if err != nil {
		return nil, fmt.Errorf("pack strategy data: %w", err)
	}
	return encodeWork(d.Vault, d.PositionID, d.Worker, d.Principal, d.Borrow, d.MaxReturn, stratData)
}

// EncodeWithdraw packs a partial-close work call. Principal and borrow are
// always zero for a withdrawal; Debt is passed as the max-return field.
func EncodeWithdraw(w Withdraw) ([]byte, error) {
	strat, err := address(w.PartialCloseStrat)
	if err != nil {
		return nil, err
	}
	if err := checkAmounts(w.Debt, w.MaxLpToLiquidate, w.MaxDebtRepayment, w.MinFarmingToken); err != nil {
		return nil, err
	}
	inner, err := partialArgs.Pack(amount(w.MaxLpToLiquidate), amount(w.MaxDebtRepayment), amount(w.MinFarmingToken))
	if err != nil {
		return nil, fmt.Errorf("pack partial-close data: %w", err)
	}
	stratData, err := stratArgs.Pack(strat, inner)
	if err != nil {
		return nil, fmt.Errorf("pack strategy data: %w", err)
	}
	return encodeWork(w.Vault, w.PositionID, w.Worker, nil, nil, w.Debt, stratData)
}

func encodeWork(vault string, posID *big.Int, worker string, principal, borrow, maxReturn *big.Int, stratData []byte) ([]byte, error) {
	v, err := address(vault)
	if err != nil {
		return nil, err
	}
	wk, err := address(worker)
	if err != nil {
		return nil, err
	}
	if err := checkAmounts(posID); err != nil {
		return nil, err
	}
	out, err := workArgs.Pack(v, amount(posID), wk, amount(principal), amount(borrow), amount(maxReturn), stratData)
	if err != nil {
		return nil, fmt.Errorf("pack work: %w", err)
	}
	return out, nil
}

// EncodeActions packs an action batch as (uint8[], uint256[], bytes[]).
func EncodeActions(actions []Action) ([]byte, error) {
	kinds := make([]uint8, len(actions))
	values := make([]*big.Int, len(actions))
	data := make([][]byte, len(actions))
	for i, a := range actions {
		if err := checkAmounts(a.Value); err != nil {
			return nil, err
		}
		kinds[i] = a.Kind
		values[i] = amount(a.Value)
		data[i] = a.Data
		if data[i] == nil {
			data[i] = []byte{}
		}
	}
	out, err := batchArgs.Pack(kinds, values, data)
	if err != nil {
		return nil, fmt.Errorf("pack actions: %w", err)
	}
	return out, nil
}

// DecodeActions unpacks an action batch produced by EncodeActions.
func DecodeActions(payload []byte) ([]Action, error) {
	vals, err := batchArgs.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("unpack actions: %w", err)
	}
	kinds := vals[0].([]uint8)
	values := vals[1].([]*big.Int)
	data := vals[2].([][]byte)
	if len(kinds) != len(values) || len(kinds) != len(data) {
		return nil, ErrLengthMismatch
	}
	out := make([]Action, len(kinds))
	for i := range kinds {
		out[i] = Action{Kind: kinds[i], Value: values[i], Data: data[i]}
	}
	return out, nil
}

// Hex returns the 0x-prefixed form of an encoded payload.
func Hex(b []byte) string {
	return hexutil.Encode(b)
}

func address(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// amount treats nil as zero.
func amount(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

func checkAmounts(xs ...*big.Int) error {
	for _, x := range xs {
		if x != nil && x.Sign() < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeAmount, x)
		}
	}
	return nil
}
