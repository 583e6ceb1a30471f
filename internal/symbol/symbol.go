// Package symbol parses delta-neutral vault symbols and picks the swap
// strategy that matches the vault's DEX.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Supported DEX tags.
const (
	DexPancakeswap = "PCS"
	DexMdex        = "MDEX"
	DexSpookySwap  = "SPK"
	DexBiswap      = "BS"
)

// strategyKeys maps a DEX tag to the key of the two-sides-optimal strategy
// in a vault's strategy table.
var strategyKeys = map[string]string{
	DexPancakeswap: "Pancakeswap",
	DexMdex:        "Mdex",
	DexSpookySwap:  "SpookySwap",
	DexBiswap:      "Biswap",
}

// symbolRegex matches: L{leverage}x-{PAIR}-{DEX}{index}
// Example: L3x-BUSDBTCB-PCS1
var symbolRegex = regexp.MustCompile(`^L(\d+)x-([A-Za-z0-9]+)-([A-Z]+)(\d+)$`)

var (
	ErrInvalidSymbol = errors.New("symbol: invalid vault symbol")
	ErrUnknownDex    = errors.New("symbol: no strategy for dex")
)

// Symbol is a parsed vault symbol.
type Symbol struct {
	Raw      string `json:"raw"`
	Leverage int64  `json:"leverage"`
	Pair     string `json:"pair"`
	Dex      string `json:"dex"`
	Index    int    `json:"index"`
}

// Parse parses and validates a vault symbol.
// Format: L{leverage}x-{PAIR}-{DEX}{index}
func Parse(raw string) (*Symbol, error) {
	matches := symbolRegex.FindStringSubmatch(raw)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected L{lev}x-{pair}-{dex}{n})", ErrInvalidSymbol, raw)
	}

	leverage, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: leverage %s", ErrInvalidSymbol, matches[1])
	}
	index, err := strconv.Atoi(matches[4])
	if err != nil {
		return nil, fmt.Errorf("%w: index %s", ErrInvalidSymbol, matches[4])
	}

	dex := matches[3]
	if _, ok := strategyKeys[dex]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDex, dex)
	}

	return &Symbol{
		Raw:      raw,
		Leverage: leverage,
		Pair:     matches[2],
		Dex:      dex,
		Index:    index,
	}, nil
}

// StrategyKey returns the strategy table key for the symbol's DEX.
func (s *Symbol) StrategyKey() string {
	return strategyKeys[s.Dex]
}

// TwoSidesStrat looks up the strategy for this symbol's DEX in a leg's
// strategy table.
func (s *Symbol) TwoSidesStrat(strats map[string]string) (string, error) {
	addr, ok := strats[s.StrategyKey()]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: %s has no %s strategy", ErrUnknownDex, s.Raw, s.StrategyKey())
	}
	return addr, nil
}
