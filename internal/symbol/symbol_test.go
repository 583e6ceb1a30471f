package symbol

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	s, err := Parse("L3x-BUSDBTCB-PCS1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Leverage != 3 {
		t.Errorf("expected leverage=3, got %d", s.Leverage)
	}
	if s.Pair != "BUSDBTCB" {
		t.Errorf("expected pair=BUSDBTCB, got %s", s.Pair)
	}
	if s.Dex != DexPancakeswap {
		t.Errorf("expected dex=PCS, got %s", s.Dex)
	}
	if s.Index != 1 {
		t.Errorf("expected index=1, got %d", s.Index)
	}
	if s.StrategyKey() != "Pancakeswap" {
		t.Errorf("expected strategy key Pancakeswap, got %s", s.StrategyKey())
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"INVALID",
		"L3x-BUSDBTCB",
		"L3x-BUSDBTCB-PCS",
		"3x-BUSDBTCB-PCS1",   // missing L
		"Lx-BUSDBTCB-PCS1",   // missing leverage
		"L3x-BUSD_BTCB-PCS1", // bad pair characters
	}
	for _, raw := range tests {
		_, err := Parse(raw)
		if !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("expected ErrInvalidSymbol for %q, got %v", raw, err)
		}
	}
}

func TestParse_UnknownDex(t *testing.T) {
	_, err := Parse("L3x-BUSDBTCB-UNI1")
	if !errors.Is(err, ErrUnknownDex) {
		t.Errorf("expected ErrUnknownDex, got %v", err)
	}
}

func TestParse_AllDexes(t *testing.T) {
	tests := map[string]string{
		"L3x-BUSDBNB-PCS2":  "Pancakeswap",
		"L8x-USDTETH-MDEX1": "Mdex",
		"L3x-USDCFTM-SPK1":  "SpookySwap",
		"L5x-USDTBNB-BS12":  "Biswap",
	}
	for raw, key := range tests {
		s, err := Parse(raw)
		if err != nil {
			t.Errorf("unexpected error for %s: %v", raw, err)
			continue
		}
		if s.StrategyKey() != key {
			t.Errorf("%s: expected strategy key %s, got %s", raw, key, s.StrategyKey())
		}
	}
}

func TestTwoSidesStrat(t *testing.T) {
	s, _ := Parse("L3x-BUSDBTCB-PCS1")
	strats := map[string]string{
		"Pancakeswap": "0x00000000000000000000000000000000000000aa",
		"Mdex":        "0x00000000000000000000000000000000000000bb",
	}

	addr, err := s.TwoSidesStrat(strats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != strats["Pancakeswap"] {
		t.Errorf("expected pancakeswap strategy, got %s", addr)
	}

	_, err = s.TwoSidesStrat(map[string]string{"Mdex": "0xbb"})
	if !errors.Is(err, ErrUnknownDex) {
		t.Errorf("expected ErrUnknownDex for missing strategy, got %v", err)
	}
}
