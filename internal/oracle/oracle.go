// Package oracle supplies token and LP prices to the orchestration layer.
//
// Prices are wei-scale integers in a common quote unit, stamped with the
// time the feed last updated them. The position math never calls a Source
// itself: the caller fetches, checks freshness, then passes plain values in.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var (
	// ErrPriceNotFound is returned when the source has no price for an id.
	ErrPriceNotFound = errors.New("oracle: price not found")

	// ErrStalePrice is returned by CheckFresh when a price is older than allowed.
	ErrStalePrice = errors.New("oracle: price is stale")
)

// Price is a wei-scale price and the time it was last updated.
type Price struct {
	Value     *big.Int
	UpdatedAt time.Time
}

// Source is a price feed for tokens and LP pools.
type Source interface {
	// TokenPrice returns the price of one whole token.
	TokenPrice(ctx context.Context, token string) (Price, error)

	// LpPrice returns the value of one whole LP token.
	LpPrice(ctx context.Context, pool string) (Price, error)
}

// CheckFresh returns ErrStalePrice if p is older than maxAge at now.
// A zero maxAge disables the check.
func CheckFresh(p Price, maxAge time.Duration, now time.Time) error {
	if maxAge <= 0 {
		return nil
	}
	if age := now.Sub(p.UpdatedAt); age > maxAge {
		return fmt.Errorf("%w: updated %s ago (max %s)", ErrStalePrice, age.Round(time.Second), maxAge)
	}
	return nil
}

// MemorySource is a settable in-memory Source for development and tests.
type MemorySource struct {
	mu     sync.RWMutex
	tokens map[string]Price
	lps    map[string]Price
}

// NewMemorySource creates an empty in-memory price source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		tokens: make(map[string]Price),
		lps:    make(map[string]Price),
	}
}

// SetTokenPrice stores a token price.
func (s *MemorySource) SetTokenPrice(token string, value *big.Int, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = Price{Value: new(big.Int).Set(value), UpdatedAt: updatedAt}
}

// SetLpPrice stores an LP token price.
func (s *MemorySource) SetLpPrice(pool string, value *big.Int, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lps[pool] = Price{Value: new(big.Int).Set(value), UpdatedAt: updatedAt}
}

func (s *MemorySource) TokenPrice(_ context.Context, token string) (Price, error) {
	return s.lookup(s.tokens, token)
}

func (s *MemorySource) LpPrice(_ context.Context, pool string) (Price, error) {
	return s.lookup(s.lps, pool)
}

func (s *MemorySource) lookup(prices map[string]Price, id string) (Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := prices[id]
	if !ok {
		return Price{}, fmt.Errorf("%w: %s", ErrPriceNotFound, id)
	}
	// Copy so callers can't mutate the stored value.
	return Price{Value: new(big.Int).Set(p.Value), UpdatedAt: p.UpdatedAt}, nil
}
