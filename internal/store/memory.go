package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/deltavault/position-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	vaults map[string]*model.Vault
	plans  []model.PlanRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults: make(map[string]*model.Vault),
	}
}

func (s *MemoryStore) CreateVault(_ context.Context, v *model.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vaults[v.Symbol]; ok {
		return fmt.Errorf("%w: vault %s", ErrAlreadyExists, v.Symbol)
	}
	s.vaults[v.Symbol] = copyVault(v)
	return nil
}

func (s *MemoryStore) GetVault(_ context.Context, symbol string) (*model.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vaults[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: vault %s", ErrNotFound, symbol)
	}
	return copyVault(v), nil
}

func (s *MemoryStore) ListVaults(_ context.Context) ([]model.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vaults := make([]model.Vault, 0, len(s.vaults))
	for _, v := range s.vaults {
		vaults = append(vaults, *copyVault(v))
	}
	sort.Slice(vaults, func(i, j int) bool { return vaults[i].Symbol < vaults[j].Symbol })
	return vaults, nil
}

func (s *MemoryStore) SetInitPositionIDs(_ context.Context, symbol, stablePosID, assetPosID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vaults[symbol]
	if !ok {
		return fmt.Errorf("%w: vault %s", ErrNotFound, symbol)
	}
	v.StablePosID = stablePosID
	v.AssetPosID = assetPosID
	return nil
}

func (s *MemoryStore) InsertPlan(_ context.Context, p *model.PlanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.plans {
		if existing.ID == p.ID {
			return fmt.Errorf("%w: plan %s", ErrAlreadyExists, p.ID)
		}
	}
	s.plans = append(s.plans, *p)
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id string) (*model.PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plans {
		if p.ID == id {
			copy := p
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("%w: plan %s", ErrNotFound, id)
}

func (s *MemoryStore) GetPlansByVault(_ context.Context, symbol string) ([]model.PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PlanRecord
	for _, p := range s.plans {
		if p.VaultSymbol == symbol {
			result = append(result, p)
		}
	}
	return result, nil
}

// GetVaultExposures sums plan equity deltas per vault. Vaults without
// plans report zero equity.
func (s *MemoryStore) GetVaultExposures(_ context.Context) ([]model.Exposure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	equity := make(map[string]decimal.Decimal, len(s.vaults))
	for _, p := range s.plans {
		equity[p.VaultSymbol] = equity[p.VaultSymbol].Add(p.EquityDelta)
	}

	exposures := make([]model.Exposure, 0, len(s.vaults))
	for symbol, v := range s.vaults {
		exposures = append(exposures, model.Exposure{
			VaultSymbol: symbol,
			AssetToken:  v.AssetToken.Address,
			Equity:      equity[symbol],
		})
	}
	sort.Slice(exposures, func(i, j int) bool { return exposures[i].VaultSymbol < exposures[j].VaultSymbol })
	return exposures, nil
}

// copyVault deep-copies the strategy maps so callers can't mutate state.
func copyVault(v *model.Vault) *model.Vault {
	c := *v
	c.StableTwoSidesStrats = copyStrings(v.StableTwoSidesStrats)
	c.AssetTwoSidesStrats = copyStrings(v.AssetTwoSidesStrats)
	return &c
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
