package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deltavault/position-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateVault(ctx context.Context, v *model.Vault) error {
	if err := s.primary.CreateVault(ctx, v); err != nil {
		return err
	}
	s.cache(ctx, vaultKey(v.Symbol), v)
	return nil
}

func (s *CachedStore) SetInitPositionIDs(ctx context.Context, symbol, stablePosID, assetPosID string) error {
	if err := s.primary.SetInitPositionIDs(ctx, symbol, stablePosID, assetPosID); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, vaultKey(symbol))
	return nil
}

func (s *CachedStore) InsertPlan(ctx context.Context, p *model.PlanRecord) error {
	if err := s.primary.InsertPlan(ctx, p); err != nil {
		return err
	}
	// Plans are immutable; cache on write.
	s.cache(ctx, planKey(p.ID), p)
	s.rdb.Del(ctx, vaultPlansKey(p.VaultSymbol))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetVault(ctx context.Context, symbol string) (*model.Vault, error) {
	var v model.Vault
	if s.lookup(ctx, vaultKey(symbol), &v) {
		return &v, nil
	}

	// Cache miss: read from primary.
	vp, err := s.primary.GetVault(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, vaultKey(symbol), vp)
	return vp, nil
}

func (s *CachedStore) GetPlan(ctx context.Context, id string) (*model.PlanRecord, error) {
	var p model.PlanRecord
	if s.lookup(ctx, planKey(id), &p) {
		return &p, nil
	}

	pp, err := s.primary.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, planKey(id), pp)
	return pp, nil
}

func (s *CachedStore) GetPlansByVault(ctx context.Context, symbol string) ([]model.PlanRecord, error) {
	var plans []model.PlanRecord
	if s.lookup(ctx, vaultPlansKey(symbol), &plans) {
		return plans, nil
	}

	plans, err := s.primary.GetPlansByVault(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, vaultPlansKey(symbol), plans)
	return plans, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListVaults(ctx context.Context) ([]model.Vault, error) {
	return s.primary.ListVaults(ctx)
}

// GetVaultExposures always reads the primary; limit checks need current totals.
func (s *CachedStore) GetVaultExposures(ctx context.Context) ([]model.Exposure, error) {
	return s.primary.GetVaultExposures(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func vaultKey(symbol string) string      { return fmt.Sprintf("vault:%s", symbol) }
func planKey(id string) string           { return fmt.Sprintf("plan:%s", id) }
func vaultPlansKey(symbol string) string { return fmt.Sprintf("vault_plans:%s", symbol) }
