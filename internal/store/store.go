// Package store defines the persistence interface for the position engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/deltavault/position-engine/internal/model"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Vault registry ---

	// CreateVault persists a new vault configuration.
	CreateVault(ctx context.Context, v *model.Vault) error

	// GetVault retrieves a vault by its symbol.
	GetVault(ctx context.Context, symbol string) (*model.Vault, error)

	// ListVaults returns all vaults.
	ListVaults(ctx context.Context) ([]model.Vault, error)

	// SetInitPositionIDs records the position ids opened by the
	// init-positions step for both legs.
	SetInitPositionIDs(ctx context.Context, symbol, stablePosID, assetPosID string) error

	// --- Immutable plan ledger ---

	// InsertPlan appends an immutable plan record.
	InsertPlan(ctx context.Context, p *model.PlanRecord) error

	// GetPlan retrieves a plan by id.
	GetPlan(ctx context.Context, id string) (*model.PlanRecord, error)

	// GetPlansByVault returns all plans for a vault, oldest first.
	GetPlansByVault(ctx context.Context, symbol string) ([]model.PlanRecord, error)

	// --- Exposure queries ---

	// GetVaultExposures returns the net planned equity of every vault.
	GetVaultExposures(ctx context.Context) ([]model.Exposure, error)
}
