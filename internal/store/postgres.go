package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/deltavault/position-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Wei amounts are stored as NUMERIC for exact integer precision; plan legs
// and vault strategy tables are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// pgUniqueViolation is the SQLSTATE for a duplicate key.
const pgUniqueViolation = "23505"

const vaultColumns = `symbol, address, stable_token, asset_token,
	stable_vault, asset_vault, stable_worker, asset_worker, lp_pool,
	stable_two_sides_strats, asset_two_sides_strats, partial_close_minimize_strat,
	leverage, stable_pos_id, asset_pos_id, created_at`

const planColumns = `id, vault_symbol, kind, leverage, slippage_bps,
	lp_price::TEXT, equity_delta::TEXT, stable_leg, asset_leg, action_data, created_at`

func (s *PostgresStore) CreateVault(ctx context.Context, v *model.Vault) error {
	stableToken, assetToken, err := marshalPair(v.StableToken, v.AssetToken)
	if err != nil {
		return err
	}
	stableStrats, assetStrats, err := marshalPair(v.StableTwoSidesStrats, v.AssetTwoSidesStrats)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO vaults (`+vaultColumns+`)
		 VALUES ($1, $2, $3::JSONB, $4::JSONB, $5, $6, $7, $8, $9,
		         $10::JSONB, $11::JSONB, $12, $13, $14, $15, $16)`,
		v.Symbol, v.Address, stableToken, assetToken,
		v.StableVault, v.AssetVault, v.StableWorker, v.AssetWorker, v.LpPool,
		stableStrats, assetStrats, v.PartialCloseMinimizeStrat,
		v.Leverage, v.StablePosID, v.AssetPosID, v.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: vault %s", ErrAlreadyExists, v.Symbol)
	}
	return err
}

func (s *PostgresStore) GetVault(ctx context.Context, symbol string) (*model.Vault, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+vaultColumns+` FROM vaults WHERE symbol = $1`, symbol)

	v, err := scanVault(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: vault %s", ErrNotFound, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("get vault %s: %w", symbol, err)
	}
	return v, nil
}

func (s *PostgresStore) ListVaults(ctx context.Context) ([]model.Vault, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+vaultColumns+` FROM vaults ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vaults []model.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, *v)
	}
	return vaults, rows.Err()
}

func (s *PostgresStore) SetInitPositionIDs(ctx context.Context, symbol, stablePosID, assetPosID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vaults SET stable_pos_id = $2, asset_pos_id = $3 WHERE symbol = $1`,
		symbol, stablePosID, assetPosID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vault %s", ErrNotFound, symbol)
	}
	return nil
}

func (s *PostgresStore) InsertPlan(ctx context.Context, p *model.PlanRecord) error {
	stableLeg, assetLeg, err := marshalPair(p.Stable, p.Asset)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO plans (id, vault_symbol, kind, leverage, slippage_bps,
		                    lp_price, equity_delta, stable_leg, asset_leg, action_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::JSONB, $9::JSONB, $10, $11)`,
		p.ID, p.VaultSymbol, p.Kind, p.Leverage, p.SlippageBps,
		p.LpPrice.String(), p.EquityDelta.String(),
		stableLeg, assetLeg, p.ActionData, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: plan %s", ErrAlreadyExists, p.ID)
	}
	return err
}

func (s *PostgresStore) GetPlan(ctx context.Context, id string) (*model.PlanRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`, id)

	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: plan %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) GetPlansByVault(ctx context.Context, symbol string) ([]model.PlanRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+planColumns+` FROM plans WHERE vault_symbol = $1 ORDER BY created_at`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []model.PlanRecord
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (s *PostgresStore) GetVaultExposures(ctx context.Context) ([]model.Exposure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.symbol,
		        v.asset_token->>'address',
		        COALESCE(SUM(p.equity_delta), 0)::TEXT AS equity
		 FROM vaults v
		 LEFT JOIN plans p ON p.vault_symbol = v.symbol
		 GROUP BY v.symbol, v.asset_token
		 ORDER BY v.symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exposures []model.Exposure
	for rows.Next() {
		var e model.Exposure
		var equityS string
		if err := rows.Scan(&e.VaultSymbol, &e.AssetToken, &equityS); err != nil {
			return nil, err
		}
		if e.Equity, err = parseNumeric(e.VaultSymbol+" equity", equityS); err != nil {
			return nil, err
		}
		exposures = append(exposures, e)
	}
	return exposures, rows.Err()
}

// parseNumeric decodes a NUMERIC column read as TEXT.
func parseNumeric(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func scanVault(row pgx.Row) (*model.Vault, error) {
	var v model.Vault
	var stableToken, assetToken, stableStrats, assetStrats []byte

	if err := row.Scan(&v.Symbol, &v.Address, &stableToken, &assetToken,
		&v.StableVault, &v.AssetVault, &v.StableWorker, &v.AssetWorker, &v.LpPool,
		&stableStrats, &assetStrats, &v.PartialCloseMinimizeStrat,
		&v.Leverage, &v.StablePosID, &v.AssetPosID, &v.CreatedAt); err != nil {
		return nil, err
	}

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{stableToken, &v.StableToken},
		{assetToken, &v.AssetToken},
		{stableStrats, &v.StableTwoSidesStrats},
		{assetStrats, &v.AssetTwoSidesStrats},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode vault %s: %w", v.Symbol, err)
		}
	}
	return &v, nil
}

func scanPlan(row pgx.Row) (*model.PlanRecord, error) {
	var p model.PlanRecord
	var lpPriceS, equityDeltaS string
	var stableLeg, assetLeg []byte

	if err := row.Scan(&p.ID, &p.VaultSymbol, &p.Kind, &p.Leverage, &p.SlippageBps,
		&lpPriceS, &equityDeltaS, &stableLeg, &assetLeg, &p.ActionData, &p.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.LpPrice, err = parseNumeric("plan "+p.ID+" lp_price", lpPriceS); err != nil {
		return nil, err
	}
	if p.EquityDelta, err = parseNumeric("plan "+p.ID+" equity_delta", equityDeltaS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stableLeg, &p.Stable); err != nil {
		return nil, fmt.Errorf("decode plan %s stable leg: %w", p.ID, err)
	}
	if err := json.Unmarshal(assetLeg, &p.Asset); err != nil {
		return nil, fmt.Errorf("decode plan %s asset leg: %w", p.ID, err)
	}
	return &p, nil
}

func marshalPair(a, b any) (string, string, error) {
	ja, err := json.Marshal(a)
	if err != nil {
		return "", "", err
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return "", "", err
	}
	return string(ja), string(jb), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
