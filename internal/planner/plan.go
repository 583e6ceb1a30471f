package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/deltavault/position-engine/internal/limits"
	"github.com/deltavault/position-engine/internal/metrics"
	"github.com/deltavault/position-engine/internal/model"
	"github.com/deltavault/position-engine/internal/oracle"
	"github.com/deltavault/position-engine/internal/positionmath"
	"github.com/deltavault/position-engine/internal/symbol"
	"github.com/deltavault/position-engine/internal/wei"
	"github.com/deltavault/position-engine/internal/workbyte"
)

// OpenRequest is the JSON body for POST /vaults/{symbol}/open.
// Deposits are in human token units, e.g. "500" BUSD.
type OpenRequest struct {
	LongDeposit  decimal.Decimal `json:"long_deposit"`  // stable token
	ShortDeposit decimal.Decimal `json:"short_deposit"` // asset token
	Leverage     int64           `json:"leverage,omitempty"`
}

// RebalanceRequest is the JSON body for POST /vaults/{symbol}/rebalance.
// All amounts are wei of the quote unit.
type RebalanceRequest struct {
	StableEquity     decimal.Decimal `json:"stable_equity"`
	StableDebt       decimal.Decimal `json:"stable_debt"`
	AssetEquity      decimal.Decimal `json:"asset_equity"`
	AssetDebt        decimal.Decimal `json:"asset_debt"`
	DeltaTotalEquity decimal.Decimal `json:"delta_total_equity"` // negative: withdraw
	SlippageBps      int64           `json:"slippage_bps"`
	ExactShares      bool            `json:"exact_shares,omitempty"`
}

// OpenPosition handles POST /api/v1/vaults/{symbol}/open
// Sizes both legs of a deposit and returns the work bytes to execute it.
func (s *Service) OpenPosition(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	vault, sym, err := s.loadVault(ctx, chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	leverage := req.Leverage
	if leverage == 0 {
		leverage = vault.Leverage
	}

	longDeposit, err := wei.ParseUnits(req.LongDeposit, int32(vault.StableToken.Decimals))
	if err != nil {
		writeError(w, "long_deposit: "+err.Error(), http.StatusBadRequest)
		return
	}
	shortDeposit, err := wei.ParseUnits(req.ShortDeposit, int32(vault.AssetToken.Decimals))
	if err != nil {
		writeError(w, "short_deposit: "+err.Error(), http.StatusBadRequest)
		return
	}

	stablePrice, err := s.tokenPrice(ctx, vault.StableToken.Address)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	assetPrice, err := s.tokenPrice(ctx, vault.AssetToken.Address)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	plan, err := positionmath.ComputeOpenPosition(
		positionmath.Leg{Role: positionmath.Long, DepositAmount: longDeposit, TokenPrice: stablePrice, TokenDecimals: vault.StableToken.Decimals},
		positionmath.Leg{Role: positionmath.Short, DepositAmount: shortDeposit, TokenPrice: assetPrice, TokenDecimals: vault.AssetToken.Decimals},
		leverage,
	)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	// Quote value of the deposit, for exposure limits.
	equityDelta := wei.MulDiv(longDeposit, stablePrice, wei.Pow10(vault.StableToken.Decimals))
	equityDelta.Add(equityDelta, wei.MulDiv(shortDeposit, assetPrice, wei.Pow10(vault.AssetToken.Decimals)))

	stable := model.LegPlan{
		Leg:       model.LegStable,
		Deposit:   wei.ToDecimal(longDeposit),
		Price:     wei.ToDecimal(stablePrice),
		Principal: wei.ToDecimal(plan.Long.PrincipalAmount),
		Farming:   wei.ToDecimal(plan.Long.FarmingAmount),
		Borrow:    wei.ToDecimal(plan.Long.BorrowAmount),
	}
	asset := model.LegPlan{
		Leg:       model.LegAsset,
		Deposit:   wei.ToDecimal(shortDeposit),
		Price:     wei.ToDecimal(assetPrice),
		Principal: wei.ToDecimal(plan.Short.PrincipalAmount),
		Farming:   wei.ToDecimal(plan.Short.FarmingAmount),
		Borrow:    wei.ToDecimal(plan.Short.BorrowAmount),
	}

	stableWork, assetWork, actionData, err := depositWork(vault, sym, plan)
	if err != nil {
		s.log.Error().Err(err).Str("vault", vault.Symbol).Msg("encode deposit work failed")
		writeError(w, err.Error(), statusFor(err))
		return
	}
	stable.WorkByte = workbyte.Hex(stableWork)
	asset.WorkByte = workbyte.Hex(assetWork)

	rec := &model.PlanRecord{
		ID:          uuid.New().String(),
		VaultSymbol: vault.Symbol,
		Kind:        model.KindOpen,
		Leverage:    leverage,
		EquityDelta: wei.ToDecimal(equityDelta),
		Stable:      stable,
		Asset:       asset,
		ActionData:  workbyte.Hex(actionData),
	}
	if err := s.commit(ctx, vault, rec); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	metrics.PlannedBorrow.WithLabelValues(vault.Symbol, model.LegStable).
		Add(wei.FormatUnits(plan.Long.BorrowAmount, int32(vault.StableToken.Decimals)).InexactFloat64())
	metrics.PlannedBorrow.WithLabelValues(vault.Symbol, model.LegAsset).
		Add(wei.FormatUnits(plan.Short.BorrowAmount, int32(vault.AssetToken.Decimals)).InexactFloat64())
	metrics.PlanLatency.WithLabelValues(model.KindOpen).Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusCreated, rec)
}

// Rebalance handles POST /api/v1/vaults/{symbol}/rebalance
// Moves both legs to a new total equity at constant shares. Shrinking legs
// get partial-close work bytes.
func (s *Service) Rebalance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	vault, _, err := s.loadVault(ctx, chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	amounts, err := rawAmounts(req.StableEquity, req.StableDebt, req.AssetEquity, req.AssetDebt, req.DeltaTotalEquity)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	delta := amounts[4]

	// Share truncation can shrink a leg by a few wei even when the total
	// grows, so the LP price is always required.
	lpPrice, err := s.lpPrice(ctx, vault.LpPool)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	var opts []positionmath.Option
	if req.ExactShares {
		opts = append(opts, positionmath.WithExactShares())
	}
	legs := [2]positionmath.PositionState{
		{Equity: amounts[0], Debt: amounts[1], Leverage: vault.Leverage},
		{Equity: amounts[2], Debt: amounts[3], Leverage: vault.Leverage},
	}
	plans, err := positionmath.ComputeRebalance(legs, delta, req.SlippageBps, lpPrice, opts...)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	stable := rebalanceLeg(model.LegStable, plans[0])
	asset := rebalanceLeg(model.LegAsset, plans[1])

	var actions []workbyte.Action
	for _, leg := range []struct {
		plan   positionmath.RebalancePlan
		out    *model.LegPlan
		vault  string
		worker string
		posID  string
	}{
		{plans[0], &stable, vault.StableVault, vault.StableWorker, vault.StablePosID},
		{plans[1], &asset, vault.AssetVault, vault.AssetWorker, vault.AssetPosID},
	} {
		if !leg.plan.Shrinking() {
			continue
		}
		work, err := withdrawWork(vault, leg.vault, leg.worker, leg.posID, leg.plan)
		if err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
		leg.out.WorkByte = workbyte.Hex(work)
		actions = append(actions, workbyte.Action{Kind: workbyte.ActionWork, Data: work})
	}

	rec := &model.PlanRecord{
		ID:          uuid.New().String(),
		VaultSymbol: vault.Symbol,
		Kind:        model.KindRebalance,
		Leverage:    vault.Leverage,
		SlippageBps: req.SlippageBps,
		LpPrice:     wei.ToDecimal(lpPrice),
		EquityDelta: wei.ToDecimal(delta),
		Stable:      stable,
		Asset:       asset,
	}
	if len(actions) > 0 {
		data, err := workbyte.EncodeActions(actions)
		if err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
		rec.ActionData = workbyte.Hex(data)
	}

	if err := s.commit(ctx, vault, rec); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	metrics.PlanLatency.WithLabelValues(model.KindRebalance).Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusCreated, rec)
}

// GetPlan handles GET /api/v1/plans/{planID}
func (s *Service) GetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPlan(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPlans handles GET /api/v1/vaults/{symbol}/plans
func (s *Service) ListPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sym := chi.URLParam(r, "symbol")
	if _, err := s.store.GetVault(ctx, sym); err != nil {
		writeStoreError(w, err)
		return
	}

	plans, err := s.store.GetPlansByVault(ctx, sym)
	if err != nil {
		writeError(w, "failed to list plans", http.StatusInternalServerError)
		return
	}
	if plans == nil {
		plans = []model.PlanRecord{}
	}
	writeJSON(w, http.StatusOK, plans)
}

// commit checks exposure limits, stores, journals and broadcasts a plan.
func (s *Service) commit(ctx context.Context, vault *model.Vault, rec *model.PlanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.EquityDelta.IsPositive() {
		exposures, err := s.store.GetVaultExposures(ctx)
		if err != nil {
			return fmt.Errorf("load exposures: %w", err)
		}
		target := model.Exposure{VaultSymbol: vault.Symbol, AssetToken: vault.AssetToken.Address}
		if err := s.limiter.CheckLimit(target, rec.EquityDelta, exposures); err != nil {
			label := "vault"
			if errors.Is(err, limits.ErrCorrelatedLimitExceeded) {
				label = "correlated"
			}
			metrics.LimitRejections.WithLabelValues(label).Inc()
			s.log.Warn().Err(err).Str("vault", vault.Symbol).Msg("plan rejected by limits")
			return err
		}
	}

	rec.CreatedAt = s.now()
	if err := s.store.InsertPlan(ctx, rec); err != nil {
		return fmt.Errorf("store plan: %w", err)
	}
	metrics.PlansTotal.WithLabelValues(rec.Kind).Inc()

	// The store is the source of truth; a journal failure is only logged.
	if err := s.journal.Record(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("plan_id", rec.ID).Msg("journal plan failed")
	}

	s.log.Info().
		Str("plan_id", rec.ID).
		Str("vault", rec.VaultSymbol).
		Str("kind", rec.Kind).
		Int64("leverage", rec.Leverage).
		Str("equity_delta", wei.FormatEther(rec.EquityDelta.BigInt())).
		Msg("plan computed")

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "plan_computed",
			PlanID:      rec.ID,
			VaultSymbol: rec.VaultSymbol,
			Kind:        rec.Kind,
			EquityDelta: rec.EquityDelta.String(),
		})
	}
	return nil
}

func (s *Service) loadVault(ctx context.Context, raw string) (*model.Vault, *symbol.Symbol, error) {
	vault, err := s.store.GetVault(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	sym, err := symbol.Parse(vault.Symbol)
	if err != nil {
		return nil, nil, err
	}
	return vault, sym, nil
}

func (s *Service) tokenPrice(ctx context.Context, token string) (*big.Int, error) {
	p, err := s.prices.TokenPrice(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.fresh(p, token)
}

func (s *Service) lpPrice(ctx context.Context, pool string) (*big.Int, error) {
	p, err := s.prices.LpPrice(ctx, pool)
	if err != nil {
		return nil, err
	}
	return s.fresh(p, pool)
}

func (s *Service) fresh(p oracle.Price, id string) (*big.Int, error) {
	if err := oracle.CheckFresh(p, s.maxPriceAge, s.now()); err != nil {
		metrics.StalePriceRejections.Inc()
		s.log.Warn().Err(err).Str("id", id).Time("updated_at", p.UpdatedAt).Msg("price rejected")
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return p.Value, nil
}

// depositWork encodes one deposit work call per leg and the action batch
// that runs them in order (stable, then asset).
func depositWork(vault *model.Vault, sym *symbol.Symbol, plan positionmath.OpenPlan) (stable, asset, actions []byte, err error) {
	stableStrat, err := sym.TwoSidesStrat(vault.StableTwoSidesStrats)
	if err != nil {
		return nil, nil, nil, err
	}
	assetStrat, err := sym.TwoSidesStrat(vault.AssetTwoSidesStrats)
	if err != nil {
		return nil, nil, nil, err
	}
	stablePos, err := parsePositionID(vault.StablePosID)
	if err != nil {
		return nil, nil, nil, err
	}
	assetPos, err := parsePositionID(vault.AssetPosID)
	if err != nil {
		return nil, nil, nil, err
	}

	stable, err = workbyte.EncodeDeposit(workbyte.Deposit{
		Vault:         vault.StableVault,
		PositionID:    stablePos,
		Worker:        vault.StableWorker,
		Principal:     plan.Long.PrincipalAmount,
		Borrow:        plan.Long.BorrowAmount,
		TwoSidesStrat: stableStrat,
		Farming:       plan.Long.FarmingAmount,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stable leg: %w", err)
	}
	asset, err = workbyte.EncodeDeposit(workbyte.Deposit{
		Vault:         vault.AssetVault,
		PositionID:    assetPos,
		Worker:        vault.AssetWorker,
		Principal:     plan.Short.PrincipalAmount,
		Borrow:        plan.Short.BorrowAmount,
		TwoSidesStrat: assetStrat,
		Farming:       plan.Short.FarmingAmount,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("asset leg: %w", err)
	}

	actions, err = workbyte.EncodeActions([]workbyte.Action{
		{Kind: workbyte.ActionWork, Data: stable},
		{Kind: workbyte.ActionWork, Data: asset},
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return stable, asset, actions, nil
}

// withdrawWork encodes a partial close that liquidates the planned LP and
// repays the planned debt.
func withdrawWork(vault *model.Vault, lendingVault, worker, posID string, plan positionmath.RebalancePlan) ([]byte, error) {
	if posID == "" {
		return nil, fmt.Errorf("%w: %s", ErrPositionsNotInitialized, vault.Symbol)
	}
	pid, err := parsePositionID(posID)
	if err != nil {
		return nil, err
	}
	repay := plan.DebtToRepay()
	return workbyte.EncodeWithdraw(workbyte.Withdraw{
		Vault:             lendingVault,
		PositionID:        pid,
		Worker:            worker,
		Debt:              repay,
		PartialCloseStrat: vault.PartialCloseMinimizeStrat,
		MaxLpToLiquidate:  plan.LpAmountToLiquidate,
		MaxDebtRepayment:  repay,
		MinFarmingToken:   new(big.Int),
	})
}

func rebalanceLeg(leg string, p positionmath.RebalancePlan) model.LegPlan {
	return model.LegPlan{
		Leg:                     leg,
		EquityShare:             wei.ToDecimal(p.EquityShare),
		TargetEquity:            wei.ToDecimal(p.TargetEquity),
		TargetDebt:              wei.ToDecimal(p.TargetDebt),
		DeltaEquity:             wei.ToDecimal(p.DeltaEquity),
		DeltaDebt:               wei.ToDecimal(p.DeltaDebt),
		DeltaEquityWithSlippage: wei.ToDecimal(p.DeltaEquityWithSlippage),
		DeltaDebtWithSlippage:   wei.ToDecimal(p.DeltaDebtWithSlippage),
		LpToLiquidate:           wei.ToDecimal(p.LpAmountToLiquidate),
		ExpectedEquity:          wei.ToDecimal(p.ExpectedEquity),
		ExpectedDebt:            wei.ToDecimal(p.ExpectedDebt),
	}
}

// rawAmounts unwraps integer wei amounts from request decimals.
func rawAmounts(xs ...decimal.Decimal) ([]*big.Int, error) {
	out := make([]*big.Int, len(xs))
	for i, x := range xs {
		v, err := wei.FromDecimal(x)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
