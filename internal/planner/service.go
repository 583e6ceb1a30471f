// Package planner provides the HTTP handlers that register delta-neutral
// vaults and turn deposit and rebalance requests into executable plans.
//
// Wei amounts travel as integer shopspring/decimal values in JSON. Human
// unit deposits are converted with the token's decimals before any math.
package planner

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/deltavault/position-engine/internal/config"
	"github.com/deltavault/position-engine/internal/journal"
	"github.com/deltavault/position-engine/internal/limits"
	"github.com/deltavault/position-engine/internal/logger"
	"github.com/deltavault/position-engine/internal/metrics"
	"github.com/deltavault/position-engine/internal/model"
	"github.com/deltavault/position-engine/internal/oracle"
	"github.com/deltavault/position-engine/internal/positionmath"
	"github.com/deltavault/position-engine/internal/store"
	"github.com/deltavault/position-engine/internal/symbol"
	"github.com/deltavault/position-engine/internal/wei"
	"github.com/deltavault/position-engine/internal/workbyte"
)

var (
	// ErrPositionsNotInitialized is returned when a rebalance needs to close
	// part of a leg but the vault has no recorded position ids.
	ErrPositionsNotInitialized = errors.New("planner: init positions not recorded")

	// ErrInvalidPositionID is returned for a position id that is not a
	// non-negative integer.
	ErrInvalidPositionID = errors.New("planner: invalid position id")
)

// Service computes plans. Plan creation is serialized so each limit check
// sees every earlier plan (single-instance).
type Service struct {
	store   store.Store
	prices  oracle.Source
	limiter *limits.ExposureLimiter
	wsHub   *WSHub // optional WebSocket hub for plan broadcasts
	journal journal.Journal

	maxPriceAge time.Duration
	now         func() time.Time
	log         zerolog.Logger
	mu          sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithJournal records every stored plan to j.
func WithJournal(j journal.Journal) Option {
	return func(s *Service) { s.journal = j }
}

// WithMaxPriceAge rejects oracle prices older than d. Zero disables the check.
func WithMaxPriceAge(d time.Duration) Option {
	return func(s *Service) { s.maxPriceAge = d }
}

// WithClock overrides the time source used for freshness checks and
// plan timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new planner service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, prices oracle.Source, limiter *limits.ExposureLimiter, hub *WSHub, opts ...Option) *Service {
	s := &Service{
		store:   st,
		prices:  prices,
		limiter: limiter,
		wsHub:   hub,
		journal: journal.Nop{},
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.GetForComponent("planner"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes mounts the planner API on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/vaults", s.RegisterVault)
	r.Get("/vaults", s.ListVaults)
	r.Get("/vaults/{symbol}", s.GetVault)
	r.Put("/vaults/{symbol}/positions", s.SetPositions)
	r.Post("/vaults/{symbol}/open", s.OpenPosition)
	r.Post("/vaults/{symbol}/rebalance", s.Rebalance)
	r.Get("/vaults/{symbol}/plans", s.ListPlans)
	r.Get("/plans/{planID}", s.GetPlan)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// --- Vault registry ---

// SetPositionsRequest is the JSON body for PUT /vaults/{symbol}/positions.
type SetPositionsRequest struct {
	StablePosID string `json:"stable_pos_id"`
	AssetPosID  string `json:"asset_pos_id"`
}

// RegisterVault handles POST /api/v1/vaults
func (s *Service) RegisterVault(w http.ResponseWriter, r *http.Request) {
	var v model.Vault
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := config.PrepareVault(&v); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, id := range []string{v.StablePosID, v.AssetPosID} {
		if _, err := parsePositionID(id); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	v.CreatedAt = s.now()

	if err := s.store.CreateVault(r.Context(), &v); err != nil {
		writeStoreError(w, err)
		return
	}
	metrics.VaultsRegistered.Inc()

	s.log.Info().
		Str("vault", v.Symbol).
		Int64("leverage", v.Leverage).
		Str("stable", v.StableToken.Symbol).
		Str("asset", v.AssetToken.Symbol).
		Msg("vault registered")

	writeJSON(w, http.StatusCreated, v)
}

// ListVaults handles GET /api/v1/vaults
func (s *Service) ListVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := s.store.ListVaults(r.Context())
	if err != nil {
		writeError(w, "failed to list vaults", http.StatusInternalServerError)
		return
	}
	if vaults == nil {
		vaults = []model.Vault{}
	}
	writeJSON(w, http.StatusOK, vaults)
}

// GetVault handles GET /api/v1/vaults/{symbol}
func (s *Service) GetVault(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetVault(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SetPositions handles PUT /api/v1/vaults/{symbol}/positions
// Records the position ids opened by the init-positions step.
func (s *Service) SetPositions(w http.ResponseWriter, r *http.Request) {
	sym := chi.URLParam(r, "symbol")

	var req SetPositionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for _, id := range []string{req.StablePosID, req.AssetPosID} {
		pid, err := parsePositionID(id)
		if err == nil && pid.Sign() == 0 {
			err = ErrInvalidPositionID
		}
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	if err := s.store.SetInitPositionIDs(ctx, sym, req.StablePosID, req.AssetPosID); err != nil {
		writeStoreError(w, err)
		return
	}
	v, err := s.store.GetVault(ctx, sym)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Info().
		Str("vault", sym).
		Str("stable_pos_id", req.StablePosID).
		Str("asset_pos_id", req.AssetPosID).
		Msg("init positions recorded")

	writeJSON(w, http.StatusOK, v)
}

// --- Helpers ---

// parsePositionID parses a decimal position id. Empty means 0, which asks
// the lending vault to open a new position.
func parsePositionID(id string) (*big.Int, error) {
	if id == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(id, 10)
	if !ok || n.Sign() < 0 {
		return nil, ErrInvalidPositionID
	}
	return n, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, limits.ErrVaultLimitExceeded),
		errors.Is(err, limits.ErrCorrelatedLimitExceeded),
		errors.Is(err, ErrPositionsNotInitialized):
		return http.StatusConflict
	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrPriceNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, positionmath.ErrInvalidLeverage),
		errors.Is(err, positionmath.ErrUnsupportedDecimals),
		errors.Is(err, positionmath.ErrInvalidAmount),
		errors.Is(err, positionmath.ErrInvalidPrice),
		errors.Is(err, positionmath.ErrInsufficientEquity),
		errors.Is(err, positionmath.ErrInvalidSlippage),
		errors.Is(err, positionmath.ErrDivideByZeroEquity),
		errors.Is(err, positionmath.ErrInvalidRole),
		errors.Is(err, wei.ErrFractionalUnits),
		errors.Is(err, wei.ErrNotInteger),
		errors.Is(err, symbol.ErrInvalidSymbol),
		errors.Is(err, symbol.ErrUnknownDex),
		errors.Is(err, workbyte.ErrInvalidAddress),
		errors.Is(err, ErrInvalidPositionID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "storage error"
	}
	writeError(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
