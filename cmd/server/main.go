package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/deltavault/position-engine/internal/config"
	"github.com/deltavault/position-engine/internal/journal"
	"github.com/deltavault/position-engine/internal/limits"
	"github.com/deltavault/position-engine/internal/logger"
	"github.com/deltavault/position-engine/internal/metrics"
	"github.com/deltavault/position-engine/internal/oracle"
	"github.com/deltavault/position-engine/internal/planner"
	"github.com/deltavault/position-engine/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	var vaultFile *config.VaultFile
	if cfg.VaultsPath != "" {
		if vaultFile, err = config.LoadVaults(cfg.VaultsPath); err != nil {
			log.Fatal().Err(err).Msg("load vaults failed")
		}
	}

	// --- Initialize store ---
	var st store.Store
	var rdb *redis.Client
	var cleanup []func()

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		log.Info().Msg("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			log.Info().Dur("ttl", cfg.CacheTTL).Msg("Redis cache enabled")
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Prices ---
	var prices oracle.Source
	maxPriceAge := cfg.MaxPriceAge
	if rdb != nil {
		prices = oracle.NewRedisSource(rdb)
		log.Info().Msg("reading prices from Redis")
	} else {
		mem := oracle.NewMemorySource()
		if vaultFile != nil {
			if err := seedPrices(mem, vaultFile); err != nil {
				log.Fatal().Err(err).Msg("seed prices failed")
			}
		}
		prices = mem
		// Seeded prices are never refreshed.
		maxPriceAge = 0
		log.Warn().Msg("REDIS_URL not set, using static prices from the vault table")
	}

	if vaultFile != nil {
		seedVaults(st, vaultFile)
	}

	// --- Journals ---
	var journals journal.Multi
	if cfg.JournalPath != "" {
		fj, err := journal.NewFileJournal(cfg.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open journal failed")
		}
		journals = append(journals, fj)
	}
	if cfg.InfluxEnabled() {
		client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		writeAPI := client.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket)
		go func() {
			for err := range writeAPI.Errors() {
				log.Error().Err(err).Msg("influx write failed")
			}
		}()
		journals = append(journals, journal.NewInfluxJournal(writeAPI))
		cleanup = append(cleanup, func() {
			writeAPI.Flush()
			client.Close()
		})
		log.Info().Str("bucket", cfg.InfluxBucket).Msg("InfluxDB journal enabled")
	}

	// --- Exposure limits ---
	limiter := limits.NewExposureLimiter(cfg.MaxPerVault, cfg.MaxCorrelated)

	// --- WebSocket hub ---
	wsHub := planner.NewWSHub()
	go wsHub.Run()
	defer wsHub.Stop()

	// --- Planner service ---
	plannerSvc := planner.NewService(st, prices, limiter, wsHub,
		planner.WithJournal(journals),
		planner.WithMaxPriceAge(maxPriceAge),
	)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"position-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", plannerSvc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("position-engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info().Msg("shutting down position-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

// seedVaults registers every vault from the table. Vaults already in the
// store are left as they are so recorded position ids survive restarts.
func seedVaults(st store.Store, vf *config.VaultFile) {
	log := logger.Get()
	ctx := context.Background()
	for i := range vf.Vaults {
		v := vf.Vaults[i]
		v.CreatedAt = time.Now().UTC()
		err := st.CreateVault(ctx, &v)
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			log.Debug().Str("vault", v.Symbol).Msg("vault already registered")
		case err != nil:
			log.Fatal().Err(err).Str("vault", v.Symbol).Msg("seed vault failed")
		default:
			metrics.VaultsRegistered.Inc()
			log.Info().Str("vault", v.Symbol).Int64("leverage", v.Leverage).Msg("vault registered")
		}
	}
}

// seedPrices loads the static price table. A key naming a vault's LP pool
// is an LP price; anything else is a token price.
func seedPrices(src *oracle.MemorySource, vf *config.VaultFile) error {
	pools := make(map[string]bool, len(vf.Vaults))
	for _, v := range vf.Vaults {
		pools[v.LpPool] = true
	}
	now := time.Now().UTC()
	for key, raw := range vf.Prices {
		price, err := config.PriceWei(raw)
		if err != nil {
			return err
		}
		if pools[key] {
			src.SetLpPrice(key, price.BigInt(), now)
		} else {
			src.SetTokenPrice(key, price.BigInt(), now)
		}
	}
	return nil
}
