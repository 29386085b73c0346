package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/ledger-engine/internal/access"
	"github.com/atmx/ledger-engine/internal/api"
	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/config"
	"github.com/atmx/ledger-engine/internal/events"
	"github.com/atmx/ledger-engine/internal/lending"
	"github.com/atmx/ledger-engine/internal/logging"
	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/perp"
	"github.com/atmx/ledger-engine/internal/store"
	"github.com/atmx/ledger-engine/internal/swap"
)

func main() {
	cfg, res, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("logger setup failed", "err", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory journal (events will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Event sinks ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	sinks := events.Fanout{events.NewJournal(st), wsHub, metrics.Emitter{}}
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("ledger-engine"))
		if err != nil {
			slog.Error("nats connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, nc.Close)
		sinks = append(sinks, events.NewPublisher(nc, cfg.NATS.SubjectPrefix))
		slog.Info("publishing events to NATS", "prefix", cfg.NATS.SubjectPrefix)
	}

	// --- Engines ---
	bank := asset.NewBank()
	pool := lending.NewPool(asset.NewCustody(bank, model.ModuleAccount("lending-pool"), res.LendingAsset), sinks)
	swapEngine := swap.NewEngine(bank, model.ModuleAccount("swap"), access.NewOwner(res.SwapOwner), sinks)
	perpEngine, err := perp.NewEngine(bank, model.ModuleAccount("perp"), access.NewOwner(res.PerpOwner), perp.Config{
		AssetA:          res.AssetA,
		AssetB:          res.AssetB,
		RewardAsset:     res.RewardAsset,
		RewardPerSecond: res.RewardPerSecond,
		Limits:          res.Limits,
	}, pool, swapEngine, sinks)
	if err != nil {
		slog.Error("perp engine setup failed", "err", err)
		os.Exit(1)
	}

	slog.Info("engines ready",
		"lending_asset", pool.Asset(),
		"swap_account", swapEngine.Account().Hex(),
		"perp_account", perpEngine.Account().Hex(),
		"faucet", cfg.Faucet,
	)

	svc := api.NewService(bank, pool, swapEngine, perpEngine, st, cfg.Faucet)

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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.CallerHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"ledger-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for the live event feed.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			if cfg.RateLimit.RPS > 0 {
				r.Use(api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Middleware)
			}
			svc.Mount(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ledger-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down ledger-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	stop()
	fmt.Println("ledger-engine stopped")
}
