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

	"github.com/atmx/wager-engine/internal/api"
	"github.com/atmx/wager-engine/internal/asset"
	"github.com/atmx/wager-engine/internal/auth"
	"github.com/atmx/wager-engine/internal/broadcast"
	"github.com/atmx/wager-engine/internal/config"
	"github.com/atmx/wager-engine/internal/metrics"
	"github.com/atmx/wager-engine/internal/model"
	"github.com/atmx/wager-engine/internal/registry"
	"github.com/atmx/wager-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store and asset ---
	var st store.Store
	var token asset.Faucet
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = pg

		// Balances live next to the event books so both survive a restart.
		pgToken := asset.NewPostgresToken(pool, cfg.Asset(), cfg.AssetDecimals)
		if err := pgToken.Migrate(ctx); err != nil {
			slog.Error("asset migration failed", "err", err)
			os.Exit(1)
		}
		token = pgToken
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
		slog.Warn("DATABASE_URL not set, using in-memory store and asset (data will not persist)")
		st = store.NewMemoryStore()
		token = asset.NewMemoryToken(cfg.Asset(), cfg.AssetDecimals)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Roles ---
	// The asset endpoints act as a faucet for the engine-issued asset.
	roles := auth.NewRoles(cfg.Admins()...)
	if len(cfg.AdminAccounts) == 0 {
		slog.Warn("ADMIN_ACCOUNTS not set, no account can manage events")
	}

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret)
	} else {
		slog.Warn("JWT_SECRET not set, trusting the X-Account header")
	}

	// --- Record broadcast ---
	wsHub := broadcast.NewHub()
	go wsHub.Run(ctx)
	publishers := broadcast.Fanout{wsHub}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("wager-engine"))
		if err != nil {
			slog.Error("nats connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { nc.Drain() })
		publishers = append(publishers, broadcast.NewNATSPublisher(nc, cfg.NATSSubject))
		slog.Info("NATS publishing enabled", "subject", cfg.NATSSubject+".>")
	}

	// --- Registry ---
	reg, err := registry.New(ctx, st, asset.NewStaticDirectory(token), roles,
		registry.WithAddress(cfg.Registry()),
		registry.WithPublisher(publishers),
		registry.WithInitialSettings(model.Settings{
			CommissionRate: cfg.Commission,
			Asset:          cfg.Asset(),
			House:          cfg.House(),
		}),
	)
	if err != nil {
		slog.Error("registry initialization failed", "err", err)
		os.Exit(1)
	}
	svc := api.NewService(reg, roles, token)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.AccountHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"wager-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for live records; no request timeout.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(auth.Middleware(verifier))
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
		slog.Info("wager-engine listening",
			"port", cfg.Port,
			"registry", cfg.Registry().Hex(),
			"asset", cfg.Asset().Hex(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down wager-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("wager-engine stopped")
}
