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
	"github.com/redis/go-redis/v9"

	"github.com/ledgerbench/ledger-bench/internal/account"
	"github.com/ledgerbench/ledger-bench/internal/bench"
	"github.com/ledgerbench/ledger-bench/internal/config"
	"github.com/ledgerbench/ledger-bench/internal/metrics"
	"github.com/ledgerbench/ledger-bench/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	// Unknown strategy fails here, never at request time.
	strategy, err := account.ParseStrategy(cfg.Strategy)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required: workers are separate processes and share state only through the store")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		slog.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	var st store.Store = store.NewPostgresStore(pool)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		st = store.NewCachedStore(st, rdb, 30*time.Second)
		slog.Info("redis account cache enabled")
	}

	// --- Driver HTTP surface: worker attach + metrics ---
	hub := bench.NewHub(cfg.Workers)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", hub.HandleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"ledger-bench"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("driver listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// --- Seed accounts ---
	driver := bench.NewDriver(st, bench.Options{
		Strategy:        strategy,
		Ops:             cfg.Ops,
		Seed:            cfg.Seed,
		RefreshInterval: cfg.RefreshInterval,
	})
	accounts, err := driver.SeedAccounts(ctx, cfg.Accounts)
	if err != nil {
		slog.Error("seeding accounts failed", "err", err)
		os.Exit(1)
	}
	slog.Info("accounts seeded", "count", len(accounts), "strategy", strategy)

	// --- Spawn workers and wait for them to attach ---
	workerEnv := []string{
		"BENCH_DRIVER_URL=ws://" + cfg.ListenAddr + "/ws",
		"BENCH_STRATEGY=" + string(strategy),
		"DATABASE_URL=" + cfg.DatabaseURL,
		"REDIS_URL=" + cfg.RedisURL,
	}
	procs, err := bench.SpawnWorkers(cfg.WorkerCmd, cfg.Workers, func(i int) []string {
		// Each worker gets its own seed derived from the pinned base, so a
		// reproducible run still has distinct rng streams per worker.
		return append([]string{
			fmt.Sprintf("BENCH_SEED=%d", bench.WorkerSeed(cfg.Seed, i)),
		}, workerEnv...)
	})
	if err != nil {
		slog.Error("spawning workers failed", "err", err)
		os.Exit(1)
	}

	attachCtx, cancelAttach := context.WithTimeout(ctx, 30*time.Second)
	conns, err := hub.Await(attachCtx, cfg.Workers)
	cancelAttach()
	if err != nil {
		slog.Error("workers did not attach", "err", err)
		bench.KillWorkers(procs)
		os.Exit(1)
	}
	slog.Info("workers attached", "count", len(conns))

	// --- Run ---
	started := time.Now()
	summaries, err := driver.Run(ctx, conns, accounts)
	if err != nil {
		slog.Error("benchmark run failed", "err", err)
		for _, c := range conns {
			c.Close()
		}
		bench.KillWorkers(procs)
		os.Exit(1)
	}
	elapsed := time.Since(started)

	if err := bench.WaitWorkers(procs); err != nil {
		slog.Error("worker exited abnormally", "err", err)
	}

	fmt.Printf("strategy=%s ops=%d workers=%d elapsed=%s\n",
		strategy, cfg.Ops, cfg.Workers, elapsed.Round(time.Millisecond))
	for _, s := range summaries {
		fmt.Println(s)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
