package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerbench/ledger-bench/internal/account"
	"github.com/ledgerbench/ledger-bench/internal/config"
	"github.com/ledgerbench/ledger-bench/internal/store"
	"github.com/ledgerbench/ledger-bench/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	strategy, err := account.ParseStrategy(cfg.Strategy)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Each worker is single-threaded and owns exactly one store session.
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		slog.Error("invalid DATABASE_URL", "err", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = 1
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		slog.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

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
	}

	mdl, err := account.New(strategy, st)
	if err != nil {
		slog.Error("building model failed", "err", err)
		os.Exit(1)
	}
	w := worker.New(mdl, st, cfg.Seed, cfg.MaxAmount)

	conn, err := dial(ctx, cfg.DriverURL)
	if err != nil {
		slog.Error("dialing driver failed", "url", cfg.DriverURL, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	slog.Info("worker attached", "driver", cfg.DriverURL, "strategy", strategy, "pid", os.Getpid())
	if err := w.Run(ctx, conn); err != nil {
		slog.Error("worker loop failed", "err", err)
		os.Exit(1)
	}
	slog.Info("worker done", "pid", os.Getpid())
}

// dial connects to the driver, retrying briefly in case the worker won the
// race against the driver's listener.
func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	var lastErr error
	for i := 0; i < 10; i++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
