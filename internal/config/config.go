// Package config loads benchmark configuration from the environment. A .env
// file in the working directory is honored when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries settings for both the driver and the worker binaries.
type Config struct {
	Env         string
	DatabaseURL string
	RedisURL    string // empty disables the account read-through cache
	Strategy    string

	// Driver side.
	ListenAddr      string // driver HTTP listener (ws attach + /metrics)
	WorkerCmd       string // worker binary to spawn
	Workers         int
	Accounts        int
	Ops             int
	Seed            int64
	RefreshInterval time.Duration // materialized cache refresh cadence

	// Worker side.
	DriverURL string // ws URL of the driver's /ws endpoint
	MaxAmount int64  // upper bound for generated operation amounts
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:             get("APP_ENV", "dev"),
		DatabaseURL:     get("DATABASE_URL", ""),
		RedisURL:        get("REDIS_URL", ""),
		Strategy:        get("BENCH_STRATEGY", "original"),
		ListenAddr:      get("BENCH_LISTEN_ADDR", "127.0.0.1:9480"),
		WorkerCmd:       get("BENCH_WORKER_CMD", "worker"),
		Workers:         getInt("BENCH_WORKERS", 4),
		Accounts:        getInt("BENCH_ACCOUNTS", 8),
		Ops:             getInt("BENCH_OPS", 10000),
		Seed:            int64(getInt("BENCH_SEED", 0)),
		RefreshInterval: getDuration("BENCH_REFRESH_INTERVAL", time.Second),
		DriverURL:       get("BENCH_DRIVER_URL", "ws://127.0.0.1:9480/ws"),
		MaxAmount:       int64(getInt("BENCH_MAX_AMOUNT", 10000)),
	}
}

func get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
