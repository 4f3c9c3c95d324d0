package bench_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ledgerbench/ledger-bench/internal/account"
	"github.com/ledgerbench/ledger-bench/internal/bench"
	"github.com/ledgerbench/ledger-bench/internal/store"
	"github.com/ledgerbench/ledger-bench/internal/worker"
)

// startWorkers runs n in-process worker loops dialed into the hub's server,
// standing in for separate worker processes. They share the memory store,
// which is what separate processes sharing a database look like from the
// engine's point of view.
func startWorkers(t *testing.T, url string, n int, strategy account.Strategy, ms *store.MemoryStore) chan error {
	t.Helper()
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		mdl, err := account.New(strategy, ms)
		if err != nil {
			t.Fatalf("build model: %v", err)
		}
		w := worker.New(mdl, ms, int64(i+1), 1000)
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("worker %d dial: %v", i, err)
		}
		go func() {
			defer conn.Close()
			done <- w.Run(context.Background(), conn)
		}()
	}
	return done
}

func runBenchmark(t *testing.T, strategy account.Strategy, opts bench.Options) []bench.Summary {
	t.Helper()
	ms := store.NewMemoryStore()

	hub := bench.NewHub(4)
	r := chi.NewRouter()
	r.Get("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	opts.Strategy = strategy
	driver := bench.NewDriver(ms, opts)

	ctx := context.Background()
	accounts, err := driver.SeedAccounts(ctx, 4)
	if err != nil {
		t.Fatalf("seed accounts: %v", err)
	}

	const workers = 3
	workerDone := startWorkers(t, url, workers, strategy, ms)

	awaitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conns, err := hub.Await(awaitCtx, workers)
	if err != nil {
		t.Fatalf("await workers: %v", err)
	}

	summaries, err := driver.Run(ctx, conns, accounts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for i := 0; i < workers; i++ {
		if err := <-workerDone; err != nil {
			t.Fatalf("worker loop: %v", err)
		}
	}
	return summaries
}

func totals(summaries []bench.Summary) (count, errs int) {
	for _, s := range summaries {
		count += s.Count
		errs += s.Errors
	}
	return count, errs
}

func TestDriver_RunOriginal(t *testing.T) {
	const ops = 300
	summaries := runBenchmark(t, account.StrategyOriginal, bench.Options{Ops: ops, Seed: 11})

	count, errs := totals(summaries)
	if count != ops {
		t.Fatalf("completed ops = %d, want %d", count, ops)
	}
	if errs != 0 {
		t.Fatalf("errors = %d, want 0", errs)
	}
	for _, s := range summaries {
		if s.Count > 0 && (s.Min <= 0 || s.P99 < s.P50 || s.Max < s.P99) {
			t.Errorf("implausible latency summary: %+v", s)
		}
	}
}

func TestDriver_RunMaterializedWithRefresh(t *testing.T) {
	const ops = 300
	summaries := runBenchmark(t, account.StrategyMaterialized, bench.Options{
		Ops:             ops,
		Seed:            13,
		RefreshInterval: 10 * time.Millisecond,
	})

	count, errs := totals(summaries)
	if count != ops {
		t.Fatalf("completed ops = %d, want %d", count, ops)
	}
	if errs != 0 {
		t.Fatalf("errors = %d, want 0", errs)
	}
}

func TestDriver_RunScalar(t *testing.T) {
	const ops = 200
	summaries := runBenchmark(t, account.StrategyScalar, bench.Options{Ops: ops, Seed: 17})

	count, errs := totals(summaries)
	if count != ops || errs != 0 {
		t.Fatalf("count=%d errs=%d, want %d/0", count, errs, ops)
	}
}

func TestDriver_NoWorkers(t *testing.T) {
	ms := store.NewMemoryStore()
	driver := bench.NewDriver(ms, bench.Options{Ops: 10})
	if _, err := driver.Run(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error with no worker connections")
	}
}
