// Package bench is the load generator: it seeds accounts, dispatches
// randomized debit/credit/amount operations across worker connections, and
// measures per-request latency from both ends of the wire.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ledgerbench/ledger-bench/internal/account"
	"github.com/ledgerbench/ledger-bench/internal/metrics"
	"github.com/ledgerbench/ledger-bench/internal/model"
	"github.com/ledgerbench/ledger-bench/internal/store"
	"github.com/ledgerbench/ledger-bench/internal/wire"
)

// OpMix weights the randomized command distribution.
type OpMix struct {
	Debit  int
	Credit int
	Amount int
}

// DefaultOpMix leans write-heavy so the cached strategy's tail keeps growing
// between refreshes.
var DefaultOpMix = OpMix{Debit: 40, Credit: 30, Amount: 30}

// Options configures a benchmark run.
type Options struct {
	Strategy        account.Strategy
	Ops             int
	Seed            int64 // zero picks a time-based seed
	Mix             OpMix
	RefreshInterval time.Duration // materialized only; zero disables refresh
}

// Driver generates load against the worker fleet. It keeps its own store
// session for seeding accounts and, for the materialized strategy, for the
// cache refresh loop — refresh cadence is the driver's trade-off to make,
// not the workers'.
type Driver struct {
	st   store.Store
	opts Options
	rec  *Recorder
	rng  *rand.Rand
	mu   sync.Mutex // guards rng
}

// NewDriver creates a driver bound to st.
func NewDriver(st store.Store, opts Options) *Driver {
	if opts.Mix == (OpMix{}) {
		opts.Mix = DefaultOpMix
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Driver{
		st:   st,
		opts: opts,
		rec:  NewRecorder(),
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// SeedAccounts creates n fresh accounts for the run and returns them.
func (d *Driver) SeedAccounts(ctx context.Context, n int) ([]*model.Account, error) {
	accounts := make([]*model.Account, 0, n)
	for i := 0; i < n; i++ {
		a := &model.Account{GUID: uuid.NewString()}
		if err := d.st.CreateAccount(ctx, a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// Run dispatches opts.Ops randomized requests across conns, one in flight
// per connection, then tells every worker to exit. It returns the latency
// summaries observed at the driver side of the wire.
func (d *Driver) Run(ctx context.Context, conns []*websocket.Conn, accounts []*model.Account) ([]Summary, error) {
	if len(conns) == 0 {
		return nil, fmt.Errorf("bench: no worker connections")
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("bench: no accounts seeded")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if d.opts.Strategy == account.StrategyMaterialized && d.opts.RefreshInterval > 0 {
		go d.refreshLoop(runCtx, accounts)
	}

	ops := make(chan wire.Request)
	go func() {
		defer close(ops)
		for i := 0; i < d.opts.Ops; i++ {
			select {
			case ops <- d.nextRequest(accounts):
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	errCh := make(chan error, len(conns))
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *websocket.Conn) {
			defer wg.Done()
			if err := d.serve(conn, ops); err != nil {
				errCh <- err
				cancel()
			}
		}(conn)
	}
	wg.Wait()
	cancel()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}

	if err := d.shutdownWorkers(conns); err != nil {
		return nil, err
	}
	return d.rec.Snapshot(), nil
}

// serve pumps requests over one connection, one outstanding at a time, and
// records both the driver round-trip and the worker-reported latency.
func (d *Driver) serve(conn *websocket.Conn, ops <-chan wire.Request) error {
	for req := range ops {
		start := time.Now()
		if err := conn.WriteMessage(websocket.TextMessage, req.Encode()); err != nil {
			return fmt.Errorf("dispatch %s: %w", req.Command, err)
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await %s response: %w", req.Command, err)
		}
		rtt := time.Since(start)

		resp, err := wire.ParseResponse(frame)
		if err != nil {
			return err
		}

		metrics.RoundTripLatency.WithLabelValues(string(req.Command)).Observe(rtt.Seconds())
		if resp.OK() {
			metrics.OpsTotal.WithLabelValues(string(req.Command), "ok").Inc()
			metrics.OpLatency.WithLabelValues(string(req.Command)).Observe(resp.Elapsed().Seconds())
			d.rec.Record(req.Command, rtt)
		} else {
			metrics.OpsTotal.WithLabelValues(string(req.Command), "error").Inc()
			d.rec.RecordError(req.Command)
		}
	}
	return nil
}

// refreshLoop refreshes every account's amount cache on the configured
// cadence until the run ends.
func (d *Driver) refreshLoop(ctx context.Context, accounts []*model.Account) {
	m := account.NewMaterialized(d.st)
	ticker := time.NewTicker(d.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, a := range accounts {
				if _, err := m.UpdateAmountCache(ctx, a, time.Time{}); err != nil {
					if ctx.Err() != nil {
						return
					}
					slog.Error("cache refresh failed", "account", a.GUID, "err", err)
				}
			}
			metrics.CacheRefreshes.Inc()
		}
	}
}

func (d *Driver) nextRequest(accounts []*model.Account) wire.Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	a := accounts[d.rng.Intn(len(accounts))]
	total := d.opts.Mix.Debit + d.opts.Mix.Credit + d.opts.Mix.Amount
	n := d.rng.Intn(total)

	var cmd wire.Command
	switch {
	case n < d.opts.Mix.Debit:
		cmd = wire.CmdDebit
	case n < d.opts.Mix.Debit+d.opts.Mix.Credit:
		cmd = wire.CmdCredit
	default:
		cmd = wire.CmdAmount
	}
	return wire.Request{Command: cmd, AccountGUID: a.GUID}
}

// shutdownWorkers sends exit to every connection and awaits the empty ack.
func (d *Driver) shutdownWorkers(conns []*websocket.Conn) error {
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, wire.Request{Command: wire.CmdExit}.Encode()); err != nil {
			return fmt.Errorf("send exit: %w", err)
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return fmt.Errorf("await exit ack: %w", err)
		}
		conn.Close()
		metrics.ConnectedWorkers.Dec()
	}
	return nil
}
