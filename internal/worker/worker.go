// Package worker executes driver-issued operations against the aggregation
// engine. Each worker process is single-threaded and owns its own store
// session; coordination with other workers happens only through the store's
// transactional guarantees.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ledgerbench/ledger-bench/internal/account"
	"github.com/ledgerbench/ledger-bench/internal/store"
	"github.com/ledgerbench/ledger-bench/internal/wire"
)

// Worker resolves accounts and runs debit/credit/amount operations. The
// operation amount is generated here, uniform in [1, maxAmount]; credits are
// negated before reaching the engine (the sign convention lives in the
// caller, the strategies append the literal amount).
type Worker struct {
	model     account.Model
	st        store.Store
	rng       *rand.Rand
	maxAmount int64
}

// New creates a worker. A zero seed picks a time-based one.
func New(m account.Model, st store.Store, seed, maxAmount int64) *Worker {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if maxAmount <= 0 {
		maxAmount = 10000
	}
	return &Worker{
		model:     m,
		st:        st,
		rng:       rand.New(rand.NewSource(seed)),
		maxAmount: maxAmount,
	}
}

// Handle executes one request and reports the operation's begin/end times.
// A store failure aborts this request only; nothing is retried.
func (w *Worker) Handle(ctx context.Context, req wire.Request) wire.Response {
	resp := wire.Response{
		Command:     req.Command,
		AccountGUID: req.AccountGUID,
	}

	resp.Begin = time.Now()
	if err := w.execute(ctx, req); err != nil {
		resp.Err = err.Error()
		return resp
	}
	resp.End = time.Now()
	return resp
}

func (w *Worker) execute(ctx context.Context, req wire.Request) error {
	acct, err := w.st.GetAccount(ctx, req.AccountGUID)
	if err != nil {
		// Includes store.ErrNotFound: an unresolvable account is an error,
		// never a zero balance.
		return err
	}

	switch req.Command {
	case wire.CmdDebit:
		return w.model.Debit(ctx, acct, w.nextAmount())
	case wire.CmdCredit:
		return w.model.Credit(ctx, acct, -w.nextAmount())
	case wire.CmdAmount:
		_, err := w.model.Amount(ctx, acct)
		return err
	}
	return fmt.Errorf("%w: %q", wire.ErrUnknownCommand, req.Command)
}

func (w *Worker) nextAmount() int64 {
	return 1 + w.rng.Int63n(w.maxAmount)
}

// malformedReply builds an error frame echoing what it can of a frame that
// failed to parse, padding missing fields so the result stays well-formed.
func malformedReply(frame []byte, err error) []byte {
	fields := strings.Fields(string(frame))
	for len(fields) < 2 {
		fields = append(fields, "-")
	}
	resp := wire.Response{
		Command:     wire.Command(fields[0]),
		AccountGUID: fields[1],
		Err:         err.Error(),
	}
	return resp.Encode()
}

// Run serves requests from conn until an exit command or read failure. Exit
// is acknowledged with an empty frame before returning.
func (w *Worker) Run(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}

		req, err := wire.ParseRequest(frame)
		if err != nil {
			// The driver keeps exactly one request in flight and blocks on
			// the reply, so even an unparseable frame must be answered.
			slog.Error("bad request frame", "frame", string(frame), "err", err)
			if werr := conn.WriteMessage(websocket.TextMessage, malformedReply(frame, err)); werr != nil {
				return fmt.Errorf("write response: %w", werr)
			}
			continue
		}

		if req.Command == wire.CmdExit {
			if err := conn.WriteMessage(websocket.TextMessage, wire.Response{Command: wire.CmdExit}.Encode()); err != nil {
				return fmt.Errorf("write exit ack: %w", err)
			}
			return nil
		}

		resp := w.Handle(ctx, req)
		if !resp.OK() {
			slog.Error("operation failed",
				"command", req.Command,
				"account", req.AccountGUID,
				"err", resp.Err,
			)
		}
		if err := conn.WriteMessage(websocket.TextMessage, resp.Encode()); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}
