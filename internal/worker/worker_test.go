package worker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ledgerbench/ledger-bench/internal/account"
	"github.com/ledgerbench/ledger-bench/internal/model"
	"github.com/ledgerbench/ledger-bench/internal/store"
	"github.com/ledgerbench/ledger-bench/internal/wire"
	"github.com/ledgerbench/ledger-bench/internal/worker"
)

func newTestWorker(t *testing.T) (*worker.Worker, *store.MemoryStore, *model.Account) {
	t.Helper()
	ms := store.NewMemoryStore()
	acct := &model.Account{GUID: uuid.NewString()}
	if err := ms.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	mdl, err := account.New(account.StrategyOriginal, ms)
	if err != nil {
		t.Fatalf("build model: %v", err)
	}
	return worker.New(mdl, ms, 1, 100), ms, acct
}

func TestHandle_DebitAppendsPositiveEntry(t *testing.T) {
	w, ms, acct := newTestWorker(t)

	resp := w.Handle(context.Background(), wire.Request{Command: wire.CmdDebit, AccountGUID: acct.GUID})
	if !resp.OK() {
		t.Fatalf("debit failed: %s", resp.Err)
	}
	if resp.End.Before(resp.Begin) {
		t.Fatalf("end %v before begin %v", resp.End, resp.Begin)
	}

	entries := ms.LedgerEntries(acct.GUID)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Amount <= 0 {
		t.Fatalf("debit entry amount = %d, want > 0", entries[0].Amount)
	}
}

func TestHandle_CreditAppendsNegativeEntry(t *testing.T) {
	w, ms, acct := newTestWorker(t)

	resp := w.Handle(context.Background(), wire.Request{Command: wire.CmdCredit, AccountGUID: acct.GUID})
	if !resp.OK() {
		t.Fatalf("credit failed: %s", resp.Err)
	}

	entries := ms.LedgerEntries(acct.GUID)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Amount >= 0 {
		t.Fatalf("credit entry amount = %d, want < 0", entries[0].Amount)
	}
}

func TestHandle_AmountOnUnknownAccountIsError(t *testing.T) {
	w, _, _ := newTestWorker(t)

	resp := w.Handle(context.Background(), wire.Request{Command: wire.CmdAmount, AccountGUID: "no-such-account"})
	if resp.OK() {
		t.Fatal("expected error response for unknown account")
	}
	if !strings.Contains(resp.Err, "not found") {
		t.Fatalf("err = %q, want a not-found message", resp.Err)
	}
}

func TestHandle_EchoesRequestFields(t *testing.T) {
	w, _, acct := newTestWorker(t)

	req := wire.Request{Command: wire.CmdAmount, AccountGUID: acct.GUID}
	resp := w.Handle(context.Background(), req)
	if resp.Command != req.Command || resp.AccountGUID != req.AccountGUID {
		t.Fatalf("response %+v does not echo request %+v", resp, req)
	}
}

// Run over a live websocket: requests get responses, exit gets the empty ack
// and terminates the loop.
func TestRun_ServesUntilExit(t *testing.T) {
	w, _, acct := newTestWorker(t)

	upgrader := websocket.Upgrader{}
	done := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		done <- w.Run(context.Background(), conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, cmd := range []wire.Command{wire.CmdDebit, wire.CmdAmount} {
		req := wire.Request{Command: cmd, AccountGUID: acct.GUID}
		if err := conn.WriteMessage(websocket.TextMessage, req.Encode()); err != nil {
			t.Fatalf("write %s: %v", cmd, err)
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %s: %v", cmd, err)
		}
		resp, err := wire.ParseResponse(frame)
		if err != nil {
			t.Fatalf("parse %s: %v", cmd, err)
		}
		if !resp.OK() || resp.Command != cmd {
			t.Fatalf("%s response = %+v", cmd, resp)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, wire.Request{Command: wire.CmdExit}.Encode()); err != nil {
		t.Fatalf("write exit: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read exit ack: %v", err)
	}
	if len(frame) != 0 {
		t.Fatalf("exit ack = %q, want empty frame", frame)
	}

	if err := <-done; err != nil {
		t.Fatalf("worker loop returned %v", err)
	}
}

// A frame that fails to parse still gets a reply: the dispatcher keeps one
// request in flight per connection and would otherwise block forever.
func TestRun_RepliesToMalformedFrame(t *testing.T) {
	w, _, acct := newTestWorker(t)

	upgrader := websocket.Upgrader{}
	done := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		done <- w.Run(context.Background(), conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, bad := range []string{"transfer " + acct.GUID, "debit", ""} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(bad)); err != nil {
			t.Fatalf("write %q: %v", bad, err)
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read reply to %q: %v", bad, err)
		}
		if len(frame) == 0 {
			t.Fatalf("reply to %q is empty, want an error frame", bad)
		}
		if !strings.Contains(string(frame), "error") {
			t.Fatalf("reply to %q = %q, want error frame", bad, frame)
		}
	}

	// The loop keeps serving after a bad frame.
	req := wire.Request{Command: wire.CmdDebit, AccountGUID: acct.GUID}
	if err := conn.WriteMessage(websocket.TextMessage, req.Encode()); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	resp, err := wire.ParseResponse(frame)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("response = %+v, want ok", resp)
	}

	if err := conn.WriteMessage(websocket.TextMessage, wire.Request{Command: wire.CmdExit}.Encode()); err != nil {
		t.Fatalf("write exit: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read exit ack: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("worker loop returned %v", err)
	}
}
