package bench

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ledgerbench/ledger-bench/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub accepts worker websocket attachments on the driver side. Workers dial
// in after being spawned; the driver awaits the expected head count before
// starting the run. Connections are handed over whole — the driver owns each
// one exclusively with a single in-flight request, matching the workers'
// single-threaded loop.
type Hub struct {
	conns chan *websocket.Conn
}

// NewHub creates a hub able to buffer up to capacity attachments.
func NewHub(capacity int) *Hub {
	return &Hub{conns: make(chan *websocket.Conn, capacity)}
}

// HandleWS upgrades a worker attachment at GET /ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.conns <- conn:
		metrics.ConnectedWorkers.Inc()
		slog.Info("worker attached", "remote", conn.RemoteAddr())
	default:
		slog.Warn("worker attach rejected, hub full", "remote", conn.RemoteAddr())
		conn.Close()
	}
}

// Await blocks until n workers have attached or ctx expires.
func (h *Hub) Await(ctx context.Context, n int) ([]*websocket.Conn, error) {
	conns := make([]*websocket.Conn, 0, n)
	for len(conns) < n {
		select {
		case conn := <-h.conns:
			conns = append(conns, conn)
		case <-ctx.Done():
			return nil, fmt.Errorf("awaiting %d workers, got %d: %w", n, len(conns), ctx.Err())
		}
	}
	return conns, nil
}
