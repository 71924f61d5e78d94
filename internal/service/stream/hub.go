package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"TradeSim/internal/domain/models"
	"TradeSim/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Snapshots is the source of dashboard updates the hub fans out.
type Snapshots interface {
	Snapshot() *models.Snapshot
	Subscribe() chan *models.Snapshot
	Unsubscribe(ch chan *models.Snapshot)
}

// Hub upgrades HTTP connections and pushes snapshot updates to every
// connected client. One writer goroutine per connection.
type Hub struct {
	source   Snapshots
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	done  chan struct{}
}

func NewHub(source Snapshots, log *logger.Logger) *Hub {
	return &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
		conns:  make(map[*websocket.Conn]struct{}),
		done:   make(chan struct{}),
	}
}

// Serve upgrades the request and streams snapshots until the client
// disconnects or ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("stream client connected", logger.Int("clients", n))

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	updates := h.source.Subscribe()
	defer h.source.Unsubscribe(updates)

	// Drain incoming frames so pings and close messages are processed.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if snap := h.source.Snapshot(); snap != nil {
		if err := h.write(conn, snap); err != nil {
			return nil
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil
		case <-readerDone:
			return nil
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := h.write(conn, snap); err != nil {
				h.logger.Debug("stream client write failed", logger.Error(err))
				return nil
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, snap *models.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}

// Close disconnects every client.
func (h *Hub) Close() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
}
