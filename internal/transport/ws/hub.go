// Package ws serves the per-game live feed over websockets.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	sendBuffer   = 16
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
)

type client struct {
	viewer string
	send   chan []byte
}

// Hub tracks the connections watching each game.
type Hub struct {
	mu      sync.RWMutex
	games   map[string]map[*client]struct{}
	closed  bool
	origins []string
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger, originPatterns []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		games:   make(map[string]map[*client]struct{}),
		origins: originPatterns,
		logger:  logger,
	}
}

// Publish renders one frame per distinct viewer and queues it. A client whose
// buffer is full misses the frame; the next snapshot supersedes it.
func (h *Hub) Publish(gameID string, render func(viewer string) ([]byte, error)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	watchers := h.games[gameID]
	if len(watchers) == 0 {
		return
	}
	frames := make(map[string][]byte, 2)
	for c := range watchers {
		frame, ok := frames[c.viewer]
		if !ok {
			var err error
			if frame, err = render(c.viewer); err != nil {
				h.logger.Warn("ws_render_failed", zap.String("game_id", gameID), zap.Error(err))
				continue
			}
			frames[c.viewer] = frame
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Debug("ws_frame_dropped", zap.String("game_id", gameID), zap.String("viewer", c.viewer))
		}
	}
}

func (h *Hub) register(gameID string, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.games[gameID]
	if !ok {
		set = make(map[*client]struct{})
		h.games[gameID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) unregister(gameID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.games[gameID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.games, gameID)
	}
}

// Watchers reports how many connections follow gameID.
func (h *Hub) Watchers(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}

// Serve upgrades the request and streams frames for gameID until either side
// goes away. initial is written first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, gameID, viewer string, initial []byte) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Debug("ws_accept_failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	c := &client{viewer: viewer, send: make(chan []byte, sendBuffer)}
	if !h.register(gameID, c) {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unregister(gameID, c)
	h.logger.Debug("ws_connected", zap.String("game_id", gameID), zap.String("viewer", viewer))

	// The feed is one-way; CloseRead handles control frames and reports disconnects.
	ctx := conn.CloseRead(r.Context())
	if len(initial) > 0 {
		if err := write(ctx, conn, initial); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.send:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "game closed")
				return
			}
			if err := write(ctx, conn, frame); err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, frame []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, frame)
}

// Close disconnects every watcher and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, set := range h.games {
		for c := range set {
			close(c.send)
		}
		delete(h.games, id)
	}
}

// Drop disconnects the watchers of one game, e.g. after it was evicted.
func (h *Hub) Drop(gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.games[gameID] {
		close(c.send)
	}
	delete(h.games, gameID)
}
