package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/pkg/metrics"
)

const wsPingInterval = 30 * time.Second

// wsConn wraps a websocket connection with serialized writes and a
// keep-alive ping.
type wsConn struct {
	c    *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
}

func newWSConn(c *websocket.Conn) *wsConn {
	w := &wsConn{c: c, done: make(chan struct{})}
	go w.ping()
	return w
}

func (w *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) ping() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			err := w.c.WriteMessage(websocket.PingMessage, nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *wsConn) stop() { close(w.done) }

// WidgetSocketHandler runs one widget session per connection. The page
// sends field edits and map events; the session answers with drawing
// commands and field writes.
func WidgetSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		conn := newWSConn(c)
		defer conn.stop()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		session := newWidgetSession(ctx, deps, func(m serverMessage) error { return conn.writeJSON(m) })
		log := session.log.With("remote", c.RemoteAddr().String())
		log.Debug("widget session opened")
		go session.run()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			session.handle(msg)
		}

		cancel()
		session.close()
		log.Debug("widget session closed")
	}
}

// PointWatchHandler relays the point changes of one map, named by the
// map_id query parameter, to a read-only observer.
func PointWatchHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		conn := newWSConn(c)
		defer conn.stop()

		mapID := c.Query("map_id")
		if deps.Watcher == nil || mapID == "" {
			_ = conn.writeJSON(serverMessage{Type: msgError, Code: "bad_request", Message: "map_id is required and point events must be enabled"})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stop, err := deps.Watcher.Watch(ctx, mapID, func(ev *domain.PointChanged) {
			_ = conn.writeJSON(struct {
				Type string `json:"type"`
				*domain.PointChanged
			}{Type: "point_changed", PointChanged: ev})
		})
		if err != nil {
			slog.Warn("point watch failed", "map_id", mapID, "error", err)
			_ = conn.writeJSON(serverMessage{Type: msgError, MapID: mapID, Code: "unavailable", Message: err.Error()})
			return
		}
		defer stop()

		// Observers never send; reading only detects the close.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}
}
