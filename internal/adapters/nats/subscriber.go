package natsadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geofield/internal/core/domain"
)

// Watcher relays point changes of one map to observers, such as a listing
// map shown next to the editing widget.
type Watcher struct {
	conn *nats.Conn
}

// NewWatcher shares conn with the publisher.
func NewWatcher(conn *nats.Conn) *Watcher {
	return &Watcher{conn: conn}
}

// Watch calls fn for every point change of mapID until ctx is done or the
// returned stop function is called. Watching is ephemeral: only changes
// published after the call are delivered.
func (w *Watcher) Watch(ctx context.Context, mapID string, fn func(*domain.PointChanged)) (stop func(), err error) {
	sub, err := w.conn.Subscribe(PointSubject(mapID), func(msg *nats.Msg) {
		var ev domain.PointChanged
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping malformed point change", "subject", msg.Subject, "error", err)
			return
		}
		fn(&ev)
	})
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = sub.Unsubscribe()
	}()

	var closed bool
	return func() {
		if !closed {
			closed = true
			close(done)
		}
	}, nil
}
