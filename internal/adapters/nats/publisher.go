package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
)

const (
	pointStream       = "GEOFIELD_WIDGET_POINTS"
	pointSubjectRoot  = "geofield.widget"
	pointSubjectAll   = pointSubjectRoot + ".*.point"
	pointStreamMaxAge = 24 * time.Hour
)

// PointSubject is the subject a map's point changes are published on.
func PointSubject(mapID string) string {
	return pointSubjectRoot + "." + subjectToken(mapID) + ".point"
}

// subjectToken keeps a map ID usable as a single NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

var _ ports.EventPublisher = (*Publisher)(nil)

// Connect opens a NATS connection that keeps retrying in the background.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("geofield"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// NewPublisher enables JetStream on conn and ensures the point stream exists.
func NewPublisher(conn *nats.Conn) (*Publisher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      pointStream,
		Subjects:  []string{pointSubjectAll},
		Retention: nats.LimitsPolicy,
		MaxAge:    pointStreamMaxAge,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		if _, uerr := js.UpdateStream(cfg); uerr != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, errors.Join(err, uerr))
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishPointChanged publishes ev on the map's point subject.
func (p *Publisher) PublishPointChanged(ctx context.Context, ev *domain.PointChanged) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(PointSubject(ev.MapID), data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
