package http

import (
	"context"

	"github.com/samirrijal/geofield/internal/adapters/maplib"
	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/core/usecases"
)

// Pinger is a backing service the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connection reports the state of a long-lived broker connection.
type Connection interface {
	IsConnected() bool
}

// PointWatcher streams a map's point changes to observers.
type PointWatcher interface {
	Watch(ctx context.Context, mapID string, fn func(*domain.PointChanged)) (stop func(), err error)
}

// Dependencies holds all services needed by HTTP handlers. Optional
// services are left nil when not configured.
type Dependencies struct {
	Version        string
	Pipeline       *usecases.FeatureRenderPipeline
	Themers        *usecases.ThemerRegistry
	Geocode        ports.GeocodeGateway
	Maps           maplib.Options
	DefaultLibrary domain.Library

	Events  ports.EventPublisher
	Watcher PointWatcher

	DB    Pinger
	Cache Pinger
	NATS  Connection
}

// decodeMapConfig applies the shipped defaults and overlays raw on top.
func (d *Dependencies) decodeMapConfig(raw []byte) (domain.MapInstanceConfig, error) {
	lib := d.DefaultLibrary
	if lib == "" {
		lib = domain.LibraryLeaflet
	}
	cfg := domain.DefaultMapInstanceConfig("", lib)
	if len(raw) == 0 {
		return cfg, &domain.ConfigError{Field: "config", Err: errMissing}
	}
	if err := unmarshalStrict(raw, &cfg); err != nil {
		return cfg, &domain.ConfigError{Field: "config", Err: err}
	}
	return cfg, nil
}
