package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/geofield/internal/core/domain"
)

// ErrCacheMiss is returned by CacheService.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// EventPublisher publishes widget events to a message broker.
type EventPublisher interface {
	PublishPointChanged(ctx context.Context, ev *domain.PointChanged) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// GeocodeProvider is an external forward/reverse geocoding service.
// A lookup with no result returns domain.ErrGeocodeNotFound.
type GeocodeProvider interface {
	Name() string
	Forward(ctx context.Context, address string) (domain.GeocodeResult, error)
	Reverse(ctx context.Context, p domain.GeoPoint) (domain.GeocodeResult, error)
}

// GeocodeGateway is what widgets consume. It never fails: ok is false when
// nothing was found or the provider failed, and callers leave fields untouched.
type GeocodeGateway interface {
	Forward(ctx context.Context, address string) (res domain.GeocodeResult, ok bool)
	Reverse(ctx context.Context, p domain.GeoPoint) (address string, ok bool)
}

// IconResolver turns an opaque file/style identifier into a URL.
type IconResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// IconValidator checks that an icon URL is reachable.
type IconValidator interface {
	Validate(ctx context.Context, url string) error
}

// WidgetFields are the host input fields bound to an editable map. The
// setters must not call back into the controller; change events they cause
// are reported with a programmatic origin.
type WidgetFields interface {
	Lat() string
	Lng() string
	Address() string
	SetLatLng(lat, lng string)
	SetAddress(address string)
}

// Confirmer asks the end user to confirm an action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}
