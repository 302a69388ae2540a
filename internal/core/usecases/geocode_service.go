package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/pkg/logging"
	"github.com/samirrijal/geofield/internal/pkg/metrics"
	"github.com/samirrijal/geofield/internal/pkg/telemetry"
)

const defaultGeocodeTTL = 24 * 60 * 60

// GeocodeService is the GeocodeGateway widgets use. It caches successful
// lookups by exact input and turns every failure into "not found".
type GeocodeService struct {
	provider ports.GeocodeProvider
	cache    ports.CacheService
	ttl      int
	log      *slog.Logger
}

var _ ports.GeocodeGateway = (*GeocodeService)(nil)

// NewGeocodeService creates a new GeocodeService. cache may be nil.
func NewGeocodeService(provider ports.GeocodeProvider, cache ports.CacheService, ttlSeconds int) *GeocodeService {
	if ttlSeconds <= 0 {
		ttlSeconds = defaultGeocodeTTL
	}
	return &GeocodeService{provider: provider, cache: cache, ttl: ttlSeconds, log: slog.Default()}
}

// Forward resolves an address to a point.
func (s *GeocodeService) Forward(ctx context.Context, address string) (domain.GeocodeResult, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.GeocodeResult{}, false
	}

	ctx, span := telemetry.Tracer().Start(ctx, "geocode.forward")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrProvider, s.provider.Name()))

	cacheKey := "geocode:fwd:" + address
	var res domain.GeocodeResult
	if s.cached(ctx, cacheKey, "geocode_forward", &res) {
		return res, true
	}

	res, err := s.provider.Forward(ctx, address)
	if err != nil {
		s.failed(ctx, err, "forward", "address", address)
		return domain.GeocodeResult{}, false
	}
	if !res.Point.Valid() {
		logging.FromContext(ctx, s.log).Warn("geocode provider returned an invalid point", "provider", s.provider.Name(), "point", res.Point)
		metrics.GeocodeRequests.WithLabelValues(s.provider.Name(), "forward", "invalid").Inc()
		return domain.GeocodeResult{}, false
	}
	metrics.GeocodeRequests.WithLabelValues(s.provider.Name(), "forward", "ok").Inc()

	s.store(ctx, cacheKey, res)
	return res, true
}

// Reverse resolves a point to a formatted address.
func (s *GeocodeService) Reverse(ctx context.Context, p domain.GeoPoint) (string, bool) {
	if !p.Valid() {
		return "", false
	}

	ctx, span := telemetry.Tracer().Start(ctx, "geocode.reverse")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrProvider, s.provider.Name()))

	cacheKey := "geocode:rev:" + p.Key()
	var res domain.GeocodeResult
	if s.cached(ctx, cacheKey, "geocode_reverse", &res) {
		return res.FormattedAddress, true
	}

	res, err := s.provider.Reverse(ctx, p)
	if err != nil {
		s.failed(ctx, err, "reverse", "point", p.Key())
		return "", false
	}
	if res.FormattedAddress == "" {
		metrics.GeocodeRequests.WithLabelValues(s.provider.Name(), "reverse", "not_found").Inc()
		return "", false
	}
	metrics.GeocodeRequests.WithLabelValues(s.provider.Name(), "reverse", "ok").Inc()

	s.store(ctx, cacheKey, res)
	return res.FormattedAddress, true
}

func (s *GeocodeService) cached(ctx context.Context, key, op string, out *domain.GeocodeResult) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(op).Inc()
	return true
}

func (s *GeocodeService) store(ctx context.Context, key string, res domain.GeocodeResult) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(res); err == nil {
		_ = s.cache.Set(ctx, key, data, s.ttl)
	}
}

func (s *GeocodeService) failed(ctx context.Context, err error, direction string, args ...any) {
	log := logging.FromContext(ctx, s.log)
	outcome := "error"
	if errors.Is(err, domain.ErrGeocodeNotFound) {
		outcome = "not_found"
		log.Debug("geocode found nothing", append([]any{"direction", direction}, args...)...)
	} else {
		log.Warn("geocode provider failed", append([]any{"direction", direction, "provider", s.provider.Name(), "error", err}, args...)...)
	}
	metrics.GeocodeRequests.WithLabelValues(s.provider.Name(), direction, outcome).Inc()
}
