package geocoder

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
)

// Google implements ports.GeocodeProvider with the Google Geocoding API.
type Google struct {
	client *maps.Client
}

var _ ports.GeocodeProvider = (*Google)(nil)

// NewGoogle creates a client authenticated with apiKey. Extra options, such
// as maps.WithBaseURL in tests, are applied after the key.
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*Google, error) {
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("google maps client: %w", err)
	}
	return &Google{client: c}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) Forward(ctx context.Context, address string) (domain.GeocodeResult, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	return first(results, err)
}

// Reverse uses the latlng form of the geocode request.
func (g *Google) Reverse(ctx context.Context, p domain.GeoPoint) (domain.GeocodeResult, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	return first(results, err)
}

func first(results []maps.GeocodingResult, err error) (domain.GeocodeResult, error) {
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return domain.GeocodeResult{}, domain.ErrGeocodeNotFound
		}
		return domain.GeocodeResult{}, fmt.Errorf("google geocode: %w", err)
	}
	if len(results) == 0 {
		return domain.GeocodeResult{}, domain.ErrGeocodeNotFound
	}
	r := results[0]
	pt, err := domain.NewGeoPoint(r.Geometry.Location.Lat, r.Geometry.Location.Lng)
	if err != nil {
		return domain.GeocodeResult{}, err
	}
	return domain.GeocodeResult{Point: pt, FormattedAddress: r.FormattedAddress}, nil
}
