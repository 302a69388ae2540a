package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimOptions configures the Nominatim client. UserAgent is mandatory
// under the public instance's usage policy.
type NominatimOptions struct {
	BaseURL   string
	UserAgent string
	Email     string
	Language  string
	RateLimit float64 // requests per second, 0 for unlimited
	Client    *http.Client
}

// Nominatim implements ports.GeocodeProvider against the Nominatim JSON API.
type Nominatim struct {
	base    *url.URL
	opts    NominatimOptions
	client  *http.Client
	limiter *rate.Limiter
}

var _ ports.GeocodeProvider = (*Nominatim)(nil)

// NewNominatim creates a new Nominatim client.
func NewNominatim(opts NominatimOptions) (*Nominatim, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultNominatimURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("nominatim url: %w", err)
	}
	if opts.UserAgent == "" {
		return nil, fmt.Errorf("nominatim: user agent is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Nominatim{base: base, opts: opts, client: client, limiter: limiter}, nil
}

func (n *Nominatim) Name() string { return "nominatim" }

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (p nominatimPlace) result() (domain.GeocodeResult, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("nominatim lat %q: %w", p.Lat, err)
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodeResult{}, fmt.Errorf("nominatim lon %q: %w", p.Lon, err)
	}
	pt, err := domain.NewGeoPoint(lat, lng)
	if err != nil {
		return domain.GeocodeResult{}, err
	}
	return domain.GeocodeResult{Point: pt, FormattedAddress: p.DisplayName}, nil
}

// Forward calls /search and returns the best match.
func (n *Nominatim) Forward(ctx context.Context, address string) (domain.GeocodeResult, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("limit", "1")

	var places []nominatimPlace
	if err := n.get(ctx, "/search", q, &places); err != nil {
		return domain.GeocodeResult{}, err
	}
	if len(places) == 0 {
		return domain.GeocodeResult{}, domain.ErrGeocodeNotFound
	}
	return places[0].result()
}

// Reverse calls /reverse for p.
func (n *Nominatim) Reverse(ctx context.Context, p domain.GeoPoint) (domain.GeocodeResult, error) {
	q := url.Values{}
	q.Set("lat", domain.FormatCoord(p.Lat))
	q.Set("lon", domain.FormatCoord(p.Lng))

	var place nominatimPlace
	if err := n.get(ctx, "/reverse", q, &place); err != nil {
		return domain.GeocodeResult{}, err
	}
	if place.Error != "" || place.DisplayName == "" {
		return domain.GeocodeResult{}, domain.ErrGeocodeNotFound
	}
	return place.result()
}

func (n *Nominatim) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	q.Set("format", "jsonv2")
	if n.opts.Email != "" {
		q.Set("email", n.opts.Email)
	}
	u := *n.base
	u.Path += path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", n.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if n.opts.Language != "" {
		req.Header.Set("Accept-Language", n.opts.Language)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("nominatim %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("nominatim %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nominatim %s: decode: %w", path, err)
	}
	return nil
}
