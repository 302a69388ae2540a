package geocoder_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"googlemaps.github.io/maps"

	"github.com/samirrijal/geofield/internal/adapters/geocoder"
	"github.com/samirrijal/geofield/internal/core/domain"
)

func newNominatim(t *testing.T, h http.HandlerFunc) *geocoder.Nominatim {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	n, err := geocoder.NewNominatim(geocoder.NominatimOptions{
		BaseURL:   srv.URL,
		UserAgent: "geofield-test",
		Email:     "ops@example.org",
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestNominatim_Forward(t *testing.T) {
	n := newNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") != "geofield-test" {
			t.Errorf("missing user agent")
		}
		q := r.URL.Query()
		if q.Get("q") != "Paris" || q.Get("format") != "jsonv2" || q.Get("email") != "ops@example.org" {
			t.Errorf("unexpected query %v", q)
		}
		_, _ = w.Write([]byte(`[{"lat":"48.8566","lon":"2.3522","display_name":"Paris, France"}]`))
	})

	res, err := n.Forward(context.Background(), "Paris")
	if err != nil {
		t.Fatal(err)
	}
	if res.Point != (domain.GeoPoint{Lat: 48.8566, Lng: 2.3522}) || res.FormattedAddress != "Paris, France" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestNominatim_ForwardNotFound(t *testing.T) {
	n := newNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	if _, err := n.Forward(context.Background(), "Atlantis"); !errors.Is(err, domain.ErrGeocodeNotFound) {
		t.Errorf("expected ErrGeocodeNotFound, got %v", err)
	}
}

func TestNominatim_Reverse(t *testing.T) {
	n := newNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/reverse" || q.Get("lat") != "45.000000" || q.Get("lon") != "9.000000" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"lat":"45.0","lon":"9.0","display_name":"Milan, Italy"}`))
	})
	res, err := n.Reverse(context.Background(), domain.GeoPoint{Lat: 45, Lng: 9})
	if err != nil {
		t.Fatal(err)
	}
	if res.FormattedAddress != "Milan, Italy" {
		t.Errorf("unexpected address %q", res.FormattedAddress)
	}
}

func TestNominatim_ReverseErrors(t *testing.T) {
	n := newNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	})
	if _, err := n.Reverse(context.Background(), domain.GeoPoint{}); !errors.Is(err, domain.ErrGeocodeNotFound) {
		t.Errorf("expected ErrGeocodeNotFound, got %v", err)
	}

	n = newNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	_, err := n.Reverse(context.Background(), domain.GeoPoint{})
	if err == nil || errors.Is(err, domain.ErrGeocodeNotFound) {
		t.Errorf("expected a transport error, got %v", err)
	}
}

func TestNominatim_RequiresUserAgent(t *testing.T) {
	if _, err := geocoder.NewNominatim(geocoder.NominatimOptions{}); err == nil {
		t.Error("expected an error without user agent")
	}
}

func TestGoogle_ForwardAndReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("address") == "Paris":
			_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"Paris, France","geometry":{"location":{"lat":48.8566,"lng":2.3522}}}]}`))
		case q.Get("latlng") != "":
			_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"Milan, Italy","geometry":{"location":{"lat":45,"lng":9}}}]}`))
		default:
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
		}
	}))
	defer srv.Close()

	g, err := geocoder.NewGoogle("AIza-test", maps.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	res, err := g.Forward(context.Background(), "Paris")
	if err != nil || res.FormattedAddress != "Paris, France" {
		t.Fatalf("forward: %+v %v", res, err)
	}
	res, err = g.Reverse(context.Background(), domain.GeoPoint{Lat: 45, Lng: 9})
	if err != nil || res.FormattedAddress != "Milan, Italy" {
		t.Fatalf("reverse: %+v %v", res, err)
	}
	if _, err := g.Forward(context.Background(), "Atlantis"); !errors.Is(err, domain.ErrGeocodeNotFound) {
		t.Errorf("expected ErrGeocodeNotFound, got %v", err)
	}
}
