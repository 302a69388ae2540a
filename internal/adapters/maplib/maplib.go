// Package maplib renders map instances for the Google Maps and Leaflet SDKs.
// Both adapters share one scene model; only the command dialect differs.
package maplib

import (
	"fmt"

	"github.com/samirrijal/geofield/internal/core/domain"
)

// Options configures the adapters.
type Options struct {
	GoogleAPIKey    string
	TileURL         string
	TileAttribution string

	// Loader overrides the adapter's own SDK loader, letting several
	// adapters in one page session share it.
	Loader *SDKLoader
}

// NewGoogle returns a Google Maps adapter.
func NewGoogle(opts Options, insert ScriptInserter) *Adapter {
	d := googleDialect{apiKey: opts.GoogleAPIKey}
	return newAdapter(d, loaderFor(d, opts, insert))
}

// NewLeaflet returns a Leaflet adapter.
func NewLeaflet(opts Options, insert ScriptInserter) *Adapter {
	d := leafletDialect{tileURL: opts.TileURL, attribution: opts.TileAttribution}
	if d.tileURL == "" {
		d.tileURL = DefaultLeafletTileURL
	}
	if d.attribution == "" {
		d.attribution = DefaultLeafletAttribution
	}
	return newAdapter(d, loaderFor(d, opts, insert))
}

// New picks the adapter for lib.
func New(lib domain.Library, opts Options, insert ScriptInserter) (*Adapter, error) {
	switch lib {
	case domain.LibraryGoogle:
		return NewGoogle(opts, insert), nil
	case domain.LibraryLeaflet:
		return NewLeaflet(opts, insert), nil
	default:
		return nil, &domain.ConfigError{Field: "library", Err: fmt.Errorf("unknown library %q", lib)}
	}
}

// ScriptURL returns the SDK script for lib, or "" for an unknown library.
func ScriptURL(lib domain.Library, opts Options) string {
	switch lib {
	case domain.LibraryGoogle:
		return googleDialect{apiKey: opts.GoogleAPIKey}.scriptURL()
	case domain.LibraryLeaflet:
		return leafletScript
	}
	return ""
}

func loaderFor(d dialect, opts Options, insert ScriptInserter) *SDKLoader {
	if opts.Loader != nil {
		return opts.Loader
	}
	return NewSDKLoader(d.scriptURL(), insert)
}
