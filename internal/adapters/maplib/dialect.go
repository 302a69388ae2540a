package maplib

import (
	"encoding/json"
	"fmt"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
)

// dialect is what differs between map SDKs: call names, option names,
// coordinate encoding and clustering library defaults.
type dialect interface {
	library() domain.Library
	scriptURL() string
	defaultMaxZoom() int
	call(op string) string
	latLng(p domain.GeoPoint) any
	bounds(b domain.Bounds) any
	mapOptions(cfg domain.MapInstanceConfig, zoom, minZoom, maxZoom int) map[string]any
	mapLayers(cfg domain.MapInstanceConfig) []ports.Command
	markerOptions(p domain.GeoPoint, opts ports.MarkerOptions) map[string]any
	overlayOptions(kind ports.OverlayKind, vertices []domain.GeoPoint) map[string]any
	clusterDefaults(maxZoom int) map[string]any
	clusterParams(opts map[string]any) (clusterParams, error)
	spiderfyDefaults() map[string]any
}

// numberOption reads a numeric option decoded from caller JSON.
// A missing or null key yields def.
func numberOption(field string, opts map[string]any, key string, def float64) (float64, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, &domain.ConfigError{Field: field + "." + key, Err: err}
		}
		return f, nil
	default:
		return 0, &domain.ConfigError{Field: field + "." + key, Err: fmt.Errorf("expected a number, got %T", v)}
	}
}

func latLngs(d dialect, vertices []domain.GeoPoint) []any {
	out := make([]any, len(vertices))
	for i, v := range vertices {
		out[i] = d.latLng(v)
	}
	return out
}
