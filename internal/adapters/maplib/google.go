package maplib

import (
	"net/url"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
)

const googleScriptBase = "https://maps.googleapis.com/maps/api/js"

var googleCalls = map[string]string{
	opCreateMap:                   "new google.maps.Map",
	opCreateMarker:                "new google.maps.Marker",
	opSetPosition:                 "marker.setPosition",
	opPanTo:                       "map.panTo",
	opSetZoom:                     "map.setZoom",
	opFitBounds:                   "map.fitBounds",
	string(ports.OverlayPolyline): "new google.maps.Polyline",
	string(ports.OverlayPolygon):  "new google.maps.Polygon",
	opBindPopup:                   "new google.maps.InfoWindow",
	opCluster:                     "new MarkerClusterer",
	opSpiderfy:                    "new OverlappingMarkerSpiderfier",
	opListen:                      "google.maps.event.addListener",
}

type googleDialect struct {
	apiKey string
}

func (googleDialect) library() domain.Library { return domain.LibraryGoogle }

func (g googleDialect) scriptURL() string {
	q := url.Values{}
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}
	q.Set("libraries", "places")
	q.Set("callback", "geofieldSdkReady")
	return googleScriptBase + "?" + q.Encode()
}

func (googleDialect) defaultMaxZoom() int { return 21 }

func (googleDialect) call(op string) string { return googleCalls[op] }

func (googleDialect) latLng(p domain.GeoPoint) any {
	return map[string]float64{"lat": p.Lat, "lng": p.Lng}
}

func (g googleDialect) bounds(b domain.Bounds) any {
	return map[string]any{
		"south": b.MinLat,
		"west":  b.MinLng,
		"north": b.MaxLat,
		"east":  b.MaxLng,
	}
}

func (g googleDialect) mapOptions(cfg domain.MapInstanceConfig, zoom, minZoom, maxZoom int) map[string]any {
	c := cfg.Controls
	return map[string]any{
		"center":            g.latLng(cfg.Center),
		"zoom":              zoom,
		"minZoom":           minZoom,
		"maxZoom":           maxZoom,
		"mapTypeId":         "roadmap",
		"zoomControl":       c.Zoom,
		"mapTypeControl":    c.MapType,
		"scaleControl":      c.Scale,
		"streetViewControl": c.StreetView,
		"fullscreenControl": c.Fullscreen,
		"scrollwheel":       c.ScrollWheel,
		"draggable":         c.Draggable,
	}
}

func (googleDialect) mapLayers(domain.MapInstanceConfig) []ports.Command { return nil }

func (g googleDialect) markerOptions(p domain.GeoPoint, opts ports.MarkerOptions) map[string]any {
	out := map[string]any{
		"position":  g.latLng(p),
		"draggable": opts.Draggable,
	}
	if opts.Title != "" {
		out["title"] = opts.Title
	}
	if opts.IconURL != "" {
		out["icon"] = opts.IconURL
	}
	return out
}

func (g googleDialect) overlayOptions(kind ports.OverlayKind, vertices []domain.GeoPoint) map[string]any {
	path := latLngs(g, vertices)
	if kind == ports.OverlayPolygon {
		return map[string]any{"paths": path, "strokeWeight": 2, "fillOpacity": 0.35}
	}
	return map[string]any{"path": path, "strokeWeight": 2}
}

// MarkerClusterer defaults.
func (googleDialect) clusterDefaults(maxZoom int) map[string]any {
	return map[string]any{
		"gridSize":           60,
		"maxZoom":            maxZoom,
		"minimumClusterSize": 2,
		"imagePath":          "https://developers.google.com/maps/documentation/javascript/examples/markerclusterer/m",
	}
}

func (googleDialect) clusterParams(opts map[string]any) (clusterParams, error) {
	grid, err := numberOption("clustering.options", opts, "gridSize", 60)
	if err != nil {
		return clusterParams{}, err
	}
	maxZoom, err := numberOption("clustering.options", opts, "maxZoom", -1)
	if err != nil {
		return clusterParams{}, err
	}
	minSize, err := numberOption("clustering.options", opts, "minimumClusterSize", 2)
	if err != nil {
		return clusterParams{}, err
	}
	p := clusterParams{gridSize: grid, disableAt: -1, minSize: int(minSize)}
	// MarkerClusterer shows every marker once zoom exceeds maxZoom.
	if maxZoom >= 0 {
		p.disableAt = int(maxZoom) + 1
	}
	return p, nil
}

func (googleDialect) spiderfyDefaults() map[string]any {
	return map[string]any{
		"markersWontMove":        true,
		"markersWontHide":        true,
		"basicFormatEvents":      true,
		"keepSpiderfied":         true,
		"nearbyDistance":         defaultNearbyDistance,
		"circleSpiralSwitchover": defaultCircleSpiralSwitchover,
		"legWeight":              1.5,
	}
}
