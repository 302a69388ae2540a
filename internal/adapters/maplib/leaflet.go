package maplib

import (
	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
)

const (
	leafletScript             = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"
	DefaultLeafletTileURL     = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultLeafletAttribution = "&copy; OpenStreetMap contributors"
)

var leafletCalls = map[string]string{
	opCreateMap:                   "L.map",
	opAddLayer:                    "L.tileLayer",
	opCreateMarker:                "L.marker",
	opSetPosition:                 "marker.setLatLng",
	opPanTo:                       "map.panTo",
	opSetZoom:                     "map.setZoom",
	opFitBounds:                   "map.fitBounds",
	string(ports.OverlayPolyline): "L.polyline",
	string(ports.OverlayPolygon):  "L.polygon",
	opBindPopup:                   "layer.bindPopup",
	opCluster:                     "L.markerClusterGroup",
	opSpiderfy:                    "new OverlappingMarkerSpiderfier",
	opListen:                      "layer.on",
}

type leafletDialect struct {
	tileURL     string
	attribution string
}

func (leafletDialect) library() domain.Library { return domain.LibraryLeaflet }

func (leafletDialect) scriptURL() string { return leafletScript }

func (leafletDialect) defaultMaxZoom() int { return 19 }

func (leafletDialect) call(op string) string { return leafletCalls[op] }

func (leafletDialect) latLng(p domain.GeoPoint) any {
	return []float64{p.Lat, p.Lng}
}

func (leafletDialect) bounds(b domain.Bounds) any {
	return [][]float64{{b.MinLat, b.MinLng}, {b.MaxLat, b.MaxLng}}
}

func (l leafletDialect) mapOptions(cfg domain.MapInstanceConfig, zoom, minZoom, maxZoom int) map[string]any {
	c := cfg.Controls
	return map[string]any{
		"center":             l.latLng(cfg.Center),
		"zoom":               zoom,
		"minZoom":            minZoom,
		"maxZoom":            maxZoom,
		"zoomControl":        c.Zoom,
		"scrollWheelZoom":    c.ScrollWheel,
		"dragging":           c.Draggable,
		"attributionControl": true,
	}
}

func (l leafletDialect) mapLayers(cfg domain.MapInstanceConfig) []ports.Command {
	cmds := []ports.Command{{
		Op:   opAddLayer,
		Call: leafletCalls[opAddLayer],
		Args: map[string]any{
			"url":     l.tileURL,
			"options": map[string]any{"attribution": l.attribution, "maxZoom": l.defaultMaxZoom()},
		},
	}}
	if cfg.Controls.Scale {
		cmds = append(cmds, ports.Command{Op: opAddLayer, Call: "L.control.scale"})
	}
	if cfg.Controls.Fullscreen {
		cmds = append(cmds, ports.Command{Op: opAddLayer, Call: "L.control.fullscreen"})
	}
	return cmds
}

func (l leafletDialect) markerOptions(p domain.GeoPoint, opts ports.MarkerOptions) map[string]any {
	out := map[string]any{
		"latlng":    l.latLng(p),
		"draggable": opts.Draggable,
	}
	if opts.Title != "" {
		out["title"] = opts.Title
	}
	if opts.IconURL != "" {
		out["icon"] = map[string]any{
			"iconUrl":     opts.IconURL,
			"iconSize":    []float64{25, 41},
			"iconAnchor":  []float64{12, 41},
			"popupAnchor": []float64{1, -34},
		}
	}
	return out
}

func (l leafletDialect) overlayOptions(kind ports.OverlayKind, vertices []domain.GeoPoint) map[string]any {
	out := map[string]any{"latlngs": latLngs(l, vertices), "weight": 2}
	if kind == ports.OverlayPolygon {
		out["fillOpacity"] = 0.35
	}
	return out
}

// Leaflet.markercluster defaults.
func (leafletDialect) clusterDefaults(maxZoom int) map[string]any {
	return map[string]any{
		"maxClusterRadius":        80,
		"disableClusteringAtZoom": nil,
		"spiderfyOnMaxZoom":       true,
		"showCoverageOnHover":     true,
		"zoomToBoundsOnClick":     true,
	}
}

func (leafletDialect) clusterParams(opts map[string]any) (clusterParams, error) {
	radius, err := numberOption("clustering.options", opts, "maxClusterRadius", 80)
	if err != nil {
		return clusterParams{}, err
	}
	disableAt, err := numberOption("clustering.options", opts, "disableClusteringAtZoom", -1)
	if err != nil {
		return clusterParams{}, err
	}
	return clusterParams{gridSize: radius, disableAt: int(disableAt), minSize: 2}, nil
}

func (leafletDialect) spiderfyDefaults() map[string]any {
	return map[string]any{
		"keepSpiderfied":         true,
		"nearbyDistance":         defaultNearbyDistance,
		"circleSpiralSwitchover": defaultCircleSpiralSwitchover,
		"legWeight":              1.5,
	}
}
