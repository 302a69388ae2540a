package ports

import (
	"github.com/samirrijal/geofield/internal/core/domain"
)

// MapHandle, MarkerHandle and OverlayHandle are opaque references into an
// adapter's scene. They are only meaningful to the adapter that issued them.
type (
	MapHandle     string
	MarkerHandle  string
	OverlayHandle string
)

// OverlayKind is the shape of a non-point overlay.
type OverlayKind string

const (
	OverlayPolyline OverlayKind = "polyline"
	OverlayPolygon  OverlayKind = "polygon"
)

// MarkerOptions configures a new marker.
type MarkerOptions struct {
	Draggable bool
	IconURL   string
	Title     string
}

// Command is one backend-specific drawing instruction for the browser runtime.
type Command struct {
	Op     string         `json:"op"`
	Call   string         `json:"call"`
	Target string         `json:"target"`
	Args   map[string]any `json:"args,omitempty"`
}

// Cluster is one group computed by an adapter's clustering facility.
type Cluster struct {
	Center  domain.GeoPoint `json:"center"`
	Markers []MarkerHandle  `json:"markers"`
}

// MapLibraryAdapter unifies the map SDKs behind one contract. Callers never
// branch on library identity; they pick an adapter once at construction.
type MapLibraryAdapter interface {
	Library() domain.Library

	// EnsureLoaded runs ready once the SDK is available. Safe to call repeatedly.
	EnsureLoaded(ready func())

	CreateMap(containerID string, cfg domain.MapInstanceConfig) (MapHandle, error)
	CreateMarker(m MapHandle, p domain.GeoPoint, opts MarkerOptions) (MarkerHandle, error)
	SetMarkerPosition(mk MarkerHandle, p domain.GeoPoint)
	MarkerPosition(mk MarkerHandle) domain.GeoPoint
	AddOverlay(m MapHandle, kind OverlayKind, vertices []domain.GeoPoint) (OverlayHandle, error)
	BindPopup(target string, html string)

	PanTo(m MapHandle, p domain.GeoPoint)
	SetZoom(m MapHandle, level int)
	Zoom(m MapHandle) int
	Center(m MapHandle) domain.GeoPoint
	FitBounds(m MapHandle, points []domain.GeoPoint)

	// Cluster groups markers; rawOptions are merged over the backend defaults.
	Cluster(m MapHandle, markers []MarkerHandle, rawOptions map[string]any) ([]Cluster, error)
	// Spiderfy fans out markers that share a position.
	Spiderfy(m MapHandle, markers []MarkerHandle, rawOptions map[string]any) (map[MarkerHandle]domain.GeoPoint, error)
	// Groups recomputes both results at the map's current zoom.
	Groups(m MapHandle) ([]Cluster, map[MarkerHandle]domain.GeoPoint)

	OnMarkerDragEnd(mk MarkerHandle, fn func(domain.GeoPoint))
	OnMapClick(m MapHandle, fn func(domain.GeoPoint))

	// DragMarker and ClickMap deliver browser events into the scene.
	DragMarker(mk MarkerHandle, p domain.GeoPoint)
	ClickMap(m MapHandle, p domain.GeoPoint)

	// Drain returns and clears the pending commands for m.
	Drain(m MapHandle) []Command
}
