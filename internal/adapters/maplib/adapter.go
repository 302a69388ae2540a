package maplib

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/pkg/geospatial"
)

// Command ops shared by both dialects. The Call field carries the
// backend-specific SDK call.
const (
	opCreateMap    = "createMap"
	opAddLayer     = "addLayer"
	opCreateMarker = "createMarker"
	opSetPosition  = "setPosition"
	opPanTo        = "panTo"
	opSetZoom      = "setZoom"
	opFitBounds    = "fitBounds"
	opAddOverlay   = "addOverlay"
	opBindPopup    = "bindPopup"
	opCluster      = "cluster"
	opSpiderfy     = "spiderfy"
	opListen       = "listen"
)

const (
	defaultViewportWidth  = 640
	defaultViewportHeight = 450
	fitPadding            = 16
)

type mapState struct {
	id        ports.MapHandle
	container string
	center    domain.GeoPoint
	zoom      int
	minZoom   int
	maxZoom   int
	width     float64
	height    float64
	clickFns  []func(domain.GeoPoint)
	pending   []ports.Command

	clustered []ports.MarkerHandle
	clusterP  *clusterParams
	spidered  []ports.MarkerHandle
	spiderP   *spiderParams
}

func (m *mapState) push(cmds ...ports.Command) {
	m.pending = append(m.pending, cmds...)
}

func (m *mapState) clamp(level int) int {
	if level < m.minZoom {
		return m.minZoom
	}
	if level > m.maxZoom {
		return m.maxZoom
	}
	return level
}

type markerState struct {
	id      ports.MarkerHandle
	mapID   ports.MapHandle
	pos     domain.GeoPoint
	opts    ports.MarkerOptions
	dragFns []func(domain.GeoPoint)
}

type overlayState struct {
	id       ports.OverlayHandle
	mapID    ports.MapHandle
	kind     ports.OverlayKind
	vertices []domain.GeoPoint
}

// Adapter implements ports.MapLibraryAdapter over a server-side scene.
// Every mutation is recorded as a dialect-specific Command that the browser
// runtime replays against the real SDK.
type Adapter struct {
	d      dialect
	loader *SDKLoader

	mu       sync.Mutex
	maps     map[ports.MapHandle]*mapState
	markers  map[ports.MarkerHandle]*markerState
	overlays map[ports.OverlayHandle]*overlayState
}

var _ ports.MapLibraryAdapter = (*Adapter)(nil)

func newAdapter(d dialect, loader *SDKLoader) *Adapter {
	return &Adapter{
		d:        d,
		loader:   loader,
		maps:     make(map[ports.MapHandle]*mapState),
		markers:  make(map[ports.MarkerHandle]*markerState),
		overlays: make(map[ports.OverlayHandle]*overlayState),
	}
}

func (a *Adapter) Library() domain.Library { return a.d.library() }

// Loader exposes the SDK loader so the transport can signal readiness.
func (a *Adapter) Loader() *SDKLoader { return a.loader }

func (a *Adapter) EnsureLoaded(ready func()) {
	a.loader.EnsureLoaded(ready)
}

func (a *Adapter) CreateMap(containerID string, cfg domain.MapInstanceConfig) (ports.MapHandle, error) {
	extra, err := domain.DecodeRawOptions("additional_options", cfg.AdditionalOptions)
	if err != nil {
		return "", err
	}

	m := &mapState{
		id:        ports.MapHandle("map-" + uuid.NewString()),
		container: containerID,
		center:    cfg.Center,
		minZoom:   cfg.Zoom.Min,
		maxZoom:   cfg.Zoom.Max,
		width:     parsePixels(cfg.Width, defaultViewportWidth),
		height:    parsePixels(cfg.Height, defaultViewportHeight),
	}
	if m.maxZoom == 0 {
		m.maxZoom = a.d.defaultMaxZoom()
	}
	m.zoom = m.clamp(cfg.Zoom.Initial)

	opts := domain.MergeOptions(a.d.mapOptions(cfg, m.zoom, m.minZoom, m.maxZoom), extra)
	if z, ok := opts["zoom"].(float64); ok {
		m.zoom = m.clamp(int(z))
	}

	m.push(ports.Command{
		Op:     opCreateMap,
		Call:   a.d.call(opCreateMap),
		Target: string(m.id),
		Args:   map[string]any{"container": containerID, "options": opts},
	})
	for _, c := range a.d.mapLayers(cfg) {
		c.Target = string(m.id)
		m.push(c)
	}

	a.mu.Lock()
	a.maps[m.id] = m
	a.mu.Unlock()
	return m.id, nil
}

func (a *Adapter) CreateMarker(mh ports.MapHandle, p domain.GeoPoint, opts ports.MarkerOptions) (ports.MarkerHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return "", fmt.Errorf("unknown map %q", mh)
	}
	mk := &markerState{
		id:    ports.MarkerHandle("marker-" + uuid.NewString()),
		mapID: mh,
		pos:   p,
		opts:  opts,
	}
	a.markers[mk.id] = mk
	m.push(ports.Command{
		Op:     opCreateMarker,
		Call:   a.d.call(opCreateMarker),
		Target: string(mk.id),
		Args:   map[string]any{"map": string(mh), "options": a.d.markerOptions(p, opts)},
	})
	return mk.id, nil
}

func (a *Adapter) SetMarkerPosition(mk ports.MarkerHandle, p domain.GeoPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ms, ok := a.markers[mk]
	if !ok {
		return
	}
	ms.pos = p
	a.maps[ms.mapID].push(ports.Command{
		Op:     opSetPosition,
		Call:   a.d.call(opSetPosition),
		Target: string(mk),
		Args:   map[string]any{"position": a.d.latLng(p)},
	})
}

func (a *Adapter) MarkerPosition(mk ports.MarkerHandle) domain.GeoPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ms, ok := a.markers[mk]; ok {
		return ms.pos
	}
	return domain.GeoPoint{}
}

func (a *Adapter) AddOverlay(mh ports.MapHandle, kind ports.OverlayKind, vertices []domain.GeoPoint) (ports.OverlayHandle, error) {
	if kind != ports.OverlayPolyline && kind != ports.OverlayPolygon {
		return "", fmt.Errorf("unknown overlay kind %q", kind)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return "", fmt.Errorf("unknown map %q", mh)
	}
	ov := &overlayState{
		id:       ports.OverlayHandle(string(kind) + "-" + uuid.NewString()),
		mapID:    mh,
		kind:     kind,
		vertices: append([]domain.GeoPoint(nil), vertices...),
	}
	a.overlays[ov.id] = ov
	m.push(ports.Command{
		Op:     opAddOverlay,
		Call:   a.d.call(string(kind)),
		Target: string(ov.id),
		Args:   map[string]any{"map": string(mh), "options": a.d.overlayOptions(kind, vertices)},
	})
	return ov.id, nil
}

func (a *Adapter) BindPopup(target string, html string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.ownerLocked(target)
	if m == nil {
		slog.Debug("popup target not found", "target", target)
		return
	}
	m.push(ports.Command{
		Op:     opBindPopup,
		Call:   a.d.call(opBindPopup),
		Target: target,
		Args:   map[string]any{"content": html},
	})
}

func (a *Adapter) PanTo(mh ports.MapHandle, p domain.GeoPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return
	}
	m.center = p
	m.push(ports.Command{
		Op:     opPanTo,
		Call:   a.d.call(opPanTo),
		Target: string(mh),
		Args:   map[string]any{"center": a.d.latLng(p)},
	})
}

func (a *Adapter) SetZoom(mh ports.MapHandle, level int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return
	}
	m.zoom = m.clamp(level)
	m.push(ports.Command{
		Op:     opSetZoom,
		Call:   a.d.call(opSetZoom),
		Target: string(mh),
		Args:   map[string]any{"zoom": m.zoom},
	})
}

func (a *Adapter) Zoom(mh ports.MapHandle) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.maps[mh]; ok {
		return m.zoom
	}
	return 0
}

func (a *Adapter) Center(mh ports.MapHandle) domain.GeoPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.maps[mh]; ok {
		return m.center
	}
	return domain.GeoPoint{}
}

// FitBounds centers on a single point without touching zoom. Two or more
// distinct points fit their bounding box into the viewport.
func (a *Adapter) FitBounds(mh ports.MapHandle, points []domain.GeoPoint) {
	distinct := domain.DistinctPoints(points)
	switch len(distinct) {
	case 0:
		return
	case 1:
		a.PanTo(mh, distinct[0])
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return
	}
	b, _ := domain.BoundsOf(distinct)
	m.center = b.Center()
	m.zoom = geospatial.FitZoom(b.MinLat, b.MinLng, b.MaxLat, b.MaxLng,
		m.width, m.height, fitPadding, m.minZoom, m.maxZoom)
	m.push(ports.Command{
		Op:     opFitBounds,
		Call:   a.d.call(opFitBounds),
		Target: string(mh),
		Args: map[string]any{
			"bounds":  a.d.bounds(b),
			"padding": fitPadding,
			"maxZoom": m.maxZoom,
		},
	})
}

func (a *Adapter) Cluster(mh ports.MapHandle, markers []ports.MarkerHandle, rawOptions map[string]any) ([]ports.Cluster, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return nil, fmt.Errorf("unknown map %q", mh)
	}
	opts := domain.MergeOptions(a.d.clusterDefaults(m.maxZoom), rawOptions)
	params, err := a.d.clusterParams(opts)
	if err != nil {
		return nil, err
	}

	items := a.placedLocked(markers)
	clusters := gridCluster(items, m.zoom, params)
	m.clustered, m.clusterP = append(m.clustered[:0], markers...), &params
	m.push(ports.Command{
		Op:     opCluster,
		Call:   a.d.call(opCluster),
		Target: string(mh),
		Args:   map[string]any{"markers": handles(items), "options": opts},
	})
	return clusters, nil
}

func (a *Adapter) Spiderfy(mh ports.MapHandle, markers []ports.MarkerHandle, rawOptions map[string]any) (map[ports.MarkerHandle]domain.GeoPoint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return nil, fmt.Errorf("unknown map %q", mh)
	}
	opts := domain.MergeOptions(a.d.spiderfyDefaults(), rawOptions)
	params, err := spiderfyParams(opts)
	if err != nil {
		return nil, err
	}

	items := a.placedLocked(markers)
	fanned := spiderfy(items, m.zoom, params)
	m.spidered, m.spiderP = append(m.spidered[:0], markers...), &params
	m.push(ports.Command{
		Op:     opSpiderfy,
		Call:   a.d.call(opSpiderfy),
		Target: string(mh),
		Args:   map[string]any{"markers": handles(items), "options": opts},
	})
	return fanned, nil
}

// Groups recomputes the clustering and spiderfy results of mh at its current
// zoom and positions. Either result is nil when that facility was never
// attached to the map.
func (a *Adapter) Groups(mh ports.MapHandle) ([]ports.Cluster, map[ports.MarkerHandle]domain.GeoPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return nil, nil
	}
	var (
		clusters []ports.Cluster
		fanned   map[ports.MarkerHandle]domain.GeoPoint
	)
	if m.clusterP != nil {
		clusters = gridCluster(a.placedLocked(m.clustered), m.zoom, *m.clusterP)
	}
	if m.spiderP != nil {
		fanned = spiderfy(a.placedLocked(m.spidered), m.zoom, *m.spiderP)
	}
	return clusters, fanned
}

func (a *Adapter) OnMarkerDragEnd(mk ports.MarkerHandle, fn func(domain.GeoPoint)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ms, ok := a.markers[mk]
	if !ok {
		return
	}
	if len(ms.dragFns) == 0 {
		a.maps[ms.mapID].push(ports.Command{
			Op:     opListen,
			Call:   a.d.call(opListen),
			Target: string(mk),
			Args:   map[string]any{"event": "dragend"},
		})
	}
	ms.dragFns = append(ms.dragFns, fn)
}

func (a *Adapter) OnMapClick(mh ports.MapHandle, fn func(domain.GeoPoint)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return
	}
	if len(m.clickFns) == 0 {
		m.push(ports.Command{
			Op:     opListen,
			Call:   a.d.call(opListen),
			Target: string(mh),
			Args:   map[string]any{"event": "click"},
		})
	}
	m.clickFns = append(m.clickFns, fn)
}

// DragMarker records a drag that already happened in the browser and
// notifies drag-end subscribers.
func (a *Adapter) DragMarker(mk ports.MarkerHandle, p domain.GeoPoint) {
	a.mu.Lock()
	ms, ok := a.markers[mk]
	if !ok {
		a.mu.Unlock()
		return
	}
	ms.pos = p
	fns := slices.Clone(ms.dragFns)
	a.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// ClickMap notifies click subscribers of m.
func (a *Adapter) ClickMap(mh ports.MapHandle, p domain.GeoPoint) {
	a.mu.Lock()
	m, ok := a.maps[mh]
	if !ok {
		a.mu.Unlock()
		return
	}
	fns := slices.Clone(m.clickFns)
	a.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (a *Adapter) Drain(mh ports.MapHandle) []ports.Command {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.maps[mh]
	if !ok {
		return nil
	}
	cmds := m.pending
	m.pending = nil
	return cmds
}

func (a *Adapter) ownerLocked(target string) *mapState {
	if ms, ok := a.markers[ports.MarkerHandle(target)]; ok {
		return a.maps[ms.mapID]
	}
	if ov, ok := a.overlays[ports.OverlayHandle(target)]; ok {
		return a.maps[ov.mapID]
	}
	return a.maps[ports.MapHandle(target)]
}

func (a *Adapter) placedLocked(markers []ports.MarkerHandle) []placed {
	items := make([]placed, 0, len(markers))
	for _, h := range markers {
		if ms, ok := a.markers[h]; ok {
			items = append(items, placed{h: h, p: ms.pos})
		}
	}
	return items
}

func handles(items []placed) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it.h)
	}
	return out
}

// parsePixels reads "450px" or "450". Relative sizes fall back to def.
func parsePixels(v string, def float64) float64 {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
