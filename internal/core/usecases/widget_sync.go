package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/pkg/geospatial"
	"github.com/samirrijal/geofield/internal/pkg/metrics"
)

// Origin tells user input apart from the controller's own field writes.
type Origin int

const (
	OriginUser Origin = iota
	OriginProgrammatic
)

// Point change triggers.
const (
	TriggerFields  = "fields"
	TriggerDrag    = "drag"
	TriggerClick   = "click"
	TriggerAddress = "address"
	TriggerPlace   = "place"
)

const placeMarkerPrompt = "Move the marker to the center of the map?"

// WidgetDeps are the collaborators of one editable widget.
type WidgetDeps struct {
	Maps    ports.MapLibraryAdapter
	Fields  ports.WidgetFields
	Geocode ports.GeocodeGateway
	Confirm ports.Confirmer      // optional
	Events  ports.EventPublisher // optional
	Logger  *slog.Logger
}

// WidgetSyncController keeps one map's marker, its numeric lat/lng fields
// and its address field in agreement.
//
// Handlers run one at a time under mu. Geocode calls run on their own
// goroutines; each takes the next sequence number and its response is
// applied only if no newer request was issued since.
type WidgetSyncController struct {
	cfg     domain.MapInstanceConfig
	maps    ports.MapLibraryAdapter
	fields  ports.WidgetFields
	geocode ports.GeocodeGateway
	confirm ports.Confirmer
	events  ports.EventPublisher
	log     *slog.Logger

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	state   domain.MapInstanceState
	mapH    ports.MapHandle
	marker  ports.MarkerHandle
	built   bool
	initErr error
	seq     uint64
}

// NewWidgetSyncController validates cfg and binds the collaborators.
// A *domain.ConfigError means the widget must not initialize.
func NewWidgetSyncController(cfg domain.MapInstanceConfig, deps WidgetDeps) (*WidgetSyncController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &WidgetSyncController{
		cfg:     cfg,
		maps:    deps.Maps,
		fields:  deps.Fields,
		geocode: deps.Geocode,
		confirm: deps.Confirm,
		events:  deps.Events,
		log:     log.With("map_id", cfg.MapID),
		ctx:     context.Background(),
		state:   domain.MapInstanceState{MapID: cfg.MapID, Sync: domain.StateIdle},
	}, nil
}

// Init builds the map once the SDK is ready. ctx bounds the geocode calls
// started by map events for the lifetime of the widget.
func (c *WidgetSyncController) Init(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.maps.EnsureLoaded(c.build)
}

func (c *WidgetSyncController) build() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.built {
		return
	}

	mh, err := c.maps.CreateMap(c.cfg.MapID, c.cfg)
	if err != nil {
		c.initErr = err
		c.log.Error("create map failed", "error", err)
		return
	}

	p := c.cfg.Center
	fromFields := false
	if fp, err := domain.ParseGeoPoint(c.fields.Lat(), c.fields.Lng()); err == nil {
		p, fromFields = fp, true
	}

	mk, err := c.maps.CreateMarker(mh, p, ports.MarkerOptions{
		Draggable: c.cfg.Marker.Draggable || c.cfg.Editable,
		IconURL:   c.cfg.Marker.IconURL,
	})
	if err != nil {
		c.initErr = err
		c.log.Error("create marker failed", "error", err)
		return
	}
	if fromFields {
		c.maps.PanTo(mh, p)
		if !c.cfg.Zoom.ForceInitial {
			c.maps.SetZoom(mh, c.cfg.FocusZoom())
		}
	}

	c.maps.OnMarkerDragEnd(mk, c.onDragEnd)
	if c.cfg.Editable {
		c.maps.OnMapClick(mh, c.onMapClick)
	}

	c.mapH, c.marker, c.built = mh, mk, true
	c.state.Point = p
	c.state.MarkerID = string(mk)
	c.state.LastAddress = c.fields.Address()
	c.log.Debug("widget initialized", "point", p.Key(), "from_fields", fromFields)
}

// Map returns the map handle once the widget is built.
func (c *WidgetSyncController) Map() (ports.MapHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mapH, c.built
}

// Err returns the initialization failure, if any.
func (c *WidgetSyncController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErr
}

// State returns a snapshot of the instance state.
func (c *WidgetSyncController) State() domain.MapInstanceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FieldsChanged handles an edit of the numeric fields. Invalid input, the
// controller's own writes and edits that leave the point unchanged at six
// decimals are ignored.
func (c *WidgetSyncController) FieldsChanged(ctx context.Context, origin Origin) {
	if origin == OriginProgrammatic {
		return
	}

	c.mu.Lock()
	if !c.built {
		c.mu.Unlock()
		return
	}
	p, err := domain.ParseGeoPoint(c.fields.Lat(), c.fields.Lng())
	if err != nil {
		c.mu.Unlock()
		c.log.Debug("ignoring invalid coordinates", "error", err)
		return
	}
	if p.Equal6(c.state.Point) {
		c.mu.Unlock()
		return
	}
	c.maps.SetMarkerPosition(c.marker, p)
	c.maps.PanTo(c.mapH, p)
	c.maps.SetZoom(c.mapH, c.cfg.FocusZoom())
	c.writeLatLngLocked(p)
	ev := c.movedLocked(p, TriggerFields, "")
	c.reverseLocked(ctx, p)
	c.mu.Unlock()

	c.publish(ctx, ev)
}

func (c *WidgetSyncController) onDragEnd(p domain.GeoPoint) {
	c.mu.Lock()
	if !c.built {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.writeLatLngLocked(p)
	ev := c.movedLocked(p, TriggerDrag, "")
	c.reverseLocked(ctx, p)
	c.mu.Unlock()

	c.publish(ctx, ev)
}

func (c *WidgetSyncController) onMapClick(p domain.GeoPoint) {
	c.mu.Lock()
	if !c.built {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.maps.SetMarkerPosition(c.marker, p)
	c.writeLatLngLocked(p)
	ev := c.movedLocked(p, TriggerClick, "")
	c.reverseLocked(ctx, p)
	c.mu.Unlock()

	c.publish(ctx, ev)
}

// AddressSelected geocodes address and, on success, moves the marker there
// and writes the canonical address back.
func (c *WidgetSyncController) AddressSelected(ctx context.Context, address string) {
	c.mu.Lock()
	if !c.built {
		c.mu.Unlock()
		return
	}
	seq := c.nextLocked()
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, ok := c.geocode.Forward(ctx, address)

		c.mu.Lock()
		if !c.currentLocked(seq) {
			c.mu.Unlock()
			return
		}
		if !ok {
			c.mu.Unlock()
			return
		}
		p := res.Point
		c.maps.SetMarkerPosition(c.marker, p)
		c.maps.PanTo(c.mapH, p)
		c.maps.SetZoom(c.mapH, c.cfg.FocusZoom())
		c.writeLatLngLocked(p)
		c.writeAddressLocked(res.FormattedAddress)
		ev := c.movedLocked(p, TriggerAddress, res.FormattedAddress)
		c.mu.Unlock()

		c.publish(ctx, ev)
	}()
}

// FindMarker pans to the marker at the current zoom.
func (c *WidgetSyncController) FindMarker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.built {
		return
	}
	c.maps.PanTo(c.mapH, c.maps.MarkerPosition(c.marker))
}

// PlaceMarker moves the marker to the map center after optional user
// confirmation. It reports whether the marker moved.
func (c *WidgetSyncController) PlaceMarker(ctx context.Context) bool {
	if c.cfg.ConfirmPlaceMarker && c.confirm != nil && !c.confirm.Confirm(ctx, placeMarkerPrompt) {
		return false
	}

	c.mu.Lock()
	if !c.built {
		c.mu.Unlock()
		return false
	}
	p := c.maps.Center(c.mapH)
	c.maps.SetMarkerPosition(c.marker, p)
	c.writeLatLngLocked(p)
	ev := c.movedLocked(p, TriggerPlace, "")
	c.reverseLocked(ctx, p)
	c.mu.Unlock()

	c.publish(ctx, ev)
	return true
}

// Wait blocks until every geocode call started so far has returned.
func (c *WidgetSyncController) Wait() {
	c.wg.Wait()
}

func (c *WidgetSyncController) reverseLocked(ctx context.Context, p domain.GeoPoint) {
	seq := c.nextLocked()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		addr, ok := c.geocode.Reverse(ctx, p)

		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.currentLocked(seq) || !ok {
			return
		}
		c.writeAddressLocked(addr)
	}()
}

func (c *WidgetSyncController) nextLocked() uint64 {
	c.seq++
	c.state.Sync = domain.StateAwaitingGeocode
	return c.seq
}

// currentLocked reports whether seq is still the latest request and, if
// so, returns the instance to idle.
func (c *WidgetSyncController) currentLocked(seq uint64) bool {
	if seq != c.seq {
		c.log.Debug("discarding superseded geocode response", "seq", seq, "latest", c.seq)
		return false
	}
	c.state.Sync = domain.StateIdle
	return true
}

func (c *WidgetSyncController) writeLatLngLocked(p domain.GeoPoint) {
	c.fields.SetLatLng(domain.FormatCoord(p.Lat), domain.FormatCoord(p.Lng))
}

func (c *WidgetSyncController) writeAddressLocked(addr string) {
	c.fields.SetAddress(addr)
	c.state.LastAddress = addr
}

func (c *WidgetSyncController) movedLocked(p domain.GeoPoint, trigger, address string) *domain.PointChanged {
	prev := c.state.Point
	c.state.Point = p
	metrics.PointChanges.WithLabelValues(trigger).Inc()
	return &domain.PointChanged{
		MapID:          c.cfg.MapID,
		Point:          p.Round6(),
		Previous:       prev.Round6(),
		DistanceMeters: geospatial.Haversine(prev.Lat, prev.Lng, p.Lat, p.Lng),
		Address:        address,
		Trigger:        trigger,
		OccurredAt:     time.Now(),
	}
}

func (c *WidgetSyncController) publish(ctx context.Context, ev *domain.PointChanged) {
	if c.events == nil || ev == nil {
		return
	}
	if err := c.events.PublishPointChanged(ctx, ev); err != nil {
		c.log.Warn("publish point change failed", "error", err)
	}
}
