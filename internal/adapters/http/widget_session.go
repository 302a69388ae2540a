package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/samirrijal/geofield/internal/adapters/maplib"
	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/core/usecases"
)

// Client message types.
const (
	msgInit     = "init"
	msgFields   = "fields"
	msgDrag     = "drag"
	msgClick    = "click"
	msgAddress  = "address"
	msgFind     = "find"
	msgPlace    = "place"
	msgSDKReady = "sdk_ready"
	msgClose    = "close"
)

// Server message types.
const (
	msgCommands = "commands"
	msgLoadSDK  = "load_sdk"
	msgReady    = "ready"
	msgError    = "error"
)

type fieldValues struct {
	Lat     string `json:"lat"`
	Lng     string `json:"lng"`
	Address string `json:"address"`
	Origin  string `json:"origin,omitempty"`
}

// clientMessage is one message from the browser runtime.
type clientMessage struct {
	Type      string           `json:"type"`
	MapID     string           `json:"map_id"`
	Config    json.RawMessage  `json:"config,omitempty"`
	Fields    *fieldValues     `json:"fields,omitempty"`
	Point     *domain.GeoPoint `json:"point,omitempty"`
	Query     string           `json:"q,omitempty"`
	Confirmed bool             `json:"confirmed,omitempty"`
	Src       string           `json:"src,omitempty"`
}

// serverMessage is one message to the browser runtime.
type serverMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	MapID     string          `json:"map_id,omitempty"`
	Commands  []ports.Command `json:"commands,omitempty"`
	Fields    *fieldValues    `json:"fields,omitempty"`
	Src       string          `json:"src,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// widgetSession is one browser page: it owns the SDK loaders of the page
// and every editable widget the page initialized.
type widgetSession struct {
	id   string
	deps *Dependencies
	send func(serverMessage) error
	log  *slog.Logger
	ctx  context.Context

	mu      sync.Mutex
	loaders map[domain.Library]*maplib.SDKLoader
	pending map[string]func()
	widgets map[string]*sessionWidget
	kick    chan struct{}
	done    chan struct{}
}

func newWidgetSession(ctx context.Context, deps *Dependencies, send func(serverMessage) error) *widgetSession {
	id := uuid.NewString()
	return &widgetSession{
		id:      id,
		deps:    deps,
		send:    send,
		log:     LoggerFromCtx(ctx).With("session_id", id),
		ctx:     ctx,
		loaders: make(map[domain.Library]*maplib.SDKLoader),
		pending: make(map[string]func()),
		widgets: make(map[string]*sessionWidget),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// run flushes scene changes to the client until close is called.
func (s *widgetSession) run() {
	for {
		select {
		case <-s.kick:
			s.flush()
		case <-s.done:
			return
		}
	}
}

func (s *widgetSession) close() {
	s.mu.Lock()
	widgets := make([]*sessionWidget, 0, len(s.widgets))
	for _, w := range s.widgets {
		widgets = append(widgets, w)
	}
	s.widgets = map[string]*sessionWidget{}
	s.mu.Unlock()

	close(s.done)
	for _, w := range widgets {
		w.ctrl.Wait()
	}
}

func (s *widgetSession) requestFlush() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// flush sends the pending commands and field values of every widget.
func (s *widgetSession) flush() {
	s.mu.Lock()
	widgets := make([]*sessionWidget, 0, len(s.widgets))
	for _, w := range s.widgets {
		widgets = append(widgets, w)
	}
	s.mu.Unlock()

	for _, w := range widgets {
		if mh, ok := w.ctrl.Map(); ok {
			if cmds := w.adapter.Drain(mh); len(cmds) > 0 {
				s.emit(serverMessage{Type: msgCommands, MapID: w.mapID, Commands: cmds})
			}
		}
		if vals, dirty := w.fields.takeDirty(); dirty {
			s.emit(serverMessage{Type: msgFields, MapID: w.mapID, Fields: &vals})
		}
	}
}

func (s *widgetSession) emit(m serverMessage) {
	if err := s.send(m); err != nil {
		s.log.Debug("ws send failed", "type", m.Type, "error", err)
	}
}

func (s *widgetSession) fail(mapID, code string, err error) {
	s.emit(serverMessage{Type: msgError, MapID: mapID, Code: code, Message: err.Error()})
}

// handle dispatches one client message. A panic in a handler is logged and
// reported to the client; the session stays open.
func (s *widgetSession) handle(raw []byte) {
	var m clientMessage
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("widget handler panic", "type", m.Type, "map_id", m.MapID, "panic", r)
			s.fail(m.MapID, "internal_error", fmt.Errorf("%v", r))
		}
	}()

	if err := json.Unmarshal(raw, &m); err != nil {
		s.fail("", "bad_request", errors.New("invalid JSON"))
		return
	}

	switch m.Type {
	case msgInit:
		s.init(m)
	case msgSDKReady:
		s.sdkReady(m.Src)
	default:
		w, ok := s.widget(m.MapID)
		if !ok {
			s.fail(m.MapID, "not_found", fmt.Errorf("unknown map %q", m.MapID))
			return
		}
		if err := w.handle(s.ctx, m); err != nil {
			s.fail(m.MapID, "bad_request", err)
			return
		}
		if m.Type == msgClose {
			s.mu.Lock()
			delete(s.widgets, m.MapID)
			s.mu.Unlock()
			return
		}
	}
	s.requestFlush()
}

func (s *widgetSession) widget(mapID string) (*sessionWidget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.widgets[mapID]
	return w, ok
}

func (s *widgetSession) init(m clientMessage) {
	cfg, err := s.deps.decodeMapConfig(m.Config)
	if err == nil && m.MapID != "" && cfg.MapID == "" {
		cfg.MapID = m.MapID
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		var cfgErr *domain.ConfigError
		code := "bad_request"
		if errors.As(err, &cfgErr) {
			code = "config_error"
		}
		s.fail(m.MapID, code, err)
		return
	}
	if _, exists := s.widget(cfg.MapID); exists {
		s.fail(cfg.MapID, "conflict", fmt.Errorf("map %q already initialized", cfg.MapID))
		return
	}

	adapter, err := maplib.New(cfg.Library, s.mapOptions(cfg.Library), nil)
	if err != nil {
		s.fail(cfg.MapID, "config_error", err)
		return
	}

	gateway := s.deps.Geocode
	if gateway == nil {
		gateway = noGeocoder{}
	}
	fields := &sessionFields{flush: s.requestFlush}
	if m.Fields != nil {
		fields.lat, fields.lng, fields.address = m.Fields.Lat, m.Fields.Lng, m.Fields.Address
	}
	ctrl, err := usecases.NewWidgetSyncController(cfg, usecases.WidgetDeps{
		Maps:    adapter,
		Fields:  fields,
		Geocode: gateway,
		Confirm: fields,
		Events:  s.deps.Events,
		Logger:  s.log,
	})
	if err != nil {
		s.fail(cfg.MapID, "config_error", err)
		return
	}

	w := &sessionWidget{mapID: cfg.MapID, ctrl: ctrl, adapter: adapter, fields: fields}
	s.mu.Lock()
	s.widgets[cfg.MapID] = w
	s.mu.Unlock()

	ctrl.Init(s.ctx)
	s.emit(serverMessage{Type: msgReady, SessionID: s.id, MapID: cfg.MapID})
}

// mapOptions shares one loader per library across the page's widgets.
func (s *widgetSession) mapOptions(lib domain.Library) maplib.Options {
	opts := s.deps.Maps
	s.mu.Lock()
	l, ok := s.loaders[lib]
	if !ok {
		l = maplib.NewSDKLoader(maplib.ScriptURL(lib, opts), s.insertScript)
		s.loaders[lib] = l
	}
	s.mu.Unlock()
	opts.Loader = l
	return opts
}

// insertScript asks the page to load src and parks onLoad until the page
// reports sdk_ready for it.
func (s *widgetSession) insertScript(src string, onLoad func()) {
	s.mu.Lock()
	s.pending[src] = onLoad
	s.mu.Unlock()
	s.emit(serverMessage{Type: msgLoadSDK, Src: src})
}

func (s *widgetSession) sdkReady(src string) {
	s.mu.Lock()
	onLoad, ok := s.pending[src]
	delete(s.pending, src)
	s.mu.Unlock()
	if !ok {
		s.log.Debug("sdk_ready for a script that was not requested", "src", src)
		return
	}
	onLoad()
}

// noGeocoder finds nothing; widgets still sync marker and fields without it.
type noGeocoder struct{}

func (noGeocoder) Forward(context.Context, string) (domain.GeocodeResult, bool) {
	return domain.GeocodeResult{}, false
}

func (noGeocoder) Reverse(context.Context, domain.GeoPoint) (string, bool) { return "", false }

// sessionWidget is one editable map of the page.
type sessionWidget struct {
	mapID   string
	ctrl    *usecases.WidgetSyncController
	adapter *maplib.Adapter
	fields  *sessionFields
}

func (w *sessionWidget) handle(ctx context.Context, m clientMessage) error {
	switch m.Type {
	case msgFields:
		if m.Fields == nil {
			return errors.New("fields message without fields")
		}
		w.fields.update(*m.Fields)
		origin := usecases.OriginUser
		if m.Fields.Origin == "programmatic" {
			origin = usecases.OriginProgrammatic
		}
		w.ctrl.FieldsChanged(ctx, origin)
	case msgDrag, msgClick:
		if m.Point == nil {
			return fmt.Errorf("%s message without point", m.Type)
		}
		p, err := domain.NewGeoPoint(m.Point.Lat, m.Point.Lng)
		if err != nil {
			return err
		}
		if m.Type == msgDrag {
			w.adapter.DragMarker(ports.MarkerHandle(w.ctrl.State().MarkerID), p)
		} else if mh, ok := w.ctrl.Map(); ok {
			w.adapter.ClickMap(mh, p)
		}
	case msgAddress:
		w.ctrl.AddressSelected(ctx, m.Query)
	case msgFind:
		w.ctrl.FindMarker()
	case msgPlace:
		w.fields.setConfirmed(m.Confirmed)
		w.ctrl.PlaceMarker(ctx)
	case msgClose:
		w.ctrl.Wait()
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// sessionFields mirrors the page's input fields. Writes made by the
// controller are queued for the next flush.
type sessionFields struct {
	flush func()

	mu        sync.Mutex
	lat       string
	lng       string
	address   string
	dirty     bool
	confirmed bool
}

var (
	_ ports.WidgetFields = (*sessionFields)(nil)
	_ ports.Confirmer    = (*sessionFields)(nil)
)

func (f *sessionFields) Lat() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lat
}

func (f *sessionFields) Lng() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lng
}

func (f *sessionFields) Address() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.address
}

func (f *sessionFields) SetLatLng(lat, lng string) {
	f.mu.Lock()
	f.lat, f.lng, f.dirty = lat, lng, true
	f.mu.Unlock()
	f.flush()
}

func (f *sessionFields) SetAddress(address string) {
	f.mu.Lock()
	f.address, f.dirty = address, true
	f.mu.Unlock()
	f.flush()
}

// Confirm answers with what the page's own confirmation dialog returned
// for the place request being handled.
func (f *sessionFields) Confirm(context.Context, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmed
}

func (f *sessionFields) update(v fieldValues) {
	f.mu.Lock()
	f.lat, f.lng, f.address = v.Lat, v.Lng, v.Address
	f.mu.Unlock()
}

func (f *sessionFields) setConfirmed(ok bool) {
	f.mu.Lock()
	f.confirmed = ok
	f.mu.Unlock()
}

func (f *sessionFields) takeDirty() (fieldValues, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return fieldValues{}, false
	}
	f.dirty = false
	return fieldValues{Lat: f.lat, Lng: f.lng, Address: f.address}, true
}
