package http

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/geofield/internal/adapters/maplib"
	"github.com/samirrijal/geofield/internal/core/domain"
)

type recorder struct {
	mu   sync.Mutex
	msgs []serverMessage
}

func (r *recorder) send(m serverMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) find(match func(serverMessage) bool) (serverMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if match(m) {
			return m, true
		}
	}
	return serverMessage{}, false
}

func (r *recorder) waitFor(t *testing.T, what string, match func(serverMessage) bool) serverMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m, ok := r.find(match); ok {
			return m
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Fatalf("timed out waiting for %s; got %+v", what, r.msgs)
	return serverMessage{}
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

type sessionGeocoder struct {
	address string
	result  domain.GeocodeResult
}

func (g sessionGeocoder) Forward(context.Context, string) (domain.GeocodeResult, bool) {
	return g.result, g.result.FormattedAddress != ""
}

func (g sessionGeocoder) Reverse(context.Context, domain.GeoPoint) (string, bool) {
	return g.address, g.address != ""
}

func newTestSession(t *testing.T, gw sessionGeocoder) (*widgetSession, *recorder) {
	t.Helper()
	rec := &recorder{}
	deps := &Dependencies{Geocode: gw, DefaultLibrary: domain.LibraryLeaflet}
	s := newWidgetSession(context.Background(), deps, rec.send)
	go s.run()
	t.Cleanup(s.close)
	return s, rec
}

func handleJSON(t *testing.T, s *widgetSession, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	s.handle(raw)
}

func ofType(typ string) func(serverMessage) bool {
	return func(m serverMessage) bool { return m.Type == typ }
}

const widgetConfig = `{"map_id":"w1","editable":true,"center":{"lat":40,"lng":-3},
	"fields":{"lat":"#lat","lng":"#lng","address":"#address"},"confirm_place_marker":true}`

// initWidget runs the init handshake through sdk_ready.
func initWidget(t *testing.T, s *widgetSession, rec *recorder) {
	t.Helper()
	handleJSON(t, s, map[string]any{
		"type":   "init",
		"config": json.RawMessage(widgetConfig),
		"fields": map[string]string{"lat": "45", "lng": "9"},
	})
	load := rec.waitFor(t, "load_sdk", ofType(msgLoadSDK))
	if load.Src != maplib.ScriptURL(domain.LibraryLeaflet, maplib.Options{}) {
		t.Fatalf("unexpected sdk src %q", load.Src)
	}
	if _, ok := rec.find(ofType(msgCommands)); ok {
		t.Fatal("no commands expected before the sdk is ready")
	}
	handleJSON(t, s, map[string]any{"type": "sdk_ready", "src": load.Src})
	rec.waitFor(t, "createMap", func(m serverMessage) bool {
		return m.Type == msgCommands && len(m.Commands) > 0 && m.Commands[0].Op == "createMap"
	})
}

func TestSession_InitWaitsForSDK(t *testing.T) {
	s, rec := newTestSession(t, sessionGeocoder{})
	initWidget(t, s, rec)

	ready := rec.waitFor(t, "ready", ofType(msgReady))
	if ready.MapID != "w1" || ready.SessionID != s.id {
		t.Errorf("unexpected ready message %+v", ready)
	}
	w, _ := s.widget("w1")
	if st := w.ctrl.State(); !st.Point.Equal6(domain.GeoPoint{Lat: 45, Lng: 9}) {
		t.Errorf("widget should start at the field point, got %v", st.Point)
	}
}

func TestSession_SecondWidgetSharesLoader(t *testing.T) {
	s, rec := newTestSession(t, sessionGeocoder{})
	initWidget(t, s, rec)
	rec.reset()

	cfg := `{"map_id":"w2","center":{"lat":1,"lng":1}}`
	handleJSON(t, s, map[string]any{"type": "init", "config": json.RawMessage(cfg)})
	rec.waitFor(t, "w2 commands", func(m serverMessage) bool { return m.Type == msgCommands && m.MapID == "w2" })
	if _, ok := rec.find(ofType(msgLoadSDK)); ok {
		t.Error("the sdk must be requested once per page")
	}
}

func TestSession_DragWritesFieldsAndAddress(t *testing.T) {
	s, rec := newTestSession(t, sessionGeocoder{address: "Lyon, France"})
	initWidget(t, s, rec)
	rec.reset()

	handleJSON(t, s, map[string]any{"type": "drag", "map_id": "w1", "point": map[string]float64{"lat": 45.764043, "lng": 4.835659}})
	rec.waitFor(t, "address write", func(m serverMessage) bool {
		return m.Type == msgFields && m.Fields.Address == "Lyon, France"
	})
	m, _ := rec.find(ofType(msgFields))
	if m.Fields.Lat != "45.764043" || m.Fields.Lng != "4.835659" {
		t.Errorf("unexpected field write %+v", m.Fields)
	}
}

func TestSession_AddressSearchMovesMarker(t *testing.T) {
	gw := sessionGeocoder{result: domain.GeocodeResult{
		Point:            domain.GeoPoint{Lat: 48.8566, Lng: 2.3522},
		FormattedAddress: "Paris, France",
	}}
	s, rec := newTestSession(t, gw)
	initWidget(t, s, rec)
	rec.reset()

	handleJSON(t, s, map[string]any{"type": "address", "map_id": "w1", "q": "Paris"})
	rec.waitFor(t, "fields", func(m serverMessage) bool {
		return m.Type == msgFields && m.Fields.Lat == "48.856600" && m.Fields.Address == "Paris, France"
	})
	rec.waitFor(t, "setPosition", func(m serverMessage) bool {
		for _, c := range m.Commands {
			if c.Op == "setPosition" {
				return true
			}
		}
		return false
	})
}

func TestSession_PlaceMarkerNeedsConfirmation(t *testing.T) {
	s, rec := newTestSession(t, sessionGeocoder{})
	initWidget(t, s, rec)
	w, _ := s.widget("w1")

	handleJSON(t, s, map[string]any{"type": "click", "map_id": "w1", "point": map[string]float64{"lat": 10, "lng": 10}})
	before := w.ctrl.State().Point
	if !before.Equal6(domain.GeoPoint{Lat: 10, Lng: 10}) {
		t.Fatalf("click should move the marker, got %v", before)
	}

	handleJSON(t, s, map[string]any{"type": "place", "map_id": "w1", "confirmed": false})
	if got := w.ctrl.State().Point; got != before {
		t.Errorf("unconfirmed place moved the marker to %v", got)
	}

	handleJSON(t, s, map[string]any{"type": "place", "map_id": "w1", "confirmed": true})
	mh, _ := w.ctrl.Map()
	if got := w.ctrl.State().Point; got.Equal6(before) || !got.Equal6(w.adapter.Center(mh)) {
		t.Errorf("confirmed place should move the marker to the center, got %v", got)
	}
}

func TestSession_Errors(t *testing.T) {
	s, rec := newTestSession(t, sessionGeocoder{})

	s.handle([]byte("{"))
	if m := rec.waitFor(t, "bad json", ofType(msgError)); m.Code != "bad_request" {
		t.Errorf("expected bad_request, got %+v", m)
	}
	rec.reset()

	handleJSON(t, s, map[string]any{"type": "find", "map_id": "nope"})
	if m := rec.waitFor(t, "unknown map", ofType(msgError)); m.Code != "not_found" {
		t.Errorf("expected not_found, got %+v", m)
	}
	rec.reset()

	handleJSON(t, s, map[string]any{"type": "init", "config": json.RawMessage(`{"map_id":"w","library":"bing"}`)})
	if m := rec.waitFor(t, "config error", ofType(msgError)); m.Code != "config_error" {
		t.Errorf("expected config_error, got %+v", m)
	}
}

func TestSession_CloseForgetsWidget(t *testing.T) {
	s, rec := newTestSession(t, sessionGeocoder{})
	initWidget(t, s, rec)

	handleJSON(t, s, map[string]any{"type": "close", "map_id": "w1"})
	if _, ok := s.widget("w1"); ok {
		t.Error("widget still registered after close")
	}
}
