package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/geofield/internal/adapters/maplib"
	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/core/usecases"
)

// --- Fakes ---

type fakeFields struct {
	mu      sync.Mutex
	lat     string
	lng     string
	address string

	onSetLatLng  func()
	onSetAddress func(string)
	addrWritten  chan string
	latLngWrites int
}

func (f *fakeFields) Lat() string     { f.mu.Lock(); defer f.mu.Unlock(); return f.lat }
func (f *fakeFields) Lng() string     { f.mu.Lock(); defer f.mu.Unlock(); return f.lng }
func (f *fakeFields) Address() string { f.mu.Lock(); defer f.mu.Unlock(); return f.address }

func (f *fakeFields) SetLatLng(lat, lng string) {
	f.mu.Lock()
	f.lat, f.lng = lat, lng
	f.latLngWrites++
	hook := f.onSetLatLng
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (f *fakeFields) SetAddress(a string) {
	f.mu.Lock()
	f.address = a
	ch, hook := f.addrWritten, f.onSetAddress
	f.mu.Unlock()
	if hook != nil {
		hook(a)
	}
	if ch != nil {
		ch <- a
	}
}

func (f *fakeFields) set(lat, lng string) {
	f.mu.Lock()
	f.lat, f.lng = lat, lng
	f.mu.Unlock()
}

type stubGateway struct {
	mu           sync.Mutex
	forwardFn    func(ctx context.Context, address string) (domain.GeocodeResult, bool)
	reverseFn    func(ctx context.Context, p domain.GeoPoint, call int) (string, bool)
	reverseCalls []domain.GeoPoint
	forwardCalls []string
}

func (g *stubGateway) Forward(ctx context.Context, address string) (domain.GeocodeResult, bool) {
	g.mu.Lock()
	g.forwardCalls = append(g.forwardCalls, address)
	g.mu.Unlock()
	if g.forwardFn != nil {
		return g.forwardFn(ctx, address)
	}
	return domain.GeocodeResult{}, false
}

func (g *stubGateway) Reverse(ctx context.Context, p domain.GeoPoint) (string, bool) {
	g.mu.Lock()
	g.reverseCalls = append(g.reverseCalls, p)
	n := len(g.reverseCalls)
	g.mu.Unlock()
	if g.reverseFn != nil {
		return g.reverseFn(ctx, p, n)
	}
	return "", false
}

func (g *stubGateway) reverses() []domain.GeoPoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.GeoPoint(nil), g.reverseCalls...)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.PointChanged
}

func (m *mockPublisher) PublishPointChanged(_ context.Context, ev *domain.PointChanged) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

type confirmFunc func(ctx context.Context, prompt string) bool

func (f confirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// --- Helpers ---

func editableConfig() domain.MapInstanceConfig {
	cfg := domain.DefaultMapInstanceConfig("widget-1", domain.LibraryLeaflet)
	cfg.Center = domain.GeoPoint{Lat: 40, Lng: -3}
	cfg.Editable = true
	cfg.Fields = domain.FieldSelectors{Lat: "#lat", Lng: "#lng", Address: "#address"}
	return cfg
}

func newWidget(t *testing.T, cfg domain.MapInstanceConfig, fields *fakeFields, gw *stubGateway, extra ...func(*usecases.WidgetDeps)) (*usecases.WidgetSyncController, *maplib.Adapter) {
	t.Helper()
	adapter := maplib.NewLeaflet(maplib.Options{}, nil)
	deps := usecases.WidgetDeps{Maps: adapter, Fields: fields, Geocode: gw}
	for _, fn := range extra {
		fn(&deps)
	}
	ctl, err := usecases.NewWidgetSyncController(cfg, deps)
	if err != nil {
		t.Fatalf("NewWidgetSyncController: %v", err)
	}
	ctl.Init(context.Background())
	if _, ok := ctl.Map(); !ok {
		t.Fatalf("widget not built: %v", ctl.Err())
	}
	return ctl, adapter
}

// --- Tests ---

func TestWidget_FieldChangeReverseGeocodes(t *testing.T) {
	fields := &fakeFields{}
	gw := &stubGateway{reverseFn: func(_ context.Context, _ domain.GeoPoint, _ int) (string, bool) {
		return "Milan, Italy", true
	}}
	ctl, adapter := newWidget(t, editableConfig(), fields, gw)

	fields.set("45.0", "9.0")
	ctl.FieldsChanged(context.Background(), usecases.OriginUser)
	ctl.Wait()

	calls := gw.reverses()
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 reverse call, got %d", len(calls))
	}
	if calls[0] != (domain.GeoPoint{Lat: 45, Lng: 9}) {
		t.Errorf("reverse called with %v", calls[0])
	}
	if fields.Address() != "Milan, Italy" {
		t.Errorf("expected address 'Milan, Italy', got %q", fields.Address())
	}
	if fields.Lat() != "45.000000" || fields.Lng() != "9.000000" {
		t.Errorf("fields not normalized: %s, %s", fields.Lat(), fields.Lng())
	}
	mk := ports.MarkerHandle(ctl.State().MarkerID)
	if !adapter.MarkerPosition(mk).Equal6(domain.GeoPoint{Lat: 45, Lng: 9}) {
		t.Errorf("marker not moved: %v", adapter.MarkerPosition(mk))
	}
	if ctl.State().Sync != domain.StateIdle {
		t.Errorf("expected idle, got %s", ctl.State().Sync)
	}
}

func TestWidget_AddressSearch(t *testing.T) {
	fields := &fakeFields{}
	gw := &stubGateway{forwardFn: func(_ context.Context, address string) (domain.GeocodeResult, bool) {
		if address != "Paris" {
			return domain.GeocodeResult{}, false
		}
		return domain.GeocodeResult{Point: domain.GeoPoint{Lat: 48.8566, Lng: 2.3522}, FormattedAddress: "Paris, France"}, true
	}}
	ctl, adapter := newWidget(t, editableConfig(), fields, gw)

	ctl.AddressSelected(context.Background(), "Paris")
	ctl.Wait()

	mk := ports.MarkerHandle(ctl.State().MarkerID)
	if got := adapter.MarkerPosition(mk); !got.Equal6(domain.GeoPoint{Lat: 48.8566, Lng: 2.3522}) {
		t.Errorf("marker at %v", got)
	}
	if fields.Lat() != "48.856600" || fields.Lng() != "2.352200" {
		t.Errorf("expected 48.856600/2.352200, got %s/%s", fields.Lat(), fields.Lng())
	}
	if fields.Address() != "Paris, France" {
		t.Errorf("expected canonical address, got %q", fields.Address())
	}
	if len(gw.reverses()) != 0 {
		t.Error("address search must not reverse geocode")
	}
}

func TestWidget_NotFoundLeavesFieldsUnchanged(t *testing.T) {
	fields := &fakeFields{lat: "41.0", lng: "2.0", address: "Old address"}
	gw := &stubGateway{}
	ctl, _ := newWidget(t, editableConfig(), fields, gw)

	ctl.AddressSelected(context.Background(), "Nowhere")
	ctl.Wait()
	if fields.Lat() != "41.0" || fields.Address() != "Old address" {
		t.Errorf("fields changed on not found: %s %q", fields.Lat(), fields.Address())
	}

	fields.set("42", "3")
	ctl.FieldsChanged(context.Background(), usecases.OriginUser)
	ctl.Wait()
	if fields.Address() != "Old address" {
		t.Errorf("address overwritten on not found: %q", fields.Address())
	}
	if ctl.State().Sync != domain.StateIdle {
		t.Errorf("expected idle, got %s", ctl.State().Sync)
	}
}

func TestWidget_InvalidFieldsAreIgnored(t *testing.T) {
	fields := &fakeFields{}
	gw := &stubGateway{}
	ctl, _ := newWidget(t, editableConfig(), fields, gw)

	for _, c := range [][2]string{{"abc", "9"}, {"95", "9"}, {"45", "181"}, {"NaN", "1"}, {"", ""}} {
		fields.set(c[0], c[1])
		ctl.FieldsChanged(context.Background(), usecases.OriginUser)
	}
	ctl.Wait()
	if n := len(gw.reverses()); n != 0 {
		t.Errorf("expected no reverse calls, got %d", n)
	}
}

func TestWidget_LastRequestWins(t *testing.T) {
	release := make(chan struct{})
	fields := &fakeFields{addrWritten: make(chan string, 4)}
	gw := &stubGateway{reverseFn: func(_ context.Context, p domain.GeoPoint, _ int) (string, bool) {
		if p.Lat == 45 {
			<-release
			return "First", true
		}
		return "Second", true
	}}
	ctl, adapter := newWidget(t, editableConfig(), fields, gw)

	fields.set("45", "9")
	ctl.FieldsChanged(context.Background(), usecases.OriginUser)

	mk := ports.MarkerHandle(ctl.State().MarkerID)
	adapter.DragMarker(mk, domain.GeoPoint{Lat: 46, Lng: 10})

	if got := <-fields.addrWritten; got != "Second" {
		t.Fatalf("expected newer response first, got %q", got)
	}
	close(release)
	ctl.Wait()

	if fields.Address() != "Second" {
		t.Errorf("stale response applied: %q", fields.Address())
	}
	if fields.Lat() != "46.000000" || fields.Lng() != "10.000000" {
		t.Errorf("drag did not write fields: %s/%s", fields.Lat(), fields.Lng())
	}
	if ctl.State().Sync != domain.StateIdle {
		t.Errorf("expected idle, got %s", ctl.State().Sync)
	}
}

func TestWidget_ProgrammaticWritesDoNotRetrigger(t *testing.T) {
	fields := &fakeFields{}
	gw := &stubGateway{}
	ctl, _ := newWidget(t, editableConfig(), fields, gw)

	// A host that fires change events for every write, including ours.
	echoes := 0
	fields.onSetLatLng = func() {
		echoes++
		ctl.FieldsChanged(context.Background(), usecases.OriginProgrammatic)
	}

	fields.set("45.1234567", "9.7654321")
	ctl.FieldsChanged(context.Background(), usecases.OriginUser)
	ctl.Wait()
	// The browser echoes the normalized write back as a user change event.
	ctl.FieldsChanged(context.Background(), usecases.OriginUser)
	ctl.Wait()

	if echoes != 1 {
		t.Errorf("expected 1 field write, got %d", echoes)
	}
	if n := len(gw.reverses()); n != 1 {
		t.Errorf("expected 1 reverse call, got %d", n)
	}
	if fields.Lat() != "45.123457" {
		t.Errorf("expected 6-decimal write, got %s", fields.Lat())
	}
}

func TestWidget_UserEditDuringAddressWriteIsApplied(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fields := &fakeFields{}
	fields.onSetAddress = func(string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	gw := &stubGateway{reverseFn: func(_ context.Context, p domain.GeoPoint, _ int) (string, bool) {
		if p.Lat == 46 {
			return "Bern", true
		}
		return "Milan", true
	}}
	ctl, adapter := newWidget(t, editableConfig(), fields, gw)

	fields.set("45", "9")
	ctl.FieldsChanged(context.Background(), usecases.OriginUser)
	<-entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		fields.set("46", "10")
		ctl.FieldsChanged(context.Background(), usecases.OriginUser)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done
	ctl.Wait()

	mk := ports.MarkerHandle(ctl.State().MarkerID)
	if got := adapter.MarkerPosition(mk); !got.Equal6(domain.GeoPoint{Lat: 46, Lng: 10}) {
		t.Errorf("user edit lost: marker at %v", got)
	}
	if n := len(gw.reverses()); n != 2 {
		t.Errorf("expected 2 reverse calls, got %d", n)
	}
	if fields.Lat() != "46.000000" || fields.Address() != "Bern" {
		t.Errorf("fields disagree with the marker: %s %q", fields.Lat(), fields.Address())
	}
}

func TestWidget_MapClickMovesMarker(t *testing.T) {
	fields := &fakeFields{}
	gw := &stubGateway{reverseFn: func(context.Context, domain.GeoPoint, int) (string, bool) { return "Clicked", true }}
	ctl, adapter := newWidget(t, editableConfig(), fields, gw)

	mh, _ := ctl.Map()
	adapter.ClickMap(mh, domain.GeoPoint{Lat: 10.5, Lng: 20.25})
	ctl.Wait()

	mk := ports.MarkerHandle(ctl.State().MarkerID)
	if !adapter.MarkerPosition(mk).Equal6(domain.GeoPoint{Lat: 10.5, Lng: 20.25}) {
		t.Errorf("marker at %v", adapter.MarkerPosition(mk))
	}
	if fields.Lat() != "10.500000" || fields.Lng() != "20.250000" || fields.Address() != "Clicked" {
		t.Errorf("fields: %s %s %q", fields.Lat(), fields.Lng(), fields.Address())
	}
}

func TestWidget_ReadOnlyIgnoresClicks(t *testing.T) {
	cfg := editableConfig()
	cfg.Editable = false
	fields := &fakeFields{}
	gw := &stubGateway{}
	ctl, adapter := newWidget(t, cfg, fields, gw)

	mh, _ := ctl.Map()
	adapter.ClickMap(mh, domain.GeoPoint{Lat: 10, Lng: 20})
	ctl.Wait()
	if fields.latLngWrites != 0 || len(gw.reverses()) != 0 {
		t.Error("click on a read-only map changed the widget")
	}
}

func TestWidget_FindMarkerPans(t *testing.T) {
	fields := &fakeFields{lat: "45", lng: "9"}
	ctl, adapter := newWidget(t, editableConfig(), fields, &stubGateway{})
	mh, _ := ctl.Map()
	adapter.PanTo(mh, domain.GeoPoint{Lat: 0, Lng: 0})
	zoom := adapter.Zoom(mh)
	adapter.Drain(mh)

	ctl.FindMarker()

	if !adapter.Center(mh).Equal6(domain.GeoPoint{Lat: 45, Lng: 9}) {
		t.Errorf("expected center on marker, got %v", adapter.Center(mh))
	}
	if adapter.Zoom(mh) != zoom {
		t.Error("find marker changed zoom")
	}
	cmds := adapter.Drain(mh)
	if len(cmds) != 1 || cmds[0].Op != "panTo" {
		t.Errorf("expected a single panTo, got %+v", cmds)
	}
}

func TestWidget_PlaceMarker(t *testing.T) {
	cfg := editableConfig()
	cfg.ConfirmPlaceMarker = true

	var answer bool
	fields := &fakeFields{}
	gw := &stubGateway{reverseFn: func(context.Context, domain.GeoPoint, int) (string, bool) { return "Center", true }}
	ctl, adapter := newWidget(t, cfg, fields, gw, func(d *usecases.WidgetDeps) {
		d.Confirm = confirmFunc(func(context.Context, string) bool { return answer })
	})
	mh, _ := ctl.Map()
	adapter.PanTo(mh, domain.GeoPoint{Lat: 12, Lng: 34})

	if ctl.PlaceMarker(context.Background()) {
		t.Fatal("placed without confirmation")
	}
	answer = true
	if !ctl.PlaceMarker(context.Background()) {
		t.Fatal("confirmed placement refused")
	}
	ctl.Wait()

	mk := ports.MarkerHandle(ctl.State().MarkerID)
	if !adapter.MarkerPosition(mk).Equal6(domain.GeoPoint{Lat: 12, Lng: 34}) {
		t.Errorf("marker at %v", adapter.MarkerPosition(mk))
	}
	if fields.Lat() != "12.000000" || fields.Address() != "Center" {
		t.Errorf("fields: %s %q", fields.Lat(), fields.Address())
	}
}

func TestWidget_InitFromFields(t *testing.T) {
	fields := &fakeFields{lat: "43.263", lng: "-2.935"}
	ctl, adapter := newWidget(t, editableConfig(), fields, &stubGateway{})

	mk := ports.MarkerHandle(ctl.State().MarkerID)
	if !adapter.MarkerPosition(mk).Equal6(domain.GeoPoint{Lat: 43.263, Lng: -2.935}) {
		t.Errorf("marker not placed from fields: %v", adapter.MarkerPosition(mk))
	}
	mh, _ := ctl.Map()
	if adapter.Zoom(mh) != editableConfig().FocusZoom() {
		t.Errorf("expected focus zoom, got %d", adapter.Zoom(mh))
	}
}

func TestWidget_WaitsForSDK(t *testing.T) {
	var onLoad func()
	adapter := maplib.NewGoogle(maplib.Options{}, func(_ string, ready func()) { onLoad = ready })
	cfg := editableConfig()
	cfg.Library = domain.LibraryGoogle

	ctl, err := usecases.NewWidgetSyncController(cfg, usecases.WidgetDeps{Maps: adapter, Fields: &fakeFields{}, Geocode: &stubGateway{}})
	if err != nil {
		t.Fatal(err)
	}
	ctl.Init(context.Background())
	if _, ok := ctl.Map(); ok {
		t.Fatal("map built before the SDK was ready")
	}
	onLoad()
	if _, ok := ctl.Map(); !ok {
		t.Fatal("map not built after the SDK became ready")
	}
}

func TestWidget_RejectsBadConfig(t *testing.T) {
	cfg := editableConfig()
	cfg.AdditionalOptions = []byte(`{not json`)
	_, err := usecases.NewWidgetSyncController(cfg, usecases.WidgetDeps{Maps: maplib.NewLeaflet(maplib.Options{}, nil)})
	var ce *domain.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestWidget_PublishesPointChanges(t *testing.T) {
	pub := &mockPublisher{}
	fields := &fakeFields{}
	ctl, adapter := newWidget(t, editableConfig(), fields, &stubGateway{}, func(d *usecases.WidgetDeps) {
		d.Events = pub
	})

	mk := ports.MarkerHandle(ctl.State().MarkerID)
	adapter.DragMarker(mk, domain.GeoPoint{Lat: 40.001, Lng: -3})
	ctl.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Trigger != usecases.TriggerDrag || ev.MapID != "widget-1" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.DistanceMeters < 100 || ev.DistanceMeters > 120 {
		t.Errorf("expected ~111m moved, got %v", ev.DistanceMeters)
	}
}
