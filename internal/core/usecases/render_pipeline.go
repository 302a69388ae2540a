package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/pkg/logging"
	"github.com/samirrijal/geofield/internal/pkg/metrics"
	"github.com/samirrijal/geofield/internal/pkg/telemetry"
)

// Bounds policies applied in the last render step.
const (
	BoundsOverride    = "center_override"
	BoundsSinglePoint = "single_point"
	BoundsFit         = "fit_bounds"
	BoundsDefault     = "default_center"
)

// AdapterFactory returns a fresh adapter for one render.
type AdapterFactory func(lib domain.Library) (ports.MapLibraryAdapter, error)

// PopupBuilder renders the popup HTML of a feature. It may itself render
// maps; the render guard in ctx stops a map from embedding itself.
type PopupBuilder func(ctx context.Context, f domain.GeoFeature) (string, error)

// RenderRequest is one listing map to render. Exactly one of Features,
// GeoJSON and Source supplies the data.
type RenderRequest struct {
	Config   domain.MapInstanceConfig
	Features *domain.FeatureCollection
	GeoJSON  json.RawMessage
	Source   *ports.FeatureQuery
	Themer   *domain.ThemerSelection
}

// RenderedMarker is one point drawn on the map.
type RenderedMarker struct {
	Handle    ports.MarkerHandle `json:"handle"`
	FeatureID string             `json:"feature_id"`
	Point     domain.GeoPoint    `json:"point"`
	Icon      string             `json:"icon,omitempty"`
	Themed    bool               `json:"themed"`
	Popup     bool               `json:"popup"`
}

// RenderedOverlay is one polyline or polygon drawn on the map.
type RenderedOverlay struct {
	Handle    ports.OverlayHandle `json:"handle"`
	FeatureID string              `json:"feature_id"`
	Kind      ports.OverlayKind   `json:"kind"`
	Vertices  int                 `json:"vertices"`
}

// RenderResult is everything the browser runtime needs to draw the map.
type RenderResult struct {
	MapID        string                                 `json:"map_id"`
	Library      domain.Library                         `json:"library"`
	Map          ports.MapHandle                        `json:"map,omitempty"`
	Commands     []ports.Command                        `json:"commands"`
	Markers      []RenderedMarker                       `json:"markers"`
	Overlays     []RenderedOverlay                      `json:"overlays"`
	Clusters     []ports.Cluster                        `json:"clusters,omitempty"`
	Spiderfied   map[ports.MarkerHandle]domain.GeoPoint `json:"spiderfied,omitempty"`
	Center       domain.GeoPoint                        `json:"center"`
	Zoom         int                                    `json:"zoom"`
	BoundsPolicy string                                 `json:"bounds_policy,omitempty"`
	Warnings     []string                               `json:"warnings,omitempty"`
	Diagnostics  []string                               `json:"diagnostics,omitempty"`
	Legend       *domain.LegendTable                    `json:"legend,omitempty"`
	Message      string                                 `json:"message,omitempty"`
	Hidden       bool                                   `json:"hidden"`
	Features     domain.FeatureCollection               `json:"features"`
}

// FeatureRenderPipeline turns a feature collection into map commands.
type FeatureRenderPipeline struct {
	adapters AdapterFactory
	themers  *ThemerRegistry
	repo     ports.FeatureRepository
	classes  ports.ClassificationSource
	resolver ports.IconResolver
	icons    ports.IconValidator
	popup    PopupBuilder
	log      *slog.Logger
}

// PipelineOption configures optional collaborators.
type PipelineOption func(*FeatureRenderPipeline)

func WithFeatureRepository(r ports.FeatureRepository) PipelineOption {
	return func(p *FeatureRenderPipeline) { p.repo = r }
}

func WithClassificationSource(c ports.ClassificationSource) PipelineOption {
	return func(p *FeatureRenderPipeline) { p.classes = c }
}

func WithIconResolver(r ports.IconResolver) PipelineOption {
	return func(p *FeatureRenderPipeline) { p.resolver = r }
}

func WithIconValidator(v ports.IconValidator) PipelineOption {
	return func(p *FeatureRenderPipeline) { p.icons = v }
}

func WithPopupBuilder(b PopupBuilder) PipelineOption {
	return func(p *FeatureRenderPipeline) { p.popup = b }
}

func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *FeatureRenderPipeline) { p.log = l }
}

// NewFeatureRenderPipeline creates a new FeatureRenderPipeline.
func NewFeatureRenderPipeline(adapters AdapterFactory, themers *ThemerRegistry, opts ...PipelineOption) *FeatureRenderPipeline {
	p := &FeatureRenderPipeline{
		adapters: adapters,
		themers:  themers,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Render draws one listing map. A *domain.ConfigError or an error wrapping
// domain.ErrRecursiveRender means nothing was drawn; every other problem is
// recovered and reported in Warnings or Diagnostics.
func (p *FeatureRenderPipeline) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	cfg := req.Config
	ctx, err := enterRender(ctx, cfg.MapID)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clusterOpts, _ := domain.DecodeRawOptions("clustering.options", cfg.Clustering.RawOptions)
	spiderOpts, _ := domain.DecodeRawOptions("spiderfy.options", cfg.Spiderfy.RawOptions)

	ctx, span := telemetry.Tracer().Start(ctx, "render.map")
	defer span.End()
	span.SetAttributes(
		attribute.String(telemetry.AttrMapID, cfg.MapID),
		attribute.String(telemetry.AttrLibrary, string(cfg.Library)),
		attribute.Int(telemetry.AttrRenderDepth, RenderDepth(ctx)),
	)
	start := time.Now()
	defer func() {
		metrics.RenderDuration.WithLabelValues(string(cfg.Library)).Observe(time.Since(start).Seconds())
	}()

	log := logging.FromContext(ctx, p.log).With("map_id", cfg.MapID)
	res := &RenderResult{
		MapID:    cfg.MapID,
		Library:  cfg.Library,
		Commands: []ports.Command{},
		Markers:  []RenderedMarker{},
		Overlays: []RenderedOverlay{},
	}

	fc, warnings, err := p.collect(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for _, w := range warnings {
		p.geometryWarning(log, res, w)
	}

	// Step 1: empty behaviour, decided by configuration alone.
	if len(fc.Features) == 0 {
		switch cfg.Empty.Behavior {
		case domain.EmptyHide:
			res.Hidden = true
			return res, nil
		case domain.EmptyMessage:
			res.Message = cfg.Empty.Message
			return res, nil
		}
	}

	// Step 2: theming.
	if req.Themer != nil && req.Themer.PluginID != "" {
		fc.Features = p.theme(ctx, log, res, fc.Features, *req.Themer)
		span.SetAttributes(attribute.String(telemetry.AttrThemer, req.Themer.PluginID))
	}

	adapter, err := p.adapters(cfg.Library)
	if err != nil {
		return nil, err
	}
	mh, err := adapter.CreateMap(cfg.MapID, cfg)
	if err != nil {
		return nil, err
	}
	res.Map = mh

	// Step 3: markers, overlays, popups and bounds.
	defaultIcon := p.checkIcon(ctx, log, res, cfg.Marker.IconURL)
	var (
		points  []domain.GeoPoint
		handles []ports.MarkerHandle
		checked = make(map[string]string)
	)
	for _, f := range fc.Features {
		if err := domain.ValidateGeometry(f.Geometry); err != nil {
			p.geometryWarning(log, res, &domain.GeometryError{FeatureID: f.ID, Err: err})
			continue
		}
		icon := f.Icon()
		if icon != "" && !f.Themed() {
			// Icons supplied with the input go through the same check as themed ones.
			url, seen := checked[icon]
			if !seen {
				url = p.checkIcon(ctx, log, res, icon)
				checked[icon] = url
			}
			icon = url
		}
		if icon == "" {
			icon = defaultIcon
		}
		popupHTML := p.popupFor(ctx, log, cfg, f)

		for _, pt := range pointsOf(f.Geometry) {
			gp := domain.FromOrb(pt)
			mk, err := adapter.CreateMarker(mh, gp, ports.MarkerOptions{IconURL: icon, Title: f.ID})
			if err != nil {
				return nil, fmt.Errorf("create marker: %w", err)
			}
			if popupHTML != "" {
				adapter.BindPopup(string(mk), popupHTML)
			}
			res.Markers = append(res.Markers, RenderedMarker{
				Handle: mk, FeatureID: f.ID, Point: gp, Icon: icon, Themed: f.Themed(), Popup: popupHTML != "",
			})
			handles = append(handles, mk)
			points = append(points, gp)
			metrics.FeaturesRendered.WithLabelValues(string(cfg.Library), "marker").Inc()
		}
		for _, ov := range overlaysOf(f.Geometry) {
			vertices := make([]domain.GeoPoint, len(ov.vertices))
			for i, v := range ov.vertices {
				vertices[i] = domain.FromOrb(v)
			}
			oh, err := adapter.AddOverlay(mh, ov.kind, vertices)
			if err != nil {
				return nil, fmt.Errorf("add overlay: %w", err)
			}
			if popupHTML != "" {
				adapter.BindPopup(string(oh), popupHTML)
			}
			res.Overlays = append(res.Overlays, RenderedOverlay{Handle: oh, FeatureID: f.ID, Kind: ov.kind, Vertices: len(vertices)})
			points = append(points, vertices...)
			metrics.FeaturesRendered.WithLabelValues(string(cfg.Library), string(ov.kind)).Inc()
		}
	}

	// Step 4: clustering and spiderfying.
	clustering := cfg.Clustering.Enabled && len(handles) > 1
	spiderfying := cfg.Spiderfy.Enabled && len(handles) > 1
	if clustering {
		if _, err := adapter.Cluster(mh, handles, clusterOpts); err != nil {
			return nil, err
		}
	}
	if spiderfying {
		if _, err := adapter.Spiderfy(mh, handles, spiderOpts); err != nil {
			return nil, err
		}
	}

	// Step 5: bounds policy.
	switch distinct := domain.DistinctPoints(points); {
	case fc.Center != nil:
		adapter.PanTo(mh, *fc.Center)
		res.BoundsPolicy = BoundsOverride
	case len(distinct) == 1:
		adapter.PanTo(mh, distinct[0])
		res.BoundsPolicy = BoundsSinglePoint
	case len(distinct) > 1:
		adapter.FitBounds(mh, points)
		res.BoundsPolicy = BoundsFit
	default:
		res.BoundsPolicy = BoundsDefault
	}
	if cfg.Zoom.ForceInitial && adapter.Zoom(mh) != cfg.Zoom.Initial {
		adapter.SetZoom(mh, cfg.Zoom.Initial)
	}

	// Groups depend on the zoom the map ends on.
	if clustering || spiderfying {
		res.Clusters, res.Spiderfied = adapter.Groups(mh)
	}

	res.Commands = adapter.Drain(mh)
	res.Center = adapter.Center(mh)
	res.Zoom = adapter.Zoom(mh)
	res.Features = fc

	span.SetAttributes(
		attribute.Int(telemetry.AttrFeatures, len(res.Markers)+len(res.Overlays)),
		attribute.Int(telemetry.AttrWarnings, len(res.Warnings)),
	)
	log.Debug("map rendered",
		"markers", len(res.Markers),
		"overlays", len(res.Overlays),
		"clusters", len(res.Clusters),
		"warnings", len(res.Warnings),
		"bounds", res.BoundsPolicy,
	)
	return res, nil
}

// Legend builds the legend of a themer selection on its own.
func (p *FeatureRenderPipeline) Legend(sel domain.ThemerSelection) (domain.LegendTable, error) {
	plugin, err := p.themers.Instantiate(sel.PluginID, sel.Settings)
	if err != nil {
		return domain.LegendTable{}, err
	}
	cfg := domain.LegendConfig{}
	if sel.Legend != nil {
		cfg = *sel.Legend
	}
	table, err := plugin.Legend(cfg)
	if err != nil {
		return domain.LegendTable{}, &domain.PluginError{PluginID: sel.PluginID, Op: "legend", Err: err}
	}
	return table, nil
}

func (p *FeatureRenderPipeline) collect(ctx context.Context, req RenderRequest) (domain.FeatureCollection, []error, error) {
	switch {
	case req.Features != nil:
		return *req.Features, nil, nil
	case len(req.GeoJSON) > 0:
		return domain.ParseFeatureCollection(req.GeoJSON)
	case req.Source != nil:
		if p.repo == nil {
			return domain.FeatureCollection{}, nil, errors.New("no feature repository configured")
		}
		items, err := p.repo.List(ctx, *req.Source)
		if err != nil {
			return domain.FeatureCollection{}, nil, fmt.Errorf("list stored geometries: %w", err)
		}
		fc, warnings := domain.BuildFeatureCollection(items)
		return fc, warnings, nil
	}
	return domain.FeatureCollection{}, nil, nil
}

func (p *FeatureRenderPipeline) theme(ctx context.Context, log *slog.Logger, res *RenderResult, features []domain.GeoFeature, sel domain.ThemerSelection) []domain.GeoFeature {
	plugin, err := p.themers.Instantiate(sel.PluginID, sel.Settings)
	if err != nil {
		log.Warn("themer unavailable, rendering default icons", "error", err)
		res.Diagnostics = append(res.Diagnostics, err.Error())
		metrics.ThemingFallbacks.WithLabelValues("instantiate").Add(float64(len(features)))
		if sel.Legend != nil {
			res.Diagnostics = append(res.Diagnostics, "legend omitted: "+err.Error())
		}
		return features
	}

	entities := p.entities(ctx, log, features)
	resolved := make(map[string]string)
	out := make([]domain.GeoFeature, len(features))
	for i, f := range features {
		out[i] = f
		var entity *domain.Entity
		if id, ok := f.Property("entity_id"); ok {
			if e, ok := entities[id]; ok {
				entity = &e
			}
		}
		key, err := plugin.Classify(f, entity)
		if err != nil {
			perr := &domain.PluginError{PluginID: sel.PluginID, Op: "classify", Err: err}
			log.Warn("classification failed, using default icon", "feature", f.ID, "error", perr)
			metrics.ThemingFallbacks.WithLabelValues("classify").Inc()
			continue
		}
		ref, ok := plugin.IconFor(key)
		if !ok {
			continue
		}
		url, seen := resolved[ref]
		if !seen {
			url = p.resolveIcon(ctx, log, res, ref)
			resolved[ref] = url
		}
		if url == "" {
			metrics.ThemingFallbacks.WithLabelValues("icon").Inc()
			continue
		}
		out[i] = f.WithIcon(url, true)
	}

	if sel.Legend != nil {
		table, err := plugin.Legend(*sel.Legend)
		if err != nil {
			perr := &domain.PluginError{PluginID: sel.PluginID, Op: "legend", Err: err}
			log.Warn("legend omitted", "error", perr)
			res.Diagnostics = append(res.Diagnostics, "legend omitted: "+perr.Error())
		} else {
			res.Legend = &table
		}
	}
	return out
}

func (p *FeatureRenderPipeline) entities(ctx context.Context, log *slog.Logger, features []domain.GeoFeature) map[string]domain.Entity {
	if p.classes == nil {
		return nil
	}
	var ids []string
	for _, f := range features {
		if id, ok := f.Property("entity_id"); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	entities, err := p.classes.Entities(ctx, ids)
	if err != nil {
		log.Warn("classification source failed", "error", err)
		return nil
	}
	return entities
}

// resolveIcon turns an icon reference into a checked URL, "" on failure.
func (p *FeatureRenderPipeline) resolveIcon(ctx context.Context, log *slog.Logger, res *RenderResult, ref string) string {
	url := ref
	if p.resolver != nil {
		u, err := p.resolver.Resolve(ctx, ref)
		if err != nil {
			ierr := &domain.IconResolutionError{URL: ref, Err: err}
			log.Warn("icon falls back to default marker", "error", ierr)
			res.Diagnostics = append(res.Diagnostics, ierr.Error())
			return ""
		}
		url = u
	}
	return p.checkIcon(ctx, log, res, url)
}

func (p *FeatureRenderPipeline) checkIcon(ctx context.Context, log *slog.Logger, res *RenderResult, url string) string {
	if url == "" || p.icons == nil {
		return url
	}
	if err := p.icons.Validate(ctx, url); err != nil {
		ierr := &domain.IconResolutionError{URL: url, Err: err}
		log.Warn("icon falls back to default marker", "error", ierr)
		res.Diagnostics = append(res.Diagnostics, ierr.Error())
		return ""
	}
	return url
}

func (p *FeatureRenderPipeline) popupFor(ctx context.Context, log *slog.Logger, cfg domain.MapInstanceConfig, f domain.GeoFeature) string {
	desc := f.Description()
	if !cfg.Popup || desc == "" {
		return ""
	}
	if p.popup == nil {
		return desc
	}
	out, err := p.popup(ctx, f)
	if err != nil {
		log.Warn("popup builder failed, using plain description", "feature", f.ID, "error", err)
		return html.EscapeString(desc)
	}
	return out
}

func (p *FeatureRenderPipeline) geometryWarning(log *slog.Logger, res *RenderResult, err error) {
	log.Warn("skipping feature", "error", err)
	res.Warnings = append(res.Warnings, err.Error())
	metrics.GeometryWarnings.Inc()
}

type overlayShape struct {
	kind     ports.OverlayKind
	vertices []orb.Point
}

func pointsOf(g orb.Geometry) []orb.Point {
	switch t := g.(type) {
	case orb.Point:
		return []orb.Point{t}
	case orb.MultiPoint:
		return t
	}
	return nil
}

func overlaysOf(g orb.Geometry) []overlayShape {
	switch t := g.(type) {
	case orb.LineString:
		return []overlayShape{{kind: ports.OverlayPolyline, vertices: t}}
	case orb.MultiLineString:
		out := make([]overlayShape, len(t))
		for i, ls := range t {
			out[i] = overlayShape{kind: ports.OverlayPolyline, vertices: ls}
		}
		return out
	case orb.Polygon:
		return []overlayShape{{kind: ports.OverlayPolygon, vertices: t[0]}}
	case orb.MultiPolygon:
		out := make([]overlayShape, 0, len(t))
		for _, poly := range t {
			out = append(out, overlayShape{kind: ports.OverlayPolygon, vertices: poly[0]})
		}
		return out
	}
	return nil
}
