package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// Well-known feature property names.
const (
	PropDescription = "description"
	PropIcon        = "icon"
	PropTheming     = "theming"
)

// GeoFeature is one geometry plus its attribute bundle.
type GeoFeature struct {
	ID         string             `json:"id,omitempty"`
	Geometry   orb.Geometry       `json:"-"`
	Properties geojson.Properties `json:"properties"`
}

// Description returns the popup content, "" when absent or null.
func (f GeoFeature) Description() string {
	s, _ := f.Properties[PropDescription].(string)
	return s
}

// Icon returns the marker icon URL, "" when absent.
func (f GeoFeature) Icon() string {
	s, _ := f.Properties[PropIcon].(string)
	return s
}

// Themed reports whether the icon was assigned by a themer.
func (f GeoFeature) Themed() bool {
	b, _ := f.Properties[PropTheming].(bool)
	return b
}

// Property returns a property rendered as a string.
func (f GeoFeature) Property(name string) (string, bool) {
	v, ok := f.Properties[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// WithIcon returns a copy of f carrying icon and the theming flag.
func (f GeoFeature) WithIcon(icon string, themed bool) GeoFeature {
	props := f.Properties.Clone()
	if props == nil {
		props = geojson.Properties{}
	}
	props[PropIcon] = icon
	props[PropTheming] = themed
	f.Properties = props
	return f
}

// MarshalJSON encodes the feature as a GeoJSON Feature.
func (f GeoFeature) MarshalJSON() ([]byte, error) {
	gf := geojson.NewFeature(f.Geometry)
	if f.ID != "" {
		gf.ID = f.ID
	}
	if f.Properties != nil {
		gf.Properties = f.Properties
	}
	return gf.MarshalJSON()
}

// FeatureCollection is an ordered set of features; order is z-order.
// Center, when set, overrides any computed bounds.
type FeatureCollection struct {
	Features []GeoFeature `json:"features"`
	Center   *GeoPoint    `json:"center,omitempty"`
}

// MarshalJSON encodes the collection as GeoJSON with the center as a foreign member.
func (fc FeatureCollection) MarshalJSON() ([]byte, error) {
	out := struct {
		Type     string       `json:"type"`
		Features []GeoFeature `json:"features"`
		Center   *GeoPoint    `json:"center,omitempty"`
	}{Type: "FeatureCollection", Features: fc.Features, Center: fc.Center}
	if out.Features == nil {
		out.Features = []GeoFeature{}
	}
	return json.Marshal(out)
}

// ParseFeatureCollection decodes a GeoJSON FeatureCollection leniently:
// a feature whose geometry cannot be decoded is reported as a GeometryError
// and left out, the rest are kept in order.
func ParseFeatureCollection(data []byte) (FeatureCollection, []error, error) {
	var raw struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
		Center   *GeoPoint         `json:"center"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return FeatureCollection{}, nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if raw.Type != "" && raw.Type != "FeatureCollection" {
		return FeatureCollection{}, nil, fmt.Errorf("decode feature collection: unexpected type %q", raw.Type)
	}

	fc := FeatureCollection{Features: make([]GeoFeature, 0, len(raw.Features))}
	if raw.Center != nil {
		c, err := NewGeoPoint(raw.Center.Lat, raw.Center.Lng)
		if err != nil {
			return FeatureCollection{}, nil, &ConfigError{Field: "center", Err: err}
		}
		fc.Center = &c
	}

	var warnings []error
	for i, msg := range raw.Features {
		id := strconv.Itoa(i)
		gf, err := geojson.UnmarshalFeature(msg)
		if err != nil {
			warnings = append(warnings, &GeometryError{FeatureID: id, Err: err})
			continue
		}
		if gf.ID != nil {
			id = fmt.Sprint(gf.ID)
		}
		if err := ValidateGeometry(gf.Geometry); err != nil {
			warnings = append(warnings, &GeometryError{FeatureID: id, Err: err})
			continue
		}
		fc.Features = append(fc.Features, GeoFeature{ID: id, Geometry: gf.Geometry, Properties: gf.Properties})
	}
	return fc, warnings, nil
}

// StoredGeometry is a geometry as persisted by the host: WKT or a GeoJSON
// geometry object, plus the entity it belongs to.
type StoredGeometry struct {
	EntityID   string          `json:"entity_id"`
	EntityType string          `json:"entity_type"`
	Bundle     string          `json:"bundle"`
	WKT        string          `json:"wkt,omitempty"`
	GeoJSON    json.RawMessage `json:"geojson,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
}

// Decode parses the stored geometry.
func (s StoredGeometry) Decode() (orb.Geometry, error) {
	var (
		g   orb.Geometry
		err error
	)
	switch {
	case s.WKT != "":
		g, err = wkt.Unmarshal(s.WKT)
	case len(s.GeoJSON) > 0:
		var gg *geojson.Geometry
		gg, err = geojson.UnmarshalGeometry(s.GeoJSON)
		if err == nil {
			g = gg.Geometry()
		}
	default:
		err = errors.New("no geometry stored")
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateGeometry(g); err != nil {
		return nil, err
	}
	return g, nil
}

// BuildFeatureCollection turns stored geometries into features. Items that
// fail to decode are returned as GeometryErrors and skipped.
func BuildFeatureCollection(items []StoredGeometry) (FeatureCollection, []error) {
	fc := FeatureCollection{Features: make([]GeoFeature, 0, len(items))}
	var warnings []error
	for _, it := range items {
		g, err := it.Decode()
		if err != nil {
			warnings = append(warnings, &GeometryError{FeatureID: it.EntityID, Err: err})
			continue
		}
		props := geojson.Properties{}
		for k, v := range it.Properties {
			props[k] = v
		}
		if it.EntityType != "" {
			props["entity_type"] = it.EntityType
		}
		if it.Bundle != "" {
			props["bundle"] = it.Bundle
		}
		if it.EntityID != "" {
			props["entity_id"] = it.EntityID
		}
		fc.Features = append(fc.Features, GeoFeature{ID: it.EntityID, Geometry: g, Properties: props})
	}
	return fc, warnings
}

// ValidateGeometry accepts points, lines and polygons (and their multi forms)
// whose coordinates are all finite and within range.
func ValidateGeometry(g orb.Geometry) error {
	if g == nil {
		return errors.New("missing geometry")
	}
	switch t := g.(type) {
	case orb.Point:
		return validPoint(t)
	case orb.MultiPoint:
		if len(t) == 0 {
			return errors.New("empty multipoint")
		}
		return validPoints(t)
	case orb.LineString:
		if len(t) < 2 {
			return errors.New("linestring needs at least 2 vertices")
		}
		return validPoints(t)
	case orb.MultiLineString:
		if len(t) == 0 {
			return errors.New("empty multilinestring")
		}
		for _, ls := range t {
			if err := ValidateGeometry(ls); err != nil {
				return err
			}
		}
		return nil
	case orb.Polygon:
		if len(t) == 0 || len(t[0]) < 3 {
			return errors.New("polygon needs an outer ring of at least 3 vertices")
		}
		for _, r := range t {
			if err := validPoints(r); err != nil {
				return err
			}
		}
		return nil
	case orb.MultiPolygon:
		if len(t) == 0 {
			return errors.New("empty multipolygon")
		}
		for _, p := range t {
			if err := ValidateGeometry(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

func validPoints[T ~[]orb.Point](pts T) error {
	for _, p := range pts {
		if err := validPoint(p); err != nil {
			return err
		}
	}
	return nil
}

func validPoint(p orb.Point) error {
	if math.IsNaN(p[0]) || math.IsNaN(p[1]) {
		return ErrOutOfRange
	}
	_, err := NewGeoPoint(p.Lat(), p.Lon())
	return err
}
