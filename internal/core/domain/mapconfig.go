package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Library identifies a map rendering backend.
type Library string

const (
	LibraryGoogle  Library = "google"
	LibraryLeaflet Library = "leaflet"
)

// EmptyBehavior decides what a listing map does with no features.
type EmptyBehavior string

const (
	EmptyHide    EmptyBehavior = "hide"
	EmptyMessage EmptyBehavior = "message"
	EmptyShowMap EmptyBehavior = "empty_map"
)

const (
	maxZoomLevel = 22
	defaultFocus = 12
)

// ZoomConfig bounds and seeds a map's zoom.
type ZoomConfig struct {
	Initial      int  `json:"initial" mapstructure:"initial"`
	Focus        int  `json:"focus" mapstructure:"focus"`
	Min          int  `json:"min" mapstructure:"min"`
	Max          int  `json:"max" mapstructure:"max"`
	ForceInitial bool `json:"force_initial" mapstructure:"force_initial"`
}

// Clamp keeps level within [Min, Max].
func (z ZoomConfig) Clamp(level int) int {
	if level < z.Min {
		return z.Min
	}
	if z.Max > 0 && level > z.Max {
		return z.Max
	}
	return level
}

// Controls toggles the map UI controls.
type Controls struct {
	Zoom        bool `json:"zoom"`
	MapType     bool `json:"map_type"`
	Scale       bool `json:"scale"`
	StreetView  bool `json:"street_view"`
	Fullscreen  bool `json:"fullscreen"`
	ScrollWheel bool `json:"scroll_wheel"`
	Draggable   bool `json:"draggable"`
}

// MarkerConfig holds marker defaults.
type MarkerConfig struct {
	IconURL   string `json:"icon_url,omitempty"`
	Draggable bool   `json:"draggable"`
}

// RawOptionsConfig is an on/off toggle plus a caller JSON override blob.
type RawOptionsConfig struct {
	Enabled    bool            `json:"enabled"`
	RawOptions json.RawMessage `json:"options,omitempty"`
}

// EmptyConfig configures the empty-collection behaviour.
type EmptyConfig struct {
	Behavior EmptyBehavior `json:"behavior"`
	Message  string        `json:"message,omitempty"`
}

// FieldSelectors names the host inputs an editable widget is bound to.
type FieldSelectors struct {
	Lat         string `json:"lat"`
	Lng         string `json:"lng"`
	Search      string `json:"search,omitempty"`
	Address     string `json:"address,omitempty"`
	FindMarker  string `json:"find_marker,omitempty"`
	PlaceMarker string `json:"place_marker,omitempty"`
}

// MapInstanceConfig is the immutable per-instance configuration supplied by the host page.
type MapInstanceConfig struct {
	MapID              string           `json:"map_id"`
	Library            Library          `json:"library"`
	Width              string           `json:"width,omitempty"`
	Height             string           `json:"height,omitempty"`
	Center             GeoPoint         `json:"center"`
	Zoom               ZoomConfig       `json:"zoom"`
	Controls           Controls         `json:"controls"`
	Marker             MarkerConfig     `json:"marker"`
	Popup              bool             `json:"popup"`
	Clustering         RawOptionsConfig `json:"clustering"`
	Spiderfy           RawOptionsConfig `json:"spiderfy"`
	Empty              EmptyConfig      `json:"empty"`
	Editable           bool             `json:"editable"`
	Fields             FieldSelectors   `json:"fields"`
	ConfirmPlaceMarker bool             `json:"confirm_place_marker"`
	AdditionalOptions  json.RawMessage  `json:"additional_options,omitempty"`
}

// DefaultMapInstanceConfig returns a config with the defaults the settings
// screens ship with.
func DefaultMapInstanceConfig(mapID string, lib Library) MapInstanceConfig {
	return MapInstanceConfig{
		MapID:   mapID,
		Library: lib,
		Width:   "100%",
		Height:  "450px",
		Zoom:    ZoomConfig{Initial: 6, Focus: defaultFocus, Min: 0, Max: maxZoomLevel},
		Controls: Controls{
			Zoom:        true,
			MapType:     true,
			Scale:       true,
			ScrollWheel: true,
			Draggable:   true,
		},
		Marker: MarkerConfig{Draggable: true},
		Popup:  true,
		Empty:  EmptyConfig{Behavior: EmptyShowMap},
	}
}

// Validate checks the configuration. Any failure is a *ConfigError and the
// instance must not initialize.
func (c MapInstanceConfig) Validate() error {
	if c.MapID == "" {
		return &ConfigError{Field: "map_id", Err: errors.New("required")}
	}
	switch c.Library {
	case LibraryGoogle, LibraryLeaflet:
	default:
		return &ConfigError{Field: "library", Err: fmt.Errorf("unknown library %q", c.Library)}
	}
	if !c.Center.Valid() {
		return &ConfigError{Field: "center", Err: ErrOutOfRange}
	}
	z := c.Zoom
	if z.Min < 0 || z.Max > maxZoomLevel || (z.Max > 0 && z.Min > z.Max) {
		return &ConfigError{Field: "zoom", Err: fmt.Errorf("invalid bounds min=%d max=%d", z.Min, z.Max)}
	}
	switch c.Empty.Behavior {
	case "", EmptyHide, EmptyMessage, EmptyShowMap:
	default:
		return &ConfigError{Field: "empty.behavior", Err: fmt.Errorf("unknown behavior %q", c.Empty.Behavior)}
	}
	if c.Editable && (c.Fields.Lat == "" || c.Fields.Lng == "") {
		return &ConfigError{Field: "fields", Err: errors.New("editable maps need lat and lng selectors")}
	}
	if _, err := DecodeRawOptions("additional_options", c.AdditionalOptions); err != nil {
		return err
	}
	if _, err := DecodeRawOptions("clustering.options", c.Clustering.RawOptions); err != nil {
		return err
	}
	if _, err := DecodeRawOptions("spiderfy.options", c.Spiderfy.RawOptions); err != nil {
		return err
	}
	return nil
}

// FocusZoom is the zoom used after a search or a field edit.
func (c MapInstanceConfig) FocusZoom() int {
	if c.Zoom.Focus > 0 {
		return c.Zoom.Clamp(c.Zoom.Focus)
	}
	return c.Zoom.Clamp(defaultFocus)
}

// DecodeRawOptions parses a free-form JSON object override. Empty input and
// JSON null yield nil options.
func DecodeRawOptions(field string, raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ConfigError{Field: field, Err: err}
	}
	return out, nil
}

// MergeOptions copies base and applies override on top; override wins.
func MergeOptions(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
