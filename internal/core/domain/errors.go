package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a coordinate is not a finite WGS 84 value.
	ErrOutOfRange = errors.New("coordinate out of range")

	// ErrGeocodeNotFound is returned by geocode providers when a lookup yields nothing.
	ErrGeocodeNotFound = errors.New("geocode: no result")

	// ErrRecursiveRender is returned when a map is asked to render inside its own rendering.
	ErrRecursiveRender = errors.New("render: recursive rendering refused")

	// ErrUnknownThemer is returned when a themer plugin id is not registered.
	ErrUnknownThemer = errors.New("themer: unknown plugin")
)

// ConfigError reports malformed caller-supplied configuration. The affected
// map instance does not initialize.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// GeometryError reports a stored feature that cannot be turned into a renderable geometry.
type GeometryError struct {
	FeatureID string
	Err       error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry error for feature %q: %v", e.FeatureID, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

// IconResolutionError reports a custom icon that is unreachable or invalid.
type IconResolutionError struct {
	URL string
	Err error
}

func (e *IconResolutionError) Error() string {
	return fmt.Sprintf("icon %q unavailable: %v", e.URL, e.Err)
}

func (e *IconResolutionError) Unwrap() error { return e.Err }

// PluginError reports a theming plugin that failed to instantiate or classify.
type PluginError struct {
	PluginID string
	Op       string
	Err      error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("themer %s: %s: %v", e.PluginID, e.Op, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }
