package domain

import (
	"time"
)

// Entity is the host record a rendered feature belongs to. Themers read
// its type, bundle and reference fields to classify the feature.
type Entity struct {
	ID     string              `json:"id"`
	Type   string              `json:"type"`
	Bundle string              `json:"bundle"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// GeocodeResult is a resolved address/coordinate pair.
type GeocodeResult struct {
	Point            GeoPoint `json:"point"`
	FormattedAddress string   `json:"formatted_address"`
}

// SyncState is the WidgetSyncController state.
type SyncState string

const (
	StateIdle            SyncState = "idle"
	StateAwaitingGeocode SyncState = "awaiting_geocode"
)

// MapInstanceState is the live state of one editable map instance.
// Only its owning controller reads or writes it.
type MapInstanceState struct {
	Point       GeoPoint  `json:"point"`
	MapID       string    `json:"map_id"`
	MarkerID    string    `json:"marker_id"`
	LastAddress string    `json:"last_address"`
	Sync        SyncState `json:"sync"`
}

// PointChanged is published whenever an editable widget's point moves.
type PointChanged struct {
	MapID          string    `json:"map_id"`
	Point          GeoPoint  `json:"point"`
	Previous       GeoPoint  `json:"previous"`
	DistanceMeters float64   `json:"distance_m"`
	Address        string    `json:"address,omitempty"`
	Trigger        string    `json:"trigger"`
	OccurredAt     time.Time `json:"occurred_at"`
}
