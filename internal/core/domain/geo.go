package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// CoordPrecision is the number of decimals used whenever a coordinate is
// written to a field or used as a cache key.
const CoordPrecision = 6

// GeoPoint represents a geographic coordinate (WGS 84).
// It is a value type: every change produces a new GeoPoint.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewGeoPoint validates lat/lng and returns the point.
// Out-of-range or non-finite values are rejected, never clamped.
func NewGeoPoint(lat, lng float64) (GeoPoint, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return GeoPoint{}, fmt.Errorf("%w: non-finite coordinate", ErrOutOfRange)
	}
	if lat < -90 || lat > 90 {
		return GeoPoint{}, fmt.Errorf("%w: lat %v", ErrOutOfRange, lat)
	}
	if lng < -180 || lng > 180 {
		return GeoPoint{}, fmt.Errorf("%w: lng %v", ErrOutOfRange, lng)
	}
	return GeoPoint{Lat: lat, Lng: lng}, nil
}

// ParseGeoPoint parses the raw contents of a latitude and a longitude input field.
func ParseGeoPoint(latField, lngField string) (GeoPoint, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latField), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("%w: lat %q", ErrOutOfRange, latField)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngField), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("%w: lng %q", ErrOutOfRange, lngField)
	}
	return NewGeoPoint(lat, lng)
}

// Valid reports whether p is within WGS 84 range.
func (p GeoPoint) Valid() bool {
	_, err := NewGeoPoint(p.Lat, p.Lng)
	return err == nil
}

// Round6 returns p rounded to CoordPrecision decimals.
func (p GeoPoint) Round6() GeoPoint {
	return GeoPoint{Lat: roundTo(p.Lat, CoordPrecision), Lng: roundTo(p.Lng, CoordPrecision)}
}

// Equal6 compares two points at field precision.
func (p GeoPoint) Equal6(o GeoPoint) bool {
	return p.Round6() == o.Round6()
}

// Key returns "lat,lng" with 6 decimals.
func (p GeoPoint) Key() string {
	return FormatCoord(p.Lat) + "," + FormatCoord(p.Lng)
}

// Orb converts to an orb.Point ([lng, lat] order).
func (p GeoPoint) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// FromOrb converts an orb.Point ([lng, lat] order) to a GeoPoint.
func FromOrb(pt orb.Point) GeoPoint {
	return GeoPoint{Lat: pt.Lat(), Lng: pt.Lon()}
}

// FormatCoord renders a coordinate the way numeric fields display it.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', CoordPrecision, 64)
}

func roundTo(v float64, decimals int) float64 {
	pow := math.Pow10(decimals)
	return math.Round(v*pow) / pow
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// BoundsOf returns the smallest box covering every point.
// ok is false when points is empty.
func BoundsOf(points []GeoPoint) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b = Bounds{MinLat: points[0].Lat, MaxLat: points[0].Lat, MinLng: points[0].Lng, MaxLng: points[0].Lng}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}
	return b, true
}

// Center returns the middle of the box.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLng + b.MaxLng) / 2}
}

// Contains reports whether p lies within the box (inclusive).
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// DistinctPoints drops points equal at field precision, keeping first occurrences.
func DistinctPoints(points []GeoPoint) []GeoPoint {
	seen := make(map[GeoPoint]struct{}, len(points))
	out := make([]GeoPoint, 0, len(points))
	for _, p := range points {
		k := p.Round6()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
