package geospatial

import "math"

// TileSize is the pixel size of one web-mercator tile at zoom 0.
const TileSize = 256.0

// MaxLat is the latitude limit of the web-mercator projection.
const MaxLat = 85.05112878

// Project converts WGS 84 lat/lng to world pixel coordinates at zoom.
// Both backends use this projection for marker placement.
func Project(lat, lng float64, zoom int) (x, y float64) {
	if lat > MaxLat {
		lat = MaxLat
	} else if lat < -MaxLat {
		lat = -MaxLat
	}
	scale := TileSize * math.Exp2(float64(zoom))
	x = (lng + 180) / 360 * scale
	sinLat := math.Sin(toRad(lat))
	y = (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * scale
	return x, y
}

// Unproject converts world pixel coordinates at zoom back to lat/lng.
func Unproject(x, y float64, zoom int) (lat, lng float64) {
	scale := TileSize * math.Exp2(float64(zoom))
	lng = x/scale*360 - 180

	// Inverse Mercator projection
	mercatorY := math.Pi * (1 - 2*y/scale)
	lat = toDeg(2*math.Atan(math.Exp(mercatorY)) - math.Pi*0.5)

	if lat > MaxLat {
		lat = MaxLat
	} else if lat < -MaxLat {
		lat = -MaxLat
	}
	return lat, lng
}

// FitZoom returns the largest zoom in [minZoom, maxZoom] at which the box
// fits a viewport of widthPx × heightPx minus padding on every side.
func FitZoom(minLat, minLng, maxLat, maxLng float64, widthPx, heightPx, padding float64, minZoom, maxZoom int) int {
	availW := widthPx - 2*padding
	availH := heightPx - 2*padding
	if availW <= 0 || availH <= 0 {
		return minZoom
	}
	for z := maxZoom; z > minZoom; z-- {
		x1, y1 := Project(maxLat, minLng, z)
		x2, y2 := Project(minLat, maxLng, z)
		if math.Abs(x2-x1) <= availW && math.Abs(y2-y1) <= availH {
			return z
		}
	}
	return minZoom
}
