package geospatial

import "math"

// earthRadiusMeters is the IUGG mean Earth radius.
const earthRadiusMeters = 6371008.8

// Haversine returns the great-circle distance in meters between two
// WGS84 points given in degrees.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	sinDLat := math.Sin(toRad(lat2-lat1) / 2)
	sinDLng := math.Sin(toRad(lng2-lng1) / 2)
	h := sinDLat*sinDLat + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*sinDLng*sinDLng
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
