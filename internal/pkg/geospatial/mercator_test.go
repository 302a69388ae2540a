package geospatial

import (
	"math"
	"testing"
)

func TestProjectUnprojectRoundTrip(t *testing.T) {
	cases := []struct{ lat, lng float64 }{
		{0, 0},
		{45, 9},
		{-33.8688, 151.2093},
		{48.8566, 2.3522},
	}
	for _, c := range cases {
		for _, z := range []int{0, 5, 12, 18} {
			x, y := Project(c.lat, c.lng, z)
			lat, lng := Unproject(x, y, z)
			if math.Abs(lat-c.lat) > 1e-9 || math.Abs(lng-c.lng) > 1e-9 {
				t.Errorf("zoom %d: got (%v,%v), want (%v,%v)", z, lat, lng, c.lat, c.lng)
			}
		}
	}
}

func TestProjectOrigin(t *testing.T) {
	x, y := Project(0, 0, 0)
	if x != 128 || math.Abs(y-128) > 1e-9 {
		t.Errorf("expected (128,128), got (%v,%v)", x, y)
	}
}

func TestFitZoom(t *testing.T) {
	// Milan to Paris fits a 640x450 viewport around zoom 5.
	z := FitZoom(45.0, 2.3522, 48.8566, 9.0, 640, 450, 0, 0, 18)
	if z < 4 || z > 6 {
		t.Errorf("expected zoom near 5, got %d", z)
	}

	// A degenerate box returns the max zoom.
	if z := FitZoom(45, 9, 45, 9, 640, 450, 0, 0, 18); z != 18 {
		t.Errorf("expected 18 for a point box, got %d", z)
	}
}

func TestHaversine(t *testing.T) {
	d := Haversine(48.8566, 2.3522, 45.4642, 9.19)
	if d < 630_000 || d > 650_000 {
		t.Errorf("Paris-Milan distance out of range: %v", d)
	}
}
