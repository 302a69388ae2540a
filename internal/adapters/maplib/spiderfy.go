package maplib

import (
	"math"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/pkg/geospatial"
)

// Overlapping Marker Spiderfier geometry, in pixels.
const (
	defaultNearbyDistance         = 20
	defaultCircleSpiralSwitchover = 9

	circleFootSeparation = 23.0
	circleStartAngle     = math.Pi / 6
	spiralFootSeparation = 26.0
	spiralLengthStart    = 11.0
	spiralLengthFactor   = 4.0
)

type spiderParams struct {
	nearby     float64
	switchover int
}

func spiderfyParams(opts map[string]any) (spiderParams, error) {
	nearby, err := numberOption("spiderfy.options", opts, "nearbyDistance", defaultNearbyDistance)
	if err != nil {
		return spiderParams{}, err
	}
	sw, err := numberOption("spiderfy.options", opts, "circleSpiralSwitchover", defaultCircleSpiralSwitchover)
	if err != nil {
		return spiderParams{}, err
	}
	return spiderParams{nearby: nearby, switchover: int(sw)}, nil
}

// spiderfy fans out every group of markers lying within nearby pixels of
// each other: a circle for small groups, a spiral from switchover on.
// Markers that do not overlap are absent from the result.
func spiderfy(items []placed, zoom int, sp spiderParams) map[ports.MarkerHandle]domain.GeoPoint {
	type group struct {
		cx, cy  float64
		members []ports.MarkerHandle
	}
	var groups []*group
	for _, it := range items {
		x, y := geospatial.Project(it.p.Lat, it.p.Lng, zoom)
		var joined bool
		for _, g := range groups {
			if math.Hypot(x-g.cx, y-g.cy) <= sp.nearby {
				g.members = append(g.members, it.h)
				joined = true
				break
			}
		}
		if !joined {
			groups = append(groups, &group{cx: x, cy: y, members: []ports.MarkerHandle{it.h}})
		}
	}

	out := make(map[ports.MarkerHandle]domain.GeoPoint)
	for _, g := range groups {
		n := len(g.members)
		if n < 2 {
			continue
		}
		var pts [][2]float64
		if sp.switchover > 0 && n >= sp.switchover {
			pts = spiralPositions(n, g.cx, g.cy)
		} else {
			pts = circlePositions(n, g.cx, g.cy)
		}
		for i, h := range g.members {
			lat, lng := geospatial.Unproject(pts[i][0], pts[i][1], zoom)
			out[h] = domain.GeoPoint{Lat: lat, Lng: lng}
		}
	}
	return out
}

func circlePositions(n int, cx, cy float64) [][2]float64 {
	circumference := circleFootSeparation * float64(2+n)
	legLength := circumference / (2 * math.Pi)
	step := 2 * math.Pi / float64(n)

	pts := make([][2]float64, n)
	for i := range pts {
		angle := circleStartAngle + float64(i)*step
		pts[i] = [2]float64{cx + legLength*math.Cos(angle), cy + legLength*math.Sin(angle)}
	}
	return pts
}

func spiralPositions(n int, cx, cy float64) [][2]float64 {
	legLength := spiralLengthStart
	angle := 0.0

	pts := make([][2]float64, n)
	for i := range pts {
		angle += spiralFootSeparation/legLength + float64(i)*0.0005
		pts[i] = [2]float64{cx + legLength*math.Cos(angle), cy + legLength*math.Sin(angle)}
		legLength += 2 * math.Pi * spiralLengthFactor / angle
	}
	return pts
}
