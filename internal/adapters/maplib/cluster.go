package maplib

import (
	"math"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/pkg/geospatial"
)

type clusterParams struct {
	gridSize  float64 // pixels
	disableAt int     // zoom at or beyond which markers stay discrete; -1 never
	minSize   int
}

type placed struct {
	h ports.MarkerHandle
	p domain.GeoPoint
}

type gridGroup struct {
	cx, cy  float64
	members []placed
}

// gridCluster groups markers the way MarkerClusterer does: each marker joins
// the closest existing cluster whose grid-expanded square around its first
// marker contains it, or starts a new one. Groups smaller than minSize are
// returned as single-marker clusters.
func gridCluster(items []placed, zoom int, cp clusterParams) []ports.Cluster {
	if cp.disableAt >= 0 && zoom >= cp.disableAt {
		return singles(items)
	}

	var groups []*gridGroup
	for _, it := range items {
		x, y := geospatial.Project(it.p.Lat, it.p.Lng, zoom)

		var best *gridGroup
		bestDist := math.Inf(1)
		for _, g := range groups {
			if math.Abs(x-g.cx) > cp.gridSize || math.Abs(y-g.cy) > cp.gridSize {
				continue
			}
			if d := math.Hypot(x-g.cx, y-g.cy); d < bestDist {
				best, bestDist = g, d
			}
		}
		if best == nil {
			groups = append(groups, &gridGroup{cx: x, cy: y, members: []placed{it}})
			continue
		}
		best.members = append(best.members, it)
	}

	out := make([]ports.Cluster, 0, len(groups))
	for _, g := range groups {
		if len(g.members) < cp.minSize {
			out = append(out, singles(g.members)...)
			continue
		}
		c := ports.Cluster{Center: g.members[0].p, Markers: make([]ports.MarkerHandle, len(g.members))}
		for i, m := range g.members {
			c.Markers[i] = m.h
		}
		out = append(out, c)
	}
	return out
}

func singles(items []placed) []ports.Cluster {
	out := make([]ports.Cluster, len(items))
	for i, it := range items {
		out[i] = ports.Cluster{Center: it.p, Markers: []ports.MarkerHandle{it.h}}
	}
	return out
}
