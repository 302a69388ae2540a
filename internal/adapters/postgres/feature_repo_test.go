package postgres

import (
	"strings"
	"testing"

	"github.com/samirrijal/geofield/internal/core/ports"
)

func TestListQuery(t *testing.T) {
	tests := []struct {
		name      string
		q         ports.FeatureQuery
		wantWhere []string
		wantArgs  int
		wantLimit int
	}{
		{"all", ports.FeatureQuery{}, nil, 1, defaultFeatureLimit},
		{"type", ports.FeatureQuery{EntityType: "node", Limit: 50}, []string{"entity_type = $1"}, 2, 50},
		{
			"everything",
			ports.FeatureQuery{EntityType: "node", Bundle: "shop", EntityIDs: []string{"1", "2"}, Limit: 5000},
			[]string{"entity_type = $1", "bundle = $2", "entity_id = ANY($3)"},
			4, defaultFeatureLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := listQuery(tt.q)
			if len(args) != tt.wantArgs {
				t.Fatalf("expected %d args, got %d", tt.wantArgs, len(args))
			}
			if args[len(args)-1] != tt.wantLimit {
				t.Errorf("expected limit %d, got %v", tt.wantLimit, args[len(args)-1])
			}
			if (len(tt.wantWhere) > 0) != strings.Contains(sql, "WHERE") {
				t.Errorf("unexpected WHERE presence in %s", sql)
			}
			for _, w := range tt.wantWhere {
				if !strings.Contains(sql, w) {
					t.Errorf("missing %q in %s", w, sql)
				}
			}
			if !strings.Contains(sql, "ST_AsGeoJSON(geom)") {
				t.Error("geometries must be read as GeoJSON")
			}
		})
	}
}
