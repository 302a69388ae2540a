package ports

import (
	"context"

	"github.com/samirrijal/geofield/internal/core/domain"
)

// FeatureQuery selects stored geometries for a listing map.
type FeatureQuery struct {
	EntityType string
	Bundle     string
	EntityIDs  []string
	Limit      int
}

// FeatureRepository reads stored geometries. It never writes them.
type FeatureRepository interface {
	List(ctx context.Context, q FeatureQuery) ([]domain.StoredGeometry, error)
}

// ClassificationSource returns, per rendered entity, the data themers classify on.
type ClassificationSource interface {
	Entities(ctx context.Context, ids []string) (map[string]domain.Entity, error)
}
