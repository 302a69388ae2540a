package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
)

const defaultFeatureLimit = 1000

// FeatureRepo reads stored geometries and the entity data themers classify
// on. It implements ports.FeatureRepository and ports.ClassificationSource
// and never writes.
type FeatureRepo struct {
	db *DB
}

var (
	_ ports.FeatureRepository    = (*FeatureRepo)(nil)
	_ ports.ClassificationSource = (*FeatureRepo)(nil)
)

// NewFeatureRepo creates a new FeatureRepo.
func NewFeatureRepo(db *DB) *FeatureRepo {
	return &FeatureRepo{db: db}
}

// listQuery builds the geometry query for q. Geometries come back as
// GeoJSON so the domain decodes them with the same code as inline input.
func listQuery(q ports.FeatureQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.EntityType != "" {
		args = append(args, q.EntityType)
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if q.Bundle != "" {
		args = append(args, q.Bundle)
		where = append(where, fmt.Sprintf("bundle = $%d", len(args)))
	}
	if len(q.EntityIDs) > 0 {
		args = append(args, q.EntityIDs)
		where = append(where, fmt.Sprintf("entity_id = ANY($%d)", len(args)))
	}
	limit := q.Limit
	if limit <= 0 || limit > defaultFeatureLimit {
		limit = defaultFeatureLimit
	}
	args = append(args, limit)

	var sb strings.Builder
	sb.WriteString(`
		SELECT entity_id, entity_type, bundle,
		       COALESCE(ST_AsGeoJSON(geom), ''),
		       COALESCE(properties, '{}')
		FROM geofield_geometries`)
	if len(where) > 0 {
		sb.WriteString("\n\t\tWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&sb, "\n\t\tORDER BY weight, entity_id\n\t\tLIMIT $%d", len(args))
	return sb.String(), args
}

// List returns the stored geometries matching q, in z-order.
func (r *FeatureRepo) List(ctx context.Context, q ports.FeatureQuery) ([]domain.StoredGeometry, error) {
	sql, args := listQuery(q)
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query geometries: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredGeometry
	for rows.Next() {
		var (
			g     domain.StoredGeometry
			gj    string
			props []byte
		)
		if err := rows.Scan(&g.EntityID, &g.EntityType, &g.Bundle, &gj, &props); err != nil {
			return nil, fmt.Errorf("scan geometry: %w", err)
		}
		if gj != "" {
			g.GeoJSON = json.RawMessage(gj)
		}
		if len(props) > 0 {
			if err := json.Unmarshal(props, &g.Properties); err != nil {
				return nil, fmt.Errorf("entity %s properties: %w", g.EntityID, err)
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Entities returns the type, bundle and reference fields of each entity.
func (r *FeatureRepo) Entities(ctx context.Context, ids []string) (map[string]domain.Entity, error) {
	out := make(map[string]domain.Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT entity_id, entity_type, bundle
		FROM geofield_geometries
		WHERE entity_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Entity, error) {
		var e domain.Entity
		err := row.Scan(&e.ID, &e.Type, &e.Bundle)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan entities: %w", err)
	}
	for _, e := range entities {
		e.Fields = map[string][]string{}
		out[e.ID] = e
	}

	refs, err := r.db.Pool.Query(ctx, `
		SELECT entity_id, field, target_id
		FROM geofield_entity_refs
		WHERE entity_id = ANY($1)
		ORDER BY entity_id, field, delta
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query entity refs: %w", err)
	}
	defer refs.Close()
	for refs.Next() {
		var id, field, target string
		if err := refs.Scan(&id, &field, &target); err != nil {
			return nil, fmt.Errorf("scan entity ref: %w", err)
		}
		if e, ok := out[id]; ok {
			e.Fields[field] = append(e.Fields[field], target)
		}
	}
	return out, refs.Err()
}
