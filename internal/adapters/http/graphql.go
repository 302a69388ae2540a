package http

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/geofield/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	settingFieldType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SettingField",
		Fields: graphql.Fields{
			"name":        &graphql.Field{Type: graphql.String},
			"type":        &graphql.Field{Type: graphql.String},
			"required":    &graphql.Field{Type: graphql.Boolean},
			"description": &graphql.Field{Type: graphql.String},
		},
	})

	themerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Themer",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"name":            &graphql.Field{Type: graphql.String},
			"description":     &graphql.Field{Type: graphql.String},
			"arity":           &graphql.Field{Type: graphql.String},
			"settings_schema": &graphql.Field{Type: graphql.NewList(settingFieldType)},
		},
	})

	legendRowType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LegendRow",
		Fields: graphql.Fields{
			"key":    &graphql.Field{Type: graphql.String},
			"label":  &graphql.Field{Type: graphql.String},
			"icon":   &graphql.Field{Type: graphql.String},
			"weight": &graphql.Field{Type: graphql.Int},
		},
	})

	legendType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Legend",
		Fields: graphql.Fields{
			"plugin_id": &graphql.Field{Type: graphql.String},
			"title":     &graphql.Field{Type: graphql.String},
			"rows":      &graphql.Field{Type: graphql.NewList(legendRowType)},
		},
	})

	geocodeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeocodeResult",
		Fields: graphql.Fields{
			"point":             &graphql.Field{Type: geoPointType},
			"formatted_address": &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"themers": &graphql.Field{
				Type:        graphql.NewList(themerType),
				Description: "List the registered themer plugins",
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return deps.Themers.List(), nil
				},
			},
			"themer": &graphql.Field{
				Type:        themerType,
				Description: "Get a themer plugin by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					def, ok := deps.Themers.Definition(p.Args["id"].(string))
					if !ok {
						return nil, nil
					}
					return def, nil
				},
			},
			"presets": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Names of the configured themer presets",
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return deps.Themers.Presets(), nil
				},
			},
			"legend": &graphql.Field{
				Type:        legendType,
				Description: "Legend of a themer; settings is a JSON-encoded settings object",
				Args: graphql.FieldConfigArgument{
					"plugin":         &graphql.ArgumentConfig{Type: graphql.String},
					"preset":         &graphql.ArgumentConfig{Type: graphql.String},
					"settings":       &graphql.ArgumentConfig{Type: graphql.String},
					"title":          &graphql.ArgumentConfig{Type: graphql.String},
					"render_default": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					var sel domain.ThemerSelection
					if preset, _ := p.Args["preset"].(string); preset != "" {
						s, ok := deps.Themers.Preset(preset)
						if !ok {
							return nil, fmt.Errorf("themer preset not found: %s", preset)
						}
						sel = s
					} else {
						sel.PluginID, _ = p.Args["plugin"].(string)
						if raw, _ := p.Args["settings"].(string); raw != "" {
							if err := json.Unmarshal([]byte(raw), &sel.Settings); err != nil {
								return nil, fmt.Errorf("settings: %w", err)
							}
						}
					}
					title, _ := p.Args["title"].(string)
					renderDefault, _ := p.Args["render_default"].(bool)
					if sel.Legend == nil || title != "" || renderDefault {
						sel.Legend = &domain.LegendConfig{Title: title, RenderDefault: renderDefault}
					}
					return deps.Pipeline.Legend(sel)
				},
			},
			"geocode": &graphql.Field{
				Type:        geocodeType,
				Description: "Resolve an address to a point",
				Args: graphql.FieldConfigArgument{
					"address": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					if deps.Geocode == nil {
						return nil, fmt.Errorf("geocoding not configured")
					}
					res, ok := deps.Geocode.Forward(p.Context, p.Args["address"].(string))
					if !ok {
						return nil, nil
					}
					return res, nil
				},
			},
			"reverseGeocode": &graphql.Field{
				Type:        graphql.String,
				Description: "Resolve a point to an address",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					if deps.Geocode == nil {
						return nil, fmt.Errorf("geocoding not configured")
					}
					pt, err := domain.NewGeoPoint(p.Args["lat"].(float64), p.Args["lng"].(float64))
					if err != nil {
						return nil, err
					}
					addr, ok := deps.Geocode.Reverse(p.Context, pt)
					if !ok {
						return nil, nil
					}
					return addr, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string         `json:"query"`
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})
		return c.JSON(result)
	}
}
